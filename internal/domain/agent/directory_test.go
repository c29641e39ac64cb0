package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebroker/pkg/errors"
)

func TestDirectory_Resolve(t *testing.T) {
	d := NewDefaultDirectory(nil, nil)

	p, err := d.Resolve(IdentifierAssistant)
	require.NoError(t, err)
	assert.Equal(t, "Nova", p.Name)

	_, err = d.Resolve("ghost")
	assert.ErrorIs(t, err, errors.ErrAgentNotFound)

	_, err = d.Resolve(IdentifierSupport)
	assert.ErrorIs(t, err, errors.ErrAgentInactive)

	p, err = d.Get(IdentifierSupport)
	require.NoError(t, err)
	assert.False(t, p.Active)
}

func TestDirectory_Overrides(t *testing.T) {
	d := NewDefaultDirectory(map[int]string{2: "agent_override"}, []string{IdentifierWellnessCoach})

	p, err := d.Get(IdentifierFrenchTutor)
	require.NoError(t, err)
	assert.Equal(t, "agent_override", p.UpstreamAgentID)

	p, err = d.Get(IdentifierAssistant)
	require.NoError(t, err)
	assert.Equal(t, DefaultPersonas()[0].UpstreamAgentID, p.UpstreamAgentID)

	_, err = d.Resolve(IdentifierWellnessCoach)
	assert.ErrorIs(t, err, errors.ErrAgentInactive)
}

func TestDirectory_ListActiveKeepsOrder(t *testing.T) {
	d := NewDefaultDirectory(nil, nil)

	ids := []string{}
	for _, p := range d.ListActive() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{IdentifierAssistant, IdentifierFrenchTutor, IdentifierWellnessCoach}, ids)
}

func TestDirectory_GetBySpecialization(t *testing.T) {
	d := NewDirectory([]Persona{
		{ID: "a", Specialization: "coach", Active: false},
		{ID: "b", Specialization: "coach", Active: true},
		{ID: "c", Specialization: "coach", Active: true},
	})

	p, err := d.GetBySpecialization("coach")
	require.NoError(t, err)
	assert.Equal(t, "b", p.ID)

	_, err = d.GetBySpecialization("chef")
	assert.ErrorIs(t, err, errors.ErrAgentNotFound)
}

func TestDirectory_IsImmutable(t *testing.T) {
	source := DefaultPersonas()
	d := NewDirectory(source)
	source[0].Name = "changed"

	p, err := d.Get(IdentifierAssistant)
	require.NoError(t, err)
	assert.Equal(t, "Nova", p.Name)

	listed := d.ListActive()
	listed[0].Name = "changed"
	p, _ = d.Get(IdentifierAssistant)
	assert.Equal(t, "Nova", p.Name)
}
