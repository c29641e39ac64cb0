package agent

import (
	"voicebroker/pkg/errors"
)

// Directory is the static in-process persona registry loaded once at startup
type Directory struct {
	personas []Persona
	byID     map[string]int
}

// NewDirectory builds a directory from personas, keeping their order
func NewDirectory(personas []Persona) *Directory {
	d := &Directory{
		personas: make([]Persona, len(personas)),
		byID:     make(map[string]int, len(personas)),
	}
	copy(d.personas, personas)
	for i, p := range d.personas {
		d.byID[p.ID] = i
	}
	return d
}

// NewDefaultDirectory builds the built-in personas with upstream id overrides keyed by slot
// and the listed persona ids disabled
func NewDefaultDirectory(overrides map[int]string, disabled []string) *Directory {
	off := make(map[string]bool, len(disabled))
	for _, id := range disabled {
		off[id] = true
	}

	personas := DefaultPersonas()
	for i := range personas {
		if id, ok := overrides[personas[i].Slot]; ok && id != "" {
			personas[i].UpstreamAgentID = id
		}
		if off[personas[i].ID] {
			personas[i].Active = false
		}
	}
	return NewDirectory(personas)
}

// Get returns the persona with the given id regardless of its active flag
func (d *Directory) Get(id string) (Persona, error) {
	i, ok := d.byID[id]
	if !ok {
		return Persona{}, errors.Wrapf(errors.ErrAgentNotFound, "agent %q", id)
	}
	return d.personas[i], nil
}

// Resolve returns an active persona or AgentNotFound / AgentInactive
func (d *Directory) Resolve(id string) (Persona, error) {
	p, err := d.Get(id)
	if err != nil {
		return Persona{}, err
	}
	if !p.Active {
		return Persona{}, errors.Wrapf(errors.ErrAgentInactive, "agent %q", id)
	}
	return p, nil
}

// ListActive returns active personas in configuration order
func (d *Directory) ListActive() []Persona {
	out := make([]Persona, 0, len(d.personas))
	for _, p := range d.personas {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// GetBySpecialization returns the first active persona with the specialization
func (d *Directory) GetBySpecialization(specialization string) (Persona, error) {
	for _, p := range d.personas {
		if p.Active && p.Specialization == specialization {
			return p, nil
		}
	}
	return Persona{}, errors.Wrapf(errors.ErrAgentNotFound, "specialization %q", specialization)
}
