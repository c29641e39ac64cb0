package voice

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebroker/internal/domain/agent"
	"voicebroker/internal/domain/usercontext"
	"voicebroker/pkg/crypto"
	"voicebroker/pkg/templates"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestPersonalizer_BuildPersonalization(t *testing.T) {
	p := NewPersonalizer(templates.Get(), nil)

	override, err := p.BuildPersonalization(testPersona(), "  Jane   Doe ")
	require.NoError(t, err)

	assert.Equal(t, "Hi Jane, I'm Nova. How can I help you today?", override.FirstMessage)
	assert.Contains(t, override.Prompt, "You are speaking with Jane Doe.")
	assert.Equal(t, "en", override.Language)
	assert.Equal(t, "Jane", override.DynamicVariables["first_name"])
	assert.Equal(t, "Jane Doe", override.DynamicVariables["user_name"])
	assert.Empty(t, override.EncryptedContext)
}

func TestPersonalizer_BuildPersonalizationLocalized(t *testing.T) {
	p := NewPersonalizer(templates.Get(), nil)
	persona := agent.Persona{ID: "french-tutor", Name: "Camille", Language: "fr", Description: "Un tuteur"}

	override, err := p.BuildPersonalization(persona, "Zoé")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(override.FirstMessage, "Bonjour"))
	assert.Equal(t, "fr", override.Language)
}

func TestPersonalizer_BuildPersonalizationWithoutName(t *testing.T) {
	p := NewPersonalizer(templates.Get(), nil)

	override, err := p.BuildPersonalization(testPersona(), "")
	require.NoError(t, err)
	assert.Equal(t, "Hi, I'm Nova. How can I help you today?", override.FirstMessage)
}

func TestPersonalizer_BuildEncryptedSealsCredentials(t *testing.T) {
	enc, err := crypto.NewEncryptor(testKey)
	require.NoError(t, err)
	p := NewPersonalizer(templates.Get(), enc)

	uc := &usercontext.UserContext{
		ConversationID: "conv-1",
		UserID:         "user-1",
		Name:           "Jane",
		CallerToken:    "caller.jwt.token",
		BearerAuth:     "Bearer caller.jwt.token",
		CreatedAt:      time.Now().UTC(),
	}

	override, err := p.BuildEncrypted(testPersona(), uc)
	require.NoError(t, err)
	require.NotEmpty(t, override.EncryptedContext)
	assert.Equal(t, "conv-1", override.DynamicVariables["conversation_id"])

	clear, err := json.Marshal(struct {
		Prompt    string
		Greeting  string
		Variables map[string]string
	}{override.Prompt, override.FirstMessage, override.DynamicVariables})
	require.NoError(t, err)
	assert.NotContains(t, string(clear), "caller.jwt.token")
	assert.NotContains(t, string(clear), "user-1")

	plain, err := enc.DecryptString(override.EncryptedContext)
	require.NoError(t, err)

	var decoded usercontext.UserContext
	require.NoError(t, json.Unmarshal(plain, &decoded))
	assert.Equal(t, "Bearer caller.jwt.token", decoded.BearerAuth)
	assert.Equal(t, "user-1", decoded.UserID)
}
