package voice

import (
	"encoding/json"

	"voicebroker/internal/domain/agent"
	"voicebroker/internal/domain/usercontext"
	"voicebroker/pkg/crypto"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/templates"
)

const templateGroup = "personalization"

// Override is the per-conversation configuration handed to the provider through the client.
// EncryptedContext is only set by BuildEncrypted.
type Override struct {
	Prompt           string            `json:"prompt"`
	FirstMessage     string            `json:"first_message"`
	Language         string            `json:"language"`
	DynamicVariables map[string]string `json:"dynamic_variables"`
	EncryptedContext string            `json:"encrypted_context,omitempty"`
}

type promptData struct {
	UserName         string
	FirstName        string
	AgentName        string
	AgentDescription string
}

// Personalizer renders overrides from embedded templates. It does no I/O.
type Personalizer struct {
	templates *templates.Registry
	encryptor *crypto.Encryptor
}

// NewPersonalizer creates a personalizer. A nil encryptor disables the encrypted context.
func NewPersonalizer(registry *templates.Registry, encryptor *crypto.Encryptor) *Personalizer {
	return &Personalizer{templates: registry, encryptor: encryptor}
}

// BuildPersonalization builds the greeting, prompt and language bundle for userName.
// Only the display name and persona fields appear in clear text.
func (p *Personalizer) BuildPersonalization(persona agent.Persona, userName string) (*Override, error) {
	name := templates.SanitizeName(userName)
	data := promptData{
		UserName:         name,
		FirstName:        templates.FirstName(name),
		AgentName:        persona.Name,
		AgentDescription: persona.Description,
	}

	prompt, err := p.templates.RenderLocalized(templateGroup, persona.Language, "prompt", data)
	if err != nil {
		return nil, errors.Wrap(err, "render prompt")
	}

	greeting, err := p.templates.RenderLocalized(templateGroup, persona.Language, "greeting", data)
	if err != nil {
		return nil, errors.Wrap(err, "render greeting")
	}

	language := persona.Language
	if language == "" {
		language = templates.DefaultLanguage
	}

	return &Override{
		Prompt:       prompt,
		FirstMessage: greeting,
		Language:     language,
		DynamicVariables: map[string]string{
			"user_name":  data.UserName,
			"first_name": data.FirstName,
			"agent_name": data.AgentName,
		},
	}, nil
}

// BuildEncrypted builds the clear override plus the full user context sealed with AES-256-GCM.
// Caller token and bearer header only ever leave the server inside EncryptedContext.
func (p *Personalizer) BuildEncrypted(persona agent.Persona, uc *usercontext.UserContext) (*Override, error) {
	override, err := p.BuildPersonalization(persona, uc.Name)
	if err != nil {
		return nil, err
	}
	override.DynamicVariables["conversation_id"] = uc.ConversationID

	if p.encryptor == nil {
		return override, nil
	}

	payload, err := json.Marshal(uc)
	if err != nil {
		return nil, errors.Wrap(err, "marshal user context")
	}

	sealed, err := p.encryptor.EncryptToString(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt user context")
	}
	override.EncryptedContext = sealed

	return override, nil
}
