package agent

// Persona is a named configuration of the upstream voice AI selectable by callers.
// Personas are immutable after startup.
type Persona struct {
	ID              string `json:"id"`
	UpstreamAgentID string `json:"-"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Language        string `json:"language"`
	Specialization  string `json:"specialization"`
	Active          bool   `json:"active"`

	// Slot is the N in the AGENT_<N>_ID override variable
	Slot int `json:"-"`
}

// Specializations
const (
	SpecializationGeneral  = "general"
	SpecializationLanguage = "language_learning"
	SpecializationWellness = "wellness"
	SpecializationSupport  = "support"
)

// Well-known persona identifiers
const (
	IdentifierAssistant     = "assistant"
	IdentifierFrenchTutor   = "french-tutor"
	IdentifierWellnessCoach = "wellness-coach"
	IdentifierSupport       = "support"
)

// DefaultPersonas returns the built-in persona list in configuration order
func DefaultPersonas() []Persona {
	return []Persona{
		{
			ID:              IdentifierAssistant,
			UpstreamAgentID: "agent_01jz8m6x4qf9v2k7w3r5t8y1na",
			Name:            "Nova",
			Description:     "A friendly general-purpose voice assistant",
			Language:        "en",
			Specialization:  SpecializationGeneral,
			Active:          true,
			Slot:            1,
		},
		{
			ID:              IdentifierFrenchTutor,
			UpstreamAgentID: "agent_01jz8m7b2cd4e5f6g7h8j9k0lm",
			Name:            "Camille",
			Description:     "Un tuteur de conversation en français patient et encourageant",
			Language:        "fr",
			Specialization:  SpecializationLanguage,
			Active:          true,
			Slot:            2,
		},
		{
			ID:              IdentifierWellnessCoach,
			UpstreamAgentID: "agent_01jz8m8n3pq5r6s7t8u9v0w1xy",
			Name:            "Sol",
			Description:     "Una coach de bienestar que guía ejercicios de respiración",
			Language:        "es",
			Specialization:  SpecializationWellness,
			Active:          true,
			Slot:            3,
		},
		{
			ID:              IdentifierSupport,
			UpstreamAgentID: "agent_01jz8m9z4ab6c7d8e9f0g1h2jk",
			Name:            "Atlas",
			Description:     "A product support specialist",
			Language:        "en",
			Specialization:  SpecializationSupport,
			Active:          false,
			Slot:            4,
		},
	}
}
