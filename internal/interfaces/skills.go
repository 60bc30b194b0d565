package interfaces

// SkillSet supplies capability descriptions merged into the system prompt.
type SkillSet interface {
	// AlwaysOn returns the full bodies of skills injected into every turn.
	AlwaysOn() []string

	// Summaries returns one-line descriptions of discoverable skills.
	Summaries() []string
}
