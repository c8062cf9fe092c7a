package model

// SOPDocument is a Standard Operating Procedure held by the SOP store.
// It is read-only at decision time.
type SOPDocument struct {
	ID               string            `json:"id" yaml:"id"`
	Title            string            `json:"title" yaml:"title"`
	Content          string            `json:"content" yaml:"content"`
	Metadata         map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	AssociatedReflex *AgentReflex      `json:"associated_reflex,omitempty" yaml:"associated_reflex,omitempty"`
}
