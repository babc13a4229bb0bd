// Package models holds the static catalog of selectable completion models.
// The catalog is immutable for the process lifetime.
package models

// Model describes one selectable completion model.
type Model struct {
	ID             string
	Name           string
	Provider       string
	SupportsVision bool
}

// DefaultModel is used when a user has no stored preference.
const DefaultModel = "moonshotai/kimi-k2"

// VisionModel is the fixed vision-capable model used by the attachment
// ingest layer for captioning.
const VisionModel = "google/gemini-2.5-flash"

// Available lists every model a user may select.
var Available = []Model{
	{
		ID:       "moonshotai/kimi-k2",
		Name:     "Kimi K2",
		Provider: "Moonshot AI",
	},
	{
		ID:             "google/gemini-2.5-flash",
		Name:           "Gemini 2.5 Flash",
		Provider:       "Google",
		SupportsVision: true,
	},
	{
		ID:       "z-ai/glm-4.7",
		Name:     "GLM-4.7",
		Provider: "Z-AI",
	},
}

// ByID looks up a model by identifier.
func ByID(id string) (Model, bool) {
	for _, m := range Available {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// DisplayName returns the model's human name, or the raw identifier for
// unknown models.
func DisplayName(id string) string {
	if m, ok := ByID(id); ok {
		return m.Name
	}
	return id
}

// SupportsVision reports whether the model accepts inline images.
// Unknown models are assumed not to.
func SupportsVision(id string) bool {
	m, ok := ByID(id)
	return ok && m.SupportsVision
}

// LegacyAliases maps retired model identifiers to their replacements. The
// store applies these to persisted preferences on open.
var LegacyAliases = map[string]string{
	"moonshot-v1-8k":          DefaultModel,
	"moonshot/moonshot-v1-8k": DefaultModel,
}

// Normalize maps retired model identifiers onto their replacements so stale
// stored preferences keep working.
func Normalize(id string) string {
	if id == "" {
		return DefaultModel
	}
	if current, ok := LegacyAliases[id]; ok {
		return current
	}
	return id
}
