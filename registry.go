package chatrelay

import "strings"

// modelFamilies maps well-known model name prefixes to provider ids. Checked
// after explicit registry entries, before the default fallback.
var modelFamilies = []struct {
	prefix   string
	provider string
}{
	{"gpt-", "openai"},
	{"chatgpt-", "openai"},
	{"o1", "openai"},
	{"o3", "openai"},
	{"o4", "openai"},
	{"claude-", "anthropic"},
	{"gemini-", "gemini"},
	{"grok-", "grok"},
}

// ModelRegistry maps model identifiers to provider ids. It is read-only
// during a request; concurrent lookups are safe once construction is done.
type ModelRegistry struct {
	entries         map[string]string
	defaultProvider string
}

// NewModelRegistry creates a registry with the given fallback provider for
// unrecognized models.
func NewModelRegistry(defaultProvider string) *ModelRegistry {
	return &ModelRegistry{
		entries:         make(map[string]string),
		defaultProvider: defaultProvider,
	}
}

// Register adds an explicit model → provider entry. Explicit entries take
// precedence over model family prefixes.
func (r *ModelRegistry) Register(model, provider string) {
	r.entries[model] = provider
}

// Lookup resolves a model identifier to a provider id. Unknown models fall
// back to the configured default provider.
func (r *ModelRegistry) Lookup(model string) string {
	if p, ok := r.entries[model]; ok {
		return p
	}
	for _, f := range modelFamilies {
		if strings.HasPrefix(model, f.prefix) {
			return f.provider
		}
	}
	return r.defaultProvider
}
