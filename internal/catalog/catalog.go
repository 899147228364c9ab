// Package catalog lists the text-generation providers the studio can call,
// the models each one offers, and where each provider's credential comes from.
package catalog

import (
	"sort"

	"github.com/reviewstudio/studio/pkg/models"
)

// ProviderInfo describes one provider.
type ProviderInfo struct {
	Kind           models.ProviderKind `json:"kind"`
	DisplayName    string              `json:"display_name"`
	CredentialEnv  string              `json:"credential_env"`
	DefaultBaseURL string              `json:"default_base_url,omitempty"`
	Models         []string            `json:"models"`
}

// Catalog is a read-only provider/model table.
type Catalog struct {
	providers map[models.ProviderKind]ProviderInfo
}

// New returns the built-in catalog.
func New() *Catalog {
	c := &Catalog{providers: make(map[models.ProviderKind]ProviderInfo)}
	for _, p := range builtin {
		c.providers[p.Kind] = p
	}
	return c
}

var builtin = []ProviderInfo{
	{
		Kind:           models.ProviderOpenAI,
		DisplayName:    "OpenAI",
		CredentialEnv:  "OPENAI_API_KEY",
		DefaultBaseURL: "https://api.openai.com/v1",
		Models:         []string{"gpt-4o-mini", "gpt-4.1-mini"},
	},
	{
		Kind:          models.ProviderGemini,
		DisplayName:   "Google Gemini",
		CredentialEnv: "GEMINI_API_KEY",
		Models:        []string{"gemini-2.5-flash", "gemini-3-flash-preview", "gemini-2.5-flash-lite", "gemini-3-pro-preview"},
	},
	{
		Kind:           models.ProviderAnthropic,
		DisplayName:    "Anthropic",
		CredentialEnv:  "ANTHROPIC_API_KEY",
		DefaultBaseURL: "https://api.anthropic.com",
		Models:         []string{"claude-3-5-sonnet-latest", "claude-3-5-haiku-latest"},
	},
	{
		Kind:           models.ProviderXAI,
		DisplayName:    "xAI Grok",
		CredentialEnv:  "XAI_API_KEY",
		DefaultBaseURL: "https://api.x.ai/v1",
		Models:         []string{"grok-4-fast-reasoning", "grok-4-1-fast-non-reasoning"},
	},
}

// Lookup returns the provider entry.
func (c *Catalog) Lookup(kind models.ProviderKind) (ProviderInfo, bool) {
	p, ok := c.providers[kind]
	if !ok {
		return ProviderInfo{}, false
	}
	p.Models = append([]string(nil), p.Models...)
	return p, true
}

// Providers returns every provider in display order.
func (c *Catalog) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(c.providers))
	for _, k := range models.ProviderKinds {
		if p, ok := c.Lookup(k); ok {
			out = append(out, p)
		}
	}
	return out
}

// Models returns the known models for a provider.
func (c *Catalog) Models(kind models.ProviderKind) []string {
	p, _ := c.Lookup(kind)
	return p.Models
}

// DefaultModel is the first listed model, or "" for an unknown provider.
func (c *Catalog) DefaultModel(kind models.ProviderKind) string {
	if ms := c.Models(kind); len(ms) > 0 {
		return ms[0]
	}
	return ""
}

// Supports reports whether model is listed for the provider. Unlisted models
// may still work; callers use this to warn rather than reject.
func (c *Catalog) Supports(kind models.ProviderKind, model string) bool {
	for _, m := range c.Models(kind) {
		if m == model {
			return true
		}
	}
	return false
}

// CredentialEnv returns the environment variable holding a provider's key.
func (c *Catalog) CredentialEnv(kind models.ProviderKind) string {
	return c.providers[kind].CredentialEnv
}

// Statuses reports each provider's credential source. managed lists providers
// with a process-wide key; session lists those with a reviewer-supplied key.
func (c *Catalog) Statuses(managed map[models.ProviderKind]bool, session map[models.ProviderKind]string) []models.CredentialStatus {
	kinds := make([]models.ProviderKind, 0, len(c.providers))
	for k := range c.providers {
		kinds = append(kinds, k)
	}
	sort.SliceStable(kinds, func(i, j int) bool { return order(kinds[i]) < order(kinds[j]) })

	out := make([]models.CredentialStatus, 0, len(kinds))
	for _, k := range kinds {
		st := models.CredentialStatus{Provider: k, EnvVar: c.CredentialEnv(k), Source: models.CredentialMissing}
		switch {
		case managed[k]:
			st.Source = models.CredentialManaged
		case session[k] != "":
			st.Source = models.CredentialSession
		}
		out = append(out, st)
	}
	return out
}

func order(k models.ProviderKind) int {
	for i, p := range models.ProviderKinds {
		if p == k {
			return i
		}
	}
	return len(models.ProviderKinds)
}
