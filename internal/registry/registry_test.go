package registry_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/reviewstudio/studio/internal/registry"
	"github.com/reviewstudio/studio/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAndStandardize_BareList(t *testing.T) {
	cfg, err := registry.LoadAndStandardize(`
- id: a
  name: Agent A
  system_prompt: be brief
`)
	require.NoError(t, err)

	want := &models.AgentsConfig{
		Version: "1.0",
		Agents: []models.AgentDefinition{{
			ID:           "a",
			Name:         "Agent A",
			Description:  "",
			Provider:     models.ProviderOpenAI,
			Model:        "gpt-4o-mini",
			Temperature:  0.2,
			MaxTokens:    4000,
			SystemPrompt: "be brief",
			UserPrompt:   "Analyze the provided content.",
		}},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("LoadAndStandardize() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadAndStandardize_MappingDefaults(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantVersion string
		wantAgents  int
	}{
		{"empty document", "", "1.0", 0},
		{"null document", "~", "1.0", 0},
		{"missing agents", "version: '2.0'", "2.0", 0},
		{"null agents", "version: '2.0'\nagents: null", "2.0", 0},
		{"missing version", "agents: []", "1.0", 0},
		{"unquoted version keeps text", "version: 1.0\nagents: []", "1.0", 0},
		{"non-mapping entries dropped", "agents:\n  - just a string\n  - 42\n  - id: x\n    name: X\n    system_prompt: s\n", "1.0", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := registry.LoadAndStandardize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, cfg.Version)
			assert.Len(t, cfg.Agents, tt.wantAgents)
			assert.NotNil(t, cfg.Agents)
		})
	}
}

func TestLoadAndStandardize_ExplicitFieldsWin(t *testing.T) {
	cfg, err := registry.LoadAndStandardize(`
version: "1.0"
agents:
  - id: x
    name: X
    description: desc
    provider: Anthropic
    model: claude-3-5-haiku-latest
    temperature: 1
    max_tokens: 12000
    system_prompt: sys
    user_prompt: usr
`)
	require.NoError(t, err)
	a := cfg.Agents[0]
	assert.Equal(t, models.ProviderAnthropic, a.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", a.Model)
	assert.Equal(t, 1.0, a.Temperature)
	assert.Equal(t, 12000, a.MaxTokens)
	assert.Equal(t, "usr", a.UserPrompt)
	assert.Equal(t, "desc", a.Description)
}

func TestLoadAndStandardize_SchemaErrors(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantField string
		wantEntry int
	}{
		{"missing id", "- name: A\n  system_prompt: s", "id", 1},
		{"missing name", "- id: a\n  system_prompt: s", "name", 1},
		{"missing system prompt", "- id: a\n  name: A\n- id: b\n  name: B", "system_prompt", 1},
		{"unknown provider", "- id: a\n  name: A\n  system_prompt: s\n  provider: acme", "provider", 1},
		{"temperature too high", "- id: a\n  name: A\n  system_prompt: s\n  temperature: 1.5", "temperature", 1},
		{"non-positive max tokens", "- id: a\n  name: A\n  system_prompt: s\n  max_tokens: 0", "max_tokens", 1},
		{"duplicate id", "- id: a\n  name: A\n  system_prompt: s\n- id: a\n  name: B\n  system_prompt: s", "id", 2},
		{"temperature not a number", "- {id: a, name: A, system_prompt: s, temperature: .nan}", "temperature", 1},
		{"temperature infinite", "- {id: a, name: A, system_prompt: s, temperature: .inf}", "temperature", 1},
		{"fractional max tokens", "- id: a\n  name: A\n  system_prompt: s\n  max_tokens: 1.5", "max_tokens", 1},
		{"nearly whole max tokens", "- id: a\n  name: A\n  system_prompt: s\n  max_tokens: 4000.9", "max_tokens", 1},
		{"max tokens not a number", "- id: a\n  name: A\n  system_prompt: s\n  max_tokens: lots", "max_tokens", 1},
		{"wrong type", "- id: a\n  name: A\n  system_prompt: s\n  temperature: warm", "*", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.LoadAndStandardize(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrConfigValidation))

			var verr *registry.ValidationError
			require.True(t, errors.As(err, &verr))
			require.NotEmpty(t, verr.Problems)
			assert.Equal(t, tt.wantField, verr.Problems[0].Field)
			assert.Equal(t, tt.wantEntry, verr.Problems[0].Entry)
		})
	}
}

func TestLoadAndStandardize_WholeFloatMaxTokens(t *testing.T) {
	cfg, err := registry.LoadAndStandardize("- {id: a, name: A, system_prompt: s, max_tokens: 4000.0}\n- {id: b, name: B, system_prompt: s, max_tokens: ~}")
	require.NoError(t, err)
	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, 4000, cfg.Agents[0].MaxTokens)
	assert.Equal(t, registry.Defaults.MaxTokens, cfg.Agents[1].MaxTokens)
}

func TestLoadAndStandardize_MalformedYAML(t *testing.T) {
	for _, raw := range []string{"agents: [", "just a scalar", "agents: {id: a}"} {
		_, err := registry.LoadAndStandardize(raw)
		assert.ErrorIs(t, err, models.ErrConfigValidation, "raw %q", raw)
	}
}

func TestDump_RoundTrip(t *testing.T) {
	cfg := &models.AgentsConfig{
		Version: "1.0",
		Agents: []models.AgentDefinition{
			{
				ID: "first", Name: "First", Description: "multi\nline description",
				Provider: models.ProviderGemini, Model: "gemini-2.5-flash", Temperature: 0.35, MaxTokens: 900,
				SystemPrompt: "System: be careful.\n- bullet\n", UserPrompt: "Check: {this}",
			},
			{
				ID: "second", Name: "Second", Provider: models.ProviderXAI, Model: "grok-4-fast-reasoning",
				Temperature: 0, MaxTokens: 1, SystemPrompt: "", UserPrompt: "'quoted' \"both\"",
			},
		},
	}

	raw, err := registry.Dump(cfg)
	require.NoError(t, err)
	back, err := registry.LoadAndStandardize(raw)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s\n%s", diff, raw)
	}
}

func TestDump_Idempotent(t *testing.T) {
	first, err := registry.LoadAndStandardize(registry.DefaultAgentsYAML())
	require.NoError(t, err)
	d1, err := registry.Dump(first)
	require.NoError(t, err)

	second, err := registry.LoadAndStandardize(d1)
	require.NoError(t, err)
	d2, err := registry.Dump(second)
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
}

func TestDump_FieldOrder(t *testing.T) {
	raw, err := registry.Dump(&models.AgentsConfig{Agents: []models.AgentDefinition{{ID: "a", Name: "A"}}})
	require.NoError(t, err)

	order := []string{"version:", "agents:", "id:", "name:", "description:", "provider:", "model:",
		"temperature:", "max_tokens:", "system_prompt:", "user_prompt:"}
	last := -1
	for _, key := range order {
		i := strings.Index(raw, key)
		require.GreaterOrEqual(t, i, 0, "missing %s in\n%s", key, raw)
		assert.Greater(t, i, last, "%s out of order in\n%s", key, raw)
		last = i
	}
}

func TestRegistry_FailedLoadKeepsPrevious(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Load("- id: a\n  name: A\n  system_prompt: s"))

	err := r.Load("- id: b\n  name: B")
	require.Error(t, err)

	cfg := r.Config()
	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, "a", cfg.Agents[0].ID)

	_, ok := r.Agent("b")
	assert.False(t, ok)
}

func TestRegistry_ConfigIsACopy(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Load("- id: a\n  name: A\n  system_prompt: s"))

	cfg := r.Config()
	cfg.Agents[0].Model = "changed"

	a, ok := r.Agent("a")
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", a.Model)
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()

	r, err := registry.NewFromFile(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, r.Config().Agents, "built-in agents expected")

	path := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- id: only\n  name: Only\n  system_prompt: s\n"), 0644))
	r, err = registry.NewFromFile(path)
	require.NoError(t, err)
	require.Len(t, r.Config().Agents, 1)

	out := filepath.Join(dir, "saved.yaml")
	require.NoError(t, r.Save(out))
	again, err := registry.NewFromFile(out)
	require.NoError(t, err)
	assert.Equal(t, r.Config(), again.Config())

	require.NoError(t, os.WriteFile(path, []byte("- name: broken"), 0644))
	_, err = registry.NewFromFile(path)
	assert.ErrorIs(t, err, models.ErrConfigValidation)
}
