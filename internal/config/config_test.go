package config_test

import (
	"testing"
	"time"

	"github.com/reviewstudio/studio/internal/config"
	"github.com/reviewstudio/studio/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"STUDIO_PORT", "STUDIO_MANA_INITIAL", "STUDIO_MANA_COST", "STUDIO_STEP_TIMEOUT", "STUDIO_STEP_MAX_TOKENS", "STUDIO_API_KEYS", "STUDIO_JOURNAL_PATH"} {
		t.Setenv(k, "")
	}
	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 100, cfg.Pipeline.InitialMana)
	assert.Equal(t, 20, cfg.Pipeline.StepCost)
	assert.Equal(t, 12000, cfg.Pipeline.StepMaxTokens)
	assert.Equal(t, 180*time.Second, cfg.Pipeline.StepTimeout)
	assert.Empty(t, cfg.Auth.APIKeys)
	assert.Empty(t, cfg.Journal.Path)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STUDIO_PORT", "9090")
	t.Setenv("STUDIO_MANA_INITIAL", "60")
	t.Setenv("STUDIO_STEP_TIMEOUT", "45s")
	t.Setenv("STUDIO_API_KEYS", " k1, ,k2 ")
	t.Setenv("STUDIO_KEYWORDS", "stapler,recall")
	t.Setenv("XAI_API_KEY", "xai-secret")
	t.Setenv("STUDIO_SESSION_TTL", "not-a-duration")

	cfg := config.Load()
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 60, cfg.Pipeline.InitialMana)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.StepTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Auth.APIKeys)
	assert.Equal(t, []string{"stapler", "recall"}, cfg.Pipeline.Keywords)
	assert.Equal(t, "xai-secret", cfg.Providers.Credentials[models.ProviderXAI])
	assert.Equal(t, 12*time.Hour, cfg.Sessions.IdleTTL, "bad durations keep the default")
}

func TestLoad_InitialManaClamped(t *testing.T) {
	for raw, want := range map[string]int{"500": 100, "-5": 0, "100": 100, "0": 0, "lots": 100} {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("STUDIO_MANA_INITIAL", raw)
			assert.Equal(t, want, config.Load().Pipeline.InitialMana)
		})
	}
}
