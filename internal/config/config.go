package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/reviewstudio/studio/pkg/models"
)

// Config holds all configuration for the review studio.
type Config struct {
	Port      int
	Version   string
	Agents    AgentsConfig
	Pipeline  PipelineConfig
	Sessions  SessionsConfig
	Journal   JournalConfig
	Providers ProvidersConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
}

type AgentsConfig struct {
	// File is the agents YAML loaded at startup. Missing file means the
	// built-in agent set.
	File string
	// SkillFile is the optional skill preamble prepended to every system prompt.
	SkillFile string
}

type PipelineConfig struct {
	InitialMana int
	StepCost    int
	StepTimeout time.Duration
	// StepMaxTokens is the max_tokens used by interactive single steps when
	// the request does not set one.
	StepMaxTokens int
	// Keywords replaces the highlight ontology when set (comma separated).
	Keywords []string
}

type SessionsConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	LogLines      int
}

type JournalConfig struct {
	// Path selects the SQLite journal. Empty keeps the journal in memory.
	Path string
	// TTL bounds how long in-memory traces are kept.
	TTL time.Duration
}

type ProvidersConfig struct {
	// Credentials are the process-wide provider keys. They are never returned
	// by any API.
	Credentials map[models.ProviderKind]string
	BaseURLs    map[models.ProviderKind]string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	// APIKeys enables API-key auth on the HTTP API when non-empty.
	APIKeys      []string
	APIKeyHeader string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("STUDIO_PORT", 8080),
		Version: envStr("STUDIO_VERSION", "0.1.0"),
		Agents: AgentsConfig{
			File:      envStr("STUDIO_AGENTS_FILE", "agents.yaml"),
			SkillFile: envStr("STUDIO_SKILL_FILE", "SKILL.md"),
		},
		Pipeline: PipelineConfig{
			InitialMana:   envIntRange("STUDIO_MANA_INITIAL", 100, 0, 100),
			StepCost:      envInt("STUDIO_MANA_COST", 20),
			StepTimeout:   envDuration("STUDIO_STEP_TIMEOUT", 180*time.Second),
			StepMaxTokens: envInt("STUDIO_STEP_MAX_TOKENS", 12000),
			Keywords:      envList("STUDIO_KEYWORDS"),
		},
		Sessions: SessionsConfig{
			IdleTTL:       envDuration("STUDIO_SESSION_TTL", 12*time.Hour),
			SweepInterval: envDuration("STUDIO_SESSION_SWEEP", 10*time.Minute),
			LogLines:      envInt("STUDIO_SESSION_LOG_LINES", 500),
		},
		Journal: JournalConfig{
			Path: envStr("STUDIO_JOURNAL_PATH", ""),
			TTL:  envDuration("STUDIO_JOURNAL_TTL", 24*time.Hour),
		},
		Providers: ProvidersConfig{
			Credentials: map[models.ProviderKind]string{
				models.ProviderOpenAI:    os.Getenv("OPENAI_API_KEY"),
				models.ProviderGemini:    os.Getenv("GEMINI_API_KEY"),
				models.ProviderAnthropic: os.Getenv("ANTHROPIC_API_KEY"),
				models.ProviderXAI:       os.Getenv("XAI_API_KEY"),
			},
			BaseURLs: map[models.ProviderKind]string{
				models.ProviderOpenAI:    os.Getenv("OPENAI_BASE_URL"),
				models.ProviderGemini:    os.Getenv("GEMINI_BASE_URL"),
				models.ProviderAnthropic: os.Getenv("ANTHROPIC_BASE_URL"),
				models.ProviderXAI:       os.Getenv("XAI_BASE_URL"),
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "review-studio"),
		},
		Auth: AuthConfig{
			APIKeys:      envList("STUDIO_API_KEYS"),
			APIKeyHeader: envStr("STUDIO_API_KEY_HEADER", "X-API-Key"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// envIntRange is envInt clamped to [lo, hi].
func envIntRange(key string, fallback, lo, hi int) int {
	return min(max(envInt(key, fallback), lo), hi)
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
