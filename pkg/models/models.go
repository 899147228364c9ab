package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ── Collections & Search ─────────────────────────────────────

// Collection names one of the four regulatory record sets.
type Collection string

const (
	CollectionClearance        Collection = "510k"
	CollectionAdverseEvent     Collection = "adr"
	CollectionDeviceIdentifier Collection = "gudid"
	CollectionRecall           Collection = "recall"
)

// Collections lists every collection in presentation order.
var Collections = []Collection{
	CollectionClearance,
	CollectionAdverseEvent,
	CollectionDeviceIdentifier,
	CollectionRecall,
}

// ParseCollection resolves a collection name, accepting a few aliases.
func ParseCollection(s string) (Collection, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "510k", "clearance", "clearances":
		return CollectionClearance, true
	case "adr", "mdr", "adverse_event", "adverse_events":
		return CollectionAdverseEvent, true
	case "gudid", "udi", "device_identifier", "device_identifiers":
		return CollectionDeviceIdentifier, true
	case "recall", "recalls":
		return CollectionRecall, true
	}
	return "", false
}

// SearchHit is one scored match. Score is in [0,100].
type SearchHit struct {
	Collection Collection `json:"dataset"`
	Score      float64    `json:"score"`
	Record     Record     `json:"record"`
}

// SearchResults maps each collection to its ranked hits.
type SearchResults map[Collection][]SearchHit

// DeviceView is the linked, aggregated view of one device.
type DeviceView struct {
	TopClearance   *Record  `json:"top_510k"`
	Recalls        []Record `json:"recalls"`
	MDRCount       int      `json:"mdr_count"`
	MDRExamples    []Record `json:"mdr_examples"`
	GUDIDExamples  []Record `json:"gudid_examples"`
	TopRecallClass *string  `json:"top_recall_class"`
}

// ── Providers ────────────────────────────────────────────────

// ProviderKind identifies a text-generation provider.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderGemini    ProviderKind = "gemini"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderXAI       ProviderKind = "xai"
)

// ProviderKinds lists the supported providers in display order.
var ProviderKinds = []ProviderKind{ProviderOpenAI, ProviderGemini, ProviderAnthropic, ProviderXAI}

// Valid reports whether p is a supported provider.
func (p ProviderKind) Valid() bool {
	for _, k := range ProviderKinds {
		if p == k {
			return true
		}
	}
	return false
}

// CredentialSource describes where a provider credential comes from.
// The credential value itself is never exposed.
type CredentialSource string

const (
	CredentialManaged CredentialSource = "managed"
	CredentialSession CredentialSource = "session"
	CredentialMissing CredentialSource = "missing"
)

// CredentialStatus is the per-provider credential summary shown to reviewers.
type CredentialStatus struct {
	Provider ProviderKind     `json:"provider"`
	EnvVar   string           `json:"env_var"`
	Source   CredentialSource `json:"source"`
}

// ── Agents ───────────────────────────────────────────────────

// AgentDefinition is one configured text-generation step.
// Field order is the order used when the configuration is written back out.
type AgentDefinition struct {
	ID           string       `yaml:"id" json:"id"`
	Name         string       `yaml:"name" json:"name"`
	Description  string       `yaml:"description" json:"description"`
	Provider     ProviderKind `yaml:"provider" json:"provider"`
	Model        string       `yaml:"model" json:"model"`
	Temperature  float64      `yaml:"temperature" json:"temperature"`
	MaxTokens    int          `yaml:"max_tokens" json:"max_tokens"`
	SystemPrompt string       `yaml:"system_prompt" json:"system_prompt"`
	UserPrompt   string       `yaml:"user_prompt" json:"user_prompt"`
}

// AgentsConfig is the versioned, ordered agent list.
type AgentsConfig struct {
	Version string            `yaml:"version" json:"version"`
	Agents  []AgentDefinition `yaml:"agents" json:"agents"`
}

// Clone returns a deep copy so sessions can mutate their own agents.
func (c *AgentsConfig) Clone() *AgentsConfig {
	if c == nil {
		return nil
	}
	out := &AgentsConfig{Version: c.Version, Agents: make([]AgentDefinition, len(c.Agents))}
	copy(out.Agents, c.Agents)
	return out
}

// Index returns the position of the agent with the given id, or -1.
func (c *AgentsConfig) Index(id string) int {
	if c == nil {
		return -1
	}
	for i := range c.Agents {
		if c.Agents[i].ID == id {
			return i
		}
	}
	return -1
}

// AgentOverride carries per-step edits made before a run. Nil fields are left alone.
type AgentOverride struct {
	Provider     *ProviderKind `json:"provider,omitempty"`
	Model        *string       `json:"model,omitempty"`
	Temperature  *float64      `json:"temperature,omitempty"`
	MaxTokens    *int          `json:"max_tokens,omitempty"`
	SystemPrompt *string       `json:"system_prompt,omitempty"`
	UserPrompt   *string       `json:"user_prompt,omitempty"`
}

// Validate checks the override values against the agent field constraints.
func (o AgentOverride) Validate() error {
	if o.Provider != nil && !o.Provider.Valid() {
		return fmt.Errorf("%w: unknown provider %q", ErrConfigValidation, *o.Provider)
	}
	if o.Temperature != nil && !(*o.Temperature >= 0 && *o.Temperature <= 1) {
		return fmt.Errorf("%w: temperature %v outside [0,1]", ErrConfigValidation, *o.Temperature)
	}
	if o.MaxTokens != nil && *o.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrConfigValidation)
	}
	return nil
}

// Apply writes the non-nil override fields into a.
func (o AgentOverride) Apply(a *AgentDefinition) {
	if o.Provider != nil {
		a.Provider = *o.Provider
	}
	if o.Model != nil {
		a.Model = *o.Model
	}
	if o.Temperature != nil {
		a.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		a.MaxTokens = *o.MaxTokens
	}
	if o.SystemPrompt != nil {
		a.SystemPrompt = *o.SystemPrompt
	}
	if o.UserPrompt != nil {
		a.UserPrompt = *o.UserPrompt
	}
}

// ── Pipeline ─────────────────────────────────────────────────

// StepStatus is the lifecycle state of one agent in a session.
type StepStatus string

const (
	StepIdle    StepStatus = "idle"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "error"
)

// PipelineRun records one successful agent invocation.
// EditedOutput starts equal to Output and is the only mutable field.
type PipelineRun struct {
	ID           string       `json:"id"`
	AgentID      string       `json:"agent_id"`
	AgentName    string       `json:"name"`
	Provider     ProviderKind `json:"provider"`
	Model        string       `json:"model"`
	Input        string       `json:"input"`
	Output       string       `json:"output"`
	EditedOutput string       `json:"edited_output"`
	CreatedAt    time.Time    `json:"created_at"`
}

// EffectiveOutput returns the edited output when it has content, else the raw output.
func (r *PipelineRun) EffectiveOutput() string {
	if strings.TrimSpace(r.EditedOutput) != "" {
		return r.EditedOutput
	}
	return r.Output
}

// InputSource selects where a single step reads its input from.
type InputSource string

const (
	SourceLastOutput InputSource = "last_output"
	SourceOCRText    InputSource = "ocr_text"
	SourceRawText    InputSource = "raw_text"
)

// StepRequest asks for one agent invocation. A nil Input is resolved from
// Source. Override applies to this call only.
type StepRequest struct {
	AgentID  string         `json:"agent_id"`
	Input    *string        `json:"input,omitempty"`
	Source   InputSource    `json:"source,omitempty"`
	Override *AgentOverride `json:"override,omitempty"`
}

// MagicRequest asks for a note-keeper preset to run on the session note.
type MagicRequest struct {
	Magic     string       `json:"magic"`
	Provider  ProviderKind `json:"provider"`
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens,omitempty"`
	// Note replaces the session note when non-empty.
	Note string `json:"note,omitempty"`
	// Colors is used by the keyword highlighter preset only.
	Colors []KeywordColor `json:"colors,omitempty"`
}

// KeywordColor is a reviewer-chosen phrase and the CSS color to show it in.
type KeywordColor struct {
	Keyword string `json:"keyword"`
	Color   string `json:"color"`
}

// StepOutcome is the result of one step of a full pipeline run.
type StepOutcome struct {
	Position  int        `json:"position"`
	AgentID   string     `json:"agent_id"`
	AgentName string     `json:"agent_name"`
	Status    StepStatus `json:"status"`
	RunID     string     `json:"run_id,omitempty"`
	ErrorKind ErrorKind  `json:"error_kind,omitempty"`
	Error     string     `json:"error,omitempty"`
	Notice    string     `json:"notice,omitempty"`
}

// PipelineResult summarises a full pipeline run. Runs holds the successful
// invocations in step order; a halted pipeline keeps them.
type PipelineResult struct {
	Steps  []StepOutcome `json:"steps"`
	Runs   []PipelineRun `json:"runs"`
	Halted bool          `json:"halted"`
	Mana   int           `json:"mana"`
}

// LogLevel is the severity of a session log entry.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogError LogLevel = "error"
)

// LogEntry is one structured line of the session pipeline log.
type LogEntry struct {
	Timestamp  time.Time    `json:"ts"`
	Level      LogLevel     `json:"level"`
	Position   int          `json:"position,omitempty"`
	AgentID    string       `json:"agent_id,omitempty"`
	AgentName  string       `json:"agent_name,omitempty"`
	Provider   ProviderKind `json:"provider,omitempty"`
	Model      string       `json:"model,omitempty"`
	Kind       ErrorKind    `json:"kind,omitempty"`
	Message    string       `json:"message"`
	DurationMs int64        `json:"duration_ms,omitempty"`
	Mana       int          `json:"mana"`
}

// ── Trace (run journal) ──────────────────────────────────────

// Trace is the audit record of one step attempt, successful or not.
type Trace struct {
	ID           string       `json:"id"`
	SessionID    string       `json:"session_id"`
	AgentID      string       `json:"agent_id"`
	AgentName    string       `json:"agent_name"`
	Position     int          `json:"position"`
	Status       StepStatus   `json:"status"`
	Provider     ProviderKind `json:"provider"`
	Model        string       `json:"model"`
	DurationMs   int64        `json:"duration_ms"`
	InputChars   int          `json:"input_chars"`
	OutputChars  int          `json:"output_chars"`
	TotalTokens  int64        `json:"total_tokens"`
	ErrorKind    ErrorKind    `json:"error_kind,omitempty"`
	ErrorMessage string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ── Text Generation ──────────────────────────────────────────

// GenerateRequest is one call to a text-generation provider.
type GenerateRequest struct {
	Provider     ProviderKind `json:"provider"`
	Model        string       `json:"model"`
	SystemPrompt string       `json:"system_prompt"`
	UserPrompt   string       `json:"user_prompt"`
	MaxTokens    int          `json:"max_tokens"`
	Temperature  float64      `json:"temperature"`

	// SessionCredentials are reviewer-supplied keys, consulted after the
	// process-wide configured credential.
	SessionCredentials map[ProviderKind]string `json:"-"`

	// Attachment is a document read alongside the user prompt. Only
	// providers that accept file input take it.
	Attachment *Attachment `json:"-"`
}

// Attachment is a file handed to a document-capable model.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// GenerateResponse is the provider's reply.
type GenerateResponse struct {
	ID        string       `json:"id"`
	Provider  ProviderKind `json:"provider"`
	Model     string       `json:"model"`
	Content   string       `json:"content"`
	Usage     TokenUsage   `json:"usage"`
	LatencyMs int64        `json:"latency_ms"`
}

type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// ── Errors ───────────────────────────────────────────────────

// ErrorKind classifies failures surfaced at the step boundary.
type ErrorKind string

const (
	KindConfigValidation  ErrorKind = "config_validation"
	KindCredentialMissing ErrorKind = "credential_missing"
	KindProviderCall      ErrorKind = "provider_call"
	KindPolicyRefusal     ErrorKind = "policy_refusal"
	KindResourceExhausted ErrorKind = "resource_exhausted"
	KindExtraction        ErrorKind = "extraction"
	KindTimeout           ErrorKind = "timeout"
)

var (
	ErrConfigValidation  = errors.New("invalid agent configuration")
	ErrCredentialMissing = errors.New("credential missing")
	ErrProviderCall      = errors.New("provider call failed")
	ErrPolicyRefusal     = errors.New("provider refused the request under its content policy")
	ErrResourceExhausted = errors.New("insufficient mana")
	ErrExtraction        = errors.New("extraction failed")
	ErrTimeout           = errors.New("provider call timed out")
)

// KindOf maps an error to its kind. Unclassified errors count as provider call failures.
func KindOf(err error) ErrorKind {
	var se *StepError
	if errors.As(err, &se) && se.Kind != "" {
		return se.Kind
	}
	switch {
	case errors.Is(err, ErrConfigValidation):
		return KindConfigValidation
	case errors.Is(err, ErrCredentialMissing):
		return KindCredentialMissing
	case errors.Is(err, ErrPolicyRefusal):
		return KindPolicyRefusal
	case errors.Is(err, ErrResourceExhausted):
		return KindResourceExhausted
	case errors.Is(err, ErrExtraction):
		return KindExtraction
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	}
	return KindProviderCall
}

// StepError is a failure attributed to one pipeline step.
type StepError struct {
	Position  int
	AgentID   string
	AgentName string
	Kind      ErrorKind
	// Notice is a reviewer-facing message, set for policy refusals.
	Notice string
	Err    error
}

func (e *StepError) Error() string {
	if e.Position <= 0 {
		return fmt.Sprintf("%s failed: %v", e.AgentName, e.Err)
	}
	return fmt.Sprintf("agent %d (%s) failed: %v", e.Position, e.AgentName, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
