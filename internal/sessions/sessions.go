// Package sessions holds per-reviewer state: the loaded document text, the
// agent configuration, run history, mana gauge and final report.
//
// A Session is an explicit object handed to every component that needs it.
// Sessions share nothing with each other.
package sessions

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reviewstudio/studio/internal/store"
	"github.com/reviewstudio/studio/pkg/models"
)

// InputSource selects where a single step reads its input from.
type InputSource = models.InputSource

const (
	SourceLastOutput = models.SourceLastOutput
	SourceOCRText    = models.SourceOCRText
	SourceRawText    = models.SourceRawText
)

// ParseInputSource maps a request value to an InputSource. Blank means SourceLastOutput.
func ParseInputSource(s string) (InputSource, bool) {
	switch InputSource(strings.TrimSpace(s)) {
	case "", SourceLastOutput:
		return SourceLastOutput, true
	case SourceOCRText:
		return SourceOCRText, true
	case SourceRawText:
		return SourceRawText, true
	}
	return "", false
}

// Defaults is what a new or reset session starts from.
type Defaults struct {
	Agents   *models.AgentsConfig
	Skill    string
	Mana     int
	LogLines int
}

// Session is one reviewer's workspace.
//
// Callers hold the session lock (Lock/Unlock) for the whole of an action;
// the methods below assume it is held.
type Session struct {
	mu sync.Mutex

	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Query   string `json:"query"`
	RawText string `json:"raw_text"`
	OCRText string `json:"ocr_text"`

	Document     []byte `json:"-"`
	DocumentName string `json:"document_name,omitempty"`
	Trimmed      []byte `json:"-"`

	Skill    string                       `json:"skill"`
	Agents   *models.AgentsConfig         `json:"agents"`
	Statuses map[string]models.StepStatus `json:"statuses"`
	// Overrides remembers the last override applied per agent id.
	Overrides map[string]models.AgentOverride `json:"overrides"`
	Runs      []models.PipelineRun            `json:"runs"`
	Gauge     *Gauge                          `json:"-"`

	Credentials map[models.ProviderKind]string `json:"-"`

	Report       string `json:"report"`
	Note         string `json:"note"`
	NoteRendered string `json:"note_rendered"`

	Log *LogBuffer `json:"-"`

	defaults Defaults
}

// New creates a session from defaults.
func New(id string, d Defaults) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Log:       NewLogBuffer(d.LogLines),
		defaults:  d,
	}
	s.reset()
	return s
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Touch marks the session as active.
func (s *Session) Touch() { s.UpdatedAt = time.Now().UTC() }

// Reset returns every piece of session state to the defaults.
// The log buffer is cleared but keeps its subscribers.
func (s *Session) Reset() {
	s.reset()
	s.Log.Clear()
	s.Touch()
}

func (s *Session) reset() {
	s.Query = ""
	s.RawText, s.OCRText = "", ""
	s.Document, s.DocumentName, s.Trimmed = nil, "", nil
	s.Skill = s.defaults.Skill
	s.Runs = nil
	s.Gauge = NewGauge(s.defaults.Mana)
	s.Overrides = make(map[string]models.AgentOverride)
	s.Credentials = make(map[models.ProviderKind]string)
	s.Report, s.Note, s.NoteRendered = "", "", ""
	s.SetAgents(s.defaults.Agents)
}

// SetAgents replaces the agent configuration. Every agent starts idle.
func (s *Session) SetAgents(cfg *models.AgentsConfig) {
	if cfg == nil {
		cfg = &models.AgentsConfig{Version: "1.0"}
	}
	s.Agents = cfg.Clone()
	s.Statuses = make(map[string]models.StepStatus, len(s.Agents.Agents))
	for _, a := range s.Agents.Agents {
		s.Statuses[a.ID] = models.StepIdle
	}
}

// Agent returns a pointer into the session's configuration, or nil.
func (s *Session) Agent(id string) *models.AgentDefinition {
	if i := s.Agents.Index(id); i >= 0 {
		return &s.Agents.Agents[i]
	}
	return nil
}

// Status returns an agent's step status. Unknown agents are idle.
func (s *Session) Status(agentID string) models.StepStatus {
	if st, ok := s.Statuses[agentID]; ok {
		return st
	}
	return models.StepIdle
}

func (s *Session) SetStatus(agentID string, st models.StepStatus) {
	s.Statuses[agentID] = st
}

// ApplyOverride writes o into the agent definition and remembers it.
// The change persists for later runs in this session.
func (s *Session) ApplyOverride(agentID string, o models.AgentOverride) error {
	a := s.Agent(agentID)
	if a == nil {
		return &store.ErrNotFound{Entity: "agent", Key: agentID}
	}
	if err := o.Validate(); err != nil {
		return err
	}
	o.Apply(a)
	s.Overrides[agentID] = o
	return nil
}

// AppendRun records a successful invocation and returns the stored copy.
func (s *Session) AppendRun(run models.PipelineRun) *models.PipelineRun {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.EditedOutput == "" {
		run.EditedOutput = run.Output
	}
	s.Runs = append(s.Runs, run)
	return &s.Runs[len(s.Runs)-1]
}

// LatestRun returns the most recent run for an agent.
func (s *Session) LatestRun(agentID string) (*models.PipelineRun, bool) {
	for i := len(s.Runs) - 1; i >= 0; i-- {
		if s.Runs[i].AgentID == agentID {
			return &s.Runs[i], true
		}
	}
	return nil, false
}

// LastRun returns the most recent run of any agent.
func (s *Session) LastRun() (*models.PipelineRun, bool) {
	if len(s.Runs) == 0 {
		return nil, false
	}
	return &s.Runs[len(s.Runs)-1], true
}

// EditRun replaces the edited output of a run.
func (s *Session) EditRun(runID, edited string) (*models.PipelineRun, error) {
	for i := range s.Runs {
		if s.Runs[i].ID == runID {
			s.Runs[i].EditedOutput = edited
			s.Touch()
			return &s.Runs[i], nil
		}
	}
	return nil, &store.ErrNotFound{Entity: "run", Key: runID}
}

// OutputOf is the chaining value of an agent: its latest run's edited output
// when non-blank, else that run's raw output, else "".
func (s *Session) OutputOf(agentID string) string {
	run, ok := s.LatestRun(agentID)
	if !ok {
		return ""
	}
	return run.EffectiveOutput()
}

// ChainInput returns the input of the step at position (0-based) in a full
// pipeline run.
func (s *Session) ChainInput(position int, globalInput string) string {
	if position <= 0 {
		return globalInput
	}
	if position > len(s.Agents.Agents) {
		return ""
	}
	return s.OutputOf(s.Agents.Agents[position-1].ID)
}

// ResolveInput picks a single step's input. The last edited output is used
// only when non-blank; otherwise it falls back to the OCR text.
func (s *Session) ResolveInput(src InputSource) string {
	switch src {
	case SourceRawText:
		return s.RawText
	case SourceLastOutput:
		if run, ok := s.LastRun(); ok && strings.TrimSpace(run.EditedOutput) != "" {
			return run.EditedOutput
		}
	}
	return s.OCRText
}

// AppendLastOutputToReport adds the latest run's edited output to the report.
// It reports false when there is nothing to append.
func (s *Session) AppendLastOutputToReport() bool {
	run, ok := s.LastRun()
	if !ok {
		return false
	}
	s.Report += "\n\n" + run.EditedOutput
	s.Touch()
	return true
}

// SetCredential stores or clears a reviewer-supplied key.
func (s *Session) SetCredential(kind models.ProviderKind, key string) {
	key = strings.TrimSpace(key)
	if key == "" {
		delete(s.Credentials, kind)
		return
	}
	s.Credentials[kind] = key
}

// CredentialsCopy returns a snapshot of the session keys.
func (s *Session) CredentialsCopy() map[models.ProviderKind]string {
	out := make(map[models.ProviderKind]string, len(s.Credentials))
	for k, v := range s.Credentials {
		out[k] = v
	}
	return out
}

// SetDocument loads a new PDF and drops any previous trim.
func (s *Session) SetDocument(name string, pdf []byte) {
	s.Document, s.DocumentName, s.Trimmed = pdf, name, nil
	s.Touch()
}

// WorkingDocument is the trimmed PDF when present, else the uploaded one.
func (s *Session) WorkingDocument() []byte {
	if len(s.Trimmed) > 0 {
		return s.Trimmed
	}
	return s.Document
}

// Summary is the JSON view of a session returned by the API.
type Summary struct {
	ID           string                          `json:"id"`
	CreatedAt    time.Time                       `json:"created_at"`
	UpdatedAt    time.Time                       `json:"updated_at"`
	Query        string                          `json:"query"`
	DocumentName string                          `json:"document_name,omitempty"`
	HasDocument  bool                            `json:"has_document"`
	HasTrimmed   bool                            `json:"has_trimmed"`
	RawChars     int                             `json:"raw_chars"`
	OCRChars     int                             `json:"ocr_chars"`
	Mana         int                             `json:"mana"`
	ManaCapacity int                             `json:"mana_capacity"`
	Agents       []models.AgentDefinition        `json:"agents"`
	Statuses     map[string]models.StepStatus    `json:"statuses"`
	Overrides    map[string]models.AgentOverride `json:"overrides"`
	Runs         int                             `json:"runs"`
	Report       string                          `json:"report"`
}

// Summary snapshots the session.
func (s *Session) Summary() Summary {
	statuses := make(map[string]models.StepStatus, len(s.Statuses))
	for k, v := range s.Statuses {
		statuses[k] = v
	}
	overrides := make(map[string]models.AgentOverride, len(s.Overrides))
	for k, v := range s.Overrides {
		overrides[k] = v
	}
	return Summary{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Query:        s.Query,
		DocumentName: s.DocumentName,
		HasDocument:  len(s.Document) > 0,
		HasTrimmed:   len(s.Trimmed) > 0,
		RawChars:     len(s.RawText),
		OCRChars:     len(s.OCRText),
		Mana:         s.Gauge.Level(),
		ManaCapacity: s.Gauge.Capacity(),
		Agents:       s.Agents.Clone().Agents,
		Statuses:     statuses,
		Overrides:    overrides,
		Runs:         len(s.Runs),
		Report:       s.Report,
	}
}

// ── Store ────────────────────────────────────────────────────

// MemoryStore is a thread-safe in-memory session store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	defaults func() Defaults
}

// NewMemoryStore creates a store. defaults is consulted for every new session.
func NewMemoryStore(defaults func() Defaults) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		defaults: defaults,
	}
}

// Create starts a new session with a fresh ID.
func (m *MemoryStore) Create(_ context.Context) *Session {
	s := New(uuid.New().String(), m.defaults())
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns a session by ID.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, &store.ErrNotFound{Entity: "session", Key: id}
	}
	return s, nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return &store.ErrNotFound{Entity: "session", Key: id}
	}
	delete(m.sessions, id)
	return nil
}

// List returns session summaries, most recently active first.
func (m *MemoryStore) List(_ context.Context) []Summary {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(all))
	for _, s := range all {
		s.Lock()
		out = append(out, s.Summary())
		s.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle removes sessions inactive since before cutoff and returns their IDs.
// Sessions in the middle of an action are skipped.
func (m *MemoryStore) EvictIdle(cutoff time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted []string
	for id, s := range m.sessions {
		if !s.mu.TryLock() {
			continue
		}
		idle := s.UpdatedAt.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}
