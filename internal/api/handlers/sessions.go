package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/reviewstudio/studio/internal/registry"
	"github.com/reviewstudio/studio/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Session lifecycle ────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// CreateSession handles POST /api/v1/sessions.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.Sessions.Create(r.Context())
	sess.Lock()
	summary := sess.Summary()
	sess.Unlock()

	log.Info().Str("session", sess.ID).Int("agents", len(summary.Agents)).Msg("🆕 Session created")
	respondJSON(w, http.StatusCreated, summary)
}

// ListSessions handles GET /api/v1/sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Sessions.List(r.Context()))
}

// GetSession handles GET /api/v1/sessions/{sessionID}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	respondJSON(w, http.StatusOK, sess.Summary())
}

// DeleteSession handles DELETE /api/v1/sessions/{sessionID}. The session's
// journal entries go with it.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	if err := h.Sessions.Delete(r.Context(), sess.ID); err != nil {
		respondErr(w, err)
		return
	}
	if h.Journal != nil {
		if err := h.Journal.DeleteSessionTraces(r.Context(), sess.ID); err != nil {
			log.Warn().Err(err).Str("session", sess.ID).Msg("Failed to purge session journal")
		}
	}
	log.Info().Str("session", sess.ID).Msg("🗑️ Session deleted")
	w.WriteHeader(http.StatusNoContent)
}

// ResetSession handles POST /api/v1/sessions/{sessionID}/reset. The agent
// configuration returns to the current process default.
func (h *Handlers) ResetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()

	sess.Reset()
	sess.SetAgents(h.Registry.Config())

	log.Info().Str("session", sess.ID).Msg("♻️ Session reset")
	respondJSON(w, http.StatusOK, sess.Summary())
}

// ══════════════════════════════════════════════════════════════
// ── Query & text ─────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type sessionSearchRequest struct {
	Query string `json:"query"`
}

type sessionSearchResponse struct {
	Query   string               `json:"query"`
	Results models.SearchResults `json:"results"`
	Device  models.DeviceView    `json:"device"`
}

// SessionSearch handles POST /api/v1/sessions/{sessionID}/search. It stores
// the query and returns both the ranked hits and the linked device view.
func (h *Handlers) SessionSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req sessionSearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	results := h.Searcher.SearchAll(req.Query)
	device := h.Resolver.DeviceView(req.Query)

	sess.Lock()
	sess.Query = req.Query
	sess.Touch()
	sess.Unlock()

	respondJSON(w, http.StatusOK, sessionSearchResponse{Query: req.Query, Results: results, Device: device})
}

type textRequest struct {
	RawText *string `json:"raw_text"`
	OCRText *string `json:"ocr_text"`
}

// GetText handles GET /api/v1/sessions/{sessionID}/text.
func (h *Handlers) GetText(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	respondJSON(w, http.StatusOK, map[string]string{"raw_text": sess.RawText, "ocr_text": sess.OCRText})
}

// PutText handles PUT /api/v1/sessions/{sessionID}/text. Omitted fields are
// left unchanged.
func (h *Handlers) PutText(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req textRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	if req.RawText != nil {
		sess.RawText = *req.RawText
	}
	if req.OCRText != nil {
		sess.OCRText = *req.OCRText
	}
	sess.Touch()
	respondJSON(w, http.StatusOK, map[string]string{"raw_text": sess.RawText, "ocr_text": sess.OCRText})
}

// ══════════════════════════════════════════════════════════════
// ── Session agents & skill ───────────────────────────────────
// ══════════════════════════════════════════════════════════════

type agentsView struct {
	*models.AgentsConfig
	Statuses map[string]models.StepStatus `json:"statuses"`
}

// GetSessionAgents handles GET /api/v1/sessions/{sessionID}/agents.
func (h *Handlers) GetSessionAgents(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	summary := sess.Summary()
	respondJSON(w, http.StatusOK, agentsView{AgentsConfig: sess.Agents.Clone(), Statuses: summary.Statuses})
}

// GetSessionAgentsYAML handles GET /api/v1/sessions/{sessionID}/agents/yaml.
func (h *Handlers) GetSessionAgentsYAML(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	cfg := sess.Agents.Clone()
	sess.Unlock()

	out, err := registry.Dump(cfg)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondYAML(w, out)
}

// PutSessionAgents handles PUT /api/v1/sessions/{sessionID}/agents with a
// YAML body. Every agent returns to idle. A rejected document leaves the
// session's configuration untouched.
func (h *Handlers) PutSessionAgents(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	raw, err := readBody(w, r, defaultMaxBody)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := registry.LoadAndStandardize(raw)
	if err != nil {
		respondValidation(w, err)
		return
	}

	h.warnUnlisted(sess.ID, cfg)

	sess.Lock()
	defer sess.Unlock()
	sess.SetAgents(cfg)
	sess.Overrides = make(map[string]models.AgentOverride)
	sess.Touch()

	log.Info().Str("session", sess.ID).Int("agents", len(cfg.Agents)).Msg("🤖 Session agents replaced")
	summary := sess.Summary()
	respondJSON(w, http.StatusOK, agentsView{AgentsConfig: sess.Agents.Clone(), Statuses: summary.Statuses})
}

type skillBody struct {
	Skill string `json:"skill"`
}

// GetSkill handles GET /api/v1/sessions/{sessionID}/skill.
func (h *Handlers) GetSkill(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	respondJSON(w, http.StatusOK, skillBody{Skill: sess.Skill})
}

// PutSkill handles PUT /api/v1/sessions/{sessionID}/skill.
func (h *Handlers) PutSkill(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req skillBody
	if !decodeJSON(w, r, &req) {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	sess.Skill = req.Skill
	sess.Touch()
	respondJSON(w, http.StatusOK, skillBody{Skill: sess.Skill})
}

// ══════════════════════════════════════════════════════════════
// ── Credentials ──────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// GetCredentials handles GET /api/v1/sessions/{sessionID}/credentials.
// Only the source of each credential is reported, never its value.
func (h *Handlers) GetCredentials(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	creds := sess.CredentialsCopy()
	sess.Unlock()
	respondJSON(w, http.StatusOK, h.Catalog.Statuses(h.Router.ManagedCredentials(), creds))
}

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

// PutCredential handles PUT /api/v1/sessions/{sessionID}/credentials/{provider}.
// A blank key removes the session credential.
func (h *Handlers) PutCredential(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	kind := models.ProviderKind(strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider"))))
	if !kind.Valid() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown provider %q", kind))
		return
	}
	var req credentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess.Lock()
	sess.SetCredential(kind, req.APIKey)
	sess.Touch()
	creds := sess.CredentialsCopy()
	sess.Unlock()

	log.Info().Str("session", sess.ID).Str("provider", string(kind)).Bool("set", creds[kind] != "").Msg("🔑 Session credential updated")
	respondJSON(w, http.StatusOK, h.Catalog.Statuses(h.Router.ManagedCredentials(), creds))
}

// ══════════════════════════════════════════════════════════════
// ── Runs & report ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ListRuns handles GET /api/v1/sessions/{sessionID}/runs.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	runs := append([]models.PipelineRun{}, sess.Runs...)
	respondJSON(w, http.StatusOK, runs)
}

type editRunRequest struct {
	EditedOutput string `json:"edited_output"`
}

// EditRun handles PUT /api/v1/sessions/{sessionID}/runs/{runID}. The edited
// text feeds the next agent when non-blank.
func (h *Handlers) EditRun(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req editRunRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	run, err := sess.EditRun(chi.URLParam(r, "runID"), req.EditedOutput)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

type reportView struct {
	Report string `json:"report"`
	HTML   string `json:"html"`
}

type reportRequest struct {
	Report string `json:"report"`
}

// GetReport handles GET /api/v1/sessions/{sessionID}/report.
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	respondJSON(w, http.StatusOK, h.reportView(sess.Report))
}

// PutReport handles PUT /api/v1/sessions/{sessionID}/report.
func (h *Handlers) PutReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req reportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	sess.Report = req.Report
	sess.Touch()
	respondJSON(w, http.StatusOK, h.reportView(sess.Report))
}

// AppendReport handles POST /api/v1/sessions/{sessionID}/report/append.
func (h *Handlers) AppendReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	if !sess.AppendLastOutputToReport() {
		respondError(w, http.StatusConflict, "no agent output to append yet")
		return
	}
	sess.Touch()
	respondJSON(w, http.StatusOK, h.reportView(sess.Report))
}

func (h *Handlers) reportView(report string) reportView {
	return reportView{Report: report, HTML: h.Highlighter.Coral(report)}
}

// ══════════════════════════════════════════════════════════════
// ── Note keeper ──────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type noteBody struct {
	Note     string `json:"note"`
	Rendered string `json:"rendered,omitempty"`
}

// GetNote handles GET /api/v1/sessions/{sessionID}/note.
func (h *Handlers) GetNote(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	respondJSON(w, http.StatusOK, noteBody{Note: sess.Note, Rendered: sess.NoteRendered})
}

// PutNote handles PUT /api/v1/sessions/{sessionID}/note.
func (h *Handlers) PutNote(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req noteBody
	if !decodeJSON(w, r, &req) {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	sess.Note = req.Note
	sess.Touch()
	respondJSON(w, http.StatusOK, noteBody{Note: sess.Note, Rendered: sess.NoteRendered})
}

// ══════════════════════════════════════════════════════════════
// ── Journal & logs ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ListJournal handles GET /api/v1/sessions/{sessionID}/journal?limit=N.
func (h *Handlers) ListJournal(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	if h.Journal == nil {
		respondJSON(w, http.StatusOK, []models.Trace{})
		return
	}
	traces, err := h.Journal.ListTraces(r.Context(), sess.ID, queryInt(r, "limit", 100))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if traces == nil {
		traces = []models.Trace{}
	}
	respondJSON(w, http.StatusOK, traces)
}

// GetLogs handles GET /api/v1/sessions/{sessionID}/logs?n=N (non-streaming).
func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	entries := sess.Log.Recent(queryInt(r, "n", 200))
	if entries == nil {
		entries = []models.LogEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// StreamLogs handles GET /api/v1/sessions/{sessionID}/logs/stream as
// Server-Sent Events: recent history first, then live entries.
func (h *Handlers) StreamLogs(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Send recent log history first
	for _, entry := range sess.Log.Recent(queryInt(r, "n", 200)) {
		data, _ := json.Marshal(entry)
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
	flusher.Flush()

	// Subscribe to live updates
	ch := sess.Log.Subscribe()
	defer sess.Log.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			data, _ := json.Marshal(entry)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
