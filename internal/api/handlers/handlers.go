// Package handlers implements the HTTP handlers for the review studio.
//
// Stateless endpoints (records search, device view, provider catalog, the
// process-wide agent configuration) sit beside per-session endpoints, which
// read their session from the request context (see middleware.SessionLoader).
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reviewstudio/studio/internal/api/middleware"
	"github.com/reviewstudio/studio/internal/catalog"
	"github.com/reviewstudio/studio/internal/highlight"
	"github.com/reviewstudio/studio/internal/registry"
	"github.com/reviewstudio/studio/internal/sessions"
	"github.com/reviewstudio/studio/internal/store"
	"github.com/reviewstudio/studio/internal/workflow"
	"github.com/reviewstudio/studio/pkg/contracts"
	"github.com/reviewstudio/studio/pkg/models"
)

const (
	defaultMaxBody     = 1 << 20
	defaultMaxDocument = 64 << 20
)

// Deps are the services the handlers call into.
type Deps struct {
	Sessions    *sessions.MemoryStore
	Searcher    contracts.SearchService
	Resolver    contracts.DeviceResolver
	Registry    *registry.Registry
	Catalog     *catalog.Catalog
	Router      contracts.ModelRouterService
	Pipeline    contracts.PipelineService
	Extractor   contracts.DocumentExtractor
	Vision      contracts.DocumentTranscriber
	Journal     contracts.TraceStore
	Highlighter *highlight.Highlighter

	// StepMaxTokens is the max_tokens of a single step that sets none.
	StepMaxTokens int
	// AgentsFile receives the process-wide configuration on PUT ?save=true.
	AgentsFile string
	// MaxDocumentBytes bounds PDF uploads.
	MaxDocumentBytes int64
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Deps
}

// New creates a new Handlers instance.
func New(d Deps) *Handlers {
	if d.Highlighter == nil {
		d.Highlighter = highlight.New(nil)
	}
	if d.StepMaxTokens <= 0 {
		d.StepMaxTokens = 12000
	}
	if d.MaxDocumentBytes <= 0 {
		d.MaxDocumentBytes = defaultMaxDocument
	}
	return &Handlers{Deps: d}
}

// ══════════════════════════════════════════════════════════════
// ── Records ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Search handles GET /api/v1/search?q=...&dataset=...
// Without a dataset every collection is searched.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if ds := r.URL.Query().Get("dataset"); ds != "" {
		c, ok := models.ParseCollection(ds)
		if !ok {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown dataset %q", ds))
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"query":   q,
			"dataset": c,
			"hits":    nonNilHits(h.Searcher.Search(c, q)),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   q,
		"results": h.Searcher.SearchAll(q),
	})
}

// DeviceView handles GET /api/v1/device?q=...
func (h *Handlers) DeviceView(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Resolver.DeviceView(r.URL.Query().Get("q")))
}

// ══════════════════════════════════════════════════════════════
// ── Providers ────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type providerView struct {
	catalog.ProviderInfo
	DefaultModel string `json:"default_model"`
	Available    bool   `json:"available"`
	Managed      bool   `json:"managed"`
	AvgLatencyMs int64  `json:"avg_latency_ms"`
}

// ListProviders handles GET /api/v1/providers.
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	drivers := make(map[models.ProviderKind]bool)
	for _, k := range h.Router.ListDrivers() {
		drivers[k] = true
	}
	managed := h.Router.ManagedCredentials()
	latencies := h.Router.Latencies()

	out := make([]providerView, 0, len(models.ProviderKinds))
	for _, p := range h.Catalog.Providers() {
		out = append(out, providerView{
			ProviderInfo: p,
			DefaultModel: h.Catalog.DefaultModel(p.Kind),
			Available:    drivers[p.Kind],
			Managed:      managed[p.Kind],
			AvgLatencyMs: latencies[p.Kind],
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// ══════════════════════════════════════════════════════════════
// ── Agent configuration (process default) ────────────────────
// ══════════════════════════════════════════════════════════════

// GetAgents handles GET /api/v1/agents.
func (h *Handlers) GetAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Registry.Config())
}

// GetAgentsYAML handles GET /api/v1/agents/yaml.
func (h *Handlers) GetAgentsYAML(w http.ResponseWriter, r *http.Request) {
	out, err := h.Registry.Dump()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondYAML(w, out)
}

// PutAgents handles PUT /api/v1/agents with a YAML body. The new
// configuration becomes the default for new and reset sessions. A rejected
// document leaves the current configuration in effect.
func (h *Handlers) PutAgents(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r, defaultMaxBody)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Registry.Load(raw); err != nil {
		respondValidation(w, err)
		return
	}

	if r.URL.Query().Get("save") == "true" && h.AgentsFile != "" {
		if err := h.Registry.Save(h.AgentsFile); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Info().Str("file", h.AgentsFile).Msg("💾 Agent configuration saved")
	}

	cfg := h.Registry.Config()
	h.warnUnlisted("", cfg)
	log.Info().Int("agents", len(cfg.Agents)).Msg("🤖 Default agent configuration replaced")
	respondJSON(w, http.StatusOK, cfg)
}

// warnUnlisted logs agents whose model the catalog does not list. Such
// models are passed through to the provider unchanged.
func (h *Handlers) warnUnlisted(sessionID string, cfg *models.AgentsConfig) {
	for _, a := range cfg.Agents {
		if !h.Catalog.Supports(a.Provider, a.Model) {
			log.Warn().Str("session", sessionID).Str("agent", a.ID).
				Str("provider", string(a.Provider)).Str("model", a.Model).
				Msg("Agent model not in catalog")
		}
	}
}

// ══════════════════════════════════════════════════════════════
// ── Presets & rendering ──────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ListMagics handles GET /api/v1/magics.
func (h *Handlers) ListMagics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, workflow.Magics)
}

type highlightRequest struct {
	Text   string                `json:"text"`
	Colors []models.KeywordColor `json:"colors"`
}

// Highlight handles POST /api/v1/highlight and returns the text as HTML with
// ontology keywords and the given phrases marked.
func (h *Handlers) Highlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"html": h.Highlighter.Render(req.Text, req.Colors)})
}

// ══════════════════════════════════════════════════════════════
// ── Helpers ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error    string               `json:"error"`
	Kind     models.ErrorKind     `json:"kind,omitempty"`
	Notice   string               `json:"notice,omitempty"`
	Problems []registry.FieldError `json:"problems,omitempty"`
	Mana     *int                 `json:"mana,omitempty"`
}

// kindStatus maps error kinds to HTTP status codes.
var kindStatus = map[models.ErrorKind]int{
	models.KindConfigValidation:  http.StatusUnprocessableEntity,
	models.KindCredentialMissing: http.StatusPreconditionFailed,
	models.KindProviderCall:      http.StatusBadGateway,
	models.KindPolicyRefusal:     http.StatusBadGateway,
	models.KindResourceExhausted: http.StatusPaymentRequired,
	models.KindExtraction:        http.StatusUnprocessableEntity,
	models.KindTimeout:           http.StatusGatewayTimeout,
}

func statusFor(err error) int {
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		return http.StatusNotFound
	}
	if code, ok := kindStatus[models.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// respondErr writes err with the status of its kind.
func respondErr(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), newErrorBody(err))
}

func newErrorBody(err error) errorBody {
	body := errorBody{Error: err.Error()}
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		body.Kind = models.KindOf(err)
	}
	var se *models.StepError
	if errors.As(err, &se) {
		body.Notice = se.Notice
	}
	var ve *registry.ValidationError
	if errors.As(err, &ve) {
		body.Problems = ve.Problems
	}
	return body
}

func respondValidation(w http.ResponseWriter, err error) {
	respondJSON(w, http.StatusUnprocessableEntity, newErrorBody(err))
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondYAML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, doc)
}

// decodeJSON reads a JSON body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, defaultMaxBody)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) (string, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(data), nil
}

// sessionFrom returns the request's session, answering 500 when the route is
// missing the loader.
func sessionFrom(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		respondError(w, http.StatusInternalServerError, "session not loaded")
	}
	return sess, ok
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key))); err == nil && v > 0 {
		return v
	}
	return def
}

func nonNilHits(hits []models.SearchHit) []models.SearchHit {
	if hits == nil {
		return []models.SearchHit{}
	}
	return hits
}
