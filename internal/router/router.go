// Package router sends text-generation requests to the configured providers.
//
// Each provider kind has one ProviderDriver. The router resolves the
// credential for a request (process-wide key first, then the reviewer's
// session key), applies the per-call deadline, and tracks provider latency.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/reviewstudio/studio/internal/catalog"
	"github.com/reviewstudio/studio/pkg/models"
	"github.com/rs/zerolog/log"
)

// ProviderDriver calls one provider kind.
type ProviderDriver interface {
	Kind() models.ProviderKind
	Generate(ctx context.Context, apiKey string, req *models.GenerateRequest) (*models.GenerateResponse, error)
}

// DocumentReader is implemented by drivers that accept a PDF attachment.
type DocumentReader interface {
	ReadsDocuments() bool
}

func readsDocuments(d ProviderDriver) bool {
	dr, ok := d.(DocumentReader)
	return ok && dr.ReadsDocuments()
}

// Options configures a ModelRouter.
type Options struct {
	// Credentials are process-wide keys, normally read from the environment.
	Credentials map[models.ProviderKind]string
	// BaseURLs override the provider endpoints (tests, proxies).
	BaseURLs map[models.ProviderKind]string
	// Timeout bounds each provider call. Zero means no router deadline.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ModelRouter dispatches requests to provider drivers.
type ModelRouter struct {
	catalog     *catalog.Catalog
	credentials map[models.ProviderKind]string
	timeout     time.Duration

	driversMu sync.RWMutex
	drivers   map[models.ProviderKind]ProviderDriver

	// Latency tracking: provider → rolling avg ms
	latencyMu sync.RWMutex
	latencies map[models.ProviderKind]int64
}

// NewModelRouter creates a router with the built-in drivers registered.
func NewModelRouter(cat *catalog.Catalog, opts Options) *ModelRouter {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := func(kind models.ProviderKind) string {
		if u := strings.TrimRight(opts.BaseURLs[kind], "/"); u != "" {
			return u
		}
		p, _ := cat.Lookup(kind)
		return p.DefaultBaseURL
	}

	creds := make(map[models.ProviderKind]string, len(opts.Credentials))
	for k, v := range opts.Credentials {
		if v = strings.TrimSpace(v); v != "" {
			creds[k] = v
		}
	}

	mr := &ModelRouter{
		catalog:     cat,
		credentials: creds,
		timeout:     opts.Timeout,
		drivers:     make(map[models.ProviderKind]ProviderDriver),
		latencies:   make(map[models.ProviderKind]int64),
	}
	mr.RegisterDriver(newOpenAIDriver(models.ProviderOpenAI, baseURL(models.ProviderOpenAI), client))
	mr.RegisterDriver(newOpenAIDriver(models.ProviderXAI, baseURL(models.ProviderXAI), client))
	mr.RegisterDriver(newAnthropicDriver(baseURL(models.ProviderAnthropic), client))
	mr.RegisterDriver(newGeminiDriver(baseURL(models.ProviderGemini), client))
	return mr
}

// RegisterDriver adds or replaces the driver for its kind.
func (mr *ModelRouter) RegisterDriver(d ProviderDriver) {
	mr.driversMu.Lock()
	defer mr.driversMu.Unlock()
	mr.drivers[d.Kind()] = d
}

// GetDriver returns the driver for kind, or nil.
func (mr *ModelRouter) GetDriver(kind models.ProviderKind) ProviderDriver {
	mr.driversMu.RLock()
	defer mr.driversMu.RUnlock()
	return mr.drivers[kind]
}

// ListDrivers returns the registered kinds, sorted.
func (mr *ModelRouter) ListDrivers() []models.ProviderKind {
	mr.driversMu.RLock()
	defer mr.driversMu.RUnlock()
	out := make([]models.ProviderKind, 0, len(mr.drivers))
	for k := range mr.drivers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasManagedCredential reports whether a process-wide key is configured.
func (mr *ModelRouter) HasManagedCredential(kind models.ProviderKind) bool {
	return mr.credentials[kind] != ""
}

// ManagedCredentials reports which providers have a process-wide key.
func (mr *ModelRouter) ManagedCredentials() map[models.ProviderKind]bool {
	out := make(map[models.ProviderKind]bool, len(mr.credentials))
	for k := range mr.credentials {
		out[k] = true
	}
	return out
}

// ResolveCredential picks the key for kind: process-wide first, then session.
func (mr *ModelRouter) ResolveCredential(kind models.ProviderKind, session map[models.ProviderKind]string) (string, models.CredentialSource) {
	if k := mr.credentials[kind]; k != "" {
		return k, models.CredentialManaged
	}
	if k := strings.TrimSpace(session[kind]); k != "" {
		return k, models.CredentialSession
	}
	return "", models.CredentialMissing
}

// Generate sends req to its provider.
func (mr *ModelRouter) Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	driver := mr.GetDriver(req.Provider)
	if driver == nil {
		return nil, fmt.Errorf("%w: no driver for provider %q", models.ErrConfigValidation, req.Provider)
	}
	if req.Attachment != nil && !readsDocuments(driver) {
		return nil, fmt.Errorf("%w: %s cannot read document attachments", models.ErrConfigValidation, req.Provider)
	}

	key, source := mr.ResolveCredential(req.Provider, req.SessionCredentials)
	if key == "" {
		return nil, fmt.Errorf("%w: %s is not set", models.ErrCredentialMissing, mr.catalog.CredentialEnv(req.Provider))
	}

	if mr.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mr.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := driver.Generate(ctx, key, req)
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, models.ErrTimeout) {
			err = fmt.Errorf("%s: %w after %dms", req.Provider, models.ErrTimeout, latencyMs)
		}
		log.Warn().
			Str("provider", string(req.Provider)).
			Str("model", req.Model).
			Str("credential", string(source)).
			Int64("latency_ms", latencyMs).
			Err(err).
			Msg("Provider call failed")
		return nil, err
	}

	resp.LatencyMs = latencyMs
	if resp.Provider == "" {
		resp.Provider = req.Provider
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	mr.trackLatency(req.Provider, latencyMs)

	log.Debug().
		Str("provider", string(req.Provider)).
		Str("model", req.Model).
		Int64("latency_ms", latencyMs).
		Int64("tokens", resp.Usage.TotalTokens).
		Msg("Provider call succeeded")
	return resp, nil
}

func (mr *ModelRouter) trackLatency(kind models.ProviderKind, latencyMs int64) {
	mr.latencyMu.Lock()
	defer mr.latencyMu.Unlock()
	prev := mr.latencies[kind]
	if prev == 0 {
		mr.latencies[kind] = latencyMs
		return
	}
	// Exponential moving average
	mr.latencies[kind] = (prev*7 + latencyMs*3) / 10
}

// Latencies returns the rolling average latency per provider.
func (mr *ModelRouter) Latencies() map[models.ProviderKind]int64 {
	mr.latencyMu.RLock()
	defer mr.latencyMu.RUnlock()
	out := make(map[models.ProviderKind]int64, len(mr.latencies))
	for k, v := range mr.latencies {
		out[k] = v
	}
	return out
}

// ── Error classification ────────────────────────────────────

var policyMarkers = []string{
	"content_policy", "content policy", "content_filter", "safety", "responsible ai", "prohibited",
}

// httpError turns a non-200 provider reply into a classified error.
// maxErrorBody caps how much of a provider's error body is kept.
const maxErrorBody = 512

func httpError(kind models.ProviderKind, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "…"
	}
	if (status == http.StatusBadRequest || status == http.StatusForbidden) && isPolicyText(msg) {
		return fmt.Errorf("%s: %w: %s", kind, models.ErrPolicyRefusal, msg)
	}
	return fmt.Errorf("%s: %w: status %d: %s", kind, models.ErrProviderCall, status, msg)
}

func isPolicyText(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range policyMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func transportError(kind models.ProviderKind, err error) error {
	return fmt.Errorf("%s: %w: %v", kind, models.ErrProviderCall, err)
}
