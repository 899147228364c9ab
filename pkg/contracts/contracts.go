// Package contracts defines the service interfaces of the review studio.
//
// The HTTP handlers, the MCP server and the CLI depend on these interfaces
// rather than on the concrete types, so a component can be swapped (a
// recorded generator in tests, a different journal backend) with a single
// change in the wiring code (pkg/server).
package contracts

import (
	"context"

	"github.com/reviewstudio/studio/internal/extract"
	"github.com/reviewstudio/studio/internal/sessions"
	"github.com/reviewstudio/studio/internal/store"
	"github.com/reviewstudio/studio/pkg/models"
)

// RecordStore is a type alias for the internal record store interface.
type RecordStore = store.RecordStore

// TraceStore is a type alias for the internal run journal interface.
type TraceStore = store.TraceStore

// ErrNotFound is a type alias for the internal ErrNotFound error.
type ErrNotFound = store.ErrNotFound

// ── Text Generation ─────────────────────────────────────────

// TextGenerator sends one prompt pair to a provider and returns its reply.
// Implementation: internal/router.ModelRouter
type TextGenerator interface {
	Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error)
}

// ModelRouterService is a TextGenerator that also reports on its providers.
type ModelRouterService interface {
	TextGenerator

	// ListDrivers returns the provider kinds with a registered driver.
	ListDrivers() []models.ProviderKind

	// ManagedCredentials reports which providers have a process-wide key.
	ManagedCredentials() map[models.ProviderKind]bool

	// Latencies returns the moving-average call latency per provider.
	Latencies() map[models.ProviderKind]int64
}

// ── Search ──────────────────────────────────────────────────

// SearchService runs fuzzy queries over the record collections.
// Implementation: internal/search.Engine
type SearchService interface {
	SearchAll(query string) models.SearchResults
	Search(c models.Collection, query string) []models.SearchHit
}

// DeviceResolver builds the linked device view for a query.
// Implementation: internal/resolver.Resolver
type DeviceResolver interface {
	DeviceView(query string) models.DeviceView
}

// ── Pipeline ────────────────────────────────────────────────

// PipelineService executes agents against a session.
// Implementation: internal/workflow.Engine
type PipelineService interface {
	// RunSingleStep runs one agent at any time. The override, if any, applies
	// to this call only.
	RunSingleStep(ctx context.Context, sess *sessions.Session, req models.StepRequest) (*models.PipelineRun, error)

	// RunFullPipeline runs every agent in order, chaining outputs. Overrides
	// are written into the session's agents and persist.
	RunFullPipeline(ctx context.Context, sess *sessions.Session, globalInput string, overrides map[string]models.AgentOverride) (*models.PipelineResult, error)

	// RunMagic runs a note-keeper preset on the session note.
	RunMagic(ctx context.Context, sess *sessions.Session, req models.MagicRequest) (string, error)
}

// ── Documents ───────────────────────────────────────────────

// DocumentExtractor reads and trims PDF submissions.
// Implementation: internal/extract.Extractor
type DocumentExtractor interface {
	PageCount(pdf []byte) (int, error)
	ExtractText(ctx context.Context, pdf []byte, ranges []extract.PageRange) (string, error)
	Trim(pdf []byte, ranges []extract.PageRange) ([]byte, error)
	RenderPreview(pdf []byte, height int) string
}

// DocumentTranscriber reads pages with a document-capable model.
// Implementation: internal/extract.VisionOCR
type DocumentTranscriber interface {
	Transcribe(ctx context.Context, pdf []byte, ranges []extract.PageRange, opts extract.VisionOptions) (string, error)
}
