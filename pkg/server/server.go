// Package server composes the review studio from its parts.
//
// This package lives in pkg/ (not internal/) so that other binaries can
// embed the studio and add their own middleware around srv.Handler.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	defer srv.Close(ctx)
//	go srv.Janitor.Start(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reviewstudio/studio/internal/api"
	"github.com/reviewstudio/studio/internal/api/handlers"
	"github.com/reviewstudio/studio/internal/catalog"
	"github.com/reviewstudio/studio/internal/config"
	"github.com/reviewstudio/studio/internal/extract"
	"github.com/reviewstudio/studio/internal/highlight"
	"github.com/reviewstudio/studio/internal/mcpgw"
	"github.com/reviewstudio/studio/internal/registry"
	"github.com/reviewstudio/studio/internal/resolver"
	"github.com/reviewstudio/studio/internal/retention"
	modelrouter "github.com/reviewstudio/studio/internal/router"
	"github.com/reviewstudio/studio/internal/search"
	"github.com/reviewstudio/studio/internal/sessions"
	"github.com/reviewstudio/studio/internal/store"
	"github.com/reviewstudio/studio/internal/telemetry"
	"github.com/reviewstudio/studio/internal/workflow"
)

// Core is the read-only part of the studio: records, search, linkage and
// the agent configuration. The CLI and the MCP server need nothing else.
type Core struct {
	Records  *store.MemoryRecordStore
	Search   *search.Engine
	Resolver *resolver.Resolver
	Registry *registry.Registry
	Catalog  *catalog.Catalog
}

// NewCore loads the embedded records and the agent configuration.
func NewCore(cfg *config.Config) (*Core, error) {
	records, err := store.NewRecordStore()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	reg, err := registry.NewFromFile(cfg.Agents.File)
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	engine := search.NewEngine(records)
	return &Core{
		Records:  records,
		Search:   engine,
		Resolver: resolver.NewResolver(engine),
		Registry: reg,
		Catalog:  catalog.New(),
	}, nil
}

// MCPGateway builds the MCP tool server over the core.
func (c *Core) MCPGateway(version string) *mcpgw.Gateway {
	return mcpgw.NewGateway(version, c.Search, c.Resolver, c.Registry.Config)
}

// Server holds the initialized review studio.
type Server struct {
	*Core

	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	Config   *config.Config
	Port     int
	Sessions *sessions.MemoryStore
	Journal  store.TraceStore
	Janitor  *retention.Janitor

	// ShutdownFunc flushes telemetry. Close calls it.
	ShutdownFunc func(context.Context) error
}

// New initializes every component from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the studio with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	core, err := NewCore(cfg)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}
	log.Info().
		Int("agents", len(core.Registry.Config().Agents)).
		Msg("✅ Records, search and agent registry initialized")

	skill, err := loadSkill(cfg.Agents.SkillFile)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}

	journal, err := openJournal(cfg.Journal)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}

	mr := modelrouter.NewModelRouter(core.Catalog, modelrouter.Options{
		Credentials: cfg.Providers.Credentials,
		BaseURLs:    cfg.Providers.BaseURLs,
		Timeout:     cfg.Pipeline.StepTimeout,
	})
	log.Info().Int("providers", len(mr.ListDrivers())).Msg("✅ Model Router initialized")

	engine := workflow.NewEngine(mr, journal, workflow.Options{
		StepCost: cfg.Pipeline.StepCost,
		Keywords: cfg.Pipeline.Keywords,
	})
	log.Info().Int("step_cost", engine.StepCost()).Msg("✅ Pipeline engine initialized")

	sessStore := sessions.NewMemoryStore(func() sessions.Defaults {
		return sessions.Defaults{
			Agents:   core.Registry.Config(),
			Skill:    skill,
			Mana:     cfg.Pipeline.InitialMana,
			LogLines: cfg.Sessions.LogLines,
		}
	})

	janitor := retention.NewJanitor(sessStore, journal, retention.Options{
		IdleTTL:      cfg.Sessions.IdleTTL,
		Interval:     cfg.Sessions.SweepInterval,
		PurgeJournal: cfg.Journal.Path == "",
	})

	extractor := extract.New()
	h := handlers.New(handlers.Deps{
		Sessions:      sessStore,
		Searcher:      core.Search,
		Resolver:      core.Resolver,
		Registry:      core.Registry,
		Catalog:       core.Catalog,
		Router:        mr,
		Pipeline:      engine,
		Extractor:     extractor,
		Vision:        extract.NewVisionOCR(mr, extractor),
		Journal:       journal,
		Highlighter:   highlight.New(cfg.Pipeline.Keywords),
		StepMaxTokens: cfg.Pipeline.StepMaxTokens,
		AgentsFile:    cfg.Agents.File,
	})
	mcp := core.MCPGateway(cfg.Version)
	log.Info().Msg("✅ MCP Gateway initialized")

	return &Server{
		Core:         core,
		Handler:      api.NewRouter(cfg, h, mcp.HTTPHandler()),
		Config:       cfg,
		Port:         cfg.Port,
		Sessions:     sessStore,
		Journal:      journal,
		Janitor:      janitor,
		ShutdownFunc: shutdown,
	}, nil
}

// Close releases the journal and flushes telemetry.
func (s *Server) Close(ctx context.Context) error {
	return errors.Join(s.Journal.Close(), s.ShutdownFunc(ctx))
}

func openJournal(cfg config.JournalConfig) (store.TraceStore, error) {
	if cfg.Path == "" {
		return store.NewMemoryTraceStore(cfg.TTL), nil
	}
	j, err := store.NewSQLiteTraceStore(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	log.Info().Str("path", cfg.Path).Msg("✅ SQLite journal opened")
	return j, nil
}

// loadSkill reads the skill preamble. A missing file means no preamble.
func loadSkill(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("file", path).Msg("No skill file, sessions start without a preamble")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read skill %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
