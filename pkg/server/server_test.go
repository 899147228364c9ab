package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewstudio/studio/internal/config"
	"github.com/reviewstudio/studio/pkg/server"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Load()
	cfg.Agents.File = filepath.Join(dir, "agents.yaml")
	cfg.Agents.SkillFile = filepath.Join(dir, "SKILL.md")
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	cfg.Telemetry.Enabled = false
	cfg.Auth.APIKeys = nil
	return cfg
}

func TestNewWithConfig(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Agents.SkillFile, []byte("  # Reviewer skill\n"), 0o644))

	ctx := context.Background()
	srv, err := server.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close(ctx) })

	assert.Len(t, srv.Registry.Config().Agents, 4, "missing agents file falls back to the built-in set")

	sess := srv.Sessions.Create(ctx)
	assert.Equal(t, "# Reviewer skill", sess.Skill)
	assert.Equal(t, cfg.Pipeline.InitialMana, sess.Gauge.Level())

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewWithConfig_BadAgentsFile(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Agents.File, []byte("agents:\n  - id: broken\n"), 0o644))

	_, err := server.NewWithConfig(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewCore(t *testing.T) {
	cfg := testConfig(t)
	core, err := server.NewCore(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, core.Search.SearchAll("K240123"))
	assert.NotNil(t, core.MCPGateway("test").Server())
}
