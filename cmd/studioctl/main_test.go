package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewstudio/studio/internal/registry"
)

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	return cmd, buf
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAgentsValidate(t *testing.T) {
	cmd, out := newTestCmd()
	path := writeFile(t, "agents.yaml", registry.DefaultAgentsYAML())
	require.NoError(t, runAgentsValidate(cmd, []string{path}))
	assert.Contains(t, out.String(), "4 agents")

	cmd, out = newTestCmd()
	bad := writeFile(t, "bad.yaml", "agents:\n  - id: a\n    name: A\n    system_prompt: s\n    provider: cohere\n")
	err := runAgentsValidate(cmd, []string{bad})
	require.Error(t, err)
	assert.Contains(t, out.String(), "provider")
}

func TestAgentsFmt(t *testing.T) {
	path := writeFile(t, "agents.yaml", "- id: a\n  name: A\n  system_prompt: s\n")

	cmd, out := newTestCmd()
	require.NoError(t, runAgentsFmt(cmd, []string{path}))
	assert.Contains(t, out.String(), "model: gpt-4o-mini")
	assert.Contains(t, out.String(), "max_tokens: 4000")

	agentsFmtWrite = true
	defer func() { agentsFmtWrite = false }()
	cmd, _ = newTestCmd()
	require.NoError(t, runAgentsFmt(cmd, []string{path}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "version:"))
}

func TestSearchAndDevice(t *testing.T) {
	agentsFile = filepath.Join(t.TempDir(), "missing.yaml")
	defer func() { agentsFile = "" }()

	cmd, out := newTestCmd()
	require.NoError(t, runSearch(cmd, []string{"K240123"}))
	assert.Contains(t, out.String(), "510k")
	assert.Contains(t, out.String(), "K240123")

	searchDataset = "bogus"
	cmd, _ = newTestCmd()
	assert.Error(t, runSearch(cmd, []string{"x"}))
	searchDataset = ""

	cmd, out = newTestCmd()
	require.NoError(t, runDevice(cmd, []string{"StapleWave"}))
	assert.Contains(t, out.String(), `"top_510k"`)
}
