// Package mcpgw exposes the record search, the device view and the agent
// configuration as MCP (Model Context Protocol) tools, so that an assistant
// can consult the regulatory snapshot while a reviewer works.
//
// Each tool follows the same pattern:
//   - Definition() returns the mcp.Tool schema
//   - Handle() processes the request and returns a result
//
// The server is served over stdio by the CLI and over streamable HTTP at
// /mcp by the API.
package mcpgw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/reviewstudio/studio/pkg/contracts"
	"github.com/reviewstudio/studio/pkg/models"
)

const (
	serverName         = "review-studio"
	defaultSearchLimit = 10
	maxSearchLimit     = 25
)

// AgentSource returns the current agent configuration.
type AgentSource func() *models.AgentsConfig

// Gateway owns the MCP server and its tools.
type Gateway struct {
	server *server.MCPServer
}

// NewGateway builds the MCP server with every tool registered.
func NewGateway(version string, search contracts.SearchService, resolver contracts.DeviceResolver, agents AgentSource) *Gateway {
	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	searchTool := NewSearchTool(search)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	deviceTool := NewDeviceTool(resolver)
	s.AddTool(deviceTool.Definition(), deviceTool.Handle)

	agentsTool := NewAgentsTool(agents)
	s.AddTool(agentsTool.Definition(), agentsTool.Handle)

	return &Gateway{server: s}
}

const instructions = "Tools over a read-only snapshot of FDA 510(k) clearances, adverse event reports (MDR), " +
	"GUDID device identifiers and recalls. Use search_records for fuzzy lookups, device_view for the " +
	"linked view of one device, and list_agents to see the configured review pipeline."

// Server returns the underlying MCP server.
func (g *Gateway) Server() *server.MCPServer { return g.server }

// ServeStdio serves the tools on stdin/stdout until the input closes.
func (g *Gateway) ServeStdio() error {
	return server.ServeStdio(g.server)
}

// HTTPHandler serves the tools over streamable HTTP.
func (g *Gateway) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(g.server)
}

// ── search_records ──────────────────────────────────────────

// SearchTool handles the search_records tool.
type SearchTool struct {
	search contracts.SearchService
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(search contracts.SearchService) *SearchTool {
	return &SearchTool{search: search}
}

// Definition returns the MCP tool definition for search_records.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_records",
		mcp.WithDescription("Fuzzy search across 510(k) clearances, adverse events, GUDID and recalls. "+
			"An exact K-number also returns the clearances it names as predicates."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Device name, manufacturer, product code, K-number, recall number, ..."),
		),
		mcp.WithString("collection",
			mcp.Description("Restrict to one collection: 510k, adr, gudid or recall"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max hits per collection (default: 10, max: 25)"),
		),
	)
}

// Handle processes the search_records tool call.
func (t *SearchTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	limit := intArg(req, "limit", defaultSearchLimit)
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	results := t.search.SearchAll(query)
	if c := req.GetString("collection", ""); c != "" {
		coll, ok := models.ParseCollection(c)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown collection %q (want 510k, adr, gudid or recall)", c)), nil
		}
		results = models.SearchResults{coll: results[coll]}
	}
	for c, hits := range results {
		if len(hits) > limit {
			results[c] = hits[:limit]
		}
	}
	return jsonResult(results)
}

// ── device_view ─────────────────────────────────────────────

// DeviceTool handles the device_view tool.
type DeviceTool struct {
	resolver contracts.DeviceResolver
}

// NewDeviceTool creates a DeviceTool.
func NewDeviceTool(resolver contracts.DeviceResolver) *DeviceTool {
	return &DeviceTool{resolver: resolver}
}

// Definition returns the MCP tool definition for device_view.
func (t *DeviceTool) Definition() mcp.Tool {
	return mcp.NewTool("device_view",
		mcp.WithDescription("Linked view of one device: its best-matching 510(k) clearance, related recalls "+
			"(with the most severe recall class), adverse event count and examples, and GUDID examples."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Query identifying the device"),
		),
	)
}

// Handle processes the device_view tool call.
func (t *DeviceTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	return jsonResult(t.resolver.DeviceView(query))
}

// ── list_agents ─────────────────────────────────────────────

// AgentsTool handles the list_agents tool.
type AgentsTool struct {
	agents AgentSource
}

// NewAgentsTool creates an AgentsTool.
func NewAgentsTool(agents AgentSource) *AgentsTool {
	return &AgentsTool{agents: agents}
}

// Definition returns the MCP tool definition for list_agents.
func (t *AgentsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_agents",
		mcp.WithDescription("List the review pipeline agents in execution order with provider, model and prompts."),
	)
}

// Handle processes the list_agents tool call.
func (t *AgentsTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := t.agents()
	if cfg == nil || len(cfg.Agents) == 0 {
		return mcp.NewToolResultText("No agents configured."), nil
	}
	return jsonResult(cfg)
}

// ── helpers ─────────────────────────────────────────────────

// intArg extracts an integer argument; JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
