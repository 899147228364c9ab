package main

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/reviewstudio/studio/pkg/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API (and MCP over HTTP at /mcp)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := loadConfig()
		if servePort > 0 {
			cfg.Port = servePort
		}
		srv, err := server.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}
		return server.Run(ctx, srv)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the record and agent tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		core, cfg, err := loadCore()
		if err != nil {
			return err
		}
		log.Info().Str("version", cfg.Version).Msg("🔌 MCP stdio server starting")
		return core.MCPGateway(cfg.Version).ServeStdio()
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default: STUDIO_PORT or 8080)")
}
