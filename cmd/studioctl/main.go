// Command studioctl is the review studio's command-line tool: it serves the
// HTTP API or the MCP tools, queries the embedded records, and checks agent
// configuration files.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/reviewstudio/studio/internal/config"
	"github.com/reviewstudio/studio/pkg/server"
)

var (
	verbose    bool
	agentsFile string
)

var rootCmd = &cobra.Command{
	Use:   "studioctl",
	Short: "510(k) review studio",
	Long: `studioctl runs and inspects the review studio: fuzzy search over FDA
clearance, adverse event, device identifier and recall records, linked
device views, and the configurable agent review pipeline.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&agentsFile, "agents", "", "Agents YAML file (default: STUDIO_AGENTS_FILE or agents.yaml)")

	agentsCmd.AddCommand(agentsValidateCmd)
	agentsCmd.AddCommand(agentsFmtCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(agentsCmd)
}

// loadConfig reads the environment and applies the global flags.
func loadConfig() *config.Config {
	cfg := config.Load()
	if agentsFile != "" {
		cfg.Agents.File = agentsFile
	}
	return cfg
}

func loadCore() (*server.Core, *config.Config, error) {
	cfg := loadConfig()
	core, err := server.NewCore(cfg)
	return core, cfg, err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
