package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reviewstudio/studio/internal/registry"
)

var agentsFmtWrite bool

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Check and format agent configuration files",
}

var agentsValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate an agents YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsValidate,
}

var agentsFmtCmd = &cobra.Command{
	Use:   "fmt <file>",
	Short: "Rewrite an agents YAML file with defaults filled in",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsFmt,
}

func init() {
	agentsFmtCmd.Flags().BoolVarP(&agentsFmtWrite, "write", "w", false, "Write the result back to the file")
}

func runAgentsValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	cfg, err := registry.LoadAndStandardize(string(data))
	if err != nil {
		var ve *registry.ValidationError
		if errors.As(err, &ve) && len(ve.Problems) > 0 {
			for _, p := range ve.Problems {
				fmt.Fprintf(out, "✗ %s\n", p)
			}
		} else {
			fmt.Fprintf(out, "✗ %v\n", err)
		}
		return fmt.Errorf("%s: invalid agent configuration", args[0])
	}
	fmt.Fprintf(out, "✓ %s: version %s, %d agents\n", args[0], cfg.Version, len(cfg.Agents))
	return nil
}

func runAgentsFmt(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	cfg, err := registry.LoadAndStandardize(string(data))
	if err != nil {
		return err
	}
	doc, err := registry.Dump(cfg)
	if err != nil {
		return err
	}
	if agentsFmtWrite {
		return os.WriteFile(args[0], []byte(doc), 0o644)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), doc)
	return err
}
