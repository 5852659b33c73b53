// Package cli implements the prescripto command line interface: local
// extraction runs, schedule previews, and migration management.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prescripto/prescripto/internal/config"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds the global flags shared by all subcommands.
type rootOptions struct {
	configPath string
	output     string // "json" | "table"
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "prescripto",
		Short: "Extract structured medication schedules from prescription OCR text",
		Long: `Prescripto parses the noisy text produced by OCR on prescription
photographs and turns it into structured medication entries and a
day-by-day reminder schedule.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.output {
			case "json", "table":
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want json or table)", opts.output)
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: json or table")

	root.AddCommand(newParseCommand(opts))
	root.AddCommand(newScheduleCommand(opts))
	root.AddCommand(newMigrateCommand(opts))

	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration for commands that need one.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		return config.Load(o.configPath)
	}
	return config.LoadFromEnv()
}

// readDocument resolves the OCR text for parse/schedule commands: a literal
// argument, a --file path, or stdin when the argument is "-".
func readDocument(cmd *cobra.Command, args []string, file string) (string, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read document: %w", err)
		}
		return string(raw), nil
	}
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(raw), nil
}

// printJSON renders v as indented JSON on the command's stdout.
func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRow writes one aligned table row.
func printRow(w io.Writer, cols ...string) {
	fmt.Fprintln(w, strings.Join(cols, "\t"))
}
