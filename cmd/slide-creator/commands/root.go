// Package commands implements the slide-creator command line.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-creator/cmd/slide-creator/ui"
	"github.com/spherical/slide-creator/internal/config"
	"github.com/spherical/slide-creator/internal/observability"
)

// Version is set at build time.
var Version = "1.0.0"

var (
	cfgFile string
	verbose bool
	noColor bool
	logFile string
)

var rootCmd = &cobra.Command{
	Use:   "slide-creator [flags] <pdf-file>...",
	Short: "Turn PDF documents into PowerPoint presentations",
	Long: `slide-creator reads a PDF, screens it for malicious content, extracts its key
concepts with an LLM, plans a slide deck, maps existing and generated visuals onto
the slides and writes the result as a .pptx file.

Running it with PDF files and no command is the same as "slide-creator convert".`,
	Version:       Version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.InitUI(noColor, verbose)
		ui.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runConvert(cmd, args)
	},
	Example: `  slide-creator report.pdf
  slide-creator -o deck.pptx report.pdf
  slide-creator convert --info-only report.pdf
  slide-creator validate --schema slides response.json
  slide-creator serve --port 8090`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
	addConvertFlags(rootCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Observability.LogLevel = "debug"
	}
	if logFile != "" {
		cfg.Observability.LogFile = logFile
	}
	return cfg, nil
}

// newLogger builds the process logger. Without a log file, logs only go
// to stderr in verbose mode so they do not mix with progress output.
func newLogger(cfg *config.Config) (*observability.Logger, func(), error) {
	obs := cfg.Observability

	var out io.Writer
	closeFn := func() {}
	switch {
	case obs.LogFile != "":
		f, err := os.OpenFile(obs.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	case verbose:
		out = os.Stderr
	default:
		return observability.NopLogger(), closeFn, nil
	}

	return observability.NewLogger(observability.LogConfig{
		Level:       obs.LogLevel,
		Format:      obs.LogFormat,
		Output:      out,
		ServiceName: "slide-creator",
	}), closeFn, nil
}
