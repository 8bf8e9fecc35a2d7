package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-creator/cmd/slide-creator/ui"
	"github.com/spherical/slide-creator/internal/convert"
	"github.com/spherical/slide-creator/internal/schema"
	"github.com/spherical/slide-creator/internal/validate"
)

var (
	validateSchema string
	validateJSON   bool
)

var validateCmd = &cobra.Command{
	Use:   "validate --schema <name> <response-file>...",
	Short: "Check saved LLM responses against a schema",
	Long: `Validate runs the response validator offline on saved model answers.
Use "-" to read a single response from stdin.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateSchema, "schema", "s", "", "schema name (see \"slide-creator schemas\")")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print results as JSON")
	_ = validateCmd.MarkFlagRequired("schema")
	rootCmd.AddCommand(validateCmd)
}

type fileResult struct {
	File string `json:"file"`
	validate.Result
}

func runValidate(cmd *cobra.Command, args []string) error {
	if !schema.Default().Has(validateSchema) {
		return fmt.Errorf("unknown schema %q", validateSchema)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	validator := convert.NewResponseValidator(cfg)

	var bar *ui.ProgressBar
	if len(args) > 1 && ui.Interactive() && !validateJSON {
		bar = ui.NewProgressBar(int64(len(args)), "Validating")
	}

	results := make([]fileResult, 0, len(args))
	for _, name := range args {
		raw, err := readResponse(cmd.InOrStdin(), name)
		if err != nil {
			return err
		}
		results = append(results, fileResult{File: name, Result: validator.Validate(string(raw), validateSchema)})
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	invalid := 0
	for _, r := range results {
		if !r.Valid {
			invalid++
		}
	}

	if validateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			printResult(r)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d responses failed validation", invalid, len(results))
	}
	return nil
}

func printResult(r fileResult) {
	label := filepath.Base(r.File)
	if r.Valid {
		ui.Success("%s is a valid %s response", label, validateSchema)
	} else {
		ui.Error("%s: %d error(s)", label, len(r.Errors))
		for _, e := range r.Errors {
			ui.Message("    %s", e)
		}
	}
	for _, w := range r.Warnings {
		ui.Warning("%s: %s", label, w)
	}
}

func readResponse(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return raw, nil
}
