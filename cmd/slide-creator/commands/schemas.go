package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-creator/cmd/slide-creator/ui"
	"github.com/spherical/slide-creator/internal/schema"
)

var schemasCmd = &cobra.Command{
	Use:   "schemas [name]",
	Short: "List response schemas or print one template",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSchemas,
}

func init() {
	rootCmd.AddCommand(schemasCmd)
}

func runSchemas(cmd *cobra.Command, args []string) error {
	reg := schema.Default()

	if len(args) == 1 {
		s, err := reg.Get(args[0])
		if err != nil {
			return err
		}
		ui.Section(s.Name())
		ui.Message("%s", s.Description())
		ui.Newline()
		ui.Info("Required: %v", s.RequiredFields())
		ui.Newline()
		fmt.Fprintln(cmd.OutOrStdout(), s.Template())
		return nil
	}

	ui.Section("Schemas")
	for _, name := range reg.Names() {
		s, err := reg.Get(name)
		if err != nil {
			continue
		}
		ui.Message("  %-28s %s", s.Name(), s.Description())
	}
	return nil
}
