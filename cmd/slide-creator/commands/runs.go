package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-creator/cmd/slide-creator/ui"
	"github.com/spherical/slide-creator/internal/storage"
	"github.com/spherical/slide-creator/internal/workflow"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent conversion runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("run history is disabled, set database.driver to sqlite or postgres")
	}
	defer db.Close()

	repo := storage.NewRunRepository(db)
	if err := repo.EnsureSchema(cmd.Context()); err != nil {
		return err
	}
	runs, err := repo.ListRecent(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}

	ui.Section("Recent runs")
	ui.Debug("database: %s (%s)", cfg.Database.Driver, cfg.DatabaseDSN())
	if len(runs) == 0 {
		ui.Info("No runs recorded yet")
		return nil
	}
	for _, r := range runs {
		printRun(r)
	}
	return nil
}

func printRun(r storage.Run) {
	line := fmt.Sprintf("%s  %s  %s  slides=%d concepts=%d images=%d",
		r.StartedAt.Local().Format(time.DateTime), r.ID.String()[:8], r.PDFPath,
		r.SlideCount, r.ConceptCount, r.ImageCount)
	switch {
	case r.State == string(workflow.StateDone):
		ui.Success("%s", line)
	case r.FinishedAt == nil:
		ui.Step("%s (running)", line)
	default:
		ui.Error("%s [%s] %s: %s", line, r.State, r.FailureReason, r.FailureMessage)
	}
}
