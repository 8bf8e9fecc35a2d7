package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spherical/slide-creator/cmd/slide-creator/ui"
	"github.com/spherical/slide-creator/internal/convert"
	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/pdf"
)

var (
	outputPath string
	infoOnly   bool
	emitJSON   bool
	parallel   int
)

var convertCmd = &cobra.Command{
	Use:   "convert [flags] <pdf-file>...",
	Short: "Convert PDF files into presentations",
	Long: `Convert runs the full pipeline on each PDF and writes a .pptx next to it,
or to the path given with --output when a single file is converted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	addConvertFlags(convertCmd)
	rootCmd.AddCommand(convertCmd)
}

func addConvertFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default: <input-name>.pptx)")
	cmd.Flags().BoolVar(&infoOnly, "info-only", false, "show document information without converting")
	cmd.Flags().BoolVar(&emitJSON, "emit-json", false, "also write the slide plan as JSON next to the deck")
	cmd.Flags().IntVar(&parallel, "parallel", 2, "number of PDFs converted at once")
}

func runConvert(cmd *cobra.Command, args []string) error {
	if infoOnly {
		return showInfo(args)
	}
	if outputPath != "" && len(args) > 1 {
		return fmt.Errorf("--output can only be used with a single PDF")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if emitJSON {
		cfg.Presentation.EmitJSON = true
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			ui.Newline()
			ui.Warning("Received interrupt signal, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	comps, err := convert.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release resources")
		}
	}()

	if len(args) == 1 {
		return convertOne(ctx, comps.Service, args[0], outputPath)
	}
	return convertMany(ctx, comps.Service, args)
}

func convertOne(ctx context.Context, svc *convert.Service, pdfPath, out string) error {
	ui.Section("Converting " + filepath.Base(pdfPath))

	eventCh := make(chan domain.StreamEvent, 100)
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Convert(ctx, pdfPath, out, eventCh)
		close(eventCh)
		errCh <- err
	}()

	renderer := ui.NewEventRenderer()
	for event := range eventCh {
		renderer.Handle(event)
	}
	renderer.Finish()

	if err := <-errCh; err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}
	return nil
}

func convertMany(ctx context.Context, svc *convert.Service, paths []string) error {
	if parallel < 1 {
		parallel = 1
	}
	ui.Section(fmt.Sprintf("Converting %d documents", len(paths)))

	errs := make([]error, len(paths))

	var tracker *ui.BatchTracker
	bars := make([]*ui.FileBar, len(paths))
	if ui.Interactive() {
		tracker = ui.NewBatchTracker()
		for i, p := range paths {
			bars[i] = tracker.Track(filepath.Base(p))
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(parallel)
	for i, p := range paths {
		g.Go(func() error {
			eventCh := make(chan domain.StreamEvent, 100)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for ev := range eventCh {
					if bars[i] != nil {
						bars[i].Handle(ev)
					}
				}
			}()

			_, err := svc.Convert(ctx, p, "", eventCh)
			close(eventCh)
			<-done

			errs[i] = err
			if bars[i] != nil {
				bars[i].Done(err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if tracker != nil {
		tracker.Wait()
	}

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			ui.Error("%s: %v", paths[i], err)
			continue
		}
		ui.Success("%s -> %s", paths[i], convert.DefaultOutputPath(paths[i]))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", failed, len(paths))
	}
	return nil
}

func showInfo(paths []string) error {
	validator := pdf.NewValidator(0, nil)
	for _, p := range paths {
		doc, err := validator.Inspect(p)
		if err != nil {
			return err
		}
		out := outputPath
		if out == "" || len(paths) > 1 {
			out = convert.DefaultOutputPath(p)
		}

		ui.Section(filepath.Base(p))
		ui.Info("File: %s", doc.FilePath)
		ui.Info("Size: %.2f MB", float64(doc.SizeBytes)/(1024*1024))
		ui.Info("Pages: %d", doc.TotalPages)
		ui.Info("Output: %s", out)
	}
	return nil
}
