package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"

	"facegate/internal/core/models"
	"facegate/internal/core/processor"
	"facegate/internal/core/session"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollRecapture int

var enrollCmd = &cobra.Command{
	Use:   "enroll [name]",
	Short: "Capture face samples from the camera and enroll a person",
	Long: `Capture face samples from the camera until the configured number of
samples is collected, then train the model. With --recapture the samples
replace those of an existing identity instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().IntVar(&enrollRecapture, "recapture", -1, "Re-capture the samples of the identity with this id")
}

// captureProgress renders the sample count as a progress bar.
type captureProgress struct {
	bar       *progressbar.ProgressBar
	completed *models.Identity
	err       error
}

func newCaptureProgress(required int) *captureProgress {
	return &captureProgress{
		bar: progressbar.NewOptions(required,
			progressbar.OptionSetDescription("Capturing samples"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		),
	}
}

func (p *captureProgress) Publish(ev session.FrameEvent, _ image.Image) {
	if ev.Status.Collected > 0 {
		_ = p.bar.Set(ev.Status.Collected)
	}
	if ev.Completed != nil {
		_ = p.bar.Finish()
		p.completed = ev.Completed
	}
	if ev.Err != nil {
		p.err = ev.Err
	}
}

func (p *captureProgress) Clear() {}

func runEnroll(cmd *cobra.Command, args []string) error {
	recapture := cmd.Flags().Changed("recapture")
	if !recapture && len(args) != 1 {
		return errors.New("a name is required unless --recapture is given")
	}

	progress := newCaptureProgress(cfg.Recognizer.SamplesRequired)
	a, err := openCapture(progress)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if recapture {
		_, err = a.runner.StartRecapture(enrollRecapture)
	} else {
		_, err = a.runner.StartEnroll(args[0])
	}
	if err != nil {
		return err
	}

	return finishCapture(ctx, a.runner, progress)
}

func finishCapture(ctx context.Context, runner *processor.Runner, progress *captureProgress) error {
	if err := runner.Wait(ctx); err != nil {
		runner.Stop()
		fmt.Fprintln(os.Stderr)
		return fmt.Errorf("capture cancelled: %w", err)
	}
	fmt.Fprintln(os.Stderr)

	if progress.completed == nil {
		if progress.err != nil {
			return fmt.Errorf("capture failed: %w", progress.err)
		}
		return errors.New("capture ended before enough samples were collected")
	}
	fmt.Printf("Enrolled %q with id %d\n", progress.completed.Name, progress.completed.ID)
	return nil
}
