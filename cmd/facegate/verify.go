package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facegate/internal/core/session"
	"facegate/internal/util/timezone"

	"github.com/spf13/cobra"
)

var (
	verifyTimeout time.Duration
	verifyOnce    bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify faces from the camera against the enrolled identities",
	Long: `Classify every face in the camera stream and print each change of the
verification result. Runs until interrupted, until --timeout expires or, with
--once, until the first face is verified.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 0, "Stop verifying after this duration (0 = no limit)")
	verifyCmd.Flags().BoolVar(&verifyOnce, "once", false, "Exit after the first verified face")
}

// verifyPrinter prints every change of the verify result.
type verifyPrinter struct {
	verified chan struct{}
	passed   bool
	err      error
}

func (p *verifyPrinter) Publish(ev session.FrameEvent, _ image.Image) {
	if ev.Err != nil {
		p.err = ev.Err
	}
	if !ev.ResultChanged {
		return
	}

	at := timezone.Format(ev.At, "15:04:05")
	face, ok := ev.Accepted()
	if !ok {
		fmt.Printf("%s  not verified\n", at)
		return
	}
	fmt.Printf("%s  verified: %s (id %d, distance %.1f)\n", at, face.Name, face.Label, face.Distance)
	if !p.passed {
		p.passed = true
		close(p.verified)
	}
}

func (p *verifyPrinter) Clear() {}

func runVerify(cmd *cobra.Command, args []string) error {
	printer := &verifyPrinter{verified: make(chan struct{})}
	a, err := openCapture(printer)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if verifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, verifyTimeout)
		defer cancel()
	}

	if _, err := a.runner.StartVerify(); err != nil {
		return err
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()
	if verifyOnce {
		go func() {
			select {
			case <-printer.verified:
				cancelWait()
			case <-waitCtx.Done():
			}
		}()
	}

	// Wait only returns on interrupt, timeout or a camera fault
	waitErr := a.runner.Wait(waitCtx)
	a.runner.Stop()

	if waitErr == nil && printer.err != nil {
		return fmt.Errorf("verification aborted: %w", printer.err)
	}
	if (verifyOnce || verifyTimeout > 0) && !printer.passed {
		return errors.New("no face was verified")
	}
	return nil
}
