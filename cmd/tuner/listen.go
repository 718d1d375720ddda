package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metalblueberry/tuner/pkg/audio"
	"github.com/metalblueberry/tuner/pkg/logging"
	"github.com/metalblueberry/tuner/pkg/note"
	"github.com/metalblueberry/tuner/pkg/output"
	"github.com/metalblueberry/tuner/pkg/pitch"
	"github.com/metalblueberry/tuner/pkg/tuner"
)

func newListenCmd(e *env) *cobra.Command {
	var (
		recordPath string
		duration   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print the notes heard on the microphone",
		Example: `  tuner listen
  tuner listen --backend jack --record take.wav --duration 30s
  tuner listen -o json --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("duration") {
				duration = e.cfg.Listen.Duration
			}

			capture, err := audio.Negotiate(e.cfg.Audio, logging.Named(e.log, "audio"))

			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return e.session(ctx, audio.CaptureOpener(capture, e.cfg.Audio), tuner.Options{RecordPath: recordPath}, duration)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&recordPath, "record", "", "record the session into this WAV file")
	flags.DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	flags.Bool("all", false, "print every detection, not only note changes")
	flags.String("backend", audio.BACKEND_AUTO, "capture backend (auto, portaudio, jack)")
	flags.String("device", "", "capture device name or JACK port (default device when empty)")
	flags.Uint32("sample-rate", 44100, "capture sample rate in Hz")
	flags.Int("buffer-size", 4096, "samples per analysed block")
	flags.String("method", pitch.METHOD_DEFAULT, methodUsage())
	flags.Int("history", 0, "samples the autocorrelation looks back over (0 means one block)")
	return cmd
}

// notePrinter returns the detection callback of a session.
func (e *env) notePrinter() func(note.Detection) {
	var filter output.ChangeFilter
	all := e.cfg.Listen.All

	return func(d note.Detection) {
		if !all && !filter.Changed(d) {
			return
		}

		if err := e.printer.Print(d); err != nil {
			e.log.Warn("printing detection failed", zap.Error(err))
		}
	}
}

// session runs a controller until the source ends, ctx is cancelled or the
// duration elapses, then stops it and reports the recording.
func (e *env) session(ctx context.Context, open audio.Opener, opts tuner.Options, duration time.Duration) error {
	log := logging.Named(e.log, "tuner")

	controller := tuner.New(tuner.Config{
		Mapper:   e.mapper,
		Detector: tuner.ConfigFactory(e.cfg.Pitch),
		OnNote:   e.notePrinter(),
		Logger:   log,
		Strict:   e.cfg.Strict,
	})

	if err := controller.Start(ctx, open, opts); err != nil {
		return err
	}

	var timeout <-chan time.Time

	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		log.Info("interrupted")
	case <-timeout:
		log.Debug("duration elapsed", zap.Duration("duration", duration))
	case <-controller.Done():
	}

	rec, stopErr := controller.Stop()

	// The error that ended the session explains an empty recording.
	if err := controller.Wait(); err != nil {
		return err
	}

	if stopErr != nil {
		return stopErr
	}

	stats := controller.Stats()
	log.Debug("session finished", zap.Uint64("blocks", stats.Blocks), zap.Uint64("detections", stats.Detections))

	if rec != nil {
		if err := e.printer.Print(rec); err != nil {
			return fmt.Errorf("print recording: %w", err)
		}
	}

	return nil
}
