package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/metalblueberry/tuner/pkg/audio"
	"github.com/metalblueberry/tuner/pkg/pitch"
	"github.com/metalblueberry/tuner/pkg/tuner"
)

func newAnalyzeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Print the notes played in a WAV file",
		Example: `  tuner analyze take.wav
  tuner analyze --realtime --all take.wav`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileCfg := audio.FileConfig{
				Path:       args[0],
				BufferSize: e.cfg.Audio.BufferSize,
				QueueDepth: e.cfg.Audio.QueueDepth,
				Realtime:   e.cfg.Listen.Realtime,
			}

			open := func(ctx context.Context) (audio.Source, error) {
				return audio.OpenFile(ctx, fileCfg)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return e.session(ctx, open, tuner.Options{}, 0)
		},
	}

	flags := cmd.Flags()
	flags.Bool("all", false, "print every detection, not only note changes")
	flags.Bool("realtime", false, "pace the file at playback speed")
	flags.Int("buffer-size", 4096, "samples per analysed block")
	flags.String("method", pitch.METHOD_DEFAULT, methodUsage())
	flags.Int("history", 0, "samples the autocorrelation looks back over (0 means one block)")
	flags.String("window", pitch.WINDOW_HANN, "analysis window (hann, none)")
	return cmd
}

func methodUsage() string {
	return fmt.Sprintf("pitch detection method (%s)", strings.Join(pitch.Methods(), ", "))
}
