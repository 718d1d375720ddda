package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/metalblueberry/tuner/pkg/logging"
	"github.com/metalblueberry/tuner/pkg/note"
	"github.com/metalblueberry/tuner/pkg/tone"
)

func newToneCmd(e *env) *cobra.Command {
	var (
		frequency float64
		label     string
		duration  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Play a reference tone",
		Example: `  tuner tone --note A4
  tuner tone --frequency 329.63 --duration 5s
  tuner tone --note E2 --reference 432`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := e.toneFrequency(cmd.Flags().Changed("frequency"), frequency, label)

			if err != nil {
				return err
			}

			player := tone.NewPlayer(tone.NewOtoOutput(e.cfg.Tone.SampleRate), e.cfg.Tone, logging.Named(e.log, "tone"))

			if err := player.Play(f); err != nil {
				return err
			}

			if err := e.printer.Print(describeTone(e.mapper, f)); err != nil {
				player.Stop()
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			var timeout <-chan time.Time

			if duration > 0 {
				timer := time.NewTimer(duration)
				defer timer.Stop()
				timeout = timer.C
			}

			select {
			case <-ctx.Done():
			case <-timeout:
			}

			return player.Stop()
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&frequency, "frequency", 0, "tone frequency in Hz")
	flags.StringVar(&label, "note", "", "note to play, e.g. A4, C#3 or Bb2")
	flags.DurationVar(&duration, "duration", 0, "stop after this long (0 plays until interrupted)")
	flags.Float64("amplitude", 0.5, "tone amplitude between 0 and 1")
	cmd.MarkFlagsMutuallyExclusive("frequency", "note")
	cmd.MarkFlagsOneRequired("frequency", "note")
	return cmd
}

// toneFrequency resolves either an explicit frequency or a note label.
func (e *env) toneFrequency(explicit bool, frequency float64, label string) (float64, error) {
	if explicit {
		if !note.ValidFrequency(frequency) {
			return 0, fmt.Errorf("%v Hz: %w", frequency, note.ErrInvalidFrequency)
		}
		return frequency, nil
	}

	if label == "" {
		return 0, errors.New("either --frequency or --note is required")
	}

	index, err := note.Parse(label)

	if err != nil {
		return 0, err
	}

	return e.mapper.StandardFrequency(index), nil
}

// describeTone pairs the played frequency with the note it sounds as.
func describeTone(mapper *note.Mapper, frequency float64) note.Detection {
	d, err := mapper.Detect(frequency)

	if err != nil {
		return note.Detection{Frequency: frequency}
	}

	return d
}
