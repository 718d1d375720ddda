package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/metalblueberry/tuner/pkg/note"
)

func newNoteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "note (HZ | NOTE)...",
		Short: "Map frequencies to notes and notes to frequencies",
		Example: `  tuner note 440 466.16 82.4
  tuner note E2 A2 D3 G3 B3 E4
  tuner note --reference 432 -o json 440`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detections := make([]note.Detection, 0, len(args))

			for _, arg := range args {
				d, err := lookup(e.mapper, arg)

				if err != nil {
					return err
				}

				detections = append(detections, d)
			}

			return e.printer.Print(detections)
		},
	}
}

// lookup maps a frequency, or a note label to its standard frequency.
func lookup(mapper *note.Mapper, arg string) (note.Detection, error) {
	frequency, err := strconv.ParseFloat(arg, 64)

	if err != nil {
		index, perr := note.Parse(arg)

		if perr != nil {
			return note.Detection{}, fmt.Errorf("%q is neither a frequency nor a note: %w", arg, perr)
		}

		frequency = mapper.StandardFrequency(index)
	}

	d, err := mapper.Detect(frequency)

	if err != nil {
		return note.Detection{}, fmt.Errorf("%s: %w", arg, err)
	}

	return d, nil
}
