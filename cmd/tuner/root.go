package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/metalblueberry/tuner/pkg/config"
	"github.com/metalblueberry/tuner/pkg/logging"
	"github.com/metalblueberry/tuner/pkg/note"
	"github.com/metalblueberry/tuner/pkg/output"
)

// flagKeys maps flag names onto configuration keys. Flags not listed here
// are bound under their own name with dashes turned into underscores.
var flagKeys = map[string]string{
	"reference":   "reference.frequency",
	"semitone":    "reference.semitone",
	"backend":     "audio.backend",
	"device":      "audio.device",
	"sample-rate": "audio.sample_rate",
	"buffer-size": "audio.buffer_size",
	"method":      "pitch.method",
	"window":      "pitch.window",
	"history":     "pitch.history",
	"all":         "listen.all",
	"realtime":    "listen.realtime",
	"amplitude":   "tone.amplitude",
}

// local flags which are read directly and never come from the config file
var unboundFlags = map[string]bool{
	"config":    true,
	"help":      true,
	"record":    true,
	"frequency": true,
	"note":      true,
	"duration":  true,
}

// env is shared by all commands and filled in before any of them runs.
type env struct {
	out     io.Writer
	cfg     *config.Config
	log     *zap.Logger
	printer *output.Printer
	mapper  *note.Mapper
}

func newRootCmd(out io.Writer) *cobra.Command {
	e := &env{out: out}
	var configFile string

	root := &cobra.Command{
		Use:   "tuner",
		Short: "Chromatic instrument tuner",
		Long: `A chromatic tuner for the terminal.

It listens to a microphone (portaudio or JACK) or a WAV file, estimates the
fundamental frequency of every block of samples and prints the nearest note of
the equal-tempered scale with its offset in cents. It can also play a
reference tone and record what it hears.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.init(cmd, configFile)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.log != nil {
				e.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "",
		"config file (default is $HOME/.config/tuner/tuner.yaml)")
	flags.BoolP("verbose", "v", false, "human readable debug logs")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.StringP("output", "o", config.OUTPUT_TEXT, "output format (text, json, yaml)")
	flags.Float64("reference", note.DEFAULT_REFERENCE_FREQUENCY, "reference frequency in Hz")
	flags.Int("semitone", note.DEFAULT_REFERENCE_SEMITONE, "semitone index of the reference frequency")
	flags.Bool("strict", false, "panic on API misuse")

	root.AddCommand(
		newListenCmd(e),
		newAnalyzeCmd(e),
		newToneCmd(e),
		newNoteCmd(e),
		newDevicesCmd(e),
	)

	return root
}

// init loads the configuration once flags are parsed.
func (e *env) init(cmd *cobra.Command, configFile string) error {
	v := config.New(configFile)

	if err := config.Read(v); err != nil {
		return err
	}

	if err := bindFlags(cmd, v); err != nil {
		return err
	}

	cfg, err := config.Load(v)

	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.Verbose)

	if err != nil {
		return err
	}

	mapper, err := cfg.Mapper()

	if err != nil {
		return err
	}

	printer, err := output.NewPrinter(e.out, cfg.Output)

	if err != nil {
		return err
	}

	e.cfg = cfg
	e.log = log
	e.mapper = mapper
	e.printer = printer

	if used := v.ConfigFileUsed(); used != "" {
		log.Debug("configuration loaded", zap.String("file", used))
	}

	return nil
}

// bindFlags binds each cobra flag to its associated viper configuration
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var lastErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if unboundFlags[f.Name] {
			return
		}

		key, ok := flagKeys[f.Name]

		if !ok {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}

		if err := v.BindPFlag(key, f); err != nil {
			lastErr = err
		}
	})

	return lastErr
}

// signalContext is cancelled on the first interrupt or termination signal.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
