// Command gridrl trains a snake agent with PPO and watches
// the agent play while training is in progress.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := &cobra.Command{
		Use:   "gridrl",
		Short: "PPO training and live evaluation for grid-world snake",
	}
	var logLevel string
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	root.AddCommand(TrainCommand(&logLevel), EvalCommand(&logLevel))

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
