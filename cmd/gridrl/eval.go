package main

import (
	"errors"
	"math/rand"
	"os"

	"github.com/spf13/cobra"
	"github.com/wty-yy/gridrl"
	"github.com/wty-yy/gridrl/ckpt"
	"github.com/wty-yy/gridrl/config"
	"github.com/wty-yy/gridrl/evaluate"
	"github.com/wty-yy/gridrl/snake"
)

// EvalCommand creates the eval sub-command.
func EvalCommand(logLevel *string) *cobra.Command {
	cfg := config.DefaultEval()
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Play with the newest checkpoint of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(*logLevel)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			dir := cfg.CkptDir
			if cfg.FindNewest {
				dir, err = ckpt.LatestRun(logger, cfg.CkptDir, ckpt.SizeTag(cfg.GameSize))
				if err != nil {
					return err
				}
				if dir == "" {
					return errors.New("no training runs found")
				}
			}
			path, err := ckpt.Latest(logger, dir)
			if err != nil {
				return err
			}
			if path == "" {
				return errors.New("no checkpoints found")
			}
			model, err := ckpt.Load(path)
			if err != nil {
				return err
			}
			params := model.Parameters()
			if len(params) == 0 {
				return errors.New("checkpoint has no parameters")
			}
			logger.Info().Str("checkpoint", path).Msg("loaded checkpoint")

			mode := evaluate.Sample
			if cfg.Deterministic {
				mode = evaluate.Greedy
			}
			runner := &evaluate.Runner{
				Env: snake.New(snake.Options{
					Width:  cfg.GameSize,
					Height: cfg.GameSize,
					Seed:   cfg.Seed,
				}),
				Agent: &gridrl.Agent{
					Model:   model,
					Creator: params[0].Vector.Creator(),
					Rand:    rand.New(rand.NewSource(cfg.Seed)),
				},
				Mode:      mode,
				Dir:       dir,
				Current:   path,
				Interval:  cfg.Interval,
				StepDelay: cfg.StepDelay,
				Logger:    logger.With().Str("component", "eval").Str("mode", mode.String()).Logger(),
			}
			if cfg.Render {
				runner.Render = os.Stdout
			}
			return runner.Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.IntVar(&cfg.GameSize, "game-size", cfg.GameSize, "width and height of the board")
	f.StringVar(&cfg.CkptDir, "ckpt-dir", cfg.CkptDir,
		"run directory, or directory of runs with --find-new-ckpt")
	f.BoolVar(&cfg.FindNewest, "find-new-ckpt", cfg.FindNewest,
		"watch the newest run for --game-size under --ckpt-dir")
	f.BoolVar(&cfg.Deterministic, "deterministic", cfg.Deterministic,
		"take the most likely action instead of sampling")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	f.DurationVar(&cfg.Interval, "interval", cfg.Interval, "time between checkpoint polls")
	f.DurationVar(&cfg.StepDelay, "step-delay", cfg.StepDelay, "pause after every step")
	f.BoolVar(&cfg.Render, "render", cfg.Render, "draw the board after every step")
	return cmd
}
