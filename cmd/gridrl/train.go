package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/wty-yy/gridrl/ckpt"
	"github.com/wty-yy/gridrl/config"
	"github.com/wty-yy/gridrl/metrics"
	"github.com/wty-yy/gridrl/train"
)

// TrainCommand creates the train sub-command.
func TrainCommand(logLevel *string) *cobra.Command {
	cfg := config.Default()
	var configPath string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train an agent with PPO",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				var err error
				if cfg, err = loadConfig(configPath, cmd.Flags()); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(*logLevel)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			run := cfg.RunName(time.Now())
			logger = logger.With().Str("run", run).Logger()
			if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
				return err
			}
			if err := cfg.Save(cfg.SavePath(run)); err != nil {
				return err
			}
			db, err := metrics.OpenDB(cfg.MetricsPath(run))
			if err != nil {
				return err
			}
			defer db.Close()

			store := &ckpt.Store{
				Root:   cfg.CkptDir,
				Run:    run,
				Logger: logger.With().Str("component", "ckpt").Logger(),
			}
			sink := metrics.Multi{
				db,
				&metrics.LogSink{Logger: logger.With().Str("component", "metrics").Logger()},
			}
			trainer, err := train.New(cfg, train.SnakeEnvs(&cfg), nil, store, sink,
				train.NewLogger(logger.With().Str("component", "train").Logger()))
			if err != nil {
				return err
			}
			logger.Info().
				Int("batch_size", cfg.BatchSize()).
				Int("minibatches", cfg.NumMinibatches()).
				Int("iterations", cfg.NumIterations()).
				Msg("starting training")

			err = trainer.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				logger.Warn().Int("iteration", trainer.Iteration).Msg("training interrupted")
				return nil
			}
			if err != nil {
				logger.Error().Err(err).Msg("training failed")
				return err
			}
			logger.Info().Int("global_step", trainer.Roller.GlobalStep).Msg("training done")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "",
		"YAML settings file; explicit flags take precedence")
	bindTrainFlags(cmd.Flags(), &cfg)
	return cmd
}

// bindTrainFlags binds the training settings to flags.
func bindTrainFlags(f *pflag.FlagSet, cfg *config.Config) {
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	f.IntVar(&cfg.TotalSteps, "total-steps", cfg.TotalSteps, "total number of environment steps")
	f.Float64Var(&cfg.LearningRate, "learning-rate", cfg.LearningRate, "Adam learning rate")
	f.IntVar(&cfg.GameSize, "game-size", cfg.GameSize, "width and height of the board")
	f.IntVar(&cfg.NumEnvs, "num-envs", cfg.NumEnvs, "number of parallel environments")
	f.IntVar(&cfg.NumSteps, "num-steps", cfg.NumSteps, "steps per environment per rollout")
	f.Float64Var(&cfg.Gamma, "gamma", cfg.Gamma, "discount factor")
	f.Float64Var(&cfg.GAELambda, "gae-lambda", cfg.GAELambda, "GAE lambda")
	f.IntVar(&cfg.MinibatchSize, "minibatch-size", cfg.MinibatchSize, "samples per gradient step")
	f.IntVar(&cfg.UpdateEpochs, "update-epochs", cfg.UpdateEpochs, "passes over each rollout")
	f.BoolVar(&cfg.NormAdv, "norm-adv", cfg.NormAdv, "normalize advantages per minibatch")
	f.Float64Var(&cfg.ClipCoef, "clip-coef", cfg.ClipCoef, "probability ratio clip coefficient")
	f.Float64Var(&cfg.EntCoef, "ent-coef", cfg.EntCoef, "entropy bonus coefficient")
	f.Float64Var(&cfg.VFCoef, "vf-coef", cfg.VFCoef, "value loss coefficient")
	f.Float64Var(&cfg.MaxGradNorm, "max-grad-norm", cfg.MaxGradNorm, "maximum global gradient norm")
	f.IntVar(&cfg.SaveFreq, "save-freq", cfg.SaveFreq, "environment steps between checkpoints")
	f.IntVar(&cfg.Hidden, "hidden", cfg.Hidden, "hidden layer size")
	f.IntVar(&cfg.MaxEpisodeStep, "max-episode-steps", cfg.MaxEpisodeStep,
		"truncate episodes after this many steps (0 for no limit)")
	f.StringVar(&cfg.Device, "device", cfg.Device, "numeric backend (float32 or float64)")
	f.StringVar(&cfg.CkptDir, "ckpt-dir", cfg.CkptDir, "checkpoint root directory")
	f.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "metrics database directory")
}

// loadConfig reads a settings file and applies the flags
// which were set explicitly on top of it.
func loadConfig(path string, flags *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	fileFlags := pflag.NewFlagSet("config", pflag.ContinueOnError)
	bindTrainFlags(fileFlags, &cfg)
	flags.Visit(func(f *pflag.Flag) {
		if err == nil && fileFlags.Lookup(f.Name) != nil {
			err = fileFlags.Set(f.Name, f.Value.String())
		}
	})
	return cfg, err
}
