// Package train runs the PPO training loop for the snake
// environment.
package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/essentials"
	"github.com/wty-yy/gridrl"
	"github.com/wty-yy/gridrl/ckpt"
	"github.com/wty-yy/gridrl/config"
	"github.com/wty-yy/gridrl/metrics"
	"github.com/wty-yy/gridrl/ppo"
	"github.com/wty-yy/gridrl/snake"
	"gonum.org/v1/gonum/stat"
)

// ErrNonFinite is returned when a loss becomes NaN or
// infinite.
var ErrNonFinite = errors.New("non-finite loss")

// Metric tags.
const (
	TagTotalReward = "charts/total_reward"
	TagTotalLength = "charts/total_length"
	TagValueLoss   = "losses/value_loss"
	TagPolicyLoss  = "losses/policy_loss"
	TagEntropyLoss = "losses/entropy_loss"
	TagApproxKL    = "losses/approx_kl"
	TagClipFracs   = "losses/clipfracs"
	TagSPS         = "losses/SPS"
)

// A Trainer alternates between collecting rollouts and
// updating the model with PPO.
type Trainer struct {
	Config config.Config
	Model  gridrl.Model
	Roller *gridrl.Roller
	PPO    *ppo.PPO

	// Rollout is overwritten by every iteration.
	Rollout *gridrl.Rollout

	Store   *ckpt.Store
	Metrics metrics.Sink
	Logger  Logger

	// Iteration is the number of completed iterations.
	Iteration int

	start      time.Time
	episodes   []float64
	episodeErr error
}

// SnakeEnvs creates the environments of a run, seeding
// environment i with cfg.Seed+i.
func SnakeEnvs(cfg *config.Config) []gridrl.Env {
	envs := make([]gridrl.Env, cfg.NumEnvs)
	for i := range envs {
		var env gridrl.Env = snake.New(snake.Options{
			Width:  cfg.GameSize,
			Height: cfg.GameSize,
			Seed:   cfg.Seed + int64(i),
		})
		if cfg.MaxEpisodeStep > 0 {
			env = &gridrl.MaxStepsEnv{Env: env, MaxSteps: cfg.MaxEpisodeStep}
		}
		envs[i] = env
	}
	return envs
}

// New creates a Trainer.
//
// If model is nil, a new MLP is created for the
// environments' spaces.
func New(cfg config.Config, envs []gridrl.Env, model gridrl.Model,
	store *ckpt.Store, sink metrics.Sink, logger Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("create trainer: %w", err)
	}
	if len(envs) != cfg.NumEnvs {
		return nil, fmt.Errorf("create trainer: expected %d environments but got %d",
			cfg.NumEnvs, len(envs))
	}
	creator, err := config.Creator(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("create trainer: %w", err)
	}
	vecEnv, err := gridrl.NewVecEnv(envs...)
	if err != nil {
		return nil, essentials.AddCtx("create trainer", err)
	}
	obsSize, numActions := vecEnv.Space()
	if model == nil {
		model = gridrl.NewMLP(creator, obsSize, cfg.Hidden, numActions)
	}

	agent := &gridrl.Agent{
		Model:   model,
		Creator: creator,
		Rand:    rand.New(rand.NewSource(cfg.Seed)),
	}
	t := &Trainer{
		Config: cfg,
		Model:  model,
		Roller: &gridrl.Roller{Agent: agent, Env: vecEnv},
		PPO: &ppo.PPO{
			Agent:         agent,
			Params:        model.Parameters(),
			Transformer:   &anysgd.Adam{DecayRate1: 0.9, DecayRate2: 0.999, Damping: 1e-8},
			LearningRate:  cfg.LearningRate,
			UpdateEpochs:  cfg.UpdateEpochs,
			MinibatchSize: cfg.MinibatchSize,
			NormAdv:       cfg.NormAdv,
			ClipCoef:      cfg.ClipCoef,
			EntCoef:       cfg.EntCoef,
			VFCoef:        cfg.VFCoef,
			MaxGradNorm:   cfg.MaxGradNorm,
			Rand:          rand.New(rand.NewSource(cfg.Seed + 1)),
		},
		Rollout: gridrl.NewRollout(cfg.NumSteps, cfg.NumEnvs, obsSize),
		Store:   store,
		Metrics: sink,
		Logger:  logger,
	}
	t.Roller.OnEpisode = t.onEpisode
	return t, nil
}

// Run performs the remaining iterations.
//
// Cancellation is only checked between iterations.
// If ctx is cancelled, its error is returned.
func (t *Trainer) Run(ctx context.Context) error {
	for t.Iteration < t.Config.NumIterations() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := t.Iterate(); err != nil {
			return err
		}
	}
	return nil
}

// Iterate gathers one rollout, trains on it, records
// metrics, and saves a checkpoint when one is due.
//
// A NaN or infinite loss yields an error wrapping
// ErrNonFinite.
func (t *Trainer) Iterate() error {
	if err := t.iterate(); err != nil {
		return fmt.Errorf("iteration %d: %w", t.Iteration+1, err)
	}
	return nil
}

func (t *Trainer) iterate() error {
	if t.start.IsZero() {
		t.start = time.Now()
	}
	t.episodes = t.episodes[:0]

	if err := t.Roller.Rollout(t.Rollout); err != nil {
		return err
	}
	if t.episodeErr != nil {
		return t.episodeErr
	}

	cfg := &t.Config
	nextValues := t.Roller.Agent.Value(t.Rollout.NextObs, cfg.NumEnvs)
	advantages, returns := gridrl.GAE(t.Rollout, nextValues, cfg.Gamma, cfg.GAELambda)
	stats, err := t.PPO.Update(t.Rollout, advantages, returns)
	if err != nil {
		return err
	}
	for _, x := range []float64{stats.PolicyLoss, stats.ValueLoss, stats.Entropy,
		stats.ApproxKL, stats.GradNorm} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ErrNonFinite
		}
	}

	t.Iteration++
	step := t.Roller.GlobalStep
	elapsed := time.Since(t.start)
	it := &IterationStats{
		Iteration:  t.Iteration,
		GlobalStep: step,
		ValueLoss:  stats.ValueLoss,
		PolicyLoss: stats.PolicyLoss,
		Entropy:    stats.Entropy,
		ApproxKL:   stats.ApproxKL,
		ClipFrac:   stats.ClipFrac,
		SPS:        float64(step) / math.Max(elapsed.Seconds(), 1e-9),
		Elapsed:    elapsed,
		Episodes:   len(t.episodes),
	}
	if len(t.episodes) > 0 {
		it.MeanReward = stat.Mean(t.episodes, nil)
	}
	if err := t.record(it); err != nil {
		return err
	}
	t.Logger.LogIteration(it)

	if ckpt.ShouldSave(t.Iteration, cfg.NumIterations(), step, cfg.SaveFreq, cfg.BatchSize()) {
		if _, err := t.Store.Save(t.Model, step); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trainer) record(it *IterationStats) error {
	scalars := []struct {
		tag   string
		value float64
	}{
		{TagValueLoss, it.ValueLoss},
		{TagPolicyLoss, it.PolicyLoss},
		{TagEntropyLoss, it.Entropy},
		{TagApproxKL, it.ApproxKL},
		{TagClipFracs, it.ClipFrac},
		{TagSPS, it.SPS},
	}
	for _, s := range scalars {
		if err := t.Metrics.AddScalar(s.tag, it.GlobalStep, s.value); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trainer) onEpisode(e gridrl.Episode) {
	t.episodes = append(t.episodes, e.Reward)
	t.Logger.LogEpisode(e)
	if t.episodeErr != nil {
		return
	}
	if err := t.Metrics.AddScalar(TagTotalReward, e.GlobalStep, e.Reward); err != nil {
		t.episodeErr = err
		return
	}
	if err := t.Metrics.AddScalar(TagTotalLength, e.GlobalStep, float64(e.Length)); err != nil {
		t.episodeErr = err
	}
}

// NewLogger creates the StandardLogger used for training
// runs.
func NewLogger(logger zerolog.Logger) *StandardLogger {
	return &StandardLogger{Logger: logger, Episode: true, Iteration: true}
}
