package train

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/wty-yy/gridrl"
)

// A Logger logs status messages which are produced during
// training.
type Logger interface {
	LogEpisode(e gridrl.Episode)
	LogIteration(s *IterationStats)
}

// IterationStats summarizes one rollout/update cycle.
type IterationStats struct {
	Iteration  int
	GlobalStep int

	ValueLoss  float64
	PolicyLoss float64
	Entropy    float64
	ApproxKL   float64
	ClipFrac   float64

	// SPS is the number of environment steps per second
	// since training started.
	SPS float64

	// Elapsed is the time since training started.
	Elapsed time.Duration

	// MeanReward is the mean reward of the episodes which
	// finished during the iteration, or 0 if none did.
	MeanReward float64
	Episodes   int
}

// StandardLogger is a Logger which writes to a zerolog
// Logger.
//
// A Field of name <N> controls whether or not the Log<N>
// method does anything.
type StandardLogger struct {
	Logger zerolog.Logger

	Episode   bool
	Iteration bool
}

// LogEpisode logs the result of an episode.
func (s *StandardLogger) LogEpisode(e gridrl.Episode) {
	if s.Episode {
		s.Logger.Debug().Int("env", e.Env).Int("global_step", e.GlobalStep).
			Float64("reward", e.Reward).Int("length", e.Length).Msg("episode")
	}
}

// LogIteration logs the losses and throughput of an
// iteration.
func (s *StandardLogger) LogIteration(st *IterationStats) {
	if s.Iteration {
		s.Logger.Info().
			Int("iteration", st.Iteration).
			Int("global_step", st.GlobalStep).
			Float64("vloss", st.ValueLoss).
			Float64("ploss", st.PolicyLoss).
			Float64("entropy", st.Entropy).
			Float64("approx_kl", st.ApproxKL).
			Float64("clipfrac", st.ClipFrac).
			Int("SPS", int(st.SPS)).
			Dur("duration", st.Elapsed).
			Int("episodes", st.Episodes).
			Float64("mean_reward", st.MeanReward).
			Msg("iteration")
	}
}
