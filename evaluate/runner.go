// Package evaluate runs a trained agent while picking up
// new checkpoints as training produces them.
package evaluate

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/unixpickle/essentials"
	"github.com/wty-yy/gridrl"
	"github.com/wty-yy/gridrl/ckpt"
)

// Default timings.
const (
	DefaultInterval  = 10 * time.Second
	DefaultStepDelay = 50 * time.Millisecond
)

// Mode determines how actions are selected.
type Mode int

const (
	// Sample draws actions from the policy distribution.
	Sample Mode = iota

	// Greedy takes the most likely action.
	Greedy
)

func (m Mode) String() string {
	if m == Greedy {
		return "greedy"
	}
	return "sample"
}

// A Renderer can draw itself as text.
type Renderer interface {
	Render(w io.Writer) error
}

// A Runner plays episodes with an agent and hot-swaps its
// parameters whenever a newer checkpoint appears in Dir.
//
// Reloading never interrupts the current episode; the new
// parameters take effect on the next action.
type Runner struct {
	Env   gridrl.Env
	Agent *gridrl.Agent
	Mode  Mode

	// Dir is the run directory to watch.
	Dir string

	// Current is the path of the loaded checkpoint.
	Current string

	// Interval is the minimum time between checkpoint
	// polls.
	// If 0, DefaultInterval is used.
	Interval time.Duration

	// StepDelay is slept after every step by Run.
	StepDelay time.Duration

	// Now is the clock used for polling.
	// If nil, time.Now is used.
	Now func() time.Time

	Logger zerolog.Logger

	// Render, if non-nil, receives a drawing of Env after
	// every step, provided Env is a Renderer.
	Render io.Writer

	obs      []float64
	lastPoll time.Time
	polled   bool
	episodes int
	reward   float64
	length   int
}

// Run steps the environment until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := r.Step(); err != nil {
			return err
		}
		if r.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.StepDelay):
			}
		}
	}
}

// Step takes one action, resetting the environment at the
// end of an episode, and then checks for a new checkpoint
// if the poll interval has elapsed.
func (r *Runner) Step() (err error) {
	defer essentials.AddCtxTo("evaluation step", &err)
	if r.obs == nil {
		if r.obs, err = r.Env.Reset(); err != nil {
			return err
		}
	}
	action := r.Agent.Select(r.obs, r.Mode == Greedy)
	obs, reward, done, err := r.Env.Step(action)
	if err != nil {
		return err
	}
	r.reward += reward
	r.length++
	if err := r.render(); err != nil {
		return err
	}
	if done {
		r.episodes++
		r.Logger.Info().Int("episode", r.episodes).Float64("reward", r.reward).
			Int("length", r.length).Str("checkpoint", r.Current).Msg("episode")
		r.reward, r.length = 0, 0
		if obs, err = r.Env.Reset(); err != nil {
			return err
		}
	}
	r.obs = obs
	return r.poll()
}

// Episodes returns the number of finished episodes.
func (r *Runner) Episodes() int {
	return r.episodes
}

// poll loads the newest checkpoint if the interval has
// elapsed and the newest path differs from Current.
func (r *Runner) poll() error {
	now := r.now()
	if r.polled && now.Sub(r.lastPoll) < r.interval() {
		return nil
	}
	r.polled = true
	r.lastPoll = now

	path, err := ckpt.Latest(r.Logger, r.Dir)
	if err != nil {
		return err
	}
	if path == "" || path == r.Current {
		return nil
	}
	model, err := ckpt.Load(path)
	if err != nil {
		return err
	}
	if err := gridrl.CopyParams(r.Agent.Model, model); err != nil {
		return essentials.AddCtx("reload "+path, err)
	}
	r.Logger.Info().Str("checkpoint", path).Msg("loaded checkpoint")
	r.Current = path
	return nil
}

func (r *Runner) render() error {
	if r.Render == nil {
		return nil
	}
	if renderer, ok := r.Env.(Renderer); ok {
		return renderer.Render(r.Render)
	}
	return nil
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Runner) interval() time.Duration {
	if r.Interval == 0 {
		return DefaultInterval
	}
	return r.Interval
}
