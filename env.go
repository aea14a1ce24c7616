package gridrl

import (
	"errors"
	"fmt"

	"github.com/unixpickle/essentials"
	"golang.org/x/sync/errgroup"
)

// Env is an instance of a discrete-action environment.
type Env interface {
	Reset() (observation []float64, err error)
	Step(action int) (observation []float64, reward float64,
		done bool, err error)

	// Space returns the observation vector size and the
	// number of actions.
	// It must not change over the lifetime of the Env.
	Space() (obsSize, numActions int)
}

// StepResult is the outcome of resetting or stepping a
// single environment.
type StepResult struct {
	Observation []float64
	Reward      float64
	Done        bool
}

// VecEnv presents a set of independent environments as a
// single synchronous environment.
//
// Every call blocks until all of the environments have
// finished their part of the call.
// A VecEnv is not safe for concurrent use.
type VecEnv struct {
	envs []Env

	obsSize    int
	numActions int
}

// NewVecEnv creates a VecEnv from a non-empty set of
// environments which all share the same spaces.
func NewVecEnv(envs ...Env) (*VecEnv, error) {
	if len(envs) == 0 {
		return nil, errors.New("create VecEnv: no environments")
	}
	obsSize, numActions := envs[0].Space()
	for i, e := range envs[1:] {
		o, a := e.Space()
		if o != obsSize || a != numActions {
			return nil, fmt.Errorf("create VecEnv: env %d has space (%d, %d), "+
				"expected (%d, %d)", i+1, o, a, obsSize, numActions)
		}
	}
	return &VecEnv{envs: envs, obsSize: obsSize, numActions: numActions}, nil
}

// NumEnvs returns the number of environments.
func (v *VecEnv) NumEnvs() int {
	return len(v.envs)
}

// Space returns the shared observation size and action
// count.
func (v *VecEnv) Space() (obsSize, numActions int) {
	return v.obsSize, v.numActions
}

// Reset resets every environment.
func (v *VecEnv) Reset() (res []StepResult, err error) {
	defer essentials.AddCtxTo("reset VecEnv", &err)
	res = make([]StepResult, len(v.envs))
	err = v.parallel(func(i int, e Env) (err error) {
		res[i].Observation, err = e.Reset()
		return
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Step applies one action to each environment.
//
// An environment whose episode ends is reset right away.
// Its result holds the first observation of the next
// episode together with the reward and done flag of the
// transition that ended the previous one.
func (v *VecEnv) Step(actions []int) (res []StepResult, err error) {
	defer essentials.AddCtxTo("step VecEnv", &err)
	if len(actions) != len(v.envs) {
		return nil, fmt.Errorf("expected %d actions but got %d", len(v.envs),
			len(actions))
	}
	res = make([]StepResult, len(v.envs))
	err = v.parallel(func(i int, e Env) (err error) {
		r := &res[i]
		r.Observation, r.Reward, r.Done, err = e.Step(actions[i])
		if err == nil && r.Done {
			r.Observation, err = e.Reset()
		}
		return
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// parallel runs f on every environment at once and waits
// for all of them to finish.
func (v *VecEnv) parallel(f func(i int, e Env) error) error {
	var g errgroup.Group
	for i, e := range v.envs {
		i, e := i, e
		g.Go(func() error {
			if err := f(i, e); err != nil {
				return essentials.AddCtx(fmt.Sprintf("env %d", i), err)
			}
			return nil
		})
	}
	return g.Wait()
}
