package gridrl

import (
	"fmt"

	"github.com/unixpickle/essentials"
)

// Episode summarizes a finished episode.
type Episode struct {
	Env    int
	Reward float64
	Length int

	// GlobalStep is the Roller's step count at the time
	// the episode ended.
	GlobalStep int
}

// A Roller runs an Agent in a VecEnv and records the
// results into Rollouts.
//
// Environment state carries over between calls to
// Rollout, so consecutive rollouts form one continuous
// stream of experience.
type Roller struct {
	Agent *Agent
	Env   *VecEnv

	// OnEpisode, if non-nil, is called whenever an
	// environment finishes an episode.
	OnEpisode func(e Episode)

	// GlobalStep counts environment steps across all
	// environments.
	GlobalStep int

	nextObs  []float64
	nextDone []bool

	rewardSums []float64
	lengths    []int
}

// Rollout fills dst with dst.NumSteps steps from every
// environment.
func (r *Roller) Rollout(dst *Rollout) (err error) {
	defer essentials.AddCtxTo("rollout", &err)

	numEnvs := r.Env.NumEnvs()
	obsSize, _ := r.Env.Space()
	if dst.NumEnvs != numEnvs || dst.ObsSize != obsSize {
		return fmt.Errorf("rollout shape (%d envs, obs %d) does not match "+
			"environment (%d envs, obs %d)", dst.NumEnvs, dst.ObsSize,
			numEnvs, obsSize)
	}
	if r.nextObs == nil {
		if err := r.reset(); err != nil {
			return err
		}
	}

	for t := 0; t < dst.NumSteps; t++ {
		r.GlobalStep += numEnvs
		copy(dst.StepObs(t), r.nextObs)
		copy(dst.Dones[dst.Index(t, 0):], r.nextDone)

		act := r.Agent.Act(r.nextObs, numEnvs)
		for e := 0; e < numEnvs; e++ {
			idx := dst.Index(t, e)
			dst.Actions[idx] = act.Actions[e]
			dst.LogProbs[idx] = act.LogProbs[e]
			dst.Values[idx] = act.Values[e]
		}

		results, err := r.Env.Step(act.Actions)
		if err != nil {
			return err
		}
		if err := r.record(results); err != nil {
			return err
		}
		for e, res := range results {
			dst.Rewards[dst.Index(t, e)] = res.Reward
		}
	}

	copy(dst.NextObs, r.nextObs)
	copy(dst.NextDone, r.nextDone)
	return nil
}

func (r *Roller) reset() error {
	results, err := r.Env.Reset()
	if err != nil {
		return err
	}
	numEnvs := len(results)
	obsSize, _ := r.Env.Space()
	r.nextObs = make([]float64, numEnvs*obsSize)
	r.nextDone = make([]bool, numEnvs)
	r.rewardSums = make([]float64, numEnvs)
	r.lengths = make([]int, numEnvs)
	return r.storeObs(results)
}

func (r *Roller) record(results []StepResult) error {
	if err := r.storeObs(results); err != nil {
		return err
	}
	for e, res := range results {
		r.nextDone[e] = res.Done
		r.rewardSums[e] += res.Reward
		r.lengths[e]++
		if res.Done {
			if r.OnEpisode != nil {
				r.OnEpisode(Episode{
					Env:        e,
					Reward:     r.rewardSums[e],
					Length:     r.lengths[e],
					GlobalStep: r.GlobalStep,
				})
			}
			r.rewardSums[e] = 0
			r.lengths[e] = 0
		}
	}
	return nil
}

func (r *Roller) storeObs(results []StepResult) error {
	obsSize, _ := r.Env.Space()
	for e, res := range results {
		if len(res.Observation) != obsSize {
			return fmt.Errorf("env %d: observation size %d, expected %d", e,
				len(res.Observation), obsSize)
		}
		copy(r.nextObs[e*obsSize:], res.Observation)
	}
	return nil
}
