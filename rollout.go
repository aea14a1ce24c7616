package gridrl

// A Rollout is a fixed-size record of NumSteps
// consecutive steps in NumEnvs environments.
//
// Per-step data is stored in flat slices indexed by
// Index(t, e).
// The entry (t, e) describes the action taken by
// environment e at time t, the observation it was taken
// in, whether that observation started a new episode,
// and the reward received right after the action.
//
// A Rollout is meant to be refilled in place every
// training iteration.
type Rollout struct {
	NumSteps int
	NumEnvs  int
	ObsSize  int

	// Obs stores ObsSize components per entry.
	Obs []float64

	Actions  []int
	LogProbs []float64
	Rewards  []float64
	Values   []float64

	// Dones[Index(t, e)] is the done flag carried into
	// step t, i.e. whether step t-1 ended an episode.
	Dones []bool

	// NextObs and NextDone describe the state right after
	// the last recorded step, one entry per environment.
	NextObs  []float64
	NextDone []bool
}

// NewRollout allocates a Rollout.
func NewRollout(numSteps, numEnvs, obsSize int) *Rollout {
	n := numSteps * numEnvs
	return &Rollout{
		NumSteps: numSteps,
		NumEnvs:  numEnvs,
		ObsSize:  obsSize,

		Obs:      make([]float64, n*obsSize),
		Actions:  make([]int, n),
		LogProbs: make([]float64, n),
		Rewards:  make([]float64, n),
		Values:   make([]float64, n),
		Dones:    make([]bool, n),

		NextObs:  make([]float64, numEnvs*obsSize),
		NextDone: make([]bool, numEnvs),
	}
}

// Index returns the flat index of entry (t, e).
//
// Flat indices also address the rollout as one batch of
// NumSteps*NumEnvs samples.
func (r *Rollout) Index(t, e int) int {
	return t*r.NumEnvs + e
}

// BatchSize returns NumSteps*NumEnvs.
func (r *Rollout) BatchSize() int {
	return r.NumSteps * r.NumEnvs
}

// ObsAt returns the observation of a flat index.
// The result aliases the rollout's storage.
func (r *Rollout) ObsAt(idx int) []float64 {
	return r.Obs[idx*r.ObsSize : (idx+1)*r.ObsSize]
}

// StepObs returns the observations of every environment
// at time t.
// The result aliases the rollout's storage.
func (r *Rollout) StepObs(t int) []float64 {
	size := r.NumEnvs * r.ObsSize
	return r.Obs[t*size : (t+1)*size]
}

// Gather collects the observations, actions, and old log
// probabilities of a set of flat indices.
func (r *Rollout) Gather(indices []int) (obs []float64, actions []int,
	logProbs []float64) {
	obs = make([]float64, 0, len(indices)*r.ObsSize)
	actions = make([]int, len(indices))
	logProbs = make([]float64, len(indices))
	for i, idx := range indices {
		obs = append(obs, r.ObsAt(idx)...)
		actions[i] = r.Actions[idx]
		logProbs[i] = r.LogProbs[idx]
	}
	return
}
