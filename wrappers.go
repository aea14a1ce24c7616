package gridrl

// MaxStepsEnv wraps an Env and ends episodes early if
// they run longer than MaxSteps timesteps.
//
// A MaxSteps of 0 means no limit.
type MaxStepsEnv struct {
	Env
	MaxSteps int

	steps int
}

// Reset resets the environment.
func (m *MaxStepsEnv) Reset() ([]float64, error) {
	m.steps = 0
	return m.Env.Reset()
}

// Step takes a step in the environment.
func (m *MaxStepsEnv) Step(action int) ([]float64, float64, bool, error) {
	obs, rew, done, err := m.Env.Step(action)
	m.steps++
	if m.MaxSteps > 0 && m.steps >= m.MaxSteps {
		done = true
	}
	return obs, rew, done, err
}
