package gridrl

import "fmt"

// GAE computes Generalized Advantage Estimates for a
// filled Rollout.
//
// nextValues holds the value estimates of r.NextObs and
// seeds the backward recursion, together with r.NextDone.
// The returns are the advantages plus r.Values.
//
// For more on GAE, see: https://arxiv.org/abs/1506.02438.
func GAE(r *Rollout, nextValues []float64, gamma,
	lambda float64) (advantages, returns []float64) {
	if len(nextValues) != r.NumEnvs {
		panic(fmt.Sprintf("expected %d bootstrap values but got %d", r.NumEnvs,
			len(nextValues)))
	}
	advantages = make([]float64, r.BatchSize())
	returns = make([]float64, r.BatchSize())
	for e := 0; e < r.NumEnvs; e++ {
		var lastAdvantage float64
		for t := r.NumSteps - 1; t >= 0; t-- {
			idx := r.Index(t, e)
			var nextNonTerminal, nextValue float64
			if t+1 < r.NumSteps {
				nextNonTerminal = nonTerminal(r.Dones[r.Index(t+1, e)])
				nextValue = r.Values[r.Index(t+1, e)]
			} else {
				nextNonTerminal = nonTerminal(r.NextDone[e])
				nextValue = nextValues[e]
			}
			delta := r.Rewards[idx] + gamma*nextValue*nextNonTerminal - r.Values[idx]
			lastAdvantage = delta + gamma*lambda*nextNonTerminal*lastAdvantage
			advantages[idx] = lastAdvantage
			returns[idx] = lastAdvantage + r.Values[idx]
		}
	}
	return
}

func nonTerminal(done bool) float64 {
	if done {
		return 0
	}
	return 1
}
