package gridrl

import (
	"reflect"
	"testing"
)

func TestRolloutLayout(t *testing.T) {
	r := NewRollout(3, 2, 2)
	if r.BatchSize() != 6 || len(r.Obs) != 12 || len(r.NextObs) != 4 {
		t.Fatalf("bad sizes: batch %d obs %d next %d", r.BatchSize(), len(r.Obs),
			len(r.NextObs))
	}
	for i := range r.Obs {
		r.Obs[i] = float64(i)
	}
	for i := range r.Actions {
		r.Actions[i] = i
		r.LogProbs[i] = -float64(i)
	}

	if idx := r.Index(2, 1); idx != 5 {
		t.Errorf("expected index 5 but got %d", idx)
	}
	if obs := r.ObsAt(r.Index(1, 0)); !reflect.DeepEqual(obs, []float64{4, 5}) {
		t.Errorf("unexpected obs %v", obs)
	}
	if obs := r.StepObs(1); !reflect.DeepEqual(obs, []float64{4, 5, 6, 7}) {
		t.Errorf("unexpected step obs %v", obs)
	}

	obs, actions, logProbs := r.Gather([]int{5, 0})
	if !reflect.DeepEqual(obs, []float64{10, 11, 0, 1}) {
		t.Errorf("unexpected gathered obs %v", obs)
	}
	if !reflect.DeepEqual(actions, []int{5, 0}) {
		t.Errorf("unexpected gathered actions %v", actions)
	}
	if !reflect.DeepEqual(logProbs, []float64{-5, 0}) {
		t.Errorf("unexpected gathered log probs %v", logProbs)
	}
}
