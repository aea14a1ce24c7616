package gridrl

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

// constModel produces the same logits and value for
// every observation.
type constModel struct {
	Logits []float64
	Value  float64
}

func (c *constModel) Apply(obs anydiff.Res, batch int) (logits, values anydiff.Res) {
	cr := obs.Output().Creator()
	var logitData, valueData []float64
	for i := 0; i < batch; i++ {
		logitData = append(logitData, c.Logits...)
		valueData = append(valueData, c.Value)
	}
	return anydiff.NewConst(MakeVector(cr, logitData)),
		anydiff.NewConst(MakeVector(cr, valueData))
}

func (c *constModel) Parameters() []*anydiff.Var {
	return nil
}

func (c *constModel) SerializerType() string {
	return "github.com/wty-yy/gridrl.constModel"
}

func (c *constModel) Serialize() ([]byte, error) {
	return []byte{}, nil
}

func testAgent(m Model) *Agent {
	return &Agent{
		Model:   m,
		Creator: anyvec64.DefaultCreator{},
		Rand:    rand.New(rand.NewSource(42)),
	}
}

func TestRollerRollout(t *testing.T) {
	const numEnvs, numSteps, epLen = 4, 8, 3

	var envs []Env
	for i := 0; i < numEnvs; i++ {
		envs = append(envs, newSeqEnv(int64(i), epLen))
	}
	vec, err := NewVecEnv(envs...)
	if err != nil {
		t.Fatal(err)
	}

	var episodes []Episode
	roller := &Roller{
		Agent: testAgent(&constModel{Logits: []float64{-100, -100, 100}, Value: 0.5}),
		Env:   vec,
		OnEpisode: func(e Episode) {
			episodes = append(episodes, e)
		},
	}
	r := NewRollout(numSteps, numEnvs, 2)
	if err := roller.Rollout(r); err != nil {
		t.Fatal(err)
	}

	if roller.GlobalStep != numEnvs*numSteps {
		t.Errorf("expected global step %d but got %d", numEnvs*numSteps,
			roller.GlobalStep)
	}
	for _, n := range []int{len(r.Actions), len(r.LogProbs), len(r.Rewards),
		len(r.Dones), len(r.Values), len(r.Obs) / r.ObsSize} {
		if n != numSteps*numEnvs {
			t.Errorf("expected %d entries but got %d", numSteps*numEnvs, n)
		}
	}

	for step := 0; step < numSteps; step++ {
		for e := 0; e < numEnvs; e++ {
			idx := r.Index(step, e)
			episodeStep := step % epLen
			if r.ObsAt(idx)[1] != float64(episodeStep) {
				t.Errorf("(%d, %d): observation from episode step %v, expected %d",
					step, e, r.ObsAt(idx)[1], episodeStep)
			}
			if r.Dones[idx] != (step > 0 && episodeStep == 0) {
				t.Errorf("(%d, %d): unexpected done flag %v", step, e, r.Dones[idx])
			}
			if r.Actions[idx] != 2 || r.Rewards[idx] != 2 {
				t.Errorf("(%d, %d): action %d reward %f", step, e, r.Actions[idx],
					r.Rewards[idx])
			}
			if math.Abs(r.LogProbs[idx]) > 1e-6 || r.Values[idx] != 0.5 {
				t.Errorf("(%d, %d): logprob %f value %f", step, e, r.LogProbs[idx],
					r.Values[idx])
			}
		}
	}
	for e := 0; e < numEnvs; e++ {
		if r.NextDone[e] || r.NextObs[e*2+1] != float64(numSteps%epLen) {
			t.Errorf("env %d: bad bootstrap state %v %v", e, r.NextDone[e],
				r.NextObs[e*2:(e+1)*2])
		}
	}

	if len(episodes) != numEnvs*(numSteps/epLen) {
		t.Fatalf("expected %d episodes but got %d", numEnvs*(numSteps/epLen),
			len(episodes))
	}
	for _, ep := range episodes {
		if ep.Length != epLen || ep.Reward != 2*epLen {
			t.Errorf("unexpected episode %+v", ep)
		}
		if ep.GlobalStep != numEnvs*epLen && ep.GlobalStep != numEnvs*2*epLen {
			t.Errorf("unexpected global step in %+v", ep)
		}
	}

	// The next rollout continues where the last one ended.
	if err := roller.Rollout(r); err != nil {
		t.Fatal(err)
	}
	if !r.Dones[r.Index(1, 0)] || r.ObsAt(r.Index(0, 0))[1] != 2 {
		t.Error("second rollout did not continue the environment stream")
	}
}

func TestAgentAct(t *testing.T) {
	agent := testAgent(&constModel{Logits: []float64{0, 0, 0, 0}, Value: -1})
	res := agent.Act(make([]float64, 6), 3)
	for i := 0; i < 3; i++ {
		if math.Abs(res.LogProbs[i]-math.Log(0.25)) > 1e-9 {
			t.Errorf("bad log prob: %f", res.LogProbs[i])
		}
		if math.Abs(res.Entropies[i]-math.Log(4)) > 1e-9 {
			t.Errorf("bad entropy: %f", res.Entropies[i])
		}
		if res.Values[i] != -1 {
			t.Errorf("bad value: %f", res.Values[i])
		}
		if res.Actions[i] < 0 || res.Actions[i] >= 4 {
			t.Errorf("bad action: %d", res.Actions[i])
		}
	}
}

func TestMLP(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	m := NewMLP(c, 5, 8, 4)
	obs := c.MakeVector(15)
	anyvec.Rand(obs, anyvec.Normal, nil)
	logits, values := m.Apply(anydiff.NewConst(obs), 3)
	if logits.Output().Len() != 12 || values.Output().Len() != 3 {
		t.Fatalf("bad output sizes: %d %d", logits.Output().Len(),
			values.Output().Len())
	}
	for _, x := range Float64s(logits.Output()) {
		if x != 0 {
			t.Fatal("initial logits should be zero")
		}
	}
}

func TestCopyParams(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	src := NewMLP(c, 5, 8, 4)
	dst := NewMLP(c, 5, 8, 4)
	for _, p := range src.Parameters() {
		anyvec.Rand(p.Vector, anyvec.Normal, nil)
	}
	if err := CopyParams(dst, src); err != nil {
		t.Fatal(err)
	}
	obs := c.MakeVector(5)
	anyvec.Rand(obs, anyvec.Normal, nil)
	srcLogits, srcValues := src.Apply(anydiff.NewConst(obs), 1)
	dstLogits, dstValues := dst.Apply(anydiff.NewConst(obs), 1)
	assertSimilar(t, dstLogits.Output(), srcLogits.Output(), 1e-12)
	assertSimilar(t, dstValues.Output(), srcValues.Output(), 1e-12)

	if err := CopyParams(NewMLP(c, 5, 7, 4), src); err == nil {
		t.Error("expected error for mismatched architectures")
	}
}
