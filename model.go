package gridrl

import (
	"fmt"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var m MLP
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeMLP)
}

// A Model is a policy and value function over batches of
// observation vectors.
//
// A Model must be serializable so that it can be stored
// in checkpoints.
type Model interface {
	serializer.Serializer

	// Apply produces, for a batch of observations, one row
	// of action logits and one value estimate per entry.
	Apply(obs anydiff.Res, batch int) (logits, values anydiff.Res)

	// Parameters returns the trainable parameters.
	// The order must be the same for every Model with the
	// same architecture.
	Parameters() []*anydiff.Var
}

// MLP is a Model with separate fully-connected actor and
// critic networks.
type MLP struct {
	Actor  anynet.Net
	Critic anynet.Net
}

// NewMLP creates an MLP with two hidden layers of the
// given size in each network.
//
// The actor's output layer starts at zero so that the
// initial policy is uniform.
func NewMLP(c anyvec.Creator, obsSize, hidden, numActions int) *MLP {
	return &MLP{
		Actor: anynet.Net{
			anynet.NewFC(c, obsSize, hidden),
			anynet.Tanh,
			anynet.NewFC(c, hidden, hidden),
			anynet.Tanh,
			anynet.NewFCZero(c, hidden, numActions),
		},
		Critic: anynet.Net{
			anynet.NewFC(c, obsSize, hidden),
			anynet.Tanh,
			anynet.NewFC(c, hidden, hidden),
			anynet.Tanh,
			anynet.NewFC(c, hidden, 1),
		},
	}
}

// DeserializeMLP deserializes an MLP.
func DeserializeMLP(d []byte) (*MLP, error) {
	var res MLP
	if err := serializer.DeserializeAny(d, &res.Actor, &res.Critic); err != nil {
		return nil, essentials.AddCtx("deserialize MLP", err)
	}
	return &res, nil
}

// Apply applies the actor and the critic.
func (m *MLP) Apply(obs anydiff.Res, batch int) (logits, values anydiff.Res) {
	return m.Actor.Apply(obs, batch), m.Critic.Apply(obs, batch)
}

// Parameters returns the actor's parameters followed by
// the critic's.
func (m *MLP) Parameters() []*anydiff.Var {
	return anynet.AllParameters(m.Actor, m.Critic)
}

// SerializerType returns the unique ID used to serialize
// an MLP with the serializer package.
func (m *MLP) SerializerType() string {
	return "github.com/wty-yy/gridrl.MLP"
}

// Serialize serializes the MLP.
func (m *MLP) Serialize() ([]byte, error) {
	return serializer.SerializeAny(m.Actor, m.Critic)
}

// CopyParams overwrites the parameters of dst with those
// of src.
//
// Both models must have the same architecture.
func CopyParams(dst, src Model) error {
	dstParams, srcParams := dst.Parameters(), src.Parameters()
	if len(dstParams) != len(srcParams) {
		return fmt.Errorf("copy params: expected %d parameters but got %d",
			len(dstParams), len(srcParams))
	}
	for i, p := range srcParams {
		if p.Vector.Len() != dstParams[i].Vector.Len() {
			return fmt.Errorf("copy params: parameter %d has size %d, expected %d",
				i, p.Vector.Len(), dstParams[i].Vector.Len())
		}
	}
	for i, p := range srcParams {
		dstParams[i].Vector.Set(p.Vector)
	}
	return nil
}

// An Agent pairs a Model with the Softmax action space.
type Agent struct {
	Model   Model
	Creator anyvec.Creator

	// Rand is used to sample actions.
	Rand *rand.Rand
}

// ActResult stores the outputs of Agent.Act, one entry
// per batch element.
type ActResult struct {
	Actions   []int
	LogProbs  []float64
	Entropies []float64
	Values    []float64
}

// Act samples actions for a batch of observations.
//
// The results are plain numbers; nothing is recorded for
// back-propagation.
func (a *Agent) Act(obs []float64, batch int) *ActResult {
	logits, values := a.Model.Apply(a.constant(obs), batch)
	actions := Softmax{}.Sample(a.Rand, logits.Output(), batch)
	return &ActResult{
		Actions:   actions,
		LogProbs:  copyFloats(Softmax{}.LogProb(logits, actions, batch).Output()),
		Entropies: copyFloats(Softmax{}.Entropy(logits, batch).Output()),
		Values:    copyFloats(values.Output()),
	}
}

// Evaluate re-evaluates recorded actions.
//
// Unlike Act, the results can be back-propagated through
// to the Model's parameters.
func (a *Agent) Evaluate(obs []float64, actions []int,
	batch int) (logProbs, entropies, values anydiff.Res) {
	logits, values := a.Model.Apply(a.constant(obs), batch)
	return Softmax{}.LogProb(logits, actions, batch),
		Softmax{}.Entropy(logits, batch), values
}

// Value estimates the value of each observation.
func (a *Agent) Value(obs []float64, batch int) []float64 {
	_, values := a.Model.Apply(a.constant(obs), batch)
	return copyFloats(values.Output())
}

// Select picks an action for a single observation,
// either by sampling or by taking the most likely one.
func (a *Agent) Select(obs []float64, greedy bool) int {
	logits, _ := a.Model.Apply(a.constant(obs), 1)
	if greedy {
		return Softmax{}.Greedy(logits.Output(), 1)[0]
	}
	return Softmax{}.Sample(a.Rand, logits.Output(), 1)[0]
}

func (a *Agent) constant(data []float64) anydiff.Res {
	return anydiff.NewConst(MakeVector(a.Creator, data))
}

func copyFloats(vec anyvec.Vector) []float64 {
	return append([]float64(nil), Float64s(vec)...)
}
