package gridrl

import (
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// Softmax is a discrete action space which applies the
// softmax function to a row of logits per batch entry.
//
// Actions are represented by their indices.
type Softmax struct{}

// Sample draws one action per batch entry from the
// softmax distribution.
func (s Softmax) Sample(rng *rand.Rand, params anyvec.Vector, batch int) []int {
	chunkSize := chunkSize(params.Len(), batch)
	p := params.Copy()
	anyvec.LogSoftmax(p, chunkSize)
	anyvec.Exp(p)
	probs := Float64s(p)

	res := make([]int, batch)
	for i := range res {
		res[i] = sampleProbabilities(rng, probs[i*chunkSize:(i+1)*chunkSize])
	}
	return res
}

// Greedy selects the most likely action for each batch
// entry.
func (s Softmax) Greedy(params anyvec.Vector, batch int) []int {
	chunkSize := chunkSize(params.Len(), batch)
	res := make([]int, batch)
	for i := range res {
		res[i] = anyvec.MaxIndex(params.Slice(i*chunkSize, (i+1)*chunkSize))
	}
	return res
}

// LogProb computes the log probability of each action.
func (s Softmax) LogProb(params anydiff.Res, actions []int, batch int) anydiff.Res {
	if len(actions) != batch {
		panic("action count must match batch size")
	}
	chunkSize := chunkSize(params.Output().Len(), batch)
	oneHots := make([]float64, params.Output().Len())
	for i, a := range actions {
		oneHots[i*chunkSize+a] = 1
	}
	c := params.Output().Creator()
	logs := anydiff.LogSoftmax(params, chunkSize)
	return batchedDot(logs, anydiff.NewConst(MakeVector(c, oneHots)), batch)
}

// Entropy computes the entropy of each distribution in
// the batch.
func (s Softmax) Entropy(params anydiff.Res, batch int) anydiff.Res {
	chunkSize := chunkSize(params.Output().Len(), batch)
	logs := anydiff.LogSoftmax(params, chunkSize)
	return anydiff.Pool(logs, func(logs anydiff.Res) anydiff.Res {
		c := logs.Output().Creator()
		return anydiff.Scale(
			batchedDot(anydiff.Exp(logs), logs, batch),
			c.MakeNumeric(-1),
		)
	})
}

func batchedDot(vecs1, vecs2 anydiff.Res, batchSize int) anydiff.Res {
	products := anydiff.Mul(vecs1, vecs2)
	return anydiff.SumCols(&anydiff.Matrix{
		Data: products,
		Rows: batchSize,
		Cols: vecs1.Output().Len() / batchSize,
	})
}

func chunkSize(total, batch int) int {
	if batch <= 0 || total%batch != 0 {
		panic("batch size must divide parameter count")
	}
	return total / batch
}

func sampleProbabilities(rng *rand.Rand, probs []float64) int {
	randNum := rng.Float64()
	for i, x := range probs {
		randNum -= x
		if randNum < 0 {
			return i
		}
	}
	return len(probs) - 1
}
