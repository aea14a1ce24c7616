// Package ppo implements the Proximal Policy Optimization
// update for gridrl agents.
//
// See https://arxiv.org/abs/1707.06347.
package ppo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/wty-yy/gridrl"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultClipCoef = 0.2

	// normEpsilon keeps advantage normalization finite
	// when all advantages in a minibatch are equal.
	normEpsilon = 1e-18
)

// PPO performs clipped-surrogate policy updates on
// recorded rollouts.
type PPO struct {
	Agent *gridrl.Agent

	// Params specifies which parameters to update.
	Params []*anydiff.Var

	// Transformer is applied to every gradient before the
	// step, e.g. an *anysgd.Adam.
	//
	// If nil, vanilla gradient descent is used.
	Transformer anysgd.Transformer

	LearningRate float64

	// UpdateEpochs is the number of passes over each
	// rollout.
	UpdateEpochs int

	// MinibatchSize is the number of samples per gradient
	// step.
	// Samples which do not fill a whole minibatch are
	// skipped for that epoch.
	MinibatchSize int

	// NormAdv, if true, normalizes the advantages of each
	// minibatch to mean 0 and standard deviation 1.
	NormAdv bool

	// ClipCoef is the amount by which the probability
	// ratio may change.
	//
	// If 0, DefaultClipCoef is used.
	ClipCoef float64

	// EntCoef scales the entropy bonus.
	EntCoef float64

	// VFCoef scales the value function loss.
	VFCoef float64

	// MaxGradNorm is the largest allowed global gradient
	// norm.
	//
	// If 0, gradients are not clipped.
	MaxGradNorm float64

	// Rand is used to shuffle samples each epoch.
	Rand *rand.Rand
}

// Stats summarizes an Update.
//
// The losses are those of the last minibatch, while
// ApproxKL and ClipFrac are averaged over every minibatch.
type Stats struct {
	PolicyLoss float64
	ValueLoss  float64
	Entropy    float64
	ApproxKL   float64
	ClipFrac   float64
	GradNorm   float64

	Minibatches int
}

// Update trains the agent on a rollout, given the
// advantages and returns of every sample.
func (p *PPO) Update(r *gridrl.Rollout, advantages,
	returns []float64) (stats *Stats, err error) {
	defer essentials.AddCtxTo("PPO update", &err)
	batchSize := r.BatchSize()
	if len(advantages) != batchSize || len(returns) != batchSize {
		return nil, fmt.Errorf("expected %d advantages and returns but got %d and %d",
			batchSize, len(advantages), len(returns))
	}
	if p.MinibatchSize <= 0 || p.MinibatchSize > batchSize {
		return nil, fmt.Errorf("invalid minibatch size %d for batch of %d",
			p.MinibatchSize, batchSize)
	}
	if p.Rand == nil {
		return nil, errors.New("no random source")
	}

	stats = &Stats{}
	for epoch := 0; epoch < p.UpdateEpochs; epoch++ {
		for _, indices := range Minibatches(p.Rand.Perm(batchSize), p.MinibatchSize) {
			p.minibatch(r, indices, advantages, returns, stats)
		}
	}
	return stats, nil
}

// Minibatches cuts a permutation into contiguous slices
// of the given size.
//
// Trailing indices which do not fill a whole minibatch are
// dropped.
func Minibatches(perm []int, size int) [][]int {
	var res [][]int
	for i := 0; i+size <= len(perm); i += size {
		res = append(res, perm[i:i+size])
	}
	return res
}

func (p *PPO) minibatch(r *gridrl.Rollout, indices []int, advantages,
	returns []float64, stats *Stats) {
	c := p.Agent.Creator
	n := len(indices)
	obs, actions, oldLogProbs := r.Gather(indices)
	mbAdvantages := make([]float64, n)
	mbReturns := make([]float64, n)
	for i, idx := range indices {
		mbAdvantages[i] = advantages[idx]
		mbReturns[i] = returns[idx]
	}
	if p.NormAdv {
		normalize(mbAdvantages)
	}

	newLogProbs, entropies, values := p.Agent.Evaluate(obs, actions, n)
	logRatio := anydiff.Sub(newLogProbs, constant(c, oldLogProbs))
	ratio := anydiff.Exp(logRatio)

	stats.Minibatches++
	kl, clipFrac := p.diagnostics(gridrl.Float64s(logRatio.Output()),
		gridrl.Float64s(ratio.Output()))
	count := float64(stats.Minibatches)
	stats.ApproxKL += (kl - stats.ApproxKL) / count
	stats.ClipFrac += (clipFrac - stats.ClipFrac) / count

	meanScale := c.MakeNumeric(1 / float64(n))
	pgLoss := anydiff.Scale(
		anydiff.Sum(p.clippedObjective(ratio, constant(c, mbAdvantages))),
		c.MakeNumeric(-1/float64(n)),
	)
	vLoss := anydiff.Scale(
		anydiff.Sum(anydiff.Square(anydiff.Sub(values, constant(c, mbReturns)))),
		c.MakeNumeric(0.5/float64(n)),
	)
	entropy := anydiff.Scale(anydiff.Sum(entropies), meanScale)
	loss := anydiff.Add(
		anydiff.Sub(pgLoss, anydiff.Scale(entropy, c.MakeNumeric(p.EntCoef))),
		anydiff.Scale(vLoss, c.MakeNumeric(p.VFCoef)),
	)

	stats.PolicyLoss = scalar(pgLoss)
	stats.ValueLoss = scalar(vLoss)
	stats.Entropy = scalar(entropy)

	grad := anydiff.NewGrad(p.Params...)
	if len(grad) == 0 {
		return
	}
	loss.Propagate(gridrl.MakeVector(c, []float64{1}), grad)
	stats.GradNorm = clipGradNorm(grad, p.MaxGradNorm)
	if p.Transformer != nil {
		grad = p.Transformer.Transform(grad)
	}
	grad.Scale(c.MakeNumeric(-p.LearningRate))
	grad.AddToVars()
}

// clippedObjective computes the pessimistic surrogate
// min(ratio*adv, clip(ratio)*adv) for every sample.
func (p *PPO) clippedObjective(ratios, advantages anydiff.Res) anydiff.Res {
	epsilon := p.clipCoef()
	c := ratios.Output().Creator()
	return anydiff.Pool(ratios, func(ratios anydiff.Res) anydiff.Res {
		clipped := anydiff.ClipRange(ratios, c.MakeNumeric(1-epsilon),
			c.MakeNumeric(1+epsilon))
		return anydiff.ElemMin(
			anydiff.Mul(clipped, advantages),
			anydiff.Mul(ratios, advantages),
		)
	})
}

func (p *PPO) diagnostics(logRatios, ratios []float64) (kl, clipFrac float64) {
	epsilon := p.clipCoef()
	for i, ratio := range ratios {
		kl += (ratio - 1) - logRatios[i]
		if math.Abs(ratio-1) > epsilon {
			clipFrac++
		}
	}
	n := float64(len(ratios))
	return kl / n, clipFrac / n
}

func (p *PPO) clipCoef() float64 {
	if p.ClipCoef == 0 {
		return DefaultClipCoef
	}
	return p.ClipCoef
}

// clipGradNorm scales the gradient so that its global
// norm is at most maxNorm and returns the norm from
// before clipping.
func clipGradNorm(g anydiff.Grad, maxNorm float64) float64 {
	var sqSum float64
	var c anyvec.Creator
	for _, vec := range g {
		c = vec.Creator()
		for _, x := range gridrl.Float64s(vec) {
			sqSum += x * x
		}
	}
	norm := math.Sqrt(sqSum)
	if maxNorm > 0 && c != nil {
		if coef := maxNorm / (norm + 1e-6); coef < 1 {
			g.Scale(c.MakeNumeric(coef))
		}
	}
	return norm
}

// normalize adjusts the values to have mean 0 and
// standard deviation 1.
func normalize(vals []float64) {
	mean, std := stat.MeanStdDev(vals, nil)
	for i, x := range vals {
		vals[i] = (x - mean) / (std + normEpsilon)
	}
}

func constant(c anyvec.Creator, data []float64) anydiff.Res {
	return anydiff.NewConst(gridrl.MakeVector(c, data))
}

func scalar(r anydiff.Res) float64 {
	return gridrl.Float64s(r.Output())[0]
}
