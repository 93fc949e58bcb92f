package vaeseq

import (
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Dist is a parameterized per-row observation
// distribution.
type Dist interface {
	// LogProb returns one log-probability per batch row.
	LogProb(obs anydiff.Res, n int) anydiff.Res

	// Sample draws one observation row per batch entry.
	// It is not differentiable.
	// A nil gen uses the global random source.
	Sample(gen *rand.Rand) anyvec.Vector
}

// A Decoder maps per-step parameter rows to observation
// distributions.
type Decoder interface {
	// EventSize is the number of components in one
	// observation row.
	EventSize() int

	// Creator is the numeric backend observations use.
	Creator() anyvec.Creator

	// Dist builds the distribution for a batch of n
	// parameter rows.
	Dist(params anydiff.Res, n int) Dist
}

// DiagNormal decodes rows of (mean, log-stddev) pairs
// into diagonal Gaussian observation distributions.
type DiagNormal struct {
	creator anyvec.Creator
	size    int
}

// NewDiagNormal creates a DiagNormal decoder for
// observations of the given size.
// Parameter rows are the means followed by the
// log-stddevs, 2*size components total.
func NewDiagNormal(c anyvec.Creator, size int) *DiagNormal {
	return &DiagNormal{creator: c, size: size}
}

// EventSize returns the observation size.
func (d *DiagNormal) EventSize() int {
	return d.size
}

// Creator returns the numeric backend.
func (d *DiagNormal) Creator() anyvec.Creator {
	return d.creator
}

// Dist builds the Gaussians for a batch of parameter
// rows.
func (d *DiagNormal) Dist(params anydiff.Res, n int) Dist {
	return &diagNormalDist{dec: d, params: params, n: n}
}

type diagNormalDist struct {
	dec    *DiagNormal
	params anydiff.Res
	n      int
}

func (d *diagNormalDist) LogProb(obs anydiff.Res, n int) anydiff.Res {
	c := d.dec.creator
	size := d.dec.size
	mean := sliceCols(d.params, n, 2*size, 0, size)
	logStd := sliceCols(d.params, n, 2*size, size, 2*size)

	diff := anydiff.Sub(obs, mean)
	invVar := anydiff.Exp(anydiff.Scale(logStd, c.MakeNumeric(-2)))
	sq := anydiff.Mul(anydiff.Mul(diff, diff), invVar)
	inner := anydiff.Add(logStd, anydiff.Scale(sq, c.MakeNumeric(0.5)))
	perComp := anydiff.AddScalar(anydiff.Scale(inner, c.MakeNumeric(-1)),
		c.MakeNumeric(-0.5*math.Log(2*math.Pi)))
	return anydiff.SumCols(&anydiff.Matrix{
		Data: perComp,
		Rows: n,
		Cols: size,
	})
}

func (d *diagNormalDist) Sample(gen *rand.Rand) anyvec.Vector {
	size := d.dec.size
	params := vectorValues(d.params.Output())
	out := make([]float64, d.n*size)
	for lane := 0; lane < d.n; lane++ {
		row := params[lane*2*size : (lane+1)*2*size]
		for i := 0; i < size; i++ {
			noise := normFloat(gen)
			out[lane*size+i] = row[i] + math.Exp(row[size+i])*noise
		}
	}
	c := d.dec.creator
	return c.MakeVectorData(c.MakeNumericList(out))
}

// Bernoulli decodes rows of logits into independent
// binary observation distributions.
type Bernoulli struct {
	creator anyvec.Creator
	size    int
}

// NewBernoulli creates a Bernoulli decoder for
// observations of the given size.
// Parameter rows are size logits.
func NewBernoulli(c anyvec.Creator, size int) *Bernoulli {
	return &Bernoulli{creator: c, size: size}
}

// EventSize returns the observation size.
func (b *Bernoulli) EventSize() int {
	return b.size
}

// Creator returns the numeric backend.
func (b *Bernoulli) Creator() anyvec.Creator {
	return b.creator
}

// Dist builds the distributions for a batch of logit
// rows.
func (b *Bernoulli) Dist(params anydiff.Res, n int) Dist {
	return &bernoulliDist{dec: b, params: params, n: n}
}

type bernoulliDist struct {
	dec    *Bernoulli
	params anydiff.Res
	n      int
}

func (b *bernoulliDist) LogProb(obs anydiff.Res, n int) anydiff.Res {
	c := b.dec.creator
	softplus := anydiff.Scale(anydiff.LogSigmoid(
		anydiff.Scale(b.params, c.MakeNumeric(-1))), c.MakeNumeric(-1))
	perComp := anydiff.Sub(anydiff.Mul(obs, b.params), softplus)
	return anydiff.SumCols(&anydiff.Matrix{
		Data: perComp,
		Rows: n,
		Cols: b.dec.size,
	})
}

func (b *bernoulliDist) Sample(gen *rand.Rand) anyvec.Vector {
	logits := vectorValues(b.params.Output())
	out := make([]float64, len(logits))
	for i, z := range logits {
		prob := 1 / (1 + math.Exp(-z))
		if uniformFloat(gen) < prob {
			out[i] = 1
		}
	}
	c := b.dec.creator
	return c.MakeVectorData(c.MakeNumericList(out))
}

func normFloat(gen *rand.Rand) float64 {
	if gen == nil {
		return rand.NormFloat64()
	}
	return gen.NormFloat64()
}

func uniformFloat(gen *rand.Rand) float64 {
	if gen == nil {
		return rand.Float64()
	}
	return gen.Float64()
}
