// Package vaeseq provides the base abstractions for
// sequential variational autoencoders: context streams
// that produce per-step conditioning signals, an
// observation codec, and a core that scores observed
// sequences or generates new ones by driving a recurrent
// cell.
package vaeseq

import (
	"errors"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// A Model is the variant-specific part of a sequential
// VAE: its per-step cells and its posterior inference
// strategy.
type Model interface {
	// LogProbs returns a cell which consumes rows of
	// zipped (context, observation) columns and emits one
	// log-probability per row.
	//
	// The cell's states must be vector-backed so that a
	// recorded latent trajectory can be replayed through
	// it.
	LogProbs() anyrnn.Block

	// Samples returns a cell which consumes context rows
	// and emits sampled observation rows.
	//
	// The cell's states must be vector-backed so that the
	// latent trajectory can be recorded.
	Samples() anyrnn.Block

	// Start returns the latent start state for a batch of
	// n sequences.
	Start(n int) anyrnn.State

	// LatentSize is the number of components in one latent
	// state row.
	LatentSize() int

	// InferLatents approximates the posterior over the
	// latent trajectory behind the observed sequences,
	// returning the latents and the total divergence from
	// the prior.
	InferLatents(contexts, observed anyseq.Seq) (anyseq.Seq, anydiff.Res)
}

// A VAE orchestrates a context stream, a latent model,
// and an observation codec.
//
// The VAE does not own the collaborators it is given;
// they are injected at construction and may be shared.
type VAE struct {
	HParams *HParams
	Encoder anynet.Layer
	Decoder Decoder
	Model   Model
}

// NewVAE creates a VAE from its collaborators.
func NewVAE(hparams *HParams, encoder anynet.Layer, decoder Decoder,
	model Model) *VAE {
	return &VAE{
		HParams: hparams,
		Encoder: encoder,
		Decoder: decoder,
		Model:   model,
	}
}

// Creator returns the numeric backend, as determined by
// the decoder.
func (v *VAE) Creator() anyvec.Creator {
	return v.Decoder.Creator()
}

// EventSize returns the decoder's observation size.
func (v *VAE) EventSize() int {
	return v.Decoder.EventSize()
}

// Dist builds the observation distribution for a batch of
// decoder parameter rows.
func (v *VAE) Dist(params anydiff.Res, n int) Dist {
	return v.Decoder.Dist(params, n)
}

// Start returns the model's latent start state for a
// batch of n sequences.
func (v *VAE) Start(n int) anyrnn.State {
	return v.Model.Start(n)
}

// InferLatents approximates the posterior over the latent
// trajectory behind the observed sequences.
func (v *VAE) InferLatents(contexts, observed anyseq.Seq) (anyseq.Seq,
	anydiff.Res) {
	return v.Model.InferLatents(contexts, observed)
}

// EvalOptions configures Evaluate.
//
// The zero value requests a single fresh-state run.
type EvalOptions struct {
	// Latents conditions the evaluation on a precomputed
	// latent trajectory instead of freshly drawn latents.
	Latents anyseq.Seq

	// InitState overrides the model's start state.
	// Mutually exclusive with Latents.
	InitState anyrnn.State

	// Samples is the number of independent runs to average
	// over.
	// Zero means one.
	Samples int
}

// Evaluate scores the observed sequences under the model,
// producing one log-probability row per timestep.
//
// The contexts and observed sequences must have the same
// length and present maps.
// Shape mismatches beyond the Latents/InitState exclusion
// are not validated here; they surface as failures from
// the sequence plumbing.
func (v *VAE) Evaluate(contexts, observed anyseq.Seq,
	opts *EvalOptions) (anyseq.Seq, error) {
	if opts == nil {
		opts = &EvalOptions{}
	}
	if opts.Latents != nil && opts.InitState != nil {
		return nil, errors.New("evaluate: latents and initial state are " +
			"mutually exclusive")
	}

	cell := v.Model.LogProbs()
	inputs := zipSeqs(contexts, observed)
	if opts.Latents != nil {
		inputs = zipSeqs(inputs, opts.Latents)
		cell = &replayBlock{Block: cell, LatentSize: v.Model.LatentSize()}
	}

	makeStart := func() anyrnn.State {
		if opts.InitState != nil {
			return opts.InitState
		}
		return v.Start(seqBatchSize(observed))
	}

	samples := opts.Samples
	if samples == 0 {
		samples = 1
	}
	return averageRuns(samples, cell, inputs, makeStart), nil
}

// averageRuns executes the recurrent computation numRuns
// times and averages the results elementwise.
//
// Each run resolves a fresh start state via makeStart, so
// runs with stochastic start states stay independent.
// A single run returns the raw result with no averaging
// overhead.
func averageRuns(numRuns int, cell anyrnn.Block, inputs anyseq.Seq,
	makeStart func() anyrnn.State) anyseq.Seq {
	if numRuns < 1 {
		panic("invalid run count")
	}
	run := func() anyseq.Seq {
		return runRNN(cell, inputs, makeStart())
	}
	if numRuns == 1 {
		return run()
	}
	runs := make([]anyseq.Seq, numRuns)
	for i := range runs {
		runs[i] = run()
	}
	return meanSeqs(runs)
}
