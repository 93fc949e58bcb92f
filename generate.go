package vaeseq

import (
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// An Input is an auxiliary conditioning source for
// Generate: either a raw per-lane value or a full context
// stream.
//
// Exactly one of the fields may be set.
type Input struct {
	// Raw is wrapped in a Constant context.
	Raw anyvec.Vector

	// Stream is used as-is.
	Stream Context
}

func (in *Input) context() Context {
	if in.Raw != nil && in.Stream != nil {
		panic("Input: Raw and Stream are mutually exclusive")
	}
	if in.Raw != nil {
		return NewConstant(in.Raw)
	}
	return in.Stream
}

// GenOptions configures Generate.
//
// The zero value generates a fresh batch using the
// hyperparameter defaults.
type GenOptions struct {
	// Inputs is an optional auxiliary conditioning source,
	// chained in front of the primary context.
	Inputs *Input

	// BatchSize and SequenceSize default to the
	// hyperparameter values when zero.
	//
	// A zero BatchSize is additionally refined from the
	// lane count of whichever initial state is computed
	// first, so callers whose states carry an implicit
	// batch size need not pass one.
	BatchSize    int
	SequenceSize int

	// InitState overrides the model's start state.
	InitState anyrnn.State

	// InputsInitState overrides the Inputs context's start
	// state.
	InputsInitState anyrnn.State

	// ContextInitState overrides the primary context's
	// start state.
	ContextInitState anyrnn.State
}

// Generate produces a synthetic observation sequence and
// the latent trajectory behind it, driven purely by the
// context stream.
//
// Shape mismatches between independently supplied initial
// states are not validated here; they surface as failures
// from the step loop.
func (v *VAE) Generate(ctx Context, opts *GenOptions) (obs, states Tape) {
	if opts == nil {
		opts = &GenOptions{}
	}

	sequenceSize := opts.SequenceSize
	if sequenceSize == 0 {
		sequenceSize = v.HParams.SequenceSize
	}

	var inputs Context
	if opts.Inputs != nil {
		inputs = opts.Inputs.context()
	}

	// Create the initial states.
	// Whenever the caller supplied no batch size, the lane
	// count of each freshly computed state refines the
	// batch size used for the remaining states.
	inferBatch := opts.BatchSize
	if inferBatch == 0 {
		inferBatch = v.HParams.BatchSize
	}
	inputsInit := opts.InputsInitState
	if inputs != nil && inputsInit == nil {
		inputsInit = inputs.Start(inferBatch)
		if opts.BatchSize == 0 {
			inferBatch = stateBatchSize(inputsInit)
		}
	}
	ctxInit := opts.ContextInitState
	if ctxInit == nil {
		ctxInit = ctx.Start(inferBatch)
		if opts.BatchSize == 0 {
			inferBatch = stateBatchSize(ctxInit)
		}
	}
	initState := opts.InitState
	if initState == nil {
		initState = v.Start(inferBatch)
	}

	// Chain the auxiliary inputs in front of the context.
	if inputs != nil {
		ctx = Chain{inputs, ctx}
		ctxInit = ChainState(inputsInit, ctxInit)
	}

	eventSize := v.EventSize()
	return ctx.DriveRNN(&Drive{
		Cell:          &recordingBlock{Block: v.Model.Samples()},
		SequenceSize:  sequenceSize,
		InitState:     ctxInit,
		CellInitState: initState,
		Observations: func(out anyvec.Vector, n int) anyvec.Vector {
			left, _ := rowSplit(out.Creator(), out, n, eventSize)
			return left
		},
		States: func(out anyvec.Vector, n int) anyvec.Vector {
			_, right := rowSplit(out.Creator(), out, n, eventSize)
			return right
		},
	})
}

// stateBatchSize extracts the batch size from a state's
// present map.
func stateBatchSize(s anyrnn.State) int {
	return s.Present().NumPresent()
}
