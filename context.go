package vaeseq

import (
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var c Constant
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeConstant)
}

// A Context produces the per-step conditioning signal
// consumed by a VAE cell, carrying its own state across
// timesteps.
type Context interface {
	// Start returns the context state for a batch of n
	// sequences.
	// The batch size is recoverable from the state's
	// present map.
	Start(n int) anyrnn.State

	// Step produces one conditioning batch.
	//
	// The input argument is conditioning from an enclosing
	// context and may be nil.
	// The prevObs argument is the previous observation
	// batch; it is nil at the first timestep.
	Step(s anyrnn.State, input, prevObs anyvec.Vector) (anyvec.Vector, anyrnn.State)

	// DriveRNN runs a cell against the context for a fixed
	// number of timesteps, recording the projected
	// observations and latent states onto the returned
	// tapes.
	DriveRNN(d *Drive) (obs, states Tape)
}

// A Drive configures one DriveRNN run.
type Drive struct {
	// Cell is the per-step transition function.
	Cell anyrnn.Block

	// SequenceSize is the number of timesteps to run.
	SequenceSize int

	// InitState is the context's own start state.
	InitState anyrnn.State

	// CellInitState is the cell's start state.
	CellInitState anyrnn.State

	// Observations extracts the observation columns from a
	// cell output batch of n rows.
	// If nil, the raw cell output is used.
	Observations func(out anyvec.Vector, n int) anyvec.Vector

	// States extracts the latent state columns from a cell
	// output batch of n rows.
	// If nil, the raw cell output is recorded.
	States func(out anyvec.Vector, n int) anyvec.Vector
}

// driveRNN is the step loop shared by the Context
// implementations.
func driveRNN(ctx Context, d *Drive) (Tape, Tape) {
	obsTape, obsCh := ReferenceTape()
	stateTape, stateCh := ReferenceTape()

	go func() {
		defer close(obsCh)
		defer close(stateCh)

		ctxState := d.InitState
		cellState := d.CellInitState
		n := cellState.Present().NumPresent()
		present := []bool(cellState.Present())

		var prevObs anyvec.Vector
		for t := 0; t < d.SequenceSize; t++ {
			var ctxOut anyvec.Vector
			ctxOut, ctxState = ctx.Step(ctxState, nil, prevObs)
			res := d.Cell.Step(cellState, ctxOut)
			cellState = res.State()

			out := res.Output()
			obs := out
			if d.Observations != nil {
				obs = d.Observations(out, n)
			}
			state := out
			if d.States != nil {
				state = d.States(out, n)
			}
			obsCh <- &anyseq.Batch{Packed: obs, Present: present}
			stateCh <- &anyseq.Batch{Packed: state, Present: present}
			prevObs = obs
		}
	}()

	return obsTape, stateTape
}

// Constant is a context that emits a fixed per-lane value
// at every timestep.
type Constant struct {
	Value anyvec.Vector
}

// NewConstant creates a Constant context from a per-lane
// value.
func NewConstant(value anyvec.Vector) *Constant {
	return &Constant{Value: value}
}

// DeserializeConstant deserializes a Constant.
func DeserializeConstant(d []byte) (res *Constant, err error) {
	defer essentials.AddCtxTo("deserialize Constant", &err)
	var value *anyvecsave.S
	if err := serializer.DeserializeAny(d, &value); err != nil {
		return nil, err
	}
	return &Constant{Value: value.Vector}, nil
}

// Start returns a state holding the value repeated across
// n lanes.
func (c *Constant) Start(n int) anyrnn.State {
	return anyrnn.NewVecState(c.Value, n)
}

// Step emits the repeated value and leaves the state
// untouched.
func (c *Constant) Step(s anyrnn.State, input, prevObs anyvec.Vector) (anyvec.Vector,
	anyrnn.State) {
	return s.(*anyrnn.VecState).Vector, s
}

// DriveRNN runs a cell against the constant stream.
func (c *Constant) DriveRNN(d *Drive) (Tape, Tape) {
	return driveRNN(c, d)
}

// SerializerType returns the unique ID used to serialize
// a Constant.
func (c *Constant) SerializerType() string {
	return "github.com/summeryingliu/vae-seq.Constant"
}

// Serialize serializes the Constant.
func (c *Constant) Serialize() ([]byte, error) {
	return serializer.SerializeAny(&anyvecsave.S{Vector: c.Value})
}

// Chain composes contexts sequentially: each context's
// output becomes the next context's conditioning input,
// and the state is threaded as a tuple.
type Chain []Context

// Start returns the tuple of sub-context states.
func (ch Chain) Start(n int) anyrnn.State {
	states := make([]anyrnn.State, len(ch))
	for i, sub := range ch {
		states[i] = sub.Start(n)
	}
	return &chainState{States: states}
}

// Step feeds the conditioning through every sub-context
// in order.
func (ch Chain) Step(s anyrnn.State, input, prevObs anyvec.Vector) (anyvec.Vector,
	anyrnn.State) {
	cs := s.(*chainState)
	if len(cs.States) != len(ch) {
		panic("mismatching chain state size")
	}
	out := input
	states := make([]anyrnn.State, len(ch))
	for i, sub := range ch {
		out, states[i] = sub.Step(cs.States[i], out, prevObs)
	}
	return out, &chainState{States: states}
}

// DriveRNN runs a cell against the chained stream.
func (ch Chain) DriveRNN(d *Drive) (Tape, Tape) {
	return driveRNN(ch, d)
}

// ChainState pairs sub-context states into the tuple
// state used by a Chain, in the same order as the chain's
// contexts.
func ChainState(states ...anyrnn.State) anyrnn.State {
	return &chainState{States: states}
}

type chainState struct {
	States []anyrnn.State
}

func (c *chainState) Present() anyrnn.PresentMap {
	return c.States[0].Present()
}

func (c *chainState) Reduce(p anyrnn.PresentMap) anyrnn.State {
	states := make([]anyrnn.State, len(c.States))
	for i, s := range c.States {
		states[i] = s.Reduce(p)
	}
	return &chainState{States: states}
}
