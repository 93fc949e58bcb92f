package vaeseq

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

type rnnSeq struct {
	C     anyvec.Creator
	Block anyrnn.Block
	In    anyseq.Seq

	Reses []anyrnn.Res
	Outs  []*anyseq.Batch
	V     anydiff.VarSet
}

// runRNN steps a cell over the input sequence from an
// explicit start state and returns the per-step outputs.
//
// The start state must have at least as many present
// lanes as the first input batch; it is reduced whenever
// the present map shrinks.
func runRNN(cell anyrnn.Block, inputs anyseq.Seq, start anyrnn.State) anyseq.Seq {
	res := &rnnSeq{
		C:     inputs.Creator(),
		Block: cell,
		In:    inputs,
		V:     anydiff.VarSet{},
	}
	state := start
	for _, in := range inputs.Output() {
		if state.Present().NumPresent() != in.NumPresent() {
			state = state.Reduce(in.Present)
		}
		stepRes := cell.Step(state, in.Packed)
		res.V = anydiff.MergeVarSets(res.V, stepRes.Vars())
		state = stepRes.State()
		res.Reses = append(res.Reses, stepRes)
		res.Outs = append(res.Outs, &anyseq.Batch{
			Present: in.Present,
			Packed:  stepRes.Output(),
		})
	}
	res.V = anydiff.MergeVarSets(res.V, inputs.Vars())
	return res
}

func (r *rnnSeq) Creator() anyvec.Creator {
	return r.C
}

func (r *rnnSeq) Output() []*anyseq.Batch {
	return r.Outs
}

func (r *rnnSeq) Vars() anydiff.VarSet {
	return r.V
}

func (r *rnnSeq) Propagate(u []*anyseq.Batch, g anydiff.Grad) {
	if len(u) != len(r.Reses) {
		panic("bad upstream length")
	}

	needDown := g.Intersects(r.In.Vars())
	var down []*anyseq.Batch
	if needDown {
		down = make([]*anyseq.Batch, len(r.Reses))
	}

	var stateUp anyrnn.StateGrad
	for t := len(r.Reses) - 1; t >= 0; t-- {
		res := r.Reses[t]
		pres := res.State().Present()
		if stateUp != nil && stateUp.Present().NumPresent() != pres.NumPresent() {
			stateUp = stateUp.Expand(pres)
		}
		inDown, nextUp := res.Propagate(u[t].Packed, stateUp, g)
		stateUp = nextUp
		if needDown {
			down[t] = &anyseq.Batch{Packed: inDown, Present: u[t].Present}
		}
	}

	if stateUp != nil {
		r.propagateStart(stateUp, g)
	}
	if needDown {
		r.In.Propagate(down, g)
	}
}

func (r *rnnSeq) propagateStart(stateUp anyrnn.StateGrad, g anydiff.Grad) {
	numSeqs := len(stateUp.Present())
	if stateUp.Present().NumPresent() != numSeqs {
		allTrue := make(anyrnn.PresentMap, numSeqs)
		for i := range allTrue {
			allTrue[i] = true
		}
		stateUp = stateUp.Expand(allTrue)
	}
	r.Block.PropagateStart(stateUp, g)
}
