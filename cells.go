package vaeseq

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// A recordingBlock pairs each of the wrapped cell's
// outputs with the resulting latent state, so that a
// driver can record the full latent trajectory.
//
// The wrapped cell's states must be vector-backed.
type recordingBlock struct {
	Block anyrnn.Block
}

func (r *recordingBlock) Start(n int) anyrnn.State {
	return r.Block.Start(n)
}

func (r *recordingBlock) PropagateStart(s anyrnn.StateGrad, g anydiff.Grad) {
	r.Block.PropagateStart(s, g)
}

func (r *recordingBlock) Step(s anyrnn.State, in anyvec.Vector) anyrnn.Res {
	res := r.Block.Step(s, in)
	vs, ok := res.State().(*anyrnn.VecState)
	if !ok {
		panic("cell state is not vector-backed")
	}
	n := vs.Present().NumPresent()
	out := res.Output()
	return &recordingRes{
		Res:      res,
		VecSt:    vs,
		Out:      rowJoin(out.Creator(), n, out, vs.Vector),
		OutWidth: out.Len() / n,
	}
}

type recordingRes struct {
	Res      anyrnn.Res
	VecSt    *anyrnn.VecState
	Out      anyvec.Vector
	OutWidth int
}

func (r *recordingRes) State() anyrnn.State {
	return r.Res.State()
}

func (r *recordingRes) Output() anyvec.Vector {
	return r.Out
}

func (r *recordingRes) Vars() anydiff.VarSet {
	return r.Res.Vars()
}

func (r *recordingRes) Propagate(u anyvec.Vector, s anyrnn.StateGrad,
	g anydiff.Grad) (anyvec.Vector, anyrnn.StateGrad) {
	n := r.VecSt.Present().NumPresent()
	obsUp, stateUp := rowSplit(u.Creator(), u, n, r.OutWidth)
	var combined anyrnn.StateGrad
	if s != nil {
		sv, ok := s.(*anyrnn.VecState)
		if !ok {
			panic("state grad is not vector-backed")
		}
		sum := sv.Vector.Copy()
		sum.Add(stateUp)
		combined = &anyrnn.VecState{Vector: sum, PresentMap: sv.PresentMap}
	} else {
		combined = &anyrnn.VecState{Vector: stateUp, PresentMap: r.VecSt.PresentMap}
	}
	return r.Res.Propagate(obsUp, combined, g)
}

// A replayBlock forces the wrapped cell's state to a
// recorded latent row at every step, making evaluation
// deterministic given a recorded trajectory.
//
// The recorded latents arrive as the trailing LatentSize
// columns of each input row.
type replayBlock struct {
	Block      anyrnn.Block
	LatentSize int
}

func (r *replayBlock) Start(n int) anyrnn.State {
	return r.Block.Start(n)
}

func (r *replayBlock) PropagateStart(s anyrnn.StateGrad, g anydiff.Grad) {
	r.Block.PropagateStart(s, g)
}

func (r *replayBlock) Step(s anyrnn.State, in anyvec.Vector) anyrnn.Res {
	pres := s.Present()
	n := pres.NumPresent()
	rowLen := in.Len() / n
	rest, latent := rowSplit(in.Creator(), in, n, rowLen-r.LatentSize)
	forced := &anyrnn.VecState{Vector: latent, PresentMap: pres}
	res := r.Block.Step(forced, rest)
	return &replayRes{
		Res:        res,
		LatentSize: r.LatentSize,
		Pres:       pres,
	}
}

type replayRes struct {
	Res        anyrnn.Res
	LatentSize int
	Pres       anyrnn.PresentMap
}

func (r *replayRes) State() anyrnn.State {
	return r.Res.State()
}

func (r *replayRes) Output() anyvec.Vector {
	return r.Res.Output()
}

func (r *replayRes) Vars() anydiff.VarSet {
	return r.Res.Vars()
}

func (r *replayRes) Propagate(u anyvec.Vector, s anyrnn.StateGrad,
	g anydiff.Grad) (anyvec.Vector, anyrnn.StateGrad) {
	n := r.Pres.NumPresent()
	inDown, stateDown := r.Res.Propagate(u, s, g)
	var latentDown anyvec.Vector
	if sv, ok := stateDown.(*anyrnn.VecState); ok {
		latentDown = sv.Vector
	} else {
		latentDown = u.Creator().MakeVector(n * r.LatentSize)
	}
	down := rowJoin(u.Creator(), n, inDown, latentDown)

	// The incoming state was discarded by Step, so nothing
	// flows back to the previous timestep.
	return down, nil
}
