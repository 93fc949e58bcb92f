package vaeseq

import (
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

func rowVec(c anyvec.Creator, row []float64) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(row))
}

func repeatRow(c anyvec.Creator, row []float64, n int) anyvec.Vector {
	data := make([]float64, 0, n*len(row))
	for i := 0; i < n; i++ {
		data = append(data, row...)
	}
	return c.MakeVectorData(c.MakeNumericList(data))
}

// emptyVecState builds a zero-width vector state for n
// lanes; anyrnn.NewVecState panics on empty vectors.
func emptyVecState(c anyvec.Creator, n int) anyrnn.State {
	present := make(anyrnn.PresentMap, n)
	for i := range present {
		present[i] = true
	}
	return &anyrnn.VecState{Vector: c.MakeVector(0), PresentMap: present}
}

// constSeq builds a fully-present sequence whose batch at
// timestep t repeats rows[t] across n lanes.
func constSeq(c anyvec.Creator, n int, rows [][]float64) anyseq.Seq {
	present := make([]bool, n)
	for i := range present {
		present[i] = true
	}
	var batches []*anyseq.ResBatch
	for _, row := range rows {
		batches = append(batches, &anyseq.ResBatch{
			Packed:  anydiff.NewConst(repeatRow(c, row, n)),
			Present: present,
		})
	}
	return anyseq.ResSeq(c, batches)
}

// seqsNear fails the test if the two sequences differ in
// shape or by more than a small numeric tolerance.
func seqsNear(t *testing.T, actual, expected anyseq.Seq) {
	t.Helper()
	actOut := actual.Output()
	expOut := expected.Output()
	if len(actOut) != len(expOut) {
		t.Errorf("sequence length: expected %d got %d", len(expOut), len(actOut))
		return
	}
	for i, actBatch := range actOut {
		expBatch := expOut[i]
		if !presentMapsEqual(actBatch.Present, expBatch.Present) {
			t.Errorf("present mismatch: time %d: expected %v got %v", i,
				expBatch.Present, actBatch.Present)
			return
		}
		diff := actBatch.Packed.Copy()
		diff.Sub(expBatch.Packed)
		maxDiff := anyvec.AbsMax(diff).(float64)
		if maxDiff > 1e-4 {
			t.Errorf("output mismatch: time %d: expected %v got %v", i,
				expBatch.Packed.Data(), actBatch.Packed.Data())
			return
		}
	}
}

// tapeBatches reads a finished tape into a slice.
func tapeBatches(t Tape) []*anyseq.Batch {
	var res []*anyseq.Batch
	for b := range t.ReadTape(0, -1) {
		res = append(res, b)
	}
	return res
}

type testBlockRes struct {
	S     anyrnn.State
	Out   anyvec.Vector
	InLen int
}

func (t *testBlockRes) State() anyrnn.State {
	return t.S
}

func (t *testBlockRes) Output() anyvec.Vector {
	return t.Out
}

func (t *testBlockRes) Vars() anydiff.VarSet {
	return anydiff.VarSet{}
}

func (t *testBlockRes) Propagate(u anyvec.Vector, s anyrnn.StateGrad,
	g anydiff.Grad) (anyvec.Vector, anyrnn.StateGrad) {
	return u.Creator().MakeVector(t.InLen), nil
}

// echoBlock outputs its current state at every step and
// leaves the state untouched.
type echoBlock struct {
	C        anyvec.Creator
	StartRow []float64
}

func (e *echoBlock) Start(n int) anyrnn.State {
	return anyrnn.NewVecState(rowVec(e.C, e.StartRow), n)
}

func (e *echoBlock) PropagateStart(s anyrnn.StateGrad, g anydiff.Grad) {}

func (e *echoBlock) Step(s anyrnn.State, in anyvec.Vector) anyrnn.Res {
	vs := s.(*anyrnn.VecState)
	return &testBlockRes{S: s, Out: vs.Vector.Copy(), InLen: in.Len()}
}

// constOutBlock outputs a fixed row per lane at every
// step; its state is a fixed vector-backed row.
type constOutBlock struct {
	C        anyvec.Creator
	Out      []float64
	StateRow []float64
}

func (c *constOutBlock) Start(n int) anyrnn.State {
	return anyrnn.NewVecState(rowVec(c.C, c.StateRow), n)
}

func (c *constOutBlock) PropagateStart(s anyrnn.StateGrad, g anydiff.Grad) {}

func (c *constOutBlock) Step(s anyrnn.State, in anyvec.Vector) anyrnn.Res {
	n := s.Present().NumPresent()
	return &testBlockRes{S: s, Out: repeatRow(c.C, c.Out, n), InLen: in.Len()}
}

// accumBlock adds each input row into a running sum and
// outputs the sum.
type accumBlock struct {
	C     anyvec.Creator
	Width int
}

func (a *accumBlock) Start(n int) anyrnn.State {
	return anyrnn.NewVecState(a.C.MakeVector(a.Width), n)
}

func (a *accumBlock) PropagateStart(s anyrnn.StateGrad, g anydiff.Grad) {}

func (a *accumBlock) Step(s anyrnn.State, in anyvec.Vector) anyrnn.Res {
	vs := s.(*anyrnn.VecState)
	sum := vs.Vector.Copy()
	sum.Add(in)
	next := &anyrnn.VecState{Vector: sum, PresentMap: vs.PresentMap}
	return &testBlockRes{S: next, Out: sum.Copy(), InLen: in.Len()}
}

// identityBlock outputs its input unchanged.
type identityBlock struct {
	C anyvec.Creator
}

func (i *identityBlock) Start(n int) anyrnn.State {
	return emptyVecState(i.C, n)
}

func (i *identityBlock) PropagateStart(s anyrnn.StateGrad, g anydiff.Grad) {}

func (i *identityBlock) Step(s anyrnn.State, in anyvec.Vector) anyrnn.Res {
	return &testBlockRes{S: s, Out: in.Copy(), InLen: in.Len()}
}

// testModel is a Model with injectable cells that records
// the batch sizes passed to Start.
type testModel struct {
	C             anyvec.Creator
	Latent        int
	StartRow      []float64
	LogProbsBlock anyrnn.Block
	SamplesBlock  anyrnn.Block

	StartCalls []int
}

func (m *testModel) LogProbs() anyrnn.Block {
	return m.LogProbsBlock
}

func (m *testModel) Samples() anyrnn.Block {
	return m.SamplesBlock
}

func (m *testModel) Start(n int) anyrnn.State {
	m.StartCalls = append(m.StartCalls, n)
	return anyrnn.NewVecState(rowVec(m.C, m.StartRow), n)
}

func (m *testModel) LatentSize() int {
	return m.Latent
}

func (m *testModel) InferLatents(contexts, observed anyseq.Seq) (anyseq.Seq,
	anydiff.Res) {
	panic("not implemented")
}
