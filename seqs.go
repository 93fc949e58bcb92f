package vaeseq

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// rowJoin joins the per-lane rows of several packed batch
// vectors, producing rows of the concatenated widths.
func rowJoin(c anyvec.Creator, n int, vecs ...anyvec.Vector) anyvec.Vector {
	if n == 0 {
		return c.MakeVector(0)
	}
	widths := make([]int, len(vecs))
	for i, v := range vecs {
		widths[i] = v.Len() / n
	}
	var parts []anyvec.Vector
	for lane := 0; lane < n; lane++ {
		for i, v := range vecs {
			parts = append(parts, v.Slice(lane*widths[i], (lane+1)*widths[i]))
		}
	}
	return c.Concat(parts...)
}

// rowSplit splits packed rows into a left part of
// leftCols columns and a right remainder.
func rowSplit(c anyvec.Creator, v anyvec.Vector, n, leftCols int) (left, right anyvec.Vector) {
	if n == 0 {
		return c.MakeVector(0), c.MakeVector(0)
	}
	rowLen := v.Len() / n
	if leftCols == 0 {
		return c.MakeVector(0), v
	} else if leftCols == rowLen {
		return v, c.MakeVector(0)
	}
	var leftParts, rightParts []anyvec.Vector
	for lane := 0; lane < n; lane++ {
		row := lane * rowLen
		leftParts = append(leftParts, v.Slice(row, row+leftCols))
		rightParts = append(rightParts, v.Slice(row+leftCols, row+rowLen))
	}
	return c.Concat(leftParts...), c.Concat(rightParts...)
}

type zipSeq struct {
	Ins  []anyseq.Seq
	Outs []*anyseq.Batch
	V    anydiff.VarSet
}

// zipSeqs joins several sequences column-wise, producing
// one sequence whose rows are the concatenated rows of
// the inputs at each timestep.
//
// The sequences must have the same length and the same
// present map at every timestep.
// Per-row widths may differ between inputs; in particular
// a scalar per-step input is simply a one-column row.
func zipSeqs(seqs ...anyseq.Seq) anyseq.Seq {
	if len(seqs) == 0 {
		panic("need at least one sequence")
	}
	res := &zipSeq{Ins: seqs, V: anydiff.VarSet{}}
	c := seqs[0].Creator()
	numSteps := len(seqs[0].Output())
	for _, in := range seqs {
		if len(in.Output()) != numSteps {
			panic("sequence length mismatch")
		}
		res.V = anydiff.MergeVarSets(res.V, in.Vars())
	}
	for t := 0; t < numSteps; t++ {
		first := seqs[0].Output()[t]
		n := first.NumPresent()
		vecs := make([]anyvec.Vector, len(seqs))
		for i, in := range seqs {
			batch := in.Output()[t]
			if !presentMapsEqual(batch.Present, first.Present) {
				panic("present map mismatch")
			}
			vecs[i] = batch.Packed
		}
		res.Outs = append(res.Outs, &anyseq.Batch{
			Packed:  rowJoin(c, n, vecs...),
			Present: first.Present,
		})
	}
	return res
}

func (z *zipSeq) Creator() anyvec.Creator {
	return z.Ins[0].Creator()
}

func (z *zipSeq) Output() []*anyseq.Batch {
	return z.Outs
}

func (z *zipSeq) Vars() anydiff.VarSet {
	return z.V
}

func (z *zipSeq) Propagate(u []*anyseq.Batch, g anydiff.Grad) {
	if len(u) != len(z.Outs) {
		panic("bad upstream length")
	}
	c := z.Creator()
	downs := make([][]*anyseq.Batch, len(z.Ins))
	for i := range downs {
		downs[i] = make([]*anyseq.Batch, len(u))
	}
	for t, upBatch := range u {
		n := upBatch.NumPresent()
		rest := upBatch.Packed
		for i, in := range z.Ins {
			width := in.Output()[t].Packed.Len() / n
			var part anyvec.Vector
			if i == len(z.Ins)-1 {
				part = rest
			} else {
				part, rest = rowSplit(c, rest, n, width)
			}
			downs[i][t] = &anyseq.Batch{Packed: part, Present: upBatch.Present}
		}
	}
	for i, in := range z.Ins {
		if !g.Intersects(in.Vars()) {
			continue
		}
		in.Propagate(downs[i], g)
	}
}

type meanSeq struct {
	Ins  []anyseq.Seq
	Outs []*anyseq.Batch
	V    anydiff.VarSet
}

// meanSeqs computes the elementwise mean of several
// equal-shape sequences.
func meanSeqs(seqs []anyseq.Seq) anyseq.Seq {
	if len(seqs) == 0 {
		panic("need at least one sequence")
	}
	res := &meanSeq{Ins: seqs, V: anydiff.VarSet{}}
	scale := seqs[0].Creator().MakeNumeric(1 / float64(len(seqs)))
	for _, in := range seqs {
		if len(in.Output()) != len(seqs[0].Output()) {
			panic("sequence length mismatch")
		}
		res.V = anydiff.MergeVarSets(res.V, in.Vars())
	}
	for t, first := range seqs[0].Output() {
		sum := first.Packed.Copy()
		for _, in := range seqs[1:] {
			batch := in.Output()[t]
			if !presentMapsEqual(batch.Present, first.Present) {
				panic("present map mismatch")
			}
			sum.Add(batch.Packed)
		}
		sum.Scale(scale)
		res.Outs = append(res.Outs, &anyseq.Batch{
			Packed:  sum,
			Present: first.Present,
		})
	}
	return res
}

func (m *meanSeq) Creator() anyvec.Creator {
	return m.Ins[0].Creator()
}

func (m *meanSeq) Output() []*anyseq.Batch {
	return m.Outs
}

func (m *meanSeq) Vars() anydiff.VarSet {
	return m.V
}

func (m *meanSeq) Propagate(u []*anyseq.Batch, g anydiff.Grad) {
	scale := m.Creator().MakeNumeric(1 / float64(len(m.Ins)))
	for _, in := range m.Ins {
		if !g.Intersects(in.Vars()) {
			continue
		}
		down := make([]*anyseq.Batch, len(u))
		for t, upBatch := range u {
			scaled := upBatch.Packed.Copy()
			scaled.Scale(scale)
			down[t] = &anyseq.Batch{Packed: scaled, Present: upBatch.Present}
		}
		in.Propagate(down, g)
	}
}

type colsRes struct {
	In         anydiff.Res
	Out        anyvec.Vector
	N          int
	RowLen     int
	Start, End int
}

// sliceCols extracts the column range [start, end) from
// each of the n rows of a packed result.
func sliceCols(in anydiff.Res, n, rowLen, start, end int) anydiff.Res {
	c := in.Output().Creator()
	var parts []anyvec.Vector
	for lane := 0; lane < n; lane++ {
		row := lane * rowLen
		parts = append(parts, in.Output().Slice(row+start, row+end))
	}
	var out anyvec.Vector
	if len(parts) > 0 {
		out = c.Concat(parts...)
	} else {
		out = c.MakeVector(0)
	}
	return &colsRes{In: in, Out: out, N: n, RowLen: rowLen, Start: start, End: end}
}

func (c *colsRes) Output() anyvec.Vector {
	return c.Out
}

func (c *colsRes) Vars() anydiff.VarSet {
	return c.In.Vars()
}

func (c *colsRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	cr := u.Creator()
	width := c.End - c.Start
	zeroLeft := cr.MakeVector(c.Start)
	zeroRight := cr.MakeVector(c.RowLen - c.End)
	var parts []anyvec.Vector
	for lane := 0; lane < c.N; lane++ {
		parts = append(parts, zeroLeft, u.Slice(lane*width, (lane+1)*width), zeroRight)
	}
	var down anyvec.Vector
	if len(parts) > 0 {
		down = cr.Concat(parts...)
	} else {
		down = cr.MakeVector(0)
	}
	c.In.Propagate(down, g)
}

// seqBatchSize extracts the batch size from the first
// timestep of a sequence.
func seqBatchSize(s anyseq.Seq) int {
	out := s.Output()
	if len(out) == 0 {
		panic("cannot infer a batch size from an empty sequence")
	}
	return out[0].NumPresent()
}

func presentMapsEqual(p1, p2 []bool) bool {
	if len(p1) != len(p2) {
		return false
	}
	for i, x := range p1 {
		if x != p2[i] {
			return false
		}
	}
	return true
}
