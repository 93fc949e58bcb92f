package vaeseq

import (
	"compress/flate"
	"math/rand"
	"reflect"
	"testing"

	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

func writeTestBatches(ch chan<- *anyseq.Batch, batches []*anyseq.Batch) {
	for _, b := range batches {
		ch <- b
	}
	close(ch)
}

func testBatchSeq(c anyvec.Creator, rows [][]float64, present []bool) []*anyseq.Batch {
	var res []*anyseq.Batch
	for _, row := range rows {
		res = append(res, &anyseq.Batch{
			Packed:  rowVec(c, row),
			Present: present,
		})
	}
	return res
}

func TestReferenceTape(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	batches := testBatchSeq(c, [][]float64{{1, 2}, {3, 4}, {5, 6}},
		[]bool{true, true})

	tape, ch := ReferenceTape()
	writeTestBatches(ch, batches)

	full := tapeBatches(tape)
	if len(full) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(full))
	}
	for i, b := range full {
		if !reflect.DeepEqual(b.Packed.Data(), batches[i].Packed.Data()) {
			t.Errorf("batch %d: expected %v got %v", i,
				batches[i].Packed.Data(), b.Packed.Data())
		}
	}

	var middle []*anyseq.Batch
	for b := range tape.ReadTape(1, 2) {
		middle = append(middle, b)
	}
	if len(middle) != 1 ||
		!reflect.DeepEqual(middle[0].Packed.Data(), []float64{3, 4}) {
		t.Errorf("bad partial read: %v", middle)
	}

	var overflow int
	for range tape.ReadTape(1, 10) {
		overflow++
	}
	if overflow != 2 {
		t.Errorf("out-of-range read: expected 2 batches, got %d", overflow)
	}
}

func TestReferenceTapeStreaming(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	tape, ch := ReferenceTape()
	reader := tape.ReadTape(0, -1)

	// Readers should see each timestep as it is written,
	// before the tape is complete.
	for i := 0; i < 3; i++ {
		ch <- &anyseq.Batch{
			Packed:  rowVec(c, []float64{float64(i)}),
			Present: []bool{true},
		}
		b, ok := <-reader
		if !ok {
			t.Fatal("channel closed early")
		}
		if b.Packed.Data().([]float64)[0] != float64(i) {
			t.Errorf("batch %d: got %v", i, b.Packed.Data())
		}
	}
	close(ch)
	if _, ok := <-reader; ok {
		t.Error("expected end of tape")
	}
}

func TestCompressedTape(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	gen := rand.New(rand.NewSource(7))

	var rows [][]float64
	for i := 0; i < 4; i++ {
		row := make([]float64, 6)
		for j := range row {
			row[j] = gen.NormFloat64()
		}
		rows = append(rows, row)
	}
	batches := testBatchSeq(c, rows, []bool{true, true})

	tape, ch := CompressedTape(c, flate.DefaultCompression)
	writeTestBatches(ch, batches)

	out := tapeBatches(tape)
	if len(out) != len(batches) {
		t.Fatalf("expected %d batches, got %d", len(batches), len(out))
	}
	for i, b := range out {
		if !reflect.DeepEqual(b.Present, batches[i].Present) {
			t.Errorf("batch %d: present mismatch", i)
		}
		if !reflect.DeepEqual(b.Packed.Data(), batches[i].Packed.Data()) {
			t.Errorf("batch %d: expected %v got %v", i,
				batches[i].Packed.Data(), b.Packed.Data())
		}
	}
}

func TestReduceTape(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	batches := []*anyseq.Batch{
		{
			Packed:  rowVec(c, []float64{1, 2, 3, 4}),
			Present: []bool{true, true, false},
		},
		{
			Packed:  rowVec(c, []float64{5, 6}),
			Present: []bool{true, false, false},
		},
	}

	tape, ch := ReferenceTape()
	writeTestBatches(ch, batches)

	reduced := tapeBatches(ReduceTape(tape, []bool{true, false, true}))
	if len(reduced) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(reduced))
	}
	if !reflect.DeepEqual(reduced[0].Present, []bool{true, false, false}) {
		t.Errorf("batch 0: bad present map: %v", reduced[0].Present)
	}
	if !reflect.DeepEqual(reduced[0].Packed.Data(), []float64{1, 2}) {
		t.Errorf("batch 0: expected [1 2] got %v", reduced[0].Packed.Data())
	}
	if !reflect.DeepEqual(reduced[1].Packed.Data(), []float64{5, 6}) {
		t.Errorf("batch 1: expected [5 6] got %v", reduced[1].Packed.Data())
	}
}

func TestTapeSeq(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	batches := testBatchSeq(c, [][]float64{{1, 2}, {3, 4}}, []bool{true})

	tape, ch := ReferenceTape()
	writeTestBatches(ch, batches)

	seq := TapeSeq(c, tape)
	if len(seq.Vars()) != 0 {
		t.Error("tape sequences should be constant")
	}
	out := seq.Output()
	if len(out) != 2 {
		t.Fatalf("expected 2 timesteps, got %d", len(out))
	}
	for i, b := range out {
		if !reflect.DeepEqual(b.Packed.Data(), batches[i].Packed.Data()) {
			t.Errorf("batch %d: expected %v got %v", i,
				batches[i].Packed.Data(), b.Packed.Data())
		}
	}
}
