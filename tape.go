package vaeseq

import (
	"sync"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// A Tape is a non-differentiable recorded sequence that
// can be accessed randomly and may still be growing while
// it is being read.
//
// Generate records its rollouts onto Tapes: one for the
// observations and one for the latent trajectory.
//
// All of the restrictions on sequences apply to Tapes.
// Every timestep must have the same number of entries in
// the Present list, and a lane that goes absent may not
// become present again.
type Tape interface {
	// ReadTape generates a channel that is sent a range of
	// timesteps from the tape.
	//
	// If end is -1, the entire Tape is read.
	//
	// If the Tape is still being written, the channel may
	// receive new timesteps as they arrive.
	//
	// Out-of-range parts of the range are ignored: the
	// channel is closed early instead.
	ReadTape(start, end int) <-chan *anyseq.Batch
}

// tapeStore is the synchronization core shared by the
// tape implementations: an append-only list of encoded
// timesteps plus a waiter for blocked readers.
type tapeStore struct {
	lock     sync.Mutex
	steps    []interface{}
	done     bool
	nextWait chan struct{}

	decode func(interface{}) *anyseq.Batch
}

func newTapeStore(encode func(*anyseq.Batch) interface{},
	decode func(interface{}) *anyseq.Batch) (*tapeStore, chan<- *anyseq.Batch) {
	res := &tapeStore{nextWait: make(chan struct{}), decode: decode}
	inChan := make(chan *anyseq.Batch, 1)
	go res.readInputs(inChan, encode)
	return res, inChan
}

func (t *tapeStore) ReadTape(start, end int) <-chan *anyseq.Batch {
	if start < 0 {
		panic("negative start index")
	} else if end < start && end != -1 {
		panic("invalid end index")
	}

	res := make(chan *anyseq.Batch, 1)
	go func() {
		defer close(res)
		for i := start; i < end || end == -1; i++ {
			t.lock.Lock()
			for i >= len(t.steps) {
				if t.done {
					t.lock.Unlock()
					return
				}
				waiter := t.nextWait
				t.lock.Unlock()
				<-waiter
				t.lock.Lock()
			}
			item := t.steps[i]
			t.lock.Unlock()
			res <- t.decode(item)
		}
	}()
	return res
}

func (t *tapeStore) readInputs(inChan <-chan *anyseq.Batch,
	encode func(*anyseq.Batch) interface{}) {
	var lastPresent []bool
	for input := range inChan {
		if lastPresent != nil {
			if len(lastPresent) != len(input.Present) {
				panic("mismatching present map size")
			}
			for i, newPres := range input.Present {
				if !lastPresent[i] && newPres {
					panic("absent sequence became present again")
				}
			}
		}
		lastPresent = input.Present
		encoded := encode(input)
		t.lock.Lock()
		t.steps = append(t.steps, encoded)
		close(t.nextWait)
		t.nextWait = make(chan struct{})
		t.lock.Unlock()
	}
	t.lock.Lock()
	t.done = true
	close(t.nextWait)
	t.lock.Unlock()
}

// ReferenceTape creates a Tape that retains references to
// every recorded batch.
//
// It returns the Tape and the corresponding writer
// channel.
// The caller must close the writer channel to complete
// the Tape and free its resources.
func ReferenceTape() (Tape, chan<- *anyseq.Batch) {
	return newTapeStore(
		func(b *anyseq.Batch) interface{} { return b },
		func(item interface{}) *anyseq.Batch { return item.(*anyseq.Batch) },
	)
}

type reducedTape struct {
	In      Tape
	Present []bool
}

// ReduceTape produces a Tape without the lanes at indices
// where present is false.
func ReduceTape(t Tape, present []bool) Tape {
	return &reducedTape{In: t, Present: present}
}

func (r *reducedTape) ReadTape(start, end int) <-chan *anyseq.Batch {
	res := make(chan *anyseq.Batch, 1)
	go func() {
		defer close(res)
		for in := range r.In.ReadTape(start, end) {
			res <- r.reduceBatch(in)
		}
	}()
	return res
}

func (r *reducedTape) reduceBatch(in *anyseq.Batch) *anyseq.Batch {
	if len(r.Present) != len(in.Present) {
		panic("mismatching present map size")
	}
	rowLen := in.Packed.Len() / in.NumPresent()
	subset := make([]bool, len(in.Present))
	var kept []anyvec.Vector
	var row int
	for i, pres := range in.Present {
		if !pres {
			continue
		}
		if r.Present[i] {
			subset[i] = true
			kept = append(kept, in.Packed.Slice(row*rowLen, (row+1)*rowLen))
		}
		row++
	}
	out := &anyseq.Batch{Present: subset}
	if len(kept) > 0 {
		out.Packed = in.Packed.Creator().Concat(kept...)
	}
	return out
}

// TapeSeq reads a finished Tape into a constant sequence.
func TapeSeq(c anyvec.Creator, t Tape) anyseq.Seq {
	var batches []*anyseq.ResBatch
	for b := range t.ReadTape(0, -1) {
		batches = append(batches, &anyseq.ResBatch{
			Packed:  anydiff.NewConst(b.Packed),
			Present: b.Present,
		})
	}
	return anyseq.ResSeq(c, batches)
}
