package vaeseq

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

type compressedStep struct {
	Present []bool
	Data    []byte
}

// CompressedTape creates a Tape that stores recorded
// batches as flate-compressed binary data, trading CPU
// time for memory on long rollouts.
//
// The level argument is a compression level for the flate
// package; flate.DefaultCompression is typically fine.
//
// The anyvec.Creator should use []float32 or []float64 as
// its numeric type.
// Other types are not supported.
//
// The caller must close the writer channel to complete
// the Tape and free its resources.
func CompressedTape(c anyvec.Creator, level int) (Tape, chan<- *anyseq.Batch) {
	return newTapeStore(
		func(b *anyseq.Batch) interface{} {
			return &compressedStep{
				Present: b.Present,
				Data:    compressVector(b.Packed, level),
			}
		},
		func(item interface{}) *anyseq.Batch {
			step := item.(*compressedStep)
			return &anyseq.Batch{
				Present: step.Present,
				Packed:  decompressVector(c, step.Data),
			}
		},
	)
}

func compressVector(v anyvec.Vector, level int) []byte {
	values := vectorValues(v)
	var raw bytes.Buffer
	for _, x := range values {
		var encoded [8]byte
		binary.LittleEndian.PutUint64(encoded[:], math.Float64bits(x))
		raw.Write(encoded[:])
	}
	var out bytes.Buffer
	w, err := flate.NewWriter(&out, level)
	if err != nil {
		panic(err)
	}
	if _, err := io.Copy(w, &raw); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return out.Bytes()
}

func decompressVector(c anyvec.Creator, data []byte) anyvec.Vector {
	r := flate.NewReader(bytes.NewReader(data))
	raw, err := io.ReadAll(r)
	if err != nil {
		panic(err)
	}
	if len(raw)%8 != 0 {
		panic("corrupted tape data")
	}
	values := make([]float64, len(raw)/8)
	for i := range values {
		bits := binary.LittleEndian.Uint64(raw[i*8:])
		values[i] = math.Float64frombits(bits)
	}
	return c.MakeVectorData(c.MakeNumericList(values))
}

func vectorValues(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return data
	case []float32:
		values := make([]float64, len(data))
		for i, x := range data {
			values[i] = float64(x)
		}
		return values
	default:
		panic(fmt.Sprintf("unsupported numeric list: %T", data))
	}
}
