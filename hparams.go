package vaeseq

import (
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var h HParams
	serializer.RegisterTypedDeserializer(h.SerializerType(), DeserializeHParams)
}

// HParams bundles the model-wide configuration defaults
// read by the VAE core.
//
// An HParams should not be modified after it has been
// passed to NewVAE.
type HParams struct {
	// BatchSize is the default number of sequences per
	// batch.
	BatchSize int

	// SequenceSize is the default number of timesteps per
	// generated sequence.
	SequenceSize int

	// LatentSize is the number of components in one latent
	// state row.
	LatentSize int
}

// DefaultHParams returns a reasonable configuration for
// small models.
func DefaultHParams() *HParams {
	return &HParams{
		BatchSize:    20,
		SequenceSize: 30,
		LatentSize:   4,
	}
}

// DeserializeHParams deserializes an HParams.
func DeserializeHParams(d []byte) (res *HParams, err error) {
	defer essentials.AddCtxTo("deserialize HParams", &err)
	var batch, seq, latent serializer.Int
	if err := serializer.DeserializeAny(d, &batch, &seq, &latent); err != nil {
		return nil, err
	}
	return &HParams{
		BatchSize:    int(batch),
		SequenceSize: int(seq),
		LatentSize:   int(latent),
	}, nil
}

// SerializerType returns the unique ID used to serialize
// an HParams.
func (h *HParams) SerializerType() string {
	return "github.com/summeryingliu/vae-seq.HParams"
}

// Serialize serializes the HParams.
func (h *HParams) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(h.BatchSize),
		serializer.Int(h.SequenceSize),
		serializer.Int(h.LatentSize),
	)
}
