// Package codec implements the compression codecs used by the tiered
// storage orchestrator. A codec is an external collaborator behind a
// stable interface: the orchestrator hands it serialized value bytes and
// stores whatever blob comes back.
package codec

import (
	"fmt"

	errs "github.com/xtxerr/strata/internal/errors"
)

// Blob is the codec output: compressed bytes plus the bookkeeping a
// reader needs to reverse the transformation.
type Blob struct {
	Data           []byte
	Algorithm      string
	OriginalSize   int
	CompressedSize int
}

// Codec compresses and decompresses value bytes.
type Codec interface {
	// Compress transforms value bytes into a blob.
	Compress(data []byte) (Blob, error)

	// Decompress reverses Compress. It fails if the blob's algorithm
	// does not match this codec.
	Decompress(blob Blob) ([]byte, error)

	// Algorithm names the codec.
	Algorithm() string
}

// New returns the codec for the named algorithm.
func New(algorithm string, level int) (Codec, error) {
	switch algorithm {
	case "zstd":
		return NewZstd(level)
	case "s2":
		return NewS2(), nil
	case "none", "":
		return Identity{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", errs.ErrInvalidRequest, algorithm)
	}
}

// Identity is a no-op codec. Blobs pass through unchanged.
type Identity struct{}

// Algorithm returns "none".
func (Identity) Algorithm() string { return "none" }

// Compress wraps the bytes without transforming them.
func (Identity) Compress(data []byte) (Blob, error) {
	return Blob{
		Data:           data,
		Algorithm:      "none",
		OriginalSize:   len(data),
		CompressedSize: len(data),
	}, nil
}

// Decompress returns the bytes unchanged.
func (Identity) Decompress(blob Blob) ([]byte, error) {
	if blob.Algorithm != "none" && blob.Algorithm != "" {
		return nil, fmt.Errorf("%w: blob algorithm %q, codec none", errs.ErrCompressionFailure, blob.Algorithm)
	}
	return blob.Data, nil
}
