package codec

import (
	"fmt"

	"github.com/klauspost/compress/s2"

	errs "github.com/xtxerr/strata/internal/errors"
)

// S2 compresses with the s2 format, a faster snappy variant. Useful for
// latency-sensitive tiers where zstd's ratio is not worth its CPU cost.
type S2 struct{}

// NewS2 creates an s2 codec.
func NewS2() *S2 { return &S2{} }

// Algorithm returns "s2".
func (*S2) Algorithm() string { return "s2" }

// Compress compresses the bytes.
func (*S2) Compress(data []byte) (Blob, error) {
	compressed := s2.Encode(nil, data)
	return Blob{
		Data:           compressed,
		Algorithm:      "s2",
		OriginalSize:   len(data),
		CompressedSize: len(compressed),
	}, nil
}

// Decompress reverses Compress.
func (*S2) Decompress(blob Blob) ([]byte, error) {
	if blob.Algorithm != "s2" {
		return nil, fmt.Errorf("%w: blob algorithm %q, codec s2", errs.ErrCompressionFailure, blob.Algorithm)
	}

	data, err := s2.Decode(nil, blob.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCompressionFailure, err)
	}

	return data, nil
}
