package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	errs "github.com/xtxerr/strata/internal/errors"
)

// Zstd compresses with zstandard. The encoder and decoder are created
// once and reused; EncodeAll/DecodeAll are safe for concurrent use.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd creates a zstd codec at the given level (1-22, 0 = default).
func NewZstd(level int) (*Zstd, error) {
	var opts []zstd.EOption
	if level > 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}

	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Zstd{enc: enc, dec: dec}, nil
}

// Algorithm returns "zstd".
func (z *Zstd) Algorithm() string { return "zstd" }

// Compress compresses the bytes.
func (z *Zstd) Compress(data []byte) (Blob, error) {
	compressed := z.enc.EncodeAll(data, nil)
	return Blob{
		Data:           compressed,
		Algorithm:      "zstd",
		OriginalSize:   len(data),
		CompressedSize: len(compressed),
	}, nil
}

// Decompress reverses Compress.
func (z *Zstd) Decompress(blob Blob) ([]byte, error) {
	if blob.Algorithm != "zstd" {
		return nil, fmt.Errorf("%w: blob algorithm %q, codec zstd", errs.ErrCompressionFailure, blob.Algorithm)
	}

	data, err := z.dec.DecodeAll(blob.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCompressionFailure, err)
	}

	if blob.OriginalSize > 0 && len(data) != blob.OriginalSize {
		return nil, fmt.Errorf("%w: decompressed %d bytes, expected %d", errs.ErrCompressionFailure, len(data), blob.OriginalSize)
	}

	return data, nil
}
