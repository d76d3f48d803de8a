package types

import (
	"encoding/json"
	"time"
)

// Encoding tags how the envelope payload is stored. The tag is decided
// once at write time so readers never have to guess the shape of a blob.
type Encoding int

const (
	// EncodingRaw means Data holds the JSON-serialized value as-is.
	EncodingRaw Encoding = iota

	// EncodingCompressed means Data holds codec output and Algorithm,
	// OriginalSize and CompressedSize describe it.
	EncodingCompressed
)

// String returns a human-readable representation of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingRaw:
		return "raw"
	case EncodingCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// Envelope is the unit stored in every tier backend. It wraps the
// serialized value with enough bookkeeping to decode it on any read path.
type Envelope struct {
	Encoding       Encoding `json:"encoding"`
	Algorithm      string   `json:"algorithm,omitempty"`
	OriginalSize   int      `json:"original_size,omitempty"`
	CompressedSize int      `json:"compressed_size,omitempty"`
	Data           []byte   `json:"data"`
	StoredAtMs     int64    `json:"stored_at_ms"`
}

// NewRawEnvelope wraps serialized value bytes without compression.
func NewRawEnvelope(data []byte) Envelope {
	return Envelope{
		Encoding:   EncodingRaw,
		Data:       data,
		StoredAtMs: time.Now().UnixMilli(),
	}
}

// NewCompressedEnvelope wraps codec output.
func NewCompressedEnvelope(data []byte, algorithm string, originalSize, compressedSize int) Envelope {
	return Envelope{
		Encoding:       EncodingCompressed,
		Algorithm:      algorithm,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		Data:           data,
		StoredAtMs:     time.Now().UnixMilli(),
	}
}

// IsCompressed reports whether the payload must pass through the codec.
// Blobs written by older processes may lack the encoding tag, so the
// structural marker (algorithm + compressed size) is honored as well.
func (e Envelope) IsCompressed() bool {
	if e.Encoding == EncodingCompressed {
		return true
	}
	return e.Algorithm != "" && e.CompressedSize > 0
}

// StoredAt returns the write timestamp.
func (e Envelope) StoredAt() time.Time {
	return time.UnixMilli(e.StoredAtMs)
}

// Marshal serializes the envelope for byte-oriented backends.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope deserializes an envelope written by Marshal.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// EncodeValue serializes a caller value for storage.
func EncodeValue(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeValue deserializes value bytes produced by EncodeValue.
func DecodeValue(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
