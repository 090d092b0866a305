// Package codec turns cached values into bytes and back.
//
// Encoding must be deterministic and lossless for the declared type: a value
// written by one process is read by another. String and Bytes skip structured
// encoding entirely.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
