package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeFloat32s serializes an embedding vector to a fixed-width binary blob
// (4 bytes per float32, big-endian), the wire format spec §6 requires for
// the embedding column.
func EncodeFloat32s(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.BigEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeFloat32s parses a fixed-width binary blob produced by EncodeFloat32s.
func DecodeFloat32s(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("storage: embedding blob length %d not a multiple of 4", len(blob))
	}
	n := len(blob) / 4
	slice := make([]float32, n)
	for i := range n {
		slice[i] = math.Float32frombits(binary.BigEndian.Uint32(blob[i*4:]))
	}
	return slice, nil
}
