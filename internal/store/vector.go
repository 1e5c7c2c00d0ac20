package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// float32SliceToBlob serializes an embedding as little-endian float32 bytes,
// the layout sqlite-vec expects for float[] columns.
func float32SliceToBlob(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// blobToFloat32Slice deserializes an embedding blob.
func blobToFloat32Slice(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("store: embedding blob length %d not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
