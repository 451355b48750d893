package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

// vectorToBytes converts a float64 slice to a little-endian blob, 8 bytes
// per element. Round-trips bit-exactly through bytesToVector, including
// NaN and denormal values.
func vectorToBytes(vec []float64) []byte {
	bytes := make([]byte, len(vec)*8)
	for i, f := range vec {
		binary.LittleEndian.PutUint64(bytes[i*8:], math.Float64bits(f))
	}
	return bytes
}

// bytesToVector decodes a blob written by vectorToBytes.
func bytesToVector(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 8", len(data))
	}
	vec := make([]float64, len(data)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return vec, nil
}
