// Package encoding implements the engine's comparable byte-order codec.
//
// Integers are stored big-endian so that a byte-for-byte comparison of two
// encoded values preserves their natural ordering; signed integers have
// their sign bit flipped on encode (and again on decode) so that
// comparison also preserves signed ordering. The B-tree key encoder (an
// out-of-scope client of this core) relies on this property for its key
// comparator.
//
// This fixes the bug spec.md's Open Questions section calls out in the
// original source: the single-call IntToBytes/LongToBytes/FloatToBytes/
// DoubleToBytes helpers allocated a fixed 2-byte array regardless of the
// value's actual width. Every helper here allocates exactly the width it
// encodes.
package encoding

import (
	"encoding/binary"
	"math"
)

// IntToBytes encodes a signed 32-bit integer into a freshly allocated
// 4-byte big-endian, sign-flipped buffer.
func IntToBytes(v int32) []byte {
	buf := make([]byte, 4)
	PutInt(buf, v)
	return buf
}

// PutInt writes a sign-flipped big-endian int32 into dst, which must be at
// least 4 bytes long.
func PutInt(dst []byte, v int32) {
	binary.BigEndian.PutUint32(dst, flipSign32(uint32(v)))
}

func BytesToInt(b []byte) int32 {
	return int32(flipSign32(binary.BigEndian.Uint32(b)))
}

// LongToBytes encodes a signed 64-bit integer into a freshly allocated
// 8-byte big-endian, sign-flipped buffer.
func LongToBytes(v int64) []byte {
	buf := make([]byte, 8)
	PutLong(buf, v)
	return buf
}

func PutLong(dst []byte, v int64) {
	binary.BigEndian.PutUint64(dst, flipSign64(uint64(v)))
}

func BytesToLong(b []byte) int64 {
	return int64(flipSign64(binary.BigEndian.Uint64(b)))
}

// UintToBytes encodes an unsigned 32-bit integer. Unsigned values need no
// sign flip: big-endian already preserves their ordering.
func UintToBytes(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

func BytesToUint(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// UlongToBytes encodes an unsigned 64-bit integer (used for LSNs, which are
// already monotone unsigned counters).
func UlongToBytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func BytesToUlong(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// FloatToBytes encodes a float32 into a freshly allocated 4-byte buffer,
// ordered so that comparison preserves float ordering for non-NaN values.
func FloatToBytes(v float32) []byte {
	buf := make([]byte, 4)
	PutFloat(buf, v)
	return buf
}

func PutFloat(dst []byte, v float32) {
	bits := math.Float32bits(v)
	binary.BigEndian.PutUint32(dst, orderFloatBits32(bits))
}

func BytesToFloat(b []byte) float32 {
	bits := unorderFloatBits32(binary.BigEndian.Uint32(b))
	return math.Float32frombits(bits)
}

// DoubleToBytes encodes a float64 into a freshly allocated 8-byte buffer.
func DoubleToBytes(v float64) []byte {
	buf := make([]byte, 8)
	PutDouble(buf, v)
	return buf
}

func PutDouble(dst []byte, v float64) {
	bits := math.Float64bits(v)
	binary.BigEndian.PutUint64(dst, orderFloatBits64(bits))
}

func BytesToDouble(b []byte) float64 {
	bits := unorderFloatBits64(binary.BigEndian.Uint64(b))
	return math.Float64frombits(bits)
}

func flipSign32(v uint32) uint32 {
	return v ^ (1 << 31)
}

func flipSign64(v uint64) uint64 {
	return v ^ (1 << 63)
}

// orderFloatBits32 maps IEEE-754 bit patterns to an order-preserving
// unsigned representation: flip the sign bit for positive numbers, flip
// every bit for negative numbers.
func orderFloatBits32(bits uint32) uint32 {
	if bits&(1<<31) != 0 {
		return ^bits
	}
	return bits | (1 << 31)
}

func unorderFloatBits32(ordered uint32) uint32 {
	if ordered&(1<<31) != 0 {
		return ordered &^ (1 << 31)
	}
	return ^ordered
}

func orderFloatBits64(bits uint64) uint64 {
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

func unorderFloatBits64(ordered uint64) uint64 {
	if ordered&(1<<63) != 0 {
		return ordered &^ (1 << 63)
	}
	return ^ordered
}
