package encoding

import (
	"bytes"
	"testing"
)

func TestIntRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 1 << 20, -(1 << 20), math32Min, math32Max} {
		got := BytesToInt(IntToBytes(v))
		if got != v {
			t.Fatalf("round trip failed: want %d got %d", v, got)
		}
	}
}

func TestIntOrderingPreserved(t *testing.T) {
	values := []int32{math32Min, -100, -1, 0, 1, 100, math32Max}
	for i := 0; i < len(values)-1; i++ {
		a, b := IntToBytes(values[i]), IntToBytes(values[i+1])
		if bytes.Compare(a, b) >= 0 {
			t.Fatalf("encoding does not preserve order: %d should sort before %d", values[i], values[i+1])
		}
	}
}

func TestLongAllocatesFullWidth(t *testing.T) {
	// regression test for the source bug noted in the spec: the helper
	// must allocate the full 8 bytes, not a fixed 2-byte buffer.
	if n := len(LongToBytes(1)); n != 8 {
		t.Fatalf("expected an 8-byte buffer, got %d bytes", n)
	}
	if n := len(IntToBytes(1)); n != 4 {
		t.Fatalf("expected a 4-byte buffer, got %d bytes", n)
	}
	if n := len(FloatToBytes(1)); n != 4 {
		t.Fatalf("expected a 4-byte buffer, got %d bytes", n)
	}
	if n := len(DoubleToBytes(1)); n != 8 {
		t.Fatalf("expected an 8-byte buffer, got %d bytes", n)
	}
}

func TestFloatOrderingPreserved(t *testing.T) {
	values := []float32{-100.5, -1.1, -0.0001, 0, 0.0001, 1.1, 100.5}
	for i := 0; i < len(values)-1; i++ {
		a, b := FloatToBytes(values[i]), FloatToBytes(values[i+1])
		if bytes.Compare(a, b) >= 0 {
			t.Fatalf("encoding does not preserve order: %v should sort before %v", values[i], values[i+1])
		}
	}
}

func TestDoubleRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1, -1, 3.14159, -2.71828} {
		got := BytesToDouble(DoubleToBytes(v))
		if got != v {
			t.Fatalf("round trip failed: want %v got %v", v, got)
		}
	}
}

const (
	math32Min = -(1 << 31)
	math32Max = (1 << 31) - 1
)
