package octets

import "testing"

func TestXorRoundTrip(t *testing.T) {
	x := New([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	y := New([]byte{0xff, 0xee, 0xdd, 0xcc, 0xbb, 0xaa})

	xy, err := Xor(x, y)
	if err != nil {
		t.Fatalf("Xor: %v", err)
	}
	back, err := Xor(x, xy)
	if err != nil {
		t.Fatalf("Xor: %v", err)
	}
	if !back.Equal(y) {
		t.Errorf("Xor(x, Xor(x, y)) = %s, want %s", back.Hex(), y.Hex())
	}
}

func TestXorLengthMismatch(t *testing.T) {
	x := New([]byte{0x01, 0x02})
	y := New([]byte{0x01, 0x02, 0x03})
	if _, err := Xor(x, y); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestConcatAndSub(t *testing.T) {
	a := New([]byte{0xaa, 0xbb})
	b := New([]byte{0xcc, 0xdd})
	c := a.Concat(b)
	if c.Hex() != "aabbccdd" {
		t.Fatalf("Concat = %s", c.Hex())
	}
	if got := c.Sub(1, 3).Hex(); got != "bbcc" {
		t.Fatalf("Sub(1,3) = %s, want bbcc", got)
	}
}

func TestBit(t *testing.T) {
	// AMF separation bit: bit 7 of AMF[0] (MSB position 0 in TS 24.501 numbering).
	amf := New([]byte{0x80, 0x00})
	set, err := amf.Bit(0, 0)
	if err != nil {
		t.Fatalf("Bit: %v", err)
	}
	if !set {
		t.Error("expected separation bit set")
	}

	amf2 := New([]byte{0x00, 0x00})
	set2, _ := amf2.Bit(0, 0)
	if set2 {
		t.Error("expected separation bit clear")
	}
}

func TestEqualAndIsZero(t *testing.T) {
	var z String
	if !z.IsZero() {
		t.Error("zero value should be zero-length")
	}
	a := New([]byte{1, 2, 3})
	b := New([]byte{1, 2, 3})
	if !a.Equal(b) {
		t.Error("expected equal")
	}
}
