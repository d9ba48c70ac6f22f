package milenage

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func vector(t *testing.T) (opc, k, rand, sqn, amf []byte) {
	t.Helper()
	opc = decodeHex(t, "cd63cb71954a9f4e48a5994e37a02baf")
	k = decodeHex(t, "465b5ce8b199b49faa5f0a2ee238a6bc")
	rand = decodeHex(t, "23553cbe9637a89d218ae64dae47bf35")
	sqn = decodeHex(t, "ff9bb4d0b607")
	amf = decodeHex(t, "b9b9")
	return
}

func decodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("decodeHex(%q): %v", s, err)
	}
	return b
}

func TestComputeOutputLengths(t *testing.T) {
	opc, k, rand, sqn, amf := vector(t)
	rec, err := Compute(opc, k, rand, sqn, amf)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(rec.MACA) != MACLen {
		t.Errorf("MACA length = %d, want %d", len(rec.MACA), MACLen)
	}
	if len(rec.CK) != CKIKLen || len(rec.IK) != CKIKLen {
		t.Errorf("CK/IK length = %d/%d, want %d", len(rec.CK), len(rec.IK), CKIKLen)
	}
	if len(rec.AK) != AKLen {
		t.Errorf("AK length = %d, want %d", len(rec.AK), AKLen)
	}
	if len(rec.RES) != MACLen {
		t.Errorf("RES length = %d, want %d", len(rec.RES), MACLen)
	}
}

func TestComputeDeterministic(t *testing.T) {
	opc, k, rand, sqn, amf := vector(t)
	r1, err := Compute(opc, k, rand, sqn, amf)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	r2, err := Compute(opc, k, rand, sqn, amf)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !bytes.Equal(r1.MACA, r2.MACA) || !bytes.Equal(r1.RES, r2.RES) {
		t.Error("Compute is not deterministic for identical inputs")
	}
}

func TestComputeDifferentSQNDifferentMAC(t *testing.T) {
	opc, k, rand, sqn, amf := vector(t)
	r1, err := Compute(opc, k, rand, sqn, amf)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	sqn2 := append([]byte{}, sqn...)
	sqn2[5]++
	r2, err := Compute(opc, k, rand, sqn2, amf)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if bytes.Equal(r1.MACA, r2.MACA) {
		t.Error("expected different MAC-A for different SQN")
	}
}

func TestRecoverSQNRoundTrip(t *testing.T) {
	opc, k, rand, sqn, amf := vector(t)
	rec, err := Compute(opc, k, rand, sqn, amf)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	sqnXorAK := make([]byte, SQNLen)
	for i := range sqnXorAK {
		sqnXorAK[i] = sqn[i] ^ rec.AK[i]
	}
	recovered, err := RecoverSQN(sqnXorAK, rec.AK)
	if err != nil {
		t.Fatalf("RecoverSQN: %v", err)
	}
	if !bytes.Equal(recovered, sqn) {
		t.Errorf("RecoverSQN = %x, want %x", recovered, sqn)
	}
}

func TestResynchroniseLengths(t *testing.T) {
	opc, k, rand, sqn, _ := vector(t)
	macS, akr, err := Resynchronise(opc, k, rand, sqn)
	if err != nil {
		t.Fatalf("Resynchronise: %v", err)
	}
	if len(macS) != MACLen {
		t.Errorf("MAC-S length = %d, want %d", len(macS), MACLen)
	}
	if len(akr) != AKLen {
		t.Errorf("AK_R length = %d, want %d", len(akr), AKLen)
	}
}

func TestCalculateOpC(t *testing.T) {
	op := decodeHex(t, "cdc202d5123e20f62b6d676ac72cb318")
	k := decodeHex(t, "465b5ce8b199b49faa5f0a2ee238a6bc")
	opc, err := CalculateOpC(op, k)
	if err != nil {
		t.Fatalf("CalculateOpC: %v", err)
	}
	if len(opc) != KeyLen {
		t.Errorf("OPc length = %d, want %d", len(opc), KeyLen)
	}
}
