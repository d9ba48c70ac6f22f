package kdf

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("decodeHex(%q): %v", s, err)
	}
	return b
}

func TestConstructServingNetworkName(t *testing.T) {
	got := ConstructServingNetworkName(1, 1)
	want := "5G:mnc001.mcc001.3gppnetwork.org"
	if got != want {
		t.Errorf("ConstructServingNetworkName = %q, want %q", got, want)
	}
}

func TestCalculateKAusfFor5gAkaDeterministic(t *testing.T) {
	ck := decodeHex(t, "00112233445566778899aabbccddeeff")[:16]
	ik := decodeHex(t, "ffeeddccbbaa99887766554433221100")[:16]
	snn := ConstructServingNetworkName(1, 1)
	sqnXorAK := decodeHex(t, "010203040506")

	k1 := CalculateKAusfFor5gAka(ck, ik, snn, sqnXorAK)
	k2 := CalculateKAusfFor5gAka(ck, ik, snn, sqnXorAK)
	if !bytes.Equal(k1, k2) {
		t.Error("CalculateKAusfFor5gAka is not deterministic")
	}
	if len(k1) != 32 {
		t.Errorf("KAUSF length = %d, want 32", len(k1))
	}

	sqnXorAK2 := decodeHex(t, "010203040507")
	k3 := CalculateKAusfFor5gAka(ck, ik, snn, sqnXorAK2)
	if bytes.Equal(k1, k3) {
		t.Error("expected different KAUSF for different SQN⊕AK")
	}
}

func TestCalculateCkPrimeIkPrimeLengths(t *testing.T) {
	ck := decodeHex(t, "00112233445566778899aabbccddeeff")[:16]
	ik := decodeHex(t, "ffeeddccbbaa99887766554433221100")[:16]
	snn := ConstructServingNetworkName(1, 1)
	sqnXorAK := decodeHex(t, "010203040506")

	ckP, ikP := CalculateCkPrimeIkPrime(ck, ik, snn, sqnXorAK)
	if len(ckP) != 16 || len(ikP) != 16 {
		t.Errorf("CK'/IK' lengths = %d/%d, want 16/16", len(ckP), len(ikP))
	}
	if bytes.Equal(ckP, ikP) {
		t.Error("CK' and IK' should not be equal")
	}
}

func TestCalculateMkLengthAndSubkeys(t *testing.T) {
	ckP := decodeHex(t, "00112233445566778899aabbccddeeff")[:16]
	ikP := decodeHex(t, "ffeeddccbbaa99887766554433221100")[:16]
	mk := CalculateMk(ckP, ikP, "supi-001011234567895")

	if len(mk) != 208 {
		t.Fatalf("MK length = %d, want 208", len(mk))
	}

	kaut := KAUT(mk)
	if len(kaut) != 32 {
		t.Errorf("K_aut length = %d, want 32", len(kaut))
	}
	if !bytes.Equal(kaut, mk[16:48]) {
		t.Error("K_aut must equal MK[16:48)")
	}

	kausf := CalculateKAusfForEapAkaPrime(mk)
	if len(kausf) != 32 {
		t.Errorf("KAUSF length = %d, want 32", len(kausf))
	}
	if !bytes.Equal(kausf, mk[144:176]) {
		t.Error("KAUSF must equal MK[144:176)")
	}
}

func TestCalculateMacForEapAkaPrimeDeterministic(t *testing.T) {
	kaut := decodeHex(t, "00112233445566778899aabbccddeeff00112233445566778899aabbccddee")
	pkt1 := []byte{0x02, 0x01, 0x00, 0x1c, 0x17, 0x01, 0x00, 0x00}
	mac1 := CalculateMacForEapAkaPrime(kaut, pkt1)
	mac2 := CalculateMacForEapAkaPrime(kaut, pkt1)
	if len(mac1) != 16 {
		t.Errorf("MAC length = %d, want 16", len(mac1))
	}
	if !bytes.Equal(mac1, mac2) {
		t.Error("CalculateMacForEapAkaPrime is not deterministic")
	}

	pkt2 := append([]byte{}, pkt1...)
	pkt2[len(pkt2)-1] = 0xff
	mac3 := CalculateMacForEapAkaPrime(kaut, pkt2)
	if bytes.Equal(mac1, mac3) {
		t.Error("expected different MAC for different packet contents")
	}
}

func TestCalculateResStarLength(t *testing.T) {
	ck := decodeHex(t, "00112233445566778899aabbccddeeff")[:16]
	ik := decodeHex(t, "ffeeddccbbaa99887766554433221100")[:16]
	snn := ConstructServingNetworkName(1, 1)
	rand := decodeHex(t, "23553cbe9637a89d218ae64dae47bf35")
	res := decodeHex(t, "a54211d5904994")

	resStar := CalculateResStar(ck, ik, snn, rand, res)
	if len(resStar) != 16 {
		t.Errorf("RES* length = %d, want 16", len(resStar))
	}
}

func TestCalculateAuts(t *testing.T) {
	sqnMS := decodeHex(t, "ff9bb4d0b607")
	akR := decodeHex(t, "010203040506")
	macS := decodeHex(t, "0011223344556677")

	auts, err := CalculateAuts(sqnMS, akR, macS)
	require.NoError(t, err)
	require.Len(t, auts, 14)
	for i := 0; i < 6; i++ {
		require.Equalf(t, sqnMS[i]^akR[i], auts[i], "AUTS[%d]", i)
	}
	require.True(t, bytes.Equal(auts[6:], macS), "AUTS[6:] must equal MAC-S")
}

func TestCalculateAutsLengthValidation(t *testing.T) {
	if _, err := CalculateAuts([]byte{1, 2, 3}, make([]byte, 6), make([]byte, 8)); err == nil {
		t.Fatal("expected error for short SQN_MS")
	}
	if _, err := CalculateAuts(make([]byte, 6), make([]byte, 6), []byte{1, 2}); err == nil {
		t.Fatal("expected error for short MAC-S")
	}
}

func TestCalculateKSeafAndKAmfChain(t *testing.T) {
	kausf := decodeHex(t, "00112233445566778899aabbccddeeff00112233445566778899aabbccddee")
	snn := ConstructServingNetworkName(1, 1)
	kseaf := CalculateKSeaf(kausf, snn)
	if len(kseaf) != 32 {
		t.Fatalf("KSEAF length = %d, want 32", len(kseaf))
	}

	abba := []byte{0x00, 0x00}
	kamf := CalculateKAmf(kseaf, "supi-001011234567895", abba)
	if len(kamf) != 32 {
		t.Fatalf("KAMF length = %d, want 32", len(kamf))
	}

	kamf2 := CalculateKAmf(kseaf, "supi-001011234567896", abba)
	if bytes.Equal(kamf, kamf2) {
		t.Error("expected different KAMF for different SUPI")
	}
}
