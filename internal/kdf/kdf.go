// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package kdf implements the TS 33.501/33.402 Annex A key derivation
// functions the authentication core needs: KAUSF for both 5G-AKA and
// EAP-AKA', CK'/IK', MK and its KAUT/KAUSF_EAP sub-keys, RES*, AUTS
// assembly, and the KSEAF/KAMF chain. The TS 33.501 Annex A functions
// follow the FC-prefixed HMAC-SHA-256 construction the teacher already uses in
// encoding/nas.ComputeKausf/ComputeRESstar/ComputeKseaf/ComputeKamf.
package kdf

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// FC values per TS 33.501 Annex A.
const (
	fcKAusf5gAka    = 0x6a
	fcResStar       = 0x6b
	fcKSeaf         = 0x6c
	fcKAmf          = 0x6d
	fcCkPrimeIkPrime = 0x20 // TS 33.402 Annex A, reused for 5G per 33.501 Annex A.3
)

// ConstructServingNetworkName builds the SNN string per spec §3:
// "5G:mnc<MNC>.mcc<MCC>.3gppnetwork.org", MNC padded to 3 digits.
func ConstructServingNetworkName(mcc, mnc int) string {
	return fmt.Sprintf("5G:mnc%03d.mcc%03d.3gppnetwork.org", mnc, mcc)
}

func lenPrefixed(s []byte, parts ...[]byte) []byte {
	out := make([]byte, 0, len(s))
	out = append(out, s...)
	for _, p := range parts {
		l := make([]byte, 2)
		binary.BigEndian.PutUint16(l, uint16(len(p)))
		out = append(out, p...)
		out = append(out, l...)
	}
	return out
}

func hmacSHA256(key, msg []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	return h.Sum(nil)
}

// CalculateKAusfFor5gAka derives KAUSF for the 5G-AKA method.
// S = FC(0x6a) || SNN || len(SNN) || SQN⊕AK || len(SQN⊕AK); K = CK || IK.
func CalculateKAusfFor5gAka(ck, ik []byte, snn string, sqnXorAK []byte) []byte {
	s := lenPrefixed([]byte{fcKAusf5gAka}, []byte(snn), sqnXorAK)
	key := append(append([]byte{}, ck...), ik...)
	return hmacSHA256(key, s)
}

// CalculateCkPrimeIkPrime derives CK'/IK' for EAP-AKA', per TS 33.402
// Annex A, reusing the FC(0x20) construction.
// S = FC(0x20) || SNN || len(SNN) || SQN⊕AK || len(SQN⊕AK); K = CK || IK.
func CalculateCkPrimeIkPrime(ck, ik []byte, snn string, sqnXorAK []byte) (ckPrime, ikPrime []byte) {
	s := lenPrefixed([]byte{fcCkPrimeIkPrime}, []byte(snn), sqnXorAK)
	key := append(append([]byte{}, ck...), ik...)
	out := hmacSHA256(key, s)
	// out is 32B; per 33.402 A.2 it is extended via a PRF' construction
	// when more than 32B are required. CK'/IK' (16B each) fit in a single
	// HMAC-SHA-256 block, taken as the first/second half.
	return out[:16], out[16:32]
}

// eapAkaPrimeTag is the fixed string RFC 5448 §3.2 prepends to the
// identity inside the PRF' input S: S = "EAP-AKA'" || Identity.
const eapAkaPrimeTag = "EAP-AKA'"

// CalculateMk derives MK per RFC 5448 §3.2: MK = PRF'(CK'||IK', S) with
// S = "EAP-AKA'" || Identity. PRF' is iterated HMAC-SHA-256 without an FC
// prefix: T1 = HMAC(K, S || 0x01), Tn = HMAC(K, Tn-1 || S || n), run until
// at least 208 bytes of key material are produced.
func CalculateMk(ckPrime, ikPrime []byte, supi string) []byte {
	key := append(append([]byte{}, ckPrime...), ikPrime...)
	const need = 208
	s := append([]byte(eapAkaPrimeTag), []byte(supi)...)
	out := make([]byte, 0, need+sha256.Size)
	prev := []byte{}
	counter := byte(1)
	for len(out) < need {
		msg := append(append([]byte{}, prev...), s...)
		msg = append(msg, counter)
		block := hmacSHA256(key, msg)
		out = append(out, block...)
		prev = block
		counter++
	}
	return out[:need]
}

// KAUT extracts the EAP-AKA' integrity key K_aut from MK, per RFC 5448:
// MK[16:48).
func KAUT(mk []byte) []byte {
	return append([]byte{}, mk[16:48]...)
}

// CalculateKAusfForEapAkaPrime extracts KAUSF_EAP from MK: MK[144:176).
func CalculateKAusfForEapAkaPrime(mk []byte) []byte {
	return append([]byte{}, mk[144:176]...)
}

// CalculateMacForEapAkaPrime computes AT_MAC per RFC 4187 §10.15: HMAC-
// SHA-256-128 over the entire EAP packet with the AT_MAC value field
// zeroed. The caller is responsible for zeroing/restoring AT_MAC in eap
// before/after calling this.
func CalculateMacForEapAkaPrime(kaut, eapPacket []byte) []byte {
	full := hmacSHA256(kaut, eapPacket)
	return full[:16]
}

// CalculateResStar derives RES* per TS 33.501 Annex A.4.
// S = FC(0x6b) || SNN || len(SNN) || RAND || len(RAND) || RES || len(RES);
// K = CK || IK. Output is the 16 least-significant bytes of the KDF output.
func CalculateResStar(ck, ik []byte, snn string, rand, res []byte) []byte {
	s := lenPrefixed([]byte{fcResStar}, []byte(snn), rand, res)
	key := append(append([]byte{}, ck...), ik...)
	out := hmacSHA256(key, s)
	return out[len(out)-16:]
}

// CalculateAuts assembles AUTS = (SQN_MS ⊕ AK_R) || MAC_S, 14 bytes.
func CalculateAuts(sqnMS, akR, macS []byte) ([]byte, error) {
	if len(sqnMS) != 6 || len(akR) != 6 {
		return nil, fmt.Errorf("kdf: SQN_MS and AK_R must be 6 bytes")
	}
	if len(macS) != 8 {
		return nil, fmt.Errorf("kdf: MAC_S must be 8 bytes")
	}
	auts := make([]byte, 14)
	for i := 0; i < 6; i++ {
		auts[i] = sqnMS[i] ^ akR[i]
	}
	copy(auts[6:], macS)
	return auts, nil
}

// CalculateKSeaf derives KSEAF from KAUSF. S = FC(0x6c) || SNN || len(SNN).
func CalculateKSeaf(kausf []byte, snn string) []byte {
	s := lenPrefixed([]byte{fcKSeaf}, []byte(snn))
	return hmacSHA256(kausf, s)
}

// CalculateKAmf derives KAMF from KSEAF, SUPI and ABBA.
// S = FC(0x6d) || SUPI || len(SUPI) || ABBA || len(ABBA).
func CalculateKAmf(kseaf []byte, supi string, abba []byte) []byte {
	s := lenPrefixed([]byte{fcKAmf}, []byte(supi), abba)
	return hmacSHA256(kseaf, s)
}
