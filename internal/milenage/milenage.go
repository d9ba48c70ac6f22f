// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package milenage wraps github.com/wmnsk/milenage with the exact call
// shape the authentication core needs: a full f1..f5 computation against a
// supplied SQN/AMF, a standalone OPc derivation for USIM configs that only
// carry OP, and the f1*/f5* resynchronisation pair used to build AUTS.
package milenage

import (
	"fmt"

	wmilenage "github.com/wmnsk/milenage"
)

const (
	KeyLen   = 16
	RandLen  = 16
	SQNLen   = 6
	AMFLen   = 2
	MACLen   = 8
	AKLen    = 6
	CKIKLen  = 16
	dummyAMF = uint16(0x0000)
)

// Record holds the f1..f5 output set, following spec §4.1. Compute fills
// MACA, CK, IK, AK and RES; MACS and AKR are left nil (Resynchronise
// returns MAC-S and AK_R directly).
type Record struct {
	MACA []byte // 8B, f1
	MACS []byte // 8B, f1*
	CK   []byte // 16B, f3
	IK   []byte // 16B, f4
	AK   []byte // 6B, f5
	AKR  []byte // 6B, f5* (resynchronisation anonymity key)
	RES  []byte // 8B, f2
}

// CalculateOpC derives OPc from OP and K for USIM configs whose opType is OP.
func CalculateOpC(op, k []byte) ([]byte, error) {
	if len(op) != KeyLen || len(k) != KeyLen {
		return nil, fmt.Errorf("milenage: OP and K must be %d bytes", KeyLen)
	}
	m := wmilenage.New(k, op, make([]byte, RandLen), 0, 0)
	if err := m.ComputeOPc(); err != nil {
		return nil, fmt.Errorf("milenage: ComputeOPc: %w", err)
	}
	return m.OPc, nil
}

// Compute runs f1 (with the supplied SQN) and f2345 against the given
// OPc/K/RAND/AMF. This is the entry point used both for the first AUTN
// pass that recovers SQN via AK (SQN taken from the USIM's current
// value) and for the MAC-A check against the recovered SQN.
func Compute(opc, k, rand, sqn, amf []byte) (*Record, error) {
	if len(opc) != KeyLen || len(k) != KeyLen {
		return nil, fmt.Errorf("milenage: OPc and K must be %d bytes", KeyLen)
	}
	if len(rand) != RandLen {
		return nil, fmt.Errorf("milenage: RAND must be %d bytes", RandLen)
	}
	if len(sqn) != SQNLen {
		return nil, fmt.Errorf("milenage: SQN must be %d bytes", SQNLen)
	}
	if len(amf) != AMFLen {
		return nil, fmt.Errorf("milenage: AMF must be %d bytes", AMFLen)
	}

	amfVal := uint16(amf[0])<<8 | uint16(amf[1])
	m := wmilenage.NewWithOPc(k, opc, rand, 0, amfVal)
	copy(m.SQN, sqn)

	if err := m.F2345(); err != nil {
		return nil, fmt.Errorf("milenage: F2345: %w", err)
	}
	if err := m.F1(); err != nil {
		return nil, fmt.Errorf("milenage: F1: %w", err)
	}

	return &Record{
		MACA: m.MACA,
		CK:   m.CK,
		IK:   m.IK,
		AK:   m.AK,
		RES:  m.RES,
	}, nil
}

// RecoverSQN recovers SQN from the received SQN-XOR-AK field and an AK
// produced by Compute with the USIM's current SQN, per spec §4.3 step 2.
func RecoverSQN(sqnXorAK, ak []byte) ([]byte, error) {
	if len(sqnXorAK) != SQNLen || len(ak) != SQNLen {
		return nil, fmt.Errorf("milenage: SQN-XOR-AK and AK must be %d bytes", SQNLen)
	}
	out := make([]byte, SQNLen)
	for i := range out {
		out[i] = sqnXorAK[i] ^ ak[i]
	}
	return out, nil
}

// Resynchronise computes MAC-S and AK_R for the AUTS construction, using
// the dummy (all-zero) AMF as TS 33.102 Annex C mandates for f1*/f5* in
// this context. sqnMS is the UE-local SQN value to embed.
func Resynchronise(opc, k, rand, sqnMS []byte) (macS, akr []byte, err error) {
	if len(opc) != KeyLen || len(k) != KeyLen {
		return nil, nil, fmt.Errorf("milenage: OPc and K must be %d bytes", KeyLen)
	}
	if len(rand) != RandLen {
		return nil, nil, fmt.Errorf("milenage: RAND must be %d bytes", RandLen)
	}
	if len(sqnMS) != SQNLen {
		return nil, nil, fmt.Errorf("milenage: SQN must be %d bytes", SQNLen)
	}

	m := wmilenage.NewWithOPc(k, opc, rand, 0, dummyAMF)
	copy(m.SQN, sqnMS)

	if err := m.F1Star(); err != nil {
		return nil, nil, fmt.Errorf("milenage: F1Star: %w", err)
	}
	if err := m.F5Star(); err != nil {
		return nil, nil, fmt.Errorf("milenage: F5Star: %w", err)
	}

	return m.MACS, m.AK, nil
}
