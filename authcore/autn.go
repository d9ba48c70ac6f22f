// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package authcore

import (
	"fmt"

	"github.com/TheLurkingCat/ueransim-go/internal/milenage"
)

// ValidateAutn runs the 5G-AKA/EAP-AKA' AUTN check shared by both
// methods, per spec §4.3: recover SQN via AK and recompute MAC-A for the
// recovered SQN, then check in order the AMF separation bit, the MAC-A
// comparison, and finally (only for an authentic AUTN) whether the
// SqnManager accepts the recovered SQN as fresh. A MAC failure therefore
// takes precedence over a synchronisation failure, since a forged AUTN
// must never trigger a resynchronisation.
//
// rand and autn are exactly RandLen/16 bytes (AUTN = SQN⊕AK(6) ||
// AMF(2) || MAC-A(8)). On AUTNSynchronisationFailure, auts holds the
// 14-byte AUTS to echo back to the network.
func ValidateAutn(cfg *USIMConfig, sqnMgr SqnManager, rand, autn []byte) (result AUTNResult, auts []byte, rec *milenage.Record, err error) {
	if len(autn) != 16 {
		return 0, nil, nil, fmt.Errorf("authcore: AUTN must be 16 bytes, got %d", len(autn))
	}
	if len(rand) != milenage.RandLen {
		return 0, nil, nil, fmt.Errorf("authcore: RAND must be %d bytes, got %d", milenage.RandLen, len(rand))
	}

	sqnXorAK := autn[0:6]
	amf := autn[6:8]
	macA := autn[8:16]

	opc, err := usimOPc(cfg)
	if err != nil {
		return 0, nil, nil, err
	}

	// First pass: derive AK/RES/CK/IK using the USIM's own current SQN,
	// purely to recover the network's SQN via AK (f5 does not depend on
	// SQN, so any placeholder SQN works for this step).
	localSqn := sqnMgr.GetSqn()
	probe, err := milenage.Compute(opc, cfg.K, rand, localSqn, amf)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("authcore: milenage probe: %w", err)
	}

	recoveredSqn, err := milenage.RecoverSQN(sqnXorAK, probe.AK)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("authcore: recover SQN: %w", err)
	}

	// Recompute f1 against the network's actual SQN/AMF for the real
	// MAC-A comparison.
	rec, err = milenage.Compute(opc, cfg.K, rand, recoveredSqn, amf)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("authcore: milenage compute: %w", err)
	}

	if amf[0]&0x80 == 0 {
		// Spec §4.3: AMF separation bit must be set for AuthenticationRequest.
		return AUTNAmfSeparationBitFailure, nil, rec, nil
	}

	if !constantTimeEqual(rec.MACA, macA) {
		return AUTNMacFailure, nil, rec, nil
	}

	if !sqnMgr.CheckSqn(recoveredSqn) {
		macS, akr, rerr := milenage.Resynchronise(opc, cfg.K, rand, localSqn)
		if rerr != nil {
			return 0, nil, nil, fmt.Errorf("authcore: resynchronise: %w", rerr)
		}
		autsOut := make([]byte, 14)
		for i := 0; i < 6; i++ {
			autsOut[i] = localSqn[i] ^ akr[i]
		}
		copy(autsOut[6:], macS)
		return AUTNSynchronisationFailure, autsOut, rec, nil
	}

	return AUTNOk, nil, rec, nil
}

func usimOPc(cfg *USIMConfig) ([]byte, error) {
	if cfg.OpType == OpTypeOPc {
		return cfg.OPc, nil
	}
	return milenage.CalculateOpC(cfg.OP, cfg.K)
}

// constantTimeEqual avoids leaking MAC comparison timing, consistent
// with treating MAC-A as a security-sensitive value.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
