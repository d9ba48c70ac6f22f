// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package authcore

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/TheLurkingCat/ueransim-go/internal/kdf"
)

// Aka5GHandler drives the 5G-AKA method (spec §4.4): it validates the
// AUTN the network sent, derives RES*/KAUSF/KSEAF/KAMF on success, and
// builds the AuthenticationResponse or AuthenticationFailure to send
// back. It holds no network-facing state of its own; the procedure
// controller supplies everything per call.
type Aka5GHandler struct {
	Cfg    *USIMConfig
	SqnMgr SqnManager

	// SkipAutnOnRandMatch enables the spec §9 optimisation: when the
	// network resends the exact RAND already answered, the UE may reply
	// from the cached RES* instead of
	// re-running Milenage. Defaults to enabled, matching the source's
	// behaviour; the procedure controller checks this flag via
	// MatchesLastRand before calling HandleRequest.
	SkipAutnOnRandMatch bool
}

// NewAka5GHandler constructs a handler bound to one USIM configuration,
// with the RAND-replay optimisation enabled by default.
func NewAka5GHandler(cfg *USIMConfig, sqnMgr SqnManager) *Aka5GHandler {
	return &Aka5GHandler{Cfg: cfg, SqnMgr: sqnMgr, SkipAutnOnRandMatch: true}
}

// HandleRequest processes one AuthenticationRequest under 5G-AKA.
//
// On AUTNOk it returns a populated AuthenticationResponse, the derived
// KeySet to stage into the non-current NAS security context, and the
// volatile RAND/RES* state to remember for the replay optimisation
// (spec §4.4 step 5).
//
// On any other AUTNResult it returns a populated AuthenticationFailure
// and a nil KeySet; the caller (the procedure controller) is
// responsible for incrementing the consecutive-failure trip counter
// and for NOT touching the current security context.
func (h *Aka5GHandler) HandleRequest(req *AuthenticationRequest) (*AuthenticationResponse, *AuthenticationFailure, *KeySet, *AuthVolatileState, error) {
	// Spec §4.4: ngKSI must name a native context and must not carry the
	// reserved "no key available" value (0b111).
	if !req.Native {
		return nil, &AuthenticationFailure{Cause: CauseUnspecifiedProtocolError}, nil, nil, nil
	}
	if req.NgKSI == 0b111 {
		return nil, &AuthenticationFailure{Cause: CauseUnspecifiedProtocolError}, nil, nil, nil
	}
	if len(req.Rand) != 16 || len(req.Autn) != 16 {
		return nil, &AuthenticationFailure{Cause: CauseSemanticallyIncorrectMessage}, nil, nil, nil
	}

	result, auts, rec, err := ValidateAutn(h.Cfg, h.SqnMgr, req.Rand, req.Autn)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("authcore: 5G-AKA AUTN validation: %w", err)
	}

	switch result {
	case AUTNMacFailure:
		log.WithField("method", "5g-aka").Warn("authentication request MAC failure")
		return nil, &AuthenticationFailure{Cause: CauseMACFailure}, nil, nil, nil
	case AUTNAmfSeparationBitFailure:
		log.WithField("method", "5g-aka").Warn("authentication request AMF separation bit not set")
		return nil, &AuthenticationFailure{Cause: CauseNonEPSAuthenticationUnacceptable}, nil, nil, nil
	case AUTNSynchronisationFailure:
		log.WithField("method", "5g-aka").Info("authentication request synchronisation failure, sending AUTS")
		return nil, &AuthenticationFailure{Cause: CauseSynchFailure, Auts: auts}, nil, nil, nil
	}

	snn := kdf.ConstructServingNetworkName(h.Cfg.MCC, h.Cfg.MNC)
	sqnXorAK := req.Autn[0:6]

	kausf := kdf.CalculateKAusfFor5gAka(rec.CK, rec.IK, snn, sqnXorAK)
	kseaf := kdf.CalculateKSeaf(kausf, snn)
	kamf := kdf.CalculateKAmf(kseaf, h.Cfg.SUPI, req.Abba)
	resStar := kdf.CalculateResStar(rec.CK, rec.IK, snn, req.Rand, rec.RES)

	keys := &KeySet{Kausf: kausf, Kseaf: kseaf, Kamf: kamf, Abba: req.Abba}
	volatile := &AuthVolatileState{LastRand: req.Rand, LastResStar: resStar}

	return &AuthenticationResponse{ResStar: resStar}, nil, keys, volatile, nil
}

// MatchesLastRand implements the RAND==storedRAND optimisation of spec
// §4.4 step 5b: if the network resends the exact RAND already answered,
// the UE may answer immediately from cached RES* rather than re-running
// Milenage. Only the RAND is compared; the ngKSI is not.
func MatchesLastRand(v *AuthVolatileState, rand []byte) bool {
	if v == nil || len(v.LastRand) == 0 || len(rand) != len(v.LastRand) {
		return false
	}
	for i := range rand {
		if rand[i] != v.LastRand[i] {
			return false
		}
	}
	return true
}
