// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package authcore

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/TheLurkingCat/ueransim-go/authcore/eap"
	"github.com/TheLurkingCat/ueransim-go/internal/kdf"
)

// eapAkaPrimeKdfVariant is the only AT_KDF value this UE supports,
// RFC 5448 §3.2.
const eapAkaPrimeKdfVariant = 1

// EapAkaPrimeHandler drives the EAP-AKA' method (spec §4.5): it
// validates the EAP-Request/AKA'-Challenge attributes, runs the shared
// AUTN check, derives CK'/IK' from CK/IK and then MK and its sub-keys,
// verifies AT_MAC, and builds the EAP-Response.
type EapAkaPrimeHandler struct {
	Cfg    *USIMConfig
	SqnMgr SqnManager
}

// NewEapAkaPrimeHandler constructs a handler bound to one USIM configuration.
func NewEapAkaPrimeHandler(cfg *USIMConfig, sqnMgr SqnManager) *EapAkaPrimeHandler {
	return &EapAkaPrimeHandler{Cfg: cfg, SqnMgr: sqnMgr}
}

// HandleRequest processes one EAP-Request/AKA'-Challenge packet.
//
// On success it returns an EAP-Response/AKA'-Challenge packet carrying
// AT_RES and a fresh AT_MAC, the derived KeySet staged for the
// procedure controller, and a nil status.
//
// A malformed or out-of-state EAP envelope (wrong type/subtype, or a
// missing/wrong-length AT_RAND/AT_AUTN) is a protocol-syntax violation,
// spec §6/§7.1, reported via a returned MmStatus rather than any EAP
// packet. An unacceptable AT_KDF or missing AT_KDF_INPUT, and an AUTN
// MAC-A failure (C3 MAC_FAILURE), are reported as
// EAP-Response/AKA'-Authentication-Reject, spec §4.5. A failed AMF
// separation-bit check or a failed verification of the network's own
// AT_MAC (computed over K_aut once the AUTN has already validated) are
// reported as EAP-Response/AKA'-Client-Error.
func (h *EapAkaPrimeHandler) HandleRequest(eapPacket []byte) (respPacket []byte, keys *KeySet, status *MmStatus, err error) {
	req, err := eap.Decode(eapPacket)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("authcore: eap-aka' decode: %w", err)
	}
	if req.Type != eap.TypeAkaPrime || req.Subtype != eap.SubtypeChallenge {
		log.WithField("method", "eap-aka-prime").Warn("unexpected EAP type/subtype for this state")
		return nil, nil, &MmStatus{Cause: CauseSemanticallyIncorrectMessage}, nil
	}

	randAttr := req.Find(eap.AttrRand)
	autnAttr := req.Find(eap.AttrAutn)
	if randAttr == nil || autnAttr == nil || len(randAttr.Value) != 16 || len(autnAttr.Value) != 16 {
		log.WithField("method", "eap-aka-prime").Warn("malformed AT_RAND/AT_AUTN")
		return nil, nil, &MmStatus{Cause: CauseSemanticallyIncorrectMessage}, nil
	}

	kdfAttr := req.Find(eap.AttrKdf)
	if kdfAttr == nil || len(kdfAttr.Value) < 2 || kdfAttr.Value[1] != eapAkaPrimeKdfVariant {
		log.WithField("method", "eap-aka-prime").Warn("unacceptable or missing AT_KDF")
		return akaReject(req.Identifier), nil, nil, nil
	}
	kdfInput := req.Find(eap.AttrKdfInput)
	if kdfInput == nil {
		log.WithField("method", "eap-aka-prime").Warn("missing AT_KDF_INPUT")
		return akaReject(req.Identifier), nil, nil, nil
	}
	snn := string(kdfInput.Value)

	result, auts, rec, err := ValidateAutn(h.Cfg, h.SqnMgr, randAttr.Value, autnAttr.Value)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("authcore: eap-aka' AUTN validation: %w", err)
	}

	switch result {
	case AUTNMacFailure:
		log.WithField("method", "eap-aka-prime").Warn("authentication challenge MAC-A failure")
		return akaReject(req.Identifier), nil, nil, nil
	case AUTNAmfSeparationBitFailure:
		log.WithField("method", "eap-aka-prime").Warn("authentication challenge AMF separation bit failure")
		return clientError(req.Identifier), nil, nil, nil
	case AUTNSynchronisationFailure:
		log.WithField("method", "eap-aka-prime").Info("authentication challenge synchronisation failure")
		resp := &eap.Packet{
			Code:       eap.CodeResponse,
			Identifier: req.Identifier,
			Type:       eap.TypeAkaPrime,
			Subtype:    eap.SubtypeSynchronizationFailure,
			Attrs:      []eap.Attr{{Type: eap.AttrAuts, Value: auts}},
		}
		return resp.Encode(), nil, nil, nil
	}

	sqnXorAK := autnAttr.Value[0:6]
	ckPrime, ikPrime := kdf.CalculateCkPrimeIkPrime(rec.CK, rec.IK, snn, sqnXorAK)
	mk := kdf.CalculateMk(ckPrime, ikPrime, h.Cfg.SUPI)
	kaut := kdf.KAUT(mk)
	kausf := kdf.CalculateKAusfForEapAkaPrime(mk)
	kseaf := kdf.CalculateKSeaf(kausf, snn)

	// RFC 4187 §9.4: once K_aut is known, verify the network's own
	// AT_MAC on the request itself. This is distinct from AUTN's MAC-A,
	// which ValidateAutn already checked.
	reqMacAttr := req.Find(eap.AttrMac)
	if reqMacAttr == nil || len(reqMacAttr.Value) != 16 {
		log.WithField("method", "eap-aka-prime").Warn("missing AT_MAC on challenge")
		return clientError(req.Identifier), nil, nil, nil
	}
	reqMacOffset := macValueOffset(eapPacket)
	zeroedReq := eap.ZeroMAC(eapPacket, reqMacOffset, 16)
	expectedReqMac := kdf.CalculateMacForEapAkaPrime(kaut, zeroedReq)
	if !constantTimeEqual(expectedReqMac, reqMacAttr.Value) {
		log.WithField("method", "eap-aka-prime").Warn("AT_MAC verification failure on challenge")
		return clientError(req.Identifier), nil, nil, nil
	}

	resp := &eap.Packet{
		Code:       eap.CodeResponse,
		Identifier: req.Identifier,
		Type:       eap.TypeAkaPrime,
		Subtype:    eap.SubtypeChallenge,
		Attrs: []eap.Attr{
			{Type: eap.AttrRes, Value: rec.RES},
			{Type: eap.AttrMac, Value: make([]byte, 16)}, // placeholder, filled below
		},
	}
	wire := resp.Encode()
	macOffset := macValueOffset(wire)
	zeroed := eap.ZeroMAC(wire, macOffset, 16)
	mac := kdf.CalculateMacForEapAkaPrime(kaut, zeroed)
	copy(wire[macOffset:macOffset+16], mac)

	// KAMF/ABBA are not carried by EAP-AKA' itself. For a challenge that
	// arrives in an AuthenticationRequest the procedure controller derives
	// KAMF from that message's ABBA; a challenge relayed through
	// ReceiveAuthenticationResult is staged without KAMF.
	keys = &KeySet{Kausf: kausf, Kseaf: kseaf}
	return wire, keys, nil, nil
}

func clientError(identifier uint8) []byte {
	resp := &eap.Packet{
		Code:       eap.CodeResponse,
		Identifier: identifier,
		Type:       eap.TypeAkaPrime,
		Subtype:    eap.SubtypeClientError,
		Attrs:      []eap.Attr{{Type: eap.AttrClientErrorCode, Value: []byte{0x00, 0x00}}},
	}
	return resp.Encode()
}

// akaReject builds an EAP-Response/AKA'-Authentication-Reject, RFC
// 4187 §8.1: carries no attributes, and ends the EAP-AKA' conversation
// from the peer's side.
func akaReject(identifier uint8) []byte {
	resp := &eap.Packet{
		Code:       eap.CodeResponse,
		Identifier: identifier,
		Type:       eap.TypeAkaPrime,
		Subtype:    eap.SubtypeAuthenticationReject,
	}
	return resp.Encode()
}

// macValueOffset locates the AT_MAC value's start within an encoded
// packet by re-decoding it and measuring the attribute's position.
// EAP-AKA' always places attributes back to back after the 8-byte
// header (5-byte EAP header + 3-byte subtype block), so this walks the
// same layout Encode produced.
func macValueOffset(wire []byte) int {
	offset := 8
	for offset+4 <= len(wire) {
		at := eap.AttrType(wire[offset])
		l := int(wire[offset+1]) * 4
		if at == eap.AttrMac {
			return offset + 4
		}
		if l == 0 {
			break
		}
		offset += l
	}
	return offset
}
