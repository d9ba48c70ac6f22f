// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package authcore implements the UE-side 5G NAS Mobility Management
// authentication procedures: 5G-AKA, EAP-AKA' and the experimental
// EAP-TLS method, the AUTN validator they share, and the procedure
// controller that dispatches AuthenticationRequest/Result/Reject
// messages and tracks NAS security contexts across them.
package authcore

import (
	"errors"
	"time"
)

// OpType selects how a USIM's OPc is obtained.
type OpType int

const (
	// OpTypeOP means Config carries a raw OP value; OPc is derived from
	// it via internal/milenage.CalculateOpC on each AUTN validation.
	OpTypeOP OpType = iota
	// OpTypeOPc means Config already carries the derived OPc directly.
	OpTypeOPc
)

// USIMConfig holds the long-term credentials and identifiers normally
// burned into a physical USIM, plus the EAP-TLS material the
// experimental method needs. K/OP/OPc/AMF are raw bytes; SUPI/MCC/
// MNC identify the subscriber and serving network.
type USIMConfig struct {
	K      []byte
	OP     []byte
	OPc    []byte
	OpType OpType
	AMF    []byte // 2 bytes, operator-configured default AMF
	SUPI   string
	MCC    int
	MNC    int

	// EAP-TLS credentials (spec §4.6); empty if the method is unused.
	ClientCertPath string
	ClientKeyPath  string
	CACertPath     string
}

// SqnManager abstracts the USIM's sequence-number bookkeeping so the
// AUTN validator (C3) never touches raw counters directly. Real USIMs
// keep SQN in non-volatile storage with an array-scheme freshness
// window; this interface lets the procedure controller supply any
// scheme without authcore depending on its internals.
type SqnManager interface {
	// GetSqn returns the USIM's current locally-held SQN (6 bytes).
	GetSqn() []byte
	// CheckSqn reports whether a recovered network SQN falls within
	// the freshness window, per spec §4.3 step 3.
	CheckSqn(received []byte) bool
	// Resynchronise advances the USIM's local SQN following a
	// successful resynchronisation (AUTS exchange).
	Resynchronise(newSqn []byte)
}

// Timer abstracts the NAS timers (T3516, T3520, ...) so the procedure
// controller can start/stop them without owning a concrete clock.
// Implementations are expected to invoke onExpiry on their own
// goroutine; the controller is single-threaded and does not block on
// Start.
type Timer interface {
	Start(d time.Duration, onExpiry func())
	Stop()
}

// Method identifies which authentication procedure is in progress.
type Method int

const (
	MethodNone Method = iota
	Method5GAKA
	MethodEAPAKAPrime
	MethodEAPTLS
)

// AUTNResult is the four-way outcome of validating a network's AUTN
// against the USIM's credentials, per spec §4.3.
type AUTNResult int

const (
	AUTNOk AUTNResult = iota
	AUTNMacFailure
	AUTNSynchronisationFailure
	AUTNAmfSeparationBitFailure
)

func (r AUTNResult) String() string {
	switch r {
	case AUTNOk:
		return "OK"
	case AUTNMacFailure:
		return "MAC_FAILURE"
	case AUTNSynchronisationFailure:
		return "SYNCHRONISATION_FAILURE"
	case AUTNAmfSeparationBitFailure:
		return "AMF_SEPARATION_BIT_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// FailureCause enumerates the 5GMM cause values an AuthenticationFailure
// or MmStatus message can carry, restricted to the subset the
// authentication procedures use.
type FailureCause int

const (
	CauseMACFailure FailureCause = iota
	CauseNonEPSAuthenticationUnacceptable
	CauseSynchFailure
	CauseNgKSIAlreadyInUse
	CauseMessageNotCompatibleWithState
	// CauseUnspecifiedProtocolError covers the §4.4 ngKSI preconditions:
	// a ngKSI whose tsc does not indicate a native context, or whose ksi
	// value is the reserved "no key available" value (0b111).
	CauseUnspecifiedProtocolError
	// CauseSemanticallyIncorrectMessage covers a malformed
	// AuthenticationRequest/EAP challenge: wrong-length RAND/AUTN, or a
	// missing/malformed mandatory attribute.
	CauseSemanticallyIncorrectMessage
)

// KeySet holds the NAS key hierarchy derived from one completed
// authentication run, per spec §4.1/§4.2.
type KeySet struct {
	Kausf []byte // 32B
	Kseaf []byte // 32B
	Kamf  []byte // 32B
	Abba  []byte
}

// NasSecurityContext is one slot (current or non-current) of NAS
// security state, per spec §3.
type NasSecurityContext struct {
	Valid  bool
	NgKSI  int
	Native bool // true = native context, false = mapped
	Keys   KeySet
}

// AuthVolatileState is the UE-local state kept only for the duration of
// one authentication attempt: the RAND most recently accepted (for the
// RAND-replay optimisation), the derived RES*, and the consecutive
// network-side failure trip counter, per spec §4.4/§4.7.
type AuthVolatileState struct {
	LastRand                []byte
	LastResStar              []byte
	NwConsecutiveAuthFailure int
}

// ErrTripCounterExceeded is returned when the consecutive
// network-failing-the-auth-check counter exceeds MaxConsecutiveAuthFailures.
var ErrTripCounterExceeded = errors.New("authcore: network failed the authentication check too many times")

// AuthenticationRequest models the inbound NAS message carrying the
// challenge, per spec §4.2.
type AuthenticationRequest struct {
	NgKSI    int
	Native   bool
	Rand     []byte
	Autn     []byte
	Abba     []byte
	EapPacket []byte // populated instead of Rand/Autn for EAP methods
}

// AuthenticationResult models the inbound NAS message used to carry an
// EAP-Success/Request round-trip for EAP-AKA'/EAP-TLS.
type AuthenticationResult struct {
	NgKSI     int
	Native    bool
	EapPacket []byte
}

// AuthenticationReject models the inbound NAS reject message, per spec
// §4.7.
type AuthenticationReject struct {
	EapPacket []byte // optional EAP-Failure, for EAP methods
}

// AuthenticationResponse models the outbound success response carrying
// RES* or an EAP packet.
type AuthenticationResponse struct {
	ResStar   []byte
	EapPacket []byte
}

// AuthenticationFailure models the outbound failure message.
type AuthenticationFailure struct {
	Cause FailureCause
	Auts  []byte // only for CauseSynchFailure
}

// MmStatus models the outbound 5GMM STATUS message sent for protocol
// errors such as an unexpected message in the current state.
type MmStatus struct {
	Cause FailureCause
}
