// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package authcore

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/TheLurkingCat/ueransim-go/authcore/eap"
	"github.com/TheLurkingCat/ueransim-go/internal/kdf"
)

// MaxConsecutiveAuthFailures is the trip threshold for
// networkFailingTheAuthCheck, spec §4.7: once the network fails the
// authentication check more than this many times in a row (a fourth
// consecutive failure), the UE aborts the attempt and emits no further
// NAS message instead of retrying indefinitely.
const MaxConsecutiveAuthFailures = 3

// Default NAS timer durations, TS 24.501 Table 10.2.2.
const (
	T3520Duration = 6 * time.Second
	T3516Duration = 6 * time.Second
)

// Controller is the single-threaded procedure controller (C7): it owns
// the current/non-current NAS security context slots and the volatile
// authentication state, and dispatches inbound NAS messages to the
// 5G-AKA, EAP-AKA' or EAP-TLS handler currently in progress.
type Controller struct {
	Cfg    *USIMConfig
	SqnMgr SqnManager
	Log    *AuthenticationEventLog

	T3520 Timer // authentication timer
	T3516 Timer // RAND/RES* retention timer; only stopped, on AuthenticationReject

	CurrentNsCtx    NasSecurityContext
	NonCurrentNsCtx NasSecurityContext
	Volatile        AuthVolatileState

	method Method
	eapAka *EapAkaPrimeHandler
	eapTLS *EapTlsHandler
}

// NewController builds a controller wired to one USIM configuration and
// its SqnManager. The caller supplies the T3520/T3516 timer
// implementations (spec §4.7); nil timers are accepted for tests that
// do not exercise timeout behavior.
func NewController(cfg *USIMConfig, sqnMgr SqnManager, t3520, t3516 Timer) *Controller {
	return &Controller{
		Cfg:    cfg,
		SqnMgr: sqnMgr,
		Log:    NewAuthenticationEventLog(32),
		T3520:  t3520,
		T3516:  t3516,
	}
}

// ngKsiCollides reports whether ngKSI is already bound to a valid
// native context in either security-context slot, spec §4.4: the
// current context as well as a non-current context staged by a
// previous AuthenticationRequest both count.
func (c *Controller) ngKsiCollides(ngKSI int) bool {
	if c.CurrentNsCtx.Valid && c.CurrentNsCtx.Native && c.CurrentNsCtx.NgKSI == ngKSI {
		return true
	}
	if c.NonCurrentNsCtx.Valid && c.NonCurrentNsCtx.Native && c.NonCurrentNsCtx.NgKSI == ngKSI {
		return true
	}
	return false
}

// ReceiveAuthenticationRequest handles an inbound AuthenticationRequest,
// per spec §4.7: it rejects a request whose ngKSI collides with an
// already-in-use native context, otherwise dispatches to the 5G-AKA or
// an EAP method handler and starts T3520.
func (c *Controller) ReceiveAuthenticationRequest(req *AuthenticationRequest) (*AuthenticationResponse, *MmStatus, *AuthenticationFailure, error) {
	if req.EapPacket != nil {
		if c.ngKsiCollides(req.NgKSI) {
			c.Log.Record("authentication-request", "ngKSI already in use")
			return nil, nil, &AuthenticationFailure{Cause: CauseNgKSIAlreadyInUse}, nil
		}
		return c.receiveEapChallenge(req)
	}
	return c.receive5GAkaRequest(req)
}

func (c *Controller) receive5GAkaRequest(req *AuthenticationRequest) (*AuthenticationResponse, *MmStatus, *AuthenticationFailure, error) {
	c.method = Method5GAKA
	h := NewAka5GHandler(c.Cfg, c.SqnMgr)

	if h.SkipAutnOnRandMatch && MatchesLastRand(&c.Volatile, req.Rand) {
		c.Log.Record("authentication-request", "answering from cached RES* (RAND replay)")
		return &AuthenticationResponse{ResStar: c.Volatile.LastResStar}, nil, nil, nil
	}

	// A retransmission of the same RAND was already handled above; a
	// genuinely new challenge reusing an in-use ngKSI is a collision.
	if c.ngKsiCollides(req.NgKSI) {
		c.Log.Record("authentication-request", "ngKSI already in use")
		return nil, nil, &AuthenticationFailure{Cause: CauseNgKSIAlreadyInUse}, nil
	}

	resp, fail, keys, volatile, err := h.HandleRequest(req)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("authcore: 5G-AKA dispatch: %w", err)
	}
	if fail != nil {
		switch fail.Cause {
		case CauseMACFailure, CauseSynchFailure, CauseNonEPSAuthenticationUnacceptable:
			if c.onNetworkFailingTheAuthCheck(fail) {
				return nil, nil, nil, ErrTripCounterExceeded
			}
		}
		return nil, nil, fail, nil
	}

	c.stageNonCurrentContext(*keys, req.NgKSI, true)
	volatile.NwConsecutiveAuthFailure = 0
	c.Volatile = *volatile
	c.startTimer(c.T3520)
	c.Log.Record("authentication-request", "5G-AKA challenge accepted")
	return resp, nil, nil, nil
}

// receiveEapChallenge routes an inbound EAP-carrying AuthenticationRequest
// to the AKA'/AKA or TLS handler currently bound to it, selecting by the
// inner EAP method type on first contact (spec §4.5/§4.6 via C5).
func (c *Controller) receiveEapChallenge(req *AuthenticationRequest) (*AuthenticationResponse, *MmStatus, *AuthenticationFailure, error) {
	methodType, err := eap.PeekType(req.EapPacket)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("authcore: EAP dispatch: %w", err)
	}

	if methodType == eap.TypeTLS {
		return c.receiveEapTlsChallenge(req)
	}
	return c.receiveEapAkaPrimeChallenge(req)
}

func (c *Controller) receiveEapAkaPrimeChallenge(req *AuthenticationRequest) (*AuthenticationResponse, *MmStatus, *AuthenticationFailure, error) {
	c.method = MethodEAPAKAPrime
	if c.eapAka == nil {
		c.eapAka = NewEapAkaPrimeHandler(c.Cfg, c.SqnMgr)
	}

	respWire, keys, status, err := c.eapAka.HandleRequest(req.EapPacket)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("authcore: EAP-AKA' dispatch: %w", err)
	}
	if status != nil {
		c.Log.Record("authentication-request", "EAP-AKA' challenge rejected as a protocol-syntax violation")
		return nil, status, nil, nil
	}
	if keys != nil {
		keys.Abba = req.Abba
		keys.Kamf = kdf.CalculateKAmf(keys.Kseaf, c.Cfg.SUPI, req.Abba)
		c.stageNonCurrentContext(*keys, req.NgKSI, true)
		c.startTimer(c.T3520)
		c.Log.Record("authentication-request", "EAP-AKA' challenge accepted")
	} else {
		c.Log.Record("authentication-request", "EAP-AKA' challenge produced error response")
	}
	return &AuthenticationResponse{EapPacket: respWire}, nil, nil, nil
}

func (c *Controller) receiveEapTlsChallenge(req *AuthenticationRequest) (*AuthenticationResponse, *MmStatus, *AuthenticationFailure, error) {
	c.method = MethodEAPTLS
	if c.eapTLS == nil {
		h, err := NewEapTlsHandler(c.Cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("authcore: EAP-TLS handshake start: %w", err)
		}
		c.eapTLS = h
		respWire, err := c.eapTLS.Start()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("authcore: EAP-TLS handshake start: %w", err)
		}
		c.startTimer(c.T3520)
		c.Log.Record("authentication-request", "EAP-TLS handshake started")
		return &AuthenticationResponse{EapPacket: respWire}, nil, nil, nil
	}

	respWire, done, keys, err := c.eapTLS.HandleFragment(req.EapPacket)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("authcore: EAP-TLS dispatch: %w", err)
	}
	if done && keys != nil {
		c.stageNonCurrentContext(*keys, req.NgKSI, true)
		c.Log.Record("authentication-request", "EAP-TLS handshake complete")
	}
	return &AuthenticationResponse{EapPacket: respWire}, nil, nil, nil
}

// ReceiveAuthenticationResult handles the EAP-method round-trip carried
// in a NAS Authentication-Result message (spec §4.5/§4.6): further EAP
// fragments for EAP-AKA' or EAP-TLS.
func (c *Controller) ReceiveAuthenticationResult(res *AuthenticationResult) (*AuthenticationResponse, *MmStatus, error) {
	switch c.method {
	case MethodEAPAKAPrime:
		respWire, keys, status, err := c.eapAka.HandleRequest(res.EapPacket)
		if err != nil {
			return nil, nil, fmt.Errorf("authcore: EAP-AKA' result dispatch: %w", err)
		}
		if status != nil {
			return nil, status, nil
		}
		if keys != nil {
			c.stageNonCurrentContext(*keys, res.NgKSI, true)
		}
		return &AuthenticationResponse{EapPacket: respWire}, nil, nil
	case MethodEAPTLS:
		if c.eapTLS == nil {
			return nil, nil, fmt.Errorf("authcore: EAP-TLS result received with no handshake in progress")
		}
		respWire, done, keys, err := c.eapTLS.HandleFragment(res.EapPacket)
		if err != nil {
			return nil, nil, fmt.Errorf("authcore: EAP-TLS result dispatch: %w", err)
		}
		if done && keys != nil {
			c.stageNonCurrentContext(*keys, res.NgKSI, true)
			c.Log.Record("authentication-result", "EAP-TLS handshake complete")
		}
		return &AuthenticationResponse{EapPacket: respWire}, nil, nil
	default:
		return nil, nil, fmt.Errorf("authcore: unexpected authentication-result in method state %d", c.method)
	}
}

// ReceiveAuthenticationReject handles the inbound reject message, per
// spec §4.7: stop the T3520/T3516 timers, discard both NAS security
// contexts, and clear the volatile authentication state and the method
// in progress.
func (c *Controller) ReceiveAuthenticationReject(rej *AuthenticationReject) {
	c.stopTimer(c.T3520)
	c.stopTimer(c.T3516)
	c.CurrentNsCtx = NasSecurityContext{}
	c.NonCurrentNsCtx = NasSecurityContext{}
	c.Volatile = AuthVolatileState{}
	c.method = MethodNone
	c.eapAka = nil
	c.eapTLS = nil
	c.Log.Record("authentication-reject", "security contexts and timers cleared")
}

// onNetworkFailingTheAuthCheck implements the consecutive-failure trip
// counter of spec §4.7: repeated MAC, synchronisation and AMF
// separation-bit failures from the network abort the attempt rather
// than retrying forever. It reports true once
// the counter has exceeded MaxConsecutiveAuthFailures, at which point
// the caller must suppress any outbound NAS message entirely.
func (c *Controller) onNetworkFailingTheAuthCheck(fail *AuthenticationFailure) (tripped bool) {
	c.Volatile.NwConsecutiveAuthFailure++
	c.Log.Record("authentication-request", fmt.Sprintf("network failing auth check (%d/%d): %v",
		c.Volatile.NwConsecutiveAuthFailure, MaxConsecutiveAuthFailures, fail.Cause))
	if c.Volatile.NwConsecutiveAuthFailure > MaxConsecutiveAuthFailures {
		log.WithField("component", "controller").Error("network failed the authentication check too many times in a row")
		c.stopTimer(c.T3520)
		c.NonCurrentNsCtx = NasSecurityContext{}
		return true
	}
	return false
}

func (c *Controller) stageNonCurrentContext(keys KeySet, ngKSI int, native bool) {
	c.NonCurrentNsCtx = NasSecurityContext{Valid: true, NgKSI: ngKSI, Native: native, Keys: keys}
}

func (c *Controller) startTimer(t Timer) {
	if t == nil {
		return
	}
	t.Start(T3520Duration, func() {
		log.WithField("component", "controller").Warn("T3520 expired without a network response")
	})
}

func (c *Controller) stopTimer(t Timer) {
	if t == nil {
		return
	}
	t.Stop()
}
