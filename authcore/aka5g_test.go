package authcore

import (
	"testing"

	"github.com/TheLurkingCat/ueransim-go/internal/milenage"
)

func TestAka5GHandlerHandleRequestOk(t *testing.T) {
	cfg, rand, opc := testCfg(t)
	cfg.MCC, cfg.MNC = 1, 1
	cfg.SUPI = "imsi-001011234567895"
	sqn := decodeHex(t, "000000000001")
	amf := []byte{0xb9, 0xb9}
	autn := buildAutn(t, opc, cfg.K, rand, sqn, amf)

	mgr := &fakeSqnManager{sqn: sqn, accept: true}
	h := NewAka5GHandler(cfg, mgr)

	resp, fail, keys, volatile, err := h.HandleRequest(&AuthenticationRequest{
		Native: true,
		Rand:   rand,
		Autn:   autn,
		Abba:   []byte{0x00, 0x00},
	})
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if fail != nil {
		t.Fatalf("unexpected failure: %+v", fail)
	}
	if resp == nil || len(resp.ResStar) != 16 {
		t.Fatalf("expected 16-byte RES*, got %+v", resp)
	}
	if keys == nil || len(keys.Kausf) != 32 || len(keys.Kseaf) != 32 || len(keys.Kamf) != 32 {
		t.Fatalf("expected full key set, got %+v", keys)
	}
	if volatile == nil || !MatchesLastRand(volatile, rand) {
		t.Fatal("expected volatile state remembering RAND")
	}
}

func TestAka5GHandlerHandleRequestMacFailure(t *testing.T) {
	cfg, rand, opc := testCfg(t)
	sqn := decodeHex(t, "000000000001")
	amf := []byte{0xb9, 0xb9}
	autn := buildAutn(t, opc, cfg.K, rand, sqn, amf)
	autn[9] ^= 0xff

	mgr := &fakeSqnManager{sqn: sqn, accept: true}
	h := NewAka5GHandler(cfg, mgr)

	resp, fail, keys, _, err := h.HandleRequest(&AuthenticationRequest{Native: true, Rand: rand, Autn: autn})
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if resp != nil || keys != nil {
		t.Fatal("expected no response/keys on MAC failure")
	}
	if fail == nil || fail.Cause != CauseMACFailure {
		t.Fatalf("expected CauseMACFailure, got %+v", fail)
	}
}

func TestAka5GHandlerHandleRequestSynchFailure(t *testing.T) {
	cfg, rand, opc := testCfg(t)
	sqn := decodeHex(t, "000000000009")
	amf := []byte{0xb9, 0xb9}
	autn := buildAutn(t, opc, cfg.K, rand, sqn, amf)

	mgr := &fakeSqnManager{sqn: sqn, accept: false}
	h := NewAka5GHandler(cfg, mgr)

	resp, fail, keys, _, err := h.HandleRequest(&AuthenticationRequest{Native: true, Rand: rand, Autn: autn})
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if resp != nil || keys != nil {
		t.Fatal("expected no response/keys on synch failure")
	}
	if fail == nil || fail.Cause != CauseSynchFailure || len(fail.Auts) != 14 {
		t.Fatalf("expected CauseSynchFailure with AUTS, got %+v", fail)
	}
}

func TestAka5GHandlerHandleRequestRejectsMappedContext(t *testing.T) {
	cfg := &USIMConfig{K: make([]byte, milenage.KeyLen), OPc: make([]byte, milenage.KeyLen), OpType: OpTypeOPc}
	mgr := &fakeSqnManager{sqn: make([]byte, 6), accept: true}
	h := NewAka5GHandler(cfg, mgr)

	_, fail, keys, _, err := h.HandleRequest(&AuthenticationRequest{
		Native: false, NgKSI: 1, Rand: make([]byte, 16), Autn: make([]byte, 16),
	})
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if keys != nil {
		t.Fatal("expected no keys for a mapped-context ngKSI")
	}
	if fail == nil || fail.Cause != CauseUnspecifiedProtocolError {
		t.Fatalf("expected CauseUnspecifiedProtocolError, got %+v", fail)
	}
}

func TestAka5GHandlerHandleRequestRejectsReservedNgKSI(t *testing.T) {
	cfg := &USIMConfig{K: make([]byte, milenage.KeyLen), OPc: make([]byte, milenage.KeyLen), OpType: OpTypeOPc}
	mgr := &fakeSqnManager{sqn: make([]byte, 6), accept: true}
	h := NewAka5GHandler(cfg, mgr)

	_, fail, keys, _, err := h.HandleRequest(&AuthenticationRequest{
		Native: true, NgKSI: 0b111, Rand: make([]byte, 16), Autn: make([]byte, 16),
	})
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if keys != nil {
		t.Fatal("expected no keys for the reserved ngKSI value")
	}
	if fail == nil || fail.Cause != CauseUnspecifiedProtocolError {
		t.Fatalf("expected CauseUnspecifiedProtocolError, got %+v", fail)
	}
}

func TestAka5GHandlerHandleRequestRejectsMalformedLengths(t *testing.T) {
	cfg := &USIMConfig{K: make([]byte, milenage.KeyLen), OPc: make([]byte, milenage.KeyLen), OpType: OpTypeOPc}
	mgr := &fakeSqnManager{sqn: make([]byte, 6), accept: true}
	h := NewAka5GHandler(cfg, mgr)

	_, fail, keys, _, err := h.HandleRequest(&AuthenticationRequest{Native: true, NgKSI: 1})
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if keys != nil {
		t.Fatal("expected no keys for missing RAND/AUTN")
	}
	if fail == nil || fail.Cause != CauseSemanticallyIncorrectMessage {
		t.Fatalf("expected CauseSemanticallyIncorrectMessage, got %+v", fail)
	}
}
