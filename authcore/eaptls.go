// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package authcore

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// eapTlsState is the experimental EAP-TLS method's local state machine,
// spec §4.6: TLS_START issues the initial EAP-Response carrying the
// ClientHello, TLS_HANDSHAKE relays subsequent flights until the peer
// sends EAP-Success, and TLS_DONE is terminal.
type eapTlsState int

const (
	eapTlsStateIdle eapTlsState = iota
	eapTlsStateStart
	eapTlsStateHandshake
	eapTlsStateDone
)

// keyMaterialExportLabel is the TLS exporter label used to derive NAS
// keying material from the completed handshake, mirroring the exporter
// convention RFC 5216's successors use instead of the legacy P_hash
// construction.
const keyMaterialExportLabel = "EXPORTER_EAP_TLS_Key_Material"

// EapTlsHandler drives the experimental EAP-TLS method over an
// in-memory duplex connection: a background goroutine runs the real
// crypto/tls client handshake against one end of a net.Pipe, while
// HandleFragment relays the bytes the network actually carries in NAS
// Authentication-Result/EAP-Request messages through the other end.
// This replaces the OpenSSL BIO-pair plumbing the method would use in
// a C implementation; crypto/tls has no public BIO-style API, so a
// pipe plus a handshake goroutine is the idiomatic Go substitute.
type EapTlsHandler struct {
	Cfg   *USIMConfig
	state eapTlsState

	local  net.Conn
	peer   net.Conn
	tlsCon *tls.Conn
	doneCh chan error
}

// NewEapTlsHandler constructs a handler bound to one USIM's EAP-TLS
// credentials. It does not start the handshake; call Start for that.
func NewEapTlsHandler(cfg *USIMConfig) (*EapTlsHandler, error) {
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, fmt.Errorf("authcore: EAP-TLS requires a client certificate and key")
	}
	return &EapTlsHandler{Cfg: cfg, state: eapTlsStateIdle}, nil
}

func (h *EapTlsHandler) buildTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(h.Cfg.ClientCertPath, h.Cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("authcore: load EAP-TLS client certificate: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ServerName:   h.Cfg.SUPI,
	}
	if h.Cfg.CACertPath != "" {
		pem, err := os.ReadFile(h.Cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("authcore: read EAP-TLS CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("authcore: no certificates parsed from CA file %s", h.Cfg.CACertPath)
		}
		cfg.RootCAs = pool
	} else {
		// No CA material supplied; accept the server's certificate
		// without chain verification. Only appropriate for the lab/demo
		// configurations this experimental method targets.
		cfg.InsecureSkipVerify = true
	}
	return cfg, nil
}

// Start begins the handshake and returns the wire bytes of the first
// EAP-Response/EAP-TLS fragment, carrying the ClientHello.
func (h *EapTlsHandler) Start() ([]byte, error) {
	tlsCfg, err := h.buildTLSConfig()
	if err != nil {
		return nil, err
	}

	local, peer := net.Pipe()
	h.local, h.peer = local, peer
	h.tlsCon = tls.Client(local, tlsCfg)
	h.doneCh = make(chan error, 1)
	h.state = eapTlsStateStart

	go func() {
		h.doneCh <- h.tlsCon.Handshake()
	}()

	out, err := h.drain(peer, h.doneCh)
	if err != nil {
		h.abort()
		return nil, fmt.Errorf("authcore: eap-tls start: %w", err)
	}
	h.state = eapTlsStateHandshake
	return out, nil
}

// HandleFragment consumes one inbound EAP-Request/EAP-TLS fragment (or
// an EAP-Success closing the exchange) and returns the next outbound
// fragment to send, whether the method has finished, and — once
// finished — the derived KeySet.
func (h *EapTlsHandler) HandleFragment(eapPacket []byte) (respPacket []byte, done bool, keys *KeySet, err error) {
	if h.state != eapTlsStateHandshake {
		return nil, false, nil, fmt.Errorf("authcore: eap-tls fragment received in state %d", h.state)
	}
	if len(eapPacket) < 4 {
		return nil, false, nil, fmt.Errorf("authcore: eap-tls fragment too short")
	}

	code := eapPacket[0]
	const eapCodeSuccess = 3
	const eapCodeFailure = 4
	if code == eapCodeSuccess {
		return h.finish()
	}
	if code == eapCodeFailure {
		h.abort()
		h.state = eapTlsStateDone
		return nil, true, nil, fmt.Errorf("authcore: eap-tls method failed")
	}

	if len(eapPacket) < 6 {
		return nil, false, nil, fmt.Errorf("authcore: eap-tls fragment missing flags byte")
	}
	tlsPayload := eapPacket[6:] // skip 5-byte EAP header + 1-byte flags

	if len(tlsPayload) > 0 {
		if _, werr := h.peer.Write(tlsPayload); werr != nil {
			h.abort()
			return nil, false, nil, fmt.Errorf("authcore: eap-tls relay write: %w", werr)
		}
	}

	out, derr := h.drain(h.peer, h.doneCh)
	if derr != nil {
		h.abort()
		return nil, false, nil, fmt.Errorf("authcore: eap-tls relay: %w", derr)
	}
	if len(out) == 0 {
		// Handshake goroutine consumed our input and produced nothing
		// further to send; this is the EAP-TLS "ack" fragment, an empty
		// response acknowledging the server's last flight while we wait
		// for EAP-Success.
		return encodeEapTLS(eapPacket[1], nil), false, nil, nil
	}
	return encodeEapTLS(eapPacket[1], out), false, nil, nil
}

func (h *EapTlsHandler) finish() (respPacket []byte, done bool, keys *KeySet, err error) {
	defer h.abort()
	h.state = eapTlsStateDone

	select {
	case herr := <-h.doneCh:
		if herr != nil {
			return nil, true, nil, fmt.Errorf("authcore: eap-tls handshake failed: %w", herr)
		}
	default:
	}

	material, exportErr := h.tlsCon.ConnectionState().ExportKeyingMaterial(keyMaterialExportLabel, nil, 96)
	if exportErr != nil {
		return nil, true, nil, fmt.Errorf("authcore: eap-tls export keying material: %w", exportErr)
	}
	kausf := append([]byte{}, material[64:96]...)
	log.WithField("method", "eap-tls").Info("handshake complete, KAUSF derived")
	return nil, true, &KeySet{Kausf: kausf}, nil
}

// abort tears down the pipe and TLS client unconditionally; safe to
// call more than once.
func (h *EapTlsHandler) abort() {
	if h.tlsCon != nil {
		h.tlsCon.Close()
	}
	if h.local != nil {
		h.local.Close()
	}
	if h.peer != nil {
		h.peer.Close()
	}
}

// drain reads from conn until the handshake goroutine stops producing
// data for a short quiet period, or reports completion on done. The
// quiet-period timeout stands in for an explicit end-of-flight marker,
// which net.Pipe's synchronous byte stream does not carry.
func (h *EapTlsHandler) drain(conn net.Conn, done chan error) ([]byte, error) {
	buf := make([]byte, 16384)
	var out []byte

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		select {
		case herr := <-done:
			if herr != nil {
				return nil, herr
			}
			conn.SetReadDeadline(time.Time{})
			return out, nil
		default:
			return nil, err
		}
	}
	out = append(out, buf[:n]...)

	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Millisecond))
		n, err := conn.Read(buf)
		if err != nil {
			conn.SetReadDeadline(time.Time{})
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
}

// encodeEapTLS wraps a TLS payload (or an empty ack) as an
// EAP-Response/EAP-TLS fragment. Flags are always zero: fragmentation
// of a single handshake flight across multiple EAP-TLS messages is not
// supported by this experimental method.
func encodeEapTLS(identifier byte, tlsPayload []byte) []byte {
	const eapCodeResponse = 2
	const eapTypeTLS = 13
	out := make([]byte, 6, 6+len(tlsPayload))
	out[0] = eapCodeResponse
	out[1] = identifier
	out[4] = eapTypeTLS
	out[5] = 0x00 // flags
	out = append(out, tlsPayload...)
	out[2] = byte(len(out) >> 8)
	out[3] = byte(len(out))
	return out
}
