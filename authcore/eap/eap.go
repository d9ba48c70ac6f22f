// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package eap implements the subset of the EAP packet format (RFC 3748)
// and EAP-AKA'/AKA attribute encoding (RFC 4187, RFC 5448) that the
// authentication core needs to build and parse Authentication-Request/
// -Result/-Reject EAP payloads.
package eap

import (
	"encoding/binary"
	"fmt"
)

// Code is the outermost EAP packet code.
type Code uint8

const (
	CodeRequest  Code = 1
	CodeResponse Code = 2
	CodeSuccess  Code = 3
	CodeFailure  Code = 4
)

// Type is the EAP method type carried by Request/Response packets.
type Type uint8

const (
	TypeAkaPrime Type = 50
	TypeAka      Type = 23
	TypeTLS      Type = 13
)

// Subtype is the AKA/AKA' method subtype, RFC 4187 §8.1.
type Subtype uint8

const (
	SubtypeChallenge               Subtype = 1
	SubtypeAuthenticationReject    Subtype = 2
	SubtypeSynchronizationFailure  Subtype = 4
	SubtypeNotification            Subtype = 12
	SubtypeClientError             Subtype = 14
)

// AttrType is an EAP-AKA' attribute type, RFC 4187 §8.1 / RFC 5448 §3.1.
type AttrType uint8

const (
	AttrRand            AttrType = 1
	AttrAutn            AttrType = 2
	AttrRes             AttrType = 3
	AttrAuts            AttrType = 4
	AttrMac             AttrType = 11
	AttrNotification    AttrType = 12
	AttrClientErrorCode AttrType = 22
	AttrKdf             AttrType = 24
	AttrKdfInput        AttrType = 23
)

// Attr is one decoded EAP-AKA' attribute; Value excludes the 4-byte
// type/length header.
type Attr struct {
	Type  AttrType
	Value []byte
}

// Packet is a decoded EAP packet carrying AKA'/AKA method data.
type Packet struct {
	Code       Code
	Identifier uint8
	Type       Type
	Subtype    Subtype
	Attrs      []Attr
}

// Find returns the first attribute of the given type, or nil.
func (p *Packet) Find(t AttrType) *Attr {
	for i := range p.Attrs {
		if p.Attrs[i].Type == t {
			return &p.Attrs[i]
		}
	}
	return nil
}

// Encode renders the packet into wire bytes. Attribute values are
// padded to a multiple of 4 bytes per RFC 4187 §8.1, with the pad count
// folded into the attribute length field for RAND/AUTN/RES/AUTS/MAC,
// which all use the AT_RAND-style fixed+value layout; AT_KDF_INPUT and
// AT_CLIENT_ERROR_CODE follow the same padding rule. Success and Failure
// packets carry no method body: only the 5-byte header is emitted.
func (p *Packet) Encode() []byte {
	if p.Code == CodeSuccess || p.Code == CodeFailure {
		return []byte{byte(p.Code), p.Identifier, 0x00, 0x05, byte(p.Type)}
	}

	body := make([]byte, 0, 64)
	body = append(body, byte(p.Subtype), 0x00, 0x00) // subtype + 2 reserved bytes

	for _, a := range p.Attrs {
		body = append(body, encodeAttr(a)...)
	}

	out := make([]byte, 5, 5+len(body))
	out[0] = byte(p.Code)
	out[1] = p.Identifier
	binary.BigEndian.PutUint16(out[2:4], uint16(5+len(body)))
	out[4] = byte(p.Type)
	out = append(out, body...)
	return out
}

func encodeAttr(a Attr) []byte {
	// length field counts in 4-byte units, including the 4-byte header.
	padded := a.Value
	if rem := len(padded) % 4; rem != 0 {
		padded = append(append([]byte{}, padded...), make([]byte, 4-rem)...)
	}
	l := (4 + len(padded)) / 4
	out := make([]byte, 4+len(padded))
	out[0] = byte(a.Type)
	out[1] = byte(l)
	copy(out[4:], padded)
	return out
}

// PeekType reads just the EAP method type byte from a wire packet,
// without parsing the method-specific subtype/attribute body that
// follows it. The procedure controller uses this to pick between the
// AKA'/AKA and TLS handlers before committing to either one's decoder,
// since EAP-TLS payloads do not follow the AKA' subtype+attribute
// layout Decode assumes.
func PeekType(b []byte) (Type, error) {
	if len(b) < 5 {
		return 0, fmt.Errorf("eap: packet too short to carry a type: %d bytes", len(b))
	}
	return Type(b[4]), nil
}

// Decode parses a wire EAP packet carrying an AKA'/AKA method body.
func Decode(b []byte) (*Packet, error) {
	if len(b) < 5 {
		return nil, fmt.Errorf("eap: packet too short: %d bytes", len(b))
	}
	p := &Packet{
		Code:       Code(b[0]),
		Identifier: b[1],
		Type:       Type(b[4]),
	}
	length := binary.BigEndian.Uint16(b[2:4])
	if int(length) > len(b) {
		return nil, fmt.Errorf("eap: declared length %d exceeds packet size %d", length, len(b))
	}
	if p.Code == CodeSuccess || p.Code == CodeFailure {
		return p, nil
	}
	if len(b) < 8 {
		return nil, fmt.Errorf("eap: method body too short")
	}
	p.Subtype = Subtype(b[5])
	attrs, err := decodeAttrs(b[8:int(length)])
	if err != nil {
		return nil, err
	}
	p.Attrs = attrs
	return p, nil
}

func decodeAttrs(b []byte) ([]Attr, error) {
	var out []Attr
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, fmt.Errorf("eap: truncated attribute header")
		}
		at := AttrType(b[0])
		l := int(b[1])
		if l == 0 {
			return nil, fmt.Errorf("eap: zero-length attribute")
		}
		total := l * 4
		if total > len(b) {
			return nil, fmt.Errorf("eap: attribute length %d exceeds remaining %d", total, len(b))
		}
		out = append(out, Attr{Type: at, Value: append([]byte{}, b[4:total]...)})
		b = b[total:]
	}
	return out, nil
}

// ZeroMAC returns a copy of the encoded packet with the AT_MAC value
// field zeroed, as RFC 4187 §10.15 requires before computing AT_MAC.
func ZeroMAC(encoded []byte, macOffset, macLen int) []byte {
	out := append([]byte{}, encoded...)
	for i := 0; i < macLen; i++ {
		out[macOffset+i] = 0
	}
	return out
}
