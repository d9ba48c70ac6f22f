// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package octets implements the immutable-by-value byte-string primitive
// that the authentication core uses for every cryptographic field: RAND,
// AUTN, SQN, AK, the derived key hierarchy, and so on.
package octets

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrLengthMismatch is returned by operations that require equal-length
// operands, such as Xor.
var ErrLengthMismatch = errors.New("octets: length mismatch")

// String is an immutable-by-value byte sequence. The zero value is the
// empty string. All operations return a new String rather than mutating
// the receiver's backing array.
type String struct {
	b []byte
}

// New copies b into a new String. The caller's slice is never aliased.
func New(b []byte) String {
	if len(b) == 0 {
		return String{}
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return String{b: cp}
}

// Zeroes returns a String of n zero bytes.
func Zeroes(n int) String {
	return String{b: make([]byte, n)}
}

// Len returns the number of bytes.
func (s String) Len() int { return len(s.b) }

// Bytes returns a defensive copy of the underlying bytes.
func (s String) Bytes() []byte {
	if len(s.b) == 0 {
		return nil
	}
	cp := make([]byte, len(s.b))
	copy(cp, s.b)
	return cp
}

// IsZero reports whether the string has zero length.
func (s String) IsZero() bool { return len(s.b) == 0 }

// Concat returns the concatenation of s and all others, in order.
func (s String) Concat(others ...String) String {
	total := len(s.b)
	for _, o := range others {
		total += len(o.b)
	}
	out := make([]byte, 0, total)
	out = append(out, s.b...)
	for _, o := range others {
		out = append(out, o.b...)
	}
	return String{b: out}
}

// Xor returns s XOR other. Both operands must have equal length.
func Xor(s, other String) (String, error) {
	if len(s.b) != len(other.b) {
		return String{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(s.b), len(other.b))
	}
	out := make([]byte, len(s.b))
	for i := range s.b {
		out[i] = s.b[i] ^ other.b[i]
	}
	return String{b: out}, nil
}

// Sub returns the sub-range [from, to) as a new String.
func (s String) Sub(from, to int) String {
	if from < 0 {
		from = 0
	}
	if to > len(s.b) {
		to = len(s.b)
	}
	if from >= to {
		return String{}
	}
	return New(s.b[from:to])
}

// Equal reports whether s and other hold the same bytes.
func (s String) Equal(other String) bool {
	if len(s.b) != len(other.b) {
		return false
	}
	for i := range s.b {
		if s.b[i] != other.b[i] {
			return false
		}
	}
	return true
}

// Hex renders the string as lowercase hex, matching the teacher's %02x
// debug-print convention.
func (s String) Hex() string {
	return hex.EncodeToString(s.b)
}

func (s String) String() string { return s.Hex() }

// FromHex decodes a hex string into a String.
func FromHex(h string) (String, error) {
	b, err := hex.DecodeString(h)
	if err != nil {
		return String{}, err
	}
	return String{b: b}, nil
}

// Bit returns the value of bit position pos (0 = MSB) within byte index
// byteIdx, counting from the left as TS 24.501 figures do.
func (s String) Bit(byteIdx, pos int) (bool, error) {
	if byteIdx < 0 || byteIdx >= len(s.b) {
		return false, fmt.Errorf("octets: byte index %d out of range", byteIdx)
	}
	if pos < 0 || pos > 7 {
		return false, fmt.Errorf("octets: bit position %d out of range", pos)
	}
	shift := uint(7 - pos)
	return (s.b[byteIdx]>>shift)&0x1 == 1, nil
}
