// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package authcore

// SimpleSqnManager is a minimal SqnManager suitable for the demo
// harness and for tests that don't need the full USIM array-scheme
// freshness window: it accepts any received SQN strictly greater than
// the last one it saw, and reports its own SQN as the last accepted
// (or resynchronised) value.
type SimpleSqnManager struct {
	sqn []byte
}

// NewSimpleSqnManager creates a manager starting from the given
// 6-byte initial SQN.
func NewSimpleSqnManager(initialSqn []byte) *SimpleSqnManager {
	s := make([]byte, 6)
	copy(s, initialSqn)
	return &SimpleSqnManager{sqn: s}
}

// GetSqn returns the USIM's current locally-held SQN.
func (m *SimpleSqnManager) GetSqn() []byte {
	out := make([]byte, 6)
	copy(out, m.sqn)
	return out
}

// CheckSqn reports whether received is strictly greater than the
// locally-held SQN, treating both as big-endian 48-bit counters.
func (m *SimpleSqnManager) CheckSqn(received []byte) bool {
	if len(received) != 6 {
		return false
	}
	if sqnGreater(received, m.sqn) {
		copy(m.sqn, received)
		return true
	}
	return false
}

// Resynchronise adopts newSqn as the USIM's current SQN following an
// AUTS exchange.
func (m *SimpleSqnManager) Resynchronise(newSqn []byte) {
	copy(m.sqn, newSqn)
}

func sqnGreater(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}
