package authcore

import "testing"

func TestSimpleSqnManagerAcceptsIncreasing(t *testing.T) {
	m := NewSimpleSqnManager([]byte{0, 0, 0, 0, 0, 1})
	if !m.CheckSqn([]byte{0, 0, 0, 0, 0, 2}) {
		t.Fatal("expected increasing SQN to be accepted")
	}
	if m.CheckSqn([]byte{0, 0, 0, 0, 0, 2}) {
		t.Fatal("expected repeated SQN to be rejected")
	}
}

func TestSimpleSqnManagerRejectsLower(t *testing.T) {
	m := NewSimpleSqnManager([]byte{0, 0, 0, 0, 0, 5})
	if m.CheckSqn([]byte{0, 0, 0, 0, 0, 3}) {
		t.Fatal("expected lower SQN to be rejected")
	}
}

func TestSimpleSqnManagerResynchronise(t *testing.T) {
	m := NewSimpleSqnManager([]byte{0, 0, 0, 0, 0, 1})
	m.Resynchronise([]byte{0, 0, 0, 0, 1, 0})
	if !m.CheckSqn([]byte{0, 0, 0, 0, 1, 1}) {
		t.Fatal("expected SQN after resynchronisation baseline to be accepted")
	}
}
