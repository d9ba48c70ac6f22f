// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package authcore

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// AuthenticationEvent is one bounded record of an authentication
// procedure milestone: request received, response sent, failure,
// reject, and so on. This supplements spec.md's scope with a
// lightweight audit trail a demo harness or test can inspect without
// re-parsing logrus output.
type AuthenticationEvent struct {
	At      time.Time
	Stage   string
	Message string
}

// AuthenticationEventLog is a fixed-capacity ring buffer of recent
// authentication events, guarded by a mutex so it is safe for
// concurrent use.
type AuthenticationEventLog struct {
	mu       sync.Mutex
	capacity int
	events   []AuthenticationEvent
}

// NewAuthenticationEventLog creates a log retaining up to capacity
// events, discarding the oldest once full.
func NewAuthenticationEventLog(capacity int) *AuthenticationEventLog {
	if capacity <= 0 {
		capacity = 16
	}
	return &AuthenticationEventLog{capacity: capacity}
}

// Record appends an event, evicting the oldest if at capacity, and
// mirrors it to the structured logger at info level.
func (l *AuthenticationEventLog) Record(stage, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, AuthenticationEvent{At: now(), Stage: stage, Message: message})
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}
	log.WithField("stage", stage).Info(message)
}

// Recent returns a copy of the currently retained events, oldest first.
func (l *AuthenticationEventLog) Recent() []AuthenticationEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuthenticationEvent, len(l.events))
	copy(out, l.events)
	return out
}

// now is a seam for tests that need deterministic timestamps; it is
// not otherwise overridden in this package.
var now = time.Now
