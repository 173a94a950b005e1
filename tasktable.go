// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"sync"

	"github.com/lucidwire/mqttgo/packets"
)

// completerResult is what a completer resolves with: either an incoming
// Packet or an error kind describing why none is coming.
type completerResult struct {
	packet packets.Packet
	err    *Error
}

// completer is a one-shot, idempotent result channel. Resolve is safe to
// call more than once; only the first call has any effect, matching the
// spec's "last to resolve wins (idempotent)" ownership rule stated the
// other way: the FIRST settle wins and later settles are silently dropped,
// since a channel can only be sent-and-closed once.
type completer struct {
	once sync.Once
	ch   chan completerResult
}

func newCompleter() *completer {
	return &completer{ch: make(chan completerResult, 1)}
}

func (c *completer) resolve(pk packets.Packet) {
	c.once.Do(func() {
		c.ch <- completerResult{packet: pk}
		close(c.ch)
	})
}

func (c *completer) fail(err *Error) {
	c.once.Do(func() {
		c.ch <- completerResult{err: err}
		close(c.ch)
	})
}

// taskTable correlates outbound requests to their eventual response by
// packet identifier, for either client-initiated ("active") or
// broker-initiated ("passive") flows. Setting an entry for a key already
// in use replaces it without resolving the displaced completer - the next
// response is assumed to correlate to the newer request.
type taskTable struct {
	mu       sync.Mutex
	internal map[uint16]*completer
}

func newTaskTable() *taskTable {
	return &taskTable{internal: map[uint16]*completer{}}
}

// Set installs a fresh completer for id, discarding (without resolving)
// whatever was there before, and returns it.
func (t *taskTable) Set(id uint16) *completer {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := newCompleter()
	t.internal[id] = c
	return c
}

// Resolve settles and removes the completer for id, if any. Returns false
// if no entry existed (an orphan response).
func (t *taskTable) Resolve(id uint16, pk packets.Packet) bool {
	t.mu.Lock()
	c, ok := t.internal[id]
	if ok {
		delete(t.internal, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	c.resolve(pk)
	return true
}

// Peek returns the completer for id without removing it, used by flows
// that need to inspect state before deciding whether to resolve or
// re-arm (e.g. inbound QoS 2 waiting for PUBREL).
func (t *taskTable) Peek(id uint16) (*completer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.internal[id]
	return c, ok
}

func (t *taskTable) Delete(id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.internal, id)
}

// ClearAll resolves every pending completer exactly once with err and
// empties the table - used on session close.
func (t *taskTable) ClearAll(err *Error) {
	t.mu.Lock()
	pending := t.internal
	t.internal = map[uint16]*completer{}
	t.mu.Unlock()

	for _, c := range pending {
		c.fail(err)
	}
}

// ClearAllExcept resolves every pending completer with err and removes it
// from the table, except those keyed by an id in keep - those are left
// exactly as they are, still armed, so a caller blocked on one survives a
// retryable close and can be resolved later once the matching delivery is
// resent and acknowledged after resumption.
func (t *taskTable) ClearAllExcept(keep []uint16, err *Error) {
	keepSet := make(map[uint16]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}

	t.mu.Lock()
	var failing []*completer
	for id, c := range t.internal {
		if keepSet[id] {
			continue
		}
		failing = append(failing, c)
		delete(t.internal, id)
	}
	t.mu.Unlock()

	for _, c := range failing {
		c.fail(err)
	}
}

// slotTask is a dedicated single-slot completer for request kinds that do
// not use a packet identifier: connect, auth, and ping.
type slotTask struct {
	mu sync.Mutex
	c  *completer
}

func (s *slotTask) Arm() *completer {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := newCompleter()
	s.c = c
	return c
}

func (s *slotTask) Resolve(pk packets.Packet) bool {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return false
	}
	c.resolve(pk)
	return true
}

func (s *slotTask) Peek() (*completer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c, s.c != nil
}

func (s *slotTask) Clear(err *Error) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		c.fail(err)
	}
}
