// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"sync"
	"sync/atomic"

	"github.com/lucidwire/mqttgo/packets"
)

// Message is an application payload delivered to observers.
type Message struct {
	Topic      string
	Payload    []byte
	Qos        byte
	Retain     bool
	Duplicate  bool
	Properties packets.Properties
}

// Observer receives the three notification kinds a session emits: status
// transitions, inbound application messages, and asynchronous errors not
// attributable to a specific caller's operation.
type Observer interface {
	OnStatusChanged(old, new Status)
	OnMessage(msg Message)
	OnError(err *Error)
}

// Delegate is a single-callback alternative to Observer for callers who
// only want one of the three notifications; unset fields are no-ops.
type Delegate struct {
	StatusChanged func(old, new Status)
	Message       func(msg Message)
	Error         func(err *Error)
}

func (d Delegate) OnStatusChanged(old, new Status) {
	if d.StatusChanged != nil {
		d.StatusChanged(old, new)
	}
}

func (d Delegate) OnMessage(msg Message) {
	if d.Message != nil {
		d.Message(msg)
	}
}

func (d Delegate) OnError(err *Error) {
	if d.Error != nil {
		d.Error(err)
	}
}

// observerHandle identifies a registered observer so it can be removed.
type observerHandle uint64

// observerHub fans notifications out to every registered Observer. Adds
// and removes are rare relative to notification delivery, so the observer
// slice is stored in an atomic.Value and copy-on-write, mirroring the
// teacher's hook registry.
type observerHub struct {
	mu       sync.Mutex
	internal atomic.Value // []observerEntry
	nextID   uint64
	delivery func(func()) // delivery executor; defaults to synchronous call
}

type observerEntry struct {
	id       observerHandle
	observer Observer
}

func newObserverHub() *observerHub {
	h := &observerHub{delivery: func(f func()) { f() }}
	h.internal.Store([]observerEntry{})
	return h
}

func (h *observerHub) all() []observerEntry {
	v, _ := h.internal.Load().([]observerEntry)
	return v
}

// Add registers an observer and returns a handle for Remove.
func (h *observerHub) Add(o Observer) observerHandle {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := observerHandle(h.nextID)
	next := append(append([]observerEntry{}, h.all()...), observerEntry{id: id, observer: o})
	h.internal.Store(next)
	return id
}

// Remove unregisters a previously added observer.
func (h *observerHub) Remove(id observerHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur := h.all()
	next := make([]observerEntry, 0, len(cur))
	for _, e := range cur {
		if e.id != id {
			next = append(next, e)
		}
	}
	h.internal.Store(next)
}

// notifyStatus and its siblings deliver a notification on the hub's
// delivery executor, preserving per-observer FIFO order (a single
// executor drains one notification before the next).
func (h *observerHub) notifyStatus(old, new Status) {
	for _, e := range h.all() {
		e := e
		h.delivery(func() { e.observer.OnStatusChanged(old, new) })
	}
}

func (h *observerHub) notifyMessage(msg Message) {
	for _, e := range h.all() {
		e := e
		h.delivery(func() { e.observer.OnMessage(msg) })
	}
}

func (h *observerHub) notifyError(err *Error) {
	for _, e := range h.all() {
		e := e
		h.delivery(func() { e.observer.OnError(err) })
	}
}
