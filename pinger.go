// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"sync"
	"sync/atomic"
	"time"
)

// pinger sends PINGREQ on a keepAlive cadence when the connection has been
// otherwise idle, and enforces a pongTimeout deadline on the reply. It
// holds a non-owning back reference to the session it serves, tolerating
// the session disappearing between ticks.
type pinger struct {
	session *Session

	mu         sync.Mutex
	timer      *time.Timer
	lastActive atomic.Int64 // unix nanos of last outbound byte
	stopped    atomic.Bool
}

func newPinger(s *Session) *pinger {
	p := &pinger{session: s}
	p.touch()
	return p
}

// touch records outbound activity; called by the session core on every
// byte written so an idle window is measured accurately.
func (p *pinger) touch() {
	p.lastActive.Store(time.Now().UnixNano())
}

// Start begins the keepAlive cadence. No-op if keepAlive <= 0 (pinger
// disabled). It does not check for a cadence already running; each call
// schedules a new timer.
func (p *pinger) Start(keepAlive, pingTimeout time.Duration) {
	if keepAlive <= 0 {
		return
	}
	p.stopped.Store(false)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.scheduleLocked(keepAlive, pingTimeout)
}

func (p *pinger) scheduleLocked(keepAlive, pingTimeout time.Duration) {
	p.timer = time.AfterFunc(keepAlive, func() {
		if p.stopped.Load() {
			return
		}
		idleFor := time.Duration(time.Now().UnixNano() - p.lastActive.Load())
		if idleFor < keepAlive {
			p.mu.Lock()
			p.scheduleLocked(keepAlive-idleFor, pingTimeout)
			p.mu.Unlock()
			return
		}
		p.session.sendPing(pingTimeout)

		p.mu.Lock()
		p.scheduleLocked(keepAlive, pingTimeout)
		p.mu.Unlock()
	})
}

// Stop halts the cadence; Session.failClosed calls it on every close.
func (p *pinger) Stop() {
	p.stopped.Store(true)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
