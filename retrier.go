// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"math"
	"math/rand"
	"sync/atomic"
	"time"
)

// PolicyKind selects the reconnect backoff shape.
type PolicyKind byte

const (
	PolicyLinear PolicyKind = iota
	PolicyEquals
	PolicyRandom
	PolicyExponential
)

// Policy configures the delay schedule for a given PolicyKind. Only the
// fields relevant to Kind are consulted.
type Policy struct {
	Kind  PolicyKind
	Scale time.Duration // linear, exponential
	Interval time.Duration // equals
	Min, Max time.Duration // random; Max also clamps exponential
	Base     time.Duration // exponential
}

// Retrier decides whether and after how long to retry opening a session
// after a close. It tracks an attempt counter that resets on every
// successful open.
type Retrier struct {
	policy  Policy
	limit   int // 0 means unlimited
	filter  func(CloseReason) bool
	attempt int64
}

// NewRetrier builds a Retrier. filter returning true means "do not retry
// this reason"; a nil filter never rejects on reason.
func NewRetrier(policy Policy, limit int, filter func(CloseReason) bool) *Retrier {
	if filter == nil {
		filter = func(CloseReason) bool { return false }
	}
	return &Retrier{policy: policy, limit: limit, filter: filter}
}

// ResetOnSuccess is called by the session core after an open completes.
func (r *Retrier) ResetOnSuccess() {
	atomic.StoreInt64(&r.attempt, 0)
}

// Delay returns the next backoff delay and true, or false if the reason's
// filter rejects retrying or the attempt limit is exceeded. Certain
// mapped reasons (network unreachable, network down) never retry,
// independent of the filter - the session core enforces that separately
// since those are structural, not policy, exclusions.
func (r *Retrier) Delay(reason CloseReason) (time.Duration, bool) {
	if r.filter(reason) {
		return 0, false
	}

	n := atomic.AddInt64(&r.attempt, 1)
	if r.limit > 0 && int(n) > r.limit {
		return 0, false
	}

	return r.delayForAttempt(int(n)), true
}

func (r *Retrier) delayForAttempt(n int) time.Duration {
	switch r.policy.Kind {
	case PolicyLinear:
		return time.Duration(n) * r.policy.Scale
	case PolicyEquals:
		return r.policy.Interval
	case PolicyRandom:
		if r.policy.Max <= r.policy.Min {
			return r.policy.Min
		}
		span := r.policy.Max - r.policy.Min
		return r.policy.Min + time.Duration(rand.Int63n(int64(span)))
	case PolicyExponential:
		d := time.Duration(float64(r.policy.Base) * math.Pow(2, float64(n-1)) * scaleFactor(r.policy.Scale))
		if r.policy.Max > 0 && d > r.policy.Max {
			d = r.policy.Max
		}
		return d
	default:
		return 0
	}
}

func scaleFactor(scale time.Duration) float64 {
	if scale <= 0 {
		return 1
	}
	return float64(scale) / float64(time.Second)
}
