// Package retry holds the attempt budgets the sequence generator runs on:
// a fixed-delay policy for optimistic compare-and-set rounds and a bounded
// exponential backoff for lock promotion.
//
// Policies are immutable values. The attempt count lives in the caller's
// loop, never in the policy, so a single policy value can drive any number
// of concurrent calls and every call starts from attempt zero.
package retry

import (
	"math/rand/v2"
	"time"
)

// Policy decides whether one more attempt may run and how long to back off
// first. attempt is the number of attempts already completed, so the first
// Next call after a failure passes 0.
type Policy interface {
	Next(attempt int) (backoff time.Duration, ok bool)
}

// NTimes allows n retries with the same delay before each.
func NTimes(n int, delay time.Duration) Policy {
	if n < 0 {
		n = 0
	}
	if delay < 0 {
		delay = 0
	}
	return nTimes{n: n, delay: delay}
}

type nTimes struct {
	n     int
	delay time.Duration
}

func (p nTimes) Next(attempt int) (time.Duration, bool) {
	if attempt >= p.n {
		return 0, false
	}
	return p.delay, true
}

// BoundedExponential allows maxRetries retries. The backoff before retry k
// is drawn uniformly from [initial, initial<<k], never above maxDelay and
// never below initial.
func BoundedExponential(initial, maxDelay time.Duration, maxRetries int) Policy {
	if initial <= 0 {
		initial = time.Millisecond
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return boundedExponential{initial: initial, maxDelay: maxDelay, maxRetries: maxRetries}
}

type boundedExponential struct {
	initial    time.Duration
	maxDelay   time.Duration
	maxRetries int
}

func (p boundedExponential) Next(attempt int) (time.Duration, bool) {
	if attempt >= p.maxRetries {
		return 0, false
	}
	ceil := p.initial
	for i := 0; i < attempt && ceil < p.maxDelay; i++ {
		ceil <<= 1
	}
	if ceil > p.maxDelay {
		ceil = p.maxDelay
	}
	if ceil <= p.initial {
		return p.initial, true
	}
	return p.initial + rand.N(ceil-p.initial+1), true
}
