package live

import (
	"time"
)

// Policy controls keepalive and reconnection. Reconnects use a fixed delay
// rather than a backoff.
type Policy struct {
	ReconnectDelay time.Duration
	MaxAttempts    int
	PingInterval   time.Duration
}

// DefaultPolicy returns a Policy with the dashboard defaults:
// 3s between attempts, 5 attempts, a ping every 30s.
func DefaultPolicy() Policy {
	return Policy{
		ReconnectDelay: 3 * time.Second,
		MaxAttempts:    5,
		PingInterval:   30 * time.Second,
	}
}

// ShouldRetry returns true while fewer than MaxAttempts reconnects have been
// made since the last successful open.
func (p Policy) ShouldRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}

// NextDelay returns the wait before reconnect attempt n (1-indexed). It is
// the same for every attempt.
func (p Policy) NextDelay(int) time.Duration {
	return p.ReconnectDelay
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.ReconnectDelay <= 0 {
		p.ReconnectDelay = d.ReconnectDelay
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	if p.PingInterval <= 0 {
		p.PingInterval = d.PingInterval
	}
	return p
}
