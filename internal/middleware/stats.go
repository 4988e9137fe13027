package middleware

import (
	"context"
	"sync/atomic"
)

// Stats accumulates per-request execution facts as the request moves through
// the transport stack: how many physical HTTP attempts were made and whether
// the rate-limit scheduler deferred the request. The owning client reads the
// totals when it builds the terminal request metric.
//
// Transports on different layers may touch the same Stats concurrently with
// the goroutine that eventually reads it, so all access is atomic.
type Stats struct {
	attempts atomic.Int32
	queued   atomic.Bool
}

// RecordAttempt counts one physical HTTP send.
func (s *Stats) RecordAttempt() { s.attempts.Add(1) }

// Attempts returns the number of physical HTTP sends so far.
func (s *Stats) Attempts() int { return int(s.attempts.Load()) }

// MarkQueued flags the request as having passed through the deferred
// rate-limit path.
func (s *Stats) MarkQueued() { s.queued.Store(true) }

// Queued reports whether the request was deferred.
func (s *Stats) Queued() bool { return s.queued.Load() }

type statsKey struct{}

// WithStats returns a context carrying a fresh Stats, and the Stats itself.
func WithStats(ctx context.Context) (context.Context, *Stats) {
	s := &Stats{}
	return context.WithValue(ctx, statsKey{}, s), s
}

// StatsFrom returns the Stats carried by ctx, or nil when the request did
// not come through a stats-aware entry point.
func StatsFrom(ctx context.Context) *Stats {
	s, _ := ctx.Value(statsKey{}).(*Stats)
	return s
}
