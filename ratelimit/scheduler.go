// Package ratelimit schedules request execution under per-route and global
// token buckets and reports rate-limit occurrences as Event values.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/telfari/go-restmeter/route"
)

// defaultBucket is used for requests that carry no route identity.
const defaultBucket = "default"

// Config configures a Scheduler.
type Config struct {
	// PerMinute is the sustained request rate allowed per bucket.
	// Zero or negative means unlimited.
	PerMinute int

	// Burst is the bucket capacity. Defaults to PerMinute/60, minimum 1.
	Burst int

	// GlobalPerMinute caps the client-wide request rate across all buckets.
	// Zero or negative means no global limit.
	GlobalPerMinute int

	// GlobalBurst is the global bucket capacity. Defaults to
	// GlobalPerMinute/60, minimum 1.
	GlobalBurst int

	// Notify receives an Event for every rate-limit occurrence. It is
	// called synchronously on the goroutine that detected the condition
	// and must not block. Nil disables notification.
	Notify func(Event)
}

// Scheduler applies token-bucket rate limiting per route bucket, with an
// optional global limiter and server-directed holds. Safe for concurrent use.
type Scheduler struct {
	perBucket rate.Limit
	burst     int
	notify    func(Event)

	mu          sync.Mutex
	buckets     map[string]*rate.Limiter
	holds       map[string]time.Time
	global      *rate.Limiter
	globalUntil time.Time
}

// New creates a scheduler from cfg.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		perBucket: rate.Inf,
		burst:     1,
		notify:    cfg.Notify,
		buckets:   make(map[string]*rate.Limiter),
		holds:     make(map[string]time.Time),
	}

	if cfg.PerMinute > 0 {
		s.perBucket = rate.Limit(float64(cfg.PerMinute) / 60.0)
		s.burst = cfg.Burst
		if s.burst <= 0 {
			s.burst = max(cfg.PerMinute/60, 1)
		}
	}

	if cfg.GlobalPerMinute > 0 {
		globalBurst := cfg.GlobalBurst
		if globalBurst <= 0 {
			globalBurst = max(cfg.GlobalPerMinute/60, 1)
		}
		s.global = rate.NewLimiter(rate.Limit(float64(cfg.GlobalPerMinute)/60.0), globalBurst)
	}

	return s
}

// Acquire blocks until the request identified by rt may proceed, or until
// ctx is canceled. It returns true when the request was actually delayed,
// which marks the request as queued in its terminal metric.
//
// Every delay source fires its own Event through Notify before the wait:
// the global limiter, a server-directed hold, and the bucket limiter are
// checked in that order.
func (s *Scheduler) Acquire(ctx context.Context, rt *route.Compiled) (bool, error) {
	bucket := bucketKey(rt)
	queued := false

	if s.global != nil {
		r := s.global.Reserve()
		if !r.OK() {
			return queued, errors.New("global rate limit reservation failed")
		}
		if delay := r.Delay(); delay > 0 {
			queued = true
			s.emit(Event{Route: rt, Bucket: bucket, Reason: ReasonGlobal, Delay: delay, Global: true})
			if err := sleep(ctx, delay); err != nil {
				r.Cancel()
				return queued, err
			}
		}
	}

	if hold, global := s.holdFor(bucket); hold > 0 {
		queued = true
		s.emit(Event{Route: rt, Bucket: bucket, Reason: ReasonRetryAfter, Delay: hold, Global: global})
		if err := sleep(ctx, hold); err != nil {
			return queued, err
		}
	}

	r := s.limiter(bucket).Reserve()
	if !r.OK() {
		return queued, errors.New("rate limit reservation failed")
	}
	if delay := r.Delay(); delay > 0 {
		queued = true
		s.emit(Event{Route: rt, Bucket: bucket, Reason: ReasonBucket, Delay: delay})
		if err := sleep(ctx, delay); err != nil {
			r.Cancel()
			return queued, err
		}
	}

	return queued, nil
}

// NoteRetryAfter registers a server-directed backoff for rt's bucket, or for
// the whole client when global is true. Requests acquiring the affected
// bucket before the hold expires will wait it out. The occurrence is
// reported through Notify immediately.
func (s *Scheduler) NoteRetryAfter(rt *route.Compiled, d time.Duration, global bool) {
	if d <= 0 {
		return
	}

	bucket := bucketKey(rt)
	until := time.Now().Add(d)

	s.mu.Lock()
	if global {
		if until.After(s.globalUntil) {
			s.globalUntil = until
		}
	} else if until.After(s.holds[bucket]) {
		s.holds[bucket] = until
	}
	s.mu.Unlock()

	s.emit(Event{Route: rt, Bucket: bucket, Reason: ReasonRetryAfter, Delay: d, Global: global})
}

func (s *Scheduler) limiter(bucket string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.buckets[bucket]
	if !ok {
		l = rate.NewLimiter(s.perBucket, s.burst)
		s.buckets[bucket] = l
	}
	return l
}

// holdFor returns the remaining server-directed hold for the bucket,
// preferring the global hold when it is longer.
func (s *Scheduler) holdFor(bucket string) (time.Duration, bool) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	hold := time.Duration(0)
	global := false
	if until, ok := s.holds[bucket]; ok {
		if d := until.Sub(now); d > 0 {
			hold = d
		} else {
			delete(s.holds, bucket)
		}
	}
	if d := s.globalUntil.Sub(now); d > hold {
		hold = d
		global = true
	}
	return hold, global
}

func (s *Scheduler) emit(ev Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "context canceled during rate limit wait")
	}
}

func bucketKey(rt *route.Compiled) string {
	if rt == nil {
		return defaultBucket
	}
	return rt.BucketKey()
}
