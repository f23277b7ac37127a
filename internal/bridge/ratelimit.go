package bridge

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces out writes per resource class so the bridge's Zigbee
// radio is never flooded. Each class holds the time before which no further
// dispatch may happen; admission reserves the next slot, so concurrent
// callers are spaced in admission order.
//
// Thread Safety: safe for concurrent use. Waiting for one class never
// delays admission in another class.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[ResourceClass]*rateBucket
}

// rateBucket is the throttle state for one resource class.
type rateBucket struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewRateLimiter creates a limiter with the given per-class spacing.
//
// Parameters:
//   - deviceInterval: Minimum spacing between single-device writes
//   - groupInterval: Minimum spacing between group writes
//
// Returns:
//   - *RateLimiter: Ready for concurrent use
func NewRateLimiter(deviceInterval, groupInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: map[ResourceClass]*rateBucket{
			ClassDevice: {interval: deviceInterval},
			ClassGroup:  {interval: groupInterval},
		},
	}
}

// Admit reserves the next dispatch slot for the class and returns how long
// the caller must wait before dispatching. The slot is reserved
// immediately, so N concurrent admissions produce N slots spaced at least
// one interval apart regardless of when each caller finishes waiting.
//
// Returns:
//   - time.Duration: Delay to wait before dispatch; zero means dispatch now
func (l *RateLimiter) Admit(class ResourceClass) time.Duration {
	b := l.bucket(class)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.next.After(now) {
		delay := b.next.Sub(now)
		b.next = b.next.Add(b.interval)
		return delay
	}
	b.next = now.Add(b.interval)
	return 0
}

// Wait admits a dispatch and sleeps out the returned delay, honouring
// context cancellation. The reserved slot is not released on cancellation;
// spacing guarantees are kept even when a caller gives up.
//
// Returns:
//   - error: ctx.Err() if cancelled while waiting, nil otherwise
func (l *RateLimiter) Wait(ctx context.Context, class ResourceClass) error {
	delay := l.Admit(class)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// bucket returns the state for a class, creating it with device spacing if
// an unknown class is ever passed.
func (l *RateLimiter) bucket(class ResourceClass) *rateBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[class]
	if !ok {
		b = &rateBucket{interval: l.buckets[ClassDevice].interval}
		l.buckets[class] = b
	}
	return b
}
