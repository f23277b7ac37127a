package bridge

import (
	"context"
	"testing"
	"time"
)

// spacingSlack absorbs the scheduling skew between a caller reading the
// clock and the limiter reading it under lock.
const spacingSlack = 5 * time.Millisecond

func TestRateLimiter_SpacesConsecutiveAdmissions(t *testing.T) {
	tests := []struct {
		name     string
		class    ResourceClass
		interval time.Duration
	}{
		{"device class", ClassDevice, 50 * time.Millisecond},
		{"group class", ClassGroup, 120 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewRateLimiter(50*time.Millisecond, 120*time.Millisecond)

			// Dispatch time for admission i is admit-time + returned delay.
			// Consecutive dispatch times must be spaced by >= interval.
			var dispatches []time.Time
			for i := 0; i < 4; i++ {
				now := time.Now()
				delay := l.Admit(tt.class)
				dispatches = append(dispatches, now.Add(delay))
			}

			for i := 1; i < len(dispatches); i++ {
				gap := dispatches[i].Sub(dispatches[i-1])
				if gap < tt.interval-spacingSlack {
					t.Errorf("dispatch %d gap = %v, want >= %v", i, gap, tt.interval)
				}
			}
		})
	}
}

func TestRateLimiter_FirstAdmissionIsImmediate(t *testing.T) {
	l := NewRateLimiter(100*time.Millisecond, time.Second)

	if delay := l.Admit(ClassDevice); delay != 0 {
		t.Errorf("first Admit() delay = %v, want 0", delay)
	}
}

func TestRateLimiter_ClassesAreIndependent(t *testing.T) {
	l := NewRateLimiter(time.Hour, time.Hour)

	l.Admit(ClassDevice)

	if delay := l.Admit(ClassGroup); delay != 0 {
		t.Errorf("group Admit() after device dispatch = %v, want 0", delay)
	}
}

func TestRateLimiter_WaitHonoursCancellation(t *testing.T) {
	l := NewRateLimiter(time.Hour, time.Hour)
	l.Admit(ClassDevice) // occupy the first slot

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Wait(ctx, ClassDevice)
	if err == nil {
		t.Fatal("Wait() error = nil, want context deadline")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait() blocked %v after cancellation", elapsed)
	}
}

func TestRateLimiter_ConcurrentAdmissionsAllSpaced(t *testing.T) {
	const interval = 20 * time.Millisecond
	l := NewRateLimiter(interval, time.Second)

	results := make(chan time.Time, 8)
	for i := 0; i < 8; i++ {
		go func() {
			now := time.Now()
			results <- now.Add(l.Admit(ClassDevice))
		}()
	}

	var dispatches []time.Time
	for i := 0; i < 8; i++ {
		dispatches = append(dispatches, <-results)
	}

	// Sort by dispatch time, then verify pairwise spacing.
	for i := 0; i < len(dispatches); i++ {
		for j := i + 1; j < len(dispatches); j++ {
			if dispatches[j].Before(dispatches[i]) {
				dispatches[i], dispatches[j] = dispatches[j], dispatches[i]
			}
		}
	}
	for i := 1; i < len(dispatches); i++ {
		if gap := dispatches[i].Sub(dispatches[i-1]); gap < interval-spacingSlack {
			t.Errorf("concurrent dispatch %d gap = %v, want >= %v", i, gap, interval)
		}
	}
}
