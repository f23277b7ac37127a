package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
)

// fakeStrategy reports a fixed candidate list.
type fakeStrategy struct {
	name       Strategy
	candidates []Candidate
}

func (f *fakeStrategy) Name() Strategy { return f.name }

func (f *fakeStrategy) Run(ctx context.Context, report func(Candidate)) {
	for _, c := range f.candidates {
		if ctx.Err() != nil {
			return
		}
		report(c)
	}
}

// slowStrategy emits candidates forever until cancelled.
type slowStrategy struct{}

func (s *slowStrategy) Name() Strategy { return Strategy("slow") }

func (s *slowStrategy) Run(ctx context.Context, report func(Candidate)) {
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
			report(Candidate{Address: "203.0.113.1", Source: s.Name()})
		}
	}
}

// fakeValidator confirms addresses from a fixed table.
type fakeValidator struct {
	mu      sync.Mutex
	bridges map[string]Bridge // address -> bridge
	errs    map[string]error  // address -> transient error
	probes  map[string]int
}

func newFakeValidator() *fakeValidator {
	return &fakeValidator{
		bridges: make(map[string]Bridge),
		errs:    make(map[string]error),
		probes:  make(map[string]int),
	}
}

func (v *fakeValidator) Validate(_ context.Context, address string) (*Bridge, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.probes[address]++
	if err, ok := v.errs[address]; ok {
		return nil, err
	}
	if b, ok := v.bridges[address]; ok {
		return &b, nil
	}
	return nil, nil // not a bridge
}

func (v *fakeValidator) probeCount(address string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.probes[address]
}

func testConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		SessionTimeout: 5,
		Subnet: config.SubnetScanConfig{
			Concurrency: 4,
			Attempts:    2,
			Timeout:     2,
		},
	}
}

func newTestOrchestrator(validator Validator, strategies ...strategy) *Orchestrator {
	o := New(testConfig(), validator)
	o.strategies = strategies
	return o
}

func TestDiscover_ConfirmsCandidates(t *testing.T) {
	validator := newFakeValidator()
	validator.bridges["10.0.0.6"] = Bridge{ID: "ECB5FA000001", Address: "10.0.0.6"}

	o := newTestOrchestrator(validator, &fakeStrategy{
		name: StrategySubnet,
		candidates: []Candidate{
			{Address: "10.0.0.5", Source: StrategySubnet},
			{Address: "10.0.0.6", Source: StrategySubnet},
		},
	})

	bridges := o.Discover(context.Background())

	if len(bridges) != 1 {
		t.Fatalf("Discover() returned %d bridges, want 1", len(bridges))
	}
	if bridges[0].ID != "ECB5FA000001" || bridges[0].Address != "10.0.0.6" {
		t.Errorf("Discover() = %+v, want id ECB5FA000001 at 10.0.0.6", bridges[0])
	}
}

func TestDiscover_DeduplicatesByBridgeID(t *testing.T) {
	// Two strategies find the same bridge at different addresses
	// (e.g. SSDP reply address vs cloud-reported address).
	validator := newFakeValidator()
	validator.bridges["192.168.1.50"] = Bridge{ID: "AA11BB22CC33", Address: "192.168.1.50"}
	validator.bridges["192.168.1.51"] = Bridge{ID: "AA11BB22CC33", Address: "192.168.1.51"}

	o := newTestOrchestrator(validator,
		&fakeStrategy{name: StrategySSDP, candidates: []Candidate{
			{Address: "192.168.1.50", Source: StrategySSDP},
		}},
		&fakeStrategy{name: StrategyCloud, candidates: []Candidate{
			{Address: "192.168.1.51", Source: StrategyCloud},
		}},
	)

	bridges := o.Discover(context.Background())

	if len(bridges) != 1 {
		t.Fatalf("Discover() returned %d bridges, want 1 after dedup", len(bridges))
	}
	if bridges[0].ID != "AA11BB22CC33" {
		t.Errorf("bridge id = %q, want AA11BB22CC33", bridges[0].ID)
	}
}

func TestDiscover_SameAddressProbedOnce(t *testing.T) {
	validator := newFakeValidator()
	validator.bridges["192.168.1.50"] = Bridge{ID: "AA11BB22CC33", Address: "192.168.1.50"}

	o := newTestOrchestrator(validator,
		&fakeStrategy{name: StrategySSDP, candidates: []Candidate{
			{Address: "192.168.1.50", Source: StrategySSDP},
		}},
		&fakeStrategy{name: StrategySubnet, candidates: []Candidate{
			{Address: "192.168.1.50", Source: StrategySubnet},
		}},
	)

	o.Discover(context.Background())

	if got := validator.probeCount("192.168.1.50"); got != 1 {
		t.Errorf("address probed %d times, want 1", got)
	}
}

func TestDiscover_RetriesTransientFailures(t *testing.T) {
	validator := newFakeValidator()
	validator.errs["10.0.0.9"] = errors.New("connection refused")

	o := newTestOrchestrator(validator, &fakeStrategy{
		name:       StrategySubnet,
		candidates: []Candidate{{Address: "10.0.0.9", Source: StrategySubnet}},
	})

	bridges := o.Discover(context.Background())

	if len(bridges) != 0 {
		t.Fatalf("Discover() returned %d bridges, want 0", len(bridges))
	}
	if got := validator.probeCount("10.0.0.9"); got != 2 {
		t.Errorf("transient failure probed %d times, want 2 (configured attempts)", got)
	}
}

func TestDiscover_NegativeVerdictNotRetried(t *testing.T) {
	validator := newFakeValidator()

	o := newTestOrchestrator(validator, &fakeStrategy{
		name:       StrategySubnet,
		candidates: []Candidate{{Address: "10.0.0.7", Source: StrategySubnet}},
	})

	o.Discover(context.Background())

	if got := validator.probeCount("10.0.0.7"); got != 1 {
		t.Errorf("definitive non-bridge probed %d times, want 1", got)
	}
}

func TestDiscover_EmptyResultIsNotAnError(t *testing.T) {
	o := newTestOrchestrator(newFakeValidator(), &fakeStrategy{name: StrategySSDP})

	bridges := o.Discover(context.Background())

	if bridges == nil {
		t.Fatal("Discover() returned nil, want empty slice")
	}
	if len(bridges) != 0 {
		t.Errorf("Discover() returned %d bridges, want 0", len(bridges))
	}
}

func TestDiscover_HonoursSessionCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.SessionTimeout = 1

	o := New(cfg, newFakeValidator())
	o.strategies = []strategy{&slowStrategy{}}

	start := time.Now()
	o.Discover(context.Background())
	elapsed := time.Since(start)

	// Allow generous slack for scheduler jitter, but far below the
	// strategy's unbounded runtime.
	if elapsed > 3*time.Second {
		t.Errorf("Discover() took %v, want bounded by ~1s ceiling", elapsed)
	}
}

func TestDiscover_ExternalCancellation(t *testing.T) {
	o := newTestOrchestrator(newFakeValidator(), &slowStrategy{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	o.Discover(ctx)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Discover() took %v after cancellation, want prompt return", elapsed)
	}
}

func TestCollector_AddRejectsDuplicates(t *testing.T) {
	c := &collector{byID: make(map[string]Bridge)}

	if !c.add(Bridge{ID: "one", Address: "a"}) {
		t.Error("first add() = false, want true")
	}
	if c.add(Bridge{ID: "one", Address: "b"}) {
		t.Error("duplicate add() = true, want false")
	}
	if got := len(c.list()); got != 1 {
		t.Errorf("list() has %d entries, want 1", got)
	}
}
