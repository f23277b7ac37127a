package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
)

// Orchestration constants.
const (
	// candidateBuffer is the capacity of the strategy-to-validator channel.
	// Subnet enumeration can emit a few hundred candidates quickly.
	candidateBuffer = 256

	// retryBackoff is the pause between probe attempts for one candidate.
	retryBackoff = 250 * time.Millisecond
)

// Orchestrator runs all enabled discovery strategies concurrently and
// merges their confirmed results.
//
// Each strategy reports raw candidates; a bounded pool of validation
// workers confirms them through the Validator. Results are deduplicated
// by bridge id, so two strategies finding the same bridge yield one entry.
//
// Thread Safety: Discover may be called from any goroutine, but discovery
// sessions are expensive; callers should not run them concurrently.
type Orchestrator struct {
	cfg       config.DiscoveryConfig
	validator Validator
	logger    Logger

	// strategies is populated from config; tests may substitute fakes.
	strategies []strategy
}

// strategy is one independent discovery mechanism. Run blocks until the
// strategy is exhausted or ctx is cancelled, reporting candidates as it
// finds them. Failures are logged and swallowed: a broken strategy
// contributes zero candidates, never an aborted session.
type strategy interface {
	Name() Strategy
	Run(ctx context.Context, report func(Candidate))
}

// New creates a discovery orchestrator with strategies built from config.
//
// Parameters:
//   - cfg: Discovery configuration (strategy toggles, timeouts)
//   - validator: Confirms candidate addresses (typically *bridge.Validator)
//
// Returns:
//   - *Orchestrator: Ready to run discovery sessions
func New(cfg config.DiscoveryConfig, validator Validator) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		validator: validator,
		logger:    noopLogger{},
	}

	if cfg.SSDP.Enabled {
		o.strategies = append(o.strategies, &ssdpProbe{
			window: cfg.SSDP.ListenWindowDuration(),
			logger: func() Logger { return o.logger },
		})
	}
	if cfg.Subnet.Enabled {
		o.strategies = append(o.strategies, &subnetScan{
			timeout: cfg.Subnet.TimeoutDuration(),
			logger:  func() Logger { return o.logger },
		})
	}
	if cfg.Cloud.Enabled {
		o.strategies = append(o.strategies, newCloudLookup(cfg.Cloud.URL, func() Logger { return o.logger }))
	}

	return o
}

// SetLogger sets the logger for the orchestrator and its strategies.
func (o *Orchestrator) SetLogger(logger Logger) {
	o.logger = logger
}

// Discover runs a discovery session and returns every bridge confirmed
// before the session ceiling elapses.
//
// The result is deduplicated by bridge id and sorted by id for stable
// output. An empty slice is a valid outcome, not an error: it means no
// bridge answered in time. Cancelling ctx aborts the session promptly;
// probes already in flight finish or time out on their own rather than
// being torn down mid-handshake.
//
// Parameters:
//   - ctx: Session context; cancellation is honoured at every iteration
//
// Returns:
//   - []Bridge: Confirmed bridges, possibly empty
func (o *Orchestrator) Discover(ctx context.Context) []Bridge {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SessionTimeoutDuration())
	defer cancel()

	start := time.Now()
	o.logger.Info("discovery session started",
		"strategies", len(o.strategies),
		"ceiling", o.cfg.SessionTimeoutDuration(),
	)

	candidates := make(chan Candidate, candidateBuffer)

	// Run strategies; close the channel once all have finished.
	var producers sync.WaitGroup
	for _, s := range o.strategies {
		producers.Add(1)
		go func(s strategy) {
			defer producers.Done()
			s.Run(ctx, func(c Candidate) {
				select {
				case candidates <- c:
				case <-ctx.Done():
				}
			})
			o.logger.Debug("discovery strategy finished", "strategy", s.Name())
		}(s)
	}
	go func() {
		producers.Wait()
		close(candidates)
	}()

	// Validate candidates with a bounded worker pool. The collector is the
	// only state shared between workers and is mutex-guarded.
	found := &collector{byID: make(map[string]Bridge)}
	seen := &addressSet{addrs: make(map[string]struct{})}

	workers := o.cfg.Subnet.Concurrency
	if workers < 1 {
		workers = 1
	}

	var validators sync.WaitGroup
	for i := 0; i < workers; i++ {
		validators.Add(1)
		go func() {
			defer validators.Done()
			for c := range candidates {
				if ctx.Err() != nil {
					continue // drain without probing once cancelled
				}
				if !seen.add(c.Address) {
					continue // another strategy already probed this address
				}
				o.confirm(ctx, c, found)
			}
		}()
	}
	validators.Wait()

	bridges := found.list()
	o.logger.Info("discovery session finished",
		"bridges", len(bridges),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return bridges
}

// confirm probes one candidate through the validator, retrying transient
// failures up to the configured attempt count.
func (o *Orchestrator) confirm(ctx context.Context, c Candidate, found *collector) {
	attempts := o.cfg.Subnet.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		bridge, err := o.validator.Validate(ctx, c.Address)
		if err == nil {
			if bridge == nil {
				return // definitive: not a bridge
			}
			if c.Port != 0 {
				bridge.Port = c.Port
			}
			if found.add(*bridge) {
				o.logger.Info("bridge confirmed",
					"id", bridge.ID,
					"address", bridge.Address,
					"source", c.Source,
				)
			}
			return
		}

		o.logger.Debug("candidate probe failed",
			"address", c.Address,
			"source", c.Source,
			"attempt", attempt,
			"error", err,
		)

		if attempt < attempts {
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

// collector accumulates confirmed bridges, deduplicated by bridge id.
// It is the only object mutated from multiple validation workers.
type collector struct {
	mu   sync.Mutex
	byID map[string]Bridge
}

// add records a bridge. Returns false if the id was already present.
func (c *collector) add(b Bridge) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[b.ID]; exists {
		return false
	}
	c.byID[b.ID] = b
	return true
}

// list returns the confirmed bridges sorted by id.
func (c *collector) list() []Bridge {
	c.mu.Lock()
	defer c.mu.Unlock()
	bridges := make([]Bridge, 0, len(c.byID))
	for _, b := range c.byID {
		bridges = append(bridges, b)
	}
	sort.Slice(bridges, func(i, j int) bool { return bridges[i].ID < bridges[j].ID })
	return bridges
}

// addressSet tracks which addresses have already been handed to a
// validation worker, so overlapping strategies don't probe twice.
type addressSet struct {
	mu    sync.Mutex
	addrs map[string]struct{}
}

// add returns true if the address was not previously present.
func (s *addressSet) add(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.addrs[addr]; exists {
		return false
	}
	s.addrs[addr] = struct{}{}
	return true
}
