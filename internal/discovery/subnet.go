package discovery

import (
	"context"
	"fmt"
	"net"
	"time"
)

// subnetHostMax is the last host suffix probed on a locally attached /24.
const subnetHostMax = 254

// fallbackPrefixes are historically common router-default subnets, probed
// even when no local interface sits on them. Bridges occasionally end up
// on a different segment than the machine running Lumen (guest networks,
// double-NAT routers).
var fallbackPrefixes = []string{
	"192.168.0.",
	"192.168.1.",
	"192.168.2.",
	"192.168.100.",
	"10.0.0.",
	"10.0.1.",
}

// fallbackSuffixes are the host suffixes probed on fallback prefixes.
// A full sweep of subnets the machine isn't even attached to would waste
// most of the session budget, so only likely DHCP-range addresses are tried.
var fallbackSuffixes = []int{
	1, 2, 3, 4, 5, 6, 7, 8, 9, 10,
	11, 12, 13, 14, 15, 16, 17, 18, 19, 20,
	50, 100, 101, 102, 150, 200, 254,
}

// subnetScan enumerates local-subnet addresses as bridge candidates.
//
// Locally attached /24 networks are swept completely; fallback prefixes
// get a reduced suffix list. The strategy only emits candidates - the
// orchestrator's validation pool does the actual probing with its
// bounded concurrency and retry policy.
type subnetScan struct {
	timeout time.Duration
	logger  func() Logger
}

// Name implements strategy.
func (s *subnetScan) Name() Strategy { return StrategySubnet }

// Run implements strategy.
func (s *subnetScan) Run(ctx context.Context, report func(Candidate)) {
	log := s.logger()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	local, err := localPrefixes()
	if err != nil {
		log.Warn("subnet: enumerating interfaces failed", "error", err)
		// fall through: fallback prefixes are still worth probing
	}

	emitted := make(map[string]struct{})
	emit := func(addr string) bool {
		if ctx.Err() != nil {
			return false
		}
		if _, dup := emitted[addr]; dup {
			return true
		}
		emitted[addr] = struct{}{}
		report(Candidate{
			Address:      addr,
			Source:       StrategySubnet,
			DiscoveredAt: time.Now().UTC(),
		})
		return true
	}

	// Locally attached subnets first: by far the most likely home.
	for _, prefix := range local {
		log.Debug("subnet: sweeping local prefix", "prefix", prefix)
		for host := 1; host <= subnetHostMax; host++ {
			if !emit(fmt.Sprintf("%s%d", prefix, host)) {
				return
			}
		}
	}

	localSet := make(map[string]struct{}, len(local))
	for _, p := range local {
		localSet[p] = struct{}{}
	}

	for _, prefix := range fallbackPrefixes {
		if _, covered := localSet[prefix]; covered {
			continue
		}
		for _, host := range fallbackSuffixes {
			if !emit(fmt.Sprintf("%s%d", prefix, host)) {
				return
			}
		}
	}
}

// localPrefixes derives /24 prefixes (trailing dot included) from the
// machine's own private IPv4 interface addresses.
func localPrefixes() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("listing interface addresses: %w", err)
	}

	var prefixes []string
	seen := make(map[string]struct{})

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || !ip.IsPrivate() {
			continue
		}
		prefix := fmt.Sprintf("%d.%d.%d.", ip[0], ip[1], ip[2])
		if _, dup := seen[prefix]; dup {
			continue
		}
		seen[prefix] = struct{}{}
		prefixes = append(prefixes, prefix)
	}

	return prefixes, nil
}
