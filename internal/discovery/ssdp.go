package discovery

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// SSDP protocol constants.
const (
	// ssdpMulticastAddr is the standard SSDP multicast group and port.
	ssdpMulticastAddr = "239.255.255.250:1900"

	// ssdpMX is the maximum reply delay (seconds) advertised to devices.
	ssdpMX = 3

	// ssdpBurst is how many times each search target is sent. UDP is lossy;
	// repeated sends materially improve reply rates on busy networks.
	ssdpBurst = 2

	// ssdpReadInterval is the per-read deadline while collecting replies,
	// short enough to notice context cancellation between reads.
	ssdpReadInterval = 500 * time.Millisecond

	// ssdpMaxReply is the read buffer size for a single reply datagram.
	ssdpMaxReply = 2048
)

// ssdpSearchTargets are sent successively: a generic device search, the
// root-device search, and the bridge-specific device type.
var ssdpSearchTargets = []string{
	"ssdp:all",
	"upnp:rootdevice",
	"urn:schemas-upnp-org:device:Basic:1",
}

// ssdpBridgeMarkers identify a bridge reply. The bridge advertises its
// embedded server as "IpBridge" and includes a bridge id header.
var ssdpBridgeMarkers = []string{
	"ipbridge",
	"hue-bridgeid",
}

// ssdpProbe discovers bridges via multicast announcement.
//
// It sends an M-SEARCH burst for each search target, then collects reply
// datagrams for the configured window. Replies carrying a bridge marker
// have their LOCATION header parsed into a candidate address.
type ssdpProbe struct {
	window time.Duration
	logger func() Logger
}

// Name implements strategy.
func (p *ssdpProbe) Name() Strategy { return StrategySSDP }

// Run implements strategy. Errors are logged and swallowed; a failed
// multicast probe simply contributes no candidates.
func (p *ssdpProbe) Run(ctx context.Context, report func(Candidate)) {
	log := p.logger()

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		log.Warn("ssdp: opening socket failed", "error", err)
		return
	}
	defer conn.Close()

	dst, err := net.ResolveUDPAddr("udp4", ssdpMulticastAddr)
	if err != nil {
		log.Warn("ssdp: resolving multicast address failed", "error", err)
		return
	}

	// Search burst: every target, repeated.
	for i := 0; i < ssdpBurst; i++ {
		for _, target := range ssdpSearchTargets {
			if ctx.Err() != nil {
				return
			}
			if _, err := conn.WriteTo(buildSearchRequest(target), dst); err != nil {
				log.Debug("ssdp: search send failed", "target", target, "error", err)
			}
		}
	}

	// Collect replies until the listen window closes. Short per-read
	// deadlines keep the loop responsive to cancellation.
	deadline := time.Now().Add(p.window)
	buf := make([]byte, ssdpMaxReply)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(ssdpReadInterval)) //nolint:errcheck // UDP sockets accept deadlines

		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Debug("ssdp: read failed", "error", err)
			return
		}

		addr, ok := parseSSDPReply(string(buf[:n]))
		if !ok {
			continue
		}

		log.Debug("ssdp: bridge reply", "from", from.String(), "address", addr)
		report(Candidate{
			Address:      addr,
			Source:       StrategySSDP,
			DiscoveredAt: time.Now().UTC(),
		})
	}
}

// buildSearchRequest formats an M-SEARCH request for one search target.
func buildSearchRequest(target string) []byte {
	return []byte(fmt.Sprintf(
		"M-SEARCH * HTTP/1.1\r\n"+
			"HOST: %s\r\n"+
			"MAN: \"ssdp:discover\"\r\n"+
			"MX: %d\r\n"+
			"ST: %s\r\n"+
			"\r\n",
		ssdpMulticastAddr, ssdpMX, target,
	))
}

// parseSSDPReply extracts a candidate address from an HTTP-response-shaped
// SSDP reply. Returns ok=false when the reply is not from a bridge or
// carries no usable LOCATION header.
func parseSSDPReply(reply string) (address string, ok bool) {
	lower := strings.ToLower(reply)

	marked := false
	for _, marker := range ssdpBridgeMarkers {
		if strings.Contains(lower, marker) {
			marked = true
			break
		}
	}
	if !marked {
		return "", false
	}

	location := ""
	scanner := bufio.NewScanner(strings.NewReader(reply))
	for scanner.Scan() {
		line := scanner.Text()
		key, value, found := strings.Cut(line, ":")
		if found && strings.EqualFold(strings.TrimSpace(key), "location") {
			location = strings.TrimSpace(value)
			break
		}
	}
	if location == "" {
		return "", false
	}

	u, err := url.Parse(location)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return u.Hostname(), true
}
