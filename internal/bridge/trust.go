package bridge

import (
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
)

// TrustPolicy decides whether a certificate chain presented during the TLS
// handshake with a bridge should be trusted. Injecting the policy keeps it
// testable without real handshakes.
type TrustPolicy interface {
	// ShouldTrust reports whether the presented chain (leaf first) is
	// acceptable for a connection to the given host address.
	ShouldTrust(chain []*x509.Certificate, address string) bool
}

// ChainTrustPolicy is the production trust policy.
//
// A chain is trusted when it verifies against the configured root
// authorities; in strict mode the leaf's common name must additionally
// match the bridge id the connection was established for. When chain
// validation fails, a deliberate fallback accepts any certificate
// presented by an address inside a private network range, because local
// bridges commonly present self-signed certificates. The fallback is a
// named, overridable policy knob and never extends to public addresses.
type ChainTrustPolicy struct {
	roots            *x509.CertPool
	bridgeID         string
	strictCommonName bool
	allowPrivate     bool
}

// NewTrustPolicy builds the trust policy for connections to one bridge.
//
// Parameters:
//   - cfg: Trust settings (root CA files, fallback and strictness toggles)
//   - bridgeID: The advertised id of the bridge being connected to
//
// Returns:
//   - *ChainTrustPolicy: Policy bound to the bridge id
//   - error: Root CA file unreadable or not valid PEM
func NewTrustPolicy(cfg config.TrustConfig, bridgeID string) (*ChainTrustPolicy, error) {
	roots := x509.NewCertPool()
	for _, file := range cfg.RootCAFiles {
		pem, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("bridge: reading root CA %s: %w", file, err)
		}
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("bridge: root CA %s contains no valid certificates", file)
		}
	}

	return &ChainTrustPolicy{
		roots:            roots,
		bridgeID:         strings.ToLower(bridgeID),
		strictCommonName: cfg.StrictCommonName,
		allowPrivate:     cfg.AllowPrivateSelfSigned,
	}, nil
}

// ShouldTrust implements TrustPolicy.
func (p *ChainTrustPolicy) ShouldTrust(chain []*x509.Certificate, address string) bool {
	if len(chain) == 0 {
		return false
	}

	if p.verifyChain(chain) {
		if p.strictCommonName && p.bridgeID != "" {
			return strings.EqualFold(chain[0].Subject.CommonName, p.bridgeID)
		}
		return true
	}

	return p.allowPrivate && isPrivateAddress(address)
}

// verifyChain checks the leaf against the configured roots, treating any
// further presented certificates as intermediates.
func (p *ChainTrustPolicy) verifyChain(chain []*x509.Certificate) bool {
	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}

	_, err := chain[0].Verify(x509.VerifyOptions{
		Roots:         p.roots,
		Intermediates: intermediates,
		// The bridge encodes its id in the common name, not a SAN, so name
		// verification happens separately above.
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err == nil
}

// isPrivateAddress reports whether the host portion of address is an IP in
// a private range. Hostnames and unparseable addresses are never private.
func isPrivateAddress(address string) bool {
	host := address
	if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLoopback()
}
