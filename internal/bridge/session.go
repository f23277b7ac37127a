package bridge

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Session is an authenticated connection context for one bridge. Exactly
// one Session is active per process; the gateway client is its only
// mutation owner. Values handed out by CurrentSession are copies.
type Session struct {
	BridgeID       string    `json:"bridge_id"`
	Address        string    `json:"address"`
	Port           int       `json:"port"`
	ApplicationKey string    `json:"-"`
	ClientKey      string    `json:"-"`
	EstablishedAt  time.Time `json:"established_at"`
}

// BaseURL returns the root URL all authenticated requests are made
// against. The default HTTPS port is left implicit.
func (s *Session) BaseURL() string {
	if s.Port == 0 || s.Port == defaultBridgePort {
		return "https://" + s.Address
	}
	return "https://" + net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// hostPort returns the dial target for trust decisions.
func (s *Session) hostPort() string {
	port := s.Port
	if port == 0 {
		port = defaultBridgePort
	}
	return net.JoinHostPort(s.Address, strconv.Itoa(port))
}

// credentials returns the persistent form of the session.
func (s *Session) credentials(name, model string) Credentials {
	return Credentials{
		BridgeID:       s.BridgeID,
		Address:        s.Address,
		Port:           s.Port,
		Name:           name,
		Model:          model,
		ApplicationKey: s.ApplicationKey,
		ClientKey:      s.ClientKey,
		PairedAt:       s.EstablishedAt,
	}
}

// String implements fmt.Stringer without leaking the application key.
func (s *Session) String() string {
	return fmt.Sprintf("session bridge=%s address=%s", s.BridgeID, s.Address)
}
