// Package transport builds the encrypted stream every peer link runs over:
// TLS configuration, dialing (direct or through a SOCKS5 proxy) and the
// session cookie both ends derive from the TLS session.
package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidSecurityMode  = errors.New("transport: invalid security mode")
	ErrTLSCertFileRequired  = errors.New("transport: tls cert file required")
	ErrTLSKeyFileRequired   = errors.New("transport: tls key file required")
	ErrTLSCAFileRequired    = errors.New("transport: tls ca file required")
	ErrInsecureSkipNotAllow = errors.New("transport: insecure skip verify not allowed")
)

// SecurityMode selects how strictly certificates are checked. Peer identity
// is always proven by the signed hello; the mode only governs the X.509 layer.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

type TLSConfig struct {
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// ProxyConfig routes outbound dials through a SOCKS5 proxy when Addr is set.
type ProxyConfig struct {
	Addr     string
	Username string
	Password string
}

type Config struct {
	SecurityMode     SecurityMode
	TLS              TLSConfig
	Proxy            ProxyConfig
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		SecurityMode:     SecurityModeDevelopment,
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	return c
}

func NormalizeSecurityMode(mode SecurityMode) SecurityMode {
	if strings.TrimSpace(string(mode)) == "" {
		return SecurityModeDevelopment
	}
	return SecurityMode(strings.ToLower(strings.TrimSpace(string(mode))))
}

// Validate checks that the TLS material required by the security mode is
// configured. Development mode falls back to an ephemeral certificate.
func (c Config) Validate() error {
	mode := NormalizeSecurityMode(c.SecurityMode)
	switch mode {
	case SecurityModeDevelopment, SecurityModeProduction:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSecurityMode, c.SecurityMode)
	}
	hasCert := strings.TrimSpace(c.TLS.CertFile) != ""
	hasKey := strings.TrimSpace(c.TLS.KeyFile) != ""
	if hasCert && !hasKey {
		return ErrTLSKeyFileRequired
	}
	if hasKey && !hasCert {
		return ErrTLSCertFileRequired
	}
	if mode == SecurityModeProduction {
		if !hasCert {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.TLS.CAFile) == "" {
			return ErrTLSCAFileRequired
		}
		if c.TLS.InsecureSkipVerify {
			return ErrInsecureSkipNotAllow
		}
	}
	return nil
}
