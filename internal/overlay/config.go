package overlay

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/ledgerlink/internal/identity"
	"github.com/danmuck/ledgerlink/internal/peer"
)

var (
	ErrInvalidMaxPeers = errors.New("overlay: max_peers must be positive")
	ErrInvalidEndpoint = errors.New("overlay: invalid endpoint")
	ErrInvalidTrusted  = errors.New("overlay: invalid trusted node id")
)

// ReputationConfig bounds the per-host strike table.
type ReputationConfig struct {
	// Size is the number of hosts remembered.
	Size int
	// BanStrikes punishments from one host within StrikeWindow ban it.
	BanStrikes   int
	StrikeWindow time.Duration
	BanFor       time.Duration
}

// Config drives one overlay.
type Config struct {
	MaxPeers       int
	FixedPeers     []string
	TrustedNodes   []string
	RelayCacheSize int
	MaxKnown       int
	Backoff        BackoffConfig
	Reputation     ReputationConfig
	Peer           peer.Config
	Now            func() time.Time
}

func DefaultConfig() Config {
	return Config{
		MaxPeers:       21,
		RelayCacheSize: 8192,
		MaxKnown:       1024,
		Backoff:        DefaultBackoffConfig(),
		Reputation: ReputationConfig{
			Size:         4096,
			BanStrikes:   20,
			StrikeWindow: 10 * time.Minute,
			BanFor:       30 * time.Minute,
		},
		Peer: peer.DefaultConfig(),
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxPeers <= 0 {
		c.MaxPeers = d.MaxPeers
	}
	if c.RelayCacheSize <= 0 {
		c.RelayCacheSize = d.RelayCacheSize
	}
	if c.MaxKnown <= 0 {
		c.MaxKnown = d.MaxKnown
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	if c.Reputation.Size <= 0 {
		c.Reputation.Size = d.Reputation.Size
	}
	if c.Reputation.BanStrikes <= 0 {
		c.Reputation.BanStrikes = d.Reputation.BanStrikes
	}
	if c.Reputation.StrikeWindow <= 0 {
		c.Reputation.StrikeWindow = d.Reputation.StrikeWindow
	}
	if c.Reputation.BanFor <= 0 {
		c.Reputation.BanFor = d.Reputation.BanFor
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Validate checks endpoint and identity syntax.
func (c Config) Validate() error {
	if c.MaxPeers <= 0 {
		return ErrInvalidMaxPeers
	}
	for _, ep := range c.FixedPeers {
		if _, err := ParseEndpoint(ep); err != nil {
			return err
		}
	}
	for _, id := range c.TrustedNodes {
		if _, err := identity.DecodeID(id); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidTrusted, id, err)
		}
	}
	return nil
}

// ParseEndpoint splits "host:port".
func ParseEndpoint(s string) (peer.Endpoint, error) {
	host, portText, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return peer.Endpoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, s, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port <= 0 || port > 65535 || host == "" {
		return peer.Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, s)
	}
	return peer.Endpoint{Host: host, Port: port}, nil
}
