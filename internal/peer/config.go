package peer

import (
	"crypto/tls"
	"time"

	"github.com/danmuck/ledgerlink/internal/protocol/frame"
	"github.com/danmuck/ledgerlink/internal/protocol/message"
	"github.com/danmuck/ledgerlink/internal/transport"
)

const (
	ProtoVersion    uint32 = 2
	ProtoVersionMin uint32 = 1
)

// PunishConfig weights protocol violations. A connection whose decayed score
// reaches Threshold is detached.
type PunishConfig struct {
	Threshold          float64
	InvalidWeight      float64
	UnwantedWeight     float64
	UnknownWeight      float64
	UnknownFloodWeight float64
	// UnknownRate and UnknownBurst bound how many unknown-type frames per
	// second are charged UnknownWeight; the excess is charged
	// UnknownFloodWeight.
	UnknownRate  float64
	UnknownBurst int
	// HalfLife of the score. Zero takes the default; NoDecay disables decay.
	HalfLife time.Duration
}

// NoDecay as a HalfLife keeps violation scores until the connection closes.
const NoDecay time.Duration = -1

// Config drives one peer connection.
type Config struct {
	ProtoVersion    uint32
	ProtoVersionMin uint32
	ListenPort      uint32
	// Services advertised in our hello. Zero takes the default of serving
	// ledgers and transactions.
	Services uint32

	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	VerifyTimeout    time.Duration
	MaxFrameBytes    uint64
	SendQueueWarn    int
	Punish           PunishConfig

	ServerTLS *tls.Config
	ClientTLS *tls.Config
	Dialer    transport.Dialer

	// Trusted decides the trusted flag once, when the hello is accepted.
	Trusted    func(identity []byte) bool
	Reputation Reputation
	Now        func() time.Time
}

func DefaultPunishConfig() PunishConfig {
	return PunishConfig{
		Threshold:          100,
		InvalidWeight:      25,
		UnwantedWeight:     10,
		UnknownWeight:      2,
		UnknownFloodWeight: 10,
		UnknownRate:        10,
		UnknownBurst:       20,
		HalfLife:           time.Minute,
	}
}

func DefaultConfig() Config {
	return Config{
		ProtoVersion:     ProtoVersion,
		ProtoVersionMin:  ProtoVersionMin,
		Services:         message.ServiceLedgers | message.ServiceTransactions,
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		VerifyTimeout:    15 * time.Second,
		MaxFrameBytes:    frame.DefaultLimits().MaxPayloadBytes,
		SendQueueWarn:    1024,
		Punish:           DefaultPunishConfig(),
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ProtoVersion == 0 {
		c.ProtoVersion = d.ProtoVersion
	}
	if c.ProtoVersionMin == 0 {
		c.ProtoVersionMin = d.ProtoVersionMin
	}
	if c.Services == 0 {
		c.Services = d.Services
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = d.VerifyTimeout
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = d.MaxFrameBytes
	}
	if c.SendQueueWarn <= 0 {
		c.SendQueueWarn = d.SendQueueWarn
	}
	c.Punish = c.Punish.withDefaults(d.Punish)
	if c.Dialer == nil {
		c.Dialer = transport.NewDialer(transport.Config{ConnectTimeout: c.ConnectTimeout})
	}
	if c.Trusted == nil {
		c.Trusted = func([]byte) bool { return false }
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func (c PunishConfig) withDefaults(d PunishConfig) PunishConfig {
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.InvalidWeight <= 0 {
		c.InvalidWeight = d.InvalidWeight
	}
	if c.UnwantedWeight <= 0 {
		c.UnwantedWeight = d.UnwantedWeight
	}
	if c.UnknownWeight <= 0 {
		c.UnknownWeight = d.UnknownWeight
	}
	if c.UnknownFloodWeight <= 0 {
		c.UnknownFloodWeight = d.UnknownFloodWeight
	}
	if c.UnknownRate <= 0 {
		c.UnknownRate = d.UnknownRate
	}
	if c.UnknownBurst <= 0 {
		c.UnknownBurst = d.UnknownBurst
	}
	if c.HalfLife == 0 {
		c.HalfLife = d.HalfLife
	} else if c.HalfLife < 0 {
		c.HalfLife = NoDecay
	}
	return c
}

func (c Config) limits() frame.Limits {
	return frame.Limits{MaxPayloadBytes: c.MaxFrameBytes}
}
