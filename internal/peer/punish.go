package peer

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Punishment classifies a protocol violation.
type Punishment uint8

const (
	// PunishInvalidRequest: well formed but violates protocol state rules.
	PunishInvalidRequest Punishment = 1
	// PunishUnknownRequest: type or fields not understood.
	PunishUnknownRequest Punishment = 2
	// PunishUnwantedData: data this node did not ask for or need.
	PunishUnwantedData Punishment = 3
)

func (p Punishment) String() string {
	switch p {
	case PunishInvalidRequest:
		return "invalid_request"
	case PunishUnknownRequest:
		return "unknown_request"
	case PunishUnwantedData:
		return "unwanted_data"
	default:
		return fmt.Sprintf("punishment(%d)", uint8(p))
	}
}

// ParsePunishment accepts the String form of a Punishment.
func ParsePunishment(s string) (Punishment, error) {
	switch s {
	case "invalid_request":
		return PunishInvalidRequest, nil
	case "unknown_request":
		return PunishUnknownRequest, nil
	case "unwanted_data":
		return PunishUnwantedData, nil
	default:
		return 0, fmt.Errorf("peer: unknown punishment %q", s)
	}
}

// policy keeps one connection's decaying violation score. Not safe for
// concurrent use; the owning Peer serializes access.
type policy struct {
	cfg     PunishConfig
	score   float64
	updated time.Time
	unknown *rate.Limiter
	counts  map[Punishment]uint64
}

func newPolicy(cfg PunishConfig, now time.Time) *policy {
	return &policy{
		cfg:     cfg,
		updated: now,
		unknown: rate.NewLimiter(rate.Limit(cfg.UnknownRate), cfg.UnknownBurst),
		counts:  make(map[Punishment]uint64),
	}
}

func (p *policy) decay(now time.Time) {
	if now.Before(p.updated) {
		return
	}
	if p.cfg.HalfLife > 0 && p.score > 0 {
		elapsed := now.Sub(p.updated)
		p.score *= math.Exp2(-float64(elapsed) / float64(p.cfg.HalfLife))
	}
	p.updated = now
}

func (p *policy) weight(kind Punishment, now time.Time) float64 {
	switch kind {
	case PunishInvalidRequest:
		return p.cfg.InvalidWeight
	case PunishUnwantedData:
		return p.cfg.UnwantedWeight
	case PunishUnknownRequest:
		if p.unknown.AllowN(now, 1) {
			return p.cfg.UnknownWeight
		}
		return p.cfg.UnknownFloodWeight
	default:
		return p.cfg.InvalidWeight
	}
}

// record charges one violation and reports whether the threshold is reached.
func (p *policy) record(kind Punishment, now time.Time) (float64, bool) {
	p.decay(now)
	p.score += p.weight(kind, now)
	p.counts[kind]++
	return p.score, p.score >= p.cfg.Threshold
}

func (p *policy) current(now time.Time) float64 {
	p.decay(now)
	return p.score
}

func (p *policy) snapshot() map[string]uint64 {
	out := make(map[string]uint64, len(p.counts))
	for k, v := range p.counts {
		out[k.String()] = v
	}
	return out
}
