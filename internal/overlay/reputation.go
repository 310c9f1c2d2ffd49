package overlay

import (
	"net"
	"sync"
	"time"

	"github.com/danmuck/ledgerlink/internal/peer"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
)

type hostRecord struct {
	strikes     int
	windowStart time.Time
	bannedUntil time.Time
}

// Reputation counts punishments per remote host across connections and bans
// hosts that collect too many. Only the most recently seen hosts are kept.
type Reputation struct {
	cfg   ReputationConfig
	now   func() time.Time
	mu    sync.Mutex
	hosts *lru.Cache
}

func NewReputation(cfg ReputationConfig, now func() time.Time) (*Reputation, error) {
	cache, err := lru.New(cfg.Size)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Reputation{cfg: cfg, now: now, hosts: cache}, nil
}

func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// Punished implements peer.Reputation.
func (r *Reputation) Punished(addr string, kind peer.Punishment) {
	host := hostOf(addr)
	if host == "" {
		return
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(host)
	if now.Sub(rec.windowStart) > r.cfg.StrikeWindow {
		rec.strikes = 0
		rec.windowStart = now
	}
	rec.strikes++
	if rec.strikes >= r.cfg.BanStrikes && !now.Before(rec.bannedUntil) {
		rec.bannedUntil = now.Add(r.cfg.BanFor)
		log.Warn().
			Str("host", host).
			Int("strikes", rec.strikes).
			Str("last", kind.String()).
			Time("until", rec.bannedUntil).
			Msg("host banned")
	}
}

func (r *Reputation) record(host string) *hostRecord {
	if v, ok := r.hosts.Get(host); ok {
		return v.(*hostRecord)
	}
	rec := &hostRecord{windowStart: r.now()}
	r.hosts.Add(host, rec)
	return rec
}

// Banned reports whether new connections from addr's host are refused.
func (r *Reputation) Banned(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.hosts.Get(hostOf(addr))
	if !ok {
		return false
	}
	return r.now().Before(v.(*hostRecord).bannedUntil)
}

// Strikes returns the strikes counted for addr's host in its current window.
func (r *Reputation) Strikes(addr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.hosts.Get(hostOf(addr))
	if !ok {
		return 0
	}
	return v.(*hostRecord).strikes
}

// Forgive clears everything known about addr's host.
func (r *Reputation) Forgive(addr string) {
	r.hosts.Remove(hostOf(addr))
}
