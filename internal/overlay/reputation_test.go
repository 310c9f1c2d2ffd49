package overlay

import (
	"testing"
	"time"

	"github.com/danmuck/ledgerlink/internal/peer"
	"github.com/danmuck/ledgerlink/internal/testutil/testlog"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestReputationBansAfterStrikes(t *testing.T) {
	testlog.Start(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r, err := NewReputation(ReputationConfig{
		Size:         8,
		BanStrikes:   3,
		StrikeWindow: time.Minute,
		BanFor:       10 * time.Minute,
	}, clock.Now)
	if err != nil {
		t.Fatalf("new reputation: %v", err)
	}

	r.Punished("10.0.0.1:51235", peer.PunishInvalidRequest)
	r.Punished("10.0.0.1:40000", peer.PunishUnwantedData)
	if r.Banned("10.0.0.1") {
		t.Fatalf("banned before strike limit")
	}
	r.Punished("10.0.0.1:40001", peer.PunishUnknownRequest)
	if !r.Banned("10.0.0.1") || !r.Banned("10.0.0.1:9") {
		t.Fatalf("expected host banned regardless of port")
	}
	if r.Banned("10.0.0.2") {
		t.Fatalf("unrelated host banned")
	}

	clock.now = clock.now.Add(11 * time.Minute)
	if r.Banned("10.0.0.1") {
		t.Fatalf("ban did not expire")
	}
}

func TestReputationStrikeWindowResets(t *testing.T) {
	testlog.Start(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r, _ := NewReputation(ReputationConfig{Size: 8, BanStrikes: 3, StrikeWindow: time.Minute, BanFor: time.Hour}, clock.Now)

	r.Punished("10.0.0.1:1", peer.PunishInvalidRequest)
	r.Punished("10.0.0.1:1", peer.PunishInvalidRequest)
	clock.now = clock.now.Add(2 * time.Minute)
	r.Punished("10.0.0.1:1", peer.PunishInvalidRequest)

	if got := r.Strikes("10.0.0.1"); got != 1 {
		t.Fatalf("strikes = %d, want 1 after window reset", got)
	}
	if r.Banned("10.0.0.1") {
		t.Fatalf("banned across windows")
	}
	r.Forgive("10.0.0.1")
	if got := r.Strikes("10.0.0.1"); got != 0 {
		t.Fatalf("strikes after forgive = %d", got)
	}
}

func TestReputationForgetsLeastRecentHost(t *testing.T) {
	testlog.Start(t)
	r, _ := NewReputation(ReputationConfig{Size: 1, BanStrikes: 1, StrikeWindow: time.Minute, BanFor: time.Hour}, nil)
	r.Punished("10.0.0.1:1", peer.PunishInvalidRequest)
	r.Punished("10.0.0.2:1", peer.PunishInvalidRequest)
	if r.Banned("10.0.0.1") {
		t.Fatalf("evicted host still banned")
	}
	if !r.Banned("10.0.0.2") {
		t.Fatalf("latest host not banned")
	}
}
