package overlay

import (
	"errors"
	"testing"

	"github.com/danmuck/ledgerlink/internal/identity"
	"github.com/danmuck/ledgerlink/internal/peer"
	"github.com/danmuck/ledgerlink/internal/protocol/message"
	"github.com/danmuck/ledgerlink/internal/testutil/testlog"
)

func TestRelayFilterRemembersDigests(t *testing.T) {
	testlog.Start(t)
	f, err := newRelayFilter(2)
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	tx := &message.Transaction{Raw: []byte("tx-1")}
	if !f.first(tx) {
		t.Fatalf("first sighting reported as duplicate")
	}
	if f.first(&message.Transaction{Raw: []byte("tx-1")}) {
		t.Fatalf("identical transaction not suppressed")
	}
	if !f.first(&message.Validation{Validation: []byte("tx-1")}) {
		t.Fatalf("different type with same bytes suppressed")
	}

	f.first(&message.Transaction{Raw: []byte("tx-2")})
	f.first(&message.Transaction{Raw: []byte("tx-3")})
	if !f.first(tx) {
		t.Fatalf("evicted digest still suppressed")
	}
}

// flakyPool refuses the first transaction it sees and accepts the rest.
type flakyPool struct {
	calls int
}

var errPoolBusy = errors.New("pool busy")

func (f *flakyPool) AddTransaction(peer.Origin, *message.Transaction) error {
	f.calls++
	if f.calls == 1 {
		return errPoolBusy
	}
	return nil
}

func TestRejectedTransactionIsNotSuppressed(t *testing.T) {
	testlog.Start(t)
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	pool := &flakyPool{}
	o, err := New(Config{}, id, Subsystems{TxPool: pool})
	if err != nil {
		t.Fatalf("new overlay: %v", err)
	}
	origin := peer.Origin{ID: 7}

	if err := o.Transaction(origin, &message.Transaction{Raw: []byte("tx-1")}); !errors.Is(err, errPoolBusy) {
		t.Fatalf("first delivery err = %v, want pool error", err)
	}
	if err := o.Transaction(origin, &message.Transaction{Raw: []byte("tx-1")}); err != nil {
		t.Fatalf("redelivery err = %v", err)
	}
	if pool.calls != 2 {
		t.Fatalf("pool calls = %d, want 2 after redelivery", pool.calls)
	}
	if err := o.Transaction(origin, &message.Transaction{Raw: []byte("tx-1")}); err != nil {
		t.Fatalf("duplicate err = %v", err)
	}
	if pool.calls != 2 {
		t.Fatalf("accepted transaction reached the pool again: calls = %d", pool.calls)
	}
}
