package overlay

import (
	"encoding/binary"

	"github.com/danmuck/ledgerlink/internal/protocol/message"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/blake2b"
)

// relayFilter remembers digests of recently relayed gossip.
type relayFilter struct {
	seen *lru.Cache
}

func newRelayFilter(size int) (*relayFilter, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &relayFilter{seen: cache}, nil
}

func digest(m message.Message) [blake2b.Size256]byte {
	payload := message.Payload(m)
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, m.Type())
	copy(buf[4:], payload)
	return blake2b.Sum256(buf)
}

// first records m and reports whether it had not been seen before.
func (f *relayFilter) first(m message.Message) bool {
	seen, _ := f.seen.ContainsOrAdd(digest(m), struct{}{})
	return !seen
}

// forget drops m so a later delivery is handled again.
func (f *relayFilter) forget(m message.Message) {
	f.seen.Remove(digest(m))
}
