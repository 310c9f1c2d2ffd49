package peer

import (
	"sort"
	"strconv"
	"sync"
)

// ID names a connection for its whole life. IDs are never reused within one
// Registry.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Registry is the arena of live connections. Timers and other deferred work
// capture an ID and look the connection up here; a missing entry means the
// connection is gone and the work is dropped.
type Registry struct {
	mu    sync.RWMutex
	next  ID
	peers map[ID]*Peer
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[ID]*Peer)}
}

// add assigns p its ID and publishes it in one step, so readers never see
// a registered peer without its ID.
func (r *Registry) add(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	p.id = r.next
	r.peers[p.id] = p
}

func (r *Registry) remove(id ID) {
	r.mu.Lock()
	delete(r.peers, id)
	r.mu.Unlock()
}

// Get returns the live connection with id.
func (r *Registry) Get(id ID) (*Peer, bool) {
	r.mu.RLock()
	p, ok := r.peers[id]
	r.mu.RUnlock()
	return p, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Peers returns every live connection ordered by ID.
func (r *Registry) Peers() []*Peer {
	r.mu.RLock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Each calls fn for every live connection in ID order. fn runs without the
// registry lock held.
func (r *Registry) Each(fn func(*Peer)) {
	for _, p := range r.Peers() {
		fn(p)
	}
}
