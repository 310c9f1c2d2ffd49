// Package overlay owns the set of live peer connections for one node: it
// accepts and dials them, keeps fixed peers connected, admits or refuses
// them, relays gossip between them and hands inbound data to the local
// transaction pool, consensus and ledger store.
package overlay
