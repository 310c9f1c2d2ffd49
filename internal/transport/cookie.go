package transport

import (
	"crypto/tls"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	CookieLen   = blake2b.Size256
	cookieLabel = "EXPORTER-ledgerlink-session"
)

var ErrHandshakeIncomplete = errors.New("transport: tls handshake incomplete")

// SessionCookie derives a per-session value both ends of conn compute
// identically. It changes with every TLS session, so a hello signed over it
// cannot be replayed on another connection.
func SessionCookie(conn *tls.Conn) ([]byte, error) {
	state := conn.ConnectionState()
	if !state.HandshakeComplete {
		return nil, ErrHandshakeIncomplete
	}
	ekm, err := state.ExportKeyingMaterial(cookieLabel, nil, 64)
	if err != nil {
		return nil, fmt.Errorf("transport: export keying material: %w", err)
	}
	sum := blake2b.Sum256(ekm)
	return sum[:], nil
}
