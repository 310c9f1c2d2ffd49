package transport

import (
	"context"
	"net"
	"strconv"

	"github.com/btcsuite/go-socks/socks"
)

// Dialer opens raw TCP streams to peers.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewDialer returns a direct dialer, or a SOCKS5 dialer when c.Proxy.Addr is
// configured.
func NewDialer(c Config) Dialer {
	c = c.WithDefaults()
	if c.Proxy.Addr == "" {
		return &net.Dialer{Timeout: c.ConnectTimeout}
	}
	return &proxyDialer{
		proxy: &socks.Proxy{
			Addr:     c.Proxy.Addr,
			Username: c.Proxy.Username,
			Password: c.Proxy.Password,
		},
	}
}

type proxyDialer struct {
	proxy *socks.Proxy
}

type dialResult struct {
	conn net.Conn
	err  error
}

func (d *proxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	done := make(chan dialResult, 1)
	go func() {
		conn, err := d.proxy.Dial(network, addr)
		done <- dialResult{conn: conn, err: err}
	}()
	select {
	case res := <-done:
		return res.conn, res.err
	case <-ctx.Done():
		go func() {
			if res := <-done; res.conn != nil {
				_ = res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// RemoteEndpoint reports the host and port the remote side of conn is known
// by. Proxied connections report the proxied target rather than the proxy.
func RemoteEndpoint(addr net.Addr) (string, int) {
	if proxied, ok := addr.(*socks.ProxiedAddr); ok {
		return proxied.Host, proxied.Port
	}
	if addr == nil {
		return "", 0
	}
	host, portRaw, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, _ := strconv.Atoi(portRaw)
	return host, port
}
