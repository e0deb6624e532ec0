// Package network holds the outbound dialing helpers shared by the status
// senders and the Redis expiration source.
package network

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// NewSOCKS5Dialer creates a SOCKS5 proxy dialer.
func NewSOCKS5Dialer(host string, port int) (proxy.Dialer, error) {
	if host == "" || port <= 0 {
		return nil, fmt.Errorf("invalid SOCKS5 address %q:%d", host, port)
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for %s: %w", addr, err)
	}
	return dialer, nil
}

// ContextDialFunc is the dial hook accepted by net/http and go-redis.
type ContextDialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ContextDialer returns a dial function that routes through the SOCKS5 proxy
// at host:port. It returns nil, nil when host is empty so callers keep their
// default dialer.
func ContextDialer(host string, port int) (ContextDialFunc, error) {
	if host == "" {
		return nil, nil
	}
	dialer, err := NewSOCKS5Dialer(host, port)
	if err != nil {
		return nil, err
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}
