package checker

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

type dialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// socks5DialContext builds a dial function that tunnels every connection
// through the SOCKS5 server at proxyAddr.
func socks5DialContext(proxyAddr string, timeout time.Duration) (dialContextFunc, error) {
	forward := &net.Dialer{Timeout: timeout}
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, forward)
	if err != nil {
		return nil, fmt.Errorf("SOCKS5 dialer: %w", err)
	}

	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}
