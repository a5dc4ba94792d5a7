// Package proxy builds the HTTP clients used for outbound requests,
// optionally tunnelled through a SOCKS5 proxy.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

const DefaultTimeout = 120 * time.Second

// NewClient returns a plain client when socksAddr is empty and a client
// dialing through the SOCKS5 proxy at socksAddr otherwise. A zero timeout
// means DefaultTimeout; a negative one disables the client-level timeout.
func NewClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if timeout < 0 {
		timeout = 0
	}

	if socksAddr == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	transport, err := socksTransport(socksAddr)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

func socksTransport(socksAddr string) (*http.Transport, error) {
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", socksAddr, err)
	}

	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("socks5 dialer does not support contexts")
	}

	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return cd.DialContext(ctx, network, addr)
		},
		TLSHandshakeTimeout: 15 * time.Second,
	}, nil
}
