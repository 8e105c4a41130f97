package tor

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// pingTimeout bounds the SOCKS5 greeting used by Ping. A short value is
// fine since the greeting never leaves the local machine.
const pingTimeout = 2 * time.Second

// Client dials through a Tor SOCKS5 proxy. The constructor validates
// the address only; reachability is checked by Ping so a client can be
// built before the daemon is up.
type Client struct {
	proxyAddr string
	dialer    proxy.Dialer
	timeout   time.Duration
}

// NewClient creates a Tor client for the SOCKS5 proxy at proxyAddr
// ("host:port"). timeout applies to HTTP clients created from it.
func NewClient(proxyAddr string, timeout time.Duration) (*Client, error) {
	host, port, err := net.SplitHostPort(proxyAddr)
	if err != nil || host == "" {
		return nil, ErrInvalidProxyAddress
	}
	if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
		return nil, ErrInvalidProxyAddress
	}

	// Tor's SOCKS port does not require authentication.
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("tor: create SOCKS5 dialer: %w", err)
	}

	return &Client{proxyAddr: proxyAddr, dialer: dialer, timeout: timeout}, nil
}

// ProxyAddr returns the configured proxy address.
func (c *Client) ProxyAddr() string {
	return c.proxyAddr
}

// Ping verifies that a SOCKS5 proxy answers at the configured address.
// It performs the version/auth greeting only; no circuit is built and
// nothing is fetched. Returns nil, ErrProxyUnavailable, or ErrNotSOCKS5.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProxyUnavailable, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(pingTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrProxyUnavailable, err)
	}

	// Greeting: version 5, one auth method, no-auth.
	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		return fmt.Errorf("%w: %w", ErrProxyUnavailable, err)
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return fmt.Errorf("%w: no greeting response", ErrNotSOCKS5)
	}
	if resp[0] != 0x05 || resp[1] != 0x00 {
		return fmt.Errorf("%w: unexpected greeting %#x/%#x", ErrNotSOCKS5, resp[0], resp[1])
	}
	return nil
}

// HTTPClient returns an HTTP client that routes everything through the
// proxy. TLS verification is disabled because hidden services use
// self-signed certificates; the onion address authenticates the peer.
func (c *Client) HTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return c.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // hidden services use self-signed certs
		},
		// Each connection rides a Tor circuit, so keep the pool small.
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// DialContext opens a TCP connection through the proxy. proxy.Dialer
// has no context form, so the dial runs in a goroutine; on cancel the
// attempt may linger briefly before the connection is discarded.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	type dialResult struct {
		conn net.Conn
		err  error
	}
	ch := make(chan dialResult, 1)

	go func() {
		conn, err := c.dialer.Dial(network, address)
		ch <- dialResult{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
