// Package netutil provides outbound-connection helpers shared by the
// LLM gateway, embedding engines, and stream adapters.
package netutil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// PreferIPv4DialContext returns a DialContext that resolves the target
// host and dials IPv4 addresses before IPv6 ones. Several chat and
// model providers publish AAAA records that are unroutable from
// dual-stack clusters without v6 egress; v4-first ordering sidesteps
// that while keeping v6 as a fallback.
func PreferIPv4DialContext(base *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if base == nil {
		base = &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return base.DialContext(ctx, network, addr)
		}

		// Literal IPs need no reordering
		if ip := net.ParseIP(host); ip != nil {
			return base.DialContext(ctx, network, addr)
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", host, err)
		}

		ordered := orderIPv4First(ips)

		var lastErr error
		for _, ip := range ordered {
			conn, dialErr := base.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
			if dialErr == nil {
				return conn, nil
			}
			lastErr = dialErr
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no addresses for %s", host)
		}
		return nil, lastErr
	}
}

// orderIPv4First returns all v4 addresses, then all v6 addresses,
// preserving resolver order within each family.
func orderIPv4First(ips []net.IPAddr) []net.IP {
	v4 := make([]net.IP, 0, len(ips))
	v6 := make([]net.IP, 0, len(ips))
	for _, ip := range ips {
		if ip.IP.To4() != nil {
			v4 = append(v4, ip.IP)
		} else {
			v6 = append(v6, ip.IP)
		}
	}
	return append(v4, v6...)
}

// NewHTTPClient builds an HTTP client with the given overall timeout.
// When preferIPv4 is set, connections resolve and dial v4-first.
func NewHTTPClient(timeout time.Duration, preferIPv4 bool) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if preferIPv4 {
		transport.DialContext = PreferIPv4DialContext(nil)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
