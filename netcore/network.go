//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Definition of Network.
//

package netcore

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"
)

// Network allows dialing and measuring TCP/TLS connections.
//
// The zero value is ready to use.
//
// A [*Network] is safe for concurrent use by multiple goroutines as long as
// you don't modify its fields after construction and the underlying fields you
// may set (e.g., DialContextFunc) are also safe.
type Network struct {
	// DialContextFunc is the optional dialer for creating new
	// TCP connections. If this field is nil, the default
	// dialer from the [net] package will be used.
	DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

	// Logger is the optional structured logger for emitting
	// structured diagnostic events. If this field is nil, we
	// will not be emitting structured logs.
	Logger *slog.Logger

	// LookupHostFunc is the optional function to resolve a domain
	// name to IP addresses. If this field is nil, we use the
	// default [*net.Resolver] from the [net] package.
	LookupHostFunc func(ctx context.Context, domain string) ([]string, error)

	// ReadTimeout is the optional inactivity timeout applied before
	// each read. When zero, reads are only bounded by the context and
	// by deadlines set by the caller.
	ReadTimeout time.Duration

	// SkipTLSVerify disables certificate verification. This field is
	// only used when the TLSConfig field is nil.
	SkipTLSVerify bool

	// TLSConfig is the TLS client config to use. If this field is nil, we
	// will try to create a suitable config based on the address that is
	// passed to the DialTLSContext method.
	TLSConfig *tls.Config

	// TimeNow is an optional function that returns the current time.
	// If this field is nil, the [time.Now] function will be used.
	TimeNow func() time.Time

	// WrapConn is an optional function to wrap a connection to emit
	// structured logs and enforce ReadTimeout. [WrapConn] is the
	// default wrapper to use.
	WrapConn func(ctx context.Context, netx *Network, conn net.Conn) net.Conn
}

// DefaultNetwork is the default [*Network] used by this package.
var DefaultNetwork = &Network{}

// timeNow is a function that returns the current time.
func (nx *Network) timeNow() time.Time {
	if nx.TimeNow != nil {
		return nx.TimeNow()
	}
	return time.Now()
}

// PinnedLookupHost returns a function suitable for [Network.LookupHostFunc]
// that resolves any domain to the given addresses. The prober uses it to
// connect to a single vantage server while varying the SNI and Host header.
func PinnedLookupHost(addrs ...string) func(ctx context.Context, domain string) ([]string, error) {
	return func(ctx context.Context, domain string) ([]string, error) {
		return append([]string{}, addrs...), nil
	}
}
