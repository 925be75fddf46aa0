// SPDX-License-Identifier: GPL-3.0-or-later

// Package resolver implements the dual-stack DNS lookups used by the
// passive checker to resolve domain targets.
//
// Lookups go to a single, fixed upstream server so that results do not
// depend on the resolver configured on the host running the checker.
package resolver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"

	"github.com/rbmk-project/blockcheck/errclass"
)

// ErrNotFound indicates that the domain exists in no form we can use:
// either the name does not exist or it has no A/AAAA records.
var ErrNotFound = errors.New("resolver: no records found")

// Resolver resolves a domain name to a list of addresses.
type Resolver interface {
	LookupIPs(ctx context.Context, name string) ([]netip.Addr, error)
}

// Default upstream settings.
const (
	DefaultServer  = "9.9.9.9:53"
	DefaultNetwork = "udp"
	DefaultTimeout = 5 * time.Second
)

// DNS is a [Resolver] querying a fixed upstream using [github.com/miekg/dns].
//
// Construct using [NewDNS].
type DNS struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// TimeNow is the optional function returning the current time.
	TimeNow func() time.Time

	client *dns.Client
	server string
}

var _ Resolver = &DNS{}

// NewDNS creates a new [*DNS] resolver for the given upstream server
// and network ("udp", "tcp" or "tcp-tls").
func NewDNS(server, network string, timeout time.Duration) (*DNS, error) {
	host, _, err := net.SplitHostPort(server)
	if err != nil {
		return nil, fmt.Errorf("resolver: invalid server %q: %w", server, err)
	}
	client := &dns.Client{Net: network, Timeout: timeout}
	switch network {
	case "udp", "tcp":
	case "tcp-tls":
		client.TLSConfig = &tls.Config{ServerName: host}
	default:
		return nil, fmt.Errorf("resolver: unsupported network %q", network)
	}
	return &DNS{client: client, server: server}, nil
}

// Server returns the upstream server address.
func (r *DNS) Server() string {
	return r.server
}

// LookupIPs implements [Resolver]. It queries A and then AAAA records and
// returns the addresses in the order in which they appear in the answers.
// Internationalized names are queried in their punycode form.
func (r *DNS) LookupIPs(ctx context.Context, name string) ([]netip.Addr, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if ascii, err := idna.Punycode.ToASCII(name); err == nil {
		name = ascii
	}
	fqdn := dns.Fqdn(name)
	t0 := r.emitLookupStart(ctx, fqdn)

	var (
		addrs []netip.Addr
		errv  []error
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := r.query(ctx, fqdn, qtype)
		if err != nil {
			errv = append(errv, err)
			continue
		}
		addrs = append(addrs, found...)
	}

	err := r.finish(addrs, errv)
	r.emitLookupDone(ctx, fqdn, t0, addrs, err)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

// finish decides the outcome of a lookup given the partial results.
func (r *DNS) finish(addrs []netip.Addr, errv []error) error {
	if len(addrs) > 0 {
		return nil // a partial success is still a success
	}
	for _, err := range errv {
		if !errors.Is(err, ErrNotFound) {
			return errors.Join(errv...)
		}
	}
	return ErrNotFound
}

// query sends a single question and extracts the addresses.
func (r *DNS) query(ctx context.Context, fqdn string, qtype uint16) ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err == nil && resp.Truncated && r.client.Net == "udp" {
		tcp := *r.client
		tcp.Net = "tcp"
		resp, _, err = tcp.ExchangeContext(ctx, msg, r.server)
	}
	if err != nil {
		return nil, fmt.Errorf("resolver: %s %s: %w", dns.TypeToString[qtype], fqdn, err)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("resolver: %s %s: rcode %s",
			dns.TypeToString[qtype], fqdn, dns.RcodeToString[resp.Rcode])
	}

	var out []netip.Addr
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			if addr, ok := netip.AddrFromSlice(v.A.To4()); ok {
				out = append(out, addr)
			}
		case *dns.AAAA:
			if addr, ok := netip.AddrFromSlice(v.AAAA.To16()); ok {
				out = append(out, addr)
			}
		}
	}
	if len(out) <= 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (r *DNS) timeNow() time.Time {
	if r.TimeNow != nil {
		return r.TimeNow()
	}
	return time.Now()
}

func (r *DNS) emitLookupStart(ctx context.Context, fqdn string) time.Time {
	t0 := r.timeNow()
	if r.Logger != nil {
		r.Logger.DebugContext(
			ctx,
			"dnsLookupStart",
			slog.String("dnsLookupDomain", fqdn),
			slog.String("serverAddr", r.server),
			slog.String("serverProtocol", r.client.Net),
			slog.Time("t", t0),
		)
	}
	return t0
}

func (r *DNS) emitLookupDone(ctx context.Context,
	fqdn string, t0 time.Time, addrs []netip.Addr, err error) {
	if r.Logger != nil {
		r.Logger.DebugContext(
			ctx,
			"dnsLookupDone",
			slog.String("dnsLookupDomain", fqdn),
			slog.Any("dnsResolvedAddrs", addrs),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("serverAddr", r.server),
			slog.String("serverProtocol", r.client.Net),
			slog.Time("t0", t0),
			slog.Time("t", r.timeNow()),
		)
	}
}

// Static is a [Resolver] backed by a fixed table. Names are
// matched case-insensitively and without the trailing dot.
type Static map[string][]netip.Addr

var _ Resolver = Static{}

// LookupIPs implements [Resolver].
func (s Static) LookupIPs(ctx context.Context, name string) ([]netip.Addr, error) {
	addrs := s[strings.TrimSuffix(strings.ToLower(name), ".")]
	if len(addrs) <= 0 {
		return nil, ErrNotFound
	}
	return append([]netip.Addr{}, addrs...), nil
}
