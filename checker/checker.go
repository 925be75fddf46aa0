// SPDX-License-Identifier: GPL-3.0-or-later

// Package checker combines resolution, the passive classifier and the
// GeoIP databases into a single [*Check] result per target.
package checker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"time"

	"github.com/rbmk-project/blockcheck/classify"
	"github.com/rbmk-project/blockcheck/dataset"
	"github.com/rbmk-project/blockcheck/errclass"
	"github.com/rbmk-project/blockcheck/geoip"
	"github.com/rbmk-project/blockcheck/resolver"
	"github.com/rbmk-project/blockcheck/target"
)

// Errors returned by [*Checker.Check].
var (
	// ErrNotFound indicates that the target has no addresses.
	ErrNotFound = errors.New("checker: domain not found")

	// ErrResolve wraps any other resolution failure.
	ErrResolve = errors.New("checker: resolve error")

	// ErrGeoIP indicates that a GeoIP database is unreadable.
	ErrGeoIP = errors.New("checker: geoip error")
)

// Status is the outcome of a [Verdict].
type Status string

const (
	// StatusClear means that we found no evidence of blocking.
	StatusClear = Status("clear")

	// StatusBlocked means that at least one evidence category matched.
	StatusBlocked = Status("blocked")
)

// Verdict is the passive classification of a target.
//
// The evidence fields are only set when Status is [StatusBlocked]
// and each of them is independent from the others.
type Verdict struct {
	Status Status `json:"status"`

	// RknDomain is the blacklisted domain equal to or parent of the target.
	RknDomain string `json:"rkn_domain,omitempty"`

	// RknSubnets contains the blacklisted networks of the target addresses.
	RknSubnets []netip.Prefix `json:"rkn_subnets,omitempty"`

	// CdnProviderSubnets maps a provider label to the CDN networks
	// containing the target addresses.
	CdnProviderSubnets map[string][]classify.NetworkRecord `json:"cdn_provider_subnets,omitempty"`
}

// Blocked returns whether the verdict is [StatusBlocked].
func (v Verdict) Blocked() bool {
	return v.Status == StatusBlocked
}

// Check is the result of checking a target.
type Check struct {
	Target  string       `json:"target"`
	Verdict Verdict      `json:"verdict"`
	Geo     geoip.IpInfo `json:"geo"`
	IPs     []netip.Addr `json:"ips"`
}

// Checker checks targets against the datasets.
//
// Construct using [New].
type Checker struct {
	// CDN is the list of CDN networks.
	CDN *classify.CdnList

	// GeoIP contains the GeoIP databases.
	GeoIP *geoip.GeoIp

	// Logger is the logger to use.
	Logger *slog.Logger

	// RKN is the blacklist.
	RKN *classify.RuBlacklist

	// Resolver resolves the domain targets.
	Resolver resolver.Resolver

	// TimeNow is the optional function to get the current time.
	TimeNow func() time.Time

	datasets   []dataset.Updatable
	lastUpdate Broadcast[time.Time]
}

// New creates a [*Checker] with empty datasets.
func New(reso resolver.Resolver, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		CDN:      &classify.CdnList{},
		GeoIP:    &geoip.GeoIp{},
		Logger:   logger,
		RKN:      &classify.RuBlacklist{},
		Resolver: reso,
	}
}

func (c *Checker) timeNow() time.Time {
	if c.TimeNow != nil {
		return c.TimeNow()
	}
	return time.Now()
}

// Check resolves the target and classifies all its addresses. The
// GeoIP information only describes the first address.
func (c *Checker) Check(ctx context.Context, tgt target.Target) (*Check, error) {
	addrs, err := tgt.Resolve(ctx, c.Resolver)
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		c.Logger.ErrorContext(
			ctx,
			"resolveFailed",
			slog.String("target", tgt.String()),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
		)
		return nil, fmt.Errorf("%w: %w", ErrResolve, err)
	case len(addrs) <= 0:
		return nil, ErrNotFound
	}

	geo, err := c.GeoIP.Lookup(addrs[0])
	if err != nil {
		c.Logger.ErrorContext(
			ctx,
			"geoipFailed",
			slog.String("addr", addrs[0].String()),
			slog.Any("err", err),
		)
		return nil, fmt.Errorf("%w: %w", ErrGeoIP, err)
	}

	// Load each dataset once so the whole check sees consistent snapshots.
	cdn, rkn := c.CDN.View(), c.RKN.View()

	providers := make(map[string]map[classify.NetworkRecord]struct{})
	subnets := make(map[netip.Prefix]struct{})
	for _, addr := range addrs {
		if rec, found := cdn.Contains(addr); found {
			label := rec.Label()
			if providers[label] == nil {
				providers[label] = make(map[classify.NetworkRecord]struct{})
			}
			providers[label][rec] = struct{}{}
		}
		if pfx, found := rkn.ContainsIP(addr); found {
			subnets[pfx] = struct{}{}
		}
	}

	var domain string
	if name, ok := tgt.Domain(); ok {
		domain, _ = rkn.ContainsDomain(name)
	}

	return &Check{
		Target:  tgt.String(),
		Verdict: newVerdict(domain, subnets, providers),
		Geo:     geo,
		IPs:     addrs,
	}, nil
}

func newVerdict(domain string,
	subnets map[netip.Prefix]struct{}, providers map[string]map[classify.NetworkRecord]struct{}) Verdict {
	if domain == "" && len(subnets) <= 0 && len(providers) <= 0 {
		return Verdict{Status: StatusClear}
	}
	v := Verdict{Status: StatusBlocked, RknDomain: domain}
	for pfx := range subnets {
		v.RknSubnets = append(v.RknSubnets, pfx)
	}
	slices.SortFunc(v.RknSubnets, comparePrefix)
	if len(providers) > 0 {
		v.CdnProviderSubnets = make(map[string][]classify.NetworkRecord, len(providers))
		for label, set := range providers {
			recs := make([]classify.NetworkRecord, 0, len(set))
			for rec := range set {
				recs = append(recs, rec)
			}
			slices.SortFunc(recs, func(a, b classify.NetworkRecord) int {
				return comparePrefix(a.CIDR, b.CIDR)
			})
			v.CdnProviderSubnets[label] = recs
		}
	}
	return v
}

func comparePrefix(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return cmp.Compare(a.Bits(), b.Bits())
}

// LookupGeo returns the GeoIP information of a single address.
func (c *Checker) LookupGeo(addr netip.Addr) (geoip.IpInfo, error) {
	return c.GeoIP.Lookup(addr)
}
