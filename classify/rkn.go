// SPDX-License-Identifier: GPL-3.0-or-later

package classify

import (
	"net/netip"
	"strings"
	"sync/atomic"

	"github.com/rbmk-project/blockcheck/netipx"
)

// RuBlacklist contains the networks and domains blocked in Russia.
//
// The zero value is an empty blacklist ready to use.
type RuBlacklist struct {
	snap atomic.Pointer[rknSnapshot]
}

// rknSnapshot holds both tries so that a single swap replaces them together.
type rknSnapshot struct {
	nets    prefixTrie[struct{}]
	domains domainTrie
	v4s     uint64
}

// RuBlacklistStats summarizes the outcome of an update.
type RuBlacklistStats struct {
	Networks       int
	InvalidNetwork int
	Domains        int
	InvalidDomain  int
}

// Update replaces the blacklist using one network (CIDR or bare address)
// per line and one domain per line. Blank lines and lines starting with '#'
// are ignored. The live blacklist is only replaced when both lists contain
// at least one valid entry.
func (b *RuBlacklist) Update(netData, domainData []byte) (RuBlacklistStats, error) {
	var stats RuBlacklistStats
	snap := &rknSnapshot{}

	prefixes, invalid := netipx.ParseLines(netData)
	stats.InvalidNetwork = invalid
	for _, pfx := range prefixes {
		snap.nets.Insert(pfx, struct{}{})
	}
	stats.Networks = snap.nets.Len()

	for _, line := range strings.Split(string(domainData), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domain := NormalizeDomain(line)
		if domain == "" {
			stats.InvalidDomain++
			continue
		}
		snap.domains.Insert(domain)
	}
	stats.Domains = snap.domains.Len()

	if stats.Networks <= 0 || stats.Domains <= 0 {
		return stats, ErrNoRecords
	}
	v4s, err := netipx.CountAddrs4(prefixes)
	if err != nil {
		return stats, err
	}
	snap.v4s = v4s
	b.snap.Store(snap)
	return stats, nil
}

// View returns a consistent read-only view of the current snapshot.
func (b *RuBlacklist) View() RuBlacklistView {
	return RuBlacklistView{snap: b.snap.Load()}
}

// ContainsIP returns the most specific blocked network containing the address.
func (b *RuBlacklist) ContainsIP(addr netip.Addr) (netip.Prefix, bool) {
	return b.View().ContainsIP(addr)
}

// ContainsDomain returns the listed domain matching the given domain,
// that is, the domain itself or its most specific listed ancestor.
func (b *RuBlacklist) ContainsDomain(domain string) (string, bool) {
	return b.View().ContainsDomain(domain)
}

// TotalDomains returns the number of distinct listed domains.
func (b *RuBlacklist) TotalDomains() int {
	return b.View().TotalDomains()
}

// TotalV4s returns the number of distinct blocked IPv4 addresses.
func (b *RuBlacklist) TotalV4s() uint64 {
	return b.View().TotalV4s()
}

// RuBlacklistView is an immutable view of a [*RuBlacklist] snapshot.
type RuBlacklistView struct {
	snap *rknSnapshot
}

// ContainsIP is like [*RuBlacklist.ContainsIP].
func (v RuBlacklistView) ContainsIP(addr netip.Addr) (netip.Prefix, bool) {
	if v.snap == nil {
		return netip.Prefix{}, false
	}
	pfx, _, ok := v.snap.nets.Lookup(addr)
	return pfx, ok
}

// ContainsDomain is like [*RuBlacklist.ContainsDomain].
func (v RuBlacklistView) ContainsDomain(domain string) (string, bool) {
	if v.snap == nil {
		return "", false
	}
	return v.snap.domains.Ancestor(NormalizeDomain(domain))
}

// TotalDomains is like [*RuBlacklist.TotalDomains].
func (v RuBlacklistView) TotalDomains() int {
	if v.snap == nil {
		return 0
	}
	return v.snap.domains.Len()
}

// TotalV4s is like [*RuBlacklist.TotalV4s].
func (v RuBlacklistView) TotalV4s() uint64 {
	if v.snap == nil {
		return 0
	}
	return v.snap.v4s
}
