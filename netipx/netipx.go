// SPDX-License-Identifier: GPL-3.0-or-later

// Package netipx contains [net/netip] extensions.
package netipx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// ErrEmpty indicates that the input line contains no prefix.
var ErrEmpty = errors.New("netipx: empty input")

// ParsePrefix parses a CIDR prefix or a bare IP address, in which case
// it returns the corresponding host prefix (/32 or /128).
//
// The returned prefix is always masked, so "10.1.2.3/8" becomes "10.0.0.0/8",
// and IPv4-mapped IPv6 addresses are unmapped.
func ParsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Prefix{}, ErrEmpty
	}
	if !strings.Contains(s, "/") {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("netipx: invalid address %q: %w", s, err)
		}
		addr = addr.Unmap()
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}
	pfx, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("netipx: invalid prefix %q: %w", s, err)
	}
	if pfx.Addr().Is4In6() && pfx.Bits() >= 96 {
		pfx = netip.PrefixFrom(pfx.Addr().Unmap(), pfx.Bits()-96)
	}
	return pfx.Masked(), nil
}

// ParseLines parses one prefix per line, skipping blank lines and
// comments starting with '#'. It returns the parsed prefixes along
// with the number of lines that could not be parsed.
func ParseLines(data []byte) (out []netip.Prefix, invalid int) {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pfx, err := ParsePrefix(line)
		if err != nil {
			invalid++
			continue
		}
		out = append(out, pfx)
	}
	return
}

// CountAddrs4 returns the number of distinct IPv4 addresses
// covered by the given prefixes. Overlapping prefixes are
// merged before counting. IPv6 prefixes are ignored.
func CountAddrs4(prefixes []netip.Prefix) (uint64, error) {
	var builder netipx.IPSetBuilder
	for _, pfx := range prefixes {
		if pfx.Addr().Is4() {
			builder.AddPrefix(pfx)
		}
	}
	set, err := builder.IPSet()
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, r := range set.Ranges() {
		from, to := r.From().As4(), r.To().As4()
		total += uint64(binary.BigEndian.Uint32(to[:])-binary.BigEndian.Uint32(from[:])) + 1
	}
	return total, nil
}
