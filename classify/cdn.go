// SPDX-License-Identifier: GPL-3.0-or-later

package classify

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"sync/atomic"

	"github.com/rbmk-project/blockcheck/netipx"
)

// NetworkRecord is a network operated by a CDN or hosting provider.
type NetworkRecord struct {
	Provider string       `json:"provider"`
	CIDR     netip.Prefix `json:"cidr"`
	Region   string       `json:"region,omitempty"`
}

// Label returns "provider" or "provider (region)" when the region is known.
func (r NetworkRecord) Label() string {
	if r.Region == "" {
		return r.Provider
	}
	return r.Provider + " (" + r.Region + ")"
}

// ErrNoRecords indicates that an update did not contain any valid record,
// which usually means that we downloaded an error page instead of a list.
var ErrNoRecords = errors.New("classify: no valid records")

// UpdateStats summarizes the outcome of an update.
type UpdateStats struct {
	// Records is the number of records in the new snapshot.
	Records int

	// Invalid is the number of rows we skipped.
	Invalid int
}

// CdnList maps CDN networks to the [NetworkRecord] describing them.
//
// The zero value is an empty list ready to use.
type CdnList struct {
	snap atomic.Pointer[cdnSnapshot]
}

type cdnSnapshot struct {
	trie prefixTrie[NetworkRecord]
	v4s  uint64
}

// Update replaces the list with the rows of a CSV document with the
// provider, cidr and region columns. The header row is optional; when
// present, it may list the columns in any order. The live list is only
// replaced when the document contains at least one valid record.
func (l *CdnList) Update(data []byte) (UpdateStats, error) {
	snap, stats, err := buildCdnSnapshot(bytes.NewReader(data))
	if err != nil {
		return stats, err
	}
	l.snap.Store(snap)
	return stats, nil
}

func buildCdnSnapshot(r io.Reader) (*cdnSnapshot, UpdateStats, error) {
	var stats UpdateStats
	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	rdr.TrimLeadingSpace = true

	cols := map[string]int{"provider": 0, "cidr": 1, "region": 2}
	snap := &cdnSnapshot{}
	var prefixes []netip.Prefix
	for first := true; ; first = false {
		row, err := rdr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("classify: cdn csv: %w", err)
		}
		if first && isCdnHeader(row) {
			cols = map[string]int{}
			for idx, name := range row {
				cols[strings.ToLower(strings.TrimSpace(name))] = idx
			}
			continue
		}
		rec, ok := parseCdnRow(row, cols)
		if !ok {
			stats.Invalid++
			continue
		}
		snap.trie.Insert(rec.CIDR, rec)
		prefixes = append(prefixes, rec.CIDR)
	}

	stats.Records = snap.trie.Len()
	if stats.Records <= 0 {
		return nil, stats, ErrNoRecords
	}
	v4s, err := netipx.CountAddrs4(prefixes)
	if err != nil {
		return nil, stats, err
	}
	snap.v4s = v4s
	return snap, stats, nil
}

func isCdnHeader(row []string) bool {
	for _, name := range row {
		if strings.EqualFold(strings.TrimSpace(name), "cidr") {
			return true
		}
	}
	return false
}

func parseCdnRow(row []string, cols map[string]int) (NetworkRecord, bool) {
	field := func(name string) string {
		idx, found := cols[name]
		if !found || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}
	provider := field("provider")
	if provider == "" {
		return NetworkRecord{}, false
	}
	pfx, err := netipx.ParsePrefix(field("cidr"))
	if err != nil {
		return NetworkRecord{}, false
	}
	return NetworkRecord{Provider: provider, CIDR: pfx, Region: field("region")}, true
}

// View returns a consistent read-only view of the current snapshot.
func (l *CdnList) View() CdnView {
	return CdnView{snap: l.snap.Load()}
}

// Contains returns the most specific CDN network containing the address.
func (l *CdnList) Contains(addr netip.Addr) (NetworkRecord, bool) {
	return l.View().Contains(addr)
}

// Len returns the number of networks in the list.
func (l *CdnList) Len() int {
	return l.View().Len()
}

// TotalV4s returns the number of distinct IPv4 addresses covered.
func (l *CdnList) TotalV4s() uint64 {
	return l.View().TotalV4s()
}

// CdnView is an immutable view of a [*CdnList] snapshot. Multiple
// lookups through the same view never observe an update.
type CdnView struct {
	snap *cdnSnapshot
}

// Contains is like [*CdnList.Contains].
func (v CdnView) Contains(addr netip.Addr) (NetworkRecord, bool) {
	if v.snap == nil {
		return NetworkRecord{}, false
	}
	_, rec, ok := v.snap.trie.Lookup(addr)
	return rec, ok
}

// Len is like [*CdnList.Len].
func (v CdnView) Len() int {
	if v.snap == nil {
		return 0
	}
	return v.snap.trie.Len()
}

// TotalV4s is like [*CdnList.TotalV4s].
func (v CdnView) TotalV4s() uint64 {
	if v.snap == nil {
		return 0
	}
	return v.snap.v4s
}
