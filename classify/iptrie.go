// SPDX-License-Identifier: GPL-3.0-or-later

package classify

import "net/netip"

// prefixTrie is a binary trie mapping prefixes to values with
// longest-prefix lookup. IPv4 and IPv6 live in separate roots.
//
// A prefixTrie is not safe for concurrent mutation; we only
// mutate it while building a snapshot.
type prefixTrie[T any] struct {
	v4, v6 *trieNode[T]
	size   int
}

type trieNode[T any] struct {
	child [2]*trieNode[T]
	pfx   netip.Prefix
	value T
	set   bool
}

// bitAt returns the i-th most significant bit of the address.
func bitAt(addr netip.Addr, i int) int {
	raw := addr.AsSlice()
	return int(raw[i/8]>>(7-uint(i%8))) & 1
}

func (t *prefixTrie[T]) root(addr netip.Addr) **trieNode[T] {
	if addr.Is4() {
		return &t.v4
	}
	return &t.v6
}

// Insert inserts or replaces the value associated with the prefix. The
// prefix must be valid and masked; see [netipx.ParsePrefix].
func (t *prefixTrie[T]) Insert(pfx netip.Prefix, value T) {
	slot := t.root(pfx.Addr())
	for depth := 0; ; depth++ {
		if *slot == nil {
			*slot = &trieNode[T]{}
		}
		if depth == pfx.Bits() {
			break
		}
		slot = &(*slot).child[bitAt(pfx.Addr(), depth)]
	}
	node := *slot
	if !node.set {
		t.size++
	}
	node.pfx, node.value, node.set = pfx, value, true
}

// Lookup returns the most specific prefix containing the address.
func (t *prefixTrie[T]) Lookup(addr netip.Addr) (netip.Prefix, T, bool) {
	addr = addr.Unmap()
	if !addr.IsValid() {
		var zero T
		return netip.Prefix{}, zero, false
	}
	var (
		best  *trieNode[T]
		node  = *t.root(addr)
		nbits = addr.BitLen()
	)
	for depth := 0; node != nil; depth++ {
		if node.set {
			best = node
		}
		if depth >= nbits {
			break
		}
		node = node.child[bitAt(addr, depth)]
	}
	if best == nil {
		var zero T
		return netip.Prefix{}, zero, false
	}
	return best.pfx, best.value, true
}

// Len returns the number of prefixes in the trie.
func (t *prefixTrie[T]) Len() int {
	return t.size
}
