// SPDX-License-Identifier: GPL-3.0-or-later

package classify

import (
	"strings"

	"golang.org/x/net/idna"
)

// domainTrie stores domains keyed by their reversed label sequence,
// e.g., "a.b.com" is stored under [com b a], so that walking a query
// from its top-level label visits all the listed ancestors.
type domainTrie struct {
	root *domainNode
	size int
}

type domainNode struct {
	children map[string]*domainNode
	terminal bool
}

// NormalizeDomain converts a domain to the lowercase ASCII form we use as
// trie key: it strips spaces, a leading wildcard label and the trailing dot,
// and converts internationalized names to punycode. It returns an empty
// string for inputs that are not domains.
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "*.")
	domain = strings.TrimSuffix(domain, ".")
	if domain == "" || strings.ContainsAny(domain, " /\t") {
		return ""
	}
	if ascii, err := idna.Punycode.ToASCII(domain); err == nil {
		domain = ascii
	}
	return domain
}

// labels returns the reversed labels of a normalized domain.
func labels(domain string) []string {
	v := strings.Split(domain, ".")
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
	return v
}

// Insert adds a normalized domain and returns whether it was new.
func (t *domainTrie) Insert(domain string) bool {
	if t.root == nil {
		t.root = &domainNode{}
	}
	node := t.root
	for _, label := range labels(domain) {
		next := node.children[label]
		if next == nil {
			if node.children == nil {
				node.children = make(map[string]*domainNode)
			}
			next = &domainNode{}
			node.children[label] = next
		}
		node = next
	}
	if node.terminal {
		return false
	}
	node.terminal = true
	t.size++
	return true
}

// Ancestor returns the most specific listed domain that equals the
// normalized domain or is one of its ancestors.
func (t *domainTrie) Ancestor(domain string) (string, bool) {
	if t.root == nil || domain == "" {
		return "", false
	}
	rev := labels(domain)
	node, best := t.root, -1
	for i, label := range rev {
		node = node.children[label]
		if node == nil {
			break
		}
		if node.terminal {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	// the listed domain consists of the last best+1 labels of the query
	parts := strings.Split(domain, ".")
	return strings.Join(parts[len(parts)-best-1:], "."), true
}

// Len returns the number of distinct domains.
func (t *domainTrie) Len() int {
	return t.size
}
