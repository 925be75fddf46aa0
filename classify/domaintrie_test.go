// SPDX-License-Identifier: GPL-3.0-or-later

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	tests := map[string]string{
		"example.com":        "example.com",
		"  Example.COM.  ":   "example.com",
		"*.example.com":      "example.com",
		"пример.рф":          "xn--e1afmkfd.xn--p1ai",
		"":                   "",
		"not a domain":       "",
		"https://example/ok": "",
	}
	for input, want := range tests {
		assert.Equal(t, want, NormalizeDomain(input), input)
	}
}

func TestDomainTrie(t *testing.T) {
	var trie domainTrie

	t.Run("empty trie", func(t *testing.T) {
		_, ok := trie.Ancestor("example.com")
		assert.False(t, ok)
	})

	assert.True(t, trie.Insert("example.com"))
	assert.False(t, trie.Insert("example.com"))
	assert.True(t, trie.Insert("deep.sub.example.com"))
	assert.True(t, trie.Insert("org"))
	assert.Equal(t, 3, trie.Len())

	tests := []struct {
		query string
		want  string
		ok    bool
	}{
		{"example.com", "example.com", true},
		{"sub.example.com", "example.com", true},
		{"a.deep.sub.example.com", "deep.sub.example.com", true},
		{"deep.sub.example.com", "deep.sub.example.com", true},
		{"notexample.com", "", false},
		{"com", "", false},
		{"example.net", "", false},
		{"wikipedia.org", "org", true},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, ok := trie.Ancestor(tt.query)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
