// SPDX-License-Identifier: GPL-3.0-or-later

package netipx_test

import (
	"net/netip"
	"testing"

	"github.com/rbmk-project/blockcheck/netipx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrefix(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    netip.Prefix
		wantErr bool
	}{
		{
			name:  "IPv4 CIDR",
			input: "104.16.0.0/12",
			want:  netip.MustParsePrefix("104.16.0.0/12"),
		},

		{
			name:  "unmasked IPv4 CIDR",
			input: "10.1.2.3/8",
			want:  netip.MustParsePrefix("10.0.0.0/8"),
		},

		{
			name:  "bare IPv4 address",
			input: " 8.8.8.8 ",
			want:  netip.MustParsePrefix("8.8.8.8/32"),
		},

		{
			name:  "bare IPv6 address",
			input: "2001:db8::1",
			want:  netip.MustParsePrefix("2001:db8::1/128"),
		},

		{
			name:  "IPv4-mapped IPv6 prefix",
			input: "::ffff:10.0.0.0/104",
			want:  netip.MustParsePrefix("10.0.0.0/8"),
		},

		{
			name:    "empty",
			input:   "   ",
			wantErr: true,
		},

		{
			name:    "garbage",
			input:   "not-an-ip",
			wantErr: true,
		},

		{
			name:    "invalid bits",
			input:   "10.0.0.0/33",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := netipx.ParsePrefix(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("empty is ErrEmpty", func(t *testing.T) {
		_, err := netipx.ParsePrefix("")
		assert.ErrorIs(t, err, netipx.ErrEmpty)
	})
}

func TestParseLines(t *testing.T) {
	data := []byte("# comment\n1.2.3.0/24\n\n5.6.7.8\r\nbogus\n2001:db8::/32\n")
	got, invalid := netipx.ParseLines(data)
	assert.Equal(t, 1, invalid)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("1.2.3.0/24"),
		netip.MustParsePrefix("5.6.7.8/32"),
		netip.MustParsePrefix("2001:db8::/32"),
	}, got)
}

func TestCountAddrs4(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		count, err := netipx.CountAddrs4(nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), count)
	})

	t.Run("overlapping prefixes are merged", func(t *testing.T) {
		count, err := netipx.CountAddrs4([]netip.Prefix{
			netip.MustParsePrefix("10.0.0.0/24"),
			netip.MustParsePrefix("10.0.0.128/25"),
			netip.MustParsePrefix("192.168.1.1/32"),
			netip.MustParsePrefix("2001:db8::/32"),
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(257), count)
	})

	t.Run("whole address space", func(t *testing.T) {
		count, err := netipx.CountAddrs4([]netip.Prefix{netip.MustParsePrefix("0.0.0.0/0")})
		require.NoError(t, err)
		assert.Equal(t, uint64(1)<<32, count)
	})
}
