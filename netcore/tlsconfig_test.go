// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetwork_tlsConfig(t *testing.T) {
	t.Run("returns cloned config when available", func(t *testing.T) {
		originalConfig := &tls.Config{
			ServerName:         "example.com",
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS12,
		}

		nx := &Network{
			TLSConfig: originalConfig,
		}

		config, err := nx.tlsConfig("example.com:443")
		require.NoError(t, err)

		// Verify it's not the same instance (it's cloned)
		assert.NotSame(t, originalConfig, config)

		// But has the same values
		assert.Equal(t, originalConfig.ServerName, config.ServerName)
		assert.Equal(t, originalConfig.InsecureSkipVerify, config.InsecureSkipVerify)
		assert.Equal(t, originalConfig.MinVersion, config.MinVersion)
	})

	t.Run("fills the SNI of a shared config", func(t *testing.T) {
		shared := &tls.Config{InsecureSkipVerify: true}
		nx := &Network{TLSConfig: shared}

		config, err := nx.tlsConfig("blocked.example:443")
		require.NoError(t, err)
		assert.Equal(t, "blocked.example", config.ServerName)
		assert.Empty(t, shared.ServerName)
	})

	t.Run("shared config with invalid address", func(t *testing.T) {
		nx := &Network{TLSConfig: &tls.Config{}}
		_, err := nx.tlsConfig("invalid:address:format")
		assert.Error(t, err)
	})

	t.Run("creates new config when none is available", func(t *testing.T) {
		nx := &Network{}

		config, err := nx.tlsConfig("example.com:443")
		require.NoError(t, err)

		assert.Equal(t, "example.com", config.ServerName)
		assert.False(t, config.InsecureSkipVerify)
		assert.Equal(t, []string{"http/1.1"}, config.NextProtos)
	})

	t.Run("honours SkipTLSVerify", func(t *testing.T) {
		nx := &Network{SkipTLSVerify: true}

		config, err := nx.tlsConfig("example.com:443")
		require.NoError(t, err)
		assert.True(t, config.InsecureSkipVerify)
	})
}

func TestNewTLSConfig(t *testing.T) {
	t.Run("invalid address format", func(t *testing.T) {
		_, err := newTLSConfig("invalid:address:format", false)
		assert.Error(t, err)
	})

	t.Run("IPv6 literal", func(t *testing.T) {
		config, err := newTLSConfig("[2001:db8::1]:443", true)
		require.NoError(t, err)
		assert.Equal(t, "2001:db8::1", config.ServerName)
		assert.True(t, config.InsecureSkipVerify)
	})
}
