// SPDX-License-Identifier: GPL-3.0-or-later

package prober

import (
	"net/netip"
	"testing"
	"time"

	"github.com/rbmk-project/blockcheck/report"
	"github.com/stretchr/testify/assert"
)

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	t.Run("URL", func(t *testing.T) {
		c := cfg
		assert.Equal(t, "https://example.com/100MB.bin", c.URL("example.com"))
		c.HTTP = true
		c.Path = "/files/big.bin"
		assert.Equal(t, "http://example.com/files/big.bin", c.URL("example.com"))
		c.Port = 8443
		assert.Equal(t, "http://example.com:8443/files/big.bin", c.URL("example.com"))
		assert.Equal(t, "http://[2001:db8::1]:8443/files/big.bin", c.URL("2001:db8::1"))
		c.Port = 0
		assert.Equal(t, "http://[2001:db8::1]/files/big.bin", c.URL("2001:db8::1"))
	})

	t.Run("ReporterConfig", func(t *testing.T) {
		c := cfg
		c.Junk = true
		assert.Equal(t, report.ReporterConfig{
			HTTP:        false,
			TxJunk:      true,
			IP:          "5.78.7.195",
			Path:        "100MB.bin",
			RetryCount:  2,
			TimeoutSecs: 5,
			ProbeCount:  1000,
		}, c.ReporterConfig())
	})

	t.Run("Validate", func(t *testing.T) {
		for _, mutate := range []func(*Config){
			func(c *Config) { c.IP = netip.Addr{} },
			func(c *Config) { c.Probes = 0 },
			func(c *Config) { c.Timeout = -time.Second },
		} {
			c := cfg
			mutate(&c)
			assert.Error(t, c.Validate())
		}
	})
}
