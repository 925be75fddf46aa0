// SPDX-License-Identifier: GPL-3.0-or-later

package prober

import (
	"errors"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/rbmk-project/blockcheck/report"
)

// Defaults of [Config].
const (
	DefaultCount   = 100_000
	DefaultIP      = "5.78.7.195"
	DefaultPath    = "100MB.bin"
	DefaultProbes  = 1000
	DefaultRetries = 2
	DefaultTimeout = 5 * time.Second
)

// Config contains the settings of a probing run.
type Config struct {
	// Fake, when not empty, is probed in place of every target.
	Fake string

	// HTTP selects plain HTTP instead of HTTPS.
	HTTP bool

	// IP is the vantage address every target resolves to.
	IP netip.Addr

	// Junk enables sending [JunkSize] bytes of junk as request body.
	Junk bool

	// Path is the path of the file to fetch from the vantage server.
	Path string

	// Port overrides the default port of the scheme when not zero.
	Port uint16

	// Probes is the maximum number of concurrent probes.
	Probes int

	// Retries is the number of attempts per target.
	Retries int

	// Timeout is the read timeout of every attempt.
	Timeout time.Duration
}

// DefaultConfig returns the default [Config].
func DefaultConfig() Config {
	return Config{
		IP:      netip.MustParseAddr(DefaultIP),
		Path:    DefaultPath,
		Probes:  DefaultProbes,
		Retries: DefaultRetries,
		Timeout: DefaultTimeout,
	}
}

// Validate returns an error when the configuration cannot be used.
func (c Config) Validate() error {
	switch {
	case !c.IP.IsValid():
		return errors.New("prober: invalid vantage IP")
	case c.Probes <= 0:
		return errors.New("prober: the number of probes must be positive")
	case c.Timeout <= 0:
		return errors.New("prober: the timeout must be positive")
	}
	return nil
}

// URL returns the URL to fetch for the given target.
func (c Config) URL(target string) string {
	scheme := "https"
	if c.HTTP {
		scheme = "http"
	}
	host := target
	switch {
	case c.Port != 0:
		host = net.JoinHostPort(target, strconv.Itoa(int(c.Port)))
	case strings.Contains(target, ":"):
		host = "[" + target + "]"
	}
	return scheme + "://" + host + "/" + strings.TrimPrefix(c.Path, "/")
}

// ReporterConfig returns the [report.ReporterConfig] describing c.
func (c Config) ReporterConfig() report.ReporterConfig {
	return report.ReporterConfig{
		HTTP:        c.HTTP,
		TxJunk:      c.Junk,
		IP:          c.IP.String(),
		Path:        c.Path,
		RetryCount:  c.Retries,
		TimeoutSecs: uint64(c.Timeout / time.Second),
		ProbeCount:  c.Probes,
	}
}
