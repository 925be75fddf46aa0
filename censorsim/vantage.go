// SPDX-License-Identifier: GPL-3.0-or-later

package censorsim

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rbmk-project/common/runtimex"
)

// Vantage is a server answering to any name with the same content.
type Vantage struct {
	// Server is the underlying server.
	Server *httptest.Server

	// Delay is the optional time to wait before responding.
	Delay time.Duration

	content   []byte
	active    atomic.Int64
	maxActive atomic.Int64
	requests  atomic.Int64
}

// NewVantage starts a [*Vantage] serving size bytes, using TLS when secure.
func NewVantage(secure bool, size int) *Vantage {
	v := &Vantage{content: bytes.Repeat([]byte("0123456789abcdef"), size/16+1)[:size]}
	v.Server = httptest.NewUnstartedServer(http.HandlerFunc(v.serveHTTP))
	if secure {
		v.Server.StartTLS()
	} else {
		v.Server.Start()
	}
	return v
}

func (v *Vantage) serveHTTP(w http.ResponseWriter, r *http.Request) {
	v.requests.Add(1)
	cur := v.active.Add(1)
	defer v.active.Add(-1)
	for {
		prev := v.maxActive.Load()
		if cur <= prev || v.maxActive.CompareAndSwap(prev, cur) {
			break
		}
	}
	if v.Delay > 0 {
		select {
		case <-time.After(v.Delay):
		case <-r.Context().Done():
			return
		}
	}
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(v.content))
}

// Addr returns the address of the server.
func (v *Vantage) Addr() netip.AddrPort {
	parsed := runtimex.Try1(url.Parse(v.Server.URL))
	return netip.MustParseAddrPort(parsed.Host)
}

// MaxActive returns the maximum number of concurrent requests observed.
func (v *Vantage) MaxActive() int64 {
	return v.maxActive.Load()
}

// Requests returns the number of requests received.
func (v *Vantage) Requests() int64 {
	return v.requests.Load()
}

// Close shuts down the server.
func (v *Vantage) Close() {
	v.Server.Close()
}
