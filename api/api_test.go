// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rbmk-project/blockcheck/checker"
	"github.com/rbmk-project/blockcheck/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingResolver struct{}

func (failingResolver) LookupIPs(ctx context.Context, name string) ([]netip.Addr, error) {
	if name == "broken.example" {
		return nil, errors.New("servfail")
	}
	return resolver.Static{"rutracker.org": {netip.MustParseAddr("195.82.146.214")}}.LookupIPs(ctx, name)
}

func newTestServer(t *testing.T) *httptest.Server {
	c := checker.New(failingResolver{}, nil)
	_, err := c.RKN.Update([]byte("195.82.146.0/24\n"), []byte("rutracker.org\n"))
	require.NoError(t, err)
	srv := httptest.NewServer(New(c, nil, prometheus.NewRegistry()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestAPI(t *testing.T) {
	srv := newTestServer(t)

	t.Run("blocked", func(t *testing.T) {
		status, body := get(t, srv, "/api/check?target="+url.QueryEscape("https://rutracker.org/forum"))
		require.Equal(t, http.StatusOK, status)
		var check checker.Check
		require.NoError(t, json.Unmarshal([]byte(body), &check))
		assert.Equal(t, "rutracker.org", check.Target)
		assert.Equal(t, checker.StatusBlocked, check.Verdict.Status)
		assert.Equal(t, "rutracker.org", check.Verdict.RknDomain)
		assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("195.82.146.0/24")}, check.Verdict.RknSubnets)
		assert.Equal(t, "-", check.Geo.Location)
	})

	t.Run("clear address", func(t *testing.T) {
		status, body := get(t, srv, "/api/check?target=8.8.8.8")
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, `"status":"clear"`)
		assert.Contains(t, body, `"ips":["8.8.8.8"]`)
	})

	t.Run("not found", func(t *testing.T) {
		status, body := get(t, srv, "/api/check?target=nxdomain.example")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Contains(t, body, "not found")
	})

	t.Run("empty target", func(t *testing.T) {
		status, _ := get(t, srv, "/api/check")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("resolver failure", func(t *testing.T) {
		status, body := get(t, srv, "/api/check?target=broken.example")
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Contains(t, body, "servfail")
	})

	t.Run("healthcheck", func(t *testing.T) {
		status, body := get(t, srv, "/api/healthcheck")
		require.Equal(t, http.StatusServiceUnavailable, status)
		var st map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &st))
		assert.Equal(t, float64(1), st["total_domains"])
		assert.Equal(t, float64(256), st["total_v4s"])
		assert.Equal(t, "256", st["total_v4s_text"])
		assert.Nil(t, st["last_update"])
	})

	t.Run("metrics", func(t *testing.T) {
		status, body := get(t, srv, "/metrics")
		require.Equal(t, http.StatusOK, status)
		for _, line := range []string{
			`blockcheck_checks_total{outcome="blocked"} 1`,
			`blockcheck_checks_total{outcome="clear"} 1`,
			`blockcheck_checks_total{outcome="not_found"} 1`,
			`blockcheck_checks_total{outcome="invalid"} 1`,
			`blockcheck_checks_total{outcome="error"} 1`,
			`blockcheck_blacklisted_domains 1`,
			`blockcheck_check_duration_seconds_count 5`,
		} {
			assert.True(t, strings.Contains(body, line), line)
		}
	})
}

func TestHealthcheckAfterUpdate(t *testing.T) {
	c := checker.New(resolver.Static{}, nil)
	c.UpdateAll(context.Background())
	srv := httptest.NewServer(New(c, nil, prometheus.NewRegistry()).Handler())
	t.Cleanup(srv.Close)

	status, body := get(t, srv, "/api/healthcheck")
	require.Equal(t, http.StatusOK, status)
	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.NotNil(t, st["last_update"])
	assert.Equal(t, "0", st["total_domains_text"])
}
