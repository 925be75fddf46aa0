// SPDX-License-Identifier: GPL-3.0-or-later

// Package prober detects SNI and Host based blocking.
//
// Every target resolves to the same vantage server, which answers to any
// name, so a failure to fetch the first 64 KiB of a file using a given
// name is evidence that something on the path inspects that name.
package prober

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rbmk-project/blockcheck/closepool"
	"github.com/rbmk-project/blockcheck/errclass"
	"github.com/rbmk-project/blockcheck/netcore"
	"github.com/rbmk-project/blockcheck/report"
)

const (
	// RangeHeader is the Range header of every request.
	RangeHeader = "bytes=0-65536"

	// MinBodySize is the minimum body size of a successful attempt.
	MinBodySize = 65535

	// RequestTimeout bounds a whole attempt.
	RequestTimeout = 15 * time.Second

	// readTimeoutMultiplier scales [Config.Timeout] into the per-read
	// timeout. It does not grow with the attempt number.
	readTimeoutMultiplier = 1

	// maxBodySize bounds how much of the body we read.
	maxBodySize = 1 << 20
)

// Verdict is the outcome of probing a target that did not fail.
type Verdict struct {
	// Blocked is true when we found evidence of blocking.
	Blocked bool

	// Early is true when the block happened before any response.
	Early bool
}

// Classify maps the results of [*Prober.Probe] to [report.Evidence].
func Classify(v Verdict, err error) report.Evidence {
	switch {
	case err != nil && errclass.IsConnect(err):
		return report.ConnectError
	case err != nil:
		return report.Error
	case v.Blocked:
		return report.Blocked
	default:
		return report.Ok
	}
}

// Prober probes targets through a single vantage server.
//
// Construct using [New].
type Prober struct {
	// Config is the configuration.
	Config Config

	// DialContextFunc is the optional function to dial TCP connections.
	DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

	// Logger is the logger for probe events.
	Logger *slog.Logger

	// NetLogger is the optional logger for connection events.
	NetLogger *slog.Logger

	// Progress is an optional callback invoked for each completed target.
	Progress func(Result)

	stopped atomic.Bool
}

// New creates a new [*Prober].
func New(config Config, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{Config: config, Logger: logger}
}

// Stop prevents [*Prober.Run] from dispatching more targets. Targets
// already dispatched run to completion.
func (p *Prober) Stop() {
	p.stopped.Store(true)
}

// Stopped returns whether [*Prober.Stop] was called.
func (p *Prober) Stopped() bool {
	return p.stopped.Load()
}

// newClient returns a client whose connections all go to the vantage
// address, whatever the name in the URL.
func (p *Prober) newClient(pool *closepool.Pool) *http.Client {
	netx := &netcore.Network{
		DialContextFunc: p.DialContextFunc,
		Logger:          p.NetLogger,
		LookupHostFunc:  netcore.PinnedLookupHost(p.Config.IP.String()),
		ReadTimeout:     p.Config.Timeout * readTimeoutMultiplier,
		SkipTLSVerify:   true,
	}
	txp := &http.Transport{
		DialContext:       netx.DialContext,
		DialTLSContext:    netx.DialTLSContext,
		DisableKeepAlives: true,
	}
	pool.AddFunc(txp.CloseIdleConnections)
	return &http.Client{
		Transport: txp,
		Timeout:   RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Probe fetches the first 64 KiB of the file using target as SNI and Host,
// retrying up to [Config.Retries] attempts.
//
// A timeout on the last attempt is evidence of blocking, while any other
// failure on the last attempt is returned as an error. A response with a
// non-2xx status or a short body on the last attempt is also evidence of
// blocking.
func (p *Prober) Probe(ctx context.Context, target string) (Verdict, error) {
	var pool closepool.Pool
	defer pool.Close()

	targetURL := p.Config.URL(target)
	for attempt := 1; ; attempt++ {
		status, size, early, err := p.attempt(ctx, p.newClient(&pool), targetURL)
		retry := attempt < p.Config.Retries && ctx.Err() == nil

		if err != nil {
			p.Logger.DebugContext(
				ctx,
				"probeAttemptFailed",
				slog.String("target", target),
				slog.Int("attempt", attempt),
				slog.Bool("early", early),
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
			)
			if retry {
				continue
			}
			if errclass.IsTimeout(err) {
				return Verdict{Blocked: true, Early: early}, nil
			}
			return Verdict{}, err
		}

		if status >= 200 && status <= 299 && size >= MinBodySize {
			return Verdict{}, nil
		}
		p.Logger.WarnContext(
			ctx,
			"probeIncomplete",
			slog.String("target", target),
			slog.Int("attempt", attempt),
			slog.Int("status", status),
			slog.Int64("size", size),
		)
		if retry {
			continue
		}
		return Verdict{Blocked: true}, nil
	}
}

// attempt performs a single request and returns the status code, the
// body size, whether a failure happened before the response, and the error.
func (p *Prober) attempt(ctx context.Context, client *http.Client, targetURL string) (int, int64, bool, error) {
	var body io.Reader
	if p.Config.Junk {
		body = bytes.NewReader(Junk())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, body)
	if err != nil {
		return 0, 0, true, fmt.Errorf("prober: %w", err)
	}
	req.Header.Set("Range", RangeHeader)

	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, true, err
	}
	defer resp.Body.Close()

	size, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, size, false, err
	}
	return resp.StatusCode, size, false, nil
}
