// SPDX-License-Identifier: GPL-3.0-or-later

package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rbmk-project/blockcheck/errclass"
	"github.com/rbmk-project/blockcheck/netcore"
)

// DefaultMaxSize is the default maximum size of a downloaded file.
const DefaultMaxSize = 256 << 20

// DefaultTimeout is the default timeout of a single download.
const DefaultTimeout = 5 * time.Minute

// ErrTooLarge indicates that a file exceeds [Downloader.MaxSize].
var ErrTooLarge = errors.New("dataset: file too large")

// Downloader reads dataset files from URLs or local paths.
//
// Construct using [NewDownloader].
type Downloader struct {
	// Client is the HTTP client to use.
	Client *http.Client

	// Logger is the optional logger for download events.
	Logger *slog.Logger

	// MaxSize is the maximum number of bytes read per file.
	MaxSize int64

	// TimeNow is the optional function to get the current time.
	TimeNow func() time.Time
}

// NewDownloader creates a [*Downloader] dialing through netx.
func NewDownloader(netx *netcore.Network) *Downloader {
	txp := http.DefaultTransport.(*http.Transport).Clone()
	txp.DialContext = netx.DialContext
	txp.DialTLSContext = nil
	return &Downloader{
		Client:  &http.Client{Transport: txp, Timeout: DefaultTimeout},
		Logger:  netx.Logger,
		MaxSize: DefaultMaxSize,
		TimeNow: netx.TimeNow,
	}
}

func (d *Downloader) timeNow() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}

// Fetch reads all the given locations in order, stopping at the first error.
func (d *Downloader) Fetch(ctx context.Context, locations ...string) ([][]byte, error) {
	out := make([][]byte, 0, len(locations))
	for _, location := range locations {
		data, err := d.Get(ctx, location)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// Get reads a single location.
func (d *Downloader) Get(ctx context.Context, location string) ([]byte, error) {
	t0 := d.timeNow()
	d.logStart(ctx, t0, location)
	data, err := d.get(ctx, location)
	d.logDone(ctx, t0, location, len(data), err)
	return data, err
}

func (d *Downloader) get(ctx context.Context, location string) ([]byte, error) {
	if !isURL(location) {
		return d.readFile(location)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("dataset: %s: unexpected status: %s", location, resp.Status)
	}
	return d.readAll(resp.Body)
}

func (d *Downloader) readFile(path string) ([]byte, error) {
	filep, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer filep.Close()
	return d.readAll(filep)
}

func (d *Downloader) readAll(r io.Reader) ([]byte, error) {
	if d.MaxSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, d.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	if int64(len(data)) > d.MaxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

func (d *Downloader) logStart(ctx context.Context, t0 time.Time, location string) {
	if d.Logger != nil {
		d.Logger.InfoContext(
			ctx,
			"datasetFetchStart",
			slog.String("location", location),
			slog.Time("t", t0),
		)
	}
}

func (d *Downloader) logDone(ctx context.Context, t0 time.Time, location string, size int, err error) {
	if d.Logger != nil {
		d.Logger.InfoContext(
			ctx,
			"datasetFetchDone",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("location", location),
			slog.Int("size", size),
			slog.Time("t0", t0),
			slog.Time("t", d.timeNow()),
		)
	}
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
