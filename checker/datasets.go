// SPDX-License-Identifier: GPL-3.0-or-later

package checker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbmk-project/blockcheck/classify"
	"github.com/rbmk-project/blockcheck/dataset"
	"github.com/rbmk-project/blockcheck/errclass"
	"github.com/rbmk-project/blockcheck/geoip"
)

// geoDataset refreshes the three GeoIP databases together.
type geoDataset struct {
	dl      *dataset.Downloader
	geo     *geoip.GeoIp
	sources dataset.Sources
}

func (d *geoDataset) Name() string { return "geoip" }

func (d *geoDataset) Fetch(ctx context.Context) ([][]byte, error) {
	return d.dl.Fetch(ctx, d.sources.GeoASN, d.sources.GeoCountry, d.sources.GeoCity)
}

func (d *geoDataset) Apply(raw [][]byte) error {
	if len(raw) != 3 {
		return fmt.Errorf("geoip: expected 3 files, got %d", len(raw))
	}
	return d.geo.Install(raw[0], raw[1], raw[2])
}

// rknDataset refreshes the blacklisted networks and domains together.
type rknDataset struct {
	dl      *dataset.Downloader
	logger  *slog.Logger
	rkn     *classify.RuBlacklist
	sources dataset.Sources
}

func (d *rknDataset) Name() string { return "rkn" }

func (d *rknDataset) Fetch(ctx context.Context) ([][]byte, error) {
	return d.dl.Fetch(ctx, d.sources.RKNNets, d.sources.RKNDomains)
}

func (d *rknDataset) Apply(raw [][]byte) error {
	if len(raw) != 2 {
		return fmt.Errorf("rkn: expected 2 files, got %d", len(raw))
	}
	stats, err := d.rkn.Update(raw[0], raw[1])
	d.logger.Info(
		"rknApplied",
		slog.Int("networks", stats.Networks),
		slog.Int("invalidNetworks", stats.InvalidNetwork),
		slog.Int("domains", stats.Domains),
		slog.Int("invalidDomains", stats.InvalidDomain),
	)
	return err
}

// cdnDataset refreshes the CDN networks.
type cdnDataset struct {
	cdn     *classify.CdnList
	dl      *dataset.Downloader
	logger  *slog.Logger
	sources dataset.Sources
}

func (d *cdnDataset) Name() string { return "cdn" }

func (d *cdnDataset) Fetch(ctx context.Context) ([][]byte, error) {
	return d.dl.Fetch(ctx, d.sources.CDN)
}

func (d *cdnDataset) Apply(raw [][]byte) error {
	if len(raw) != 1 {
		return fmt.Errorf("cdn: expected 1 file, got %d", len(raw))
	}
	stats, err := d.cdn.Update(raw[0])
	d.logger.Info(
		"cdnApplied",
		slog.Int("records", stats.Records),
		slog.Int("invalid", stats.Invalid),
	)
	return err
}

// UseSources configures the datasets refreshed by [*Checker.UpdateAll]
// in the order GeoIP, blacklist and CDN list.
func (c *Checker) UseSources(dl *dataset.Downloader, sources dataset.Sources) {
	c.UseDatasets(
		&geoDataset{dl: dl, geo: c.GeoIP, sources: sources},
		&rknDataset{dl: dl, logger: c.Logger, rkn: c.RKN, sources: sources},
		&cdnDataset{cdn: c.CDN, dl: dl, logger: c.Logger, sources: sources},
	)
}

// UseDatasets replaces the datasets refreshed by [*Checker.UpdateAll].
//
// This method is not safe to call concurrently with UpdateAll.
func (c *Checker) UseDatasets(datasets ...dataset.Updatable) {
	c.datasets = datasets
}

// UpdateAll refreshes the datasets one at a time. A dataset that fails
// to refresh keeps its previous state and does not prevent the others
// from refreshing. The completion time is published in any case and
// the number of failed datasets is returned.
func (c *Checker) UpdateAll(ctx context.Context) int {
	c.Logger.InfoContext(ctx, "updateAllStart")
	failed := 0
	for _, ds := range c.datasets {
		if err := c.update(ctx, ds); err != nil {
			failed++
		}
	}
	t := c.timeNow()
	c.lastUpdate.Publish(t)
	c.Logger.InfoContext(ctx, "updateAllDone", slog.Int("failed", failed), slog.Time("t", t))
	return failed
}

func (c *Checker) update(ctx context.Context, ds dataset.Updatable) error {
	t0 := c.timeNow()
	raw, err := ds.Fetch(ctx)
	if err == nil {
		err = ds.Apply(raw)
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	c.Logger.Log(
		ctx,
		level,
		"datasetUpdateDone",
		slog.String("dataset", ds.Name()),
		slog.Any("err", err),
		slog.String("errClass", errclass.New(err)),
		slog.Time("t0", t0),
		slog.Time("t", c.timeNow()),
	)
	return err
}

// LastUpdate returns the time of the last completed [*Checker.UpdateAll].
func (c *Checker) LastUpdate() (time.Time, bool) {
	return c.lastUpdate.Load()
}

// Updates returns a channel closed when the next [*Checker.UpdateAll] completes.
func (c *Checker) Updates() <-chan struct{} {
	return c.lastUpdate.Changed()
}
