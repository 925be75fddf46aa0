// SPDX-License-Identifier: GPL-3.0-or-later

// Command blockcheckd serves the checker API, refreshing the datasets
// in the background.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rbmk-project/blockcheck/api"
	"github.com/rbmk-project/blockcheck/checker"
	"github.com/rbmk-project/blockcheck/closepool"
	"github.com/rbmk-project/blockcheck/config"
	"github.com/rbmk-project/blockcheck/dataset"
	"github.com/rbmk-project/blockcheck/logging"
	"github.com/rbmk-project/blockcheck/netcore"
	"github.com/rbmk-project/blockcheck/resolver"
	"github.com/rbmk-project/blockcheck/version"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "blockcheckd",
		Short:         "Serves the blocking checker API",
		Version:       version.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "optional TOML configuration file")
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "blockcheckd: %s\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	reso, err := resolver.NewDNS(cfg.DNSUpstream, cfg.DNSNet, resolver.DefaultTimeout)
	if err != nil {
		return err
	}

	chk := checker.New(reso, logger)
	chk.GeoIP.Locale = cfg.GeoLocale

	var pool closepool.Pool
	defer pool.Close()

	dl := dataset.NewDownloader(&netcore.Network{Logger: logger, TimeNow: time.Now})
	pool.AddFunc(dl.Client.CloseIdleConnections)
	chk.UseSources(dl, cfg.Sources())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.New(chk, logger, reg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	pool.Add(srv)

	logger.Info("starting",
		slog.String("version", version.Version),
		slog.String("listenAddr", cfg.ListenAddr),
		slog.String("dnsUpstream", cfg.DNSUpstream),
		slog.Duration("interval", cfg.Interval()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		refresher := &checker.Refresher{Interval: cfg.Interval(), Updater: chk}
		if err := refresher.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
