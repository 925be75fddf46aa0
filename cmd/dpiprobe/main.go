// SPDX-License-Identifier: GPL-3.0-or-later

// Command dpiprobe checks whether the domains of a list are blocked by SNI
// or Host inspection on the path towards a vantage server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rbmk-project/blockcheck/logging"
	"github.com/rbmk-project/blockcheck/prober"
	"github.com/rbmk-project/blockcheck/report"
	"github.com/rbmk-project/blockcheck/version"
)

const (
	defaultEndpoint = "https://cheburcheck.ru/agency/report"
	uploadTimeout   = 30 * time.Second
)

type options struct {
	output    string
	targets   string
	fake      string
	count     int
	timeout   int
	probes    int
	verbosity prober.Verbosity
	retries   int
	http      bool
	junk      bool
	ip        string
	path      string
	endpoint  string
	port      uint16
	logLevel  string
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newCommand(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dpiprobe: %s\n", err)
		return 1
	}
	return 0
}

func newCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "dpiprobe",
		Short:         "DPI probe: checks blockage of domains by SNI",
		Version:       version.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return probe(cmd.Context(), opts, v.GetString("key"), stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "write the results as CSV to this file")
	flags.StringVar(&opts.targets, "targets", "", "read the targets from this rank,domain CSV file instead of the embedded list")
	flags.StringVarP(&opts.fake, "fake", "f", "", "probe this target in place of every target (might trigger a TLS block)")
	flags.IntVarP(&opts.count, "count", "c", prober.DefaultCount, "take the first N targets")
	flags.IntVarP(&opts.timeout, "timeout", "t", int(prober.DefaultTimeout/time.Second), "read timeout in seconds")
	flags.IntVarP(&opts.probes, "probes", "p", prober.DefaultProbes, "maximum concurrent probes (keep it below 'ulimit -n')")
	flags.VarP(&opts.verbosity, "verbosity", "v", "results to print: silent, error, block or all")
	flags.IntVarP(&opts.retries, "retry", "r", prober.DefaultRetries, "attempts per target")
	flags.BoolVarP(&opts.http, "http", "H", false, "use plain HTTP instead of HTTPS")
	flags.BoolVarP(&opts.junk, "junk", "x", false, "send 64 KiB of junk as request body")
	flags.StringVarP(&opts.ip, "ip", "i", prober.DefaultIP, "vantage server IP address every target resolves to")
	flags.StringVarP(&opts.path, "path", "P", prober.DefaultPath, "file to fetch from the vantage server")
	flags.StringVarP(&opts.endpoint, "endpoint", "a", defaultEndpoint, "report endpoint (empty disables the upload)")
	flags.StringP("key", "k", "", "report endpoint API key (env AGENCY_KEY)")
	flags.Uint16Var(&opts.port, "port", 0, "vantage server port")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	_ = flags.MarkHidden("port")

	_ = v.BindPFlag("key", flags.Lookup("key"))
	_ = v.BindEnv("key", "AGENCY_KEY")

	return cmd
}

func (o *options) proberConfig() (prober.Config, error) {
	ip, err := netip.ParseAddr(o.ip)
	if err != nil {
		return prober.Config{}, fmt.Errorf("invalid --ip: %w", err)
	}
	if o.retries <= 0 {
		return prober.Config{}, errors.New("--retry must be positive")
	}
	cfg := prober.Config{
		Fake:    o.fake,
		HTTP:    o.http,
		IP:      ip.Unmap(),
		Junk:    o.junk,
		Path:    o.path,
		Port:    o.port,
		Probes:  o.probes,
		Retries: o.retries,
		Timeout: time.Duration(o.timeout) * time.Second,
	}
	return cfg, cfg.Validate()
}

func (o *options) loadTargets() ([]string, error) {
	if o.targets == "" {
		return prober.DefaultTargets(o.count), nil
	}
	fp, err := os.Open(o.targets)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return prober.LoadTargets(fp, o.count)
}

func probe(ctx context.Context, opts *options, key string, stdout, stderr io.Writer) error {
	logger, err := logging.Setup(opts.logLevel, "text", stderr)
	if err != nil {
		return err
	}
	cfg, err := opts.proberConfig()
	if err != nil {
		return err
	}
	if limit, low := prober.LowOpenFileLimit(cfg.Probes); low {
		logger.Warn("open file limit is too low, consider increasing it using `ulimit -n`",
			slog.Uint64("limit", limit), slog.Int("probes", cfg.Probes))
	}

	logger.Info("loading targets")
	targets, err := opts.loadTargets()
	if err != nil {
		return fmt.Errorf("cannot load targets: %w", err)
	}

	p := prober.New(cfg, logger)
	if logger.Enabled(ctx, slog.LevelDebug) {
		p.NetLogger = logger
	}
	stopSignals := handleSignals(p, logger)
	defer stopSignals()

	var bar *pb.ProgressBar
	if len(targets) > 0 {
		bar = pb.New(len(targets)).SetWriter(stderr).Start()
		p.Progress = func(prober.Result) { bar.Increment() }
	}

	logger.Info("probing", slog.Int("targets", len(targets)), slog.Int("probes", cfg.Probes))
	t0 := time.Now()
	counter := p.Run(ctx, targets)
	if bar != nil {
		bar.Finish()
	}

	counter.PrintResults(stdout, opts.verbosity)
	if opts.output != "" {
		if err := writeResults(opts.output, counter.Results); err != nil {
			return fmt.Errorf("cannot save results: %w", err)
		}
	}
	logger.Info("probingDone",
		slog.Int("total", counter.Total()),
		slog.Duration("elapsed", time.Since(t0).Truncate(time.Second)))
	fmt.Fprintf(stdout, "Summary: %s\n", counter)

	if opts.endpoint == "" {
		return nil
	}
	r := &report.AgencyReport{
		Version: version.Version,
		Config:  cfg.ReporterConfig(),
		Data:    counter.Results,
	}
	if err := upload(ctx, logger, opts.endpoint, key, r); err != nil {
		logger.Warn("upload failed", slog.Any("err", err))
	}
	return nil
}

func writeResults(path string, results map[string]report.Evidence) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteCSV(fp, results); err != nil {
		fp.Close()
		return err
	}
	return fp.Close()
}

func upload(ctx context.Context, logger *slog.Logger, endpoint, key string, r *report.AgencyReport) error {
	logger.Info("uploading", slog.String("endpoint", endpoint))
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	message, err := report.Upload(ctx, http.DefaultClient, endpoint, key, r)
	if err != nil {
		return err
	}
	logger.Info("uploaded", slog.String("response", message))
	return nil
}

// handleSignals stops dispatching on the first interrupt and exits with
// status 130 on the second one.
func handleSignals(p *prober.Prober, logger *slog.Logger) func() {
	sigs := make(chan os.Signal, 2)
	done := make(chan struct{})
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		var count int
		for {
			select {
			case <-done:
				return
			case <-sigs:
				count++
				if count > 1 {
					logger.Warn("forcing exit")
					os.Exit(130)
				}
				logger.Warn("interrupt received, finishing up and saving")
				p.Stop()
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
