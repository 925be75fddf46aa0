// SPDX-License-Identifier: GPL-3.0-or-later

package prober

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rbmk-project/blockcheck/errclass"
	"github.com/rbmk-project/blockcheck/report"
	"golang.org/x/sync/semaphore"
)

// Result is the outcome of probing a target.
type Result struct {
	Target   string
	Evidence report.Evidence
	Early    bool
	Err      error
}

// Run probes the targets with at most [Config.Probes] concurrent probes and
// returns the tallied results. Run stops dispatching when ctx is done or
// after [*Prober.Stop] and waits for the dispatched probes to complete.
func (p *Prober) Run(ctx context.Context, targets []string) *Counter {
	sem := semaphore.NewWeighted(int64(p.Config.Probes))
	results := make(chan Result, p.Config.Probes)
	counter := NewCounter()

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for res := range results {
			counter.Add(res)
			if p.Progress != nil {
				p.Progress(res)
			}
		}
	}()

	var wg sync.WaitGroup
	for _, target := range targets {
		if p.Stopped() || ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := p.probeOne(ctx, target)
			sem.Release(1)
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	<-collected
	return counter
}

func (p *Prober) probeOne(ctx context.Context, target string) Result {
	name := target
	if p.Config.Fake != "" {
		name = p.Config.Fake
	}
	verdict, err := p.Probe(ctx, name)
	res := Result{
		Target:   target,
		Evidence: Classify(verdict, err),
		Early:    verdict.Blocked && verdict.Early,
		Err:      err,
	}
	if err != nil {
		p.Logger.WarnContext(
			ctx,
			"probeFailed",
			slog.String("target", target),
			slog.String("evidence", res.Evidence.String()),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
		)
	}
	return res
}
