// SPDX-License-Identifier: GPL-3.0-or-later

package prober

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/rbmk-project/blockcheck/report"
	"github.com/spf13/pflag"
)

// Verbosity controls which results are printed.
//
// It implements [github.com/spf13/pflag.Value].
type Verbosity int

const (
	VerbositySilent Verbosity = iota
	VerbosityError
	VerbosityBlock
	VerbosityAll
)

var _ pflag.Value = new(Verbosity)

var verbosityNames = []string{"silent", "error", "block", "all"}

// String implements pflag.Value.
func (v *Verbosity) String() string {
	if *v < VerbositySilent || *v > VerbosityAll {
		return "invalid"
	}
	return verbosityNames[*v]
}

// Set implements pflag.Value.
func (v *Verbosity) Set(s string) error {
	idx := slices.Index(verbosityNames, strings.ToLower(s))
	if idx < 0 {
		return fmt.Errorf("must be one of %s", strings.Join(verbosityNames, ", "))
	}
	*v = Verbosity(idx)
	return nil
}

// Type implements pflag.Value.
func (v *Verbosity) Type() string {
	return "verbosity"
}

// Counter tallies the results of a run. It is not safe for concurrent use.
type Counter struct {
	ok, block, err, early int

	// Results maps each target to its evidence.
	Results map[string]report.Evidence
}

// NewCounter creates an empty [*Counter].
func NewCounter() *Counter {
	return &Counter{Results: make(map[string]report.Evidence)}
}

// Add records a result.
func (c *Counter) Add(res Result) {
	switch res.Evidence {
	case report.Ok:
		c.ok++
	case report.Blocked:
		c.block++
		if res.Early {
			c.early++
		}
	default:
		c.err++
	}
	c.Results[res.Target] = res.Evidence
}

// Total returns the number of recorded results.
func (c *Counter) Total() int {
	return c.ok + c.block + c.err
}

// Early returns the number of targets blocked before any response.
func (c *Counter) Early() int {
	return c.early
}

// String returns the summary line.
func (c *Counter) String() string {
	return fmt.Sprintf("OK %d (%.2f%%) | Blocked %d (early: %d) (%.2f%%) | Error %d (%.2f%%)",
		c.ok, c.percent(c.ok), c.block, c.early, c.percent(c.block), c.err, c.percent(c.err))
}

func (c *Counter) percent(n int) float64 {
	total := c.Total()
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// PrintResults writes the results selected by the verbosity, sorted by target.
func (c *Counter) PrintResults(w io.Writer, v Verbosity) {
	if v <= VerbositySilent {
		return
	}
	targets := make([]string, 0, len(c.Results))
	for target := range c.Results {
		targets = append(targets, target)
	}
	slices.Sort(targets)
	fmt.Fprintln(w, "Results:")
	for _, target := range targets {
		switch ev := c.Results[target]; {
		case ev == report.Ok && v >= VerbosityAll:
			fmt.Fprintf(w, "    [Ok] %s\n", target)
		case ev == report.Blocked && v >= VerbosityBlock:
			fmt.Fprintf(w, "    [Blocked] %s\n", target)
		case ev == report.ConnectError && v >= VerbosityError:
			fmt.Fprintf(w, "    [ConnectError] %s\n", target)
		}
	}
}
