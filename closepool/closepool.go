// SPDX-License-Identifier: GPL-3.0-or-later

// Package closepool allows pooling [io.Closer] instances
// and closing them in a single operation.
//
// The checker service uses a pool to tear down its listeners and
// datasets on shutdown, and the prober uses one to release the idle
// connections of every per-attempt HTTP transport.
package closepool

import (
	"errors"
	"io"
	"slices"
	"sync"
)

// Func adapts a cleanup function to [io.Closer].
type Func func() error

var _ io.Closer = Func(nil)

// Close implements [io.Closer].
func (fx Func) Close() error {
	return fx()
}

// Pool allows pooling a set of [io.Closer].
//
// The zero value is ready to use.
type Pool struct {
	handles []io.Closer
	mu      sync.Mutex
}

// Add adds a given [io.Closer] to the pool.
func (p *Pool) Add(c io.Closer) {
	p.mu.Lock()
	p.handles = append(p.handles, c)
	p.mu.Unlock()
}

// AddFunc adds a cleanup function that cannot fail, such as
// [*net/http.Transport.CloseIdleConnections], to the pool.
func (p *Pool) AddFunc(fx func()) {
	p.Add(Func(func() error {
		fx()
		return nil
	}))
}

// Len returns the number of [io.Closer] waiting to be closed.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Close closes all the [io.Closer] inside the pool iterating
// in backward order. Therefore, if one registers a listener and
// then the server using it, the server is closed first. The
// returned error is the join of all the errors that occurred.
//
// The pool is empty after Close and may be reused.
func (p *Pool) Close() error {
	p.mu.Lock()
	handles := p.handles
	p.handles = nil
	p.mu.Unlock()

	var errv []error
	for _, c := range slices.Backward(handles) {
		if err := c.Close(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}
