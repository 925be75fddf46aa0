// SPDX-License-Identifier: GPL-3.0-or-later

package checker

import "sync"

// Broadcast is a single-slot value observed by any number of readers.
//
// Publishing replaces the value and wakes up every waiting reader. Readers
// only ever observe the latest value, never a backlog of values.
//
// The zero value holds no value and is ready to use.
type Broadcast[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
	ch    chan struct{}
}

// Publish replaces the value and notifies the readers.
func (b *Broadcast[T]) Publish(value T) {
	b.mu.Lock()
	b.value, b.set = value, true
	if b.ch != nil {
		close(b.ch)
		b.ch = nil
	}
	b.mu.Unlock()
}

// Load returns the latest value and whether any value was published.
func (b *Broadcast[T]) Load() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.set
}

// Changed returns a channel closed by the next [*Broadcast.Publish].
func (b *Broadcast[T]) Changed() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch == nil {
		b.ch = make(chan struct{})
	}
	return b.ch
}
