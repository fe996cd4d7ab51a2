// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"sync"
)

// Receipt reports the link-level outcome of one send.
// It resolves exactly once; a nil error means the medium accepted the frame.
type Receipt struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewReceipt creates an unresolved receipt
func NewReceipt() *Receipt {
	return &Receipt{done: make(chan struct{})}
}

// resolvedReceipt returns a receipt that is already resolved with err
func resolvedReceipt(err error) *Receipt {
	r := NewReceipt()
	r.Resolve(err)
	return r
}

// Resolve sets the outcome. Calls after the first are ignored.
func (r *Receipt) Resolve(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done is closed once the outcome is known
func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Err returns the outcome, or nil if not yet resolved
func (r *Receipt) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the outcome is known or ctx ends
func (r *Receipt) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
