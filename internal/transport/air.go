// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"sync"
	"sync/atomic"
)

// inboxSize bounds the frames queued per endpoint before new ones are dropped
const inboxSize = 64

// LossFunc decides whether a frame is lost in flight
type LossFunc func(src, dst Address, data []byte) bool

// TapFunc observes every frame put on the medium
type TapFunc func(src, dst Address, data []byte)

// Air is an in-memory radio medium shared by any number of endpoints
type Air struct {
	mu        sync.RWMutex
	endpoints map[Address]*AirEndpoint
	loss      LossFunc
	taps      []TapFunc

	Sent    atomic.Int64
	Dropped atomic.Int64
}

// NewAir creates an empty medium
func NewAir() *Air {
	return &Air{endpoints: make(map[Address]*AirEndpoint)}
}

// SetLoss installs a loss function; nil disables loss
func (a *Air) SetLoss(fn LossFunc) {
	a.mu.Lock()
	a.loss = fn
	a.mu.Unlock()
}

// Tap registers an observer that sees every frame, lost or not
func (a *Air) Tap(fn TapFunc) {
	a.mu.Lock()
	a.taps = append(a.taps, fn)
	a.mu.Unlock()
}

// Join attaches a new endpoint at addr
func (a *Air) Join(addr Address) (*AirEndpoint, error) {
	if addr.IsBroadcast() {
		return nil, ErrAddressInUse
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.endpoints[addr]; ok {
		return nil, ErrAddressInUse
	}

	ep := &AirEndpoint{
		air:   a,
		addr:  addr,
		inbox: make(chan airFrame, inboxSize),
		done:  make(chan struct{}),
	}
	a.endpoints[addr] = ep
	go ep.run()
	return ep, nil
}

func (a *Air) leave(addr Address) {
	a.mu.Lock()
	delete(a.endpoints, addr)
	a.mu.Unlock()
}

// transmit delivers one frame and reports the link outcome
func (a *Air) transmit(src, dst Address, data []byte) error {
	a.mu.RLock()
	loss := a.loss
	taps := a.taps
	var targets []*AirEndpoint
	if dst.IsBroadcast() {
		for addr, ep := range a.endpoints {
			if addr != src {
				targets = append(targets, ep)
			}
		}
	} else if ep, ok := a.endpoints[dst]; ok {
		targets = append(targets, ep)
	}
	a.mu.RUnlock()

	a.Sent.Add(1)
	for _, tap := range taps {
		tap(src, dst, append([]byte(nil), data...))
	}

	if !dst.IsBroadcast() && len(targets) == 0 {
		a.Dropped.Add(1)
		return ErrNoPeer
	}

	var result error
	for _, ep := range targets {
		if loss != nil && loss(src, ep.addr, data) {
			a.Dropped.Add(1)
			result = ErrLost
			continue
		}
		if !ep.enqueue(airFrame{src: src, data: append([]byte(nil), data...)}) {
			a.Dropped.Add(1)
			result = ErrLost
		}
	}

	// Broadcast has no link-level acknowledgement
	if dst.IsBroadcast() {
		return nil
	}
	return result
}

type airFrame struct {
	src  Address
	data []byte
}

// AirEndpoint is one node's attachment to an Air medium
type AirEndpoint struct {
	air   *Air
	addr  Address
	inbox chan airFrame
	done  chan struct{}

	mu      sync.RWMutex
	handler ReceiveHandler
	closed  atomic.Bool
	once    sync.Once
}

// LocalAddress returns the endpoint address
func (e *AirEndpoint) LocalAddress() Address {
	return e.addr
}

// Send transmits data to dst. Delivery is resolved immediately since the
// medium is in-process.
func (e *AirEndpoint) Send(dst Address, data []byte) (*Receipt, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if len(data) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return resolvedReceipt(e.air.transmit(e.addr, dst, data)), nil
}

// SetReceiveHandler installs the receive callback
func (e *AirEndpoint) SetReceiveHandler(h ReceiveHandler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

// Close detaches the endpoint from the medium
func (e *AirEndpoint) Close() error {
	e.once.Do(func() {
		e.closed.Store(true)
		e.air.leave(e.addr)
		close(e.done)
	})
	return nil
}

func (e *AirEndpoint) enqueue(f airFrame) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.inbox <- f:
		return true
	default:
		return false
	}
}

// run delivers queued frames to the handler one at a time
func (e *AirEndpoint) run() {
	for {
		select {
		case <-e.done:
			return
		case f := <-e.inbox:
			e.mu.RLock()
			h := e.handler
			e.mu.RUnlock()
			if h != nil {
				h(f.src, f.data)
			}
		}
	}
}
