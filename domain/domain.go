// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/ipmi/wire"
)

// ErrClosed is returned by Run and Send after Close.
var ErrClosed = errors.New("domain: closed")

// ResponseHandler receives the response for a submitted command. The
// transport invokes it exactly once per accepted Send, on one of its
// own goroutines. Conditions with no device bytes (timeout, link loss)
// arrive as a synthesized response carrying only a completion code.
type ResponseHandler func(addr wire.Address, response wire.Response)

// Transport submits IPMI commands toward devices. Implementations
// queue the command and return; the response arrives later through the
// handler. Send may reject a command outright (malformed address,
// transport shut down), in which case the handler is never called.
type Transport interface {
	Send(addr wire.Address, msg wire.Message, handler ResponseHandler) error
}

// Domain is a management context: a name, a transport, an attribute
// registry, and a serialized worker for deferred callbacks.
type Domain struct {
	name      string
	transport Transport
	logger    *slog.Logger

	mu         sync.Mutex
	workAvail  *sync.Cond
	work       []func()
	attributes map[string]*attribute
	nextUnique int
	closed     bool

	workerDone chan struct{}
}

type attribute struct {
	value     any
	destroy   func(any)
	refs      int
	destroyed bool
}

// New creates a domain and starts its worker. logger may be nil, in
// which case slog.Default() is used.
func New(name string, transport Transport, logger *slog.Logger) *Domain {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Domain{
		name:       name,
		transport:  transport,
		logger:     logger.With("domain", name),
		attributes: make(map[string]*attribute),
		workerDone: make(chan struct{}),
	}
	d.workAvail = sync.NewCond(&d.mu)
	go d.worker()
	return d
}

// Name returns the domain's name.
func (d *Domain) Name() string {
	return d.name
}

// Logger returns the domain's logger, tagged with the domain name.
func (d *Domain) Logger() *slog.Logger {
	return d.logger
}

// UniqueNum returns a number never returned before by this domain. Used
// to build unique object names.
func (d *Domain) UniqueNum() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.nextUnique
	d.nextUnique++
	return n
}

// Send submits a command through the domain's transport.
func (d *Domain) Send(addr wire.Address, msg wire.Message, handler ResponseHandler) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return d.transport.Send(addr, msg, handler)
}

// Run enqueues f onto the domain worker. Work runs in submission order,
// one function at a time. Returns ErrClosed if the domain has been
// closed; f is then never invoked.
func (d *Domain) Run(f func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.work = append(d.work, f)
	d.workAvail.Signal()
	return nil
}

func (d *Domain) worker() {
	defer close(d.workerDone)
	for {
		d.mu.Lock()
		for len(d.work) == 0 && !d.closed {
			d.workAvail.Wait()
		}
		if len(d.work) == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		f := d.work[0]
		d.work = d.work[1:]
		d.mu.Unlock()
		f()
	}
}

// Close stops the worker after draining already-queued work, then
// destroys every remaining attribute. Safe to call once; engines must
// not submit work or commands afterward.
func (d *Domain) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.workAvail.Signal()
	d.mu.Unlock()

	<-d.workerDone

	// Tear down attributes after the worker has drained so queued
	// callbacks still see their attribute state.
	d.mu.Lock()
	remaining := make([]*attribute, 0, len(d.attributes))
	for key, attr := range d.attributes {
		if !attr.destroyed {
			attr.destroyed = true
			remaining = append(remaining, attr)
		}
		delete(d.attributes, key)
	}
	d.mu.Unlock()

	for _, attr := range remaining {
		if attr.destroy != nil {
			attr.destroy(attr.value)
		}
	}
}

// Attribute returns the payload registered under key, creating it with
// init on first use. Attributes live for the domain's lifetime: the
// creating call's destroy runs exactly once, at Close. The returned
// release function pairs with the reference this call granted; callers
// release when done with the payload so held references are visible
// in diagnostics, but releasing does not destroy.
func (d *Domain) Attribute(key string, init func() (any, error), destroy func(any)) (any, func(), error) {
	d.mu.Lock()
	attr, ok := d.attributes[key]
	if ok {
		attr.refs++
		d.mu.Unlock()
		return attr.value, d.releaseFunc(key, attr), nil
	}
	d.mu.Unlock()

	// Run init outside the domain lock: attribute payloads may take
	// their own locks during construction.
	value, err := init()
	if err != nil {
		return nil, nil, fmt.Errorf("domain %q: initializing attribute %q: %w", d.name, key, err)
	}

	d.mu.Lock()
	// A concurrent Attribute call may have won the race; use its
	// payload and discard ours.
	if existing, ok := d.attributes[key]; ok {
		existing.refs++
		d.mu.Unlock()
		if destroy != nil {
			destroy(value)
		}
		return existing.value, d.releaseFunc(key, existing), nil
	}
	attr = &attribute{value: value, destroy: destroy, refs: 1}
	d.attributes[key] = attr
	d.mu.Unlock()
	return attr.value, d.releaseFunc(key, attr), nil
}

// Find returns the payload registered under key without creating it.
// The boolean reports whether the attribute exists.
func (d *Domain) Find(key string) (any, func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	attr, ok := d.attributes[key]
	if !ok {
		return nil, nil, false
	}
	attr.refs++
	return attr.value, d.releaseFunc(key, attr), true
}

func (d *Domain) releaseFunc(_ string, attr *attribute) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			attr.refs--
			d.mu.Unlock()
		})
	}
}
