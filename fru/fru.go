// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fru

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/ipmi/domain"
	"github.com/bureau-foundation/ipmi/wire"
)

// Fetch chunking. Devices advertise a total size but accept only small
// reads; some lie about what they support, so the chunk size backs off
// from 32 to 16 in steps of 8 before the engine gives up.
const (
	maxDataFetch       = 32
	dataFetchDecrement = 8
	minDataFetch       = 16
)

// Write FRU Data carries at most 16 payload bytes per command; a busy
// device gets the identical command up to 30 more times.
const (
	maxDataWrite    = 16
	maxWriteRetries = 30
)

// minimumImageSize is the FRU common header. A device advertising less
// cannot hold a valid inventory.
const minimumImageSize = 8

// AreaMask selects which inventory areas a fetch should decode. The
// mask is carried on the object for decoders to consult; the engine
// itself always fetches the whole image.
type AreaMask uint8

const (
	AreaInternalUse AreaMask = 1 << iota
	AreaChassisInfo
	AreaBoardInfo
	AreaProductInfo
	AreaMultiRecord

	// AllAreaMask selects every area. Tracked allocators always use it.
	AllAreaMask AreaMask = 1<<5 - 1
)

// Domain is the management context a FRU is allocated against. It is
// the subset of *domain.Domain the engine consumes; anything providing
// these methods (notably test fakes) will do.
type Domain interface {
	Name() string
	UniqueNum() int
	Logger() *slog.Logger

	// Send submits a command; the handler runs later on a transport
	// goroutine, never synchronously from Send.
	Send(addr wire.Address, msg wire.Message, handler domain.ResponseHandler) error

	// Run enqueues work onto the domain's serialized worker.
	Run(f func()) error

	// Attribute and Find access the domain's refcounted attribute
	// registry (the FRU registry lives there).
	Attribute(key string, init func() (any, error), destroy func(any)) (any, func(), error)
	Find(key string) (any, func(), bool)
}

// FetchedHandler is the single-object completion callback installed by
// Alloc. err is nil on success, ErrCancelled if the object was
// destroyed mid-fetch, or the reason the fetch failed.
type FetchedHandler func(f *FRU, err error)

// DomainFetchedHandler is the domain-aware completion callback used by
// DomainAlloc, AllocNotrack, and Write.
type DomainFetchedHandler func(d Domain, f *FRU, err error)

// DestroyedHandler runs exactly once, after the last reference to a
// destroyed FRU is dropped.
type DestroyedHandler func(f *FRU)

// completionHandler is the installed completion callback: one variant
// per callback shape, chosen at allocation, consumed at completion.
type completionHandler interface {
	complete(d Domain, f *FRU, err error)
}

type fetchedFunc FetchedHandler

func (fn fetchedFunc) complete(_ Domain, f *FRU, err error) {
	if fn != nil {
		fn(f, err)
	}
}

type domainFetchedFunc DomainFetchedHandler

func (fn domainFetchedFunc) complete(d Domain, f *FRU, err error) {
	if fn != nil {
		fn(d, f, err)
	}
}

// FRU is a reference-counted handle on one device's inventory storage.
//
// The zero value is not usable; allocate with Alloc, DomainAlloc, or
// AllocNotrack. The addressing fields are immutable after allocation;
// everything else is guarded by mu.
type FRU struct {
	name  string // printable: domain name + unique suffix
	iname string // diagnostic: full addressing tuple

	dom    Domain
	logger *slog.Logger

	isLogical     bool
	deviceAddress uint8
	deviceID      uint8
	lun           uint8
	privateBus    uint8
	channel       uint8
	fetchMask     AreaMask
	tracked       bool

	mu         sync.Mutex
	refcount   int
	deleted    bool
	inUse      bool
	inRegistry bool

	completion     completionHandler
	destroyHandler DestroyedHandler

	// wordShift is 0 for byte-addressed devices and 1 for word
	// (16-bit) addressed ones; on-wire offsets and counts are shifted
	// right by it, response counts shifted left.
	wordShift uint

	data      []byte
	dataLen   int
	currPos   int
	fetchSize int

	updateRecs []updateRecord

	// lastCmd is the verbatim payload of the most recent Write FRU
	// Data command, kept for device-busy retry.
	lastCmd    []byte
	retryCount int

	normalFRU bool
	recData   any
	ops       Ops
}

// allocInternal creates the object and starts its fetch. On success the
// FRU is returned with its lock held so a tracked caller can attach it
// to the registry before any response handler can observe it.
func allocInternal(d Domain, isLogical bool, deviceAddress, deviceID, lun, privateBus, channel uint8,
	mask AreaMask, completion completionHandler) (*FRU, error) {

	f := &FRU{
		name:          fmt.Sprintf("%s.%d", d.Name(), d.UniqueNum()),
		dom:           d,
		isLogical:     isLogical,
		deviceAddress: deviceAddress,
		deviceID:      deviceID,
		lun:           lun,
		privateBus:    privateBus,
		channel:       channel,
		fetchMask:     mask,
		// One reference for the caller (or the registry, for tracked
		// objects) and one for the outstanding fetch.
		refcount:   2,
		inUse:      true,
		fetchSize:  maxDataFetch,
		completion: completion,
	}
	f.iname = fmt.Sprintf("%s.%t.%x.%d.%d.%d.%d",
		d.Name(), isLogical, deviceAddress, deviceID, lun, privateBus, channel)
	f.logger = d.Logger().With("fru", f.iname)

	f.mu.Lock()
	var err error
	if f.isLogical {
		err = f.startLogicalFetchLocked()
	} else {
		err = f.startPhysicalFetchLocked()
	}
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	return f, nil
}

// Alloc creates a tracked FRU and starts fetching its inventory. The
// object is inserted into the domain's FRU registry; fetched runs once
// when the fetch completes (successfully or not). All areas are
// fetched.
func Alloc(d Domain, isLogical bool, deviceAddress, deviceID, lun, privateBus, channel uint8,
	fetched FetchedHandler) (*FRU, error) {
	return allocTracked(d, isLogical, deviceAddress, deviceID, lun, privateBus, channel,
		fetchedFunc(fetched))
}

// DomainAlloc is Alloc with the domain-aware callback shape.
func DomainAlloc(d Domain, isLogical bool, deviceAddress, deviceID, lun, privateBus, channel uint8,
	fetched DomainFetchedHandler) (*FRU, error) {
	return allocTracked(d, isLogical, deviceAddress, deviceID, lun, privateBus, channel,
		domainFetchedFunc(fetched))
}

func allocTracked(d Domain, isLogical bool, deviceAddress, deviceID, lun, privateBus, channel uint8,
	completion completionHandler) (*FRU, error) {

	reg, release, err := registryFor(d)
	if err != nil {
		return nil, err
	}
	defer release()

	// Hold the registry lock across allocation and attachment so an
	// iterator never races with a half-constructed object.
	reg.mu.Lock()
	f, err := allocInternal(d, isLogical, deviceAddress, deviceID, lun, privateBus, channel,
		AllAreaMask, completion)
	if err != nil {
		reg.mu.Unlock()
		return nil, err
	}
	f.tracked = true
	f.inRegistry = true
	reg.addLocked(f)
	f.mu.Unlock()
	reg.mu.Unlock()
	return f, nil
}

// AllocNotrack creates an untracked FRU: not registered for iteration,
// with a caller-supplied fetch mask. The caller owns the only handle
// and must release it with DestroyInternal.
func AllocNotrack(d Domain, isLogical bool, deviceAddress, deviceID, lun, privateBus, channel uint8,
	mask AreaMask, fetched DomainFetchedHandler) (*FRU, error) {

	f, err := allocInternal(d, isLogical, deviceAddress, deviceID, lun, privateBus, channel,
		mask, domainFetchedFunc(fetched))
	if err != nil {
		return nil, err
	}
	f.mu.Unlock()
	return f, nil
}

// Ref takes an additional reference on the FRU.
func (f *FRU) Ref() {
	f.mu.Lock()
	f.refcount++
	f.mu.Unlock()
}

// Deref drops a reference taken with Ref (or granted by an iterator).
func (f *FRU) Deref() {
	f.put()
}

// put drops one reference; the last one triggers final teardown.
func (f *FRU) put() {
	f.mu.Lock()
	f.refcount--
	if f.refcount == 0 {
		f.finalDestroyLocked()
		return
	}
	f.mu.Unlock()
}

// finalDestroyLocked tears the object down. Called with the lock held
// and the refcount at zero; releases the lock.
//
// If the object is somehow still in its registry (a teardown path that
// bypassed Destroy), it must come out before the object dies — but the
// registry lock orders before the FRU lock, so the lock is dropped for
// the removal. An iterator may take a reference in that window; the
// recheck detects it and yields, since the iterator's Deref will
// re-enter here once it is done.
func (f *FRU) finalDestroyLocked() {
	if f.inRegistry {
		f.inRegistry = false
		if v, release, ok := f.dom.Find(fruAttrName); ok {
			f.refcount++
			f.mu.Unlock()
			reg := v.(*registry)
			reg.remove(f)
			release()
			f.mu.Lock()
			if f.refcount != 1 {
				f.refcount--
				f.mu.Unlock()
				return
			}
			f.refcount--
		}
	}
	f.mu.Unlock()

	// No other holder can reach the object now; run the teardown
	// hooks unlocked.
	if f.destroyHandler != nil {
		f.destroyHandler(f)
	}
	if f.ops != nil {
		f.ops.CleanupRecords(f)
	}
	f.updateRecs = nil
	f.data = nil
}

// Destroy releases a tracked FRU: it is removed from the registry,
// marked deleted so an in-flight fetch completes with ErrCancelled,
// and handler runs after the last reference is dropped.
//
// Untracked objects are refused with ErrPermission; a tracked object
// already destroyed is refused with ErrNotTracked.
func Destroy(f *FRU, handler DestroyedHandler) error {
	f.mu.Lock()
	if !f.tracked {
		f.mu.Unlock()
		return ErrPermission
	}
	if !f.inRegistry {
		f.mu.Unlock()
		return ErrNotTracked
	}
	f.inRegistry = false
	f.destroyHandler = handler
	f.deleted = true
	f.mu.Unlock()

	// Registry lock strictly after the FRU lock is released. The
	// object may still be visible to an iterator until the removal;
	// that iterator holds its own reference and is safe.
	if v, release, ok := f.dom.Find(fruAttrName); ok {
		reg := v.(*registry)
		reg.remove(f)
		release()
	}

	f.put() // the registry's reference
	return nil
}

// DestroyInternal releases an untracked FRU (the AllocNotrack
// counterpart of Destroy). Tracked objects are refused with
// ErrPermission.
func DestroyInternal(f *FRU, handler DestroyedHandler) error {
	f.mu.Lock()
	if f.tracked {
		f.mu.Unlock()
		return ErrPermission
	}
	f.destroyHandler = handler
	f.deleted = true
	f.mu.Unlock()

	f.put() // the caller's reference
	return nil
}

// address returns the IPMB address of the FRU's device, built from the
// immutable addressing fields.
func (f *FRU) address() wire.IPMB {
	return wire.IPMB{Channel: f.channel, Slave: f.deviceAddress, LUN: f.lun}
}
