// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fru_test

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/ipmi/domain"
	"github.com/bureau-foundation/ipmi/fru"
	"github.com/bureau-foundation/ipmi/lib/testutil"
)

func TestNamesAreUniqueAndPrefixed(t *testing.T) {
	t.Parallel()
	device := newFRUDevice(testImage(16), false)
	transport := &autoTransport{respond: device.respond}
	d := newTestDomain(t, transport)
	decoder := &fakeDecoder{domainName: d.Name()}
	registerTestDecoder(t, decoder)

	first, err := allocAndFetch(t, d)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	second, err := allocAndFetch(t, d)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if first.Name() == second.Name() {
		t.Errorf("two FRUs share the name %q", first.Name())
	}
	for _, f := range []*fru.FRU{first, second} {
		if got, wantPrefix := f.Name(), d.Name()+"."; len(got) <= len(wantPrefix) || got[:len(wantPrefix)] != wantPrefix {
			t.Errorf("name %q does not carry domain prefix %q", got, wantPrefix)
		}
	}
}

func TestIterateVisitsTrackedOnly(t *testing.T) {
	t.Parallel()
	device := newFRUDevice(testImage(16), false)
	transport := &autoTransport{respond: device.respond}
	d := newTestDomain(t, transport)
	decoder := &fakeDecoder{domainName: d.Name()}
	registerTestDecoder(t, decoder)

	tracked, err := allocAndFetch(t, d)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	notrackDone := make(chan fetchResult, 1)
	untracked, err := fru.AllocNotrack(d, true, 0x22, 0, 0, 0, 0, fru.AllAreaMask,
		func(_ fru.Domain, f *fru.FRU, err error) {
			notrackDone <- fetchResult{f: f, err: err}
		})
	if err != nil {
		t.Fatalf("AllocNotrack: %v", err)
	}
	testutil.RequireReceive(t, notrackDone, 5*time.Second, "untracked fetch")

	var visited []*fru.FRU
	fru.Iterate(d, func(f *fru.FRU) {
		visited = append(visited, f)
	})

	if len(visited) != 1 || visited[0] != tracked {
		t.Errorf("Iterate visited %d objects, want exactly the tracked one", len(visited))
	}

	if err := fru.DestroyInternal(untracked, nil); err != nil {
		t.Errorf("DestroyInternal: %v", err)
	}
}

func TestIterateOnEmptyDomain(t *testing.T) {
	t.Parallel()
	d := newTestDomain(t, newManualTransport())

	calls := 0
	fru.Iterate(d, func(*fru.FRU) { calls++ })
	if calls != 0 {
		t.Errorf("Iterate on a FRU-less domain made %d calls", calls)
	}
}

func TestDestroyPolicies(t *testing.T) {
	t.Parallel()
	device := newFRUDevice(testImage(16), false)
	transport := &autoTransport{respond: device.respond}
	d := newTestDomain(t, transport)
	decoder := &fakeDecoder{domainName: d.Name()}
	registerTestDecoder(t, decoder)

	tracked, err := allocAndFetch(t, d)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	notrackDone := make(chan fetchResult, 1)
	untracked, err := fru.AllocNotrack(d, true, 0x22, 0, 0, 0, 0, fru.AllAreaMask,
		func(_ fru.Domain, f *fru.FRU, err error) {
			notrackDone <- fetchResult{f: f, err: err}
		})
	if err != nil {
		t.Fatalf("AllocNotrack: %v", err)
	}
	testutil.RequireReceive(t, notrackDone, 5*time.Second, "untracked fetch")

	// Wrong API for each flavor.
	if err := fru.Destroy(untracked, nil); !errors.Is(err, fru.ErrPermission) {
		t.Errorf("Destroy(untracked): got %v, want ErrPermission", err)
	}
	if err := fru.DestroyInternal(tracked, nil); !errors.Is(err, fru.ErrPermission) {
		t.Errorf("DestroyInternal(tracked): got %v, want ErrPermission", err)
	}

	// Right API, then again.
	if err := fru.Destroy(tracked, nil); err != nil {
		t.Errorf("Destroy(tracked): %v", err)
	}
	if err := fru.Destroy(tracked, nil); !errors.Is(err, fru.ErrNotTracked) {
		t.Errorf("second Destroy: got %v, want ErrNotTracked", err)
	}

	if err := fru.DestroyInternal(untracked, nil); err != nil {
		t.Errorf("DestroyInternal(untracked): %v", err)
	}
}

func TestDestroyHandlerWaitsForLastReference(t *testing.T) {
	t.Parallel()
	device := newFRUDevice(testImage(16), false)
	transport := &autoTransport{respond: device.respond}
	d := newTestDomain(t, transport)
	decoder := &fakeDecoder{domainName: d.Name()}
	registerTestDecoder(t, decoder)

	f, err := allocAndFetch(t, d)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// An extra holder (as an iterator would be) keeps the object
	// alive past Destroy.
	f.Ref()

	destroyed := make(chan struct{})
	if err := fru.Destroy(f, func(*fru.FRU) { close(destroyed) }); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	testutil.RequireNoReceive(t, destroyed, 50*time.Millisecond,
		"destroy handler must wait for the held reference")

	f.Deref()
	testutil.RequireClosed(t, destroyed, 5*time.Second, "destroy handler after final Deref")
}

func TestDestroyedObjectLeavesRegistry(t *testing.T) {
	t.Parallel()
	device := newFRUDevice(testImage(16), false)
	transport := &autoTransport{respond: device.respond}
	d := newTestDomain(t, transport)
	decoder := &fakeDecoder{domainName: d.Name()}
	registerTestDecoder(t, decoder)

	keep, err := allocAndFetch(t, d)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	doomed, err := allocAndFetch(t, d)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := fru.Destroy(doomed, nil); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	var visited []*fru.FRU
	fru.Iterate(d, func(f *fru.FRU) { visited = append(visited, f) })
	if len(visited) != 1 || visited[0] != keep {
		t.Errorf("Iterate after destroy visited %d objects, want only the surviving one", len(visited))
	}
}

func TestDomainCloseTearsDownTrackedObjects(t *testing.T) {
	t.Parallel()
	device := newFRUDevice(testImage(40), false)
	transport := &autoTransport{respond: device.respond}
	d := domain.New(t.Name(), transport, slog.New(slog.DiscardHandler))
	ops := &fakeOps{image: testImage(40)}
	decoder := &fakeDecoder{domainName: d.Name(), ops: ops}
	registerTestDecoder(t, decoder)

	if _, err := allocAndFetch(t, d); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// Close drops the registry's references; final teardown runs the
	// decoder cleanup hook.
	d.Close()
	if _, _, cleanups := ops.counts(); cleanups != 1 {
		t.Errorf("CleanupRecords ran %d times at domain close, want 1", cleanups)
	}
}

func TestIterateDuringConcurrentDestroy(t *testing.T) {
	t.Parallel()
	device := newFRUDevice(testImage(16), false)
	transport := &autoTransport{respond: device.respond}
	d := newTestDomain(t, transport)
	decoder := &fakeDecoder{domainName: d.Name()}
	registerTestDecoder(t, decoder)

	const objects = 8
	frus := make([]*fru.FRU, objects)
	for i := range frus {
		f, err := allocAndFetch(t, d)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		frus[i] = f
	}

	// Destroy every object while iterators run. Iterators must only
	// ever see objects they can safely touch; the destroy handlers
	// must each run exactly once.
	var handlerRuns sync.Map
	var wg sync.WaitGroup
	for _, f := range frus {
		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fru.Destroy(f, func(f *fru.FRU) {
				if _, loaded := handlerRuns.LoadOrStore(f, true); loaded {
					t.Errorf("destroy handler ran twice for %s", f.Name())
				}
			})
			if err != nil {
				t.Errorf("Destroy: %v", err)
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fru.Iterate(d, func(f *fru.FRU) {
				_ = f.Name() // must be safe even mid-destroy
			})
		}()
	}
	wg.Wait()

	for _, f := range frus {
		if _, ok := handlerRuns.Load(f); !ok {
			t.Errorf("destroy handler never ran for %s", f.Name())
		}
	}
}

// orderDecoder records dispatch order in a shared log.
type orderDecoder struct {
	domainName string
	id         string
	accept     bool
	log        *[]string
	mu         *sync.Mutex
}

func (d *orderDecoder) Decode(f *fru.FRU) error {
	if f.Domain().Name() != d.domainName {
		return errNotMine
	}
	d.mu.Lock()
	*d.log = append(*d.log, d.id)
	d.mu.Unlock()
	if !d.accept {
		return errors.New("declined")
	}
	f.SetRecData(d.id)
	return nil
}

func TestDecoderDispatchOrderAndFirstWin(t *testing.T) {
	t.Parallel()
	device := newFRUDevice(testImage(16), false)
	transport := &autoTransport{respond: device.respond}
	d := newTestDomain(t, transport)

	var mu sync.Mutex
	var log []string
	declines := &orderDecoder{domainName: d.Name(), id: "first", log: &log, mu: &mu}
	accepts := &orderDecoder{domainName: d.Name(), id: "second", accept: true, log: &log, mu: &mu}
	never := &orderDecoder{domainName: d.Name(), id: "third", accept: true, log: &log, mu: &mu}
	registerTestDecoder(t, declines)
	registerTestDecoder(t, accepts)
	registerTestDecoder(t, never)

	f, err := allocAndFetch(t, d)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(log) != 2 || log[0] != "first" || log[1] != "second" {
		t.Errorf("dispatch order: got %v, want [first second]", log)
	}
	if got := f.RecData(); got != "second" {
		t.Errorf("RecData: got %v, want the accepting decoder's result", got)
	}
}

func TestDeregisterUnknownDecoder(t *testing.T) {
	t.Parallel()
	dec := &fakeDecoder{domainName: "never-registered"}
	if err := fru.DeregisterDecoder(dec); !errors.Is(err, fru.ErrDecoderNotRegistered) {
		t.Errorf("DeregisterDecoder: got %v, want ErrDecoderNotRegistered", err)
	}
}

func TestFetchMaskCarried(t *testing.T) {
	t.Parallel()
	device := newFRUDevice(testImage(16), false)
	transport := &autoTransport{respond: device.respond}
	d := newTestDomain(t, transport)
	decoder := &fakeDecoder{domainName: d.Name()}
	registerTestDecoder(t, decoder)

	mask := fru.AreaBoardInfo | fru.AreaProductInfo
	done := make(chan fetchResult, 1)
	f, err := fru.AllocNotrack(d, true, 0x20, 0, 0, 0, 0, mask,
		func(_ fru.Domain, f *fru.FRU, err error) {
			done <- fetchResult{f: f, err: err}
		})
	if err != nil {
		t.Fatalf("AllocNotrack: %v", err)
	}
	testutil.RequireReceive(t, done, 5*time.Second, "fetch")

	if got := f.FetchMask(); got != mask {
		t.Errorf("FetchMask: got %#02x, want %#02x", got, mask)
	}
	if err := fru.DestroyInternal(f, nil); err != nil {
		t.Errorf("DestroyInternal: %v", err)
	}
}
