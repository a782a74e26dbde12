// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fru

import "sync"

// fruAttrName keys the FRU registry in the domain attribute table.
const fruAttrName = "ipmi_fru"

// registry is the per-domain list of tracked FRU objects. Membership
// changes only under mu; the registry holds one strong reference per
// member. The registry lock orders before any FRU lock (snapshot and
// allocation take FRU locks under it), so code holding a FRU lock must
// release it before touching the list.
type registry struct {
	mu   sync.Mutex
	frus []*FRU
}

// registryFor returns the domain's FRU registry, creating it on first
// use. The returned release pairs with the domain attribute reference.
func registryFor(d Domain) (*registry, func(), error) {
	v, release, err := d.Attribute(fruAttrName,
		func() (any, error) { return &registry{}, nil },
		registryTeardown)
	if err != nil {
		return nil, nil, err
	}
	return v.(*registry), release, nil
}

// registryTeardown runs at domain close: every remaining member loses
// its registry reference, which for otherwise-idle objects triggers
// final teardown.
func registryTeardown(v any) {
	reg := v.(*registry)
	reg.mu.Lock()
	members := reg.frus
	reg.frus = nil
	reg.mu.Unlock()

	for _, f := range members {
		f.mu.Lock()
		if !f.inRegistry {
			// Lost a race with a concurrent Destroy; that path
			// already owns the registry reference.
			f.mu.Unlock()
			continue
		}
		f.inRegistry = false
		f.deleted = true
		f.mu.Unlock()
		f.put()
	}
}

// addLocked appends a member. Caller holds reg.mu.
func (reg *registry) addLocked(f *FRU) {
	reg.frus = append(reg.frus, f)
}

// remove takes a member out of the list. Returns false if the member
// was not present (already removed by a racing path).
func (reg *registry) remove(f *FRU) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for i, member := range reg.frus {
		if member == f {
			reg.frus = append(reg.frus[:i], reg.frus[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot references every current member and returns them. Each
// entry carries a reference the consumer must drop. Taking the member
// references under the list lock (the prefunc pattern) guarantees the
// consumer sees live objects even if a concurrent deleter removes them
// from the list immediately after.
func (reg *registry) snapshot() []*FRU {
	reg.mu.Lock()
	members := make([]*FRU, len(reg.frus))
	copy(members, reg.frus)
	for _, f := range members {
		f.mu.Lock()
		f.refcount++
		f.mu.Unlock()
	}
	reg.mu.Unlock()
	return members
}

// Iterate calls handler once for each FRU tracked in the domain's
// registry. The handler may use the object freely for the duration of
// the call; objects concurrently inserted after Iterate begins are not
// visited, and objects concurrently destroyed are still delivered (the
// snapshot holds a reference) with their deleted flag set.
func Iterate(d Domain, handler func(*FRU)) {
	v, release, ok := d.Find(fruAttrName)
	if !ok {
		return
	}
	defer release()
	reg := v.(*registry)

	for _, f := range reg.snapshot() {
		handler(f)
		f.put()
	}
}
