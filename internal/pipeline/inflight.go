package pipeline

import (
	"sync"

	"convertd/internal/identity"
)

// InFlight tracks identities currently being converted. Membership means
// "skip, do not reconvert"; entries are removed unconditionally when the
// attempt ends, whatever the outcome.
type InFlight struct {
	mu  sync.Mutex
	ids map[identity.Identity]struct{}
}

// NewInFlight returns an empty set.
func NewInFlight() *InFlight {
	return &InFlight{ids: make(map[identity.Identity]struct{})}
}

// TryClaim atomically adds id, reporting false if it was already claimed.
func (f *InFlight) TryClaim(id identity.Identity) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ids[id]; ok {
		return false
	}
	f.ids[id] = struct{}{}
	return true
}

// Release removes id from the set.
func (f *InFlight) Release(id identity.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, id)
}

// Contains reports whether id is currently claimed.
func (f *InFlight) Contains(id identity.Identity) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ids[id]
	return ok
}

// Len returns the number of claimed identities.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}
