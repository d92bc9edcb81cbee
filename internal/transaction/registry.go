// Package transaction tracks outstanding RTCP request ids so responses can
// be correlated with the requests that caused them.
package transaction

import (
	"sync"

	"github.com/danmuck/rtcpctl/internal/protocol"
)

// Registry is the per-manager set of outstanding transaction ids. All
// methods are safe for concurrent use; one registry serves every channel of
// its manager.
type Registry struct {
	mu      sync.Mutex
	next    uint64
	pending map[protocol.TransactionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[protocol.TransactionID]struct{}),
	}
}

// Next allocates a fresh unique id. Wraparound is unreachable within one
// process lifetime.
func (r *Registry) Next() protocol.TransactionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	return protocol.TransactionID(r.next)
}

// Add records id as outstanding.
func (r *Registry) Add(id protocol.TransactionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = struct{}{}
}

// Find reports whether id is outstanding.
func (r *Registry) Find(id protocol.TransactionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// Remove discards id if present.
func (r *Registry) Remove(id protocol.TransactionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// Len returns the number of outstanding ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
