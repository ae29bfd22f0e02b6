package batch

import (
	"log"
	"sync"

	"github.com/sarchlab/gpubatch/va"
)

// A Registry tracks the live batches of a process so that they can be
// enumerated and reinitialized in bulk, for example to rebuild address
// spaces after a device fault. Registration happens at creation,
// deregistration at destruction. Batches themselves stay single-threaded;
// only the registry is shared state.
type Registry interface {
	Register(b *Batch)
	Unregister(b *Batch)

	// ForEach calls f for every registered batch, holding the registry
	// lock for the whole iteration.
	ForEach(f func(b *Batch))
}

// NewRegistry creates an empty Registry. Production code normally uses one
// process-lifetime instance; tests construct isolated ones.
func NewRegistry() Registry {
	return &registryImpl{}
}

type registryImpl struct {
	sync.Mutex

	batches []*Batch
}

func (r *registryImpl) Register(b *Batch) {
	r.Lock()
	defer r.Unlock()

	for _, registered := range r.batches {
		if registered == b {
			log.Panicf("batch %s is already registered", b.Name())
		}
	}

	r.batches = append(r.batches, b)
}

func (r *registryImpl) Unregister(b *Batch) {
	r.Lock()
	defer r.Unlock()

	for i, registered := range r.batches {
		if registered == b {
			r.batches = append(r.batches[:i], r.batches[i+1:]...)
			return
		}
	}

	log.Printf("warning: unregistering batch %s, which is not registered",
		b.Name())
}

func (r *registryImpl) ForEach(f func(b *Batch)) {
	r.Lock()
	defer r.Unlock()

	for _, b := range r.batches {
		f(b)
	}
}

var defaultRegistryOnce sync.Once
var defaultRegistry Registry

// DefaultRegistry returns the process-wide registry, creating it on first
// use.
func DefaultRegistry() Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})

	return defaultRegistry
}

// PurgeAll fully resets every registered batch, dropping all tracked
// objects and VA reservations.
func PurgeAll(r Registry) {
	r.ForEach(func(b *Batch) {
		b.Reset(true)
	})
}

// ReinitAllocators purges every registered address-based batch and hands
// each a fresh allocator chosen by next. Relocation-mode batches are only
// purged.
func ReinitAllocators(r Registry, next func(b *Batch) va.Allocator) {
	r.ForEach(func(b *Batch) {
		if b.Mode() != AddressBasedMode {
			b.Reset(true)
			return
		}

		b.ReplaceAllocator(next(b))
	})
}
