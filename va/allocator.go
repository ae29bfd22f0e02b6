// Package va manages GPU virtual-address ranges. It provides the Allocator
// interface that address-based batches delegate to, together with a
// deterministic first-fit implementation.
package va

import (
	"fmt"
	"log"
	"sync"

	"github.com/sarchlab/gpubatch/gem"
)

// An Allocator hands out GPU virtual addresses for buffer objects within a
// configured range. When one allocator is shared by multiple batches that
// operate in the same address space, the allocator serializes all calls, as
// batch correctness depends on no two live objects ever receiving
// overlapping addresses.
type Allocator interface {
	// Allocate assigns an address for the object. Calling Allocate again
	// for an already-allocated handle returns the same address. An error
	// is returned when the range cannot satisfy the request.
	Allocate(handle gem.Handle, size, alignment uint64) (uint64, error)

	// Free releases the address held by the object. Freeing a handle that
	// holds no allocation logs a warning and does nothing.
	Free(handle gem.Handle)

	// ReserveIfNotAllocated pins a caller-chosen address range for the
	// object, unless the object already holds an allocation. The first
	// return value reports whether the object was already allocated, the
	// second whether the reservation was made (or already held).
	ReserveIfNotAllocated(
		handle gem.Handle,
		size, address uint64,
	) (allocated, reserved bool)

	// Unreserve releases a reservation made by ReserveIfNotAllocated.
	Unreserve(handle gem.Handle, size, address uint64)
}

type region struct {
	addr, size uint64
}

func (r region) end() uint64 {
	return r.addr + r.size
}

// NewRangeAllocator creates an Allocator that serves addresses from
// [base, limit). Allocation is first-fit from the lowest address, which
// makes the allocator deterministic: freeing everything and reallocating in
// the same order reproduces the same addresses.
func NewRangeAllocator(base, limit uint64) Allocator {
	if base >= limit {
		log.Panicf("invalid VA range [0x%x, 0x%x)", base, limit)
	}

	return &rangeAllocator{
		base:         base,
		limit:        limit,
		freeList:     []region{{addr: base, size: limit - base}},
		allocations:  make(map[gem.Handle]region),
		reservations: make(map[gem.Handle]region),
	}
}

type rangeAllocator struct {
	sync.Mutex

	base, limit  uint64
	freeList     []region
	allocations  map[gem.Handle]region
	reservations map[gem.Handle]region
}

func (a *rangeAllocator) Allocate(
	handle gem.Handle,
	size, alignment uint64,
) (uint64, error) {
	a.Lock()
	defer a.Unlock()

	if r, found := a.allocations[handle]; found {
		return r.addr, nil
	}

	if size == 0 {
		log.Panicf("allocation for handle %d has zero size", handle)
	}

	if alignment == 0 {
		alignment = 1
	}

	if alignment&(alignment-1) != 0 {
		log.Panicf("alignment 0x%x is not a power of two", alignment)
	}

	for i, f := range a.freeList {
		start := alignUp(f.addr, alignment)
		if start+size > f.end() {
			continue
		}

		a.carve(i, region{addr: start, size: size})
		a.allocations[handle] = region{addr: start, size: size}

		return start, nil
	}

	return 0, fmt.Errorf(
		"VA range [0x%x, 0x%x) cannot hold %d bytes aligned to 0x%x",
		a.base, a.limit, size, alignment)
}

func (a *rangeAllocator) Free(handle gem.Handle) {
	a.Lock()
	defer a.Unlock()

	r, found := a.allocations[handle]
	if !found {
		log.Printf("warning: freeing handle %d that holds no allocation",
			handle)
		return
	}

	delete(a.allocations, handle)
	a.release(r)
}

func (a *rangeAllocator) ReserveIfNotAllocated(
	handle gem.Handle,
	size, address uint64,
) (allocated, reserved bool) {
	a.Lock()
	defer a.Unlock()

	if _, found := a.allocations[handle]; found {
		return true, false
	}

	if r, found := a.reservations[handle]; found {
		return false, r.addr == address && r.size == size
	}

	want := region{addr: address, size: size}
	for i, f := range a.freeList {
		if want.addr >= f.addr && want.end() <= f.end() {
			a.carve(i, want)
			a.reservations[handle] = want

			return false, true
		}
	}

	return false, false
}

func (a *rangeAllocator) Unreserve(handle gem.Handle, size, address uint64) {
	a.Lock()
	defer a.Unlock()

	r, found := a.reservations[handle]
	if !found || r.addr != address || r.size != size {
		log.Printf(
			"warning: unreserve of [0x%x, 0x%x) does not match a "+
				"reservation held by handle %d",
			address, address+size, handle)
		return
	}

	delete(a.reservations, handle)
	a.release(r)
}

// carve removes want from the free region at index i, keeping any remaining
// space before and after it on the free list.
func (a *rangeAllocator) carve(i int, want region) {
	f := a.freeList[i]
	replacement := make([]region, 0, 2)

	if want.addr > f.addr {
		replacement = append(replacement,
			region{addr: f.addr, size: want.addr - f.addr})
	}

	if want.end() < f.end() {
		replacement = append(replacement,
			region{addr: want.end(), size: f.end() - want.end()})
	}

	a.freeList = append(a.freeList[:i],
		append(replacement, a.freeList[i+1:]...)...)
}

// release returns a region to the free list, keeping the list sorted by
// address and coalescing neighbors.
func (a *rangeAllocator) release(r region) {
	i := 0
	for i < len(a.freeList) && a.freeList[i].addr < r.addr {
		i++
	}

	a.freeList = append(a.freeList[:i],
		append([]region{r}, a.freeList[i:]...)...)

	a.coalesceAround(i)
}

func (a *rangeAllocator) coalesceAround(i int) {
	if i+1 < len(a.freeList) &&
		a.freeList[i].end() == a.freeList[i+1].addr {
		a.freeList[i].size += a.freeList[i+1].size
		a.freeList = append(a.freeList[:i+1], a.freeList[i+2:]...)
	}

	if i > 0 && a.freeList[i-1].end() == a.freeList[i].addr {
		a.freeList[i-1].size += a.freeList[i].size
		a.freeList = append(a.freeList[:i], a.freeList[i+1:]...)
	}
}

func alignUp(addr, alignment uint64) uint64 {
	return (addr + alignment - 1) &^ (alignment - 1)
}
