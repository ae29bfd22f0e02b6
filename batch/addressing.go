package batch

import (
	"fmt"
	"log"

	"github.com/sarchlab/gpubatch/gem"
	"github.com/sarchlab/gpubatch/submission"
	"github.com/sarchlab/gpubatch/va"
)

// An AddressingMode selects how a batch resolves GPU virtual addresses. It
// is fixed when the batch is created and never changes.
type AddressingMode int

// The two addressing modes.
const (
	// RelocationMode leaves address resolution to the kernel. Addresses
	// written into the stream are the batch's best guess; the kernel
	// patches them at submission time using the relocation table.
	RelocationMode AddressingMode = iota

	// AddressBasedMode assigns authoritative addresses up front through a
	// va.Allocator and expects the kernel to honor them (soft-pinning).
	AddressBasedMode
)

func (m AddressingMode) String() string {
	switch m {
	case RelocationMode:
		return "relocation"
	case AddressBasedMode:
		return "address-based"
	default:
		return fmt.Sprintf("AddressingMode(%d)", int(m))
	}
}

// An addressingStrategy implements the behavior that differs between the
// two addressing modes. The batch selects one strategy at creation time and
// never branches on the mode again; this makes relocation bookkeeping and
// address authority structurally exclusive.
type addressingStrategy interface {
	mode() AddressingMode

	// assignAddress resolves the address for an object the caller did not
	// place explicitly.
	assignAddress(obj *BufferObject) (uint64, error)

	// adoptAddress records a caller-chosen concrete address for a newly
	// tracked object.
	adoptAddress(obj *BufferObject, address uint64) error

	// releaseAddress returns the object's address to the allocator, if
	// the strategy holds one there.
	releaseAddress(obj *BufferObject, address, size uint64)

	// resolvePatch returns the address to write into the stream for a
	// patch against obj at the given stream offset, recording whatever
	// bookkeeping the mode needs.
	resolvePatch(
		obj *BufferObject,
		offset, delta uint64,
		readDomain, writeDomain gem.Domain,
	) uint64

	// finalizeSubmission attaches the relocation list to the request, or
	// leaves it structurally absent.
	finalizeSubmission(req *submission.Request)

	// reconcile folds the kernel-authoritative addresses of a successful
	// submission back into the cache.
	reconcile(cache *objectCache, result *submission.Result)

	// clearSubmissionState drops per-submission bookkeeping.
	clearSubmissionState()

	numPendingRelocations() int
}

// relocStrategy implements RelocationMode. Addresses cached here are
// provisional guesses; the kernel's placements, reported after each
// submission, are folded back into the cache so later guesses improve.
type relocStrategy struct {
	relocs relocTable
}

func (s *relocStrategy) mode() AddressingMode {
	return RelocationMode
}

func (s *relocStrategy) assignAddress(_ *BufferObject) (uint64, error) {
	// Resolution happens at submission time.
	return gem.NoAddress, nil
}

func (s *relocStrategy) adoptAddress(
	obj *BufferObject,
	address uint64,
) error {
	obj.Address = address
	return nil
}

func (s *relocStrategy) releaseAddress(_ *BufferObject, _, _ uint64) {
}

func (s *relocStrategy) resolvePatch(
	obj *BufferObject,
	offset, delta uint64,
	readDomain, writeDomain gem.Domain,
) uint64 {
	addr := obj.Address
	if addr == gem.NoAddress {
		// No guess yet. Write zero and let the kernel patch it.
		addr = 0
	}

	s.relocs.add(obj.Handle, offset, delta, readDomain, writeDomain)

	return addr
}

func (s *relocStrategy) finalizeSubmission(req *submission.Request) {
	req.Relocations = s.relocs.snapshot()
}

func (s *relocStrategy) reconcile(
	cache *objectCache,
	result *submission.Result,
) {
	for _, spec := range result.Objects {
		if obj, found := cache.find(spec.Handle); found {
			obj.Address = spec.Address
		}
	}
}

func (s *relocStrategy) clearSubmissionState() {
	s.relocs.clear()
}

func (s *relocStrategy) numPendingRelocations() int {
	return s.relocs.numEntries()
}

// softpinStrategy implements AddressBasedMode. Every address is assigned
// through the allocator before it is written into the stream, and the
// kernel must honor it.
type softpinStrategy struct {
	allocator va.Allocator
}

func (s *softpinStrategy) mode() AddressingMode {
	return AddressBasedMode
}

func (s *softpinStrategy) assignAddress(obj *BufferObject) (uint64, error) {
	return s.allocator.Allocate(obj.Handle, obj.Size, obj.Alignment)
}

func (s *softpinStrategy) adoptAddress(
	obj *BufferObject,
	address uint64,
) error {
	allocated, reserved := s.allocator.ReserveIfNotAllocated(
		obj.Handle, obj.Size, address)

	if allocated {
		return fmt.Errorf(
			"object %d already holds an allocator-assigned address",
			obj.Handle)
	}

	if !reserved {
		return fmt.Errorf(
			"VA range [0x%x, 0x%x) is not available for object %d",
			address, address+obj.Size, obj.Handle)
	}

	obj.Address = address
	obj.Flags |= FlagPinned
	obj.reserved = true

	return nil
}

func (s *softpinStrategy) releaseAddress(
	obj *BufferObject,
	address, size uint64,
) {
	if obj.reserved {
		s.allocator.Unreserve(obj.Handle, size, address)
		return
	}

	s.allocator.Free(obj.Handle)
}

func (s *softpinStrategy) resolvePatch(
	obj *BufferObject,
	_, _ uint64,
	_, _ gem.Domain,
) uint64 {
	if obj.Address == gem.NoAddress {
		log.Panicf("softpinned object %d has no address", obj.Handle)
	}

	return obj.Address
}

func (s *softpinStrategy) finalizeSubmission(_ *submission.Request) {
	// Addresses are authoritative; the relocation list stays absent.
}

func (s *softpinStrategy) reconcile(
	cache *objectCache,
	result *submission.Result,
) {
	for _, spec := range result.Objects {
		obj, found := cache.find(spec.Handle)
		if !found {
			continue
		}

		if obj.Address != spec.Address {
			log.Panicf(
				"kernel moved pinned object %d from 0x%x to 0x%x",
				spec.Handle, obj.Address, spec.Address)
		}
	}
}

func (s *softpinStrategy) clearSubmissionState() {
}

func (s *softpinStrategy) numPendingRelocations() int {
	return 0
}
