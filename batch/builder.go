package batch

import (
	"log"

	"github.com/rs/xid"
	"github.com/sarchlab/gpubatch/gem"
	"github.com/sarchlab/gpubatch/submission"
	"github.com/sarchlab/gpubatch/va"
)

// A Builder can build batches.
type Builder struct {
	mode               AddressingMode
	allocator          va.Allocator
	sink               submission.Sink
	handles            gem.HandleSource
	registry           Registry
	recorder           SubmissionRecorder
	streamCapacity     uint64
	pageAlignment      uint64
	use48Bit           bool
	strictAddressCheck bool
}

// MakeBuilder creates a new Builder with default parameters: relocation
// mode, a 4 KiB stream, 4 KiB page alignment, 32-bit patches, and strict
// address checking.
func MakeBuilder() Builder {
	return Builder{
		mode:               RelocationMode,
		streamCapacity:     4096,
		pageAlignment:      4096,
		strictAddressCheck: true,
	}
}

// WithAddressingMode sets how the batch resolves addresses.
func (b Builder) WithAddressingMode(mode AddressingMode) Builder {
	b.mode = mode
	return b
}

// WithAllocator sets the virtual-address allocator. Required in
// address-based mode; ignored in relocation mode. The allocator is shared,
// not owned: it outlives the batch.
func (b Builder) WithAllocator(allocator va.Allocator) Builder {
	b.allocator = allocator
	return b
}

// WithSink sets the submission sink the batch submits to.
func (b Builder) WithSink(sink submission.Sink) Builder {
	b.sink = sink
	return b
}

// WithHandleSource sets the source of buffer-object identities for the
// stream's backing store.
func (b Builder) WithHandleSource(handles gem.HandleSource) Builder {
	b.handles = handles
	return b
}

// WithRegistry registers the batch with a registry for its lifetime.
func (b Builder) WithRegistry(registry Registry) Builder {
	b.registry = registry
	return b
}

// WithRecorder attaches a recorder that receives one row per successful
// submission, for offline inspection.
func (b Builder) WithRecorder(recorder SubmissionRecorder) Builder {
	b.recorder = recorder
	return b
}

// WithStreamCapacity sets the command-stream capacity in bytes.
func (b Builder) WithStreamCapacity(capacity uint64) Builder {
	b.streamCapacity = capacity
	return b
}

// WithPageAlignment sets the device's minimum page alignment, used when an
// object is added with zero alignment.
func (b Builder) WithPageAlignment(alignment uint64) Builder {
	b.pageAlignment = alignment
	return b
}

// With48BitAddressing makes EmitPatch write two dwords per patch, carrying
// the upper address bits.
func (b Builder) With48BitAddressing(enabled bool) Builder {
	b.use48Bit = enabled
	return b
}

// WithStrictAddressCheck enables or disables the fatal check for a
// requested address that conflicts with a cached one. Disabling it makes
// the conflict overwrite the cache instead, which some legacy device
// configurations need.
func (b Builder) WithStrictAddressCheck(enabled bool) Builder {
	b.strictAddressCheck = enabled
	return b
}

// Build returns a newly created Batch in the building state, with its
// stream backing store already tracked as the first object.
func (b Builder) Build(name string) *Batch {
	if b.sink == nil {
		log.Panic("a batch requires a submission sink")
	}

	if b.handles == nil {
		log.Panic("a batch requires a handle source")
	}

	if b.pageAlignment == 0 || b.pageAlignment&(b.pageAlignment-1) != 0 {
		log.Panicf("page alignment 0x%x is not a power of two",
			b.pageAlignment)
	}

	batch := &Batch{
		name:               name,
		id:                 xid.New().String(),
		strategy:           b.createStrategy(),
		cache:              newObjectCache(),
		sink:               b.sink,
		handles:            b.handles,
		registry:           b.registry,
		recorder:           b.recorder,
		pageAlignment:      b.pageAlignment,
		use48Bit:           b.use48Bit,
		strictAddressCheck: b.strictAddressCheck,
		state:              stateBuilding,
		refCount:           1,
	}

	batch.stream = NewStreamWriter(b.streamCapacity)
	batch.registerBatchObject()

	if b.registry != nil {
		b.registry.Register(batch)
	}

	return batch
}

func (b Builder) createStrategy() addressingStrategy {
	switch b.mode {
	case RelocationMode:
		return &relocStrategy{}
	case AddressBasedMode:
		if b.allocator == nil {
			log.Panic(
				"an address-based batch requires a virtual-address " +
					"allocator")
		}

		return &softpinStrategy{allocator: b.allocator}
	default:
		log.Panicf("unknown addressing mode %d", b.mode)
		return nil
	}
}

// ReplaceAllocator purges an address-based batch and rebinds it to a new
// allocator, releasing every address through the old one first. Like
// Reset, it is refused with a warning when references are outstanding.
func (batch *Batch) ReplaceAllocator(allocator va.Allocator) {
	if batch.state == stateDestroyed {
		log.Panicf("ReplaceAllocator on destroyed batch %s", batch.name)
	}

	strategy, ok := batch.strategy.(*softpinStrategy)
	if !ok {
		log.Panicf("batch %s does not use an allocator", batch.name)
	}

	if batch.refCount > 1 {
		log.Printf(
			"warning: allocator replacement on batch %s refused: "+
				"%d references outstanding",
			batch.name, batch.refCount)
		return
	}

	batch.purgeObjects()
	strategy.allocator = allocator
	batch.stream = NewStreamWriter(batch.stream.Capacity())
	batch.registerBatchObject()
	batch.strategy.clearSubmissionState()
	batch.state = stateBuilding
}
