// Package batch builds GPU command streams. A Batch owns an append-only
// instruction stream and a cache of every buffer object the stream refers
// to, assigns GPU virtual addresses to those objects either through an
// external allocator or through kernel relocation, and hands the assembled
// result to a submission sink. A batch is reset and reused across many
// submissions without leaking addresses or objects.
package batch

import (
	"log"

	"github.com/sarchlab/gpubatch/fence"
	"github.com/sarchlab/gpubatch/gem"
	"github.com/sarchlab/gpubatch/submission"
)

type batchState int

const (
	stateBuilding batchState = iota
	stateSubmitted
	stateDestroyed
)

func (s batchState) String() string {
	switch s {
	case stateBuilding:
		return "building"
	case stateSubmitted:
		return "submitted"
	default:
		return "destroyed"
	}
}

// A Batch assembles one GPU command stream and tracks the buffer objects it
// references. A batch accepts emit and add-object calls while building,
// refuses them after a submission until it is reset, and cycles through
// build, submit, and reset many times over its life.
//
// A batch is not safe for concurrent use. One goroutine constructs commands
// on one batch at a time; concurrency happens across batches, coordinated
// only through the Registry.
type Batch struct {
	name string
	id   string

	strategy addressingStrategy
	stream   *StreamWriter
	cache    *objectCache
	sink     submission.Sink
	handles  gem.HandleSource
	registry Registry
	recorder SubmissionRecorder

	pageAlignment      uint64
	use48Bit           bool
	strictAddressCheck bool

	state        batchState
	refCount     int
	pendingFence fence.Fence
	batchObject  *BufferObject
	numSubmitted int
}

// Name returns the name given to the batch at creation.
func (b *Batch) Name() string {
	return b.name
}

// ID returns the unique instance ID of the batch.
func (b *Batch) ID() string {
	return b.id
}

// Mode returns the addressing mode fixed at creation.
func (b *Batch) Mode() AddressingMode {
	return b.strategy.mode()
}

// State returns the current lifecycle state as a string.
func (b *Batch) State() string {
	return b.state.String()
}

// NumObjects returns how many buffer objects the batch tracks, including
// its own backing store.
func (b *Batch) NumObjects() int {
	return b.cache.numObjects()
}

// NumSubmitted returns how many submissions the batch has issued.
func (b *Batch) NumSubmitted() int {
	return b.numSubmitted
}

// NumPendingRelocations returns the size of the relocation table
// accumulated since the last reset. It is always zero for address-based
// batches.
func (b *Batch) NumPendingRelocations() int {
	return b.strategy.numPendingRelocations()
}

// RefCount returns the current reference count.
func (b *Batch) RefCount() int {
	return b.refCount
}

// BatchObject returns the cache entry of the stream's own backing store.
func (b *Batch) BatchObject() BufferObject {
	return *b.batchObject
}

// Retain adds a reference to the batch. Every Retain must be balanced by a
// Release before the batch can be reset or destroyed.
func (b *Batch) Retain() {
	if b.state == stateDestroyed {
		log.Panicf("batch %s retained after destruction", b.name)
	}

	b.refCount++
}

// Release drops a reference added by Retain.
func (b *Batch) Release() {
	if b.refCount <= 1 {
		log.Panicf("batch %s released more times than retained", b.name)
	}

	b.refCount--
}

// FindObject returns a copy of the cache entry for a handle.
func (b *Batch) FindObject(handle gem.Handle) (BufferObject, bool) {
	obj, found := b.cache.find(handle)
	if !found {
		return BufferObject{}, false
	}

	return *obj, true
}

// AddObject registers a buffer object with the batch and resolves its
// address. Adding a handle that is already tracked updates the write flag
// and returns the cached address; the address never changes on re-add.
//
// A requestedAddress of gem.NoAddress asks the batch to resolve the
// address itself: through the allocator in address-based mode, or at
// submission time in relocation mode (in which case the returned address is
// gem.NoAddress until the first submission). A concrete requestedAddress
// pins the object there. Requesting a concrete address for a handle that is
// already cached at a different address is a programming error and panics,
// unless the batch was built with strict address checking disabled, in
// which case the cached address is overwritten.
//
// A zero alignment defaults to the device page alignment. The returned
// error is environmental (the allocator cannot satisfy the request);
// contract violations panic.
func (b *Batch) AddObject(
	handle gem.Handle,
	size, requestedAddress, alignment uint64,
	write bool,
) (uint64, error) {
	b.mustBeBuilding("AddObject")

	if size == 0 {
		log.Panicf("object %d has zero size", handle)
	}

	if alignment == 0 {
		alignment = b.pageAlignment
	}

	if alignment&(alignment-1) != 0 {
		log.Panicf("alignment 0x%x of object %d is not a power of two",
			alignment, handle)
	}

	if obj, found := b.cache.find(handle); found {
		return b.updateObject(obj, requestedAddress, write), nil
	}

	return b.trackObject(handle, size, requestedAddress, alignment, write)
}

func (b *Batch) updateObject(
	obj *BufferObject,
	requestedAddress uint64,
	write bool,
) uint64 {
	obj.Write = obj.Write || write

	addressConflict := requestedAddress != gem.NoAddress &&
		obj.Address != gem.NoAddress &&
		requestedAddress != obj.Address
	if addressConflict {
		if b.strictAddressCheck {
			log.Panicf(
				"object %d is cached at 0x%x but requested at 0x%x",
				obj.Handle, obj.Address, requestedAddress)
		}

		obj.Address = requestedAddress
	}

	return obj.Address
}

func (b *Batch) trackObject(
	handle gem.Handle,
	size, requestedAddress, alignment uint64,
	write bool,
) (uint64, error) {
	obj := &BufferObject{
		Handle:    handle,
		Address:   gem.NoAddress,
		Size:      size,
		Alignment: alignment,
		Write:     write,
	}

	if requestedAddress != gem.NoAddress {
		if requestedAddress&(alignment-1) != 0 {
			log.Panicf(
				"requested address 0x%x of object %d breaks "+
					"alignment 0x%x",
				requestedAddress, handle, alignment)
		}

		if err := b.strategy.adoptAddress(obj, requestedAddress); err != nil {
			return 0, err
		}
	} else {
		addr, err := b.strategy.assignAddress(obj)
		if err != nil {
			return 0, err
		}

		obj.Address = addr
	}

	b.cache.insert(obj)

	return obj.Address, nil
}

// RemoveObject stops tracking a buffer object and releases its VA. The
// address and size must match what the object was added with; they feed the
// allocator's unreserve path. Removing an untracked handle is tolerated: it
// is reachable through benign races between explicit removal and a
// cache-only reset, so it logs a warning and returns false instead of
// aborting.
func (b *Batch) RemoveObject(
	handle gem.Handle,
	address, size uint64,
) bool {
	if b.state == stateDestroyed {
		log.Panicf("RemoveObject on destroyed batch %s", b.name)
	}

	obj, found := b.cache.find(handle)
	if !found {
		log.Printf("warning: batch %s does not track object %d",
			b.name, handle)
		return false
	}

	if obj == b.batchObject {
		log.Panicf("cannot remove the backing store of batch %s", b.name)
	}

	b.strategy.releaseAddress(obj, address, size)
	b.cache.remove(handle)

	return true
}

// SetObjectFlags ORs flags into a tracked object's flag set. Setting flags
// on an untracked handle logs a warning and returns false.
func (b *Batch) SetObjectFlags(handle gem.Handle, flags ObjectFlag) bool {
	if b.state == stateDestroyed {
		log.Panicf("SetObjectFlags on destroyed batch %s", b.name)
	}

	obj, found := b.cache.find(handle)
	if !found {
		log.Printf("warning: batch %s does not track object %d",
			b.name, handle)
		return false
	}

	obj.Flags |= flags

	return true
}

// Emit appends a literal dword to the command stream.
func (b *Batch) Emit(dword uint32) {
	b.mustBeBuilding("Emit")
	b.stream.EmitDword(dword)
}

// Align pads the command stream with no-ops up to the given byte alignment.
func (b *Batch) Align(bytes uint64) {
	b.mustBeBuilding("Align")
	b.stream.Align(bytes)
}

// Position returns the current stream cursor.
func (b *Batch) Position() uint64 {
	return b.stream.Position()
}

// ReadDword returns the dword at a stream offset. It is meant for
// inspection and dumping.
func (b *Batch) ReadDword(offset uint64) uint32 {
	return b.stream.ReadDword(offset)
}

// EmitPatch writes an address reference to the target object into the
// stream: the target's resolved address plus delta, as one dword, or two
// dwords on 48-bit configurations. In relocation mode the written value is
// provisional and a relocation entry is recorded so the kernel can patch
// it; in address-based mode the value is final. The target must already be
// tracked. A non-empty write domain marks the target as written by this
// stream. Returns the address the written value was derived from.
func (b *Batch) EmitPatch(
	target gem.Handle,
	delta uint64,
	readDomain, writeDomain gem.Domain,
) uint64 {
	b.mustBeBuilding("EmitPatch")

	obj, found := b.cache.find(target)
	if !found {
		log.Panicf("patch targets object %d, which was never added",
			target)
	}

	offset := b.stream.Position()
	addr := b.strategy.resolvePatch(
		obj, offset, delta, readDomain, writeDomain)

	value := addr + delta
	b.stream.EmitDword(uint32(value))
	if b.use48Bit {
		b.stream.EmitDword(uint32(value >> 32))
	}

	if writeDomain != gem.DomainNone {
		obj.Write = true
	}

	return addr
}

// Submit hands the assembled stream to the submission sink. The object list
// is flattened in insertion order with the batch's own backing store first,
// and the first endOffset bytes of the stream are submitted (zero means up
// to the current cursor). On success the cache is reconciled with the
// kernel-reported addresses, the returned fence is merged into the batch's
// pending fence, and the batch refuses further emission until Reset. On
// failure the batch stays in the building state with no cache mutation.
// When wait is set, Submit blocks until the merged fence signals.
func (b *Batch) Submit(
	endOffset uint64,
	flags uint64,
	wait bool,
) (fence.Fence, error) {
	b.mustBeBuilding("Submit")

	if endOffset == 0 {
		endOffset = b.stream.Position()
	}

	if endOffset > b.stream.Capacity() {
		log.Panicf("end offset 0x%x is past the 0x%x-byte stream",
			endOffset, b.stream.Capacity())
	}

	req := &submission.Request{
		Objects:      b.flattenObjects(),
		Instructions: b.stream.Bytes()[:endOffset],
		Flags:        flags,
	}
	b.strategy.finalizeSubmission(req)

	result, err := b.sink.Submit(req)
	if err != nil {
		return nil, err
	}

	b.strategy.reconcile(b.cache, result)
	b.pendingFence = fence.Merge(b.pendingFence, result.Fence)
	b.state = stateSubmitted
	b.numSubmitted++

	b.record(req)

	if wait {
		if err := b.pendingFence.Wait(0); err != nil {
			return b.pendingFence, err
		}
	}

	return b.pendingFence, nil
}

func (b *Batch) flattenObjects() []submission.ObjectSpec {
	objects := b.cache.objects()
	specs := make([]submission.ObjectSpec, 0, len(objects))

	for _, obj := range objects {
		specs = append(specs, submission.ObjectSpec{
			Handle:  obj.Handle,
			Address: obj.Address,
			Size:    obj.Size,
			Write:   obj.Write,
			Flags:   uint64(obj.Flags),
		})
	}

	return specs
}

// Reset returns the batch to the building state for the next round of
// command construction. This is the steady-state hot path.
//
// With purge set, every tracked object is removed and its VA released, and
// the stream's backing store receives a new identity. Without purge, the
// object cache survives so long-lived objects keep their addresses; only
// the backing store is re-identified, and only when the previous identity
// may still be in flight.
//
// Reset on a batch with outstanding references is a usage fault: it is
// logged and refused without mutating anything.
func (b *Batch) Reset(purge bool) {
	if b.state == stateDestroyed {
		log.Panicf("reset of destroyed batch %s", b.name)
	}

	if b.refCount > 1 {
		log.Printf(
			"warning: reset of batch %s refused: %d references "+
				"outstanding",
			b.name, b.refCount)
		return
	}

	inFlight := b.state == stateSubmitted

	if purge {
		b.purgeObjects()
	}

	if purge || inFlight {
		b.replaceBackingStore(purge)
	} else {
		b.stream.Reset(false)
	}

	b.strategy.clearSubmissionState()
	b.state = stateBuilding
}

func (b *Batch) purgeObjects() {
	for _, obj := range b.cache.objects() {
		b.strategy.releaseAddress(obj, obj.Address, obj.Size)
	}

	b.cache.purge()
	b.batchObject = nil
}

// replaceBackingStore gives the command stream a fresh backing buffer and a
// new kernel identity. The old identity may still be referenced by an
// earlier submission's fence, so it is never reused.
func (b *Batch) replaceBackingStore(alreadyPurged bool) {
	if !alreadyPurged {
		old := b.batchObject
		b.strategy.releaseAddress(old, old.Address, old.Size)
		b.cache.remove(old.Handle)
	}

	b.stream = NewStreamWriter(b.stream.Capacity())
	b.registerBatchObject()
}

// registerBatchObject mints an identity for the stream's backing store and
// tracks it as the first object of the cache, so the kernel always finds
// the instruction stream listed alongside every other referenced object.
func (b *Batch) registerBatchObject() {
	obj := &BufferObject{
		Handle:    b.handles.NewHandle(),
		Address:   gem.NoAddress,
		Size:      b.stream.Capacity(),
		Alignment: b.pageAlignment,
	}

	addr, err := b.strategy.assignAddress(obj)
	if err != nil {
		log.Panicf(
			"cannot place the backing store of batch %s: %v",
			b.name, err)
	}

	obj.Address = addr
	b.cache.insertFront(obj)
	b.batchObject = obj
}

// Destroy tears the batch down. It requires the caller to be the sole
// owner; destroying a batch that is still referenced elsewhere would leave
// dangling references and panics. All tracked objects and their VAs are
// released and the batch is unregistered.
func (b *Batch) Destroy() {
	if b.state == stateDestroyed {
		log.Panicf("batch %s destroyed twice", b.name)
	}

	if b.refCount != 1 {
		log.Panicf(
			"destroying batch %s with %d references outstanding",
			b.name, b.refCount)
	}

	b.purgeObjects()
	b.strategy.clearSubmissionState()
	b.pendingFence = nil
	b.stream = nil

	if b.registry != nil {
		b.registry.Unregister(b)
	}

	b.state = stateDestroyed
}

func (b *Batch) mustBeBuilding(op string) {
	if b.state != stateBuilding {
		log.Panicf("%s on batch %s in %s state", op, b.name, b.state)
	}
}
