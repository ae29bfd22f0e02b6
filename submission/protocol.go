// Package submission defines the boundary between batch construction and
// the kernel: the request/result types that cross it, the Sink interface
// that accepts assembled command streams, and an in-memory sink that models
// kernel behavior for tests and experiments.
package submission

import (
	"github.com/sarchlab/gpubatch/fence"
	"github.com/sarchlab/gpubatch/gem"
)

// An ObjectSpec describes one buffer object referenced by a submission.
type ObjectSpec struct {
	Handle  gem.Handle
	Address uint64
	Size    uint64
	Write   bool
	Flags   uint64
}

// A Reloc asks the kernel to patch an address into the instruction stream
// at submission time. Offset is the byte position of the patch within the
// stream, Delta is added to the resolved address of the target object.
type Reloc struct {
	Target      gem.Handle
	Offset      uint64
	Delta       uint64
	ReadDomain  gem.Domain
	WriteDomain gem.Domain
}

// A Request carries one assembled command stream to the kernel. Objects
// lists every referenced buffer object, with the stream's own backing store
// first. Relocations is nil when the submitter asserts its addresses are
// final (soft-pinning); in relocation mode it is non-nil even when empty.
// The kernel treats an absent relocation list differently from an empty
// one, so the distinction must survive this boundary.
type Request struct {
	Objects      []ObjectSpec
	Instructions []byte
	Relocations  []Reloc
	Flags        uint64
}

// A Result reports a successful submission. Objects carries the
// kernel-authoritative address of every submitted object, in request order;
// in relocation mode these may differ from the addresses the submitter
// guessed.
type Result struct {
	Fence   fence.Fence
	Objects []ObjectSpec
}

// A Sink accepts assembled submissions. Implementations wrap a kernel
// submission interface or model one in memory.
type Sink interface {
	Submit(req *Request) (*Result, error)
}
