// Package gem defines the types shared by every component that refers to
// kernel buffer objects: object handles, GPU virtual addresses, and the
// memory-domain hints carried by relocation entries.
package gem

import "sync"

// A Handle identifies a kernel buffer object. Handles are assigned
// externally (by the kernel or by a HandleSource) and are unique within one
// device context. A handle is never reused while any component still tracks
// it.
type Handle uint32

// NoAddress is the sentinel for an object whose GPU virtual address has not
// been resolved yet. It is only a legal cache state in relocation mode,
// before the first submission.
const NoAddress = ^uint64(0)

// A Domain is a memory-domain hint attached to relocation entries. The
// kernel uses domains to order reads and writes against an object.
type Domain uint32

// Memory domains, mirroring the classic GEM read/write domain split.
const (
	DomainNone        Domain = 0
	DomainCPU         Domain = 1 << 0
	DomainRender      Domain = 1 << 1
	DomainSampler     Domain = 1 << 2
	DomainVertex      Domain = 1 << 3
	DomainInstruction Domain = 1 << 4
)

// A HandleSource mints fresh buffer-object handles. The batch package uses
// it to give the command stream's own backing store a new identity when the
// previous identity may still be in flight.
type HandleSource interface {
	// NewHandle returns a handle that has never been returned before.
	NewHandle() Handle
}

// NewSequentialHandleSource creates a HandleSource that hands out handles
// sequentially, starting from first. It is safe for concurrent use.
func NewSequentialHandleSource(first Handle) HandleSource {
	return &sequentialHandleSource{next: uint32(first)}
}

type sequentialHandleSource struct {
	mutex sync.Mutex
	next  uint32
}

func (s *sequentialHandleSource) NewHandle() Handle {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	h := Handle(s.next)
	s.next++

	return h
}
