package submission

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/sarchlab/gpubatch/fence"
	"github.com/sarchlab/gpubatch/gem"
)

// A SimSink is an in-memory Sink that models the kernel's submission
// behavior. In relocation mode it places objects in its own address space
// and patches the instruction stream accordingly. In address mode it honors
// the submitter's addresses after checking them for overlap.
type SimSink struct {
	sync.Mutex

	baseAddress  uint64
	use48Bit     bool
	manualFences bool

	nextAddress  uint64
	placements   map[gem.Handle]uint64
	pending      []*fence.ManualFence
	lastPatched  []byte
	numSubmitted int
	nextFailure  error
}

// NewSimSink creates a SimSink that places objects starting at 0xf0000000,
// far from where builders typically guess, so address reconciliation after
// relocation is visible in tests.
func NewSimSink() *SimSink {
	return &SimSink{
		baseAddress: 0xf0000000,
		nextAddress: 0xf0000000,
		placements:  make(map[gem.Handle]uint64),
	}
}

// WithBaseAddress sets the lowest address of the sink's own address space.
func (s *SimSink) WithBaseAddress(addr uint64) *SimSink {
	s.baseAddress = addr
	s.nextAddress = addr

	return s
}

// With48BitAddressing makes the sink patch eight bytes per relocation
// instead of four.
func (s *SimSink) With48BitAddressing() *SimSink {
	s.use48Bit = true

	return s
}

// WithManualCompletion makes the sink return unsignaled fences that only
// signal when Complete is called, oldest first.
func (s *SimSink) WithManualCompletion() *SimSink {
	s.manualFences = true

	return s
}

// Submit implements Sink.
func (s *SimSink) Submit(req *Request) (*Result, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.takeInjectedFailure(); err != nil {
		return nil, err
	}

	if len(req.Objects) == 0 {
		return nil, fmt.Errorf("submission lists no objects")
	}

	if len(req.Instructions) == 0 {
		return nil, fmt.Errorf("submission carries no instructions")
	}

	var resultObjects []ObjectSpec
	var err error
	if req.Relocations != nil {
		resultObjects, err = s.submitWithRelocations(req)
	} else {
		resultObjects, err = s.submitSoftpinned(req)
	}

	if err != nil {
		return nil, err
	}

	s.numSubmitted++

	return &Result{
		Fence:   s.newFence(),
		Objects: resultObjects,
	}, nil
}

func (s *SimSink) takeInjectedFailure() error {
	err := s.nextFailure
	s.nextFailure = nil

	return err
}

// FailNextSubmission makes the next Submit call return err without any
// other effect.
func (s *SimSink) FailNextSubmission(err error) {
	s.Lock()
	defer s.Unlock()

	s.nextFailure = err
}

// Complete signals the oldest outstanding fence. It panics when no
// submission is outstanding.
func (s *SimSink) Complete() {
	s.Lock()
	defer s.Unlock()

	if len(s.pending) == 0 {
		panic("no outstanding submission to complete")
	}

	s.pending[0].Signal()
	s.pending = s.pending[1:]
}

// NumSubmitted returns how many submissions the sink has accepted.
func (s *SimSink) NumSubmitted() int {
	s.Lock()
	defer s.Unlock()

	return s.numSubmitted
}

// PatchedInstructions returns the instruction bytes of the most recent
// relocation-mode submission, after the sink applied its patches.
func (s *SimSink) PatchedInstructions() []byte {
	s.Lock()
	defer s.Unlock()

	return s.lastPatched
}

// PlacementOf returns the address the sink assigned to an object in
// relocation mode.
func (s *SimSink) PlacementOf(handle gem.Handle) (uint64, bool) {
	s.Lock()
	defer s.Unlock()

	addr, found := s.placements[handle]

	return addr, found
}

func (s *SimSink) submitWithRelocations(req *Request) ([]ObjectSpec, error) {
	placed := make(map[gem.Handle]uint64, len(req.Objects))
	objects := make([]ObjectSpec, len(req.Objects))
	for i, obj := range req.Objects {
		addr, found := s.placements[obj.Handle]
		if !found {
			addr = s.place(obj.Size)
			s.placements[obj.Handle] = addr
		}

		placed[obj.Handle] = addr
		objects[i] = obj
		objects[i].Address = addr
	}

	patched := make([]byte, len(req.Instructions))
	copy(patched, req.Instructions)

	for _, reloc := range req.Relocations {
		addr, found := placed[reloc.Target]
		if !found {
			return nil, fmt.Errorf(
				"relocation targets handle %d, which is not in the "+
					"object list", reloc.Target)
		}

		if err := s.patch(patched, reloc.Offset, addr+reloc.Delta); err != nil {
			return nil, err
		}
	}

	s.lastPatched = patched

	return objects, nil
}

func (s *SimSink) place(size uint64) uint64 {
	addr := s.nextAddress
	s.nextAddress += alignUp(size, 0x1000)

	return addr
}

func (s *SimSink) patch(stream []byte, offset, value uint64) error {
	width := uint64(4)
	if s.use48Bit {
		width = 8
	}

	if offset+width > uint64(len(stream)) {
		return fmt.Errorf(
			"relocation at offset 0x%x runs past the %d-byte stream",
			offset, len(stream))
	}

	binary.LittleEndian.PutUint32(stream[offset:], uint32(value))
	if s.use48Bit {
		binary.LittleEndian.PutUint32(stream[offset+4:], uint32(value>>32))
	}

	return nil
}

func (s *SimSink) submitSoftpinned(req *Request) ([]ObjectSpec, error) {
	for i, obj := range req.Objects {
		if obj.Address == gem.NoAddress {
			return nil, fmt.Errorf(
				"object %d is softpinned but carries no address",
				obj.Handle)
		}

		for j := i + 1; j < len(req.Objects); j++ {
			other := req.Objects[j]
			if obj.Address < other.Address+other.Size &&
				other.Address < obj.Address+obj.Size {
				return nil, fmt.Errorf(
					"objects %d and %d overlap at 0x%x",
					obj.Handle, other.Handle, other.Address)
			}
		}
	}

	objects := make([]ObjectSpec, len(req.Objects))
	copy(objects, req.Objects)

	return objects, nil
}

func (s *SimSink) newFence() fence.Fence {
	if !s.manualFences {
		return fence.Signaled()
	}

	f := fence.NewManualFence()
	s.pending = append(s.pending, f)

	return f
}

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}
