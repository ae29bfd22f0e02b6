package batch

import (
	"encoding/binary"
	"log"
)

// noopDword is the instruction used to pad the stream during alignment.
const noopDword = 0x00000000

// A StreamWriter assembles a binary GPU command stream. It is an
// append-only dword buffer with a fixed capacity and a write cursor.
// Instructions are encoded little-endian. The writer is not safe for
// concurrent use; one goroutine constructs one stream at a time.
type StreamWriter struct {
	data   []byte
	cursor uint64
}

// NewStreamWriter creates a StreamWriter with the given capacity in bytes.
// The capacity must be a positive multiple of four.
func NewStreamWriter(capacity uint64) *StreamWriter {
	if capacity == 0 || capacity%4 != 0 {
		log.Panicf("stream capacity %d is not a positive multiple of 4",
			capacity)
	}

	return &StreamWriter{
		data: make([]byte, capacity),
	}
}

// EmitDword appends one dword at the cursor. Running past the capacity is a
// sizing bug in the caller, not a runtime condition, and panics.
func (w *StreamWriter) EmitDword(value uint32) {
	if w.cursor+4 > uint64(len(w.data)) {
		log.Panicf("command stream overflow: capacity is %d bytes",
			len(w.data))
	}

	binary.LittleEndian.PutUint32(w.data[w.cursor:], value)
	w.cursor += 4
}

// Align pads the stream with no-ops until the cursor is a multiple of
// bytes, which must be a power of two no smaller than a dword.
func (w *StreamWriter) Align(bytes uint64) {
	if bytes < 4 || bytes&(bytes-1) != 0 {
		log.Panicf("alignment %d is not a power of two of at least 4",
			bytes)
	}

	for w.cursor%bytes != 0 {
		w.EmitDword(noopDword)
	}
}

// Position returns the current cursor. Callers use it to remember where a
// patch lives within the stream.
func (w *StreamWriter) Position() uint64 {
	return w.cursor
}

// Capacity returns the size of the backing buffer in bytes.
func (w *StreamWriter) Capacity() uint64 {
	return uint64(len(w.data))
}

// Bytes returns the backing buffer. The first Position() bytes hold emitted
// instructions.
func (w *StreamWriter) Bytes() []byte {
	return w.data
}

// ReadDword returns the dword at the given byte offset.
func (w *StreamWriter) ReadDword(offset uint64) uint32 {
	if offset+4 > uint64(len(w.data)) {
		log.Panicf("read at offset 0x%x past the %d-byte stream",
			offset, len(w.data))
	}

	return binary.LittleEndian.Uint32(w.data[offset:])
}

// Reset moves the cursor back to zero. Contents are only zeroed when
// clearContents is set; that matters for reproducible stream dumps, not for
// correctness.
func (w *StreamWriter) Reset(clearContents bool) {
	w.cursor = 0

	if clearContents {
		for i := range w.data {
			w.data[i] = 0
		}
	}
}
