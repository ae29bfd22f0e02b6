package batch

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("StreamWriter", func() {
	var writer *StreamWriter

	BeforeEach(func() {
		writer = NewStreamWriter(64)
	})

	It("should reject a capacity that is not a multiple of a dword", func() {
		Expect(func() { NewStreamWriter(10) }).To(Panic())
		Expect(func() { NewStreamWriter(0) }).To(Panic())
	})

	It("should emit dwords little-endian at the cursor", func() {
		writer.EmitDword(0x12345678)
		writer.EmitDword(0xdeadbeef)

		Expect(writer.Position()).To(Equal(uint64(8)))
		Expect(writer.Bytes()[0]).To(Equal(byte(0x78)))
		Expect(writer.Bytes()[3]).To(Equal(byte(0x12)))
		Expect(writer.ReadDword(4)).To(Equal(uint32(0xdeadbeef)))
	})

	It("should panic when the stream overflows", func() {
		for i := 0; i < 16; i++ {
			writer.EmitDword(0)
		}

		Expect(func() { writer.EmitDword(0) }).To(Panic())
	})

	It("should pad with no-ops up to the alignment", func() {
		writer.EmitDword(1)

		writer.Align(16)

		Expect(writer.Position()).To(Equal(uint64(16)))
		Expect(writer.ReadDword(4)).To(Equal(uint32(noopDword)))
		Expect(writer.ReadDword(12)).To(Equal(uint32(noopDword)))
	})

	It("should not pad an already aligned stream", func() {
		writer.EmitDword(1)
		writer.EmitDword(2)

		writer.Align(8)

		Expect(writer.Position()).To(Equal(uint64(8)))
	})

	It("should reject a non-power-of-two alignment", func() {
		Expect(func() { writer.Align(12) }).To(Panic())
	})

	It("should move the cursor to zero on reset", func() {
		writer.EmitDword(0x12345678)

		writer.Reset(false)

		Expect(writer.Position()).To(Equal(uint64(0)))
		Expect(writer.ReadDword(0)).To(Equal(uint32(0x12345678)))
	})

	It("should zero the contents when asked to", func() {
		writer.EmitDword(0x12345678)

		writer.Reset(true)

		Expect(writer.ReadDword(0)).To(Equal(uint32(0)))
	})
})
