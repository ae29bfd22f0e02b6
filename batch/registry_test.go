package batch

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/gpubatch/gem"
	"github.com/sarchlab/gpubatch/va"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Registry", func() {
	var (
		mockCtrl *gomock.Controller
		sink     *MockSink
		registry Registry
	)

	newBatch := func(name string, firstHandle gem.Handle) *Batch {
		return MakeBuilder().
			WithSink(sink).
			WithHandleSource(gem.NewSequentialHandleSource(firstHandle)).
			WithRegistry(registry).
			Build(name)
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		sink = NewMockSink(mockCtrl)
		registry = NewRegistry()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should enumerate registered batches", func() {
		b1 := newBatch("Batch1", 100)
		b2 := newBatch("Batch2", 200)

		seen := []string{}
		registry.ForEach(func(b *Batch) {
			seen = append(seen, b.Name())
		})

		Expect(seen).To(Equal([]string{"Batch1", "Batch2"}))

		b1.Destroy()
		b2.Destroy()
	})

	It("should refuse double registration", func() {
		b := newBatch("Batch1", 100)

		Expect(func() { registry.Register(b) }).To(Panic())

		b.Destroy()
	})

	It("should drop batches on destruction", func() {
		b := newBatch("Batch1", 100)

		b.Destroy()

		count := 0
		registry.ForEach(func(*Batch) { count++ })
		Expect(count).To(Equal(0))
	})

	It("should purge every batch in bulk", func() {
		b1 := newBatch("Batch1", 100)
		b2 := newBatch("Batch2", 200)

		_, err := b1.AddObject(1, 0x1000, gem.NoAddress, 0, false)
		Expect(err).ToNot(HaveOccurred())
		_, err = b2.AddObject(2, 0x1000, gem.NoAddress, 0, false)
		Expect(err).ToNot(HaveOccurred())

		PurgeAll(registry)

		Expect(b1.NumObjects()).To(Equal(1))
		Expect(b2.NumObjects()).To(Equal(1))

		b1.Destroy()
		b2.Destroy()
	})

	It("should hand address-based batches fresh allocators", func() {
		b := MakeBuilder().
			WithAddressingMode(AddressBasedMode).
			WithAllocator(va.NewRangeAllocator(0x1000, 0x100000)).
			WithSink(sink).
			WithHandleSource(gem.NewSequentialHandleSource(100)).
			WithRegistry(registry).
			Build("Batch")

		ReinitAllocators(registry, func(*Batch) va.Allocator {
			return va.NewRangeAllocator(0x4000, 0x100000)
		})

		Expect(b.BatchObject().Address).To(Equal(uint64(0x4000)))
		Expect(b.State()).To(Equal("building"))

		b.Destroy()
	})
})
