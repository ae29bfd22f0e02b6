package batch

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/gpubatch/gem"
)

var _ = Describe("objectCache", func() {
	var cache *objectCache

	BeforeEach(func() {
		cache = newObjectCache()
	})

	It("should find inserted objects", func() {
		obj := &BufferObject{Handle: 3, Size: 0x1000}

		cache.insert(obj)

		found, ok := cache.find(3)
		Expect(ok).To(BeTrue())
		Expect(found).To(BeIdenticalTo(obj))
	})

	It("should keep at most one entry per handle", func() {
		cache.insert(&BufferObject{Handle: 3})

		Expect(func() {
			cache.insert(&BufferObject{Handle: 3})
		}).To(Panic())
	})

	It("should preserve insertion order", func() {
		cache.insert(&BufferObject{Handle: 2})
		cache.insert(&BufferObject{Handle: 7})
		cache.insert(&BufferObject{Handle: 5})

		handles := []gem.Handle{}
		for _, obj := range cache.objects() {
			handles = append(handles, obj.Handle)
		}

		Expect(handles).To(Equal([]gem.Handle{2, 7, 5}))
	})

	It("should place front-inserted objects first", func() {
		cache.insert(&BufferObject{Handle: 2})
		cache.insertFront(&BufferObject{Handle: 0})

		Expect(cache.objects()[0].Handle).To(Equal(gem.Handle(0)))
	})

	It("should report removal of unknown handles", func() {
		Expect(cache.remove(9)).To(BeFalse())
	})

	It("should remove objects from lookup and order", func() {
		cache.insert(&BufferObject{Handle: 2})
		cache.insert(&BufferObject{Handle: 7})

		Expect(cache.remove(2)).To(BeTrue())

		_, ok := cache.find(2)
		Expect(ok).To(BeFalse())
		Expect(cache.numObjects()).To(Equal(1))
		Expect(cache.objects()[0].Handle).To(Equal(gem.Handle(7)))
	})

	It("should drop everything on purge", func() {
		cache.insert(&BufferObject{Handle: 2})
		cache.insert(&BufferObject{Handle: 7})

		cache.purge()

		Expect(cache.numObjects()).To(Equal(0))
		_, ok := cache.find(2)
		Expect(ok).To(BeFalse())
	})
})
