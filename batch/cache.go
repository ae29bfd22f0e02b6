package batch

import (
	"log"

	"github.com/sarchlab/gpubatch/gem"
)

// An ObjectFlag carries auxiliary per-object state that travels with the
// object into the submission.
type ObjectFlag uint32

// Object flags.
const (
	// FlagTiled marks the object as holding tiled data.
	FlagTiled ObjectFlag = 1 << iota

	// Flag48BitAddress marks the object as mappable above 4 GiB.
	Flag48BitAddress

	// FlagPinned marks the object's address as asserted by the submitter.
	FlagPinned
)

// A BufferObject is the cached record for one kernel buffer object tracked
// by a batch: its handle, its GPU virtual address (gem.NoAddress until
// resolved), and its submission flags. A buffer object belongs to exactly
// one batch's cache at a time.
type BufferObject struct {
	Handle    gem.Handle
	Address   uint64
	Size      uint64
	Alignment uint64
	Write     bool
	Flags     ObjectFlag

	// reserved records that the address was pinned at a caller-chosen VA
	// through the allocator's reserve path rather than allocated.
	reserved bool
}

// objectCache maps handles to buffer objects and remembers insertion order.
// The order matters at submission: the flattened object list starts with
// the batch's own backing store and then follows first-added order.
type objectCache struct {
	entries map[gem.Handle]*BufferObject
	order   []*BufferObject
}

func newObjectCache() *objectCache {
	return &objectCache{
		entries: make(map[gem.Handle]*BufferObject),
	}
}

func (c *objectCache) find(handle gem.Handle) (*BufferObject, bool) {
	obj, found := c.entries[handle]
	return obj, found
}

func (c *objectCache) insert(obj *BufferObject) {
	if _, found := c.entries[obj.Handle]; found {
		log.Panicf("object %d is already tracked", obj.Handle)
	}

	c.entries[obj.Handle] = obj
	c.order = append(c.order, obj)
}

// insertFront inserts an object at the head of the flattening order. Only
// the batch's own backing store goes here.
func (c *objectCache) insertFront(obj *BufferObject) {
	if _, found := c.entries[obj.Handle]; found {
		log.Panicf("object %d is already tracked", obj.Handle)
	}

	c.entries[obj.Handle] = obj
	c.order = append([]*BufferObject{obj}, c.order...)
}

func (c *objectCache) remove(handle gem.Handle) bool {
	if _, found := c.entries[handle]; !found {
		return false
	}

	delete(c.entries, handle)
	for i, obj := range c.order {
		if obj.Handle == handle {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}

	return true
}

func (c *objectCache) purge() {
	c.entries = make(map[gem.Handle]*BufferObject)
	c.order = nil
}

// objects returns the tracked objects in flattening order. The returned
// slice is shared with the cache; callers must not modify it.
func (c *objectCache) objects() []*BufferObject {
	return c.order
}

func (c *objectCache) numObjects() int {
	return len(c.order)
}
