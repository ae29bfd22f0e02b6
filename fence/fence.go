// Package fence provides dma-fence-like completion handles. A fence
// represents the completion of a unit of GPU work. Fences can be waited on
// and merged, where a merged fence signals only after every underlying fence
// has signaled.
package fence

import (
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by Wait when the timeout expires before the fence
// signals.
var ErrTimeout = errors.New("fence wait timed out")

// A Fence is a waitable completion handle.
type Fence interface {
	// Wait blocks until the fence signals. A zero timeout means wait
	// forever.
	Wait(timeout time.Duration) error

	// Signaled reports whether the fence has already signaled.
	Signaled() bool
}

// Signaled returns a fence that has already signaled.
func Signaled() Fence {
	return signaledFence{}
}

type signaledFence struct{}

func (signaledFence) Wait(_ time.Duration) error {
	return nil
}

func (signaledFence) Signaled() bool {
	return true
}

// A ManualFence is a fence that signals when Signal is called. It is the
// fence type produced by in-memory submission sinks.
type ManualFence struct {
	once sync.Once
	ch   chan struct{}
}

// NewManualFence creates an unsignaled ManualFence.
func NewManualFence() *ManualFence {
	return &ManualFence{
		ch: make(chan struct{}),
	}
}

// Signal marks the fence as signaled. Signaling more than once is allowed
// and has no further effect.
func (f *ManualFence) Signal() {
	f.once.Do(func() { close(f.ch) })
}

// Wait blocks until Signal is called. A zero timeout means wait forever.
func (f *ManualFence) Wait(timeout time.Duration) error {
	if timeout == 0 {
		<-f.ch
		return nil
	}

	select {
	case <-f.ch:
		return nil
	case <-time.After(timeout):
		return ErrTimeout
	}
}

// Signaled reports whether Signal has been called.
func (f *ManualFence) Signaled() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

// Merge combines two fences into one. The merged fence signals only once
// both input fences have signaled. Either input may be nil, in which case
// the other input is returned unchanged.
func Merge(a, b Fence) Fence {
	if a == nil {
		return b
	}

	if b == nil {
		return a
	}

	return &mergedFence{a: a, b: b}
}

type mergedFence struct {
	a, b Fence
}

func (f *mergedFence) Wait(timeout time.Duration) error {
	if timeout == 0 {
		if err := f.a.Wait(0); err != nil {
			return err
		}
		return f.b.Wait(0)
	}

	deadline := time.Now().Add(timeout)
	if err := f.a.Wait(timeout); err != nil {
		return err
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		if f.b.Signaled() {
			return nil
		}
		return ErrTimeout
	}

	return f.b.Wait(remaining)
}

func (f *mergedFence) Signaled() bool {
	return f.a.Signaled() && f.b.Signaled()
}
