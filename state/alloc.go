package state

import (
	"github.com/dustin/go-humanize"
)

// SlotBytes is what one stack slot is charged to the allocator.
const SlotBytes = 16

// Allocator accounts for memory used by the VM. Resize is told about every
// change of a block from oldSize to newSize bytes; returning an error refuses
// the change and surfaces as a memory error.
type Allocator interface {
	Resize(oldSize, newSize int64) error
	InUse() int64
}

// limitAllocator refuses growth beyond a fixed number of bytes. A zero limit
// means no limit.
type limitAllocator struct {
	limit int64
	inUse int64
}

// NewLimitAllocator returns an Allocator that refuses to account for more
// than limit bytes. A limit of zero disables the check.
func NewLimitAllocator(limit int64) Allocator {
	return &limitAllocator{limit: limit}
}

func (a *limitAllocator) Resize(oldSize, newSize int64) error {
	next := a.inUse - oldSize + newSize
	if newSize > oldSize && a.limit > 0 && next > a.limit {
		return runtimeError(KindMemory, StatusMemoryError,
			"not enough memory (%s in use, %s requested, limit %s)",
			humanize.IBytes(uint64(a.inUse)), humanize.IBytes(uint64(newSize-oldSize)), humanize.IBytes(uint64(a.limit)))
	}
	a.inUse = next
	return nil
}

func (a *limitAllocator) InUse() int64 { return a.inUse }
