package pools

import (
	"sync"
)

// Slices above these capacities are dropped instead of pooled to prevent
// memory bloat
const (
	maxPooledKeys   = 1 << 22
	maxPooledCounts = 1 << 26
)

// GlobalPools provides centralized memory pooling for the buffers that are
// allocated once per sort or per received batch
type GlobalPools struct {
	KeySlices    sync.Pool
	CountBuffers sync.Pool
}

// Pools is the global instance of memory pools
var Pools = &GlobalPools{
	KeySlices: sync.Pool{
		New: func() interface{} {
			slice := make([]uint64, 0, 1024)
			return &slice
		},
	},
	CountBuffers: sync.Pool{
		New: func() interface{} {
			slice := make([]int, 0, 4096)
			return &slice
		},
	},
}

// GetKeySlice gets a key slice from the pool and resets it
func (gp *GlobalPools) GetKeySlice() []uint64 {
	slicePtr := gp.KeySlices.Get().(*[]uint64)
	*slicePtr = (*slicePtr)[:0] // Reset length while keeping capacity
	return *slicePtr
}

// ReturnKeySlice returns a key slice to the pool. The caller must not use it
// afterwards.
func (gp *GlobalPools) ReturnKeySlice(slice []uint64) {
	if slice != nil && cap(slice) <= maxPooledKeys {
		emptySlice := slice[:0]
		gp.KeySlices.Put(&emptySlice)
	}
}

// GetCounts gets a count buffer of length n. Its contents are not zeroed.
// A pooled buffer that is too small goes back to the pool.
func (gp *GlobalPools) GetCounts(n int) []int32 {
	slicePtr := gp.CountBuffers.Get().(*[]int32)
	if cap(*slicePtr) < n {
		gp.CountBuffers.Put(slicePtr)
		return make([]int32, n)
	}
	return (*slicePtr)[:n]
}

// ReturnCounts returns a count buffer to the pool
func (gp *GlobalPools) ReturnCounts(slice []int32) {
	if cap(slice) <= maxPooledCounts {
		emptySlice := slice[:0]
		gp.CountBuffers.Put(&emptySlice)
	}
}

// Reset clears all pools (useful for testing)
func (gp *GlobalPools) Reset() {
	gp.KeySlices = sync.Pool{New: gp.KeySlices.New}
	gp.CountBuffers = sync.Pool{New: gp.CountBuffers.New}
}
