package malloc

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/brk"
	"github.com/joshuapare/heapkit/heap/ledger"
	"github.com/joshuapare/heapkit/internal/format"
)

func TestAcquireZeroReturnsNull(t *testing.T) {
	a, b := newTestAllocator(t, 1024, nil)
	keep := a.Acquire(24)
	require.NotEqual(t, Null, keep)

	before := bytes.Clone(b.Bytes())
	first, last, n := a.led.First(), a.led.Last(), a.led.Len()

	assert.Equal(t, Null, a.Acquire(0))
	assert.Equal(t, Null, a.Acquire(-7))
	_, _, err := a.Alloc(0)
	require.ErrorIs(t, err, ErrZeroSize)

	assert.Equal(t, before, b.Bytes())
	assert.Equal(t, first, a.led.First())
	assert.Equal(t, last, a.led.Last())
	assert.Equal(t, n, a.led.Len())
	assert.Equal(t, 1, b.grows)
}

func TestAcquireFreshGrowth(t *testing.T) {
	for _, size := range []int{1, 4, 31, 100, 4096} {
		a, _ := newTestAllocator(t, 8192, nil)

		p := a.Acquire(size)
		require.NotEqual(t, Null, p, "size %d", size)
		assert.Equal(t, Ptr(HeaderSize), p)
		assert.Equal(t, []Block{{Ptr: p, Offset: 0, Size: size, Free: false}}, blocksOf(t, a))
		assert.Equal(t, 0, a.led.First())
		assert.Equal(t, 0, a.led.Last())
		assert.Equal(t, HeaderSize+size, breakOf(t, a))
		assert.Len(t, a.Bytes(p), size)
		requireSound(t, a)
	}
}

func TestAcquireReusesBeforeGrowth(t *testing.T) {
	a, b := newTestAllocator(t, 1024, nil)
	grows := 0
	a.onGrow = func(int) { grows++ }

	p := a.Acquire(64)
	a.Acquire(16)
	a.Release(p)
	end := breakOf(t, a)
	grows = 0

	got := a.Acquire(32)
	assert.Equal(t, p, got)
	assert.Zero(t, grows)
	assert.Equal(t, 2, b.grows)
	assert.Equal(t, end, breakOf(t, a))
	assert.Equal(t, 64, a.Size(got), "records are not split")
	assert.Equal(t, int64(1), a.Stats().Reused)
	requireSound(t, a)
}

func TestAcquireFirstFit(t *testing.T) {
	a, _ := newTestAllocator(t, 1024, nil)

	p100 := a.Acquire(100)
	p50 := a.Acquire(50)
	a.Acquire(8)
	a.Release(p100)
	a.Release(p50)

	assert.Equal(t, p100, a.Acquire(40))
	assert.Equal(t, p50, a.Acquire(40))
	requireSound(t, a)
}

func TestReleaseTailShrinks(t *testing.T) {
	a, _ := newTestAllocator(t, 1024, nil)
	var shrunk []int
	a.onShrink = func(delta int) { shrunk = append(shrunk, delta) }

	p1 := a.Acquire(10)
	p2 := a.Acquire(20)
	require.Equal(t, 2*HeaderSize+30, breakOf(t, a))

	a.Release(p2)
	assert.Equal(t, HeaderSize+10, breakOf(t, a))
	assert.Equal(t, 0, a.led.Last())
	assert.Equal(t, []Block{{Ptr: p1, Offset: 0, Size: 10}}, blocksOf(t, a))
	requireSound(t, a)

	a.Release(p1)
	assert.Zero(t, breakOf(t, a))
	assert.True(t, a.led.Empty())
	assert.Equal(t, ledger.None, a.led.First())
	assert.Equal(t, ledger.None, a.led.Last())
	assert.Equal(t, []int{HeaderSize + 20, HeaderSize + 10}, shrunk)

	s := a.Stats()
	assert.Equal(t, int64(2), s.Shrunk)
	assert.Zero(t, s.InUseBytes)
	requireSound(t, a)
}

func TestReleaseInteriorMarksFree(t *testing.T) {
	a, _ := newTestAllocator(t, 1024, nil)

	p1 := a.Acquire(10)
	p2 := a.Acquire(20)
	end := breakOf(t, a)

	a.Release(p1)
	assert.Equal(t, end, breakOf(t, a))
	assert.Equal(t, []Block{
		{Ptr: p1, Offset: 0, Size: 10, Free: true},
		{Ptr: p2, Offset: HeaderSize + 10, Size: 20},
	}, blocksOf(t, a))
	assert.Equal(t, 1, a.led.FreeLen())
	requireSound(t, a)

	assert.Equal(t, p1, a.Acquire(10))
	assert.Zero(t, a.led.FreeLen())
}

func TestReleaseNullIsNoop(t *testing.T) {
	a, b := newTestAllocator(t, 1024, nil)
	a.Acquire(10)
	a.Release(a.Acquire(5))
	before := bytes.Clone(b.Bytes())

	// Null and zero-size calls must not need the lock.
	a.mu.Lock()
	a.Release(Null)
	require.NoError(t, a.Free(Null))
	assert.Equal(t, Null, a.Acquire(0))
	a.mu.Unlock()

	assert.Equal(t, before, b.Bytes())
	assert.Equal(t, int64(1), a.Stats().Releases)
}

func TestScenarioAcquireReleaseAcquire(t *testing.T) {
	a, _ := newTestAllocator(t, 1024, nil)
	grows := 0
	a.onGrow = func(int) { grows++ }

	pa := a.Acquire(4)
	require.NotEqual(t, Null, pa)
	assert.Equal(t, []Block{{Ptr: pa, Offset: 0, Size: 4}}, blocksOf(t, a))

	a.Release(pa)
	assert.Empty(t, blocksOf(t, a))
	assert.Zero(t, breakOf(t, a))

	pb := a.Acquire(8)
	require.NotEqual(t, Null, pb)
	assert.Equal(t, 2, grows, "second acquire grows the arena")
	assert.Equal(t, []Block{{Ptr: pb, Offset: 0, Size: 8}}, blocksOf(t, a))

	s := a.Stats()
	assert.Equal(t, int64(2), s.Grown)
	assert.Zero(t, s.Reused)
	requireSound(t, a)
}

func TestAcquireExhaustion(t *testing.T) {
	a, b := newTestAllocator(t, 100, nil)

	p := a.Acquire(50)
	require.NotEqual(t, Null, p)
	end := breakOf(t, a)

	assert.Equal(t, Null, a.Acquire(50))
	_, _, err := a.Alloc(50)
	require.ErrorIs(t, err, ErrNoMemory)
	require.ErrorIs(t, err, brk.ErrNoMemory)

	assert.Equal(t, end, breakOf(t, a))
	assert.Len(t, blocksOf(t, a), 1)
	assert.Equal(t, int64(2), a.Stats().AcquireFailures)
	requireSound(t, a)

	b.failGrow = true
	assert.Equal(t, Null, a.Acquire(1))
	requireSound(t, a)
}

func TestAllocTooLarge(t *testing.T) {
	a, _ := newTestAllocator(t, 1024, nil)
	_, _, err := a.Alloc(math.MaxInt)
	require.ErrorIs(t, err, ErrTooLarge)

	r, _ := newTestAllocator(t, 1024, &Options{RoundSizes: true})
	_, _, err = r.Alloc(math.MaxInt - 3)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestAllocReturnsPayload(t *testing.T) {
	a, _ := newTestAllocator(t, 1024, nil)

	p, payload, err := a.Alloc(5)
	require.NoError(t, err)
	require.Len(t, payload, 5)
	copy(payload, "test\x00")
	assert.Equal(t, []byte("test\x00"), a.Bytes(p))

	a.Acquire(8)
	a.Release(p)
	got, payload, err := a.Alloc(3)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Len(t, payload, 5, "reused payload keeps the record size")
}

func TestRoundSizes(t *testing.T) {
	a, _ := newTestAllocator(t, 4096, &Options{RoundSizes: true})

	for _, tc := range []struct{ req, want int }{{1, 16}, {16, 16}, {17, 32}, {100, 112}} {
		p := a.Acquire(tc.req)
		require.NotEqual(t, Null, p)
		assert.Equal(t, tc.want, a.Size(p), "request %d", tc.req)
		assert.Zero(t, uint64(p)%16, "payload %s not aligned", p)
	}
	requireSound(t, a)
}

func TestShrinkFailureKeepsFreeTail(t *testing.T) {
	var logs bytes.Buffer
	a, b := newTestAllocator(t, 1024, &Options{Logger: newBufferLogger(&logs)})

	p1 := a.Acquire(10)
	p2 := a.Acquire(20)
	end := breakOf(t, a)

	b.failShrink = true
	require.NoError(t, a.Free(p2))
	assert.Equal(t, end, breakOf(t, a))
	assert.Equal(t, []Block{
		{Ptr: p1, Offset: 0, Size: 10},
		{Ptr: p2, Offset: HeaderSize + 10, Size: 20, Free: true},
	}, blocksOf(t, a))
	assert.Equal(t, int64(1), a.Stats().ShrinkFailures)
	assert.Contains(t, logs.String(), "arena shrink failed")
	requireSound(t, a)

	b.failShrink = false
	assert.Equal(t, p2, a.Acquire(20))
	a.Release(p2)
	assert.Equal(t, HeaderSize+10, breakOf(t, a))
	requireSound(t, a)
}

func TestFreeBadPtr(t *testing.T) {
	a, _ := newTestAllocator(t, 1024, nil)
	a.Acquire(10)

	require.ErrorIs(t, a.Free(Ptr(8)), ErrBadPtr)
	require.ErrorIs(t, a.Free(Ptr(1<<40)), ErrBadPtr)
	require.ErrorIs(t, a.Free(Ptr(math.MaxUint64)), ErrBadPtr)
	assert.Nil(t, a.Bytes(Ptr(1<<40)))
	assert.Zero(t, a.Size(Null))
	assert.Equal(t, int64(3), a.Stats().Rejected)
	requireSound(t, a)
}

func TestValidateDoubleFree(t *testing.T) {
	a, _ := newTestAllocator(t, 1024, &Options{Validate: true})

	p1 := a.Acquire(10)
	a.Acquire(20)
	require.NoError(t, a.Free(p1))
	require.ErrorIs(t, a.Free(p1), ErrDoubleFree)
	assert.Equal(t, int64(1), a.Stats().Rejected)
	assert.Equal(t, 1, a.led.FreeLen())
	requireSound(t, a)
}

func TestValidateRejectsInteriorPointer(t *testing.T) {
	a, _ := newTestAllocator(t, 1024, &Options{Validate: true})

	p := a.Acquire(64)
	a.Acquire(8)
	require.ErrorIs(t, a.Free(p+16), ErrBadPtr)
	assert.Equal(t, []bool{false, false}, freeFlags(blocksOf(t, a)))
	requireSound(t, a)
}

func TestValidateRejectsForgedHeader(t *testing.T) {
	a, _ := newTestAllocator(t, 1024, &Options{Validate: true})

	p := a.Acquire(128)
	a.Acquire(8)

	// A well-formed header inside a payload is still not a chain member.
	format.PutHeader(a.Bytes(p), 0, 8)

	require.ErrorIs(t, a.Free(p+HeaderSize), ErrBadPtr)
	requireSound(t, a)
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	a, _ := newTestAllocator(t, 1024, nil)
	p := a.Acquire(10)
	require.NoError(t, a.Close())

	assert.Equal(t, Null, a.Acquire(10))
	_, _, err := a.Alloc(10)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, a.Free(p), ErrClosed)
	require.ErrorIs(t, a.Check(), ErrClosed)
	_, err = a.Blocks()
	require.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, a.Bytes(p))
	require.NoError(t, a.Close())
}

func TestNewRebuildsExistingArena(t *testing.T) {
	b := brk.NewMem(1024)
	a, err := New(b, nil)
	require.NoError(t, err)

	p1 := a.Acquire(10)
	a.Acquire(20)
	a.Acquire(30)
	a.Release(p1)
	want := blocksOf(t, a)
	wantStats := a.Stats()

	reopened, err := New(b, nil)
	require.NoError(t, err)
	assert.Equal(t, want, blocksOf(t, reopened))
	assert.Equal(t, wantStats.InUseBytes, reopened.Stats().InUseBytes)
	assert.Equal(t, 1, reopened.Stats().FreeRecords)
	requireSound(t, reopened)

	assert.Equal(t, p1, reopened.Acquire(10))
	require.NoError(t, reopened.Close())
}

func TestNewRejectsCorruptArena(t *testing.T) {
	b := brk.NewMem(256)
	_, err := b.Sbrk(64)
	require.NoError(t, err)

	_, err = New(b, nil)
	require.ErrorIs(t, err, ledger.ErrCorrupt)
}

// tornBreak serves the real arena on the first Bytes call and a copy whose
// first record links back to itself on every call after that.
type tornBreak struct {
	*brk.Mem
	reads int
}

func (b *tornBreak) Bytes() []byte {
	b.reads++
	mem := b.Mem.Bytes()
	if b.reads == 1 {
		return mem
	}
	torn := bytes.Clone(mem)
	format.PutU64(torn, format.NextOffset, 0)
	return torn
}

func TestNewReportsChainWalkFailure(t *testing.T) {
	mem := brk.NewMem(1024)
	a, err := New(mem, nil)
	require.NoError(t, err)
	a.Acquire(10)
	a.Acquire(20)

	_, err = New(&tornBreak{Mem: mem}, nil)
	require.ErrorIs(t, err, ledger.ErrCorrupt)
	assert.ErrorContains(t, err, "walk rebuilt chain")
}

func TestPtrString(t *testing.T) {
	assert.Equal(t, "null", Null.String())
	assert.Equal(t, "0x20", Ptr(32).String())
}

func freeFlags(blocks []Block) []bool {
	out := make([]bool, len(blocks))
	for i, b := range blocks {
		out[i] = b.Free
	}
	return out
}
