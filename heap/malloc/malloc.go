package malloc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.uber.org/atomic"

	"github.com/joshuapare/heapkit/heap/brk"
	"github.com/joshuapare/heapkit/heap/dirty"
	"github.com/joshuapare/heapkit/heap/ledger"
	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
)

// Allocator is a first-fit allocator over one arena.
type Allocator struct {
	mu     sync.Mutex
	brk    brk.Break
	led    *ledger.Ledger
	dt     dirty.DirtyTracker
	log    *slog.Logger
	m      *metrics
	closed bool
	inUse  int // payload bytes of busy records

	validate   bool
	roundSizes bool

	stats counters

	// Test hooks, called with the break delta before the break call.
	onGrow   func(delta int)
	onShrink func(delta int)
}

type counters struct {
	acquires        atomic.Int64
	reused          atomic.Int64
	grown           atomic.Int64
	acquireFailures atomic.Int64
	releases        atomic.Int64
	shrunk          atomic.Int64
	freed           atomic.Int64
	shrinkFailures  atomic.Int64
	rejected        atomic.Int64
}

// New returns an Allocator over b. When b already holds bytes, as a reopened
// file arena does, the record chain is rebuilt from them.
func New(b brk.Break, opts *Options) (*Allocator, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	end, err := b.Sbrk(0)
	if err != nil {
		return nil, fmt.Errorf("malloc: query break: %w", err)
	}
	led := ledger.New()
	inUse := 0
	if end > 0 {
		led, err = ledger.Rebuild(b.Bytes(), end)
		if err != nil {
			return nil, fmt.Errorf("malloc: rebuild chain: %w", err)
		}
		err = led.Walk(b.Bytes(), func(r ledger.Record) bool {
			if !r.Free {
				inUse += r.Size
			}
			return true
		})
		if err != nil {
			return nil, fmt.Errorf("malloc: walk rebuilt chain: %w", err)
		}
		log.Debug("chain rebuilt", "records", led.Len(), "free", led.FreeLen(), "break", end)
	}

	a := &Allocator{
		brk:        b,
		led:        led,
		dt:         opts.Dirty,
		log:        log,
		m:          newMetrics(opts.Registerer),
		inUse:      inUse,
		validate:   opts.Validate,
		roundSizes: opts.RoundSizes,
	}
	a.updateGauges(end)
	return a, nil
}

// Acquire returns a handle to at least size bytes, or Null when size is not
// positive or the arena cannot grow.
func (a *Allocator) Acquire(size int) Ptr {
	p, _, err := a.Alloc(size)
	if err != nil {
		return Null
	}
	return p
}

// Alloc is Acquire reporting why it failed. It also returns the payload.
func (a *Allocator) Alloc(size int) (Ptr, []byte, error) {
	if size <= 0 {
		return Null, nil, ErrZeroSize
	}
	if a.roundSizes {
		if _, ok := buf.AddOverflowSafe(size, format.AlignmentMask); !ok {
			return Null, nil, ErrTooLarge
		}
		size = format.Align16(size)
	}
	total, ok := buf.AddOverflowSafe(format.HeaderSize, size)
	if !ok {
		return Null, nil, ErrTooLarge
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return Null, nil, ErrClosed
	}

	mem := a.brk.Bytes()
	if off := a.led.FindFree(mem, size); off != ledger.None {
		a.led.SetFree(mem, off, false)
		a.markDirty(off, format.HeaderSize)
		got := format.ReadSize(mem, off)
		a.inUse += got
		a.stats.acquires.Inc()
		a.stats.reused.Inc()
		a.m.acquires.WithLabelValues(pathReuse).Inc()
		a.m.freeRecords.Set(float64(a.led.FreeLen()))
		return ptrAt(off), mem[off+format.HeaderSize : off+format.HeaderSize+got], nil
	}

	if a.onGrow != nil {
		a.onGrow(total)
	}
	off, err := a.brk.Sbrk(total)
	if err != nil {
		a.stats.acquireFailures.Inc()
		a.m.acquireFailures.Inc()
		a.log.Debug("arena growth refused", "size", size, "delta", total, "error", err)
		return Null, nil, fmt.Errorf("%w: acquire %d bytes: %w", ErrNoMemory, size, err)
	}

	mem = a.brk.Bytes()
	prevLast := a.led.Last()
	a.led.Init(mem, off, size)
	a.led.Append(mem, off)
	if prevLast != ledger.None {
		a.markDirty(prevLast, format.HeaderSize)
	}
	a.markDirty(off, total)
	a.inUse += size

	a.stats.acquires.Inc()
	a.stats.grown.Inc()
	a.m.acquires.WithLabelValues(pathGrow).Inc()
	a.updateGauges(off + total)
	a.log.Debug("arena grown", "offset", off, "size", size, "break", off+total)
	return ptrAt(off), mem[off+format.HeaderSize : off+total], nil
}

// Release returns the block behind p. Null is ignored. Releasing a handle
// that was not acquired from a, or was already released, is undefined unless
// Options.Validate is set.
func (a *Allocator) Release(p Ptr) {
	_ = a.Free(p)
}

// Free is Release reporting handles it refused. Freeing Null returns nil.
func (a *Allocator) Free(p Ptr) error {
	if p == Null {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}

	mem := a.brk.Bytes()
	off, err := a.resolve(mem, p)
	if err != nil {
		return a.reject(p, err)
	}
	if a.validate {
		if err := a.verify(mem, off); err != nil {
			return a.reject(p, err)
		}
	}

	end, err := a.brk.Sbrk(0)
	if err != nil {
		return fmt.Errorf("malloc: query break: %w", err)
	}
	size := format.ReadSize(mem, off)
	total := format.HeaderSize + size
	wasFree := format.IsFree(mem, off)

	if off+total == end && off == a.led.Last() {
		a.releaseTail(mem, off, size, wasFree)
		return nil
	}

	a.led.SetFree(mem, off, true)
	a.markDirty(off, format.HeaderSize)
	if !wasFree {
		a.inUse -= size
	}
	a.stats.releases.Inc()
	a.stats.freed.Inc()
	a.m.releases.WithLabelValues(pathFree).Inc()
	a.m.freeRecords.Set(float64(a.led.FreeLen()))
	return nil
}

// releaseTail unlinks the last record and gives its bytes back to the break.
// The record is unlinked first because a shrunk break may unmap its header.
// If the break refuses, the record is linked back as a free tail.
func (a *Allocator) releaseTail(mem []byte, off, size int, wasFree bool) {
	total := format.HeaderSize + size
	a.led.ExciseTail(mem)
	if prev := a.led.Last(); prev != ledger.None {
		a.markDirty(prev, format.HeaderSize)
	}
	if !wasFree {
		a.inUse -= size
	}
	a.stats.releases.Inc()

	if a.onShrink != nil {
		a.onShrink(total)
	}
	if _, err := a.brk.Sbrk(-total); err != nil {
		prev := a.led.Last()
		a.led.Append(mem, off)
		a.led.SetFree(mem, off, true)
		a.markDirty(off, format.HeaderSize)
		if prev != ledger.None {
			a.markDirty(prev, format.HeaderSize)
		}
		a.stats.freed.Inc()
		a.stats.shrinkFailures.Inc()
		a.m.releases.WithLabelValues(pathFree).Inc()
		a.m.shrinkFailures.Inc()
		a.updateGauges(off + total)
		a.log.Warn("arena shrink failed; tail kept as free block", "offset", off, "size", size, "error", err)
		return
	}

	a.stats.shrunk.Inc()
	a.m.releases.WithLabelValues(pathShrink).Inc()
	a.updateGauges(off)
	a.log.Debug("arena shrunk", "offset", off, "size", size, "break", off)
}

// resolve maps p to its record offset, checking it lies inside the arena.
func (a *Allocator) resolve(mem []byte, p Ptr) (int, error) {
	if uint64(p) < format.HeaderSize || uint64(p) > uint64(len(mem)) {
		return 0, fmt.Errorf("%w: %s outside arena of %d bytes", ErrBadPtr, p, len(mem))
	}
	off := p.offset()
	if !buf.Has(mem, off, format.HeaderSize) {
		return 0, fmt.Errorf("%w: %s does not name a block", ErrBadPtr, p)
	}
	if size := format.ReadSize(mem, off); size < 0 || !buf.Has(mem, int(p), size) {
		return 0, fmt.Errorf("%w: %s does not name a block", ErrBadPtr, p)
	}
	return off, nil
}

// verify runs the hardened release checks: canary, chain membership and the
// free flag.
func (a *Allocator) verify(mem []byte, off int) error {
	if err := format.CheckCanary(mem, off); err != nil {
		return fmt.Errorf("%w: %w", ErrBadPtr, err)
	}
	found := false
	err := a.led.Walk(mem, func(r ledger.Record) bool {
		found = r.Offset == off
		return r.Offset < off
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadPtr, err)
	}
	if !found {
		return fmt.Errorf("%w: no record at offset %d", ErrBadPtr, off)
	}
	if format.IsFree(mem, off) {
		return fmt.Errorf("%w: block at offset %d", ErrDoubleFree, off)
	}
	return nil
}

func (a *Allocator) reject(p Ptr, err error) error {
	a.stats.rejected.Inc()
	a.log.Warn("free rejected", "ptr", p.String(), "error", err)
	return err
}

// Bytes returns the payload of p, or nil when p does not name a block.
func (a *Allocator) Bytes(p Ptr) []byte {
	if p == Null {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	mem := a.brk.Bytes()
	off, err := a.resolve(mem, p)
	if err != nil {
		return nil
	}
	start := int(p)
	return mem[start : start+format.ReadSize(mem, off)]
}

// Size returns the recorded payload size of p, or 0 when p does not name a
// block.
func (a *Allocator) Size(p Ptr) int {
	return len(a.Bytes(p))
}

// Blocks returns a snapshot of the chain in carve order.
func (a *Allocator) Blocks() ([]Block, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	recs, err := a.led.Records(a.brk.Bytes())
	out := make([]Block, 0, len(recs))
	for _, r := range recs {
		out = append(out, Block{Ptr: ptrAt(r.Offset), Offset: r.Offset, Size: r.Size, Free: r.Free})
	}
	return out, err
}

// Check verifies the chain against the arena break.
func (a *Allocator) Check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	end, err := a.brk.Sbrk(0)
	if err != nil {
		return fmt.Errorf("malloc: query break: %w", err)
	}
	return a.led.Check(a.brk.Bytes(), end)
}

// Stats returns current counters and chain gauges.
func (a *Allocator) Stats() Stats {
	s := Stats{
		Acquires:        a.stats.acquires.Load(),
		Reused:          a.stats.reused.Load(),
		Grown:           a.stats.grown.Load(),
		AcquireFailures: a.stats.acquireFailures.Load(),
		Releases:        a.stats.releases.Load(),
		Shrunk:          a.stats.shrunk.Load(),
		Freed:           a.stats.freed.Load(),
		ShrinkFailures:  a.stats.shrinkFailures.Load(),
		Rejected:        a.stats.rejected.Load(),
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s.Records = a.led.Len()
	s.FreeRecords = a.led.FreeLen()
	s.InUseBytes = a.inUse
	if !a.closed {
		s.ArenaBytes = len(a.brk.Bytes())
	}
	return s
}

// flusher is implemented by dirty.Tracker.
type flusher interface {
	Flush(ctx context.Context, s dirty.Syncer) error
}

// Sync persists the arena when its break can sync. With a flushing dirty
// tracker only the touched pages are written; otherwise the whole arena is.
func (a *Allocator) Sync(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	s, ok := a.brk.(dirty.Syncer)
	if !ok {
		return nil
	}
	if f, ok := a.dt.(flusher); ok {
		return f.Flush(ctx, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.SyncRange(0, len(a.brk.Bytes()))
}

// Close releases the arena. Handles and payload slices become invalid.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.brk.Close(); err != nil && !errors.Is(err, brk.ErrClosed) {
		return err
	}
	return nil
}

func (a *Allocator) markDirty(off, n int) {
	if a.dt != nil {
		a.dt.Add(off, n)
	}
}

func (a *Allocator) updateGauges(end int) {
	a.m.arenaBytes.Set(float64(end))
	a.m.records.Set(float64(a.led.Len()))
	a.m.freeRecords.Set(float64(a.led.FreeLen()))
}
