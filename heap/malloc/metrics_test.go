package malloc

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	a, b := newTestAllocator(t, 1024, &Options{Registerer: reg})

	p1 := a.Acquire(10)
	p2 := a.Acquire(20)
	a.Release(p1)
	a.Acquire(5)
	b.failShrink = true
	a.Release(p2)
	b.failShrink = false
	a.Acquire(2000)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.m.acquires.WithLabelValues(pathGrow)))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.m.acquires.WithLabelValues(pathReuse)))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.m.releases.WithLabelValues(pathFree)))
	assert.Zero(t, testutil.ToFloat64(a.m.releases.WithLabelValues(pathShrink)))

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP heapkit_acquire_failures_total Total number of acquisitions refused because the arena could not grow.
# TYPE heapkit_acquire_failures_total counter
heapkit_acquire_failures_total 1
# HELP heapkit_shrink_failures_total Total number of tail releases whose arena shrink failed.
# TYPE heapkit_shrink_failures_total counter
heapkit_shrink_failures_total 1
# HELP heapkit_arena_bytes Current arena break in bytes.
# TYPE heapkit_arena_bytes gauge
heapkit_arena_bytes 94
# HELP heapkit_records Number of block records in the chain.
# TYPE heapkit_records gauge
heapkit_records 2
# HELP heapkit_free_records Number of block records marked free.
# TYPE heapkit_free_records gauge
heapkit_free_records 1
`), "heapkit_acquire_failures_total", "heapkit_shrink_failures_total", "heapkit_arena_bytes", "heapkit_records", "heapkit_free_records"))
}

func TestMetricsUnregisteredByDefault(t *testing.T) {
	// Two allocators without a registerer must not collide.
	a, _ := newTestAllocator(t, 64, nil)
	b, _ := newTestAllocator(t, 64, nil)
	a.Acquire(1)
	b.Acquire(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.m.records))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.m.records))
}
