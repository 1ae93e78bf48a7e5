package main

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/heapkit/heap/malloc"
)

// counts prints grouped integers ("12,345").
var counts = message.NewPrinter(language.English)

// blockView is the JSON form of one block.
type blockView struct {
	Ptr    string `json:"ptr"`
	Offset int    `json:"offset"`
	Size   int    `json:"size"`
	Free   bool   `json:"free"`
}

func viewBlocks(blocks []malloc.Block) []blockView {
	out := make([]blockView, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, blockView{Ptr: b.Ptr.String(), Offset: b.Offset, Size: b.Size, Free: b.Free})
	}
	return out
}

// printChain prints the block chain in carve order.
func printChain(blocks []malloc.Block) {
	if len(blocks) == 0 {
		printInfo("  (empty chain)\n")
		return
	}
	printInfo("  %-4s %-10s %-10s %-10s %s\n", "#", "PTR", "OFFSET", "SIZE", "STATE")
	for i, b := range blocks {
		state := "busy"
		if b.Free {
			state = "free"
		}
		printInfo("  %-4d %-10s %-10d %-10d %s\n", i, b.Ptr, b.Offset, b.Size, state)
	}
}

// printStats prints allocator counters and gauges.
func printStats(s malloc.Stats) {
	printInfo("Arena:        %s in %s records (%s free)\n",
		humanize.IBytes(uint64(s.ArenaBytes)), counts.Sprintf("%d", s.Records), counts.Sprintf("%d", s.FreeRecords))
	printInfo("In use:       %s\n", humanize.IBytes(uint64(s.InUseBytes)))
	printInfo("Acquires:     %s (%s reused, %s grown, %s refused)\n",
		counts.Sprintf("%d", s.Acquires), counts.Sprintf("%d", s.Reused), counts.Sprintf("%d", s.Grown), counts.Sprintf("%d", s.AcquireFailures))
	printInfo("Releases:     %s (%s shrunk, %s freed, %s shrink failures)\n",
		counts.Sprintf("%d", s.Releases), counts.Sprintf("%d", s.Shrunk), counts.Sprintf("%d", s.Freed), counts.Sprintf("%d", s.ShrinkFailures))
	if s.Rejected > 0 {
		printInfo("Rejected:     %s frees\n", counts.Sprintf("%d", s.Rejected))
	}
}

// printMetrics writes every metric gathered from g in the Prometheus text
// format.
func printMetrics(g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(os.Stdout, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
