package tui

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ingla/pram/output"
	"github.com/ingla/pram/radix"
	"github.com/ingla/pram/testutil"
	"github.com/ingla/pram/trace"
)

func recordSort(t *testing.T, n, numDigits, teamSize int) *trace.Recorder {
	t.Helper()
	rec := trace.NewRecorder(numDigits, false)
	keys := testutil.RandomKeys(3, n, 1<<16)
	err := radix.SortContext(context.Background(), keys, radix.Options{
		NumDigits: numDigits,
		TeamSize:  teamSize,
		Observer:  rec.Observe,
	})
	if err != nil {
		t.Fatalf("SortContext returned error: %v", err)
	}
	return rec
}

func TestVisualizationCacheBasic(t *testing.T) {
	cache := NewVisualizationCache()

	entries, hits, misses := cache.Stats()
	if entries != 0 || hits != 0 || misses != 0 {
		t.Error("New cache should be empty")
	}

	calls := 0
	render := func() string {
		calls++
		return fmt.Sprintf("render %d", calls)
	}

	first := cache.Get(0, 64, render)
	second := cache.Get(0, 64, render)
	if first != second || calls != 1 {
		t.Errorf("expected one render, got %d (%q, %q)", calls, first, second)
	}

	cache.Get(0, 80, render)
	cache.Get(1, 64, render)
	entries, hits, misses = cache.Stats()
	if entries != 3 || hits != 1 || misses != 3 {
		t.Errorf("Stats() = %d, %d, %d; want 3, 1, 3", entries, hits, misses)
	}

	cache.Invalidate(0)
	if entries, _, _ = cache.Stats(); entries != 1 {
		t.Errorf("expected 1 entry after invalidating pass 0, got %d", entries)
	}
	if got := cache.Get(0, 64, render); got != "render 4" {
		t.Errorf("expected a fresh render after invalidation, got %q", got)
	}

	cache.Clear()
	if entries, hits, misses = cache.Stats(); entries != 0 || hits != 0 || misses != 0 {
		t.Error("Clear should reset the cache")
	}
}

func TestFoldColumns(t *testing.T) {
	tests := []struct {
		radix, columns, want int
	}{
		{16, 64, 1},
		{256, 64, 4},
		{256, 0, 1},
		{1 << 12, 64, 64},
		{1 << 12, 1000, 16},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("radix=%d,columns=%d", tt.radix, tt.columns), func(t *testing.T) {
			if got := foldColumns(tt.radix, tt.columns); got != tt.want {
				t.Errorf("foldColumns(%d, %d) = %d, want %d", tt.radix, tt.columns, got, tt.want)
			}
		})
	}
}

func TestRenderPass(t *testing.T) {
	rec := recordSort(t, 1000, 2, 3)
	if rec.Len() != 2 {
		t.Fatalf("recorded %d passes, want 2", rec.Len())
	}

	for i, s := range rec.Snapshots() {
		text := renderPass(s, 32)
		if !strings.Contains(text, fmt.Sprintf("Pass %d", i)) {
			t.Errorf("pass %d rendering is missing its header", i)
		}
		// one row per worker plus the totals row
		for w := 0; w < 3; w++ {
			if !strings.Contains(text, fmt.Sprintf("w%-3d", w)) {
				t.Errorf("pass %d rendering is missing worker %d", i, w)
			}
		}
		if !strings.Contains(text, "all ") {
			t.Errorf("pass %d rendering is missing the totals row", i)
		}
	}
}

func TestRenderWorkers(t *testing.T) {
	rec := recordSort(t, 10, 1, 3)
	s, ok := rec.Pass(0)
	if !ok {
		t.Fatal("pass 0 not recorded")
	}
	text := renderWorkers(s)
	// 10 keys on 3 workers: 3, 3 and 4
	for _, want := range []string{"[0,3)", "[3,6)", "[6,10)", "4 keys"} {
		if !strings.Contains(text, want) {
			t.Errorf("worker listing missing %q:\n%s", want, text)
		}
	}
}

func TestHeatColorAndChar(t *testing.T) {
	if color, _ := heatColorAndChar(0); color != "black" {
		t.Errorf("zero intensity color = %q", color)
	}
	if color, _ := heatColorAndChar(1); color != "white" {
		t.Errorf("full intensity color = %q", color)
	}
	if color, _ := heatColorAndChar(0.05); color != "#202020" {
		t.Errorf("low intensity color = %q", color)
	}
}

func TestBuildSummaryText(t *testing.T) {
	if got := buildSummaryText(nil, 1); !strings.Contains(got, "in progress") {
		t.Errorf("unexpected placeholder %q", got)
	}

	result := &output.JSONOutput{
		Sort: &output.SortResult{
			Input:      "keys.txt",
			Keys:       12345,
			MaxKey:     255,
			BitWidth:   8,
			Parameters: output.SortParameters{NumDigits: 2, TeamSize: 4},
			Chunks:     []output.ChunkInfo{{Shift: 0, Width: 4}, {Shift: 4, Width: 4}},
			Sorted:     true,
		},
	}
	got := buildSummaryText(result, 2)
	for _, want := range []string{"12,345", "keys.txt", "[0,4) [4,8)", "sorted"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}
