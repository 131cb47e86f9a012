package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ingla/pram/partition"
	"github.com/ingla/pram/radix"
	"github.com/ingla/pram/testutil"
)

func TestJSONOutput_ToJSON(t *testing.T) {
	out := NewJSONOutput("sort", time.Now())
	out.Sort = &SortResult{
		Input:      "/tmp/keys.txt",
		Parameters: SortParameters{NumDigits: 3, TeamSize: 2},
		Keys:       5,
		MaxKey:     10,
		BitWidth:   4,
		Chunks:     Chunks([]radix.Chunk{{Width: 1}, {Width: 1, Shift: 1}, {Width: 2, Shift: 2}}),
		Sorted:     true,
	}
	out.AddWarning("parse_error", "some lines failed to parse", 42)

	data, err := out.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	meta := doc["metadata"].(map[string]any)
	if meta["command"] != "sort" {
		t.Errorf("command = %v, want sort", meta["command"])
	}
	sort := doc["sort"].(map[string]any)
	if sort["keys"].(float64) != 5 {
		t.Errorf("keys = %v, want 5", sort["keys"])
	}
	chunks := sort["chunks"].([]any)
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	last := chunks[2].(map[string]any)
	if last["shift"].(float64) != 2 || last["width"].(float64) != 2 {
		t.Errorf("last chunk = %v, want shift 2 width 2", last)
	}
	for _, absent := range []string{"verify", "max", "matmul", "passes", "serve"} {
		if _, ok := doc[absent]; ok {
			t.Errorf("unused section %q should be omitted", absent)
		}
	}
	if len(doc["warnings"].([]any)) != 1 {
		t.Errorf("expected one warning, got %v", doc["warnings"])
	}

	compact, err := out.ToCompactJSON()
	if err != nil {
		t.Fatalf("ToCompactJSON() error: %v", err)
	}
	if strings.Contains(string(compact), "\n") {
		t.Error("compact JSON contains newlines")
	}
}

func TestJSONOutput_AddWarning_Concurrent(t *testing.T) {
	out := NewJSONOutput("serve", time.Now())

	const goroutines = 10
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			out.AddWarning("concurrent", fmt.Sprintf("warning from goroutine %d", id), id)
		}(i)
	}
	wg.Wait()

	if len(out.Warnings) != goroutines {
		t.Errorf("len(Warnings) = %d, want %d", len(out.Warnings), goroutines)
	}

	// Verify all goroutine IDs are represented
	seen := make(map[int]bool)
	for _, w := range out.Warnings {
		seen[w.Count] = true
	}
	for i := 0; i < goroutines; i++ {
		if !seen[i] {
			t.Errorf("missing warning from goroutine %d", i)
		}
	}
}

func TestJSONOutput_AddError_Concurrent(t *testing.T) {
	out := NewJSONOutput("serve", time.Now())

	const goroutines = 10
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			out.AddError("concurrent", fmt.Sprintf("error from goroutine %d", id), id)
		}(i)
	}
	wg.Wait()

	if len(out.Errors) != goroutines {
		t.Errorf("len(Errors) = %d, want %d", len(out.Errors), goroutines)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input int
		want  string
	}{
		{0, "0"},
		{1, "1"},
		{999, "999"},
		{1000, "1,000"},
		{123456, "123,456"},
		{1234567, "1,234,567"},
		{-1234, "-1,234"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.input), func(t *testing.T) {
			got := FormatNumber(tt.input)
			if got != tt.want {
				t.Errorf("FormatNumber(%d) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatPlain(t *testing.T) {
	out := NewJSONOutput("max", time.Now())
	out.Max = &MaxResult{Keys: 1000, TeamSize: 4, Sequential: 99, Parallel: 99, Agree: true}
	out.AddError("io", "disk full", 0)

	text := out.FormatPlain()
	for _, want := range []string{"max of 1,000 keys", "agree=true", "error [io]: disk full"} {
		if !strings.Contains(text, want) {
			t.Errorf("plain output missing %q:\n%s", want, text)
		}
	}
}

func TestSummarizePass(t *testing.T) {
	s := radix.PassSnapshot{
		Pass:       1,
		Chunk:      radix.Chunk{Width: 2, Shift: 4},
		Partitions: []partition.Range{{Worker: 0, Start: 0, Stop: 3}, {Worker: 1, Start: 3, Stop: 7}},
		Totals:     []int{0, 5, 2, 0},
	}
	p := SummarizePass(s)
	if p.Buckets != 4 || p.UsedBuckets != 2 || p.LargestCount != 5 {
		t.Errorf("unexpected bucket summary %+v", p)
	}
	if p.WorkerKeys[0] != 3 || p.WorkerKeys[1] != 4 {
		t.Errorf("worker keys = %v, want [3 4]", p.WorkerKeys)
	}
	if p.Direction != "scratch -> keys" {
		t.Errorf("odd pass direction = %q", p.Direction)
	}
}

func TestBucketGroups(t *testing.T) {
	if g := GroupSize(16); g != 1 {
		t.Errorf("GroupSize(16) = %d, want 1", g)
	}
	if g := GroupSize(1 << 12); g != 16 {
		t.Errorf("GroupSize(4096) = %d, want 16", g)
	}

	row := make([]int, 1<<12)
	for i := range row {
		row[i] = 1
	}
	groups := GroupBuckets(row, GroupSize(len(row)))
	if len(groups) != MaxPlotBuckets {
		t.Fatalf("got %d groups, want %d", len(groups), MaxPlotBuckets)
	}
	for i, c := range groups {
		if c != 16 {
			t.Fatalf("group %d = %d, want 16", i, c)
		}
	}
}

func TestPlotCountTable(t *testing.T) {
	var passes []radix.PassSnapshot
	keys := testutil.RandomKeys(1, 2000, 1<<14)
	err := radix.SortContext(context.Background(), keys, radix.Options{
		NumDigits: 2,
		TeamSize:  3,
		Observer:  func(s radix.PassSnapshot) { passes = append(passes, s) },
	})
	if err != nil {
		t.Fatalf("SortContext returned error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "passes.html")
	if err := PlotCountTable(passes, path); err != nil {
		t.Fatalf("PlotCountTable returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading plot: %v", err)
	}
	if !strings.Contains(string(data), "Pass 1") {
		t.Error("plot is missing the second pass")
	}

	if err := PlotCountTable(nil, path); err == nil {
		t.Error("expected error for empty pass list")
	}
}

func BenchmarkFormatNumber(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		FormatNumber(1234567)
	}
}

func BenchmarkToJSON(b *testing.B) {
	out := NewJSONOutput("sort", time.Now())
	out.Sort = &SortResult{Keys: 1000000, Parameters: SortParameters{NumDigits: 2, TeamSize: 8}}
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		out.ToJSON()
	}
}
