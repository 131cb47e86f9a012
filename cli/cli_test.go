package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/ingla/pram/config"
	"github.com/ingla/pram/ingestor"
	"github.com/ingla/pram/keyio"
	"github.com/ingla/pram/output"
	"github.com/ingla/pram/radix"
	"github.com/ingla/pram/testutil"
	"github.com/ingla/pram/trace"
)

// runApp runs the CLI with stdout and stderr captured
func runApp(t *testing.T, args []string) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stdout = w
	os.Stderr = w

	var capturedOutput bytes.Buffer
	done := make(chan bool)
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := r.Read(buf)
			if err != nil {
				break
			}
			capturedOutput.Write(buf[:n])
		}
		done <- true
	}()

	err := App.Run(args)

	w.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr
	<-done
	return capturedOutput.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestSortCommandValidation(t *testing.T) {
	input := writeFile(t, "keys.txt", "10\n3\n1\n4\n8\n")
	outDir := t.TempDir()
	configPath := writeFile(t, "pram.toml", fmt.Sprintf("[sort]\nnumDigits = 3\nteamSize = 2\ninput = %q\n", input))

	tests := []struct {
		name        string
		args        []string
		expectError bool
		errorMatch  string
	}{
		{
			name:        "Valid sort",
			args:        []string{"pram", "sort", "--input", input, "--digits", "3", "--team", "2"},
			expectError: false,
		},
		{
			name:        "Valid sort with output",
			args:        []string{"pram", "sort", "--input", input, "--output", filepath.Join(outDir, "sorted.txt"), "--compact"},
			expectError: false,
		},
		{
			name:        "Sequential plain",
			args:        []string{"pram", "sort", "--input", input, "--sequential", "--plain"},
			expectError: false,
		},
		{
			name:        "Generated keys",
			args:        []string{"pram", "sort", "--generate", "500", "--cidr", "10.0.0.0/8", "--seed", "7", "--team", "3"},
			expectError: false,
		},
		{
			name:        "Config mode",
			args:        []string{"pram", "sort", "--config", configPath, "--compact"},
			expectError: false,
		},
		{
			name:        "Missing input",
			args:        []string{"pram", "sort"},
			expectError: true,
			errorMatch:  "input is required",
		},
		{
			name:        "Nonexistent input",
			args:        []string{"pram", "sort", "--input", "/nonexistent/keys.txt"},
			expectError: true,
			errorMatch:  "does not exist",
		},
		{
			name:        "Too many digits",
			args:        []string{"pram", "sort", "--input", input, "--digits", "5"},
			expectError: true,
			errorMatch:  "numDigits must be between",
		},
		{
			name:        "Negative team",
			args:        []string{"pram", "sort", "--input", input, "--team", "-2"},
			expectError: true,
			errorMatch:  "teamSize must be",
		},
		{
			name:        "Unknown format",
			args:        []string{"pram", "sort", "--input", input, "--format", "hex"},
			expectError: true,
			errorMatch:  "unknown key format",
		},
		{
			name:        "Input and generate",
			args:        []string{"pram", "sort", "--input", input, "--generate", "10"},
			expectError: true,
			errorMatch:  "mutually exclusive",
		},
		{
			name:        "Invalid generate CIDR",
			args:        []string{"pram", "sort", "--generate", "10", "--cidr", "10.0.0.0/33"},
			expectError: true,
			errorMatch:  "invalid CIDR range",
		},
		{
			name:        "Config mode with extra flags",
			args:        []string{"pram", "sort", "--config", configPath, "--digits", "2"},
			expectError: true,
			errorMatch:  "only [compact plain] flags are allowed",
		},
		{
			name:        "Missing config file",
			args:        []string{"pram", "sort", "--config", "/nonexistent/pram.toml"},
			expectError: true,
			errorMatch:  "failed to load config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := runApp(t, tt.args)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none. Output: %s", output)
				} else if tt.errorMatch != "" && !strings.Contains(err.Error(), tt.errorMatch) {
					t.Errorf("Expected error to contain '%s', got: %v. Output: %s", tt.errorMatch, err, output)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v. Output: %s", err, output)
			}
		})
	}
}

func TestSortCommandWritesSortedKeys(t *testing.T) {
	keys := testutil.RandomKeys(11, 3000, 1<<40)
	input, cleanup := testutil.GenerateKeyFile(t, keys)
	defer cleanup()
	out := filepath.Join(t.TempDir(), "sorted.txt")

	stdout, err := runApp(t, []string{"pram", "sort", "--input", input, "--output", out, "--digits", "4", "--team", "5"})
	if err != nil {
		t.Fatalf("sort failed: %v. Output: %s", err, stdout)
	}
	if !strings.Contains(stdout, `"sorted": true`) {
		t.Errorf("summary does not report a sorted result: %s", stdout)
	}

	got, _, err := keyio.ReadKeyFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	testutil.AssertSortedPermutation(t, keys, got)
}

func TestRunSort(t *testing.T) {
	input := writeFile(t, "addrs.txt", "# addresses\n10.0.0.9\n10.0.0.1\n192.168.0.1\nbogus\n10.0.0.5\n")
	out := filepath.Join(t.TempDir(), "sorted.txt")
	cfg := &config.Config{Sort: &config.SortConfig{NumDigits: 2, TeamSize: 3, Input: input, Output: out}}

	result, err := RunSort(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("RunSort returned error: %v", err)
	}
	s := result.Sort
	if s.Keys != 4 || s.SkippedIn != 1 || !s.Sorted {
		t.Errorf("unexpected result %+v", s)
	}
	if s.MaxKey != 0xC0A80001 || s.BitWidth != 32 || len(s.Chunks) != 2 {
		t.Errorf("unexpected key statistics: max %d, width %d, chunks %v", s.MaxKey, s.BitWidth, s.Chunks)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Type != "skipped_lines" {
		t.Errorf("expected one skipped_lines warning, got %+v", result.Warnings)
	}

	// every line was an address, so the output is written as addresses
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	expected := []string{"10.0.0.1", "10.0.0.5", "10.0.0.9", "192.168.0.1"}
	if !slices.Equal(lines, expected) {
		t.Errorf("output lines = %v, expected %v", lines, expected)
	}
}

func TestRunSortGivenKeys(t *testing.T) {
	keys := []uint64{10, 3, 1, 4, 8}
	cfg := &config.Config{Sort: &config.SortConfig{NumDigits: 3, TeamSize: 2, Input: "ignored"}}
	result, err := RunSort(context.Background(), cfg, keys, nil)
	if err != nil {
		t.Fatalf("RunSort returned error: %v", err)
	}
	if !slices.Equal(keys, []uint64{1, 3, 4, 8, 10}) {
		t.Errorf("keys = %v", keys)
	}
	if result.Sort.Input != "" || result.Sort.BitWidth != 4 {
		t.Errorf("unexpected result %+v", result.Sort)
	}
}

func TestRunVerify(t *testing.T) {
	for digits := 1; digits <= 4; digits++ {
		for _, team := range []int{1, 2, 3, 16} {
			t.Run(fmt.Sprintf("digits=%d,team=%d", digits, team), func(t *testing.T) {
				sc := &config.SortConfig{NumDigits: digits, TeamSize: team}
				result, err := RunVerify(context.Background(), sc, 1000, 42)
				if err != nil {
					t.Fatalf("RunVerify returned error: %v", err)
				}
				v := result.Verify
				if !v.Sorted || !v.Permutation || v.Keys != 1000 || v.Bound != VerifyBound {
					t.Errorf("unexpected verify result %+v", v)
				}
			})
		}
	}

	result, err := RunVerify(context.Background(), &config.SortConfig{NumDigits: 2, Sequential: true}, 0, 1)
	if err != nil || !result.Verify.Sorted || !result.Verify.Permutation {
		t.Errorf("empty sequential verify failed: %v, %+v", err, result.Verify)
	}
}

func TestRunMax(t *testing.T) {
	for _, team := range []int{1, 2, 7, 64} {
		t.Run(fmt.Sprintf("team=%d", team), func(t *testing.T) {
			result, err := RunMax(context.Background(), 1000, team, 5)
			if err != nil {
				t.Fatalf("RunMax returned error: %v", err)
			}
			if !result.Max.Agree || result.Max.Parallel != result.Max.Sequential {
				t.Errorf("unexpected max result %+v", result.Max)
			}
		})
	}

	if _, err := RunMax(context.Background(), 10, 0, 5); err == nil {
		t.Error("expected error for team size 0")
	}
}

func TestRunMatMul(t *testing.T) {
	result, err := RunMatMul(context.Background(), 17, 4, 3)
	if err != nil {
		t.Fatalf("RunMatMul returned error: %v", err)
	}
	if len(result.MatMul.Variants) != len(matmulVariants) {
		t.Fatalf("got %d variants, want %d", len(result.MatMul.Variants), len(matmulVariants))
	}
	for _, v := range result.MatMul.Variants {
		if !v.Agree {
			t.Errorf("variant %s differs by %g", v.Name, v.MaxAbsError)
		}
	}
}

func TestRunInspect(t *testing.T) {
	keys := testutil.RandomKeys(2, 2000, 1<<20)
	input, cleanup := testutil.GenerateKeyFile(t, keys)
	defer cleanup()
	plot := filepath.Join(t.TempDir(), "passes.html")

	cfg := &config.Config{
		Sort:    &config.SortConfig{NumDigits: 3, TeamSize: 4, Input: input},
		Inspect: &config.InspectConfig{PlotPath: plot},
	}
	rec := trace.NewRecorder(3, false)
	result, err := runInspect(context.Background(), cfg, rec)
	if err != nil {
		t.Fatalf("runInspect returned error: %v", err)
	}
	if result.Metadata.Command != "inspect" {
		t.Errorf("command = %q", result.Metadata.Command)
	}
	if len(result.Passes) != 3 || rec.Len() != 3 {
		t.Fatalf("recorded %d passes (%d summaries), want 3", rec.Len(), len(result.Passes))
	}
	for i, p := range result.Passes {
		total := 0
		for _, n := range p.WorkerKeys {
			total += n
		}
		if p.Pass != i || total != len(keys) {
			t.Errorf("pass %d summary %+v", i, p)
		}
	}
	if _, err := os.Stat(plot); err != nil {
		t.Errorf("plot not written: %v", err)
	}
}

func TestInspectCommandValidation(t *testing.T) {
	input := writeFile(t, "keys.txt", "5\n2\n")
	tests := []struct {
		name       string
		args       []string
		errorMatch string
	}{
		{"missing input", []string{"pram", "inspect", "--plotPath", "x.html"}, "input is required"},
		{"missing plot and tui", []string{"pram", "inspect", "--input", input}, "plotPath or tui"},
		{"plot directory missing", []string{"pram", "inspect", "--input", input, "--plotPath", "/nonexistent/dir/p.html"}, "plot directory does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.errorMatch) {
				t.Errorf("expected error containing %q, got %v", tt.errorMatch, err)
			}
		})
	}

	plot := filepath.Join(t.TempDir(), "passes.html")
	if out, err := runApp(t, []string{"pram", "inspect", "--input", input, "--plotPath", plot, "--compact"}); err != nil {
		t.Errorf("inspect failed: %v. Output: %s", err, out)
	}
}

func TestOtherCommands(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectError bool
	}{
		{"verify", []string{"pram", "verify", "--size", "500", "--seed", "1", "--team", "3"}, false},
		{"verify plain", []string{"pram", "verify", "--seed", "1", "--plain"}, false},
		{"verify negative size", []string{"pram", "verify", "--size", "-1"}, true},
		{"verify bad digits", []string{"pram", "verify", "--digits", "0"}, true},
		{"max", []string{"pram", "max", "--size", "300", "--team", "4", "--seed", "9"}, false},
		{"max empty", []string{"pram", "max", "--size", "0"}, true},
		{"matmul", []string{"pram", "matmul", "--n", "12", "--team", "3", "--seed", "2"}, false},
		{"matmul bad size", []string{"pram", "matmul", "--n", "0"}, true},
		{"serve bad batch", []string{"pram", "serve", "--batchMax", "0"}, true},
		{"serve config extra flags", []string{"pram", "serve", "--config", "x.toml", "--port", "1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runApp(t, tt.args)
			if (err != nil) != tt.expectError {
				t.Errorf("error = %v, expectError %t. Output: %s", err, tt.expectError, out)
			}
		})
	}
}

type fakeSource struct {
	batches []ingestor.KeyBatch
}

func (f *fakeSource) NextBatch(ctx context.Context) (ingestor.KeyBatch, error) {
	if err := ctx.Err(); err != nil {
		return ingestor.KeyBatch{}, err
	}
	if len(f.batches) == 0 {
		return ingestor.KeyBatch{}, ingestor.ErrClosed
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func TestServeLoop(t *testing.T) {
	out := filepath.Join(t.TempDir(), "batch.txt")
	cfg := &config.Config{
		Sort:  &config.SortConfig{NumDigits: 2, TeamSize: 3},
		Serve: &config.ServeConfig{Port: "5044", BatchMax: 4, Output: out},
	}
	src := &fakeSource{batches: []ingestor.KeyBatch{
		{Keys: []uint64{9, 2, 7}, Events: 3},
		{Keys: []uint64{6, 5, 4, 3, 2, 1}, Events: 2, Rejected: 1},
	}}

	var emitted []*output.JSONOutput
	err := serveLoop(context.Background(), src, cfg, func(o *output.JSONOutput) {
		emitted = append(emitted, o)
	})
	if err != nil {
		t.Fatalf("serveLoop returned error: %v", err)
	}
	if len(emitted) != 2 {
		t.Fatalf("emitted %d documents, want 2", len(emitted))
	}

	first := emitted[0].Serve
	if first.Batches != 1 || first.Keys != 3 || first.LastBatchKeys != 3 {
		t.Errorf("first batch stats %+v", first)
	}
	second := emitted[1]
	if second.Serve.Batches != 2 || second.Serve.Keys != 7 || second.Serve.RejectedEvents != 1 {
		t.Errorf("second batch stats %+v", second.Serve)
	}
	var types []string
	for _, w := range second.Warnings {
		types = append(types, w.Type)
	}
	if !slices.Equal(types, []string{"batch_truncated", "rejected_events"}) {
		t.Errorf("warnings = %v", types)
	}

	got, _, err := keyio.ReadKeyFile(out)
	if err != nil {
		t.Fatalf("reading batch output: %v", err)
	}
	if !slices.Equal(got, []uint64{3, 4, 5, 6}) {
		t.Errorf("last sorted batch = %v", got)
	}
}

func TestServeLoopCancelled(t *testing.T) {
	cfg := &config.Config{
		Sort:  &config.SortConfig{NumDigits: 1, TeamSize: 1},
		Serve: &config.ServeConfig{Port: "5044", BatchMax: 10},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := serveLoop(ctx, &fakeSource{batches: []ingestor.KeyBatch{{Keys: []uint64{1}}}}, cfg, func(*output.JSONOutput) {
		t.Error("nothing should be emitted after cancellation")
	})
	if err != nil {
		t.Errorf("serveLoop returned error: %v", err)
	}
}

func TestCLICommands(t *testing.T) {
	expected := map[string][]string{
		"sort":    {"config", "digits", "team", "sequential", "input", "generate", "output", "format"},
		"verify":  {"digits", "team", "size", "seed"},
		"max":     {"team", "size", "seed"},
		"matmul":  {"n", "team", "seed"},
		"inspect": {"config", "input", "plotPath", "tui"},
		"serve":   {"config", "port", "readTimeout", "batchMax"},
	}

	for name, flags := range expected {
		cmd := App.Command(name)
		if cmd == nil {
			t.Errorf("command %q not found", name)
			continue
		}
		for _, expectedFlag := range flags {
			found := false
			for _, flag := range cmd.Flags {
				if flag.Names()[0] == expectedFlag {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Expected flag '%s' not found in %s command", expectedFlag, name)
			}
		}
	}
}

func TestParseDate(t *testing.T) {
	got := parseDate("2024-06-01T13:45:00Z")
	if got.Year() != 2024 || got.Month() != 6 || got.Day() != 1 {
		t.Errorf("parseDate = %v", got)
	}
	if parseDate("").IsZero() {
		t.Error("parseDate of an empty date should fall back to now")
	}
}

func TestDigitsFlagUsage(t *testing.T) {
	limit := fmt.Sprintf("at most %d key bits", radix.MaxDigitBits)
	if !strings.Contains(digitsFlag.Usage, limit) {
		t.Errorf("digits usage %q does not mention %q", digitsFlag.Usage, limit)
	}
}
