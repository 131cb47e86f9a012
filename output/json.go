package output

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ingla/pram/radix"
	"github.com/ingla/pram/version"
)

// JSONOutput represents the complete output document of one command
type JSONOutput struct {
	Metadata Metadata      `json:"metadata"`
	Sort     *SortResult   `json:"sort,omitempty"`
	Verify   *VerifyResult `json:"verify,omitempty"`
	Max      *MaxResult    `json:"max,omitempty"`
	MatMul   *MatMulResult `json:"matmul,omitempty"`
	Passes   []PassSummary `json:"passes,omitempty"`
	Serve    *ServeStats   `json:"serve,omitempty"`
	Warnings []Warning     `json:"warnings"`
	Errors   []Error       `json:"errors"`

	// Mutex for thread-safe warning/error appending
	mu sync.Mutex `json:"-"`
}

// Metadata contains information about the run
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	Command     string    `json:"command"`
	Version     string    `json:"version"`
	DurationMS  int64     `json:"duration_ms"`
}

// SortParameters describes how a sort was run
type SortParameters struct {
	NumDigits  int  `json:"num_digits"`
	TeamSize   int  `json:"team_size"`
	Sequential bool `json:"sequential,omitempty"`
}

// SortResult describes one sorted key array
type SortResult struct {
	Input      string         `json:"input,omitempty"`
	Output     string         `json:"output,omitempty"`
	Parameters SortParameters `json:"parameters"`
	Keys       int            `json:"keys"`
	SkippedIn  int            `json:"skipped_lines,omitempty"`
	MaxKey     uint64         `json:"max_key"`
	BitWidth   uint           `json:"bit_width"`
	Chunks     []ChunkInfo    `json:"chunks,omitempty"`
	Sorted     bool           `json:"sorted"`
}

// ChunkInfo is one digit of the plan
type ChunkInfo struct {
	Shift uint `json:"shift"`
	Width uint `json:"width"`
}

// VerifyResult is the outcome of the self-check
type VerifyResult struct {
	Seed        int64          `json:"seed"`
	Keys        int            `json:"keys"`
	Bound       int64          `json:"bound"`
	Parameters  SortParameters `json:"parameters"`
	Sorted      bool           `json:"sorted"`
	Permutation bool           `json:"permutation"`
}

// MaxResult compares parallel and sequential maximum finding
type MaxResult struct {
	Keys       int    `json:"keys"`
	TeamSize   int    `json:"team_size"`
	Sequential uint64 `json:"sequential"`
	Parallel   uint64 `json:"parallel"`
	Agree      bool   `json:"agree"`
}

// MatMulResult lists every multiplication variant against the sequential product
type MatMulResult struct {
	N        int             `json:"n"`
	TeamSize int             `json:"team_size"`
	Variants []MatMulVariant `json:"variants"`
}

// MatMulVariant is the agreement of one variant
type MatMulVariant struct {
	Name        string  `json:"name"`
	MaxAbsError float64 `json:"max_abs_error"`
	Agree       bool    `json:"agree"`
}

// PassSummary is the compact form of one recorded pass
type PassSummary struct {
	Pass         int    `json:"pass"`
	Shift        uint   `json:"shift"`
	Width        uint   `json:"width"`
	Buckets      int    `json:"buckets"`
	UsedBuckets  int    `json:"used_buckets"`
	LargestCount int    `json:"largest_bucket"`
	WorkerKeys   []int  `json:"worker_keys"`
	Direction    string `json:"direction"`
}

// ServeStats contains statistics for serve mode
type ServeStats struct {
	Port           string `json:"port"`
	Batches        int    `json:"batches"`
	Keys           int    `json:"keys"`
	RejectedEvents int    `json:"rejected_events"`
	LastBatchKeys  int    `json:"last_batch_keys"`
	LastSortMS     int64  `json:"last_sort_ms"`
}

// Warning represents a warning message
type Warning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// Error represents an error message
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// NewJSONOutput creates a new JSONOutput with default metadata
func NewJSONOutput(command string, startTime time.Time) *JSONOutput {
	return &JSONOutput{
		Metadata: Metadata{
			GeneratedAt: time.Now().UTC(),
			Command:     command,
			Version:     version.Version,
			DurationMS:  time.Since(startTime).Milliseconds(),
		},
		Warnings: []Warning{},
		Errors:   []Error{},
	}
}

// ToJSON converts the output to pretty-printed JSON
func (j *JSONOutput) ToJSON() ([]byte, error) {
	return json.MarshalIndent(j, "", "  ")
}

// ToCompactJSON converts the output to compact JSON
func (j *JSONOutput) ToCompactJSON() ([]byte, error) {
	return json.Marshal(j)
}

// AddWarning adds a warning to the output (thread-safe)
func (j *JSONOutput) AddWarning(warningType, message string, count int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Warnings = append(j.Warnings, Warning{
		Type:    warningType,
		Message: message,
		Count:   count,
	})
}

// AddError adds an error to the output (thread-safe)
func (j *JSONOutput) AddError(errorType, message string, count int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Errors = append(j.Errors, Error{
		Type:    errorType,
		Message: message,
		Count:   count,
	})
}

// UpdateDuration updates the duration in metadata
func (j *JSONOutput) UpdateDuration(startTime time.Time) {
	j.Metadata.DurationMS = time.Since(startTime).Milliseconds()
}

// Chunks converts a digit plan for output
func Chunks(plan []radix.Chunk) []ChunkInfo {
	out := make([]ChunkInfo, len(plan))
	for i, c := range plan {
		out[i] = ChunkInfo{Shift: c.Shift, Width: c.Width}
	}
	return out
}

// SummarizePass reduces a pass snapshot to what fits in a report
func SummarizePass(s radix.PassSnapshot) PassSummary {
	p := PassSummary{
		Pass:       s.Pass,
		Shift:      s.Chunk.Shift,
		Width:      s.Chunk.Width,
		Buckets:    len(s.Totals),
		WorkerKeys: make([]int, len(s.Partitions)),
		Direction:  "keys -> scratch",
	}
	if s.Pass%2 == 1 {
		p.Direction = "scratch -> keys"
	}
	for _, c := range s.Totals {
		if c > 0 {
			p.UsedBuckets++
		}
		if c > p.LargestCount {
			p.LargestCount = c
		}
	}
	for i, r := range s.Partitions {
		p.WorkerKeys[i] = r.Len()
	}
	return p
}
