package testutil

import (
	"math/rand"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
)

// RandomKeys returns n seeded pseudo-random keys in [0, bound).
func RandomKeys(seed int64, n int, bound int64) []uint64 {
	rng := rand.New(rand.NewSource(seed))
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(rng.Int63n(bound))
	}
	return keys
}

// RandomKeys32 is RandomKeys for 32-bit keys over the full range.
func RandomKeys32(seed int64, n int) []uint32 {
	rng := rand.New(rand.NewSource(seed))
	keys := make([]uint32, n)
	for i := range keys {
		keys[i] = rng.Uint32()
	}
	return keys
}

// GenerateKeyFile writes one key per line into a temporary file, with a
// comment header and a blank line mixed in like hand-edited inputs.
// Returns the file path and a cleanup function.
func GenerateKeyFile(t *testing.T, keys []uint64) (string, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_keys_*.txt")
	if err != nil {
		t.Fatalf("Failed to create temp key file: %v", err)
	}

	var content strings.Builder
	content.WriteString("# generated keys\n\n")
	for _, k := range keys {
		content.WriteString(strconv.FormatUint(k, 10))
		content.WriteString("\n")
	}

	if _, err := tmpFile.WriteString(content.String()); err != nil {
		t.Fatalf("Failed to write to temp key file: %v", err)
	}

	tmpFile.Close()

	cleanup := func() {
		os.Remove(tmpFile.Name())
	}

	return tmpFile.Name(), cleanup
}

// AssertSortedPermutation fails the test unless got is the ascending
// rearrangement of input.
func AssertSortedPermutation[K uint8 | uint16 | uint32 | uint64 | uint](t *testing.T, input, got []K) {
	t.Helper()

	if len(got) != len(input) {
		t.Fatalf("length changed: got %d, expected %d", len(got), len(input))
	}
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("not sorted at index %d: %d < %d", i, got[i], got[i-1])
		}
	}
	expected := slices.Clone(input)
	slices.Sort(expected)
	if !slices.Equal(got, expected) {
		t.Fatalf("result is not a permutation of the input")
	}
}

// TempFilePath returns a cross-platform temporary file path
// with the given pattern. Does not create the file.
func TempFilePath(t *testing.T, pattern string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	path := tmpFile.Name()
	tmpFile.Close()
	os.Remove(path) // Remove immediately, just need the path

	return path
}
