// Package keyio reads and writes key files: one unsigned integer or dotted
// IPv4 address per line, with '#' comment lines.
package keyio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ingla/pram/iputils"
)

// Format selects how keys are written
type Format int

const (
	Decimal Format = iota
	IPv4
)

// ParseFormat maps a flag value to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "decimal", "dec":
		return Decimal, nil
	case "ipv4", "ip":
		return IPv4, nil
	}
	return Decimal, fmt.Errorf("unknown key format %q (expected decimal or ipv4)", s)
}

// Stats describes what a read skipped
type Stats struct {
	Lines   int
	Skipped int
	// AllIPv4 is set when every key was written as an address
	AllIPv4 bool
}

// ParseKey parses a single key: a base-10 unsigned integer or an IPv4 address
func ParseKey(s string) (uint64, bool, error) {
	s = strings.TrimSpace(s)
	if k, ok := iputils.ParseKey(s); ok {
		return uint64(k), true, nil
	}
	k, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid key %q", s)
	}
	return k, false, nil
}

// ReadKeys reads keys line by line. Blank lines and lines starting with '#'
// are ignored; invalid lines are reported on stderr and skipped.
func ReadKeys(r io.Reader) ([]uint64, Stats, error) {
	var keys []uint64
	stats := Stats{AllIPv4: true}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		stats.Lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		k, isIP, err := ParseKey(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", stats.Lines, err)
			stats.Skipped++
			continue
		}
		stats.AllIPv4 = stats.AllIPv4 && isIP
		keys = append(keys, k)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, err
	}
	if len(keys) == 0 {
		stats.AllIPv4 = false
	}
	return keys, stats, nil
}

// ReadKeyFile reads a key file, see ReadKeys
func ReadKeyFile(filename string) ([]uint64, Stats, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("opening key file %s: %w", filename, err)
	}
	defer file.Close()

	keys, stats, err := ReadKeys(file)
	if err != nil {
		return nil, stats, fmt.Errorf("reading key file %s: %w", filename, err)
	}
	return keys, stats, nil
}

// WriteKeys writes keys one per line after a generated-file header
func WriteKeys(w io.Writer, keys []uint64, format Format) error {
	bw := bufio.NewWriter(w)
	modificationTime := time.Now().Format("2006-01-02 15:04:05")
	if _, err := fmt.Fprintf(bw, "# This file was generated automatically. Last modification %s\n", modificationTime); err != nil {
		return err
	}

	for _, k := range keys {
		var line string
		switch format {
		case IPv4:
			if k > 0xFFFFFFFF {
				return fmt.Errorf("key %d does not fit an IPv4 address", k)
			}
			line = iputils.KeyString(uint32(k))
		default:
			line = strconv.FormatUint(k, 10)
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteKeyFile writes keys to filename, replacing it
func WriteKeyFile(filename string, keys []uint64, format Format) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteKeys(file, keys, format); err != nil {
		file.Close()
		return fmt.Errorf("writing key file %s: %w", filename, err)
	}
	return file.Close()
}
