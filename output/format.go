package output

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatNumber renders n with thousands separators
func FormatNumber(n int) string {
	s := strconv.Itoa(n)
	var sb strings.Builder
	if n < 0 {
		sb.WriteByte('-')
		s = s[1:]
	}
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// FormatPlain renders the document for --plain
func (j *JSONOutput) FormatPlain() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s) finished in %d ms\n", j.Metadata.Command, j.Metadata.Version, j.Metadata.DurationMS)

	if s := j.Sort; s != nil {
		mode := "parallel"
		if s.Parameters.Sequential {
			mode = "sequential"
		}
		fmt.Fprintf(&sb, "sorted %s keys (%s, %d digits, team %d), sorted=%t\n",
			FormatNumber(s.Keys), mode, s.Parameters.NumDigits, s.Parameters.TeamSize, s.Sorted)
		fmt.Fprintf(&sb, "max key %d, %d bits\n", s.MaxKey, s.BitWidth)
		for i, c := range s.Chunks {
			fmt.Fprintf(&sb, "  digit %d: bits [%d,%d)\n", i, c.Shift, c.Shift+c.Width)
		}
		if s.Output != "" {
			fmt.Fprintf(&sb, "written to %s\n", s.Output)
		}
	}
	if v := j.Verify; v != nil {
		fmt.Fprintf(&sb, "verify: %s keys below %s, %d digits, team %d: sorted=%t permutation=%t\n",
			FormatNumber(v.Keys), FormatNumber(int(v.Bound)), v.Parameters.NumDigits, v.Parameters.TeamSize, v.Sorted, v.Permutation)
	}
	if m := j.Max; m != nil {
		fmt.Fprintf(&sb, "max of %s keys, team %d: parallel=%d sequential=%d agree=%t\n",
			FormatNumber(m.Keys), m.TeamSize, m.Parallel, m.Sequential, m.Agree)
	}
	if m := j.MatMul; m != nil {
		fmt.Fprintf(&sb, "matmul %dx%d, team %d\n", m.N, m.N, m.TeamSize)
		for _, v := range m.Variants {
			fmt.Fprintf(&sb, "  %-20s max error %.3g agree=%t\n", v.Name, v.MaxAbsError, v.Agree)
		}
	}
	for _, p := range j.Passes {
		fmt.Fprintf(&sb, "pass %d bits [%d,%d) %s: %d/%d buckets used, largest %s\n",
			p.Pass, p.Shift, p.Shift+p.Width, p.Direction, p.UsedBuckets, p.Buckets, FormatNumber(p.LargestCount))
	}
	if s := j.Serve; s != nil {
		fmt.Fprintf(&sb, "serve :%s batch %d: %s keys sorted in %d ms (%s keys total, %d events rejected)\n",
			s.Port, s.Batches, FormatNumber(s.LastBatchKeys), s.LastSortMS, FormatNumber(s.Keys), s.RejectedEvents)
	}
	for _, w := range j.Warnings {
		fmt.Fprintf(&sb, "warning [%s]: %s\n", w.Type, w.Message)
	}
	for _, e := range j.Errors {
		fmt.Fprintf(&sb, "error [%s]: %s\n", e.Type, e.Message)
	}
	return sb.String()
}
