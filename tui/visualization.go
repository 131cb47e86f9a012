package tui

import (
	"fmt"
	"strings"

	"github.com/ingla/pram/output"
	"github.com/ingla/pram/radix"
	"github.com/ingla/pram/trace"
	"github.com/rivo/tview"
)

// DefaultColumns is the heat row width used before the view knows its size
const DefaultColumns = 64

// PassView renders the count table of one recorded pass as a heat map with
// one row per worker and a totals row.
type PassView struct {
	view     *tview.TextView
	recorder *trace.Recorder
	cache    *VisualizationCache
	current  int
}

// NewPassView creates a view over the passes held by recorder
func NewPassView(recorder *trace.Recorder) *PassView {
	v := &PassView{
		recorder: recorder,
		cache:    NewVisualizationCache(),
	}
	v.view = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	v.view.SetBorder(true).SetTitle(" Count Table ").SetTitleAlign(tview.AlignLeft)
	return v
}

// Render redraws the current pass. It must run on the UI goroutine.
func (v *PassView) Render() {
	total := v.recorder.Len()
	if total == 0 {
		v.view.SetText("[yellow]Waiting for the first pass...[white]")
		return
	}
	if v.current >= total {
		v.current = total - 1
	}

	s, ok := v.recorder.Pass(v.current)
	if !ok {
		v.view.SetText(fmt.Sprintf("[red]Pass %d not recorded[white]", v.current))
		return
	}

	columns := DefaultColumns
	if _, _, width, _ := v.view.GetInnerRect(); width > 16 {
		columns = width - 16
	}
	v.view.SetText(v.cache.Get(s.Pass, columns, func() string {
		return renderPass(s, columns)
	}))
	v.view.SetTitle(fmt.Sprintf(" Count Table: pass %d/%d ", v.current+1, total))
	v.view.ScrollToBeginning()
}

// NextPass moves to the next recorded pass
func (v *PassView) NextPass() {
	if total := v.recorder.Len(); total > 0 {
		v.current = (v.current + 1) % total
		v.Render()
	}
}

// PrevPass moves to the previous recorded pass
func (v *PassView) PrevPass() {
	if total := v.recorder.Len(); total > 0 {
		v.current = (v.current - 1 + total) % total
		v.Render()
	}
}

// Current is the index of the displayed pass
func (v *PassView) Current() int {
	return v.current
}

// Reset goes back to the first pass and forgets every rendered pass
func (v *PassView) Reset() {
	v.current = 0
	v.cache.Clear()
}

// GetView returns the tview component
func (v *PassView) GetView() *tview.TextView {
	return v.view
}

// foldColumns picks the bucket group so that radix buckets fit in columns
func foldColumns(radixSize, columns int) int {
	group := output.GroupSize(radixSize)
	if columns > 0 {
		group = max(group, (radixSize+columns-1)/columns)
	}
	return group
}

// renderPass draws one snapshot. Row w is worker w's local histogram, the last
// row is the global one. Cell intensity is relative to the largest cell of
// the rows it belongs to.
func renderPass(s radix.PassSnapshot, columns int) string {
	var content strings.Builder

	group := foldColumns(s.Chunk.Radix(), columns)
	summary := output.SummarizePass(s)
	fmt.Fprintf(&content, "[white::b]Pass %d[white::-]  %s  radix %d  %s\n",
		s.Pass, s.Chunk, s.Chunk.Radix(), summary.Direction)
	fmt.Fprintf(&content, "[dim]%d buckets per cell, %d of %d buckets used, largest %s keys[white]\n\n",
		group, summary.UsedBuckets, summary.Buckets, output.FormatNumber(summary.LargestCount))

	rows := make([][]int, len(s.Histograms))
	var maxLocal int
	for w, hist := range s.Histograms {
		rows[w] = output.GroupBuckets(hist, group)
		for _, c := range rows[w] {
			maxLocal = max(maxLocal, c)
		}
	}
	totals := output.GroupBuckets(s.Totals, group)
	var maxTotal int
	for _, c := range totals {
		maxTotal = max(maxTotal, c)
	}

	for w, row := range rows {
		fmt.Fprintf(&content, "w%-3d", w)
		writeHeatRow(&content, row, maxLocal)
		if w < len(s.Partitions) {
			r := s.Partitions[w]
			fmt.Fprintf(&content, " [%d,%d)", r.Start, r.Stop)
		}
		content.WriteString("\n")
	}
	content.WriteString("all ")
	writeHeatRow(&content, totals, maxTotal)
	content.WriteString("\n\n")

	content.WriteString("[dim]low [white]")
	for i := 0; i <= 10; i++ {
		color, char := heatColorAndChar(float64(i) / 10)
		fmt.Fprintf(&content, "[%s]%s", color, char)
	}
	content.WriteString("[white] [dim]high[white]\n")

	return content.String()
}

func writeHeatRow(content *strings.Builder, row []int, maxCount int) {
	for _, c := range row {
		intensity := 0.0
		if maxCount > 0 {
			intensity = float64(c) / float64(maxCount)
		}
		color, char := heatColorAndChar(intensity)
		fmt.Fprintf(content, "[%s]%s", color, char)
	}
	content.WriteString("[white]")
}

// heatColorAndChar returns color and character for a cell intensity
// 10-level progression with 10% resolution
func heatColorAndChar(intensity float64) (string, string) {
	switch {
	case intensity >= 0.9:
		return "white", "█"
	case intensity >= 0.8:
		return "#E0E0E0", "█"
	case intensity >= 0.7:
		return "#C0C0C0", "█"
	case intensity >= 0.6:
		return "#A0A0A0", "█"
	case intensity >= 0.5:
		return "#808080", "█"
	case intensity >= 0.4:
		return "#606060", "█"
	case intensity >= 0.3:
		return "#505050", "█"
	case intensity >= 0.2:
		return "#404040", "█"
	case intensity >= 0.1:
		return "#303030", "█"
	case intensity > 0:
		return "#202020", "▒"
	default:
		return "black", "·"
	}
}

// renderWorkers lists the partition of every worker in pass s
func renderWorkers(s radix.PassSnapshot) string {
	var content strings.Builder
	summary := output.SummarizePass(s)
	for w, r := range s.Partitions {
		var used int
		if w < len(s.Histograms) {
			for _, c := range s.Histograms[w] {
				if c > 0 {
					used++
				}
			}
		}
		fmt.Fprintf(&content, "[yellow]worker %d[white]  [%d,%d)  %s keys  %d buckets\n",
			w, r.Start, r.Stop, output.FormatNumber(summary.WorkerKeys[w]), used)
	}
	return content.String()
}
