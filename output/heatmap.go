package output

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/ingla/pram/radix"
)

// MaxPlotBuckets caps the columns of one heatmap. Wider digits are folded
// into groups of adjacent buckets.
const MaxPlotBuckets = 256

// PlotCountTable writes an interactive page with one heatmap per pass of the
// (worker x digit bucket) count table.
func PlotCountTable(passes []radix.PassSnapshot, filename string) error {
	if len(passes) == 0 {
		return fmt.Errorf("no passes to plot")
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	for _, s := range passes {
		page.AddCharts(passHeatmap(s))
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create heatmap file %s: %w", filename, err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("rendering heatmap: %w", err)
	}
	return nil
}

// GroupBuckets sums every group adjacent buckets of row into one column.
func GroupBuckets(row []int, group int) []int {
	out := make([]int, (len(row)+group-1)/group)
	for v, c := range row {
		out[v/group] += c
	}
	return out
}

// GroupSize is the smallest group that folds radix buckets into MaxPlotBuckets columns.
func GroupSize(buckets int) int {
	return max(1, (buckets+MaxPlotBuckets-1)/MaxPlotBuckets)
}

func passHeatmap(s radix.PassSnapshot) *charts.HeatMap {
	group := GroupSize(s.Chunk.Radix())
	columns := (s.Chunk.Radix() + group - 1) / group

	// Prepare data with hover info
	var heatmapData []opts.HeatMapData
	var maxCount int
	for w, hist := range s.Histograms {
		for x, count := range GroupBuckets(hist, group) {
			if count > maxCount {
				maxCount = count
			}
			if count > 0 {
				label := fmt.Sprintf("worker %d, digits %d..%d", w, x*group, (x+1)*group-1)
				heatmapData = append(heatmapData, opts.HeatMapData{
					Value: [3]interface{}{x, w, count},
					Name:  label, // This appears in tooltip via {b}
				})
			}
		}
	}

	heatmap := charts.NewHeatMap()
	heatmap.SetGlobalOptions(
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(false),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Width:           "90vw",
			Height:          "60vh",
			Theme:           types.ThemeVintage,
			BackgroundColor: "transparent",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Pass %d: %s", s.Pass, s.Chunk),
			Subtitle: fmt.Sprintf("%d buckets per column", group),
			Left:     "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Trigger: "item",
			Formatter: opts.FuncOpts(`function (params) {
		return params.name + '<br />Count: ' + params.value[2];
	}`),
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show: opts.Bool(true),
			Min:  0,
			Max:  float32(maxCount),
			InRange: &opts.VisualMapInRange{
				Color: []string{"#ffff8f", "#ff0000", "#000000"},
			},
			Orient: "vertical",
			Right:  "2%",
			Top:    "middle",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "Digit bucket",
			Type: "category",
			Data: makeRange(0, columns-1),
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "Worker",
			Type: "category",
			Data: makeRange(0, len(s.Histograms)-1),
		}),
	)

	heatmap.AddSeries(fmt.Sprintf("Pass %d", s.Pass), heatmapData)
	return heatmap
}

// makeRange creates an integer slice [min..max]
func makeRange(min, max int) []int {
	if max < min {
		return []int{}
	}
	r := make([]int, max-min+1)
	for i := range r {
		r[i] = min + i
	}
	return r
}
