package tui

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/ingla/pram/output"
	"github.com/ingla/pram/trace"
	"github.com/rivo/tview"
)

// App is the pass inspector. It follows a running sort through the
// snapshots of a trace.Recorder and shows the summary once the sort is done.
type App struct {
	app          *tview.Application
	pages        *tview.Pages
	progressView *tview.TextView
	resultsView  *tview.Flex
	passView     *PassView
	statusBar    *tview.TextView

	// Results panels
	summary        *tview.TextView
	workers        *tview.TextView
	focusableItems []tview.Primitive
	currentFocus   int

	recorder  *trace.Recorder
	source    string
	numDigits int
	teamSize  int

	// Shared mutable state protected by mu (accessed from background goroutines)
	mu     sync.Mutex
	result *output.JSONOutput
	sortFn func() (*output.JSONOutput, error)

	sortComplete atomic.Bool
	done         chan struct{}
}

// NewApp creates an inspector for a sort of source with numDigits passes on
// teamSize workers. recorder should be created with notify set.
func NewApp(recorder *trace.Recorder, source string, numDigits, teamSize int) *App {
	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		recorder:  recorder,
		source:    source,
		numDigits: numDigits,
		teamSize:  teamSize,
		done:      make(chan struct{}),
	}
	a.setupUI()
	return a
}

// Start runs sortFn in the background and shows its outcome. Pressing 's'
// after it finished runs it again.
func (a *App) Start(sortFn func() (*output.JSONOutput, error)) {
	a.mu.Lock()
	a.sortFn = sortFn
	a.mu.Unlock()
	go a.runSort(sortFn)
}

func (a *App) runSort(sortFn func() (*output.JSONOutput, error)) {
	result, err := sortFn()
	if err != nil {
		a.ShowError(err.Error())
		return
	}
	a.SetSortResult(result)
}

// rerun drops the recorded passes and starts the sort again. It does nothing
// while a sort is still running.
func (a *App) rerun() bool {
	a.mu.Lock()
	sortFn := a.sortFn
	if sortFn == nil || !a.sortComplete.Load() {
		a.mu.Unlock()
		return false
	}
	a.result = nil
	a.sortComplete.Store(false)
	a.mu.Unlock()

	a.recorder.Reset()
	a.passView.Reset()
	go a.animateProgress()
	go a.runSort(sortFn)
	return true
}

// SetSortResult shows the finished sort
func (a *App) SetSortResult(result *output.JSONOutput) {
	if result == nil {
		return
	}
	a.mu.Lock()
	a.result = result
	a.mu.Unlock()

	a.sortComplete.Store(true)

	a.app.QueueUpdateDraw(func() {
		a.displayResults()
		a.updateStatusBar()
		a.pages.SwitchToPage("results")
	})
}

// ShowError displays an error message in the TUI and stops the progress animation
func (a *App) ShowError(message string) {
	a.sortComplete.Store(true)
	a.app.QueueUpdateDraw(func() {
		a.progressView.SetText(fmt.Sprintf("[red]Error:[white] %s\n\n[yellow]Press 'q' to quit[white]", message))
		a.statusBar.SetText("[red]Sort failed![white] | Press 'q' to quit")
		a.pages.SwitchToPage("progress")
	})
}

// setupUI initializes the user interface
func (a *App) setupUI() {
	a.progressView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false).
		SetWrap(false)
	a.progressView.SetBorder(true).SetTitle(" pram Sort Progress ").SetTitleAlign(tview.AlignCenter)

	a.resultsView = tview.NewFlex().SetDirection(tview.FlexRow)
	a.setupResultsView()

	a.statusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetText("[yellow]Sorting...[white] | Press 'q' to quit")
	a.statusBar.SetBorder(false)

	main := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.progressView, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	results := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.resultsView, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.pages.AddPage("progress", main, true, true)
	a.pages.AddPage("results", results, true, false)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q', 'Q':
			a.app.Stop()
			return nil
		case 'r', 'R':
			if a.recorder.Len() > 0 {
				a.pages.SwitchToPage("results")
				a.displayResults()
				a.updateStatusBar()
			}
			return nil
		case 'p', 'P':
			a.pages.SwitchToPage("progress")
			a.updateStatusBar()
			return nil
		case 's', 'S':
			if a.rerun() {
				a.pages.SwitchToPage("progress")
				a.updateStatusBar()
			}
			return nil
		}

		frontPageName, _ := a.pages.GetFrontPage()
		if frontPageName != "results" {
			return event
		}
		switch event.Key() {
		case tcell.KeyTab:
			a.nextFocus()
			return nil
		case tcell.KeyBacktab:
			a.prevFocus()
			return nil
		case tcell.KeyLeft:
			a.passView.PrevPass()
			a.displayWorkers()
			a.updateStatusBar()
			return nil
		case tcell.KeyRight:
			a.passView.NextPass()
			a.displayWorkers()
			a.updateStatusBar()
			return nil
		case tcell.KeyDown:
			if tv, ok := a.getFocusedItem().(*tview.TextView); ok {
				row, col := tv.GetScrollOffset()
				tv.ScrollTo(row+1, col)
			}
			return nil
		case tcell.KeyUp:
			if tv, ok := a.getFocusedItem().(*tview.TextView); ok {
				row, col := tv.GetScrollOffset()
				if row > 0 {
					tv.ScrollTo(row-1, col)
				}
			}
			return nil
		}
		return event
	})

	a.app.SetRoot(a.pages, true)
}

// setupResultsView creates the results display layout
func (a *App) setupResultsView() {
	a.summary = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	a.summary.SetBorder(true).SetTitle(" Summary ").SetTitleAlign(tview.AlignLeft)

	a.workers = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.workers.SetBorder(true).SetTitle(" Workers ").SetTitleAlign(tview.AlignLeft)

	a.passView = NewPassView(a.recorder)

	a.focusableItems = []tview.Primitive{a.passView.GetView(), a.workers}
	a.currentFocus = 0
	a.updateFocusBorders()

	bottomRow := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.passView.GetView(), 0, 3, false).
		AddItem(a.workers, 0, 1, false)

	a.resultsView.
		AddItem(a.summary, 9, 0, false).
		AddItem(bottomRow, 0, 1, false)
}

// Run starts the TUI application
func (a *App) Run() error {
	go a.animateProgress()
	go a.watchPasses()
	defer close(a.done)
	return a.app.Run()
}

// watchPasses redraws the progress page whenever the recorder takes a snapshot
func (a *App) watchPasses() {
	updates := a.recorder.Updates()
	if updates == nil {
		return
	}
	for {
		select {
		case <-a.done:
			return
		case <-updates:
			a.app.QueueUpdateDraw(func() {
				front, _ := a.pages.GetFrontPage()
				if front == "results" {
					a.passView.Render()
					a.displayWorkers()
				}
				a.updateStatusBar()
			})
		}
	}
}

// animateProgress shows the recorded passes until the sort is done
func (a *App) animateProgress() {
	dots := 0
	for !a.sortComplete.Load() {
		select {
		case <-a.done:
			return
		default:
		}

		content := a.progressText(strings.Repeat(".", dots%4))
		a.app.QueueUpdateDraw(func() {
			a.progressView.SetText(content)
		})

		time.Sleep(200 * time.Millisecond)
		dots++
	}
}

func (a *App) progressText(dots string) string {
	var passes strings.Builder
	recorded := a.recorder.Len()
	for i := 0; i < a.numDigits; i++ {
		switch {
		case i < recorded:
			s, _ := a.recorder.Pass(i)
			fmt.Fprintf(&passes, "[green]✔[white] pass %d  %s\n", i, s.Chunk)
		case i == recorded:
			fmt.Fprintf(&passes, "[yellow]▶[white] pass %d%s\n", i, dots)
		default:
			fmt.Fprintf(&passes, "[dim]  pass %d[white]\n", i)
		}
	}

	return fmt.Sprintf(`
[white::b]pram Radix Sort[white::-]

%s
[dim]Input:[white] %s
[dim]Digits:[white] %d
[dim]Team size:[white] %d

[dim]Press 's' to sort again once done, 'q' to quit[white]
`, passes.String(), a.source, a.numDigits, a.teamSize)
}

func (a *App) displayResults() {
	a.mu.Lock()
	result := a.result
	a.mu.Unlock()

	a.summary.SetText(buildSummaryText(result, a.recorder.Len()))
	a.passView.Render()
	a.displayWorkers()
}

func (a *App) displayWorkers() {
	s, ok := a.recorder.Pass(a.passView.Current())
	if !ok {
		a.workers.SetText("")
		return
	}
	a.workers.SetText(renderWorkers(s))
}

// buildSummaryText renders the sort result, or a placeholder while the sort
// is still running
func buildSummaryText(result *output.JSONOutput, recorded int) string {
	if result == nil || result.Sort == nil {
		return fmt.Sprintf("[yellow]Sort in progress[white], %d passes recorded", recorded)
	}

	s := result.Sort
	var sb strings.Builder
	fmt.Fprintf(&sb, "[white::b]Keys:[white::-] %s", output.FormatNumber(s.Keys))
	if s.Input != "" {
		fmt.Fprintf(&sb, " from %s", s.Input)
	}
	fmt.Fprintf(&sb, "\n[white::b]Max key:[white::-] %d (%d bits)\n", s.MaxKey, s.BitWidth)
	fmt.Fprintf(&sb, "[white::b]Digits:[white::-] %d on %d workers\n", s.Parameters.NumDigits, s.Parameters.TeamSize)

	chunks := make([]string, len(s.Chunks))
	for i, c := range s.Chunks {
		chunks[i] = fmt.Sprintf("[%d,%d)", c.Shift, c.Shift+c.Width)
	}
	fmt.Fprintf(&sb, "[white::b]Chunks:[white::-] %s\n", strings.Join(chunks, " "))

	status := "[green]sorted[white]"
	if !s.Sorted {
		status = "[red]NOT sorted[white]"
	}
	fmt.Fprintf(&sb, "[white::b]Result:[white::-] %s in %d ms, %d passes recorded\n", status, result.Metadata.DurationMS, recorded)
	return sb.String()
}

func (a *App) nextFocus() {
	a.currentFocus = (a.currentFocus + 1) % len(a.focusableItems)
	a.updateFocusBorders()
	a.updateStatusBar()
}

func (a *App) prevFocus() {
	a.currentFocus = (a.currentFocus - 1 + len(a.focusableItems)) % len(a.focusableItems)
	a.updateFocusBorders()
	a.updateStatusBar()
}

func (a *App) getFocusedItem() tview.Primitive {
	if a.currentFocus >= 0 && a.currentFocus < len(a.focusableItems) {
		return a.focusableItems[a.currentFocus]
	}
	return nil
}

func (a *App) updateFocusBorders() {
	for i, item := range a.focusableItems {
		if tv, ok := item.(*tview.TextView); ok {
			if i == a.currentFocus {
				tv.SetBorderColor(tcell.ColorYellow)
			} else {
				tv.SetBorderColor(tcell.ColorDefault)
			}
		}
	}
}

func (a *App) updateStatusBar() {
	frontPageName, _ := a.pages.GetFrontPage()
	recorded := a.recorder.Len()

	if frontPageName != "results" {
		if a.sortComplete.Load() {
			a.statusBar.SetText("[green]Sort complete![white] | 'r' for results, 's' to sort again, 'q' to quit")
		} else {
			a.statusBar.SetText(fmt.Sprintf("[yellow]Sorting...[white] %d/%d passes | 'r' for results, 'q' to quit", recorded, a.numDigits))
		}
		return
	}

	panelNames := []string{"Count Table", "Workers"}
	a.statusBar.SetText(fmt.Sprintf("[green]Pass %d/%d[white] | [yellow]%s[white] focused | ←→: change pass, Tab: panels, ↑↓: scroll, 'p': progress, 's': sort again, 'q': quit",
		a.passView.Current()+1, recorded, panelNames[a.currentFocus]))
}
