package gui

import (
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"jordanella.com/rps-autoplay/internal/database"
)

// RunLister is the part of the database the history panel reads
type RunLister interface {
	RecentRuns(limit int) ([]database.RunSummary, error)
}

var historyHeaders = []string{"Started", "Mode", "Outcome", "Draws", "W/L/D", "Fallback", "Duration"}

// HistoryPanel lists recent runs
type HistoryPanel struct {
	db    RunLister
	limit int

	mu   sync.RWMutex
	rows [][]string

	table  *widget.Table
	status *widget.Label
}

// NewHistoryPanel creates a panel showing up to limit runs. db may be nil.
func NewHistoryPanel(db RunLister, limit int) *HistoryPanel {
	return &HistoryPanel{db: db, limit: limit}
}

// Build constructs the history table
func (h *HistoryPanel) Build() fyne.CanvasObject {
	h.status = widget.NewLabel("")
	refreshBtn := widget.NewButton("Refresh", func() { h.Refresh() })

	h.table = widget.NewTable(
		func() (int, int) {
			h.mu.RLock()
			defer h.mu.RUnlock()
			return len(h.rows) + 1, len(historyHeaders)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("template")
		},
		func(id widget.TableCellID, cell fyne.CanvasObject) {
			label := cell.(*widget.Label)
			if id.Row == 0 {
				label.TextStyle = fyne.TextStyle{Bold: true}
				label.SetText(historyHeaders[id.Col])
				return
			}
			label.TextStyle = fyne.TextStyle{}
			h.mu.RLock()
			defer h.mu.RUnlock()
			if id.Row-1 < len(h.rows) {
				label.SetText(h.rows[id.Row-1][id.Col])
			}
		},
	)
	for col, width := range []float32{150, 80, 110, 60, 80, 70, 80} {
		h.table.SetColumnWidth(col, width)
	}

	h.Refresh()

	return container.NewBorder(
		container.NewHBox(refreshBtn, h.status),
		nil, nil, nil,
		h.table,
	)
}

// Refresh reloads rows from the database. Call on the main thread.
func (h *HistoryPanel) Refresh() {
	if h.db == nil {
		h.setStatus("history unavailable")
		return
	}
	runs, err := h.db.RecentRuns(h.limit)
	if err != nil {
		h.setStatus(fmt.Sprintf("failed to load history: %v", err))
		return
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, historyRow(r))
	}

	h.mu.Lock()
	h.rows = rows
	h.mu.Unlock()

	h.setStatus(fmt.Sprintf("%d runs", len(rows)))
	if h.table != nil {
		h.table.Refresh()
	}
}

func (h *HistoryPanel) setStatus(text string) {
	if h.status != nil {
		h.status.SetText(text)
	}
}

func historyRow(r database.RunSummary) []string {
	fallback := ""
	if r.UsedFallback {
		fallback = "yes"
	}
	outcome := r.Outcome
	if r.ErrorMessage != nil && *r.ErrorMessage != "" {
		outcome += " (!)"
	}
	return []string{
		r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		r.Mode,
		outcome,
		fmt.Sprintf("%d", r.DrawCount),
		fmt.Sprintf("%d/%d/%d", r.Wins, r.Losses, r.Draws),
		fallback,
		formatDuration(r.Duration()),
	}
}

// formatDuration renders d as 1h02m03s, 2m05s or 9s
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
