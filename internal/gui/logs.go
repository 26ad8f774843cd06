package gui

import (
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"jordanella.com/rps-autoplay/internal/logging"
)

const filterAll = "All"

// LogEntry is one line shown in the log panel
type LogEntry struct {
	Timestamp time.Time
	Level     logging.LogLevel
	Message   string
}

// LogPanel shows forwarded log lines with a level filter
type LogPanel struct {
	logs    []LogEntry
	logsMu  sync.RWMutex
	maxLogs int
	filter  string

	// Widgets
	logList         *widget.List
	filterSelect    *widget.Select
	autoScrollCheck *widget.Check
}

// NewLogPanel creates a panel keeping at most maxLogs lines
func NewLogPanel(maxLogs int) *LogPanel {
	if maxLogs <= 0 {
		maxLogs = 1000
	}
	return &LogPanel{
		logs:    make([]LogEntry, 0, maxLogs),
		maxLogs: maxLogs,
		filter:  filterAll,
	}
}

// Build constructs the log viewer
func (l *LogPanel) Build() fyne.CanvasObject {
	l.filterSelect = widget.NewSelect(
		[]string{filterAll, string(logging.LogLevelDebug), string(logging.LogLevelInfo), string(logging.LogLevelWarn), string(logging.LogLevelError)},
		func(selected string) {
			l.SetFilter(selected)
			if l.logList != nil {
				l.logList.Refresh()
			}
		},
	)
	l.filterSelect.SetSelected(filterAll)

	l.autoScrollCheck = widget.NewCheck("Auto-scroll", nil)
	l.autoScrollCheck.SetChecked(true)

	clearBtn := widget.NewButton("Clear", func() {
		l.Clear()
		l.logList.Refresh()
	})

	controls := container.NewHBox(
		widget.NewLabel("Filter:"),
		l.filterSelect,
		l.autoScrollCheck,
		clearBtn,
	)

	l.logList = widget.NewList(
		l.Len,
		func() fyne.CanvasObject {
			return widget.NewLabel("message")
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			entry, ok := l.At(id)
			if !ok {
				return
			}
			label := item.(*widget.Label)
			label.Importance = levelImportance(entry.Level)
			label.SetText(entry.Message)
		},
	)

	return container.NewBorder(controls, nil, nil, nil, l.logList)
}

// Add appends a line. Safe to call from any goroutine.
func (l *LogPanel) Add(level logging.LogLevel, message string) {
	l.logsMu.Lock()
	l.logs = append(l.logs, LogEntry{Timestamp: time.Now(), Level: level, Message: message})
	if len(l.logs) > l.maxLogs {
		l.logs = l.logs[len(l.logs)-l.maxLogs:]
	}
	l.logsMu.Unlock()

	if l.logList != nil {
		fyne.Do(func() {
			l.logList.Refresh()
			if l.autoScrollCheck != nil && l.autoScrollCheck.Checked {
				l.logList.ScrollToBottom()
			}
		})
	}
}

// Clear removes every line
func (l *LogPanel) Clear() {
	l.logsMu.Lock()
	defer l.logsMu.Unlock()
	l.logs = l.logs[:0]
}

// SetFilter shows only one level; "All" or empty shows everything
func (l *LogPanel) SetFilter(level string) {
	if level == "" {
		level = filterAll
	}
	l.logsMu.Lock()
	defer l.logsMu.Unlock()
	l.filter = level
}

// Len returns the number of lines passing the filter
func (l *LogPanel) Len() int {
	l.logsMu.RLock()
	defer l.logsMu.RUnlock()

	if l.filter == filterAll {
		return len(l.logs)
	}
	count := 0
	for _, entry := range l.logs {
		if string(entry.Level) == l.filter {
			count++
		}
	}
	return count
}

// At returns the index-th line passing the filter
func (l *LogPanel) At(index int) (LogEntry, bool) {
	l.logsMu.RLock()
	defer l.logsMu.RUnlock()

	if l.filter == filterAll {
		if index >= 0 && index < len(l.logs) {
			return l.logs[index], true
		}
		return LogEntry{}, false
	}

	n := 0
	for _, entry := range l.logs {
		if string(entry.Level) != l.filter {
			continue
		}
		if n == index {
			return entry, true
		}
		n++
	}
	return LogEntry{}, false
}

func levelImportance(level logging.LogLevel) widget.Importance {
	switch level {
	case logging.LogLevelDebug:
		return widget.LowImportance
	case logging.LogLevelWarn:
		return widget.WarningImportance
	case logging.LogLevelError, logging.LogLevelFatal:
		return widget.DangerImportance
	default:
		return widget.MediumImportance
	}
}
