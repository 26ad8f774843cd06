package logging

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/rps-autoplay/internal/events"
)

type collector struct {
	mu      sync.Mutex
	entries []Entry
}

func (c *collector) add(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *collector) all() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

func TestSinkReceivesStructuredEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Setup(Options{Level: "debug", Dir: dir}))
	t.Cleanup(func() { _ = Close() })

	c := &collector{}
	remove := AddSink(c.add)
	defer remove()

	log := NewLogger("Detect")
	log.InfoWithContext("triggered", map[string]interface{}{"label": "draw", "streak": 6})
	log.Error("capture failed", errors.New("bitblt"))
	log.Fatal("giving up", nil)

	got := c.all()
	require.Len(t, got, 3)

	assert.Equal(t, "Detect", got[0].Component)
	assert.Equal(t, LogLevelInfo, got[0].Level)
	assert.Equal(t, "triggered", got[0].Message)
	assert.Equal(t, "draw", got[0].Fields["label"])
	assert.EqualValues(t, 6, got[0].Fields["streak"])

	assert.Equal(t, LogLevelError, got[1].Level)
	assert.Equal(t, "bitblt", got[1].Fields["error"])

	assert.Equal(t, LogLevelFatal, got[2].Level)
	assert.Nil(t, got[2].Fields)

	require.NoError(t, Close())
	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"triggered"`)
	assert.Contains(t, string(data), `"component":"Detect"`)
}

func TestLevelFiltering(t *testing.T) {
	require.NoError(t, Setup(Options{Level: "warn"}))
	t.Cleanup(func() { _ = Setup(Options{Level: "info"}) })

	c := &collector{}
	remove := AddSink(c.add)
	defer remove()

	log := NewLogger("Phase")
	log.Debug("hidden")
	log.Info("hidden")
	log.WithContext(map[string]interface{}{"draws": 3}).Warn("shown")

	got := c.all()
	require.Len(t, got, 1)
	assert.Equal(t, "shown", got[0].Message)
	assert.EqualValues(t, 3, got[0].Fields["draws"])
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Setup(Options{Level: "chatty"}))
}

func TestEntryString(t *testing.T) {
	e := Entry{
		Time:      time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC),
		Level:     LogLevelWarn,
		Component: "Input",
		Message:   "unknown key skipped",
		Fields:    map[string]interface{}{"key": "f13", "at": 2},
	}
	assert.Equal(t, "[12:30:00.000] WARN [Input] unknown key skipped | at=2 key=f13", e.String())
}

func TestForwardToBus(t *testing.T) {
	require.NoError(t, Setup(Options{Level: "info"}))

	bus := events.NewEventBus(8)
	var mu sync.Mutex
	var lines []events.Event
	bus.Subscribe(events.EventTypeLog, func(e events.Event) {
		mu.Lock()
		lines = append(lines, e)
		mu.Unlock()
	})

	stop := ForwardToBus(bus)
	NewLogger("Bot").Info("calibrating")
	stop()
	NewLogger("Bot").Info("not forwarded")
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 1)
	assert.Equal(t, "Bot", lines[0].Source)
	assert.Equal(t, "INFO", lines[0].Data["level"])
	assert.Contains(t, lines[0].Data["message"], "calibrating")
}
