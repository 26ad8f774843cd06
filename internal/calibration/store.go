package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jordanella.com/rps-autoplay/internal/cv"
	"jordanella.com/rps-autoplay/pkg/templates"
)

// ErrNoRecord is returned by Load when nothing has been saved yet
var ErrNoRecord = errors.New("no saved calibration")

// ErrRecordOffscreen is returned when a saved region no longer overlaps its monitor
var ErrRecordOffscreen = errors.New("saved region is outside the monitor")

// Record is the persisted form of a Result
type Record struct {
	Left         int       `json:"left"`
	Top          int       `json:"top"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	MonitorIndex int       `json:"monitor_index"`
	TemplatePack string    `json:"template_pack"`
	Score        float64   `json:"score"`
	AnchorLabel  string    `json:"anchor_label"`
	SavedAt      time.Time `json:"saved_at,omitempty"`
}

// RecordFromResult converts a calibration result
func RecordFromResult(r *Result) Record {
	return Record{
		Left:         r.ROI.Left,
		Top:          r.ROI.Top,
		Width:        r.ROI.Width,
		Height:       r.ROI.Height,
		MonitorIndex: r.MonitorIndex,
		TemplatePack: r.PackName,
		Score:        r.Score,
		AnchorLabel:  string(r.Label),
		SavedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

// ROI returns the monitor-relative region
func (r Record) ROI() cv.Region {
	return cv.NewRegion(r.Left, r.Top, r.Width, r.Height)
}

// Label returns the anchor label
func (r Record) Label() templates.Label {
	return templates.Label(r.AnchorLabel)
}

// Absolute places the record on the current monitor layout. A monitor index
// that no longer exists falls back to monitor 1; the returned index is the
// one actually used.
func (r Record) Absolute(monitors []cv.Monitor) (cv.Region, int, error) {
	if len(monitors) == 0 {
		return cv.Region{}, 0, errors.New("no monitors found")
	}
	m, ok := cv.MonitorByIndex(monitors, r.MonitorIndex)
	if !ok {
		m = monitors[0]
	}
	abs := r.ROI().Offset(m.Bounds.Left, m.Bounds.Top).Clamp(m.Bounds)
	if abs.Empty() {
		return cv.Region{}, m.Index, fmt.Errorf("%w: %s on monitor %d (%s)", ErrRecordOffscreen, r.ROI(), m.Index, m.Bounds)
	}
	return abs, m.Index, nil
}

// Validate checks a loaded record for obvious damage
func (r Record) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("saved region %dx%d is empty", r.Width, r.Height)
	}
	return nil
}

// Store reads and writes the record file
type Store struct {
	path string
}

// NewStore creates a store at path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the record file path
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a record file is present
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Save writes rec atomically
func (s *Store) Save(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".roi-*.json")
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}

// Load reads the record, returning ErrNoRecord when the file is missing
func (s *Store) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, ErrNoRecord
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode record %s: %w", s.path, err)
	}
	if err := rec.Validate(); err != nil {
		return Record{}, fmt.Errorf("record %s: %w", s.path, err)
	}
	return rec, nil
}
