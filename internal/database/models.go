package database

import (
	"time"
)

// Run is one Start or Calibrate press
type Run struct {
	ID           string     `db:"id"`
	Mode         string     `db:"mode"`
	TitleFilter  string     `db:"title_filter"`
	StartedAt    time.Time  `db:"started_at"`
	EndedAt      *time.Time `db:"ended_at"`
	Outcome      string     `db:"outcome"`
	DrawCount    int        `db:"draw_count"`
	UsedFallback bool       `db:"used_fallback"`
	ErrorMessage *string    `db:"error_message"`
}

// Duration is zero while the run is still open
func (r *Run) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// RunEnd carries the final state written by FinishRun
type RunEnd struct {
	Outcome      string
	DrawCount    int
	UsedFallback bool
	Err          error
	EndedAt      time.Time
}

// Calibration is a located region recorded against a run
type Calibration struct {
	ID           int64     `db:"id"`
	RunID        string    `db:"run_id"`
	MonitorIndex int       `db:"monitor_index"`
	Left         int       `db:"roi_left"`
	Top          int       `db:"roi_top"`
	Width        int       `db:"roi_width"`
	Height       int       `db:"roi_height"`
	Score        float64   `db:"score"`
	AnchorLabel  string    `db:"anchor_label"`
	TemplatePack string    `db:"template_pack"`
	Scale        float64   `db:"scale"`
	Source       string    `db:"source"`
	CreatedAt    time.Time `db:"created_at"`
}

// Trigger is one confirmed classification and the script it ran
type Trigger struct {
	ID          int64     `db:"id"`
	RunID       string    `db:"run_id"`
	Label       string    `db:"label"`
	Score       float64   `db:"score"`
	Phase       string    `db:"phase"`
	Script      string    `db:"script"`
	DrawCount   int       `db:"draw_count"`
	TriggeredAt time.Time `db:"triggered_at"`
}

// RunSummary is a run with trigger counts per label
type RunSummary struct {
	Run
	Wins   int
	Losses int
	Draws  int
}
