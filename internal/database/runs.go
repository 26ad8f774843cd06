package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a run id is unknown
var ErrRunNotFound = errors.New("run not found")

// StartRun inserts an open run
func (db *DB) StartRun(id, mode, titleFilter string, at time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO runs (id, mode, title_filter, started_at)
		VALUES (?, ?, ?, ?)
	`, id, mode, titleFilter, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// FinishRun closes a run with its outcome
func (db *DB) FinishRun(id string, end RunEnd) error {
	var errMsg *string
	if end.Err != nil {
		msg := end.Err.Error()
		errMsg = &msg
	}
	if end.EndedAt.IsZero() {
		end.EndedAt = time.Now()
	}

	result, err := db.conn.Exec(`
		UPDATE runs
		SET ended_at = ?,
		    outcome = ?,
		    draw_count = ?,
		    used_fallback = ?,
		    error_message = ?
		WHERE id = ?
	`, end.EndedAt.UTC(), end.Outcome, end.DrawCount, end.UsedFallback, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// RecordCalibration stores a calibration result for a run
func (db *DB) RecordCalibration(c Calibration) (int64, error) {
	var id int64
	err := db.inTx(func(tx *sql.Tx) error {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		result, err := tx.Exec(`
			INSERT INTO calibrations (
				run_id, monitor_index, roi_left, roi_top, roi_width, roi_height,
				score, anchor_label, template_pack, scale, source, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.RunID, c.MonitorIndex, c.Left, c.Top, c.Width, c.Height,
			c.Score, c.AnchorLabel, c.TemplatePack, c.Scale, c.Source, c.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert calibration: %w", err)
		}

		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RecordTrigger stores a confirmed classification
func (db *DB) RecordTrigger(t Trigger) (int64, error) {
	if t.TriggeredAt.IsZero() {
		t.TriggeredAt = time.Now()
	}
	result, err := db.conn.Exec(`
		INSERT INTO triggers (run_id, label, score, phase, script, draw_count, triggered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.RunID, t.Label, t.Score, t.Phase, t.Script, t.DrawCount, t.TriggeredAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert trigger: %w", err)
	}
	return result.LastInsertId()
}

const runColumns = `r.id, r.mode, COALESCE(r.title_filter, ''), r.started_at, r.ended_at,
	r.outcome, r.draw_count, r.used_fallback, r.error_message`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner, extra ...interface{}) (*Run, error) {
	var (
		run     Run
		endedAt sql.NullTime
		errMsg  sql.NullString
	)
	dest := []interface{}{
		&run.ID, &run.Mode, &run.TitleFilter, &run.StartedAt, &endedAt,
		&run.Outcome, &run.DrawCount, &run.UsedFallback, &errMsg,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		run.EndedAt = &t
	}
	if errMsg.Valid {
		msg := errMsg.String
		run.ErrorMessage = &msg
	}
	return &run, nil
}

// GetRun loads a single run
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow(`SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// RecentRuns returns the newest runs first with their trigger tallies
func (db *DB) RecentRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`
		SELECT `+runColumns+`,
			COALESCE(SUM(CASE WHEN t.label = 'win' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.label = 'loss' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.label = 'draw' THEN 1 ELSE 0 END), 0)
		FROM runs r
		LEFT JOIN triggers t ON t.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		run, err := scanRun(rows, &s.Wins, &s.Losses, &s.Draws)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.Run = *run
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// TriggersForRun lists a run's triggers in order
func (db *DB) TriggersForRun(runID string) ([]Trigger, error) {
	rows, err := db.conn.Query(`
		SELECT id, run_id, label, score, phase, COALESCE(script, ''), draw_count, triggered_at
		FROM triggers
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()

	var triggers []Trigger
	for rows.Next() {
		var t Trigger
		if err := rows.Scan(&t.ID, &t.RunID, &t.Label, &t.Score, &t.Phase, &t.Script, &t.DrawCount, &t.TriggeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// LatestCalibration returns the newest calibration recorded for a run
func (db *DB) LatestCalibration(runID string) (*Calibration, error) {
	var c Calibration
	err := db.conn.QueryRow(`
		SELECT id, run_id, monitor_index, roi_left, roi_top, roi_width, roi_height,
			score, anchor_label, template_pack, scale, source, created_at
		FROM calibrations
		WHERE run_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, runID).Scan(&c.ID, &c.RunID, &c.MonitorIndex, &c.Left, &c.Top, &c.Width, &c.Height,
		&c.Score, &c.AnchorLabel, &c.TemplatePack, &c.Scale, &c.Source, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calibration: %w", err)
	}
	return &c, nil
}
