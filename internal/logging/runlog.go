package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/coordinator"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// ErrRunNotFound means no run_log row has the requested id.
var ErrRunNotFound = errors.New("run not found")

// #region recorder
// RunLog writes run and step rows to the run_log and step_log tables. It
// satisfies coordinator.Recorder.
type RunLog struct {
	db *sql.DB
}

var _ coordinator.Recorder = (*RunLog)(nil)

// NewRunLog wraps a database migrated by state.NewStore.
func NewRunLog(db *sql.DB) *RunLog {
	return &RunLog{db: db}
}

// StartRun inserts the run row in the running state.
func (l *RunLog) StartRun(ctx context.Context, res *coordinator.Result) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO run_log (run_id, variant, model_version, override_id, seed, length, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID,
		string(res.Variant),
		nullIfEmpty(res.ModelVersion),
		nullIfEmpty(res.OverrideID),
		int64(res.Seed),
		res.Length,
		StatusRunning,
		formatTime(res.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("log run start: %w", err)
	}
	return nil
}

// RecordStep appends one committed step.
func (l *RunLog) RecordStep(ctx context.Context, runID string, step narrative.Step) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO step_log (run_id, position, label, mode, text, confidence, verified, retries, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		step.Index,
		string(step.Label),
		string(step.Mode),
		step.Text,
		step.Confidence,
		step.Verified,
		step.Retries,
		formatTime(step.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("log step %d: %w", step.Index, err)
	}
	return nil
}

// FinishRun records the terminal status, scores and evaluation. The row is
// created if StartRun never landed.
func (l *RunLog) FinishRun(ctx context.Context, res *coordinator.Result) error {
	scoresJSON, err := marshalOptional(res.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	evalJSON, err := marshalOptional(res.Eval)
	if err != nil {
		return fmt.Errorf("marshal eval: %w", err)
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO run_log (run_id, variant, model_version, override_id, seed, length, status, error, scores_json, eval_json, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   status = excluded.status,
		   error = excluded.error,
		   scores_json = excluded.scores_json,
		   eval_json = excluded.eval_json,
		   finished_at = excluded.finished_at`,
		res.RunID,
		string(res.Variant),
		nullIfEmpty(res.ModelVersion),
		nullIfEmpty(res.OverrideID),
		int64(res.Seed),
		res.Length,
		string(res.Status),
		nullIfEmpty(res.Error),
		nullIfEmpty(scoresJSON),
		nullIfEmpty(evalJSON),
		formatTime(res.StartedAt),
		formatTime(res.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("log run finish: %w", err)
	}
	return nil
}
// #endregion recorder

// #region queries
const runColumns = `run_id, variant, model_version, override_id, seed, length, status, error, scores_json, eval_json, started_at, finished_at`

// GetRun returns a run row and its steps in position order.
func (l *RunLog) GetRun(ctx context.Context, runID string) (RunEntry, []StepEntry, error) {
	run, err := scanRun(l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM run_log WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return RunEntry{}, nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return RunEntry{}, nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, position, label, mode, text, confidence, verified, retries, created_at
		 FROM step_log WHERE run_id = ? ORDER BY position, id`, runID,
	)
	if err != nil {
		return RunEntry{}, nil, fmt.Errorf("get steps %s: %w", runID, err)
	}
	defer rows.Close()

	var steps []StepEntry
	for rows.Next() {
		var e StepEntry
		var label, mode, created string
		if err := rows.Scan(&e.RunID, &e.Position, &label, &mode, &e.Text, &e.Confidence, &e.Verified, &e.Retries, &created); err != nil {
			return RunEntry{}, nil, fmt.Errorf("scan step: %w", err)
		}
		e.Label = narrative.Label(label)
		e.Mode = narrative.StepMode(mode)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		steps = append(steps, e)
	}
	return run, steps, rows.Err()
}

// ListRuns returns the most recently started runs, newest first.
func (l *RunLog) ListRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM run_log ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunEntry
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunEntry, error) {
	var e RunEntry
	var modelVersion, overrideID, errText, scores, evalJSON, finished sql.NullString
	var seed int64
	var started string
	err := row.Scan(&e.RunID, &e.Variant, &modelVersion, &overrideID, &seed, &e.Length, &e.Status,
		&errText, &scores, &evalJSON, &started, &finished)
	if err != nil {
		return RunEntry{}, err
	}
	e.Seed = uint64(seed)
	e.ModelVersion = modelVersion.String
	e.OverrideID = overrideID.String
	e.Error = errText.String
	e.ScoresJSON = scores.String
	e.EvalJSON = evalJSON.String
	e.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	return e, nil
}
// #endregion queries

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// marshalOptional returns "" for nil pointers so the column stays NULL.
func marshalOptional(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "", nil
	}
	return string(data), nil
}
// #endregion helpers
