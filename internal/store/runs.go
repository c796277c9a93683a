package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one batch scoring of documents against a parameter set.
type Run struct {
	ID         string
	Script     string
	Params     map[string]any
	StartedAt  time.Time
	FinishedAt *time.Time
	Scored     int
	Failed     int
}

// Score is the outcome of scoring one document. Value is nil when scoring failed.
type Score struct {
	RunID     string
	DocID     string
	Value     *float64
	ErrorCode string
	Error     string
}

// CreateRun inserts a new run. script may be empty for inline parameters.
func (d *DB) CreateRun(script string, params map[string]any) (*Run, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshaling params: %w", err)
	}

	run := &Run{
		ID:        uuid.NewString(),
		Script:    script,
		Params:    params,
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err = d.db.Exec(`
		INSERT INTO score_runs (id, script, params, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, nullStr(script), string(paramsJSON), run.StartedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return run, nil
}

// LogScore inserts the score of one document in a run.
func (d *DB) LogScore(s *Score) error {
	var value sql.NullFloat64
	if s.Value != nil {
		value = sql.NullFloat64{Float64: *s.Value, Valid: true}
	}
	_, err := d.db.Exec(`
		INSERT INTO scores (run_id, doc_id, score, error_code, error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, doc_id) DO UPDATE SET
			score = excluded.score,
			error_code = excluded.error_code,
			error = excluded.error`,
		s.RunID, s.DocID, value, nullStr(s.ErrorCode), nullStr(s.Error),
	)
	if err != nil {
		return fmt.Errorf("logging score: %w", err)
	}
	return nil
}

// FinishRun sets the finish time and final counts of a run.
func (d *DB) FinishRun(runID string, scored, failed int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := d.db.Exec(`
		UPDATE score_runs SET finished_at = ?, scored = ?, failed = ? WHERE id = ?`,
		now, scored, failed, runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns ErrNotFound when absent.
func (d *DB) GetRun(id string) (*Run, error) {
	row := d.db.QueryRow(`
		SELECT id, script, params, started_at, finished_at, scored, failed
		FROM score_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs first, at most limit of them.
func (d *DB) ListRuns(limit int) ([]Run, error) {
	rows, err := d.db.Query(`
		SELECT id, script, params, started_at, finished_at, scored, failed
		FROM score_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRunScores returns the scores logged for a run ordered by document ID.
func (d *DB) GetRunScores(runID string) ([]Score, error) {
	rows, err := d.db.Query(`
		SELECT run_id, doc_id, score, error_code, error
		FROM scores WHERE run_id = ? ORDER BY doc_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying scores: %w", err)
	}
	defer rows.Close()

	var scores []Score
	for rows.Next() {
		var s Score
		var value sql.NullFloat64
		var code, msg sql.NullString
		if err := rows.Scan(&s.RunID, &s.DocID, &value, &code, &msg); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		if value.Valid {
			v := value.Float64
			s.Value = &v
		}
		s.ErrorCode = code.String
		s.Error = msg.String
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var script, finishedAt sql.NullString
	var params, startedAt string

	err := row.Scan(&run.ID, &script, &params, &startedAt, &finishedAt, &run.Scored, &run.Failed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	run.Script = script.String
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("decoding params of run %q: %w", run.ID, err)
	}
	return &run, nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
