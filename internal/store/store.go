package store

import "errors"

// ErrNotFound is returned when a document or run does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the storage operations used by the batch scorer.
// It is satisfied by *DB and can be replaced with a mock for testing.
type Store interface {
	// CreateRun inserts a new score run and returns it with a fresh ID.
	CreateRun(script string, params map[string]any) (*Run, error)

	// LogScore records the outcome of scoring one document in a run.
	LogScore(s *Score) error

	// FinishRun stamps the run as finished with its final counts.
	FinishRun(runID string, scored, failed int) error
}

// Compile-time check that *DB satisfies the Store interface.
var _ Store = (*DB)(nil)
