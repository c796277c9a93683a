package store

import "fmt"

// Stats holds aggregate statistics for the store.
type Stats struct {
	DocumentCount int
	RunCount      int
	ScoreCount    int
	LatestRun     *Run
}

// GetStats returns document, run and score counts along with the latest run.
func (d *DB) GetStats() (*Stats, error) {
	var stats Stats

	err := d.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&stats.DocumentCount)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	err = d.db.QueryRow(`SELECT COUNT(*) FROM score_runs`).Scan(&stats.RunCount)
	if err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}

	err = d.db.QueryRow(`SELECT COUNT(*) FROM scores`).Scan(&stats.ScoreCount)
	if err != nil {
		return nil, fmt.Errorf("counting scores: %w", err)
	}

	runs, err := d.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		stats.LatestRun = &runs[0]
	}

	return &stats, nil
}
