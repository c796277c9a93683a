package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Document is a stored record whose source fields are scored.
type Document struct {
	ID        string
	Source    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertDocument inserts a document or replaces the source of an existing one.
func (d *DB) UpsertDocument(doc *Document) error {
	if doc.ID == "" {
		return fmt.Errorf("upserting document: empty id")
	}
	source, err := json.Marshal(doc.Source)
	if err != nil {
		return fmt.Errorf("marshaling source: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = d.db.Exec(`
		INSERT INTO documents (id, source, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			updated_at = excluded.updated_at`,
		doc.ID, string(source), now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID. It returns ErrNotFound when absent.
func (d *DB) GetDocument(id string) (*Document, error) {
	row := d.db.QueryRow(`
		SELECT id, source, created_at, updated_at FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	return doc, err
}

// ListDocuments returns every document ordered by ID.
func (d *DB) ListDocuments() ([]Document, error) {
	rows, err := d.db.Query(`
		SELECT id, source, created_at, updated_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document. Deleting a missing document is not an error.
func (d *DB) DeleteDocument(id string) error {
	if _, err := d.db.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var source, createdAt, updatedAt string

	if err := row.Scan(&doc.ID, &source, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	dec := json.NewDecoder(strings.NewReader(source))
	dec.UseNumber()
	if err := dec.Decode(&doc.Source); err != nil {
		return nil, fmt.Errorf("decoding source of %q: %w", doc.ID, err)
	}
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return &doc, nil
}

// parseTime accepts both RFC3339 and SQLite's datetime('now') format.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}
