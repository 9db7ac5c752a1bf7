// Package store persists the session snapshot and the archive of finished
// exam results in a local sqlite database.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"examsim/internal/model"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		taken_at DATETIME NOT NULL,
		exam_name TEXT NOT NULL,
		data TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSnapshot replaces the single persisted session snapshot.
func (s *Store) SaveSnapshot(snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO snapshots (id, data, updated_at)
		 VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = ?, updated_at = ?`,
		string(data), time.Now(), string(data), time.Now(),
	)
	return err
}

// LoadSnapshot returns the persisted snapshot, or nil when none exists.
func (s *Store) LoadSnapshot() (*model.Snapshot, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM snapshots WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// ClearSnapshot removes the persisted snapshot.
func (s *Store) ClearSnapshot() error {
	_, err := s.db.Exec(`DELETE FROM snapshots WHERE id = 1`)
	return err
}

// ArchiveResult stores a finished exam's results and returns the archive entry.
func (s *Store) ArchiveResult(res model.OverallResults) (model.ArchivedResult, error) {
	entry := model.ArchivedResult{
		ID:      uuid.NewString(),
		TakenAt: time.Now(),
		Results: res,
	}
	data, err := json.Marshal(res)
	if err != nil {
		return model.ArchivedResult{}, fmt.Errorf("marshal results: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO results (id, taken_at, exam_name, data) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.TakenAt, res.ExamName, string(data),
	)
	if err != nil {
		return model.ArchivedResult{}, err
	}
	return entry, nil
}

// ListResults returns all archived results, newest first.
func (s *Store) ListResults() ([]model.ArchivedResult, error) {
	rows, err := s.db.Query(`SELECT id, taken_at, data FROM results ORDER BY taken_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ArchivedResult
	for rows.Next() {
		var (
			entry model.ArchivedResult
			data  string
		)
		if err := rows.Scan(&entry.ID, &entry.TakenAt, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &entry.Results); err != nil {
			return nil, fmt.Errorf("unmarshal archived result %s: %w", entry.ID, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// GetResult returns one archived result by id.
func (s *Store) GetResult(id string) (*model.ArchivedResult, error) {
	var (
		entry model.ArchivedResult
		data  string
	)
	err := s.db.QueryRow(`SELECT id, taken_at, data FROM results WHERE id = ?`, id).
		Scan(&entry.ID, &entry.TakenAt, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &entry.Results); err != nil {
		return nil, fmt.Errorf("unmarshal archived result %s: %w", id, err)
	}
	return &entry, nil
}

// DeleteResult removes one archived result.
func (s *Store) DeleteResult(id string) error {
	_, err := s.db.Exec(`DELETE FROM results WHERE id = ?`, id)
	return err
}

// ExportResults packages every archived result for download or backup.
func (s *Store) ExportResults() (model.ResultsExport, error) {
	results, err := s.ListResults()
	if err != nil {
		return model.ResultsExport{}, err
	}
	return model.ResultsExport{
		ExportedAt: time.Now(),
		NumResults: len(results),
		Results:    results,
	}, nil
}
