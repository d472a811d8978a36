package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns the sqlite checkpoint and the case-feature cache. The
// checkpoint read at startup is the single source of truth for "already
// processed"; every write happens inside a transaction so an interrupt can
// never leave a half-written entry.
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS checkpoint (
		question_id TEXT PRIMARY KEY,
		status      TEXT NOT NULL DEFAULT 'pending',
		answer      TEXT DEFAULT '',
		evidence    TEXT DEFAULT '',
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoint_status ON checkpoint(status);

	CREATE TABLE IF NOT EXISTS case_cache (
		case_id  TEXT PRIMARY KEY,
		answer   TEXT NOT NULL,
		features TEXT NOT NULL,
		preview  TEXT DEFAULT '',
		source   TEXT DEFAULT ''
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// LoadCheckpoint reads every entry. A row whose evidence cannot be decoded
// means the store is corrupt; the caller must stop rather than silently
// reprocess and overwrite history.
func (s *Store) LoadCheckpoint() (map[string]CheckpointEntry, error) {
	rows, err := s.db.Query(`SELECT question_id, status, answer, evidence, updated_at FROM checkpoint`)
	if err != nil {
		return nil, fmt.Errorf("checkpoint query: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]CheckpointEntry)
	for rows.Next() {
		var e CheckpointEntry
		var evidence string
		if err := rows.Scan(&e.QuestionID, &e.Status, &e.Answer, &evidence, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("checkpoint scan: %w", err)
		}
		if evidence != "" {
			var res DiagnosisResult
			if err := json.Unmarshal([]byte(evidence), &res); err != nil {
				return nil, fmt.Errorf("checkpoint corrupt for question %s: %w", e.QuestionID, err)
			}
			e.Result = &res
		}
		entries[e.QuestionID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint read: %w", err)
	}
	return entries, nil
}

// SaveResult durably records one completed question. INSERT OR REPLACE in a
// transaction gives atomic replace semantics; earlier entries are untouched.
func (s *Store) SaveResult(res DiagnosisResult, status string) error {
	evidence, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO checkpoint (question_id, status, answer, evidence, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		res.QuestionID, status, res.Answer, string(evidence), time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) LoadCaseCache() ([]CaseRecord, error) {
	rows, err := s.db.Query(`SELECT case_id, answer, features, preview, source FROM case_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CaseRecord
	for rows.Next() {
		var rec CaseRecord
		var features string
		if err := rows.Scan(&rec.ID, &rec.Answer, &features, &rec.Preview, &rec.Source); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(features), &rec.Features); err != nil {
			return nil, fmt.Errorf("case cache corrupt for %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) SaveCaseCache(records []CaseRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO case_cache (case_id, answer, features, preview, source)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		features, err := json.Marshal(rec.Features)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(rec.ID, rec.Answer, string(features), rec.Preview, rec.Source); err != nil {
			return err
		}
	}
	return tx.Commit()
}
