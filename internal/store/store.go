// Package store persists response records in SQLite. It backs the local
// sink mode and the export command.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/roadtones/captionstudy/internal/model"
)

// Store wraps the responses database.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and runs migrations.
// Use ":memory:" for an ephemeral database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		age INTEGER NOT NULL,
		gender TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		study_phase TEXT NOT NULL,
		video_id TEXT NOT NULL,
		sample_id TEXT NOT NULL,
		question_text TEXT NOT NULL,
		user_choice TEXT NOT NULL,
		was_correct TEXT NOT NULL,
		attempts_taken TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_responses_email ON responses(email);
	CREATE INDEX IF NOT EXISTS idx_responses_phase ON responses(study_phase);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// InsertResponse appends one record.
func (s *Store) InsertResponse(ctx context.Context, r model.Response) error {
	const q = `INSERT INTO responses
		(email, age, gender, timestamp, study_phase, video_id, sample_id,
		 question_text, user_choice, was_correct, attempts_taken)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		r.Email, r.Age, r.Gender, r.Timestamp, r.StudyPhase, r.VideoID,
		r.SampleID, r.QuestionText, r.UserChoice, r.WasCorrect, r.AttemptsTaken)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

// ListResponses returns all records in insertion order.
func (s *Store) ListResponses(ctx context.Context) ([]model.Response, error) {
	const q = `SELECT email, age, gender, timestamp, study_phase, video_id,
		sample_id, question_text, user_choice, was_correct, attempts_taken
		FROM responses ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []model.Response
	for rows.Next() {
		var r model.Response
		if err := rows.Scan(&r.Email, &r.Age, &r.Gender, &r.Timestamp,
			&r.StudyPhase, &r.VideoID, &r.SampleID, &r.QuestionText,
			&r.UserChoice, &r.WasCorrect, &r.AttemptsTaken); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return n, nil
}
