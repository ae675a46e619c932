package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryLimit caps a history query without an explicit limit.
const DefaultHistoryLimit = 50

// Recognition is one recognized word.
type Recognition struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Word        string    `json:"word"`
	DisplayName string    `json:"display_name"`
	Confidence  float64   `json:"confidence"`
	Module      string    `json:"module,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecognitionRepository stores the recognition log.
type RecognitionRepository struct {
	db *sql.DB
}

// Recognitions returns the recognition log repository for this store.
func (s *Store) Recognitions() *RecognitionRepository {
	return &RecognitionRepository{db: s.db}
}

// Create appends rec to the log, assigning an ID and timestamp when unset.
func (r *RecognitionRepository) Create(rec *Recognition) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO recognitions (id, session_id, word, display_name, confidence, module, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Word, rec.DisplayName, rec.Confidence, rec.Module, rec.CreatedAt,
	)
	return err
}

// List returns the most recent recognitions, newest first. An empty
// sessionID lists every session; a non-positive limit uses
// [DefaultHistoryLimit].
func (r *RecognitionRepository) List(sessionID string, limit int) ([]*Recognition, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `SELECT id, session_id, word, display_name, confidence, module, created_at FROM recognitions`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Recognition
	for rows.Next() {
		rec := &Recognition{}
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Word, &rec.DisplayName, &rec.Confidence, &rec.Module, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSession removes the log of one session and returns how many rows
// went.
func (r *RecognitionRepository) DeleteSession(sessionID string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM recognitions WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
