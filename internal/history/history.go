// Package history records completed and requested save runs in Postgres so
// repeat submissions for the same document are visible to operators.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/pixeldock/saver-pipeline/pkg/pipeline"
)

// Recorder tracks save submissions per document
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a history recorder, ensuring its table exists
func NewRecorder(db *sql.DB) (*Recorder, error) {
	rec := &Recorder{db: db}

	if err := rec.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure save_history table: %w", err)
	}

	return rec, nil
}

func (rec *Recorder) ensureTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS save_history (
			content_id TEXT PRIMARY KEY,
			primary_name TEXT,
			copy_name TEXT,
			copy_width INTEGER,
			copy_height INTEGER,
			first_seen_at TIMESTAMPTZ DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ DEFAULT NOW(),
			seen_count INTEGER DEFAULT 1
		)
	`

	_, err := rec.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create save_history table: %w", err)
	}

	log.Printf("save_history table ready")
	return nil
}

// Record upserts a save submission and returns how many times this
// document has been submitted
func (rec *Recorder) Record(ctx context.Context, req pipeline.SaveRequest) (int, error) {
	var copyName string
	var copyWidth, copyHeight int
	if req.Copy != nil {
		copyName = req.Copy.Name
		copyWidth = req.Copy.Width
		copyHeight = req.Copy.Height
	}

	query := `
		INSERT INTO save_history (content_id, primary_name, copy_name, copy_width, copy_height, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		ON CONFLICT (content_id) DO UPDATE
		SET last_seen_at = NOW(),
		    seen_count = save_history.seen_count + 1,
		    primary_name = EXCLUDED.primary_name,
		    copy_name = EXCLUDED.copy_name,
		    copy_width = EXCLUDED.copy_width,
		    copy_height = EXCLUDED.copy_height
		RETURNING seen_count
	`

	var seenCount int
	err := rec.db.QueryRowContext(ctx, query, req.ContentID, req.PrimaryName, copyName, copyWidth, copyHeight).Scan(&seenCount)
	if err != nil {
		return 0, fmt.Errorf("failed to record save history: %w", err)
	}

	return seenCount, nil
}

// SeenCount retrieves the submission count for a document
func (rec *Recorder) SeenCount(ctx context.Context, contentID string) (int, error) {
	query := `SELECT seen_count FROM save_history WHERE content_id = $1`

	var seenCount int
	err := rec.db.QueryRowContext(ctx, query, contentID).Scan(&seenCount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seen count: %w", err)
	}

	return seenCount, nil
}
