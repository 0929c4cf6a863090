package trajectory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/sona"
)

// SQLiteArchive persists trajectories to a SQLite database so a store can be
// restored across process restarts.
type SQLiteArchive struct {
	db        *sql.DB
	tableName string
}

// SQLiteOptions configuration for the SQLite connection
type SQLiteOptions struct {
	Path      string
	TableName string // Default "trajectories"
}

// NewSQLiteArchive creates a new SQLite-backed trajectory archive
func NewSQLiteArchive(opts SQLiteOptions) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "trajectories"
	}

	archive := &SQLiteArchive{
		db:        db,
		tableName: tableName,
	}

	if err := archive.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return archive, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (a *SQLiteArchive) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			query TEXT NOT NULL,
			query_vector TEXT NOT NULL,
			result_ids TEXT NOT NULL,
			result_scores TEXT NOT NULL,
			feedback REAL,
			metadata TEXT,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_session_id ON %s (session_id);
	`, a.tableName, a.tableName, a.tableName)

	_, err := a.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

// Save upserts trajectories into the archive
func (a *SQLiteArchive) Save(ctx context.Context, trajectories []*sona.Trajectory) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, query, query_vector, result_ids, result_scores, feedback, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			query = excluded.query,
			query_vector = excluded.query_vector,
			result_ids = excluded.result_ids,
			result_scores = excluded.result_scores,
			feedback = excluded.feedback,
			metadata = excluded.metadata,
			timestamp = excluded.timestamp
	`, a.tableName)

	for _, t := range trajectories {
		vectorJSON, err := json.Marshal(t.QueryVector)
		if err != nil {
			return fmt.Errorf("failed to marshal query vector: %w", err)
		}
		idsJSON, err := json.Marshal(t.ResultIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal result ids: %w", err)
		}
		scoresJSON, err := json.Marshal(t.ResultScores)
		if err != nil {
			return fmt.Errorf("failed to marshal result scores: %w", err)
		}
		metadataJSON, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		var feedback sql.NullFloat64
		if t.Feedback != nil {
			feedback = sql.NullFloat64{Float64: *t.Feedback, Valid: true}
		}

		_, err = a.db.ExecContext(ctx, query,
			t.ID,
			t.SessionID,
			t.Query,
			string(vectorJSON),
			string(idsJSON),
			string(scoresJSON),
			feedback,
			string(metadataJSON),
			t.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to save trajectory %s: %w", t.ID, err)
		}
	}

	return nil
}

// Load returns all archived trajectories ordered by timestamp ascending
func (a *SQLiteArchive) Load(ctx context.Context) ([]*sona.Trajectory, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, query, query_vector, result_ids, result_scores, feedback, metadata, timestamp
		FROM %s
		ORDER BY timestamp ASC
	`, a.tableName)

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load trajectories: %w", err)
	}
	defer rows.Close()

	var trajectories []*sona.Trajectory
	for rows.Next() {
		var t sona.Trajectory
		var vectorJSON, idsJSON, scoresJSON, metadataJSON string
		var feedback sql.NullFloat64
		var timestamp time.Time

		err := rows.Scan(
			&t.ID,
			&t.SessionID,
			&t.Query,
			&vectorJSON,
			&idsJSON,
			&scoresJSON,
			&feedback,
			&metadataJSON,
			&timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trajectory row: %w", err)
		}

		if err := json.Unmarshal([]byte(vectorJSON), &t.QueryVector); err != nil {
			return nil, fmt.Errorf("failed to unmarshal query vector: %w", err)
		}
		if err := json.Unmarshal([]byte(idsJSON), &t.ResultIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result ids: %w", err)
		}
		if err := json.Unmarshal([]byte(scoresJSON), &t.ResultScores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result scores: %w", err)
		}
		if len(metadataJSON) > 0 && metadataJSON != "null" {
			if err := json.Unmarshal([]byte(metadataJSON), &t.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		if feedback.Valid {
			t.Feedback = &feedback.Float64
		}
		t.Timestamp = timestamp

		trajectories = append(trajectories, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trajectory rows: %w", err)
	}

	return trajectories, nil
}

// Delete removes a trajectory from the archive
func (a *SQLiteArchive) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", a.tableName)
	_, err := a.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete trajectory: %w", err)
	}
	return nil
}

// Clear removes all archived trajectories
func (a *SQLiteArchive) Clear(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s", a.tableName)
	_, err := a.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to clear trajectories: %w", err)
	}
	return nil
}
