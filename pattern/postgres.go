package pattern

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/sona"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresSnapshotStore implements SnapshotStore using PostgreSQL
type PostgresSnapshotStore struct {
	pool      DBPool
	tableName string
}

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "pattern_snapshots"
}

// NewPostgresSnapshotStore creates a new Postgres snapshot store
func NewPostgresSnapshotStore(ctx context.Context, opts PostgresOptions) (*PostgresSnapshotStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "pattern_snapshots"
	}

	return &PostgresSnapshotStore{
		pool:      pool,
		tableName: tableName,
	}, nil
}

// NewPostgresSnapshotStoreWithPool creates a new Postgres snapshot store with an existing pool
// Useful for testing with mocks
func NewPostgresSnapshotStoreWithPool(pool DBPool, tableName string) *PostgresSnapshotStore {
	if tableName == "" {
		tableName = "pattern_snapshots"
	}
	return &PostgresSnapshotStore{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresSnapshotStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			snapshot_name TEXT NOT NULL,
			pattern_id TEXT NOT NULL,
			centroid JSONB NOT NULL,
			members JSONB,
			cluster_size INTEGER NOT NULL,
			avg_quality DOUBLE PRECISION NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (snapshot_name, pattern_id)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_name ON %s (snapshot_name);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresSnapshotStore) Close() {
	s.pool.Close()
}

// SaveSnapshot stores a named pattern set, replacing any previous snapshot
// with the same name.
func (s *PostgresSnapshotStore) SaveSnapshot(ctx context.Context, name string, patterns []*sona.Pattern) error {
	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE snapshot_name = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, deleteQuery, name); err != nil {
		return fmt.Errorf("failed to clear previous snapshot: %w", err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (snapshot_name, pattern_id, centroid, members, cluster_size, avg_quality, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.tableName)

	for _, p := range patterns {
		centroidJSON, err := json.Marshal(p.Centroid)
		if err != nil {
			return fmt.Errorf("failed to marshal centroid: %w", err)
		}
		membersJSON, err := json.Marshal(p.Members)
		if err != nil {
			return fmt.Errorf("failed to marshal members: %w", err)
		}

		_, err = s.pool.Exec(ctx, insertQuery,
			name,
			p.ID,
			centroidJSON,
			membersJSON,
			p.ClusterSize,
			p.AvgQuality,
			p.LastUpdated,
		)
		if err != nil {
			return fmt.Errorf("failed to save pattern %s: %w", p.ID, err)
		}
	}

	return nil
}

// LoadSnapshot retrieves a named pattern set
func (s *PostgresSnapshotStore) LoadSnapshot(ctx context.Context, name string) ([]*sona.Pattern, error) {
	query := fmt.Sprintf(`
		SELECT pattern_id, centroid, members, cluster_size, avg_quality, last_updated
		FROM %s
		WHERE snapshot_name = $1
		ORDER BY pattern_id ASC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	defer rows.Close()

	var patterns []*sona.Pattern
	for rows.Next() {
		var p sona.Pattern
		var centroidJSON []byte
		var membersJSON []byte

		err := rows.Scan(
			&p.ID,
			&centroidJSON,
			&membersJSON,
			&p.ClusterSize,
			&p.AvgQuality,
			&p.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern row: %w", err)
		}

		if err := json.Unmarshal(centroidJSON, &p.Centroid); err != nil {
			return nil, fmt.Errorf("failed to unmarshal centroid: %w", err)
		}
		if len(membersJSON) > 0 {
			if err := json.Unmarshal(membersJSON, &p.Members); err != nil {
				return nil, fmt.Errorf("failed to unmarshal members: %w", err)
			}
		}

		patterns = append(patterns, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pattern rows: %w", err)
	}

	return patterns, nil
}

// DeleteSnapshot removes a named pattern set
func (s *PostgresSnapshotStore) DeleteSnapshot(ctx context.Context, name string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE snapshot_name = $1", s.tableName)
	_, err := s.pool.Exec(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
