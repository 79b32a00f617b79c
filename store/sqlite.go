package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/sicko7947/reelflow"
	"github.com/sicko7947/reelflow/store/migrations"
)

// SQLiteConfig is the configuration for the SQLite checkpoint store.
type SQLiteConfig struct {
	DBPath string
	Logger *zerolog.Logger
}

func (c *SQLiteConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return nil
}

// SQLiteStore implements reelflow.CheckpointStore on an embedded SQLite database.
// Each Save is a single upsert of the whole checkpoint row.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens the database and applies pending migrations.
func NewSQLiteStore(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := cfg.Logger.With().Str("svc", "store.SQLite").Logger()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// One writer keeps same-key saves serialized
	db.SetMaxOpenConns(1)

	migrator, err := migrations.NewMigrator(db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	version, dirty, err := migrator.Version(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if dirty {
		db.Close()
		return nil, fmt.Errorf("schema version %d is dirty", version)
	}

	logger.Debug().Str("path", cfg.DBPath).Uint("schema_version", version).Msg("SQLite checkpoint store initialized")
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Save(ctx context.Context, state *reelflow.WorkflowState) error {
	payload, sum, err := marshalState(state)
	if err != nil {
		return &reelflow.StoreError{Op: "save", WorkflowID: workflowIDOf(state), Err: err}
	}

	query := `
		INSERT INTO checkpoints (workflow_id, status, checksum, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (workflow_id) DO UPDATE SET
			status = excluded.status,
			checksum = excluded.checksum,
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		state.WorkflowID,
		state.Status.String(),
		sum,
		payload,
		state.CreatedAt.UnixNano(),
		state.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return &reelflow.StoreError{Op: "save", WorkflowID: state.WorkflowID, Err: fmt.Errorf("could not upsert checkpoint: %w", err)}
	}

	s.logger.Debug().Str("workflow_id", state.WorkflowID).Str("status", state.Status.String()).Msg("Checkpoint saved")
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, workflowID string) (*reelflow.WorkflowState, error) {
	var (
		payload []byte
		sum     string
	)
	row := s.db.QueryRowContext(ctx, `SELECT data, checksum FROM checkpoints WHERE workflow_id = ?`, workflowID)
	if err := row.Scan(&payload, &sum); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reelflow.NotFound("load", workflowID)
		}
		return nil, &reelflow.StoreError{Op: "load", WorkflowID: workflowID, Err: fmt.Errorf("could not query checkpoint: %w", err)}
	}
	return unmarshalState("load", workflowID, payload, sum)
}

func (s *SQLiteStore) List(ctx context.Context, filter reelflow.ListFilter) ([]reelflow.WorkflowSummary, error) {
	query := `SELECT workflow_id, data, checksum FROM checkpoints`
	var args []any
	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, filter.Status.String())
	}
	query += ` ORDER BY updated_at DESC, workflow_id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &reelflow.StoreError{Op: "list", Err: fmt.Errorf("could not query checkpoints: %w", err)}
	}
	defer rows.Close()

	var summaries []reelflow.WorkflowSummary
	for rows.Next() {
		var (
			id      string
			payload []byte
			sum     string
		)
		if err := rows.Scan(&id, &payload, &sum); err != nil {
			return nil, &reelflow.StoreError{Op: "list", Err: fmt.Errorf("could not scan checkpoint: %w", err)}
		}
		state, err := unmarshalState("list", id, payload, sum)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, state.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, &reelflow.StoreError{Op: "list", Err: fmt.Errorf("could not iterate checkpoints: %w", err)}
	}

	return summaries, nil
}
