package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	"github.com/trinitydeploy/trinity/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore is the in-flight resource ledger. It implements
// engine.ResourceObserver: a row is written for every tracked resource,
// removed when rollback deletes the resource, and the run's remaining rows
// go when its tracker is cleared.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	cfg      Config
	logger   zerolog.Logger
	hostname string
	pid      int
	now      func() time.Time
}

var _ engine.ResourceObserver = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
	Logger          zerolog.Logger
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	hostname, _ := os.Hostname()
	return &SQLiteStore{
		path:     cfg.Path,
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "ledger").Logger(),
		hostname: hostname,
		pid:      os.Getpid(),
		now:      time.Now,
	}, nil
}

// Open creates, initializes and migrates a store.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		s.path, s.cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// ResourceTracked records a newly created resource for runID.
func (s *SQLiteStore) ResourceTracked(ctx context.Context, runID string, res engine.TrackedResource) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO ledger_runs (run_id, hostname, pid, started_at)
		VALUES (?, ?, ?, ?)
	`, runID, s.hostname, s.pid, now); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tracked_resources (run_id, seq, platform, kind, resource_id, name, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM tracked_resources WHERE run_id = ?), ?, ?, ?, ?, ?)
	`, runID, runID, res.Platform, res.Kind, res.ID, res.Name, now); err != nil {
		return fmt.Errorf("failed to record resource: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resource: %w", err)
	}
	return nil
}

// TrackerCleared removes every row for runID.
func (s *SQLiteStore) TrackerCleared(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracked_resources WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear resources: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

// Orphans lists every run that still has recorded resources, oldest first.
func (s *SQLiteStore) Orphans(ctx context.Context) ([]OrphanRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, COALESCE(l.hostname, ''), COALESCE(l.pid, 0), l.started_at, r.created_at,
		       r.platform, r.kind, r.resource_id, r.name
		FROM tracked_resources r
		LEFT JOIN ledger_runs l ON l.run_id = r.run_id
		ORDER BY COALESCE(l.started_at, r.created_at), r.run_id, r.seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphans: %w", err)
	}
	defer rows.Close()

	var runs []OrphanRun
	for rows.Next() {
		var (
			run       OrphanRun
			res       engine.TrackedResource
			startedAt sql.NullTime
		)
		if err := rows.Scan(&run.RunID, &run.Hostname, &run.PID, &startedAt, &run.StartedAt,
			&res.Platform, &res.Kind, &res.ID, &res.Name); err != nil {
			return nil, fmt.Errorf("failed to scan orphan: %w", err)
		}
		if startedAt.Valid {
			run.StartedAt = startedAt.Time
		}

		if n := len(runs); n > 0 && runs[n-1].RunID == run.RunID {
			runs[n-1].Resources = append(runs[n-1].Resources, res)
			continue
		}
		run.Resources = []engine.TrackedResource{res}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orphans: %w", err)
	}

	return runs, nil
}

// Cleanup deletes orphaned resources through d, newest resource first within
// each run. Rows are removed as their resources are deleted; resources that
// fail to delete stay recorded for a later attempt.
func (s *SQLiteStore) Cleanup(ctx context.Context, d Deleter, filter CleanupFilter) ([]CleanupResult, error) {
	runs, err := s.Orphans(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-filter.OlderThan)
	var results []CleanupResult
	for _, run := range runs {
		if filter.RunID != "" && run.RunID != filter.RunID {
			continue
		}
		if filter.OlderThan > 0 && run.StartedAt.After(cutoff) {
			s.logger.Debug().Str("run_id", run.RunID).Msg("skipping recent run")
			continue
		}

		result := CleanupResult{RunID: run.RunID}
		resources := slices.Clone(run.Resources)
		slices.Reverse(resources)

		for _, res := range resources {
			if err := d.Delete(ctx, res); err != nil {
				s.logger.Warn().Err(err).
					Str("run_id", run.RunID).
					Str("platform", string(res.Platform)).
					Str("resource_id", res.ID).
					Msg("orphan cleanup failed")
				result.Leftover = append(result.Leftover, res)
				result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", res.Platform, res.Label(), err))
				continue
			}
			if err := s.ResourceDeleted(ctx, run.RunID, res); err != nil {
				return results, err
			}
			result.Deleted = append(result.Deleted, res)
		}

		if result.Completed() {
			if err := s.TrackerCleared(ctx, run.RunID); err != nil {
				return results, err
			}
		}
		s.logger.Info().
			Str("run_id", run.RunID).
			Int("deleted", len(result.Deleted)).
			Int("leftover", len(result.Leftover)).
			Msg("orphan run cleaned")
		results = append(results, result)
	}

	return results, nil
}

// ResourceDeleted removes one resource row for runID. The run row stays
// until TrackerCleared.
func (s *SQLiteStore) ResourceDeleted(ctx context.Context, runID string, res engine.TrackedResource) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM tracked_resources
		WHERE run_id = ? AND platform = ? AND kind = ? AND resource_id = ?
	`, runID, res.Platform, res.Kind, res.ID); err != nil {
		return fmt.Errorf("failed to forget resource %s: %w", res.ID, err)
	}
	return nil
}
