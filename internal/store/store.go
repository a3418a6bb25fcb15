package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/betflow/betflow/internal/telemetry"
)

// Store is a document KV over SQLite: named collections of JSON documents
// addressed by primary key, with expression indexes over document fields.
// It is the authoritative store; caches layered above it are per-agent
// and eventually consistent.
type Store struct {
	db *sql.DB
}

// Collection names. Created (with their indexes) at Open.
const (
	ColEvents      = "events"
	ColSignals     = "signals"
	ColSnapshots   = "market_snapshots"
	ColSimulations = "monte_carlo_simulations"
	ColParlayAudit = "parlay_generation_audit"
	ColOpsAlerts   = "ops_alerts"
	ColGrading     = "grading_records"
	ColRiskProfiles = "user_risk_profiles"
	ColRiskAlerts   = "risk_alerts"
)

// Open opens (or creates) the database and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	telemetry.Infof("store: opened %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	version := 0
	s.db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&version)

	if version < 1 {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`,
		}
		for _, col := range []string{
			ColEvents, ColSignals, ColSnapshots, ColSimulations,
			ColParlayAudit, ColOpsAlerts, ColGrading, ColRiskProfiles, ColRiskAlerts,
		} {
			stmts = append(stmts, fmt.Sprintf(
				`CREATE TABLE IF NOT EXISTS %s (
					id         TEXT PRIMARY KEY,
					doc        TEXT NOT NULL,
					created_at TEXT NOT NULL
				)`, col))
		}
		stmts = append(stmts,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_event_id ON events(json_extract(doc,'$.event_id'))`,
			`CREATE INDEX IF NOT EXISTS idx_signals_game_market ON signals(json_extract(doc,'$.game_id'), json_extract(doc,'$.market_key'))`,
			`CREATE INDEX IF NOT EXISTS idx_signals_created ON signals(json_extract(doc,'$.created_at'))`,
			`CREATE INDEX IF NOT EXISTS idx_sims_event_created ON monte_carlo_simulations(json_extract(doc,'$.event_id'), json_extract(doc,'$.created_at'))`,
			`CREATE INDEX IF NOT EXISTS idx_snapshots_hash ON market_snapshots(json_extract(doc,'$.hash'))`,
			`CREATE INDEX IF NOT EXISTS idx_parlay_audit_ts ON parlay_generation_audit(json_extract(doc,'$.timestamp'))`,
			`CREATE INDEX IF NOT EXISTS idx_ops_alerts_ts ON ops_alerts(json_extract(doc,'$.timestamp'))`,
			`INSERT OR IGNORE INTO schema_version (version) VALUES (1)`,
		)
		for _, q := range stmts {
			if _, err := s.db.Exec(q); err != nil {
				return fmt.Errorf("migration v1: %w", err)
			}
		}
		telemetry.Infof("store: applied migration v1")
	}

	return nil
}

// Ping verifies the connection, honoring the caller's deadline.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Collection returns a handle for one named collection. The name must be
// one of the Col* constants; arbitrary names are not created on the fly.
func (s *Store) Collection(name string) *Collection {
	return &Collection{db: s.db, name: name}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
