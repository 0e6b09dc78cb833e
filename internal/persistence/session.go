package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"PaperFolio/internal/query"
	"PaperFolio/internal/state"
)

// snapshotsToKeep bounds table growth; older rows are pruned on save.
const snapshotsToKeep = 16

// Open dials Postgres and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// SessionStore persists portfolio snapshots as JSONB rows. The stored shape
// is the same decimal-string DTO the query API serves, so rows are readable
// with plain SQL and survive scale changes in the engine representation.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save writes one snapshot row and prunes old ones.
func (ss *SessionStore) Save(ctx context.Context, snap state.Snapshot) error {
	data, err := json.Marshal(query.NewSnapshotResponse(snap))
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_snapshots (snapshot_id, data, as_of, created_at)
		VALUES ($1, $2, $3, now())
	`, uuid.New(), data, snap.AsOf); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM session_snapshots
		WHERE snapshot_id NOT IN (
			SELECT snapshot_id FROM session_snapshots
			ORDER BY created_at DESC
			LIMIT $1
		)
	`, snapshotsToKeep); err != nil {
		tx.Rollback()
		return fmt.Errorf("prune snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadLatest returns the most recent snapshot, or ok=false on a cold start.
func (ss *SessionStore) LoadLatest(ctx context.Context) (state.Snapshot, bool, error) {
	var data []byte
	err := ss.db.QueryRowContext(ctx, `
		SELECT data FROM session_snapshots
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&data)
	if err == sql.ErrNoRows {
		return state.Snapshot{}, false, nil
	}
	if err != nil {
		return state.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	var resp query.SnapshotResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return state.Snapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	snap, err := resp.ToSnapshot()
	if err != nil {
		return state.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}
