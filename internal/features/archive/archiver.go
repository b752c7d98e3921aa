package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go-approvals/internal/config"
	"go-approvals/internal/features/audit"

	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const batchSize = 500

// Archiver mirrors audit entries into an append-only Postgres table so the
// compliance record survives under its own retention policy, outside the
// operational database. The mirror is strictly one-way and idempotent:
// re-running a flush re-inserts nothing.
type Archiver struct {
	db     *sql.DB
	audit  audit.Repository
	logger *zap.Logger
}

// NewArchiver connects to the archive database when ARCHIVE_DSN is set.
// Without a DSN the archiver is disabled and Flush is a no-op.
func NewArchiver(cfg *config.Config, auditRepo audit.Repository, logger *zap.Logger) (*Archiver, error) {
	a := &Archiver{audit: auditRepo, logger: logger}
	if cfg.ArchiveDSN == "" {
		logger.Info("audit archive disabled: no ARCHIVE_DSN configured")
		return a, nil
	}

	db, err := sql.Open("postgres", cfg.ArchiveDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive connection: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		return nil, err
	}

	a.db = db
	return a, nil
}

func (a *Archiver) Enabled() bool { return a.db != nil }

func (a *Archiver) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Flush copies unarchived audit entries into Postgres. Failure leaves the
// entries unflagged, so the next run picks them up again; the decision path
// never waits on this.
func (a *Archiver) Flush(ctx context.Context) error {
	if a.db == nil {
		return nil
	}

	entries, err := a.audit.ListUnarchived(ctx, batchSize)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_archive (entry_id, request_id, actor_id, actor_name, action, details, ip_address, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (entry_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare archive insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]primitive.ObjectID, 0, len(entries))
	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			details = []byte("{}")
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID.Hex(), e.RequestID.Hex(), e.ActorID, e.ActorName,
			e.Action, details, e.IPAddress, e.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to archive entry %s: %w", e.ID.Hex(), err)
		}
		ids = append(ids, e.ID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive batch: %w", err)
	}

	if err := a.audit.MarkArchived(ctx, ids); err != nil {
		// Entries will be re-sent next run; ON CONFLICT keeps that harmless.
		a.logger.Warn("archived batch but failed to flag source entries", zap.Error(err))
	}

	a.logger.Info("flushed audit entries to archive", zap.Int("count", len(ids)))
	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_archive (
			entry_id    TEXT PRIMARY KEY,
			request_id  TEXT NOT NULL,
			actor_id    TEXT NOT NULL,
			actor_name  TEXT,
			action      TEXT NOT NULL,
			details     JSONB,
			ip_address  TEXT,
			recorded_at TIMESTAMPTZ NOT NULL,
			archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure archive schema: %w", err)
	}
	return nil
}
