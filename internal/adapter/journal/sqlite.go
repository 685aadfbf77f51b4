// Package journal persists dispatch outcomes in SQLite so operators can
// inspect recent routing decisions and outcomes after the fact.
package journal

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"switchboard/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS dispatches (
	id          TEXT PRIMARY KEY,
	request_id  TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	intent      TEXT NOT NULL,
	agent_name  TEXT NOT NULL,
	agent_kind  TEXT NOT NULL,
	confidence  REAL NOT NULL,
	is_fallback INTEGER NOT NULL,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dispatches_created_at ON dispatches(created_at);
`

// SQLite implements domain.DispatchJournal on a local SQLite file.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New opens (or creates) the journal database at dbPath and runs migrations.
func New(dbPath string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, domain.NewDomainError("journal.New", domain.ErrJournal, err.Error())
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, domain.NewDomainError("journal.New", domain.ErrJournal, "pragma: "+err.Error())
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, domain.NewDomainError("journal.New", domain.ErrJournal, "migrate: "+err.Error())
	}

	return &SQLite{
		db:      db,
		logger:  logger,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

// Record implements domain.DispatchJournal.
func (s *SQLite) Record(ctx context.Context, rec domain.DispatchRecord) error {
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatches
			(id, request_id, prompt, intent, agent_name, agent_kind, confidence,
			 is_fallback, status, message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, rec.Prompt, rec.Intent, rec.AgentName,
		string(rec.AgentKind), rec.Confidence, boolToInt(rec.IsFallback),
		string(rec.Status), rec.Message, rec.Duration.Milliseconds(),
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return domain.NewDomainError("SQLite.Record", domain.ErrJournal, err.Error())
	}
	return nil
}

// Recent implements domain.DispatchJournal. Records come back newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]domain.DispatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, prompt, intent, agent_name, agent_kind, confidence,
		       is_fallback, status, message, duration_ms, created_at
		FROM dispatches
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, domain.NewDomainError("SQLite.Recent", domain.ErrJournal, err.Error())
	}
	defer rows.Close()

	var records []domain.DispatchRecord
	for rows.Next() {
		var (
			rec        domain.DispatchRecord
			kind       string
			status     string
			isFallback int
			durationMS int64
			createdAt  int64
		)
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Prompt, &rec.Intent,
			&rec.AgentName, &kind, &rec.Confidence, &isFallback, &status,
			&rec.Message, &durationMS, &createdAt); err != nil {
			return nil, domain.NewDomainError("SQLite.Recent", domain.ErrJournal, "scan: "+err.Error())
		}
		rec.AgentKind = domain.AgentKind(kind)
		rec.Status = domain.ResultStatus(status)
		rec.IsFallback = isFallback != 0
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDomainError("SQLite.Recent", domain.ErrJournal, err.Error())
	}
	return records, nil
}

// PruneBefore implements domain.DispatchJournal.
func (s *SQLite) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM dispatches WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, domain.NewDomainError("SQLite.PruneBefore", domain.ErrJournal, err.Error())
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, domain.NewDomainError("SQLite.PruneBefore", domain.ErrJournal, err.Error())
	}
	if removed > 0 {
		s.logger.Info("journal pruned", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ domain.DispatchJournal = (*SQLite)(nil)
