package audit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sanitization_audit (
	id           TEXT PRIMARY KEY,
	image_sha256 TEXT NOT NULL,
	source       TEXT NOT NULL,
	method       TEXT NOT NULL,
	scanned      BOOLEAN NOT NULL,
	reason       TEXT NOT NULL,
	categories   TEXT NOT NULL,
	findings     INTEGER NOT NULL,
	regions      INTEGER NOT NULL,
	created_ms   BIGINT NOT NULL
)`

const createIndex = `CREATE INDEX IF NOT EXISTS idx_sanitization_audit_created ON sanitization_audit (created_ms)`

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store persists the sanitization audit trail in PostgreSQL or SQLite
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects to the configured database and ensures the schema exists
func Open(config Config, logger *zap.Logger) (*Store, error) {
	if config.Driver != "postgres" && config.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported audit driver: %s", config.Driver)
	}

	db, err := sqlx.Connect(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.Driver == "sqlite" {
		// one writer; an in-memory database also lives on a single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{db: db, logger: logger}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Audit store initialized successfully",
		zap.String("driver", config.Driver),
		zap.String("dsn", maskDSN(config.DSN)))

	return store, nil
}

// initialize creates the audit table and index
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create audit index: %w", err)
	}
	return nil
}

// Record inserts rec, filling in ID and CreatedAt when empty
func (s *Store) Record(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sanitization_audit
			(id, image_sha256, source, method, scanned, reason, categories, findings, regions, created_ms)
		VALUES
			(:id, :image_sha256, :source, :method, :scanned, :reason, :categories, :findings, :regions, :created_ms)`

	if _, err := s.db.NamedExecContext(ctx, query, toRow(rec)); err != nil {
		s.logger.Error("Failed to insert audit record",
			zap.Error(err),
			zap.String("source", rec.Source))
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	s.logger.Debug("Audit record inserted",
		zap.String("id", rec.ID),
		zap.Bool("scanned", rec.Scanned),
		zap.Strings("categories", rec.Categories))

	return nil
}

// Get returns the record with id
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var r row
	query := s.db.Rebind(`SELECT * FROM sanitization_audit WHERE id = ?`)
	if err := s.db.GetContext(ctx, &r, query, id); err != nil {
		return nil, fmt.Errorf("failed to get audit record %s: %w", id, err)
	}
	return r.record(), nil
}

// List returns the most recent records, newest first
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []row
	query := s.db.Rebind(`
		SELECT * FROM sanitization_audit
		ORDER BY created_ms DESC, id
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	records := make([]*Record, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}
	return records, nil
}

// Stats returns counts over the whole audit trail
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Categories: make(map[string]int64)}

	query := `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN scanned THEN 1 ELSE 0 END), 0) AS scanned,
			COALESCE(SUM(CASE WHEN regions > 0 THEN 1 ELSE 0 END), 0) AS redacted
		FROM sanitization_audit`

	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Scanned, &stats.Redacted); err != nil {
		return nil, fmt.Errorf("failed to get audit stats: %w", err)
	}
	stats.Unscanned = stats.Total - stats.Scanned

	var categories []string
	if err := s.db.SelectContext(ctx, &categories, `SELECT categories FROM sanitization_audit WHERE categories <> ''`); err != nil {
		return nil, fmt.Errorf("failed to get category stats: %w", err)
	}
	for _, joined := range categories {
		for _, c := range (row{Categories: joined}).record().Categories {
			stats.Categories[c]++
		}
	}

	return stats, nil
}

// Prune deletes records older than cutoff and returns how many were removed
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM sanitization_audit WHERE created_ms < ?`)
	res, err := s.db.ExecContext(ctx, query, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit records: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
	}
	s.logger.Info("Audit records pruned", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDSN masks the password in a connection URL or key=value DSN for logging
func maskDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		if u, err := url.Parse(dsn); err == nil {
			return u.Redacted()
		}
		return dsn
	}

	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=***"
		}
	}
	return strings.Join(fields, " ")
}
