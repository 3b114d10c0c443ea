package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sipeed/picocrud/pkg/config"
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/resource"
)

// Store is a resource repository with lifecycle and maintenance hooks.
type Store interface {
	resource.Repository
	// Optimize runs cheap housekeeping; safe to call while serving.
	Optimize(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverFile:
		return NewFileResourceRepository(cfg.Dir)
	case config.DriverSQLite, config.DriverPostgres:
		return OpenSQL(ctx, cfg.Driver, cfg.DSN)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// ---------------------------------------------------------------------------
// SQL document store
// ---------------------------------------------------------------------------

// Each resource is stored as one JSON document; name and updated_at are
// copied into columns for listing.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS resources (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		body       TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS resources_name_idx ON resources (name)`,
}

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// SQLResourceRepository is the resource.Repository over SQLite or Postgres.
type SQLResourceRepository struct {
	db *sqlx.DB
}

// OpenSQL connects, applies pragmas (SQLite) and runs migrations.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLResourceRepository, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == config.DriverSQLite {
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		for _, p := range sqlitePragmas {
			if _, err := db.ExecContext(ctx, p); err != nil {
				db.Close()
				return nil, fmt.Errorf("apply %q: %w", p, err)
			}
		}
	}

	repo := NewSQLResourceRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLResourceRepository wraps an open handle without touching the schema.
func NewSQLResourceRepository(db *sqlx.DB) *SQLResourceRepository {
	return &SQLResourceRepository{db: db}
}

// Migrate creates missing tables and indexes. It is idempotent.
func (r *SQLResourceRepository) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (r *SQLResourceRepository) FindByID(ctx context.Context, id domain.EntityID) (*resource.Resource, error) {
	var body string
	err := r.db.GetContext(ctx, &body, r.db.Rebind(`SELECT body FROM resources WHERE id = ?`), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.DomainNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find resource %s: %w", id, err)
	}
	return decodeResource(body)
}

func (r *SQLResourceRepository) FindAll(ctx context.Context) ([]*resource.Resource, error) {
	var bodies []string
	if err := r.db.SelectContext(ctx, &bodies, `SELECT body FROM resources ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	out := make([]*resource.Resource, 0, len(bodies))
	for _, b := range bodies {
		res, err := decodeResource(b)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *SQLResourceRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM resources`); err != nil {
		return 0, fmt.Errorf("count resources: %w", err)
	}
	return n, nil
}

// Save upserts the whole document.
func (r *SQLResourceRepository) Save(ctx context.Context, res *resource.Resource) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal resource: %w", err)
	}
	q := r.db.Rebind(`INSERT INTO resources (id, name, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, body = excluded.body, updated_at = excluded.updated_at`)
	if _, err := r.db.ExecContext(ctx, q, string(res.ID()), res.Name, string(body), res.UpdatedAt.Time); err != nil {
		return fmt.Errorf("save resource %s: %w", res.ID(), err)
	}
	return nil
}

func (r *SQLResourceRepository) Delete(ctx context.Context, id domain.EntityID) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM resources WHERE id = ?`), string(id))
	if err != nil {
		return fmt.Errorf("delete resource %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.DomainNotFoundError{ID: id}
	}
	return nil
}

// Optimize refreshes planner statistics.
func (r *SQLResourceRepository) Optimize(ctx context.Context) error {
	stmt := `ANALYZE resources`
	if r.db.DriverName() == config.DriverSQLite {
		stmt = `PRAGMA optimize`
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}
	return nil
}

func (r *SQLResourceRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func decodeResource(body string) (*resource.Resource, error) {
	var res resource.Resource
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return &res, nil
}

var _ Store = (*SQLResourceRepository)(nil)
