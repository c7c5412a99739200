// Package postgres implements the mediastore registry and admin
// directory on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artreg/mediastore/pkg/mediastore"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements mediastore.Registry and mediastore.AdminDirectory
// using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("storage backend already exists")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// CreateBackend inserts a backend row. Used by configuration bootstrap,
// one row per credential set.
func (r *Repository) CreateBackend(ctx context.Context, backend *mediastore.StorageBackend) error {
	query := `
		INSERT INTO storage_backends (
			id, credential, is_active, used_bytes, total_bytes, last_polled_at
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		backend.ID, backend.Credential, backend.IsActive,
		backend.UsedBytes, backend.TotalBytes, backend.LastPolledAt)
	if err != nil {
		return r.handlePostgresError("create backend", err)
	}
	return nil
}

// SetActive flips a backend's activation flag.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE storage_backends SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return r.handlePostgresError("set active", err)
	}
	if tag.RowsAffected() == 0 {
		return mediastore.ErrBackendNotFound
	}
	return nil
}

// ListActive returns all backends with is_active = true.
func (r *Repository) ListActive(ctx context.Context) ([]*mediastore.StorageBackend, error) {
	query := `
		SELECT id, credential, is_active, used_bytes, total_bytes, last_polled_at
		FROM storage_backends
		WHERE is_active = TRUE`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.handlePostgresError("list active backends", err)
	}
	defer rows.Close()

	var backends []*mediastore.StorageBackend
	for rows.Next() {
		backend, err := scanBackend(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan backend", err)
		}
		backends = append(backends, backend)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list active backends", err)
	}
	return backends, nil
}

// Get returns the backend with the given id or ErrBackendNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*mediastore.StorageBackend, error) {
	query := `
		SELECT id, credential, is_active, used_bytes, total_bytes, last_polled_at
		FROM storage_backends
		WHERE id = $1`

	backend, err := scanBackend(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediastore.ErrBackendNotFound
		}
		return nil, r.handlePostgresError("get backend", err)
	}
	return backend, nil
}

// UpdateUsage persists new usage figures and stamps last_polled_at.
func (r *Repository) UpdateUsage(ctx context.Context, id string, usedBytes, totalBytes int64) error {
	query := `
		UPDATE storage_backends
		SET used_bytes = $2, total_bytes = $3, last_polled_at = $4
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, usedBytes, totalBytes, time.Now().UTC())
	if err != nil {
		return r.handlePostgresError("update usage", err)
	}
	if tag.RowsAffected() == 0 {
		return mediastore.ErrBackendNotFound
	}
	return nil
}

// ListAdmins returns all accounts holding the administrative role from
// the platform's users table.
func (r *Repository) ListAdmins(ctx context.Context) ([]*mediastore.Admin, error) {
	query := `
		SELECT id, name
		FROM users
		WHERE role = 'admin'`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.handlePostgresError("list admins", err)
	}
	defer rows.Close()

	var admins []*mediastore.Admin
	for rows.Next() {
		var admin mediastore.Admin
		var id string
		if err := rows.Scan(&id, &admin.Name); err != nil {
			return nil, r.handlePostgresError("scan admin", err)
		}
		admin.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", id, err)
		}
		admins = append(admins, &admin)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list admins", err)
	}
	return admins, nil
}

func scanBackend(row pgx.Row) (*mediastore.StorageBackend, error) {
	var backend mediastore.StorageBackend
	err := row.Scan(
		&backend.ID, &backend.Credential, &backend.IsActive,
		&backend.UsedBytes, &backend.TotalBytes, &backend.LastPolledAt)
	if err != nil {
		return nil, err
	}
	return &backend, nil
}
