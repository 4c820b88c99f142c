package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/allocator/internal/contracts"
)

// Imported is a stored portfolio document with its expiry
type Imported struct {
	ID          uuid.UUID       `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	ContentHash string          `json:"content_hash"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Expired reports whether the portfolio is no longer served at now
func (p Imported) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Store persists imported portfolios
type Store interface {
	Save(ctx context.Context, p Imported) error
	Get(ctx context.Context, id uuid.UUID, now time.Time) (*Imported, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// dbtx is the subset of pgx used by the repository; *pgxpool.Pool and pgx.Tx satisfy it
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores imported portfolios in PostgreSQL
// ⭐ SSOT: 가져온 포트폴리오 저장/조회는 여기서만
type Repository struct {
	db dbtx
}

// NewRepository creates a new portfolio repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Save inserts an imported portfolio
func (r *Repository) Save(ctx context.Context, p Imported) error {
	query := `
		INSERT INTO dcapal.imported_portfolios (id, payload, content_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.db.Exec(ctx, query, p.ID, []byte(p.Payload), p.ContentHash, p.CreatedAt, p.ExpiresAt); err != nil {
		return fmt.Errorf("failed to store imported portfolio: %w", err)
	}
	return nil
}

// Get returns a portfolio that has not expired at now, or contracts.ErrNotFound
func (r *Repository) Get(ctx context.Context, id uuid.UUID, now time.Time) (*Imported, error) {
	query := `
		SELECT id, payload, content_hash, created_at, expires_at
		FROM dcapal.imported_portfolios
		WHERE id = $1 AND expires_at > $2
	`

	var (
		p       Imported
		payload []byte
	)
	err := r.db.QueryRow(ctx, query, id, now).Scan(&p.ID, &payload, &p.ContentHash, &p.CreatedAt, &p.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("imported portfolio %s: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get imported portfolio: %w", err)
	}

	p.Payload = payload
	return &p, nil
}

// DeleteExpired removes every portfolio expired at now
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM dcapal.imported_portfolios WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired portfolios: %w", err)
	}
	return tag.RowsAffected(), nil
}
