package contests

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rwalker123/draco-sub020/internal/models"
)

// Repository handles contest persistence and scorer grants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a contest repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a contest by ID, or nil if not found.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Contest, error) {
	const q = `SELECT id, account_id, sport, name, home_side, away_side, starts_at, created_at
		FROM contests WHERE id = $1`
	var c models.Contest
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.AccountID, &c.Sport, &c.Name, &c.HomeSide, &c.AwaySide, &c.StartsAt, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts a new contest.
func (r *Repository) Create(ctx context.Context, c *models.Contest) error {
	const q = `INSERT INTO contests (account_id, sport, name, home_side, away_side, starts_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, c.AccountID, c.Sport, c.Name, c.HomeSide, c.AwaySide, c.StartsAt).
		Scan(&c.ID, &c.CreatedAt)
}

// ListByAccount returns all contests for an account, newest first.
func (r *Repository) ListByAccount(ctx context.Context, accountID int64) ([]models.Contest, error) {
	const q = `SELECT id, account_id, sport, name, home_side, away_side, starts_at, created_at
		FROM contests WHERE account_id = $1 ORDER BY starts_at DESC NULLS LAST, id DESC`
	rows, err := r.pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Contest
	for rows.Next() {
		var c models.Contest
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Sport, &c.Name, &c.HomeSide, &c.AwaySide, &c.StartsAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// AddScorer grants a user scoring rights for a contest.
func (r *Repository) AddScorer(ctx context.Context, contestID int64, userID uuid.UUID) error {
	const q = `INSERT INTO contest_scorers (contest_id, user_id) VALUES ($1, $2)
		ON CONFLICT (contest_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, contestID, userID)
	return err
}

// CanScore reports whether the user may score the contest: account admins may
// score any contest in their account, everyone else needs an explicit grant.
func (r *Repository) CanScore(ctx context.Context, contestID int64, userID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (
			SELECT 1 FROM contest_scorers WHERE contest_id = $1 AND user_id = $2
		) OR EXISTS (
			SELECT 1 FROM contests c JOIN users u ON u.account_id = c.account_id
			WHERE c.id = $1 AND u.id = $2 AND u.role = 'admin'
		)`
	var ok bool
	if err := r.pool.QueryRow(ctx, q, contestID, userID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
