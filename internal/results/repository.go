package results

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rwalker123/draco-sub020/internal/models"
)

// Repository stores finalized contest results. This is the durability boundary
// for finalize: the live session only transitions to finalized after Save
// returns without error.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a results repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save writes a final result. A retried finalize for the same contest
// overwrites the previous row rather than failing on the unique constraint.
func (r *Repository) Save(ctx context.Context, res *models.ContestResult) error {
	totals, err := json.Marshal(res.Totals)
	if err != nil {
		return fmt.Errorf("marshal totals: %w", err)
	}
	line, err := json.Marshal(res.LineScore)
	if err != nil {
		return fmt.Errorf("marshal line score: %w", err)
	}
	const q = `INSERT INTO contest_results (contest_id, account_id, totals, line_score, segment_count, started_by, finalized_by, started_at, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (contest_id) DO UPDATE SET
			totals = EXCLUDED.totals,
			line_score = EXCLUDED.line_score,
			segment_count = EXCLUDED.segment_count,
			finalized_by = EXCLUDED.finalized_by,
			finalized_at = NOW()
		RETURNING id, finalized_at`
	err = r.pool.QueryRow(ctx, q, res.ContestID, res.AccountID, totals, line, res.SegmentCount, res.StartedBy, res.FinalizedBy, res.StartedAt).
		Scan(&res.ID, &res.FinalizedAt)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// GetByContest returns the final result for a contest, or nil if none exists.
func (r *Repository) GetByContest(ctx context.Context, contestID int64) (*models.ContestResult, error) {
	const q = `SELECT id, contest_id, account_id, totals, line_score, segment_count, started_by, finalized_by, started_at, finalized_at
		FROM contest_results WHERE contest_id = $1`
	var res models.ContestResult
	var totals, line []byte
	err := r.pool.QueryRow(ctx, q, contestID).Scan(&res.ID, &res.ContestID, &res.AccountID, &totals, &line, &res.SegmentCount, &res.StartedBy, &res.FinalizedBy, &res.StartedAt, &res.FinalizedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(totals, &res.Totals); err != nil {
		return nil, fmt.Errorf("unmarshal totals: %w", err)
	}
	if err := json.Unmarshal(line, &res.LineScore); err != nil {
		return nil, fmt.Errorf("unmarshal line score: %w", err)
	}
	return &res, nil
}
