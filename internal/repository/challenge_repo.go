package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hive-auth/internal/model"
)

type ChallengeRepository struct {
	pool *pgxpool.Pool
}

func NewChallengeRepository(pool *pgxpool.Pool) *ChallengeRepository {
	return &ChallengeRepository{pool: pool}
}

const challengeReturning = `RETURNING id, purpose, user_id, session_data, expires_at, created_at`

func scanChallenge(row pgx.Row) (model.Challenge, error) {
	var c model.Challenge
	var purpose string
	err := row.Scan(&c.ID, &purpose, &c.UserID, &c.SessionData, &c.ExpiresAt, &c.CreatedAt)
	c.Purpose = model.ChallengePurpose(purpose)
	return c, err
}

func (r *ChallengeRepository) Put(ctx context.Context, c model.Challenge) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin put challenge: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if c.Purpose == model.ChallengeRegistration && c.UserID != "" {
		if _, err := tx.Exec(ctx,
			`DELETE FROM passkey_challenges WHERE user_id = $1 AND purpose = $2`, c.UserID, string(c.Purpose)); err != nil {
			return fmt.Errorf("replace challenge: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO passkey_challenges (id, purpose, user_id, session_data, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, string(c.Purpose), c.UserID, c.SessionData, c.ExpiresAt, c.CreatedAt); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit challenge: %w", err)
	}
	return nil
}

// Take deletes and returns the challenge, so a second call with the same id
// always fails.
func (r *ChallengeRepository) Take(ctx context.Context, id string, purpose model.ChallengePurpose) (model.Challenge, error) {
	c, err := scanChallenge(r.pool.QueryRow(ctx,
		`DELETE FROM passkey_challenges WHERE id = $1 AND purpose = $2 `+challengeReturning, id, string(purpose)))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Challenge{}, model.ErrChallengeNotFound
	}
	if err != nil {
		return model.Challenge{}, fmt.Errorf("take challenge: %w", err)
	}
	return c, nil
}

func (r *ChallengeRepository) TakeForUser(ctx context.Context, userID string, purpose model.ChallengePurpose) (model.Challenge, error) {
	c, err := scanChallenge(r.pool.QueryRow(ctx,
		`DELETE FROM passkey_challenges WHERE id = (
			SELECT id FROM passkey_challenges WHERE user_id = $1 AND purpose = $2
			ORDER BY created_at DESC LIMIT 1
		) `+challengeReturning, userID, string(purpose)))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Challenge{}, model.ErrChallengeNotFound
	}
	if err != nil {
		return model.Challenge{}, fmt.Errorf("take user challenge: %w", err)
	}
	return c, nil
}

func (r *ChallengeRepository) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM passkey_challenges WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("clean expired challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}
