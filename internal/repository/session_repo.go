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

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, user_id, token_hash, COALESCE(previous_token_hash, ''), created_at, rotated_at,
	last_used_at, expires_at, revoked_at, revocation_reason, user_agent, ip`

func scanSession(row pgx.Row) (model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.PreviousTokenHash, &s.CreatedAt, &s.RotatedAt,
		&s.LastUsedAt, &s.ExpiresAt, &s.RevokedAt, &s.RevocationReason, &s.UserAgent, &s.IP)
	return s, err
}

func (r *SessionRepository) Create(ctx context.Context, s model.Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_sessions
		 (id, user_id, token_hash, created_at, rotated_at, last_used_at, expires_at, user_agent, ip)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, s.TokenHash, s.CreatedAt, s.RotatedAt, s.LastUsedAt, s.ExpiresAt, s.UserAgent, s.IP)
	if err != nil {
		return fmt.Errorf("store refresh session: %w", err)
	}
	return nil
}

// Rotate swaps the presented refresh hash for a new one under a row lock.
// A hash that was already rotated away is a replay: inside the grace window
// it is only rejected, after it the whole session is revoked.
func (r *SessionRepository) Rotate(ctx context.Context, p model.RotateParams) (model.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Session{}, fmt.Errorf("begin rotate: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM refresh_sessions WHERE token_hash = $1 FOR UPDATE`, p.PresentedHash))
	switch {
	case err == nil:
		if current.RevokedAt != nil {
			return current, model.ErrSessionRevoked
		}
		if !p.Now.Before(current.ExpiresAt) {
			return current, model.ErrSessionExpired
		}

		current.PreviousTokenHash = current.TokenHash
		current.TokenHash = p.NewHash
		current.RotatedAt = p.Now
		current.LastUsedAt = p.Now
		current.ExpiresAt = p.Now.Add(p.TTL)

		if _, err := tx.Exec(ctx,
			`UPDATE refresh_sessions
			 SET token_hash = $2, previous_token_hash = $3, rotated_at = $4, last_used_at = $4, expires_at = $5
			 WHERE id = $1`,
			current.ID, current.TokenHash, current.PreviousTokenHash, p.Now, current.ExpiresAt); err != nil {
			return model.Session{}, fmt.Errorf("rotate refresh session: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return model.Session{}, fmt.Errorf("commit rotate: %w", err)
		}
		return current, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return model.Session{}, fmt.Errorf("lookup refresh session: %w", err)
	}

	previous, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM refresh_sessions WHERE previous_token_hash = $1 FOR UPDATE`, p.PresentedHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("lookup rotated session: %w", err)
	}
	if previous.RevokedAt != nil {
		return previous, model.ErrSessionRevoked
	}
	if p.Now.Sub(previous.RotatedAt) <= p.ReuseGrace {
		return previous, model.ErrRefreshReused
	}

	if _, err := tx.Exec(ctx,
		`UPDATE refresh_sessions SET revoked_at = $2, revocation_reason = $3 WHERE id = $1`,
		previous.ID, p.Now, model.RevokeReasonReuseDetected); err != nil {
		return model.Session{}, fmt.Errorf("revoke replayed session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Session{}, fmt.Errorf("commit reuse revocation: %w", err)
	}

	revokedAt := p.Now
	previous.RevokedAt = &revokedAt
	previous.RevocationReason = model.RevokeReasonReuseDetected
	return previous, model.ErrRefreshReuseDetected
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (model.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM refresh_sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("find refresh session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) FindByTokenHash(ctx context.Context, hash string) (model.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM refresh_sessions WHERE token_hash = $1`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("find refresh session by hash: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) Revoke(ctx context.Context, id string, reason string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_sessions SET revoked_at = $2, revocation_reason = $3
		 WHERE id = $1 AND revoked_at IS NULL`, id, at, reason)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string, reason string, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_sessions SET revoked_at = $2, revocation_reason = $3
		 WHERE user_id = $1 AND revoked_at IS NULL`, userID, at, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM refresh_sessions
		 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		 ORDER BY last_used_at DESC`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list refresh sessions: %w", err)
	}
	defer rows.Close()

	out := make([]model.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refresh session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepository) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_sessions WHERE expires_at <= $1 OR revoked_at <= $2`, now, now.Add(-24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("clean expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
