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

type InvitationRepository struct {
	pool *pgxpool.Pool
}

func NewInvitationRepository(pool *pgxpool.Pool) *InvitationRepository {
	return &InvitationRepository{pool: pool}
}

func (r *InvitationRepository) Create(ctx context.Context, inv model.Invitation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO invitations (id, hive_id, email, role, token_hash, created_by, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.HiveID, inv.Email, inv.Role, inv.TokenHash, inv.CreatedBy, inv.ExpiresAt, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

func (r *InvitationRepository) FindUsable(ctx context.Context, tokenHash string, now time.Time) (model.Invitation, error) {
	var inv model.Invitation
	err := r.pool.QueryRow(ctx,
		`SELECT id, hive_id, email, role, token_hash, created_by, expires_at, used_at, used_by, created_at
		 FROM invitations
		 WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2`, tokenHash, now).
		Scan(&inv.ID, &inv.HiveID, &inv.Email, &inv.Role, &inv.TokenHash, &inv.CreatedBy,
			&inv.ExpiresAt, &inv.UsedAt, &inv.UsedBy, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Invitation{}, model.ErrInvitationInvalid
	}
	if err != nil {
		return model.Invitation{}, fmt.Errorf("find invitation: %w", err)
	}
	return inv, nil
}

// Consume marks the invitation used. It fails if another registration
// consumed it first.
func (r *InvitationRepository) Consume(ctx context.Context, id string, userID string, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE invitations SET used_at = $3, used_by = $2
		 WHERE id = $1 AND used_at IS NULL AND expires_at > $3`, id, userID, now)
	if err != nil {
		return fmt.Errorf("consume invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrInvitationInvalid
	}
	return nil
}

func (r *InvitationRepository) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM invitations WHERE used_at IS NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("clean expired invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}
