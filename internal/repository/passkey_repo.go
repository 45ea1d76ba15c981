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

type PasskeyRepository struct {
	pool *pgxpool.Pool
}

func NewPasskeyRepository(pool *pgxpool.Pool) *PasskeyRepository {
	return &PasskeyRepository{pool: pool}
}

const passkeyColumns = `id, user_id, credential, device_name, created_at, last_used_at`

func scanPasskey(row pgx.Row) (model.PasskeyCredential, error) {
	var p model.PasskeyCredential
	err := row.Scan(&p.ID, &p.UserID, &p.Credential, &p.DeviceName, &p.CreatedAt, &p.LastUsedAt)
	return p, err
}

func (r *PasskeyRepository) Create(ctx context.Context, p model.PasskeyCredential) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO passkey_credentials (id, user_id, credential, device_name, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.UserID, p.Credential, p.DeviceName, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("store passkey: %w", err)
	}
	return nil
}

func (r *PasskeyRepository) FindByID(ctx context.Context, id string) (model.PasskeyCredential, error) {
	p, err := scanPasskey(r.pool.QueryRow(ctx, `SELECT `+passkeyColumns+` FROM passkey_credentials WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PasskeyCredential{}, model.ErrPasskeyNotFound
	}
	if err != nil {
		return model.PasskeyCredential{}, fmt.Errorf("find passkey: %w", err)
	}
	return p, nil
}

func (r *PasskeyRepository) ListForUser(ctx context.Context, userID string) ([]model.PasskeyCredential, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+passkeyColumns+` FROM passkey_credentials WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list passkeys: %w", err)
	}
	defer rows.Close()

	out := make([]model.PasskeyCredential, 0)
	for rows.Next() {
		p, err := scanPasskey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan passkey: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PasskeyRepository) RecordUse(ctx context.Context, id string, credential []byte, usedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE passkey_credentials SET credential = $2, last_used_at = $3 WHERE id = $1`, id, credential, usedAt)
	if err != nil {
		return fmt.Errorf("record passkey use: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrPasskeyNotFound
	}
	return nil
}

func (r *PasskeyRepository) Delete(ctx context.Context, userID string, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM passkey_credentials WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete passkey: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrPasskeyNotFound
	}
	return nil
}
