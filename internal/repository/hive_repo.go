package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hive-auth/internal/model"
)

type HiveRepository struct {
	pool *pgxpool.Pool
}

func NewHiveRepository(pool *pgxpool.Pool) *HiveRepository {
	return &HiveRepository{pool: pool}
}

func (r *HiveRepository) CreateWithOwner(ctx context.Context, hive model.Hive, owner model.Person) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create hive: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO hives (id, name, type, locale, created_at) VALUES ($1, $2, $3, $4, $5)`,
		hive.ID, hive.Name, string(hive.Type), hive.Locale, hive.CreatedAt); err != nil {
		return fmt.Errorf("create hive: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO persons (id, hive_id, user_id, display_name, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		owner.ID, owner.HiveID, owner.UserID, owner.DisplayName, owner.Role, owner.CreatedAt); err != nil {
		return fmt.Errorf("create hive owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create hive: %w", err)
	}
	return nil
}

func (r *HiveRepository) FindByID(ctx context.Context, id string) (model.Hive, error) {
	var h model.Hive
	var hiveType string
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, type, locale, created_at FROM hives WHERE id = $1`, id).
		Scan(&h.ID, &h.Name, &hiveType, &h.Locale, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Hive{}, model.ErrHiveNotFound
	}
	if err != nil {
		return model.Hive{}, fmt.Errorf("find hive: %w", err)
	}
	h.Type = model.HiveType(hiveType)
	return h, nil
}

func (r *HiveRepository) AddPerson(ctx context.Context, p model.Person) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO persons (id, hive_id, user_id, display_name, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.HiveID, p.UserID, p.DisplayName, p.Role, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("add person: %w", err)
	}
	return nil
}

func (r *HiveRepository) FindPerson(ctx context.Context, hiveID string, userID string) (model.Person, error) {
	var p model.Person
	err := r.pool.QueryRow(ctx,
		`SELECT id, hive_id, user_id, display_name, role, created_at
		 FROM persons WHERE hive_id = $1 AND user_id = $2`, hiveID, userID).
		Scan(&p.ID, &p.HiveID, &p.UserID, &p.DisplayName, &p.Role, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Person{}, model.ErrNotHiveMember
	}
	if err != nil {
		return model.Person{}, fmt.Errorf("find person: %w", err)
	}
	return p, nil
}

func (r *HiveRepository) ListMemberships(ctx context.Context, userID string) ([]model.Membership, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT h.id, h.name, h.type, h.locale, h.created_at,
		        p.id, p.hive_id, p.user_id, p.display_name, p.role, p.created_at
		 FROM persons p JOIN hives h ON h.id = p.hive_id
		 WHERE p.user_id = $1
		 ORDER BY p.created_at, p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	out := make([]model.Membership, 0)
	for rows.Next() {
		var m model.Membership
		var hiveType string
		if err := rows.Scan(&m.Hive.ID, &m.Hive.Name, &hiveType, &m.Hive.Locale, &m.Hive.CreatedAt,
			&m.Person.ID, &m.Person.HiveID, &m.Person.UserID, &m.Person.DisplayName, &m.Person.Role, &m.Person.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.Hive.Type = model.HiveType(hiveType)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *HiveRepository) ListPermissionOverrides(ctx context.Context, hiveID string) ([]model.PermissionOverride, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role, permission, granted FROM hive_permission_overrides WHERE hive_id = $1`, hiveID)
	if err != nil {
		return nil, fmt.Errorf("list permission overrides: %w", err)
	}
	defer rows.Close()

	out := make([]model.PermissionOverride, 0)
	for rows.Next() {
		var o model.PermissionOverride
		var perm string
		if err := rows.Scan(&o.Role, &perm, &o.Granted); err != nil {
			return nil, fmt.Errorf("scan permission override: %w", err)
		}
		o.Permission = model.Permission(perm)
		out = append(out, o)
	}
	return out, rows.Err()
}
