package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

const userColumns = `id, email, full_name, is_superuser, has_used_free_tier, has_purchased_premium, premium_generations_used, created_at, updated_at`

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(pool *pgxpool.Pool) *UserRepositoryPG {
	return &UserRepositoryPG{pool: pool}
}

// GetByID fetches a user by UUID.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail fetches a user by email address.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetForUpdate locks the user row inside tx. Concurrent generation requests
// for the same user serialize here, which makes the tier counters race-free.
func (r *UserRepositoryPG) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.User, error) {
	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	return scanUser(row)
}

// UpdateTierCounters persists the entitlement flags and counters inside tx.
func (r *UserRepositoryPG) UpdateTierCounters(ctx context.Context, tx pgx.Tx, user *domain.User) error {
	query := `
UPDATE users
SET has_used_free_tier = $2,
    has_purchased_premium = $3,
    premium_generations_used = $4,
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := tx.Exec(ctx, query,
		user.ID,
		user.HasUsedFreeTier,
		user.HasPurchasedPremium,
		user.PremiumGenerationsUsed,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.IsSuperuser,
		&u.HasUsedFreeTier,
		&u.HasPurchasedPremium,
		&u.PremiumGenerationsUsed,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
