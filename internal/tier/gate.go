// Package tier decides which generation tier a request runs under and spends
// the user's entitlement. Admission happens inside the job-creation
// transaction so a tier run is never consumed without a job existing.
package tier

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"server/internal/domain"
)

// Gate arbitrates tier admission against the user's entitlement counters.
type Gate struct {
	users domain.UserRepository
}

// NewGate creates a tier gate over the user repository.
func NewGate(users domain.UserRepository) *Gate {
	return &Gate{users: users}
}

// Admit decides the tier for the user's next generation run and consumes the
// entitlement inside tx. The user row is locked for the duration of tx, so
// two concurrent requests cannot both spend the same run.
//
// Decision order: the free run is spent first; after that a premium purchase
// is required, and premium runs are capped at domain.PremiumGenerationLimit.
func (g *Gate) Admit(ctx context.Context, tx pgx.Tx, userID string) (domain.Tier, error) {
	user, err := g.users.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return "", fmt.Errorf("lock user for admission: %w", err)
	}

	if !user.HasUsedFreeTier {
		user.HasUsedFreeTier = true
		if err := g.users.UpdateTierCounters(ctx, tx, user); err != nil {
			return "", fmt.Errorf("spend free run: %w", err)
		}
		return domain.TierFree, nil
	}

	if !user.HasPurchasedPremium {
		return "", domain.ErrPaymentRequired
	}
	if user.PremiumGenerationsRemaining() == 0 {
		return "", domain.ErrPremiumExhausted
	}

	user.PremiumGenerationsUsed++
	if err := g.users.UpdateTierCounters(ctx, tx, user); err != nil {
		return "", fmt.Errorf("spend premium run: %w", err)
	}
	return domain.TierPremium, nil
}

// MarkPremiumPurchased flips the purchase flag inside tx. Called from the
// premium-confirmed hook; idempotent when the flag is already set.
func (g *Gate) MarkPremiumPurchased(ctx context.Context, tx pgx.Tx, userID string) (*domain.User, error) {
	user, err := g.users.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock user for purchase: %w", err)
	}
	if user.HasPurchasedPremium {
		return user, nil
	}
	user.HasPurchasedPremium = true
	if err := g.users.UpdateTierCounters(ctx, tx, user); err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}
	return user, nil
}

// Status is the point-in-time entitlement view served to clients.
type Status struct {
	Tier                 string `json:"tier"`
	CanGenerate          bool   `json:"can_generate"`
	HasUsedFreeTier      bool   `json:"has_used_free_tier"`
	HasPurchasedPremium  bool   `json:"has_purchased_premium"`
	RemainingGenerations int    `json:"remaining_generations"`
	Message              string `json:"message"`
}

// StatusFor computes the entitlement view for a user. Pure; no locking, the
// answer may be stale by the time the client acts on it.
func StatusFor(user *domain.User) Status {
	switch {
	case !user.HasUsedFreeTier:
		return Status{
			Tier:                 string(domain.TierFree),
			CanGenerate:          true,
			RemainingGenerations: 1,
			Message:              "Your free generation is available.",
		}
	case user.HasPurchasedPremium && user.PremiumGenerationsRemaining() > 0:
		return Status{
			Tier:                 string(domain.TierPremium),
			CanGenerate:          true,
			HasUsedFreeTier:      true,
			HasPurchasedPremium:  true,
			RemainingGenerations: user.PremiumGenerationsRemaining(),
			Message:              fmt.Sprintf("You have %d premium generation(s) remaining.", user.PremiumGenerationsRemaining()),
		}
	case user.HasPurchasedPremium:
		return Status{
			Tier:                "premium_exhausted",
			HasUsedFreeTier:     true,
			HasPurchasedPremium: true,
			Message:             "You have used all of your premium generations.",
		}
	default:
		return Status{
			Tier:            "needs_payment",
			HasUsedFreeTier: true,
			Message:         "Purchase premium to generate more portraits.",
		}
	}
}
