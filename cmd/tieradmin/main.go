package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/domain"
	"server/internal/tier"
)

// tieradmin inspects and adjusts a user's generation entitlement. It is the
// operator-side stand-in for the billing flow: grant premium, reset the free
// run, or zero the premium usage counter.
func main() {
	var (
		idFlag           string
		emailFlag        string
		resetFree        bool
		grantPremium     bool
		resetPremiumUsed bool
	)

	flag.StringVar(&idFlag, "id", "", "user ID to inspect/update (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to inspect/update")
	flag.BoolVar(&resetFree, "reset-free", false, "mark the free run as unused again")
	flag.BoolVar(&grantPremium, "grant-premium", false, "mark premium as purchased")
	flag.BoolVar(&resetPremiumUsed, "reset-premium-usage", false, "zero the premium usage counter")
	flag.Parse()

	_ = godotenv.Load()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	users := repo.NewUserRepository(pool)

	var user *domain.User
	if userID != "" {
		user, err = users.GetByID(ctx, userID)
	} else {
		user, err = users.GetByEmail(ctx, email)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to load user: %w", err))
	}

	if resetFree || grantPremium || resetPremiumUsed {
		tx, err := pool.Begin(ctx)
		if err != nil {
			exitWithError(fmt.Errorf("begin transaction: %w", err))
		}
		defer tx.Rollback(ctx)

		locked, err := users.GetForUpdate(ctx, tx, user.ID)
		if err != nil {
			exitWithError(fmt.Errorf("lock user: %w", err))
		}
		if resetFree {
			locked.HasUsedFreeTier = false
		}
		if grantPremium {
			locked.HasPurchasedPremium = true
		}
		if resetPremiumUsed {
			locked.PremiumGenerationsUsed = 0
		}
		if err := users.UpdateTierCounters(ctx, tx, locked); err != nil {
			exitWithError(fmt.Errorf("update user: %w", err))
		}
		if err := tx.Commit(ctx); err != nil {
			exitWithError(fmt.Errorf("commit: %w", err))
		}
		user = locked
	}

	status := tier.StatusFor(user)
	fmt.Printf("User %s (%s)\n", user.ID, user.Email)
	fmt.Printf("  tier:                     %s\n", status.Tier)
	fmt.Printf("  can_generate:             %v\n", status.CanGenerate)
	fmt.Printf("  has_used_free_tier:       %v\n", user.HasUsedFreeTier)
	fmt.Printf("  has_purchased_premium:    %v\n", user.HasPurchasedPremium)
	fmt.Printf("  premium_generations_used: %d of %d\n", user.PremiumGenerationsUsed, domain.PremiumGenerationLimit)
	fmt.Printf("  remaining:                %d\n", status.RemainingGenerations)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
