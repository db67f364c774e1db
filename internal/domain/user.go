package domain

import "time"

// PremiumGenerationLimit caps how many generation runs a premium purchase
// unlocks.
const PremiumGenerationLimit = 2

// User represents an account within the platform. Only the tier counters are
// consulted by the generation pipeline; account lifecycle lives elsewhere.
type User struct {
	ID                     string
	Email                  string
	FullName               string
	IsSuperuser            bool
	HasUsedFreeTier        bool
	HasPurchasedPremium    bool
	PremiumGenerationsUsed int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// PremiumGenerationsRemaining reports how many premium runs are left.
func (u User) PremiumGenerationsRemaining() int {
	remaining := PremiumGenerationLimit - u.PremiumGenerationsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
