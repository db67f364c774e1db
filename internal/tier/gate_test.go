package tier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"

	"server/internal/domain"
)

type stubUserRepo struct {
	user    *domain.User
	updated *domain.User
	getErr  error
}

func (s *stubUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	u := *s.user
	return &u, nil
}

func (s *stubUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.GetByID(ctx, email)
}

func (s *stubUserRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.User, error) {
	return s.GetByID(ctx, id)
}

func (s *stubUserRepo) UpdateTierCounters(ctx context.Context, tx pgx.Tx, user *domain.User) error {
	copied := *user
	s.updated = &copied
	return nil
}

func TestAdmitSpendsFreeRunFirst(t *testing.T) {
	repo := &stubUserRepo{user: &domain.User{ID: "u1"}}
	gate := NewGate(repo)

	tier, err := gate.Admit(context.Background(), nil, "u1")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if tier != domain.TierFree {
		t.Fatalf("tier = %q, want free", tier)
	}
	if repo.updated == nil || !repo.updated.HasUsedFreeTier {
		t.Fatal("free run not recorded")
	}
}

func TestAdmitRequiresPaymentAfterFreeRun(t *testing.T) {
	repo := &stubUserRepo{user: &domain.User{ID: "u1", HasUsedFreeTier: true}}
	gate := NewGate(repo)

	_, err := gate.Admit(context.Background(), nil, "u1")
	if !errors.Is(err, domain.ErrPaymentRequired) {
		t.Fatalf("err = %v, want ErrPaymentRequired", err)
	}
	if repo.updated != nil {
		t.Fatal("counters must not change on rejection")
	}
}

func TestAdmitPremiumConsumesRun(t *testing.T) {
	repo := &stubUserRepo{user: &domain.User{
		ID:                  "u1",
		HasUsedFreeTier:     true,
		HasPurchasedPremium: true,
	}}
	gate := NewGate(repo)

	tier, err := gate.Admit(context.Background(), nil, "u1")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if tier != domain.TierPremium {
		t.Fatalf("tier = %q, want premium", tier)
	}
	if repo.updated.PremiumGenerationsUsed != 1 {
		t.Fatalf("used = %d, want 1", repo.updated.PremiumGenerationsUsed)
	}
}

func TestAdmitPremiumExhausted(t *testing.T) {
	repo := &stubUserRepo{user: &domain.User{
		ID:                     "u1",
		HasUsedFreeTier:        true,
		HasPurchasedPremium:    true,
		PremiumGenerationsUsed: domain.PremiumGenerationLimit,
	}}
	gate := NewGate(repo)

	_, err := gate.Admit(context.Background(), nil, "u1")
	if !errors.Is(err, domain.ErrPremiumExhausted) {
		t.Fatalf("err = %v, want ErrPremiumExhausted", err)
	}
}

// rowLockTx stands in for a transaction holding a SELECT ... FOR UPDATE row
// lock: GetForUpdate takes it, Commit or Rollback releases it.
type rowLockTx struct {
	pgx.Tx
	mu       *sync.Mutex
	released bool
}

func (t *rowLockTx) Commit(ctx context.Context) error   { t.release(); return nil }
func (t *rowLockTx) Rollback(ctx context.Context) error { t.release(); return nil }

func (t *rowLockTx) release() {
	if !t.released {
		t.released = true
		t.mu.Unlock()
	}
}

type lockedUserRepo struct {
	rowLock sync.Mutex
	user    domain.User
}

func (r *lockedUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := r.user
	return &u, nil
}

func (r *lockedUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.GetByID(ctx, email)
}

func (r *lockedUserRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.User, error) {
	r.rowLock.Lock()
	u := r.user
	return &u, nil
}

func (r *lockedUserRepo) UpdateTierCounters(ctx context.Context, tx pgx.Tx, user *domain.User) error {
	r.user = *user
	return nil
}

func TestAdmitConcurrentPremiumSpendsExactlyOnce(t *testing.T) {
	repo := &lockedUserRepo{user: domain.User{
		ID:                     "u1",
		HasUsedFreeTier:        true,
		HasPurchasedPremium:    true,
		PremiumGenerationsUsed: domain.PremiumGenerationLimit - 1,
	}}
	gate := NewGate(repo)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			tx := &rowLockTx{mu: &repo.rowLock}
			_, err := gate.Admit(context.Background(), tx, "u1")
			if err != nil {
				_ = tx.Rollback(context.Background())
			} else {
				_ = tx.Commit(context.Background())
			}
			errs <- err
		}()
	}

	var admitted, exhausted int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			admitted++
		case errors.Is(err, domain.ErrPremiumExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected admission error: %v", err)
		}
	}
	if admitted != 1 || exhausted != 1 {
		t.Fatalf("admitted=%d exhausted=%d, want exactly one of each", admitted, exhausted)
	}
	if repo.user.PremiumGenerationsUsed != domain.PremiumGenerationLimit {
		t.Fatalf("used = %d, want %d", repo.user.PremiumGenerationsUsed, domain.PremiumGenerationLimit)
	}
}

func TestAdmitUnknownUser(t *testing.T) {
	repo := &stubUserRepo{getErr: domain.ErrNotFound}
	gate := NewGate(repo)

	_, err := gate.Admit(context.Background(), nil, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMarkPremiumPurchasedIdempotent(t *testing.T) {
	repo := &stubUserRepo{user: &domain.User{
		ID:                  "u1",
		HasUsedFreeTier:     true,
		HasPurchasedPremium: true,
	}}
	gate := NewGate(repo)

	user, err := gate.MarkPremiumPurchased(context.Background(), nil, "u1")
	if err != nil {
		t.Fatalf("MarkPremiumPurchased: %v", err)
	}
	if !user.HasPurchasedPremium {
		t.Fatal("flag lost")
	}
	if repo.updated != nil {
		t.Fatal("already-purchased user must not be rewritten")
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name        string
		user        domain.User
		wantTier    string
		wantCan     bool
		wantRemains int
	}{
		{"fresh account", domain.User{}, "free", true, 1},
		{"free spent", domain.User{HasUsedFreeTier: true}, "needs_payment", false, 0},
		{
			"premium active",
			domain.User{HasUsedFreeTier: true, HasPurchasedPremium: true, PremiumGenerationsUsed: 1},
			"premium", true, 1,
		},
		{
			"premium exhausted",
			domain.User{HasUsedFreeTier: true, HasPurchasedPremium: true, PremiumGenerationsUsed: domain.PremiumGenerationLimit},
			"premium_exhausted", false, 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := StatusFor(&tc.user)
			if got.Tier != tc.wantTier {
				t.Errorf("tier = %q, want %q", got.Tier, tc.wantTier)
			}
			if got.CanGenerate != tc.wantCan {
				t.Errorf("can_generate = %v, want %v", got.CanGenerate, tc.wantCan)
			}
			if got.RemainingGenerations != tc.wantRemains {
				t.Errorf("remaining = %d, want %d", got.RemainingGenerations, tc.wantRemains)
			}
		})
	}
}
