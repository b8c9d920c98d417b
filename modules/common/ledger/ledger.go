package ledger

import (
	"context"
	"fmt"
	"log"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/config"
	"bildoro-server/modules/common/model"
)

// Store is the slice of the database client the ledger needs. The production
// implementation is *database.Client; tests substitute an in-memory fake.
type Store interface {
	FetchUser(ctx context.Context, userID string) (*model.User, error)
	CreateUser(ctx context.Context, userID, email, username string, freeTokens int) (*model.User, error)
	DeductTokensGuarded(ctx context.Context, userID string, amount int, reason string) (newBalance int, insufficient bool, err error)
	AddTokensAtomic(ctx context.Context, userID string, amount int, txType, reason string, stripeEventID *string) (int, error)
	SetTokensAtomic(ctx context.Context, userID string, amount int, tokenType, reason string, stripeEventID *string) (int, error)
}

type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Balance - 잔액 조회 결과
type Balance struct {
	Tokens             int    `json:"tokens"`
	TokenType          string `json:"tokenType"`
	SubscriptionStatus string `json:"subscriptionStatus"`
}

// GetBalance reads the current balance. When no user row exists yet (auth
// succeeded but the signup sync raced), a free-tier row is created lazily.
func (l *Ledger) GetBalance(ctx context.Context, userID, email, username string) (*Balance, error) {
	user, err := l.store.FetchUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user == nil {
		cfg := config.GetConfig()
		log.Printf("👤 No user row for %s yet, creating with %d free tokens", userID, cfg.FreeTierTokens)
		user, err = l.store.CreateUser(ctx, userID, email, username, cfg.FreeTierTokens)
		if err != nil {
			return nil, err
		}
	}

	return &Balance{
		Tokens:             user.Tokens,
		TokenType:          user.TokenType,
		SubscriptionStatus: user.SubscriptionStatus,
	}, nil
}

// CheckTokens - 잔액 충분 여부. 사용자 없으면 에러.
func (l *Ledger) CheckTokens(ctx context.Context, userID string, amount int) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("negative amount: %d", amount)
	}

	user, err := l.store.FetchUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, fmt.Errorf("user not found: %s", userID)
	}

	return user.Tokens >= amount, nil
}

// DeductTokens decrements the balance and appends the transaction row in one
// guarded statement. There is no gap between the sufficiency check and the
// decrement: the update matches only rows with tokens >= amount, so
// concurrent requests cannot drive the counter negative.
func (l *Ledger) DeductTokens(ctx context.Context, userID string, amount int, reason string) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative amount: %d", amount)
	}
	if amount == 0 {
		user, err := l.store.FetchUser(ctx, userID)
		if err != nil {
			return 0, err
		}
		if user == nil {
			return 0, fmt.Errorf("user not found: %s", userID)
		}
		return user.Tokens, nil
	}

	log.Printf("💰 Deducting %d tokens from %s (%s)", amount, userID, reason)

	newBalance, insufficient, err := l.store.DeductTokensGuarded(ctx, userID, amount, reason)
	if err != nil {
		return 0, err
	}
	if insufficient {
		log.Printf("⚠️  Insufficient tokens for %s: need %d", userID, amount)
		return 0, apierr.ErrInsufficientTokens
	}

	log.Printf("✅ Tokens deducted: -%d → balance %d", amount, newBalance)
	return newBalance, nil
}

// AddTokens - 증가 + 원장 기록 (Stripe webhook 구매/갱신 경로)
func (l *Ledger) AddTokens(ctx context.Context, userID string, amount int, txType, reason string, stripeEventID *string) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative amount: %d", amount)
	}

	newBalance, err := l.store.AddTokensAtomic(ctx, userID, amount, txType, reason, stripeEventID)
	if err != nil {
		return 0, err
	}

	log.Printf("✅ Tokens added: +%d → balance %d (%s)", amount, newBalance, reason)
	return newBalance, nil
}

// SetTokens - 잔액 덮어쓰기 + 원장 기록 (구독 할당량 리셋)
func (l *Ledger) SetTokens(ctx context.Context, userID string, amount int, tokenType, reason string, stripeEventID *string) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative amount: %d", amount)
	}

	newBalance, err := l.store.SetTokensAtomic(ctx, userID, amount, tokenType, reason, stripeEventID)
	if err != nil {
		return 0, err
	}

	log.Printf("✅ Tokens set to %d for %s (%s)", amount, userID, reason)
	return newBalance, nil
}

// ReviseCost returns the token cost of a revision. The first two revisions of
// a record are discounted; revisionCount < 2 is the inclusive boundary, so
// exactly two discounted revisions are possible.
func ReviseCost(cfg *config.Config, revisionCount int) int {
	if revisionCount < 2 {
		return cfg.CostReviseDiscounted
	}
	return cfg.CostRevise
}
