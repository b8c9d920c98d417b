package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/config"
	"bildoro-server/modules/common/model"
)

// fakeStore mirrors the guarded SQL semantics in memory: the deduct only
// succeeds when tokens >= amount, and every mutation appends a transaction.
type fakeStore struct {
	users map[string]*model.User
	txns  []model.TokenTransaction
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*model.User{}}
}

func (f *fakeStore) FetchUser(ctx context.Context, userID string) (*model.User, error) {
	return f.users[userID], nil
}

func (f *fakeStore) CreateUser(ctx context.Context, userID, email, username string, freeTokens int) (*model.User, error) {
	user := &model.User{
		ID: userID, Email: email, Username: username,
		Tokens: freeTokens, TokenType: model.TokenTypeFree,
		SubscriptionStatus: model.SubscriptionFree,
	}
	f.users[userID] = user
	return user, nil
}

func (f *fakeStore) DeductTokensGuarded(ctx context.Context, userID string, amount int, reason string) (int, bool, error) {
	user, ok := f.users[userID]
	if !ok {
		return 0, false, fmt.Errorf("user not found: %s", userID)
	}
	if user.Tokens < amount {
		return 0, true, nil
	}
	user.Tokens -= amount
	f.txns = append(f.txns, model.TokenTransaction{
		UserID: userID, Amount: -amount, Type: model.TxTypeDeduct,
		Reason: reason, BalanceAfter: user.Tokens,
	})
	return user.Tokens, false, nil
}

func (f *fakeStore) AddTokensAtomic(ctx context.Context, userID string, amount int, txType, reason string, stripeEventID *string) (int, error) {
	user, ok := f.users[userID]
	if !ok {
		return 0, fmt.Errorf("user not found: %s", userID)
	}
	user.Tokens += amount
	f.txns = append(f.txns, model.TokenTransaction{
		UserID: userID, Amount: amount, Type: txType,
		Reason: reason, BalanceAfter: user.Tokens, StripeEventID: stripeEventID,
	})
	return user.Tokens, nil
}

func (f *fakeStore) SetTokensAtomic(ctx context.Context, userID string, amount int, tokenType, reason string, stripeEventID *string) (int, error) {
	user, ok := f.users[userID]
	if !ok {
		return 0, fmt.Errorf("user not found: %s", userID)
	}
	user.Tokens = amount
	user.TokenType = tokenType
	f.txns = append(f.txns, model.TokenTransaction{
		UserID: userID, Amount: amount, Type: model.TxTypeReset,
		Reason: reason, BalanceAfter: amount, StripeEventID: stripeEventID,
	})
	return amount, nil
}

func testConfig() *config.Config {
	return &config.Config{
		FreeTierTokens:       5,
		CostRevise:           2,
		CostReviseDiscounted: 1,
	}
}

func TestGetBalance_LazyCreatesUser(t *testing.T) {
	config.SetConfigForTest(testConfig())
	store := newFakeStore()
	l := New(store)

	balance, err := l.GetBalance(context.Background(), "u1", "u1@test.dev", "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, balance.Tokens)
	assert.Equal(t, model.TokenTypeFree, balance.TokenType)

	// Second read returns the same row, no second creation.
	balance, err = l.GetBalance(context.Background(), "u1", "u1@test.dev", "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, balance.Tokens)
	assert.Len(t, store.users, 1)
}

func TestDeductTokens_BalanceMath(t *testing.T) {
	config.SetConfigForTest(testConfig())
	store := newFakeStore()
	store.CreateUser(context.Background(), "u1", "", "", 10)
	l := New(store)

	newBalance, err := l.DeductTokens(context.Background(), "u1", 3, "generate")
	require.NoError(t, err)
	assert.Equal(t, 7, newBalance)

	// deduct(n) followed by a balance read yields before - n
	balance, err := l.GetBalance(context.Background(), "u1", "", "")
	require.NoError(t, err)
	assert.Equal(t, 7, balance.Tokens)

	require.Len(t, store.txns, 1)
	assert.Equal(t, -3, store.txns[0].Amount)
	assert.Equal(t, model.TxTypeDeduct, store.txns[0].Type)
	assert.Equal(t, 7, store.txns[0].BalanceAfter)
}

func TestDeductTokens_InsufficientLeavesEverythingUntouched(t *testing.T) {
	config.SetConfigForTest(testConfig())
	store := newFakeStore()
	store.CreateUser(context.Background(), "u1", "", "", 2)
	l := New(store)

	_, err := l.DeductTokens(context.Background(), "u1", 3, "generate")
	assert.ErrorIs(t, err, apierr.ErrInsufficientTokens)

	// No balance change, no transaction row.
	assert.Equal(t, 2, store.users["u1"].Tokens)
	assert.Empty(t, store.txns)
}

func TestDeductTokens_ExactBalanceSucceeds(t *testing.T) {
	config.SetConfigForTest(testConfig())
	store := newFakeStore()
	store.CreateUser(context.Background(), "u1", "", "", 3)
	l := New(store)

	newBalance, err := l.DeductTokens(context.Background(), "u1", 3, "generate")
	require.NoError(t, err)
	assert.Equal(t, 0, newBalance)
	assert.Equal(t, 0, store.users["u1"].Tokens)
}

func TestDeductTokens_NeverNegative(t *testing.T) {
	config.SetConfigForTest(testConfig())
	store := newFakeStore()
	store.CreateUser(context.Background(), "u1", "", "", 4)
	l := New(store)

	// A sequence of deducts can never drive the balance below zero.
	amounts := []int{2, 1, 3, 1, 2}
	for _, n := range amounts {
		l.DeductTokens(context.Background(), "u1", n, "seq")
		assert.GreaterOrEqual(t, store.users["u1"].Tokens, 0)
	}
}

func TestCheckTokens(t *testing.T) {
	config.SetConfigForTest(testConfig())
	store := newFakeStore()
	store.CreateUser(context.Background(), "u1", "", "", 3)
	l := New(store)

	ok, err := l.CheckTokens(context.Background(), "u1", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.CheckTokens(context.Background(), "u1", 4)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.CheckTokens(context.Background(), "missing", 1)
	assert.Error(t, err)
}

func TestAddAndSetTokens(t *testing.T) {
	config.SetConfigForTest(testConfig())
	store := newFakeStore()
	store.CreateUser(context.Background(), "u1", "", "", 1)
	l := New(store)

	eventID := "evt_123"
	newBalance, err := l.AddTokens(context.Background(), "u1", 50, model.TxTypePurchase, "token pack", &eventID)
	require.NoError(t, err)
	assert.Equal(t, 51, newBalance)

	newBalance, err = l.SetTokens(context.Background(), "u1", 100, model.TokenTypeSubscription, "subscription start", &eventID)
	require.NoError(t, err)
	assert.Equal(t, 100, newBalance)
	assert.Equal(t, model.TokenTypeSubscription, store.users["u1"].TokenType)

	require.Len(t, store.txns, 2)
	assert.Equal(t, &eventID, store.txns[0].StripeEventID)
}

func TestReviseCost_DiscountBoundary(t *testing.T) {
	cfg := testConfig()

	// Exactly two discounted revisions: counts 0 and 1.
	assert.Equal(t, 1, ReviseCost(cfg, 0))
	assert.Equal(t, 1, ReviseCost(cfg, 1))
	assert.Equal(t, 2, ReviseCost(cfg, 2))
	assert.Equal(t, 2, ReviseCost(cfg, 3))
}
