package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"bildoro-server/modules/common/config"
	"bildoro-server/modules/common/model"
)

// Descending order for created_at listings.
var postgrestOrderDesc = postgrest.OrderOpts{Ascending: false}

type Client struct {
	supabase   *supabase.Client
	httpClient *http.Client
}

// NewClient - Database 클라이언트 생성
func NewClient() *Client {
	cfg := config.GetConfig()

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ Failed to create Supabase client: %v", err)
		return nil
	}

	return &Client{
		supabase:   supabaseClient,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchUser - bildoro_users에서 사용자 조회
func (c *Client) FetchUser(ctx context.Context, userID string) (*model.User, error) {
	var users []model.User

	data, _, err := c.supabase.From("bildoro_users").
		Select("*", "exact", false).
		Eq("id", userID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query bildoro_users: %w", err)
	}

	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}

	if len(users) == 0 {
		return nil, nil
	}

	return &users[0], nil
}

// CreateUser - 사용자 row 생성 (free tier 기본값)
func (c *Client) CreateUser(ctx context.Context, userID, email, username string, freeTokens int) (*model.User, error) {
	log.Printf("👤 Creating user row: %s (%s) with %d free tokens", userID, email, freeTokens)

	insertData := map[string]interface{}{
		"id":                  userID,
		"email":               email,
		"username":            username,
		"tokens":              freeTokens,
		"token_type":          model.TokenTypeFree,
		"subscription_status": model.SubscriptionFree,
	}

	data, _, err := c.supabase.From("bildoro_users").
		Insert(insertData, false, "", "", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	var users []model.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to parse inserted user: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no user row returned")
	}

	log.Printf("✅ User row created: %s", userID)
	return &users[0], nil
}

// UpdateUserFields - 사용자 필드 부분 업데이트 (Stripe webhook 등)
func (c *Client) UpdateUserFields(ctx context.Context, userID string, fields map[string]interface{}) error {
	_, _, err := c.supabase.From("bildoro_users").
		Update(fields, "", "").
		Eq("id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", userID, err)
	}
	return nil
}

// FetchUserByCustomerID - Stripe customer ID로 사용자 조회
func (c *Client) FetchUserByCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	var users []model.User

	data, _, err := c.supabase.From("bildoro_users").
		Select("*", "exact", false).
		Eq("stripe_customer_id", customerID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query user by customer id: %w", err)
	}

	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// DeleteUser - 사용자 삭제 (DB cascade로 레코드/트랜잭션 함께 삭제)
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	log.Printf("🗑️  Deleting user and cascaded records: %s", userID)

	_, _, err := c.supabase.From("bildoro_users").
		Delete("", "").
		Eq("id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", userID, err)
	}

	log.Printf("✅ User deleted: %s", userID)
	return nil
}

// rpcResult - bildoro_*_tokens Postgres 함수 공통 반환형
type rpcResult struct {
	NewBalance int `json:"new_balance"`
}

// callTokenRPC invokes one of the bildoro token ledger Postgres functions via
// the REST rpc endpoint. Each function updates the counter and appends the
// transaction row inside a single statement, so the counter can never go
// negative and no check-then-act gap exists.
func (c *Client) callTokenRPC(ctx context.Context, fn string, payload map[string]interface{}) (int, error) {
	cfg := config.GetConfig()

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal rpc payload: %w", err)
	}

	rpcURL := fmt.Sprintf("%s/rest/v1/rpc/%s", cfg.SupabaseURL, fn)
	req, err := http.NewRequestWithContext(ctx, "POST", rpcURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create rpc request: %w", err)
	}
	req.Header.Set("apikey", cfg.SupabaseServiceKey)
	req.Header.Set("Authorization", "Bearer "+cfg.SupabaseServiceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rpc %s failed: %w", fn, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read rpc response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rpc %s returned status %d: %s", fn, resp.StatusCode, string(respBody))
	}

	var result rpcResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("failed to parse rpc response: %w", err)
	}

	return result.NewBalance, nil
}

// DeductTokensGuarded - 단일 구문 조건부 차감.
// Returns the new balance, or insufficient=true when the guarded update
// matched no row (balance < amount).
func (c *Client) DeductTokensGuarded(ctx context.Context, userID string, amount int, reason string) (newBalance int, insufficient bool, err error) {
	balance, err := c.callTokenRPC(ctx, "bildoro_deduct_tokens", map[string]interface{}{
		"p_user_id": userID,
		"p_amount":  amount,
		"p_reason":  reason,
	})
	if err != nil {
		return 0, false, err
	}
	// The function returns -1 when tokens < amount (no row updated).
	if balance < 0 {
		return 0, true, nil
	}
	return balance, false, nil
}

// AddTokensAtomic - 증가 + 트랜잭션 기록 (단일 구문)
func (c *Client) AddTokensAtomic(ctx context.Context, userID string, amount int, txType, reason string, stripeEventID *string) (int, error) {
	payload := map[string]interface{}{
		"p_user_id": userID,
		"p_amount":  amount,
		"p_type":    txType,
		"p_reason":  reason,
	}
	if stripeEventID != nil {
		payload["p_stripe_event_id"] = *stripeEventID
	}
	return c.callTokenRPC(ctx, "bildoro_add_tokens", payload)
}

// SetTokensAtomic - 잔액 덮어쓰기 + 트랜잭션 기록 (단일 구문)
func (c *Client) SetTokensAtomic(ctx context.Context, userID string, amount int, tokenType, reason string, stripeEventID *string) (int, error) {
	payload := map[string]interface{}{
		"p_user_id":    userID,
		"p_amount":     amount,
		"p_token_type": tokenType,
		"p_reason":     reason,
	}
	if stripeEventID != nil {
		payload["p_stripe_event_id"] = *stripeEventID
	}
	return c.callTokenRPC(ctx, "bildoro_set_tokens", payload)
}

// ListTokenTransactions - 사용자 트랜잭션 내역 조회 (최신순)
func (c *Client) ListTokenTransactions(ctx context.Context, userID string, limit int) ([]model.TokenTransaction, error) {
	var txns []model.TokenTransaction

	data, _, err := c.supabase.From("bildoro_token_transactions").
		Select("*", "exact", false).
		Eq("user_id", userID).
		Order("created_at", &postgrestOrderDesc).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query token transactions: %w", err)
	}

	if err := json.Unmarshal(data, &txns); err != nil {
		return nil, fmt.Errorf("failed to parse transactions: %w", err)
	}
	return txns, nil
}
