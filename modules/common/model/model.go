package model

import "time"

// User - bildoro_users row. The tokens counter is the authoritative
// balance; bildoro_token_transactions is the append-only audit trail.
type User struct {
	ID                   string    `json:"id"`
	Email                string    `json:"email"`
	Username             string    `json:"username"`
	Tokens               int       `json:"tokens"`
	TokenType            string    `json:"token_type"`
	SubscriptionStatus   string    `json:"subscription_status"`
	StripeCustomerID     *string   `json:"stripe_customer_id"`
	StripeSubscriptionID *string   `json:"stripe_subscription_id"`
	CreatedAt            time.Time `json:"created_at"`
}

// Token types
const (
	TokenTypeFree         = "free"
	TokenTypeSubscription = "subscription"
	TokenTypeOnetime      = "onetime"
)

// Subscription statuses
const (
	SubscriptionFree     = "free"
	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
)

// TokenTransaction - append-only ledger entry. Never updated or deleted.
type TokenTransaction struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	Amount        int       `json:"amount"`
	Type          string    `json:"type"`
	Reason        string    `json:"reason"`
	BalanceAfter  int       `json:"balance_after"`
	StripeEventID *string   `json:"stripe_event_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Transaction types
const (
	TxTypeDeduct   = "deduct"
	TxTypeAdd      = "add"
	TxTypeReset    = "reset"
	TxTypePurchase = "purchase"
)

// ModelResultItem - per-model outcome inside a batch record's results array.
type ModelResultItem struct {
	ModelID  string `json:"modelId"`
	ImageURL string `json:"imageUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Photo - bildoro_photos row (single-image generate/revise flow).
type Photo struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Preset        string    `json:"preset"`
	Prompt        string    `json:"prompt"`
	InputURLs     []string  `json:"input_urls"`
	OutputURL     string    `json:"output_url"`
	ModelID       string    `json:"model_id"`
	TokensCost    int       `json:"tokens_cost"`
	RevisionCount int       `json:"revision_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// PlaygroundPhoto - bildoro_playground_photos row (multi-model compare flow).
type PlaygroundPhoto struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Prompt        string            `json:"prompt"`
	InputURLs     []string          `json:"input_urls"`
	Results       []ModelResultItem `json:"results"`
	TokensCost    int               `json:"tokens_cost"`
	RevisionCount int               `json:"revision_count"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ProStudioBatch - bildoro_prostudio_batches row.
type ProStudioBatch struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Preset     string            `json:"preset"`
	Prompt     string            `json:"prompt"`
	InputURLs  []string          `json:"input_urls"`
	Results    []ModelResultItem `json:"results"`
	TokensCost int               `json:"tokens_cost"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ImageTransformation - bildoro_image_transformations row (revise history).
type ImageTransformation struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	PhotoID    string    `json:"photo_id"`
	Prompt     string    `json:"prompt"`
	SourceURL  string    `json:"source_url"`
	OutputURL  string    `json:"output_url"`
	TokensCost int       `json:"tokens_cost"`
	CreatedAt  time.Time `json:"created_at"`
}

// VideoGeneration - bildoro_video_generations row.
type VideoGeneration struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Prompt     string            `json:"prompt"`
	InputURL   string            `json:"input_url"`
	Results    []ModelResultItem `json:"results"`
	TokensCost int               `json:"tokens_cost"`
	CreatedAt  time.Time         `json:"created_at"`
}

// WebhookEvent - bildoro_webhook_events row. The unique provider event id is
// the durable guard against Stripe's at-least-once delivery.
type WebhookEvent struct {
	ID          int64      `json:"id"`
	Provider    string     `json:"provider"`
	EventID     string     `json:"event_id"`
	EventType   string     `json:"event_type"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}
