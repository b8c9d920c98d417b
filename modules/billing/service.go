package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/auth"
	"bildoro-server/modules/common/config"
	"bildoro-server/modules/common/model"
)

// Ledger is the billing-facing slice of the token ledger.
type Ledger interface {
	AddTokens(ctx context.Context, userID string, amount int, txType, reason string, stripeEventID *string) (int, error)
	SetTokens(ctx context.Context, userID string, amount int, tokenType, reason string, stripeEventID *string) (int, error)
}

// Store is the billing-facing slice of the database client.
type Store interface {
	FetchUser(ctx context.Context, userID string) (*model.User, error)
	FetchUserByCustomerID(ctx context.Context, customerID string) (*model.User, error)
	UpdateUserFields(ctx context.Context, userID string, fields map[string]interface{}) error
	InsertWebhookEvent(ctx context.Context, provider, eventID, eventType string) (duplicate bool, err error)
}

// Deduper is the Redis fast path in front of the durable webhook-event row.
type Deduper interface {
	MarkOnce(ctx context.Context, key string) (bool, error)
}

// Mailer sends purchase receipts. Nil-safe on the mailer side.
type Mailer interface {
	SendPurchaseReceipt(email, product string, tokens, newBalance int)
}

type Service struct {
	ledger  Ledger
	store   Store
	deduper Deduper
	mail    Mailer
}

func NewService(ledger Ledger, store Store, deduper Deduper, mail Mailer) *Service {
	cfg := config.GetConfig()
	stripe.Key = cfg.StripeSecretKey
	return &Service{ledger: ledger, store: store, deduper: deduper, mail: mail}
}

// CreateCheckout - 구독 또는 토큰팩 결제 세션 생성
func (s *Service) CreateCheckout(ctx context.Context, user *auth.AuthUser, plan string) (*CheckoutResponse, error) {
	cfg := config.GetConfig()

	var priceID, mode string
	switch plan {
	case PlanSubscription:
		priceID = cfg.StripeSubscriptionPrice
		mode = string(stripe.CheckoutSessionModeSubscription)
	case PlanTokenPack:
		priceID = cfg.StripeTokenPackPrice
		mode = string(stripe.CheckoutSessionModePayment)
	default:
		return nil, fmt.Errorf("%w: unknown plan: %s", apierr.ErrValidation, plan)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(mode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(user.ID),
		SuccessURL:        stripe.String(cfg.SiteBaseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(cfg.SiteBaseURL + "/billing/cancel"),
	}

	// 재구매 시 기존 Stripe 고객 재사용
	row, err := s.store.FetchUser(ctx, user.ID)
	if err == nil && row != nil && row.StripeCustomerID != nil {
		params.Customer = stripe.String(*row.StripeCustomerID)
	} else if user.Email != "" {
		params.CustomerEmail = stripe.String(user.Email)
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	log.Printf("💳 [Billing] Checkout session %s created for user %s (plan: %s)", sess.ID, user.ID, plan)
	return &CheckoutResponse{
		Success:     true,
		CheckoutURL: sess.URL,
		SessionID:   sess.ID,
	}, nil
}

// ProcessEvent - 서명 검증이 끝난 Stripe 이벤트 처리. Stripe는 at-least-once
// 전달이므로 Redis SETNX 빠른 경로 + unique 이벤트 row로 토큰 지급을
// 최대 한 번으로 보장한다.
func (s *Service) ProcessEvent(ctx context.Context, event stripe.Event) error {
	if s.deduper != nil {
		first, err := s.deduper.MarkOnce(ctx, "stripe:"+event.ID)
		if err != nil {
			// Redis 장애 시 durable guard만으로 진행
			log.Printf("⚠️ [Billing] Redis dedup unavailable for event %s: %v", event.ID, err)
		} else if !first {
			log.Printf("🔁 [Billing] Event %s already seen (redis), skipping", event.ID)
			return nil
		}
	}

	duplicate, err := s.store.InsertWebhookEvent(ctx, "stripe", event.ID, string(event.Type))
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	if duplicate {
		log.Printf("🔁 [Billing] Event %s already processed, skipping", event.ID)
		return nil
	}

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	case "invoice.payment_succeeded":
		return s.handleInvoicePaid(ctx, event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	default:
		log.Printf("🔍 [Billing] Ignoring event type %s", event.Type)
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	cfg := config.GetConfig()

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	userID := sess.ClientReferenceID
	if userID == "" {
		return fmt.Errorf("checkout session %s has no client reference", sess.ID)
	}

	fields := map[string]interface{}{}
	if sess.Customer != nil {
		fields["stripe_customer_id"] = sess.Customer.ID
	}

	eventID := event.ID
	var newBalance int
	var product string
	var granted int

	switch sess.Mode {
	case stripe.CheckoutSessionModeSubscription:
		product = "BildOro subscription"
		granted = cfg.SubscriptionTokens
		balance, err := s.ledger.SetTokens(ctx, userID, granted, model.TokenTypeSubscription, "subscription started", &eventID)
		if err != nil {
			return err
		}
		newBalance = balance
		fields["subscription_status"] = model.SubscriptionActive
		if sess.Subscription != nil {
			fields["stripe_subscription_id"] = sess.Subscription.ID
		}

	case stripe.CheckoutSessionModePayment:
		product = "BildOro token pack"
		granted = cfg.TokenPackTokens
		balance, err := s.ledger.AddTokens(ctx, userID, granted, model.TxTypePurchase, "token pack purchase", &eventID)
		if err != nil {
			return err
		}
		newBalance = balance
		fields["token_type"] = model.TokenTypeOnetime

	default:
		return fmt.Errorf("unexpected checkout mode: %s", sess.Mode)
	}

	if len(fields) > 0 {
		if err := s.store.UpdateUserFields(ctx, userID, fields); err != nil {
			log.Printf("⚠️ [Billing] Failed to update user %s after checkout: %v", userID, err)
		}
	}

	log.Printf("💰 [Billing] Checkout completed for user %s: +%d tokens (balance: %d)", userID, granted, newBalance)

	if s.mail != nil {
		if row, err := s.store.FetchUser(ctx, userID); err == nil && row != nil && row.Email != "" {
			s.mail.SendPurchaseReceipt(row.Email, product, granted, newBalance)
		}
	}
	return nil
}

// handleInvoicePaid - 구독 갱신 결제. 월간 토큰 리셋.
func (s *Service) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	cfg := config.GetConfig()

	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to parse invoice: %w", err)
	}
	if invoice.Customer == nil {
		return fmt.Errorf("invoice %s has no customer", invoice.ID)
	}

	user, err := s.store.FetchUserByCustomerID(ctx, invoice.Customer.ID)
	if err != nil {
		return err
	}
	if user == nil {
		// 첫 결제는 checkout.session.completed가 처리 - 고객 매핑 전이면 스킵
		log.Printf("🔍 [Billing] No user for customer %s yet, skipping invoice %s", invoice.Customer.ID, invoice.ID)
		return nil
	}

	eventID := event.ID
	balance, err := s.ledger.SetTokens(ctx, user.ID, cfg.SubscriptionTokens, model.TokenTypeSubscription, "monthly refresh", &eventID)
	if err != nil {
		return err
	}

	log.Printf("💰 [Billing] Monthly refresh for user %s: %d tokens", user.ID, balance)
	return nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}
	if sub.Customer == nil {
		return fmt.Errorf("subscription %s has no customer", sub.ID)
	}

	user, err := s.store.FetchUserByCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	status := model.SubscriptionInactive
	if sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing {
		status = model.SubscriptionActive
	}

	log.Printf("🔄 [Billing] Subscription %s for user %s -> %s", sub.ID, user.ID, status)
	return s.store.UpdateUserFields(ctx, user.ID, map[string]interface{}{
		"subscription_status": status,
	})
}

// handleSubscriptionDeleted - 구독 종료. 토큰 타입을 free로 되돌린다.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}
	if sub.Customer == nil {
		return fmt.Errorf("subscription %s has no customer", sub.ID)
	}

	user, err := s.store.FetchUserByCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	log.Printf("👋 [Billing] Subscription ended for user %s", user.ID)
	return s.store.UpdateUserFields(ctx, user.ID, map[string]interface{}{
		"subscription_status":    model.SubscriptionInactive,
		"token_type":             model.TokenTypeFree,
		"stripe_subscription_id": nil,
	})
}
