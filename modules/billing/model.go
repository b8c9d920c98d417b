package billing

// Plans purchasable through checkout
const (
	PlanSubscription = "subscription"
	PlanTokenPack    = "token-pack"
)

// CheckoutRequest - 결제 세션 생성 요청
type CheckoutRequest struct {
	Plan string `json:"plan"`
}

// CheckoutResponse - Stripe 결제 페이지 URL
type CheckoutResponse struct {
	Success     bool   `json:"success"`
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"sessionId"`
}
