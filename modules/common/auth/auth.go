package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"bildoro-server/modules/common/apierr"
	"bildoro-server/modules/common/config"
)

// AuthUser - 검증된 세션의 사용자 신원
type AuthUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type contextKey struct{}

var userKey contextKey

// Resolver validates a bearer token against the auth provider.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*AuthUser, error)
}

// SupabaseResolver calls the Supabase auth endpoint with the caller's access
// token. No session state is kept server-side.
type SupabaseResolver struct {
	httpClient *http.Client
}

func NewSupabaseResolver() *SupabaseResolver {
	return &SupabaseResolver{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type supabaseUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		Username string `json:"username"`
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
}

func (r *SupabaseResolver) Resolve(ctx context.Context, token string) (*AuthUser, error) {
	cfg := config.GetConfig()

	userURL := cfg.SupabaseURL + "/auth/v1/user"
	req, err := http.NewRequestWithContext(ctx, "GET", userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("apikey", cfg.SupabaseAnonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("⚠️  [Auth] Token rejected: status %d, body: %s", resp.StatusCode, string(body))
		return nil, apierr.ErrUnauthorized
	}

	var su supabaseUser
	if err := json.NewDecoder(resp.Body).Decode(&su); err != nil {
		return nil, fmt.Errorf("failed to parse auth response: %w", err)
	}
	if su.ID == "" {
		return nil, apierr.ErrUnauthorized
	}

	username := su.UserMetadata.Username
	if username == "" {
		username = su.UserMetadata.FullName
	}

	return &AuthUser{ID: su.ID, Email: su.Email, Username: username}, nil
}

// BearerToken extracts the access token from the Authorization header, or
// from the ?token query parameter for WebSocket upgrades.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Middleware resolves the caller identity and fails closed with 401.
// Authentication is always the first check: no side effects before it.
func Middleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// CORS preflight는 인증 헤더 없이 옴
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := BearerToken(r)
			if token == "" {
				apierr.Write(w, apierr.ErrUnauthorized, "")
				return
			}

			user, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				apierr.Write(w, apierr.ErrUnauthorized, "")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser stores the resolved identity on the context.
func WithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFrom returns the authenticated user, or nil.
func UserFrom(ctx context.Context) *AuthUser {
	user, _ := ctx.Value(userKey).(*AuthUser)
	return user
}
