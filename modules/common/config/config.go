package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting the server needs.
type Config struct {
	// Server
	Port        string
	SiteBaseURL string
	ContactURL  string

	// Supabase
	SupabaseURL            string
	SupabaseServiceKey     string
	SupabaseStorageBaseURL string
	SupabaseAnonKey        string

	// Model providers
	ReplicateAPIToken string
	OpenAIAPIKey      string
	GeminiAPIKeys     []string
	GeminiModel       string

	// Stripe
	StripeSecretKey         string
	StripeWebhookSecret     string
	StripeSubscriptionPrice string
	StripeTokenPackPrice    string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Token costs (whole tokens only)
	CostGenerate         int
	CostRevise           int
	CostReviseDiscounted int
	CostPlaygroundImage  int
	CostProStudioImage   int
	CostVideoModel       int

	// Token grants
	FreeTierTokens     int
	SubscriptionTokens int
	TokenPackTokens    int
}

var globalConfig *Config

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	useTLS := true
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		if parsed, err := strconv.ParseBool(tlsStr); err == nil {
			useTLS = parsed
		}
	}

	globalConfig = &Config{
		// Server
		Port:        getEnv("PORT", "8080"),
		SiteBaseURL: getEnv("SITE_BASE_URL", "http://localhost:3000"),
		ContactURL:  getEnv("CONTACT_URL", "https://bildoro.app/contact"),

		// Supabase
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBaseURL: getEnv("SUPABASE_STORAGE_BASE_URL", ""),
		SupabaseAnonKey:        getEnv("SUPABASE_ANON_KEY", ""),

		// Model providers
		ReplicateAPIToken: getEnv("REPLICATE_API_TOKEN", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKeys:     splitKeys(getEnv("GEMINI_API_KEYS", getEnv("GEMINI_API_KEY", ""))),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),

		// Stripe
		StripeSecretKey:         getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:     getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeSubscriptionPrice: getEnv("STRIPE_SUBSCRIPTION_PRICE_ID", ""),
		StripeTokenPackPrice:    getEnv("STRIPE_TOKEN_PACK_PRICE_ID", ""),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,

		// SMTP
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "BildOro <noreply@bildoro.app>"),

		// Token costs
		CostGenerate:         getEnvInt("COST_GENERATE", 2),
		CostRevise:           getEnvInt("COST_REVISE", 2),
		CostReviseDiscounted: getEnvInt("COST_REVISE_DISCOUNTED", 1),
		CostPlaygroundImage:  getEnvInt("COST_PLAYGROUND_IMAGE", 1),
		CostProStudioImage:   getEnvInt("COST_PRO_STUDIO_IMAGE", 3),
		CostVideoModel:       getEnvInt("COST_VIDEO_MODEL", 5),

		// Token grants
		FreeTierTokens:     getEnvInt("FREE_TIER_TOKENS", 5),
		SubscriptionTokens: getEnvInt("SUBSCRIPTION_TOKENS", 100),
		TokenPackTokens:    getEnvInt("TOKEN_PACK_TOKENS", 50),
	}

	if err := globalConfig.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Supabase: %s", globalConfig.SupabaseURL)
	log.Printf("   Redis: %s:%s (TLS: %v)", globalConfig.RedisHost, globalConfig.RedisPort, globalConfig.RedisUseTLS)
	log.Printf("   Gemini: %s (%d keys)", globalConfig.GeminiModel, len(globalConfig.GeminiAPIKeys))
	log.Printf("   Costs: generate=%d revise=%d/%d playground=%d pro-studio=%d video=%d",
		globalConfig.CostGenerate, globalConfig.CostRevise, globalConfig.CostReviseDiscounted,
		globalConfig.CostPlaygroundImage, globalConfig.CostProStudioImage, globalConfig.CostVideoModel)

	return globalConfig, nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// SetConfigForTest swaps the global config in tests.
func SetConfigForTest(cfg *Config) {
	globalConfig = cfg
}

func (c *Config) validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if c.ReplicateAPIToken == "" {
		return fmt.Errorf("REPLICATE_API_TOKEN is required")
	}
	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}

// splitKeys parses a comma-separated API key list.
func splitKeys(raw string) []string {
	keys := []string{}
	for _, part := range strings.Split(raw, ",") {
		if key := strings.TrimSpace(part); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// GetRedisAddr builds the Redis connection string.
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
