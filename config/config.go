package config

import (
	"flag"
	"os"
	"sync"
)

const (
	defaultServerAddr = ":8080"
	defaultLogLevel   = "debug"
	defaultBaseURL    = "http://localhost:8080"
)

type Config struct {
	ServerAddr  string
	DatabaseDSN string
	RedisAddr   string
	LogLevel    string
	BaseURL     string

	AuthTokenKey string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIURL        string

	PaystackSecretKey string
	PaystackAPIURL    string

	MobileMoneyAPIKey        string
	MobileMoneyAPIURL        string
	MobileMoneyWebhookSecret string

	MailAPIKey string
	MailAPIURL string
	MailFrom   string
	AdminEmail string
}

var (
	once      sync.Once
	singleton *Config
)

// New returns new Config. It parses command line and environment variables only once.
func New() (*Config, error) {
	once.Do(func() {
		cfg := Config{}

		// initialize flags
		flag.StringVar(&cfg.ServerAddr, "a", defaultServerAddr, "storefront server address")
		flag.StringVar(&cfg.DatabaseDSN, "d", "", "storefront database DSN")
		flag.StringVar(&cfg.RedisAddr, "r", "", "redis address for rate limiting and maintenance state")
		flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")
		flag.StringVar(&cfg.BaseURL, "b", defaultBaseURL, "public base URL for payment redirects")

		flag.Parse()

		// if environment variable is set, then using it
		if v := os.Getenv("RUN_ADDRESS"); v != "" {
			cfg.ServerAddr = v
		}
		if v := os.Getenv("DATABASE_URI"); v != "" {
			cfg.DatabaseDSN = v
		}
		if v := os.Getenv("REDIS_ADDRESS"); v != "" {
			cfg.RedisAddr = v
		}
		if v := os.Getenv("LOG_LEVEL"); v != "" {
			cfg.LogLevel = v
		}
		if v := os.Getenv("BASE_URL"); v != "" {
			cfg.BaseURL = v
		}

		cfg.AuthTokenKey = os.Getenv("AUTH_TOKEN_KEY")

		cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
		cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
		cfg.StripeAPIURL = getenv("STRIPE_API_URL", "https://api.stripe.com")

		cfg.PaystackSecretKey = os.Getenv("PAYSTACK_SECRET_KEY")
		cfg.PaystackAPIURL = getenv("PAYSTACK_API_URL", "https://api.paystack.co")

		cfg.MobileMoneyAPIKey = os.Getenv("MOMO_API_KEY")
		cfg.MobileMoneyAPIURL = os.Getenv("MOMO_API_URL")
		cfg.MobileMoneyWebhookSecret = os.Getenv("MOMO_WEBHOOK_SECRET")

		cfg.MailAPIKey = os.Getenv("MAIL_API_KEY")
		cfg.MailAPIURL = getenv("MAIL_API_URL", "https://api.sendgrid.com")
		cfg.MailFrom = getenv("MAIL_FROM", "orders@sogshop.com")
		cfg.AdminEmail = getenv("ADMIN_EMAIL", "admin@sogshop.com")

		singleton = &cfg
	})

	return singleton, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
