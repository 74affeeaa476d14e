package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/shop-bot/internal/payment"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	BotToken string
	BotDebug bool

	PaymentAPIURL        string
	PaymentAPIKey        string
	PaymentWalletAddress string
	PaymentCurrency      string
	PaymentTimeout       time.Duration

	AdminIDs string

	DatabaseURL  string
	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string
	MetricsAddr  string

	OrderRateLimit   int // /order commands per user per minute, 0 disables
	LenientLifecycle bool
}

// Load reads configuration from the environment. Missing secrets are reported
// together so the operator can fix them in one pass.
func Load() (Config, error) {
	cfg := Config{
		BotToken:             firstEnv("TG_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"),
		BotDebug:             getBool("BOT_DEBUG", false),
		PaymentAPIURL:        getEnv("PAYMENT_API_URL", payment.DefaultBaseURL),
		PaymentAPIKey:        os.Getenv("PAYMENT_API_KEY"),
		PaymentWalletAddress: os.Getenv("PAYMENT_WALLET_ADDRESS"),
		PaymentCurrency:      getEnv("PAYMENT_CURRENCY", payment.DefaultCurrency),
		PaymentTimeout:       getDuration("PAYMENT_TIMEOUT", payment.DefaultTimeout),
		AdminIDs:             os.Getenv("ADMIN_IDS"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "shop-bot-orders"),
		MetricsAddr:          os.Getenv("METRICS_ADDR"),
		OrderRateLimit:       getInt("ORDER_RATE_LIMIT", 5),
		LenientLifecycle:     getBool("LENIENT_LIFECYCLE", false),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TG_BOT_TOKEN")
	}
	if cfg.PaymentAPIKey == "" {
		missing = append(missing, "PAYMENT_API_KEY")
	}
	if cfg.PaymentWalletAddress == "" {
		missing = append(missing, "PAYMENT_WALLET_ADDRESS")
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE":
		return true
	case "0", "false", "FALSE":
		return false
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
