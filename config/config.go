package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"duel-match-system/engine"
)

// Config is everything the process reads from the environment
type Config struct {
	Port           string
	DatabaseURL    string
	ServiceToken   string // shared secret the gateway sends in X-Service-Token
	AllowedOrigins string
	LogFile        string

	AuthServiceURL   string
	WalletServiceURL string
	SyncServiceURL   string

	Engine engine.Config

	// Compliance
	MinBetEUR        decimal.Decimal
	PriceEURPerCoin  decimal.Decimal // EUR per whole coin
	UnitsPerCoin     int64           // smallest units per whole coin
	L1MaxStake       int64           // stake ceiling for KYC tier L1, in units
	BlockedCountries []string

	// Match archive
	R2AccountID string
	R2AccessKey string
	R2SecretKey string
	R2Bucket    string

	TransferPollInterval time.Duration
	PlayerSyncInterval   time.Duration
	SweepInterval        time.Duration
}

// Load reads .env (if any) and the environment. DATABASE_URL and
// MATCH_SERVICE_TOKEN are required.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := &Config{
		Port:             getEnv("PORT", "5300"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		ServiceToken:     os.Getenv("MATCH_SERVICE_TOKEN"),
		AllowedOrigins:   getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		LogFile:          os.Getenv("LOG_FILE"),
		AuthServiceURL:   os.Getenv("AUTH_SERVICE_URL"),
		WalletServiceURL: os.Getenv("WALLET_SERVICE_URL"),
		SyncServiceURL:   os.Getenv("SYNC_SERVICE_URL"),
		BlockedCountries: splitList(getEnv("BLOCKED_COUNTRIES", "US,KP,IR,SY,CU,AF,BY,MM,ZW,VE")),
		R2AccountID:      os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKey:      os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretKey:      os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2Bucket:         os.Getenv("R2_BUCKET"),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.ServiceToken == "" {
		return nil, fmt.Errorf("MATCH_SERVICE_TOKEN environment variable not set")
	}

	e := engine.DefaultConfig()
	var err error
	if e.Policy.FeeRate, err = getDecimal("RAKE_PCT", e.Policy.FeeRate); err != nil {
		return nil, err
	}
	if e.Policy.InitialRate, err = getDecimal("AFFILIATE_INITIAL_PCT", e.Policy.InitialRate); err != nil {
		return nil, err
	}
	if e.Policy.LifetimeRate, err = getDecimal("AFFILIATE_LIFETIME_PCT", e.Policy.LifetimeRate); err != nil {
		return nil, err
	}
	days, err := getInt("AFFILIATE_INITIAL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	e.Policy.InitialPeriod = time.Duration(days) * 24 * time.Hour
	if err := e.Policy.Validate(); err != nil {
		return nil, err
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"OFFER_TTL", &e.OfferTTL},
		{"MATCH_RETENTION", &e.RetentionWindow},
		{"MATCH_DEADLINE_SLACK", &e.DeadlineSlack},
		{"SETTLEMENT_BACKOFF", &e.SettlementBackoff},
		{"STORE_TIMEOUT", &e.StoreTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, *d.dst); err != nil {
			return nil, err
		}
	}
	if e.SettlementRetries, err = getInt("SETTLEMENT_RETRIES", e.SettlementRetries); err != nil {
		return nil, err
	}
	if e.RetentionSize, err = getInt("MATCH_RETENTION_SIZE", e.RetentionSize); err != nil {
		return nil, err
	}
	if path := os.Getenv("GAME_RULES_FILE"); path != "" {
		if e.Rules, err = LoadRules(path, e.Rules); err != nil {
			return nil, err
		}
		log.Printf("✅ Game rules loaded from %s", path)
	}
	cfg.Engine = e

	if cfg.MinBetEUR, err = getDecimal("MIN_BET_EUR", decimal.RequireFromString("0.10")); err != nil {
		return nil, err
	}
	if cfg.PriceEURPerCoin, err = getDecimal("PRICE_EUR_PER_COIN", decimal.NewFromInt(150)); err != nil {
		return nil, err
	}
	units, err := getInt("UNITS_PER_COIN", 1_000_000_000)
	if err != nil {
		return nil, err
	}
	cfg.UnitsPerCoin = int64(units)
	l1, err := getDecimal("KYC_L1_MAX_COINS", decimal.NewFromInt(1))
	if err != nil {
		return nil, err
	}
	cfg.L1MaxStake = l1.Mul(decimal.NewFromInt(cfg.UnitsPerCoin)).IntPart()

	if cfg.TransferPollInterval, err = getDuration("TRANSFER_POLL_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.PlayerSyncInterval, err = getDuration("PLAYER_SYNC_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

// R2Enabled reports whether evicted matches should be archived
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKey != "" && c.R2SecretKey != "" && c.R2Bucket != ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDecimal(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
