package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	// Caller identity. Tokens are issued elsewhere; we only verify them.
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`

	CaspioBaseURL      string        `mapstructure:"CASPIO_BASE_URL"`
	CaspioClientID     string        `mapstructure:"CASPIO_CLIENT_ID"`
	CaspioClientSecret string        `mapstructure:"CASPIO_CLIENT_SECRET"`
	CaspioMembersTable string        `mapstructure:"CASPIO_MEMBERS_TABLE"`
	CaspioStaffTable   string        `mapstructure:"CASPIO_STAFF_TABLE"`
	CaspioPageSize     int           `mapstructure:"CASPIO_PAGE_SIZE"`
	CaspioMaxPages     int           `mapstructure:"CASPIO_MAX_PAGES"`
	CaspioTimeout      time.Duration `mapstructure:"CASPIO_TIMEOUT"`

	CacheFreshness time.Duration `mapstructure:"CACHE_FRESHNESS"`
	SyncInterval   time.Duration `mapstructure:"SYNC_INTERVAL"`
	SyncMaxRetries int           `mapstructure:"SYNC_MAX_RETRIES"`

	ClaimFeeRate      float64 `mapstructure:"CLAIM_FEE_RATE"`
	ClaimGasFlatRate  float64 `mapstructure:"CLAIM_GAS_FLAT_RATE"`
	LowScoreThreshold int     `mapstructure:"LOW_SCORE_THRESHOLD"`
	PlanPolicyFile    string  `mapstructure:"PLAN_POLICY_FILE"`

	SlackBotToken     string        `mapstructure:"SLACK_BOT_TOKEN"`
	SlackAlertChannel string        `mapstructure:"SLACK_ALERT_CHANNEL"`
	SESFromAddress    string        `mapstructure:"SES_FROM_ADDRESS"`
	EscalationEmails  []string      `mapstructure:"ESCALATION_EMAILS"`
	NotifyTimeout     time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
	WebhookURL        string        `mapstructure:"WEBHOOK_URL"`
	WebhookSecret     string        `mapstructure:"WEBHOOK_SECRET"`
	WebhookRetries    int           `mapstructure:"WEBHOOK_RETRIES"`

	ArchiveBucket string `mapstructure:"ARCHIVE_BUCKET"`
	SSMParameter  string `mapstructure:"AWS_SSM_PARAMETER"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL", "CORS_ORIGINS",
	"BODY_LIMIT", "REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CASPIO_BASE_URL", "CASPIO_CLIENT_ID", "CASPIO_CLIENT_SECRET", "CASPIO_MEMBERS_TABLE",
	"CASPIO_STAFF_TABLE", "CASPIO_PAGE_SIZE", "CASPIO_MAX_PAGES", "CASPIO_TIMEOUT",
	"CACHE_FRESHNESS", "SYNC_INTERVAL", "SYNC_MAX_RETRIES",
	"CLAIM_FEE_RATE", "CLAIM_GAS_FLAT_RATE", "LOW_SCORE_THRESHOLD", "PLAN_POLICY_FILE",
	"SLACK_BOT_TOKEN", "SLACK_ALERT_CHANNEL", "SES_FROM_ADDRESS", "ESCALATION_EMAILS", "NOTIFY_TIMEOUT",
	"WEBHOOK_URL", "WEBHOOK_SECRET", "WEBHOOK_RETRIES",
	"ARCHIVE_BUCKET", "AWS_SSM_PARAMETER",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("CASPIO_MEMBERS_TABLE", "CalAIM_Members")
	v.SetDefault("CASPIO_STAFF_TABLE", "Staff_Directory")
	v.SetDefault("CASPIO_PAGE_SIZE", 1000)
	v.SetDefault("CASPIO_MAX_PAGES", 100)
	v.SetDefault("CASPIO_TIMEOUT", "30s")
	v.SetDefault("CACHE_FRESHNESS", "1h")
	v.SetDefault("SYNC_INTERVAL", "30m")
	v.SetDefault("SYNC_MAX_RETRIES", 3)
	v.SetDefault("CLAIM_FEE_RATE", 45.0)
	v.SetDefault("CLAIM_GAS_FLAT_RATE", 20.0)
	v.SetDefault("LOW_SCORE_THRESHOLD", 10)
	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("WEBHOOK_RETRIES", 2)

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	}
	cfg.EscalationEmails = splitList(strings.Join(cfg.EscalationEmails, ","))
	if len(cfg.EscalationEmails) == 0 {
		cfg.EscalationEmails = splitList(v.GetString("ESCALATION_EMAILS"))
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		log.Println("WARNING: ENV=development without AUTH_SIGNING_KEY; every request runs as the dev caller.")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks settings the server cannot run without. Secrets may arrive
// through the SSM overlay, so call it after ApplySecrets.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.CaspioBaseURL == "" {
		return fmt.Errorf("CASPIO_BASE_URL is required")
	}
	if c.CaspioClientID == "" || c.CaspioClientSecret == "" {
		return fmt.Errorf("CASPIO_CLIENT_ID and CASPIO_CLIENT_SECRET are required")
	}
	if c.CaspioPageSize <= 0 || c.CaspioPageSize > 1000 {
		return fmt.Errorf("CASPIO_PAGE_SIZE must be between 1 and 1000, got %d", c.CaspioPageSize)
	}
	if c.CaspioMaxPages <= 0 {
		return fmt.Errorf("CASPIO_MAX_PAGES must be positive, got %d", c.CaspioMaxPages)
	}
	if c.CacheFreshness <= 0 {
		return fmt.Errorf("CACHE_FRESHNESS must be positive")
	}
	if c.ClaimFeeRate < 0 || c.ClaimGasFlatRate < 0 {
		return fmt.Errorf("claim rates must not be negative")
	}
	if c.SlackBotToken != "" && c.SlackAlertChannel == "" {
		return fmt.Errorf("SLACK_ALERT_CHANNEL is required when SLACK_BOT_TOKEN is set")
	}
	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("WEBHOOK_URL must be an http(s) URL")
	}
	return nil
}
