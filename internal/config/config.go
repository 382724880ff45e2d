package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port         string   `mapstructure:"PORT"`
	Env          string   `mapstructure:"ENV"`
	LogLevel     string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL  string   `mapstructure:"DATABASE_URL"`
	DBMaxConns   int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns   int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL     string   `mapstructure:"REDIS_URL"`
	AMQPURL      string   `mapstructure:"AMQP_URL"`
	AMQPExchange string   `mapstructure:"AMQP_EXCHANGE"`
	CORSOrigins  []string `mapstructure:"CORS_ORIGINS"`

	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	WSMaxConnections  int64   `mapstructure:"WS_MAX_CONNECTIONS"`
	WSSendBuffer      int     `mapstructure:"WS_SEND_BUFFER"`
	WSEventsPerSecond float64 `mapstructure:"WS_EVENTS_PER_SECOND"`
	TypingWorkers     int     `mapstructure:"TYPING_WORKERS"`
	TypingQueueSize   int     `mapstructure:"TYPING_QUEUE_SIZE"`

	MeetingProvider     string        `mapstructure:"MEETING_PROVIDER"`
	MeetingTimeout      time.Duration `mapstructure:"MEETING_TIMEOUT"`
	MeetingTimeZone     string        `mapstructure:"MEETING_TIME_ZONE"`
	MeetingLinkTemplate string        `mapstructure:"MEETING_LINK_TEMPLATE"`
	GoogleCredsJSON     string        `mapstructure:"GOOGLE_CREDS_JSON"`
	GoogleCalendarID    string        `mapstructure:"GOOGLE_CALENDAR_ID"`

	SchedulingPreventOverlap  bool `mapstructure:"SCHEDULING_PREVENT_OVERLAP"`
	SchedulingRejectPastDates bool `mapstructure:"SCHEDULING_REJECT_PAST_DATES"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "AMQP_URL", "AMQP_EXCHANGE", "CORS_ORIGINS",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"WS_MAX_CONNECTIONS", "WS_SEND_BUFFER", "WS_EVENTS_PER_SECOND",
	"TYPING_WORKERS", "TYPING_QUEUE_SIZE",
	"MEETING_PROVIDER", "MEETING_TIMEOUT", "MEETING_TIME_ZONE", "MEETING_LINK_TEMPLATE",
	"GOOGLE_CREDS_JSON", "GOOGLE_CALENDAR_ID",
	"SCHEDULING_PREVENT_OVERLAP", "SCHEDULING_REJECT_PAST_DATES",
}

func Load() (*Config, error) {
	// A missing .env file is fine; real deployments set the environment.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AMQP_EXCHANGE", "telehealth.events")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("WS_MAX_CONNECTIONS", 10000)
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("WS_EVENTS_PER_SECOND", 20)
	v.SetDefault("TYPING_WORKERS", 4)
	v.SetDefault("TYPING_QUEUE_SIZE", 1024)
	v.SetDefault("MEETING_PROVIDER", "link")
	v.SetDefault("MEETING_TIMEOUT", "10s")
	v.SetDefault("MEETING_TIME_ZONE", "Africa/Casablanca")
	v.SetDefault("MEETING_LINK_TEMPLATE", "https://meet.jit.si/telehealth-%d")
	v.SetDefault("GOOGLE_CALENDAR_ID", "primary")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// MeetingLocation resolves MEETING_TIME_ZONE. Appointment dates and times are
// stored without a zone and are interpreted in this location.
func (c *Config) MeetingLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.MeetingTimeZone)
	if err != nil {
		return nil, fmt.Errorf("MEETING_TIME_ZONE %q: %w", c.MeetingTimeZone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a signing key is mandatory, since header-based identities are only trusted
// in dev mode.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}

	switch c.MeetingProvider {
	case "link":
		if !strings.Contains(c.MeetingLinkTemplate, "%d") {
			return fmt.Errorf("MEETING_LINK_TEMPLATE must contain %%d for the appointment id")
		}
	case "calendar":
		if c.GoogleCredsJSON == "" {
			return fmt.Errorf("GOOGLE_CREDS_JSON is required when MEETING_PROVIDER is \"calendar\"")
		}
	default:
		return fmt.Errorf("MEETING_PROVIDER must be \"link\" or \"calendar\", got %q", c.MeetingProvider)
	}
	if c.MeetingTimeout <= 0 {
		return fmt.Errorf("MEETING_TIMEOUT must be positive")
	}
	if _, err := c.MeetingLocation(); err != nil {
		return err
	}

	if c.WSMaxConnections <= 0 {
		return fmt.Errorf("WS_MAX_CONNECTIONS must be positive")
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	if c.TypingWorkers <= 0 || c.TypingQueueSize <= 0 {
		return fmt.Errorf("TYPING_WORKERS and TYPING_QUEUE_SIZE must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
