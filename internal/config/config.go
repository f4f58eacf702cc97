package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	DBPath   string `envconfig:"DB_PATH" default:"./data/schedule.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error

	// Base64-encoded 32-byte key for credential encryption at rest.
	EncryptionKey string `envconfig:"ENCRYPTION_KEY" required:"true"`

	// Reference timezone for fetch windows, fire times and display.
	Timezone  string `envconfig:"USER_TIMEZONE" default:"UTC"`
	FetchDays int    `envconfig:"FETCH_DAYS_AHEAD" default:"7"`

	// Comma-separated emails that get the admin role on grant.
	AdminEmails string `envconfig:"ADMIN_EMAILS" default:""`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID" required:"true"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET" required:"true"`
	TokenURL           string `envconfig:"TOKEN_URL" default:"https://oauth2.googleapis.com/token"`
	CalendarAPIBase    string `envconfig:"CALENDAR_API_BASE" default:"https://www.googleapis.com/calendar/v3"`
	MailAPIBase        string `envconfig:"MAIL_API_BASE" default:"https://gmail.googleapis.com"`

	// Generative summaries are optional; leave the key empty to disable.
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel   string `envconfig:"GEMINI_MODEL" default:"gemini-pro"`
	GeminiAPIBase string `envconfig:"GEMINI_API_BASE" default:"https://generativelanguage.googleapis.com"`

	// Recurring personalized send to all non-admin users.
	DailyEnabled bool   `envconfig:"DAILY_SUMMARY_ENABLED" default:"true"`
	DailyAt      string `envconfig:"DAILY_SUMMARY_AT" default:"00:00"` // HH:MM in Timezone
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return cfg, fmt.Errorf("invalid USER_TIMEZONE %q: %w", cfg.Timezone, err)
	}
	if cfg.FetchDays < 1 || cfg.FetchDays > 365 {
		return cfg, fmt.Errorf("FETCH_DAYS_AHEAD must be in 1..365, got %d", cfg.FetchDays)
	}
	return cfg, nil
}

// Location returns the reference timezone. Load validates it, so failures
// here only happen for hand-built configs; fall back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AdminList splits the configured admin emails into a normalized list.
func (c Config) AdminList() []string {
	if strings.TrimSpace(c.AdminEmails) == "" {
		return nil
	}
	parts := strings.Split(c.AdminEmails, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
