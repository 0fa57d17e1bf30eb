package config

import (
	"SurveyBot/model"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	TransportTelegram = "telegram"
	TransportDiscord  = "discord"

	LogDriverSQLite   = "sqlite"
	LogDriverPostgres = "postgres"
	LogDriverFirebase = "firebase"

	defaultTransport    = TransportTelegram
	defaultLogDriver    = LogDriverSQLite
	defaultDBDSN        = "support_bot.db"
	defaultHTTPAddr     = ":8081"
	defaultEventTimeout = 15 * time.Second
	defaultLogLevel     = "info"
	defaultLogFormat    = "console"
)

type Config struct {
	Transport        string
	TelegramToken    string
	DiscordToken     string
	ReviewerIDs      []int64
	ReviewerUsername string

	LogDriver             string
	DBDSN                 string
	FirebaseKeyPath       string
	FirebaseDatabaseURL   string
	QuestionnairePath     string
	HTTPAddr              string
	WebhookURL            string
	WebhookSecret         string
	EventTimeout          time.Duration
	SingleUseRetake       bool
	LogLevel              string
	LogFormat             string
	reviewerIDsParseError error
}

func FromEnv() Config {
	reviewerIDs, parseErr := parseIDs(env("SURVEYBOT_REVIEWER_IDS"))

	telegramToken := env("SURVEYBOT_TELEGRAM_TOKEN")
	if telegramToken == "" {
		telegramToken = env("BOT_TOKEN")
	}

	return Config{
		Transport:             strings.ToLower(envOr("SURVEYBOT_TRANSPORT", defaultTransport)),
		TelegramToken:         telegramToken,
		DiscordToken:          env("DISCORD_BOT_TOKEN"),
		ReviewerIDs:           reviewerIDs,
		ReviewerUsername:      strings.TrimPrefix(env("SURVEYBOT_REVIEWER_USERNAME"), "@"),
		LogDriver:             strings.ToLower(envOr("SURVEYBOT_LOG_DRIVER", defaultLogDriver)),
		DBDSN:                 envOr("SURVEYBOT_DB_DSN", defaultDBDSN),
		FirebaseKeyPath:       env("FIREBASE_SERVICE_ACCOUNT_KEY_PATH"),
		FirebaseDatabaseURL:   env("FIREBASE_DATABASE_URL"),
		QuestionnairePath:     env("SURVEYBOT_QUESTIONNAIRE"),
		HTTPAddr:              envOr("SURVEYBOT_HTTP_ADDR", defaultHTTPAddr),
		WebhookURL:            env("SURVEYBOT_WEBHOOK_URL"),
		WebhookSecret:         env("SURVEYBOT_WEBHOOK_SECRET"),
		EventTimeout:          envDuration("SURVEYBOT_EVENT_TIMEOUT", defaultEventTimeout),
		SingleUseRetake:       envBool("SURVEYBOT_RETAKE_SINGLE_USE", true),
		LogLevel:              strings.ToLower(envOr("SURVEYBOT_LOG_LEVEL", defaultLogLevel)),
		LogFormat:             strings.ToLower(envOr("SURVEYBOT_LOG_FORMAT", defaultLogFormat)),
		reviewerIDsParseError: parseErr,
	}
}

func (c Config) Validate() error {
	if c.reviewerIDsParseError != nil {
		return fmt.Errorf("SURVEYBOT_REVIEWER_IDS is invalid: %w", c.reviewerIDsParseError)
	}
	if len(c.ReviewerIDs) == 0 {
		return fmt.Errorf("SURVEYBOT_REVIEWER_IDS must list at least one reviewer")
	}

	switch c.Transport {
	case TransportTelegram:
		if c.TelegramToken == "" {
			return fmt.Errorf("SURVEYBOT_TELEGRAM_TOKEN (or BOT_TOKEN) is required")
		}
		if c.ReviewerUsername == "" {
			return fmt.Errorf("SURVEYBOT_REVIEWER_USERNAME is required for the telegram transport")
		}
	case TransportDiscord:
		if c.DiscordToken == "" {
			return fmt.Errorf("DISCORD_BOT_TOKEN is required")
		}
	default:
		return fmt.Errorf("unsupported SURVEYBOT_TRANSPORT %q", c.Transport)
	}

	switch c.LogDriver {
	case LogDriverSQLite, LogDriverPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("SURVEYBOT_DB_DSN must not be empty")
		}
	case LogDriverFirebase:
		if c.FirebaseKeyPath == "" {
			return fmt.Errorf("FIREBASE_SERVICE_ACCOUNT_KEY_PATH environment variable not set")
		}
		if c.FirebaseDatabaseURL == "" {
			return fmt.Errorf("FIREBASE_DATABASE_URL environment variable not set")
		}
	default:
		return fmt.Errorf("unsupported SURVEYBOT_LOG_DRIVER %q", c.LogDriver)
	}

	if c.WebhookURL != "" {
		if c.Transport != TransportTelegram {
			return fmt.Errorf("SURVEYBOT_WEBHOOK_URL is only supported for the telegram transport")
		}
		parsed, err := url.Parse(c.WebhookURL)
		if err != nil {
			return fmt.Errorf("SURVEYBOT_WEBHOOK_URL is invalid: %w", err)
		}
		if parsed.Scheme != "https" || parsed.Host == "" {
			return fmt.Errorf("SURVEYBOT_WEBHOOK_URL must be an https URL")
		}
	}
	if c.EventTimeout <= 0 {
		return fmt.Errorf("SURVEYBOT_EVENT_TIMEOUT must be positive")
	}
	return nil
}

// Contact is the reviewer users are pointed to after finishing the survey.
func (c Config) Contact() model.Sender {
	var id int64
	if len(c.ReviewerIDs) > 0 {
		id = c.ReviewerIDs[0]
	}
	return model.Sender{ID: id, Handle: c.ReviewerUsername}
}

// WebhookPath is the path component the webhook handler is mounted on.
func (c Config) WebhookPath() string {
	parsed, err := url.Parse(c.WebhookURL)
	if err != nil || parsed.Path == "" {
		return "/"
	}
	return parsed.Path
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envOr(key, fallback string) string {
	if v := env(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := env(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return -1
	}
	return d
}

func envBool(key string, fallback bool) bool {
	raw := env(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func parseIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("reviewer id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
