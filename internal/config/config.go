package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProdEnv = "prod"

	// DefaultSessionSecret is only acceptable outside production.
	DefaultSessionSecret = "your-secret-key-change-in-production"
)

var ErrDefaultSessionSecret = errors.New("SESSION_SECRET must be set in production")

type Config struct {
	Env           string
	ServerAddress string
	PublicURL     string

	DatabaseURL string
	MongoURI    string
	MongoDB     string
	RedisAddr   string
	RedisPass   string

	SessionSecret     string
	SessionExpiration time.Duration

	// Hosted identity provider (authorization code flow + management API).
	AuthDomain          string
	AuthClientID        string
	AuthClientSecret    string
	FirebaseProjectID   string
	FirebaseCredentials string

	SendGridAPIKey string
	FromEmail      string
	AdminEmail     string
	SupportEmail   string
	WebhookToken   string

	MailchimpAPIKey string
	MailchimpListID string

	SlackWebhookURL string
	RecaptchaSecret string

	MediaBucket string

	JobsQueue       string
	JobsWorkers     int
	JobsMaxAttempts int

	VoterCacheTTL time.Duration
}

// LoadDotEnvs loads .env files following the dotenv convention. Variables already
// present in the process environment win.
func LoadDotEnvs() {
	env := getEnv("APP_ENV", "dev")
	_ = godotenv.Load(".env." + env + ".local")
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env." + env)
	_ = godotenv.Load(".env")
}

func Load() *Config {
	return &Config{
		Env:           getEnv("APP_ENV", "dev"),
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		PublicURL:     strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),

		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=civicvoice dbname=civicvoice sslmode=disable"),
		MongoURI:    os.Getenv("MONGO_URI"),
		MongoDB:     getEnv("MONGO_DB", "civicvoice"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RedisPass:   os.Getenv("REDIS_PASSWD"),

		SessionSecret:     getEnv("SESSION_SECRET", DefaultSessionSecret),
		SessionExpiration: getDuration("SESSION_EXPIRATION", 14*24*time.Hour),

		AuthDomain:          os.Getenv("AUTH_DOMAIN"),
		AuthClientID:        os.Getenv("AUTH_CLIENT_ID"),
		AuthClientSecret:    os.Getenv("AUTH_CLIENT_SECRET"),
		FirebaseProjectID:   os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseCredentials: os.Getenv("FIREBASE_CREDENTIALS_JSON"),

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		FromEmail:      getEnv("FROM_EMAIL", "info@civicvoice.org"),
		AdminEmail:     getEnv("ADMIN_EMAIL", "admin@civicvoice.org"),
		SupportEmail:   getEnv("SUPPORT_TO_EMAIL", "support@civicvoice.org"),
		WebhookToken:   os.Getenv("WEBHOOK_TOKEN"),

		MailchimpAPIKey: os.Getenv("MAILCHIMP_API_KEY"),
		MailchimpListID: os.Getenv("MAILCHIMP_LIST_ID"),

		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		RecaptchaSecret: os.Getenv("RECAPTCHA_SECRET"),

		MediaBucket: os.Getenv("MEDIA_BUCKET"),

		JobsQueue:       getEnv("JOBS_QUEUE", "civicvoice:jobs"),
		JobsWorkers:     getInt("JOBS_WORKERS", 4),
		JobsMaxAttempts: getInt("JOBS_MAX_ATTEMPTS", 3),

		VoterCacheTTL: getDuration("VOTER_CACHE_TTL", time.Hour),
	}
}

func (c *Config) IsProd() bool {
	return c.Env == ProdEnv
}

// Validate rejects settings that are unsafe to serve with.
func (c *Config) Validate() error {
	if c.IsProd() && (c.SessionSecret == "" || c.SessionSecret == DefaultSessionSecret) {
		return ErrDefaultSessionSecret
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
