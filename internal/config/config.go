package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	RedisURL    string
	Port        string
	JWTSecret   string
	OTPSalt     string
	DevMode     bool

	OTP     OTPConfig
	Session SessionConfig
	SMS     SMSConfig

	CleanupInterval time.Duration
}

// OTPConfig holds the one-time code policy
type OTPConfig struct {
	CodeLength  int
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
}

// SessionConfig holds session and cookie settings
type SessionConfig struct {
	TTL            time.Duration
	AccessTokenTTL time.Duration
	CookieName     string
	CookieSecure   bool
}

// SMSConfig selects and configures the SMS delivery provider
type SMSConfig struct {
	Provider         string
	Locale           string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port: "8080", // default port
	}

	// Load DATABASE_URL and log connection details (password masked)
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if u, err := url.Parse(databaseURL); err == nil {
		host := u.Hostname()
		if host == "" {
			host = "localhost"
		}
		port := u.Port()
		if port == "" {
			port = "5432"
		}
		dbName := strings.TrimPrefix(u.Path, "/")
		user := u.User.Username()
		if user == "" {
			user = "(none)"
		}
		log.Printf("DB connect: host=%s port=%s db=%s user=%s", host, port, dbName, user)
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	otpSalt := os.Getenv("OTP_SALT")
	if otpSalt == "" {
		return nil, fmt.Errorf("OTP_SALT environment variable is required")
	}
	cfg.OTPSalt = otpSalt

	cfg.DevMode = os.Getenv("DEV_MODE") == "true"
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	var err error
	if cfg.OTP.CodeLength, err = intEnv("OTP_CODE_LENGTH", 6); err != nil {
		return nil, err
	}
	if cfg.OTP.CodeLength < 4 || cfg.OTP.CodeLength > 10 {
		return nil, fmt.Errorf("OTP_CODE_LENGTH must be between 4 and 10, got %d", cfg.OTP.CodeLength)
	}
	if cfg.OTP.TTL, err = durationEnv("OTP_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.OTP.Cooldown, err = durationEnv("OTP_COOLDOWN", 60*time.Second); err != nil {
		return nil, err
	}
	// the cooldown is read from the live record, so it cannot outlast the code
	if cfg.OTP.Cooldown > cfg.OTP.TTL {
		return nil, fmt.Errorf("OTP_COOLDOWN (%s) must not exceed OTP_TTL (%s)", cfg.OTP.Cooldown, cfg.OTP.TTL)
	}
	if cfg.OTP.MaxAttempts, err = intEnv("OTP_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.OTP.MaxAttempts < 1 {
		return nil, fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1")
	}

	if cfg.Session.TTL, err = durationEnv("SESSION_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Session.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	cfg.Session.CookieName = stringEnv("SESSION_COOKIE_NAME", "tiretrack_session")
	cfg.Session.CookieSecure = !cfg.DevMode

	cfg.SMS.Provider = stringEnv("SMS_PROVIDER", "log")
	cfg.SMS.Locale = stringEnv("SMS_LOCALE", "th")
	cfg.SMS.TwilioAccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.SMS.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.SMS.TwilioFromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	switch cfg.SMS.Provider {
	case "log":
	case "twilio":
		if cfg.SMS.TwilioAccountSID == "" || cfg.SMS.TwilioAuthToken == "" || cfg.SMS.TwilioFromNumber == "" {
			return nil, fmt.Errorf("SMS_PROVIDER=twilio requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER")
		}
	default:
		return nil, fmt.Errorf("unknown SMS_PROVIDER %q", cfg.SMS.Provider)
	}
	if cfg.SMS.Locale != "th" && cfg.SMS.Locale != "en" {
		return nil, fmt.Errorf("SMS_LOCALE must be th or en, got %q", cfg.SMS.Locale)
	}

	if cfg.CleanupInterval, err = durationEnv("CLEANUP_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
