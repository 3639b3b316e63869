package tests

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// defaultTestEnv is applied by SetTestEnv for variables that are unset.
// DATABASE_URL is never set here; end-to-end tests skip without it.
var defaultTestEnv = map[string]string{
	"JWT_SECRET":   "test-jwt-secret-at-least-32-characters-long",
	"OTP_SALT":     "test-otp-salt",
	"DEV_MODE":     "true",
	"SMS_PROVIDER": "log",
}

// SetTestEnv fills in the configuration the end-to-end suite needs.
func SetTestEnv() {
	for k, v := range defaultTestEnv {
		if os.Getenv(k) == "" {
			_ = os.Setenv(k, v)
		}
	}
}

// TruncateAuthTables truncates auth-related tables for a clean test state.
func TruncateAuthTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "TRUNCATE TABLE sessions, otp_records, users RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate auth tables: %w", err)
	}
	return nil
}
