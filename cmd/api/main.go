package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/tiretrack/server/internal/auth"
	"github.com/tiretrack/server/internal/config"
	"github.com/tiretrack/server/internal/db"
	httphandler "github.com/tiretrack/server/internal/http"
	"github.com/tiretrack/server/internal/http/handlers"
	"github.com/tiretrack/server/internal/jobs"
	"github.com/tiretrack/server/internal/metrics"
	"github.com/tiretrack/server/internal/middleware"
	"github.com/tiretrack/server/internal/repo"
	"github.com/tiretrack/server/internal/sms"
)

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create context for startup operations
	ctx := context.Background()

	// Open database connection
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := db.Migrate(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories. OTP records and sessions move to Redis when REDIS_URL is set.
	userRepo := repo.NewUserRepo(database)
	var otpRepo repo.OtpRepo = repo.NewOtpRepo(database)
	var sessionRepo repo.SessionRepo = repo.NewSessionRepo(database)
	if cfg.RedisURL != "" {
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		otpRepo = repo.NewRedisOtpRepo(client, "tiretrack")
		sessionRepo = repo.NewRedisSessionRepo(client, "tiretrack")
		log.Println("OTP records and sessions stored in redis")
	}

	sender, err := newSender(cfg)
	if err != nil {
		log.Fatalf("Failed to configure SMS: %v", err)
	}

	// Initialize auth services
	recorder := metrics.New()
	policy := auth.PolicyFromConfig(cfg)
	sessions := auth.NewSessionManager(sessionRepo, cfg.Session.TTL)
	gateway := auth.NewGateway(
		auth.NewIssuer(otpRepo, sender, policy),
		auth.NewVerifier(otpRepo, userRepo, sessions, policy),
		sessions,
		auth.NewJWTService(cfg.JWTSecret, cfg.Session.AccessTokenTTL),
		userRepo,
		recorder,
	)
	if cfg.DevMode {
		log.Println("DEV_MODE enabled: fixed OTP codes, insecure cookies")
	}

	// Purge expired rows in the background
	cleanup := jobs.NewCleanup(cfg.CleanupInterval, []jobs.Target{
		{Name: "otp_records", Purger: otpRepo},
		{Name: "sessions", Purger: sessionRepo},
	}, recorder.RowsPurged)
	if err := cleanup.Start(); err != nil {
		log.Fatalf("Failed to start cleanup job: %v", err)
	}
	defer cleanup.Stop()

	// IP rate limiters: 10 per 10min for request_otp, 20 per 10min for verify_otp (phone cooldown is storage-based)
	requestLimit := middleware.NewRateLimiter(10*time.Minute, 10)
	defer requestLimit.Stop()
	verifyLimit := middleware.NewRateLimiter(10*time.Minute, 20)
	defer verifyLimit.Stop()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(gateway, handlers.CookieConfig{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.CookieSecure,
		MaxAge: cfg.Session.TTL,
	})

	// Create router
	router := httphandler.NewRouter(httphandler.RouterDeps{
		Auth:         authHandler,
		Sessions:     gateway,
		CookieName:   cfg.Session.CookieName,
		Metrics:      recorder.Handler(),
		Instrument:   recorder.Middleware,
		RequestLimit: requestLimit,
		VerifyLimit:  verifyLimit,
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		return
	}

	log.Println("Server exited")
}

// openRedis connects to REDIS_URL and checks the connection
func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// newSender selects the SMS provider
func newSender(cfg *config.Config) (sms.Sender, error) {
	switch cfg.SMS.Provider {
	case "twilio":
		return sms.NewTwilioSender(cfg.SMS.TwilioAccountSID, cfg.SMS.TwilioAuthToken, cfg.SMS.TwilioFromNumber), nil
	case "log":
		if !cfg.DevMode {
			log.Println("SMS_PROVIDER=log: codes are not delivered")
		}
		return sms.NewLogSender(cfg.DevMode), nil
	default:
		return nil, fmt.Errorf("unknown SMS provider %q", cfg.SMS.Provider)
	}
}
