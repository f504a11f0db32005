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

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/shopnest-api/internal/config"
	"github.com/shopnest-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/shopnest-api/internal/infrastructure/jwt"
	redisinfra "github.com/shopnest-api/internal/infrastructure/redis"
	"github.com/shopnest-api/internal/infrastructure/smtp"
	"github.com/shopnest-api/internal/infrastructure/sns"
	"github.com/shopnest-api/internal/otp"
	transporthttp "github.com/shopnest-api/internal/transport/http"
	appmiddleware "github.com/shopnest-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	ctx := context.Background()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("dynamodb: %v", err)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	otpStore, closeStore, err := newOTPStore(ctx, cfg, dynamoClient)
	if err != nil {
		log.Fatalf("otp store: %v", err)
	}
	defer closeStore()

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("jwt provider: %v", err)
	}

	// SNS SMS sender (optional, email-only delivery when disabled).
	var smsSender sns.SMSSender
	if cfg.SMSEnabled {
		if sender, err := sns.NewSender(cfg); err == nil {
			smsSender = sender
		} else {
			log.Printf("WARN: SNS sender not available: %v", err)
		}
	}

	limiter := appmiddleware.NewRateLimiter(rate.Limit(5), 10)
	defer limiter.Stop()

	deps := &transporthttp.Deps{
		UserRepo:    dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		SessionRepo: dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions),
		OTPStore:    otpStore,
		Mailer:      smtp.NewMailer(cfg),
		SMSSender:   smsSender,
		JWTProvider: jwtProvider,
		RateLimiter: limiter,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, otp_store=%s)", cfg.AppPort, cfg.AppEnv, cfg.OTPStore)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
		return
	}
	log.Println("Server stopped")
}

// newOTPStore selects the pending-verification backend from OTP_STORE.
// The returned func releases any connection the store holds.
func newOTPStore(ctx context.Context, cfg *config.Config, dynamoClient *dynamodb.Client) (otp.Store, func(), error) {
	noop := func() {}
	switch cfg.OTPStore {
	case config.OTPStoreMemory:
		return otp.NewMemoryStore(cfg.OTPTTL), noop, nil
	case config.OTPStoreDynamo:
		return dynamo.NewVerificationRepo(dynamoClient, cfg.DynamoTables.PendingVerifications, cfg.OTPTTL), noop, nil
	case config.OTPStoreRedis:
		client, err := redisinfra.NewClient(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				log.Printf("WARN: redis close: %v", err)
			}
		}
		return redisinfra.NewVerificationStore(client, cfg.OTPTTL), closeFn, nil
	default:
		return nil, noop, fmt.Errorf("unknown OTP_STORE %q", cfg.OTPStore)
	}
}
