package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-verification-nosql/internal/application/notification"
	"github.com/go-verification-nosql/internal/config"
	"github.com/go-verification-nosql/internal/domain"
	"github.com/go-verification-nosql/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-verification-nosql/internal/infrastructure/jwt"
	"github.com/go-verification-nosql/internal/infrastructure/memory"
	s3infra "github.com/go-verification-nosql/internal/infrastructure/s3"
	"github.com/go-verification-nosql/internal/infrastructure/smtp"
	"github.com/go-verification-nosql/internal/infrastructure/sns"
	transporthttp "github.com/go-verification-nosql/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	root := &cobra.Command{
		Use:           "api",
		Short:         "Registration verification-code service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "bootstrap",
			Short: "Create DynamoDB tables and upload the default email template",
			RunE:  runBootstrap,
		},
	)

	if err := root.Execute(); err != nil {
		log.Fatalf("error: %v", err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	deps := &transporthttp.Deps{}
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Println("WARN: STORAGE_DRIVER=memory, codes and accounts are lost on restart")
		deps.Codes = memory.NewTable[domain.VerificationCode]()
		deps.Accounts = memory.NewAccountRepo()
		if cfg.Verification.LeaseEnabled {
			deps.Leaser = memory.NewLeaseStore(cfg.Verification.LeaseWait)
		}
	default:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("dynamo client: %w", err)
		}
		deps.Codes = dynamo.NewTable[domain.VerificationCode](client, cfg.DynamoTables.VerificationCodes, dynamo.TableOptions{
			MaxAttempts:  cfg.Verification.MergeMaxAttempts,
			RetryBackoff: cfg.Verification.MergeRetryBackoff,
		})
		deps.Accounts = dynamo.NewAccountRepo(client, cfg.DynamoTables.Accounts)
		if cfg.Verification.LeaseEnabled {
			deps.Leaser = dynamo.NewLeaseStore(client, cfg.DynamoTables.VerificationCodes, cfg.Verification.LeaseWait)
		}
	}

	notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		return err
	}
	deps.Notifier = notifier

	deps.JWTProvider, err = jwtinfra.NewProvider(cfg)
	if err != nil {
		if cfg.AppEnv == "production" {
			return fmt.Errorf("jwt provider: %w", err)
		}
		log.Printf("WARN: JWT keys not available (%v), using an ephemeral signing key", err)
		if deps.JWTProvider, err = jwtinfra.NewEphemeralProvider(cfg.JWTExpiry); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on :%s (env=%s, storage=%s, lease=%t)",
			cfg.AppPort, cfg.AppEnv, cfg.StorageDriver, deps.Leaser != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Println("Server stopped")
	return nil
}

// newNotifier picks SNS when a topic is configured and SMTP otherwise. The
// template store is only wired when a bucket is set.
func newNotifier(ctx context.Context, cfg *config.Config) (notification.Service, error) {
	deps := notification.ServiceDeps{TemplateKey: cfg.S3TemplateKey}
	if cfg.S3BucketName != "" {
		client, err := s3infra.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		deps.Templates = s3infra.NewStore(client, cfg.S3BucketName)
	}
	if cfg.SNSTopicARN != "" {
		client, err := sns.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		deps.Publisher = sns.NewPublisher(client, cfg.SNSTopicARN)
	} else {
		deps.Mailer = smtp.NewMailer(cfg)
	}
	return notification.NewService(deps), nil
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	client, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("dynamo client: %w", err)
	}
	dynamo.Bootstrap(ctx, client, cfg.DynamoTables)

	if cfg.S3BucketName == "" {
		slog.Info("S3_BUCKET_NAME not set, skipping template upload")
		return nil
	}
	s3Client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	store := s3infra.NewStore(s3Client, cfg.S3BucketName)
	url, err := store.Upload(ctx, cfg.S3TemplateKey, strings.NewReader(notification.DefaultTemplate), "text/plain; charset=utf-8")
	if err != nil {
		return err
	}
	slog.Info("uploaded email template", "url", url)
	return nil
}
