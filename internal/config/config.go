package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageDynamo = "dynamo"
	StorageMemory = "memory"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort           string
	AppEnv            string
	AWSRegion         string
	AWSEndpointURL    string        // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID    string
	AWSSecretKey      string
	StorageDriver     string
	DynamoTables      DynamoTables
	Verification      Verification
	PublicBaseURL     string        // confirmation links are built from this
	S3BucketName      string
	S3TemplateKey     string
	SMTPHost          string
	SMTPPort          int
	SMTPFrom          string
	SMTPUsername      string
	SMTPPassword      string
	SNSRegion         string
	SNSTopicARN       string        // when set, verification emails are published to SNS instead of SMTP
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration // registration ticket lifetime
	RateLimitRPS      float64
	RateLimitBurst    int
	AllowedOrigins    []string      // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	VerificationCodes string
	Accounts          string
}

// Verification tunes the code workflow and its storage contract.
type Verification struct {
	ResendLimit       int
	MergeMaxAttempts  int
	MergeRetryBackoff time.Duration
	LeaseEnabled      bool
	LeaseTTL          time.Duration
	LeaseWait         time.Duration // how long AddCode waits for a held lease
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", StorageDynamo)),
		DynamoTables: DynamoTables{
			VerificationCodes: getEnv("DYNAMO_TABLE_VERIFICATION_CODES", "verification_codes"),
			Accounts:          getEnv("DYNAMO_TABLE_ACCOUNTS", "accounts"),
		},
		Verification: Verification{
			ResendLimit:       getEnvInt("VERIFICATION_RESEND_LIMIT", 2),
			MergeMaxAttempts:  getEnvInt("MERGE_MAX_ATTEMPTS", 5),
			MergeRetryBackoff: getEnvDuration("MERGE_RETRY_BACKOFF", 25*time.Millisecond),
			LeaseEnabled:      getEnvBool("ADD_CODE_LEASE_ENABLED", false),
			LeaseTTL:          getEnvDuration("ADD_CODE_LEASE_TTL", 10*time.Second),
			LeaseWait:         getEnvDuration("ADD_CODE_LEASE_WAIT", 2*time.Second),
		},
		PublicBaseURL:     strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		S3BucketName:      getEnv("S3_BUCKET_NAME", ""),
		S3TemplateKey:     getEnv("S3_TEMPLATE_KEY", "templates/verification-email.txt"),
		SMTPHost:          getEnv("SMTP_HOST", "localhost"),
		SMTPPort:          getEnvInt("SMTP_PORT", 1025),
		SMTPFrom:          getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SNSRegion:         getEnv("SNS_REGION", "us-east-1"),
		SNSTopicARN:       getEnv("NOTIFY_SNS_TOPIC_ARN", ""),
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         getEnvDuration("REGISTRATION_TICKET_TTL", 30*time.Minute),
		RateLimitRPS:      getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 10),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDynamo, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("config: STORAGE_DRIVER must be %q or %q, got %q", StorageDynamo, StorageMemory, c.StorageDriver))
	}
	if c.Verification.ResendLimit < 0 {
		errs = append(errs, errors.New("config: VERIFICATION_RESEND_LIMIT must not be negative"))
	}
	if c.Verification.MergeMaxAttempts < 1 {
		errs = append(errs, errors.New("config: MERGE_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Verification.LeaseEnabled && c.Verification.LeaseTTL <= 0 {
		errs = append(errs, errors.New("config: ADD_CODE_LEASE_TTL must be positive when the lease is enabled"))
	}
	if c.JWTExpiry <= 0 {
		errs = append(errs, errors.New("config: REGISTRATION_TICKET_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
