package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Netflix/go-env"
)

// Environment variables with defaults
type ServerEnvironment struct {

	// http server settings
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=debug"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=60s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT,default=55s"`
	RateLimitRPS          int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst        int32         `env:"RATE_LIMIT_BURST,default=200"`
	MaxRequestBytes       int64         `env:"MAX_REQUEST_BYTES,default=10485760"`
	MetricsEnabled        bool          `env:"METRICS_ENABLED,default=true"`

	// cors - the issuance endpoint only accepts browser requests from these origins
	AllowedOrigins         []string `env:"ALLOWED_ORIGINS,separator=|"`
	CORSAllowMissingOrigin bool     `env:"CORS_ALLOW_MISSING_ORIGIN,default=false"`

	// when true, failures outside the storage and email stages are reported with status 200
	LegacyStatusCodes bool `env:"LEGACY_STATUS_CODES,default=true"`

	// pass template and signing identity
	PassModelDir            string `env:"PASS_MODEL_DIR,default=./model/student.pass"`
	PassWWDRCertPath        string `env:"PASS_WWDR_CERT_PATH,default=./certs/wwdr.pem"`
	PassSignerCertPath      string `env:"PASS_SIGNER_CERT_PATH,default=./certs/signerCert.pem"`
	PassSignerKeyPath       string `env:"PASS_SIGNER_KEY_PATH,default=./certs/signerKey.pem"`
	PassSignerKeyPassphrase string `env:"PASS_SIGNER_KEY_PASSPHRASE"`
	SerialPrefix            string `env:"SERIAL_PREFIX,default=SJ"`

	// student photo resolution
	ImageFetchTimeout time.Duration `env:"IMAGE_FETCH_TIMEOUT,default=10s"`
	MaxImageBytes     int64         `env:"MAX_IMAGE_BYTES,default=5242880"`

	// object storage (s3 or file)
	StorageBackend      string        `env:"STORAGE_BACKEND,default=file"`
	SignedURLTTL        time.Duration `env:"SIGNED_URL_TTL,default=24h"`
	S3Bucket            string        `env:"S3_BUCKET"`
	S3Prefix            string        `env:"S3_PREFIX"`
	S3Region            string        `env:"S3_REGION,default=us-east-1"`
	S3Endpoint          string        `env:"S3_ENDPOINT"`
	S3AccessKeyID       string        `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey   string        `env:"S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle    bool          `env:"S3_FORCE_PATH_STYLE,default=false"`
	FileStorageDir      string        `env:"FILE_STORAGE_DIR,default=./data/passes"`
	PublicBaseURL       string        `env:"PUBLIC_BASE_URL"`
	DownloadTokenSecret string        `env:"DOWNLOAD_TOKEN_SECRET"`

	// document store (postgres, redis or memory)
	DocumentStore       string        `env:"DOCUMENT_STORE,default=memory"`
	DatabaseURL         string        `env:"DATABASE_URL"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS,default=4"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS,default=0"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME,default=30m"`
	DBConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`
	RedisURL            string        `env:"REDIS_URL"`
	RedisKeyPrefix      string        `env:"REDIS_KEY_PREFIX,default=walletpass"`

	// email
	Mailer         string `env:"MAILER,default=log"`
	EmailDelivery  string `env:"EMAIL_DELIVERY,default=link"`
	EmailFrom      string `env:"EMAIL_FROM"`
	EmailSubject   string `env:"EMAIL_SUBJECT,default=Your Apple Wallet Strake Jesuit ID Card"`
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	SendGridHost   string `env:"SENDGRID_HOST,default=https://api.sendgrid.com"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

var (
	validStorageBackends = map[string]bool{"s3": true, "file": true}
	validDocumentStores  = map[string]bool{"postgres": true, "redis": true, "memory": true}
	validMailers         = map[string]bool{"sendgrid": true, "log": true}
	validEmailDelivery   = map[string]bool{"link": true, "attachment": true}
)

// NewServerConfig loads environment variables and returns a ServerEnvironment struct that contains the values
func NewServerConfig() (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewToolConfig loads the same variables for the operator CLI. Only the settings needed to build
// passes locally are checked; storage, document store, mailer and origin settings are ignored.
func NewToolConfig() (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if cfg.SerialPrefix == "" {
		return nil, fmt.Errorf("SERIAL_PREFIX must not be empty")
	}
	if cfg.MaxImageBytes < 1 {
		return nil, fmt.Errorf("MAX_IMAGE_BYTES must be at least 1")
	}
	return &cfg, nil
}

// LoadFromEnvSet is NewServerConfig for an explicit variable set (used by tests).
func LoadFromEnvSet(es env.EnvSet) (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	if err := env.Unmarshal(es, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig checks for required env variables
func validateConfig(cfg *ServerEnvironment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}
	if cfg.MaxRequestBytes < 1 {
		return fmt.Errorf("MAX_REQUEST_BYTES must be at least 1")
	}
	if cfg.MaxImageBytes < 1 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be at least 1")
	}
	if cfg.SerialPrefix == "" {
		return fmt.Errorf("SERIAL_PREFIX must not be empty")
	}
	if cfg.SignedURLTTL <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL must be positive")
	}

	if len(cfg.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS must list at least one origin")
	}
	for _, origin := range cfg.AllowedOrigins {
		if _, err := url.ParseRequestURI(origin); err != nil {
			return fmt.Errorf("invalid origin in ALLOWED_ORIGINS %q: %w", origin, err)
		}
	}

	if cfg.PassModelDir == "" || cfg.PassWWDRCertPath == "" || cfg.PassSignerCertPath == "" || cfg.PassSignerKeyPath == "" {
		return fmt.Errorf("PASS_MODEL_DIR, PASS_WWDR_CERT_PATH, PASS_SIGNER_CERT_PATH and PASS_SIGNER_KEY_PATH must be set")
	}

	if err := validateStorage(cfg); err != nil {
		return err
	}
	if err := validateDocumentStore(cfg); err != nil {
		return err
	}
	return validateMailer(cfg)
}

func validateStorage(cfg *ServerEnvironment) error {
	if !validStorageBackends[cfg.StorageBackend] {
		return fmt.Errorf("invalid STORAGE_BACKEND: %s (must be s3 or file)", cfg.StorageBackend)
	}

	switch cfg.StorageBackend {
	case "s3":
		if cfg.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
		if (cfg.S3AccessKeyID == "") != (cfg.S3SecretAccessKey == "") {
			return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
		}
	case "file":
		if cfg.FileStorageDir == "" {
			return fmt.Errorf("FILE_STORAGE_DIR is required when STORAGE_BACKEND=file")
		}
		if cfg.PublicBaseURL == "" {
			return fmt.Errorf("PUBLIC_BASE_URL is required when STORAGE_BACKEND=file")
		}
		if _, err := url.ParseRequestURI(cfg.PublicBaseURL); err != nil {
			return fmt.Errorf("invalid PUBLIC_BASE_URL: %w", err)
		}
		if len(cfg.DownloadTokenSecret) < 32 {
			return fmt.Errorf("DOWNLOAD_TOKEN_SECRET must be at least 32 characters when STORAGE_BACKEND=file")
		}
	}
	return nil
}

func validateDocumentStore(cfg *ServerEnvironment) error {
	if !validDocumentStores[cfg.DocumentStore] {
		return fmt.Errorf("invalid DOCUMENT_STORE: %s (must be postgres, redis or memory)", cfg.DocumentStore)
	}

	switch cfg.DocumentStore {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DOCUMENT_STORE=postgres")
		}
		// Validate database pool configuration
		if cfg.DBMaxConnections < 1 {
			return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
		}
		if cfg.DBMinConnections < 0 {
			return fmt.Errorf("DB_MIN_CONNECTIONS must be 0 or greater")
		}
		if cfg.DBMinConnections > cfg.DBMaxConnections {
			return fmt.Errorf("DB_MIN_CONNECTIONS (%d) cannot be greater than DB_MAX_CONNECTIONS (%d)",
				cfg.DBMinConnections, cfg.DBMaxConnections)
		}
	case "redis":
		if cfg.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when DOCUMENT_STORE=redis")
		}
	case "memory":
		if cfg.Environment == "prod" {
			return fmt.Errorf("DOCUMENT_STORE=memory is not permitted in prod")
		}
	}
	return nil
}

func validateMailer(cfg *ServerEnvironment) error {
	if !validMailers[cfg.Mailer] {
		return fmt.Errorf("invalid MAILER: %s (must be sendgrid or log)", cfg.Mailer)
	}
	if !validEmailDelivery[cfg.EmailDelivery] {
		return fmt.Errorf("invalid EMAIL_DELIVERY: %s (must be link or attachment)", cfg.EmailDelivery)
	}

	if cfg.Mailer == "sendgrid" {
		if cfg.SendGridAPIKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY is required when MAILER=sendgrid")
		}
		if cfg.EmailFrom == "" {
			return fmt.Errorf("EMAIL_FROM is required when MAILER=sendgrid")
		}
	}
	return nil
}
