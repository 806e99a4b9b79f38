// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Storage backends selectable via STORAGE_BACKEND.
const (
	BackendS3     = "s3"
	BackendMinIO  = "minio"
	BackendGCS    = "gcs"
	BackendAzure  = "azure"
	BackendMemory = "memory"
)

// AuthConfig holds authentication configuration for the HTTP surface.
type AuthConfig struct {
	IssuerURL      string   // OIDC issuer URL
	Audience       string   // Required JWT audience claim (OIDC)
	AllowedIssuers []string // Accepted issuers (defaults to [IssuerURL])
	JWTSecret      string   // HS256 shared secret for local/dev JWT auth
	ProjectClaim   string   // JWT claim holding the project ID (default: "project_id")
}

// Enabled returns true when any token validator is configured.
func (a *AuthConfig) Enabled() bool {
	return a.IssuerURL != "" || a.JWTSecret != ""
}

// StorageConfig selects and configures the object-store backend.
type StorageConfig struct {
	Backend string

	// S3-compatible (AWS, Hetzner, ...)
	S3KeyID    string
	S3Secret   string
	S3Endpoint string
	S3Region   string
	S3URLStyle string // "path" (default) or "vhost"

	// MinIO
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool

	// Google Cloud Storage
	GCSProjectID string
	GCSKeyFile   string

	// Azure Blob Storage
	AzureAccountName string
	AzureAccountKey  string
}

// CatalogConfig configures the downstream catalog service client.
type CatalogConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	RPS     float64 // 0 disables client-side throttling
}

// ReconcileConfig configures the temp-bucket reconciliation scheduler.
type ReconcileConfig struct {
	Interval        time.Duration
	MaxAge          time.Duration
	TransientStatus string
}

// Config holds the configuration for the HTTP API, storage, catalog client and
// the reconciliation scheduler.
type Config struct {
	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"
	MetaDBPath string // SQLite file holding reconciliation tasks

	Storage   StorageConfig
	Catalog   CatalogConfig
	Reconcile ReconcileConfig
	Auth      AuthConfig

	DefaultSourceBucket string
	TempBucketPrefix    string
	KeyDelimiter        string
	TempRoot            string

	FallbackUserID    string
	FallbackProjectID string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// CORS
	CORSAllowedOrigins []string

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:          os.Getenv("LISTEN_ADDR"),
		LogLevel:            os.Getenv("LOG_LEVEL"),
		Env:                 os.Getenv("ENV"),
		MetaDBPath:          os.Getenv("META_DB_PATH"),
		DefaultSourceBucket: os.Getenv("DEFAULT_SOURCE_BUCKET"),
		TempBucketPrefix:    os.Getenv("TEMP_BUCKET_PREFIX"),
		KeyDelimiter:        os.Getenv("KEY_DELIMITER"),
		TempRoot:            os.Getenv("TEMP_ROOT"),
		FallbackUserID:      os.Getenv("FALLBACK_USER_ID"),
		FallbackProjectID:   os.Getenv("FALLBACK_PROJECT_ID"),
	}

	cfg.Storage = StorageConfig{
		Backend:          strings.ToLower(os.Getenv("STORAGE_BACKEND")),
		S3KeyID:          os.Getenv("KEY_ID"),
		S3Secret:         os.Getenv("SECRET"),
		S3Endpoint:       os.Getenv("ENDPOINT"),
		S3Region:         os.Getenv("REGION"),
		S3URLStyle:       os.Getenv("S3_URL_STYLE"),
		MinIOEndpoint:    os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:   os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:   os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:      parseBoolEnvDefault("MINIO_USE_SSL", true),
		GCSProjectID:     os.Getenv("GCS_PROJECT_ID"),
		GCSKeyFile:       os.Getenv("GCS_KEY_FILE"),
		AzureAccountName: os.Getenv("AZURE_ACCOUNT_NAME"),
		AzureAccountKey:  os.Getenv("AZURE_ACCOUNT_KEY"),
	}

	cfg.Catalog = CatalogConfig{
		BaseURL: strings.TrimRight(os.Getenv("CATALOG_URL"), "/"),
		Token:   os.Getenv("CATALOG_TOKEN"),
	}
	var err error
	if cfg.Catalog.Timeout, err = parseDurationEnv("CATALOG_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if v := os.Getenv("CATALOG_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse CATALOG_RPS: %w", err)
		}
		cfg.Catalog.RPS = f
	}

	cfg.Reconcile.TransientStatus = os.Getenv("RECONCILE_TRANSIENT_STATUS")
	if cfg.Reconcile.Interval, err = parseDurationEnv("RECONCILE_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Reconcile.MaxAge, err = parseDurationEnv("RECONCILE_MAX_AGE", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.Auth = AuthConfig{
		IssuerURL:    os.Getenv("AUTH_ISSUER_URL"),
		Audience:     os.Getenv("AUTH_AUDIENCE"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		ProjectClaim: os.Getenv("AUTH_PROJECT_CLAIM"),
	}
	if v := os.Getenv("AUTH_ALLOWED_ISSUERS"); v != "" {
		cfg.Auth.AllowedIssuers = compactNonEmpty(splitTrim(v))
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = compactNonEmpty(splitTrim(v))
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "bff_meta.sqlite"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
		cfg.Warnings = append(cfg.Warnings, "STORAGE_BACKEND not set, using in-memory object store")
	}
	if cfg.Storage.S3URLStyle == "" {
		cfg.Storage.S3URLStyle = "path"
	}
	if cfg.TempBucketPrefix == "" {
		cfg.TempBucketPrefix = "tmp-dataset"
	}
	if cfg.KeyDelimiter == "" {
		cfg.KeyDelimiter = "__"
	}
	if cfg.TempRoot == "" {
		cfg.TempRoot = filepath.Join(os.TempDir(), "agent-bff")
	}
	if cfg.Reconcile.TransientStatus == "" {
		cfg.Reconcile.TransientStatus = "preparing"
	}
	if cfg.FallbackUserID == "" {
		cfg.FallbackUserID = "system"
	}
	if cfg.FallbackProjectID == "" {
		cfg.FallbackProjectID = "default"
	}
	if cfg.Auth.ProjectClaim == "" {
		cfg.Auth.ProjectClaim = "project_id"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.Catalog.BaseURL == "" {
		cfg.Warnings = append(cfg.Warnings, "CATALOG_URL not set, ingestion calls will fail")
	}
	if !cfg.Auth.Enabled() {
		cfg.Warnings = append(cfg.Warnings, "authentication is disabled; set JWT_SECRET or AUTH_ISSUER_URL")
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendS3:
		if c.Storage.S3KeyID == "" || c.Storage.S3Secret == "" || c.Storage.S3Endpoint == "" || c.Storage.S3Region == "" {
			return fmt.Errorf("STORAGE_BACKEND=s3 requires KEY_ID, SECRET, ENDPOINT and REGION")
		}
	case BackendMinIO:
		if c.Storage.MinIOEndpoint == "" || c.Storage.MinIOAccessKey == "" || c.Storage.MinIOSecretKey == "" {
			return fmt.Errorf("STORAGE_BACKEND=minio requires MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY")
		}
	case BackendGCS:
		if c.Storage.GCSProjectID == "" {
			return fmt.Errorf("STORAGE_BACKEND=gcs requires GCS_PROJECT_ID")
		}
	case BackendAzure:
		if c.Storage.AzureAccountName == "" || c.Storage.AzureAccountKey == "" {
			return fmt.Errorf("STORAGE_BACKEND=azure requires AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (expected s3, minio, gcs, azure or memory)", c.Storage.Backend)
	}

	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	if c.Reconcile.MaxAge < c.Reconcile.Interval {
		return fmt.Errorf("RECONCILE_MAX_AGE (%s) must not be shorter than RECONCILE_INTERVAL (%s)",
			c.Reconcile.MaxAge, c.Reconcile.Interval)
	}
	if c.Auth.IssuerURL != "" && c.Auth.Audience == "" {
		return fmt.Errorf("AUTH_AUDIENCE is required when AUTH_ISSUER_URL is set")
	}

	// Production mode: insecure defaults are fatal errors.
	if c.IsProduction() {
		if !c.Auth.Enabled() {
			return fmt.Errorf("authentication must be configured in production (set AUTH_ISSUER_URL or JWT_SECRET)")
		}
		if c.Storage.Backend == BackendMemory {
			return fmt.Errorf("in-memory object store is not allowed in production (ENV=production)")
		}
		if c.Catalog.BaseURL == "" {
			return fmt.Errorf("CATALOG_URL must be set in production (ENV=production)")
		}
		if len(c.CORSAllowedOrigins) == 1 && c.CORSAllowedOrigins[0] == "*" {
			return fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}
	return nil
}

func parseDurationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func splitTrim(v string) []string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Env vars take precedence over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
