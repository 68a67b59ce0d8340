// Package config provides YAML-based configuration management for the print relay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/printrelay/backend/internal/archive"
	"github.com/printrelay/backend/internal/docstore"
	"github.com/printrelay/backend/internal/retry"
	"github.com/printrelay/backend/internal/settlement"
	"github.com/printrelay/backend/internal/upload"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Storage    StorageConfig      `yaml:"storage"`
	DocStore   DocStoreConfig     `yaml:"docstore"`
	Upload     UploadConfig       `yaml:"upload"`
	Settlement SettlementConfig   `yaml:"settlement"`
	Pricing    settlement.Pricing `yaml:"pricing"`
	Payee      PayeeConfig        `yaml:"payee"`
	Convert    ConvertConfig      `yaml:"convert"`
	Archive    ArchiveConfig      `yaml:"archive"`
	Logging    LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bind_address"`
	EnableCORS   bool   `yaml:"enable_cors"`
	AllowOrigins string `yaml:"allow_origins"`
	BodyLimit    string `yaml:"body_limit"`

	// SessionTimeoutMinutes is how long an idle session is kept.
	SessionTimeoutMinutes  int `yaml:"session_timeout_minutes"`
	JobRetentionMinutes    int `yaml:"job_retention_minutes"`
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
}

// StorageConfig contains staging storage settings
type StorageConfig struct {
	DataDirectory    string `yaml:"data_directory"`
	UploadsDirectory string `yaml:"uploads_directory"`
}

// DocStoreConfig selects the document store that receives fragments and manifests.
type DocStoreConfig struct {
	Backend string `yaml:"backend"` // firestore, duckdb, postgres, memory

	FirestoreProject  string `yaml:"firestore_project"`
	FirestoreDatabase string `yaml:"firestore_database"`
	CredentialsFile   string `yaml:"credentials_file"`
	CredentialsJSON   string `yaml:"-"`
	DuckDBPath        string `yaml:"duckdb_path"`
	DuckDBMemoryLimit string `yaml:"duckdb_memory_limit"`
	DuckDBThreads     int    `yaml:"duckdb_threads"`
	PostgresDSN       string `yaml:"postgres_dsn"`
}

// UploadConfig tunes how files are written to the document store.
type UploadConfig struct {
	Collection          string  `yaml:"collection"`
	ChunkSize           int     `yaml:"chunk_size"`
	BatchSize           int     `yaml:"batch_size"`
	PreliminaryManifest bool    `yaml:"preliminary_manifest"`
	RetryAttempts       int     `yaml:"retry_attempts"`
	RetryInitialDelayMS int     `yaml:"retry_initial_delay_ms"`
	RetryFactor         float64 `yaml:"retry_factor"`
}

// SettlementConfig controls the wait for the receiver's payment record.
type SettlementConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	TimeoutSeconds  int `yaml:"timeout_seconds"`
}

// PayeeConfig is the UPI account payments are made to.
type PayeeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ConvertConfig configures document conversion.
type ConvertConfig struct {
	OfficeBinary string `yaml:"office_binary"`
	PaperSize    string `yaml:"paper_size"`
}

// ArchiveConfig configures the optional object storage copy.
type ArchiveConfig struct {
	Kind            string `yaml:"kind"` // none, s3, gcs
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKey       string `yaml:"access_key"`
	SecretKey       string `yaml:"-"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	CredentialsFile string `yaml:"credentials_file"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level                string `yaml:"level"`
	Development          bool   `yaml:"development"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	up := upload.DefaultOptions()
	st := settlement.DefaultOptions()
	return &AppConfig{
		Server: ServerConfig{
			Port:                   8090,
			BindAddress:            "0.0.0.0",
			EnableCORS:             true,
			AllowOrigins:           "*",
			BodyLimit:              "100M",
			SessionTimeoutMinutes:  120,
			JobRetentionMinutes:    60,
			CleanupIntervalMinutes: 5,
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
		},
		DocStore: DocStoreConfig{
			Backend:           docstore.BackendFirestore,
			CredentialsFile:   "./credentials.json",
			DuckDBPath:        "./data/printrelay.duckdb",
			DuckDBMemoryLimit: "512MB",
			DuckDBThreads:     2,
		},
		Upload: UploadConfig{
			Collection:          up.Collection,
			ChunkSize:           up.ChunkSize,
			BatchSize:           up.BatchSize,
			PreliminaryManifest: up.PreliminaryManifest,
			RetryAttempts:       up.Retry.MaxAttempts,
			RetryInitialDelayMS: int(up.Retry.InitialDelay / time.Millisecond),
			RetryFactor:         up.Retry.Factor,
		},
		Settlement: SettlementConfig{
			IntervalSeconds: int(st.Interval / time.Second),
			TimeoutSeconds:  int(st.Timeout / time.Second),
		},
		Pricing: settlement.DefaultPricing(),
		Convert: ConvertConfig{
			PaperSize: "A4",
		},
		Archive: ArchiveConfig{
			Kind:   archive.KindNone,
			Prefix: "printrelay",
			Region: "us-east-1",
		},
		Logging: LoggingConfig{
			Level:                "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is created
// with the defaults. A .env file next to the config is loaded before the
// environment overrides are applied.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	configDir := filepath.Dir(configPath)
	if err := loadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(configDir)

	return config, nil
}

// loadDotEnv sets variables from path without overriding the real environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Print relay configuration\n# This file is auto-generated on first run\n\n")
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if backend := os.Getenv("DOCSTORE_BACKEND"); backend != "" {
		c.DocStore.Backend = strings.ToLower(backend)
	}
	if project := os.Getenv("FIRESTORE_PROJECT"); project != "" {
		c.DocStore.FirestoreProject = project
	}
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		c.DocStore.CredentialsFile = creds
	}
	if raw := os.Getenv("PRINTRELAY_CREDENTIALS_JSON"); raw != "" {
		c.DocStore.CredentialsJSON = raw
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.DocStore.PostgresDSN = dsn
	}

	if id := os.Getenv("PAYEE_UPI_ID"); id != "" {
		c.Payee.ID = id
	}
	if name := os.Getenv("PAYEE_NAME"); name != "" {
		c.Payee.Name = name
	}

	if kind := os.Getenv("ARCHIVE_KIND"); kind != "" {
		c.Archive.Kind = strings.ToLower(kind)
	}
	if bucket := os.Getenv("ARCHIVE_BUCKET"); bucket != "" {
		c.Archive.Bucket = bucket
	}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		c.Archive.AccessKey = key
	}
	if secret := os.Getenv("AWS_SECRET_ACCESS_KEY"); secret != "" {
		c.Archive.SecretKey = secret
	}

	if office := os.Getenv("OFFICE_BINARY"); office != "" {
		c.Convert.OfficeBinary = office
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&c.Storage.DataDirectory)
	resolve(&c.Storage.UploadsDirectory)
	resolve(&c.DocStore.CredentialsFile)
	resolve(&c.DocStore.DuckDBPath)
	resolve(&c.Archive.CredentialsFile)
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.DataDirectory, c.Storage.UploadsDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DocStoreOptions maps the config onto docstore.Open.
func (c *AppConfig) DocStoreOptions() docstore.Options {
	return docstore.Options{
		Backend: c.DocStore.Backend,
		Firestore: docstore.FirestoreOptions{
			ProjectID:       c.DocStore.FirestoreProject,
			DatabaseID:      c.DocStore.FirestoreDatabase,
			CredentialsFile: c.DocStore.CredentialsFile,
			CredentialsJSON: c.DocStore.CredentialsJSON,
		},
		DuckDB: docstore.DuckDBOptions{
			Path:        c.DocStore.DuckDBPath,
			MemoryLimit: c.DocStore.DuckDBMemoryLimit,
			Threads:     c.DocStore.DuckDBThreads,
		},
		PostgresDSN: c.DocStore.PostgresDSN,
	}
}

// UploadOptions maps the config onto the uploader.
func (c *AppConfig) UploadOptions() upload.Options {
	return upload.Options{
		Collection:          c.Upload.Collection,
		ChunkSize:           c.Upload.ChunkSize,
		BatchSize:           c.Upload.BatchSize,
		PreliminaryManifest: c.Upload.PreliminaryManifest,
		Retry: retry.Policy{
			MaxAttempts:  c.Upload.RetryAttempts,
			InitialDelay: time.Duration(c.Upload.RetryInitialDelayMS) * time.Millisecond,
			Factor:       c.Upload.RetryFactor,
		},
	}
}

// SettlementOptions maps the config onto the poller.
func (c *AppConfig) SettlementOptions() settlement.Options {
	return settlement.Options{
		Collection: c.Upload.Collection,
		Interval:   time.Duration(c.Settlement.IntervalSeconds) * time.Second,
		Timeout:    time.Duration(c.Settlement.TimeoutSeconds) * time.Second,
	}
}

// ArchiveOptions maps the config onto archive.Open.
func (c *AppConfig) ArchiveOptions() archive.Options {
	return archive.Options{
		Kind:            c.Archive.Kind,
		Bucket:          c.Archive.Bucket,
		Prefix:          c.Archive.Prefix,
		Region:          c.Archive.Region,
		Endpoint:        c.Archive.Endpoint,
		AccessKey:       c.Archive.AccessKey,
		SecretKey:       c.Archive.SecretKey,
		UsePathStyle:    c.Archive.UsePathStyle,
		CredentialsFile: c.Archive.CredentialsFile,
	}
}

// SessionTimeout is the idle age after which sessions are dropped.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Server.SessionTimeoutMinutes) * time.Minute
}

// JobRetention is how long finished jobs stay queryable.
func (c *AppConfig) JobRetention() time.Duration {
	return time.Duration(c.Server.JobRetentionMinutes) * time.Minute
}

// CleanupInterval is the period of the cleanup loop.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Server.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Server.CleanupIntervalMinutes) * time.Minute
}
