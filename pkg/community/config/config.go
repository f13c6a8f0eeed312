// Package config loads community-admin settings and builds the stores and
// service they describe.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Document store types
const (
	DocStoreMemory   = "memory"
	DocStoreMongo    = "mongo"
	DocStorePostgres = "postgres"
)

// Object store types
const (
	ObjectStoreMemory = "memory"
	ObjectStoreS3     = "s3"
	ObjectStoreMinio  = "minio"
)

// Config is the full process configuration
type Config struct {
	Environment   string `yaml:"environment" env:"ENVIRONMENT" env-default:"development" env-description:"development, production or testing"`
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat     string `yaml:"log_format" env:"LOG_FORMAT" env-description:"console or json; empty picks by environment"`
	PublicBaseURL string `yaml:"public_base_url" env:"PUBLIC_BASE_URL" env-default:"http://localhost:3000"`

	DocStore    DocStoreConfig    `yaml:"docstore"`
	ObjectStore ObjectStoreConfig `yaml:"objectstore"`
}

// DocStoreConfig selects and configures the document store
type DocStoreConfig struct {
	Type           string        `yaml:"type" env:"DOCSTORE_TYPE" env-default:"memory"`
	MongoURI       string        `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase  string        `yaml:"mongo_database" env:"MONGO_DATABASE" env-default:"community_admin"`
	DatabaseURL    string        `yaml:"database_url" env:"DATABASE_URL"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"DOCSTORE_CONNECT_TIMEOUT" env-default:"10s"`
}

// ObjectStoreConfig selects and configures the object store
type ObjectStoreConfig struct {
	Type            string `yaml:"type" env:"OBJECTSTORE_TYPE" env-default:"memory"`
	Bucket          string `yaml:"bucket" env:"STORAGE_BUCKET" env-default:"community-admin"`
	Region          string `yaml:"region" env:"STORAGE_REGION" env-default:"us-east-1"`
	Endpoint        string `yaml:"endpoint" env:"STORAGE_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"STORAGE_SECRET_ACCESS_KEY"`
	UseSSL          bool   `yaml:"use_ssl" env:"STORAGE_USE_SSL" env-default:"false"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"STORAGE_USE_PATH_STYLE" env-default:"false"`
	CreateBucket    bool   `yaml:"create_bucket" env:"STORAGE_CREATE_BUCKET" env-default:"false"`

	EnableSSE    bool   `yaml:"enable_sse" env:"STORAGE_ENABLE_SSE" env-default:"false"`
	SSEAlgorithm string `yaml:"sse_algorithm" env:"STORAGE_SSE_ALGORITHM" env-default:"AES256"`
	SSEKMSKeyID  string `yaml:"sse_kms_key_id" env:"STORAGE_SSE_KMS_KEY_ID"`

	// SigningSecret signs grants for the memory backend's local endpoints
	SigningSecret string `yaml:"signing_secret" env:"OBJECT_SIGNING_SECRET"`

	DefaultPutExpirySec int `yaml:"default_put_expiry_sec" env:"SIGNED_PUT_EXPIRES_SEC" env-default:"900"`
	DefaultGetExpirySec int `yaml:"default_get_expiry_sec" env:"SIGNED_GET_EXPIRES_SEC" env-default:"3600"`

	// MaxUploadBytes caps bodies accepted by the local upload endpoint
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"104857600"`
}

// Load reads path (YAML, overridden by the environment) or, when path is
// empty, the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Usage describes every environment variable, for --help output
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Environment {
	case "development", "production", "testing":
	default:
		return fmt.Errorf("environment must be development, production or testing, got %q", c.Environment)
	}

	switch c.DocStore.Type {
	case DocStoreMemory:
	case DocStoreMongo:
		if c.DocStore.MongoURI == "" {
			return errors.New("mongo_uri is required when using mongo")
		}
		if c.DocStore.MongoDatabase == "" {
			return errors.New("mongo_database is required when using mongo")
		}
	case DocStorePostgres:
		if c.DocStore.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	default:
		return fmt.Errorf("unsupported docstore type: %s", c.DocStore.Type)
	}

	o := c.ObjectStore
	switch o.Type {
	case ObjectStoreMemory:
		if !strings.HasPrefix(c.PublicBaseURL, "http://") && !strings.HasPrefix(c.PublicBaseURL, "https://") {
			return fmt.Errorf("public_base_url must be an http(s) URL, got %q", c.PublicBaseURL)
		}
	case ObjectStoreS3:
		if o.Bucket == "" {
			return errors.New("bucket is required when using s3")
		}
	case ObjectStoreMinio:
		if o.Bucket == "" {
			return errors.New("bucket is required when using minio")
		}
		if o.Endpoint == "" {
			return errors.New("endpoint is required when using minio")
		}
	default:
		return fmt.Errorf("unsupported objectstore type: %s", o.Type)
	}

	if o.DefaultPutExpirySec <= 0 || o.DefaultGetExpirySec <= 0 {
		return errors.New("default signed URL expiries must be positive")
	}
	if o.MaxUploadBytes < 0 {
		return errors.New("max_upload_bytes must not be negative")
	}
	return nil
}
