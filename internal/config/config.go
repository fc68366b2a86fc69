package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Admin    AdminConfig    `yaml:"admin"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// PublicURL is the base used for magic links when the request gives none
	PublicURL      string   `yaml:"public_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	SecureCookies  bool     `yaml:"secure_cookies"`
}

// SupabaseConfig holds the default project connection and S3 storage keys
type SupabaseConfig struct {
	URL         string `yaml:"url"`
	Key         string `yaml:"key"`
	S3Region    string `yaml:"s3_region"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Endpoint  string `yaml:"s3_endpoint"`
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// DatabaseConfig holds the optional direct Postgres connection used by admin
// operations
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// AdminConfig holds the admin token
type AdminConfig struct {
	Token string `yaml:"token"`
}

// StorageConfig holds local storage configuration
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file, then applies .env and
// NEONMATCH_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return cfg, nil
}

// Default returns the configuration used for unset values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		Gemini:  GeminiConfig{Model: "gemini-2.5-flash"},
		Storage: StorageConfig{Path: "neonmatch.local.yaml"},
		Log:     LogConfig{Level: "info"},
		Database: DatabaseConfig{
			Port:    5432,
			SSLMode: "require",
		},
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"NEONMATCH_HOST":             &c.Server.Host,
		"NEONMATCH_PUBLIC_URL":       &c.Server.PublicURL,
		"NEONMATCH_SUPABASE_URL":     &c.Supabase.URL,
		"NEONMATCH_SUPABASE_KEY":     &c.Supabase.Key,
		"NEONMATCH_S3_REGION":        &c.Supabase.S3Region,
		"NEONMATCH_S3_ACCESS_KEY":    &c.Supabase.S3AccessKey,
		"NEONMATCH_S3_SECRET_KEY":    &c.Supabase.S3SecretKey,
		"NEONMATCH_S3_ENDPOINT":      &c.Supabase.S3Endpoint,
		"NEONMATCH_GEMINI_API_KEY":   &c.Gemini.APIKey,
		"NEONMATCH_GEMINI_MODEL":     &c.Gemini.Model,
		"NEONMATCH_DB_HOST":          &c.Database.Host,
		"NEONMATCH_DB_USER":          &c.Database.User,
		"NEONMATCH_DB_PASSWORD":      &c.Database.Password,
		"NEONMATCH_DB_NAME":          &c.Database.DBName,
		"NEONMATCH_DB_SSLMODE":       &c.Database.SSLMode,
		"NEONMATCH_JWT_SECRET":       &c.JWT.Secret,
		"NEONMATCH_ADMIN_TOKEN":      &c.Admin.Token,
		"NEONMATCH_STORAGE_PATH":     &c.Storage.Path,
		"NEONMATCH_LOG_LEVEL":        &c.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"NEONMATCH_PORT":    &c.Server.Port,
		"NEONMATCH_DB_PORT": &c.Database.Port,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	// Gemini's own variable name, as used by its SDKs
	if c.Gemini.APIKey == "" {
		if v, ok := lookup("GEMINI_API_KEY"); ok {
			c.Gemini.APIKey = v
		}
	}

	return nil
}

// Enabled reports whether a direct database connection is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != "" && c.User != "" && c.DBName != ""
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
