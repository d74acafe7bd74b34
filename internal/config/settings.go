package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Blob key scheme names accepted by index.blob_key_scheme
const (
	BlobKeySchemeRepository = "repository"
	BlobKeySchemeRevision   = "revision"
)

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// IndexSettings configuration for repository synchronization
type IndexSettings struct {
	BaseDir       string        `mapstructure:"base_dir"`
	Repositories  []string      `mapstructure:"repositories"` // "path" or "id=path"
	SyncInterval  time.Duration `mapstructure:"sync_interval"`
	SyncTimeout   time.Duration `mapstructure:"sync_timeout"`
	Watch         bool          `mapstructure:"watch"`
	MaxBlobSize   int64         `mapstructure:"max_blob_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	CacheSize     int           `mapstructure:"cache_size"`
	BlobKeyScheme string        `mapstructure:"blob_key_scheme"`
}

// SearchSettings configuration for search requests
type SearchSettings struct {
	PerPage    int `mapstructure:"per_page"`
	MaxPerPage int `mapstructure:"max_per_page"`
}

// Settings application settings
type Settings struct {
	Transport string         `mapstructure:"transport"`
	Host      string         `mapstructure:"host"`
	Port      int            `mapstructure:"port"`
	Auth      AuthSettings   `mapstructure:"auth"`
	Index     IndexSettings  `mapstructure:"index"`
	Search    SearchSettings `mapstructure:"search"`
}

// EnvPrefix is the prefix of every environment variable read by LoadSettings.
const EnvPrefix = "RELIC_GITINDEX"

// flagBindings maps config keys to CLI flag names.
var flagBindings = map[string]string{
	"transport":             "transport",
	"host":                  "host",
	"port":                  "port",
	"auth.type":             "auth-type",
	"auth.basic.username":   "auth-basic-username",
	"auth.basic.password":   "auth-basic-password",
	"auth.api_keys":         "auth-api-keys",
	"index.base_dir":        "index-base-dir",
	"index.repositories":    "index-repositories",
	"index.sync_interval":   "index-sync-interval",
	"index.sync_timeout":    "index-sync-timeout",
	"index.watch":           "index-watch",
	"index.max_blob_size":   "index-max-blob-size",
	"index.batch_size":      "index-batch-size",
	"index.cache_size":      "index-cache-size",
	"index.blob_key_scheme": "index-blob-key-scheme",
	"search.per_page":       "search-per-page",
	"search.max_per_page":   "search-max-per-page",
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)

	v.SetDefault("index.base_dir", defaultBaseDir())
	v.SetDefault("index.sync_interval", 5*time.Minute)
	v.SetDefault("index.sync_timeout", 60*time.Second)
	v.SetDefault("index.watch", false)
	v.SetDefault("index.max_blob_size", int64(1024*1024)) // 1MB
	v.SetDefault("index.batch_size", 100)
	v.SetDefault("index.cache_size", 4096)
	v.SetDefault("index.blob_key_scheme", BlobKeySchemeRepository)
	v.SetDefault("search.per_page", 20)
	v.SetDefault("search.max_per_page", 100)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Nested keys are not discovered by AutomaticEnv during Unmarshal
	for key := range flagBindings {
		_ = v.BindEnv(key, envName(key))
	}

	if flags != nil {
		for key, name := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	settings.Auth.APIKeys = splitList(settings.Auth.APIKeys, os.Getenv(envName("auth.api_keys")))
	settings.Index.Repositories = splitList(settings.Index.Repositories, os.Getenv(envName("index.repositories")))
	settings.Index.BaseDir = expandHomeDir(settings.Index.BaseDir)
	settings.Index.BlobKeyScheme = strings.ToLower(strings.TrimSpace(settings.Index.BlobKeyScheme))

	return &settings, nil
}

// envName returns the environment variable bound to a config key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// splitList handles lists given as a single comma-separated env var, then
// trims and drops empty entries.
func splitList(values []string, env string) []string {
	if env != "" && (len(values) == 0 || (len(values) == 1 && strings.Contains(values[0], ","))) {
		values = strings.Split(env, ",")
	}

	var result []string
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" {
			result = append(result, s)
		}
	}
	return result
}

// defaultBaseDir returns the default directory for the index and manifest
func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relic-gitindex"
	}
	return filepath.Join(home, ".relic-gitindex")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// ValidateSettings checks for conflicting configurations.
func ValidateSettings(s *Settings) error {
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	if err := validateAuthSettings(&s.Auth); err != nil {
		return err
	}
	if err := validateIndexSettings(&s.Index); err != nil {
		return err
	}
	return validateSearchSettings(&s.Search)
}

func validateAuthSettings(a *AuthSettings) error {
	hasBasicCreds := a.Basic.Username != "" || a.Basic.Password != ""
	hasAPIKeys := len(a.APIKeys) > 0

	switch a.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if a.Basic.Username == "" || a.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + a.Type)
	}
	return nil
}

func validateIndexSettings(i *IndexSettings) error {
	if i.BaseDir == "" {
		return errors.New("index-base-dir cannot be empty")
	}
	if i.SyncInterval <= 0 {
		return errors.New("index-sync-interval must be positive")
	}
	if i.SyncTimeout <= 0 {
		return errors.New("index-sync-timeout must be positive")
	}
	if i.MaxBlobSize <= 0 {
		return errors.New("index-max-blob-size must be positive")
	}
	if i.BatchSize <= 0 {
		return errors.New("index-batch-size must be positive")
	}
	if i.CacheSize <= 0 {
		return errors.New("index-cache-size must be positive")
	}

	switch i.BlobKeyScheme {
	case "", BlobKeySchemeRepository, BlobKeySchemeRevision:
	default:
		return fmt.Errorf("index-blob-key-scheme must be '%s' or '%s', got: %s",
			BlobKeySchemeRepository, BlobKeySchemeRevision, i.BlobKeyScheme)
	}

	seen := make(map[string]bool, len(i.Repositories))
	for _, r := range i.Repositories {
		id, path, explicit := strings.Cut(r, "=")
		if explicit && (strings.TrimSpace(id) == "" || strings.TrimSpace(path) == "") {
			return fmt.Errorf("index-repositories entry %q must be 'path' or 'id=path'", r)
		}
		if seen[r] {
			return fmt.Errorf("index-repositories entry %q is listed twice", r)
		}
		seen[r] = true
	}
	return nil
}

func validateSearchSettings(s *SearchSettings) error {
	if s.PerPage <= 0 {
		return errors.New("search-per-page must be positive")
	}
	if s.MaxPerPage < s.PerPage {
		return errors.New("search-max-per-page cannot be less than search-per-page")
	}
	return nil
}
