package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvDevelopment disables Secure cookies so the service can run over plain http locally.
const EnvDevelopment = "development"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	App         AppConfig         `toml:"app"`
	Server      ServerConfig      `toml:"server"`
	Credentials CredentialsConfig `toml:"credentials"`
	Auth        AuthConfig        `toml:"auth"`
	Library     LibraryConfig     `toml:"library"`
	Store       StoreConfig       `toml:"store"`
	Log         LogConfig         `toml:"log"`
	CORS        CORSConfig        `toml:"cors"`
}

// AppConfig holds deployment-wide settings.
type AppConfig struct {
	Name string `toml:"name"`
	Env  string `toml:"env"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `toml:"host"`
	Port            int           `toml:"port"`
	BasePath        string        `toml:"base_path"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// Addr returns the listen address for [net/http].
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and endpoints.
type SpotifyConfig struct {
	ClientID          string        `toml:"client_id"`
	ClientSecret      string        `toml:"client_secret"`
	RedirectURI       string        `toml:"redirect_uri"`
	Scopes            []string      `toml:"scopes"`
	AuthURL           string        `toml:"auth_url"`
	TokenURL          string        `toml:"token_url"`
	APIBaseURL        string        `toml:"api_base_url"`
	Timeout           time.Duration `toml:"timeout"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Burst             int           `toml:"burst"`
}

// AuthConfig controls the login flow and session lifetime.
type AuthConfig struct {
	DefaultFinalRedirectURI  string        `toml:"default_final_redirect_uri"`
	AllowedFinalRedirectURIs []string      `toml:"allowed_final_redirect_uris"`
	SessionTTL               time.Duration `toml:"session_ttl"`
	StateTTL                 time.Duration `toml:"state_ttl"`
	RefreshBuffer            time.Duration `toml:"refresh_buffer"`
	CookieSecret             string        `toml:"cookie_secret"`
}

// LibraryConfig tunes the saved-items aggregation and derived statistics.
type LibraryConfig struct {
	PageSize      int           `toml:"page_size"`
	MaxItems      int           `toml:"max_items"`
	Concurrency   int           `toml:"concurrency"`
	SavedItemsTTL time.Duration `toml:"saved_items_ttl"`
	StatsTTL      time.Duration `toml:"stats_ttl"`
	TopArtists    int           `toml:"top_artists"`
	TopAlbums     int           `toml:"top_albums"`
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	Type      string        `toml:"type"` // memory, redis, leveldb or sqlite
	Namespace string        `toml:"namespace"`
	Memory    MemoryConfig  `toml:"memory"`
	Redis     RedisConfig   `toml:"redis"`
	LevelDB   LevelDBConfig `toml:"leveldb"`
	SQLite    SQLiteConfig  `toml:"sqlite"`
}

type MemoryConfig struct {
	CleanupInterval time.Duration `toml:"cleanup_interval"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

type LevelDBConfig struct {
	Path            string        `toml:"path"`
	CleanupInterval time.Duration `toml:"cleanup_interval"`
}

type SQLiteConfig struct {
	Path            string        `toml:"path"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	CleanupInterval time.Duration `toml:"cleanup_interval"`
}

// LogConfig controls the level, format, and optional rotated file output of the logger.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // text, json or logfmt
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// CORSConfig lists the browser origins allowed to call the API with credentials.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.App.Env, EnvDevelopment)
}

// Validate checks that the configuration can start the service.
func (c *Config) Validate() error {
	var errs []error

	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("%w: spotify client_id and client_secret are required", ErrMissingCredentials))
	}
	if c.Credentials.Spotify.RedirectURI == "" {
		errs = append(errs, fmt.Errorf("%w: spotify redirect_uri is required", ErrInvalidConfig))
	}
	if c.Auth.DefaultFinalRedirectURI == "" {
		errs = append(errs, fmt.Errorf("%w: auth.default_final_redirect_uri is required", ErrInvalidConfig))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("%w: auth.session_ttl must be positive", ErrInvalidConfig))
	}
	if c.Library.PageSize < 1 || c.Library.PageSize > 50 {
		errs = append(errs, fmt.Errorf("%w: library.page_size must be between 1 and 50", ErrInvalidConfig))
	}
	if c.Library.MaxItems < 1 {
		errs = append(errs, fmt.Errorf("%w: library.max_items must be positive", ErrInvalidConfig))
	}
	if c.Library.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("%w: library.concurrency must be positive", ErrInvalidConfig))
	}

	switch c.Store.Type {
	case "", "memory", "redis", "leveldb", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown store type %q", ErrInvalidConfig, c.Store.Type))
	}

	return errors.Join(errs...)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnvFiles loads .env style files into the process environment.
// Files that do not exist are skipped.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides configuration values from environment variables.
//
// lookup is usually [os.LookupEnv].
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v))
				return
			}
			*dst = n
		}
	}
	seconds := func(key string, dst *time.Duration) {
		n := -1
		num(key, &n)
		if n > 0 {
			*dst = time.Duration(n) * time.Second
		}
	}

	str("API_ENV", &c.App.Env)
	str("SPOTIFY_CLIENT_ID", &c.Credentials.Spotify.ClientID)
	str("SPOTIFY_CLIENT_SECRET", &c.Credentials.Spotify.ClientSecret)
	str("REDIRECT_URI", &c.Credentials.Spotify.RedirectURI)
	if v, ok := lookup("SPOTIFY_SCOPE"); ok && v != "" {
		c.Credentials.Spotify.Scopes = strings.Fields(v)
	}
	str("FRONTEND_URI", &c.Auth.DefaultFinalRedirectURI)
	str("DEFAULT_FINAL_REDIRECT_URI", &c.Auth.DefaultFinalRedirectURI)
	list("ALLOWED_FINAL_REDIRECT_URIS", &c.Auth.AllowedFinalRedirectURIs)
	list("CORS_ALLOWED_ORIGINS", &c.CORS.AllowedOrigins)
	str("COOKIE_SECRET", &c.Auth.CookieSecret)
	seconds("SESSION_TIMEOUT", &c.Auth.SessionTTL)
	seconds("SAVED_TRACKS_CACHE_TTL", &c.Library.SavedItemsTTL)
	num("SAVED_TRACKS_LIMIT", &c.Library.MaxItems)
	num("PORT", &c.Server.Port)
	str("LOG_LEVEL", &c.Log.Level)

	if host, ok := lookup("REDIS_HOST"); ok && host != "" {
		port := "6379"
		if p, ok := lookup("REDIS_PORT"); ok && p != "" {
			port = p
		}
		c.Store.Type = "redis"
		c.Store.Redis.Addr = net.JoinHostPort(host, port)
	}
	str("REDIS_PASSWORD", &c.Store.Redis.Password)
	num("REDIS_DB", &c.Store.Redis.DB)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
