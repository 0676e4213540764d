package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Registry  RegistryConfig
	Dispatch  DispatchConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Spotify   SpotifyConfig
	LastFM    LastFMConfig
	ITunes    ITunesConfig
	Browser   BrowserConfig
	Retry     RetryConfig
	Pipeline  PipelineConfig
	Archive   ArchiveConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Registry backends
const (
	RegistryMemory = "memory"
	RegistryRedis  = "redis"
)

type RegistryConfig struct {
	Backend  string
	TTLHours int // redis only, 0 keeps jobs forever
}

// Dispatch modes
const (
	DispatchInline = "inline"
	DispatchAsynq  = "asynq"
)

type DispatchConfig struct {
	Mode        string
	Concurrency int
}

type AuthConfig struct {
	Enabled      bool
	JWTSecret    string
	OIDCIssuer   string
	OIDCAudience string
}

type RateLimitConfig struct {
	JobsPerHour int
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	APIURL       string
	TokenURL     string
}

type LastFMConfig struct {
	APIKey          string
	APISecret       string
	BaseURL         string
	CheckRatePerSec float64
	ListRatePerSec  float64
}

type ITunesConfig struct {
	BaseURL string
	Timeout int // seconds
}

type BrowserConfig struct {
	Headless    bool
	ExecPath    string
	LoginURL    string
	WaitTime    int // seconds per element wait
	UploadDelay int // seconds between albums
}

func (c BrowserConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTime) * time.Second
}

func (c BrowserConfig) UploadDelayDuration() time.Duration {
	return time.Duration(c.UploadDelay) * time.Second
}

type RetryConfig struct {
	MaxRetries int
	RetryDelay int // seconds
}

func (c RetryConfig) Delay() time.Duration {
	return time.Duration(c.RetryDelay) * time.Second
}

type PipelineConfig struct {
	ArtworkFolder     string
	DataDir           string
	ResolverCacheSize int
	RequireArtHint    bool
	MaxImageDimension int
	DownloadTimeout   int // seconds
}

type ArchiveConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Enabled reports whether worklists and images should be mirrored to object storage.
func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("SPOTIFY_CLIENT_SECRET")
	readSecret("LASTFM_API_KEY")
	readSecret("LASTFM_API_SECRET")
	readSecret("ARCHIVE_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	bindEnv(v)
	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("registry.backend", "REGISTRY_BACKEND")
	_ = v.BindEnv("registry.ttl_hours", "REGISTRY_TTL_HOURS")
	_ = v.BindEnv("dispatch.mode", "DISPATCH_MODE")
	_ = v.BindEnv("dispatch.concurrency", "DISPATCH_CONCURRENCY")
	_ = v.BindEnv("auth.enabled", "AUTH_ENABLED")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.oidc_issuer", "OIDC_ISSUER")
	_ = v.BindEnv("auth.oidc_audience", "OIDC_AUDIENCE")
	_ = v.BindEnv("ratelimit.jobs_per_hour", "RATELIMIT_JOBS_PER_HOUR")
	_ = v.BindEnv("spotify.client_id", "SPOTIFY_CLIENT_ID")
	_ = v.BindEnv("spotify.client_secret", "SPOTIFY_CLIENT_SECRET")
	_ = v.BindEnv("spotify.api_url", "SPOTIFY_API_URL")
	_ = v.BindEnv("spotify.token_url", "SPOTIFY_TOKEN_URL")
	_ = v.BindEnv("lastfm.api_key", "LASTFM_API_KEY")
	_ = v.BindEnv("lastfm.api_secret", "LASTFM_API_SECRET")
	_ = v.BindEnv("lastfm.base_url", "LASTFM_BASE_URL")
	_ = v.BindEnv("lastfm.check_rate_per_sec", "LASTFM_CHECK_RATE")
	_ = v.BindEnv("lastfm.list_rate_per_sec", "LASTFM_LIST_RATE")
	_ = v.BindEnv("itunes.base_url", "ITUNES_BASE_URL")
	_ = v.BindEnv("itunes.timeout", "ITUNES_TIMEOUT")
	_ = v.BindEnv("browser.headless", "BROWSER_HEADLESS")
	_ = v.BindEnv("browser.exec_path", "BROWSER_EXEC_PATH")
	_ = v.BindEnv("browser.login_url", "BROWSER_LOGIN_URL")
	_ = v.BindEnv("browser.wait_time", "WAIT_TIME")
	_ = v.BindEnv("browser.upload_delay", "UPLOAD_DELAY")
	_ = v.BindEnv("retry.max_retries", "MAX_RETRIES")
	_ = v.BindEnv("retry.retry_delay", "RETRY_DELAY")
	_ = v.BindEnv("pipeline.artwork_folder", "ARTWORK_FOLDER")
	_ = v.BindEnv("pipeline.data_dir", "DATA_DIR")
	_ = v.BindEnv("pipeline.resolver_cache_size", "RESOLVER_CACHE_SIZE")
	_ = v.BindEnv("pipeline.require_art_hint", "REQUIRE_ART_HINT")
	_ = v.BindEnv("pipeline.max_image_dimension", "MAX_IMAGE_DIMENSION")
	_ = v.BindEnv("pipeline.download_timeout", "DOWNLOAD_TIMEOUT")
	_ = v.BindEnv("archive.endpoint", "ARCHIVE_ENDPOINT")
	_ = v.BindEnv("archive.region", "ARCHIVE_REGION")
	_ = v.BindEnv("archive.bucket", "ARCHIVE_BUCKET")
	_ = v.BindEnv("archive.access_key_id", "ARCHIVE_ACCESS_KEY_ID")
	_ = v.BindEnv("archive.secret_access_key", "ARCHIVE_SECRET_ACCESS_KEY")
	_ = v.BindEnv("archive.prefix", "ARCHIVE_PREFIX")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("registry.backend", RegistryMemory)
	v.SetDefault("registry.ttl_hours", 0)
	v.SetDefault("dispatch.mode", DispatchInline)
	v.SetDefault("dispatch.concurrency", 2)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("ratelimit.jobs_per_hour", 20)

	// Provider defaults
	v.SetDefault("spotify.api_url", "https://api.spotify.com/v1/")
	v.SetDefault("spotify.token_url", "https://accounts.spotify.com/api/token")
	v.SetDefault("lastfm.base_url", "https://ws.audioscrobbler.com/2.0/")
	v.SetDefault("lastfm.check_rate_per_sec", 4)
	v.SetDefault("lastfm.list_rate_per_sec", 2)
	v.SetDefault("itunes.base_url", "https://itunes.apple.com")
	v.SetDefault("itunes.timeout", 10)

	// Browser defaults
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.login_url", "https://www.last.fm/login")
	v.SetDefault("browser.wait_time", 10)
	v.SetDefault("browser.upload_delay", 8)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.retry_delay", 5)

	v.SetDefault("pipeline.artwork_folder", "artworkup")
	v.SetDefault("pipeline.data_dir", defaultDataDir())
	v.SetDefault("pipeline.resolver_cache_size", 128)
	v.SetDefault("pipeline.require_art_hint", false)
	v.SetDefault("pipeline.max_image_dimension", 0)
	v.SetDefault("pipeline.download_timeout", 10)

	v.SetDefault("archive.region", "auto")
	v.SetDefault("archive.prefix", "artworkup")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".artworkup"
	}
	return home + string(os.PathSeparator) + ".artworkup"
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Registry: RegistryConfig{
			Backend:  strings.ToLower(v.GetString("registry.backend")),
			TTLHours: v.GetInt("registry.ttl_hours"),
		},
		Dispatch: DispatchConfig{
			Mode:        strings.ToLower(v.GetString("dispatch.mode")),
			Concurrency: v.GetInt("dispatch.concurrency"),
		},
		Auth: AuthConfig{
			Enabled:      v.GetBool("auth.enabled"),
			JWTSecret:    v.GetString("auth.jwt_secret"),
			OIDCIssuer:   v.GetString("auth.oidc_issuer"),
			OIDCAudience: v.GetString("auth.oidc_audience"),
		},
		RateLimit: RateLimitConfig{
			JobsPerHour: v.GetInt("ratelimit.jobs_per_hour"),
		},
		Spotify: SpotifyConfig{
			ClientID:     v.GetString("spotify.client_id"),
			ClientSecret: v.GetString("spotify.client_secret"),
			APIURL:       v.GetString("spotify.api_url"),
			TokenURL:     v.GetString("spotify.token_url"),
		},
		LastFM: LastFMConfig{
			APIKey:          v.GetString("lastfm.api_key"),
			APISecret:       v.GetString("lastfm.api_secret"),
			BaseURL:         v.GetString("lastfm.base_url"),
			CheckRatePerSec: v.GetFloat64("lastfm.check_rate_per_sec"),
			ListRatePerSec:  v.GetFloat64("lastfm.list_rate_per_sec"),
		},
		ITunes: ITunesConfig{
			BaseURL: v.GetString("itunes.base_url"),
			Timeout: v.GetInt("itunes.timeout"),
		},
		Browser: BrowserConfig{
			Headless:    v.GetBool("browser.headless"),
			ExecPath:    v.GetString("browser.exec_path"),
			LoginURL:    v.GetString("browser.login_url"),
			WaitTime:    v.GetInt("browser.wait_time"),
			UploadDelay: v.GetInt("browser.upload_delay"),
		},
		Retry: RetryConfig{
			MaxRetries: v.GetInt("retry.max_retries"),
			RetryDelay: v.GetInt("retry.retry_delay"),
		},
		Pipeline: PipelineConfig{
			ArtworkFolder:     v.GetString("pipeline.artwork_folder"),
			DataDir:           v.GetString("pipeline.data_dir"),
			ResolverCacheSize: v.GetInt("pipeline.resolver_cache_size"),
			RequireArtHint:    v.GetBool("pipeline.require_art_hint"),
			MaxImageDimension: v.GetInt("pipeline.max_image_dimension"),
			DownloadTimeout:   v.GetInt("pipeline.download_timeout"),
		},
		Archive: ArchiveConfig{
			Endpoint:        v.GetString("archive.endpoint"),
			Region:          v.GetString("archive.region"),
			Bucket:          v.GetString("archive.bucket"),
			AccessKeyID:     v.GetString("archive.access_key_id"),
			SecretAccessKey: v.GetString("archive.secret_access_key"),
			Prefix:          v.GetString("archive.prefix"),
		},
	}
}

// Validate rejects combinations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Registry.Backend {
	case RegistryMemory, RegistryRedis:
	default:
		return fmt.Errorf("unknown registry backend %q", c.Registry.Backend)
	}
	switch c.Dispatch.Mode {
	case DispatchInline:
	case DispatchAsynq:
		// The worker process must see the jobs the API created.
		if c.Registry.Backend != RegistryRedis {
			return fmt.Errorf("dispatch mode %q requires the redis registry", c.Dispatch.Mode)
		}
	default:
		return fmt.Errorf("unknown dispatch mode %q", c.Dispatch.Mode)
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be at least 1, got %d", c.Retry.MaxRetries)
	}
	if c.Pipeline.ResolverCacheSize < 1 {
		return fmt.Errorf("pipeline.resolver_cache_size must be positive, got %d", c.Pipeline.ResolverCacheSize)
	}
	if c.LastFM.CheckRatePerSec <= 0 || c.LastFM.ListRatePerSec <= 0 {
		return fmt.Errorf("lastfm rate limits must be positive")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" && c.Auth.OIDCIssuer == "" {
		return fmt.Errorf("auth is enabled but neither jwt_secret nor oidc_issuer is set")
	}
	return nil
}
