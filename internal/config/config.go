package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	LLM        LLMConfig
	ThorData   ThorDataConfig
	SERanking  SERankingConfig
	Firecrawl  FirecrawlConfig
	DataForSEO DataForSEOConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cache      CacheConfig
	MainApp    MainAppConfig
	Auth       AuthConfig
	Log        LogConfig

	src sources
}

type ServerConfig struct {
	Port        int
	CORSOrigins string
}

type LLMConfig struct {
	DefaultProvider string
	Model           string
	APIKey          string
	ProxyURL        string
	TuziAPIKey      string
	TuziProxyURL    string
}

type ThorDataConfig struct {
	APIToken string
	APIURL   string
}

type SERankingConfig struct {
	APIKey string
	APIURL string
}

type FirecrawlConfig struct {
	APIKey string
	APIURL string
}

type DataForSEOConfig struct {
	Login    string
	Password string
	APIURL   string
}

type DatabaseConfig struct {
	URL         string
	PoolMax     int
	PoolMin     int
	AutoMigrate bool
}

type RedisConfig struct {
	URL     string
	SERPTTL time.Duration
}

type CacheConfig struct {
	TTLHours        int
	RefreshInterval time.Duration // 0 disables background refresh
}

type MainAppConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        3001,
			CORSOrigins: "*",
		},
		LLM: LLMConfig{
			DefaultProvider: "302",
			Model:           "gemini-2.5-flash",
		},
		ThorData: ThorDataConfig{
			APIURL: "https://scraperapi.thordata.com/request",
		},
		SERanking: SERankingConfig{
			APIURL: "https://api.seranking.com",
		},
		Firecrawl: FirecrawlConfig{
			APIURL: "https://api.firecrawl.dev",
		},
		DataForSEO: DataForSEOConfig{
			APIURL: "https://api.dataforseo.com",
		},
		Database: DatabaseConfig{
			PoolMax:     10,
			PoolMin:     1,
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			SERPTTL: 24 * time.Hour,
		},
		Cache: CacheConfig{
			TTLHours: 24,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend
// ($XDG_CONFIG_HOME/seoagent/config.json) and environment variables.
// Environment variables override file values; secrets are read from the
// environment only.
func Load() (Config, error) {
	return loadWith(openFileStore(configFilePath()))
}

func loadWith(f *fileStore) (Config, error) {
	cfg := defaults()
	cfg.src = layer(&cfg, f)
	return cfg, nil
}

// RequireLLM reports a missing key for the default LLM provider.
func (c Config) RequireLLM() error {
	switch c.LLM.DefaultProvider {
	case "tuzi":
		if c.LLM.TuziAPIKey == "" {
			return errors.New("missing required config: tuzi API key. Set it via environment variable TUZI_API_KEY")
		}
	default:
		if c.LLM.APIKey == "" {
			return errors.New("missing required config: Gemini proxy API key. Set it via environment variable GEMINI_API_KEY")
		}
	}
	return nil
}

// RequireDatabase reports a missing Postgres connection string.
func (c Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return errors.New("missing required config: database URL. Set it via environment variable POSTGRES_URL or DATABASE_URL")
	}
	if c.Database.PoolMin > c.Database.PoolMax {
		return fmt.Errorf("invalid config: DB_POOL_MIN (%d) exceeds DB_POOL_MAX (%d)", c.Database.PoolMin, c.Database.PoolMax)
	}
	return nil
}

// CacheTTL returns the cache row lifetime.
func (c Config) CacheTTL() time.Duration {
	if c.Cache.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// AllowedOrigins splits the comma-separated CORS origin list.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
