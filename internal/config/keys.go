package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

func (t keyType) String() string {
	switch t {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	case kDuration:
		return "duration"
	}
	return "string"
}

// keySpec binds one config key to its Config field. Secret keys are read
// from the environment only.
type keySpec struct {
	key         string
	typ         keyType
	env         string
	fallbackEnv string
	secret      bool
	apply       func(cfg *Config, v any)
	extract     func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SEOAGENT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.cors_origins", typ: kString, env: "CORS_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.CORSOrigins },
	},
	{
		key: "llm.default_provider", typ: kString, env: "LLM_DEFAULT_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.DefaultProvider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.DefaultProvider },
	},
	{
		key: "llm.model", typ: kString, env: "GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.api_key", typ: kString, env: "GEMINI_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.proxy_url", typ: kString, env: "GEMINI_PROXY_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.ProxyURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.ProxyURL },
	},
	{
		key: "llm.tuzi_api_key", typ: kString, env: "TUZI_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.LLM.TuziAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.TuziAPIKey },
	},
	{
		key: "llm.tuzi_proxy_url", typ: kString, env: "TUZI_PROXY_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.TuziProxyURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.TuziProxyURL },
	},
	{
		key: "thordata.api_token", typ: kString, env: "THORDATA_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.ThorData.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.ThorData.APIToken },
	},
	{
		key: "thordata.api_url", typ: kString, env: "THORDATA_API_URL",
		apply:   func(cfg *Config, v any) { cfg.ThorData.APIURL = v.(string) },
		extract: func(cfg Config) any { return cfg.ThorData.APIURL },
	},
	{
		key: "seranking.api_key", typ: kString, env: "SERANKING_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.SERanking.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.SERanking.APIKey },
	},
	{
		key: "seranking.api_url", typ: kString, env: "SERANKING_API_URL",
		apply:   func(cfg *Config, v any) { cfg.SERanking.APIURL = v.(string) },
		extract: func(cfg Config) any { return cfg.SERanking.APIURL },
	},
	{
		key: "firecrawl.api_key", typ: kString, env: "FIRECRAWL_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Firecrawl.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Firecrawl.APIKey },
	},
	{
		key: "firecrawl.api_url", typ: kString, env: "FIRECRAWL_API_URL",
		apply:   func(cfg *Config, v any) { cfg.Firecrawl.APIURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Firecrawl.APIURL },
	},
	{
		key: "dataforseo.login", typ: kString, env: "DATAFORSEO_LOGIN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.DataForSEO.Login = v.(string) },
		extract: func(cfg Config) any { return cfg.DataForSEO.Login },
	},
	{
		key: "dataforseo.password", typ: kString, env: "DATAFORSEO_PASSWORD",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.DataForSEO.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.DataForSEO.Password },
	},
	{
		key: "dataforseo.api_url", typ: kString, env: "DATAFORSEO_API_URL",
		apply:   func(cfg *Config, v any) { cfg.DataForSEO.APIURL = v.(string) },
		extract: func(cfg Config) any { return cfg.DataForSEO.APIURL },
	},
	{
		key: "database.url", typ: kString, env: "POSTGRES_URL",
		fallbackEnv: "DATABASE_URL",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Database.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Database.URL },
	},
	{
		key: "database.pool_max", typ: kInt, env: "DB_POOL_MAX",
		apply:   func(cfg *Config, v any) { cfg.Database.PoolMax = v.(int) },
		extract: func(cfg Config) any { return cfg.Database.PoolMax },
	},
	{
		key: "database.pool_min", typ: kInt, env: "DB_POOL_MIN",
		apply:   func(cfg *Config, v any) { cfg.Database.PoolMin = v.(int) },
		extract: func(cfg Config) any { return cfg.Database.PoolMin },
	},
	{
		key: "database.auto_migrate", typ: kBool, env: "DB_AUTO_MIGRATE",
		apply:   func(cfg *Config, v any) { cfg.Database.AutoMigrate = v.(bool) },
		extract: func(cfg Config) any { return cfg.Database.AutoMigrate },
	},
	{
		key: "redis.url", typ: kString, env: "REDIS_URL",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Redis.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.URL },
	},
	{
		key: "redis.serp_ttl", typ: kDuration, env: "REDIS_SERP_TTL",
		apply:   func(cfg *Config, v any) { cfg.Redis.SERPTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Redis.SERPTTL },
	},
	{
		key: "cache.ttl_hours", typ: kInt, env: "CACHE_TTL_HOURS",
		apply:   func(cfg *Config, v any) { cfg.Cache.TTLHours = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.TTLHours },
	},
	{
		key: "cache.refresh_interval", typ: kDuration, env: "CACHE_REFRESH_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Cache.RefreshInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.RefreshInterval },
	},
	{
		key: "main_app.url", typ: kString, env: "MAIN_APP_URL",
		apply:   func(cfg *Config, v any) { cfg.MainApp.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.MainApp.URL },
	},
	{
		key: "auth.jwt_secret", typ: kString, env: "JWT_SECRET",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Auth.JWTSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.JWTSecret },
	},
	{
		key: "log.level", typ: kString, env: "LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// parse converts a raw file or env value into the Go type apply expects.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s for %s: %w", s.typ, s.key, err)
		}
		return i, nil
	case kBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s for %s: %w", s.typ, s.key, err)
		}
		return b, nil
	case kDuration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s for %s: %w", s.typ, s.key, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid %s for %s: must not be negative", s.typ, s.key)
		}
		return d, nil
	}
	return raw, nil
}

// envValue returns the raw environment value for s, honouring its fallback.
func (s keySpec) envValue() string {
	raw := os.Getenv(s.env)
	if raw == "" && s.fallbackEnv != "" {
		raw = os.Getenv(s.fallbackEnv)
	}
	return raw
}

func findSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// sources records where each key's effective value came from.
type sources map[string]string

const (
	sourceDefault = "default"
	sourceFile    = "file"
	sourceEnv     = "env"
)

// layer applies file values and then environment overrides on top of cfg.
// Unparseable values are reported on stderr and leave the previous value.
func layer(cfg *Config, f *fileStore) sources {
	src := make(sources, len(specs))
	for _, s := range specs {
		src[s.key] = sourceDefault
		if !s.secret {
			if raw, ok := f.lookup(s.key); ok {
				if v, err := s.parse(raw); err == nil {
					s.apply(cfg, v)
					src[s.key] = sourceFile
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] %s: %v. Using default value.\n", f.path, err)
				}
			}
		}
		if raw := s.envValue(); raw != "" {
			if v, err := s.parse(raw); err == nil {
				s.apply(cfg, v)
				src[s.key] = sourceEnv
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] env %s: %v. Keeping %s value.\n", s.env, err, src[s.key])
			}
		}
	}
	return src
}
