package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr    string
	TLSCertFile string
	TLSKeyFile  string

	JWTSecret   string
	JWTUser     string
	JWTPassword string

	SearchTimeout   time.Duration
	ProviderTimeout time.Duration
	MaxProviders    int
	DefaultStrategy string

	HealthDegradedAfter    int
	HealthUnavailableAfter int
	StatusPushInterval     time.Duration

	CacheDriver      string
	CacheTTL         time.Duration
	CalendarCacheTTL time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	LogLevel  string
	LogFormat string

	AmadeusURL          string
	AmadeusClientID     string
	AmadeusClientSecret string

	SkyscannerURL         string
	SkyscannerRapidAPIKey string

	KiwiURL    string
	KiwiAPIKey string

	DuffelHost  string
	DuffelToken string
}

// Load reads defaults, then the optional config file, then the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("auth_user", "demo")
	v.SetDefault("auth_pass", "demo123")
	v.SetDefault("search_timeout", "10s")
	v.SetDefault("provider_timeout", "30s")
	v.SetDefault("max_providers", 3)
	v.SetDefault("default_strategy", "fallback")
	v.SetDefault("health_degraded_after", 3)
	v.SetDefault("health_unavailable_after", 10)
	v.SetDefault("status_push_interval", "30s")
	v.SetDefault("cache_driver", "memory")
	v.SetDefault("cache_ttl", "5m")
	v.SetDefault("calendar_cache_ttl", "1h")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("amadeus_url", "https://test.api.amadeus.com")
	v.SetDefault("skyscanner_url", "https://skyscanner-skyscanner-flight-search-v1.p.rapidapi.com/apiservices")
	v.SetDefault("kiwi_url", "https://api.tequila.kiwi.com/v2")
	v.SetDefault("duffel_host", "https://api.duffel.com")

	explicit := os.Getenv("FLIGHTS_CONFIG")
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/flights")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Info("no config file found, using defaults and env vars")
	}

	v.AutomaticEnv()

	durations := map[string]*time.Duration{}
	cfg := &Config{
		HTTPAddr:    v.GetString("http_addr"),
		TLSCertFile: v.GetString("tls_cert_file"),
		TLSKeyFile:  v.GetString("tls_key_file"),

		JWTSecret:   v.GetString("jwt_secret"),
		JWTUser:     v.GetString("auth_user"),
		JWTPassword: v.GetString("auth_pass"),

		MaxProviders:    v.GetInt("max_providers"),
		DefaultStrategy: v.GetString("default_strategy"),

		HealthDegradedAfter:    v.GetInt("health_degraded_after"),
		HealthUnavailableAfter: v.GetInt("health_unavailable_after"),

		CacheDriver:   v.GetString("cache_driver"),
		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),

		AmadeusURL:          v.GetString("amadeus_url"),
		AmadeusClientID:     v.GetString("amadeus_clientid"),
		AmadeusClientSecret: v.GetString("amadeus_clientsecret"),

		SkyscannerURL:         v.GetString("skyscanner_url"),
		SkyscannerRapidAPIKey: v.GetString("skyscanner_rapidapikey"),

		KiwiURL:    v.GetString("kiwi_url"),
		KiwiAPIKey: v.GetString("kiwi_apikey"),

		DuffelHost:  v.GetString("duffel_host"),
		DuffelToken: v.GetString("duffel_token"),
	}
	durations["search_timeout"] = &cfg.SearchTimeout
	durations["provider_timeout"] = &cfg.ProviderTimeout
	durations["status_push_interval"] = &cfg.StatusPushInterval
	durations["cache_ttl"] = &cfg.CacheTTL
	durations["calendar_cache_ttl"] = &cfg.CalendarCacheTTL

	for key, dst := range durations {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("bad %s: %w", key, err)
		}
		*dst = d
	}

	return cfg, nil
}
