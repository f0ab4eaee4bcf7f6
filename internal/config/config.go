package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Upstreams UpstreamsConfig `mapstructure:"upstreams"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Security  SecurityConfig  `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	Password   string        `mapstructure:"password"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type PostgresConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		AnalyticsEvents string `mapstructure:"analytics_events"`
	} `mapstructure:"topics"`
}

// OAuthConfig holds the single static client registration plus the signing
// key material for the GPT Actions authorization server.
type OAuthConfig struct {
	Issuer          string              `mapstructure:"issuer"`
	Audience        string              `mapstructure:"audience"`
	ClientID        string              `mapstructure:"client_id"`
	ClientSecret    string              `mapstructure:"client_secret"`
	RedirectURI     string              `mapstructure:"redirect_uri"`
	Scopes          []string            `mapstructure:"scopes"`
	JWTPrivateKey   string              `mapstructure:"jwt_private_key"` // PEM
	JWTPublicKey    string              `mapstructure:"jwt_public_key"`  // PEM
	JWTKid          string              `mapstructure:"jwt_kid"`
	JWTAlgorithm    string              `mapstructure:"jwt_algorithm"`
	AccessTokenTTL  time.Duration       `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration       `mapstructure:"refresh_token_ttl"`
	AuthCodeTTL     time.Duration       `mapstructure:"auth_code_ttl"`
	ClockSkew       time.Duration       `mapstructure:"clock_skew"`
	CodeLength      int                 `mapstructure:"code_length"`
	ResourceOwner   ResourceOwnerConfig `mapstructure:"resource_owner"`
}

// ResourceOwnerConfig identifies the single user this gateway authorizes.
// A multi-tenant user store is out of scope; the subject claims come from
// configuration.
type ResourceOwnerConfig struct {
	Subject       string `mapstructure:"subject"`
	Email         string `mapstructure:"email"`
	Name          string `mapstructure:"name"`
	EmailVerified bool   `mapstructure:"email_verified"`
}

type AuthConfig struct {
	GPTActionsAPIKey string `mapstructure:"gpt_actions_api_key"`
}

type RateLimitConfig struct {
	FailClosed bool                       `mapstructure:"fail_closed"`
	Policies   map[string]RateLimitPolicy `mapstructure:"policies"`
}

// RateLimitPolicy is a fixed-window point budget. BlockDuration defaults
// to the window when unset.
type RateLimitPolicy struct {
	Points        int           `mapstructure:"points"`
	Duration      time.Duration `mapstructure:"duration"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

type CacheConfig struct {
	KeyPrefix  string        `mapstructure:"key_prefix"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

type UpstreamsConfig struct {
	DataForSEO DataForSEOConfig `mapstructure:"dataforseo"`
	PageSpeed  PageSpeedConfig  `mapstructure:"pagespeed"`
	Meta       MetaConfig       `mapstructure:"meta"`
}

type DataForSEOConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Login    string        `mapstructure:"login"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PageSpeedConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MetaConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type AnalyticsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	IPSalt        string        `mapstructure:"ip_salt"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the configuration once at startup so request handlers
// never have to re-validate options per call.
func (c *Config) Validate() error {
	if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
		return fmt.Errorf("oauth.client_id and oauth.client_secret are required")
	}
	if c.OAuth.RedirectURI == "" {
		return fmt.Errorf("oauth.redirect_uri is required")
	}
	if c.OAuth.Issuer == "" || c.OAuth.Audience == "" {
		return fmt.Errorf("oauth.issuer and oauth.audience are required")
	}
	if c.OAuth.JWTPrivateKey == "" || c.OAuth.JWTPublicKey == "" {
		return fmt.Errorf("oauth.jwt_private_key and oauth.jwt_public_key are required")
	}
	switch c.OAuth.JWTAlgorithm {
	case "RS256", "RS384", "RS512":
	default:
		return fmt.Errorf("oauth.jwt_algorithm must be one of RS256, RS384, RS512, got %q", c.OAuth.JWTAlgorithm)
	}
	if len(c.OAuth.Scopes) == 0 {
		return fmt.Errorf("oauth.scopes must not be empty")
	}
	if c.OAuth.AccessTokenTTL <= 0 {
		return fmt.Errorf("oauth.access_token_ttl must be positive")
	}
	if c.OAuth.RefreshTokenTTL <= c.OAuth.AccessTokenTTL {
		return fmt.Errorf("oauth.refresh_token_ttl must exceed oauth.access_token_ttl")
	}
	if c.Auth.GPTActionsAPIKey == "" {
		return fmt.Errorf("auth.gpt_actions_api_key is required")
	}
	for name, policy := range c.RateLimit.Policies {
		if policy.Points <= 0 || policy.Duration <= 0 {
			return fmt.Errorf("rate_limit.policies.%s: points and duration must be positive", name)
		}
	}
	return nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Redis defaults
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Postgres defaults (analytics sink is optional)
	viper.SetDefault("postgres.max_connections", 10)
	viper.SetDefault("postgres.connect_timeout", "10s")

	// Kafka defaults
	viper.SetDefault("kafka.topics.analytics_events", "gateway-analytics-events")

	// OAuth defaults
	viper.SetDefault("oauth.scopes", []string{"openid", "email", "profile"})
	viper.SetDefault("oauth.jwt_algorithm", "RS256")
	viper.SetDefault("oauth.access_token_ttl", "1h")
	viper.SetDefault("oauth.refresh_token_ttl", "24h")
	viper.SetDefault("oauth.auth_code_ttl", "5m")
	viper.SetDefault("oauth.clock_skew", "60s")
	viper.SetDefault("oauth.code_length", 32)
	viper.SetDefault("oauth.resource_owner.subject", "gateway-owner")
	viper.SetDefault("oauth.resource_owner.email_verified", true)

	// Rate limit defaults: fixed-window point budgets per policy
	viper.SetDefault("rate_limit.fail_closed", false)
	viper.SetDefault("rate_limit.policies.api_key.points", 1000)
	viper.SetDefault("rate_limit.policies.api_key.duration", "60s")
	viper.SetDefault("rate_limit.policies.api_key.block_duration", "60s")
	viper.SetDefault("rate_limit.policies.ip.points", 100)
	viper.SetDefault("rate_limit.policies.ip.duration", "60s")
	viper.SetDefault("rate_limit.policies.ip.block_duration", "60s")
	viper.SetDefault("rate_limit.policies.user.points", 500)
	viper.SetDefault("rate_limit.policies.user.duration", "1h")
	viper.SetDefault("rate_limit.policies.user.block_duration", "1h")

	// Cache defaults
	viper.SetDefault("cache.key_prefix", "gateway")
	viper.SetDefault("cache.default_ttl", "1h")

	// Upstream defaults
	viper.SetDefault("upstreams.dataforseo.base_url", "https://api.dataforseo.com")
	viper.SetDefault("upstreams.dataforseo.timeout", "30s")
	viper.SetDefault("upstreams.pagespeed.base_url", "https://www.googleapis.com/pagespeedonline/v5")
	viper.SetDefault("upstreams.pagespeed.timeout", "30s")
	viper.SetDefault("upstreams.meta.base_url", "https://graph.facebook.com/v19.0")
	viper.SetDefault("upstreams.meta.timeout", "30s")

	// Analytics defaults
	viper.SetDefault("analytics.enabled", true)
	viper.SetDefault("analytics.buffer_size", 1000)
	viper.SetDefault("analytics.flush_interval", "30s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
