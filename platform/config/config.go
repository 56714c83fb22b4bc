// Package config monta a configuração do gateway a partir de um arquivo YAML opcional
// (CONFIG_FILE) e de variáveis de ambiente, que sempre têm precedência.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultAPIBaseURL é a API pública usada quando nada é configurado.
const DefaultAPIBaseURL = "https://www.notion.so/api/v3"

type Config struct {
	ListenAddr string `yaml:"listen_addr" validate:"required"`

	APIBaseURL       string        `yaml:"api_base_url" validate:"required,url"`
	UseCustomAPI     bool          `yaml:"use_custom_api"`
	CustomAPIBaseURL string        `yaml:"custom_api_base_url" validate:"omitempty,url"`
	NotionTokenV2    string        `yaml:"notion_token_v2"`
	NotionActiveUser string        `yaml:"notion_active_user"`
	APIKey           string        `yaml:"api_key"`
	UpstreamTimeout  time.Duration `yaml:"upstream_timeout" validate:"gt=0"`

	// TenantID fixo desliga toda resolução por request (deploy single-tenant).
	TenantID            string        `yaml:"tenant_id"`
	// TrustTenantOverride aceita _tenant/_theme na query; só atrás de uma borda confiável.
	TrustTenantOverride bool          `yaml:"trust_tenant_override"`
	MappingAPIURL       string        `yaml:"mapping_api_url" validate:"omitempty,url"`
	MappingTTL          time.Duration `yaml:"mapping_ttl" validate:"gt=0"`
	DefaultPageID       string        `yaml:"default_page_id"`

	// BulkMode liga o dispatcher entre processos (build/export estático).
	BulkMode            bool          `yaml:"bulk_mode"`
	MinDispatchInterval time.Duration `yaml:"min_dispatch_interval" validate:"gte=0"`
	TokenStore          string        `yaml:"token_store" validate:"oneof=file redis sqlite memory"`
	TokenPath           string        `yaml:"token_path" validate:"required"`
	TokenStaleAfter     time.Duration `yaml:"token_stale_after" validate:"gt=0"`
	TokenAcquireTimeout time.Duration `yaml:"token_acquire_timeout" validate:"gt=0"`

	RedisAddr     string `yaml:"redis_addr" validate:"required_if=TokenStore redis"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"gte=0"`

	RateEnabled         bool          `yaml:"rate_enabled"`
	RateRPS             float64       `yaml:"rate_rps" validate:"gt=0"`
	RateBurst           int           `yaml:"rate_burst" validate:"gt=0"`
	RetryAfter          time.Duration `yaml:"retry_after"`
	TrustXFF            bool          `yaml:"trust_xff"`
	AddRateLimitHeaders bool          `yaml:"add_ratelimit_headers"`
	ConcurrencyMax      int           `yaml:"concurrency_max" validate:"gte=0"`
	ConcurrencyTimeout  time.Duration `yaml:"concurrency_timeout"`

	StatsRedisEnabled bool          `yaml:"stats_redis_enabled"`
	StatsPrefix       string        `yaml:"stats_prefix"`
	StatsTTL          time.Duration `yaml:"stats_ttl"`
	StatsBucket       string        `yaml:"stats_bucket" validate:"oneof=minute none"`
	StatsTrackTenants bool          `yaml:"stats_track_tenants"`
	MetricsEnabled    bool          `yaml:"metrics_enabled"`
}

// Defaults devolve a configuração base antes de arquivo e ambiente.
func Defaults() Config {
	return Config{
		ListenAddr:          ":8080",
		APIBaseURL:          DefaultAPIBaseURL,
		UpstreamTimeout:     15 * time.Second,
		MappingTTL:          60 * time.Second,
		MinDispatchInterval: 200 * time.Millisecond,
		TokenStore:          "file",
		TokenPath:           ".notion-api-lock",
		TokenStaleAfter:     10 * time.Second,
		TokenAcquireTimeout: 2 * time.Second,
		RateEnabled:         true,
		RateRPS:             10,
		RateBurst:           20,
		RetryAfter:          1 * time.Second,
		ConcurrencyMax:      100,
		StatsPrefix:         "gateway:stats",
		StatsTTL:            24 * time.Hour,
		StatsBucket:         "minute",
		MetricsEnabled:      true,
	}
}

// Load lê CONFIG_FILE (se definido), aplica o ambiente e valida.
func Load() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.APIBaseURL = getenvDefault("API_BASE_URL", cfg.APIBaseURL)
	cfg.UseCustomAPI = getenvBoolDefault("USE_CUSTOM_API", cfg.UseCustomAPI)
	cfg.CustomAPIBaseURL = getenvDefault("CUSTOM_API_BASE_URL", cfg.CustomAPIBaseURL)
	cfg.NotionTokenV2 = getenvDefault("NOTION_TOKEN_V2", cfg.NotionTokenV2)
	cfg.NotionActiveUser = getenvDefault("NOTION_ACTIVE_USER", cfg.NotionActiveUser)
	cfg.APIKey = getenvDefault("API_KEY", cfg.APIKey)
	cfg.UpstreamTimeout = getenvDurationDefault("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)

	cfg.TenantID = strings.TrimSpace(getenvDefault("TENANT_ID", cfg.TenantID))
	cfg.TrustTenantOverride = getenvBoolDefault("TRUST_TENANT_OVERRIDE", cfg.TrustTenantOverride)
	cfg.MappingAPIURL = getenvDefault("MAPPING_API_URL", cfg.MappingAPIURL)
	cfg.MappingTTL = getenvDurationDefault("MAPPING_TTL", cfg.MappingTTL)
	cfg.DefaultPageID = getenvDefault("DEFAULT_PAGE_ID", cfg.DefaultPageID)

	cfg.BulkMode = getenvBoolDefault("BULK_MODE", cfg.BulkMode)
	cfg.MinDispatchInterval = getenvDurationDefault("MIN_DISPATCH_INTERVAL", cfg.MinDispatchInterval)
	cfg.TokenStore = strings.ToLower(getenvDefault("TOKEN_STORE", cfg.TokenStore))
	cfg.TokenPath = getenvDefault("TOKEN_PATH", cfg.TokenPath)
	cfg.TokenStaleAfter = getenvDurationDefault("TOKEN_STALE_AFTER", cfg.TokenStaleAfter)
	cfg.TokenAcquireTimeout = getenvDurationDefault("TOKEN_ACQUIRE_TIMEOUT", cfg.TokenAcquireTimeout)

	cfg.RedisAddr = getenvDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getenvDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getenvIntDefault("REDIS_DB", cfg.RedisDB)

	cfg.RateEnabled = getenvBoolDefault("RATE_ENABLED", cfg.RateEnabled)
	cfg.RateRPS = getenvFloatDefault("RATE_RPS", cfg.RateRPS)
	cfg.RateBurst = getenvIntDefault("RATE_BURST", cfg.RateBurst)
	cfg.RetryAfter = getenvDurationDefault("RETRY_AFTER", cfg.RetryAfter)
	cfg.TrustXFF = getenvBoolDefault("TRUST_XFF", cfg.TrustXFF)
	cfg.AddRateLimitHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", cfg.AddRateLimitHeaders)
	cfg.ConcurrencyMax = getenvIntDefault("CONCURRENCY_MAX", cfg.ConcurrencyMax)
	cfg.ConcurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", cfg.ConcurrencyTimeout)

	cfg.StatsRedisEnabled = getenvBoolDefault("STATS_REDIS_ENABLED", cfg.StatsRedisEnabled)
	cfg.StatsPrefix = getenvDefault("STATS_PREFIX", cfg.StatsPrefix)
	cfg.StatsTTL = getenvDurationDefault("STATS_TTL", cfg.StatsTTL)
	cfg.StatsBucket = strings.ToLower(getenvDefault("STATS_BUCKET", cfg.StatsBucket))
	cfg.StatsTrackTenants = getenvBoolDefault("STATS_TRACK_TENANTS", cfg.StatsTrackTenants)
	cfg.MetricsEnabled = getenvBoolDefault("METRICS_ENABLED", cfg.MetricsEnabled)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate aplica as tags `validate` e as regras que dependem de mais de um campo.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.StatsRedisEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		return errors.New("REDIS_ADDR is required when STATS_REDIS_ENABLED=true")
	}
	if c.UseCustomAPI && c.CustomAPIBaseURL == "" && c.MappingAPIURL == "" {
		return errors.New("CUSTOM_API_BASE_URL or MAPPING_API_URL is required when USE_CUSTOM_API=true")
	}
	return nil
}

// MultiTenant indica se as chamadas upstream levam o header do tenant.
func (c Config) MultiTenant() bool { return c.UseCustomAPI }

// APIBase devolve a base efetiva da API de conteúdo.
func (c Config) APIBase() string {
	if c.UseCustomAPI && c.CustomAPIBaseURL != "" {
		return strings.TrimRight(c.CustomAPIBaseURL, "/")
	}
	if c.APIBaseURL != "" {
		return strings.TrimRight(c.APIBaseURL, "/")
	}
	return DefaultAPIBaseURL
}

// MappingBase devolve a base do serviço de mapeamento (cai na API custom quando ausente).
func (c Config) MappingBase() string {
	if c.MappingAPIURL != "" {
		return strings.TrimRight(c.MappingAPIURL, "/")
	}
	if c.UseCustomAPI {
		return strings.TrimRight(c.CustomAPIBaseURL, "/")
	}
	return ""
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
