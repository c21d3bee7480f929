package shared

import (
	"encoding/json"
	"github.com/kelseyhightower/envconfig"
	"github.com/tailscale/hujson"
	"log"
	"os"
	"time"
)

const (
	configVarName  = "CONFIG"                      // If set, will load config.json from this path and not from devConfigPath
	secretsVarName = "SECRETS"                     // If set, will load secrets.json from this path and not from devSecretsPath
	envPrefix      = "FEDI"                        // Prefix of environment overrides, e.g. FEDI_SITE_DOMAIN
	devConfigPath  = "../../dev/config.dev.jsonc"  // Path to config.json in development environment
	devSecretsPath = "../../dev/secrets.dev.jsonc" // Path to config.json in development environment
)

const (
	defaultRequestTimeoutSec = 10
	defaultCacheTtlSec       = 60
	defaultCacheMaxEntries   = 1000
	defaultActorMaxAgeHours  = 24
	defaultInboxMaxBytes     = 1 << 20
)

type Config struct {
	Secrets           Secrets     `json:"-" ignored:"true"`
	LogFile           string      `json:"log_file" envconfig:"LOG_FILE"`
	LogLevel          string      `json:"log_level" envconfig:"LOG_LEVEL"`
	ServicePort       uint        `json:"service_port" envconfig:"SERVICE_PORT"`
	SiteDomain        string      `json:"site_domain" envconfig:"SITE_DOMAIN"`
	SiteServiceDomain string      `json:"site_service_domain" envconfig:"SITE_SERVICE_DOMAIN"`
	SiteName          string      `json:"site_name" envconfig:"SITE_NAME"`
	DbFile            string      `json:"db_file" envconfig:"DB_FILE"`
	RequestTimeoutSec int         `json:"request_timeout_sec" envconfig:"REQUEST_TIMEOUT_SEC"`
	RemoteFetch       bool        `json:"remote_fetch" envconfig:"REMOTE_FETCH"`
	SignedFetchActor  string      `json:"signed_fetch_actor" envconfig:"SIGNED_FETCH_ACTOR"`
	ActorMaxAgeHours  int         `json:"actor_max_age_hours" envconfig:"ACTOR_MAX_AGE_HOURS"`
	InboxMaxBytes     int64       `json:"inbox_max_bytes" envconfig:"INBOX_MAX_BYTES"`
	Cache             CacheConfig `json:"cache"` // FEDI_CACHE_REDIS_ADDR etc.
}

type CacheConfig struct {
	TtlSec     int    `json:"ttl_sec" envconfig:"TTL_SEC"`
	MaxEntries int    `json:"max_entries" envconfig:"MAX_ENTRIES"`
	RedisAddr  string `json:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisDb    int    `json:"redis_db" envconfig:"REDIS_DB"`
}

type Secrets struct {
	ApiKeys       []string `json:"api_keys"`
	MetricsAuth   string   `json:"metrics_auth" envconfig:"METRICS_AUTH"`
	RedisPassword string   `json:"redis_password" envconfig:"REDIS_PASSWORD"`
}

func LoadConfig() *Config {

	// Where are our config and secrets files?
	cfgPath := os.Getenv(configVarName)
	if len(cfgPath) == 0 {
		cfgPath = devConfigPath
	}
	secretsPath := os.Getenv(secretsVarName)
	if len(secretsPath) == 0 {
		secretsPath = devSecretsPath
	}

	// Read config file
	var config Config
	mustDeserializeFile(cfgPath, &config)
	// Read secrets member from secrets file
	mustDeserializeFile(secretsPath, &config.Secrets)
	// Environment wins over files
	mustApplyEnv(&config)
	config.ApplyDefaults()
	return &config
}

// ApplyDefaults fills in zero values that have a sensible default.
func (cfg *Config) ApplyDefaults() {
	if cfg.RequestTimeoutSec <= 0 {
		cfg.RequestTimeoutSec = defaultRequestTimeoutSec
	}
	if cfg.ActorMaxAgeHours <= 0 {
		cfg.ActorMaxAgeHours = defaultActorMaxAgeHours
	}
	if cfg.InboxMaxBytes <= 0 {
		cfg.InboxMaxBytes = defaultInboxMaxBytes
	}
	if cfg.Cache.TtlSec <= 0 {
		cfg.Cache.TtlSec = defaultCacheTtlSec
	}
	if cfg.Cache.MaxEntries <= 0 {
		cfg.Cache.MaxEntries = defaultCacheMaxEntries
	}
}

func (cfg *Config) RequestTimeout() time.Duration {
	return time.Duration(cfg.RequestTimeoutSec) * time.Second
}

func (cfg *Config) CacheTtl() time.Duration {
	return time.Duration(cfg.Cache.TtlSec) * time.Second
}

func (cfg *Config) ActorMaxAge() time.Duration {
	return time.Duration(cfg.ActorMaxAgeHours) * time.Hour
}

func mustApplyEnv(cfg *Config) {
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		log.Fatal(err)
	}
	if err := envconfig.Process(envPrefix, &cfg.Secrets); err != nil {
		log.Fatal(err)
	}
}

func mustDeserializeFile[T any](fileName string, obj *T) {
	var err error
	var cfgJson []byte
	cfgJson, err = os.ReadFile(fileName)
	if err != nil {
		log.Fatal(err)
	}
	// JSONC => JSON
	cfgJson, err = standardizeJSON(cfgJson)
	if err != nil {
		log.Fatal(err)
	}
	// Parse
	if err := json.Unmarshal(cfgJson, obj); err != nil {
		log.Fatal(err)
	}
}

func standardizeJSON(b []byte) ([]byte, error) {
	ast, err := hujson.Parse(b)
	if err != nil {
		return b, err
	}
	ast.Standardize()
	return ast.Pack(), nil
}
