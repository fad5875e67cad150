package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"rsm-inventory-bot/internal/model"
	"rsm-inventory-bot/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Log       logger.Config
	Cache     CacheConfig
	ESI       ESIConfig
	Discord   DiscordConfig
	Inventory InventoryConfig
}

// ServerConfig holds operator HTTP server settings.
type ServerConfig struct {
	Enabled         bool          `envconfig:"SERVER_ENABLED" default:"true"`
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	APIKeys         []string      `envconfig:"API_KEYS"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"rsm-inventory-bot"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// CacheConfig selects the key-value back-end.
type CacheConfig struct {
	Type string `envconfig:"CACHE_TYPE" default:"redis"` // memory, redis or sqlite

	RedisURL      string `envconfig:"REDIS_URL"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix     string `envconfig:"CACHE_KEY_PREFIX" default:"rsm:inventory:"`

	SQLitePath      string        `envconfig:"CACHE_SQLITE_PATH" default:"./data/cache.db"`
	CleanupInterval time.Duration `envconfig:"CACHE_CLEANUP_INTERVAL" default:"10m"`
}

// ESIConfig holds upstream API credentials and client tuning.
type ESIConfig struct {
	ClientID     string        `envconfig:"ESI_CLIENT_ID" required:"true"`
	SecretKey    string        `envconfig:"ESI_SECRET_KEY" required:"true"`
	Callback     string        `envconfig:"ESI_CALLBACK"`
	RefreshToken string        `envconfig:"ESI_REFRESH_TOKEN"`
	UserAgent    string        `envconfig:"ESI_USER_AGENT" default:"rsm-inventory-bot"`
	BaseURL      string        `envconfig:"ESI_BASE_URL" default:"https://esi.evetech.net/latest"`
	TokenURL     string        `envconfig:"ESI_TOKEN_URL" default:"https://login.eveonline.com/v2/oauth/token"`
	CharacterID  int64         `envconfig:"ESI_CHARACTER_ID" required:"true"`
	Workers      int           `envconfig:"ESI_WORKERS" default:"5"`
	CacheTTL     time.Duration `envconfig:"ESI_CACHE_TTL" default:"300s"`
	RateLimit    float64       `envconfig:"ESI_RATE_LIMIT" default:"20"`
	HTTPTimeout  time.Duration `envconfig:"ESI_HTTP_TIMEOUT" default:"60s"`

	CorporationID int64 `envconfig:"CORP_ID" required:"true"`
}

// DiscordConfig holds the chat front-end settings.
type DiscordConfig struct {
	BotToken     string        `envconfig:"DISCORD_BOT_TOKEN"`
	GuildID      string        `envconfig:"DISCORD_GUILD_ID"`
	AuthorName   string        `envconfig:"DISCORD_AUTHOR_NAME" default:"RSM Inventory"`
	AuthorIcon   string        `envconfig:"DISCORD_AUTHOR_ICON" default:"https://images.evetech.net/corporations/1003900783/logo?size=32"`
	Thumbnail    string        `envconfig:"DISCORD_THUMBNAIL" default:"https://images.evetech.net/types/597/render?size=64"`
	Color        int           `envconfig:"DISCORD_COLOR" default:"0x03FC73"`
	LoadingTTL   time.Duration `envconfig:"DISCORD_LOADING_TTL" default:"10s"`
	CycleTimeout time.Duration `envconfig:"DISCORD_CYCLE_TIMEOUT" default:"0s"`
}

// InventoryConfig holds the watch-list and aggregation settings.
type InventoryConfig struct {
	Ships              model.WatchList `envconfig:"SHIPS"`
	ShipsFile          string          `envconfig:"SHIPS_FILE"`
	DefaultPrice       float64         `envconfig:"PRICE" default:"0"`
	StructureThreshold int64           `envconfig:"STRUCTURE_ID_THRESHOLD" default:"100000000"`
	SummaryTTL         time.Duration   `envconfig:"SUMMARY_TTL" default:"300s"`
	SummaryKey         string          `envconfig:"SUMMARY_KEY" default:"last_summary"`
	ContractTTL        time.Duration   `envconfig:"CONTRACT_CACHE_TTL" default:"0s"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Load reads configuration from environment variables and the optional
// watch-list file, then validates it.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Inventory.ShipsFile != "" {
		ships, err := LoadWatchList(cfg.Inventory.ShipsFile)
		if err != nil {
			return nil, err
		}
		cfg.Inventory.Ships = ships
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Inventory.Ships) == 0 {
		errs = append(errs, errors.New("watch-list is empty: set SHIPS or SHIPS_FILE"))
	}
	if err := c.Inventory.Ships.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid watch-list: %w", err))
	}
	switch c.Cache.Type {
	case "memory", "redis", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_TYPE %q", c.Cache.Type))
	}
	if c.ESI.CharacterID <= 0 {
		errs = append(errs, errors.New("ESI_CHARACTER_ID must be a positive character id"))
	}
	if c.ESI.Workers <= 0 {
		errs = append(errs, errors.New("ESI_WORKERS must be positive"))
	}
	return errors.Join(errs...)
}

// LoadWatchList reads a YAML watch-list file:
//
//   - id: 597
//     name: Punisher
//     max: 10
//     price: 1500000
func LoadWatchList(path string) (model.WatchList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watch-list file: %w", err)
	}

	var ships model.WatchList
	if err := yaml.Unmarshal(data, &ships); err != nil {
		return nil, fmt.Errorf("failed to parse watch-list file: %w", err)
	}
	return ships, nil
}
