package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/forest-guardian/field-indices-cli/internal/properties"
)

// Config holds the full application configuration.
type Config struct {
	Fields       FieldsConfig       `yaml:"fields" mapstructure:"fields"`
	Years        YearsConfig        `yaml:"years" mapstructure:"years"`
	Sentinel     SentinelConfig     `yaml:"sentinel" mapstructure:"sentinel"`
	Export       ExportConfig       `yaml:"export" mapstructure:"export"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Notification NotificationConfig `yaml:"notification" mapstructure:"notification"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// FieldsConfig selects where field polygons come from. An empty Source means
// the built-in fields.
type FieldsConfig struct {
	Source     string `yaml:"source" mapstructure:"source"`
	IDProperty string `yaml:"id_property" mapstructure:"id_property"`
}

// YearsConfig is the inclusive range of calendar years to analyse.
type YearsConfig struct {
	Start int `yaml:"start" mapstructure:"start"`
	End   int `yaml:"end" mapstructure:"end"`
}

// SentinelConfig holds Copernicus Sentinel Hub settings.
type SentinelConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	TokenURL          string  `yaml:"token_url" mapstructure:"token_url"`
	ClientID          string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret      string  `yaml:"client_secret" mapstructure:"client_secret"`
	Collection        string  `yaml:"collection" mapstructure:"collection"`
	MaxCloudCover     float64 `yaml:"max_cloud_cover" mapstructure:"max_cloud_cover"`
	Resolution        float64 `yaml:"resolution" mapstructure:"resolution"`
	MaxConcurrent     int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Retries           int     `yaml:"retries" mapstructure:"retries"`
}

// ExportConfig configures the result table. An empty Description names the
// file after the exported years, see DefaultDescription.
type ExportConfig struct {
	Format      string `yaml:"format" mapstructure:"format"`
	Description string `yaml:"description" mapstructure:"description"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// NotificationConfig holds Discord webhook URLs. Empty URLs disable
// the corresponding notification.
type NotificationConfig struct {
	DiscordErrorURL   string `yaml:"discord_error_url" mapstructure:"discord_error_url"`
	DiscordSuccessURL string `yaml:"discord_success_url" mapstructure:"discord_success_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultDescription names the exported table of the years [start, end].
func DefaultDescription(start, end int) string {
	return fmt.Sprintf("Indices_GEE_Talhoes_%d_%d", start, end)
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// .env files are optional; variables already set win.
	for _, envFile := range []string{".env", filepath.Join(properties.RootPath(), ".env")} {
		_ = godotenv.Load(envFile)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(properties.RootPath())

	v.SetEnvPrefix("FIELD_INDICES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("fields.source", "")
	v.SetDefault("fields.id_property", "id_talhao")
	v.SetDefault("years.start", 2019)
	v.SetDefault("years.end", 2025)
	v.SetDefault("sentinel.base_url", "https://sh.dataspace.copernicus.eu")
	v.SetDefault("sentinel.token_url", "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token")
	v.SetDefault("sentinel.client_id", "")
	v.SetDefault("sentinel.client_secret", "")
	v.SetDefault("sentinel.collection", "sentinel-2-l2a")
	v.SetDefault("sentinel.max_cloud_cover", 40)
	v.SetDefault("sentinel.resolution", 10)
	v.SetDefault("sentinel.max_concurrent", 4)
	v.SetDefault("sentinel.requests_per_second", 5)
	v.SetDefault("sentinel.retries", 5)
	v.SetDefault("export.format", "csv")
	v.SetDefault("export.description", "")
	v.SetDefault("export.dir", properties.ResultPath())
	v.SetDefault("store.path", properties.DataPath("indices.db"))
	v.SetDefault("notification.discord_error_url", "")
	v.SetDefault("notification.discord_success_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Years.Start > c.Years.End {
		return eris.Errorf("config: years.start %d is after years.end %d", c.Years.Start, c.Years.End)
	}
	if c.Sentinel.MaxCloudCover <= 0 || c.Sentinel.MaxCloudCover > 100 {
		return eris.Errorf("config: sentinel.max_cloud_cover must be in (0, 100], got %v", c.Sentinel.MaxCloudCover)
	}
	if c.Sentinel.Resolution <= 0 {
		return eris.Errorf("config: sentinel.resolution must be positive, got %v", c.Sentinel.Resolution)
	}
	switch c.Export.Format {
	case "csv", "xlsx", "geojson":
	default:
		return eris.Errorf("config: unsupported export.format %q", c.Export.Format)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
