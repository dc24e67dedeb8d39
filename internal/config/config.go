package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/los-review/internal/registry"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Task     TaskConfig     `yaml:"task" mapstructure:"task"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Review   ReviewConfig   `yaml:"review" mapstructure:"review"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the encounter store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	// RetryAttempts bounds attempts for connects and snapshot reads that fail
	// transiently. 1 disables retries.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// TaskConfig selects the prediction tree inside encounter documents.
type TaskConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// RegistryConfig lists the in-scope final-family versions. Inline versions
// and versions read from File are merged.
type RegistryConfig struct {
	File     string             `yaml:"file" mapstructure:"file"`
	Versions []registry.Version `yaml:"versions" mapstructure:"versions"`
}

// ReviewConfig configures ground truth labeling and review sampling.
type ReviewConfig struct {
	SampleCap      int      `yaml:"sample_cap" mapstructure:"sample_cap"`
	ThresholdDays  int      `yaml:"threshold_days" mapstructure:"threshold_days"`
	ExclusionTerms []string `yaml:"exclusion_terms" mapstructure:"exclusion_terms"`
}

// ExportConfig configures file exports.
type ExportConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the read-only HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// RunsPerSecond limits pipeline runs triggered over HTTP. 0 disables the limit.
	RunsPerSecond float64 `yaml:"runs_per_second" mapstructure:"runs_per_second"`
	RunBurst      int     `yaml:"run_burst" mapstructure:"run_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultExclusionTerms flag newborn encounters, where discharge timing
// follows the birth episode rather than the notes.
var DefaultExclusionTerms = []string{"newborn", "neonate", "neonatal", "infant"}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LOSREVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.retry_attempts", 3)
	v.SetDefault("task.key", "length_of_stay")
	v.SetDefault("registry.file", "")
	v.SetDefault("review.sample_cap", 50)
	v.SetDefault("review.threshold_days", 2)
	v.SetDefault("review.exclusion_terms", DefaultExclusionTerms)
	v.SetDefault("export.dir", "downloads")
	v.SetDefault("export.format", "csv")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.runs_per_second", 1.0)
	v.SetDefault("server.run_burst", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
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

// Validate checks values that would make the pipeline meaningless.
func (c *Config) Validate() error {
	if c.Review.ThresholdDays < 0 {
		return eris.Errorf("config: review.threshold_days must be >= 0, got %d", c.Review.ThresholdDays)
	}
	if c.Review.SampleCap < 0 {
		return eris.Errorf("config: review.sample_cap must be >= 0, got %d", c.Review.SampleCap)
	}
	switch c.Export.Format {
	case "csv", "xlsx":
	default:
		return eris.Errorf("config: unsupported export.format %q", c.Export.Format)
	}
	if strings.TrimSpace(c.Task.Key) == "" {
		return eris.New("config: task.key is required")
	}
	return nil
}

// LoadRegistry builds the version registry from the registry section.
func (c *Config) LoadRegistry() (*registry.VersionRegistry, error) {
	reg, err := registry.Load(c.Registry.Versions, c.Registry.File)
	if err != nil {
		return nil, eris.Wrap(err, "config: load registry")
	}
	return reg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
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
