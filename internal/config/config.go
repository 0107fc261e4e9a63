package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Translation   TranslationConfig   `mapstructure:"translation"`
	Subtitles     SubtitlesConfig     `mapstructure:"subtitles"`
	Sources       SourcesConfig       `mapstructure:"sources"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Progress      ProgressConfig      `mapstructure:"progress"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	DefaultTenant   string        `mapstructure:"default_tenant"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite file
	URL             string        `mapstructure:"url"`    // full postgres DSN, wins over the parts below
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver != "postgres" {
		return c.Path
	}
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type TranscriptionConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type TranslationConfig struct {
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SubtitlesConfig struct {
	WordsPerBlock int `mapstructure:"words_per_block"`
	BatchSize     int `mapstructure:"batch_size"`
}

type SourcesConfig struct {
	GoogleDrive   GoogleDriveConfig  `mapstructure:"google_drive"`
	ObjectStorage ObjectSourceConfig `mapstructure:"object_storage"`
}

type GoogleDriveConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ObjectSourceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

type SchedulerConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type ProgressConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
	NATS  NATSConfig  `mapstructure:"nats"`
}

type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets and deployment-specific values
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("storage.s3.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.s3.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.github.token", "GITHUB_TOKEN")
	v.BindEnv("transcription.api_key", "ELEVENLABS_API_KEY")
	v.BindEnv("translation.api_key", "OPENAI_API_KEY")
	v.BindEnv("translation.base_url", "OPENAI_BASE_URL")
	v.BindEnv("translation.model", "TRANSLATION_MODEL")
	v.BindEnv("progress.redis.password", "REDIS_PASSWORD")
	v.BindEnv("progress.nats.url", "NATS_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.default_tenant", "default")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/subtitles.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.provider", StorageProviderS3)
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.s3.bucket", "subtitles")
	v.SetDefault("storage.github.branch", "main")
	v.SetDefault("storage.github.base_path", "subtitles")
	v.SetDefault("storage.github.api_url", "https://api.github.com")

	v.SetDefault("transcription.provider", "elevenlabs")
	v.SetDefault("transcription.model", "scribe_v1")
	v.SetDefault("transcription.base_url", "https://api.elevenlabs.io/v1")
	v.SetDefault("transcription.timeout", "10m")

	v.SetDefault("translation.model", "gpt-4o-mini")
	v.SetDefault("translation.base_url", "https://api.openai.com/v1")
	v.SetDefault("translation.max_tokens", 4096)
	v.SetDefault("translation.timeout", "2m")

	v.SetDefault("subtitles.words_per_block", 8)
	v.SetDefault("subtitles.batch_size", 10)

	v.SetDefault("sources.google_drive.enabled", true)
	v.SetDefault("sources.object_storage.enabled", true)
	v.SetDefault("sources.object_storage.prefix", "videos")

	v.SetDefault("scheduler.workers", 2)
	v.SetDefault("scheduler.queue_size", 64)

	v.SetDefault("progress.redis.enabled", false)
	v.SetDefault("progress.redis.addr", "localhost:6379")
	v.SetDefault("progress.redis.channel_prefix", "subtitles:progress:")
	v.SetDefault("progress.nats.enabled", false)
	v.SetDefault("progress.nats.url", "nats://localhost:4222")
	v.SetDefault("progress.nats.subject_prefix", "subtitles.progress.")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the processing knobs and the selected storage backend.
func (c *Config) Validate() error {
	if c.Subtitles.WordsPerBlock <= 0 {
		return fmt.Errorf("subtitles: words_per_block must be positive, got %d", c.Subtitles.WordsPerBlock)
	}
	if c.Subtitles.BatchSize <= 0 {
		return fmt.Errorf("subtitles: batch_size must be positive, got %d", c.Subtitles.BatchSize)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	return c.Storage.Validate()
}
