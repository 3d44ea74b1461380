package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values.
type Config struct {
	Port     string         `mapstructure:"port"`
	Locale   string         `mapstructure:"locale"`
	Server   ServerConfig   `mapstructure:"server"`
	AI       AIConfig       `mapstructure:"ai"`
	Image    ImageConfig    `mapstructure:"image"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Media    MediaConfig    `mapstructure:"media"`
	Log      LogConfig      `mapstructure:"log"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	StaticFS string         `mapstructure:"static_dir"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// AIConfig selects the generative backends and their models.
type AIConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	Backend            string        `mapstructure:"backend"`
	Project            string        `mapstructure:"project"`
	Location           string        `mapstructure:"location"`
	BaseURL            string        `mapstructure:"base_url"`
	Analyzer           string        `mapstructure:"analyzer"`
	AnalysisModel      string        `mapstructure:"analysis_model"`
	ImageBackend       string        `mapstructure:"image_backend"`
	ImageModel         string        `mapstructure:"image_model"`
	ServiceAccountFile string        `mapstructure:"service_account_file"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// ImageConfig bounds uploaded photos before analysis.
type ImageConfig struct {
	MaxWidth  int `mapstructure:"max_width"`
	MaxHeight int `mapstructure:"max_height"`
	Quality   int `mapstructure:"quality"`
	MaxBytes  int `mapstructure:"max_bytes"`
}

// StorageConfig picks the session store.
type StorageConfig struct {
	DatabaseURL string        `mapstructure:"database_url"`
	RedisURL    string        `mapstructure:"redis_url"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
}

// MediaConfig describes S3/media related configuration.
type MediaConfig struct {
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	PublicURL      string `mapstructure:"public_url"`
	KeyPrefix      string `mapstructure:"key_prefix"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	AccessKeyID    string `mapstructure:"access_key_id"`
	SecretKey      string `mapstructure:"secret_access_key"`
	LocalDir       string `mapstructure:"local_dir"`
}

// SnapshotConfig controls the shareable result card.
type SnapshotConfig struct {
	// FontFile is a TTF/OTF/TTC used ahead of the bundled Go fonts.
	FontFile string `mapstructure:"font_file"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings keeps the flat environment names used by deployments.
var envBindings = map[string][]string{
	"port":                    {"APP_PORT", "PORT"},
	"locale":                  {"STYLIST_LOCALE"},
	"static_dir":              {"STATIC_DIR"},
	"ai.api_key":              {"API_KEY", "GEMINI_API_KEY"},
	"ai.backend":              {"AI_BACKEND"},
	"ai.project":              {"GOOGLE_CLOUD_PROJECT", "PROJECT_ID"},
	"ai.location":             {"GOOGLE_CLOUD_LOCATION", "LOCATION"},
	"ai.base_url":             {"AI_BASE_URL"},
	"ai.analyzer":             {"AI_ANALYZER"},
	"ai.analysis_model":       {"ANALYSIS_MODEL"},
	"ai.image_backend":        {"IMAGE_BACKEND"},
	"ai.image_model":          {"IMAGE_MODEL"},
	"ai.service_account_file": {"GOOGLE_APPLICATION_CREDENTIALS"},
	"ai.timeout":              {"AI_TIMEOUT"},
	"storage.database_url":    {"DATABASE_URL"},
	"storage.redis_url":       {"REDIS_URL"},
	"storage.session_ttl":     {"SESSION_TTL"},
	"media.bucket":            {"S3_BUCKET"},
	"media.region":            {"S3_REGION"},
	"media.endpoint":          {"S3_ENDPOINT"},
	"media.public_url":        {"S3_PUBLIC_URL"},
	"media.key_prefix":        {"S3_KEY_PREFIX"},
	"media.force_path_style":  {"S3_FORCE_PATH_STYLE"},
	"media.access_key_id":     {"S3_ACCESS_KEY_ID"},
	"media.secret_access_key": {"S3_SECRET_ACCESS_KEY"},
	"media.local_dir":         {"MEDIA_LOCAL_DIR"},
	"snapshot.font_file":      {"SNAPSHOT_FONT_FILE"},
	"log.level":               {"LOG_LEVEL"},
	"log.format":              {"LOG_FORMAT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("locale", "ko")
	v.SetDefault("static_dir", "web")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 3*time.Minute)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.backend", "vertex")
	v.SetDefault("ai.project", "")
	v.SetDefault("ai.location", "us-central1")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.analyzer", "sdk")
	v.SetDefault("ai.analysis_model", "gemini-2.5-flash")
	v.SetDefault("ai.image_backend", "sdk")
	v.SetDefault("ai.image_model", "imagen-4.0-generate-001")
	v.SetDefault("ai.service_account_file", "")
	v.SetDefault("ai.timeout", time.Duration(0))
	v.SetDefault("image.max_width", 1024)
	v.SetDefault("image.max_height", 1024)
	v.SetDefault("image.quality", 90)
	v.SetDefault("image.max_bytes", 20*1024*1024)
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.redis_url", "")
	v.SetDefault("storage.session_ttl", 24*time.Hour)
	v.SetDefault("media.bucket", "")
	v.SetDefault("media.region", "")
	v.SetDefault("media.endpoint", "")
	v.SetDefault("media.public_url", "")
	v.SetDefault("media.key_prefix", "")
	v.SetDefault("media.force_path_style", false)
	v.SetDefault("media.access_key_id", "")
	v.SetDefault("media.secret_access_key", "")
	v.SetDefault("media.local_dir", "")
	v.SetDefault("snapshot.font_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the optional config file at path, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	// .env is optional in every environment.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Port = strings.TrimSpace(c.Port)
	c.Locale = strings.ToLower(strings.TrimSpace(c.Locale))
	c.AI.APIKey = strings.TrimSpace(c.AI.APIKey)
	c.AI.BaseURL = strings.TrimSpace(c.AI.BaseURL)
	c.AI.Backend = strings.ToLower(strings.TrimSpace(c.AI.Backend))
	c.AI.Analyzer = strings.ToLower(strings.TrimSpace(c.AI.Analyzer))
	c.AI.ImageBackend = strings.ToLower(strings.TrimSpace(c.AI.ImageBackend))
	c.Media.KeyPrefix = strings.Trim(c.Media.KeyPrefix, "/")
	c.Snapshot.FontFile = strings.TrimSpace(c.Snapshot.FontFile)
}

func (c Config) validate() error {
	if c.Port == "" {
		return errors.New("config: port cannot be empty")
	}
	switch c.AI.Backend {
	case "vertex", "gemini":
	default:
		return fmt.Errorf("config: unknown ai.backend %q", c.AI.Backend)
	}
	switch c.AI.Analyzer {
	case "sdk", "rest":
	default:
		return fmt.Errorf("config: unknown ai.analyzer %q", c.AI.Analyzer)
	}
	switch c.AI.ImageBackend {
	case "sdk", "predict":
	default:
		return fmt.Errorf("config: unknown ai.image_backend %q", c.AI.ImageBackend)
	}
	if c.Image.MaxWidth <= 0 || c.Image.MaxHeight <= 0 {
		return errors.New("config: image bounds must be positive")
	}
	if c.Image.Quality <= 0 || c.Image.Quality > 100 {
		return fmt.Errorf("config: image.quality %d out of range", c.Image.Quality)
	}
	return nil
}

// HasCredentials reports whether any credential for the AI backends is set.
func (c Config) HasCredentials() bool {
	return c.AI.APIKey != "" || c.AI.Project != "" || c.AI.ServiceAccountFile != ""
}
