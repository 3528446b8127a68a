// internal/config/config.go
package config

import (
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Quality    QualityConfig
	Production ProductionConfig
	Forecast   ForecastConfig
	Storage    ObjectStoreConfig
	LogLevel   string
	LogFormat  string
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	URL      string
	MaxTx    int64
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	SeasonalTTLHours int
}

// QualityConfig holds the yield-loss thresholds, in percentage points.
type QualityConfig struct {
	WarnThreshold       float64
	CriticalThreshold   float64
	CompareAttention    float64
	CompareCritical     float64
	DefaultExpectedLoss float64
}

type ProductionConfig struct {
	SinglePrefix string
	BlendPrefix  string
}

type ForecastConfig struct {
	Window                 int
	MinSamples             int
	RefreshIntervalMinutes int
}

type ObjectStoreConfig struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	Bucket      string
	Region      string
	UseSSL      bool
	DownloadDir string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		setDefaults(viper.GetViper())

		// Read from environment variables
		viper.AutomaticEnv()

		instance = fromViper(viper.GetViper())
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "roastery")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_TX", 10)
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_SEASONAL_TTL_HOURS", 24)
	v.SetDefault("QUALITY_WARN_THRESHOLD", 3.0)
	v.SetDefault("QUALITY_CRITICAL_THRESHOLD", 5.0)
	v.SetDefault("QUALITY_COMPARE_ATTENTION", 2.0)
	v.SetDefault("QUALITY_COMPARE_CRITICAL", 3.0)
	v.SetDefault("QUALITY_DEFAULT_EXPECTED_LOSS", 0.15)
	v.SetDefault("PRODUCTION_SINGLE_PREFIX", "R")
	v.SetDefault("PRODUCTION_BLEND_PREFIX", "B")
	v.SetDefault("FORECAST_WINDOW", 30)
	v.SetDefault("FORECAST_MIN_SAMPLES", 5)
	v.SetDefault("FORECAST_REFRESH_INTERVAL_MINUTES", 0)
	v.SetDefault("OBJECT_STORE_REGION", "us-east-1")
	v.SetDefault("OBJECT_STORE_USE_SSL", true)
	v.SetDefault("OBJECT_STORE_DOWNLOAD_DIR", "./data/tmp/seed")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("DB_DRIVER"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			URL:      v.GetString("DATABASE_URL"),
			MaxTx:    v.GetInt64("DB_MAX_TX"),
		},
		Cache: CacheConfig{
			Enabled:          v.GetBool("CACHE_ENABLED"),
			RedisURL:         v.GetString("REDIS_URL"),
			RedisHost:        v.GetString("REDIS_HOST"),
			RedisPort:        v.GetString("REDIS_PORT"),
			RedisPassword:    v.GetString("REDIS_PASSWORD"),
			RedisDB:          v.GetInt("REDIS_DB"),
			SeasonalTTLHours: v.GetInt("CACHE_SEASONAL_TTL_HOURS"),
		},
		Quality: QualityConfig{
			WarnThreshold:       v.GetFloat64("QUALITY_WARN_THRESHOLD"),
			CriticalThreshold:   v.GetFloat64("QUALITY_CRITICAL_THRESHOLD"),
			CompareAttention:    v.GetFloat64("QUALITY_COMPARE_ATTENTION"),
			CompareCritical:     v.GetFloat64("QUALITY_COMPARE_CRITICAL"),
			DefaultExpectedLoss: v.GetFloat64("QUALITY_DEFAULT_EXPECTED_LOSS"),
		},
		Production: ProductionConfig{
			SinglePrefix: v.GetString("PRODUCTION_SINGLE_PREFIX"),
			BlendPrefix:  v.GetString("PRODUCTION_BLEND_PREFIX"),
		},
		Forecast: ForecastConfig{
			Window:                 v.GetInt("FORECAST_WINDOW"),
			MinSamples:             v.GetInt("FORECAST_MIN_SAMPLES"),
			RefreshIntervalMinutes: v.GetInt("FORECAST_REFRESH_INTERVAL_MINUTES"),
		},
		Storage: ObjectStoreConfig{
			Endpoint:    v.GetString("OBJECT_STORE_ENDPOINT"),
			AccessKey:   v.GetString("OBJECT_STORE_ACCESS_KEY"),
			SecretKey:   v.GetString("OBJECT_STORE_SECRET_KEY"),
			Bucket:      v.GetString("OBJECT_STORE_BUCKET"),
			Region:      v.GetString("OBJECT_STORE_REGION"),
			UseSSL:      v.GetBool("OBJECT_STORE_USE_SSL"),
			DownloadDir: v.GetString("OBJECT_STORE_DOWNLOAD_DIR"),
		},
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}
}

// Defaults returns a configuration built only from the default values,
// ignoring the environment. Tests and the memory driver use it.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}
