package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Expected postgres driver, got %s", cfg.Database.Driver)
	}
	if cfg.Quality.WarnThreshold != 3 || cfg.Quality.CriticalThreshold != 5 {
		t.Errorf("Unexpected batch thresholds: %+v", cfg.Quality)
	}
	if cfg.Quality.CompareAttention != 2 || cfg.Quality.CompareCritical != 3 {
		t.Errorf("Unexpected comparison thresholds: %+v", cfg.Quality)
	}
	if cfg.Cache.SeasonalTTLHours != 24 {
		t.Errorf("Expected 24h seasonal TTL, got %d", cfg.Cache.SeasonalTTLHours)
	}
	if cfg.Forecast.Window != 30 || cfg.Forecast.MinSamples != 5 {
		t.Errorf("Unexpected forecast config: %+v", cfg.Forecast)
	}
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("DB_DRIVER", "pgx")
	v.Set("QUALITY_WARN_THRESHOLD", 4.5)
	v.Set("PRODUCTION_SINGLE_PREFIX", "RS")

	cfg := fromViper(v)

	if cfg.Database.Driver != "pgx" {
		t.Errorf("Expected pgx driver, got %s", cfg.Database.Driver)
	}
	if cfg.Quality.WarnThreshold != 4.5 {
		t.Errorf("Expected warn threshold 4.5, got %v", cfg.Quality.WarnThreshold)
	}
	if cfg.Production.SinglePrefix != "RS" {
		t.Errorf("Expected prefix RS, got %s", cfg.Production.SinglePrefix)
	}
}
