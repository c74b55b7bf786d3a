// Package config loads the process configuration once from the environment
// into a typed value and publishes it behind an atomically-swappable
// pointer, per the "atomically-published configuration reference" design
// note: a mid-flight worker never observes a torn configuration.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Config is the complete set of environment-driven settings recognised by
// the pipeline and its ambient stack.
type Config struct {
	SourceDir            string   `env:"SOURCE_DIR" default:"/data/source"`
	TargetDir            string   `env:"TARGET_DIR" default:"/data/target"`
	ScanIntervalSeconds  int      `env:"SCAN_INTERVAL_SECONDS" default:"300"`
	VideoExtensions      []string `env:"VIDEO_EXTENSIONS" default:".mp4,.mkv,.avi,.mov,.m4v,.webm"`
	MinFileSizeMB        int      `env:"MIN_FILE_SIZE_MB" default:"0"`
	ScanExcludeTargetDir bool     `env:"SCAN_EXCLUDE_TARGET_DIR" default:"true"`
	ScanFollowSymlinks   bool     `env:"SCAN_FOLLOW_SYMLINKS" default:"false"`

	WorkerCount     int `env:"WORKER_COUNT" default:"4"`
	TMDBConcurrency int `env:"TMDB_CONCURRENCY" default:"10"`

	TMDBLanguage string `env:"TMDB_LANGUAGE" default:"en-US"`
	EnableTMDB   bool   `env:"ENABLE_TMDB" default:"true"`
	EnableLLM    bool   `env:"ENABLE_LLM" default:"true"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	DatabaseDriver string `env:"DATABASE_DRIVER" default:"sqlite"`
	DatabaseDSN    string `env:"DATABASE_DSN" default:"clearmedia.db"`

	AnalyserBaseURL  string        `env:"ANALYSER_BASE_URL" default:""`
	AnalyserAPIKey   string        `env:"ANALYSER_API_KEY" default:""`
	AnalyserModel    string        `env:"ANALYSER_MODEL" default:"gpt-4o-mini"`
	AnalyserCacheSize int          `env:"ANALYSER_CACHE_SIZE" default:"512"`
	AnalyserTimeout  time.Duration `env:"ANALYSER_TIMEOUT" default:"30s"`

	TMDBAPIKey  string        `env:"TMDB_API_KEY" default:""`
	TMDBBaseURL string        `env:"TMDB_BASE_URL" default:"https://api.themoviedb.org/3"`
	TMDBTimeout time.Duration `env:"TMDB_TIMEOUT" default:"15s"`
}

// Load builds a Config from the process environment, applying each field's
// default tag when the corresponding env key is unset.
func Load(getenv func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadStructFromEnv(v reflect.Value, getenv func(string) (string, bool)) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			if err := loadStructFromEnv(fv, getenv); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("env")
		if key == "" {
			continue
		}

		value, ok := getenv(key)
		if !ok || value == "" {
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setFieldValue(fv, value); err != nil {
			return fmt.Errorf("config field %s (env %s): %w", field.Name, key, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch {
	case field.Type() == reflect.TypeOf(time.Duration(0)):
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported config field kind %s", field.Kind())
	}
	return nil
}

// Validate rejects configuration values that would make the pipeline's
// invariants impossible to uphold.
func Validate(cfg *Config) error {
	if cfg.SourceDir == "" {
		return fmt.Errorf("SOURCE_DIR must not be empty")
	}
	if cfg.TargetDir == "" {
		return fmt.Errorf("TARGET_DIR must not be empty")
	}
	if cfg.ScanIntervalSeconds < 1 {
		return fmt.Errorf("SCAN_INTERVAL_SECONDS must be >= 1, got %d", cfg.ScanIntervalSeconds)
	}
	if cfg.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be >= 1, got %d", cfg.WorkerCount)
	}
	if cfg.TMDBConcurrency < 1 {
		return fmt.Errorf("TMDB_CONCURRENCY must be >= 1, got %d", cfg.TMDBConcurrency)
	}
	if cfg.MinFileSizeMB < 0 {
		return fmt.Errorf("MIN_FILE_SIZE_MB must be >= 0, got %d", cfg.MinFileSizeMB)
	}
	for _, ext := range cfg.VideoExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("VIDEO_EXTENSIONS entries must start with '.', got %q", ext)
		}
	}
	return nil
}
