package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"storepulse/internal/analytics"
	"storepulse/internal/engine"
	"storepulse/internal/model"
)

// Config is the application's configuration model.
// It captures analytics thresholds, storage, serving, and scheduling.
type Config struct {
	Analytics AnalyticsConfig `yaml:"analytics"`
	Report    ReportConfig    `yaml:"report"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

type AnalyticsConfig struct {
	LookbackWindow            time.Duration `yaml:"lookbackWindow"`
	HighConfidenceWindow      time.Duration `yaml:"highConfidenceWindow"`
	MinSample                 int           `yaml:"minSample"`
	StaticEngagementThreshold float64       `yaml:"staticEngagementThreshold"`
	StaticSaveThreshold       float64       `yaml:"staticSaveThreshold"`
	HistoryWindow             time.Duration `yaml:"historyWindow"`
	// Attribution channels tried in order when an order carries no signal.
	TypeOrder []string `yaml:"typeOrder"`
	// Business accounts eligible for attribution; empty means all.
	Accounts []string `yaml:"accounts"`
	// AsOfDate pins snapshot selection (YYYY-MM-DD); empty means latest.
	AsOfDate string `yaml:"asOfDate"`
	Workers  int    `yaml:"workers"`
}

type ReportConfig struct {
	GroupBy []string `yaml:"groupBy"`
	Period  string   `yaml:"period"`
	Top     int      `yaml:"top"`
}

type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver   string         `yaml:"driver"`
	DBPath   string         `yaml:"dbPath"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders a lib/pq key/value connection string.
func (p PostgresConfig) DSN() string {
	parts := []string{
		"host=" + p.Host,
		"port=" + strconv.Itoa(p.Port),
		"dbname=" + p.DBName,
		"user=" + p.User,
	}
	if p.Password != "" {
		parts = append(parts, "password="+p.Password)
	}
	if p.SSLMode != "" {
		parts = append(parts, "sslmode="+p.SSLMode)
	}
	return strings.Join(parts, " ")
}

type ServerConfig struct {
	Addr  string  `yaml:"addr"`
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
	// Quiet hours (UTC) during which scheduled runs are deferred
	QuietHours []int `yaml:"quietHours"`
	// Days of history loaded per scheduled run
	HistoryDays int `yaml:"historyDays"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Analytics: AnalyticsConfig{
			LookbackWindow:            14 * 24 * time.Hour,
			HighConfidenceWindow:      48 * time.Hour,
			MinSample:                 10,
			StaticEngagementThreshold: 0.03,
			StaticSaveThreshold:       0.01,
			TypeOrder:                 []string{string(model.AttrDirectMessage), string(model.AttrPostComment)},
			Workers:                   4,
		},
		Report: ReportConfig{GroupBy: []string{"platform", "period"}, Period: "week", Top: 5},
		Storage: StorageConfig{
			Driver:   "sqlite",
			DBPath:   "./storepulse.db",
			Postgres: PostgresConfig{Host: "localhost", Port: 5432, DBName: "social_commerce", User: "postgres", SSLMode: "disable"},
		},
		Server:   ServerConfig{Addr: ":8080", RPS: 5, Burst: 10},
		Metrics:  MetricsConfig{Addr: ""},
		Logging:  LoggingConfig{Level: "info"},
		Schedule: ScheduleConfig{Interval: time.Hour, QuietHours: []int{2, 3, 4}, HistoryDays: 90},
	}
}

// ResolveEnv overrides config fields from environment variables when set.
// The DB_* names match the .env layout of existing deployments.
func (c *Config) ResolveEnv() {
	str := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str(&c.Storage.Postgres.Host, "DB_HOST")
	str(&c.Storage.Postgres.DBName, "DB_NAME")
	str(&c.Storage.Postgres.User, "DB_USER")
	str(&c.Storage.Postgres.Password, "DB_PASSWORD")
	str(&c.Storage.DBPath, "STOREPULSE_DB_PATH")
	str(&c.Storage.Driver, "STOREPULSE_DB_DRIVER")
	str(&c.Metrics.Addr, "METRICS_ADDR")
	str(&c.Logging.Level, "LOG_LEVEL")
	if v, err := strconv.Atoi(os.Getenv("DB_PORT")); err == nil && v > 0 {
		c.Storage.Postgres.Port = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("API_RPS"), 64); err == nil && v > 0 {
		c.Server.RPS = v
	}
	if v, err := strconv.Atoi(os.Getenv("API_BURST")); err == nil && v > 0 {
		c.Server.Burst = v
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads YAML config from path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// GroupBy parses the report grouping.
func (c Config) GroupBy() (analytics.GroupBy, error) {
	return analytics.ParseGroupBy(strings.Join(c.Report.GroupBy, ","), c.Report.Period)
}

// EngineOptions converts the analytics and report sections into run options.
// Malformed values surface as *model.ConfigurationError.
func (c Config) EngineOptions() (engine.Options, error) {
	a := c.Analytics
	opts := engine.Options{
		LookbackWindow:            a.LookbackWindow,
		HighConfidenceWindow:      a.HighConfidenceWindow,
		MinSample:                 a.MinSample,
		StaticEngagementThreshold: a.StaticEngagementThreshold,
		StaticSaveThreshold:       a.StaticSaveThreshold,
		HistoryWindow:             a.HistoryWindow,
		Accounts:                  a.Accounts,
		Workers:                   a.Workers,
	}
	for _, raw := range a.TypeOrder {
		t, ok := model.ParseAttributionType(raw)
		if !ok {
			return engine.Options{}, &model.ConfigurationError{Field: "analytics.typeOrder", Reason: fmt.Sprintf("unknown attribution type %q", raw)}
		}
		opts.TypeOrder = append(opts.TypeOrder, t)
	}
	if a.AsOfDate != "" {
		t, err := time.Parse("2006-01-02", a.AsOfDate)
		if err != nil {
			return engine.Options{}, &model.ConfigurationError{Field: "analytics.asOfDate", Reason: err.Error()}
		}
		opts.AsOf = t
	}
	by, err := c.GroupBy()
	if err != nil {
		return engine.Options{}, &model.ConfigurationError{Field: "report.groupBy", Reason: err.Error()}
	}
	opts.GroupBy = by
	return opts, opts.Validate()
}
