package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"storepulse/internal/analytics"
	"storepulse/internal/model"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "analytics:\n  lookbackWindow: 72h\n  asOfDate: \"2025-05-01\"\nreport:\n  groupBy: [location, content_type]\n  period: month\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Analytics.LookbackWindow != 72*time.Hour {
		t.Fatalf("lookback = %s", cfg.Analytics.LookbackWindow)
	}
	if cfg.Analytics.MinSample != 10 || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		t.Fatal(err)
	}
	if !opts.AsOf.Equal(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("asOf = %s", opts.AsOf)
	}
	if opts.GroupBy.Period != analytics.PeriodMonth || !opts.GroupBy.Has(analytics.DimContentType) || opts.GroupBy.Has(analytics.DimPlatform) {
		t.Fatalf("group by = %+v", opts.GroupBy)
	}
	if len(opts.TypeOrder) != 2 || opts.TypeOrder[0] != model.AttrDirectMessage {
		t.Fatalf("type order = %v", opts.TypeOrder)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Analytics.Accounts = []string{"shop_ig"}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Analytics.HighConfidenceWindow != 48*time.Hour || len(got.Analytics.Accounts) != 1 {
		t.Fatalf("round trip: %+v", got.Analytics)
	}
	if err := Save("", cfg); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("API_RPS", "2.5")
	t.Setenv("API_BURST", "nope")
	cfg := Default()
	cfg.ResolveEnv()
	pg := cfg.Storage.Postgres
	if pg.Host != "db.internal" || pg.Port != 6543 || pg.Password != "s3cret" {
		t.Fatalf("postgres = %+v", pg)
	}
	if cfg.Server.RPS != 2.5 || cfg.Server.Burst != 10 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	want := "host=db.internal port=6543 dbname=social_commerce user=postgres password=s3cret sslmode=disable"
	if got := pg.DSN(); got != want {
		t.Fatalf("dsn = %q", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DB_NAME=from_dotenv\nDB_USER=dotenv_user\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DB_USER", "already_set")
	t.Setenv("DB_NAME", "")
	os.Unsetenv("DB_NAME")
	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("DB_NAME") != "from_dotenv" {
		t.Fatalf("DB_NAME = %q", os.Getenv("DB_NAME"))
	}
	if os.Getenv("DB_USER") != "already_set" {
		t.Fatalf("existing variables must win, DB_USER = %q", os.Getenv("DB_USER"))
	}
}

func TestEngineOptionsErrors(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"analytics.typeOrder": func(c *Config) { c.Analytics.TypeOrder = []string{"smoke_signal"} },
		"analytics.asOfDate":  func(c *Config) { c.Analytics.AsOfDate = "05/01/2025" },
		"report.groupBy":      func(c *Config) { c.Report.GroupBy = []string{"region"} },
		"min_sample":          func(c *Config) { c.Analytics.MinSample = 0 },
	} {
		cfg := Default()
		mutate(&cfg)
		_, err := cfg.EngineOptions()
		var ce *model.ConfigurationError
		if !errors.As(err, &ce) || ce.Field != name {
			t.Fatalf("%s: got %v", name, err)
		}
	}
}
