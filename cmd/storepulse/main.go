package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"storepulse/internal/analytics"
	"storepulse/internal/api"
	"storepulse/internal/cmdlog"
	"storepulse/internal/config"
	"storepulse/internal/engine"
	"storepulse/internal/ingest"
	"storepulse/internal/jobs"
	"storepulse/internal/logging"
	"storepulse/internal/metrics"
	"storepulse/internal/model"
	"storepulse/internal/schedule"
	"storepulse/internal/store/pgstore"
	"storepulse/internal/store/sqlitestore"
	"storepulse/internal/theme"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "import":
		cmdImport()
	case "analyze":
		cmdAnalyze()
	case "flags":
		cmdFlags()
	case "attribute":
		cmdAttribute()
	case "report":
		cmdReport()
	case "serve":
		cmdServe()
	case "schedule":
		cmdSchedule()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: storepulse <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./storepulse.yaml")
	fmt.Println("  import      Load a YAML/JSON export bundle into the local store")
	fmt.Println("  analyze     Run normalization, virality, and attribution once")
	fmt.Println("  flags       List rising and viral posts")
	fmt.Println("  attribute   List order attributions")
	fmt.Println("  report      Print the grouped report or a post's daily trend")
	fmt.Println("  serve       Serve the report API with scheduled runs")
	fmt.Println("  schedule    Show the next run window and last run")
}

func fail(err error) {
	fmt.Println("error:", err)
	os.Exit(1)
}

// loadConfig reads .env, then the YAML config. A missing config file falls
// back to defaults so env-only deployments work.
func loadConfig(path string) config.Config {
	if err := config.LoadDotEnv(); err != nil {
		fail(err)
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		cfg.ResolveEnv()
	} else if err != nil {
		fail(err)
	}
	logging.SetLevel(cfg.Logging.Level)
	metrics.StartServer(cfg.Metrics.Addr)
	return cfg
}

type source interface {
	jobs.Source
	Close() error
}

func openSource(cfg config.Config) source {
	switch cfg.Storage.Driver {
	case "postgres":
		s, err := pgstore.Connect(cfg.Storage.Postgres)
		if err != nil {
			fail(err)
		}
		return s
	case "", "sqlite":
		db, err := sqlitestore.Open(cfg.Storage.DBPath)
		if err != nil {
			fail(err)
		}
		return db
	}
	fail(fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver))
	return nil
}

func engineOptions(cfg config.Config, asOf string) engine.Options {
	if asOf != "" {
		cfg.Analytics.AsOfDate = asOf
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		fail(err)
	}
	return opts
}

func history(cfg config.Config) time.Duration {
	return time.Duration(cfg.Schedule.HistoryDays) * 24 * time.Hour
}

// runOnce runs the engine against the configured store under cmdlog. Only
// save writes attributions back; listing commands leave the store untouched.
func runOnce(name string, cfg config.Config, opts engine.Options, save bool) engine.Output {
	src := openSource(cfg)
	defer src.Close()
	var out engine.Output
	err := cmdlog.Run(name, func() error {
		var err error
		if save {
			out, err = jobs.RunAnalyticsOnce(context.Background(), src, opts, history(cfg))
		} else {
			out, err = jobs.Analyze(context.Background(), src, opts, history(cfg))
		}
		return err
	})
	if err != nil {
		fail(err)
	}
	return out
}

func tierFloor(s string) (model.ViralTier, error) {
	if t := model.ViralTier(s); t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("unknown tier %q (want not_viral, rising, viral)", s)
}

func confidenceFloor(s string) (model.Confidence, error) {
	if c := model.Confidence(s); c.Valid() {
		return c, nil
	}
	return "", fmt.Errorf("unknown confidence %q (want none, low, medium, high)", s)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cmdInit() {
	out := flag.NewFlagSet("init", flag.ExitOnError)
	path := out.String("path", "./storepulse.yaml", "path to write config")
	_ = out.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fail(err)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	cfgPath := fs.String("config", "./storepulse.yaml", "config path")
	file := fs.String("file", "", "bundle file (.yaml or .json)")
	_ = fs.Parse(os.Args[2:])
	if *file == "" {
		fail(errors.New("-file is required"))
	}
	cfg := loadConfig(*cfgPath)
	db, err := sqlitestore.Open(cfg.Storage.DBPath)
	if err != nil {
		fail(err)
	}
	defer db.Close()
	err = cmdlog.Run("import", func() error {
		b, err := ingest.ReadFile(*file)
		if err != nil {
			return err
		}
		c, err := ingest.Import(context.Background(), db, b)
		if err != nil {
			return err
		}
		fmt.Printf("imported posts=%d snapshots=%d customers=%d orders=%d rejected=%d\n", c.Posts, c.Snapshots, c.Customers, c.Orders, c.Rejected)
		return nil
	})
	if err != nil {
		fail(err)
	}
}

func cmdAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	cfgPath := fs.String("config", "./storepulse.yaml", "config path")
	asOf := fs.String("as-of", "", "snapshot date YYYY-MM-DD (default latest)")
	top := fs.Int("top", 0, "top groups to show (default from config)")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	out := runOnce("analyze", cfg, engineOptions(cfg, *asOf), true)

	fmt.Printf("run %s: %d posts scored, %d skipped, %d data warnings, %d orders\n",
		out.RunID, len(out.Records), len(out.Failures), len(out.Warnings), len(out.Attributions))
	for _, f := range out.Failures {
		fmt.Println("  skipped:", f)
	}
	for _, w := range out.Warnings {
		fmt.Println("  warning:", w)
	}
	n := *top
	if n <= 0 {
		n = cfg.Report.Top
	}
	for _, s := range analytics.TopGroups(out.Report, n) {
		fmt.Printf("%-10s %-12s %-10s %-9s posts=%d mean=%.4f median=%.4f viral=%d rising=%d attributed=%d/%d revenue=%.2f\n",
			s.Platform, s.Location, s.Period, s.ContentType, s.Posts, s.MeanEngagement, s.MedianEngagement,
			s.Viral, s.Rising, s.AttributedOrders, s.TotalOrders, float64(s.AttributedRevenueCents)/100)
	}
}

func cmdFlags() {
	fs := flag.NewFlagSet("flags", flag.ExitOnError)
	cfgPath := fs.String("config", "./storepulse.yaml", "config path")
	asOf := fs.String("as-of", "", "snapshot date YYYY-MM-DD (default latest)")
	tier := fs.String("tier", string(model.TierRising), "minimum tier: not_viral, rising, viral")
	_ = fs.Parse(os.Args[2:])
	floor, err := tierFloor(*tier)
	if err != nil {
		fail(err)
	}
	cfg := loadConfig(*cfgPath)
	out := runOnce("flags", cfg, engineOptions(cfg, *asOf), false)
	for _, f := range out.Flags {
		if f.Tier.Rank() < floor.Rank() {
			continue
		}
		mode := "percentile"
		if f.Reference.Static {
			mode = "static"
		}
		fmt.Printf("%-20s %-9s %s n=%d\n", f.PostID, f.Tier, mode, f.Reference.SampleSize)
		for _, tr := range f.Triggers {
			fmt.Printf("    %s=%.4f >= %.4f\n", tr.Metric, tr.Value, tr.Threshold)
		}
	}
}

func cmdAttribute() {
	fs := flag.NewFlagSet("attribute", flag.ExitOnError)
	cfgPath := fs.String("config", "./storepulse.yaml", "config path")
	conf := fs.String("confidence", string(model.ConfidenceLow), "minimum confidence: none, low, medium, high")
	asJSON := fs.Bool("json", false, "print JSON")
	_ = fs.Parse(os.Args[2:])
	floor, err := confidenceFloor(*conf)
	if err != nil {
		fail(err)
	}
	cfg := loadConfig(*cfgPath)
	out := runOnce("attribute", cfg, engineOptions(cfg, ""), false)
	var shown []model.AttributionResult
	for _, a := range out.Attributions {
		if a.Confidence.Rank() >= floor.Rank() {
			shown = append(shown, a)
		}
	}
	if *asJSON {
		printJSON(shown)
		return
	}
	for _, a := range shown {
		fmt.Printf("%-12s %-8s %-16s post=%s (%s)\n", a.OrderID, a.Confidence, a.Type, a.PostID, a.Reason)
	}
}

func cmdReport() {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	cfgPath := fs.String("config", "./storepulse.yaml", "config path")
	groupBy := fs.String("group-by", "", "dimensions, e.g. platform,period (default from config)")
	period := fs.String("period", "", "day, week, or month (default from config)")
	post := fs.String("post", "", "print the daily trend of one post instead")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)

	if *post != "" {
		src := openSource(cfg)
		defer src.Close()
		in, err := src.LoadInput(context.Background(), engine.Window{})
		if err != nil {
			fail(err)
		}
		for _, p := range in.Posts {
			if p.ID == *post {
				printJSON(analytics.DailySeries(p, in.Snapshots))
				return
			}
		}
		fail(fmt.Errorf("post %s not found", *post))
	}

	if *groupBy != "" {
		cfg.Report.GroupBy = []string{*groupBy}
	}
	if *period != "" {
		cfg.Report.Period = *period
	}
	out := runOnce("report", cfg, engineOptions(cfg, ""), false)
	printJSON(map[string]any{"runId": out.RunID, "groupBy": out.Report.GroupBy, "groups": out.Report.Summaries()})
}

func cmdServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./storepulse.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	opts := engineOptions(cfg, "")
	src := openSource(cfg)
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	latest := &api.Latest{}
	go func() {
		_ = jobs.RunAnalyticsLoop(ctx, src, opts, history(cfg), cfg.Schedule.Interval, cfg.Schedule.QuietHours, latest.Set)
	}()
	router := api.NewRouter(latest, api.NewLimiter(cfg.Server.RPS, cfg.Server.Burst))
	logging.Info("serve", map[string]any{"addr": cfg.Server.Addr})
	errc := make(chan error, 1)
	go func() { errc <- router.Run(cfg.Server.Addr) }()
	select {
	case <-ctx.Done():
	case err := <-errc:
		fail(err)
	}
}

func cmdSchedule() {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	cfgPath := fs.String("config", "./storepulse.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	now := time.Now().UTC()
	next := schedule.NextWindow(now, cfg.Schedule.QuietHours)
	fmt.Println("Next run window:", next.Format(time.RFC3339))
	fmt.Println("Interval:", cfg.Schedule.Interval)
	if cfg.Storage.Driver == "" || cfg.Storage.Driver == "sqlite" {
		db, err := sqlitestore.Open(cfg.Storage.DBPath)
		if err != nil {
			fail(err)
		}
		defer db.Close()
		last, err := db.LoadCursor(context.Background(), "analytics:last_run")
		if err != nil {
			fail(err)
		}
		if last == "" {
			last = "never"
		}
		fmt.Println("Last run:", last)
	}
}
