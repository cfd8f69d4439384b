// README: Smoke and load runner against a live kitchenline-api; prints one line per case and a summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bench := NewRunner(cfg)
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case statusPass:
			pass++
		case statusFail:
			fail++
		case statusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 || (cfg.Strict && skipped > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL        string
	DSN            string
	RedisAddr      string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("KITCHENLINE_BENCH_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", envOrDefault("KITCHENLINE_DB_DSN", ""), "Postgres DSN (empty skips DB cases)")
	flag.StringVar(&cfg.RedisAddr, "redis", envOrDefault("KITCHENLINE_REDIS_ADDR", ""), "Redis address (empty skips Redis cases)")
	flag.StringVar(&cfg.MigrationPath, "migration", envOrDefault("KITCHENLINE_BENCH_MIGRATION", "migrations/0001_init.sql"), "Migration SQL path")
	flag.BoolVar(&cfg.ApplyMigration, "apply-migration", envOrDefaultBool("KITCHENLINE_BENCH_APPLY_MIGRATION", false), "Apply migration SQL before the cases")
	flag.BoolVar(&cfg.Strict, "strict", envOrDefaultBool("KITCHENLINE_BENCH_STRICT", false), "Fail when cases are skipped")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("KITCHENLINE_BENCH_TIMEOUT", 60*time.Second), "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", envOrDefaultInt("KITCHENLINE_BENCH_CONCURRENCY", 20), "Concurrency for race and load cases")
	flag.DurationVar(&cfg.Duration, "duration", envOrDefaultDuration("KITCHENLINE_BENCH_DURATION", 10*time.Second), "Duration for load cases")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "1" || v == "true" || v == "yes"
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
