package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-registry/browser"
	"github.com/aluiziolira/go-scrape-registry/parser"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty target url",
			mutate: func(cfg *Config) {
				cfg.TargetURL = ""
			},
			wantErr: "target URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.TargetURL = "http://"
			},
			wantErr: "target URL",
		},
		{
			name: "zero start page",
			mutate: func(cfg *Config) {
				cfg.StartPage = 0
			},
			wantErr: "start page",
		},
		{
			name: "end before start",
			mutate: func(cfg *Config) {
				cfg.StartPage = 5
				cfg.EndPage = 3
			},
			wantErr: "end page",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.MinWait = -1 * time.Second
			},
			wantErr: "wait times",
		},
		{
			name: "wait tiers out of order",
			mutate: func(cfg *Config) {
				cfg.AvgWait = time.Hour
			},
			wantErr: "min",
		},
		{
			name: "no headers",
			mutate: func(cfg *Config) {
				cfg.Headers = nil
			},
			wantErr: "headers",
		},
		{
			name: "long sheet title",
			mutate: func(cfg *Config) {
				cfg.XLSXPageTitle = strings.Repeat("Реестр", 6)
			},
			wantErr: "31 characters",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xlsx,parquet"
			},
			wantErr: "parquet",
		},
		{
			name: "bad selector",
			mutate: func(cfg *Config) {
				cfg.Selectors.NextPage = "arrow-right"
			},
			wantErr: "next_page",
		},
		{
			name: "unknown browser",
			mutate: func(cfg *Config) {
				cfg.Browser.Name = "netscape"
			},
			wantErr: "browser",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
start_page_num: 4
end_page_num: 9
min_wait_time: 1
avg_wait_time: 2.5
max_wait_time: 30
poll_interval_ms: 50
xlsx_path: out/drugs.xlsx
output_format: xlsx, csv
id2country:
  uz: Узбекистан
selectors:
  table: css=table.grid tbody
browser:
  name: firefox
  headless: false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.StartPage != 4 || cfg.EndPage != 9 {
		t.Fatalf("pages=%d..%d, want 4..9", cfg.StartPage, cfg.EndPage)
	}
	if cfg.AvgWait != 2500*time.Millisecond {
		t.Fatalf("avg wait=%v, want 2.5s", cfg.AvgWait)
	}
	if cfg.PollInterval != 50*time.Millisecond {
		t.Fatalf("poll interval=%v, want 50ms", cfg.PollInterval)
	}
	if cfg.PageSizeSettle != DefaultConfig().PageSizeSettle {
		t.Fatalf("settle delay should keep its default, got %v", cfg.PageSizeSettle)
	}
	if diff := cmp.Diff(map[string]string{"uz": "Узбекистан"}, cfg.Countries); diff != "" {
		t.Fatalf("countries should replace the defaults (-want +got):\n%s", diff)
	}
	if cfg.Browser.Name != "firefox" || cfg.Browser.Headless {
		t.Fatalf("browser=%+v", cfg.Browser)
	}
	if diff := cmp.Diff([]string{"xlsx", "csv"}, cfg.Formats()); diff != "" {
		t.Fatalf("formats mismatch (-want +got):\n%s", diff)
	}

	locs, err := cfg.Locators()
	if err != nil {
		t.Fatalf("locators: %v", err)
	}
	if locs.Table != browser.CSS("table.grid tbody") {
		t.Fatalf("table locator=%v", locs.Table)
	}
	if locs.Row != browser.Tag("tr") {
		t.Fatalf("row locator should keep its default, got %v", locs.Row)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestLoadYAMLCountriesReplaceDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("id2country:\n  ru: Russia\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"ru": "Russia"}, cfg.Countries); diff != "" {
		t.Fatalf("countries mismatch (-want +got):\n%s", diff)
	}
	countries := parser.CountryMap(cfg.Countries)
	if got := countries.Name("kz"); got != "kz" {
		t.Fatalf("unconfigured code should pass through, got %q", got)
	}
	if got := countries.Name("ru"); got != "Russia" {
		t.Fatalf("configured code=%q, want Russia", got)
	}

	empty := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(empty, []byte("start_page_num: 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = Load(empty)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Countries["kz"] != "Казахстан" {
		t.Fatalf("config without id2country should keep the defaults, got %v", cfg.Countries)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("start_page_num: 4\nxlsx_path: a.xlsx\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SCRAPER_START_PAGE", "12")
	t.Setenv("SCRAPER_OUTPUT", "b.xlsx")
	t.Setenv("SCRAPER_HEADLESS", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StartPage != 12 {
		t.Fatalf("start page=%d, want 12", cfg.StartPage)
	}
	if cfg.XLSXPath != "b.xlsx" {
		t.Fatalf("xlsx path=%q, want b.xlsx", cfg.XLSXPath)
	}
	if cfg.Browser.Headless {
		t.Fatalf("headless should be overridden to false")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("explicit missing config should fail")
	}

	t.Setenv("SCRAPER_END_PAGE", "ten")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "SCRAPER_END_PAGE") {
		t.Fatalf("expected env parse error, got %v", err)
	}
}

func TestOutputPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.XLSXPath = "out/registry.xlsx"

	tests := map[string]string{
		FormatXLSX: "out/registry.xlsx",
		FormatCSV:  "out/registry.csv",
		FormatJSON: "out/registry.jsonl",
	}
	for format, want := range tests {
		if got := cfg.OutputPath(format); got != want {
			t.Fatalf("OutputPath(%s)=%q, want %q", format, got, want)
		}
	}
}
