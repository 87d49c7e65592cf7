package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aluiziolira/go-scrape-registry/browser"
)

// DefaultConfigPath is read when no --config flag is given. A missing file
// there is not an error.
const DefaultConfigPath = "configs/config.yaml"

// Supported output formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Selectors holds the portal markup contract as "strategy=value" locators.
type Selectors struct {
	PageSizeControl string `yaml:"page_size_control"`
	PageSizeOption  string `yaml:"page_size_option"`
	PageInput       string `yaml:"page_input"`
	LastPage        string `yaml:"last_page"`
	NextPage        string `yaml:"next_page"`
	Table           string `yaml:"table"`
	Row             string `yaml:"row"`
	Cell            string `yaml:"cell"`
	CellContent     string `yaml:"cell_content"`
	Marker          string `yaml:"marker"`
}

// Browser configures the live browser session.
type Browser struct {
	Name     string `yaml:"name"`
	Channel  string `yaml:"channel"`
	Headless bool   `yaml:"headless"`
	SlowMoMS int    `yaml:"slow_mo_ms"`
	Install  bool   `yaml:"install"`
}

// Config holds scraper configuration.
type Config struct {
	TargetURL string `yaml:"target_url"`
	StartPage int    `yaml:"start_page_num"`
	// EndPage bounds the run; 0 scrapes through the last page.
	EndPage int `yaml:"end_page_num"`

	// MinWait bounds control-level waits, AvgWait element presence and
	// MaxWait whole page loads.
	MinWait        time.Duration `yaml:"-"`
	AvgWait        time.Duration `yaml:"-"`
	MaxWait        time.Duration `yaml:"-"`
	PollInterval   time.Duration `yaml:"-"`
	PageSizeSettle time.Duration `yaml:"-"`

	Countries     map[string]string `yaml:"id2country"`
	Headers       []string          `yaml:"headers"`
	XLSXPath      string            `yaml:"xlsx_path"`
	XLSXPageTitle string            `yaml:"xlsx_page_title"`
	OutputFormat  string            `yaml:"output_format"` // comma list of xlsx, csv, json

	FingerprintCacheSize int `yaml:"fingerprint_cache_size"`

	Selectors Selectors `yaml:"selectors"`
	Browser   Browser   `yaml:"browser"`
	UserAgent string    `yaml:"user_agent"`

	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     bool   `yaml:"verbose"`
}

// overrides carries the YAML fields that are not decoded straight into
// Config: durations, and the country map, which replaces the defaults
// instead of merging into them.
type overrides struct {
	Countries        *map[string]string `yaml:"id2country"`
	MinWait          *float64 `yaml:"min_wait_time"`
	AvgWait          *float64 `yaml:"avg_wait_time"`
	MaxWait          *float64 `yaml:"max_wait_time"`
	PollIntervalMS   *int     `yaml:"poll_interval_ms"`
	PageSizeSettleMS *int     `yaml:"page_size_settle_ms"`
}

// DefaultConfig returns the settings for the EAEU drug registry portal.
func DefaultConfig() *Config {
	return &Config{
		TargetURL:      "https://portal.eaeunion.org/sites/commonprocesses/ru-ru/Pages/DrugRegistrationDetails.aspx",
		StartPage:      1,
		EndPage:        0,
		MinWait:        10 * time.Second,
		AvgWait:        120 * time.Second,
		MaxWait:        500 * time.Second,
		PollInterval:   browser.DefaultPollInterval,
		PageSizeSettle: 2 * time.Second,
		Countries: map[string]string{
			"am": "Армения",
			"by": "Беларусь",
			"kz": "Казахстан",
			"kg": "Кыргызстан",
			"ru": "Россия",
		},
		Headers: []string{
			"registration_countries",
			"trade_name",
			"international_name",
			"dosage_form",
			"manufacturer",
			"certificate",
			"updated_at",
		},
		XLSXPath:             "output/registry.xlsx",
		XLSXPageTitle:        "Registry",
		OutputFormat:         FormatXLSX,
		FingerprintCacheSize: 256,
		Selectors: Selectors{
			PageSizeControl: "id=ComboBox1-input",
			PageSizeOption:  "id=ComboBox1-list4",
			PageInput:       "class=ecc-page-number-input",
			LastPage:        "class=eec-page-count",
			NextPage:        "class=arrow-right",
			Table:           "xpath=//tbody",
			Row:             "tag=tr",
			Cell:            "tag=td",
			CellContent:     "xpath=.//div",
			Marker:          "tag=span",
		},
		Browser: Browser{
			Name:     "chromium",
			Headless: true,
		},
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	}
}

// Load builds a configuration from defaults, the YAML file at path and the
// environment, in that order of precedence. A .env file in the working
// directory is loaded first when present. An empty path reads
// DefaultConfigPath if it exists.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()

	optional := path == ""
	if optional {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.applyYAML(data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyYAML(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	var t overrides
	if err := yaml.Unmarshal(data, &t); err != nil {
		return err
	}
	if t.Countries != nil {
		c.Countries = *t.Countries
	}
	if t.MinWait != nil {
		c.MinWait = seconds(*t.MinWait)
	}
	if t.AvgWait != nil {
		c.AvgWait = seconds(*t.AvgWait)
	}
	if t.MaxWait != nil {
		c.MaxWait = seconds(*t.MaxWait)
	}
	if t.PollIntervalMS != nil {
		c.PollInterval = time.Duration(*t.PollIntervalMS) * time.Millisecond
	}
	if t.PageSizeSettleMS != nil {
		c.PageSizeSettle = time.Duration(*t.PageSizeSettleMS) * time.Millisecond
	}
	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (c *Config) applyEnv() error {
	if value, ok, err := EnvInt("SCRAPER_START_PAGE"); err != nil {
		return err
	} else if ok {
		c.StartPage = value
	}
	if value, ok, err := EnvInt("SCRAPER_END_PAGE"); err != nil {
		return err
	} else if ok {
		c.EndPage = value
	}
	if value, ok, err := EnvBool("SCRAPER_HEADLESS"); err != nil {
		return err
	} else if ok {
		c.Browser.Headless = value
	}
	if value, ok := EnvString("SCRAPER_OUTPUT"); ok {
		c.XLSXPath = value
	}
	if value, ok := EnvString("SCRAPER_FORMAT"); ok {
		c.OutputFormat = value
	}
	if value, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	if value, ok := EnvString("SCRAPER_TARGET_URL"); ok {
		c.TargetURL = value
	}
	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, true, nil
}

// EnvBool parses key as a boolean when it is set.
func EnvBool(key string) (bool, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, true, nil
}

// Locators are the parsed Selectors.
type Locators struct {
	PageSizeControl browser.Locator
	PageSizeOption  browser.Locator
	PageInput       browser.Locator
	LastPage        browser.Locator
	NextPage        browser.Locator
	Table           browser.Locator
	Row             browser.Locator
	Cell            browser.Locator
	CellContent     browser.Locator
	Marker          browser.Locator
}

// Locators parses every selector.
func (c *Config) Locators() (Locators, error) {
	var l Locators
	fields := []struct {
		name  string
		value string
		dst   *browser.Locator
	}{
		{"page_size_control", c.Selectors.PageSizeControl, &l.PageSizeControl},
		{"page_size_option", c.Selectors.PageSizeOption, &l.PageSizeOption},
		{"page_input", c.Selectors.PageInput, &l.PageInput},
		{"last_page", c.Selectors.LastPage, &l.LastPage},
		{"next_page", c.Selectors.NextPage, &l.NextPage},
		{"table", c.Selectors.Table, &l.Table},
		{"row", c.Selectors.Row, &l.Row},
		{"cell", c.Selectors.Cell, &l.Cell},
		{"cell_content", c.Selectors.CellContent, &l.CellContent},
		{"marker", c.Selectors.Marker, &l.Marker},
	}
	for _, f := range fields {
		loc, err := browser.ParseLocator(f.value)
		if err != nil {
			return Locators{}, fmt.Errorf("selector %s: %w", f.name, err)
		}
		*f.dst = loc
	}
	return l, nil
}

// Formats returns the normalized output formats in declaration order,
// without duplicates.
func (c *Config) Formats() []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(c.OutputFormat, ",") {
		format := strings.ToLower(strings.TrimSpace(part))
		if format == "" || seen[format] {
			continue
		}
		seen[format] = true
		out = append(out, format)
	}
	return out
}

// OutputPath returns the file written for format. The csv and json outputs
// sit next to the xlsx path with their own extension.
func (c *Config) OutputPath(format string) string {
	base := strings.TrimSuffix(c.XLSXPath, filepath.Ext(c.XLSXPath))
	switch format {
	case FormatCSV:
		return base + ".csv"
	case FormatJSON:
		return base + ".jsonl"
	default:
		return c.XLSXPath
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.TargetURL == "" {
		return fmt.Errorf("target URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.TargetURL)
	if err != nil {
		return fmt.Errorf("invalid target URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("target URL must include a host")
	}

	if c.StartPage < 1 {
		return fmt.Errorf("start page must be at least 1")
	}
	if c.EndPage < 0 {
		return fmt.Errorf("end page cannot be negative")
	}
	if c.EndPage > 0 && c.EndPage < c.StartPage {
		return fmt.Errorf("end page (%d) cannot precede start page (%d)", c.EndPage, c.StartPage)
	}

	if c.MinWait <= 0 || c.AvgWait <= 0 || c.MaxWait <= 0 {
		return fmt.Errorf("wait times must be positive")
	}
	if c.MinWait > c.AvgWait || c.AvgWait > c.MaxWait {
		return fmt.Errorf("wait times must satisfy min (%s) <= avg (%s) <= max (%s)", c.MinWait, c.AvgWait, c.MaxWait)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.PageSizeSettle < 0 {
		return fmt.Errorf("page size settle delay cannot be negative")
	}

	if len(c.Headers) == 0 {
		return fmt.Errorf("headers cannot be empty")
	}
	for i, h := range c.Headers {
		if strings.TrimSpace(h) == "" {
			return fmt.Errorf("header %d is blank", i+1)
		}
	}

	if c.XLSXPath == "" {
		return fmt.Errorf("output path cannot be empty")
	}
	if c.XLSXPageTitle == "" {
		return fmt.Errorf("sheet title cannot be empty")
	}
	if utf8.RuneCountInString(c.XLSXPageTitle) > 31 {
		return fmt.Errorf("sheet title %q exceeds 31 characters", c.XLSXPageTitle)
	}
	if strings.ContainsAny(c.XLSXPageTitle, `:\/?*[]`) {
		return fmt.Errorf("sheet title %q contains a character not allowed in sheet names", c.XLSXPageTitle)
	}

	formats := c.Formats()
	if len(formats) == 0 {
		return fmt.Errorf("output format cannot be empty")
	}
	for _, f := range formats {
		if f != FormatXLSX && f != FormatCSV && f != FormatJSON {
			return fmt.Errorf("output format must be a comma list of xlsx, csv or json, got %q", f)
		}
	}

	if c.FingerprintCacheSize <= 0 {
		return fmt.Errorf("fingerprint cache size must be positive")
	}

	if _, err := c.Locators(); err != nil {
		return err
	}

	switch c.Browser.Name {
	case "chromium", "firefox", "webkit":
	default:
		return fmt.Errorf("browser must be chromium, firefox or webkit, got %q", c.Browser.Name)
	}
	if c.Browser.SlowMoMS < 0 {
		return fmt.Errorf("browser slow-mo cannot be negative")
	}

	return nil
}
