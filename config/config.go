package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"metal-price-scraper/models"
	scrapeerrors "metal-price-scraper/pkg/errors"
)

const (
	BackendCSV      = "csv"
	BackendPostgres = "postgres"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	BaseURL     string
	ArchivePath string

	YearStart  int
	YearEnd    int
	Currencies []models.Currency

	MaxRetries  int
	RateLimitMs int

	PageLoadTimeout time.Duration
	ScriptTimeout   time.Duration
	Timeouts        Timeouts
	Pauses          Pauses
	Selectors       Selectors

	Headless  bool
	ChromeBin string
	UserAgent string

	LinksPath      string
	DatasetPath    string
	DatasetBackend string
	CheckpointPath string
	SkipCompleted  bool

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

// Timeouts bound every wait the scrapers perform.
type Timeouts struct {
	ArchiveReady  time.Duration
	DetailReady   time.Duration
	YearHeader    time.Duration
	YearVisible   time.Duration
	PanelVisible  time.Duration
	Dropdown      time.Duration
	Spinner       time.Duration
	SelectConfirm time.Duration
	TableVisible  time.Duration
	TableRows     time.Duration
	Poll          time.Duration
}

// Pauses are fixed sleeps that let client-side scripts settle.
type Pauses struct {
	AfterScroll time.Duration
	AfterExpand time.Duration
	AfterSelect time.Duration
	BeforeTable time.Duration
}

// Selectors describe the target site's layout. Queries beginning with "/" are
// XPath, everything else is CSS. "{year}" is replaced with the year.
type Selectors struct {
	ArchiveReady     string
	YearHeader       string
	YearPanel        string
	DetailLinkMarker string
	DetailReady      []string
	PriceTable       string
	CurrencySelect   string
	Spinner          string
	AdMarkers        []string
}

// ForYear expands the "{year}" placeholder in a selector template.
func ForYear(template string, year int) string {
	return strings.ReplaceAll(template, "{year}", strconv.Itoa(year))
}

// Defaults returns the configuration used when no environment overrides exist.
func Defaults() *Config {
	return &Config{
		BaseURL:     "https://www.dailymetalprice.com",
		ArchivePath: "/datearchive.php",

		YearStart:  2011,
		YearEnd:    2025,
		Currencies: append([]models.Currency(nil), models.DefaultCurrencies...),

		MaxRetries:  3,
		RateLimitMs: 2000,

		PageLoadTimeout: 45 * time.Second,
		ScriptTimeout:   30 * time.Second,
		Timeouts: Timeouts{
			ArchiveReady:  10 * time.Second,
			DetailReady:   30 * time.Second,
			YearHeader:    15 * time.Second,
			YearVisible:   10 * time.Second,
			PanelVisible:  10 * time.Second,
			Dropdown:      20 * time.Second,
			Spinner:       15 * time.Second,
			SelectConfirm: 15 * time.Second,
			TableVisible:  25 * time.Second,
			TableRows:     15 * time.Second,
			Poll:          250 * time.Millisecond,
		},
		Pauses: Pauses{
			AfterScroll: 500 * time.Millisecond,
			AfterExpand: time.Second,
			AfterSelect: 2 * time.Second,
			BeforeTable: 1500 * time.Millisecond,
		},
		Selectors: Selectors{
			ArchiveReady:     "#accordion",
			YearHeader:       "//div[@id='heading{year}']/h4/a[contains(@href, '#collapse{year}')]",
			YearPanel:        "#collapse{year}",
			DetailLinkMarker: "/metaltables.php?d=",
			DetailReady:      []string{"table.table-striped", "#x"},
			PriceTable:       "table.table-striped",
			CurrencySelect:   "#x",
			Spinner:          ".spinner",
			AdMarkers:        []string{"google-auto-placed", "adsbygoogle"},
		},

		Headless: true,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",

		LinksPath:      "./output/date_links.csv",
		DatasetPath:    "./output/metal_prices.csv",
		DatasetBackend: BackendCSV,
		CheckpointPath: "./output/progress.db",
		SkipCompleted:  true,

		PostgresHost:    "localhost",
		PostgresPort:    "5432",
		PostgresUser:    "scraper",
		PostgresDB:      "metal_prices",
		PostgresSSLMode: "disable",
	}
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	d := Defaults()
	cfg := *d

	cfg.BaseURL = strings.TrimRight(getEnv("BASE_URL", d.BaseURL), "/")
	cfg.ArchivePath = getEnv("ARCHIVE_PATH", d.ArchivePath)

	cfg.YearStart = getEnvInt("YEAR_START", d.YearStart)
	cfg.YearEnd = getEnvInt("YEAR_END", d.YearEnd)
	cfg.Currencies = getEnvCurrencies("CURRENCIES", d.Currencies)

	cfg.MaxRetries = getEnvInt("MAX_RETRIES", d.MaxRetries)
	cfg.RateLimitMs = getEnvInt("RATE_LIMIT_MS", d.RateLimitMs)

	cfg.PageLoadTimeout = getEnvSeconds("PAGE_LOAD_TIMEOUT_SECONDS", d.PageLoadTimeout)
	cfg.ScriptTimeout = getEnvSeconds("SCRIPT_TIMEOUT_SECONDS", d.ScriptTimeout)
	cfg.Timeouts.DetailReady = getEnvSeconds("READY_TIMEOUT_SECONDS", d.Timeouts.DetailReady)

	cfg.Headless = getEnvBool("HEADLESS", d.Headless)
	cfg.ChromeBin = getEnv("CHROME_BIN", d.ChromeBin)
	cfg.UserAgent = getEnv("USER_AGENT", d.UserAgent)

	cfg.LinksPath = getEnv("LINKS_PATH", d.LinksPath)
	cfg.DatasetPath = getEnv("DATASET_PATH", d.DatasetPath)
	cfg.DatasetBackend = strings.ToLower(getEnv("DATASET_BACKEND", d.DatasetBackend))
	cfg.CheckpointPath = getEnv("CHECKPOINT_PATH", d.CheckpointPath)
	cfg.SkipCompleted = getEnvBool("SKIP_COMPLETED", d.SkipCompleted)

	cfg.PostgresHost = getEnv("POSTGRES_HOST", d.PostgresHost)
	cfg.PostgresPort = getEnv("POSTGRES_PORT", d.PostgresPort)
	cfg.PostgresUser = getEnv("POSTGRES_USER", d.PostgresUser)
	cfg.PostgresPassword = getEnv("POSTGRES_PASSWORD", d.PostgresPassword)
	cfg.PostgresDB = getEnv("POSTGRES_DB", d.PostgresDB)
	cfg.PostgresSSLMode = getEnv("POSTGRES_SSLMODE", d.PostgresSSLMode)

	return &cfg
}

// Validate reports configuration that would make a job meaningless.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return scrapeerrors.NewConfiguration("BASE_URL is empty", nil)
	case c.YearStart > c.YearEnd:
		return scrapeerrors.NewConfiguration(
			fmt.Sprintf("year range %d-%d is empty", c.YearStart, c.YearEnd), nil)
	case len(c.Currencies) == 0:
		return scrapeerrors.NewConfiguration("no currencies configured", nil)
	case c.MaxRetries < 1:
		return scrapeerrors.NewConfiguration(
			fmt.Sprintf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries), nil)
	case c.DatasetBackend != BackendCSV && c.DatasetBackend != BackendPostgres:
		return scrapeerrors.NewConfiguration(
			fmt.Sprintf("unknown DATASET_BACKEND %q", c.DatasetBackend), nil)
	}
	return nil
}

// ArchiveURL returns the absolute URL of the date archive page.
func (c *Config) ArchiveURL() string {
	return c.BaseURL + c.ArchivePath
}

// Years returns the inclusive year range in ascending order.
func (c *Config) Years() []int {
	if c.YearStart > c.YearEnd {
		return nil
	}
	years := make([]int, 0, c.YearEnd-c.YearStart+1)
	for y := c.YearStart; y <= c.YearEnd; y++ {
		years = append(years, y)
	}
	return years
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func getEnvCurrencies(key string, fallback []models.Currency) []models.Currency {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []models.Currency
	for _, part := range strings.Split(val, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code != "" {
			out = append(out, models.Currency(code))
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
