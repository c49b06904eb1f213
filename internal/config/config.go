package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	// HTTP Server
	Port               string
	ReadCacheTTL       time.Duration
	RateLimitPerMinute int

	// Backend selection
	DataBackend    string
	MemorySeedFile string

	// Upstream spreadsheet web app
	UpstreamURL   string
	UpstreamToken string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	GoogleOAuthClientJSON    string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
	ExpensesSheetName        string
	IncomesSheetName         string
	FixedExpensesSheetName   string
	LivingExpensesSheetName  string

	// Client
	APIBaseURL  string
	HTTPTimeout time.Duration
	CacheMaxAge time.Duration
	Timezone    string

	// Snapshot persistence
	SnapshotBackend string
	SQLiteDBPath    string
	SnapshotDir     string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	RevalidateInterval time.Duration
}

const (
	BackendMemory   = "memory"
	BackendSheets   = "sheets"
	BackendUpstream = "upstream"

	SnapshotSQLite = "sqlite"
	SnapshotFile   = "file"
	SnapshotMemory = "memory"
)

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		ReadCacheTTL:       getEnvDuration("READ_CACHE_TTL", 15*time.Second),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		DataBackend:    getEnv("DATA_BACKEND", BackendMemory),
		MemorySeedFile: getEnv("MEMORY_SEED_FILE", "./data/seed.json"),

		UpstreamURL:   getEnv("UPSTREAM_URL", ""),
		UpstreamToken: getEnv("UPSTREAM_TOKEN", ""),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		ExpensesSheetName:        getEnv("SHEET_EXPENSES", "支出"),
		IncomesSheetName:         getEnv("SHEET_INCOMES", "収入"),
		FixedExpensesSheetName:   getEnv("SHEET_FIXED_EXPENSES", "固定費"),
		LivingExpensesSheetName:  getEnv("SHEET_LIVING_EXPENSES", "生活費"),

		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8081"),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 15*time.Second),
		CacheMaxAge: getEnvDuration("CACHE_MAX_AGE", 5*time.Minute),
		Timezone:    getEnv("TIMEZONE", "Asia/Tokyo"),

		SnapshotBackend: getEnv("SNAPSHOT_BACKEND", SnapshotSQLite),
		SQLiteDBPath:    getEnv("SQLITE_DB_PATH", "./data/kakeibo.db"),
		SnapshotDir:     getEnv("SNAPSHOT_DIR", "./data"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "kakeibo"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_changed"),

		RevalidateInterval: getEnvDuration("REVALIDATE_INTERVAL", 5*time.Minute),
	}
}

// Location resolves Timezone; an unknown zone falls back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Clock returns the current time in Location. Relative done markers such as
// 今月済 must be decoded against the same month the due list is evaluated in.
func (c *Config) Clock() func() time.Time {
	loc := c.Location()
	return func() time.Time { return time.Now().In(loc) }
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSheets, BackendUpstream}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendUpstream:
		// An empty URL is allowed; requests then fail with a configuration diagnostic.
		if c.UpstreamURL == "" {
			break
		}
		if err := checkHTTPURL(c.UpstreamURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid UPSTREAM_URL: %v", err))
		}
	case BackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		switch {
		case c.GoogleOAuthTokenFile != "":
			if c.GoogleOAuthClientJSON == "" && c.GoogleOAuthClientFile == "" {
				errors = append(errors, "GOOGLE_OAUTH_TOKEN_FILE needs GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
			}
		case c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "":
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets backend")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.APIBaseURL != "" {
		if err := checkHTTPURL(c.APIBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid API_BASE_URL: %v", err))
		}
	}

	validSnapshots := []string{SnapshotSQLite, SnapshotFile, SnapshotMemory}
	if !slices.Contains(validSnapshots, c.SnapshotBackend) {
		errors = append(errors, fmt.Sprintf("invalid snapshot backend '%s': must be one of %v", c.SnapshotBackend, validSnapshots))
	}
	if c.SnapshotBackend == SnapshotSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite snapshots")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}
	if c.SnapshotBackend == SnapshotFile && c.SnapshotDir == "" {
		errors = append(errors, "SNAPSHOT_DIR cannot be empty when using file snapshots")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.CacheMaxAge < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache max age %v: must not be negative", c.CacheMaxAge))
	}
	if c.HTTPTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid http timeout %v: must be positive", c.HTTPTimeout))
	}
	if c.RevalidateInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid revalidate interval %v: must be at least 1 second", c.RevalidateInterval))
	} else if c.RevalidateInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid revalidate interval %v: must be at most 24 hours", c.RevalidateInterval))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme '%s' must be 'http' or 'https'", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
