package backend

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"kakeibo/internal/config"
	"kakeibo/internal/sheets/google"
)

// Config holds what the factory needs to build a backend and a snapshot
// storage.
type Config struct {
	Type Type

	// Memory
	SeedFile string

	// Upstream web app
	UpstreamURL   string
	UpstreamToken string
	HTTPTimeout   time.Duration

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	GoogleOAuth              google.OAuthClient
	Tabs                     google.Tabs

	// Snapshots
	SnapshotBackend string
	SQLiteDBPath    string
	SnapshotDir     string

	// Clock is the reference for relative done markers. Nil means time.Now.
	Clock func() time.Time
}

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}
	t := Type(appConfig.DataBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	return Config{
		Type: t,

		SeedFile: appConfig.MemorySeedFile,

		UpstreamURL:   appConfig.UpstreamURL,
		UpstreamToken: appConfig.UpstreamToken,
		HTTPTimeout:   appConfig.HTTPTimeout,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleOAuth: google.OAuthClient{
			ClientJSON: appConfig.GoogleOAuthClientJSON,
			ClientFile: appConfig.GoogleOAuthClientFile,
			TokenFile:  appConfig.GoogleOAuthTokenFile,
		},
		Tabs: google.Tabs{
			Expenses:       appConfig.ExpensesSheetName,
			Incomes:        appConfig.IncomesSheetName,
			FixedExpenses:  appConfig.FixedExpensesSheetName,
			LivingExpenses: appConfig.LivingExpensesSheetName,
		},

		SnapshotBackend: appConfig.SnapshotBackend,
		SQLiteDBPath:    appConfig.SQLiteDBPath,
		SnapshotDir:     appConfig.SnapshotDir,

		Clock: appConfig.Clock(),
	}, nil
}

// Validate checks the settings the selected type depends on. The upstream
// URL is deliberately not required: an unconfigured upstream backend is
// built anyway and reports a configuration error per request.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SheetsBackend && c.GoogleSpreadsheetID == "" {
		return errors.New("google spreadsheet id is required for sheets backend")
	}
	return nil
}

func (c Config) clock() func() time.Time {
	if c.Clock == nil {
		return time.Now
	}
	return c.Clock
}

func (c Config) httpClient() *http.Client {
	timeout := c.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
