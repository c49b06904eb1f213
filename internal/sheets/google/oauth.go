package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	gsheet "google.golang.org/api/sheets/v4"

	ports "kakeibo/internal/sheets"
)

// OAuthClient is an installed-app OAuth client for users who cannot share
// the spreadsheet with a service account.
type OAuthClient struct {
	// ClientJSON or ClientFile holds the client secret downloaded from the
	// Google console.
	ClientJSON string
	ClientFile string
	// TokenFile stores the refreshable user token written by the
	// kakeibo-oauth-init command.
	TokenFile string
}

func (o OAuthClient) enabled() bool {
	return strings.TrimSpace(o.TokenFile) != ""
}

// Config builds the oauth2 config for the Sheets scope.
func (o OAuthClient) Config() (*oauth2.Config, error) {
	var raw []byte
	switch {
	case strings.TrimSpace(o.ClientJSON) != "":
		raw = []byte(o.ClientJSON)
	case strings.TrimSpace(o.ClientFile) != "":
		b, err := os.ReadFile(o.ClientFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
		raw = b
	default:
		return nil, &ports.ConfigError{Setting: "GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE"}
	}
	cfg, err := goauth.ConfigFromJSON(raw, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}
	return cfg, nil
}

// TokenSource returns a refreshing source seeded from TokenFile.
func (o OAuthClient) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	tok, err := ReadToken(o.TokenFile)
	if err != nil {
		return nil, err
	}
	return cfg.TokenSource(ctx, tok), nil
}

// ReadToken loads a token saved by SaveToken.
func ReadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token %s: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("oauth token %s holds no credentials", path)
	}
	return &tok, nil
}

// SaveToken writes tok to path, readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write oauth token: %w", err)
	}
	return nil
}
