// Command kakeibo-oauth-init runs the installed-app OAuth flow once and
// saves a refreshable token for the sheets backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"kakeibo/internal/cli"
	"kakeibo/internal/config"
	logfields "kakeibo/internal/log"
	"kakeibo/internal/sheets/google"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(logfields.ComponentSheets)
	cfg := config.Load()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	tokenFile := cfg.GoogleOAuthTokenFile
	if tokenFile == "" {
		tokenFile = "token.json"
	}
	client := google.OAuthClient{
		ClientJSON: cfg.GoogleOAuthClientJSON,
		ClientFile: cfg.GoogleOAuthClientFile,
		TokenFile:  tokenFile,
	}
	port := os.Getenv("OAUTH_REDIRECT_PORT")
	if port == "" {
		port = "8085"
	}

	if err := run(ctx, client, port); err != nil {
		logger.Error("OAuth initialization failed", logfields.FieldError, err)
		os.Exit(1)
	}
	logger.Info("OAuth token saved", "token_file", tokenFile)
}

func run(ctx context.Context, client google.OAuthClient, port string) error {
	oc, err := client.Config()
	if err != nil {
		return err
	}
	oc.RedirectURL = "http://localhost:" + port + "/callback"
	state := uuid.NewString()

	codes := make(chan string, 1)
	errs := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "authorization failed: "+q.Get("error"), http.StatusBadRequest)
			report(errs, fmt.Errorf("authorization denied: %s", q.Get("error")))
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
		default:
			fmt.Fprintln(w, "Authorized. You can close this window.")
			report(codes, q.Get("code"))
		}
	})

	ln, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return fmt.Errorf("listen for callback: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(errs, err)
		}
	}()
	defer srv.Close()

	fmt.Printf("Open this URL to authorize kakeibo:\n\n%s\n\n", oc.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	var code string
	select {
	case code = <-codes:
	case err := <-errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return errors.New("timed out waiting for authorization")
	}

	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	return google.SaveToken(client.TokenFile, tok)
}

// report hands v to the waiting flow; later callbacks are ignored.
func report[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}
