package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/justestif/go-fitness-pattern-finder/internal/strava"
)

const (
	// CLIRedirectURL is the loopback callback used by the command line flow.
	// Strava only checks the host against the app's callback domain.
	CLIRedirectURL  = "http://127.0.0.1:8089/callback"
	cliListenAddr   = "127.0.0.1:8089"
	callbackTimeout = 2 * time.Minute

	// Scope grants read access to every activity, private ones included.
	Scope = "read,activity:read_all"
)

// Endpoint is Strava's OAuth2 endpoint. Strava expects client credentials
// in the request parameters.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://www.strava.com/oauth/authorize",
	TokenURL:  "https://www.strava.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

var (
	// ErrMissingCredentials is returned when STRAVA_CLIENT_ID or STRAVA_CLIENT_SECRET is not set.
	ErrMissingCredentials = errors.New("missing STRAVA_CLIENT_ID or STRAVA_CLIENT_SECRET environment variable")

	// ErrAuthTimeout is returned when the OAuth callback is not received in time.
	ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")
)

// NewStravaConfig builds the OAuth2 configuration for a Strava app.
func NewStravaConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     Endpoint,
		// Strava wants a single comma separated scope value.
		Scopes: []string{Scope},
	}
}

// AuthCodeURL returns the Strava consent page URL for state.
func AuthCodeURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

// Authenticator runs the command line OAuth flow and caches its token.
type Authenticator struct {
	config *oauth2.Config
	cache  *TokenCache
	log    logrus.FieldLogger
}

// New creates an Authenticator using STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET.
// Returns ErrMissingCredentials if either variable is not set.
func New() (*Authenticator, error) {
	clientID := os.Getenv("STRAVA_CLIENT_ID")
	clientSecret := os.Getenv("STRAVA_CLIENT_SECRET")

	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	cache, err := DefaultTokenCache()
	if err != nil {
		return nil, fmt.Errorf("creating token cache: %w", err)
	}

	return &Authenticator{
		config: NewStravaConfig(clientID, clientSecret, CLIRedirectURL),
		cache:  cache,
		log:    logrus.StandardLogger(),
	}, nil
}

// Authenticate returns a Strava client. A cached token is reused, and
// refreshed by oauth2 when expired; otherwise the browser flow runs.
func (a *Authenticator) Authenticate(ctx context.Context) (*strava.Client, error) {
	token, err := a.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("loading cached token: %w", err)
	}

	if token != nil {
		ts := a.config.TokenSource(ctx, token)
		client := strava.NewClient(oauth2.NewClient(ctx, ts))

		if _, err := client.Athlete(ctx); err == nil {
			if fresh, err := ts.Token(); err == nil && fresh.AccessToken != token.AccessToken {
				_ = a.cache.Save(fresh)
			}
			return client, nil
		}
		a.log.Info("cached token rejected, starting new authentication")
	}

	token, err = a.runOAuthFlow(ctx)
	if err != nil {
		return nil, err
	}
	return strava.NewClient(a.config.Client(ctx, token)), nil
}

// runOAuthFlow performs the authorization code flow against a loopback server.
func (a *Authenticator) runOAuthFlow(ctx context.Context) (*oauth2.Token, error) {
	state, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	tokenCh := make(chan *oauth2.Token, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		a.handleCallback(w, r, state, tokenCh, errCh)
	})

	server := &http.Server{
		Addr:              cliListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("callback server error: %w", err)
		}
	}()

	fmt.Println("\nTo authenticate, open this URL in your browser:")
	fmt.Println(AuthCodeURL(a.config, state))
	fmt.Println("\nWaiting for authentication...")

	var token *oauth2.Token
	select {
	case token = <-tokenCh:
	case err := <-errCh:
		_ = server.Shutdown(ctx)
		return nil, err
	case <-time.After(callbackTimeout):
		_ = server.Shutdown(ctx)
		return nil, ErrAuthTimeout
	case <-ctx.Done():
		_ = server.Shutdown(context.Background())
		return nil, ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	if err := a.cache.Save(token); err != nil {
		// Auth succeeded; the next run just asks again.
		a.log.WithError(err).Warn("failed to cache token")
	}
	return token, nil
}

// handleCallback processes the OAuth redirect from Strava.
func (a *Authenticator) handleCallback(w http.ResponseWriter, r *http.Request, expectedState string, tokenCh chan<- *oauth2.Token, errCh chan<- error) {
	if r.URL.Query().Get("state") != expectedState {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		errCh <- ErrStateMismatch
		return
	}

	// Strava reports a denied consent as error=access_denied.
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, "Authentication failed: "+errMsg, http.StatusBadRequest)
		errCh <- fmt.Errorf("strava auth error: %s", errMsg)
		return
	}

	token, err := a.config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		errCh <- fmt.Errorf("exchanging code for token: %w", err)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Authentication Successful</title></head>
<body>
<h1>Connected to Strava</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`)

	tokenCh <- token
}

// GenerateState creates a random state string for OAuth.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Logout removes the cached token.
func (a *Authenticator) Logout() error {
	return a.cache.Delete()
}
