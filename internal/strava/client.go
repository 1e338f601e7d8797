// Package strava provides a client for the parts of the Strava API used to
// import activity history.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/sirupsen/logrus"
)

const (
	// APIURL is the Strava v3 API root.
	APIURL = "https://www.strava.com/api/v3"
	// OAuthURL is the Strava OAuth root.
	OAuthURL = "https://www.strava.com/oauth"

	// DefaultWindow is how far back activities are imported by default.
	DefaultWindow = 90 * 24 * time.Hour

	perPage   = 200
	userAgent = "fitness-pattern-finder/1.0"
)

// Sentinel errors.
var (
	// ErrRateLimited is returned when the API rate limit is still exceeded after retries.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnauthorized is returned when the access token is rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

// Client is a Strava API client. The HTTP client is expected to attach
// credentials, typically one built by oauth2.Config.Client.
type Client struct {
	httpClient *http.Client
	apiURL     string
	oauthURL   string
	attempts   uint
	delay      time.Duration
	log        logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIURL overrides the API root.
func WithAPIURL(u string) Option {
	return func(c *Client) { c.apiURL = u }
}

// WithOAuthURL overrides the OAuth root used by Deauthorize.
func WithOAuthURL(u string) Option {
	return func(c *Client) { c.oauthURL = u }
}

// WithRetry sets how many attempts are made for retryable responses and the
// base delay between them.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if delay > 0 {
			c.delay = delay
		}
	}
}

// WithLogger sets the logger for retry messages.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a Strava client on top of an authenticated HTTP client.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		httpClient: httpClient,
		apiURL:     APIURL,
		oauthURL:   OAuthURL,
		attempts:   4,
		delay:      time.Second,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Athlete returns the authenticated athlete.
func (c *Client) Athlete(ctx context.Context) (*Athlete, error) {
	var a Athlete
	if err := c.do(ctx, http.MethodGet, c.apiURL+"/athlete", &a); err != nil {
		return nil, fmt.Errorf("fetching athlete: %w", err)
	}
	return &a, nil
}

// Activities returns every activity that started between after and before,
// following pages until an empty one. A zero before means now.
func (c *Client) Activities(ctx context.Context, after, before time.Time) ([]Activity, error) {
	if before.IsZero() {
		before = time.Now()
	}

	activities := []Activity{}
	for page := 1; ; page++ {
		q := url.Values{
			"after":    {strconv.FormatInt(after.Unix(), 10)},
			"before":   {strconv.FormatInt(before.Unix(), 10)},
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(perPage)},
		}

		var batch []Activity
		if err := c.do(ctx, http.MethodGet, c.apiURL+"/athlete/activities?"+q.Encode(), &batch); err != nil {
			return nil, fmt.Errorf("fetching activities page %d: %w", page, err)
		}
		if len(batch) == 0 {
			return activities, nil
		}
		activities = append(activities, batch...)
	}
}

// RecentActivities returns the activities of the last DefaultWindow.
func (c *Client) RecentActivities(ctx context.Context) ([]Activity, error) {
	now := time.Now()
	return c.Activities(ctx, now.Add(-DefaultWindow), now)
}

// Deauthorize revokes the application's access for the authenticated athlete.
func (c *Client) Deauthorize(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, c.oauthURL+"/deauthorize", nil); err != nil {
		return fmt.Errorf("deauthorizing: %w", err)
	}
	return nil
}

// do performs a request, retrying rate limited and server error responses
// with jittered backoff, and decodes the body into out when non-nil.
func (c *Client) do(ctx context.Context, method, reqURL string, out any) error {
	var body []byte
	err := retry.Do(
		func() error {
			var err error
			body, err = c.doOnce(ctx, method, reqURL)
			if err != nil && !retryable(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(time.Minute),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.WithFields(logrus.Fields{
				"attempt": n + 1,
				"url":     reqURL,
				"error":   err,
			}).Debug("retrying strava request")
		}),
	)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// statusError is an unexpected HTTP status.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("API error %d", e.code)
	}
	return fmt.Sprintf("API error %d: %s", e.code, e.message)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError
	}
	return errors.Is(err, ErrRateLimited)
}

func (c *Client) doOnce(ctx context.Context, method, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode >= 300:
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		return nil, &statusError{code: resp.StatusCode, message: apiErr.Message}
	}
	return body, nil
}
