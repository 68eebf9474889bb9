package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"meterbridge/internal/models"
)

// Client is the surface the coordinator polls. Implementations must map
// failures to *AuthError / *APIError so callers can classify them.
type Client interface {
	// Meters lists all meters registered to the account.
	Meters(ctx context.Context) ([]models.MeterInfo, error)
	// MeterInfo fetches extended static info for one meter.
	MeterInfo(ctx context.Context, meterID int64) (map[string]any, error)
	// MeterReadings fetches the latest readings envelope for one meter.
	MeterReadings(ctx context.Context, meterID int64) (*models.Readings, error)
}

// Token is the OAuth token pair the cloud issues. The bridge treats it as
// opaque apart from the expiry bookkeeping.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Valid reports whether the access token exists and has not expired yet.
func (t *Token) Valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Unix() < t.ExpiresAt
}

// TokenSink receives every token the client obtains or refreshes, so the
// caller can persist it for the next process start.
type TokenSink func(Token)

// Config carries everything needed to talk to the meter cloud.
type Config struct {
	BaseURL  string
	Username string
	Password string
	// Token seeds the client with a previously persisted token; optional.
	Token *Token
	// OnToken is invoked after every successful token grant or refresh.
	OnToken TokenSink
	// HTTPClient overrides the transport; defaults to a 30s-timeout client.
	HTTPClient *http.Client
}

const (
	defaultHTTPTimeout = 30 * time.Second

	pathToken    = "/oauth/token"
	pathMeters   = "/api/meters"
	pathInfo     = "/api/meters/%d/info"
	pathReadings = "/api/meters/%d/readings"
)

// HTTPClient implements Client against the cloud's REST API.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	onToken  TokenSink
	hc       *http.Client

	mu    sync.Mutex
	token *Token
}

// NewHTTPClient builds a cloud client. The base URL must not end in a slash.
func NewHTTPClient(cfg Config) *HTTPClient {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPClient{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		onToken:  cfg.OnToken,
		hc:       hc,
		token:    cfg.Token,
	}
}

func (c *HTTPClient) Meters(ctx context.Context) ([]models.MeterInfo, error) {
	var out []models.MeterInfo
	if err := c.get(ctx, "meters", pathMeters, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) MeterInfo(ctx context.Context, meterID int64) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, "meter_info", fmt.Sprintf(pathInfo, meterID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) MeterReadings(ctx context.Context, meterID int64) (*models.Readings, error) {
	var out models.Readings
	if err := c.get(ctx, "meter_readings", fmt.Sprintf(pathReadings, meterID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// get performs an authenticated GET and decodes the JSON body into out.
func (c *HTTPClient) get(ctx context.Context, op, path string, out any) error {
	tok, err := c.ensureToken(ctx, op)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := c.hc.Do(req)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Token may have been revoked server-side; drop it so the next
		// attempt re-authenticates from scratch.
		c.mu.Lock()
		c.token = nil
		c.mu.Unlock()
		return &AuthError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &APIError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// ensureToken returns a valid access token, obtaining or refreshing one
// through the password grant when needed.
func (c *HTTPClient) ensureToken(ctx context.Context, op string) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid(time.Now()) {
		return *c.token, nil
	}

	form := url.Values{}
	if c.token != nil && c.token.RefreshToken != "" {
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", c.token.RefreshToken)
	} else {
		form.Set("grant_type", "password")
		form.Set("username", c.username)
		form.Set("password", c.password)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+pathToken,
		bytes.NewBufferString(form.Encode()),
	)
	if err != nil {
		return Token{}, &APIError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.hc.Do(req)
	if err != nil {
		return Token{}, &APIError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		// invalid_grant / invalid_client both come back in this range.
		c.token = nil
		return Token{}, &AuthError{Op: op, Err: fmt.Errorf("token grant rejected: status %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Token{}, &APIError{Op: op, Err: fmt.Errorf("token endpoint: status %d", resp.StatusCode)}
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return Token{}, &APIError{Op: op, Err: fmt.Errorf("decode token: %w", err)}
	}
	if tok.AccessToken == "" {
		return Token{}, &AuthError{Op: op, Err: fmt.Errorf("token grant returned no access token")}
	}
	if tok.ExpiresAt == 0 && tok.ExpiresIn > 0 {
		tok.ExpiresAt = time.Now().Unix() + tok.ExpiresIn
	}

	c.token = &tok
	if c.onToken != nil {
		c.onToken(tok)
	}
	return tok, nil
}
