// Package identity resolves household members against the external users service.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jellydator/ttlcache/v3"
)

const (
	defaultCacheTTL       = 30 * time.Second
	defaultRequestTimeout = 5 * time.Second
	defaultMaxTries       = 3
	defaultInitialBackoff = 200 * time.Millisecond

	usersPath = "/api/users"
	cacheKey  = "users"
)

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

type Config struct {
	Logger     *slog.Logger
	BaseURL    string
	HTTPClient *http.Client

	CacheTTL       time.Duration
	MaxTries       uint
	InitialBackoff time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BaseURL == "" {
		return errors.New("base url is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultMaxTries
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	return nil
}

// Client fetches the member list from the identity service and caches it briefly.
type Client struct {
	log *slog.Logger
	cfg Config

	cache *ttlcache.Cache[string, []User]
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		log: cfg.Logger,
		cfg: cfg,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, []User](cfg.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, []User](),
		),
	}, nil
}

// Users returns the member list, served from cache while fresh.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	if item := c.cache.Get(cacheKey); item != nil {
		return item.Value(), nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff

	attempt := 0
	users, err := backoff.Retry(ctx, func() ([]User, error) {
		if attempt > 0 {
			c.log.Warn("identity: failed to fetch users, retrying", "attempt", attempt)
		}
		attempt++
		return c.fetch(ctx)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.cfg.MaxTries))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}

	c.cache.Set(cacheKey, users, ttlcache.DefaultTTL)
	return users, nil
}

func (c *Client) fetch(ctx context.Context) ([]User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+usersPath, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	users, err := decodeUsers(body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return users, nil
}

// decodeUsers accepts a bare array or an object wrapping it under "data" or "users".
func decodeUsers(body []byte) ([]User, error) {
	var users []User
	if err := json.Unmarshal(body, &users); err == nil {
		return users, nil
	}

	var wrapped struct {
		Data  []User `json:"data"`
		Users []User `json:"users"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	if wrapped.Users != nil {
		return wrapped.Users, nil
	}
	return nil, errors.New("failed to decode users: no user list in response")
}

func (c *Client) find(ctx context.Context, match func(User) bool) (int64, bool, error) {
	users, err := c.Users(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, u := range users {
		if match(u) {
			return u.ID, true, nil
		}
	}
	return 0, false, nil
}

// UserIDByUsername matches case-insensitively.
func (c *Client) UserIDByUsername(ctx context.Context, username string) (int64, bool, error) {
	want := strings.ToLower(strings.TrimSpace(username))
	return c.find(ctx, func(u User) bool { return want != "" && strings.ToLower(u.Username) == want })
}

// UserIDByEmail matches case-insensitively.
func (c *Client) UserIDByEmail(ctx context.Context, email string) (int64, bool, error) {
	want := strings.ToLower(strings.TrimSpace(email))
	return c.find(ctx, func(u User) bool { return want != "" && strings.ToLower(u.Email) == want })
}
