// Package sentinel talks to the Copernicus Sentinel Hub Catalog and Process
// APIs.
package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/forest-guardian/field-indices-cli/internal/config"
	"github.com/forest-guardian/field-indices-cli/internal/retry"
)

var (
	ErrMissingCredentials = eris.New("sentinel: missing client id, client secret or token url")
	ErrUnauthorized       = eris.New("sentinel: every credential was rejected")
	ErrImageNotFound      = eris.New("sentinel: image not found")
)

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	collection string
	maxCloud   float64
	resolution float64

	limiter *rate.Limiter
	retry   retry.Config

	mu      sync.Mutex
	clients []*http.Client
	current int
}

// NewClient builds a client from config. ClientID and ClientSecret accept
// comma separated lists; the next pair is used when one is rejected.
func NewClient(ctx context.Context, cfg config.SentinelConfig) (*Client, error) {
	ids := splitList(cfg.ClientID)
	secrets := splitList(cfg.ClientSecret)
	if len(ids) == 0 || len(secrets) == 0 || cfg.TokenURL == "" {
		return nil, ErrMissingCredentials
	}
	if len(ids) != len(secrets) {
		return nil, eris.Errorf("sentinel: %d client ids but %d secrets", len(ids), len(secrets))
	}

	clients := make([]*http.Client, len(ids))
	for i := range ids {
		cc := &clientcredentials.Config{
			ClientID:     ids[i],
			ClientSecret: secrets[i],
			TokenURL:     cfg.TokenURL,
		}
		clients[i] = cc.Client(ctx)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	retryCfg := retry.Default()
	if cfg.Retries > 0 {
		retryCfg.MaxAttempts = cfg.Retries
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		collection: cfg.Collection,
		maxCloud:   cfg.MaxCloudCover,
		resolution: cfg.Resolution,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retry:      retryCfg,
		clients:    clients,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Client) credential() (int, *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.clients[c.current]
}

// rotate moves past a rejected credential. It reports false once every
// credential has been tried since start.
func (c *Client) rotate(rejected, start int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := (rejected + 1) % len(c.clients)
	if c.current == rejected {
		c.current = next
	}
	return next != start
}

// post sends a JSON payload and returns the raw body of a 200 response.
func (c *Client) post(ctx context.Context, operation, path string, payload any, accept string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrapf(err, "sentinel: marshal %s payload", operation)
	}

	cfg := c.retry
	cfg.OnRetry = retry.Logger(operation)

	start, _ := c.credential()
	for {
		idx, httpClient := c.credential()

		data, err := retry.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", accept)

			resp, err := httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer func() { _ = resp.Body.Close() }()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusOK {
				return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
			}
			return data, nil
		})
		if err == nil {
			return data, nil
		}

		if !isAuthError(err) {
			return nil, eris.Wrapf(err, "sentinel: %s", operation)
		}

		zap.L().Warn("sentinel: credential rejected", zap.Int("credential", idx), zap.Error(err))
		if !c.rotate(idx, start) {
			return nil, eris.Wrapf(ErrUnauthorized, "sentinel: %s", operation)
		}
	}
}

func isAuthError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response == nil {
			return true
		}
		code := retrieveErr.Response.StatusCode
		return code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden
	}
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
