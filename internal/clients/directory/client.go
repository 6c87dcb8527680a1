package directory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/appquest/appquest-backend/internal/platform/ctxutil"
	"github.com/appquest/appquest-backend/internal/platform/envutil"
	"github.com/appquest/appquest-backend/internal/platform/httpx"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

// Client asks the main app whether a user id exists. The engine only ever
// needs a yes/no, so the surface stays at one call.
type Client interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
}

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	timeoutSec := envutil.Int("DIRECTORY_TIMEOUT_SECONDS", 10)
	maxRetries := envutil.Int("DIRECTORY_MAX_RETRIES", 3)

	return Config{
		BaseURL:    strings.TrimSpace(os.Getenv("DIRECTORY_BASE_URL")),
		Token:      strings.TrimSpace(os.Getenv("DIRECTORY_API_TOKEN")),
		Timeout:    time.Duration(timeoutSec) * time.Second,
		MaxRetries: maxRetries,
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing DIRECTORY_BASE_URL")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &client{
		log:        log.With("client", "DirectoryClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	maxRetries int
}

func (c *client) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	if c == nil || c.httpClient == nil {
		return false, fmt.Errorf("directory client unavailable")
	}

	endpoint := fmt.Sprintf("%s/internal/users/%s", c.cfg.BaseURL, userID)

	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		exists, resp, err := c.existsOnce(ctx, endpoint)
		if err == nil {
			return exists, nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return false, err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 5*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("Directory request retrying",
			"url", endpoint,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return false, fmt.Errorf("unreachable retry loop")
}

func (c *client) existsOnce(ctx context.Context, endpoint string) (bool, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, endpoint, nil)
	if err != nil {
		return false, nil, err
	}

	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, resp, err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		httpx.Discard(resp)
		return true, resp, nil
	case http.StatusNotFound:
		httpx.Discard(resp)
		return false, resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	return false, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "directory: <nil error>"
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 4000 {
		msg = msg[:4000] + "..."
	}
	return fmt.Sprintf("directory http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}
