package onekv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stakewatch/lake/indexer/pkg/metrics"
	"github.com/stakewatch/lake/utils/pkg/retry"
)

type ClientConfig struct {
	Logger     *slog.Logger
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      retry.Config
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BaseURL == "" {
		return errors.New("base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Client talks to a 1KV backend.
type Client struct {
	log *slog.Logger
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{log: cfg.Logger, cfg: cfg}, nil
}

func (c *Client) Candidates(ctx context.Context) ([]Candidate, error) {
	var out []Candidate
	if err := c.get(ctx, "candidates", "/candidates", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Nominators(ctx context.Context) ([]ProgramNominator, error) {
	var out []ProgramNominator
	if err := c.get(ctx, "nominators", "/nominators", &out); err != nil {
		return nil, err
	}
	return out, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string   { return fmt.Sprintf("unexpected status code: %d", e.code) }
func (e *statusError) StatusCode() int { return e.code }

func (c *Client) get(ctx context.Context, method, path string, out any) error {
	status := "success"
	defer func() {
		metrics.ChainRequestsTotal.WithLabelValues("onekv_"+method, status).Inc()
	}()

	err := retry.Do(ctx, c.cfg.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &statusError{code: resp.StatusCode}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
	if err != nil {
		status = "error"
		return fmt.Errorf("onekv: %s: %w", method, err)
	}
	return nil
}
