package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/stakewatch/lake/indexer/pkg/metrics"
	"github.com/stakewatch/lake/utils/pkg/retry"
)

const maxResponseBytes = 64 << 20

type ClientConfig struct {
	Logger     *slog.Logger
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration

	// RequestsPerSecond caps outgoing requests. Zero means unlimited.
	RequestsPerSecond float64
	Burst             int

	Retry retry.Config
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BaseURL == "" {
		return errors.New("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Client reads staking state from a JSON chain gateway.
type Client struct {
	log     *slog.Logger
	cfg     ClientConfig
	limiter *rate.Limiter
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		log:     cfg.Logger,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}, nil
}

func (c *Client) GetActiveEraIndex(ctx context.Context) (Era, error) {
	const method = "activeEra"
	var resp struct {
		Era *Era `json:"era"`
	}
	if err := c.get(ctx, method, "/staking/active-era", &resp); err != nil {
		return 0, err
	}
	if resp.Era == nil {
		return 0, &DataShapeError{Method: method, Field: "era", Err: errors.New("missing")}
	}
	return *resp.Era, nil
}

func (c *Client) GetEraTotalReward(ctx context.Context, era Era) (decimal.Decimal, error) {
	const method = "eraTotalReward"
	var resp struct {
		TotalReward *decimal.Decimal `json:"totalReward"`
	}
	path := "/staking/eras/" + strconv.FormatUint(uint64(era), 10) + "/total-reward"
	if err := c.get(ctx, method, path, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.TotalReward == nil {
		return decimal.Zero, &DataShapeError{Method: method, Field: "totalReward", Err: fmt.Errorf("no reward recorded for era %d", era)}
	}
	if resp.TotalReward.IsNegative() {
		return decimal.Zero, &DataShapeError{Method: method, Field: "totalReward", Err: fmt.Errorf("negative reward %s", resp.TotalReward)}
	}
	return *resp.TotalReward, nil
}

func (c *Client) GetCurrentValidatorCount(ctx context.Context) (uint32, error) {
	const method = "validatorCount"
	var resp struct {
		Count *uint32 `json:"count"`
	}
	if err := c.get(ctx, method, "/staking/validator-count", &resp); err != nil {
		return 0, err
	}
	if resp.Count == nil {
		return 0, &DataShapeError{Method: method, Field: "count", Err: errors.New("missing")}
	}
	return *resp.Count, nil
}

// GetValidatorWaitingInfo returns the active and waiting validators. Entries the
// gateway could not resolve are returned as nil.
func (c *Client) GetValidatorWaitingInfo(ctx context.Context) (*ValidatorWaitingInfo, error) {
	const method = "validatorWaitingInfo"
	var resp ValidatorWaitingInfo
	if err := c.get(ctx, method, "/staking/validators", &resp); err != nil {
		return nil, err
	}
	for i, v := range resp.Validators {
		if v == nil {
			continue
		}
		if err := ValidateAccountID(v.AccountID); err != nil {
			return nil, &DataShapeError{Method: method, Field: fmt.Sprintf("validators[%d].accountId", i), Err: err}
		}
	}
	return &resp, nil
}

func (c *Client) GetNominators(ctx context.Context) ([]*Nominator, error) {
	const method = "nominators"
	var resp struct {
		Nominators []*Nominator `json:"nominators"`
	}
	if err := c.get(ctx, method, "/staking/nominators", &resp); err != nil {
		return nil, err
	}
	for i, n := range resp.Nominators {
		if n == nil {
			continue
		}
		if err := ValidateAccountID(n.AccountID); err != nil {
			return nil, &DataShapeError{Method: method, Field: fmt.Sprintf("nominators[%d].accountId", i), Err: err}
		}
	}
	return resp.Nominators, nil
}

// GetStakerPoints returns the per-era reward points of a validator. A validator
// the gateway has no history for yields nil.
func (c *Client) GetStakerPoints(ctx context.Context, accountID string) ([]StakerPoint, error) {
	const method = "stakerPoints"
	if err := ValidateAccountID(accountID); err != nil {
		return nil, &DataShapeError{Method: method, Field: "accountId", Err: err}
	}
	var resp struct {
		Points []StakerPoint `json:"points"`
	}
	err := c.get(ctx, method, "/staking/validators/"+url.PathEscape(accountID)+"/points", &resp)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) && te.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return resp.Points, nil
}

func (c *Client) get(ctx context.Context, method, path string, out any) error {
	start := time.Now()
	rcfg := c.cfg.Retry
	rcfg.OnRetry = func(attempt int, err error) {
		c.log.Debug("chain: retrying request", "method", method, "attempt", attempt, "error", err)
	}

	err := retry.Do(ctx, rcfg, func() error {
		return c.getOnce(ctx, method, path, out)
	})
	metrics.ChainRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ChainRequestsTotal.WithLabelValues(method, "error").Inc()
		return err
	}
	metrics.ChainRequestsTotal.WithLabelValues(method, "success").Inc()
	return nil
}

func (c *Client) getOnce(ctx context.Context, method, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Method: method, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return &TransportError{Method: method, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DataShapeError{Method: method, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
