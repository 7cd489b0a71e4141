package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/stakewatch/lake/indexer/pkg/metrics"
)

const (
	KeyValidatorsSummary        = "validatorsSummary"
	KeyNominatorsSummary        = "nominatorsSummary"
	KeyQualityProgramSummary    = "qualityProgramSummary"
	KeyQualityProgramNominators = "qualityProgramNominators"
)

// Entry is one published value, encoded once at Update.
type Entry struct {
	Body      json.RawMessage
	UpdatedAt time.Time
}

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Cache holds the latest published value for each key. Readers see either the
// previous or the next value of a key, never a mix.
type Cache struct {
	log *slog.Logger
	cfg Config

	mu      sync.RWMutex
	entries map[string]Entry
}

func New(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Cache{
		log:     cfg.Logger,
		cfg:     cfg,
		entries: make(map[string]Entry),
	}, nil
}

// Update replaces the value stored at key.
func (c *Cache) Update(key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}

	c.mu.Lock()
	c.entries[key] = Entry{Body: body, UpdatedAt: c.cfg.Clock.Now().UTC()}
	c.mu.Unlock()

	metrics.CacheUpdatesTotal.WithLabelValues(key).Inc()
	c.log.Debug("cache: updated", "key", key, "bytes", len(body))
	return nil
}

// Get returns the entry stored at key.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Keys returns the keys that currently hold a value.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}
