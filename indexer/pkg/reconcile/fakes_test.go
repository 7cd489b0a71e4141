package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stakewatch/lake/indexer/pkg/chain"
	"github.com/stakewatch/lake/indexer/pkg/onekv"
	"github.com/stakewatch/lake/indexer/pkg/staking"
	"github.com/stakewatch/lake/indexer/pkg/yield"
	laketesting "github.com/stakewatch/lake/utils/pkg/testing"
)

type mockChain struct {
	GetActiveEraIndexFunc        func(ctx context.Context) (chain.Era, error)
	GetEraTotalRewardFunc        func(ctx context.Context, era chain.Era) (decimal.Decimal, error)
	GetCurrentValidatorCountFunc func(ctx context.Context) (uint32, error)
	GetValidatorWaitingInfoFunc  func(ctx context.Context) (*chain.ValidatorWaitingInfo, error)
	GetNominatorsFunc            func(ctx context.Context) ([]*chain.Nominator, error)
	GetStakerPointsFunc          func(ctx context.Context, accountID string) ([]chain.StakerPoint, error)
}

func (m *mockChain) GetActiveEraIndex(ctx context.Context) (chain.Era, error) {
	return m.GetActiveEraIndexFunc(ctx)
}

func (m *mockChain) GetEraTotalReward(ctx context.Context, era chain.Era) (decimal.Decimal, error) {
	return m.GetEraTotalRewardFunc(ctx, era)
}

func (m *mockChain) GetCurrentValidatorCount(ctx context.Context) (uint32, error) {
	return m.GetCurrentValidatorCountFunc(ctx)
}

func (m *mockChain) GetValidatorWaitingInfo(ctx context.Context) (*chain.ValidatorWaitingInfo, error) {
	return m.GetValidatorWaitingInfoFunc(ctx)
}

func (m *mockChain) GetNominators(ctx context.Context) ([]*chain.Nominator, error) {
	return m.GetNominatorsFunc(ctx)
}

func (m *mockChain) GetStakerPoints(ctx context.Context, accountID string) ([]chain.StakerPoint, error) {
	return m.GetStakerPointsFunc(ctx, accountID)
}

// staticChain serves a fixed snapshot.
func staticChain(era chain.Era, reward decimal.Decimal, count uint32, validators []*chain.Validator, points map[string][]chain.StakerPoint) *mockChain {
	return &mockChain{
		GetActiveEraIndexFunc: func(ctx context.Context) (chain.Era, error) { return era, nil },
		GetEraTotalRewardFunc: func(ctx context.Context, e chain.Era) (decimal.Decimal, error) {
			return reward, nil
		},
		GetCurrentValidatorCountFunc: func(ctx context.Context) (uint32, error) { return count, nil },
		GetValidatorWaitingInfoFunc: func(ctx context.Context) (*chain.ValidatorWaitingInfo, error) {
			return &chain.ValidatorWaitingInfo{Validators: validators}, nil
		},
		GetNominatorsFunc: func(ctx context.Context) ([]*chain.Nominator, error) {
			return []*chain.Nominator{{AccountID: "nominator-1", Bonded: decimal.NewFromInt(10), Targets: []string{"validator-a"}}}, nil
		},
		GetStakerPointsFunc: func(ctx context.Context, accountID string) ([]chain.StakerPoint, error) {
			return points[accountID], nil
		},
	}
}

type recordKey struct {
	account string
	era     chain.Era
}

type memStore struct {
	mu         sync.Mutex
	activeEras []chain.Era
	records    map[recordKey]staking.ValidatorEraRecord
	unclaimed  map[string][]chain.Era
	writes     []string

	SaveNominationDataErr func(accountID string) error
}

func newMemStore() *memStore {
	return &memStore{
		records:   make(map[recordKey]staking.ValidatorEraRecord),
		unclaimed: make(map[string][]chain.Era),
	}
}

func (s *memStore) SaveActiveEra(ctx context.Context, era chain.Era) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeEras = append(s.activeEras, era)
	return nil
}

func (s *memStore) GetValidatorStatusOfEra(ctx context.Context, accountID string, era chain.Era) (*staking.ValidatorEraRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordKey{accountID, era}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memStore) SaveValidatorUnclaimedEras(ctx context.Context, accountID string, eras []chain.Era) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unclaimed[accountID] = eras
	s.writes = append(s.writes, "unclaimed:"+accountID)
	return nil
}

func (s *memStore) SaveValidatorNominationData(ctx context.Context, accountID string, data staking.ValidatorEraRecord) error {
	if s.SaveNominationDataErr != nil {
		if err := s.SaveNominationDataErr(accountID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{accountID, data.Era}] = data
	s.writes = append(s.writes, "record:"+accountID)
	return nil
}

func (s *memStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memStore) snapshot(t *testing.T) []byte {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	flat := make(map[string]any, len(s.records)+len(s.unclaimed))
	for k, v := range s.records {
		flat["record:"+k.account+":"+strconv.FormatUint(uint64(k.era), 10)] = v
	}
	for k, v := range s.unclaimed {
		flat["unclaimed:"+k] = v
	}
	b, err := json.Marshal(flat)
	require.NoError(t, err)
	return b
}

type recordingCache struct {
	mu      sync.Mutex
	keys    []string
	values  map[string][]byte
	onWrite func(key string)
}

func newRecordingCache() *recordingCache {
	return &recordingCache{values: make(map[string][]byte)}
}

func (c *recordingCache) Update(key string, value any) error {
	if c.onWrite != nil {
		c.onWrite(key)
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	c.values[key] = b
	return nil
}

func (c *recordingCache) updates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.keys...)
}

func (c *recordingCache) get(t *testing.T, key string, out any) {
	t.Helper()
	c.mu.Lock()
	b, ok := c.values[key]
	c.mu.Unlock()
	require.True(t, ok, "cache key %s not published", key)
	require.NoError(t, json.NewDecoder(bytes.NewReader(b)).Decode(out))
}

type mockQuality struct {
	GetValidValidatorsFunc func(ctx context.Context, validators []*chain.Validator) (*onekv.Summary, error)
	GetNominatorsFunc      func(ctx context.Context) (*onekv.NominatorSummary, error)
}

func (m *mockQuality) GetValidValidators(ctx context.Context, validators []*chain.Validator) (*onekv.Summary, error) {
	if m.GetValidValidatorsFunc == nil {
		return &onekv.Summary{Valid: []onekv.ValidatorSummary{}}, nil
	}
	return m.GetValidValidatorsFunc(ctx, validators)
}

func (m *mockQuality) GetNominators(ctx context.Context) (*onekv.NominatorSummary, error) {
	if m.GetNominatorsFunc == nil {
		return &onekv.NominatorSummary{Nominators: []onekv.ProgramNominator{}}, nil
	}
	return m.GetNominatorsFunc(ctx)
}

type harness struct {
	chain   *mockChain
	store   *memStore
	cache   *recordingCache
	quality *mockQuality
}

func newHarness(c *mockChain) *harness {
	return &harness{
		chain:   c,
		store:   newMemStore(),
		cache:   newRecordingCache(),
		quality: &mockQuality{},
	}
}

func (h *harness) config() Config {
	return Config{
		Logger:         laketesting.NewLogger(),
		Chain:          h.chain,
		Store:          h.store,
		Cache:          h.cache,
		Quality:        h.quality,
		APY:            yield.APY,
		Timezone:       "UTC",
		SkipInitialRun: true,
	}
}

func (h *harness) reconciler(t *testing.T, mutate ...func(*Config)) *Reconciler {
	t.Helper()
	cfg := h.config()
	for _, m := range mutate {
		m(&cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func testValidator(id string, commission chain.Perbill, claimed ...chain.Era) *chain.Validator {
	return &chain.Validator{
		AccountID:  id,
		Active:     true,
		Commission: commission,
		Exposure: chain.Exposure{
			Total: decimal.New(10_000, 12),
			Own:   decimal.New(1_000, 12),
		},
		Identity:      chain.Identity{Display: id},
		Nominators:    []string{"nominator-1"},
		StakingLedger: chain.StakingLedger{Stash: id, ClaimedRewards: claimed},
	}
}
