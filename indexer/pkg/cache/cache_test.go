package cache

import (
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	laketesting "github.com/stakewatch/lake/utils/pkg/testing"
)

func newTestCache(t *testing.T, clock clockwork.Clock) *Cache {
	t.Helper()
	c, err := New(Config{Logger: laketesting.NewLogger(), Clock: clock})
	require.NoError(t, err)
	return c
}

func TestLake_Cache_Config_Validate(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	require.EqualError(t, cfg.Validate(), "logger is required")

	cfg = Config{Logger: laketesting.NewLogger()}
	require.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.Clock)
}

func TestLake_Cache_Update(t *testing.T) {
	t.Parallel()

	t.Run("replaces the whole value", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
		c := newTestCache(t, clock)

		_, ok := c.Get(KeyValidatorsSummary)
		require.False(t, ok)

		require.NoError(t, c.Update(KeyValidatorsSummary, map[string][]string{"valid": {"a", "b"}}))
		clock.Advance(time.Minute)
		require.NoError(t, c.Update(KeyValidatorsSummary, map[string][]string{"valid": {"c"}}))

		e, ok := c.Get(KeyValidatorsSummary)
		require.True(t, ok)
		require.JSONEq(t, `{"valid":["c"]}`, string(e.Body))
		require.True(t, clock.Now().Equal(e.UpdatedAt))
		require.ElementsMatch(t, []string{KeyValidatorsSummary}, c.Keys())
	})

	t.Run("keeps the previous value when encoding fails", func(t *testing.T) {
		t.Parallel()

		c := newTestCache(t, nil)
		require.NoError(t, c.Update(KeyNominatorsSummary, []int{1}))
		require.Error(t, c.Update(KeyNominatorsSummary, math.Inf(1)))

		e, ok := c.Get(KeyNominatorsSummary)
		require.True(t, ok)
		require.JSONEq(t, `[1]`, string(e.Body))
	})

	t.Run("readers never see a partial value", func(t *testing.T) {
		t.Parallel()

		c := newTestCache(t, nil)
		first := make([]int, 1000)
		second := make([]int, 1000)
		for i := range second {
			second[i] = 1
		}
		require.NoError(t, c.Update(KeyValidatorsSummary, first))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = c.Update(KeyValidatorsSummary, second)
				_ = c.Update(KeyValidatorsSummary, first)
			}
		}()
		for range 200 {
			e, ok := c.Get(KeyValidatorsSummary)
			require.True(t, ok)
			var got []int
			require.NoError(t, json.Unmarshal(e.Body, &got))
			require.Len(t, got, 1000)
			for _, v := range got[1:] {
				require.Equal(t, got[0], v)
			}
		}
		wg.Wait()
	})
}
