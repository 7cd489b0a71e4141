package onekv

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stakewatch/lake/utils/pkg/retry"
	laketesting "github.com/stakewatch/lake/utils/pkg/testing"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{
		Logger:  laketesting.NewLogger(),
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
	})
	require.NoError(t, err)
	return c
}

func TestLake_OneKV_Client(t *testing.T) {
	t.Parallel()

	t.Run("decodes candidates and nominators", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("GET /candidates", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"name":"alpha","stash":"a","rank":12,"faults":1,"valid":true,"nominatedAt":1700000000000}]`))
		})
		mux.HandleFunc("GET /nominators", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"address":"n1","bonded":"123.5","current":[{"stash":"a","name":"alpha"}],"lastNomination":1700000000000}]`))
		})
		c := newTestClient(t, mux)

		candidates, err := c.Candidates(t.Context())
		require.NoError(t, err)
		require.Equal(t, []Candidate{{Name: "alpha", Stash: "a", Rank: 12, Faults: 1, Valid: true, NominatedAt: 1700000000000}}, candidates)

		nominators, err := c.Nominators(t.Context())
		require.NoError(t, err)
		require.Len(t, nominators, 1)
		require.Equal(t, "123.5", nominators[0].Bonded.String())
	})

	t.Run("retries 5xx", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(`[]`))
		}))

		candidates, err := c.Candidates(t.Context())
		require.NoError(t, err)
		require.Empty(t, candidates)
		require.Equal(t, int32(2), calls.Load())
	})

	t.Run("does not retry 4xx", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
		}))

		_, err := c.Nominators(t.Context())
		require.Error(t, err)
		require.Contains(t, err.Error(), "403")
		require.Equal(t, int32(1), calls.Load())
	})
}
