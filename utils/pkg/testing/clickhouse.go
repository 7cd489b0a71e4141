package laketesting

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stakewatch/lake/indexer/pkg/clickhouse"
	clickhousetesting "github.com/stakewatch/lake/indexer/pkg/clickhouse/testing"
)

// NewClient returns a client bound to a fresh, fully migrated database on db.
func NewClient(t *testing.T, db *clickhousetesting.DB) clickhouse.Client {
	info, err := clickhousetesting.NewTestClientWithInfo(t, db)
	require.NoError(t, err)

	err = clickhouse.RunMigrations(t.Context(), NewLogger(), db.MigrationConfig(info.Database))
	require.NoError(t, err)

	return info.Client
}
