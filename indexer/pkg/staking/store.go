package staking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jonboulle/clockwork"

	"github.com/stakewatch/lake/indexer/pkg/chain"
	"github.com/stakewatch/lake/indexer/pkg/clickhouse"
	"github.com/stakewatch/lake/indexer/pkg/metrics"
)

type StoreConfig struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	ClickHouse clickhouse.Client
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ClickHouse == nil {
		return errors.New("clickhouse connection is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Store persists staking state in ClickHouse. Every table is a
// ReplacingMergeTree keyed on its natural key, so a save is an upsert and
// reads use FINAL to see only the latest version of each row.
type Store struct {
	log *slog.Logger
	cfg StoreConfig
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

func (s *Store) SaveActiveEra(ctx context.Context, era chain.Era) (err error) {
	defer observe("save_active_era", &err)
	s.log.Debug("staking/store: saving active era", "era", era)

	return s.insert(ctx, activeErasTable, [][]any{{uint32(era), s.cfg.Clock.Now().UTC()}})
}

// LatestActiveEra returns the highest era recorded by SaveActiveEra. ok is false
// when none has been recorded.
func (s *Store) LatestActiveEra(ctx context.Context) (era chain.Era, ok bool, err error) {
	defer observe("latest_active_era", &err)

	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	var count uint64
	var maxEra uint32
	row := conn.QueryRow(ctx, "SELECT count(), max(era) FROM "+activeErasTable)
	if err := row.Scan(&count, &maxEra); err != nil {
		return 0, false, fmt.Errorf("failed to query active era: %w", err)
	}
	if count == 0 {
		return 0, false, nil
	}
	return chain.Era(maxEra), true, nil
}

// GetValidatorStatusOfEra returns the record saved for (accountID, era), or nil
// when there is none.
func (s *Store) GetValidatorStatusOfEra(ctx context.Context, accountID string, era chain.Era) (rec *ValidatorEraRecord, err error) {
	defer observe("get_validator_status_of_era", &err)

	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	var r validatorEraRow
	row := conn.QueryRow(ctx,
		"SELECT "+validatorEraColumns+" FROM "+validatorErasTable+" FINAL WHERE account_id = ? AND era = ? LIMIT 1",
		accountID, uint32(era))
	if err := row.Scan(r.scanDest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query validator era: %w", err)
	}
	return r.toRecord()
}

// ListValidatorEras returns every record saved for accountID, newest era first.
func (s *Store) ListValidatorEras(ctx context.Context, accountID string, limit int) (recs []ValidatorEraRecord, err error) {
	defer observe("list_validator_eras", &err)

	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	if limit <= 0 {
		limit = 84
	}
	rows, err := conn.Query(ctx,
		"SELECT "+validatorEraColumns+" FROM "+validatorErasTable+" FINAL WHERE account_id = ? ORDER BY era DESC LIMIT ?",
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query validator eras: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r validatorEraRow
		if err := rows.Scan(r.scanDest()...); err != nil {
			return nil, fmt.Errorf("failed to scan validator era: %w", err)
		}
		rec, err := r.toRecord()
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate validator eras: %w", err)
	}
	return recs, nil
}

// SaveValidatorUnclaimedEras overwrites the unclaimed era set of a validator.
func (s *Store) SaveValidatorUnclaimedEras(ctx context.Context, accountID string, eras []chain.Era) (err error) {
	defer observe("save_validator_unclaimed_eras", &err)
	s.log.Debug("staking/store: saving unclaimed eras", "account", accountID, "count", len(eras))

	values := make([]uint32, 0, len(eras))
	for _, e := range eras {
		values = append(values, uint32(e))
	}
	slices.Sort(values)
	values = slices.Compact(values)

	return s.insert(ctx, unclaimedErasTable, [][]any{{accountID, values, s.cfg.Clock.Now().UTC()}})
}

// GetValidatorUnclaimedEras returns the last saved unclaimed era set of a
// validator, or nil if none was saved.
func (s *Store) GetValidatorUnclaimedEras(ctx context.Context, accountID string) (eras []chain.Era, err error) {
	defer observe("get_validator_unclaimed_eras", &err)

	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	var values []uint32
	row := conn.QueryRow(ctx, "SELECT eras FROM "+unclaimedErasTable+" FINAL WHERE account_id = ? LIMIT 1", accountID)
	if err := row.Scan(&values); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query unclaimed eras: %w", err)
	}
	eras = make([]chain.Era, 0, len(values))
	for _, v := range values {
		eras = append(eras, chain.Era(v))
	}
	return eras, nil
}

// SaveValidatorNominationData upserts the record for (accountID, data.Era).
func (s *Store) SaveValidatorNominationData(ctx context.Context, accountID string, data ValidatorEraRecord) (err error) {
	defer observe("save_validator_nomination_data", &err)
	s.log.Debug("staking/store: saving validator era", "account", accountID, "era", data.Era)

	row, err := validatorEraToRow(accountID, data, s.cfg.Clock.Now().UTC())
	if err != nil {
		return err
	}
	return s.insert(ctx, validatorErasTable, [][]any{row})
}

func (s *Store) insert(ctx context.Context, table string, rows [][]any) error {
	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	batch, err := conn.PrepareBatch(clickhouse.ContextWithSyncInsert(ctx), "INSERT INTO "+table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch for %s: %w", table, err)
	}
	defer batch.Close()

	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("failed to append row to %s: %w", table, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to write %s: %w", table, err)
	}
	return nil
}

func observe(operation string, err *error) {
	status := "success"
	if *err != nil {
		status = "error"
	}
	metrics.DatabaseQueriesTotal.WithLabelValues(operation, status).Inc()
}
