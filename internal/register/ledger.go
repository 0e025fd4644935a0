package register

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/canopy/pkg/pagination"
	"github.com/JaimeStill/canopy/pkg/query"
	"github.com/JaimeStill/canopy/pkg/repository"
)

const upsertEntry = `
	INSERT INTO register_features(provider, case_id, feature_key, object_id, status_code, content_hash, batch_id, published_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (provider, case_id, feature_key) DO UPDATE SET
		object_id = EXCLUDED.object_id,
		status_code = EXCLUDED.status_code,
		content_hash = EXCLUDED.content_hash,
		batch_id = EXCLUDED.batch_id,
		published_at = EXCLUDED.published_at`

var ledgerErrors = repository.ErrorMap{
	NotFound:    ErrNotFound,
	Duplicate:   ErrDuplicate,
	Unavailable: ErrLedgerUnavailable,
}

type ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLedger creates a Postgres-backed publish ledger.
func NewLedger(db *sql.DB, logger *slog.Logger) Ledger {
	return &ledger{
		db:     db,
		logger: logger.With("ledger", "register"),
	}
}

func (l *ledger) Find(ctx context.Context, provider, caseID string, keys []string) (map[string]Entry, error) {
	found := make(map[string]Entry, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	q, args := query.NewBuilder(projection).
		WhereEquals("Provider", provider).
		WhereEquals("CaseID", caseID).
		WhereIn("FeatureKey", query.Values(keys)).
		Build()

	entries, err := repository.QueryMany(ctx, l.db, q, args, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("find ledger entries: %w", ledgerErrors.Map(err))
	}

	for _, e := range entries {
		found[e.FeatureKey] = e
	}
	return found, nil
}

func (l *ledger) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	err := repository.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		return repository.ExecEach(ctx, tx, upsertEntry, entries, entryArgs)
	})
	if err != nil {
		return fmt.Errorf("upsert ledger entries: %w", ledgerErrors.Map(err))
	}

	l.logger.Debug("ledger entries recorded", "count", len(entries))
	return nil
}

func (l *ledger) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Entry], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "CaseID", "FeatureKey")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	total, err := repository.QueryOne(ctx, l.db, countSQL, countArgs, repository.Count)
	if err != nil {
		return nil, fmt.Errorf("count ledger entries: %w", ledgerErrors.Map(err))
	}

	pageSQL, pageArgs := qb.BuildPage(page.PageSize, page.Offset())
	entries, err := repository.QueryMany(ctx, l.db, pageSQL, pageArgs, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", ledgerErrors.Map(err))
	}

	result := pagination.NewPageResult(entries, total, page.Page, page.PageSize)
	return &result, nil
}
