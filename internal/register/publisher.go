package register

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/pagination"
)

type publisher struct {
	cfg        *Config
	gateways   Gateways
	ledger     Ledger
	clock      clockwork.Clock
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the register publisher.
func New(
	cfg *Config,
	gateways Gateways,
	ledger Ledger,
	clock clockwork.Clock,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &publisher{
		cfg:        cfg,
		gateways:   gateways,
		ledger:     ledger,
		clock:      clock,
		logger:     logger.With("system", "register"),
		pagination: pagination,
	}
}

func (p *publisher) Handler() *Handler {
	return NewHandler(p, p.logger, p.pagination)
}

func (p *publisher) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Entry], error) {
	page.Normalize(p.pagination)
	return p.ledger.List(ctx, page, filters)
}

// pending is one feature on its way to the register.
type pending struct {
	feature  Feature
	hash     string
	objectID int64
}

func (p *publisher) Publish(ctx context.Context, cmd PublishCommand) (*PublishResult, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	gw, err := p.gateways.Get(p.cfg.Provider)
	if err != nil {
		return nil, err
	}

	code, ok := gw.Provider().StatusCode(cmd.Status)
	if !ok {
		return nil, arcgis.Validation("publish", arcgis.ErrUnknownStatus, "%q", cmd.Status)
	}

	result := &PublishResult{BatchID: uuid.New(), CaseID: cmd.CaseID}

	keys := make([]string, len(cmd.Features))
	for i, f := range cmd.Features {
		keys[i] = f.Key
	}

	known, err := p.ledger.Find(ctx, p.cfg.Provider, cmd.CaseID, keys)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var work []*pending
	var unknown []string
	for _, f := range cmd.Features {
		h, err := contentHash(cmd.CaseID, f, code)
		if err != nil {
			return nil, arcgis.Validation("publish", ErrInvalidCommand, "feature %s: %v", f.Key, err)
		}

		entry, seen := known[f.Key]
		if seen && entry.ContentHash == h {
			result.Unchanged++
			continue
		}

		item := &pending{feature: f, hash: h}
		if seen && entry.ObjectID > 0 {
			item.objectID = entry.ObjectID
		} else {
			unknown = append(unknown, f.Key)
		}
		work = append(work, item)
	}

	if len(work) == 0 {
		p.logger.Info("publish skipped", "case_id", cmd.CaseID, "unchanged", result.Unchanged)
		return result, nil
	}

	remote, err := p.lookup(ctx, gw, cmd.CaseID, unknown)
	if err != nil {
		return nil, err
	}

	var adds, updates []*pending
	var req arcgis.PushRequest
	for _, item := range work {
		if item.objectID == 0 {
			item.objectID = remote[item.feature.Key]
		}

		attrs := p.attributes(cmd.CaseID, item.feature, code)
		if item.objectID > 0 {
			attrs["OBJECTID"] = item.objectID
		}

		feature, err := arcgis.NewFeature(item.feature.Geometry, attrs)
		if err != nil {
			return nil, arcgis.Validation("publish", ErrInvalidCommand, "feature %s: %v", item.feature.Key, err)
		}

		if item.objectID > 0 {
			updates = append(updates, item)
			req.Updates = append(req.Updates, feature)
		} else {
			adds = append(adds, item)
			req.Adds = append(req.Adds, feature)
		}
	}

	edits, err := gw.PushFeatures(ctx, req)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now().UTC()
	var entries []Entry
	var errs []error

	record := func(items []*pending, outcomes []arcgis.EditOutcome, counter *int) {
		for i, item := range items {
			var outcome arcgis.EditOutcome
			if i < len(outcomes) {
				outcome = outcomes[i]
			}
			if err := outcome.Err(); err != nil {
				result.Failed = append(result.Failed, FeatureFailure{
					Key:     item.feature.Key,
					Message: err.Error(),
					Err:     err,
				})
				errs = append(errs, fmt.Errorf("%s: %w", item.feature.Key, err))
				continue
			}

			objectID := outcome.ObjectID
			if objectID == 0 {
				objectID = item.objectID
			}
			entries = append(entries, Entry{
				Provider:    p.cfg.Provider,
				CaseID:      cmd.CaseID,
				FeatureKey:  item.feature.Key,
				ObjectID:    objectID,
				StatusCode:  code,
				ContentHash: item.hash,
				BatchID:     result.BatchID,
				PublishedAt: now,
			})
			*counter++
		}
	}

	record(adds, edits.AddResults, &result.Added)
	record(updates, edits.UpdateResults, &result.Updated)

	if err := p.ledger.Upsert(ctx, entries); err != nil {
		p.logger.Error("ledger write failed after publish",
			"case_id", cmd.CaseID,
			"batch_id", result.BatchID,
			"error", err,
		)
		return result, fmt.Errorf("record publish: %w", err)
	}

	if len(entries) == 0 {
		return result, fmt.Errorf("%w: %w", ErrPublishFailed, errors.Join(errs...))
	}

	p.logger.Info("features published",
		"case_id", cmd.CaseID,
		"batch_id", result.BatchID,
		"status", cmd.Status,
		"added", result.Added,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"failed", len(result.Failed),
	)

	return result, nil
}

// lookup finds object ids already on the register for keys the ledger has
// no record of. Keys are queried in batches, several batches at a time.
func (p *publisher) lookup(ctx context.Context, gw arcgis.Gateway, caseID string, keys []string) (map[string]int64, error) {
	found := make(map[string]int64, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.cfg.MaxParallelLookups)

	for start := 0; start < len(keys); start += p.cfg.LookupBatchSize {
		batch := keys[start:min(start+p.cfg.LookupBatchSize, len(keys))]
		g.Go(func() error {
			features, err := gw.QueryFeatures(ctx, arcgis.FeatureQuery{
				Where:     p.where(caseID, batch),
				OutFields: []string{"OBJECTID", p.cfg.FeatureKeyField},
			})
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for _, f := range features {
				key, _ := f.Attributes[p.cfg.FeatureKeyField].(string)
				if id, ok := f.ObjectID(); ok && key != "" {
					found[key] = id
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

func (p *publisher) where(caseID string, keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = quote(k)
	}
	return fmt.Sprintf("%s = %s AND %s IN (%s)",
		p.cfg.CaseField, quote(caseID),
		p.cfg.FeatureKeyField, strings.Join(quoted, ","),
	)
}

func (p *publisher) attributes(caseID string, f Feature, code int) map[string]any {
	attrs := make(map[string]any, len(f.Attributes)+3)
	for k, v := range f.Attributes {
		attrs[k] = v
	}
	attrs[p.cfg.FeatureKeyField] = f.Key
	attrs[p.cfg.CaseField] = caseID
	attrs[p.cfg.StatusField] = code
	return attrs
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// contentHash fingerprints everything written to the register for f.
func contentHash(caseID string, f Feature, code int) (string, error) {
	geom, err := f.Geometry.MarshalEsri(true)
	if err != nil {
		return "", err
	}
	attrs, err := json.Marshal(f.Attributes)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00", caseID, f.Key, code)
	h.Write(geom)
	h.Write([]byte{0})
	h.Write(attrs)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func validateCommand(cmd PublishCommand) error {
	if strings.TrimSpace(cmd.CaseID) == "" {
		return arcgis.Validation("publish", ErrInvalidCommand, "case id is required")
	}
	if len(cmd.Features) == 0 {
		return arcgis.Validation("publish", ErrInvalidCommand, "no features")
	}

	seen := make(map[string]bool, len(cmd.Features))
	for i, f := range cmd.Features {
		if f.Key == "" {
			return arcgis.Validation("publish", ErrInvalidCommand, "feature %d has no key", i)
		}
		if seen[f.Key] {
			return arcgis.Validation("publish", ErrInvalidCommand, "duplicate feature key %s", f.Key)
		}
		seen[f.Key] = true

		if f.Geometry.SpatialReference.IsZero() {
			return arcgis.Validation("publish", arcgis.ErrMissingSpatialReference, "feature %s", f.Key)
		}
		if err := f.Geometry.Validate(); err != nil {
			return arcgis.Validation("publish", ErrInvalidCommand, "feature %s: %v", f.Key, err)
		}
	}
	return nil
}
