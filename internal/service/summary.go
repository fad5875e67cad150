package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rsm-inventory-bot/internal/cache"
	"rsm-inventory-bot/internal/model"
	"rsm-inventory-bot/pkg/millify"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSummaryKey = "last_summary"
	DefaultSummaryTTL = 300 * time.Second

	summaryDescription = "Doctrine ships on contract"
)

// ErrNoSummary means the summary slot is empty or expired.
var ErrNoSummary = errors.New("no summary available")

// SummaryConfig holds presentation constants and the cache slot settings.
type SummaryConfig struct {
	AuthorName   string
	AuthorIcon   string
	ThumbnailURL string
	Color        int
	DefaultPrice float64
	Key          string
	TTL          time.Duration
}

// SummaryBuilder renders aggregations into summaries and keeps the last one.
type SummaryBuilder struct {
	store cache.Cache
	watch model.WatchList
	cfg   SummaryConfig
	now   func() time.Time
	log   zerolog.Logger
}

func NewSummaryBuilder(store cache.Cache, watch model.WatchList, cfg SummaryConfig) *SummaryBuilder {
	if cfg.Key == "" {
		cfg.Key = DefaultSummaryKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSummaryTTL
	}
	return &SummaryBuilder{
		store: store,
		watch: watch,
		cfg:   cfg,
		now:   time.Now,
		log:   log.With().Str("component", "summary").Logger(),
	}
}

// Build emits one row per watch-list entry in declared order and writes the
// result to the summary slot. loc may be nil when no filter was applied.
func (b *SummaryBuilder) Build(ctx context.Context, agg *Aggregation, loc *model.Location) *model.Summary {
	s := &model.Summary{
		Description:  describe(loc),
		Author:       model.SummaryAuthor{Name: b.cfg.AuthorName, IconURL: b.cfg.AuthorIcon},
		ThumbnailURL: b.cfg.ThumbnailURL,
		Color:        b.cfg.Color,
		Rows:         make([]model.SummaryRow, 0, len(b.watch)),
		Timestamp:    b.now().UTC(),
	}
	if loc != nil {
		s.LocationID = loc.SystemID
	}
	if agg != nil {
		s.ContractsUsed = agg.ContractsUsed
		s.Errors = agg.Errors
	}

	for _, e := range b.watch {
		var count int
		if agg != nil {
			count = agg.Tally[e.TypeID]
		}
		s.Rows = append(s.Rows, model.SummaryRow{
			Name:  b.rowName(e),
			Count: count,
			Max:   e.Max,
		})
	}

	b.save(ctx, s)
	return s
}

// Last returns the most recently built summary.
func (b *SummaryBuilder) Last(ctx context.Context) (*model.Summary, error) {
	data, err := b.store.Get(ctx, b.cfg.Key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrNoSummary
		}
		return nil, err
	}
	var s model.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	return &s, nil
}

func (b *SummaryBuilder) rowName(e model.WatchListEntry) string {
	price := e.ReferencePrice(b.cfg.DefaultPrice)
	if price <= 0 {
		return e.Name
	}
	return e.Name + " " + millify.Format(price)
}

// A failed write only loses the operator view, so it is logged and not returned.
func (b *SummaryBuilder) save(ctx context.Context, s *model.Summary) {
	data, err := json.Marshal(s)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to encode summary")
		return
	}
	if err := b.store.Set(ctx, b.cfg.Key, data, b.cfg.TTL); err != nil {
		b.log.Warn().Err(err).Str("cycle_id", CycleID(ctx)).Msg("failed to cache summary")
	}
}

func describe(loc *model.Location) string {
	switch {
	case loc == nil:
		return summaryDescription
	case loc.Name != "":
		return summaryDescription + " in " + loc.Name
	default:
		return fmt.Sprintf("%s in system %d", summaryDescription, loc.SystemID)
	}
}
