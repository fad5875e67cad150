package service

import (
	"context"
	"time"

	"rsm-inventory-bot/internal/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InventoryService runs one trigger cycle: resolve, aggregate, summarize.
type InventoryService struct {
	resolver   *LocationResolver
	aggregator *Aggregator
	summaries  *SummaryBuilder
	log        zerolog.Logger
}

func NewInventoryService(resolver *LocationResolver, aggregator *Aggregator, summaries *SummaryBuilder) *InventoryService {
	return &InventoryService{
		resolver:   resolver,
		aggregator: aggregator,
		summaries:  summaries,
		log:        log.With().Str("component", "inventory").Logger(),
	}
}

// Query runs a cycle for the free-text location in text. The returned
// error is either an *esi.AuthError or wraps ErrContractsUnavailable.
func (s *InventoryService) Query(ctx context.Context, text string) (*model.Summary, error) {
	ctx = ensureCycleID(ctx)
	l := s.log.With().Str("cycle_id", CycleID(ctx)).Logger()
	start := time.Now()

	loc := s.resolver.Resolve(ctx, text)
	var filter *int32
	if loc != nil {
		filter = &loc.SystemID
	}
	l.Info().Str("query", StripMentions(text)).Bool("filtered", filter != nil).Msg("inventory cycle started")

	agg, err := s.aggregator.Aggregate(ctx, filter)
	if err != nil {
		l.Error().Err(err).Msg("inventory cycle failed")
		return nil, err
	}

	summary := s.summaries.Build(ctx, agg, loc)
	l.Info().
		Int("contracts", agg.ContractsUsed).
		Int("errors", agg.Errors).
		Dur("took", time.Since(start)).
		Msg("inventory cycle finished")
	return summary, nil
}

// LastSummary returns the most recently built summary, or ErrNoSummary.
func (s *InventoryService) LastSummary(ctx context.Context) (*model.Summary, error) {
	return s.summaries.Last(ctx)
}
