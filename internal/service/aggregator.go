package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"rsm-inventory-bot/internal/cache"
	"rsm-inventory-bot/internal/esi"
	"rsm-inventory-bot/internal/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultStructureThreshold separates structure ids from station ids.
	DefaultStructureThreshold int64 = 100_000_000

	contractKeyPrefix = "parsed_contract_"
)

// ErrContractsUnavailable means the corporation contract listing could not be fetched.
var ErrContractsUnavailable = errors.New("corporation contracts unavailable")

// AggregatorConfig holds aggregation settings.
type AggregatorConfig struct {
	CorporationID      int64
	StructureThreshold int64
	// ContractTTL bounds how long parsed contracts are reused; 0 keeps them forever.
	ContractTTL time.Duration
}

// Aggregation is the result of one aggregation run.
type Aggregation struct {
	Tally         model.Tally
	ContractsUsed int
	Errors        int
}

// Aggregator joins contracts, structures and contract items into a Tally.
type Aggregator struct {
	gw        Gateway
	contracts cache.Cache
	watch     model.WatchList
	cfg       AggregatorConfig
	log       zerolog.Logger
}

// NewAggregator creates an aggregator. contracts caches parsed contracts by id.
func NewAggregator(gw Gateway, contracts cache.Cache, watch model.WatchList, cfg AggregatorConfig) *Aggregator {
	if cfg.StructureThreshold <= 0 {
		cfg.StructureThreshold = DefaultStructureThreshold
	}
	return &Aggregator{
		gw:        gw,
		contracts: contracts,
		watch:     watch,
		cfg:       cfg,
		log:       log.With().Str("component", "aggregator").Logger(),
	}
}

// Aggregate tallies watched items across outstanding contracts, restricted
// to contracts issued from structures in systemID when it is non-nil.
// A failed contract listing or a failed token refresh at any stage is
// returned as an error; every other failure drops the affected page,
// structure or contract and is counted in Aggregation.Errors.
func (a *Aggregator) Aggregate(ctx context.Context, systemID *int32) (*Aggregation, error) {
	l := a.log.With().Str("cycle_id", CycleID(ctx)).Logger()
	agg := &Aggregation{}

	contracts, err := a.fetchContracts(ctx, l, agg)
	if err != nil {
		return nil, err
	}

	outstanding := make([]model.Contract, 0, len(contracts))
	for _, c := range contracts {
		if c.Outstanding() {
			outstanding = append(outstanding, c)
		}
	}

	// Resolve origins of every contract, not only outstanding ones, so the
	// structure responses stay warm in the response cache.
	systems, err := a.resolveStructures(ctx, l, agg, contracts)
	if err != nil {
		return nil, err
	}

	kept := outstanding
	if systemID != nil {
		kept = kept[:0:0]
		for _, c := range outstanding {
			if sys, ok := systems[c.StartLocationID]; ok && sys == *systemID {
				kept = append(kept, c)
			}
		}
	}

	loaded, err := a.loadItems(ctx, l, agg, kept)
	if err != nil {
		return nil, err
	}

	agg.Tally = model.NewTally(a.watch)
	for _, c := range loaded {
		for _, item := range c.Items {
			agg.Tally.Add(item.TypeID)
		}
	}
	agg.ContractsUsed = len(loaded)

	l.Info().
		Int("contracts", len(contracts)).
		Int("outstanding", len(outstanding)).
		Int("used", agg.ContractsUsed).
		Int("errors", agg.Errors).
		Msg("aggregation finished")
	return agg, nil
}

func (a *Aggregator) fetchContracts(ctx context.Context, l zerolog.Logger, agg *Aggregation) ([]model.Contract, error) {
	first := a.gw.CallAuthRetry(ctx, esi.CorporationContracts(a.cfg.CorporationID, 1))
	if first.Err != nil {
		if esi.IsAuthError(first.Err) {
			return nil, first.Err
		}
		return nil, fmt.Errorf("%w: %v", ErrContractsUnavailable, first.Err)
	}

	var contracts []model.Contract
	if err := first.Decode(&contracts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContractsUnavailable, err)
	}

	if first.Pages <= 1 {
		return contracts, nil
	}

	ops := make([]esi.Operation, 0, first.Pages-1)
	for page := 2; page <= first.Pages; page++ {
		ops = append(ops, esi.CorporationContracts(a.cfg.CorporationID, page))
	}
	for _, resp := range a.gw.CallMany(ctx, ops) {
		if esi.IsAuthError(resp.Err) {
			return nil, resp.Err
		}
		var page []model.Contract
		if !resp.OK() || resp.Decode(&page) != nil {
			agg.Errors++
			l.Warn().Err(resp.Err).Int64("page", resp.Operation.Param("page")).Msg("contract page unavailable")
			continue
		}
		contracts = append(contracts, page...)
	}
	return contracts, nil
}

// resolveStructures maps structure id to solar system id. Structures that
// cannot be fetched are absent from the result.
func (a *Aggregator) resolveStructures(ctx context.Context, l zerolog.Logger, agg *Aggregation, contracts []model.Contract) (map[int64]int32, error) {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, c := range contracts {
		if c.StartLocationID < a.cfg.StructureThreshold {
			continue
		}
		if _, dup := seen[c.StartLocationID]; dup {
			continue
		}
		seen[c.StartLocationID] = struct{}{}
		ids = append(ids, c.StartLocationID)
	}
	slices.Sort(ids)

	ops := make([]esi.Operation, len(ids))
	for i, id := range ids {
		ops[i] = esi.Structure(id)
	}

	systems := make(map[int64]int32, len(ids))
	var failed int
	for _, resp := range a.gw.CallMany(ctx, ops) {
		id := resp.Operation.Param("structure_id")
		if esi.IsAuthError(resp.Err) {
			return nil, resp.Err
		}
		var s model.Structure
		if !resp.OK() {
			failed++
			l.Warn().Err(resp.Err).Int64("structure_id", id).Msg("structure unavailable")
			continue
		}
		if err := resp.Decode(&s); err != nil {
			failed++
			l.Warn().Err(err).Int64("structure_id", id).Msg("structure response unreadable")
			continue
		}
		systems[id] = s.SolarSystemID
	}
	if failed > 0 {
		l.Error().Int("failed", failed).Int("total", len(ids)).Msg("structure resolution errors")
	}
	agg.Errors += failed
	return systems, nil
}

// loadItems returns kept contracts with their items populated, from the
// contract cache or upstream. Contracts whose items cannot be loaded are dropped.
func (a *Aggregator) loadItems(ctx context.Context, l zerolog.Logger, agg *Aggregation, kept []model.Contract) ([]model.Contract, error) {
	loaded := make([]model.Contract, 0, len(kept))
	var ops []esi.Operation
	pending := make(map[int64]model.Contract)

	for _, c := range kept {
		if cached, ok := a.cachedContract(ctx, l, c.ContractID); ok {
			loaded = append(loaded, cached)
			continue
		}
		pending[c.ContractID] = c
		ops = append(ops, esi.ContractItems(a.cfg.CorporationID, c.ContractID))
	}

	for _, resp := range a.gw.CallMany(ctx, ops) {
		id := resp.Operation.Param("contract_id")
		c := pending[id]

		switch {
		case esi.IsAuthError(resp.Err):
			return nil, resp.Err
		case resp.Err != nil:
			agg.Errors++
			l.Warn().Err(resp.Err).Int64("contract_id", id).Int("status", resp.StatusCode).Msg("contract items unavailable")
			continue
		case !resp.HasData():
			agg.Errors++
			l.Warn().Err(esi.ErrDataIntegrity).Int64("contract_id", id).Msg("no item data for contract")
			continue
		}

		if err := resp.Decode(&c.Items); err != nil {
			agg.Errors++
			l.Warn().Err(err).Int64("contract_id", id).Msg("contract items unreadable")
			continue
		}
		if c.Items == nil {
			c.Items = []model.ContractItem{}
		}
		a.storeContract(ctx, l, c)
		loaded = append(loaded, c)
	}

	return loaded, nil
}

func contractKey(id int64) string {
	return contractKeyPrefix + strconv.FormatInt(id, 10)
}

// cachedContract returns a previously parsed contract. Unreadable entries
// are evicted so the contract is fetched again.
func (a *Aggregator) cachedContract(ctx context.Context, l zerolog.Logger, id int64) (model.Contract, bool) {
	var c model.Contract
	if a.contracts == nil {
		return c, false
	}
	key := contractKey(id)
	data, err := a.contracts.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.Warn().Err(err).Int64("contract_id", id).Msg("contract cache unavailable")
		}
		return c, false
	}
	if err := json.Unmarshal(data, &c); err != nil || c.ContractID != id {
		l.Warn().Err(err).Int64("contract_id", id).Msg("evicting unreadable cached contract")
		if err := a.contracts.Delete(ctx, key); err != nil {
			l.Warn().Err(err).Int64("contract_id", id).Msg("failed to evict cached contract")
		}
		return model.Contract{}, false
	}
	return c, true
}

func (a *Aggregator) storeContract(ctx context.Context, l zerolog.Logger, c model.Contract) {
	if a.contracts == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := a.contracts.Set(ctx, contractKey(c.ContractID), data, a.cfg.ContractTTL); err != nil {
		l.Warn().Err(err).Int64("contract_id", c.ContractID).Msg("failed to cache contract")
	}
}
