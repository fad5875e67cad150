package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"rsm-inventory-bot/internal/cache"
	"rsm-inventory-bot/internal/esi"
	"rsm-inventory-bot/internal/esi/esitest"
	"rsm-inventory-bot/internal/model"
	"rsm-inventory-bot/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int32p(v int32) *int32 { return &v }

func TestAggregateFiltersBySystem(t *testing.T) {
	f := newFixture(t)
	f.srv.Handle(contractsPath, http.StatusOK, []map[string]any{
		contract(1, model.ContractStatusOutstanding, 100000001),
	})
	f.structure(100000001, 42)
	f.srv.Handle(itemsPath(1), http.StatusOK, items(600))

	agg, err := f.aggregator(shipWatch).Aggregate(context.Background(), int32p(42))
	require.NoError(t, err)
	assert.Equal(t, model.Tally{600: 1}, agg.Tally)
	assert.Equal(t, 1, agg.ContractsUsed)
	assert.Zero(t, agg.Errors)
}

func TestAggregateDropsOtherSystemsAndClosedContracts(t *testing.T) {
	f := newFixture(t)
	f.srv.Handle(contractsPath, http.StatusOK, []map[string]any{
		contract(1, model.ContractStatusOutstanding, 100000001),
		contract(2, model.ContractStatusOutstanding, 100000002),
		contract(3, "finished", 100000001),
		contract(4, model.ContractStatusOutstanding, 60003760),
	})
	f.structure(100000001, 42)
	f.structure(100000002, 43)
	for _, id := range []int{1, 2, 3, 4} {
		f.srv.Handle(itemsPath(id), http.StatusOK, items(600))
	}

	agg, err := f.aggregator(shipWatch).Aggregate(context.Background(), int32p(42))
	require.NoError(t, err)
	assert.Equal(t, model.Tally{600: 1}, agg.Tally)
	assert.Equal(t, 1, f.srv.Calls(itemsPath(1)))
	assert.Zero(t, f.srv.Calls(itemsPath(2)))
	assert.Zero(t, f.srv.Calls(itemsPath(3)))
	assert.Zero(t, f.srv.Calls(itemsPath(4)), "station origins never match a filter")
	assert.Zero(t, f.srv.Calls("/universe/structures/60003760/"))
}

func TestAggregateWithoutFilterUsesAllOutstanding(t *testing.T) {
	f := newFixture(t)
	f.srv.Handle(contractsPath, http.StatusOK, []map[string]any{
		contract(1, model.ContractStatusOutstanding, 100000001),
		contract(2, model.ContractStatusOutstanding, 60003760),
	})
	f.structure(100000001, 42)
	f.srv.Handle(itemsPath(1), http.StatusOK, items(600, 601))
	f.srv.Handle(itemsPath(2), http.StatusOK, items(600, 600))

	watch := model.WatchList{{TypeID: 600, Name: "Ship", Max: 5}, {TypeID: 700, Name: "Other", Max: 2}}
	agg, err := f.aggregator(watch).Aggregate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.Tally{600: 3, 700: 0}, agg.Tally)
	assert.Equal(t, 2, agg.ContractsUsed)
	assert.NotContains(t, agg.Tally, int32(601))
}

func TestAggregateFailedItemsContributeNothing(t *testing.T) {
	f := newFixture(t)
	f.srv.Handle(contractsPath, http.StatusOK, []map[string]any{
		contract(1, model.ContractStatusOutstanding, 100000001),
		contract(2, model.ContractStatusOutstanding, 100000001),
		contract(3, model.ContractStatusOutstanding, 100000001),
	})
	f.structure(100000001, 42)
	f.srv.Handle(itemsPath(1), http.StatusOK, items(600))
	f.srv.Handle(itemsPath(2), http.StatusInternalServerError, map[string]string{"error": "boom"})
	f.srv.Handle(itemsPath(3), http.StatusOK, nil)

	agg, err := f.aggregator(shipWatch).Aggregate(context.Background(), int32p(42))
	require.NoError(t, err)
	assert.Equal(t, model.Tally{600: 1}, agg.Tally)
	assert.Equal(t, 1, agg.ContractsUsed)
	assert.Equal(t, 2, agg.Errors)
}

func TestAggregateFailedStructureIsExcluded(t *testing.T) {
	f := newFixture(t)
	f.srv.Handle(contractsPath, http.StatusOK, []map[string]any{
		contract(1, model.ContractStatusOutstanding, 100000001),
		contract(2, model.ContractStatusOutstanding, 100000002),
	})
	f.structure(100000001, 42)
	f.srv.Handle("/universe/structures/100000002/", http.StatusForbidden, map[string]string{"error": "Forbidden"})
	f.srv.Handle(itemsPath(1), http.StatusOK, items(600))
	f.srv.Handle(itemsPath(2), http.StatusOK, items(600))

	agg, err := f.aggregator(shipWatch).Aggregate(context.Background(), int32p(42))
	require.NoError(t, err)
	assert.Equal(t, model.Tally{600: 1}, agg.Tally)
	assert.Equal(t, 1, agg.Errors)
	assert.Zero(t, f.srv.Calls(itemsPath(2)))
}

func TestAggregateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.srv.Handle(contractsPath, http.StatusOK, []map[string]any{
		contract(1, model.ContractStatusOutstanding, 100000001),
		contract(2, model.ContractStatusOutstanding, 100000001),
	})
	f.structure(100000001, 42)
	f.srv.Handle(itemsPath(1), http.StatusOK, items(600))
	f.srv.Handle(itemsPath(2), http.StatusOK, items(600, 600))

	agg := f.aggregator(shipWatch)
	first, err := agg.Aggregate(context.Background(), int32p(42))
	require.NoError(t, err)
	second, err := agg.Aggregate(context.Background(), int32p(42))
	require.NoError(t, err)

	assert.Equal(t, first.Tally, second.Tally)
	assert.Equal(t, 1, f.srv.Calls(itemsPath(1)))
	assert.Equal(t, 1, f.srv.Calls(itemsPath(2)))

	_, err = f.contracts.Get(context.Background(), "parsed_contract_2")
	require.NoError(t, err)
}

func TestAggregateEvictsUnreadableCachedContract(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.srv.Handle(contractsPath, http.StatusOK, []map[string]any{
		contract(1, model.ContractStatusOutstanding, 60003760),
	})
	f.srv.Handle(itemsPath(1), http.StatusOK, items(600))
	require.NoError(t, f.contracts.Set(ctx, "parsed_contract_1", []byte("{not json"), 0))

	agg, err := f.aggregator(shipWatch).Aggregate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, model.Tally{600: 1}, agg.Tally)
	assert.Equal(t, 1, f.srv.Calls(itemsPath(1)))

	data, err := f.contracts.Get(ctx, "parsed_contract_1")
	require.NoError(t, err)
	var cached model.Contract
	require.NoError(t, json.Unmarshal(data, &cached))
	assert.EqualValues(t, 1, cached.ContractID)
	assert.Len(t, cached.Items, 1)
}

func TestAggregateFetchesExtraPages(t *testing.T) {
	f := newFixture(t)
	f.srv.HandleRoute(contractsPath, esitest.Route{
		Status: http.StatusOK,
		Pages:  3,
		Body:   []map[string]any{contract(1, model.ContractStatusOutstanding, 100000001)},
	})
	f.srv.Handle(contractsPath+"?page=2", http.StatusOK, []map[string]any{
		contract(2, model.ContractStatusOutstanding, 100000001),
	})
	f.srv.Handle(contractsPath+"?page=3", http.StatusBadGateway, map[string]string{"error": "bad gateway"})
	f.structure(100000001, 42)
	f.srv.Handle(itemsPath(1), http.StatusOK, items(600))
	f.srv.Handle(itemsPath(2), http.StatusOK, items(600))

	agg, err := f.aggregator(shipWatch).Aggregate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.Tally{600: 2}, agg.Tally)
	assert.Equal(t, 1, agg.Errors)
	assert.Equal(t, 1, f.srv.Calls(contractsPath+"?page=2"))
}

func TestAggregateContractListingFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.srv.Handle(contractsPath, http.StatusInternalServerError, map[string]string{"error": "boom"})

	_, err := f.aggregator(shipWatch).Aggregate(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrContractsUnavailable))
	assert.Zero(t, f.srv.CallsWithPrefix("/universe/structures/"))
}

func TestAggregateRefreshFailureIsAuthError(t *testing.T) {
	f := newFixture(t)
	f.srv.FailTokens(true)
	f.srv.Handle(contractsPath, http.StatusOK, []map[string]any{})

	_, err := f.aggregator(shipWatch).Aggregate(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, esi.IsAuthError(err))
}

func TestAggregateRetriesContractsAfterForbidden(t *testing.T) {
	f := newFixture(t)
	var hits atomic.Int32
	f.srv.HandleFunc(contractsPath, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") == "Bearer access-1" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	agg, err := f.aggregator(shipWatch).Aggregate(context.Background(), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, 2, f.srv.TokenCalls())
	assert.Equal(t, model.Tally{600: 0}, agg.Tally)
}

// failingTokens hands out a token for the first n calls, then reports a
// rejected refresh.
type failingTokens struct {
	n     int32
	calls atomic.Int32
}

func (f *failingTokens) Current(context.Context) (*model.Token, error) {
	if f.calls.Add(1) > f.n {
		return nil, &esi.AuthError{Err: errors.New("refresh rejected")}
	}
	return &model.Token{AccessToken: "access", TokenType: "Bearer"}, nil
}

func (f *failingTokens) Refresh(context.Context) (*model.Token, error) {
	return nil, &esi.AuthError{Err: errors.New("refresh rejected")}
}

func TestAggregateRefreshFailureMidCycleIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		setup func(srv *esitest.Server)
	}{
		{
			name: "contract items",
			setup: func(srv *esitest.Server) {
				srv.Handle(contractsPath, http.StatusOK, []map[string]any{
					contract(1, model.ContractStatusOutstanding, 60003760),
				})
				srv.Handle(itemsPath(1), http.StatusOK, items(600))
			},
		},
		{
			name: "structures",
			setup: func(srv *esitest.Server) {
				srv.Handle(contractsPath, http.StatusOK, []map[string]any{
					contract(1, model.ContractStatusOutstanding, 100000001),
				})
				srv.Handle("/universe/structures/100000001/", http.StatusOK, map[string]any{"solar_system_id": 42})
				srv.Handle(itemsPath(1), http.StatusOK, items(600))
			},
		},
		{
			name: "extra contract pages",
			setup: func(srv *esitest.Server) {
				srv.HandleRoute(contractsPath, esitest.Route{
					Status: http.StatusOK,
					Pages:  2,
					Body:   []map[string]any{contract(1, model.ContractStatusOutstanding, 60003760)},
				})
				srv.Handle(contractsPath+"?page=2", http.StatusOK, []map[string]any{})
				srv.Handle(itemsPath(1), http.StatusOK, items(600))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := esitest.New(t)
			tt.setup(srv)

			responses := cache.NewMemoryCache()
			t.Cleanup(func() { responses.Close() })
			client := esi.NewClient(esi.Config{BaseURL: srv.URL, Workers: 2}, &failingTokens{n: 1}, responses, esi.WithHTTPClient(srv.Client()))

			agg := service.NewAggregator(client, nil, shipWatch, service.AggregatorConfig{CorporationID: corpID})
			got, err := agg.Aggregate(context.Background(), nil)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, esi.IsAuthError(err))
			assert.Zero(t, srv.Calls(itemsPath(1)))
		})
	}
}
