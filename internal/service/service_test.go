package service_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"rsm-inventory-bot/internal/cache"
	"rsm-inventory-bot/internal/esi"
	"rsm-inventory-bot/internal/esi/esitest"
	"rsm-inventory-bot/internal/model"
	"rsm-inventory-bot/internal/service"

	"github.com/stretchr/testify/require"
)

const (
	corpID      int64 = 98000001
	characterID int64 = 90000001
)

var shipWatch = model.WatchList{{TypeID: 600, Name: "Ship", Max: 5}}

type fixture struct {
	srv       *esitest.Server
	client    *esi.Client
	contracts *cache.MemoryCache
	summaries *cache.MemoryCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := esitest.New(t)

	mem := func() *cache.MemoryCache {
		c := cache.NewMemoryCache()
		t.Cleanup(func() { c.Close() })
		return c
	}

	tokens := esi.NewTokenStore(esi.TokenConfig{
		ClientID:     "client",
		SecretKey:    "secret",
		TokenURL:     srv.TokenURL(),
		RefreshToken: "seed-refresh",
	}, mem(), esi.WithTokenHTTPClient(srv.Client()))
	require.NoError(t, tokens.Load(context.Background()))

	client := esi.NewClient(esi.Config{
		BaseURL: srv.URL,
		Workers: 4,
	}, tokens, mem(), esi.WithHTTPClient(srv.Client()))

	return &fixture{srv: srv, client: client, contracts: mem(), summaries: mem()}
}

func (f *fixture) aggregator(watch model.WatchList) *service.Aggregator {
	return service.NewAggregator(f.client, f.contracts, watch, service.AggregatorConfig{CorporationID: corpID})
}

func (f *fixture) inventory(watch model.WatchList) *service.InventoryService {
	return service.NewInventoryService(
		service.NewLocationResolver(f.client, characterID),
		f.aggregator(watch),
		service.NewSummaryBuilder(f.summaries, watch, service.SummaryConfig{AuthorName: "RSM Inventory", Color: 0x03FC73}),
	)
}

const contractsPath = "/corporations/98000001/contracts/"

func itemsPath(contractID int) string {
	return fmt.Sprintf("%s%d/items/", contractsPath, contractID)
}

func contract(id int, status string, origin int64) map[string]any {
	return map[string]any{
		"contract_id":       id,
		"status":            status,
		"type":              "item_exchange",
		"start_location_id": origin,
	}
}

func items(typeIDs ...int) []map[string]any {
	out := make([]map[string]any, len(typeIDs))
	for i, id := range typeIDs {
		out[i] = map[string]any{"record_id": i + 1, "type_id": id, "quantity": 1, "is_included": true}
	}
	return out
}

func (f *fixture) structure(id int64, systemID int32) {
	f.srv.Handle(fmt.Sprintf("/universe/structures/%d/", id), http.StatusOK, map[string]any{
		"name":            "Keepstar",
		"solar_system_id": systemID,
	})
}
