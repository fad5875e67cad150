package esi_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rsm-inventory-bot/internal/esi"
	"rsm-inventory-bot/internal/esi/esitest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, srv *esitest.Server, workers int) *esi.Client {
	t.Helper()
	tokens := newTokenStore(t, srv, newMemoryCache(t))
	require.NoError(t, tokens.Load(context.Background()))
	return esi.NewClient(esi.Config{
		BaseURL:   srv.URL,
		UserAgent: "test-agent",
		Workers:   workers,
	}, tokens, newMemoryCache(t), esi.WithHTTPClient(srv.Client()))
}

func TestClientCallAttachesTokenAndCaches(t *testing.T) {
	ctx := context.Background()
	srv := esitest.New(t)
	srv.Handle("/universe/systems/42/", http.StatusOK, map[string]any{"system_id": 42, "name": "Jita"})
	client := newClient(t, srv, 5)

	resp := client.Call(ctx, esi.SolarSystem(42))
	require.True(t, resp.OK())
	assert.False(t, resp.Cached)
	assert.Equal(t, "Bearer access-1", srv.LastAuthorization())

	var sys struct {
		Name string `json:"name"`
	}
	require.NoError(t, resp.Decode(&sys))
	assert.Equal(t, "Jita", sys.Name)

	again := client.Call(ctx, esi.SolarSystem(42))
	require.True(t, again.OK())
	assert.True(t, again.Cached)
	assert.Equal(t, 1, srv.Calls("/universe/systems/42/"))
}

func TestClientDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	srv := esitest.New(t)
	srv.Handle("/universe/structures/100000001/", http.StatusForbidden, map[string]string{"error": "Forbidden"})
	client := newClient(t, srv, 5)

	for range 2 {
		resp := client.Call(ctx, esi.Structure(100000001))
		require.False(t, resp.OK())

		var upstream *esi.UpstreamError
		require.True(t, errors.As(resp.Err, &upstream))
		assert.Equal(t, http.StatusForbidden, upstream.StatusCode)
		assert.Equal(t, "Forbidden", upstream.Message)
	}
	assert.Equal(t, 2, srv.Calls("/universe/structures/100000001/"))
}

func TestClientRespectsNoStore(t *testing.T) {
	ctx := context.Background()
	srv := esitest.New(t)
	srv.HandleRoute("/universe/systems/1/", esitest.Route{
		Status: http.StatusOK,
		Body:   map[string]any{"name": "A"},
		Header: http.Header{"Cache-Control": {"no-store"}},
	})
	client := newClient(t, srv, 5)

	client.Call(ctx, esi.SolarSystem(1))
	client.Call(ctx, esi.SolarSystem(1))
	assert.Equal(t, 2, srv.Calls("/universe/systems/1/"))
}

func TestClientCallAuthRetryRefreshesOnce(t *testing.T) {
	ctx := context.Background()
	srv := esitest.New(t)
	var hits atomic.Int32
	srv.HandleFunc("/corporations/99/contracts/", func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":"token expired"}`)
			return
		}
		fmt.Fprint(w, `[]`)
	})
	client := newClient(t, srv, 5)

	resp := client.CallAuthRetry(ctx, esi.CorporationContracts(99, 1))
	require.True(t, resp.OK())
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 2, srv.TokenCalls())
	assert.Equal(t, "Bearer access-2", srv.LastAuthorization())
}

func TestClientCallAuthRetrySurfacesRepeatedFailure(t *testing.T) {
	ctx := context.Background()
	srv := esitest.New(t)
	srv.Handle("/corporations/99/contracts/", http.StatusForbidden, map[string]string{"error": "no roles"})
	client := newClient(t, srv, 5)

	resp := client.CallAuthRetry(ctx, esi.CorporationContracts(99, 1))
	require.False(t, resp.OK())
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 2, srv.Calls("/corporations/99/contracts/"))
}

func TestClientCallAuthRetryRefreshFailure(t *testing.T) {
	ctx := context.Background()
	srv := esitest.New(t)
	srv.Handle("/corporations/99/contracts/", http.StatusUnauthorized, map[string]string{"error": "expired"})
	client := newClient(t, srv, 5)

	// Prime the token, then break the endpoint.
	require.False(t, client.Call(ctx, esi.CorporationContracts(99, 1)).OK())
	srv.FailTokens(true)

	resp := client.CallAuthRetry(ctx, esi.CorporationContracts(99, 1))
	require.Error(t, resp.Err)
	assert.True(t, esi.IsAuthError(resp.Err))
}

func TestClientCallManyPairsResponsesWithOperations(t *testing.T) {
	ctx := context.Background()
	srv := esitest.New(t)

	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	for i := int64(1); i <= 12; i++ {
		id := 100000000 + i
		delay := time.Duration(13-i) * 5 * time.Millisecond
		srv.HandleFunc(fmt.Sprintf("/universe/structures/%d/", id), func(w http.ResponseWriter, r *http.Request) {
			n := inFlight.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			time.Sleep(delay)
			inFlight.Add(-1)

			if id%4 == 0 {
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `{"error":"Forbidden"}`)
				return
			}
			fmt.Fprintf(w, `{"name":"S%d","solar_system_id":%d}`, id, id%3)
		})
	}
	client := newClient(t, srv, 3)

	ops := make([]esi.Operation, 0, 12)
	for i := int64(1); i <= 12; i++ {
		ops = append(ops, esi.Structure(100000000+i))
	}
	results := client.CallMany(ctx, ops)

	require.Len(t, results, len(ops))
	assert.LessOrEqual(t, peak.Load(), int32(3))
	for i, resp := range results {
		require.NotNil(t, resp)
		id := resp.Operation.Param("structure_id")
		assert.Equal(t, ops[i].Param("structure_id"), id)
		if id%4 == 0 {
			assert.False(t, resp.OK())
			continue
		}
		require.True(t, resp.OK())
		var s struct {
			SolarSystemID int64 `json:"solar_system_id"`
		}
		require.NoError(t, resp.Decode(&s))
		assert.Equal(t, id%3, s.SolarSystemID)
	}
}

func TestResponseDecodeEmptyBody(t *testing.T) {
	for _, body := range []string{"", "null", "  "} {
		resp := &esi.Response{StatusCode: http.StatusOK, Body: []byte(body)}
		assert.False(t, resp.HasData())
		assert.ErrorIs(t, resp.Decode(&struct{}{}), esi.ErrDataIntegrity)
	}
}

func TestOperationKeyIsNormalized(t *testing.T) {
	a := esi.Search(7, "jita")
	b := esi.Search(7, "jita")
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, esi.CorporationContracts(1, 1).Key(), esi.CorporationContracts(1, 2).Key())
	assert.Equal(t, int64(55), esi.ContractItems(1, 55).Param("contract_id"))
}
