package model_test

import (
	"testing"
	"time"

	"rsm-inventory-bot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchListDecode(t *testing.T) {
	var w model.WatchList
	require.NoError(t, w.Decode(`[{"id":600,"name":"Ship","max":5},{"id":601,"name":"Other","price":2500000,"max":2}]`))
	require.Len(t, w, 2)
	assert.Equal(t, int32(600), w[0].TypeID)
	assert.Equal(t, 2500000.0, w[1].Price)
	require.NoError(t, w.Validate())
}

func TestWatchListDecodeInvalid(t *testing.T) {
	var w model.WatchList
	require.Error(t, w.Decode(`{"id":1}`))
}

func TestWatchListValidateDuplicate(t *testing.T) {
	w := model.WatchList{
		{TypeID: 600, Name: "Ship", Max: 5},
		{TypeID: 600, Name: "Ship again", Max: 1},
	}
	require.ErrorContains(t, w.Validate(), "duplicate type id 600")
}

func TestReferencePriceFallback(t *testing.T) {
	e := model.WatchListEntry{TypeID: 600, Name: "Ship"}
	assert.Equal(t, 1000.0, e.ReferencePrice(1000))
	e.Price = 5
	assert.Equal(t, 5.0, e.ReferencePrice(1000))
}

func TestTallyOnlyCountsWatchedTypes(t *testing.T) {
	w := model.WatchList{{TypeID: 600, Name: "Ship", Max: 5}}
	tally := model.NewTally(w)
	tally.Add(600)
	tally.Add(700)
	tally.Add(600)

	assert.Equal(t, model.Tally{600: 2}, tally)
	assert.NotContains(t, tally, int32(700))
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	tok := model.Token{AccessToken: "a", ExpiresAt: now.Add(time.Minute)}
	assert.False(t, tok.Expired(now))
	assert.True(t, tok.Expired(now.Add(time.Minute)))

	tok.AccessToken = ""
	assert.True(t, tok.Expired(now))
}

func TestSummaryRowValue(t *testing.T) {
	assert.Equal(t, "1 of 5", model.SummaryRow{Name: "Ship", Count: 1, Max: 5}.Value())
}
