package esi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	fallback := 300 * time.Second

	tests := []struct {
		name   string
		header http.Header
		want   time.Duration
	}{
		{"absent", http.Header{}, fallback},
		{"max-age", http.Header{"Cache-Control": {"public, max-age=120"}}, 120 * time.Second},
		{"no-store", http.Header{"Cache-Control": {"no-store"}}, 0},
		{
			"expires relative to date",
			http.Header{
				"Date":    {now.Format(http.TimeFormat)},
				"Expires": {now.Add(90 * time.Second).Format(http.TimeFormat)},
			},
			90 * time.Second,
		},
		{"expires in past", http.Header{"Expires": {now.Add(-time.Minute).Format(http.TimeFormat)}}, -time.Minute},
		{"bad expires", http.Header{"Expires": {"soon"}}, fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cacheTTL(tt.header, now, fallback))
		})
	}
}

func TestPages(t *testing.T) {
	assert.Equal(t, 1, pages(http.Header{}))
	assert.Equal(t, 3, pages(http.Header{"X-Pages": {"3"}}))
	assert.Equal(t, 1, pages(http.Header{"X-Pages": {"0"}}))
}
