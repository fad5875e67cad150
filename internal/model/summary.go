package model

import (
	"fmt"
	"time"
)

// Summary is the presentation payload for one query.
type Summary struct {
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Author        SummaryAuthor `json:"author"`
	ThumbnailURL  string        `json:"thumbnail_url,omitempty"`
	Color         int           `json:"color"`
	Rows          []SummaryRow  `json:"rows"`
	LocationID    int32         `json:"location_id,omitempty"`
	ContractsUsed int           `json:"contracts_used"`
	Errors        int           `json:"errors"`
	Timestamp     time.Time     `json:"timestamp"`
}

// SummaryAuthor is the author block shown on the summary card.
type SummaryAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// SummaryRow is one watch-list entry on the summary card.
type SummaryRow struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Max   int    `json:"max"`
}

// Value renders the row value as shown in chat.
func (r SummaryRow) Value() string {
	return fmt.Sprintf("%d of %d", r.Count, r.Max)
}
