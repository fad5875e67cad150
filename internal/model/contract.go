package model

import "time"

// ContractStatusOutstanding marks a contract that is still open.
const ContractStatusOutstanding = "outstanding"

// Contract is a corporation contract as listed by the upstream API.
// Items stay nil until the item listing has been loaded.
type Contract struct {
	ContractID      int64          `json:"contract_id"`
	Status          string         `json:"status"`
	Type            string         `json:"type"`
	Title           string         `json:"title,omitempty"`
	IssuerID        int64          `json:"issuer_id"`
	StartLocationID int64          `json:"start_location_id"`
	Price           float64        `json:"price,omitempty"`
	DateIssued      time.Time      `json:"date_issued"`
	DateExpired     time.Time      `json:"date_expired"`
	Items           []ContractItem `json:"items,omitempty"`
}

// Outstanding reports whether the contract is still open.
func (c *Contract) Outstanding() bool {
	return c.Status == ContractStatusOutstanding
}

// ContractItem is a single line of a contract's item listing.
type ContractItem struct {
	RecordID    int64 `json:"record_id"`
	TypeID      int32 `json:"type_id"`
	Quantity    int32 `json:"quantity"`
	IsIncluded  bool  `json:"is_included"`
	IsSingleton bool  `json:"is_singleton"`
}
