package model

// Structure is a player-owned structure.
type Structure struct {
	StructureID   int64  `json:"-"`
	Name          string `json:"name"`
	OwnerID       int64  `json:"owner_id"`
	SolarSystemID int32  `json:"solar_system_id"`
	TypeID        int32  `json:"type_id,omitempty"`
}

// SolarSystem carries the fields of a solar system lookup that are displayed.
type SolarSystem struct {
	SystemID       int32   `json:"system_id"`
	Name           string  `json:"name"`
	SecurityStatus float64 `json:"security_status"`
}

// Location is a resolved location query.
type Location struct {
	SystemID int32
	Name     string
}

// SearchResult is the category-keyed id list returned by a search.
type SearchResult struct {
	SolarSystem []int32 `json:"solar_system"`
}
