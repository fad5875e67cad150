package esi

import (
	"fmt"
	"net/url"
	"strconv"
)

// Operation names, following the upstream operation ids.
const (
	OpSearch               = "get_characters_character_id_search"
	OpSolarSystem          = "get_universe_systems_system_id"
	OpCorporationContracts = "get_corporations_corporation_id_contracts"
	OpStructure            = "get_universe_structures_structure_id"
	OpContractItems        = "get_corporations_corporation_id_contracts_contract_id_items"
)

// Operation is a single upstream GET request.
type Operation struct {
	Name   string
	Path   string
	Query  url.Values
	Params map[string]int64
}

// Key is the normalized signature of the operation, used as the response cache key.
func (o Operation) Key() string {
	if len(o.Query) == 0 {
		return o.Name + ":" + o.Path
	}
	// Encode sorts by key.
	return o.Name + ":" + o.Path + "?" + o.Query.Encode()
}

// Param returns a path parameter so responses can be matched back to requests.
func (o Operation) Param(name string) int64 {
	return o.Params[name]
}

// Search is a fuzzy search restricted to solar systems.
func Search(characterID int64, text string) Operation {
	return Operation{
		Name: OpSearch,
		Path: fmt.Sprintf("/characters/%d/search/", characterID),
		Query: url.Values{
			"categories": {"solar_system"},
			"search":     {text},
			"strict":     {"false"},
		},
		Params: map[string]int64{"character_id": characterID},
	}
}

// SolarSystem looks up a solar system by id.
func SolarSystem(systemID int32) Operation {
	return Operation{
		Name:   OpSolarSystem,
		Path:   fmt.Sprintf("/universe/systems/%d/", systemID),
		Params: map[string]int64{"system_id": int64(systemID)},
	}
}

// CorporationContracts lists one page of a corporation's contracts.
func CorporationContracts(corporationID int64, page int) Operation {
	op := Operation{
		Name:   OpCorporationContracts,
		Path:   fmt.Sprintf("/corporations/%d/contracts/", corporationID),
		Params: map[string]int64{"corporation_id": corporationID, "page": int64(page)},
	}
	if page > 1 {
		op.Query = url.Values{"page": {strconv.Itoa(page)}}
	}
	return op
}

// Structure looks up a player-owned structure.
func Structure(structureID int64) Operation {
	return Operation{
		Name:   OpStructure,
		Path:   fmt.Sprintf("/universe/structures/%d/", structureID),
		Params: map[string]int64{"structure_id": structureID},
	}
}

// ContractItems lists the items of a corporation contract.
func ContractItems(corporationID, contractID int64) Operation {
	return Operation{
		Name:   OpContractItems,
		Path:   fmt.Sprintf("/corporations/%d/contracts/%d/items/", corporationID, contractID),
		Params: map[string]int64{"corporation_id": corporationID, "contract_id": contractID},
	}
}
