package service

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"rsm-inventory-bot/internal/esi"
	"rsm-inventory-bot/internal/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MinQueryLength is the shortest location text that triggers a search.
const MinQueryLength = 3

var mentionPattern = regexp.MustCompile(`<@[!&]?\d+>`)

// StripMentions removes chat mention markup and surrounding whitespace.
func StripMentions(text string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
}

// LocationResolver maps free text to a solar system.
type LocationResolver struct {
	gw          Gateway
	characterID int64
	log         zerolog.Logger
}

// NewLocationResolver creates a resolver searching as characterID.
func NewLocationResolver(gw Gateway, characterID int64) *LocationResolver {
	return &LocationResolver{
		gw:          gw,
		characterID: characterID,
		log:         log.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns the first solar system matching text, or nil when the
// text is too short, nothing matches or upstream fails. A nil result means
// "no location filter". The name lookup failing still yields the id.
func (r *LocationResolver) Resolve(ctx context.Context, text string) *model.Location {
	l := r.log.With().Str("cycle_id", CycleID(ctx)).Logger()

	query := StripMentions(text)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return nil
	}

	resp := r.gw.Call(ctx, esi.Search(r.characterID, query))
	if !resp.OK() {
		l.Warn().Err(resp.Err).Str("query", query).Msg("location search failed")
		return nil
	}

	var result model.SearchResult
	if err := resp.Decode(&result); err != nil || len(result.SolarSystem) == 0 {
		l.Info().Str("query", query).Msg("no solar system matched")
		return nil
	}

	loc := &model.Location{SystemID: result.SolarSystem[0]}

	resp = r.gw.Call(ctx, esi.SolarSystem(loc.SystemID))
	var system model.SolarSystem
	if resp.OK() && resp.Decode(&system) == nil {
		loc.Name = system.Name
	} else {
		l.Warn().Err(resp.Err).Int32("system_id", loc.SystemID).Msg("solar system lookup failed")
	}

	l.Debug().Str("query", query).Int32("system_id", loc.SystemID).Str("name", loc.Name).Msg("location resolved")
	return loc
}
