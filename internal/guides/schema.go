package guides

import (
	"encoding/json"
	"strings"

	"tripwise/internal/types"
)

// ParseCityDocument validates raw generation-oracle output against the
// persisted city schema. The oracle runs in JSON mode but its output is
// untrusted: anything that is not a JSON object carrying a non-empty string
// name is rejected as ErrCodeGenerationInvalid, and nothing reaches the
// store. Fields beyond the schema are dropped; missing optional fields stay
// empty.
func ParseCityDocument(raw json.RawMessage) (types.City, error) {
	var city types.City
	if err := json.Unmarshal(raw, &city); err != nil {
		return types.City{}, types.NewAppError(
			types.ErrCodeGenerationInvalid,
			"generation oracle returned an unparseable guide document",
			err,
		)
	}

	city.Name = strings.TrimSpace(city.Name)
	if city.Name == "" {
		return types.City{}, types.NewAppError(
			types.ErrCodeGenerationInvalid,
			"generation oracle returned a guide with no city name",
			nil,
		)
	}

	return city, nil
}

// ParseItineraryDocument validates raw generation-oracle output for an
// itinerary. The document is relayed to the caller verbatim, so the only
// requirement is that it is a well-formed JSON object.
func ParseItineraryDocument(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") || !json.Valid([]byte(trimmed)) {
		return nil, types.NewAppError(
			types.ErrCodeGenerationInvalid,
			"generation oracle returned an unparseable itinerary document",
			nil,
		)
	}
	return json.RawMessage(trimmed), nil
}
