// Package geo resolves free-text place names against the country catalog and
// the geocoding oracle: alias-aware country lookup, city-to-country
// attribution, and cached forward geocoding.
package geo

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"tripwise/internal/external"
	"tripwise/internal/types"
)

// countryAliases maps colloquial, historical or native country names to the
// name their catalog record is stored under. Keys are in squashed form
// (lowercase, all whitespace removed); values are the canonical spelling.
var countryAliases = map[string]string{
	"holland":               "netherlands",
	"uk":                    "united kingdom",
	"greatbritain":          "united kingdom",
	"england":               "united kingdom",
	"usa":                   "united states",
	"america":               "united states",
	"unitedstatesofamerica": "united states",
	"czechia":               "czech republic",
	"burma":                 "myanmar",
	"persia":                "iran",
	"deutschland":           "germany",
	"espana":                "spain",
	"ellada":                "greece",
	"nippon":                "japan",
}

// resolveAlias rewrites a free-text country name through the alias table.
// Unknown names pass through unchanged.
func resolveAlias(freeText string) string {
	if target, ok := countryAliases[types.SquashName(freeText)]; ok {
		return target
	}
	return freeText
}

// CatalogReader is the slice of the record store the locator scans:
// directory listings plus point reads of country records.
type CatalogReader interface {
	Read(ctx context.Context, name string, out any) (bool, error)
	List(ctx context.Context, dir string) ([]string, error)
}

// Locator resolves free-text country names to stored country records and
// free-text city names to countries via the geocoding oracle.
type Locator struct {
	store    CatalogReader
	geocoder external.Geocoder
	cache    Cache
	logger   *slog.Logger
}

// LocatorConfig holds the dependencies for creating a Locator.
type LocatorConfig struct {
	Store    CatalogReader
	Geocoder external.Geocoder

	// Cache defaults to a fresh in-memory cache expiring after CacheTTL.
	Cache Cache
	// CacheTTL bounds how long the default cache memoizes a forward-geocode
	// hit. Zero means entries never expire. Ignored when Cache is set.
	CacheTTL time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewLocator creates a new Locator.
func NewLocator(cfg LocatorConfig) *Locator {
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache(cfg.CacheTTL)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		store:    cfg.Store,
		geocoder: cfg.Geocoder,
		cache:    cache,
		logger:   logger,
	}
}

// FindCountryResource locates the catalog record whose own name matches a
// free-text country name. The alias table is applied first; a record matches
// when its name equals the target under EITHER normalization scheme, the
// diacritic fold or the whitespace strip. The first match in listing order
// wins and scanning stops. The filename is never consulted for matching: the
// record's name field is authoritative.
func (l *Locator) FindCountryResource(ctx context.Context, freeText string) (resource string, name string, ok bool, err error) {
	target := resolveAlias(freeText)
	foldedTarget := types.FoldName(target)
	squashedTarget := types.SquashName(target)
	if foldedTarget == "" {
		return "", "", false, nil
	}

	resources, err := l.store.List(ctx, types.ResourceCountriesDir)
	if err != nil {
		return "", "", false, err
	}

	for _, res := range resources {
		var country types.Country
		found, err := l.store.Read(ctx, res, &country)
		if err != nil {
			return "", "", false, err
		}
		if !found {
			continue // removed between List and Read
		}
		if types.FoldName(country.Name) == foldedTarget || types.SquashName(country.Name) == squashedTarget {
			return res, country.Name, true, nil
		}
	}

	return "", "", false, nil
}

// CountryForCity determines which country a city belongs to: forward-geocode
// the city name, then reverse-geocode the hit and take the country component.
// Used only when the caller supplied no country of their own.
func (l *Locator) CountryForCity(ctx context.Context, city string) (string, error) {
	coords, err := l.Forward(ctx, city, "")
	if err != nil {
		return "", err
	}
	if coords == nil {
		return "", types.NewAppError(types.ErrCodeNotFoundCity,
			fmt.Sprintf("no place named %q could be located", city), nil)
	}

	addr, err := l.geocoder.Reverse(ctx, *coords)
	if err != nil {
		return "", err
	}
	if addr == nil || addr.Country == "" {
		return "", types.NewAppError(types.ErrCodeNotFoundCountry,
			fmt.Sprintf("could not determine the country of %q", city), nil)
	}

	l.logger.DebugContext(ctx, "city attributed to country",
		"city", city,
		"country", addr.Country,
	)
	return addr.Country, nil
}

// Forward resolves a place name, optionally biased by a country hint, to
// coordinates. Hits are memoized; (nil, nil) means the oracle has no match
// and is deliberately not cached, so a place added to the oracle later is
// not shadowed forever.
func (l *Locator) Forward(ctx context.Context, place, countryHint string) (*types.Coordinates, error) {
	key := cacheKey(place, countryHint)
	if coords, ok := l.cache.Get(key); ok {
		return &coords, nil
	}

	query := place
	if countryHint != "" {
		query = place + ", " + countryHint
	}

	coords, err := l.geocoder.Forward(ctx, query)
	if err != nil || coords == nil {
		return coords, err
	}

	l.cache.Set(key, *coords)
	return coords, nil
}

// Reverse attributes coordinates to address components. (nil, nil) means the
// point belongs to no address, open ocean for instance.
func (l *Locator) Reverse(ctx context.Context, coords types.Coordinates) (*types.Address, error) {
	return l.geocoder.Reverse(ctx, coords)
}

func cacheKey(place, country string) string {
	return types.FoldName(place) + "|" + types.FoldName(country)
}

// CountryResource derives the catalog resource name for a country. It is
// used when a record is created for a country the catalog has never seen, so
// the derived name must be stable across spellings of the same country.
func CountryResource(name string) string {
	slug := strings.ReplaceAll(types.FoldName(resolveAlias(name)), " ", "-")
	return path.Join(types.ResourceCountriesDir, slug+".json")
}
