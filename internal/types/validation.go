package types

// Validation constraint constants.
const (
	MinLat            = -90.0
	MaxLat            = 90.0
	MinLon            = -180.0
	MaxLon            = 180.0
	MaxNameLength     = 200
	MinPasswordLength = 8
	MaxPasswordLength = 72 // bcrypt input limit
)

// ValidCoordinates returns true if lat/lon fall within the WGS84 bounds.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= MinLat && lat <= MaxLat && lon >= MinLon && lon <= MaxLon
}
