package types

import (
	"sort"
	"time"
)

// Validation constraint constants.
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0
)

// LatInRange returns true if lat falls within [-90, 90].
func LatInRange(lat float64) bool { return lat >= MinLat && lat <= MaxLat }

// LonInRange returns true if lon falls within [-180, 180].
func LonInRange(lon float64) bool { return lon >= MinLon && lon <= MaxLon }

// IndexMetadata defines the canonical rules for a spectral index.
type IndexMetadata struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// StandardIndices defines the fixed set of spectral index names an
// observation may carry. All components MUST validate keys against this set.
var StandardIndices = map[string]IndexMetadata{
	"ndvi": {ID: "ndvi", Description: "Normalized difference vegetation index"},
	"evi":  {ID: "evi", Description: "Enhanced vegetation index"},
	"savi": {ID: "savi", Description: "Soil-adjusted vegetation index"},
	"ndwi": {ID: "ndwi", Description: "Normalized difference water index"},
	"nbr":  {ID: "nbr", Description: "Normalized burn ratio"},
	"gci":  {ID: "gci", Description: "Green chlorophyll index"},
}

// AllowedIndexNames returns the StandardIndices keys in sorted order, for
// stable error messages.
func AllowedIndexNames() []string {
	names := make([]string, 0, len(StandardIndices))
	for name := range StandardIndices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// timestampLayouts are the accepted profile of ISO 8601 timestamps, tried in
// order. The zoneless layouts are interpreted as UTC.
var timestampLayouts = []struct {
	layout string
	naive  bool // no offset in the layout; parse in UTC
}{
	{layout: time.RFC3339Nano},
	{layout: "2006-01-02T15:04:05.999999999", naive: true},
	{layout: "2006-01-02T15:04:05", naive: true},
	{layout: "2006-01-02", naive: true},
}

// ParseTimestamp parses an ISO 8601 timestamp string into a UTC instant.
// A trailing "Z" is the UTC designator; a timestamp lacking any offset is
// treated as UTC. Returns the zero time and false on parse failure.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, l := range timestampLayouts {
		var t time.Time
		var err error
		if l.naive {
			t, err = time.ParseInLocation(l.layout, s, time.UTC)
		} else {
			t, err = time.Parse(l.layout, s)
		}
		if err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// QuarterStart returns the first instant of the calendar quarter containing t
// (quarter boundaries: months 1, 4, 7, 10), in UTC.
func QuarterStart(t time.Time) time.Time {
	t = t.UTC()
	month := ((int(t.Month())-1)/3)*3 + 1
	return time.Date(t.Year(), time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// IsImmutable reports whether a record created at createdAt is locked against
// mutation and deletion: true when the creation instant falls before the
// start of the quarter containing now.
func IsImmutable(createdAt, now time.Time) bool {
	return createdAt.UTC().Before(QuarterStart(now))
}
