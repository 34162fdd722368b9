package observations

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"observatory/internal/types"
)

// Reserved query parameter names. Everything else becomes a free-form
// payload-equality filter.
const (
	paramMinLat    = "min_lat"
	paramMaxLat    = "max_lat"
	paramMinLon    = "min_lon"
	paramMaxLon    = "max_lon"
	paramStartDate = "start_date"
	paramEndDate   = "end_date"
	paramID        = "id"
)

// ParseQuery interprets list-endpoint query parameters into an
// ObservationQuery. A malformed reserved parameter fails the whole request
// with a filter error naming the parameter; free-form parameters are taken
// verbatim (first value wins on repeats).
func ParseQuery(values url.Values) (types.ObservationQuery, error) {
	var q types.ObservationQuery

	floatParams := []struct {
		name string
		dest **float64
	}{
		{paramMinLat, &q.MinLat},
		{paramMaxLat, &q.MaxLat},
		{paramMinLon, &q.MinLon},
		{paramMaxLon, &q.MaxLon},
	}
	for _, p := range floatParams {
		raw := values.Get(p.name)
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.ObservationQuery{}, filterError(p.name, "must be a number")
		}
		*p.dest = &f
	}

	dateParams := []struct {
		name string
		dest **time.Time
	}{
		{paramStartDate, &q.StartDate},
		{paramEndDate, &q.EndDate},
	}
	for _, p := range dateParams {
		raw := values.Get(p.name)
		if raw == "" {
			continue
		}
		ts, ok := types.ParseTimestamp(raw)
		if !ok {
			return types.ObservationQuery{}, filterError(p.name, "must be an ISO 8601 date")
		}
		d := dateOf(ts)
		*p.dest = &d
	}

	if raw := values.Get(paramID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return types.ObservationQuery{}, filterError(paramID, "must be an integer")
		}
		q.ID = &id
	}

	for name := range values {
		switch name {
		case paramMinLat, paramMaxLat, paramMinLon, paramMaxLon,
			paramStartDate, paramEndDate, paramID:
			continue
		}
		if q.Fields == nil {
			q.Fields = make(map[string]string)
		}
		q.Fields[name] = values.Get(name)
	}

	return q, nil
}

func filterError(param, reason string) *types.AppError {
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationInvalidFilter,
		fmt.Sprintf("invalid filter parameter %q: %s", param, reason),
		nil,
		map[string]any{"parameter": param},
	)
}

// Match reports whether an observation satisfies every constraint of the
// query. Constraints are checked in a fixed order (bounding box, date range,
// id, payload equality) with short-circuit on the first miss, so every store
// backend filters identically.
func Match(o *types.Observation, q types.ObservationQuery) bool {
	if q.MinLat != nil && o.Latitude < *q.MinLat {
		return false
	}
	if q.MaxLat != nil && o.Latitude > *q.MaxLat {
		return false
	}
	if q.MinLon != nil && o.Longitude < *q.MinLon {
		return false
	}
	if q.MaxLon != nil && o.Longitude > *q.MaxLon {
		return false
	}

	if q.StartDate != nil || q.EndDate != nil {
		// A record with no parseable timestamp can never fall inside a
		// date window.
		if o.Timestamp.IsZero() {
			return false
		}
		d := dateOf(o.Timestamp)
		if q.StartDate != nil && d.Before(*q.StartDate) {
			return false
		}
		if q.EndDate != nil && d.After(*q.EndDate) {
			return false
		}
	}

	if q.ID != nil && o.ID != *q.ID {
		return false
	}

	for key, want := range q.Fields {
		got, ok := stringifyField(o, key)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Filter applies Match across a slice, preserving order.
func Filter(records []*types.Observation, q types.ObservationQuery) []*types.Observation {
	if !q.HasFilters() {
		return records
	}
	out := make([]*types.Observation, 0, len(records))
	for _, o := range records {
		if Match(o, q) {
			out = append(out, o)
		}
	}
	return out
}

// dateOf truncates an instant to its UTC date component.
func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// stringifyField resolves a free-form filter key against the record and
// renders the value as a comparison string. Scalars only: strings compare
// verbatim, numbers in minimal decimal notation (7.0 renders as "7"),
// booleans as "true"/"false". Nulls, objects, and arrays never match.
func stringifyField(o *types.Observation, key string) (string, bool) {
	v, ok := fieldValue(o, key)
	if !ok {
		return "", false
	}
	switch n := v.(type) {
	case string:
		return n, true
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case bool:
		return strconv.FormatBool(n), true
	default:
		return "", false
	}
}

// fieldValue prefers the typed columns so filters keep working against the
// normalized values, then falls back to the retained payload.
func fieldValue(o *types.Observation, key string) (any, bool) {
	switch key {
	case "timezone":
		return o.Timezone, true
	case "satellite_id":
		return o.SatelliteID, true
	case "latitude":
		return o.Latitude, true
	case "longitude":
		return o.Longitude, true
	case "notes":
		return o.Notes, true
	}
	if o.Payload == nil {
		return nil, false
	}
	v, ok := o.Payload[key]
	return v, ok
}
