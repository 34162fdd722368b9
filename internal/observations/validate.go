// Package observations implements the domain rules for observation records:
// schema validation and normalization of submitted payloads, and read-side
// filter evaluation.
package observations

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"observatory/internal/types"
)

// requiredFields lists the fields every full observation submission must
// carry. Partial updates may omit any of them, but a field that is present
// must still validate individually.
var requiredFields = []string{
	"timestamp",
	"timezone",
	"latitude",
	"longitude",
	"satellite_id",
}

// coerceStatus is the result of attempting a numeric coercion.
type coerceStatus int

const (
	coerceOK coerceStatus = iota
	coerceNotNumeric
)

// coerceFloat converts a decoded JSON value to float64. Numeric strings are
// accepted and converted; everything else is rejected. The stored record
// always carries floats regardless of how the client submitted the value.
func coerceFloat(v any) (float64, coerceStatus) {
	switch n := v.(type) {
	case float64:
		return n, coerceOK
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, coerceNotNumeric
		}
		return f, coerceOK
	case int:
		return float64(n), coerceOK
	case int64:
		return float64(n), coerceOK
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, coerceNotNumeric
		}
		return f, coerceOK
	default:
		return 0, coerceNotNumeric
	}
}

// isNumeric reports whether a decoded JSON value is a plain number.
// Unlike coordinates, spectral index magnitudes do not accept strings.
func isNumeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Normalize validates a full observation submission and returns the
// normalized record. Every field-level problem found is collected; on any
// failure a single aggregated validation_failed error is returned carrying
// the complete list.
//
// The returned record stores the timestamp normalized to UTC, coordinates as
// floats, and retains the original payload map for free-form filtering.
func Normalize(payload map[string]any) (*types.Observation, error) {
	var fields []types.FieldError

	for _, name := range requiredFields {
		if _, ok := payload[name]; !ok {
			fields = append(fields, types.FieldError{
				Field:   name,
				Code:    types.FieldErrMissing,
				Message: fmt.Sprintf("%s is required", name),
			})
		}
	}

	obs := &types.Observation{}

	if raw, ok := payload["timestamp"]; ok {
		if ts, fe := validateTimestamp(raw); fe != nil {
			fields = append(fields, *fe)
		} else {
			obs.Timestamp = ts
		}
	}

	if raw, ok := payload["timezone"]; ok {
		if tz, fe := validateNonEmptyString("timezone", raw); fe != nil {
			fields = append(fields, *fe)
		} else {
			obs.Timezone = tz
		}
	}

	if raw, ok := payload["latitude"]; ok {
		if lat, fe := validateCoordinate("latitude", raw, types.LatInRange, types.MinLat, types.MaxLat); fe != nil {
			fields = append(fields, *fe)
		} else {
			obs.Latitude = lat
		}
	}

	if raw, ok := payload["longitude"]; ok {
		if lon, fe := validateCoordinate("longitude", raw, types.LonInRange, types.MinLon, types.MaxLon); fe != nil {
			fields = append(fields, *fe)
		} else {
			obs.Longitude = lon
		}
	}

	if raw, ok := payload["satellite_id"]; ok {
		if sat, fe := validateNonEmptyString("satellite_id", raw); fe != nil {
			fields = append(fields, *fe)
		} else {
			obs.SatelliteID = sat
		}
	}

	if raw, ok := payload["spectral_indices"]; ok {
		if si, fe := validateSpectralIndices(raw); fe != nil {
			fields = append(fields, *fe)
		} else {
			obs.SpectralIndices = si
		}
	}

	if raw, ok := payload["notes"]; ok {
		if notes, fe := validateString("notes", raw); fe != nil {
			fields = append(fields, *fe)
		} else {
			obs.Notes = notes
		}
	}

	if len(fields) > 0 {
		return nil, types.NewValidationError(fields)
	}

	obs.Payload = clonePayload(payload)
	return obs, nil
}

// Patch holds the validated field set of a partial update. Nil fields were
// not supplied and are left untouched by Apply.
type Patch struct {
	Timestamp       *time.Time
	Timezone        *string
	Latitude        *float64
	Longitude       *float64
	SatelliteID     *string
	SpectralIndices types.SpectralIndices
	Notes           *string

	// raw is the submitted map, merged into the record's payload so
	// free-form filters see the updated values.
	raw map[string]any
}

// NormalizePatch validates a partial update. Presence is not required for
// any field, but every field that is present must individually validate.
// Errors are aggregated exactly as in Normalize.
func NormalizePatch(payload map[string]any) (*Patch, error) {
	var fields []types.FieldError
	p := &Patch{raw: clonePayload(payload)}

	if raw, ok := payload["timestamp"]; ok {
		if ts, fe := validateTimestamp(raw); fe != nil {
			fields = append(fields, *fe)
		} else {
			p.Timestamp = &ts
		}
	}
	if raw, ok := payload["timezone"]; ok {
		if tz, fe := validateNonEmptyString("timezone", raw); fe != nil {
			fields = append(fields, *fe)
		} else {
			p.Timezone = &tz
		}
	}
	if raw, ok := payload["latitude"]; ok {
		if lat, fe := validateCoordinate("latitude", raw, types.LatInRange, types.MinLat, types.MaxLat); fe != nil {
			fields = append(fields, *fe)
		} else {
			p.Latitude = &lat
		}
	}
	if raw, ok := payload["longitude"]; ok {
		if lon, fe := validateCoordinate("longitude", raw, types.LonInRange, types.MinLon, types.MaxLon); fe != nil {
			fields = append(fields, *fe)
		} else {
			p.Longitude = &lon
		}
	}
	if raw, ok := payload["satellite_id"]; ok {
		if sat, fe := validateNonEmptyString("satellite_id", raw); fe != nil {
			fields = append(fields, *fe)
		} else {
			p.SatelliteID = &sat
		}
	}
	if raw, ok := payload["spectral_indices"]; ok {
		if si, fe := validateSpectralIndices(raw); fe != nil {
			fields = append(fields, *fe)
		} else {
			p.SpectralIndices = si
		}
	}
	if raw, ok := payload["notes"]; ok {
		if notes, fe := validateString("notes", raw); fe != nil {
			fields = append(fields, *fe)
		} else {
			p.Notes = &notes
		}
	}

	if len(fields) > 0 {
		return nil, types.NewValidationError(fields)
	}
	return p, nil
}

// Apply merges the patch into an existing record. The submitted keys are
// also merged into the record's retained payload.
func (p *Patch) Apply(o *types.Observation) {
	if p.Timestamp != nil {
		o.Timestamp = *p.Timestamp
	}
	if p.Timezone != nil {
		o.Timezone = *p.Timezone
	}
	if p.Latitude != nil {
		o.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		o.Longitude = *p.Longitude
	}
	if p.SatelliteID != nil {
		o.SatelliteID = *p.SatelliteID
	}
	if p.SpectralIndices != nil {
		o.SpectralIndices = p.SpectralIndices
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
	if len(p.raw) > 0 {
		if o.Payload == nil {
			o.Payload = make(types.Payload, len(p.raw))
		}
		for k, v := range p.raw {
			o.Payload[k] = v
		}
	}
}

func validateTimestamp(raw any) (time.Time, *types.FieldError) {
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, &types.FieldError{
			Field:   "timestamp",
			Code:    types.FieldErrBadType,
			Message: "timestamp must be a string",
		}
	}
	ts, ok := types.ParseTimestamp(s)
	if !ok {
		return time.Time{}, &types.FieldError{
			Field:   "timestamp",
			Code:    types.FieldErrBadFormat,
			Message: "timestamp must be ISO 8601 (e.g. 2025-01-10T12:00:00Z)",
		}
	}
	return ts, nil
}

func validateCoordinate(name string, raw any, inRange func(float64) bool, lo, hi float64) (float64, *types.FieldError) {
	v, status := coerceFloat(raw)
	if status != coerceOK {
		return 0, &types.FieldError{
			Field:   name,
			Code:    types.FieldErrNotNumeric,
			Message: fmt.Sprintf("%s must be numeric", name),
		}
	}
	if !inRange(v) {
		return 0, &types.FieldError{
			Field:   name,
			Code:    types.FieldErrOutOfRange,
			Message: fmt.Sprintf("%s must be within [%g, %g]", name, lo, hi),
		}
	}
	return v, nil
}

func validateString(name string, raw any) (string, *types.FieldError) {
	s, ok := raw.(string)
	if !ok {
		return "", &types.FieldError{
			Field:   name,
			Code:    types.FieldErrBadType,
			Message: fmt.Sprintf("%s must be a string", name),
		}
	}
	return s, nil
}

func validateNonEmptyString(name string, raw any) (string, *types.FieldError) {
	s, fe := validateString(name, raw)
	if fe != nil {
		return "", fe
	}
	if strings.TrimSpace(s) == "" {
		return "", &types.FieldError{
			Field:   name,
			Code:    types.FieldErrMissing,
			Message: fmt.Sprintf("%s must not be empty", name),
		}
	}
	return s, nil
}

// validateSpectralIndices rejects non-mapping values, empty mappings, keys
// outside StandardIndices, and non-numeric magnitudes. The unknown-key
// message enumerates both the offending keys and the full allowed set.
func validateSpectralIndices(raw any) (types.SpectralIndices, *types.FieldError) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &types.FieldError{
			Field:   "spectral_indices",
			Code:    types.FieldErrBadType,
			Message: "spectral_indices must be an object of index name to numeric value",
		}
	}
	if len(m) == 0 {
		return nil, &types.FieldError{
			Field:   "spectral_indices",
			Code:    types.FieldErrBadFormat,
			Message: "spectral_indices must contain at least one index",
		}
	}

	var unknown []string
	var nonNumeric []string
	out := make(types.SpectralIndices, len(m))
	for key, val := range m {
		if _, allowed := types.StandardIndices[key]; !allowed {
			unknown = append(unknown, key)
			continue
		}
		f, numeric := isNumeric(val)
		if !numeric {
			nonNumeric = append(nonNumeric, key)
			continue
		}
		out[key] = f
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &types.FieldError{
			Field: "spectral_indices",
			Code:  types.FieldErrBadFormat,
			Message: fmt.Sprintf("unknown spectral indices [%s]; allowed indices are [%s]",
				strings.Join(unknown, ", "), strings.Join(types.AllowedIndexNames(), ", ")),
		}
	}
	if len(nonNumeric) > 0 {
		sort.Strings(nonNumeric)
		return nil, &types.FieldError{
			Field:   "spectral_indices",
			Code:    types.FieldErrNotNumeric,
			Message: fmt.Sprintf("spectral index values must be numeric: [%s]", strings.Join(nonNumeric, ", ")),
		}
	}
	return out, nil
}

func clonePayload(payload map[string]any) types.Payload {
	cp := make(types.Payload, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	return cp
}
