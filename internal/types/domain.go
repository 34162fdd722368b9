package types

import "time"

// Observation is the sole persisted entity: a geotagged satellite/sensor
// reading. Timestamps are stored normalized to UTC; coordinates are stored
// as floats regardless of how the client submitted them.
type Observation struct {
	ID              int64           `json:"id"`
	Timestamp       time.Time       `json:"timestamp"`
	Timezone        string          `json:"timezone"`
	Latitude        float64         `json:"latitude"`
	Longitude       float64         `json:"longitude"`
	SatelliteID     string          `json:"satellite_id"`
	SpectralIndices SpectralIndices `json:"spectral_indices,omitempty"`
	Notes           string          `json:"notes"`

	// Payload retains the original submitted object for free-form
	// field-equality filtering. Never serialized back to clients.
	Payload Payload `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the observation. Stores hand out clones so
// callers can never mutate shared state.
func (o *Observation) Clone() *Observation {
	cp := *o
	if o.SpectralIndices != nil {
		cp.SpectralIndices = make(SpectralIndices, len(o.SpectralIndices))
		for k, v := range o.SpectralIndices {
			cp.SpectralIndices[k] = v
		}
	}
	if o.Payload != nil {
		cp.Payload = make(Payload, len(o.Payload))
		for k, v := range o.Payload {
			cp.Payload[k] = v
		}
	}
	return &cp
}

// SpectralIndices maps index names (from StandardIndices) to magnitudes.
// Stored as JSONB.
type SpectralIndices map[string]float64

// Payload is the opaque submitted structure retained alongside the typed
// columns. Stored as JSONB; matched against free-form query filters.
type Payload map[string]any

// ObservationQuery carries the parsed read-side filter constraints.
// Nil pointer fields mean the constraint is absent. Fields holds every
// non-reserved query parameter as a payload-equality filter.
type ObservationQuery struct {
	MinLat *float64
	MaxLat *float64
	MinLon *float64
	MaxLon *float64

	// StartDate/EndDate are UTC midnights; comparison is against the date
	// component of the observation timestamp, inclusive on both ends.
	StartDate *time.Time
	EndDate   *time.Time

	ID *int64

	Fields map[string]string
}

// HasFilters reports whether any constraint is set.
func (q ObservationQuery) HasFilters() bool {
	return q.MinLat != nil || q.MaxLat != nil || q.MinLon != nil || q.MaxLon != nil ||
		q.StartDate != nil || q.EndDate != nil || q.ID != nil || len(q.Fields) > 0
}
