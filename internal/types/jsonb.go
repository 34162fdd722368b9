package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure all JSONB types implement both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
// Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*SpectralIndices)(nil)
	_ driver.Valuer = SpectralIndices(nil)
	_ sql.Scanner   = (*Payload)(nil)
	_ driver.Valuer = Payload(nil)
)

// scanJSONB is a generic helper that scans a JSONB database value into a Go pointer.
// It handles nil values, []byte, and string representations from different database drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (si *SpectralIndices) Scan(value interface{}) error {
	if value == nil {
		*si = nil
		return nil
	}
	return scanJSONB(si, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (si SpectralIndices) Value() (driver.Value, error) {
	if si == nil {
		return nil, nil
	}
	return json.Marshal(si)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (p *Payload) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	return scanJSONB(p, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
// A nil payload is written as an empty object so the column stays NOT NULL.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}
