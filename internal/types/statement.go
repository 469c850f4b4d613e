package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TriggerStatement is the user-authored condition attached to a data source.
// Threshold levels are pointers: nil means "not defined by this statement"
// and the feed's own reported level applies (the evaluator never invents a
// threshold).
type TriggerStatement struct {
	DataSource DataSource `json:"data_source" validate:"required,data_source"`
	Location   string     `json:"location" validate:"required,max=200"`

	WarningLevel    *float64 `json:"warning_level,omitempty"`
	DangerLevel     *float64 `json:"danger_level,omitempty"`
	ReadinessLevel  *float64 `json:"readiness_level,omitempty"`
	ActivationLevel *float64 `json:"activation_level,omitempty"`

	// RepeatEvery is the polling interval for automated sources.
	RepeatEvery time.Duration `json:"repeat_every_ms" validate:"omitempty,min=1000000000"`

	HazardTypeID string        `json:"hazard_type_id" validate:"required"`
	PhaseID      string        `json:"phase_id" validate:"required"`
	Activities   []ActivityRef `json:"activities,omitempty" validate:"dive"`
	IsMandatory  bool          `json:"is_mandatory"`
}

// DefinesKind reports whether the statement defines the given phase-advance
// threshold kind. At most one active statement per (data_source, location)
// may define each kind.
func (s *TriggerStatement) DefinesKind(kind ThresholdKind) bool {
	switch kind {
	case ThresholdReadiness:
		return s.ReadinessLevel != nil
	case ThresholdActivation:
		return s.ActivationLevel != nil
	}
	return false
}

// WantsNotification reports whether any linked activity opts in to
// notification emission on threshold crossing.
func (s *TriggerStatement) WantsNotification() bool {
	for _, a := range s.Activities {
		for _, c := range a.Capabilities {
			if c == CapabilityNotify || c == CapabilityEmail {
				return true
			}
		}
	}
	return false
}

// MarshalJSON serializes RepeatEvery as integer milliseconds to keep the
// stored statement wire-compatible with the management API contract.
func (s TriggerStatement) MarshalJSON() ([]byte, error) {
	type alias TriggerStatement
	return json.Marshal(struct {
		alias
		RepeatEveryMS int64 `json:"repeat_every_ms"`
	}{
		alias:         alias(s),
		RepeatEveryMS: s.RepeatEvery.Milliseconds(),
	})
}

// UnmarshalJSON parses RepeatEvery from integer milliseconds.
func (s *TriggerStatement) UnmarshalJSON(data []byte) error {
	type alias TriggerStatement
	aux := struct {
		*alias
		RepeatEveryMS int64 `json:"repeat_every_ms"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.RepeatEvery = time.Duration(aux.RepeatEveryMS) * time.Millisecond
	return nil
}

// Compile-time interface assertions for JSONB column types.
var (
	_ sql.Scanner   = (*TriggerStatement)(nil)
	_ driver.Valuer = TriggerStatement{}
	_ sql.Scanner   = (*DocumentList)(nil)
	_ driver.Valuer = DocumentList(nil)
	_ sql.Scanner   = (*ReadingData)(nil)
	_ driver.Valuer = ReadingData{}
)

// scanJSONB scans a JSONB database value into a Go pointer. It handles nil
// values, []byte, and string representations from different drivers.
func scanJSONB(dest any, value any) error {
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
func (s *TriggerStatement) Scan(value any) error {
	return scanJSONB(s, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (s TriggerStatement) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// DocumentList is a slice of TriggerDocument stored as a JSONB column.
type DocumentList []TriggerDocument

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (d *DocumentList) Scan(value any) error {
	if value == nil {
		*d = nil
		return nil
	}
	return scanJSONB(d, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (d DocumentList) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// ReadingData is the JSONB column form of a Reading. The embedded struct
// keeps the stored JSON identical to the Reading wire shape.
type ReadingData struct {
	Reading
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (r *ReadingData) Scan(value any) error {
	return scanJSONB(&r.Reading, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (r ReadingData) Value() (driver.Value, error) {
	return json.Marshal(r.Reading)
}
