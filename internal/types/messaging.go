package types

import "time"

// TickMessage is the SQS payload for one recurring job tick. It carries the
// immutable payload captured at schedule time; the tick handler reads no
// external mutable state except through explicit I/O (the feed fetch and the
// store). JSON tags use snake_case to match the management API contract.
type TickMessage struct {
	RepeatKey  string           `json:"repeat_key"`
	JobID      string           `json:"job_id"` // Trigger UUID
	DataSource DataSource       `json:"data_source"`
	Location   string           `json:"location"`
	Statement  TriggerStatement `json:"statement"`

	IntervalMS int64 `json:"interval_ms"`

	// TraceID propagates through tick logs and downstream dispatches.
	TraceID string `json:"trace_id"`
}

// Interval returns the tick interval as a duration.
func (m TickMessage) Interval() time.Duration {
	return time.Duration(m.IntervalMS) * time.Millisecond
}

// TriggerReachedMessage is the one-shot downstream dispatch enqueued after a
// trigger fires. It carries the full trigger snapshot for any consumer that
// reacts to phase advancement.
type TriggerReachedMessage struct {
	Trigger     Trigger   `json:"trigger"`
	PhaseID     string    `json:"phase_id"`
	IsMandatory bool      `json:"is_mandatory"`
	ReachedAt   time.Time `json:"reached_at"`
	TraceID     string    `json:"trace_id"`
}

// NotificationMessage is the fire-and-forget event emitted when a reading
// crosses a warning or danger level and the statement opts in to
// notification.
type NotificationMessage struct {
	Message      string     `json:"message"`
	Status       Severity   `json:"status"`
	Location     string     `json:"location"`
	DataSource   DataSource `json:"data_source"`
	CurrentLevel float64    `json:"current_level"`
	WarningLevel float64    `json:"warning_level"`
	DangerLevel  float64    `json:"danger_level"`

	TriggerUUID string    `json:"trigger_uuid,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}
