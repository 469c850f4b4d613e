package types

import (
	"time"
)

// Trigger is the persisted aggregate for a configured threshold-or-manual
// condition tied to a phase and a data source.
//
// Lifecycle: created PENDING (is_triggered=false), transitions once and
// monotonically to TRIGGERED. Re-activation of an already-triggered or
// soft-deleted trigger is rejected. Soft-deleting a trigger also cancels
// its recurring job registration.
type Trigger struct {
	UUID string `json:"uuid" db:"uuid"`

	// RepeatKey is the scheduler's stable handle for the recurring job and
	// the join key between the scheduler and this row. Unique. For MANUAL
	// triggers it is a freshly generated identifier with no job behind it.
	RepeatKey string `json:"repeat_key" db:"repeat_key"`

	DataSource DataSource       `json:"data_source" db:"data_source"`
	Location   string           `json:"location" db:"location"`
	Statement  TriggerStatement `json:"trigger_statement" db:"trigger_statement"`

	PhaseID     string `json:"phase_id" db:"phase_id"`
	IsMandatory bool   `json:"is_mandatory" db:"is_mandatory"`
	IsTriggered bool   `json:"is_triggered" db:"is_triggered"`
	IsDeleted   bool   `json:"is_deleted" db:"is_deleted"`

	Documents DocumentList `json:"trigger_documents" db:"trigger_documents"`
	Notes     string       `json:"notes,omitempty" db:"notes"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty" db:"triggered_at"`
}

// TriggerDocument is an evidence attachment supplied on manual activation.
type TriggerDocument struct {
	Name string `json:"name" validate:"required,max=200"`
	URL  string `json:"url" validate:"required,url"`
}

// Phase is an ordered stage of a response plan, unlocked by accumulated
// triggers. The two counters are incremented atomically in the store and
// only ever increase; they are the authoritative basis for downstream
// "has this phase been unlocked" decisions. The unlock threshold itself is
// external policy, not enforced here.
type Phase struct {
	UUID                      string    `json:"uuid" db:"uuid"`
	Name                      PhaseName `json:"name" db:"name"`
	ReceivedMandatoryTriggers int       `json:"received_mandatory_triggers" db:"received_mandatory_triggers"`
	ReceivedOptionalTriggers  int       `json:"received_optional_triggers" db:"received_optional_triggers"`
	CanTriggerPayout          bool      `json:"can_trigger_payout" db:"can_trigger_payout"`
	CanRevert                 bool      `json:"can_revert" db:"can_revert"`
}

// Reading is the ephemeral value object produced per poll: one normalized
// observation from a feed, carrying the feed's own reported threshold levels
// when the feed publishes them.
type Reading struct {
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`

	// Feed-reported levels. Zero when the feed does not publish them; the
	// evaluator then requires statement-level overrides.
	WarningLevel float64 `json:"warning_level,omitempty"`
	DangerLevel  float64 `json:"danger_level,omitempty"`
}

// SourceData is the persisted subset of a reading, deduplicated by
// (data_source, observed_at): the same observation is never stored twice.
type SourceData struct {
	ID         int64      `json:"id" db:"id"`
	DataSource DataSource `json:"data_source" db:"data_source"`
	Location   string     `json:"location" db:"location"`
	Data       Reading    `json:"data" db:"data"`
	ObservedAt time.Time  `json:"observed_at" db:"observed_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// ActivityRef links a trigger statement to a response-plan activity. The
// capability list is the statement-level opt-in for side effects (e.g. a
// "notify" capability requests notification emission on threshold crossing).
type ActivityRef struct {
	ActivityID   string               `json:"activity_id" validate:"required"`
	Title        string               `json:"title,omitempty"`
	Capabilities []ActivityCapability `json:"capabilities,omitempty"`
}
