package types

// DataSource identifies the external feed a trigger statement watches.
type DataSource string

const (
	// SourceDHM is the Department of Hydrology and Meteorology river
	// station feed (observed water levels).
	SourceDHM DataSource = "DHM"
	// SourceGlofas is the basin discharge forecast feed.
	SourceGlofas DataSource = "GLOFAS"
	// SourceManual marks triggers activated by field reports rather than
	// an automated feed. Manual triggers have no recurring job.
	SourceManual DataSource = "MANUAL"
)

// KnownDataSources is the complete set of valid data sources. Creation of a
// trigger statement with any other value is a validation error.
var KnownDataSources = []DataSource{SourceDHM, SourceGlofas, SourceManual}

// IsValid reports whether the data source is one of the known values.
func (d DataSource) IsValid() bool {
	switch d {
	case SourceDHM, SourceGlofas, SourceManual:
		return true
	}
	return false
}

// IsAutomated reports whether the source is polled on a schedule.
func (d DataSource) IsAutomated() bool {
	return d.IsValid() && d != SourceManual
}

// PhaseName is an ordered stage of a response plan.
type PhaseName string

const (
	PhasePreparedness PhaseName = "PREPAREDNESS"
	PhaseReadiness    PhaseName = "READINESS"
	PhaseActivation   PhaseName = "ACTIVATION"
)

// Severity classifies a reading against its warning and danger levels.
type Severity string

const (
	SeveritySafe    Severity = "SAFE"
	SeverityWarning Severity = "WARNING"
	SeverityDanger  Severity = "DANGER"
)

// ThresholdKind tags which phase-advance level a statement defines. At most
// one active statement per (data_source, location) may define each kind.
type ThresholdKind string

const (
	ThresholdReadiness  ThresholdKind = "readiness"
	ThresholdActivation ThresholdKind = "activation"
)

// JobStatus is the lifecycle state of a recurring job registration.
// Ticks themselves are transient; only the registration is persisted.
type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobCancelled JobStatus = "cancelled"
)

// TickOutcome is the terminal result of one recurring job tick.
type TickOutcome string

const (
	// TickSucceeded means the criteria check completed (whether or not a
	// threshold was crossed).
	TickSucceeded TickOutcome = "succeeded"
	// TickDataUnavailable means the feed returned zero readings for the
	// window. This is a normal outcome, not a failure.
	TickDataUnavailable TickOutcome = "data_unavailable"
	// TickFailedExhausted means transient infrastructure failures consumed
	// all retry attempts. The registration stays live; the next natural
	// interval is the recovery path.
	TickFailedExhausted TickOutcome = "failed_exhausted"
	// TickSkipped means the tick arrived before its due time (SQS delay
	// cap) or its registration was cancelled.
	TickSkipped TickOutcome = "skipped"
)

// ActivityCapability describes what a statement-linked activity asks the
// platform to do when a threshold is crossed.
type ActivityCapability string

const (
	CapabilityNotify ActivityCapability = "notify"
	CapabilityEmail  ActivityCapability = "email"
)
