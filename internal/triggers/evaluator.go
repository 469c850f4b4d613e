// Package triggers implements the trigger lifecycle core: threshold
// classification of feed readings and the activation service that advances
// response-plan phases.
package triggers

import "floodline/internal/types"

// Classify maps a current level against warning and danger thresholds.
// Danger takes precedence when both thresholds are crossed; the checks
// short-circuit in that order.
//
//	current >= danger  => DANGER
//	current >= warning => WARNING
//	otherwise          => SAFE
func Classify(current, warning, danger float64) types.Severity {
	if current >= danger {
		return types.SeverityDanger
	}
	if current >= warning {
		return types.SeverityWarning
	}
	return types.SeveritySafe
}

// Thresholds holds the effective warning/danger levels for one evaluation.
// A nil level means neither the statement nor the feed defined it; the
// corresponding band can then never be reached.
type Thresholds struct {
	Warning *float64
	Danger  *float64
}

// EffectiveThresholds resolves the thresholds for a reading. Explicit
// warning/danger overrides win; a statement that instead defines phase-advance
// levels (the forecast-source shape, where the feed publishes no thresholds)
// has its readiness level serve as the warning band and its activation level
// as the danger band. The feed's own reported levels are the final fallback,
// and the evaluator never invents a threshold.
func EffectiveThresholds(stmt *types.TriggerStatement, reading types.Reading) Thresholds {
	th := Thresholds{
		Warning: stmt.WarningLevel,
		Danger:  stmt.DangerLevel,
	}
	if th.Warning == nil {
		th.Warning = stmt.ReadinessLevel
	}
	if th.Danger == nil {
		th.Danger = stmt.ActivationLevel
	}
	if th.Warning == nil && reading.WarningLevel != 0 {
		w := reading.WarningLevel
		th.Warning = &w
	}
	if th.Danger == nil && reading.DangerLevel != 0 {
		d := reading.DangerLevel
		th.Danger = &d
	}
	return th
}

// Evaluate classifies a reading against the effective thresholds. Missing
// thresholds make their band unreachable: with no danger level the result
// can be at most WARNING, with neither level it is always SAFE.
func Evaluate(stmt *types.TriggerStatement, reading types.Reading) types.Severity {
	th := EffectiveThresholds(stmt, reading)

	if th.Danger != nil && reading.Value >= *th.Danger {
		return types.SeverityDanger
	}
	if th.Warning != nil && reading.Value >= *th.Warning {
		return types.SeverityWarning
	}
	return types.SeveritySafe
}
