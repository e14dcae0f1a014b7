// Package admission evaluates entry attempts against capacity policy. The
// decision runs strictly before the event processor; a BLOCK or an
// unconfirmed REQUIRE_OVERRIDE never reaches the atomic mutation.
package admission

import (
	id "clicr/pkg/domain"
)

// Rule is the capacity policy of one venue.
type Rule struct {
	MaxCapacity int
	Mode        id.EnforcementMode
}

// Decide evaluates one attempt. Exits are always allowed; only entry attempts
// (positive deltas) are subject to capacity. MaxCapacity <= 0 means no limit.
func Decide(currentOccupancy int, rule Rule, isEntryAttempt bool) id.AdmissionDecision {
	if !isEntryAttempt {
		return id.AdmissionAllow
	}
	if rule.MaxCapacity <= 0 {
		return id.AdmissionAllow
	}
	if currentOccupancy < rule.MaxCapacity {
		return id.AdmissionAllow
	}
	switch rule.Mode {
	case id.EnforcementHardStop:
		return id.AdmissionBlock
	case id.EnforcementManagerOverride:
		return id.AdmissionRequireOverride
	default:
		return id.AdmissionWarn
	}
}
