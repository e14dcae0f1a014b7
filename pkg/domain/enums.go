package domain

import dErrors "clicr/pkg/domain-errors"

// EnforcementMode controls what happens when an entry attempt meets a full venue.
type EnforcementMode string

const (
	EnforcementWarnOnly        EnforcementMode = "WARN_ONLY"
	EnforcementHardStop        EnforcementMode = "HARD_STOP"
	EnforcementManagerOverride EnforcementMode = "MANAGER_OVERRIDE"
)

var validEnforcementModes = map[EnforcementMode]bool{
	EnforcementWarnOnly:        true,
	EnforcementHardStop:        true,
	EnforcementManagerOverride: true,
}

// ParseEnforcementMode constructs an EnforcementMode from external input.
func ParseEnforcementMode(s string) (EnforcementMode, error) {
	m := EnforcementMode(s)
	if !validEnforcementModes[m] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid enforcement mode")
	}
	return m, nil
}

// FlowMode restricts which direction a device may count.
type FlowMode string

const (
	FlowBidirectional FlowMode = "BIDIRECTIONAL"
	FlowInOnly        FlowMode = "IN_ONLY"
	FlowOutOnly       FlowMode = "OUT_ONLY"
)

var validFlowModes = map[FlowMode]bool{
	FlowBidirectional: true,
	FlowInOnly:        true,
	FlowOutOnly:       true,
}

// ParseFlowMode constructs a FlowMode from external input.
func ParseFlowMode(s string) (FlowMode, error) {
	m := FlowMode(s)
	if !validFlowModes[m] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid flow mode")
	}
	return m, nil
}

// Allows reports whether the flow mode permits a signed occupancy delta.
func (m FlowMode) Allows(delta int) bool {
	switch m {
	case FlowInOnly:
		return delta >= 0
	case FlowOutOnly:
		return delta <= 0
	default:
		return true
	}
}

// EventType classifies how a count event was produced.
type EventType string

const (
	EventTap         EventType = "TAP"
	EventScan        EventType = "SCAN"
	EventBulk        EventType = "BULK"
	EventManualReset EventType = "MANUAL_RESET"
)

var validEventTypes = map[EventType]bool{
	EventTap:         true,
	EventScan:        true,
	EventBulk:        true,
	EventManualReset: true,
}

// ParseEventType constructs an EventType from external input.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !validEventTypes[t] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid event type")
	}
	return t, nil
}

// FlowType records the direction of a count event for the audit trail.
type FlowType string

const (
	FlowIn    FlowType = "IN"
	FlowOut   FlowType = "OUT"
	FlowReset FlowType = "RESET"
)

// BanScope distinguishes tenant-wide staff bans from venue-level ones.
type BanScope string

const (
	BanScopeBusiness BanScope = "BUSINESS"
	BanScopeVenue    BanScope = "VENUE"
)

// ParseBanScope constructs a BanScope from external input.
func ParseBanScope(s string) (BanScope, error) {
	sc := BanScope(s)
	if sc != BanScopeBusiness && sc != BanScopeVenue {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid ban scope")
	}
	return sc, nil
}

// BanStatus is the lifecycle state of a ban record. Revoking a ban does not
// restore assignments that an earlier cascade removed.
type BanStatus string

const (
	BanActive  BanStatus = "ACTIVE"
	BanRevoked BanStatus = "REVOKED"
)

// ResetScope selects which snapshot rows a count reset applies to.
type ResetScope string

const (
	ResetArea  ResetScope = "AREA"
	ResetVenue ResetScope = "VENUE"
)

// ParseResetScope constructs a ResetScope from external input.
func ParseResetScope(s string) (ResetScope, error) {
	sc := ResetScope(s)
	if sc != ResetArea && sc != ResetVenue {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid reset scope")
	}
	return sc, nil
}

// AdmissionDecision is the outcome of evaluating an entry attempt against
// capacity policy.
type AdmissionDecision string

const (
	AdmissionAllow           AdmissionDecision = "ALLOW"
	AdmissionWarn            AdmissionDecision = "WARN"
	AdmissionBlock           AdmissionDecision = "BLOCK"
	AdmissionRequireOverride AdmissionDecision = "REQUIRE_OVERRIDE"
)
