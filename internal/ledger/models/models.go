// Package models defines the entities of the occupancy ledger and the working
// copy ("dataset") that each request hydrates, mutates, and filters.
package models

import (
	"time"

	id "clicr/pkg/domain"
)

// Business is the tenant root. One business owns many venues.
type Business struct {
	ID       id.BusinessID    `json:"id"`
	Name     string           `json:"name"`
	Timezone string           `json:"timezone"`
	Settings BusinessSettings `json:"settings"`
}

// BusinessSettings carries tenant-level knobs consumed by door clients.
type BusinessSettings struct {
	// RefreshInterval is how often clients should re-sync, in seconds.
	RefreshInterval int `json:"refresh_interval"`
	// AlertThreshold is the occupancy fraction (0..1) at which dashboards
	// surface a capacity warning.
	AlertThreshold float64 `json:"alert_threshold"`
	// ResetRule names the nightly reset behavior ("manual", "daily_4am", ...).
	ResetRule string `json:"reset_rule"`
	// RetainScanPII controls whether identity scan events keep the parsed
	// name, date of birth, and document number in plaintext.
	RetainScanPII bool `json:"retain_scan_pii"`
}

// VenueStatus is the lifecycle state of a venue.
type VenueStatus string

const (
	VenueActive   VenueStatus = "active"
	VenueInactive VenueStatus = "inactive"
)

// Venue is a physical location owned by a business.
//
// Invariants:
//   - BusinessID is non-zero and immutable after creation
//   - Capacity <= 0 means "no limit" (never enforced)
type Venue struct {
	ID          id.VenueID         `json:"id"`
	BusinessID  id.BusinessID      `json:"business_id"`
	Name        string             `json:"name"`
	Address     string             `json:"address"`
	City        string             `json:"city"`
	Region      string             `json:"region"`
	PostalCode  string             `json:"postal_code"`
	Capacity    int                `json:"capacity"`
	Enforcement id.EnforcementMode `json:"enforcement"`
	Status      VenueStatus        `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Area is a zone inside a venue ("Main Floor", "Patio").
//
// Occupancy is an overlay of the authoritative snapshot row, written by the
// hydrator only. It is never recomputed from the event log.
type Area struct {
	ID              id.AreaID  `json:"id"`
	VenueID         id.VenueID `json:"venue_id"`
	Name            string     `json:"name"`
	DefaultCapacity int        `json:"default_capacity"`
	CountingMode    string     `json:"counting_mode"`
	Active          bool       `json:"active"`
	Occupancy       int        `json:"occupancy"`
	OccupancyAsOf   time.Time  `json:"occupancy_as_of"`
}

// DeviceButton is one configured button on a counting endpoint.
type DeviceButton struct {
	Label string `json:"label"`
	Delta int    `json:"delta"`
}

// Device is a counting endpoint ("clicr") bound to one area. Identity and
// button configuration are persisted; Tally is derived per working copy and
// never stored.
type Device struct {
	ID       id.DeviceID    `json:"id"`
	AreaID   id.AreaID      `json:"area_id"`
	Name     string         `json:"name"`
	FlowMode id.FlowMode    `json:"flow_mode"`
	Buttons  []DeviceButton `json:"buttons"`
	Active   bool           `json:"active"`
	Tally    int            `json:"tally"`
}

// DefaultButtons returns the button configuration a new device starts with.
func DefaultButtons(mode id.FlowMode) []DeviceButton {
	switch mode {
	case id.FlowInOnly:
		return []DeviceButton{{Label: "In", Delta: 1}}
	case id.FlowOutOnly:
		return []DeviceButton{{Label: "Out", Delta: -1}}
	default:
		return []DeviceButton{{Label: "In", Delta: 1}, {Label: "Out", Delta: -1}}
	}
}

// CountEvent is the immutable audit record of one occupancy change.
// Append-only; never edited, never deleted, never re-summed into occupancy.
type CountEvent struct {
	ID         id.EventID    `json:"id"`
	BusinessID id.BusinessID `json:"business_id"`
	VenueID    id.VenueID    `json:"venue_id"`
	AreaID     id.AreaID     `json:"area_id"`
	DeviceID   id.DeviceID   `json:"device_id"`
	UserID     id.UserID     `json:"user_id"`
	Delta      int           `json:"delta"`
	FlowType   id.FlowType   `json:"flow_type"`
	EventType  id.EventType  `json:"event_type"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// OccupancySnapshot is the authoritative current headcount for one area.
// This row, not the sum of events, answers "how many people are inside".
type OccupancySnapshot struct {
	AreaID    id.AreaID `json:"area_id"`
	Occupancy int       `json:"occupancy"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScanResult is the outcome recorded on an identity scan event.
type ScanResult string

const (
	ScanAccepted ScanResult = "ACCEPTED"
	ScanDenied   ScanResult = "DENIED"
)

// IdentityScanEvent records one document scan at a venue door. PII fields are
// blanked before persistence when the business does not retain scan PII.
type IdentityScanEvent struct {
	ID           id.ScanID     `json:"id"`
	BusinessID   id.BusinessID `json:"business_id"`
	VenueID      id.VenueID    `json:"venue_id"`
	UserID       id.UserID     `json:"user_id"`
	Result       ScanResult    `json:"result"`
	DenialReason string        `json:"denial_reason,omitempty"`
	Age          int           `json:"age,omitempty"`
	FirstName    string        `json:"first_name,omitempty"`
	LastName     string        `json:"last_name,omitempty"`
	DateOfBirth  string        `json:"date_of_birth,omitempty"`
	IDNumber     string        `json:"id_number,omitempty"`
	IssuingState string        `json:"issuing_state,omitempty"`
	ClientDevice string        `json:"client_device,omitempty"`
	ScannedAt    time.Time     `json:"scanned_at"`
}

// StripPII blanks the demographic plaintext for businesses that opt out of
// scan PII retention. The result and denial reason survive for reporting.
func (e *IdentityScanEvent) StripPII() {
	e.FirstName = ""
	e.LastName = ""
	e.DateOfBirth = ""
	e.IDNumber = ""
	e.IssuingState = ""
}

// Role is a coarse staff role; authorization itself runs off assignment lists.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleDoor    Role = "door"
)

// User is a staff principal. The three assignment lists define what the scope
// filter lets the user see; a ban cascade may only ever shrink them.
type User struct {
	ID         id.UserID     `json:"id"`
	BusinessID id.BusinessID `json:"business_id"`
	Name       string        `json:"name"`
	Email      string        `json:"email"`
	Role       Role          `json:"role"`
	VenueIDs   []id.VenueID  `json:"venue_ids"`
	AreaIDs    []id.AreaID   `json:"area_ids"`
	DeviceIDs  []id.DeviceID `json:"device_ids"`
	Active     bool          `json:"active"`
	CreatedAt  time.Time     `json:"created_at"`
}

// AssignedTo reports whether the user's venue list contains venueID.
func (u *User) AssignedTo(venueID id.VenueID) bool {
	for _, v := range u.VenueIDs {
		if v == venueID {
			return true
		}
	}
	return false
}

// StaffBan revokes a principal's access at business or venue scope.
type StaffBan struct {
	ID         id.BanID      `json:"id"`
	BusinessID id.BusinessID `json:"business_id"`
	UserID     id.UserID     `json:"user_id"`
	Scope      id.BanScope   `json:"scope"`
	VenueIDs   []id.VenueID  `json:"venue_ids,omitempty"`
	Status     id.BanStatus  `json:"status"`
	Reason     string        `json:"reason"`
	CreatedAt  time.Time     `json:"created_at"`
	RevokedAt  time.Time     `json:"revoked_at,omitempty"`
}

// Active reports whether the ban currently applies.
func (b *StaffBan) Active() bool { return b.Status == id.BanActive }

// Covers reports whether an active ban reaches the given venue.
func (b *StaffBan) Covers(venueID id.VenueID) bool {
	if !b.Active() {
		return false
	}
	if b.Scope == id.BanScopeBusiness {
		return true
	}
	for _, v := range b.VenueIDs {
		if v == venueID {
			return true
		}
	}
	return false
}
