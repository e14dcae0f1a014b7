// Package domain holds the shared identifier and enum types of the occupancy
// ledger. IDs are typed UUID wrappers so a VenueID can never be passed where an
// AreaID is expected; construct them via the Parse functions at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "clicr/pkg/domain-errors"
)

type (
	// BusinessID identifies a tenant root.
	BusinessID uuid.UUID
	// VenueID identifies a physical location owned by a business.
	VenueID uuid.UUID
	// AreaID identifies a zone inside a venue.
	AreaID uuid.UUID
	// DeviceID identifies a counting endpoint bound to one area.
	DeviceID uuid.UUID
	// UserID identifies a staff principal.
	UserID uuid.UUID
	// EventID identifies one immutable count event.
	EventID uuid.UUID
	// ScanID identifies one identity scan event.
	ScanID uuid.UUID
	// BanID identifies a staff or patron ban record.
	BanID uuid.UUID
	// PatronID identifies a banned external person in the patron registry.
	PatronID uuid.UUID
)

func (id BusinessID) String() string { return uuid.UUID(id).String() }
func (id VenueID) String() string    { return uuid.UUID(id).String() }
func (id AreaID) String() string     { return uuid.UUID(id).String() }
func (id DeviceID) String() string   { return uuid.UUID(id).String() }
func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id EventID) String() string    { return uuid.UUID(id).String() }
func (id ScanID) String() string     { return uuid.UUID(id).String() }
func (id BanID) String() string      { return uuid.UUID(id).String() }
func (id PatronID) String() string   { return uuid.UUID(id).String() }

func (id BusinessID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id VenueID) IsZero() bool    { return uuid.UUID(id) == uuid.Nil }
func (id AreaID) IsZero() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DeviceID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsZero() bool     { return uuid.UUID(id) == uuid.Nil }

// MarshalText/UnmarshalText keep the UUID wire form on every typed ID so JSON
// payloads and map keys read as canonical UUID strings.

func (id BusinessID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id VenueID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id AreaID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id DeviceID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id EventID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id ScanID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id BanID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id PatronID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }

func unmarshalInto(dst *uuid.UUID, text []byte) error {
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*dst = u
	return nil
}

func (id *BusinessID) UnmarshalText(text []byte) error { return unmarshalInto((*uuid.UUID)(id), text) }
func (id *VenueID) UnmarshalText(text []byte) error    { return unmarshalInto((*uuid.UUID)(id), text) }
func (id *AreaID) UnmarshalText(text []byte) error     { return unmarshalInto((*uuid.UUID)(id), text) }
func (id *DeviceID) UnmarshalText(text []byte) error   { return unmarshalInto((*uuid.UUID)(id), text) }
func (id *UserID) UnmarshalText(text []byte) error     { return unmarshalInto((*uuid.UUID)(id), text) }
func (id *EventID) UnmarshalText(text []byte) error    { return unmarshalInto((*uuid.UUID)(id), text) }
func (id *ScanID) UnmarshalText(text []byte) error     { return unmarshalInto((*uuid.UUID)(id), text) }
func (id *BanID) UnmarshalText(text []byte) error      { return unmarshalInto((*uuid.UUID)(id), text) }
func (id *PatronID) UnmarshalText(text []byte) error   { return unmarshalInto((*uuid.UUID)(id), text) }

// parseUUID enforces the shared invariant: IDs must be valid, non-nil UUIDs.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be nil")
	}
	return u, nil
}

// ParseBusinessID constructs a BusinessID from external input.
func ParseBusinessID(s string) (BusinessID, error) {
	u, err := parseUUID(s, "business")
	return BusinessID(u), err
}

// ParseVenueID constructs a VenueID from external input.
func ParseVenueID(s string) (VenueID, error) {
	u, err := parseUUID(s, "venue")
	return VenueID(u), err
}

// ParseAreaID constructs an AreaID from external input.
func ParseAreaID(s string) (AreaID, error) {
	u, err := parseUUID(s, "area")
	return AreaID(u), err
}

// ParseDeviceID constructs a DeviceID from external input.
func ParseDeviceID(s string) (DeviceID, error) {
	u, err := parseUUID(s, "device")
	return DeviceID(u), err
}

// ParseUserID constructs a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user")
	return UserID(u), err
}

// ParseBanID constructs a BanID from external input.
func ParseBanID(s string) (BanID, error) {
	u, err := parseUUID(s, "ban")
	return BanID(u), err
}

// ParsePatronID constructs a PatronID from external input.
func ParsePatronID(s string) (PatronID, error) {
	u, err := parseUUID(s, "patron")
	return PatronID(u), err
}

// NewBusinessID returns a freshly generated BusinessID.
func NewBusinessID() BusinessID { return BusinessID(uuid.New()) }

// NewVenueID returns a freshly generated VenueID.
func NewVenueID() VenueID { return VenueID(uuid.New()) }

// NewAreaID returns a freshly generated AreaID.
func NewAreaID() AreaID { return AreaID(uuid.New()) }

// NewDeviceID returns a freshly generated DeviceID.
func NewDeviceID() DeviceID { return DeviceID(uuid.New()) }

// NewUserID returns a freshly generated UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewEventID returns a freshly generated EventID.
func NewEventID() EventID { return EventID(uuid.New()) }

// NewScanID returns a freshly generated ScanID.
func NewScanID() ScanID { return ScanID(uuid.New()) }

// NewBanID returns a freshly generated BanID.
func NewBanID() BanID { return BanID(uuid.New()) }

// NewPatronID returns a freshly generated PatronID.
func NewPatronID() PatronID { return PatronID(uuid.New()) }
