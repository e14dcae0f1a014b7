// Package store implements the narrow procedural interface to the
// authoritative relational store: bulk selects, inserts, updates, and the one
// atomic delta-and-log procedure everything else relies on for consistency.
//
// Consumers (hydrator, event processor, sync service) declare their own
// interfaces; Memory and Postgres satisfy all of them. Memory backs unit tests
// and development, Postgres is the production store.
package store

import (
	"context"

	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
)

// RecentWindow is how many recent count events and scan events a hydration
// fetches for the activity feed. The feed is informational only; it is never
// used to recompute occupancy.
const RecentWindow = 100

// Ledger is the full procedural surface of the authoritative store. It exists
// for wiring (main, integration tests); services depend on narrower local
// interfaces instead.
type Ledger interface {
	GetBusiness(ctx context.Context, businessID id.BusinessID) (models.Business, error)
	ListVenues(ctx context.Context, businessID id.BusinessID) ([]models.Venue, error)
	ListAreas(ctx context.Context, businessID id.BusinessID) ([]models.Area, error)
	ListUsers(ctx context.Context, businessID id.BusinessID) ([]models.User, error)
	GetUser(ctx context.Context, userID id.UserID) (models.User, error)
	ListDevices(ctx context.Context, businessID id.BusinessID) ([]models.Device, error)
	ListSnapshots(ctx context.Context, businessID id.BusinessID) ([]models.OccupancySnapshot, error)
	EnsureSnapshot(ctx context.Context, areaID id.AreaID) (models.OccupancySnapshot, error)
	ListRecentEvents(ctx context.Context, businessID id.BusinessID, limit int) ([]models.CountEvent, error)
	ListRecentScans(ctx context.Context, businessID id.BusinessID, limit int) ([]models.IdentityScanEvent, error)
	ListStaffBans(ctx context.Context, businessID id.BusinessID) ([]models.StaffBan, error)
	ListPatrons(ctx context.Context, businessID id.BusinessID) ([]models.Patron, error)
	ListPatronBans(ctx context.Context, businessID id.BusinessID) ([]models.PatronBan, error)

	// RecordCountEvent applies the occupancy delta and appends the audit row
	// as one atomic unit. The snapshot floor is zero. On any failure nothing
	// is applied.
	RecordCountEvent(ctx context.Context, event models.CountEvent) (models.CountEvent, error)

	// ResetSnapshots zeroes the snapshot rows matched by scope without
	// touching the event log. Area-scope resets append a zero-delta
	// MANUAL_RESET event so the audit trail records when the reset happened.
	ResetSnapshots(ctx context.Context, businessID id.BusinessID, scope id.ResetScope, target string, by id.UserID) error

	InsertScanEvent(ctx context.Context, scan models.IdentityScanEvent) error

	CreateVenue(ctx context.Context, venue models.Venue) error
	UpdateVenue(ctx context.Context, venue models.Venue) error
	DeleteVenue(ctx context.Context, venueID id.VenueID) error
	CreateArea(ctx context.Context, area models.Area) error
	UpdateArea(ctx context.Context, area models.Area) error
	DeleteArea(ctx context.Context, areaID id.AreaID) error
	CreateDevice(ctx context.Context, device models.Device) error
	UpdateDevice(ctx context.Context, device models.Device) error
	DeleteDevice(ctx context.Context, deviceID id.DeviceID) error
	UpdateUser(ctx context.Context, user models.User) error
	CreateStaffBan(ctx context.Context, ban models.StaffBan) error
	CreatePatron(ctx context.Context, patron models.Patron) error
	CreatePatronBan(ctx context.Context, ban models.PatronBan) error
}
