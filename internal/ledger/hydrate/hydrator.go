// Package hydrate rebuilds the per-request working copy of the ledger from
// the authoritative store. Structural entities are replaced wholesale, area
// occupancy is overlaid from the snapshot table, and the activity feeds are
// refreshed on a best-effort basis.
package hydrate

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"clicr/internal/ledger/models"
	"clicr/internal/ledger/store"
	id "clicr/pkg/domain"
	dErrors "clicr/pkg/domain-errors"
)

// Source is the slice of the authoritative store the hydrator reads.
type Source interface {
	GetBusiness(ctx context.Context, businessID id.BusinessID) (models.Business, error)
	ListVenues(ctx context.Context, businessID id.BusinessID) ([]models.Venue, error)
	ListAreas(ctx context.Context, businessID id.BusinessID) ([]models.Area, error)
	ListUsers(ctx context.Context, businessID id.BusinessID) ([]models.User, error)
	ListDevices(ctx context.Context, businessID id.BusinessID) ([]models.Device, error)
	ListSnapshots(ctx context.Context, businessID id.BusinessID) ([]models.OccupancySnapshot, error)
	EnsureSnapshot(ctx context.Context, areaID id.AreaID) (models.OccupancySnapshot, error)
	ListRecentEvents(ctx context.Context, businessID id.BusinessID, limit int) ([]models.CountEvent, error)
	ListRecentScans(ctx context.Context, businessID id.BusinessID, limit int) ([]models.IdentityScanEvent, error)
	ListStaffBans(ctx context.Context, businessID id.BusinessID) ([]models.StaffBan, error)
}

// Hydrator reconciles a previously-known working copy against the store.
type Hydrator struct {
	source Source
	logger *slog.Logger
}

// New constructs a Hydrator.
func New(source Source, logger *slog.Logger) *Hydrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hydrator{source: source, logger: logger}
}

// Hydrate refreshes prev (which may be nil) into a new working copy.
//
// Failure semantics: a collection fetch failure is logged and the previous
// collection is kept, so a stale view is preferred over none. The business
// record is the availability anchor: when it cannot be fetched, hydration
// fails outright with CodeUnavailable and the caller decides whether a cached
// copy may stand in.
func (h *Hydrator) Hydrate(ctx context.Context, businessID id.BusinessID, prev *models.Dataset) (*models.Dataset, error) {
	ds := prev.Clone()
	if ds == nil {
		ds = &models.Dataset{}
	}

	// Step 1: structural entities, store wins over any cached copy.
	business, err := h.source.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "authoritative store unreachable")
	}
	ds.Business = business

	if venues, err := h.source.ListVenues(ctx, businessID); err != nil {
		h.logFetchFailure(ctx, "venues", err)
	} else {
		ds.Venues = venues
	}
	if areas, err := h.source.ListAreas(ctx, businessID); err != nil {
		h.logFetchFailure(ctx, "areas", err)
	} else {
		ds.Areas = areas
	}

	// Step 2: profiles merge by id; a profile never deletes a cached user.
	if users, err := h.source.ListUsers(ctx, businessID); err != nil {
		h.logFetchFailure(ctx, "users", err)
	} else {
		ds.Users = models.MergeUsers(ds.Users, users)
	}

	if bans, err := h.source.ListStaffBans(ctx, businessID); err != nil {
		h.logFetchFailure(ctx, "staff bans", err)
	} else {
		ds.StaffBans = bans
	}

	// Steps 3 and 4: overlay authoritative occupancy, self-healing missing
	// snapshot rows with zero before resolving any area.
	h.overlayOccupancy(ctx, businessID, ds)

	// Steps 5 and 6: activity feeds and persisted devices are informational
	// and independent; fetch them concurrently, swallow failures.
	var (
		events  []models.CountEvent
		scans   []models.IdentityScanEvent
		devices []models.Device
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if events, err = h.source.ListRecentEvents(gctx, businessID, store.RecentWindow); err != nil {
			h.logFetchFailure(gctx, "recent events", err)
			events = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if scans, err = h.source.ListRecentScans(gctx, businessID, store.RecentWindow); err != nil {
			h.logFetchFailure(gctx, "recent scans", err)
			scans = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if devices, err = h.source.ListDevices(gctx, businessID); err != nil {
			h.logFetchFailure(gctx, "devices", err)
			devices = nil
		}
		return nil
	})
	_ = g.Wait()

	if events != nil {
		ds.Events = events
	}
	if scans != nil {
		ds.Scans = scans
	}
	if devices != nil {
		ds.Devices = models.MergeDevices(ds.Devices, devices)
	}

	ds.Degraded = false
	return ds, nil
}

// overlayOccupancy writes each area's authoritative occupancy into the
// refreshed area list, creating missing snapshot rows with occupancy zero so
// no area is ever left unresolved.
func (h *Hydrator) overlayOccupancy(ctx context.Context, businessID id.BusinessID, ds *models.Dataset) {
	snapshots, err := h.source.ListSnapshots(ctx, businessID)
	if err != nil {
		h.logFetchFailure(ctx, "snapshots", err)
		return
	}
	byArea := make(map[id.AreaID]models.OccupancySnapshot, len(snapshots))
	for _, snap := range snapshots {
		byArea[snap.AreaID] = snap
	}
	for i := range ds.Areas {
		area := &ds.Areas[i]
		snap, ok := byArea[area.ID]
		if !ok {
			created, err := h.source.EnsureSnapshot(ctx, area.ID)
			if err != nil {
				h.logFetchFailure(ctx, "snapshot self-heal", err)
				area.Occupancy = 0
				continue
			}
			snap = created
		}
		area.Occupancy = snap.Occupancy
		area.OccupancyAsOf = snap.UpdatedAt
	}
}

func (h *Hydrator) logFetchFailure(ctx context.Context, what string, err error) {
	h.logger.WarnContext(ctx, "hydration fetch failed, continuing with partial data",
		"fetch", what,
		"error", err,
	)
}
