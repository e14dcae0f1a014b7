// Package counter is the only path that changes occupancy. It wraps the
// store's atomic delta-and-log procedure and mirrors the result into the
// working copy for immediate-read consistency.
package counter

import (
	"context"
	"log/slog"

	"clicr/internal/audit"
	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
	dErrors "clicr/pkg/domain-errors"
	"clicr/pkg/platform/sentinel"
	"clicr/pkg/requestcontext"
)

//go:generate mockgen -source=processor.go -destination=mocks/mocks.go -package=mocks

// Ledger is the slice of the authoritative store the processor mutates.
type Ledger interface {
	RecordCountEvent(ctx context.Context, event models.CountEvent) (models.CountEvent, error)
	ResetSnapshots(ctx context.Context, businessID id.BusinessID, scope id.ResetScope, target string, by id.UserID) error
}

// Metrics is implemented by the platform metrics registry.
type Metrics interface {
	IncrementEventsRecorded(eventType string)
	IncrementCountResets(scope string)
}

// Processor records count events and resets.
type Processor struct {
	ledger  Ledger
	logger  *slog.Logger
	emitter audit.Emitter
	metrics Metrics
}

// Option configures a Processor.
type Option func(p *Processor)

// WithEmitter attaches an audit emitter; emission is best effort.
func WithEmitter(e audit.Emitter) Option {
	return func(p *Processor) { p.emitter = e }
}

// WithMetrics attaches a metrics registry.
func WithMetrics(m Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// New constructs a Processor.
func New(ledger Ledger, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{ledger: ledger, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Request describes one occupancy change.
type Request struct {
	Delta     int
	FlowType  id.FlowType
	EventType id.EventType
	VenueID   id.VenueID
	AreaID    id.AreaID
	DeviceID  id.DeviceID
	UserID    id.UserID
}

// RecordEvent validates the request against the working copy, delegates the
// delta-and-log to the store, and on success mirrors the event into the
// working copy. On failure nothing changes, locally or upstream.
func (p *Processor) RecordEvent(ctx context.Context, ds *models.Dataset, req Request) (models.CountEvent, error) {
	if err := p.checkBan(ds, req.UserID, req.VenueID); err != nil {
		return models.CountEvent{}, err
	}

	venue := ds.VenueByID(req.VenueID)
	if venue == nil {
		return models.CountEvent{}, dErrors.New(dErrors.CodeNotFound, "venue not found")
	}
	area := ds.AreaByID(req.AreaID)
	if area == nil {
		return models.CountEvent{}, dErrors.New(dErrors.CodeNotFound, "area not found")
	}
	if area.VenueID != req.VenueID {
		return models.CountEvent{}, dErrors.New(dErrors.CodeValidation, "area does not belong to venue")
	}

	device := ds.DeviceByID(req.DeviceID)
	if !req.DeviceID.IsZero() {
		if device == nil {
			return models.CountEvent{}, dErrors.New(dErrors.CodeNotFound, "device not found")
		}
		if device.AreaID != req.AreaID {
			return models.CountEvent{}, dErrors.New(dErrors.CodeValidation, "device does not belong to area")
		}
		if !device.FlowMode.Allows(req.Delta) {
			return models.CountEvent{}, dErrors.New(dErrors.CodeValidation, "delta not permitted by device flow mode")
		}
	}

	event := models.CountEvent{
		ID:         id.NewEventID(),
		BusinessID: ds.Business.ID,
		VenueID:    req.VenueID,
		AreaID:     req.AreaID,
		DeviceID:   req.DeviceID,
		UserID:     req.UserID,
		Delta:      req.Delta,
		FlowType:   req.FlowType,
		EventType:  req.EventType,
		OccurredAt: requestcontext.Now(ctx),
	}

	stored, err := p.ledger.RecordCountEvent(ctx, event)
	if err != nil {
		if dErrors.Is(err, sentinel.ErrNotFound) {
			return models.CountEvent{}, dErrors.Wrap(err, dErrors.CodeNotFound, "area missing upstream")
		}
		return models.CountEvent{}, dErrors.Wrap(err, dErrors.CodeConflict, "atomic count mutation rejected")
	}

	// Mirror for immediate-read consistency without a full re-hydration.
	ds.Events = append([]models.CountEvent{stored}, ds.Events...)
	next := area.Occupancy + stored.Delta
	if next < 0 {
		next = 0
	}
	area.Occupancy = next
	area.OccupancyAsOf = stored.OccurredAt
	if device != nil {
		device.Tally += stored.Delta
	}

	p.emit(ctx, audit.Event{
		Kind:       audit.KindCountEvent,
		BusinessID: stored.BusinessID,
		VenueID:    stored.VenueID,
		AreaID:     stored.AreaID,
		UserID:     stored.UserID,
		Delta:      stored.Delta,
		Detail:     string(stored.EventType),
		Timestamp:  stored.OccurredAt,
	})
	if p.metrics != nil {
		p.metrics.IncrementEventsRecorded(string(stored.EventType))
	}
	return stored, nil
}

// ResetCounts zeroes the snapshots in scope. Resets are logical, not
// destructive: historical events stay in the log.
func (p *Processor) ResetCounts(ctx context.Context, ds *models.Dataset, scope id.ResetScope, target string, by id.UserID) error {
	var venueID id.VenueID
	switch scope {
	case id.ResetArea:
		area := findAreaByString(ds, target)
		if area == nil {
			return dErrors.New(dErrors.CodeNotFound, "area not found")
		}
		venueID = area.VenueID
	case id.ResetVenue:
		venue := findVenueByString(ds, target)
		if venue == nil {
			return dErrors.New(dErrors.CodeNotFound, "venue not found")
		}
		venueID = venue.ID
	default:
		return dErrors.New(dErrors.CodeValidation, "invalid reset scope")
	}

	if err := p.checkBan(ds, by, venueID); err != nil {
		return err
	}
	if err := p.ledger.ResetSnapshots(ctx, ds.Business.ID, scope, target, by); err != nil {
		if dErrors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "nothing to reset")
		}
		return dErrors.Wrap(err, dErrors.CodeConflict, "reset rejected")
	}

	now := requestcontext.Now(ctx)
	for i := range ds.Areas {
		area := &ds.Areas[i]
		inScope := (scope == id.ResetArea && area.ID.String() == target) ||
			(scope == id.ResetVenue && area.VenueID.String() == target)
		if !inScope {
			continue
		}
		area.Occupancy = 0
		area.OccupancyAsOf = now
		for j := range ds.Devices {
			if ds.Devices[j].AreaID == area.ID {
				ds.Devices[j].Tally = 0
			}
		}
	}

	p.emit(ctx, audit.Event{
		Kind:       audit.KindCountReset,
		BusinessID: ds.Business.ID,
		VenueID:    venueID,
		UserID:     by,
		Detail:     string(scope),
		Timestamp:  now,
	})
	if p.metrics != nil {
		p.metrics.IncrementCountResets(string(scope))
	}
	return nil
}

// checkBan enforces the precondition that a banned caller cannot mutate the
// target venue's counts.
func (p *Processor) checkBan(ds *models.Dataset, userID id.UserID, venueID id.VenueID) error {
	for i := range ds.StaffBans {
		ban := &ds.StaffBans[i]
		if ban.UserID == userID && ban.Covers(venueID) {
			return dErrors.New(dErrors.CodeForbidden, "caller is banned from this venue")
		}
	}
	return nil
}

func (p *Processor) emit(ctx context.Context, event audit.Event) {
	if p.emitter == nil {
		return
	}
	if err := p.emitter.Emit(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "audit emit failed", "error", err)
	}
}

func findAreaByString(ds *models.Dataset, target string) *models.Area {
	for i := range ds.Areas {
		if ds.Areas[i].ID.String() == target {
			return &ds.Areas[i]
		}
	}
	return nil
}

func findVenueByString(ds *models.Dataset, target string) *models.Venue {
	for i := range ds.Venues {
		if ds.Venues[i].ID.String() == target {
			return &ds.Venues[i]
		}
	}
	return nil
}
