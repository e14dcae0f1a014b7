package store

import (
	"context"
	"sync"

	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
	"clicr/pkg/platform/sentinel"
	"clicr/pkg/requestcontext"
)

// Memory is an in-memory authoritative store. It keeps the same contract as
// Postgres, including atomicity of the delta-and-log procedure and the zero
// floor on snapshots, so services behave identically under test. It favors
// clarity over performance.
type Memory struct {
	mu         sync.RWMutex
	businesses map[id.BusinessID]models.Business
	venues     []models.Venue
	areas      []models.Area
	devices    []models.Device
	users      []models.User
	snapshots  map[id.AreaID]models.OccupancySnapshot
	events     []models.CountEvent
	scans      []models.IdentityScanEvent
	staffBans  []models.StaffBan
	patrons    []models.Patron
	patronBans []models.PatronBan

	failures map[string]error
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		businesses: make(map[id.BusinessID]models.Business),
		snapshots:  make(map[id.AreaID]models.OccupancySnapshot),
		failures:   make(map[string]error),
	}
}

// FailNext makes the next call of the named operation return err. Operation
// names match the method names ("ListVenues", "RecordCountEvent", ...). Used
// by tests to exercise degraded hydration and atomic failure paths.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

func (m *Memory) takeFailure(op string) error {
	if err, ok := m.failures[op]; ok {
		delete(m.failures, op)
		return err
	}
	return nil
}

// SeedBusiness installs a business record.
func (m *Memory) SeedBusiness(b models.Business) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.businesses[b.ID] = b
}

func (m *Memory) GetBusiness(_ context.Context, businessID id.BusinessID) (models.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("GetBusiness"); err != nil {
		return models.Business{}, err
	}
	if b, ok := m.businesses[businessID]; ok {
		return b, nil
	}
	return models.Business{}, sentinel.ErrNotFound
}

func (m *Memory) ListVenues(_ context.Context, businessID id.BusinessID) ([]models.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("ListVenues"); err != nil {
		return nil, err
	}
	out := make([]models.Venue, 0, len(m.venues))
	for _, v := range m.venues {
		if v.BusinessID == businessID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Memory) ListAreas(_ context.Context, businessID id.BusinessID) ([]models.Area, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("ListAreas"); err != nil {
		return nil, err
	}
	venueOwner := m.venueOwnersLocked()
	out := make([]models.Area, 0, len(m.areas))
	for _, a := range m.areas {
		if venueOwner[a.VenueID] == businessID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) ListUsers(_ context.Context, businessID id.BusinessID) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("ListUsers"); err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		if u.BusinessID == businessID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *Memory) GetUser(_ context.Context, userID id.UserID) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("GetUser"); err != nil {
		return models.User{}, err
	}
	for _, u := range m.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return models.User{}, sentinel.ErrNotFound
}

func (m *Memory) ListDevices(_ context.Context, businessID id.BusinessID) ([]models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("ListDevices"); err != nil {
		return nil, err
	}
	areaVenue := make(map[id.AreaID]id.VenueID, len(m.areas))
	for _, a := range m.areas {
		areaVenue[a.ID] = a.VenueID
	}
	venueOwner := m.venueOwnersLocked()
	out := make([]models.Device, 0, len(m.devices))
	for _, d := range m.devices {
		if venueOwner[areaVenue[d.AreaID]] == businessID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) ListSnapshots(_ context.Context, businessID id.BusinessID) ([]models.OccupancySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("ListSnapshots"); err != nil {
		return nil, err
	}
	venueOwner := m.venueOwnersLocked()
	out := make([]models.OccupancySnapshot, 0, len(m.snapshots))
	for _, a := range m.areas {
		if venueOwner[a.VenueID] != businessID {
			continue
		}
		if snap, ok := m.snapshots[a.ID]; ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (m *Memory) EnsureSnapshot(ctx context.Context, areaID id.AreaID) (models.OccupancySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("EnsureSnapshot"); err != nil {
		return models.OccupancySnapshot{}, err
	}
	if snap, ok := m.snapshots[areaID]; ok {
		return snap, nil
	}
	snap := models.OccupancySnapshot{AreaID: areaID, Occupancy: 0, UpdatedAt: requestcontext.Now(ctx)}
	m.snapshots[areaID] = snap
	return snap, nil
}

func (m *Memory) ListRecentEvents(_ context.Context, businessID id.BusinessID, limit int) ([]models.CountEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("ListRecentEvents"); err != nil {
		return nil, err
	}
	out := make([]models.CountEvent, 0, limit)
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].BusinessID == businessID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *Memory) ListRecentScans(_ context.Context, businessID id.BusinessID, limit int) ([]models.IdentityScanEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("ListRecentScans"); err != nil {
		return nil, err
	}
	out := make([]models.IdentityScanEvent, 0, limit)
	for i := len(m.scans) - 1; i >= 0 && len(out) < limit; i-- {
		if m.scans[i].BusinessID == businessID {
			out = append(out, m.scans[i])
		}
	}
	return out, nil
}

func (m *Memory) ListStaffBans(_ context.Context, businessID id.BusinessID) ([]models.StaffBan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("ListStaffBans"); err != nil {
		return nil, err
	}
	out := make([]models.StaffBan, 0, len(m.staffBans))
	for _, b := range m.staffBans {
		if b.BusinessID == businessID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Memory) ListPatrons(_ context.Context, businessID id.BusinessID) ([]models.Patron, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("ListPatrons"); err != nil {
		return nil, err
	}
	out := make([]models.Patron, 0, len(m.patrons))
	for _, p := range m.patrons {
		if p.BusinessID == businessID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) ListPatronBans(_ context.Context, businessID id.BusinessID) ([]models.PatronBan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("ListPatronBans"); err != nil {
		return nil, err
	}
	byPatron := make(map[id.PatronID]id.BusinessID, len(m.patrons))
	for _, p := range m.patrons {
		byPatron[p.ID] = p.BusinessID
	}
	out := make([]models.PatronBan, 0, len(m.patronBans))
	for _, b := range m.patronBans {
		if byPatron[b.PatronID] == businessID {
			out = append(out, b)
		}
	}
	return out, nil
}

// RecordCountEvent applies delta and appends the event under one lock so a
// reader can never observe the count without the event or vice versa.
func (m *Memory) RecordCountEvent(ctx context.Context, event models.CountEvent) (models.CountEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("RecordCountEvent"); err != nil {
		return models.CountEvent{}, err
	}
	if m.areaByIDLocked(event.AreaID) == nil {
		return models.CountEvent{}, sentinel.ErrNotFound
	}
	now := requestcontext.Now(ctx)
	snap, ok := m.snapshots[event.AreaID]
	if !ok {
		snap = models.OccupancySnapshot{AreaID: event.AreaID}
	}
	next := snap.Occupancy + event.Delta
	if next < 0 {
		next = 0
	}
	snap.Occupancy = next
	snap.UpdatedAt = now
	m.snapshots[event.AreaID] = snap

	if event.ID == (id.EventID{}) {
		event.ID = id.NewEventID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	m.events = append(m.events, event)
	return event, nil
}

func (m *Memory) ResetSnapshots(ctx context.Context, businessID id.BusinessID, scope id.ResetScope, target string, by id.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("ResetSnapshots"); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	matched := false
	for _, a := range m.areas {
		var hit bool
		switch scope {
		case id.ResetArea:
			hit = a.ID.String() == target
		case id.ResetVenue:
			hit = a.VenueID.String() == target
		}
		if !hit {
			continue
		}
		matched = true
		snap := m.snapshots[a.ID]
		snap.AreaID = a.ID
		snap.Occupancy = 0
		snap.UpdatedAt = now
		m.snapshots[a.ID] = snap
		if scope == id.ResetArea {
			m.events = append(m.events, models.CountEvent{
				ID:         id.NewEventID(),
				BusinessID: businessID,
				VenueID:    a.VenueID,
				AreaID:     a.ID,
				UserID:     by,
				Delta:      0,
				FlowType:   id.FlowReset,
				EventType:  id.EventManualReset,
				OccurredAt: now,
			})
		}
	}
	if !matched {
		return sentinel.ErrNotFound
	}
	return nil
}

func (m *Memory) InsertScanEvent(_ context.Context, scan models.IdentityScanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("InsertScanEvent"); err != nil {
		return err
	}
	m.scans = append(m.scans, scan)
	return nil
}

func (m *Memory) CreateVenue(_ context.Context, venue models.Venue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("CreateVenue"); err != nil {
		return err
	}
	for _, v := range m.venues {
		if v.ID == venue.ID {
			return sentinel.ErrConflict
		}
	}
	m.venues = append(m.venues, venue)
	return nil
}

func (m *Memory) UpdateVenue(_ context.Context, venue models.Venue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("UpdateVenue"); err != nil {
		return err
	}
	for i := range m.venues {
		if m.venues[i].ID == venue.ID {
			m.venues[i] = venue
			return nil
		}
	}
	return sentinel.ErrNotFound
}

// DeleteVenue removes the venue and everything transitively owned by it.
// Count events survive; they are the audit trail.
func (m *Memory) DeleteVenue(_ context.Context, venueID id.VenueID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("DeleteVenue"); err != nil {
		return err
	}
	idx := -1
	for i := range m.venues {
		if m.venues[i].ID == venueID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return sentinel.ErrNotFound
	}
	m.venues = append(m.venues[:idx], m.venues[idx+1:]...)

	doomed := make(map[id.AreaID]bool)
	kept := m.areas[:0]
	for _, a := range m.areas {
		if a.VenueID == venueID {
			doomed[a.ID] = true
			delete(m.snapshots, a.ID)
			continue
		}
		kept = append(kept, a)
	}
	m.areas = kept

	keptDevices := m.devices[:0]
	for _, d := range m.devices {
		if !doomed[d.AreaID] {
			keptDevices = append(keptDevices, d)
		}
	}
	m.devices = keptDevices
	return nil
}

func (m *Memory) CreateArea(_ context.Context, area models.Area) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("CreateArea"); err != nil {
		return err
	}
	for _, a := range m.areas {
		if a.ID == area.ID {
			return sentinel.ErrConflict
		}
	}
	m.areas = append(m.areas, area)
	return nil
}

func (m *Memory) UpdateArea(_ context.Context, area models.Area) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("UpdateArea"); err != nil {
		return err
	}
	for i := range m.areas {
		if m.areas[i].ID == area.ID {
			m.areas[i] = area
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (m *Memory) DeleteArea(_ context.Context, areaID id.AreaID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("DeleteArea"); err != nil {
		return err
	}
	idx := -1
	for i := range m.areas {
		if m.areas[i].ID == areaID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return sentinel.ErrNotFound
	}
	m.areas = append(m.areas[:idx], m.areas[idx+1:]...)
	delete(m.snapshots, areaID)
	kept := m.devices[:0]
	for _, d := range m.devices {
		if d.AreaID != areaID {
			kept = append(kept, d)
		}
	}
	m.devices = kept
	return nil
}

func (m *Memory) CreateDevice(_ context.Context, device models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("CreateDevice"); err != nil {
		return err
	}
	for _, d := range m.devices {
		if d.ID == device.ID {
			return sentinel.ErrConflict
		}
	}
	m.devices = append(m.devices, device)
	return nil
}

func (m *Memory) UpdateDevice(_ context.Context, device models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("UpdateDevice"); err != nil {
		return err
	}
	for i := range m.devices {
		if m.devices[i].ID == device.ID {
			m.devices[i] = device
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (m *Memory) DeleteDevice(_ context.Context, deviceID id.DeviceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("DeleteDevice"); err != nil {
		return err
	}
	for i := range m.devices {
		if m.devices[i].ID == deviceID {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (m *Memory) UpdateUser(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("UpdateUser"); err != nil {
		return err
	}
	for i := range m.users {
		if m.users[i].ID == user.ID {
			m.users[i] = user
			return nil
		}
	}
	return sentinel.ErrNotFound
}

// SeedUser installs a user record.
func (m *Memory) SeedUser(user models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, user)
}

func (m *Memory) CreateStaffBan(_ context.Context, ban models.StaffBan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("CreateStaffBan"); err != nil {
		return err
	}
	m.staffBans = append(m.staffBans, ban)
	return nil
}

func (m *Memory) CreatePatron(_ context.Context, patron models.Patron) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("CreatePatron"); err != nil {
		return err
	}
	m.patrons = append(m.patrons, patron)
	return nil
}

func (m *Memory) CreatePatronBan(_ context.Context, ban models.PatronBan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("CreatePatronBan"); err != nil {
		return err
	}
	m.patronBans = append(m.patronBans, ban)
	return nil
}

func (m *Memory) venueOwnersLocked() map[id.VenueID]id.BusinessID {
	owners := make(map[id.VenueID]id.BusinessID, len(m.venues))
	for _, v := range m.venues {
		owners[v.ID] = v.BusinessID
	}
	return owners
}

func (m *Memory) areaByIDLocked(areaID id.AreaID) *models.Area {
	for i := range m.areas {
		if m.areas[i].ID == areaID {
			return &m.areas[i]
		}
	}
	return nil
}

// Snapshot returns the current snapshot row for an area, for test assertions.
func (m *Memory) Snapshot(areaID id.AreaID) (models.OccupancySnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[areaID]
	return snap, ok
}

// EventCount returns the number of stored count events, for test assertions.
func (m *Memory) EventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
