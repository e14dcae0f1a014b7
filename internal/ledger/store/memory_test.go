package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
	"clicr/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *Memory
	ctx   context.Context

	businessID id.BusinessID
	venueID    id.VenueID
	areaID     id.AreaID
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()

	s.businessID = id.NewBusinessID()
	s.venueID = id.NewVenueID()
	s.areaID = id.NewAreaID()

	s.store.SeedBusiness(models.Business{ID: s.businessID, Name: "Night Owl Group"})
	s.Require().NoError(s.store.CreateVenue(s.ctx, models.Venue{
		ID: s.venueID, BusinessID: s.businessID, Name: "North", Capacity: 100,
	}))
	s.Require().NoError(s.store.CreateArea(s.ctx, models.Area{
		ID: s.areaID, VenueID: s.venueID, Name: "Floor", Active: true,
	}))
}

func (s *MemoryStoreSuite) event(delta int) models.CountEvent {
	return models.CountEvent{
		BusinessID: s.businessID,
		VenueID:    s.venueID,
		AreaID:     s.areaID,
		UserID:     id.NewUserID(),
		Delta:      delta,
		FlowType:   id.FlowIn,
		EventType:  id.EventTap,
	}
}

func (s *MemoryStoreSuite) TestRecordCountEvent() {
	s.Run("applies delta and appends event together", func() {
		stored, err := s.store.RecordCountEvent(s.ctx, s.event(3))
		s.Require().NoError(err)
		s.False(stored.ID == (id.EventID{}))
		s.False(stored.OccurredAt.IsZero())

		snap, ok := s.store.Snapshot(s.areaID)
		s.Require().True(ok)
		s.Equal(3, snap.Occupancy)
		s.Equal(1, s.store.EventCount())
	})

	s.Run("clamps occupancy at zero", func() {
		_, err := s.store.RecordCountEvent(s.ctx, s.event(-10))
		s.Require().NoError(err)

		snap, _ := s.store.Snapshot(s.areaID)
		s.Equal(0, snap.Occupancy)
	})

	s.Run("unknown area fails with no mutation", func() {
		bad := s.event(1)
		bad.AreaID = id.NewAreaID()
		before := s.store.EventCount()

		_, err := s.store.RecordCountEvent(s.ctx, bad)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
		s.Equal(before, s.store.EventCount())
	})

	s.Run("injected failure leaves state unchanged", func() {
		before, _ := s.store.Snapshot(s.areaID)
		beforeEvents := s.store.EventCount()
		boom := errors.New("boom")
		s.store.FailNext("RecordCountEvent", boom)

		_, err := s.store.RecordCountEvent(s.ctx, s.event(5))
		s.Require().ErrorIs(err, boom)

		after, _ := s.store.Snapshot(s.areaID)
		s.Equal(before.Occupancy, after.Occupancy)
		s.Equal(beforeEvents, s.store.EventCount())
	})
}

func (s *MemoryStoreSuite) TestResetSnapshots() {
	_, err := s.store.RecordCountEvent(s.ctx, s.event(12))
	s.Require().NoError(err)

	s.Run("area reset zeroes and logs a manual reset event", func() {
		before := s.store.EventCount()
		err := s.store.ResetSnapshots(s.ctx, s.businessID, id.ResetArea, s.areaID.String(), id.NewUserID())
		s.Require().NoError(err)

		snap, _ := s.store.Snapshot(s.areaID)
		s.Equal(0, snap.Occupancy)
		s.Equal(before+1, s.store.EventCount(), "area reset appends a MANUAL_RESET event")

		events, err := s.store.ListRecentEvents(s.ctx, s.businessID, RecentWindow)
		s.Require().NoError(err)
		s.Equal(id.EventManualReset, events[0].EventType)
		s.Zero(events[0].Delta)
	})

	s.Run("venue reset zeroes without extra events", func() {
		_, err := s.store.RecordCountEvent(s.ctx, s.event(4))
		s.Require().NoError(err)
		before := s.store.EventCount()

		err = s.store.ResetSnapshots(s.ctx, s.businessID, id.ResetVenue, s.venueID.String(), id.NewUserID())
		s.Require().NoError(err)

		snap, _ := s.store.Snapshot(s.areaID)
		s.Equal(0, snap.Occupancy)
		s.Equal(before, s.store.EventCount())
	})

	s.Run("no matching rows reports not found", func() {
		err := s.store.ResetSnapshots(s.ctx, s.businessID, id.ResetArea, id.NewAreaID().String(), id.NewUserID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestEnsureSnapshotIsIdempotent() {
	snap, err := s.store.EnsureSnapshot(s.ctx, s.areaID)
	s.Require().NoError(err)
	s.Equal(0, snap.Occupancy)

	_, err = s.store.RecordCountEvent(s.ctx, s.event(2))
	s.Require().NoError(err)

	again, err := s.store.EnsureSnapshot(s.ctx, s.areaID)
	s.Require().NoError(err)
	s.Equal(2, again.Occupancy, "ensure must not reset an existing snapshot")
}

func (s *MemoryStoreSuite) TestVenueDeletionCascades() {
	deviceID := id.NewDeviceID()
	s.Require().NoError(s.store.CreateDevice(s.ctx, models.Device{ID: deviceID, AreaID: s.areaID}))

	s.Require().NoError(s.store.DeleteVenue(s.ctx, s.venueID))

	areas, err := s.store.ListAreas(s.ctx, s.businessID)
	s.Require().NoError(err)
	s.Empty(areas)
	devices, err := s.store.ListDevices(s.ctx, s.businessID)
	s.Require().NoError(err)
	s.Empty(devices)
}

func (s *MemoryStoreSuite) TestUserLookups() {
	user := models.User{ID: id.NewUserID(), BusinessID: s.businessID, Name: "Door Staff", Active: true}
	s.store.SeedUser(user)

	found, err := s.store.GetUser(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Equal("Door Staff", found.Name)

	_, err = s.store.GetUser(s.ctx, id.NewUserID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestCreateVenueConflict() {
	err := s.store.CreateVenue(s.ctx, models.Venue{ID: s.venueID, BusinessID: s.businessID})
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}
