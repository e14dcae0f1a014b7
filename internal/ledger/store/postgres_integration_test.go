//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"clicr/internal/ledger/models"
	"clicr/internal/ledger/store"
	id "clicr/pkg/domain"
	"clicr/pkg/platform/sentinel"
	"clicr/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres

	businessID id.BusinessID
	venueID    id.VenueID
	areaID     id.AreaID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(store.EnsureSchema(context.Background(), s.postgres.Pool))
	s.store = store.NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	// Truncate in dependency order
	err := s.postgres.TruncateTables(ctx,
		"count_events", "scan_events", "patron_bans", "patrons", "staff_bans",
		"occupancy_snapshots", "devices", "areas", "venues", "users", "businesses")
	s.Require().NoError(err)

	s.businessID = id.NewBusinessID()
	s.venueID = id.NewVenueID()
	s.areaID = id.NewAreaID()

	_, err = s.postgres.Pool.Exec(ctx,
		`INSERT INTO businesses (id, name) VALUES ($1, $2)`,
		uuid.UUID(s.businessID), "Night Owl Group")
	s.Require().NoError(err)

	now := time.Now()
	s.Require().NoError(s.store.CreateVenue(ctx, models.Venue{
		ID: s.venueID, BusinessID: s.businessID, Name: "North",
		Capacity: 100, Enforcement: id.EnforcementWarnOnly, Status: models.VenueActive,
		CreatedAt: now, UpdatedAt: now,
	}))
	s.Require().NoError(s.store.CreateArea(ctx, models.Area{
		ID: s.areaID, VenueID: s.venueID, Name: "Floor", Active: true,
	}))
}

func (s *PostgresStoreSuite) event(delta int) models.CountEvent {
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

func (s *PostgresStoreSuite) occupancy() int {
	snap, err := s.store.EnsureSnapshot(context.Background(), s.areaID)
	s.Require().NoError(err)
	return snap.Occupancy
}

// TestConcurrentCountEvents verifies that the row lock serializes concurrent
// writers: no delta is lost and every event lands in the log.
func (s *PostgresStoreSuite) TestConcurrentCountEvents() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.RecordCountEvent(ctx, s.event(1)); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Zero(failures.Load())
	s.Equal(goroutines, s.occupancy())

	events, err := s.store.ListRecentEvents(ctx, s.businessID, goroutines*2)
	s.Require().NoError(err)
	s.Len(events, goroutines)
}

func (s *PostgresStoreSuite) TestRecordCountEventClampsAtZero() {
	ctx := context.Background()
	_, err := s.store.RecordCountEvent(ctx, s.event(-5))
	s.Require().NoError(err)
	s.Zero(s.occupancy())

	events, err := s.store.ListRecentEvents(ctx, s.businessID, store.RecentWindow)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(-5, events[0].Delta, "the log keeps the raw delta even when clamped")
}

func (s *PostgresStoreSuite) TestRecordCountEventUnknownArea() {
	bad := s.event(1)
	bad.AreaID = id.NewAreaID()
	_, err := s.store.RecordCountEvent(context.Background(), bad)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestResetSnapshots() {
	ctx := context.Background()
	_, err := s.store.RecordCountEvent(ctx, s.event(12))
	s.Require().NoError(err)

	s.Run("area reset zeroes and logs", func() {
		err := s.store.ResetSnapshots(ctx, s.businessID, id.ResetArea, s.areaID.String(), id.NewUserID())
		s.Require().NoError(err)
		s.Zero(s.occupancy())

		events, err := s.store.ListRecentEvents(ctx, s.businessID, store.RecentWindow)
		s.Require().NoError(err)
		s.Equal(id.EventManualReset, events[0].EventType)
	})

	s.Run("venue reset zeroes every area", func() {
		_, err := s.store.RecordCountEvent(ctx, s.event(3))
		s.Require().NoError(err)
		err = s.store.ResetSnapshots(ctx, s.businessID, id.ResetVenue, s.venueID.String(), id.NewUserID())
		s.Require().NoError(err)
		s.Zero(s.occupancy())
	})

	s.Run("unknown target reports not found", func() {
		err := s.store.ResetSnapshots(ctx, s.businessID, id.ResetArea, id.NewAreaID().String(), id.NewUserID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestEnsureSnapshotIsIdempotent() {
	ctx := context.Background()
	first, err := s.store.EnsureSnapshot(ctx, s.areaID)
	s.Require().NoError(err)
	s.Zero(first.Occupancy)

	_, err = s.store.RecordCountEvent(ctx, s.event(2))
	s.Require().NoError(err)

	again, err := s.store.EnsureSnapshot(ctx, s.areaID)
	s.Require().NoError(err)
	s.Equal(2, again.Occupancy)
}

func (s *PostgresStoreSuite) TestUserRoundtrip() {
	ctx := context.Background()
	userID := id.NewUserID()
	_, err := s.postgres.Pool.Exec(ctx,
		`INSERT INTO users (id, business_id, name, email, role, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(userID), uuid.UUID(s.businessID), "Dana Door", "dana@example.com", "door", time.Now())
	s.Require().NoError(err)

	user, err := s.store.GetUser(ctx, userID)
	s.Require().NoError(err)
	s.Equal("Dana Door", user.Name)
	s.Empty(user.VenueIDs)

	user.VenueIDs = []id.VenueID{s.venueID}
	user.AreaIDs = []id.AreaID{s.areaID}
	user.Role = models.RoleManager
	s.Require().NoError(s.store.UpdateUser(ctx, user))

	updated, err := s.store.GetUser(ctx, userID)
	s.Require().NoError(err)
	s.Equal(models.RoleManager, updated.Role)
	s.Equal([]id.VenueID{s.venueID}, updated.VenueIDs)
	s.Equal([]id.AreaID{s.areaID}, updated.AreaIDs)

	_, err = s.store.GetUser(ctx, id.NewUserID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestVenueCRUD() {
	ctx := context.Background()

	s.Run("duplicate id conflicts", func() {
		now := time.Now()
		err := s.store.CreateVenue(ctx, models.Venue{
			ID: s.venueID, BusinessID: s.businessID, Name: "dup", CreatedAt: now, UpdatedAt: now,
		})
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("update missing venue reports not found", func() {
		err := s.store.UpdateVenue(ctx, models.Venue{ID: id.NewVenueID(), UpdatedAt: time.Now()})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("delete cascades to areas and snapshots", func() {
		_, err := s.store.EnsureSnapshot(ctx, s.areaID)
		s.Require().NoError(err)
		s.Require().NoError(s.store.DeleteVenue(ctx, s.venueID))

		areas, err := s.store.ListAreas(ctx, s.businessID)
		s.Require().NoError(err)
		s.Empty(areas)
		snaps, err := s.store.ListSnapshots(ctx, s.businessID)
		s.Require().NoError(err)
		s.Empty(snaps)
	})
}

func (s *PostgresStoreSuite) TestPatronRegistry() {
	ctx := context.Background()
	patron := models.Patron{
		ID: id.NewPatronID(), BusinessID: s.businessID,
		FirstName: "Jo", LastName: "Smith", IDDigest: "digest-1",
	}
	s.Require().NoError(s.store.CreatePatron(ctx, patron))
	s.Require().NoError(s.store.CreatePatronBan(ctx, models.PatronBan{
		ID: id.NewBanID(), PatronID: patron.ID, Category: "violence",
		AllLocations: true, Status: id.BanActive, CreatedAt: time.Now(),
	}))

	patrons, err := s.store.ListPatrons(ctx, s.businessID)
	s.Require().NoError(err)
	s.Require().Len(patrons, 1)
	s.Equal("digest-1", patrons[0].IDDigest)

	bans, err := s.store.ListPatronBans(ctx, s.businessID)
	s.Require().NoError(err)
	s.Require().Len(bans, 1)
	s.Equal(patron.ID, bans[0].PatronID)
	s.True(bans[0].AllLocations)
}

func (s *PostgresStoreSuite) TestStaffBanRoundtrip() {
	ctx := context.Background()
	ban := models.StaffBan{
		ID: id.NewBanID(), BusinessID: s.businessID, UserID: id.NewUserID(),
		Scope: id.BanScopeVenue, VenueIDs: []id.VenueID{s.venueID},
		Status: id.BanActive, Reason: "till theft", CreatedAt: time.Now(),
	}
	s.Require().NoError(s.store.CreateStaffBan(ctx, ban))

	bans, err := s.store.ListStaffBans(ctx, s.businessID)
	s.Require().NoError(err)
	s.Require().Len(bans, 1)
	s.Equal(id.BanScopeVenue, bans[0].Scope)
	s.Equal([]id.VenueID{s.venueID}, bans[0].VenueIDs)
}

func (s *PostgresStoreSuite) TestScanEvents() {
	ctx := context.Background()
	scan := models.IdentityScanEvent{
		ID: id.NewScanID(), BusinessID: s.businessID, VenueID: s.venueID,
		UserID: id.NewUserID(), Result: models.ScanDenied, DenialReason: "EXPIRED_ID",
		Age: 40, ScannedAt: time.Now(),
	}
	s.Require().NoError(s.store.InsertScanEvent(ctx, scan))

	scans, err := s.store.ListRecentScans(ctx, s.businessID, store.RecentWindow)
	s.Require().NoError(err)
	s.Require().Len(scans, 1)
	s.Equal("EXPIRED_ID", scans[0].DenialReason)
}
