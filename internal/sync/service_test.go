package sync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clicr/internal/audit"
	"clicr/internal/idcheck"
	"clicr/internal/ledger/counter"
	"clicr/internal/ledger/hydrate"
	"clicr/internal/ledger/models"
	"clicr/internal/ledger/store"
	id "clicr/pkg/domain"
	dErrors "clicr/pkg/domain-errors"
)

type serviceFixture struct {
	store *store.Memory
	sink  *audit.MemorySink
	svc   *Service

	businessID id.BusinessID
	venueID    id.VenueID
	areaID     id.AreaID
	deviceID   id.DeviceID

	owner models.User
	door  models.User
}

func newServiceFixture(t *testing.T, opts ...Option) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store:      store.NewMemory(),
		sink:       audit.NewMemorySink(),
		businessID: id.NewBusinessID(),
		venueID:    id.NewVenueID(),
		areaID:     id.NewAreaID(),
		deviceID:   id.NewDeviceID(),
	}
	ctx := context.Background()

	f.store.SeedBusiness(models.Business{ID: f.businessID, Name: "Night Owl Group"})
	require.NoError(t, f.store.CreateVenue(ctx, models.Venue{
		ID: f.venueID, BusinessID: f.businessID, Name: "North",
		Capacity: 100, Enforcement: id.EnforcementWarnOnly, Status: models.VenueActive,
	}))
	require.NoError(t, f.store.CreateArea(ctx, models.Area{
		ID: f.areaID, VenueID: f.venueID, Name: "Floor", Active: true,
	}))
	require.NoError(t, f.store.CreateDevice(ctx, models.Device{
		ID: f.deviceID, AreaID: f.areaID, Name: "Door A",
		FlowMode: id.FlowBidirectional, Active: true,
	}))

	f.owner = models.User{
		ID: id.NewUserID(), BusinessID: f.businessID, Name: "Olive Owner",
		Role: models.RoleOwner, VenueIDs: []id.VenueID{f.venueID}, Active: true,
	}
	f.door = models.User{
		ID: id.NewUserID(), BusinessID: f.businessID, Name: "Dana Door",
		Role: models.RoleDoor, VenueIDs: []id.VenueID{f.venueID}, Active: true,
	}
	f.store.SeedUser(f.owner)
	f.store.SeedUser(f.door)

	hydrator := hydrate.New(f.store, nil)
	processor := counter.New(f.store, nil)
	opts = append([]Option{WithEmitter(f.sink)}, opts...)
	f.svc = New(f.store, hydrator, processor, nil, opts...)
	return f
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// seedOccupancy pushes the venue's count to n through the store directly.
func (f *serviceFixture) seedOccupancy(t *testing.T, n int) {
	t.Helper()
	_, err := f.store.RecordCountEvent(context.Background(), models.CountEvent{
		BusinessID: f.businessID, VenueID: f.venueID, AreaID: f.areaID,
		UserID: f.door.ID, Delta: n, FlowType: id.FlowIn, EventType: id.EventTap,
	})
	require.NoError(t, err)
}

func (f *serviceFixture) setEnforcement(t *testing.T, capacity int, mode id.EnforcementMode) {
	t.Helper()
	ctx := context.Background()
	venues, err := f.store.ListVenues(ctx, f.businessID)
	require.NoError(t, err)
	venues[0].Capacity = capacity
	venues[0].Enforcement = mode
	require.NoError(t, f.store.UpdateVenue(ctx, venues[0]))
}

func TestReadScopesToAssignments(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	otherVenue := id.NewVenueID()
	require.NoError(t, f.store.CreateVenue(ctx, models.Venue{
		ID: otherVenue, BusinessID: f.businessID, Name: "South",
	}))

	ds, err := f.svc.Read(ctx, f.door.ID)
	require.NoError(t, err)

	require.Len(t, ds.Venues, 1)
	assert.Equal(t, "North", ds.Venues[0].Name)
	assert.Len(t, ds.Areas, 1)
	assert.Len(t, ds.Devices, 1)
	assert.Empty(t, ds.StaffBans)
}

func TestReadRejectsBadPrincipals(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Read(ctx, id.NewUserID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	inactive := models.User{ID: id.NewUserID(), BusinessID: f.businessID, Active: false}
	f.store.SeedUser(inactive)
	_, err = f.svc.Read(ctx, inactive.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestCommandUnknownAction(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Command(context.Background(), f.door.ID, Command{Action: "FROBNICATE"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestRecordEventCommand(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Command(ctx, f.door.ID, Command{
		Action: ActionRecordEvent,
		Payload: payload(t, map[string]any{
			"venue_id": f.venueID.String(), "area_id": f.areaID.String(),
			"device_id": f.deviceID.String(), "delta": 2,
		}),
	})
	require.NoError(t, err)

	require.Len(t, resp.Dataset.Areas, 1)
	assert.Equal(t, 2, resp.Dataset.Areas[0].Occupancy)
	assert.Nil(t, resp.Admission, "plenty of room, nothing to report")
	assert.Equal(t, 1, f.store.EventCount())
}

func TestRecordEventRejectsZeroDelta(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Command(context.Background(), f.door.ID, Command{
		Action: ActionRecordEvent,
		Payload: payload(t, map[string]any{
			"venue_id": f.venueID.String(), "area_id": f.areaID.String(), "delta": 0,
		}),
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestRecordEventUnassignedVenueIsForbidden(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	otherVenue := id.NewVenueID()
	require.NoError(t, f.store.CreateVenue(ctx, models.Venue{ID: otherVenue, BusinessID: f.businessID}))

	_, err := f.svc.Command(ctx, f.door.ID, Command{
		Action: ActionRecordEvent,
		Payload: payload(t, map[string]any{
			"venue_id": otherVenue.String(), "area_id": f.areaID.String(), "delta": 1,
		}),
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestRecordEventCapacityEnforcement(t *testing.T) {
	entry := func(f *serviceFixture, override bool) Command {
		return Command{
			Action: ActionRecordEvent,
			Payload: payload(t, map[string]any{
				"venue_id": f.venueID.String(), "area_id": f.areaID.String(),
				"delta": 1, "override_confirmed": override,
			}),
		}
	}

	t.Run("hard stop blocks and records nothing", func(t *testing.T) {
		f := newServiceFixture(t)
		f.setEnforcement(t, 1, id.EnforcementHardStop)
		f.seedOccupancy(t, 1)
		before := f.store.EventCount()

		resp, err := f.svc.Command(context.Background(), f.door.ID, entry(f, false))
		require.NoError(t, err)
		require.NotNil(t, resp.Admission)
		assert.Equal(t, id.AdmissionBlock, resp.Admission.Decision)
		assert.Equal(t, "VENUE_FULL", resp.Admission.Reason)
		assert.Equal(t, before, f.store.EventCount())
	})

	t.Run("override required until confirmed", func(t *testing.T) {
		f := newServiceFixture(t)
		f.setEnforcement(t, 1, id.EnforcementManagerOverride)
		f.seedOccupancy(t, 1)
		before := f.store.EventCount()

		resp, err := f.svc.Command(context.Background(), f.door.ID, entry(f, false))
		require.NoError(t, err)
		assert.Equal(t, id.AdmissionRequireOverride, resp.Admission.Decision)
		assert.Equal(t, before, f.store.EventCount())

		resp, err = f.svc.Command(context.Background(), f.door.ID, entry(f, true))
		require.NoError(t, err)
		assert.Equal(t, id.AdmissionRequireOverride, resp.Admission.Decision)
		assert.Equal(t, "OVERRIDE_CONFIRMED", resp.Admission.Reason)
		assert.Equal(t, before+1, f.store.EventCount())
	})

	t.Run("warn only admits with a warning", func(t *testing.T) {
		f := newServiceFixture(t)
		f.setEnforcement(t, 1, id.EnforcementWarnOnly)
		f.seedOccupancy(t, 1)

		resp, err := f.svc.Command(context.Background(), f.door.ID, entry(f, false))
		require.NoError(t, err)
		assert.Equal(t, id.AdmissionWarn, resp.Admission.Decision)
		assert.Equal(t, 2, resp.Dataset.Areas[0].Occupancy)
	})

	t.Run("exits are never gated", func(t *testing.T) {
		f := newServiceFixture(t)
		f.setEnforcement(t, 1, id.EnforcementHardStop)
		f.seedOccupancy(t, 1)

		resp, err := f.svc.Command(context.Background(), f.door.ID, Command{
			Action: ActionRecordEvent,
			Payload: payload(t, map[string]any{
				"venue_id": f.venueID.String(), "area_id": f.areaID.String(), "delta": -1,
			}),
		})
		require.NoError(t, err)
		assert.Nil(t, resp.Admission)
		assert.Zero(t, resp.Dataset.Areas[0].Occupancy)
	})
}

func TestRecordScanCommand(t *testing.T) {
	scan := func(f *serviceFixture, extra map[string]any) Command {
		p := map[string]any{
			"venue_id": f.venueID.String(), "first_name": "Jo", "last_name": "Smith",
			"date_of_birth": "1990-01-15", "age": 35, "id_number": "D1234567", "issuing_state": "CA",
		}
		for k, v := range extra {
			p[k] = v
		}
		return Command{Action: ActionRecordScan, Payload: payload(t, p)}
	}

	t.Run("accepted scan is logged with PII stripped by default", func(t *testing.T) {
		f := newServiceFixture(t)
		resp, err := f.svc.Command(context.Background(), f.door.ID, scan(f, nil))
		require.NoError(t, err)

		require.NotNil(t, resp.Scan)
		assert.Equal(t, models.ScanAccepted, resp.Scan.Result)
		require.Len(t, resp.Dataset.Scans, 1)
		assert.Empty(t, resp.Dataset.Scans[0].FirstName)
		assert.Empty(t, resp.Dataset.Scans[0].IDNumber)
		assert.Equal(t, 35, resp.Dataset.Scans[0].Age)

		require.Len(t, f.sink.Events(), 1)
		assert.Equal(t, audit.KindScanDecision, f.sink.Events()[0].Kind)
	})

	t.Run("underage scan is denied", func(t *testing.T) {
		f := newServiceFixture(t)
		resp, err := f.svc.Command(context.Background(), f.door.ID, scan(f, map[string]any{"age": 19}))
		require.NoError(t, err)
		assert.Equal(t, models.ScanDenied, resp.Scan.Result)
		assert.Equal(t, "UNDERAGE(19)", resp.Scan.DenialReason)
	})

	t.Run("banned patron is denied with category", func(t *testing.T) {
		f := newServiceFixture(t)
		ctx := context.Background()
		patron := models.Patron{
			ID: id.NewPatronID(), BusinessID: f.businessID,
			FirstName: "Jo", LastName: "Smith", DateOfBirth: "1990-01-15",
		}
		require.NoError(t, f.store.CreatePatron(ctx, patron))
		require.NoError(t, f.store.CreatePatronBan(ctx, models.PatronBan{
			ID: id.NewBanID(), PatronID: patron.ID, Category: "violence",
			AllLocations: true, Status: id.BanActive,
		}))

		resp, err := f.svc.Command(ctx, f.door.ID, scan(f, nil))
		require.NoError(t, err)
		assert.Equal(t, models.ScanDenied, resp.Scan.Result)
		assert.Equal(t, "BANNED: violence", resp.Scan.DenialReason)
	})

	t.Run("accepted scan with record_entry counts the patron in", func(t *testing.T) {
		f := newServiceFixture(t)
		resp, err := f.svc.Command(context.Background(), f.door.ID, scan(f, map[string]any{
			"record_entry": true, "area_id": f.areaID.String(),
		}))
		require.NoError(t, err)
		assert.Equal(t, models.ScanAccepted, resp.Scan.Result)
		assert.Equal(t, 1, resp.Dataset.Areas[0].Occupancy)
	})

	t.Run("full venue gates the automatic entry, not the scan", func(t *testing.T) {
		f := newServiceFixture(t)
		f.setEnforcement(t, 1, id.EnforcementHardStop)
		f.seedOccupancy(t, 1)
		events := f.store.EventCount()

		resp, err := f.svc.Command(context.Background(), f.door.ID, scan(f, map[string]any{
			"record_entry": true, "area_id": f.areaID.String(),
		}))
		require.NoError(t, err)
		assert.Equal(t, models.ScanAccepted, resp.Scan.Result)
		require.NotNil(t, resp.Admission)
		assert.Equal(t, id.AdmissionBlock, resp.Admission.Decision)
		assert.Equal(t, events, f.store.EventCount(), "scan logged, entry refused")
		assert.Len(t, resp.Dataset.Scans, 1)
	})

	t.Run("unreachable ban registry refuses the scan", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.FailNext("ListPatrons", errors.New("down"))
		_, err := f.svc.Command(context.Background(), f.door.ID, scan(f, nil))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	t.Run("malformed entry area is rejected before the scan is stored", func(t *testing.T) {
		f := newServiceFixture(t)
		ctx := context.Background()
		_, err := f.svc.Command(ctx, f.door.ID, scan(f, map[string]any{
			"record_entry": true, "area_id": "not-an-id",
		}))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		scans, err := f.store.ListRecentScans(ctx, f.businessID, 10)
		require.NoError(t, err)
		assert.Empty(t, scans, "a rejected command leaves nothing behind")
		assert.Empty(t, f.sink.Events())
	})
}

func TestResetCountsCommand(t *testing.T) {
	f := newServiceFixture(t)
	f.seedOccupancy(t, 8)
	ctx := context.Background()

	resp, err := f.svc.Command(ctx, f.door.ID, Command{
		Action:  ActionResetCounts,
		Payload: payload(t, map[string]any{"scope": "AREA", "target_id": f.areaID.String()}),
	})
	require.NoError(t, err)
	assert.Zero(t, resp.Dataset.Areas[0].Occupancy)

	snap, _ := f.store.Snapshot(f.areaID)
	assert.Zero(t, snap.Occupancy)
}

func TestStructuralCommandsRequireManager(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	for _, action := range []string{
		ActionAddVenue, ActionUpdateVenue, ActionDeleteVenue,
		ActionAddArea, ActionAddDevice, ActionUpdateUser,
		ActionAddPatronBan, ActionApplyStaffBan,
	} {
		_, err := f.svc.Command(ctx, f.door.ID, Command{Action: action, Payload: payload(t, map[string]any{})})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), action)
	}
}

func TestAddVenueAssignsCreator(t *testing.T) {
	f := newServiceFixture(t)
	resp, err := f.svc.Command(context.Background(), f.owner.ID, Command{
		Action:  ActionAddVenue,
		Payload: payload(t, map[string]any{"name": "South", "capacity": 50, "enforcement": "HARD_STOP"}),
	})
	require.NoError(t, err)

	require.Len(t, resp.Dataset.Venues, 2, "creator sees the new venue immediately")

	stored, err := f.store.GetUser(context.Background(), f.owner.ID)
	require.NoError(t, err)
	assert.Len(t, stored.VenueIDs, 2)
}

func TestUpdateUserCommand(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Command(ctx, f.owner.ID, Command{
		Action: ActionUpdateUser,
		Payload: payload(t, map[string]any{
			"user_id": f.door.ID.String(), "role": "manager", "venue_ids": []string{},
		}),
	})
	require.NoError(t, err)

	stored, err := f.store.GetUser(ctx, f.door.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, stored.Role)
	assert.Empty(t, stored.VenueIDs, "an explicit empty list clears assignments")
}

func TestApplyStaffBanCascades(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Command(ctx, f.owner.ID, Command{
		Action: ActionApplyStaffBan,
		Payload: payload(t, map[string]any{
			"user_id": f.door.ID.String(), "scope": "VENUE",
			"venue_ids": []string{f.venueID.String()}, "reason": "till theft",
		}),
	})
	require.NoError(t, err)

	for _, u := range resp.Dataset.Users {
		if u.ID == f.door.ID {
			assert.Empty(t, u.VenueIDs, "cascade strips the banned venue")
		}
	}

	stored, err := f.store.GetUser(ctx, f.door.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.VenueIDs, "cascade is persisted")

	banned, err := f.svc.Read(ctx, f.door.ID)
	require.NoError(t, err)
	assert.Empty(t, banned.Venues, "the banned principal sees nothing afterwards")
}

func TestAddPatronBanStoresDigestsWithoutPII(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Command(ctx, f.owner.ID, Command{
		Action: ActionAddPatronBan,
		Payload: payload(t, map[string]any{
			"first_name": "Jo", "last_name": "Smith", "date_of_birth": "1990-01-15",
			"id_number": "D1234567", "issuing_state": "CA",
			"category": "violence", "venue_ids": []string{f.venueID.String()},
		}),
	})
	require.NoError(t, err)

	patrons, err := f.store.ListPatrons(ctx, f.businessID)
	require.NoError(t, err)
	require.Len(t, patrons, 1)
	assert.Empty(t, patrons[0].IDNumber)
	assert.Empty(t, patrons[0].DateOfBirth)
	assert.NotEmpty(t, patrons[0].IDDigest)
	assert.NotEmpty(t, patrons[0].NameDigest)
	assert.Equal(t, "Jo", patrons[0].FirstName, "names stay for the staff ban list")

	bans, err := f.store.ListPatronBans(ctx, f.businessID)
	require.NoError(t, err)
	require.Len(t, bans, 1)
	assert.Equal(t, "violence", bans[0].Category)
}

func TestAddPatronBanWithoutDOBMatchesSoftly(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Command(ctx, f.owner.ID, Command{
		Action: ActionAddPatronBan,
		Payload: payload(t, map[string]any{
			"first_name": "Jo", "last_name": "Smith",
			"category": "violence", "all_locations": true,
		}),
	})
	require.NoError(t, err)

	patrons, err := f.store.ListPatrons(ctx, f.businessID)
	require.NoError(t, err)
	require.Len(t, patrons, 1)
	assert.Empty(t, patrons[0].NameDigest, "no date of birth, no name key")

	// A later scan carrying only the name surfaces the ban for manual
	// confirmation rather than a hard denial.
	resp, err := f.svc.Command(ctx, f.door.ID, Command{
		Action: ActionRecordScan,
		Payload: payload(t, map[string]any{
			"venue_id": f.venueID.String(), "first_name": "Jo", "last_name": "Smith", "age": 30,
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ScanDenied, resp.Scan.Result)
	assert.Equal(t, idcheck.MatchSoft, resp.Scan.Confidence)
}

// fakeCache is an in-process DatasetCache for fallback tests.
type fakeCache struct {
	data map[id.BusinessID]*models.Dataset
	puts int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[id.BusinessID]*models.Dataset{}}
}

func (c *fakeCache) Get(_ context.Context, businessID id.BusinessID) (*models.Dataset, error) {
	return c.data[businessID], nil
}

func (c *fakeCache) Put(_ context.Context, businessID id.BusinessID, ds *models.Dataset) error {
	c.data[businessID] = ds.Clone()
	c.puts++
	return nil
}

func TestCacheFallback(t *testing.T) {
	cache := newFakeCache()
	f := newServiceFixture(t, WithCache(cache))
	ctx := context.Background()

	// A healthy read populates the cache.
	_, err := f.svc.Read(ctx, f.door.ID)
	require.NoError(t, err)
	require.Equal(t, 1, cache.puts)

	t.Run("read survives a dead store on the cached copy", func(t *testing.T) {
		f.store.FailNext("GetBusiness", errors.New("connection refused"))
		ds, err := f.svc.Read(ctx, f.door.ID)
		require.NoError(t, err)
		require.Len(t, ds.Venues, 1)
	})

	t.Run("mutations are refused on a degraded copy", func(t *testing.T) {
		f.store.FailNext("GetBusiness", errors.New("connection refused"))
		_, err := f.svc.Command(ctx, f.door.ID, Command{
			Action: ActionRecordEvent,
			Payload: payload(t, map[string]any{
				"venue_id": f.venueID.String(), "area_id": f.areaID.String(), "delta": 1,
			}),
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	t.Run("no cached copy propagates the failure", func(t *testing.T) {
		empty := newFakeCache()
		g := newServiceFixture(t, WithCache(empty))
		g.store.FailNext("GetBusiness", errors.New("connection refused"))
		_, err := g.svc.Read(ctx, g.door.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func TestPartialHydrationKeepsCachedCollections(t *testing.T) {
	cache := newFakeCache()
	f := newServiceFixture(t, WithCache(cache))
	ctx := context.Background()

	// A healthy read caches the full working copy.
	_, err := f.svc.Read(ctx, f.door.ID)
	require.NoError(t, err)
	require.Len(t, cache.data[f.businessID].Venues, 1)

	// A venue-list blip keeps the cached venues in the refreshed copy and
	// never overwrites the cache with a venue-less one.
	f.store.FailNext("ListVenues", errors.New("timeout"))
	ds, err := f.svc.Read(ctx, f.door.ID)
	require.NoError(t, err)
	require.Len(t, ds.Venues, 1, "stale venues beat missing venues")
	require.Len(t, cache.data[f.businessID].Venues, 1)

	// A later full outage still serves an intact fallback.
	f.store.FailNext("GetBusiness", errors.New("connection refused"))
	ds, err = f.svc.Read(ctx, f.door.ID)
	require.NoError(t, err)
	require.Len(t, ds.Venues, 1)
}
