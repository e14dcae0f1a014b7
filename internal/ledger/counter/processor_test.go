package counter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"clicr/internal/audit"
	"clicr/internal/ledger/counter/mocks"
	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
	dErrors "clicr/pkg/domain-errors"
	"clicr/pkg/platform/sentinel"
)

type processorFixture struct {
	ds       *models.Dataset
	venueID  id.VenueID
	areaID   id.AreaID
	deviceID id.DeviceID
	userID   id.UserID
}

func newFixture() processorFixture {
	f := processorFixture{
		venueID:  id.NewVenueID(),
		areaID:   id.NewAreaID(),
		deviceID: id.NewDeviceID(),
		userID:   id.NewUserID(),
	}
	f.ds = &models.Dataset{
		Business: models.Business{ID: id.NewBusinessID()},
		Venues:   []models.Venue{{ID: f.venueID, Name: "North"}},
		Areas:    []models.Area{{ID: f.areaID, VenueID: f.venueID, Occupancy: 5}},
		Devices: []models.Device{{
			ID: f.deviceID, AreaID: f.areaID, FlowMode: id.FlowBidirectional, Tally: 2,
		}},
	}
	return f
}

func (f processorFixture) request(delta int) Request {
	flow := id.FlowIn
	if delta < 0 {
		flow = id.FlowOut
	}
	return Request{
		Delta:     delta,
		FlowType:  flow,
		EventType: id.EventTap,
		VenueID:   f.venueID,
		AreaID:    f.areaID,
		DeviceID:  f.deviceID,
		UserID:    f.userID,
	}
}

func TestRecordEventMirrorsSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedger(ctrl)
	sink := audit.NewMemorySink()
	f := newFixture()

	ledger.EXPECT().RecordCountEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e models.CountEvent) (models.CountEvent, error) {
			return e, nil
		})

	p := New(ledger, nil, WithEmitter(sink))
	stored, err := p.RecordEvent(context.Background(), f.ds, f.request(3))
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Delta)

	require.Len(t, f.ds.Events, 1)
	assert.Equal(t, stored.ID, f.ds.Events[0].ID)
	assert.Equal(t, 8, f.ds.Areas[0].Occupancy)
	assert.Equal(t, 5, f.ds.Devices[0].Tally)

	require.Len(t, sink.Events(), 1)
	assert.Equal(t, audit.KindCountEvent, sink.Events()[0].Kind)
}

func TestRecordEventStoreFailureLeavesWorkingCopyUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedger(ctrl)
	f := newFixture()

	ledger.EXPECT().RecordCountEvent(gomock.Any(), gomock.Any()).
		Return(models.CountEvent{}, errors.New("deadlock"))

	p := New(ledger, nil)
	_, err := p.RecordEvent(context.Background(), f.ds, f.request(3))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	assert.Empty(t, f.ds.Events)
	assert.Equal(t, 5, f.ds.Areas[0].Occupancy)
	assert.Equal(t, 2, f.ds.Devices[0].Tally)
}

func TestRecordEventUpstreamNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedger(ctrl)
	f := newFixture()

	ledger.EXPECT().RecordCountEvent(gomock.Any(), gomock.Any()).
		Return(models.CountEvent{}, sentinel.ErrNotFound)

	p := New(ledger, nil)
	_, err := p.RecordEvent(context.Background(), f.ds, f.request(1))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRecordEventValidation(t *testing.T) {
	p := New(mocks.NewMockLedger(gomock.NewController(t)), nil)
	ctx := context.Background()

	t.Run("unknown venue", func(t *testing.T) {
		f := newFixture()
		req := f.request(1)
		req.VenueID = id.NewVenueID()
		_, err := p.RecordEvent(ctx, f.ds, req)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("unknown area", func(t *testing.T) {
		f := newFixture()
		req := f.request(1)
		req.AreaID = id.NewAreaID()
		_, err := p.RecordEvent(ctx, f.ds, req)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("area in a different venue", func(t *testing.T) {
		f := newFixture()
		otherVenue := id.NewVenueID()
		f.ds.Venues = append(f.ds.Venues, models.Venue{ID: otherVenue})
		req := f.request(1)
		req.VenueID = otherVenue
		_, err := p.RecordEvent(ctx, f.ds, req)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unknown device", func(t *testing.T) {
		f := newFixture()
		req := f.request(1)
		req.DeviceID = id.NewDeviceID()
		_, err := p.RecordEvent(ctx, f.ds, req)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("flow mode rejects the delta", func(t *testing.T) {
		f := newFixture()
		f.ds.Devices[0].FlowMode = id.FlowInOnly
		_, err := p.RecordEvent(ctx, f.ds, f.request(-1))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("no device is fine", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		ledger := mocks.NewMockLedger(ctrl)
		ledger.EXPECT().RecordCountEvent(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e models.CountEvent) (models.CountEvent, error) {
				return e, nil
			})
		f := newFixture()
		req := f.request(1)
		req.DeviceID = id.DeviceID{}
		_, err := New(ledger, nil).RecordEvent(ctx, f.ds, req)
		assert.NoError(t, err)
		assert.Equal(t, 2, f.ds.Devices[0].Tally, "no device named, no tally change")
	})
}

func TestRecordEventBannedCallerIsForbidden(t *testing.T) {
	f := newFixture()
	f.ds.StaffBans = []models.StaffBan{{
		ID: id.NewBanID(), UserID: f.userID, Scope: id.BanScopeVenue,
		Status: id.BanActive, VenueIDs: []id.VenueID{f.venueID},
	}}

	p := New(mocks.NewMockLedger(gomock.NewController(t)), nil)
	_, err := p.RecordEvent(context.Background(), f.ds, f.request(1))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestResetCountsZeroesScope(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedger(ctrl)
	sink := audit.NewMemorySink()
	f := newFixture()

	ledger.EXPECT().
		ResetSnapshots(gomock.Any(), f.ds.Business.ID, id.ResetVenue, f.venueID.String(), f.userID).
		Return(nil)

	p := New(ledger, nil, WithEmitter(sink))
	err := p.ResetCounts(context.Background(), f.ds, id.ResetVenue, f.venueID.String(), f.userID)
	require.NoError(t, err)

	assert.Zero(t, f.ds.Areas[0].Occupancy)
	assert.Zero(t, f.ds.Devices[0].Tally)
	require.Len(t, sink.Events(), 1)
	assert.Equal(t, audit.KindCountReset, sink.Events()[0].Kind)
}

func TestResetCountsUnknownTarget(t *testing.T) {
	f := newFixture()
	p := New(mocks.NewMockLedger(gomock.NewController(t)), nil)

	err := p.ResetCounts(context.Background(), f.ds, id.ResetArea, id.NewAreaID().String(), f.userID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	err = p.ResetCounts(context.Background(), f.ds, id.ResetScope("BOGUS"), f.venueID.String(), f.userID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestResetCountsStoreFailureKeepsLocalState(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedger(ctrl)
	f := newFixture()

	ledger.EXPECT().
		ResetSnapshots(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("down"))

	p := New(ledger, nil)
	err := p.ResetCounts(context.Background(), f.ds, id.ResetVenue, f.venueID.String(), f.userID)
	require.Error(t, err)
	assert.Equal(t, 5, f.ds.Areas[0].Occupancy)
	assert.Equal(t, 2, f.ds.Devices[0].Tally)
}
