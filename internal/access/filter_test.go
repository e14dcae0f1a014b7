package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
)

// twoVenueDataset builds a business with two venues, one area and one device
// each, plus one event and one scan per venue.
func twoVenueDataset() (*models.Dataset, id.VenueID, id.VenueID) {
	v1, v2 := id.NewVenueID(), id.NewVenueID()
	a1, a2 := id.NewAreaID(), id.NewAreaID()
	ds := &models.Dataset{
		Business: models.Business{ID: id.NewBusinessID()},
		Venues: []models.Venue{
			{ID: v1, Name: "North"},
			{ID: v2, Name: "South"},
		},
		Areas: []models.Area{
			{ID: a1, VenueID: v1, Name: "Floor"},
			{ID: a2, VenueID: v2, Name: "Patio"},
		},
		Devices: []models.Device{
			{ID: id.NewDeviceID(), AreaID: a1},
			{ID: id.NewDeviceID(), AreaID: a2},
		},
		Events: []models.CountEvent{
			{ID: id.NewEventID(), VenueID: v1},
			{ID: id.NewEventID(), VenueID: v2},
		},
		Scans: []models.IdentityScanEvent{
			{ID: id.NewScanID(), VenueID: v1},
			{ID: id.NewScanID(), VenueID: v2},
		},
	}
	return ds, v1, v2
}

func TestFilterScopesByVenueAssignment(t *testing.T) {
	ds, v1, _ := twoVenueDataset()
	user := &models.User{ID: id.NewUserID(), VenueIDs: []id.VenueID{v1}}
	ds.Users = []models.User{*user}

	out := Filter(user, ds)

	require.Len(t, out.Venues, 1)
	assert.Equal(t, "North", out.Venues[0].Name)
	require.Len(t, out.Areas, 1)
	assert.Equal(t, "Floor", out.Areas[0].Name)
	assert.Len(t, out.Devices, 1)
	assert.Len(t, out.Events, 1)
	assert.Len(t, out.Scans, 1)
	assert.Equal(t, v1, out.Events[0].VenueID)
}

func TestFilterVenueMembershipIsAuthoritativeForAreas(t *testing.T) {
	ds, v1, v2 := twoVenueDataset()
	// The user's stored area list still names the other venue's area; area
	// visibility must follow venue membership, not that stale list.
	user := &models.User{
		ID:       id.NewUserID(),
		VenueIDs: []id.VenueID{v1},
		AreaIDs:  []id.AreaID{ds.Areas[1].ID},
	}
	ds.Users = []models.User{*user}

	out := Filter(user, ds)

	require.Len(t, out.Areas, 1)
	assert.Equal(t, v1, out.Areas[0].VenueID)
	for _, a := range out.Areas {
		assert.NotEqual(t, v2, a.VenueID)
	}
}

func TestFilterStaffVisibility(t *testing.T) {
	ds, v1, v2 := twoVenueDataset()
	caller := models.User{ID: id.NewUserID(), VenueIDs: []id.VenueID{v1}}
	coworker := models.User{ID: id.NewUserID(), VenueIDs: []id.VenueID{v1, v2}}
	stranger := models.User{ID: id.NewUserID(), VenueIDs: []id.VenueID{v2}}
	ds.Users = []models.User{caller, coworker, stranger}

	out := Filter(&caller, ds)

	require.Len(t, out.Users, 2)
	ids := []id.UserID{out.Users[0].ID, out.Users[1].ID}
	assert.Contains(t, ids, caller.ID)
	assert.Contains(t, ids, coworker.ID)
	assert.NotContains(t, ids, stranger.ID)
}

func TestFilterNoAssignmentsSeesNothing(t *testing.T) {
	ds, _, _ := twoVenueDataset()
	user := &models.User{ID: id.NewUserID()}
	ds.Users = []models.User{*user}

	out := Filter(user, ds)

	assert.Empty(t, out.Venues)
	assert.Empty(t, out.Areas)
	assert.Empty(t, out.Devices)
	assert.Empty(t, out.Events)
	assert.Empty(t, out.Scans)
	// The caller still sees their own record.
	require.Len(t, out.Users, 1)
	assert.Equal(t, user.ID, out.Users[0].ID)
}

func TestFilterNeverLeaksStaffBans(t *testing.T) {
	ds, v1, _ := twoVenueDataset()
	ds.StaffBans = []models.StaffBan{{ID: id.NewBanID(), Scope: id.BanScopeVenue, VenueIDs: []id.VenueID{v1}}}
	user := &models.User{ID: id.NewUserID(), VenueIDs: []id.VenueID{v1}}
	ds.Users = []models.User{*user}

	out := Filter(user, ds)
	assert.Empty(t, out.StaffBans)
}
