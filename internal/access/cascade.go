package access

import (
	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
)

// ApplyBan cascades an active staff ban into the target user's assignment
// lists, in place. A cascade only ever removes ids, never adds them.
//
// The transitive closure (banned venues → their areas → those areas' devices)
// is resolved from the pre-mutation entity graph in ds, not from the user's
// own lists, which may be stale. Revoked bans are no-ops: revocation is a
// status change, not an automatic re-grant.
func ApplyBan(ban *models.StaffBan, user *models.User, ds *models.Dataset) {
	if user == nil || !ban.Active() {
		return
	}

	if ban.Scope == id.BanScopeBusiness {
		user.VenueIDs = nil
		user.AreaIDs = nil
		user.DeviceIDs = nil
		return
	}

	banned := make(map[id.VenueID]bool, len(ban.VenueIDs))
	for _, v := range ban.VenueIDs {
		banned[v] = true
	}

	bannedAreas := make(map[id.AreaID]bool)
	for _, area := range ds.Areas {
		if banned[area.VenueID] {
			bannedAreas[area.ID] = true
		}
	}
	bannedDevices := make(map[id.DeviceID]bool)
	for _, device := range ds.Devices {
		if bannedAreas[device.AreaID] {
			bannedDevices[device.ID] = true
		}
	}

	kept := user.VenueIDs[:0]
	for _, v := range user.VenueIDs {
		if !banned[v] {
			kept = append(kept, v)
		}
	}
	user.VenueIDs = kept

	keptAreas := user.AreaIDs[:0]
	for _, a := range user.AreaIDs {
		if !bannedAreas[a] {
			keptAreas = append(keptAreas, a)
		}
	}
	user.AreaIDs = keptAreas

	keptDevices := user.DeviceIDs[:0]
	for _, d := range user.DeviceIDs {
		if !bannedDevices[d] {
			keptDevices = append(keptDevices, d)
		}
	}
	user.DeviceIDs = keptDevices
}
