// Package access enforces per-principal visibility. The scope filter trims
// the working copy to what a user's venue assignments reach, and the ban
// cascade shrinks those assignments when a staff ban lands. Both are pure
// with respect to the authoritative store.
package access

import (
	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
)

// Filter returns the subset of ds visible to user. Venue membership is
// authoritative: areas are kept by their venue's visibility, not by the
// user's possibly stale area-id list, and devices follow the kept areas.
// Every read and every post-write response passes through here; no code path
// returns unfiltered multi-tenant state to an identified caller.
func Filter(user *models.User, ds *models.Dataset) *models.Dataset {
	out := &models.Dataset{
		Business:  ds.Business,
		Degraded:  ds.Degraded,
		StaffBans: nil,
	}

	visibleVenues := make(map[id.VenueID]bool, len(user.VenueIDs))
	for _, v := range user.VenueIDs {
		visibleVenues[v] = true
	}

	for _, venue := range ds.Venues {
		if visibleVenues[venue.ID] {
			out.Venues = append(out.Venues, venue)
		}
	}

	visibleAreas := make(map[id.AreaID]bool)
	for _, area := range ds.Areas {
		if visibleVenues[area.VenueID] {
			out.Areas = append(out.Areas, area)
			visibleAreas[area.ID] = true
		}
	}

	for _, device := range ds.Devices {
		if visibleAreas[device.AreaID] {
			out.Devices = append(out.Devices, device)
		}
	}

	for _, event := range ds.Events {
		if visibleVenues[event.VenueID] {
			out.Events = append(out.Events, event)
		}
	}
	for _, scan := range ds.Scans {
		if visibleVenues[scan.VenueID] {
			out.Scans = append(out.Scans, scan)
		}
	}

	// Other staff are visible only when they share a venue with the caller;
	// this blocks cross-tenant staff enumeration.
	for _, other := range ds.Users {
		if other.ID == user.ID {
			out.Users = append(out.Users, other)
			continue
		}
		for _, v := range other.VenueIDs {
			if visibleVenues[v] {
				out.Users = append(out.Users, other)
				break
			}
		}
	}

	return out
}
