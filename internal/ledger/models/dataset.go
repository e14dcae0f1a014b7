package models

import (
	id "clicr/pkg/domain"
)

// Dataset is the per-request working copy of the ledger. The hydrator rebuilds
// it from the authoritative store, the sync service mutates it through the
// event processor, and the scope filter trims it before it leaves the engine.
// There is no process-wide shared dataset; each request carries its own value.
type Dataset struct {
	Business  Business            `json:"business"`
	Venues    []Venue             `json:"venues"`
	Areas     []Area              `json:"areas"`
	Devices   []Device            `json:"devices"`
	Users     []User              `json:"users"`
	Events    []CountEvent        `json:"events"`
	Scans     []IdentityScanEvent `json:"scans"`
	StaffBans []StaffBan          `json:"staff_bans"`
	// Degraded marks a working copy assembled from a cached fallback after a
	// failed hydration. Mutations are refused on a degraded copy.
	Degraded bool `json:"degraded,omitempty"`
}

// VenueByID returns a pointer into the dataset's venue slice, or nil.
func (d *Dataset) VenueByID(venueID id.VenueID) *Venue {
	for i := range d.Venues {
		if d.Venues[i].ID == venueID {
			return &d.Venues[i]
		}
	}
	return nil
}

// AreaByID returns a pointer into the dataset's area slice, or nil.
func (d *Dataset) AreaByID(areaID id.AreaID) *Area {
	for i := range d.Areas {
		if d.Areas[i].ID == areaID {
			return &d.Areas[i]
		}
	}
	return nil
}

// DeviceByID returns a pointer into the dataset's device slice, or nil.
func (d *Dataset) DeviceByID(deviceID id.DeviceID) *Device {
	for i := range d.Devices {
		if d.Devices[i].ID == deviceID {
			return &d.Devices[i]
		}
	}
	return nil
}

// VenueOccupancy sums the overlaid occupancy of a venue's areas. Capacity
// policy is venue level; area counts are the authoritative parts.
func (d *Dataset) VenueOccupancy(venueID id.VenueID) int {
	total := 0
	for i := range d.Areas {
		if d.Areas[i].VenueID == venueID {
			total += d.Areas[i].Occupancy
		}
	}
	return total
}

// UserByID returns a pointer into the dataset's user slice, or nil.
func (d *Dataset) UserByID(userID id.UserID) *User {
	for i := range d.Users {
		if d.Users[i].ID == userID {
			return &d.Users[i]
		}
	}
	return nil
}

// MergeUsers upserts fetched profiles into the cached user list by id: update
// in place on a match, append otherwise. A profile never deletes a cached user
// it does not match.
func MergeUsers(existing []User, fetched []User) []User {
	merged := existing
	for _, profile := range fetched {
		replaced := false
		for i := range merged {
			if merged[i].ID == profile.ID {
				merged[i] = profile
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, profile)
		}
	}
	return merged
}

// MergeDevices reconciles persisted device records into the working copy. A
// device not yet present is materialized with its persisted configuration and
// a zero tally; a device already present gets only its persisted name and
// button configuration overwritten, leaving the live tally untouched.
func MergeDevices(existing []Device, persisted []Device) []Device {
	merged := existing
	for _, rec := range persisted {
		found := false
		for i := range merged {
			if merged[i].ID == rec.ID {
				merged[i].Name = rec.Name
				merged[i].Buttons = rec.Buttons
				merged[i].AreaID = rec.AreaID
				merged[i].FlowMode = rec.FlowMode
				merged[i].Active = rec.Active
				found = true
				break
			}
		}
		if !found {
			dev := rec
			dev.Tally = 0
			if len(dev.Buttons) == 0 {
				dev.Buttons = DefaultButtons(dev.FlowMode)
			}
			merged = append(merged, dev)
		}
	}
	return merged
}

// Clone returns a deep copy of the dataset so a cached copy can never alias a
// live request's slices.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := *d
	out.Venues = append([]Venue(nil), d.Venues...)
	out.Areas = append([]Area(nil), d.Areas...)
	out.Devices = make([]Device, len(d.Devices))
	for i, dev := range d.Devices {
		dev.Buttons = append([]DeviceButton(nil), dev.Buttons...)
		out.Devices[i] = dev
	}
	out.Users = make([]User, len(d.Users))
	for i, u := range d.Users {
		u.VenueIDs = append([]id.VenueID(nil), u.VenueIDs...)
		u.AreaIDs = append([]id.AreaID(nil), u.AreaIDs...)
		u.DeviceIDs = append([]id.DeviceID(nil), u.DeviceIDs...)
		out.Users[i] = u
	}
	out.Events = append([]CountEvent(nil), d.Events...)
	out.Scans = append([]IdentityScanEvent(nil), d.Scans...)
	out.StaffBans = make([]StaffBan, len(d.StaffBans))
	for i, b := range d.StaffBans {
		b.VenueIDs = append([]id.VenueID(nil), b.VenueIDs...)
		out.StaffBans[i] = b
	}
	return &out
}
