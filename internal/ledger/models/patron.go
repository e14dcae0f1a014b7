package models

import (
	"time"

	id "clicr/pkg/domain"
)

// Patron is a banned external person in the registry. A patron is keyed two
// ways: exact document number + issuing state, and first/last name + date of
// birth. Either key may be absent.
type Patron struct {
	ID           id.PatronID   `json:"id"`
	BusinessID   id.BusinessID `json:"business_id"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	DateOfBirth  string        `json:"date_of_birth,omitempty"`
	IDNumber     string        `json:"id_number,omitempty"`
	IssuingState string        `json:"issuing_state,omitempty"`
	// IDDigest replaces IDNumber/IssuingState plaintext when the business
	// does not retain PII; see idcheck.MatchKey.
	IDDigest   string `json:"id_digest,omitempty"`
	NameDigest string `json:"name_digest,omitempty"`
}

// PatronBan is an active or revoked ban on a patron.
type PatronBan struct {
	ID           id.BanID     `json:"id"`
	PatronID     id.PatronID  `json:"patron_id"`
	Category     string       `json:"category"`
	AllLocations bool         `json:"all_locations"`
	VenueIDs     []id.VenueID `json:"venue_ids,omitempty"`
	Status       id.BanStatus `json:"status"`
	// ExpiresAt is zero for permanent bans.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// InEffect reports whether the ban applies at the given venue and time.
func (b *PatronBan) InEffect(venueID id.VenueID, now time.Time) bool {
	if b.Status != id.BanActive {
		return false
	}
	if !b.ExpiresAt.IsZero() && !now.Before(b.ExpiresAt) {
		return false
	}
	if b.AllLocations {
		return true
	}
	for _, v := range b.VenueIDs {
		if v == venueID {
			return true
		}
	}
	return false
}
