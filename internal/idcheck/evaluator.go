// Package idcheck evaluates scanned identity documents against age, expiry,
// and the patron ban registry. Checks short-circuit in a fixed order: age,
// then expiry, then ban match.
package idcheck

import (
	"fmt"
	"strings"
	"time"

	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
)

// MinimumAge is the admission age floor.
const MinimumAge = 21

// Document is one parsed identity document. Age <= 0 means the scanner could
// not derive an age; ExpiresAt is zero when the document carries no expiry.
type Document struct {
	FirstName    string
	LastName     string
	DateOfBirth  string
	Age          int
	IDNumber     string
	IssuingState string
	ExpiresAt    time.Time
}

// Registry is the ban registry slice relevant to one business, fetched on
// demand per scan rather than hydrated into the working copy.
type Registry struct {
	Patrons []models.Patron
	Bans    []models.PatronBan
}

// MatchConfidence tiers a ban match for human review. A hard match carries an
// identical date of birth (or an exact document-number hit); a soft match is
// name-only and is surfaced for manual confirmation by the door client.
type MatchConfidence string

const (
	MatchHard MatchConfidence = "HARD"
	MatchSoft MatchConfidence = "SOFT"
)

// Result is the outcome of evaluating one document.
type Result struct {
	Result       models.ScanResult
	DenialReason string
	Confidence   MatchConfidence
	PatronID     id.PatronID
}

// Evaluate runs the checks against the given venue at the given time. First
// failing check wins; a clean document is accepted.
func Evaluate(doc Document, reg Registry, venueID id.VenueID, now time.Time) Result {
	if doc.Age > 0 && doc.Age < MinimumAge {
		return Result{
			Result:       models.ScanDenied,
			DenialReason: fmt.Sprintf("UNDERAGE(%d)", doc.Age),
		}
	}
	if !doc.ExpiresAt.IsZero() && !now.Before(doc.ExpiresAt) {
		return Result{Result: models.ScanDenied, DenialReason: "EXPIRED_ID"}
	}

	if patron, confidence, ok := matchPatron(doc, reg.Patrons); ok {
		for i := range reg.Bans {
			ban := &reg.Bans[i]
			if ban.PatronID == patron.ID && ban.InEffect(venueID, now) {
				return Result{
					Result:       models.ScanDenied,
					DenialReason: "BANNED: " + ban.Category,
					Confidence:   confidence,
					PatronID:     patron.ID,
				}
			}
		}
	}

	return Result{Result: models.ScanAccepted}
}

// matchPatron searches the registry in priority order: exact document number
// plus issuing state first, then name and date of birth. Patrons stored as
// digests are compared through the same match keys.
func matchPatron(doc Document, patrons []models.Patron) (*models.Patron, MatchConfidence, bool) {
	if doc.IDNumber != "" {
		docKey := IDMatchKey(doc.IDNumber, doc.IssuingState)
		for i := range patrons {
			p := &patrons[i]
			if p.IDNumber != "" &&
				equalFold(p.IDNumber, doc.IDNumber) && equalFold(p.IssuingState, doc.IssuingState) {
				return p, MatchHard, true
			}
			if p.IDDigest != "" && p.IDDigest == docKey {
				return p, MatchHard, true
			}
		}
	}

	if doc.FirstName == "" || doc.LastName == "" {
		return nil, "", false
	}
	nameKey := NameMatchKey(doc.FirstName, doc.LastName, doc.DateOfBirth)
	for i := range patrons {
		p := &patrons[i]
		// A stored name digest always includes the date of birth, so a
		// digest hit carries the weight of a plaintext name+dob match.
		if p.NameDigest != "" && nameKey != "" && p.NameDigest == nameKey {
			return p, MatchHard, true
		}
		if p.FirstName == "" && p.LastName == "" {
			continue
		}
		if !equalFold(p.FirstName, doc.FirstName) || !equalFold(p.LastName, doc.LastName) {
			continue
		}
		if p.DateOfBirth != "" && doc.DateOfBirth != "" {
			if p.DateOfBirth == doc.DateOfBirth {
				return p, MatchHard, true
			}
			continue
		}
		return p, MatchSoft, true
	}
	return nil, "", false
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
