package idcheck

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Businesses that opt out of scan PII retention store patrons keyed by digest
// instead of plaintext. Both sides of a comparison are normalized the same way
// before hashing, so a live scan can be matched without ever persisting the
// document fields it carried.

// IDMatchKey digests a document number plus issuing state.
func IDMatchKey(idNumber, issuingState string) string {
	return digest(normalize(idNumber), normalize(issuingState))
}

// NameMatchKey digests first name, last name, and date of birth. A name alone
// is too weak to key on, so without a date of birth there is no key; name-only
// records match through their retained plaintext names instead.
func NameMatchKey(firstName, lastName, dateOfBirth string) string {
	if normalize(dateOfBirth) == "" {
		return ""
	}
	return digest(normalize(firstName), normalize(lastName), normalize(dateOfBirth))
}

func digest(parts ...string) string {
	h := sha3.New256()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
