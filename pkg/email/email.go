// Package email derives display values from email addresses.
package email

import (
	"strings"
	"unicode"
)

// DeriveNameFromEmail splits an address's local part on common separators and
// returns a (first, last) pair for user records created without an explicit
// name. "dana.door@example.com" becomes ("Dana", "Door"); an address that
// yields nothing usable falls back to ("User", "User").
func DeriveNameFromEmail(address string) (string, string) {
	local := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		local = address[:at]
	}

	parts := strings.FieldsFunc(local, isSeparator)
	switch len(parts) {
	case 0:
		return "User", "User"
	case 1:
		return title(parts[0]), "User"
	default:
		return title(parts[0]), title(parts[len(parts)-1])
	}
}

func isSeparator(r rune) bool {
	return r == '.' || r == '_' || r == '-' || r == '+'
}

func title(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
