// Package masking redacts account identifiers before they reach logs,
// reports, or the progress file. Phone numbers keep their country code and
// last four digits; API hashes keep four characters on each end. Rules are
// pre-compiled regexes applied in order.
package masking

import (
	"regexp"
	"strings"
)

// Rule is a pre-compiled redaction pattern.
type Rule struct {
	Name    string
	Regex   *regexp.Regexp
	Rewrite func(match string) string
}

var (
	phoneRe = regexp.MustCompile(`\+\d{7,15}\b`)
	hexRe   = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
)

var rules = []Rule{
	{Name: "phone", Regex: phoneRe, Rewrite: maskPhoneMatch},
	{Name: "hex_secret", Regex: hexRe, Rewrite: maskHexMatch},
}

// Phone masks a full international phone number, keeping the country code
// (up to 3 digits) and the last 4 digits: +14155552671 -> +1****2671.
// Strings that do not look like a phone number pass through unchanged.
func Phone(s string) string {
	if !phoneRe.MatchString(s) {
		return s
	}
	return phoneRe.ReplaceAllStringFunc(s, maskPhoneMatch)
}

// Hash masks hex secrets of 32 or more characters, keeping 4 characters on
// each end: 0123abcd...ef -> 0123****cdef.
func Hash(s string) string {
	if !hexRe.MatchString(s) {
		return s
	}
	return hexRe.ReplaceAllStringFunc(s, maskHexMatch)
}

// Apply runs every rule over s. Used by the log handler and MaskedCopy.
func Apply(s string) string {
	for _, r := range rules {
		s = r.Regex.ReplaceAllStringFunc(s, r.Rewrite)
	}
	return s
}

func maskPhoneMatch(m string) string {
	digits := strings.TrimPrefix(m, "+")
	cc := len(digits) - 10
	if cc < 1 {
		cc = 1
	}
	if cc > 3 {
		cc = 3
	}
	if len(digits) <= cc+4 {
		return "+" + digits[:cc] + "****"
	}
	return "+" + digits[:cc] + "****" + digits[len(digits)-4:]
}

func maskHexMatch(m string) string {
	return m[:4] + "****" + m[len(m)-4:]
}
