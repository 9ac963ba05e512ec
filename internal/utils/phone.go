package utils

import "strings"

// NormalizePhone returns the canonical 10-digit national form of a French
// number (0XXXXXXXXX). International prefixes +33 and 0033 are folded to the
// leading zero and a 9-digit number missing its zero gets one. Anything else
// is rejected; a rejection is a normal outcome, not an error.
func NormalizePhone(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	switch {
	case strings.HasPrefix(s, "+33"):
		s = "0" + s[3:]
	case strings.HasPrefix(s, "0033"):
		s = "0" + s[4:]
	}

	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) == 9 {
		digits = "0" + digits
	}
	if len(digits) != 10 || digits[0] != '0' {
		return "", false
	}
	return digits, true
}

// RegionFromPostalCode derives the department code from a postal code:
// overseas codes (97xxx, 98xxx) give three digits, the rest two.
func RegionFromPostalCode(cp string) (string, bool) {
	cp = strings.TrimSpace(cp)
	if len(cp) != 5 {
		return "", false
	}
	for _, r := range cp {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	if strings.HasPrefix(cp, "97") || strings.HasPrefix(cp, "98") {
		return cp[:3], true
	}
	return cp[:2], true
}

// PhoneToInternational turns a canonical number into its E.164 digits
// without the plus sign (0612345678 -> 33612345678).
func PhoneToInternational(canonical string) string {
	if len(canonical) == 10 && canonical[0] == '0' {
		return "33" + canonical[1:]
	}
	return canonical
}

// PhoneFromInternational is the inverse of PhoneToInternational for chat ids,
// which carry the country code without a plus sign (33612345678).
func PhoneFromInternational(digits string) (string, bool) {
	digits = strings.TrimSpace(digits)
	if len(digits) != 11 || !strings.HasPrefix(digits, "33") {
		return "", false
	}
	return NormalizePhone("0" + digits[2:])
}

// FormatPhone groups a canonical number in pairs for display.
func FormatPhone(canonical string) string {
	if len(canonical) != 10 {
		return canonical
	}
	var b strings.Builder
	for i := 0; i < 10; i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(canonical[i : i+2])
	}
	return b.String()
}
