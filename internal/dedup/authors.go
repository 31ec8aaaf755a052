package dedup

import (
	"strings"
	"unicode"
)

// NormalizeName canonicalises an author name for comparison. Diacritics are
// folded, case is lowered, "Last, First" is reordered to "First Last", and
// everything that is not a letter or a single separating space is dropped.
func NormalizeName(name string) string {
	name = strings.ToLower(foldDiacritics(strings.TrimSpace(name)))
	if name == "" {
		return ""
	}

	if last, first, ok := strings.Cut(name, ","); ok {
		last, first = strings.TrimSpace(last), strings.TrimSpace(first)
		name = last
		if first != "" {
			name = first + " " + last
		}
	}

	var sb strings.Builder
	sb.Grow(len(name))
	pendingSpace := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			if pendingSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			pendingSpace = false
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return sb.String()
}

// Surname returns the family name of an author, or "" when nothing is left
// after normalization. Names are usually "First Last", but Europe PMC style
// "Last Initials" (e.g. "Vaswani A", "Smith JK") is recognised by a trailing
// initials token, in which case the token before it is the surname.
func Surname(name string) string {
	name = strings.TrimSpace(name)
	if !strings.Contains(name, ",") {
		raw := strings.Fields(foldDiacritics(name))
		if len(raw) > 1 && isInitials(raw[len(raw)-1]) && !isInitials(raw[len(raw)-2]) {
			if s := NormalizeName(raw[len(raw)-2]); s != "" {
				return s
			}
		}
	}

	parts := strings.Fields(NormalizeName(name))
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// isInitials reports whether tok looks like a run of initials: a single
// letter, or up to three upper-case letters, dots ignored.
func isInitials(tok string) bool {
	letters := 0
	upper := true
	for _, r := range tok {
		switch {
		case r == '.':
		case unicode.IsLetter(r):
			letters++
			if !unicode.IsUpper(r) {
				upper = false
			}
		default:
			return false
		}
	}
	return letters == 1 || (letters > 0 && letters <= 3 && upper)
}
