package storage

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SanitizeFilename folds name to ASCII, keeps letters, digits and "-_.() ",
// then turns spaces into underscores.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r > 0x7f {
			continue
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune("-_.() ", r):
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(b.String(), " ", "_")
}
