package storageadapter

import "strings"

// sanitizeComponent strips path traversal and unsafe characters from a
// single path component, per SPEC_FULL.md §4.7's sanitization rule.
func sanitizeComponent(s string) string {
	s = strings.ReplaceAll(s, "..", "")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "\\", "")
	s = strings.TrimLeft(s, ".")
	var b strings.Builder
	for _, r := range s {
		if isSafeRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isSafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
	case r >= 'A' && r <= 'Z':
	case r >= '0' && r <= '9':
	case r == '-' || r == '_' || r == '.':
	default:
		return false
	}
	return true
}

// sanitizeExt restricts a file extension to [A-Za-z0-9] per SPEC_FULL.md §4.7.
func sanitizeExt(ext string) string {
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "bin"
	}
	return b.String()
}
