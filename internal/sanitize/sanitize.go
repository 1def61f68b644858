// Package sanitize enforces the text-safety invariant every persisted field
// must satisfy: free of NUL bytes and control characters other than
// tab, newline, and carriage return.
package sanitize

import "strings"

// Text strips NUL bytes and control characters outside \t\n\r from s,
// returning the cleaned string. In this module only the processor calls it,
// on extracted page text; image descriptions, summaries, chat titles and
// message content are stored without passing through it.
func Text(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return r
		case 0:
			return -1
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// IsClean reports whether s already satisfies the invariant, without
// allocating a cleaned copy. Only this package's tests call it.
func IsClean(s string) bool {
	for _, r := range s {
		switch r {
		case '\t', '\n', '\r':
			continue
		}
		if r == 0 || r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}
