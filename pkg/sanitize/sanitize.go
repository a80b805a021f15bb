// Package sanitize cleans user-supplied text before it is persisted or
// pushed to clients. All functions are pure and never return an error:
// hostile or malformed input degrades to an empty string.
package sanitize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// Per-field length caps, counted in code points.
const (
	MaxTitleLen    = 200
	MaxContentLen  = 1000
	MaxPreviewLen  = 500
	MaxUsernameLen = 50
)

const ellipsis = "…"

var (
	tagRe = regexp.MustCompile(`<[^>]*>`)
	// zero-width space, ZWNJ, ZWJ, word joiner, BOM
	zeroWidthRe = regexp.MustCompile("[\u200b\u200c\u200d\u2060\ufeff]")
	spaceRunRe  = regexp.MustCompile(`[ \t]{2,}`)
)

// Text strips markup tags, zero-width and control characters, collapses
// runs of spaces and trims the result. Idempotent.
func Text(input string) string {
	s := tagRe.ReplaceAllString(input, "")
	s = zeroWidthRe.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Username applies Text plus the username length cap.
func Username(input string) string {
	return Truncate(Text(input), MaxUsernameLen)
}

// URL returns the input if it parses and carries an allow-listed scheme
// (http, https, mailto), otherwise "". This blocks javascript: and
// data: scheme injection through avatar or link fields.
func URL(input string) string {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "mailto":
		return u.String()
	}
	return ""
}

// Truncate caps s at maxLen code points, replacing the tail with an
// ellipsis marker when it has to cut.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen == 1 {
		return ellipsis
	}
	return strings.TrimSpace(string(runes[:maxLen-1])) + ellipsis
}
