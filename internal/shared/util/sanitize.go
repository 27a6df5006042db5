package util

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidFileName is returned for names that cannot be stored safely.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName strips path separators and control characters and
// rejects traversal patterns. Umlauts and other printable runes are kept.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if s == "" {
		return "", ErrInvalidFileName
	}
	if len(s) > 200 {
		s = truncateKeepExt(s, 200)
	}
	return s, nil
}

func truncateKeepExt(s string, max int) string {
	ext := ""
	if i := strings.LastIndexByte(s, '.'); i > 0 && len(s)-i <= 10 {
		ext = s[i:]
		s = s[:i]
	}
	limit := max - len(ext)
	for len(s) > limit {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s + ext
}
