package util

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "rechnung.pdf", want: "rechnung.pdf"},
		{in: " scans/Überweisung.png ", want: "scans_Überweisung.png"},
		{in: `a\b.jpg`, want: "a_b.jpg"},
		{in: "tab\tname.pdf", want: "tabname.pdf"},
		{in: "../etc/passwd", err: true},
		{in: "   ", err: true},
	}
	for _, tc := range cases {
		got, err := SanitizeFileName(tc.in)
		if tc.err {
			if !errors.Is(err, ErrInvalidFileName) {
				t.Fatalf("%q: expected ErrInvalidFileName, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestSanitizeFileNameTruncatesKeepingExtension(t *testing.T) {
	long := strings.Repeat("ä", 150) + ".pdf"
	got, err := SanitizeFileName(long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) > 200 {
		t.Fatalf("expected at most 200 bytes, got %d", len(got))
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("expected extension kept, got %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got)
	}
}
