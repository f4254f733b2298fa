package extract

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		in   string
	}{
		{"day first slash", "12/03/2025"},
		{"day first dash", "12-03-2025"},
		{"iso", "2025-03-12"},
		{"portuguese long form", "12 de março de 2025"},
		{"portuguese uppercase", "12 de Março de 2025"},
		{"padded", "  12/03/2025  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDate(tc.in)
			if err != nil {
				t.Fatalf("ParseDate(%q): %v", tc.in, err)
			}
			if !got.Equal(want) {
				t.Fatalf("ParseDate(%q) = %v, want %v", tc.in, got, want)
			}
		})
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "not a date", "99 de xyz de 2025"} {
		if _, err := ParseDate(in); err == nil {
			t.Fatalf("ParseDate(%q) succeeded, want error", in)
		}
	}
}
