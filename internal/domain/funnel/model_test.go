package funnel

import (
	"testing"
	"time"
)

func TestNewSession_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	session := NewSession("sess-1", now, 24*time.Hour)

	if session.Screen != ScreenHero {
		t.Fatalf("expected hero screen, got %s", session.Screen)
	}
	if session.Onboarding.Step != 1 {
		t.Fatalf("expected step 1, got %d", session.Onboarding.Step)
	}
	if session.Onboarding.Data.TZOffsetHours == nil || *session.Onboarding.Data.TZOffsetHours != -8 {
		t.Fatalf("expected timezone seed -8, got %v", session.Onboarding.Data.TZOffsetHours)
	}
	if !session.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}
}

func TestSanitizeCityName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"New York, NY, USA", "New York"},
		{"Paris, France", "Paris"},
		{"Tokyo", "Tokyo"},
		{"  Berlin , Germany", "Berlin"},
		{", France", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeCityName(tc.in); got != tc.want {
			t.Fatalf("SanitizeCityName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsBirthDateInRange(t *testing.T) {
	today := time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		date string
		want bool
	}{
		{"lower bound inclusive", "1940-01-01", true},
		{"below lower bound", "1939-12-31", false},
		{"today inclusive", "2026-03-01", true},
		{"tomorrow", "2026-03-02", false},
		{"mid range", "1990-06-15", true},
		{"not a date", "15/06/1990", false},
		{"empty", "", false},
		{"impossible calendar day", "1990-02-30", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsBirthDateInRange(tc.date, today); got != tc.want {
				t.Fatalf("IsBirthDateInRange(%q) = %t, want %t", tc.date, got, tc.want)
			}
		})
	}
}
