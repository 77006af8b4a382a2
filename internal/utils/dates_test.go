package utils

import (
	"testing"
	"time"
)

func TestPresets(t *testing.T) {
	// Thursday
	now := time.Date(2024, 3, 14, 18, 30, 0, 0, time.UTC)
	cases := map[string]DateRange{
		PresetLast7Days:    {From: "2024-03-08", To: "2024-03-14"},
		PresetThisWeek:     {From: "2024-03-11", To: "2024-03-14"},
		PresetLast30Days:   {From: "2024-02-14", To: "2024-03-14"},
		PresetThisMonth:    {From: "2024-03-01", To: "2024-03-14"},
		PresetLast90Days:   {From: "2023-12-16", To: "2024-03-14"},
		PresetLast6Months:  {From: "2023-10-14", To: "2024-03-14"},
		PresetLast12Months: {From: "2023-04-14", To: "2024-03-14"},
		PresetThisYear:     {From: "2024-01-01", To: "2024-03-14"},
	}
	got := Presets(now)
	if len(got) != len(cases) {
		t.Fatalf("len = %d", len(got))
	}
	for name, want := range cases {
		if got[name] != want {
			t.Errorf("%s = %+v, want %+v", name, got[name], want)
		}
	}
}

func TestThisWeekOnSunday(t *testing.T) {
	now := time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC)
	r, ok := Preset(PresetThisWeek, now)
	if !ok || r.From != "2024-03-11" || r.To != "2024-03-17" {
		t.Fatalf("thisWeek = %+v", r)
	}
}

func TestLastDaysAndValidRange(t *testing.T) {
	now := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	r := LastDays(30, now)
	if r.From != "2024-02-05" || r.To != "2024-03-05" {
		t.Fatalf("range = %+v", r)
	}
	if !ValidRange(r) {
		t.Fatalf("expected valid")
	}
	if ValidRange(DateRange{From: "2024-03-06", To: "2024-03-05"}) {
		t.Fatalf("inverted range accepted")
	}
	if ValidRange(DateRange{From: "03/01/2024", To: "2024-03-05"}) {
		t.Fatalf("bad layout accepted")
	}
}

func TestNormalizeAppUserAgent(t *testing.T) {
	if got := NormalizeAppUserAgent(""); got != DefaultAppUserAgent() {
		t.Fatalf("empty = %q", got)
	}
	if got := NormalizeAppUserAgent("curl/8.0"); got != DefaultAppUserAgent() {
		t.Fatalf("desktop = %q", got)
	}
	ua := "ANDROID-com.pikcloud.pikpak/1.40.0"
	if got := NormalizeAppUserAgent(ua); got != ua {
		t.Fatalf("app = %q", got)
	}
}
