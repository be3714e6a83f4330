package timeline

import (
	"errors"
	"testing"

	"dayline/internal/model"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"9:05", 545, false},
		{"14:30", 870, false},
		{"14:30:59", 870, false},
		{"24:00", 1440, false},
		{" 23:59 ", 1439, false},
		{"24:01", 0, true},
		{"25:00", 0, true},
		{"12:60", 0, true},
		{"12:5", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrBadClock) {
					t.Fatalf("ParseClock(%q) err = %v, want ErrBadClock", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q) unexpected err: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatClock(t *testing.T) {
	if got := FormatClock(545); got != "09:05" {
		t.Errorf("FormatClock(545) = %s", got)
	}
	if got := FormatClock(1440); got != "24:00" {
		t.Errorf("FormatClock(1440) = %s", got)
	}
}

func TestNormalizeEntryDefaultsDuration(t *testing.T) {
	got, err := NormalizeEntry(model.RawEntry{ID: "1", DayKey: "2025-06-14", Start: "14:00", Title: "Ceremony"})
	if err != nil {
		t.Fatal(err)
	}
	if got.StartMinute != 840 || got.EndMinute != 840+DefaultDurationMinutes {
		t.Fatalf("got %d-%d", got.StartMinute, got.EndMinute)
	}
	if got.Title != "Ceremony" || got.DayKey != "2025-06-14" {
		t.Fatalf("display fields not carried: %+v", got)
	}
}

func TestNormalizeEntryClampsToMidnight(t *testing.T) {
	got, err := NormalizeEntry(model.RawEntry{ID: "late", Start: "23:30"})
	if err != nil {
		t.Fatal(err)
	}
	if got.EndMinute != MinutesPerDay {
		t.Fatalf("end = %d, want %d", got.EndMinute, MinutesPerDay)
	}

	got, err = NormalizeEntry(model.RawEntry{ID: "eod", Start: "24:00"})
	if err != nil {
		t.Fatal(err)
	}
	if got.StartMinute != MinutesPerDay-1 {
		t.Fatalf("start = %d, want %d", got.StartMinute, MinutesPerDay-1)
	}
}

func TestNormalizeEntryKeepsBackwardsEnd(t *testing.T) {
	got, err := NormalizeEntry(model.RawEntry{ID: "b", Start: "15:00", End: "14:00"})
	if err != nil {
		t.Fatal(err)
	}
	if got.EndMinute >= got.StartMinute {
		t.Fatalf("expected malformed range to pass through, got %d-%d", got.StartMinute, got.EndMinute)
	}
}

func TestNormalizeAllSkipsBadEntries(t *testing.T) {
	got := NormalizeAll([]model.RawEntry{
		{ID: "ok", Start: "10:00", End: "11:00"},
		{ID: "bad", Start: "ten"},
		{ID: "badend", Start: "10:00", End: "later"},
	})
	if len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("got %+v", got)
	}
}
