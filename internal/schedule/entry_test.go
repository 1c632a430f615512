package schedule

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in      string
		wantH   int
		wantErr bool
	}{
		{"2026-10-19T09:30:00", 9, false},
		{"2026-10-19T09:30", 9, false},
		{"2026-10-19 09:30:00", 9, false},
		{"2026-10-19T16:30:00Z", 9, false},
		{"2026-10-19T09:30:00.000-07:00", 9, false},
		{"", 0, true},
		{"tomorrow", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in, testLoc)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTimestamp(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tc.in, err)
			continue
		}
		if got.Hour() != tc.wantH || got.Minute() != 30 {
			t.Errorf("ParseTimestamp(%q) = %v, want %02d:30 local", tc.in, got, tc.wantH)
		}
	}
}

func TestClassify(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"title": "Ok", "start": "2026-10-19T09:00:00", "end": "2026-10-19T09:30:00", "type": "Work"}`),
		json.RawMessage(`{"title": " ", "start": "2026-10-19T09:00:00", "end": "2026-10-19T09:30:00", "type": "work"}`),
		json.RawMessage(`{"title": "No type", "start": "2026-10-19T09:00:00", "end": "2026-10-19T09:30:00"}`),
		json.RawMessage(`{"title": "Same", "start": "2026-10-19T09:00:00", "end": "2026-10-19T09:00:00", "type": "work"}`),
		json.RawMessage(`42`),
	}

	entries := Classify(items, testLoc)
	if len(entries) != len(items) {
		t.Fatalf("expected %d entries, got %d", len(items), len(entries))
	}

	valid, ok := entries[0].(ValidEvent)
	if !ok {
		t.Fatalf("entry 0: expected ValidEvent, got %T", entries[0])
	}
	if valid.Event.Type != "work" {
		t.Errorf("type not normalized: %q", valid.Event.Type)
	}
	if valid.Event.ID != "" {
		t.Errorf("classification must not assign ids")
	}

	wantReasons := []error{errMissingTitle, errMissingType, errEndNotAfter}
	for i, want := range wantReasons {
		m, ok := entries[i+1].(MalformedEntry)
		if !ok {
			t.Fatalf("entry %d: expected MalformedEntry, got %T", i+1, entries[i+1])
		}
		if !errors.Is(m.Reason, want) {
			t.Errorf("entry %d: reason %v, want %v", i+1, m.Reason, want)
		}
		if m.Index != i+1 {
			t.Errorf("entry %d: index %d", i+1, m.Index)
		}
	}

	if _, ok := entries[4].(MalformedEntry); !ok {
		t.Errorf("non-object item should be malformed")
	}
}

func TestClassifyKeepsZoneOffsets(t *testing.T) {
	entries := Classify([]json.RawMessage{
		json.RawMessage(`{"title": "UTC", "start": "2026-10-19T17:00:00Z", "end": "2026-10-19T18:00:00Z", "type": "meeting"}`),
	}, testLoc)
	v, ok := entries[0].(ValidEvent)
	if !ok {
		t.Fatalf("expected ValidEvent, got %T", entries[0])
	}
	want := time.Date(2026, 10, 19, 10, 0, 0, 0, testLoc)
	if !v.Event.Start.Equal(want) {
		t.Errorf("start = %v, want %v", v.Event.Start, want)
	}
}
