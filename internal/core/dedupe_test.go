package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func record(first, last, email string) map[string]any {
	return map[string]any{
		"fname_injured": first,
		"lname_injured": last,
		"email_injured": email,
	}
}

func TestFindDuplicates(t *testing.T) {
	existing := []map[string]any{
		record("Jane", "Doe", "jane@x.com"),
		record("Bob", "Smith", ""),
	}

	tests := []struct {
		name string
		row  RawRow
		want bool
	}{
		{
			name: "exact match",
			row:  RawRow{"fname": "Jane", "lname": "Doe", "email": "jane@x.com"},
			want: true,
		},
		{
			name: "case and whitespace insensitive",
			row:  RawRow{"fname": " JANE ", "lname": "doe", "email": "Jane@X.com"},
			want: true,
		},
		{
			name: "empty row email acts as wildcard",
			row:  RawRow{"fname": "Jane", "lname": "Doe", "email": ""},
			want: true,
		},
		{
			name: "supplied component must match",
			row:  RawRow{"fname": "Jane", "lname": "Doe", "email": "other@x.com"},
			want: false,
		},
		{
			name: "name mismatch",
			row:  RawRow{"fname": "Janet", "lname": "Doe", "email": "jane@x.com"},
			want: false,
		},
		{
			name: "all empty identity is never flagged",
			row:  RawRow{"fname": "", "lname": "", "email": "", "litigation_id": "X"},
			want: false,
		},
		{
			name: "missing identity fields entirely is never flagged",
			row:  RawRow{"litigation_id": "X"},
			want: false,
		},
	}

	detector := NewDetector(DefaultIdentityFields())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flagged := detector.FindDuplicates([]RawRow{tt.row}, existing)
			if flagged[0] != tt.want {
				t.Errorf("flagged = %v, want %v", flagged[0], tt.want)
			}
		})
	}
}

func TestFindDuplicatesIndexesMatchInput(t *testing.T) {
	existing := []map[string]any{record("Jane", "Doe", "")}

	rows := []RawRow{
		{"fname": "Nobody", "lname": "Here"},
		{"fname": "Jane", "lname": "Doe"},
		{"fname": "Also", "lname": "Nobody"},
		{"fname": "jane", "lname": "DOE"},
	}

	flagged := NewDetector(DefaultIdentityFields()).FindDuplicates(rows, existing)

	if len(flagged) != 2 || !flagged[1] || !flagged[3] {
		t.Errorf("flagged = %v, want rows 1 and 3", flagged)
	}
}

func TestFindDuplicatesEmptyCollection(t *testing.T) {
	rows := []RawRow{{"fname": "Jane", "lname": "Doe"}}

	flagged := NewDetector(DefaultIdentityFields()).FindDuplicates(rows, nil)
	if len(flagged) != 0 {
		t.Errorf("flagged = %v, want none against empty collection", flagged)
	}
}

func TestFindDuplicatesRemote(t *testing.T) {
	rows := []RawRow{
		{"fname": "Jane", "lname": "Doe"},
		{"fname": "Bob", "lname": "Smith"},
		{}, // no identity, must not be looked up
		{"fname": "Ann", "lname": "Lee"},
	}

	var mu sync.Mutex
	var lookups int
	lookup := func(ctx context.Context, first, last, email string) (bool, error) {
		mu.Lock()
		lookups++
		mu.Unlock()
		return first == "jane" || first == "ann", nil
	}

	flagged, err := NewDetector(DefaultIdentityFields()).FindDuplicatesRemote(context.Background(), rows, lookup)
	if err != nil {
		t.Fatalf("FindDuplicatesRemote returned error: %v", err)
	}
	if lookups != 3 {
		t.Errorf("made %d lookups, want 3 (empty identity skipped)", lookups)
	}
	if len(flagged) != 2 || !flagged[0] || !flagged[3] {
		t.Errorf("flagged = %v, want rows 0 and 3", flagged)
	}
}

func TestFindDuplicatesRemoteLookupFailure(t *testing.T) {
	rows := []RawRow{
		{"fname": "Jane", "lname": "Doe"},
		{"fname": "Bob", "lname": "Smith"},
	}

	var calls atomic.Int32
	lookup := func(ctx context.Context, first, last, email string) (bool, error) {
		if calls.Add(1) == 1 {
			return false, errors.New("upstream unavailable")
		}
		return true, nil
	}

	_, err := NewDetector(DefaultIdentityFields()).FindDuplicatesRemote(context.Background(), rows, lookup)
	if err == nil {
		t.Fatal("expected lookup error to propagate")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Jane  ", "jane"},
		{"DOE", "doe"},
		{"", ""},
		{"already lower", "already lower"},
	}

	for _, tt := range tests {
		if got := normalize(tt.input); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
