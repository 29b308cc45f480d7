package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeSleeper records every requested delay without waiting.
type fakeSleeper struct {
	delays []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return ctx.Err()
}

// remoteError mimics a service error carrying a structured message.
type remoteError struct {
	msg string
}

func (e *remoteError) Error() string { return "case service returned 422: " + e.msg }
func (e *remoteError) RemoteMessage() string { return e.msg }

func validRow(id string) RawRow {
	return RawRow{"litigation_id": id, "status_id": "1", "fname": "Test"}
}

func TestSubmitAllSuccess(t *testing.T) {
	sleeper := &fakeSleeper{}
	sub := NewSubmitter(NewTransformer(DefaultRules(), Overrides{}), sleeper.sleep, nil)

	var created []Payload
	create := func(ctx context.Context, p Payload) (map[string]any, error) {
		created = append(created, p)
		return map[string]any{"id": len(created)}, nil
	}

	rows := []RawRow{validRow("A"), validRow("B"), validRow("C")}
	outcomes := sub.SubmitAll(context.Background(), rows, create, DefaultPace)

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	for i, out := range outcomes {
		if !out.OK {
			t.Errorf("row %d failed: %s", i, out.Err)
		}
		if out.Row != i {
			t.Errorf("outcome %d has Row=%d", i, out.Row)
		}
	}
	if len(created) != 3 {
		t.Errorf("create called %d times, want 3", len(created))
	}
}

func TestSubmitAllPacesBetweenRowsOnly(t *testing.T) {
	tests := []struct {
		name       string
		rowCount   int
		wantSleeps int
	}{
		{name: "three rows sleep twice", rowCount: 3, wantSleeps: 2},
		{name: "one row never sleeps", rowCount: 1, wantSleeps: 0},
		{name: "empty batch never sleeps", rowCount: 0, wantSleeps: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeper := &fakeSleeper{}
			sub := NewSubmitter(NewTransformer(DefaultRules(), Overrides{}), sleeper.sleep, nil)

			rows := make([]RawRow, tt.rowCount)
			for i := range rows {
				rows[i] = validRow(fmt.Sprintf("R%d", i))
			}

			create := func(ctx context.Context, p Payload) (map[string]any, error) {
				return map[string]any{}, nil
			}

			sub.SubmitAll(context.Background(), rows, create, 250*time.Millisecond)

			if len(sleeper.delays) != tt.wantSleeps {
				t.Errorf("slept %d times, want %d", len(sleeper.delays), tt.wantSleeps)
			}
			for _, d := range sleeper.delays {
				if d != 250*time.Millisecond {
					t.Errorf("slept %v, want 250ms", d)
				}
			}
		})
	}
}

func TestSubmitAllMissingRequiredField(t *testing.T) {
	tests := []struct {
		name    string
		row     RawRow
		wantErr string
	}{
		{
			name:    "missing litigation_id",
			row:     RawRow{"status_id": "1"},
			wantErr: "Missing required field: litigation_id",
		},
		{
			name:    "missing status_id",
			row:     RawRow{"litigation_id": "LIT-1"},
			wantErr: "Missing required field: status_id",
		},
		{
			name:    "empty string counts as missing",
			row:     RawRow{"litigation_id": "", "status_id": "1"},
			wantErr: "Missing required field: litigation_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeper := &fakeSleeper{}
			sub := NewSubmitter(NewTransformer(DefaultRules(), Overrides{}), sleeper.sleep, nil)

			createCalls := 0
			create := func(ctx context.Context, p Payload) (map[string]any, error) {
				createCalls++
				return map[string]any{}, nil
			}

			outcomes := sub.SubmitAll(context.Background(), []RawRow{tt.row}, create, DefaultPace)

			if createCalls != 0 {
				t.Errorf("create called %d times for invalid row, want 0", createCalls)
			}
			if outcomes[0].OK {
				t.Fatal("outcome reports success for invalid row")
			}
			if outcomes[0].Err != tt.wantErr {
				t.Errorf("error = %q, want %q", outcomes[0].Err, tt.wantErr)
			}
		})
	}
}

func TestSubmitAllFailureIsolation(t *testing.T) {
	sleeper := &fakeSleeper{}
	sub := NewSubmitter(NewTransformer(DefaultRules(), Overrides{}), sleeper.sleep, nil)

	create := func(ctx context.Context, p Payload) (map[string]any, error) {
		if p["litigation_id"] == "BAD" {
			return nil, errors.New("boom")
		}
		return map[string]any{}, nil
	}

	rows := []RawRow{validRow("A"), validRow("BAD"), validRow("C")}
	outcomes := sub.SubmitAll(context.Background(), rows, create, DefaultPace)

	report := BuildReport(outcomes)
	if report.SuccessCount != 2 || report.FailureCount != 1 {
		t.Errorf("success=%d failures=%d, want 2/1", report.SuccessCount, report.FailureCount)
	}
	if !outcomes[2].OK {
		t.Error("row after a failure should still be attempted")
	}
}

func TestSubmitAllPrefersRemoteMessage(t *testing.T) {
	sub := NewSubmitter(NewTransformer(DefaultRules(), Overrides{}), (&fakeSleeper{}).sleep, nil)

	create := func(ctx context.Context, p Payload) (map[string]any, error) {
		return nil, fmt.Errorf("create case: %w", &remoteError{msg: "duplicate litigation_id"})
	}

	outcomes := sub.SubmitAll(context.Background(), []RawRow{validRow("A")}, create, DefaultPace)

	if outcomes[0].Err != "duplicate litigation_id" {
		t.Errorf("error = %q, want the service message", outcomes[0].Err)
	}
}

func TestSubmitAllCancellation(t *testing.T) {
	sub := NewSubmitter(NewTransformer(DefaultRules(), Overrides{}), (&fakeSleeper{}).sleep, nil)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	create := func(ctx context.Context, p Payload) (map[string]any, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return map[string]any{}, nil
	}

	rows := []RawRow{validRow("A"), validRow("B"), validRow("C"), validRow("D")}
	outcomes := sub.SubmitAll(ctx, rows, create, DefaultPace)

	// Accounting stays complete: every row appears exactly once.
	if len(outcomes) != 4 {
		t.Fatalf("got %d outcomes, want 4", len(outcomes))
	}
	if calls != 2 {
		t.Errorf("create called %d times after cancel, want 2", calls)
	}
	for _, out := range outcomes[2:] {
		if out.OK || out.Err != "batch cancelled" {
			t.Errorf("row %d: got %+v, want cancelled failure", out.Row, out)
		}
	}
}

func TestSubmitAllProgressSignals(t *testing.T) {
	var signals [][2]int
	progress := func(done, total int) {
		signals = append(signals, [2]int{done, total})
	}
	sub := NewSubmitter(NewTransformer(DefaultRules(), Overrides{}), (&fakeSleeper{}).sleep, progress)

	rows := make([]RawRow, 25)
	for i := range rows {
		rows[i] = validRow(fmt.Sprintf("R%d", i))
	}
	create := func(ctx context.Context, p Payload) (map[string]any, error) {
		return map[string]any{}, nil
	}

	sub.SubmitAll(context.Background(), rows, create, DefaultPace)

	want := [][2]int{{10, 25}, {20, 25}, {25, 25}}
	if len(signals) != len(want) {
		t.Fatalf("got %d progress signals %v, want %v", len(signals), signals, want)
	}
	for i := range want {
		if signals[i] != want[i] {
			t.Errorf("signal %d = %v, want %v", i, signals[i], want[i])
		}
	}
}

func TestBatchReportEndToEnd(t *testing.T) {
	sub := NewSubmitter(NewTransformer(DefaultRules(), Overrides{}), (&fakeSleeper{}).sleep, nil)

	rows := []RawRow{
		validRow("A"),
		{"litigation_id": "B"}, // no status_id
		validRow("C"),
	}
	create := func(ctx context.Context, p Payload) (map[string]any, error) {
		return map[string]any{}, nil
	}

	report := BuildReport(sub.SubmitAll(context.Background(), rows, create, DefaultPace))

	if report.TotalRows != 3 || report.SuccessCount != 2 || report.FailureCount != 1 {
		t.Fatalf("report = %+v, want 3 total, 2 success, 1 failure", report)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("got %d failure entries, want 1", len(report.Failures))
	}
	// Failure rows are 1-based.
	if report.Failures[0].Row != 2 {
		t.Errorf("failure row = %d, want 2", report.Failures[0].Row)
	}
	if report.Failures[0].Error != "Missing required field: status_id" {
		t.Errorf("failure error = %q", report.Failures[0].Error)
	}
	if got := report.Summary(); got != "Processed 3 rows. Success: 2, Failures: 1" {
		t.Errorf("summary = %q", got)
	}
}
