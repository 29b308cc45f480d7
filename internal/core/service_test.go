package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRemote is an in-memory stand-in for the remote case service.
type fakeRemote struct {
	mu      sync.Mutex
	created []Payload

	createErr error
	records   []map[string]any
	lookupErr error
}

func (f *fakeRemote) CreateCase(ctx context.Context, p Payload) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, p)
	return map[string]any{"id": len(f.created)}, nil
}

func (f *fakeRemote) ListCases(ctx context.Context, params ListParams) (ListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := (params.Page - 1) * params.PageSize
	if start > len(f.records) {
		start = len(f.records)
	}
	end := start + params.PageSize
	if end > len(f.records) {
		end = len(f.records)
	}
	total := len(f.records)
	return ListPage{Items: f.records[start:end], Total: &total}, nil
}

func (f *fakeRemote) LookupCase(ctx context.Context, first, last, email string) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	for _, rec := range f.records {
		id := identity{
			first: normalize(recordField(rec, "fname_injured")),
			last:  normalize(recordField(rec, "lname_injured")),
			email: normalize(recordField(rec, "email_injured")),
		}
		if (identity{first: first, last: last, email: email}).matches(id) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRemote) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func testService(remote CaseService) *Service {
	return NewService(remote, ServiceConfig{
		Pace:          time.Millisecond,
		PageSize:      100,
		MaxConcurrent: 2,
		MaxWait:       time.Second,
	})
}

func TestServiceBatchLifecycle(t *testing.T) {
	remote := &fakeRemote{}
	svc := testService(remote)

	rows := []RawRow{
		validRow("A"),
		{"litigation_id": "B"}, // missing status_id
		validRow("C"),
	}

	batchID, err := svc.StartBatch(context.Background(), rows)
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	if batchID == "" {
		t.Fatal("empty batch ID")
	}

	report, err := svc.GetReport(batchID)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if report.TotalRows != 3 || report.SuccessCount != 2 || report.FailureCount != 1 {
		t.Errorf("report = %+v, want 3/2/1", report)
	}
	if remote.createdCount() != 2 {
		t.Errorf("remote created %d cases, want 2", remote.createdCount())
	}

	// The finished batch lands in the recent ring.
	recent := svc.RecentBatches()
	if len(recent) != 1 || recent[0].BatchID != batchID {
		t.Errorf("recent = %+v, want the finished batch", recent)
	}
}

func TestServiceStartBatchEmptyRows(t *testing.T) {
	svc := testService(&fakeRemote{})

	if _, err := svc.StartBatch(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty row set")
	}
}

func TestServiceProgressSubscription(t *testing.T) {
	remote := &fakeRemote{}
	svc := testService(remote)

	rows := make([]RawRow, 12)
	for i := range rows {
		rows[i] = validRow("R")
	}

	batchID, err := svc.StartBatch(context.Background(), rows)
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	ch, err := svc.SubscribeProgress(batchID)
	if err != nil {
		t.Fatalf("SubscribeProgress failed: %v", err)
	}

	var last BatchProgress
	for p := range ch {
		last = p
	}

	if last.Phase != PhaseComplete {
		t.Errorf("final phase = %s, want %s", last.Phase, PhaseComplete)
	}
	if last.Processed != 12 {
		t.Errorf("final processed = %d, want 12", last.Processed)
	}
}

func TestServiceCancelBatch(t *testing.T) {
	remote := &fakeRemote{}
	svc := NewService(remote, ServiceConfig{
		Pace:          50 * time.Millisecond,
		MaxConcurrent: 1,
		MaxWait:       time.Second,
	})

	rows := make([]RawRow, 50)
	for i := range rows {
		rows[i] = validRow("R")
	}

	batchID, err := svc.StartBatch(context.Background(), rows)
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	time.Sleep(75 * time.Millisecond)
	if err := svc.CancelBatch(batchID); err != nil {
		t.Fatalf("CancelBatch failed: %v", err)
	}

	report, err := svc.GetReport(batchID)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}

	// Accounting stays complete after cancellation.
	if report.TotalRows != 50 {
		t.Errorf("total = %d, want 50", report.TotalRows)
	}
	if report.SuccessCount+report.FailureCount != 50 {
		t.Errorf("success+failures = %d, want 50", report.SuccessCount+report.FailureCount)
	}
	if report.SuccessCount == 50 {
		t.Error("cancellation had no effect")
	}

	cancelled := 0
	for _, f := range report.Failures {
		if f.Error == "batch cancelled" {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Error("no rows recorded as cancelled")
	}
}

func TestServiceUnknownBatch(t *testing.T) {
	svc := testService(&fakeRemote{})

	if _, err := svc.GetReport("nope"); err == nil || !strings.Contains(err.Error(), "batch not found") {
		t.Errorf("GetReport error = %v, want batch not found", err)
	}
	if _, err := svc.SubscribeProgress("nope"); err == nil {
		t.Error("SubscribeProgress should fail for unknown batch")
	}
	if err := svc.CancelBatch("nope"); err == nil {
		t.Error("CancelBatch should fail for unknown batch")
	}
	if _, err := svc.GetProgress("nope"); err == nil {
		t.Error("GetProgress should fail for unknown batch")
	}
}

func TestServiceLimiterRejects(t *testing.T) {
	remote := &fakeRemote{}
	svc := NewService(remote, ServiceConfig{
		Pace:          50 * time.Millisecond,
		MaxConcurrent: 1,
		MaxWait:       50 * time.Millisecond,
	})

	rows := make([]RawRow, 100)
	for i := range rows {
		rows[i] = validRow("R")
	}

	first, err := svc.StartBatch(context.Background(), rows)
	if err != nil {
		t.Fatalf("first StartBatch failed: %v", err)
	}

	if _, err := svc.StartBatch(context.Background(), rows); !errors.Is(err, ErrTooManyBatches) {
		t.Errorf("second StartBatch error = %v, want ErrTooManyBatches", err)
	}

	svc.CancelBatch(first)
	if _, err := svc.GetReport(first); err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
}

func TestServiceFetchCases(t *testing.T) {
	remote := &fakeRemote{}
	for i := 0; i < 250; i++ {
		remote.records = append(remote.records, map[string]any{"id": i})
	}
	svc := testService(remote)

	records, err := svc.FetchCases(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchCases failed: %v", err)
	}
	if len(records) != 250 {
		t.Errorf("got %d records, want 250", len(records))
	}
}

func TestServiceCheckDuplicates(t *testing.T) {
	remote := &fakeRemote{
		records: []map[string]any{record("Jane", "Doe", "jane@x.com")},
	}
	svc := testService(remote)

	rows := []RawRow{
		{"fname": "Jane", "lname": "Doe"},
		{"fname": "New", "lname": "Person"},
	}

	flagged, bestEffort, err := svc.CheckDuplicates(context.Background(), rows)
	if err != nil {
		t.Fatalf("CheckDuplicates failed: %v", err)
	}
	if bestEffort {
		t.Error("full fetch should not be best-effort")
	}
	if len(flagged) != 1 || !flagged[0] {
		t.Errorf("flagged = %v, want row 0 only", flagged)
	}
}

func TestServiceCheckDuplicatesTargeted(t *testing.T) {
	remote := &fakeRemote{
		records: []map[string]any{record("Jane", "Doe", "jane@x.com")},
	}
	svc := testService(remote)

	rows := []RawRow{
		{"fname": "Jane", "lname": "Doe"},
		{"fname": "New", "lname": "Person"},
	}

	flagged, err := svc.CheckDuplicatesTargeted(context.Background(), rows)
	if err != nil {
		t.Fatalf("CheckDuplicatesTargeted failed: %v", err)
	}
	if len(flagged) != 1 || !flagged[0] {
		t.Errorf("flagged = %v, want row 0 only", flagged)
	}
}

func TestServiceSnapshotWarmsDuplicateCheck(t *testing.T) {
	remote := &fakeRemote{
		records: []map[string]any{record("Jane", "Doe", "")},
	}
	svc := testService(remote)

	svc.refreshSnapshot(context.Background(), nil)

	// Mutating the remote after the snapshot must not affect the check:
	// the warm snapshot is served as-is until it ages out.
	remote.mu.Lock()
	remote.records = nil
	remote.mu.Unlock()

	flagged, _, err := svc.CheckDuplicates(context.Background(), []RawRow{
		{"fname": "Jane", "lname": "Doe"},
	})
	if err != nil {
		t.Fatalf("CheckDuplicates failed: %v", err)
	}
	if !flagged[0] {
		t.Error("snapshot-backed check missed a known duplicate")
	}
}
