package core

// service.go orchestrates batch submission against the remote case service.
//
// Batches run asynchronously: StartBatch returns an ID immediately and the
// paced submission loop runs in the background. Callers follow along through
// progress listeners (surfaced as SSE by the web layer), can cancel the
// whole batch, and collect the final report once every row is accounted for.

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"casebridge/internal/metrics"

	"github.com/google/uuid"
)

// BatchTimeout is the maximum duration for one batch run. Paced at 400ms a
// batch of ~4000 rows fits comfortably.
var BatchTimeout = 30 * time.Minute

// recentReportLimit bounds the in-memory ring of finished batch reports.
// There is deliberately no durable history.
const recentReportLimit = 50

// BatchPhase indicates the current stage of batch processing.
type BatchPhase string

const (
	PhaseStarting   BatchPhase = "starting"
	PhaseSubmitting BatchPhase = "submitting"
	PhaseComplete   BatchPhase = "complete"
	PhaseCancelled  BatchPhase = "cancelled"
)

// BatchProgress is the current state of a batch run.
type BatchProgress struct {
	BatchID   string     `json:"batchId"`
	Phase     BatchPhase `json:"phase"`
	TotalRows int        `json:"totalRows"`
	Processed int        `json:"processed"`
}

// Percent returns progress as a percentage (0-100).
func (p BatchProgress) Percent() int {
	if p.TotalRows == 0 {
		return 0
	}
	return (p.Processed * 100) / p.TotalRows
}

// CaseService is the remote collaborator the core drives: one create call,
// one paged list call, and one targeted existence lookup.
type CaseService interface {
	CreateCase(ctx context.Context, p Payload) (map[string]any, error)
	ListCases(ctx context.Context, params ListParams) (ListPage, error)
	LookupCase(ctx context.Context, first, last, email string) (bool, error)
}

// ServiceConfig carries the tunables for a Service.
type ServiceConfig struct {
	Pace          time.Duration // delay between create calls
	PageSize      int           // listing page size
	MaxConcurrent int           // concurrent batch limit
	MaxWait       time.Duration // wait for a batch slot
	Rules         RuleSet
	Overrides     Overrides
	Identity      IdentityFields
}

// Service provides the batch, duplicate-check, and fetch operations.
type Service struct {
	remote      CaseService
	transformer *Transformer
	detector    *Detector
	fetcher     *Fetcher
	limiter     *BatchLimiter
	pace        time.Duration

	mu      sync.RWMutex
	batches map[string]*activeBatch
	recent  []FinishedBatch

	snapMu   sync.RWMutex
	snapshot *Snapshot
}

type activeBatch struct {
	ID         string
	Cancel     context.CancelFunc
	Progress   BatchProgress
	Report     *BatchReport
	Done       chan struct{}
	Listeners  []chan BatchProgress
	ListenerMu sync.Mutex
}

// FinishedBatch is one entry in the recent-history ring.
type FinishedBatch struct {
	BatchID    string      `json:"batchId"`
	Report     BatchReport `json:"report"`
	FinishedAt time.Time   `json:"finishedAt"`
}

// NewService creates a Service driving the given remote case service.
func NewService(remote CaseService, cfg ServiceConfig) *Service {
	pace := cfg.Pace
	if pace <= 0 {
		pace = DefaultPace
	}
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	identity := cfg.Identity
	if identity == (IdentityFields{}) {
		identity = DefaultIdentityFields()
	}

	return &Service{
		remote:      remote,
		transformer: NewTransformer(rules, cfg.Overrides),
		detector:    NewDetector(identity),
		fetcher:     NewFetcher(cfg.PageSize),
		limiter:     NewBatchLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		pace:        pace,
		batches:     make(map[string]*activeBatch),
	}
}

// StartBatch begins an asynchronous batch run over rows.
// Returns the batch ID immediately; use SubscribeProgress / GetReport to
// follow it. Fails fast with ErrTooManyBatches when all slots are busy.
func (s *Service) StartBatch(ctx context.Context, rows []RawRow) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("empty file: no rows to submit")
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	batchID := uuid.New().String()
	batchCtx, cancel := context.WithTimeout(context.Background(), BatchTimeout)

	batch := &activeBatch{
		ID:     batchID,
		Cancel: cancel,
		Progress: BatchProgress{
			BatchID:   batchID,
			Phase:     PhaseStarting,
			TotalRows: len(rows),
		},
		Done: make(chan struct{}),
	}

	s.mu.Lock()
	s.batches[batchID] = batch
	s.mu.Unlock()

	metrics.BatchesStarted.Inc()
	go s.runBatch(batchCtx, batch, rows)

	return batchID, nil
}

// runBatch drives one paced submission loop to completion.
func (s *Service) runBatch(ctx context.Context, batch *activeBatch, rows []RawRow) {
	start := time.Now()

	defer func() {
		batch.closeListeners()
		close(batch.Done)
		batch.Cancel()
		s.limiter.Release()
		s.cleanup(batch.ID, 5*time.Minute)
	}()

	batch.Progress.Phase = PhaseSubmitting
	batch.notifyProgress()

	submitter := NewSubmitter(s.transformer, nil, func(processed, total int) {
		batch.Progress.Processed = processed
		batch.notifyProgress()
	})

	outcomes := submitter.SubmitAll(ctx, rows, s.timedCreate, s.pace)

	report := BuildReport(outcomes)
	report.Duration = time.Since(start)

	metrics.RowsSubmitted.Add(float64(report.SuccessCount))
	for _, f := range report.Failures {
		kind := "remote"
		if isValidationFailure(f.Error) {
			kind = "validation"
		}
		metrics.RowsFailed.WithLabelValues(kind).Inc()
	}

	batch.Report = &report
	batch.Progress.Processed = report.TotalRows
	if ctx.Err() != nil {
		batch.Progress.Phase = PhaseCancelled
	} else {
		batch.Progress.Phase = PhaseComplete
	}
	batch.notifyProgress()

	s.recordFinished(batch.ID, report)

	slog.Info("batch finished",
		"batch_id", batch.ID,
		"total", report.TotalRows,
		"success", report.SuccessCount,
		"failures", report.FailureCount,
		"duration", report.Duration,
	)
}

// timedCreate wraps the remote create call with latency instrumentation.
func (s *Service) timedCreate(ctx context.Context, p Payload) (map[string]any, error) {
	start := time.Now()
	record, err := s.remote.CreateCase(ctx, p)
	metrics.CreateLatency.Observe(time.Since(start).Seconds())
	return record, err
}

// SubscribeProgress returns a channel receiving progress updates for a
// batch. The channel is closed when the batch completes.
func (s *Service) SubscribeProgress(batchID string) (<-chan BatchProgress, error) {
	s.mu.RLock()
	batch, ok := s.batches[batchID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("batch not found: %s", batchID)
	}

	// A batch that already finished gets its final state and a closed channel.
	select {
	case <-batch.Done:
		ch := make(chan BatchProgress, 1)
		ch <- batch.Progress
		close(ch)
		return ch, nil
	default:
	}

	ch := make(chan BatchProgress, 10)

	batch.ListenerMu.Lock()
	batch.Listeners = append(batch.Listeners, ch)
	select {
	case ch <- batch.Progress:
	default:
	}
	batch.ListenerMu.Unlock()

	return ch, nil
}

// CancelBatch aborts an in-progress batch. Rows not yet attempted are
// recorded as failures in the final report.
func (s *Service) CancelBatch(batchID string) error {
	s.mu.RLock()
	batch, ok := s.batches[batchID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("batch not found: %s", batchID)
	}

	batch.Cancel()
	return nil
}

// GetReport returns the final report for a batch, blocking until the batch
// completes if it is still running.
func (s *Service) GetReport(batchID string) (*BatchReport, error) {
	s.mu.RLock()
	batch, ok := s.batches[batchID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("batch not found: %s", batchID)
	}

	<-batch.Done
	return batch.Report, nil
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(batchID string) (BatchProgress, error) {
	s.mu.RLock()
	batch, ok := s.batches[batchID]
	s.mu.RUnlock()

	if !ok {
		return BatchProgress{}, fmt.Errorf("batch not found: %s", batchID)
	}

	return batch.Progress, nil
}

// RecentBatches returns the in-memory ring of finished batch reports,
// newest first.
func (s *Service) RecentBatches() []FinishedBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]FinishedBatch, len(s.recent))
	copy(out, s.recent)
	return out
}

// LimiterStatus exposes the batch limiter state for monitoring.
func (s *Service) LimiterStatus() BatchLimiterStatus {
	return s.limiter.Status()
}

// WaitForBatches blocks until running batches drain, for graceful shutdown.
func (s *Service) WaitForBatches(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// FetchCases accumulates every listing page matching filters. A non-nil
// error alongside records means the result is partial.
func (s *Service) FetchCases(ctx context.Context, filters map[string]string) ([]map[string]any, error) {
	return s.fetcher.FetchAll(ctx, filters, s.countedList)
}

// CheckDuplicates flags the rows that already exist in the remote store,
// using the warm snapshot when available and a full fetch otherwise.
// bestEffort is true when the backing data was partial; callers must not
// treat an unflagged row as proof of absence in that case.
func (s *Service) CheckDuplicates(ctx context.Context, rows []RawRow) (flagged map[int]bool, bestEffort bool, err error) {
	records, partial, err := s.snapshotOrFetch(ctx)
	if err != nil && len(records) == 0 {
		return nil, true, err
	}

	flagged = s.detector.FindDuplicates(rows, records)
	metrics.DuplicatesFlagged.Add(float64(len(flagged)))
	return flagged, partial || err != nil, nil
}

// CheckDuplicatesTargeted checks each row with its own remote query through
// a bounded read pool instead of a bulk snapshot. Preferable for small
// uploads against a very large remote store.
func (s *Service) CheckDuplicatesTargeted(ctx context.Context, rows []RawRow) (map[int]bool, error) {
	flagged, err := s.detector.FindDuplicatesRemote(ctx, rows, s.remote.LookupCase)
	metrics.DuplicatesFlagged.Add(float64(len(flagged)))
	return flagged, err
}

// countedList wraps the remote list call with page instrumentation.
func (s *Service) countedList(ctx context.Context, params ListParams) (ListPage, error) {
	page, err := s.remote.ListCases(ctx, params)
	if err == nil {
		metrics.PagesFetched.Inc()
	}
	return page, err
}

// recordFinished appends to the recent-report ring, evicting the oldest.
func (s *Service) recordFinished(batchID string, report BatchReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append([]FinishedBatch{{
		BatchID:    batchID,
		Report:     report,
		FinishedAt: time.Now(),
	}}, s.recent...)
	if len(s.recent) > recentReportLimit {
		s.recent = s.recent[:recentReportLimit]
	}
}

// cleanup removes the batch from tracking after a delay.
func (s *Service) cleanup(batchID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.batches, batchID)
		s.mu.Unlock()
	})
}

// notifyProgress sends progress updates to all listeners.
func (b *activeBatch) notifyProgress() {
	b.ListenerMu.Lock()
	defer b.ListenerMu.Unlock()

	for _, ch := range b.Listeners {
		select {
		case ch <- b.Progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners closes all listener channels.
func (b *activeBatch) closeListeners() {
	b.ListenerMu.Lock()
	defer b.ListenerMu.Unlock()

	for _, ch := range b.Listeners {
		close(ch)
	}
	b.Listeners = nil
}

// isValidationFailure distinguishes pre-flight validation failures from
// remote rejections in the metrics.
func isValidationFailure(msg string) bool {
	return strings.HasPrefix(msg, "Missing required field")
}
