package core

// submit.go drives the paced, strictly sequential submission loop.
//
// The remote case service enforces a hard ceiling of 150 creates per minute,
// so rows are submitted one at a time with a fixed delay between them. The
// delay and the suspend primitive are both injected: callers configure the
// rate, and tests observe pacing without wall-clock waits.

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPace is the delay between consecutive create calls (<=150/minute).
const DefaultPace = 400 * time.Millisecond

// progressInterval is how many rows are processed between progress signals.
const progressInterval = 10

// RemoteMessager is implemented by remote errors that carry a structured,
// human-readable message from the service. Submission prefers that message
// over the generic error text when reporting a row failure.
type RemoteMessager interface {
	RemoteMessage() string
}

// Submitter runs batches of rows through transform + create, collecting one
// outcome per row in input order.
type Submitter struct {
	transformer *Transformer
	sleep       Sleeper
	progress    ProgressFunc
}

// NewSubmitter creates a Submitter. A nil sleeper uses SleepWithContext; a
// nil progress func disables progress signals.
func NewSubmitter(t *Transformer, sleep Sleeper, progress ProgressFunc) *Submitter {
	if sleep == nil {
		sleep = SleepWithContext
	}
	return &Submitter{
		transformer: t,
		sleep:       sleep,
		progress:    progress,
	}
}

// SubmitAll processes rows strictly in input order, one in-flight call at a
// time. Each row is transformed, checked for the mandatory identifier
// fields, and submitted via create. A single row's failure never halts the
// batch. The pacing delay runs between rows, not after the last one.
//
// Every input row appears in exactly one outcome. If the context is
// cancelled mid-batch, the rows not yet attempted are recorded as failures
// so the accounting stays complete.
func (s *Submitter) SubmitAll(ctx context.Context, rows []RawRow, create CreateFunc, pace time.Duration) []SubmissionOutcome {
	outcomes := make([]SubmissionOutcome, 0, len(rows))

	for i, row := range rows {
		if ctx.Err() != nil {
			return s.abort(outcomes, i, len(rows))
		}

		outcomes = append(outcomes, s.submitOne(ctx, i, row, create))

		if s.progress != nil && (i+1)%progressInterval == 0 {
			s.progress(i+1, len(rows))
		}

		// Pace between rows; the final row is not followed by a delay.
		if i < len(rows)-1 {
			if err := s.sleep(ctx, pace); err != nil {
				return s.abort(outcomes, i+1, len(rows))
			}
		}
	}

	if s.progress != nil && len(rows)%progressInterval != 0 {
		s.progress(len(rows), len(rows))
	}

	return outcomes
}

// submitOne transforms and submits a single row.
func (s *Submitter) submitOne(ctx context.Context, idx int, row RawRow, create CreateFunc) SubmissionOutcome {
	payload := s.transformer.Transform(row)

	// Validation failures are reported without touching the remote service.
	for _, field := range RequiredFields {
		if _, ok := payload[field]; !ok {
			return SubmissionOutcome{
				Row: idx,
				Err: fmt.Sprintf("Missing required field: %s", field),
			}
		}
	}

	record, err := create(ctx, payload)
	if err != nil {
		return SubmissionOutcome{Row: idx, Err: failureMessage(err)}
	}

	return SubmissionOutcome{Row: idx, OK: true, Record: record}
}

// abort records the rows not yet attempted as failures so the report still
// accounts for every input row.
func (s *Submitter) abort(outcomes []SubmissionOutcome, next, total int) []SubmissionOutcome {
	for i := next; i < total; i++ {
		outcomes = append(outcomes, SubmissionOutcome{Row: i, Err: "batch cancelled"})
	}
	return outcomes
}

// failureMessage extracts the most specific message available from a create
// failure: the service's structured message when present, the generic error
// text otherwise.
func failureMessage(err error) string {
	var rm RemoteMessager
	if errors.As(err, &rm) {
		if msg := rm.RemoteMessage(); msg != "" {
			return msg
		}
	}
	return err.Error()
}

// formatSummary renders the batch one-liner: "Processed N rows. Success: S, Failures: F".
func formatSummary(total, success, failures int) string {
	return fmt.Sprintf("Processed %d rows. Success: %d, Failures: %d", total, success, failures)
}
