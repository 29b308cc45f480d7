// Package core provides the business logic for bridging tabular case records
// into the remote case-management service. This package has no HTTP-handler
// dependencies and can be driven by any frontend (web, CLI, automation).
package core

import (
	"context"
	"time"
)

// RawRow is one tabular case record as it arrived: every field a raw string.
// A RawRow originates from one CSV line or one client-supplied JSON object and
// is never mutated after it is produced. One RawRow maps to exactly one
// submission attempt.
type RawRow map[string]string

// Payload is the typed submission body built from one RawRow. Values are
// strings, integers, arrays of either, or a nested string map (the meta
// field). Payloads are built fresh per row and discarded after the remote
// call returns.
type Payload map[string]any

// FieldKind describes how a raw field value is converted into its Payload value.
type FieldKind int

const (
	// KindPlain passes the raw string through unchanged.
	KindPlain FieldKind = iota

	// KindDate reformats M/D/YYYY into YYYY-MM-DD, passing malformed
	// input through unchanged.
	KindDate

	// KindStringArray splits on commas, trims, and strips stray brackets.
	KindStringArray

	// KindIntArray is KindStringArray followed by base-10 parsing;
	// unparsable items are dropped.
	KindIntArray

	// KindObject parses loosely structured {key: value} text into a flat
	// string map, falling back to the raw string.
	KindObject
)

// FieldRule binds a field name to its conversion kind. Fields without a rule
// are treated as KindPlain.
type FieldRule struct {
	Name string
	Kind FieldKind
}

// RuleSet is the per-field conversion configuration for a batch. Exactly one
// rule per field name; lookups are case-insensitive on the field name.
type RuleSet map[string]FieldKind

// RequiredFields are the identifier fields every payload must carry before a
// create call is attempted. A row missing either fails validation without
// touching the remote service.
var RequiredFields = []string{"litigation_id", "status_id"}

// Overrides is the process-wide set of values applied to every payload,
// overwriting any same-named value supplied by the row. Loaded once at
// startup, read-only thereafter. Empty string means "not configured" and the
// override is skipped.
type Overrides struct {
	CompanyID  string
	ReferralID string
	Tags       string
	Counsel    string
	FeeSplit   string
	TotalFee   string
}

// Values returns the configured (non-empty) overrides keyed by payload field
// name, still in raw string form. Each value is transformed through the
// field's rule before it is written into the payload.
func (o Overrides) Values() map[string]string {
	vals := make(map[string]string, 6)
	put := func(field, v string) {
		if v != "" {
			vals[field] = v
		}
	}
	put("company_id", o.CompanyID)
	put("referral_id", o.ReferralID)
	put("tags", o.Tags)
	put("counsel", o.Counsel)
	put("fee_split", o.FeeSplit)
	put("total_fee", o.TotalFee)
	return vals
}

// SubmissionOutcome is the fate of one row: either the record the remote
// service returned, or the error that stopped it. Exactly one of Record and
// Err is meaningful, selected by OK.
type SubmissionOutcome struct {
	Row    int  // 0-based input index
	OK     bool
	Record map[string]any // remote record on success
	Err    string         // failure message otherwise
}

// RowFailure is one entry in a batch report's failure list.
// Row is 1-based, matching how users count spreadsheet rows.
type RowFailure struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// BatchReport is the aggregate accounting for a batch: every input row
// appears in exactly one of the success or failure tallies.
type BatchReport struct {
	TotalRows    int          `json:"totalRows"`
	SuccessCount int          `json:"successCount"`
	FailureCount int          `json:"failureCount"`
	Failures     []RowFailure `json:"failures"`
	Duration     time.Duration `json:"-"`
}

// Summary renders the human-readable one-liner callers surface to users.
func (r BatchReport) Summary() string {
	return formatSummary(r.TotalRows, r.SuccessCount, r.FailureCount)
}

// BuildReport folds an ordered outcome sequence into a BatchReport.
func BuildReport(outcomes []SubmissionOutcome) BatchReport {
	report := BatchReport{
		TotalRows: len(outcomes),
		Failures:  []RowFailure{},
	}
	for _, out := range outcomes {
		if out.OK {
			report.SuccessCount++
			continue
		}
		report.FailureCount++
		report.Failures = append(report.Failures, RowFailure{
			Row:   out.Row + 1,
			Error: out.Err,
		})
	}
	return report
}

// CreateFunc submits one payload to the remote case service and returns the
// created record. Implemented by the remote client; faked in tests.
type CreateFunc func(ctx context.Context, p Payload) (map[string]any, error)

// Sleeper suspends between paced operations. Injected so tests can observe
// pacing without wall-clock waits. Implementations must honor context
// cancellation.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepWithContext is the production Sleeper.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ProgressFunc receives periodic batch progress. Observability hook only;
// submission correctness never depends on it.
type ProgressFunc func(processed, total int)
