package core

// dedupe.go flags incoming rows that already exist in the remote case store.
//
// Matching is exact-string equality after case folding and whitespace
// trimming - no fuzzy matching, no scoring. An empty row component acts as a
// wildcard: the components the row does supply must all match. A row with no
// identity components at all cannot be checked and is never flagged.

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// lookupPoolWidth bounds the concurrent per-row read lookups. Reads are not
// subject to the write rate ceiling, but unbounded fan-out would still trip
// the API's transport-level limits.
const lookupPoolWidth = 10

// IdentityFields names the row and record fields that form a case identity.
type IdentityFields struct {
	RowFirst    string
	RowLast     string
	RowEmail    string
	RecordFirst string
	RecordLast  string
	RecordEmail string
}

// DefaultIdentityFields matches the remote service's injured-party schema.
func DefaultIdentityFields() IdentityFields {
	return IdentityFields{
		RowFirst:    "fname",
		RowLast:     "lname",
		RowEmail:    "email",
		RecordFirst: "fname_injured",
		RecordLast:  "lname_injured",
		RecordEmail: "email_injured",
	}
}

// identity is a normalized (first, last, email) triple.
type identity struct {
	first string
	last  string
	email string
}

func (id identity) empty() bool {
	return id.first == "" && id.last == "" && id.email == ""
}

// matches reports whether every non-empty component of id equals the
// corresponding component of other. Empty components are wildcards.
func (id identity) matches(other identity) bool {
	if id.first != "" && id.first != other.first {
		return false
	}
	if id.last != "" && id.last != other.last {
		return false
	}
	if id.email != "" && id.email != other.email {
		return false
	}
	return true
}

// Detector flags rows that already exist in the remote store.
type Detector struct {
	fields IdentityFields
}

// NewDetector creates a Detector using the given field mapping.
func NewDetector(fields IdentityFields) *Detector {
	return &Detector{fields: fields}
}

// FindDuplicates returns the set of 0-based row indices for which at least
// one existing record matches the row's identity. Rows with an entirely
// empty identity are skipped.
func (d *Detector) FindDuplicates(rows []RawRow, existing []map[string]any) map[int]bool {
	ids := make([]identity, 0, len(existing))
	for _, rec := range existing {
		ids = append(ids, identity{
			first: normalize(recordField(rec, d.fields.RecordFirst)),
			last:  normalize(recordField(rec, d.fields.RecordLast)),
			email: normalize(recordField(rec, d.fields.RecordEmail)),
		})
	}

	flagged := make(map[int]bool)
	for i, row := range rows {
		id := d.rowIdentity(row)
		if id.empty() {
			continue
		}
		for _, existing := range ids {
			if id.matches(existing) {
				flagged[i] = true
				break
			}
		}
	}
	return flagged
}

// LookupFunc asks the remote service whether any record matches the given
// (possibly partial) identity components.
type LookupFunc func(ctx context.Context, first, last, email string) (bool, error)

// FindDuplicatesRemote checks each row with a targeted remote query instead
// of a bulk snapshot. Lookups run through a bounded pool; each task writes
// to its own slot so no ordering is required. The first lookup error aborts
// the remaining checks and is returned alongside whatever was flagged.
func (d *Detector) FindDuplicatesRemote(ctx context.Context, rows []RawRow, lookup LookupFunc) (map[int]bool, error) {
	results := make([]bool, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupPoolWidth)

	for i, row := range rows {
		id := d.rowIdentity(row)
		if id.empty() {
			continue
		}
		g.Go(func() error {
			found, err := lookup(gctx, id.first, id.last, id.email)
			if err != nil {
				return err
			}
			results[i] = found
			return nil
		})
	}

	err := g.Wait()

	flagged := make(map[int]bool)
	for i, dup := range results {
		if dup {
			flagged[i] = true
		}
	}
	return flagged, err
}

func (d *Detector) rowIdentity(row RawRow) identity {
	return identity{
		first: normalize(row[d.fields.RowFirst]),
		last:  normalize(row[d.fields.RowLast]),
		email: normalize(row[d.fields.RowEmail]),
	}
}

// normalize case-folds and trims an identity component.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// recordField reads a string field from an opaque remote record, tolerating
// missing or non-string values.
func recordField(rec map[string]any, field string) string {
	v, ok := rec[field]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
