package core

// transform.go converts one raw case row into a typed submission payload.
//
// The transformer is total: malformed field data never raises. Bad input
// degrades to a best-effort value or passes through raw, and the remote
// service's own validation rejects it with a per-row error. Aborting the
// whole batch over one garbled cell is never acceptable here.

import (
	"strconv"
	"strings"
)

// Transformer converts RawRows into Payloads using a rule set and the
// process-wide overrides. Safe for concurrent use; it holds no mutable state.
type Transformer struct {
	rules     RuleSet
	overrides Overrides
	meta      *metaParser
}

// NewTransformer creates a Transformer. A nil rules map behaves as all-plain.
func NewTransformer(rules RuleSet, overrides Overrides) *Transformer {
	return &Transformer{
		rules:     rules,
		overrides: overrides,
		meta:      newMetaParser(),
	}
}

// Transform builds the payload for one row. Fields whose raw value is the
// empty string are treated as not supplied and skipped. Configured overrides
// are applied last and always win over row-supplied values.
func (t *Transformer) Transform(row RawRow) Payload {
	payload := make(Payload, len(row))

	for field, raw := range row {
		if raw == "" {
			continue
		}
		payload[field] = t.convert(field, raw)
	}

	// Overrides win unconditionally, including over non-empty row values.
	for field, raw := range t.overrides.Values() {
		payload[field] = t.convert(field, raw)
	}

	return payload
}

// convert applies the field's rule to one raw value.
func (t *Transformer) convert(field, raw string) any {
	switch t.rules.KindFor(field) {
	case KindDate:
		return reformatDate(raw)
	case KindStringArray:
		return splitList(raw)
	case KindIntArray:
		return parseIntList(raw)
	case KindObject:
		return t.meta.parse(raw)
	default:
		return raw
	}
}

// reformatDate turns M/D/YYYY into YYYY-MM-DD, zero-padding month and day.
// Input that does not split into exactly three parts is passed through
// unchanged; the remote service reports malformed dates per row.
func reformatDate(raw string) string {
	parts := strings.Split(raw, "/")
	if len(parts) != 3 {
		return raw
	}
	month, day, year := parts[0], parts[1], parts[2]
	if len(month) == 1 {
		month = "0" + month
	}
	if len(day) == 1 {
		day = "0" + day
	}
	return year + "-" + month + "-" + day
}

// splitList splits a comma-separated value into trimmed items, stripping one
// leading "[" and one trailing "]" per item. Splitting happens BEFORE bracket
// stripping, so "[a, b]" becomes the items "a" and "b" - the split is not
// bracket-aware.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "[")
		p = strings.TrimSuffix(p, "]")
		items = append(items, p)
	}
	return items
}

// parseIntList is splitList followed by base-10 parsing. Items that do not
// parse are dropped silently; the row still succeeds with a shorter array.
func parseIntList(raw string) []int {
	parts := splitList(raw)
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	return nums
}
