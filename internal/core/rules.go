package core

// rules.go defines the stock field-rule configuration for case records.
//
// Every field name maps to exactly one FieldKind; anything not listed here is
// passed through as plain text. The set mirrors the remote case service's
// intake schema: identifier fields are plain, date-of-birth and incident
// dates arrive as M/D/YYYY, list fields arrive comma-separated, and the meta
// field is free-form {key: value} text.

import "strings"

// DefaultRules is the rule set used for standard case intake batches.
func DefaultRules() RuleSet {
	return RuleSet{
		"dob":           KindDate,
		"incident_date": KindDate,
		"retainer_date": KindDate,
		"tags":          KindStringArray,
		"counsel":       KindStringArray,
		"fee_split":     KindIntArray,
		"meta":          KindObject,
	}
}

// KindFor returns the conversion kind for a field, defaulting to KindPlain
// for fields with no configured rule. Lookup is case-insensitive.
func (rs RuleSet) KindFor(field string) FieldKind {
	if rs == nil {
		return KindPlain
	}
	if kind, ok := rs[field]; ok {
		return kind
	}
	if kind, ok := rs[strings.ToLower(field)]; ok {
		return kind
	}
	return KindPlain
}
