package core

// meta.go parses the loosely structured "meta" field.
//
// Users paste object-literal-ish text like {gender: Male, age: 30} with no
// quoting, inconsistent spacing, and the occasional value that is not even
// pairs. Parsing is an ordered chain of strategies, each implementing a
// single tryParse method; the first success wins and total failure retains
// the original string. This field must never fail a row.

import (
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// metaStrategy attempts one interpretation of the raw meta text.
type metaStrategy interface {
	tryParse(text string) (map[string]string, bool)
}

// metaParser runs strategies in order and falls back to the raw string.
type metaParser struct {
	strategies []metaStrategy
}

func newMetaParser() *metaParser {
	return &metaParser{
		strategies: []metaStrategy{
			quotedJSONStrategy{},
			pairSplitStrategy{},
		},
	}
}

// parse returns a map[string]string from the first succeeding strategy, or
// the original string when no strategy applies.
func (p *metaParser) parse(raw string) any {
	for _, s := range p.strategies {
		if m, ok := s.tryParse(raw); ok {
			return m
		}
	}
	return raw
}

// bare keys and values in object-literal text, e.g. `{gender: Male}`.
var (
	metaKeyPattern   = regexp.MustCompile(`([{,]\s*)([A-Za-z0-9_]+)\s*:`)
	metaValuePattern = regexp.MustCompile(`:\s*([^",{}\[\]]+?)\s*([,}])`)
)

// quotedJSONStrategy mechanically inserts quotes around bare keys and values
// to coerce object-literal text into strict JSON, then parses it.
type quotedJSONStrategy struct{}

func (quotedJSONStrategy) tryParse(text string) (map[string]string, bool) {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "{") || !strings.HasSuffix(t, "}") {
		return nil, false
	}

	quoted := metaKeyPattern.ReplaceAllString(t, `$1"$2":`)
	quoted = metaValuePattern.ReplaceAllString(quoted, `:"$1"$2`)

	var m map[string]string
	if err := json.Unmarshal([]byte(quoted), &m); err != nil {
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	return m, true
}

// pairSplitStrategy strips the outer braces, splits on commas, and splits
// each pair on its first colon. Pairs that do not yield two non-empty parts
// are discarded.
type pairSplitStrategy struct{}

func (pairSplitStrategy) tryParse(text string) (map[string]string, bool) {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "{")
	t = strings.TrimSuffix(t, "}")

	m := make(map[string]string)
	for _, pair := range strings.Split(t, ",") {
		key, value, found := strings.Cut(pair, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		m[key] = value
	}

	if len(m) == 0 {
		return nil, false
	}
	return m, true
}
