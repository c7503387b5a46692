// Package filter is the Metadata Filter, grounded directly
// on original_source/src/metadata_filter.rs: same operator set, same
// dotted-path nested traversal, same "missing field fails positive
// operators" and "regex compile failure ⇒ false" rules. Extended per
// the design with a root-level "$or" combinator the Rust predecessor lacked.
package filter

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/roylkng/genai-vectors/cmn/cos"
)

type opKind int

const (
	opEq opKind = iota
	opNe
	opIn
	opNin
	opGt
	opGte
	opLt
	opLte
	opContains
	opRegex
	opExists
	opNotExists
)

type clause struct {
	field string
	kind  opKind
	value any
}

// Filter is a compiled metadata expression: a top-level conjunction of
// per-field clauses, or — if Or is non-nil — a disjunction of sub-filters.
type Filter struct {
	clauses []clause
	or      []*Filter
}

// Compile parses a JSON filter expression into a Filter. Unknown operators are a *cos.ErrBadRequest.
func Compile(expr json.RawMessage) (*Filter, error) {
	if len(expr) == 0 {
		return &Filter{}, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(expr, &raw); err != nil {
		return nil, cos.NewErrBadRequest("filter is not a JSON object: %v", err)
	}
	return compileObject(raw)
}

func compileObject(raw map[string]json.RawMessage) (*Filter, error) {
	f := &Filter{}
	for field, rawVal := range raw {
		if field == "$or" {
			var subs []map[string]json.RawMessage
			if err := json.Unmarshal(rawVal, &subs); err != nil {
				return nil, cos.NewErrBadRequest("$or requires an array of sub-filters: %v", err)
			}
			for _, sub := range subs {
				sf, err := compileObject(sub)
				if err != nil {
					return nil, err
				}
				f.or = append(f.or, sf)
			}
			continue
		}

		var asObject map[string]json.RawMessage
		if err := json.Unmarshal(rawVal, &asObject); err == nil && looksLikeOpObject(rawVal) {
			for op, opVal := range asObject {
				c, err := compileOp(field, op, opVal)
				if err != nil {
					return nil, err
				}
				f.clauses = append(f.clauses, c)
			}
			continue
		}

		var v any
		if err := json.Unmarshal(rawVal, &v); err != nil {
			return nil, cos.NewErrBadRequest("field %q: invalid value: %v", field, err)
		}
		f.clauses = append(f.clauses, clause{field: field, kind: opEq, value: v})
	}
	return f, nil
}

// looksLikeOpObject distinguishes {"$gt": 5} (an operator object) from a
// bare JSON object value used for implicit equality against a nested doc.
func looksLikeOpObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	var m map[string]json.RawMessage
	if json.Unmarshal(raw, &m) != nil {
		return false
	}
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func compileOp(field, op string, raw json.RawMessage) (clause, error) {
	var v any
	switch op {
	case "$eq":
		if err := json.Unmarshal(raw, &v); err != nil {
			return clause{}, cos.NewErrBadRequest("%s: %v", op, err)
		}
		return clause{field, opEq, v}, nil
	case "$ne":
		if err := json.Unmarshal(raw, &v); err != nil {
			return clause{}, cos.NewErrBadRequest("%s: %v", op, err)
		}
		return clause{field, opNe, v}, nil
	case "$in":
		var arr []any
		if err := json.Unmarshal(raw, &arr); err != nil {
			return clause{}, cos.NewErrBadRequest("$in requires an array: %v", err)
		}
		return clause{field, opIn, arr}, nil
	case "$nin":
		var arr []any
		if err := json.Unmarshal(raw, &arr); err != nil {
			return clause{}, cos.NewErrBadRequest("$nin requires an array: %v", err)
		}
		return clause{field, opNin, arr}, nil
	case "$gt", "$gte", "$lt", "$lte":
		var num float64
		if err := json.Unmarshal(raw, &num); err != nil {
			return clause{}, cos.NewErrBadRequest("%s requires a number: %v", op, err)
		}
		kind := map[string]opKind{"$gt": opGt, "$gte": opGte, "$lt": opLt, "$lte": opLte}[op]
		return clause{field, kind, num}, nil
	case "$contains":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return clause{}, cos.NewErrBadRequest("$contains requires a string: %v", err)
		}
		return clause{field, opContains, s}, nil
	case "$regex":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return clause{}, cos.NewErrBadRequest("$regex requires a string: %v", err)
		}
		return clause{field, opRegex, s}, nil
	case "$exists":
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return clause{}, cos.NewErrBadRequest("$exists requires a bool: %v", err)
		}
		if b {
			return clause{field, opExists, nil}, nil
		}
		return clause{field, opNotExists, nil}, nil
	default:
		return clause{}, cos.NewErrBadRequest("unknown filter operator: %s", op)
	}
}

// Match evaluates the compiled filter against a record's metadata map.
func (f *Filter) Match(meta map[string]any) bool {
	if len(f.or) > 0 {
		for _, sub := range f.or {
			if sub.Match(meta) {
				return true
			}
		}
		return false
	}
	for _, c := range f.clauses {
		if !matchClause(c, meta) {
			return false
		}
	}
	return true
}

func matchClause(c clause, meta map[string]any) bool {
	val, found := fieldValue(meta, c.field)
	switch c.kind {
	case opEq:
		return found && jsonEqual(val, c.value)
	case opNe:
		return !found || !jsonEqual(val, c.value)
	case opIn:
		if !found {
			return false
		}
		for _, v := range c.value.([]any) {
			if jsonEqual(val, v) {
				return true
			}
		}
		return false
	case opNin:
		if !found {
			return true
		}
		for _, v := range c.value.([]any) {
			if jsonEqual(val, v) {
				return false
			}
		}
		return true
	case opGt, opGte, opLt, opLte:
		if !found {
			return false
		}
		num, ok := asFloat(val)
		if !ok {
			return false
		}
		target := c.value.(float64)
		switch c.kind {
		case opGt:
			return num > target
		case opGte:
			return num >= target
		case opLt:
			return num < target
		default:
			return num <= target
		}
	case opContains:
		if !found {
			return false
		}
		s, ok := val.(string)
		if !ok {
			return false
		}
		return strings.Contains(s, c.value.(string))
	case opRegex:
		if !found {
			return false
		}
		s, ok := val.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(c.value.(string))
		if err != nil {
			return false
		}
		return re.MatchString(s)
	case opExists:
		return found
	case opNotExists:
		return !found
	default:
		return false
	}
}

// fieldValue resolves a dotted field name through nested JSON objects.
func fieldValue(meta map[string]any, field string) (any, bool) {
	parts := strings.Split(field, ".")
	var cur any = meta
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func jsonEqual(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	ab, aIsBuf := json.Marshal(a)
	bb, bIsBuf := json.Marshal(b)
	return aIsBuf == nil && bIsBuf == nil && string(ab) == string(bb)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// PreFilter returns the set of metadata keys (by external record key)
// whose metadata satisfies the filter — the candidate-reduction interface
// the query executor uses.
func PreFilter(perKeyMeta map[string]map[string]any, f *Filter) map[string]bool {
	allowed := make(map[string]bool, len(perKeyMeta))
	for key, meta := range perKeyMeta {
		if f.Match(meta) {
			allowed[key] = true
		}
	}
	return allowed
}
