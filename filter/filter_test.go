package filter_test

import (
	"encoding/json"
	"testing"

	"github.com/roylkng/genai-vectors/filter"
)

func mustCompile(t *testing.T, expr string) *filter.Filter {
	t.Helper()
	f, err := filter.Compile(json.RawMessage(expr))
	if err != nil {
		t.Fatalf("Compile(%s): unexpected error: %v", expr, err)
	}
	return f
}

func TestMatchImplicitEquality(t *testing.T) {
	f := mustCompile(t, `{"category": "shoes"}`)
	tests := []struct {
		meta map[string]any
		want bool
	}{
		{map[string]any{"category": "shoes"}, true},
		{map[string]any{"category": "hats"}, false},
		{map[string]any{}, false},
	}
	for _, tt := range tests {
		if got := f.Match(tt.meta); got != tt.want {
			t.Errorf("Match(%v) = %v, want %v", tt.meta, got, tt.want)
		}
	}
}

func TestMatchOperators(t *testing.T) {
	tests := []struct {
		expr string
		meta map[string]any
		want bool
	}{
		{`{"price": {"$gt": 10}}`, map[string]any{"price": 15.0}, true},
		{`{"price": {"$gt": 10}}`, map[string]any{"price": 5.0}, false},
		{`{"price": {"$gte": 10}}`, map[string]any{"price": 10.0}, true},
		{`{"price": {"$lt": 10}}`, map[string]any{"price": 10.0}, false},
		{`{"price": {"$lte": 10}}`, map[string]any{"price": 10.0}, true},
		{`{"tag": {"$in": ["a", "b"]}}`, map[string]any{"tag": "b"}, true},
		{`{"tag": {"$in": ["a", "b"]}}`, map[string]any{"tag": "c"}, false},
		{`{"tag": {"$nin": ["a", "b"]}}`, map[string]any{"tag": "c"}, true},
		{`{"tag": {"$nin": ["a", "b"]}}`, map[string]any{}, true},
		{`{"name": {"$ne": "x"}}`, map[string]any{"name": "y"}, true},
		{`{"name": {"$ne": "x"}}`, map[string]any{}, true},
		{`{"title": {"$contains": "boot"}}`, map[string]any{"title": "rainboot"}, true},
		{`{"title": {"$contains": "boot"}}`, map[string]any{"title": "sneaker"}, false},
		{`{"title": {"$regex": "^foo.*"}}`, map[string]any{"title": "foobar"}, true},
		{`{"title": {"$regex": "["}}`, map[string]any{"title": "foobar"}, false},
		{`{"title": {"$exists": true}}`, map[string]any{"title": "x"}, true},
		{`{"title": {"$exists": true}}`, map[string]any{}, false},
		{`{"title": {"$exists": false}}`, map[string]any{}, true},
	}
	for _, tt := range tests {
		f := mustCompile(t, tt.expr)
		if got := f.Match(tt.meta); got != tt.want {
			t.Errorf("Match(%s, %v) = %v, want %v", tt.expr, tt.meta, got, tt.want)
		}
	}
}

func TestMatchNestedField(t *testing.T) {
	f := mustCompile(t, `{"attrs.color": "red"}`)
	meta := map[string]any{"attrs": map[string]any{"color": "red"}}
	if !f.Match(meta) {
		t.Errorf("expected dotted-path match to succeed")
	}
	if f.Match(map[string]any{"attrs": map[string]any{"color": "blue"}}) {
		t.Errorf("expected dotted-path mismatch to fail")
	}
}

func TestMatchOrCombinator(t *testing.T) {
	f := mustCompile(t, `{"$or": [{"category": "shoes"}, {"category": "hats"}]}`)
	if !f.Match(map[string]any{"category": "hats"}) {
		t.Errorf("expected $or to match second branch")
	}
	if f.Match(map[string]any{"category": "socks"}) {
		t.Errorf("expected $or to reject non-matching category")
	}
}

func TestMatchConjunctionAcrossFields(t *testing.T) {
	f := mustCompile(t, `{"category": "shoes", "price": {"$lt": 100}}`)
	if !f.Match(map[string]any{"category": "shoes", "price": 50.0}) {
		t.Errorf("expected both clauses to hold")
	}
	if f.Match(map[string]any{"category": "shoes", "price": 150.0}) {
		t.Errorf("expected price clause to reject")
	}
}

func TestCompileUnknownOperator(t *testing.T) {
	_, err := filter.Compile(json.RawMessage(`{"price": {"$bogus": 1}}`))
	if err == nil {
		t.Fatal("expected an error for an unknown operator")
	}
}

func TestCompileEmptyExpressionMatchesEverything(t *testing.T) {
	f, err := filter.Compile(nil)
	if err != nil {
		t.Fatalf("Compile(nil): unexpected error: %v", err)
	}
	if !f.Match(map[string]any{"anything": 1}) {
		t.Errorf("expected empty filter to match any metadata")
	}
}

func TestPreFilter(t *testing.T) {
	f := mustCompile(t, `{"category": "shoes"}`)
	perKey := map[string]map[string]any{
		"a": {"category": "shoes"},
		"b": {"category": "hats"},
		"c": {"category": "shoes"},
	}
	allowed := filter.PreFilter(perKey, f)
	if len(allowed) != 2 || !allowed["a"] || !allowed["c"] || allowed["b"] {
		t.Errorf("PreFilter returned unexpected set: %v", allowed)
	}
}
