package meta

import (
	"encoding/json"
	"fmt"

	"github.com/roylkng/genai-vectors/cmn/cos"
	"github.com/roylkng/genai-vectors/core"
)

// ValidateBatch enforces the record-level invariants: dimension
// match, filterable/non-filterable size budgets, and filterable value
// type checks against the declared schema. Any violation rejects the
// whole batch.
func (c *Config) ValidateBatch(records []core.VectorRecord) error {
	filterableTypes := make(map[string]core.KeyType, len(c.FilterableKeys))
	for _, k := range c.FilterableKeys {
		filterableTypes[k.Name] = k.KeyType
	}

	for i := range records {
		r := &records[i]
		if len(r.Embedding) != c.Dim {
			return cos.NewErrBadRequest("record %s: embedding length %d != index dim %d", r.ID, len(r.Embedding), c.Dim)
		}
		if len(r.Meta) > core.MaxCombinedMetaBytes {
			return cos.NewErrBadRequest("record %s: metadata %d bytes exceeds combined limit %d", r.ID, len(r.Meta), core.MaxCombinedMetaBytes)
		}

		meta, err := r.MetaMap()
		if err != nil {
			return cos.NewErrBadRequest("record %s: metadata is not valid JSON: %v", r.ID, err)
		}

		var filterableBytes, nonFilterableBytes int
		for key, val := range meta {
			raw, _ := json.Marshal(val)
			if kt, isFilterable := filterableTypes[key]; isFilterable {
				filterableBytes += len(raw)
				if err := checkType(kt, val); err != nil {
					return cos.NewErrBadRequest("record %s: field %q: %v", r.ID, key, err)
				}
			} else {
				nonFilterableBytes += len(raw)
			}
		}
		if filterableBytes > core.MaxFilterableMetaBytes {
			return cos.NewErrBadRequest("record %s: filterable metadata %d bytes exceeds limit %d", r.ID, filterableBytes, core.MaxFilterableMetaBytes)
		}
		if nonFilterableBytes > core.MaxNonFilterableMetaBytes {
			return cos.NewErrBadRequest("record %s: non-filterable metadata %d bytes exceeds limit %d", r.ID, nonFilterableBytes, core.MaxNonFilterableMetaBytes)
		}
	}
	return nil
}

func checkType(kt core.KeyType, val any) error {
	switch kt {
	case core.KeyTypeString:
		if _, ok := val.(string); !ok {
			return typeErr(kt, val)
		}
	case core.KeyTypeNumber:
		if _, ok := val.(float64); !ok {
			return typeErr(kt, val)
		}
	case core.KeyTypeBool:
		if _, ok := val.(bool); !ok {
			return typeErr(kt, val)
		}
	case core.KeyTypeArray:
		if _, ok := val.([]any); !ok {
			return typeErr(kt, val)
		}
	}
	return nil
}

func typeErr(kt core.KeyType, val any) error {
	return fmt.Errorf("expected %s, got %T", kt, val)
}
