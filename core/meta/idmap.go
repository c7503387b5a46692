package meta

import "encoding/json"

// IDMapEntry is one (internal_id, external_key) pair. It marshals as a
// plain two-element JSON array, per the id_map.json schema
// ([[internal_id:int64, external_key:string],...]) — not as an object,
// so a custom (Un)MarshalJSON is required.
type IDMapEntry struct {
	InternalID  int64
	ExternalKey string
}

func (e IDMapEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.InternalID, e.ExternalKey})
}

func (e *IDMapEntry) UnmarshalJSON(data []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &e.InternalID); err != nil {
		return err
	}
	return json.Unmarshal(tuple[1], &e.ExternalKey)
}

// IDMap is the ordered id_map.json content for one shard.
type IDMap []IDMapEntry
