package schema

import "encoding/json"

// JSON is a convenience alias for json-typed columns. It marshals like a
// plain map and maps to the json storage tag.
type JSON map[string]any

// Value returns the serialized form, for callers that need the raw bytes.
func (j JSON) Value() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]any(j))
}

// Scan populates the map from serialized bytes.
func (j *JSON) Scan(src []byte) error {
	if len(src) == 0 {
		*j = nil
		return nil
	}
	m := make(map[string]any)
	if err := json.Unmarshal(src, &m); err != nil {
		return err
	}
	*j = m
	return nil
}
