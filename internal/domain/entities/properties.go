package entities

import (
	"encoding/json"
	"math"
)

// UpdateCountKey is the property that counts merges applied to a relationship.
const UpdateCountKey = "updateCount"

// Properties is an open bag of attributes attached to entities and relationships.
type Properties map[string]any

// Merge returns the shallow union of p and override. Keys present in
// override replace the same keys in p. Neither map is modified.
func (p Properties) Merge(override Properties) Properties {
	merged := make(Properties, len(p)+len(override))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy; a nil receiver yields an empty map.
func (p Properties) Clone() Properties {
	return Properties{}.Merge(p)
}

// UpdateCount returns the stored updateCount, or 0 when absent or not numeric.
func (p Properties) UpdateCount() int {
	switch v := p[UpdateCountKey].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	default:
		return 0
	}
}
