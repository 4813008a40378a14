package model

import (
	"strings"
	"time"
)

// Document is the open key/value payload carried by a workflow instance. The
// engine never imposes a schema on it; values are inspected only at the
// required-fields boundary and through the typed accessors below.
type Document map[string]any

// Merge returns a new Document containing all entries of d overlaid with all
// entries of other. Keys in other win on conflict. Neither input is mutated.
func (d Document) Merge(other Document) Document {
	merged := make(Document, len(d)+len(other))
	for k, v := range d {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// HasValue reports whether the given key is present with a non-empty value.
// Empty means: absent, nil, a blank (or whitespace-only) string, or an empty
// slice/map. Numbers and booleans are never empty, zero included.
func (d Document) HasValue(key string) bool {
	v, ok := d[key]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	case Document:
		return len(val) > 0
	default:
		return true
	}
}

// String returns the value for key as a string, or "" if absent or not a
// string.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Number returns the value for key as a float64. JSON decoding yields float64
// for all numbers; int values set programmatically are converted.
func (d Document) Number(key string) (float64, bool) {
	switch n := d[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Bool returns the value for key as a bool, or false if absent or not a bool.
func (d Document) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Time returns the value for key parsed as an RFC 3339 timestamp.
func (d Document) Time(key string) (time.Time, bool) {
	switch v := d[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

// Child returns the nested document under key, or nil if absent or not a map.
func (d Document) Child(key string) Document {
	switch v := d[key].(type) {
	case Document:
		return v
	case map[string]any:
		return Document(v)
	default:
		return nil
	}
}
