package docstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Document is a snapshot of one stored document.
type Document struct {
	Ref  DocRef
	Data map[string]any
}

// DataTo decodes the document into v, which is typically a pointer to a
// struct with json tags.
func (d Document) DataTo(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", d.Ref, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", d.Ref, err)
	}
	return nil
}

// Field returns the value at a dotted path. The DocumentID pseudo-field
// resolves to the document ID.
func (d Document) Field(path string) (any, bool) {
	if path == DocumentID {
		return d.Ref.ID, true
	}
	return lookup(d.Data, path)
}

func lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Encode converts a struct or map into the JSON-shaped map representation
// stored by every backend. Times become RFC 3339 strings and numbers
// become float64.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: encode: value is not an object: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("docstore: encode: nil document")
	}
	return out, nil
}

// normalize converts an arbitrary Go value into its JSON-shaped form.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Merge returns a copy of data with fields applied. Dotted keys create or
// replace nested objects along the path. The input map is not modified.
func Merge(data map[string]any, fields map[string]any) (map[string]any, error) {
	out := Clone(data)
	if out == nil {
		out = map[string]any{}
	}
	for key, value := range fields {
		if key == "" {
			return nil, fmt.Errorf("docstore: empty field path")
		}
		nv, err := normalize(value)
		if err != nil {
			return nil, fmt.Errorf("docstore: encode field %q: %w", key, err)
		}
		parts := strings.Split(key, ".")
		cur := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[part] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = nv
	}
	return out, nil
}

// Clone deep-copies a JSON-shaped map.
func Clone(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
