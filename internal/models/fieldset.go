package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// FieldSet is the opaque, nested field document of a user record. The engine
// never interprets the business meaning of its contents; it only reads and
// writes values addressed by dotted paths (e.g. "balances.source").
type FieldSet map[string]interface{}

// Patch maps dotted paths to values. Applying a patch sets exactly the named
// paths and leaves every other field untouched (merge-patch semantics).
type Patch map[string]interface{}

// Get returns the value at a dotted path and whether the path exists.
func (f FieldSet) Get(path string) (interface{}, bool) {
	if f == nil {
		return nil, false
	}

	parts := strings.Split(path, ".")
	var current interface{} = map[string]interface{}(f)

	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// Set writes a value at a dotted path, creating intermediate objects as
// needed. A non-object intermediate value is replaced by an object.
func (f FieldSet) Set(path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := map[string]interface{}(f)

	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[part] = next
		}
		current = next
	}

	current[parts[len(parts)-1]] = value
}

// Float returns the numeric value at a dotted path. JSON decoding yields
// float64 for numbers, but values set in code may be ints.
func (f FieldSet) Float(path string) (float64, bool) {
	value, ok := f.Get(path)
	if !ok || value == nil {
		return 0, false
	}

	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// Bool returns the boolean value at a dotted path, false if absent or not a
// boolean.
func (f FieldSet) Bool(path string) bool {
	value, ok := f.Get(path)
	if !ok {
		return false
	}
	b, ok := value.(bool)
	return ok && b
}

// Has reports whether a non-nil value exists at the dotted path.
func (f FieldSet) Has(path string) bool {
	value, ok := f.Get(path)
	return ok && value != nil
}

// Apply merge-patches the field set: each patch path is set to its value,
// all other fields are left as they are. Paths are applied in sorted order
// so the result is deterministic.
func (f FieldSet) Apply(patch Patch) {
	for _, path := range patch.Paths() {
		f.Set(path, patch[path])
	}
}

// Pick captures the current values at the given dotted paths. A path that
// does not exist is captured as nil, so restoring the patch later resets it.
func (f FieldSet) Pick(paths ...string) Patch {
	snapshot := make(Patch, len(paths))
	for _, path := range paths {
		value, ok := f.Get(path)
		if !ok {
			snapshot[path] = nil
			continue
		}
		snapshot[path] = value
	}
	return snapshot
}

// Clone returns a deep copy of the field set.
func (f FieldSet) Clone() FieldSet {
	if f == nil {
		return nil
	}
	copied := make(FieldSet, len(f))
	for key, value := range f {
		copied[key] = cloneValue(value)
	}
	return copied
}

func cloneValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		copied := make(map[string]interface{}, len(v))
		for key, inner := range v {
			copied[key] = cloneValue(inner)
		}
		return copied
	case []interface{}:
		copied := make([]interface{}, len(v))
		for i, inner := range v {
			copied[i] = cloneValue(inner)
		}
		return copied
	default:
		return v
	}
}

// Paths returns the patch's dotted paths in sorted order.
func (p Patch) Paths() []string {
	paths := make([]string, 0, len(p))
	for path := range p {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
