package content

import (
	"fmt"
	"strings"
)

// ContentValues is an ordered set of column assignments used by insert and update.
// Values are scalars understood by the database driver: string, int64, float64, []byte, bool or nil.
type ContentValues struct {
	keys   []string
	values map[string]any
}

// NewContentValues returns an empty ContentValues.
func NewContentValues() *ContentValues {
	return &ContentValues{
		values: make(map[string]any),
	}
}

// Put sets key to value. Re-assigning an existing key keeps its original position.
func (v *ContentValues) Put(key string, value any) *ContentValues {
	if _, ok := v.values[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.values[key] = value

	return v
}

// PutNull sets key to SQL NULL.
func (v *ContentValues) PutNull(key string) *ContentValues {
	return v.Put(key, nil)
}

func (v *ContentValues) Get(key string) (any, bool) {
	value, ok := v.values[key]
	return value, ok
}

// GetAsString returns the value of key formatted as a string.
// The second return value is false when the key is missing or holds NULL.
func (v *ContentValues) GetAsString(key string) (string, bool) {
	value, ok := v.values[key]
	if !ok || value == nil {
		return "", false
	}

	switch val := value.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	default:
		return fmt.Sprint(val), true
	}
}

func (v *ContentValues) ContainsKey(key string) bool {
	_, ok := v.values[key]
	return ok
}

func (v *ContentValues) Remove(key string) {
	if _, ok := v.values[key]; !ok {
		return
	}
	delete(v.values, key)

	for i, k := range v.keys {
		if k == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the column names in insertion order.
func (v *ContentValues) Keys() []string {
	keys := make([]string, len(v.keys))
	copy(keys, v.keys)

	return keys
}

// Values returns the values in the same order as Keys.
func (v *ContentValues) Values() []any {
	values := make([]any, 0, len(v.keys))
	for _, k := range v.keys {
		values = append(values, v.values[k])
	}

	return values
}

func (v *ContentValues) Size() int {
	return len(v.keys)
}

// Clone returns a copy that can be modified without affecting v.
// Byte slices are copied as well.
func (v *ContentValues) Clone() *ContentValues {
	clone := &ContentValues{
		keys:   make([]string, len(v.keys)),
		values: make(map[string]any, len(v.values)),
	}
	copy(clone.keys, v.keys)

	for k, value := range v.values {
		if b, ok := value.([]byte); ok {
			value = append([]byte(nil), b...)
		}
		clone.values[k] = value
	}

	return clone
}

func (v *ContentValues) String() string {
	var sb strings.Builder
	for i, k := range v.keys {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%s=%v", k, v.values[k])
	}

	return sb.String()
}
