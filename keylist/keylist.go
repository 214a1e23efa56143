// Package keylist implements the canonical key list that every translation
// is measured against, and the merge step that folds the keys of a newly
// imported translation into it.
package keylist

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// List is an ordered set of keys. Order is insertion order.
// A List is not safe for concurrent use; callers serialize access.
type List struct {
	keys  []string
	index map[string]int
}

// New builds a list from keys, dropping duplicates after their first
// occurrence. Empty keys are kept: imported files may contain them.
func New(keys ...string) *List {
	l := &List{index: make(map[string]int, len(keys))}
	for _, k := range keys {
		l.append(k)
	}
	return l
}

// Len returns the number of keys.
func (l *List) Len() int {
	return len(l.keys)
}

// Keys returns a copy of the keys in order.
func (l *List) Keys() []string {
	out := make([]string, len(l.keys))
	copy(out, l.keys)
	return out
}

// Contains reports whether key is in the list.
func (l *List) Contains(key string) bool {
	_, ok := l.index[key]
	return ok
}

// Index returns the position of key, or -1.
func (l *List) Index(key string) int {
	if i, ok := l.index[key]; ok {
		return i
	}
	return -1
}

// Add appends key unless it is empty or already present.
// It reports whether the list changed.
func (l *List) Add(key string) bool {
	if key == "" {
		return false
	}
	return l.append(key)
}

func (l *List) append(key string) bool {
	if _, ok := l.index[key]; ok {
		return false
	}
	l.index[key] = len(l.keys)
	l.keys = append(l.keys, key)
	return true
}

// Remove deletes key, keeping the order of the remaining keys.
// It reports whether the key was present.
func (l *List) Remove(key string) bool {
	i, ok := l.index[key]
	if !ok {
		return false
	}
	l.keys = append(l.keys[:i], l.keys[i+1:]...)
	delete(l.index, key)
	for j := i; j < len(l.keys); j++ {
		l.index[l.keys[j]] = j
	}
	return true
}

// Keyed is anything that can list its keys in a deterministic order.
type Keyed interface {
	Keys() []string
}

// Merge appends to existing every key of incoming that it does not already
// contain, in the order incoming lists them. Keys already present keep
// their position. It returns the appended keys.
func Merge(existing *List, incoming Keyed) []string {
	var added []string
	for _, k := range incoming.Keys() {
		if existing.append(k) {
			added = append(added, k)
		}
	}
	return added
}

// MarshalJSON encodes the list as a JSON array.
func (l *List) MarshalJSON() ([]byte, error) {
	if l.keys == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.keys)
}

// UnmarshalJSON decodes a JSON array, dropping duplicates.
func (l *List) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*l = *New(keys...)
	return nil
}

// MarshalYAML encodes the list as a YAML sequence.
func (l *List) MarshalYAML() (any, error) {
	return l.Keys(), nil
}

// UnmarshalYAML decodes a YAML sequence, dropping duplicates.
func (l *List) UnmarshalYAML(node *yaml.Node) error {
	var keys []string
	if err := node.Decode(&keys); err != nil {
		return err
	}
	*l = *New(keys...)
	return nil
}
