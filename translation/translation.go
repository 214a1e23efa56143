// Package translation implements the flat JSON translation model used by
// lokedit.
//
// A translation file is a single JSON object mapping keys to string values:
//
//	{
//	    "greeting": "Bonjour",
//	    "farewell": "Au revoir"
//	}
//
// Key order from the source file is preserved through parsing, editing and
// marshaling, so the same input always produces the same key list.
package translation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Translation is one language's catalogue.
type Translation struct {
	Name string `json:"name" yaml:"name"`
	Data *Data  `json:"data" yaml:"data"`
}

// New returns a translation with an empty data map.
func New(name string) *Translation {
	return &Translation{Name: name, Data: NewData()}
}

// Clone returns a deep copy of t.
func (t *Translation) Clone() *Translation {
	return &Translation{Name: t.Name, Data: t.Data.Clone()}
}

// NameFromFile derives a translation name from an imported file name:
// the base name with a trailing ".json" removed.
func NameFromFile(fileName string) string {
	base := filepath.Base(filepath.ToSlash(fileName))
	if base == "." || base == "/" {
		return fileName
	}
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".json") && len(base) > len(ext) {
		return base[:len(base)-len(ext)]
	}
	return base
}

// ---------------------------------------------------------------------------
// Ordered data map
// ---------------------------------------------------------------------------

// Data is an insertion-ordered key -> value map.
// The zero value is not usable; use NewData.
type Data struct {
	keys   []string
	values map[string]string
}

// NewData returns an empty map.
func NewData() *Data {
	return &Data{values: make(map[string]string)}
}

// DataOf builds a map from alternating key/value pairs. Used mostly in tests.
func DataOf(pairs ...string) *Data {
	d := NewData()
	for i := 0; i+1 < len(pairs); i += 2 {
		d.Set(pairs[i], pairs[i+1])
	}
	return d
}

// Len returns the number of entries.
func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the keys in insertion order.
func (d *Data) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Get returns the value for key.
func (d *Data) Get(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.values[key]
	return v, ok
}

// Has reports whether key is present.
func (d *Data) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Set stores value under key. New keys are appended; existing keys keep
// their position.
func (d *Data) Set(key, value string) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Delete removes key. It reports whether the key was present.
func (d *Data) Delete(key string) bool {
	if d == nil {
		return false
	}
	if _, ok := d.values[key]; !ok {
		return false
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

// Clone returns a deep copy. A nil map clones to an empty one.
func (d *Data) Clone() *Data {
	if d == nil {
		return NewData()
	}
	out := &Data{
		keys:   make([]string, len(d.keys)),
		values: make(map[string]string, len(d.values)),
	}
	copy(out.keys, d.keys)
	for k, v := range d.values {
		out.values[k] = v
	}
	return out
}

// Map returns the entries as a plain map.
func (d *Data) Map() map[string]string {
	out := make(map[string]string, d.Len())
	for _, k := range d.Keys() {
		out[k] = d.values[k]
	}
	return out
}

// Equal reports whether d and other hold the same entries, ignoring order.
func (d *Data) Equal(other *Data) bool {
	if d.Len() != other.Len() {
		return false
	}
	for _, k := range d.Keys() {
		v, ok := other.Get(k)
		if !ok || v != d.values[k] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

// MarshalJSON writes the entries as a compact JSON object in insertion order.
func (d *Data) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range d.Keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(d.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON parses a flat JSON object of string values, keeping key order.
func (d *Data) UnmarshalJSON(data []byte) error {
	parsed, err := parseOrdered(data)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

// MarshalYAML stores the entries as a YAML mapping in insertion order.
func (d *Data) MarshalYAML() (any, error) {
	items := make([]yamlEntry, 0, d.Len())
	for _, k := range d.Keys() {
		items = append(items, yamlEntry{Key: k, Value: d.values[k]})
	}
	return items, nil
}

// UnmarshalYAML reads the sequence written by MarshalYAML.
func (d *Data) UnmarshalYAML(node *yaml.Node) error {
	var items []yamlEntry
	if err := node.Decode(&items); err != nil {
		return err
	}
	*d = *NewData()
	for _, it := range items {
		d.Set(it.Key, it.Value)
	}
	return nil
}

type yamlEntry struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// ParseError reports an imported file that is not a flat JSON object of
// string values.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("parsing JSON: %v", e.Err)
	}
	return fmt.Sprintf("parsing %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse parses the content of an imported file into a translation named
// after fileName. Malformed input yields a *ParseError.
func Parse(fileName string, content []byte) (*Translation, error) {
	data, err := parseOrdered(content)
	if err != nil {
		return nil, &ParseError{File: fileName, Err: err}
	}
	return &Translation{Name: NameFromFile(fileName), Data: data}, nil
}

// ErrNotObject is returned when the document is valid JSON but not an object.
var ErrNotObject = errors.New("document is not a JSON object")

func parseOrdered(content []byte) (*Data, error) {
	dec := json.NewDecoder(bytes.NewReader(content))

	t, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := t.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w (got %v)", ErrNotObject, t)
	}

	d := NewData()
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %T", kt)
		}

		var value *string
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("value for key %q: %w", key, err)
		}
		if value == nil {
			return nil, fmt.Errorf("value for key %q is null", key)
		}
		d.Set(key, *value)
	}

	// Closing brace, then nothing but whitespace.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON object")
	}

	return d, nil
}
