package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParameterSet is an ordered string map with unique keys. Iteration follows
// insertion order; setting an existing key replaces its value in place.
//
// The zero value is an empty, usable set.
type ParameterSet struct {
	keys   []string
	values map[string]string
}

// NewParameterSet builds a set from an alternating key/value list.
// Later duplicates overwrite earlier values.
func NewParameterSet(kv ...string) ParameterSet {
	var p ParameterSet
	for i := 0; i+1 < len(kv); i += 2 {
		p.Set(kv[i], kv[i+1])
	}
	return p
}

// Set stores value under key.
func (p *ParameterSet) Set(key, value string) {
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value stored under key.
func (p ParameterSet) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Delete removes key, keeping the order of the remaining keys.
func (p *ParameterSet) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i:i], p.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (p ParameterSet) Len() int {
	return len(p.keys)
}

// Keys returns the keys in insertion order.
func (p ParameterSet) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Each calls fn for every entry in insertion order.
func (p ParameterSet) Each(fn func(key, value string)) {
	for _, k := range p.keys {
		fn(k, p.values[k])
	}
}

// Flatten returns the set as an alternating key/value list.
func (p ParameterSet) Flatten() []string {
	out := make([]string, 0, 2*len(p.keys))
	for _, k := range p.keys {
		out = append(out, k, p.values[k])
	}
	return out
}

// Clone returns an independent copy.
func (p ParameterSet) Clone() ParameterSet {
	var c ParameterSet
	p.Each(c.Set)
	return c
}

// MarshalJSON encodes the set as a list of {"key","value"} pairs to keep order.
func (p ParameterSet) MarshalJSON() ([]byte, error) {
	type entry struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	entries := make([]entry, 0, len(p.keys))
	p.Each(func(k, v string) {
		entries = append(entries, entry{Key: k, Value: v})
	})
	return json.Marshal(entries)
}

// UnmarshalJSON accepts either the ordered pair list written by MarshalJSON
// or a plain JSON object. Object keys arrive in document order.
func (p *ParameterSet) UnmarshalJSON(data []byte) error {
	*p = ParameterSet{}

	var entries []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &entries); err == nil {
		for _, e := range entries {
			p.Set(e.Key, e.Value)
		}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("parameters must be a JSON object or a list of key/value pairs")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("parameter %v: %w", keyTok, err)
		}
		p.Set(keyTok.(string), value)
	}
	return nil
}
