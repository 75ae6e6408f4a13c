package tools

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/rohanthewiz/serr"
)

// OrderedMap is a JSON object that preserves key order. Tool results pass
// through serialize/deserialize cycles; a plain map would shuffle keys and
// make results non-deterministic for the model.
type OrderedMap struct {
	keys   []string
	values map[string]interface{}
}

// NewOrderedMap creates an empty ordered map
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]interface{})}
}

// Keys returns keys in insertion order
func (m *OrderedMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value for a key
func (m *OrderedMap) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set inserts or replaces a key, preserving its original position when the
// key already exists
func (m *OrderedMap) Set(key string, value interface{}) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Has reports whether the key is present
func (m *OrderedMap) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Len returns the number of entries
func (m *OrderedMap) Len() int {
	return len(m.keys)
}

// ToMap returns a plain map copy (order lost)
func (m *OrderedMap) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(m.keys))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// MarshalJSON serializes entries in insertion order
func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, serr.Wrap(err, "failed to marshal key")
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, serr.Wrap(err, "failed to marshal value", "key", k)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping key order; nested objects decode
// to *OrderedMap as well
func (m *OrderedMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return serr.Wrap(err, "failed to read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return serr.New("ordered map requires a JSON object")
	}

	m.keys = nil
	m.values = make(map[string]interface{})

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return serr.Wrap(err, "failed to read key")
		}
		key := keyTok.(string)

		val, err := decodeOrderedValue(dec)
		if err != nil {
			return serr.Wrap(err, "failed to decode value", "key", key)
		}
		m.Set(key, val)
	}

	// Consume closing brace
	if _, err := dec.Token(); err != nil {
		return serr.Wrap(err, "failed to read closing token")
	}
	return nil
}

// decodeOrderedValue decodes the next value, producing *OrderedMap for
// objects and []interface{} for arrays
func decodeOrderedValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewOrderedMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key := keyTok.(string)
				val, err := decodeOrderedValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			var arr []interface{}
			for dec.More() {
				val, err := decodeOrderedValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			if arr == nil {
				arr = []interface{}{}
			}
			return arr, nil
		}
		return nil, serr.New("unexpected delimiter")
	default:
		return tok, nil
	}
}

// DecodeOrdered parses arbitrary JSON keeping object key order
func DecodeOrdered(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeOrderedValue(dec)
	if err != nil {
		return nil, err
	}
	// Text after the first value means the input as a whole is not JSON
	if _, err := dec.Token(); err != io.EOF {
		return nil, serr.New("unexpected data after JSON value")
	}
	return val, nil
}
