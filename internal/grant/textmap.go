package grant

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Entry is one key/text pair of a TextMap.
type Entry struct {
	Key  string
	Text string
}

// TextMap is a string map that keeps insertion order and marshals as a JSON object.
type TextMap []Entry

// Get returns the text stored under key.
func (m TextMap) Get(key string) (string, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Text, true
		}
	}
	return "", false
}

// Set stores text under key, replacing an existing entry in place.
func (m *TextMap) Set(key, text string) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Text = text
			return
		}
	}
	*m = append(*m, Entry{Key: key, Text: text})
}

// Keys returns the keys in insertion order.
func (m TextMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for _, e := range m {
		keys = append(keys, e.Key)
	}
	return keys
}

// MarshalJSON encodes the map as an object in insertion order.
func (m TextMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, fmt.Errorf("marshal key: %w", err)
		}
		val, err := json.Marshal(e.Text)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping the key order of the input.
func (m *TextMap) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read text map: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("text map must be a JSON object")
	}
	out := TextMap{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read text map key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("text map key must be a string")
		}
		var text string
		if err := dec.Decode(&text); err != nil {
			return fmt.Errorf("read text map value for %q: %w", key, err)
		}
		out.Set(key, text)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("close text map: %w", err)
	}
	*m = out
	return nil
}
