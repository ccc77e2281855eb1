package synth

import (
	"bytes"
	"encoding/json"
)

// Payload is an insertion-ordered mapping. It marshals to a JSON object
// whose keys keep schema document order.
type Payload struct {
	keys   []string
	values map[string]any
}

// NewPayload creates an empty Payload.
func NewPayload() *Payload {
	return &Payload{values: make(map[string]any)}
}

// Set adds or replaces key. A new key goes last.
func (p *Payload) Set(key string, value any) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value for key.
func (p *Payload) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns keys in insertion order.
func (p *Payload) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of keys.
func (p *Payload) Len() int { return len(p.keys) }

// Map returns an unordered copy.
func (p *Payload) Map() map[string]any {
	m := make(map[string]any, len(p.values))
	for k, v := range p.values {
		m[k] = v
	}
	return m
}

// MarshalJSON writes keys in insertion order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
