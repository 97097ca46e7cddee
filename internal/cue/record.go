package cue

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Record is the persisted show-file form of a cue. It carries only the
// fields that belong in a show; editor handles and other runtime state
// have no representation here.
type Record struct {
	UUID        string                    `json:"uuid" yaml:"uuid"`
	Start       int                       `json:"start" yaml:"start"`
	End         int                       `json:"end" yaml:"end"`
	Section     SectionTag                `json:"section,omitempty" yaml:"section,omitempty"`
	Hue         float64                   `json:"hue" yaml:"hue"`
	Comment     string                    `json:"comment" yaml:"comment"`
	Events      map[EventKind]EventConfig `json:"events" yaml:"events"`
	Expressions map[ExpressionKind]string `json:"expressions,omitempty" yaml:"expressions,omitempty"`
	Linked      string                    `json:"linked,omitempty" yaml:"linked,omitempty"`
}

// Record converts c to its persisted form. Blank expressions are dropped.
func (c Cue) Record() Record {
	r := Record{
		UUID:    c.UUID.String(),
		Start:   c.Start,
		End:     c.End,
		Section: c.Section,
		Hue:     c.Hue,
		Comment: c.Comment,
		Events:  make(map[EventKind]EventConfig, len(EventKinds)),
		Linked:  c.Linked,
	}
	for _, kind := range EventKinds {
		r.Events[kind] = c.Event(kind)
	}
	for kind, src := range c.Expressions {
		if src == "" {
			continue
		}
		if r.Expressions == nil {
			r.Expressions = make(map[ExpressionKind]string)
		}
		r.Expressions[kind] = src
	}
	return r
}

// FromRecord rebuilds a cue from its persisted form.
func FromRecord(r Record) (Cue, error) {
	id, err := uuid.Parse(r.UUID)
	if err != nil {
		return Cue{}, fmt.Errorf("parse cue uuid %q: %w", r.UUID, err)
	}
	c := New(r.Start, r.End, r.Section)
	c.UUID = id
	c.Hue = r.Hue
	c.Comment = r.Comment
	c.Linked = r.Linked
	for kind, cfg := range r.Events {
		c.Events[kind] = cfg
	}
	for kind, src := range r.Expressions {
		c.Expressions[kind] = src
	}
	return c, nil
}

// MarshalRecordsYAML encodes records as a YAML sequence.
func MarshalRecordsYAML(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode cue records: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode cue records: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalRecordsYAML decodes a YAML sequence of records, rejecting unknown
// fields so a misspelled key is not silently dropped.
func UnmarshalRecordsYAML(data []byte) ([]Record, error) {
	var records []Record
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode cue records: %w", err)
	}
	return records, nil
}
