package cue

import "maps"

// Template is the reusable content of a cue: its events and expressions with
// identity and location stripped.
type Template struct {
	Events      map[EventKind]EventConfig `json:"events" yaml:"events"`
	Expressions map[ExpressionKind]string `json:"expressions,omitempty" yaml:"expressions,omitempty"`
}

// Template extracts the sanitized content of c.
func (c Cue) Template() Template {
	t := Template{
		Events:      maps.Clone(c.Events),
		Expressions: maps.Clone(c.Expressions),
	}
	if t.Events == nil {
		t.Events = make(map[EventKind]EventConfig)
	}
	if t.Expressions == nil {
		t.Expressions = make(map[ExpressionKind]string)
	}
	return t
}

// Clone returns a deep copy of t.
func (t Template) Clone() Template {
	return Cue{Events: t.Events, Expressions: t.Expressions}.Template()
}

// Equal reports whether two templates carry identical content.
// Blank expressions are treated as absent.
func (t Template) Equal(o Template) bool {
	if !maps.Equal(t.Events, o.Events) {
		return false
	}
	return maps.Equal(nonBlank(t.Expressions), nonBlank(o.Expressions))
}

func nonBlank(m map[ExpressionKind]string) map[ExpressionKind]string {
	out := make(map[ExpressionKind]string, len(m))
	for k, v := range m {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// ApplyTemplate copies t's content into c, keeping c's identity, range,
// section, hue and comment, and records the link name (which may be empty).
func (c Cue) ApplyTemplate(t Template, linked string) Cue {
	out := c.Clone()
	t = t.Clone()
	out.Events = t.Events
	out.Expressions = t.Expressions
	out.Linked = linked
	return out
}
