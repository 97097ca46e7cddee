package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/beatcue/internal/cue"
)

// marshalJSON encodes v as compact JSON TEXT with HTML escaping disabled.
// Map keys are sorted by encoding/json, so equal values store identically.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline.
	return strings.TrimSpace(buf.String()), nil
}

func marshalEvents(events map[cue.EventKind]cue.EventConfig) (string, error) {
	if events == nil {
		events = map[cue.EventKind]cue.EventConfig{}
	}
	data, err := marshalJSON(events)
	if err != nil {
		return "", fmt.Errorf("marshal events: %w", err)
	}
	return data, nil
}

func marshalExpressions(exprs map[cue.ExpressionKind]string) (string, error) {
	clean := make(map[cue.ExpressionKind]string, len(exprs))
	for kind, src := range exprs {
		if src != "" {
			clean[kind] = src
		}
	}
	data, err := marshalJSON(clean)
	if err != nil {
		return "", fmt.Errorf("marshal expressions: %w", err)
	}
	return data, nil
}

func marshalSections(sections map[cue.SectionTag]int) (string, error) {
	if sections == nil {
		sections = map[cue.SectionTag]int{}
	}
	data, err := marshalJSON(sections)
	if err != nil {
		return "", fmt.Errorf("marshal sections: %w", err)
	}
	return data, nil
}

func unmarshalEvents(data string) (map[cue.EventKind]cue.EventConfig, error) {
	out := map[cue.EventKind]cue.EventConfig{}
	if data == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	return out, nil
}

func unmarshalExpressions(data string) (map[cue.ExpressionKind]string, error) {
	out := map[cue.ExpressionKind]string{}
	if data == "" || data == "{}" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal expressions: %w", err)
	}
	return out, nil
}

func unmarshalSections(data string) (map[cue.SectionTag]int, error) {
	out := map[cue.SectionTag]int{}
	if data == "" || data == "{}" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal sections: %w", err)
	}
	return out, nil
}
