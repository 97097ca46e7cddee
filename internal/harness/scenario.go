package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/show"
)

// Scenario defines one engine scenario: a container with cues, a flow of
// playback steps, and assertions on the resulting trace and journal.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Container ContainerSpec `yaml:"container"`

	// Templates are added to the library before the cues, so cues can link
	// to them.
	Templates []TemplateSpec `yaml:"templates,omitempty"`

	Cues []cue.Record `yaml:"cues"`

	Flow []FlowStep `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ContainerSpec describes the scenario's single container.
type ContainerSpec struct {
	Name string    `yaml:"name"`
	Kind show.Kind `yaml:"kind"`

	// Beats bounds track cues; zero leaves them unbounded.
	Beats int `yaml:"beats,omitempty"`

	// Sections gives phrase trigger section lengths in bars.
	Sections map[cue.SectionTag]int `yaml:"sections,omitempty"`

	// Output names the MIDI output. The harness records it; empty means
	// every send is skipped.
	Output string `yaml:"output,omitempty"`
}

// TemplateSpec is a library template.
type TemplateSpec struct {
	Name     string       `yaml:"name"`
	Folder   string       `yaml:"folder,omitempty"`
	Template cue.Template `yaml:"template"`
}

// FlowStep is exactly one of a status update, a lost player, a cue
// deletion or a simulated event.
type FlowStep struct {
	Status   *StatusStep   `yaml:"status,omitempty"`
	Lose     int           `yaml:"lose,omitempty"`
	Delete   string        `yaml:"delete,omitempty"`
	Simulate *SimulateStep `yaml:"simulate,omitempty"`
}

// StatusStep is a player status update. Player defaults to 1 and Container
// to the scenario's container.
type StatusStep struct {
	Player    int            `yaml:"player,omitempty"`
	Container string         `yaml:"container,omitempty"`
	Section   cue.SectionTag `yaml:"section,omitempty"`
	Beat      int            `yaml:"beat"`
	TimeMs    int64          `yaml:"time_ms,omitempty"`
	Playing   bool           `yaml:"playing,omitempty"`
	OnBeat    bool           `yaml:"on_beat,omitempty"`
	BPM       float64        `yaml:"bpm,omitempty"`
}

// SimulateStep fires one cue event without touching playback state.
type SimulateStep struct {
	Cue    string             `yaml:"cue"`
	Event  cue.ExpressionKind `yaml:"event"`
	Player int                `yaml:"player,omitempty"`
}

// Assertion validates the trace or the journal.
type Assertion struct {
	Type string `yaml:"type"`

	// Event is the fired event kind (fired_contains, fired_count).
	Event string `yaml:"event,omitempty"`

	// Cue restricts fired_contains, fired_count and journal_count to one cue.
	Cue string `yaml:"cue,omitempty"`

	// Player restricts fired_contains to one player.
	Player int `yaml:"player,omitempty"`

	// Events is the expected relative order (fired_order).
	Events []string `yaml:"events,omitempty"`

	// MIDI is the expected message (midi_sent).
	MIDI *MIDIExpect `yaml:"midi,omitempty"`

	Count int `yaml:"count,omitempty"`
}

// MIDIExpect matches a sent message. Zero fields other than Value are not
// checked; Value is checked whenever Kind is given.
type MIDIExpect struct {
	Kind    string `yaml:"kind"`
	Number  int    `yaml:"number,omitempty"`
	Value   int    `yaml:"value"`
	Channel int    `yaml:"channel,omitempty"`
}

// Assertion type constants.
const (
	AssertFiredContains = "fired_contains"
	AssertFiredOrder    = "fired_order"
	AssertFiredCount    = "fired_count"
	AssertMIDISent      = "midi_sent"
	AssertMIDICount     = "midi_count"
	AssertJournalCount  = "journal_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Container.Name == "" {
		return fmt.Errorf("container name is required")
	}
	switch s.Container.Kind {
	case show.KindTrack, show.KindPhraseTrigger:
	default:
		return fmt.Errorf("container kind must be %q or %q, got %q", show.KindTrack, show.KindPhraseTrigger, s.Container.Kind)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		set := 0
		if step.Status != nil {
			set++
		}
		if step.Lose != 0 {
			set++
		}
		if step.Delete != "" {
			set++
		}
		if step.Simulate != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("flow step %d: exactly one of status, lose, delete or simulate is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertFiredContains, AssertFiredCount:
		if a.Event == "" {
			return fmt.Errorf("%s requires event", a.Type)
		}
	case AssertFiredOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("%s requires at least two events", a.Type)
		}
	case AssertMIDISent:
		if a.MIDI == nil || a.MIDI.Kind == "" {
			return fmt.Errorf("%s requires midi.kind", a.Type)
		}
	case AssertMIDICount, AssertJournalCount:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
