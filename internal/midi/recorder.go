package midi

import (
	"fmt"
	"sync"
)

// Kind names a recorded message type.
type Kind string

const (
	KindNoteOn  Kind = "note-on"
	KindNoteOff Kind = "note-off"
	KindCC      Kind = "cc"
)

// Message is one send captured by a Recorder.
type Message struct {
	Output  string `yaml:"output" json:"output"`
	Kind    Kind   `yaml:"kind" json:"kind"`
	Number  int    `yaml:"number" json:"number"`
	Value   int    `yaml:"value" json:"value"`
	Channel int    `yaml:"channel" json:"channel"`
}

func (m Message) String() string {
	return fmt.Sprintf("%s %s %d %d ch%d", m.Output, m.Kind, m.Number, m.Value, m.Channel)
}

// Recorder is an Output that keeps every message it is sent.
type Recorder struct {
	name string

	mu       sync.Mutex
	messages []Message
}

// NewRecorder returns an empty recorder named name.
func NewRecorder(name string) *Recorder {
	return &Recorder{name: name}
}

func (r *Recorder) Name() string { return r.name }

func (r *Recorder) NoteOn(note, velocity, channel int) error {
	r.record(Message{Kind: KindNoteOn, Number: note, Value: velocity, Channel: channel})
	return nil
}

func (r *Recorder) NoteOff(note, velocity, channel int) error {
	r.record(Message{Kind: KindNoteOff, Number: note, Value: velocity, Channel: channel})
	return nil
}

func (r *Recorder) ControlChange(controller, value, channel int) error {
	r.record(Message{Kind: KindCC, Number: controller, Value: value, Channel: channel})
	return nil
}

// Messages returns a copy of what has been recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Reset forgets recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}

func (r *Recorder) record(m Message) {
	m.Output = r.name
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}
