// Package midi sends the note and controller messages cues fire.
//
// Channels and notes use the 1-based numbering shown to users; conversion to
// wire values happens in PortOutput.
package midi

import (
	"errors"
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Output is a device cues can send to.
type Output interface {
	Name() string
	NoteOn(note, velocity, channel int) error
	NoteOff(note, velocity, channel int) error
	ControlChange(controller, value, channel int) error
}

// ErrClosed is returned when sending to a closed port.
var ErrClosed = errors.New("midi output closed")

// PortOutput sends to a driver output port, opening it on first use.
type PortOutput struct {
	mu     sync.Mutex
	port   drivers.Out
	closed bool
}

// NewPortOutput wraps port.
func NewPortOutput(port drivers.Out) *PortOutput {
	return &PortOutput{port: port}
}

func (p *PortOutput) Name() string {
	return p.port.String()
}

func (p *PortOutput) NoteOn(note, velocity, channel int) error {
	return p.send(gomidi.NoteOn(wireChannel(channel), wire7(note), wire7(velocity)))
}

func (p *PortOutput) NoteOff(note, velocity, channel int) error {
	return p.send(gomidi.NoteOffVelocity(wireChannel(channel), wire7(note), wire7(velocity)))
}

func (p *PortOutput) ControlChange(controller, value, channel int) error {
	return p.send(gomidi.ControlChange(wireChannel(channel), wire7(controller), wire7(value)))
}

// Close closes the underlying port. Further sends fail with ErrClosed.
func (p *PortOutput) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.port.IsOpen() {
		return p.port.Close()
	}
	return nil
}

func (p *PortOutput) send(msg gomidi.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.port.IsOpen() {
		if err := p.port.Open(); err != nil {
			return fmt.Errorf("open %s: %w", p.port.String(), err)
		}
	}
	if err := p.port.Send(msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg, p.port.String(), err)
	}
	return nil
}

func wireChannel(channel int) uint8 {
	return uint8(clamp(channel, 1, 16) - 1)
}

func wire7(v int) uint8 {
	return uint8(clamp(v, 0, 127))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
