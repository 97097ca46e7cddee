package midi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/drivers"
)

type fakePort struct {
	name    string
	open    bool
	opens   int
	sent    [][]byte
	sendErr error
}

func (p *fakePort) Open() error             { p.open = true; p.opens++; return nil }
func (p *fakePort) Close() error            { p.open = false; return nil }
func (p *fakePort) IsOpen() bool            { return p.open }
func (p *fakePort) Number() int             { return 0 }
func (p *fakePort) String() string          { return p.name }
func (p *fakePort) Underlying() interface{} { return nil }
func (p *fakePort) Send(data []byte) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, append([]byte(nil), data...))
	return nil
}

type fakeDriver struct {
	outs []drivers.Out
}

func (d *fakeDriver) Ins() ([]drivers.In, error)   { return nil, nil }
func (d *fakeDriver) Outs() ([]drivers.Out, error) { return d.outs, nil }
func (d *fakeDriver) String() string               { return "fake" }
func (d *fakeDriver) Close() error                 { return nil }

func TestPortOutput_WireBytes(t *testing.T) {
	port := &fakePort{name: "Lights"}
	out := NewPortOutput(port)

	require.NoError(t, out.NoteOn(60, 127, 1))
	require.NoError(t, out.NoteOff(60, 0, 1))
	require.NoError(t, out.ControlChange(7, 127, 16))

	assert.Equal(t, 1, port.opens)
	assert.Equal(t, [][]byte{
		{0x90, 60, 127},
		{0x80, 60, 0},
		{0xBF, 7, 127},
	}, port.sent)
}

func TestPortOutput_ClampsRanges(t *testing.T) {
	port := &fakePort{name: "Lights"}
	out := NewPortOutput(port)

	require.NoError(t, out.NoteOn(200, 300, 0))
	assert.Equal(t, []byte{0x90, 127, 127}, port.sent[0])
}

func TestPortOutput_SendError(t *testing.T) {
	port := &fakePort{name: "Lights", sendErr: errors.New("unplugged")}
	out := NewPortOutput(port)

	err := out.NoteOn(60, 127, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unplugged")
}

func TestPortOutput_Closed(t *testing.T) {
	port := &fakePort{name: "Lights"}
	out := NewPortOutput(port)
	require.NoError(t, out.NoteOn(60, 127, 1))
	require.NoError(t, out.Close())

	assert.False(t, port.open)
	assert.ErrorIs(t, out.NoteOn(60, 127, 1), ErrClosed)
}

func TestRecorder_Messages(t *testing.T) {
	r := NewRecorder("rec")
	require.NoError(t, r.NoteOn(60, 127, 2))
	require.NoError(t, r.ControlChange(10, 0, 3))

	assert.Equal(t, []Message{
		{Output: "rec", Kind: KindNoteOn, Number: 60, Value: 127, Channel: 2},
		{Output: "rec", Kind: KindCC, Number: 10, Value: 0, Channel: 3},
	}, r.Messages())

	r.Reset()
	assert.Empty(t, r.Messages())
}

func TestRegistry_Lookup(t *testing.T) {
	port := &fakePort{name: "Lights"}
	reg := NewRegistry(&fakeDriver{outs: []drivers.Out{port}}, nil)
	rec := NewRecorder("rec")
	reg.Register(rec)

	_, ok := reg.Lookup("")
	assert.False(t, ok)

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)

	got, ok := reg.Lookup("rec")
	require.True(t, ok)
	assert.Same(t, rec, got)

	first, ok := reg.Lookup("Lights")
	require.True(t, ok)
	second, _ := reg.Lookup("Lights")
	assert.Same(t, first, second)

	names, err := reg.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"Lights", "rec"}, names)

	require.NoError(t, first.NoteOn(1, 1, 1))
	require.NoError(t, reg.Close())
	assert.False(t, port.open)
}
