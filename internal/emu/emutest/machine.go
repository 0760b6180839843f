// Package emutest provides a deterministic, scripted emu.Engine for tests.
// It runs no CPU: memory only changes through Write, Poke, or the OnFrame
// hook, and the frame buffer is a pure function of the frame counter and
// memory.
package emutest

import (
	"encoding/binary"
	"fmt"

	"gbgym.ai/internal/emu"
)

const stateSize = 8 + 1 + emu.MemorySize

// Machine is a scripted stand-in for a native core.
type Machine struct {
	Mem [emu.MemorySize]byte

	// OnFrame runs after every advanced frame, before rendering.
	OnFrame func(m *Machine)

	frames   uint64
	rendered uint64
	input    emu.Buttons
	graphics bool
	audio    bool
	closed   bool

	// Inputs records the held buttons for every advanced frame.
	Inputs []emu.Buttons

	frame [emu.FrameBytes]byte
}

var _ emu.Engine = (*Machine)(nil)

func New() *Machine {
	m := &Machine{graphics: true}
	m.render()
	return m
}

// Frames reports how many frames have been advanced in total.
func (m *Machine) Frames() uint64 { return m.frames }

// RenderedFrames reports how many advanced frames had graphics enabled.
func (m *Machine) RenderedFrames() uint64 { return m.rendered }

func (m *Machine) Input() emu.Buttons { return m.input }

func (m *Machine) Graphics() bool { return m.graphics }

func (m *Machine) Closed() bool { return m.closed }

// Poke writes several consecutive bytes starting at addr.
func (m *Machine) Poke(addr uint16, vals ...byte) {
	for i, v := range vals {
		m.Mem[int(addr)+i] = v
	}
}

// PokeU16 writes a big-endian 16-bit value, matching how the game stores HP.
func (m *Machine) PokeU16(addr uint16, v uint16) {
	m.Mem[addr] = byte(v >> 8)
	m.Mem[addr+1] = byte(v)
}

func (m *Machine) Frame() {
	m.frames++
	m.Inputs = append(m.Inputs, m.input)
	if m.OnFrame != nil {
		m.OnFrame(m)
	}
	if m.graphics {
		m.rendered++
		m.render()
	}
}

func (m *Machine) RunFrames(n int) {
	for i := 0; i < n; i++ {
		m.Frame()
	}
}

func (m *Machine) SetInput(b emu.Buttons) { m.input = b }

func (m *Machine) SetRender(graphics, audio bool) {
	m.graphics = graphics
	m.audio = audio
}

func (m *Machine) CopyMemory(dst []byte) { copy(dst, m.Mem[:]) }

func (m *Machine) FrameRGBA(dst []byte) { copy(dst, m.frame[:]) }

func (m *Machine) Read(addr uint16) uint8 { return m.Mem[addr] }

func (m *Machine) Write(addr uint16, v uint8) { m.Mem[addr] = v }

func (m *Machine) SaveState() ([]byte, error) {
	b := make([]byte, stateSize)
	binary.BigEndian.PutUint64(b[0:8], m.frames)
	b[8] = byte(m.input)
	copy(b[9:], m.Mem[:])
	return b, nil
}

func (m *Machine) LoadState(b []byte) error {
	if len(b) != stateSize {
		return fmt.Errorf("%w: size %d, want %d", emu.ErrBadState, len(b), stateSize)
	}
	m.frames = binary.BigEndian.Uint64(b[0:8])
	m.input = emu.Buttons(b[8])
	copy(m.Mem[:], b[9:])
	m.render()
	return nil
}

func (m *Machine) Close() error {
	m.closed = true
	return nil
}

// PixelAt returns the RGBA value the machine renders at (x, y) for its
// current state.
func (m *Machine) PixelAt(x, y int) [4]byte {
	return [4]byte{byte(x) + byte(m.frames), byte(y), m.Mem[0xD35E], 0xFF}
}

func (m *Machine) render() {
	i := 0
	for y := 0; y < emu.ScreenHeight; y++ {
		for x := 0; x < emu.ScreenWidth; x++ {
			p := m.PixelAt(x, y)
			copy(m.frame[i:i+4], p[:])
			i += 4
		}
	}
}
