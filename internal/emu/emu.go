// Package emu defines the boundary between the environment and a Game Boy
// emulation core. The core owns CPU/PPU/APU execution and save-state
// serialization; everything above this package only injects input, advances
// frames, and reads memory and pixels back out.
package emu

import "errors"

const (
	ScreenWidth  = 160
	ScreenHeight = 144

	// FrameBytes is the size of one RGBA frame as returned by FrameRGBA.
	FrameBytes = ScreenWidth * ScreenHeight * 4

	// MemorySize is the size of the flat address space copied by CopyMemory.
	MemorySize = 0x10000
)

// ErrBadState is returned by LoadState for empty, truncated, or otherwise
// unusable save-state blobs.
var ErrBadState = errors.New("emu: bad save state")

// Buttons is the joypad bitmask passed to SetInput.
type Buttons uint8

const (
	ButtonA Buttons = 1 << iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonRight
	ButtonLeft
	ButtonUp
	ButtonDown
)

func (b Buttons) String() string {
	if b == 0 {
		return "NONE"
	}
	names := [...]string{"A", "B", "SELECT", "START", "RIGHT", "LEFT", "UP", "DOWN"}
	out := ""
	for i, n := range names {
		if b&(1<<i) == 0 {
			continue
		}
		if out != "" {
			out += "+"
		}
		out += n
	}
	return out
}

// Engine is the narrow surface of an emulation core that the environment
// consumes. Implementations are not safe for concurrent use; one Engine is
// owned by exactly one environment.
type Engine interface {
	// Frame advances exactly one frame.
	Frame()

	// RunFrames advances n frames. n <= 0 is a no-op.
	RunFrames(n int)

	// SetInput sets the held joypad buttons for subsequent frames.
	SetInput(b Buttons)

	// SetRender toggles frame buffer and audio population. Disabling graphics
	// on frames that are never observed is purely a performance measure.
	SetRender(graphics, audio bool)

	// CopyMemory copies the flat 64KB address space into dst, which must be
	// at least MemorySize bytes.
	CopyMemory(dst []byte)

	// FrameRGBA copies the last rendered frame into dst as RGBA, row-major,
	// ScreenWidth x ScreenHeight. dst must be at least FrameBytes bytes.
	FrameRGBA(dst []byte)

	Read(addr uint16) uint8
	Write(addr uint16, v uint8)

	SaveState() ([]byte, error)
	LoadState(b []byte) error

	Close() error
}
