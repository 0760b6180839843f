//go:build cgo && zgbc

// Package zgbc binds the native zgbc Game Boy core (libzgbc) as an
// emu.Engine. Build with `-tags zgbc` and libzgbc on the linker path.
package zgbc

/*
#cgo LDFLAGS: -lzgbc
#include <stdint.h>
#include <stdbool.h>
#include <stddef.h>
#include <stdlib.h>

typedef struct zgbc_t zgbc_t;

zgbc_t* zgbc_new(void);
void zgbc_free(zgbc_t* gb);
bool zgbc_load_rom(zgbc_t* gb, const uint8_t* data, size_t len);
void zgbc_frame(zgbc_t* gb);
void zgbc_run_frames(zgbc_t* gb, size_t count);
void zgbc_set_input(zgbc_t* gb, uint8_t buttons);
void zgbc_set_render_graphics(zgbc_t* gb, bool enabled);
void zgbc_set_render_audio(zgbc_t* gb, bool enabled);
void zgbc_get_frame_rgba(zgbc_t* gb, uint32_t* out);
uint8_t zgbc_read(zgbc_t* gb, uint16_t addr);
void zgbc_write(zgbc_t* gb, uint16_t addr, uint8_t val);
void zgbc_copy_memory(zgbc_t* gb, uint8_t* out, size_t len);
size_t zgbc_save_state_size(void);
size_t zgbc_save_state(zgbc_t* gb, uint8_t* out);
void zgbc_load_state(zgbc_t* gb, const uint8_t* data);
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"gbgym.ai/internal/emu"
)

// Core owns one native zgbc instance. The ROM image is kept in C memory for
// the lifetime of the core since the native side may reference it.
type Core struct {
	h   *C.zgbc_t
	rom unsafe.Pointer

	stateSize int
}

var _ emu.Engine = (*Core)(nil)

// Open creates a core, loads rom, and skips the boot ROM.
func Open(rom []byte) (*Core, error) {
	if len(rom) == 0 {
		return nil, errors.New("zgbc: empty rom")
	}
	h := C.zgbc_new()
	if h == nil {
		return nil, errors.New("zgbc: zgbc_new returned NULL")
	}
	c := &Core{h: h, stateSize: int(C.zgbc_save_state_size())}
	c.rom = C.CBytes(rom)
	if !C.zgbc_load_rom(h, (*C.uint8_t)(c.rom), C.size_t(len(rom))) {
		_ = c.Close()
		return nil, errors.New("zgbc: zgbc_load_rom failed")
	}
	// Disable the boot ROM overlay.
	C.zgbc_write(h, 0xFF50, 1)
	C.zgbc_set_render_graphics(h, true)
	C.zgbc_set_render_audio(h, false)
	return c, nil
}

func (c *Core) Frame() { C.zgbc_frame(c.h) }

func (c *Core) RunFrames(n int) {
	if n <= 0 {
		return
	}
	C.zgbc_run_frames(c.h, C.size_t(n))
}

func (c *Core) SetInput(b emu.Buttons) { C.zgbc_set_input(c.h, C.uint8_t(b)) }

func (c *Core) SetRender(graphics, audio bool) {
	C.zgbc_set_render_graphics(c.h, C.bool(graphics))
	C.zgbc_set_render_audio(c.h, C.bool(audio))
}

func (c *Core) CopyMemory(dst []byte) {
	if len(dst) < emu.MemorySize {
		panic("zgbc: CopyMemory destination too small")
	}
	C.zgbc_copy_memory(c.h, (*C.uint8_t)(unsafe.Pointer(&dst[0])), C.size_t(emu.MemorySize))
}

func (c *Core) FrameRGBA(dst []byte) {
	if len(dst) < emu.FrameBytes {
		panic("zgbc: FrameRGBA destination too small")
	}
	C.zgbc_get_frame_rgba(c.h, (*C.uint32_t)(unsafe.Pointer(&dst[0])))
}

func (c *Core) Read(addr uint16) uint8 { return uint8(C.zgbc_read(c.h, C.uint16_t(addr))) }

func (c *Core) Write(addr uint16, v uint8) { C.zgbc_write(c.h, C.uint16_t(addr), C.uint8_t(v)) }

func (c *Core) SaveState() ([]byte, error) {
	buf := make([]byte, c.stateSize)
	n := int(C.zgbc_save_state(c.h, (*C.uint8_t)(unsafe.Pointer(&buf[0]))))
	if n <= 0 || n > len(buf) {
		return nil, fmt.Errorf("zgbc: save state wrote %d bytes", n)
	}
	return buf[:n], nil
}

// LoadState restores a blob produced by SaveState. The native loader does no
// validation of its own, so the size is checked here.
func (c *Core) LoadState(b []byte) error {
	if len(b) < c.stateSize {
		return fmt.Errorf("%w: size %d, want %d", emu.ErrBadState, len(b), c.stateSize)
	}
	C.zgbc_load_state(c.h, (*C.uint8_t)(unsafe.Pointer(&b[0])))
	return nil
}

func (c *Core) Close() error {
	if c.h != nil {
		C.zgbc_free(c.h)
		c.h = nil
	}
	if c.rom != nil {
		C.free(c.rom)
		c.rom = nil
	}
	return nil
}
