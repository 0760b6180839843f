// Package obs composes the fixed-shape agent observation: a strided
// downsample of the RGBA frame plus, optionally, a window of the current
// map's visited-tile heatmap centered on the player.
package obs

import (
	"fmt"

	"gbgym.ai/internal/emu"
	"gbgym.ai/internal/ram"
)

// Visited is the heatmap value written for a visited tile.
const Visited = 0xFF

type Config struct {
	// Stride is the integer row/column step used to downsample the frame.
	Stride int
	// ScreenMemory appends the heatmap window as a fourth channel.
	ScreenMemory bool
	// MemorySize is the side length of each per-map heatmap.
	MemorySize int
}

func DefaultConfig() Config {
	return Config{Stride: 2, ScreenMemory: true, MemorySize: 255}
}

// Shape is the observation layout: H rows of W pixels of C channels, stored
// row-major as [h][w][c] uint8.
type Shape struct {
	H int `json:"h"`
	W int `json:"w"`
	C int `json:"c"`
}

func (s Shape) Len() int { return s.H * s.W * s.C }

// Compositor owns the episode's heatmaps and the observation buffer. It is
// not safe for concurrent use.
type Compositor struct {
	cfg   Config
	shape Shape

	maps map[int]*Heatmap
	buf  []byte
	win  []byte
}

func New(cfg Config) (*Compositor, error) {
	if cfg.Stride <= 0 {
		return nil, fmt.Errorf("obs: stride must be positive, got %d", cfg.Stride)
	}
	if cfg.ScreenMemory && cfg.MemorySize <= 0 {
		return nil, fmt.Errorf("obs: memory size must be positive, got %d", cfg.MemorySize)
	}
	s := Shape{
		H: (emu.ScreenHeight + cfg.Stride - 1) / cfg.Stride,
		W: (emu.ScreenWidth + cfg.Stride - 1) / cfg.Stride,
		C: 3,
	}
	if cfg.ScreenMemory {
		s.C++
	}
	c := &Compositor{
		cfg:   cfg,
		shape: s,
		maps:  make(map[int]*Heatmap),
		buf:   make([]byte, s.Len()),
	}
	if cfg.ScreenMemory {
		c.win = make([]byte, s.H*s.W)
	}
	return c, nil
}

func (c *Compositor) Shape() Shape { return c.shape }

// Reset drops every heatmap.
func (c *Compositor) Reset() {
	clear(c.maps)
}

// Heatmap returns the heatmap for mapID, or nil if the map was never visited.
func (c *Compositor) Heatmap(mapID int) *Heatmap { return c.maps[mapID] }

// Maps is the number of maps with a heatmap.
func (c *Compositor) Maps() int { return len(c.maps) }

func (c *Compositor) heatmap(mapID int) *Heatmap {
	h := c.maps[mapID]
	if h == nil {
		h = newHeatmap(c.cfg.MemorySize)
		c.maps[mapID] = h
	}
	return h
}

// Compose marks pos visited and renders the observation for frame (RGBA,
// emu.ScreenWidth x emu.ScreenHeight). The returned slice is owned by the
// compositor and is overwritten by the next call.
func (c *Compositor) Compose(frame []byte, pos ram.Position) []byte {
	var hm *Heatmap
	if c.cfg.ScreenMemory {
		hm = c.heatmap(pos.Map)
		hm.Mark(pos.Row, pos.Col)
	}

	s := c.shape
	stride := c.cfg.Stride
	if hm != nil {
		hm.Window(c.win, pos.Row, pos.Col, s.H, s.W)
	}
	out := c.buf
	i := 0
	for y := 0; y < s.H; y++ {
		src := (y * stride * emu.ScreenWidth) * 4
		for x := 0; x < s.W; x++ {
			p := src + x*stride*4
			out[i] = frame[p]
			out[i+1] = frame[p+1]
			out[i+2] = frame[p+2]
			if hm != nil {
				out[i+3] = c.win[y*s.W+x]
			}
			i += s.C
		}
	}
	return out
}

// Window copies the h x w window of the heatmap centered on (row, col) into
// dst. Cells outside the heatmap are zero, so the window never shrinks near
// map edges.
func (h *Heatmap) Window(dst []byte, row, col, height, width int) {
	top, left := row-height/2, col-width/2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dst[y*width+x] = h.At(top+y, left+x)
		}
	}
}

// Heatmap is a square single-channel grid of visited tiles.
type Heatmap struct {
	size  int
	cells []byte
}

func newHeatmap(size int) *Heatmap {
	return &Heatmap{size: size, cells: make([]byte, size*size)}
}

func (h *Heatmap) Size() int { return h.size }

// At returns the cell value, or zero outside the grid.
func (h *Heatmap) At(row, col int) byte {
	if row < 0 || col < 0 || row >= h.size || col >= h.size {
		return 0
	}
	return h.cells[row*h.size+col]
}

// Mark sets (row, col) visited. Coordinates outside the grid are ignored.
func (h *Heatmap) Mark(row, col int) {
	if row < 0 || col < 0 || row >= h.size || col >= h.size {
		return
	}
	h.cells[row*h.size+col] = Visited
}

// Count is the number of visited cells.
func (h *Heatmap) Count() int {
	n := 0
	for _, v := range h.cells {
		if v != 0 {
			n++
		}
	}
	return n
}
