package obs

import (
	"testing"

	"gbgym.ai/internal/emu"
	"gbgym.ai/internal/emu/emutest"
	"gbgym.ai/internal/ram"
)

func frameOf(m *emutest.Machine) []byte {
	f := make([]byte, emu.FrameBytes)
	m.FrameRGBA(f)
	return f
}

func mustNew(t *testing.T, cfg Config) *Compositor {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestShape_Default(t *testing.T) {
	c := mustNew(t, DefaultConfig())
	if got := c.Shape(); got != (Shape{H: 72, W: 80, C: 4}) {
		t.Fatalf("shape: got %+v want 72x80x4", got)
	}

	cfg := DefaultConfig()
	cfg.ScreenMemory = false
	c = mustNew(t, cfg)
	if got := c.Shape(); got != (Shape{H: 72, W: 80, C: 3}) {
		t.Fatalf("rgb-only shape: got %+v", got)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Stride: 0, MemorySize: 255}); err == nil {
		t.Fatalf("expected stride error")
	}
	if _, err := New(Config{Stride: 2, ScreenMemory: true}); err == nil {
		t.Fatalf("expected memory size error")
	}
}

func TestCompose_ShapeInvariantAtEdges(t *testing.T) {
	m := emutest.New()
	frame := frameOf(m)
	for _, stride := range []int{1, 2, 3, 4} {
		cfg := DefaultConfig()
		cfg.Stride = stride
		c := mustNew(t, cfg)
		want := c.Shape().Len()
		positions := []ram.Position{
			{Row: 0, Col: 0, Map: 0},
			{Row: 254, Col: 254, Map: 0},
			{Row: 0, Col: 254, Map: 3},
			{Row: 254, Col: 0, Map: 3},
			{Row: 444, Col: 444, Map: 247},
			{Row: 127, Col: 127, Map: -1},
		}
		for _, p := range positions {
			got := c.Compose(frame, p)
			if len(got) != want {
				t.Fatalf("stride %d pos %+v: len %d want %d", stride, p, len(got), want)
			}
		}
	}
}

func TestCompose_DownsamplesEveryOtherPixel(t *testing.T) {
	m := emutest.New()
	m.Poke(0xD35E, 9)
	m.RunFrames(5)
	frame := frameOf(m)

	c := mustNew(t, DefaultConfig())
	out := c.Compose(frame, ram.Position{Row: 10, Col: 10, Map: 9})
	s := c.Shape()
	for _, yx := range [][2]int{{0, 0}, {1, 1}, {35, 17}, {71, 79}} {
		y, x := yx[0], yx[1]
		want := m.PixelAt(2*x, 2*y)
		i := (y*s.W + x) * s.C
		if out[i] != want[0] || out[i+1] != want[1] || out[i+2] != want[2] {
			t.Fatalf("pixel (%d,%d): got %v want %v", y, x, out[i:i+3], want[:3])
		}
	}
}

// referenceWindow builds the window by clipping then padding. It agrees with
// Window for positions inside the heatmap.
func referenceWindow(h *Heatmap, y, x, height, width int) []byte {
	hw, ww := height/2, width/2
	yMin, yMax := max(0, y-hw), min(h.Size(), y+hw+height%2)
	xMin, xMax := max(0, x-ww), min(h.Size(), x+ww+width%2)
	padTop := hw - (y - yMin)
	padLeft := ww - (x - xMin)
	out := make([]byte, height*width)
	for r := yMin; r < yMax; r++ {
		for c := xMin; c < xMax; c++ {
			out[(r-yMin+padTop)*width+(c-xMin+padLeft)] = h.At(r, c)
		}
	}
	return out
}

func TestCompose_WindowMatchesClipAndPad(t *testing.T) {
	c := mustNew(t, DefaultConfig())
	frame := make([]byte, emu.FrameBytes)
	s := c.Shape()

	// Walk a path so the heatmap has structure, ending at several edge cases.
	path := []ram.Position{}
	for i := 0; i < 255; i += 3 {
		path = append(path, ram.Position{Row: i, Col: 254 - i, Map: 1})
		path = append(path, ram.Position{Row: i, Col: i, Map: 1})
	}
	path = append(path,
		ram.Position{Row: 0, Col: 0, Map: 1},
		ram.Position{Row: 254, Col: 254, Map: 1},
		ram.Position{Row: 30, Col: 200, Map: 1},
	)
	for _, p := range path {
		out := c.Compose(frame, p)
		want := referenceWindow(c.Heatmap(1), p.Row, p.Col, s.H, s.W)
		for y := 0; y < s.H; y++ {
			for x := 0; x < s.W; x++ {
				got := out[(y*s.W+x)*s.C+3]
				if got != want[y*s.W+x] {
					t.Fatalf("pos %+v cell (%d,%d): got %d want %d", p, y, x, got, want[y*s.W+x])
				}
			}
		}
	}

	win := make([]byte, s.H*s.W)
	c.Heatmap(1).Window(win, 254, 254, s.H, s.W)
	if win[(s.H/2)*s.W+s.W/2] != Visited {
		t.Fatalf("window center should be visited")
	}
}

func TestCompose_HeatmapPersistsPerMap(t *testing.T) {
	c := mustNew(t, DefaultConfig())
	frame := make([]byte, emu.FrameBytes)
	c.Compose(frame, ram.Position{Row: 5, Col: 6, Map: 1})
	c.Compose(frame, ram.Position{Row: 7, Col: 8, Map: 2})
	c.Compose(frame, ram.Position{Row: 5, Col: 7, Map: 1})
	c.Compose(frame, ram.Position{Row: 300, Col: 8, Map: 2}) // off-grid, not marked

	if c.Maps() != 2 {
		t.Fatalf("maps: got %d want 2", c.Maps())
	}
	if got := c.Heatmap(1).Count(); got != 2 {
		t.Fatalf("map 1 visited: got %d want 2", got)
	}
	if got := c.Heatmap(2).Count(); got != 1 {
		t.Fatalf("map 2 visited: got %d want 1", got)
	}
	if c.Heatmap(1).At(5, 6) != Visited || c.Heatmap(1).At(7, 8) != 0 {
		t.Fatalf("map 1 cells mismatch")
	}

	// Current tile is the window center.
	out := c.Compose(frame, ram.Position{Row: 5, Col: 6, Map: 1})
	s := c.Shape()
	if out[((s.H/2)*s.W+s.W/2)*s.C+3] != Visited {
		t.Fatalf("center cell not visited")
	}

	c.Reset()
	if c.Maps() != 0 || c.Heatmap(1) != nil {
		t.Fatalf("reset should drop heatmaps")
	}
}
