package statefile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gbgym.ai/internal/emu/emutest"
)

func TestWriteRead_RoundTripsEngineState(t *testing.T) {
	m := emutest.New()
	m.Poke(0xD35E, 40)
	m.RunFrames(17)
	blob, err := m.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	path := filepath.Join(t.TempDir(), "states", "start.state")
	if err := Write(path, Header{ROMTitle: "POKEMON RED", Episode: 3, Step: 9}, blob); err != nil {
		t.Fatalf("Write: %v", err)
	}
	h, got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Fatalf("blob mismatch")
	}
	if h.Version != Version || h.Size != len(blob) || h.ROMTitle != "POKEMON RED" || h.Episode != 3 || h.Step != 9 {
		t.Fatalf("header: %+v", h)
	}

	fresh := emutest.New()
	if err := fresh.LoadState(got); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if fresh.Frames() != 17 || fresh.Mem[0xD35E] != 40 {
		t.Fatalf("restored machine: frames %d map %d", fresh.Frames(), fresh.Mem[0xD35E])
	}

	raw, _ := os.ReadFile(path)
	if len(raw) >= len(blob) {
		t.Fatalf("expected compression: %d >= %d", len(raw), len(blob))
	}
}

func TestRead_RawBlob(t *testing.T) {
	blob := []byte("not compressed at all")
	path := filepath.Join(t.TempDir(), "raw.state")
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	h, got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, blob) || h.Size != len(blob) {
		t.Fatalf("raw read: %+v %q", h, got)
	}
}

func TestRead_Truncated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.state")
	if err := Write(path, Header{}, bytes.Repeat([]byte{7}, 4096)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw, _ := os.ReadFile(path)
	cut := filepath.Join(dir, "cut.state")
	if err := os.WriteFile(cut, raw[:len(raw)/2], 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := Read(cut); err == nil {
		t.Fatalf("expected error for truncated file")
	}
	if _, _, err := Read(filepath.Join(dir, "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing: got %v", err)
	}
}
