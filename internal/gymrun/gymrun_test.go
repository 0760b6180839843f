package gymrun

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"gbgym.ai/internal/emu"
	"gbgym.ai/internal/emu/emutest"
	"gbgym.ai/internal/env"
	"gbgym.ai/internal/persistence/statefile"
	"gbgym.ai/internal/ram"
)

func writeROM(t *testing.T, dir string) string {
	t.Helper()
	rom := make([]byte, 0x8000)
	copy(rom[0x134:], "POKEMON RED")
	rom[0x147] = 0x13
	rom[0x148] = 0x05
	var sum uint8
	for _, b := range rom[0x134:0x14D] {
		sum = sum - b - 1
	}
	rom[0x14D] = sum
	path := filepath.Join(dir, "red.gb")
	if err := os.WriteFile(path, rom, 0o644); err != nil {
		t.Fatalf("write rom: %v", err)
	}
	return path
}

func writeTuning(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "gym.yaml")
	body := "env:\n  frame_skip: 2\n  max_episode_steps: 2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write tuning: %v", err)
	}
	return path
}

func openMachine(rom []byte) (emu.Engine, error) {
	m := emutest.New()
	m.Mem[ram.PartySizeAddr] = 1
	m.Mem[ram.PartyLevelAddrs[0]] = 5
	return m, nil
}

func TestSetup_RecordsARun(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(Options{ROMPath: writeROM(t, dir), TuningPath: writeTuning(t, dir), Open: openMachine})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ROM.Title != "POKEMON RED" || s.State != nil || s.Tuning.Env.MaxEpisodeSteps != 2 {
		t.Fatalf("setup: title=%q state=%v tuning=%+v", s.ROM.Title, s.State != nil, s.Tuning.Env)
	}

	data := filepath.Join(dir, "data")
	rec, err := OpenRecording(s, RecordOptions{DataDir: data, RunID: "r1", Transitions: true, Envs: 1})
	if err != nil {
		t.Fatalf("OpenRecording: %v", err)
	}
	e, err := s.NewEnv()
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	e.SetRecorder(rec.Recorder(0))
	if _, _, err := e.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := e.Step(env.ActionA); err != nil {
		t.Fatalf("Step: %v", err)
	}
	path, err := s.SaveState(rec.StateDir(), 0, e)
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	rec.RecordState(0, e.Episode(), e.Steps(), path)
	res, err := e.Step(env.ActionB)
	if err != nil || !res.Truncated {
		t.Fatalf("final step: %+v err=%v", res, err)
	}

	var metrics bytes.Buffer
	rec.WriteMetrics(&metrics)
	if !strings.Contains(metrics.String(), `gbgym_log_lines_total{run="r1",log="transitions"} 2`) {
		t.Fatalf("metrics:\n%s", metrics.String())
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	h, blob, err := statefile.Read(path)
	if err != nil {
		t.Fatalf("statefile.Read: %v", err)
	}
	if h.ROMTitle != "POKEMON RED" || h.Episode != 1 || h.Step != 1 || len(blob) != h.Size {
		t.Fatalf("state header: %+v", h)
	}
	if _, err := os.Stat(filepath.Join(data, "runs", "r1", "tuning.json")); err != nil {
		t.Fatalf("tuning.json: %v", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(data, "index.db"))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var steps, states int
	if err := db.QueryRow(`SELECT steps FROM episodes WHERE run_id='r1' AND env=0 AND episode=1`).Scan(&steps); err != nil || steps != 2 {
		t.Fatalf("episode row: steps=%d err=%v", steps, err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM states WHERE run_id='r1'`).Scan(&states); err != nil || states != 1 {
		t.Fatalf("state rows: %d err=%v", states, err)
	}

	// The saved state becomes the start of a new setup.
	s2, err := Load(Options{ROMPath: writeROM(t, dir), StatePath: path, Open: openMachine})
	if err != nil {
		t.Fatalf("Load with state: %v", err)
	}
	if !bytes.Equal(s2.State, blob) {
		t.Fatalf("state blob not loaded")
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(Options{}); err == nil {
		t.Fatalf("expected error for empty ROM path")
	}
	rom := writeROM(t, dir)
	statePath := filepath.Join(dir, "blue.state.zst")
	if err := statefile.Write(statePath, statefile.Header{Version: statefile.Version, ROMTitle: "POKEMON BLUE", Size: 3}, []byte{1, 2, 3}); err != nil {
		t.Fatalf("statefile.Write: %v", err)
	}
	if _, err := Load(Options{ROMPath: rom, StatePath: statePath, Open: openMachine}); err == nil {
		t.Fatalf("expected cartridge mismatch error")
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("env:\n  frame_skip: -1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(Options{ROMPath: rom, TuningPath: bad, Open: openMachine}); err == nil {
		t.Fatalf("expected tuning error")
	}
}
