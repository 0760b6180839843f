package env

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"gbgym.ai/internal/emu"
	"gbgym.ai/internal/emu/emutest"
	"gbgym.ai/internal/ram"
)

// walker moves the player one tile per frame in the held direction.
func walker(m *emutest.Machine) {
	switch in := m.Input(); {
	case in&emu.ButtonRight != 0:
		m.Mem[ram.PlayerXAddr]++
	case in&emu.ButtonLeft != 0:
		m.Mem[ram.PlayerXAddr]--
	case in&emu.ButtonDown != 0:
		m.Mem[ram.PlayerYAddr]++
	case in&emu.ButtonUp != 0:
		m.Mem[ram.PlayerYAddr]--
	}
}

func newMachine() *emutest.Machine {
	m := emutest.New()
	m.Mem[ram.PartySizeAddr] = 1
	m.Mem[ram.PartyLevelAddrs[0]] = 6
	m.Mem[ram.PlayerYAddr] = 100
	m.Mem[ram.PlayerXAddr] = 100
	m.OnFrame = walker
	return m
}

func newEnv(t *testing.T, m *emutest.Machine, cfg Config) *Env {
	t.Helper()
	e, err := New(m, nil, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

type recorder struct {
	steps    []Transition
	episodes []EpisodeInfo
}

func (r *recorder) OnStep(t Transition) { r.steps = append(r.steps, t) }

func (r *recorder) OnEpisodeEnd(_ int, info EpisodeInfo) { r.episodes = append(r.episodes, info) }

func TestStep_AdvancesFrameSkipAndRendersLastFrame(t *testing.T) {
	m := newMachine()
	e := newEnv(t, m, DefaultConfig())
	if _, _, err := e.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	frames, rendered := m.Frames(), m.RenderedFrames()
	m.Inputs = nil

	if _, err := e.Step(ActionRight); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if got := m.Frames() - frames; got != 24 {
		t.Fatalf("frames advanced: got %d want 24", got)
	}
	if got := m.RenderedFrames() - rendered; got != 1 {
		t.Fatalf("rendered frames: got %d want 1", got)
	}
	for i, in := range m.Inputs {
		if in != emu.ButtonRight {
			t.Fatalf("frame %d input: got %v want RIGHT", i, in)
		}
	}
	if m.Input() != 0 {
		t.Fatalf("input should be released after step, got %v", m.Input())
	}
	if !m.Graphics() {
		t.Fatalf("graphics should be left enabled")
	}
	if got := e.Position(); got.Col != 124 {
		t.Fatalf("col after 24 frames right: got %d want 124", got.Col)
	}
}

func TestStep_Deterministic(t *testing.T) {
	actions := []Action{ActionRight, ActionRight, ActionDown, ActionA, ActionLeft, ActionUp, ActionStart, ActionDown}
	run := func() ([][]byte, []float64) {
		e := newEnv(t, newMachine(), DefaultConfig())
		o, _, err := e.Reset()
		if err != nil {
			t.Fatalf("Reset: %v", err)
		}
		obs := [][]byte{append([]byte(nil), o...)}
		var rewards []float64
		for _, a := range actions {
			res, err := e.Step(a)
			if err != nil {
				t.Fatalf("Step: %v", err)
			}
			obs = append(obs, append([]byte(nil), res.Obs...))
			rewards = append(rewards, res.Reward)
		}
		return obs, rewards
	}
	o1, r1 := run()
	o2, r2 := run()
	for i := range o1 {
		if !bytes.Equal(o1[i], o2[i]) {
			t.Fatalf("observation %d differs between runs", i)
		}
	}
	for i := range r1 {
		if r1[i] != r2[i] {
			t.Fatalf("reward %d differs: %v vs %v", i, r1[i], r2[i])
		}
	}
	if r1[0] != 0 {
		t.Fatalf("first reward: got %v want 0", r1[0])
	}
	if r1[1] <= 0 {
		t.Fatalf("walking onto new tiles should pay, got %v", r1[1])
	}
}

func TestStep_LevelUpPaysScale(t *testing.T) {
	m := newMachine()
	m.OnFrame = nil
	cfg := DefaultConfig()
	e := newEnv(t, m, cfg)
	if _, _, err := e.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if res, _ := e.Step(ActionA); res.Reward != 0 {
		t.Fatalf("baseline step: got %v want 0", res.Reward)
	}
	level := e.Breakdown().Level
	m.Mem[ram.PartyLevelAddrs[0]] = 7
	res, err := e.Step(ActionA)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if d := e.Breakdown().Level - level; d != 1 {
		t.Fatalf("level term delta: got %v want 1", d)
	}
	if math.Abs(res.Reward-cfg.Reward.Scale) > 1e-9 {
		t.Fatalf("reward: got %v want %v", res.Reward, cfg.Reward.Scale)
	}
}

func TestStep_TruncatesAtMaxSteps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEpisodeSteps = 3
	m := newMachine()
	m.Mem[ram.BadgesAddr] = 0b11
	e := newEnv(t, m, cfg)
	rec := &recorder{}
	e.SetRecorder(rec)
	if _, _, err := e.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	for i := 1; i <= 3; i++ {
		res, err := e.Step(ActionRight)
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if res.Terminated {
			t.Fatalf("termination is never signaled")
		}
		if got := res.Truncated; got != (i == 3) {
			t.Fatalf("step %d truncated: got %v", i, got)
		}
		if (res.Info != nil) != (i == 3) {
			t.Fatalf("step %d info presence mismatch", i)
		}
	}
	if e.Phase() != PhaseTruncated {
		t.Fatalf("phase: got %s want truncated", e.Phase())
	}
	if _, err := e.Step(ActionRight); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("step after truncation: got %v want ErrNotRunning", err)
	}

	if len(rec.steps) != 3 || len(rec.episodes) != 1 {
		t.Fatalf("recorder: %d steps, %d episodes", len(rec.steps), len(rec.episodes))
	}
	info := rec.episodes[0]
	if info.Badges != 2 || info.Steps != 3 || info.PartySize != 1 || info.MaxLevelSum != 6 {
		t.Fatalf("episode info: %+v", info)
	}
	if info.SeenCoords != 3 {
		t.Fatalf("seen coords: got %d want 3", info.SeenCoords)
	}
	if math.Abs(info.Return-e.Return()) > 1e-12 {
		t.Fatalf("return mismatch")
	}
}

func TestReset_MidEpisodeClearsState(t *testing.T) {
	m := newMachine()
	e := newEnv(t, m, DefaultConfig())
	first, _, err := e.Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	first = append([]byte(nil), first...)
	for i := 0; i < 5; i++ {
		if _, err := e.Step(ActionDown); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	again, info, err := e.Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if info != (EpisodeInfo{}) {
		t.Fatalf("reset info: got %+v want empty", info)
	}
	if e.Steps() != 0 || e.Episode() != 2 {
		t.Fatalf("after reset: steps %d episode %d", e.Steps(), e.Episode())
	}
	if !bytes.Equal(first, again) {
		t.Fatalf("reset observation should match the first episode's")
	}
	visited := 0
	s := e.Spec().Obs
	for i := s.C - 1; i < len(again); i += s.C {
		if again[i] != 0 {
			visited++
		}
	}
	if visited != 1 {
		t.Fatalf("visited cells in window after reset: got %d want 1", visited)
	}

	res, err := e.Step(ActionRight)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Reward != 0 {
		t.Fatalf("first reward after reset: got %v want 0", res.Reward)
	}
}

func TestStep_Errors(t *testing.T) {
	e := newEnv(t, newMachine(), DefaultConfig())
	if _, err := e.Step(ActionA); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("step before reset: got %v", err)
	}
	if _, _, err := e.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	for _, a := range []Action{-1, NumActions, 100} {
		if _, err := e.Step(a); !errors.Is(err, ErrBadAction) {
			t.Fatalf("action %d: got %v want ErrBadAction", a, err)
		}
	}
	if e.Steps() != 0 {
		t.Fatalf("rejected actions must not advance, steps=%d", e.Steps())
	}
}

func TestNew_RejectsBadState(t *testing.T) {
	if _, err := New(emutest.New(), []byte{1, 2, 3}, DefaultConfig()); !errors.Is(err, emu.ErrBadState) {
		t.Fatalf("bad state: got %v want ErrBadState", err)
	}
	cfg := DefaultConfig()
	cfg.FrameSkip = 0
	if _, err := New(emutest.New(), nil, cfg); err == nil {
		t.Fatalf("expected frame skip error")
	}
	if _, err := New(nil, nil, DefaultConfig()); err == nil {
		t.Fatalf("expected nil engine error")
	}
}

func TestLoadState_BecomesStartingPoint(t *testing.T) {
	m := newMachine()
	e := newEnv(t, m, DefaultConfig())
	if _, _, err := e.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	for i := 0; i < 3; i++ {
		e.Step(ActionRight)
	}
	blob, err := e.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := e.LoadState(blob); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if e.Phase() != PhaseReady {
		t.Fatalf("phase after load: %s", e.Phase())
	}
	if _, _, err := e.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := e.Position().Col; got != 100+3*24 {
		t.Fatalf("col after reset from saved state: got %d want %d", got, 100+3*24)
	}
}

func TestSpecAndActions(t *testing.T) {
	e := newEnv(t, newMachine(), DefaultConfig())
	sp := e.Spec()
	if sp.Actions != 8 || sp.Obs.H != 72 || sp.Obs.W != 80 || sp.Obs.C != 4 {
		t.Fatalf("spec: %+v", sp)
	}
	want := []emu.Buttons{emu.ButtonDown, emu.ButtonLeft, emu.ButtonRight, emu.ButtonUp, emu.ButtonA, emu.ButtonB, emu.ButtonStart, emu.ButtonSelect}
	for i, b := range want {
		if got := Action(i).Buttons(); got != b {
			t.Fatalf("action %d: got %v want %v", i, got, b)
		}
	}
	if Action(9).Buttons() != 0 || Action(9).String() != "Action(9)" {
		t.Fatalf("invalid action handling")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := e.Reset(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("reset after close: got %v", err)
	}
}
