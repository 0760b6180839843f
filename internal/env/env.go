// Package env is the step controller: it drives one emulation core through
// fixed-length steps and turns each resulting snapshot into an observation
// and a shaped reward.
package env

import (
	"errors"
	"fmt"

	"gbgym.ai/internal/emu"
	"gbgym.ai/internal/obs"
	"gbgym.ai/internal/ram"
	"gbgym.ai/internal/reward"
)

var (
	ErrNotRunning = errors.New("env: episode not running")
	ErrBadAction  = errors.New("env: action out of range")
)

type Config struct {
	FrameSkip       int
	MaxEpisodeSteps int
	RenderAudio     bool

	Obs    obs.Config
	Reward reward.Config
}

func DefaultConfig() Config {
	return Config{
		FrameSkip:       24,
		MaxEpisodeSteps: 20480,
		Obs:             obs.DefaultConfig(),
		Reward:          reward.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if c.FrameSkip < 1 {
		return fmt.Errorf("env: frame_skip must be >= 1, got %d", c.FrameSkip)
	}
	if c.MaxEpisodeSteps < 1 {
		return fmt.Errorf("env: max_episode_steps must be >= 1, got %d", c.MaxEpisodeSteps)
	}
	return c.Reward.Validate()
}

type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseReady
	PhaseRunning
	PhaseTruncated
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseRunning:
		return "running"
	case PhaseTruncated:
		return "truncated"
	default:
		return "uninitialized"
	}
}

// Spec is the fixed interface an agent trains against.
type Spec struct {
	Obs             obs.Shape `json:"obs"`
	Actions         int       `json:"actions"`
	FrameSkip       int       `json:"frame_skip"`
	MaxEpisodeSteps int       `json:"max_episode_steps"`
}

// EpisodeInfo summarizes a finished episode.
type EpisodeInfo struct {
	reward.Stats
	Steps  int     `json:"steps"`
	Return float64 `json:"return"`
}

type StepResult struct {
	// Obs is owned by the Env and valid until the next Reset or Step.
	Obs        []byte
	Reward     float64
	Terminated bool
	Truncated  bool
	// Info is set only on the step that ends the episode.
	Info *EpisodeInfo
}

// Env owns one engine. It is not safe for concurrent use; run one Env per
// goroutine.
type Env struct {
	engine  emu.Engine
	cfg     Config
	initial []byte

	comp   *obs.Compositor
	shaper *reward.Shaper
	rec    Recorder

	mem   []byte
	frame []byte
	obs   []byte
	pos   ram.Position

	phase   Phase
	episode int
	steps   int
	ret     float64
}

// New wraps engine. initialState is loaded immediately so a corrupt blob
// fails here rather than on the first Reset; when nil, the engine's current
// state becomes the fixed starting point for every episode.
func New(engine emu.Engine, initialState []byte, cfg Config) (*Env, error) {
	if engine == nil {
		return nil, errors.New("env: nil engine")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	comp, err := obs.New(cfg.Obs)
	if err != nil {
		return nil, err
	}
	shaper, err := reward.New(cfg.Reward)
	if err != nil {
		return nil, err
	}

	engine.SetRender(true, cfg.RenderAudio)
	if initialState == nil {
		initialState, err = engine.SaveState()
		if err != nil {
			return nil, fmt.Errorf("env: capture initial state: %w", err)
		}
	} else if err := engine.LoadState(initialState); err != nil {
		return nil, fmt.Errorf("env: load initial state: %w", err)
	}

	return &Env{
		engine:  engine,
		cfg:     cfg,
		initial: append([]byte(nil), initialState...),
		comp:    comp,
		shaper:  shaper,
		mem:     make([]byte, emu.MemorySize),
		frame:   make([]byte, emu.FrameBytes),
		phase:   PhaseReady,
	}, nil
}

// SetRecorder installs r, replacing any previous recorder. nil disables
// recording.
func (e *Env) SetRecorder(r Recorder) { e.rec = r }

func (e *Env) Config() Config { return e.cfg }

func (e *Env) Spec() Spec {
	return Spec{
		Obs:             e.comp.Shape(),
		Actions:         NumActions,
		FrameSkip:       e.cfg.FrameSkip,
		MaxEpisodeSteps: e.cfg.MaxEpisodeSteps,
	}
}

func (e *Env) Phase() Phase { return e.phase }

func (e *Env) Steps() int { return e.steps }

func (e *Env) Episode() int { return e.episode }

// Return is the undiscounted reward accumulated this episode.
func (e *Env) Return() float64 { return e.ret }

// Position is the decoded player position of the latest snapshot.
func (e *Env) Position() ram.Position { return e.pos }

// Memory is the latest snapshot. It is overwritten by the next Reset or Step.
func (e *Env) Memory() []byte { return e.mem }

func (e *Env) Breakdown() reward.Breakdown { return e.shaper.Breakdown() }

func (e *Env) Potential() float64 { return e.shaper.Potential() }

// Reset restores the starting state, clears every episode-scoped structure,
// and returns the first observation with an empty info. The first Step
// afterwards yields a zero reward.
func (e *Env) Reset() ([]byte, EpisodeInfo, error) {
	if e.phase == PhaseUninitialized {
		return nil, EpisodeInfo{}, ErrNotRunning
	}
	if err := e.engine.LoadState(e.initial); err != nil {
		return nil, EpisodeInfo{}, fmt.Errorf("env: reset: %w", err)
	}
	e.engine.SetInput(0)
	e.engine.SetRender(true, e.cfg.RenderAudio)

	e.comp.Reset()
	e.shaper.Reset()
	e.steps = 0
	e.ret = 0
	e.episode++

	e.snapshot()
	e.obs = e.comp.Compose(e.frame, e.pos)
	e.phase = PhaseRunning
	return e.obs, EpisodeInfo{}, nil
}

// Step holds action for FrameSkip frames. Only the last frame is rendered.
func (e *Env) Step(action Action) (StepResult, error) {
	if e.phase != PhaseRunning {
		return StepResult{}, fmt.Errorf("%w (phase %s)", ErrNotRunning, e.phase)
	}
	if !action.Valid() {
		return StepResult{}, fmt.Errorf("%w: %d", ErrBadAction, int(action))
	}

	audio := e.cfg.RenderAudio
	e.engine.SetInput(action.Buttons())
	e.engine.SetRender(false, audio)
	e.engine.RunFrames(e.cfg.FrameSkip - 1)
	e.engine.SetRender(true, audio)
	e.engine.Frame()
	e.engine.SetInput(0)

	e.steps++
	e.snapshot()
	r := e.shaper.Update(e.mem)
	e.obs = e.comp.Compose(e.frame, e.pos)
	e.ret += r

	res := StepResult{Obs: e.obs, Reward: r}
	if e.steps >= e.cfg.MaxEpisodeSteps {
		res.Truncated = true
		e.phase = PhaseTruncated
		info := e.info()
		res.Info = &info
	}

	if e.rec != nil {
		e.rec.OnStep(Transition{
			Episode:   e.episode,
			Step:      e.steps,
			Action:    action,
			Reward:    r,
			Potential: e.shaper.Potential(),
			Position:  e.pos,
			Badges:    ram.Badges(e.mem),
			Events:    ram.EventTotal(e.mem),
			Terms:     e.shaper.Breakdown(),
		})
		if res.Info != nil {
			e.rec.OnEpisodeEnd(e.episode, *res.Info)
		}
	}
	return res, nil
}

// Render returns a copy of the latest observation.
func (e *Env) Render() []byte {
	return append([]byte(nil), e.obs...)
}

// Frame returns a copy of the latest full-resolution RGBA frame.
func (e *Env) Frame() []byte {
	return append([]byte(nil), e.frame...)
}

// SaveState snapshots the engine mid-episode. Episode bookkeeping (heatmaps,
// reward state) is not part of the blob.
func (e *Env) SaveState() ([]byte, error) {
	return e.engine.SaveState()
}

// LoadState replaces the starting state used by later resets.
func (e *Env) LoadState(b []byte) error {
	if err := e.engine.LoadState(b); err != nil {
		return fmt.Errorf("env: load state: %w", err)
	}
	e.initial = append(e.initial[:0], b...)
	e.phase = PhaseReady
	return nil
}

func (e *Env) Close() error {
	e.phase = PhaseUninitialized
	return e.engine.Close()
}

func (e *Env) snapshot() {
	e.engine.CopyMemory(e.mem)
	e.engine.FrameRGBA(e.frame)
	e.pos = ram.ReadPosition(e.mem)
}

func (e *Env) info() EpisodeInfo {
	return EpisodeInfo{Stats: e.shaper.Stats(), Steps: e.steps, Return: e.ret}
}
