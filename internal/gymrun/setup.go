// Package gymrun wires the pieces a binary needs to host environments: the
// cartridge, the starting state, the tuning, and run recording.
package gymrun

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gbgym.ai/internal/emu"
	"gbgym.ai/internal/emu/zgbc"
	"gbgym.ai/internal/env"
	"gbgym.ai/internal/persistence/statefile"
	"gbgym.ai/internal/romfile"
	"gbgym.ai/internal/tuning"
)

// Opener starts an emulation core for a cartridge image.
type Opener func(rom []byte) (emu.Engine, error)

// OpenZGBC opens the native core.
func OpenZGBC(rom []byte) (emu.Engine, error) {
	c, err := zgbc.Open(rom)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type Options struct {
	ROMPath    string
	StatePath  string
	TuningPath string
	// Open defaults to OpenZGBC.
	Open Opener
}

// Setup is everything needed to build identical environments.
type Setup struct {
	ROM    romfile.ROM
	Tuning tuning.Tuning
	// State is the episode start state; nil boots the cartridge.
	State []byte

	open Opener
}

func Load(opts Options) (*Setup, error) {
	if strings.TrimSpace(opts.ROMPath) == "" {
		return nil, errors.New("gymrun: no ROM path")
	}
	rom, err := romfile.Load(opts.ROMPath)
	if err != nil {
		return nil, err
	}
	t, err := tuning.Load(opts.TuningPath)
	if err != nil {
		return nil, err
	}
	s := &Setup{ROM: rom, Tuning: t, open: opts.Open}
	if s.open == nil {
		s.open = OpenZGBC
	}
	if p := strings.TrimSpace(opts.StatePath); p != "" {
		h, blob, err := statefile.Read(p)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", filepath.Base(p), err)
		}
		if h.ROMTitle != "" && h.ROMTitle != rom.Title {
			return nil, fmt.Errorf("state %s was saved from %q, cartridge is %q", filepath.Base(p), h.ROMTitle, rom.Title)
		}
		s.State = blob
	}
	return s, nil
}

// NewEnv opens a fresh core and wraps it.
func (s *Setup) NewEnv() (*env.Env, error) {
	core, err := s.open(s.ROM.Data)
	if err != nil {
		return nil, err
	}
	e, err := env.New(core, s.State, s.Tuning.EnvConfig())
	if err != nil {
		_ = core.Close()
		return nil, err
	}
	return e, nil
}

// SaveState writes e's current state under dir and returns the path.
func (s *Setup) SaveState(dir string, envID int, e *env.Env) (string, error) {
	blob, err := e.SaveState()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("env%d-ep%d-step%d.state.zst", envID, e.Episode(), e.Steps()))
	h := statefile.Header{
		Version:  statefile.Version,
		ROMTitle: s.ROM.Title,
		Episode:  e.Episode(),
		Step:     e.Steps(),
		Size:     len(blob),
	}
	if err := statefile.Write(path, h, blob); err != nil {
		return "", err
	}
	return path, nil
}
