package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"gbgym.ai/internal/env"
	"gbgym.ai/internal/obs"
	"gbgym.ai/internal/reward"
)

type Tuning struct {
	Env         Env         `yaml:"env" json:"env"`
	Observation Observation `yaml:"observation" json:"observation"`
	Reward      Reward      `yaml:"reward" json:"reward"`
}

type Env struct {
	FrameSkip       int  `yaml:"frame_skip" json:"frame_skip"`
	MaxEpisodeSteps int  `yaml:"max_episode_steps" json:"max_episode_steps"`
	RenderAudio     bool `yaml:"render_audio" json:"render_audio"`
}

type Observation struct {
	Stride           int  `yaml:"stride" json:"stride"`
	ScreenMemory     bool `yaml:"screen_memory" json:"screen_memory"`
	ScreenMemorySize int  `yaml:"screen_memory_size" json:"screen_memory_size"`
}

type Reward struct {
	Scale float64 `yaml:"scale" json:"scale"`

	ExploreWeight      float64 `yaml:"explore_weight" json:"explore_weight"`
	ExploreFocusWeight float64 `yaml:"explore_focus_weight" json:"explore_focus_weight"`

	LevelCap            int     `yaml:"level_cap" json:"level_cap"`
	LevelOvercapDivisor float64 `yaml:"level_overcap_divisor" json:"level_overcap_divisor"`

	HealThreshold float64 `yaml:"heal_threshold" json:"heal_threshold"`
	DeadEpsilon   float64 `yaml:"dead_epsilon" json:"dead_epsilon"`

	CutWeight    float64 `yaml:"cut_weight" json:"cut_weight"`
	HMWeight     float64 `yaml:"hm_weight" json:"hm_weight"`
	EventWeight  float64 `yaml:"event_weight" json:"event_weight"`
	SeenWeight   float64 `yaml:"seen_weight" json:"seen_weight"`
	CaughtWeight float64 `yaml:"caught_weight" json:"caught_weight"`
	MoveWeight   float64 `yaml:"move_weight" json:"move_weight"`
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("gym.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("gym.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	rc := reward.DefaultConfig()
	return Tuning{
		Env: Env{
			FrameSkip:       24,
			MaxEpisodeSteps: 20480,
		},
		Observation: Observation{
			Stride:           2,
			ScreenMemory:     true,
			ScreenMemorySize: 255,
		},
		Reward: Reward(rc),
	}
}

// Normalize fills zero values that have no meaningful zero setting.
func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	d := Defaults()
	if t.Env.FrameSkip == 0 {
		t.Env.FrameSkip = d.Env.FrameSkip
	}
	if t.Env.MaxEpisodeSteps == 0 {
		t.Env.MaxEpisodeSteps = d.Env.MaxEpisodeSteps
	}
	if t.Observation.Stride == 0 {
		t.Observation.Stride = d.Observation.Stride
	}
	if t.Observation.ScreenMemorySize == 0 {
		t.Observation.ScreenMemorySize = d.Observation.ScreenMemorySize
	}
	if t.Reward.LevelOvercapDivisor == 0 {
		t.Reward.LevelOvercapDivisor = d.Reward.LevelOvercapDivisor
	}
}

func (t Tuning) Validate() error {
	if t.Env.FrameSkip < 1 {
		return fmt.Errorf("env.frame_skip must be >= 1")
	}
	if t.Env.MaxEpisodeSteps < 1 {
		return fmt.Errorf("env.max_episode_steps must be >= 1")
	}
	if t.Observation.Stride < 1 || t.Observation.Stride > 16 {
		return fmt.Errorf("observation.stride must be in [1,16]")
	}
	if t.Observation.ScreenMemorySize < 1 || t.Observation.ScreenMemorySize > 1024 {
		return fmt.Errorf("observation.screen_memory_size must be in [1,1024]")
	}
	if t.Reward.Scale <= 0 {
		return fmt.Errorf("reward.scale must be > 0")
	}
	if t.Reward.ExploreWeight < 0 || t.Reward.ExploreFocusWeight < 0 {
		return fmt.Errorf("reward.explore weights must be >= 0")
	}
	if err := reward.Config(t.Reward).Validate(); err != nil {
		return err
	}
	return nil
}

// EnvConfig converts the tuning into the environment's construction config.
func (t Tuning) EnvConfig() env.Config {
	return env.Config{
		FrameSkip:       t.Env.FrameSkip,
		MaxEpisodeSteps: t.Env.MaxEpisodeSteps,
		RenderAudio:     t.Env.RenderAudio,
		Obs: obs.Config{
			Stride:       t.Observation.Stride,
			ScreenMemory: t.Observation.ScreenMemory,
			MemorySize:   t.Observation.ScreenMemorySize,
		},
		Reward: reward.Config(t.Reward),
	}
}

// Digest is the hex sha256 of the tuning's canonical JSON. Two runs with the
// same digest shaped rewards identically.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
