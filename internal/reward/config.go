package reward

import (
	"fmt"
	"math"
)

// Config holds every reward weight. A zero weight disables its term.
type Config struct {
	Scale float64 `json:"scale"`

	ExploreWeight      float64 `json:"explore_weight"`
	ExploreFocusWeight float64 `json:"explore_focus_weight"`

	LevelCap            int     `json:"level_cap"`
	LevelOvercapDivisor float64 `json:"level_overcap_divisor"`

	HealThreshold float64 `json:"heal_threshold"`
	DeadEpsilon   float64 `json:"dead_epsilon"`

	CutWeight    float64 `json:"cut_weight"`
	HMWeight     float64 `json:"hm_weight"`
	EventWeight  float64 `json:"event_weight"`
	SeenWeight   float64 `json:"seen_weight"`
	CaughtWeight float64 `json:"caught_weight"`
	MoveWeight   float64 `json:"move_weight"`
}

func DefaultConfig() Config {
	return Config{
		Scale:               4.0,
		ExploreWeight:       0.02,
		ExploreFocusWeight:  0.03,
		LevelCap:            15,
		LevelOvercapDivisor: 4,
		HealThreshold:       0.5,
		DeadEpsilon:         0.01,
		CutWeight:           10,
		HMWeight:            0,
		EventWeight:         1,
		SeenWeight:          4,
		CaughtWeight:        4,
		MoveWeight:          4,
	}
}

func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"scale":                 c.Scale,
		"explore_weight":        c.ExploreWeight,
		"explore_focus_weight":  c.ExploreFocusWeight,
		"level_overcap_divisor": c.LevelOvercapDivisor,
		"heal_threshold":        c.HealThreshold,
		"dead_epsilon":          c.DeadEpsilon,
		"cut_weight":            c.CutWeight,
		"hm_weight":             c.HMWeight,
		"event_weight":          c.EventWeight,
		"seen_weight":           c.SeenWeight,
		"caught_weight":         c.CaughtWeight,
		"move_weight":           c.MoveWeight,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("reward: %s must be finite", name)
		}
	}
	if c.LevelCap < 0 {
		return fmt.Errorf("reward: level_cap must be >= 0")
	}
	if c.LevelOvercapDivisor <= 0 {
		return fmt.Errorf("reward: level_overcap_divisor must be > 0")
	}
	if c.HealThreshold < 0 || c.DeadEpsilon < 0 {
		return fmt.Errorf("reward: heal_threshold and dead_epsilon must be >= 0")
	}
	return nil
}
