package env

import (
	"gbgym.ai/internal/ram"
	"gbgym.ai/internal/reward"
)

// Transition is one recorded step.
type Transition struct {
	Episode   int              `json:"episode"`
	Step      int              `json:"step"`
	Action    Action           `json:"action"`
	Reward    float64          `json:"reward"`
	Potential float64          `json:"potential"`
	Position  ram.Position     `json:"position"`
	Badges    int              `json:"badges"`
	Events    int              `json:"events"`
	Terms     reward.Breakdown `json:"terms"`
}

// Recorder observes an Env. Calls are synchronous on the stepping goroutine,
// so implementations must not block.
type Recorder interface {
	OnStep(t Transition)
	OnEpisodeEnd(episode int, info EpisodeInfo)
}

// Recorders fans out to several recorders in order.
type Recorders []Recorder

func (rs Recorders) OnStep(t Transition) {
	for _, r := range rs {
		r.OnStep(t)
	}
}

func (rs Recorders) OnEpisodeEnd(episode int, info EpisodeInfo) {
	for _, r := range rs {
		r.OnEpisodeEnd(episode, info)
	}
}
