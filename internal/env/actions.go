package env

import (
	"fmt"

	"gbgym.ai/internal/emu"
)

// Action is a discrete action index.
type Action int

const (
	ActionDown Action = iota
	ActionLeft
	ActionRight
	ActionUp
	ActionA
	ActionB
	ActionStart
	ActionSelect

	NumActions = 8
)

var actionButtons = [NumActions]emu.Buttons{
	ActionDown:   emu.ButtonDown,
	ActionLeft:   emu.ButtonLeft,
	ActionRight:  emu.ButtonRight,
	ActionUp:     emu.ButtonUp,
	ActionA:      emu.ButtonA,
	ActionB:      emu.ButtonB,
	ActionStart:  emu.ButtonStart,
	ActionSelect: emu.ButtonSelect,
}

func (a Action) Valid() bool { return a >= 0 && a < NumActions }

// Buttons is the joypad mask held for the whole step.
func (a Action) Buttons() emu.Buttons {
	if !a.Valid() {
		return 0
	}
	return actionButtons[a]
}

func (a Action) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionButtons[a].String()
}
