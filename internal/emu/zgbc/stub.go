//go:build !(cgo && zgbc)

package zgbc

import (
	"errors"

	"gbgym.ai/internal/emu"
)

// ErrUnavailable is returned by Open when the binary was built without the
// native core.
var ErrUnavailable = errors.New("zgbc: built without native core (rebuild with -tags zgbc)")

// Open always fails in builds without the zgbc tag.
func Open(rom []byte) (emu.Engine, error) {
	return nil, ErrUnavailable
}
