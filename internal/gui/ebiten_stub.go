//go:build !ebiten

package gui

import (
	"context"
	"errors"
)

const EbitenEnabled = false

// Raylib and ebiten both link GLFW, so a binary carries only one of them.
func RunEbiten(context.Context, Stepper, Options) error {
	return errors.New("ebiten backend not built (rebuild with -tags ebiten)")
}
