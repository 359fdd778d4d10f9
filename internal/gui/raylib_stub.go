//go:build ebiten

package gui

import (
	"context"
	"errors"
)

const RaylibEnabled = false

func RunRaylib(context.Context, Stepper, Options) error {
	return errors.New("raylib backend not built (rebuild without -tags ebiten)")
}
