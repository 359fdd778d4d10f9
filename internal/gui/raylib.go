//go:build !ebiten

package gui

import (
	"context"
	"image/color"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"
)

const RaylibEnabled = true

var (
	hudText = rl.NewColor(180, 180, 180, 255)
	hudBack = rl.NewColor(10, 10, 10, 180)
)

// RunRaylib opens a raylib window and steps one frame per redraw until the
// window closes, Q is pressed, ctx ends or a frame fails.
func RunRaylib(ctx context.Context, s Stepper, opts Options) error {
	d := newDriver(ctx, s, opts)
	cfg := s.Config()
	scale := int32(d.opts.Scale)

	rl.SetTraceLogLevel(rl.LogWarning)
	rl.InitWindow(int32(cfg.Width)*scale, int32(cfg.Height)*scale, d.opts.Title)
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(d.opts.FPS))
	rl.SetExitKey(0)

	canvas := rl.GenImageColor(cfg.Width, cfg.Height, rl.Black)
	tex := rl.LoadTextureFromImage(canvas)
	rl.UnloadImage(canvas)
	defer rl.UnloadTexture(tex)

	var buf []color.RGBA
	for !rl.WindowShouldClose() {
		if ctx.Err() != nil {
			return nil
		}
		if rl.IsKeyPressed(rl.KeyQ) {
			return nil
		}
		if rl.IsKeyPressed(rl.KeySpace) {
			d.toggle()
		}
		if err := d.frame(time.Now()); err != nil {
			return err
		}

		buf = d.colors(buf)
		rl.UpdateTexture(tex, buf)

		rl.BeginDrawing()
		rl.ClearBackground(rl.Black)
		rl.DrawTextureEx(tex, rl.NewVector2(0, 0), 0, float32(scale), rl.White)
		lines := d.hud()
		rl.DrawRectangle(4, 4, 420, int32(18*len(lines)+8), hudBack)
		for i, line := range lines {
			rl.DrawText(line, 10, int32(8+18*i), 14, hudText)
		}
		rl.EndDrawing()
	}
	return nil
}
