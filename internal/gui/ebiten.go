//go:build ebiten

package gui

import (
	"context"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

const EbitenEnabled = true

type game struct {
	d      *driver
	width  int
	height int
}

func (g *game) Update() error {
	if g.d.ctx.Err() != nil || inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.d.toggle()
	}
	return g.d.frame(time.Now())
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.WritePixels(g.d.pixels())
	ebitenutil.DebugPrint(screen, strings.Join(g.d.hud(), "\n"))
}

func (g *game) Layout(_, _ int) (int, int) { return g.width, g.height }

// RunEbiten is the ebiten counterpart of RunRaylib. Ebiten steps in Update,
// so FPS sets the tick rate.
func RunEbiten(ctx context.Context, s Stepper, opts Options) error {
	d := newDriver(ctx, s, opts)
	cfg := s.Config()

	ebiten.SetWindowSize(cfg.Width*d.opts.Scale, cfg.Height*d.opts.Scale)
	ebiten.SetWindowTitle(d.opts.Title)
	ebiten.SetTPS(d.opts.FPS)

	return ebiten.RunGame(&game{d: d, width: cfg.Width, height: cfg.Height})
}
