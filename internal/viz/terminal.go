package viz

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

const (
	cursorHome  = "\033[H"
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// Terminal presents frames as half-block characters, two image rows per
// text line.
type Terminal struct {
	w      io.Writer
	cols   int
	rows   int
	title  string
	frames int
}

func NewTerminal(w io.Writer, cols, rows int, title string) *Terminal {
	return &Terminal{w: w, cols: max(cols, 1), rows: max(rows, 1), title: title}
}

func (t *Terminal) Start() error {
	_, err := io.WriteString(t.w, clearScreen+hideCursor)
	return err
}

func (t *Terminal) Stop() error {
	_, err := io.WriteString(t.w, showCursor)
	return err
}

func (t *Terminal) Frames() int { return t.frames }

func (t *Terminal) Present(img *dynamo.Image) error {
	t.frames++
	var b strings.Builder
	b.WriteString(cursorHome)
	b.WriteString(Title.Render(t.title))
	b.WriteString(Subtle.Render(fmt.Sprintf("  frame %d  %dx%d", t.frames, img.Width, img.Height)))
	b.WriteByte('\n')
	b.WriteString(HalfBlocks(img, t.cols, t.rows))
	_, err := io.WriteString(t.w, b.String())
	return err
}

// HalfBlocks downsamples img to cols x (rows*2) samples and renders each
// pair of sample rows as one line of upper-half blocks. Runs of identical
// cells share one style.
func HalfBlocks(img *dynamo.Image, cols, rows int) string {
	if img == nil || img.Width == 0 || img.Height == 0 || cols <= 0 || rows <= 0 {
		return ""
	}
	var b strings.Builder
	type cell struct{ top, bottom string }
	for r := 0; r < rows; r++ {
		var run cell
		n := 0
		flush := func() {
			if n == 0 {
				return
			}
			style := lipgloss.NewStyle().
				Foreground(lipgloss.Color(run.top)).
				Background(lipgloss.Color(run.bottom))
			b.WriteString(style.Render(strings.Repeat("▀", n)))
			n = 0
		}
		for c := 0; c < cols; c++ {
			x := c * img.Width / cols
			top := img.At(x, (2*r)*img.Height/(2*rows))
			bottom := img.At(x, (2*r+1)*img.Height/(2*rows))
			next := cell{Hex(top), Hex(bottom)}
			if n > 0 && next != run {
				flush()
			}
			run = next
			n++
		}
		flush()
		b.WriteByte('\n')
	}
	return b.String()
}
