// Package tui drives a simulator from a bubbletea program. Each tick runs
// one frame and the view shows it next to the frame statistics.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/oracle"
	"github.com/san-kum/satvoronoi/internal/optim"
	"github.com/san-kum/satvoronoi/internal/sim"
	"github.com/san-kum/satvoronoi/internal/viz"
)

const historyCapacity = 120

type Options struct {
	// FixedDeltaMs replaces wall-clock deltas when positive.
	FixedDeltaMs    int
	PauseOnMismatch bool
	FPS             int
	Cols, Rows      int
	Sweep           *optim.Sweep
}

type tickMsg time.Time

// Stepper is the part of the simulator the live view needs.
type Stepper interface {
	Step(ctx context.Context, deltaMs int) (sim.FrameStats, error)
	Config() sim.Config
	Image() *dynamo.Image
	Bodies() dynamo.Bodies
}

type Model struct {
	ctx     context.Context
	stepper Stepper
	opts    Options

	running  bool
	showMap  bool
	last     time.Time
	stats    sim.FrameStats
	history  []float64
	mismatch *oracle.Mismatch
	badFrame int
	err      error
}

func New(ctx context.Context, s Stepper, opts Options) Model {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Cols <= 0 {
		opts.Cols = 64
	}
	if opts.Rows <= 0 {
		opts.Rows = 24
	}
	return Model{
		ctx:     ctx,
		stepper: s,
		opts:    opts,
		running: true,
		history: make([]float64, 0, historyCapacity),
	}
}

func (m Model) Err() error { return m.err }

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.opts.FPS), func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd { return m.tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
			m.last = time.Time{}
		case "n":
			if !m.running {
				m.step(time.Now())
			}
		case "m":
			m.showMap = !m.showMap
		}
	case tea.WindowSizeMsg:
		m.opts.Cols = max(msg.Width-50, 16)
		m.opts.Rows = max(msg.Height-4, 8)
	case tickMsg:
		if m.running {
			m.step(time.Time(msg))
			if m.err != nil {
				return m, tea.Quit
			}
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) step(now time.Time) {
	delta := m.opts.FixedDeltaMs
	if delta <= 0 {
		if !m.last.IsZero() {
			delta = int(now.Sub(m.last).Milliseconds())
		}
		m.last = now
	}

	stats, err := m.stepper.Step(m.ctx, delta)
	if err != nil {
		m.err = err
		return
	}
	m.stats = stats
	m.history = append(m.history, float64(stats.Total)/float64(time.Millisecond))
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
	}
	if stats.Mismatch != nil {
		m.mismatch, m.badFrame = stats.Mismatch, stats.Frame
		if m.opts.PauseOnMismatch {
			m.running = false
		}
	}
}

func (m Model) View() string {
	frame := viz.HalfBlocks(m.stepper.Image(), m.opts.Cols, m.opts.Rows)
	if m.showMap {
		cfg := m.stepper.Config()
		c := viz.NewCanvas(m.opts.Cols, m.opts.Rows)
		c.PlotBodies(m.stepper.Bodies(), cfg.Width, cfg.Height)
		frame = c.String()
	}

	status := viz.StatusRunning.Render("RUNNING")
	if !m.running {
		status = viz.StatusPaused.Render("PAUSED")
	}
	if m.err != nil {
		status = viz.StatusFailed.Render("FAILED")
	}

	var s strings.Builder
	s.WriteString(viz.Header.Render("satvoronoi") + "\n")
	s.WriteString(status + "\n\n")
	s.WriteString(viz.Metric("frame", fmt.Sprint(m.stats.Frame)) + "\n")
	s.WriteString(viz.Metric("delta", fmt.Sprintf("%dms", m.stats.DeltaMs)) + "\n")
	s.WriteString(viz.Metric("physics", dur(m.stats.Physics)) + "\n")
	s.WriteString(viz.Metric("classify", dur(m.stats.Classify)) + "\n")
	s.WriteString(viz.Metric("composite", dur(m.stats.Composite)) + "\n")
	s.WriteString(viz.Metric("total", dur(m.stats.Total)) + "\n\n")

	for i, d := range m.stats.Devices {
		s.WriteString(viz.Metric(fmt.Sprintf("dev %d", i),
			fmt.Sprintf("%s %d rows %s", d.Shape, d.Rows, dur(d.Kernel))) + "\n")
	}
	s.WriteString("\n" + viz.Sparkline(m.history, 40) + "\n")

	if m.opts.Sweep != nil {
		done, left := m.opts.Sweep.Progress()
		frac := 1.0
		if done+left > 0 {
			frac = float64(done) / float64(done+left)
		}
		s.WriteString("\n" + viz.Metric("sweep", viz.ProgressBar(frac, 20)) + "\n")
	}
	if m.mismatch != nil {
		s.WriteString("\n" + viz.MismatchReport(m.badFrame, m.mismatch) + "\n")
	}
	if m.err != nil {
		s.WriteString("\n" + viz.StatusFailed.Render(m.err.Error()) + "\n")
	}
	s.WriteString("\n" + viz.KeyHint.Render("space pause  n step  m map  q quit"))

	return lipgloss.JoinHorizontal(lipgloss.Top, viz.Panel.Render(frame), "  ", s.String())
}

func dur(d time.Duration) string {
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}

// Run blocks until the user quits or a frame fails.
func Run(ctx context.Context, s Stepper, opts Options) error {
	p := tea.NewProgram(New(ctx, s, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok {
		return m.Err()
	}
	return nil
}
