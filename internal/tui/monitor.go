// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/voice-analyzer/voice-analyzer-ios/internal/transport"
	"github.com/voice-analyzer/voice-analyzer-ios/pkg/note"
)

const (
	plotMargin  = 2.0 // Semitones shown beyond each limit.
	minPlotRows = 6
	statusEvery = 500 * time.Millisecond
)

// FrameMsg carries one published frame into the monitor.
type FrameMsg transport.Frame

type statusMsg string

// MonitorModel shows the latest pitch and a scrolling pitch history between
// two limit notes.
type MonitorModel struct {
	title   string
	lower   note.Note
	upper   note.Note
	history float64 // Seconds shown across the plot.
	status  func() string

	frames []transport.Frame
	paused bool
	line   string
	width  int
	height int
}

// NewMonitorModel returns a monitor plotting history seconds of pitch
// between lower and upper. status, if set, is polled for the footer.
func NewMonitorModel(title string, lower, upper note.Note, history time.Duration, status func() string) MonitorModel {
	return MonitorModel{
		title:   title,
		lower:   lower,
		upper:   upper,
		history: history.Seconds(),
		status:  status,
		width:   80,
		height:  24,
	}
}

func (m MonitorModel) Init() tea.Cmd {
	return m.pollStatus()
}

func (m MonitorModel) pollStatus() tea.Cmd {
	if m.status == nil {
		return nil
	}
	status := m.status
	return tea.Tick(statusEvery, func(time.Time) tea.Msg {
		return statusMsg(status())
	})
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case FrameMsg:
		if !m.paused {
			m.add(transport.Frame(msg))
		}

	case statusMsg:
		m.line = string(msg)
		return m, m.pollStatus()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			return m, tea.Quit
		case key.Matches(msg, keyClear):
			m.frames = m.frames[:0]
		case key.Matches(msg, keyPause):
			m.paused = !m.paused
		}
	}
	return m, nil
}

// add appends f and drops frames older than the history window.
func (m *MonitorModel) add(f transport.Frame) {
	m.frames = append(m.frames, f)
	cutoff := f.Time - m.history
	i := 0
	for i < len(m.frames) && m.frames[i].Time < cutoff {
		i++
	}
	if i > 0 {
		m.frames = append(m.frames[:0], m.frames[i:]...)
	}
}

func (m MonitorModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")
	sb.WriteString(m.renderLatest())
	sb.WriteString("\n\n")
	sb.WriteString(m.renderPlot(m.width-6, max(m.height-8, minPlotRows)))
	sb.WriteString("\n")
	if m.line != "" {
		sb.WriteString(dimStyle.Render(m.line))
		sb.WriteString("\n")
	}
	sb.WriteString(helpLine(keyPause, keyClear, keyQuit))
	return sb.String()
}

func (m MonitorModel) renderLatest() string {
	if len(m.frames) == 0 {
		return dimStyle.Render("waiting for voice...")
	}
	f := m.frames[len(m.frames)-1]
	s := fmt.Sprintf("%s %7.1f Hz  %s %+3.0f cents  %6.1f dBFS",
		noteStyle.Render(f.Note), f.Pitch, centsBar(f.Cents), f.Cents, f.LevelDB)
	for i, fm := range f.Formants {
		if fm.Frequency > 0 {
			s += fmt.Sprintf("  F%d %4.0f Hz", i+1, fm.Frequency)
		}
	}
	if m.paused {
		s += "  " + dimStyle.Render("[paused]")
	}
	return s
}

// centsBar draws a needle on a -50..+50 cent scale.
func centsBar(cents float32) string {
	const half = 10
	pos := half + int(math.Round(float64(cents)/50*half))
	pos = min(max(pos, 0), 2*half)
	bar := []rune(strings.Repeat("·", 2*half+1))
	bar[half] = '|'
	bar[pos] = '●'
	return "[" + string(bar) + "]"
}

// plotRange returns the plotted semitone span above the lower limit.
func (m MonitorModel) plotRange() (lo, hi float64) {
	span := 12 * math.Log2(m.upper.Hz()/m.lower.Hz())
	return -plotMargin, span + plotMargin
}

// row maps hz to a plot row, 0 at the top. ok is false outside the plot.
func (m MonitorModel) row(hz float64, rows int) (int, bool) {
	if hz <= 0 || rows < 2 {
		return 0, false
	}
	lo, hi := m.plotRange()
	s := 12 * math.Log2(hz/m.lower.Hz())
	if s < lo || s > hi {
		return 0, false
	}
	return int(math.Round((hi - s) / (hi - lo) * float64(rows-1))), true
}

func (m MonitorModel) renderPlot(cols, rows int) string {
	cols = max(cols, 10)
	grid := make([][]rune, rows)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", cols))
	}

	limitRows := map[int]string{}
	for _, n := range []note.Note{m.lower, m.upper} {
		if r, ok := m.row(n.Hz(), rows); ok {
			limitRows[r] = n.String()
			for c := range grid[r] {
				grid[r][c] = '─'
			}
		}
	}

	if len(m.frames) > 0 && m.history > 0 {
		now := m.frames[len(m.frames)-1].Time
		for _, f := range m.frames {
			c := cols - 1 - int((now-f.Time)/m.history*float64(cols))
			r, ok := m.row(float64(f.Pitch), rows)
			if ok && c >= 0 && c < cols {
				grid[r][c] = '•'
			}
		}
	}

	var sb strings.Builder
	for r, line := range grid {
		label := fmt.Sprintf("%-5s", limitRows[r])
		if limitRows[r] != "" {
			sb.WriteString(limitStyle.Render(label))
		} else {
			sb.WriteString(label)
		}
		sb.WriteString(string(line))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Monitor runs a MonitorModel and feeds it frames. It implements
// transport.Transport so it can sit next to the network transports.
type Monitor struct {
	program   *tea.Program
	closeOnce sync.Once
}

var _ transport.Transport = (*Monitor)(nil)

// NewMonitor wraps model in a full screen program.
func NewMonitor(model MonitorModel, opts ...tea.ProgramOption) *Monitor {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &Monitor{program: tea.NewProgram(model, opts...)}
}

// Run blocks until the user quits or Close is called.
func (m *Monitor) Run() error {
	_, err := m.program.Run()
	return err
}

// Send forwards frames to the UI and ignores anything else.
func (m *Monitor) Send(data any) error {
	if f, ok := data.(transport.Frame); ok {
		m.program.Send(FrameMsg(f))
	}
	return nil
}

// Close stops the program.
func (m *Monitor) Close() error {
	m.closeOnce.Do(m.program.Quit)
	return nil
}
