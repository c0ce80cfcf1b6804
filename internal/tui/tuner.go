// SPDX-License-Identifier: MIT

// Package tui renders a live tuner readout from the tracker's event stream.
package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pitchtrack/internal/event"
)

// meterHalfWidth is the number of cells on each side of the centre mark.
const meterHalfWidth = 20

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true).
			Padding(0, 2)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	inTuneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true)
	closeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")).Bold(true)
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")).Bold(true)
)

var quitKeys = key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"))

type eventMsg event.PitchDetected

type closedMsg struct{}

// waitForEvent reads the next event; a closed channel ends the program.
func waitForEvent(events <-chan event.PitchDetected) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(e)
	}
}

// TunerModel is the Bubble Tea model for the tuner screen.
type TunerModel struct {
	title  string
	events <-chan event.PitchDetected

	last     event.PitchDetected
	held     bool // last holds a detected pitch
	windows  uint64
	detected uint64
	width    int
}

// NewTunerModel returns a model reading from events.
func NewTunerModel(title string, events <-chan event.PitchDetected) TunerModel {
	return TunerModel{title: title, events: events}
}

// Init starts listening for events.
func (m TunerModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

// Update handles events and key presses.
func (m TunerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case eventMsg:
		m.windows++
		e := event.PitchDetected(msg)
		if e.HasPitch() {
			m.detected++
			m.last = e
			m.held = true
		} else {
			// Keep showing the last note, greyed out.
			m.last.Clarity = 0
		}
		return m, waitForEvent(m.events)

	case closedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}
	}
	return m, nil
}

// View renders the UI
func (m TunerModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")

	if !m.held {
		sb.WriteString(dimStyle.Render("  listening..."))
		sb.WriteString("\n\n")
	} else {
		name := fmt.Sprintf("%s%d", m.last.NoteName, m.last.Octave)
		style := noteStyle
		if m.last.Clarity == 0 {
			style = style.Foreground(dimStyle.GetForeground())
		}
		sb.WriteString(style.Render(name))
		sb.WriteString(infoStyle.Render(fmt.Sprintf("%9.2f Hz  %+6.1f cents  clarity %.2f",
			m.last.FrequencyHz, m.last.Cents, m.last.Clarity)))
		sb.WriteString("\n\n  ")
		sb.WriteString(Meter(m.last.Cents))
		sb.WriteString("\n\n")
	}

	sb.WriteString(dimStyle.Render(fmt.Sprintf("  windows %d  pitched %d", m.windows, m.detected)))
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render("q: Quit"))
	return sb.String()
}

// Meter draws a needle at cents on a -50..+50 scale.
func Meter(cents float64) string {
	pos := int(math.Round(cents / 50 * meterHalfWidth))
	pos = max(-meterHalfWidth, min(meterHalfWidth, pos))

	cells := make([]string, 2*meterHalfWidth+1)
	for i := range cells {
		cells[i] = dimStyle.Render("─")
	}
	cells[meterHalfWidth] = dimStyle.Render("┼")

	var needle lipgloss.Style
	switch abs := math.Abs(cents); {
	case abs < 5:
		needle = inTuneStyle
	case abs < 15:
		needle = closeStyle
	default:
		needle = offStyle
	}
	cells[meterHalfWidth+pos] = needle.Render("▲")

	return "♭ " + strings.Join(cells, "") + " ♯"
}

// Run shows the tuner until the user quits or events is closed.
func Run(title string, events <-chan event.PitchDetected) error {
	p := tea.NewProgram(
		NewTunerModel(title, events),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
