package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/cppsim/sim"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	frameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	phaseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	topStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	maxLogLines = 500
	stackLines  = 10
	tickEvery   = 30 * time.Millisecond
)

type interactiveModel struct {
	err     error
	sess    *session
	sim     *sim.Simulation
	log     []string
	events  viewport.Model
	input   textinput.Model
	feeding bool
	running bool
	width   int
}

type tickMsg struct{}

func newInteractiveModel(sess *session) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "cin << "
	ti.Placeholder = "text to append to the console input"
	ti.Width = 50

	m := &interactiveModel{
		sess:   sess,
		sim:    sess.sim,
		events: viewport.New(80, 8),
		input:  ti,
		width:  80,
	}
	sess.sim.Subscribe(sim.ObserverFunc(m.onEvent))
	return m
}

func (m *interactiveModel) onEvent(e sim.Event) {
	switch e.Type {
	case sim.EventUpNext, sim.EventValueRead:
		return
	case sim.EventCleared:
		m.log = m.log[:0]
	}
	line := e.String()
	if e.IsDiagnostic() {
		line = errorStyle.Render(line)
	}
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func tick() tea.Cmd {
	return tea.Tick(tickEvery, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m *interactiveModel) do(fn func() error) {
	if err := fn(); err != nil {
		m.err = err
		m.running = false
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case error:
		m.err = msg

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.events.Width = msg.Width
		m.events.Height = max(msg.Height-stackLines-14, 4)

	case tickMsg:
		if !m.running {
			break
		}
		m.do(func() error {
			_, err := m.sim.RunBatch(m.sess.cfg.AutoRun.Batch.Duration)
			return err
		})
		if m.sim.AtEnd() {
			m.running = false
		}
		if m.running {
			m.refresh()
			return m, tick()
		}

	case tea.KeyMsg:
		if m.feeding {
			switch msg.String() {
			case "enter":
				m.sim.Feed(m.input.Value() + "\n")
				m.input.Reset()
				m.input.Blur()
				m.feeding = false
			case "esc":
				m.input.Blur()
				m.feeding = false
			default:
				var cmd tea.Cmd
				m.input, cmd = m.input.Update(msg)
				return m, cmd
			}
			break
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "n", "right":
			m.do(func() error { return m.sim.StepForward(1) })
		case "b", "left":
			m.running = false
			m.do(func() error { return m.sim.StepBackward(1) })
		case "o":
			m.do(m.sim.StepOver)
		case "u":
			m.do(m.sim.StepOut)
		case "s":
			m.running = false
			m.err = nil
			m.do(m.sim.Start)
		case "i":
			m.feeding = true
			m.input.Focus()
		case "r", " ":
			if m.running {
				m.sim.Pause()
				m.running = false
				break
			}
			if !m.sim.AtEnd() && m.err == nil {
				m.running = true
				m.refresh()
				return m, tick()
			}
		case "up", "k":
			m.events.LineUp(1)
			return m, nil
		case "down", "j":
			m.events.LineDown(1)
			return m, nil
		}
	}

	m.refresh()
	return m, nil
}

func (m *interactiveModel) refresh() {
	m.events.SetContent(strings.Join(m.log, "\n"))
	m.events.GotoBottom()
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("C++ Simulator"))
	b.WriteString(" ")
	b.WriteString(m.sess.prog.Name)
	status := fmt.Sprintf("  step %d", m.sim.StepsTaken())
	switch {
	case m.sim.AtEnd():
		status += fmt.Sprintf(" • ended with %s", m.sim.ExitCode())
	case m.running:
		status += " • running"
	}
	b.WriteString(helpStyle.Render(status))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	b.WriteString(m.stackView())
	b.WriteString("\n")

	b.WriteString("Console:\n")
	out := m.sim.Console().Output()
	if out == "" {
		out = helpStyle.Render("(no output)")
	}
	b.WriteString(outputStyle.Render(out))
	b.WriteString("\n\n")

	b.WriteString("Events:\n")
	b.WriteString(m.events.View())
	b.WriteString("\n\n")

	if m.feeding {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter feed • esc cancel"))
		return b.String()
	}
	b.WriteString(helpStyle.Render("n step • b back • o over • u out • r run/pause • i input • s restart • ↑/↓ scroll • q quit"))
	return b.String()
}

func (m *interactiveModel) stackView() string {
	stack := m.sim.Stack()
	if len(stack) == 0 {
		return helpStyle.Render("(stack empty)") + "\n"
	}

	var b strings.Builder
	b.WriteString("Stack:\n")
	start := max(len(stack)-stackLines, 0)
	if start > 0 {
		b.WriteString(helpStyle.Render(fmt.Sprintf("  ... %d more\n", start)))
	}
	for i := start; i < len(stack); i++ {
		in := stack[i]
		line := fmt.Sprintf("%-12s %s", in.StackType(), in.Model().Describe())
		if f := in.Frame(); f != nil && in.StackType() == sim.StackFunction {
			line += "  " + frameStyle.Render("["+f.Name()+"]")
		}
		line += " " + phaseStyle.Render(in.Phase().String())
		if i == len(stack)-1 {
			b.WriteString(topStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func runInteractive(sess *session) error {
	m := newInteractiveModel(sess)
	if err := sess.sim.Start(); err != nil {
		return err
	}
	m.refresh()
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
