package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/campers-dev/campers/internal/compute"
	"github.com/campers-dev/campers/internal/events"
)

const (
	// maxLogLines bounds the retained log buffer, mirroring
	// SelectableLog's max_lines=5000.
	maxLogLines = 5000
	// visibleLogLines is how many of the retained lines are rendered at
	// once; older lines scroll off the top of the box.
	visibleLogLines = 12
	// labelWidth matches LabeledValue's fixed label column.
	labelWidth = 18
)

var pollInterval = 150 * time.Millisecond

type keyMap struct {
	Quit key.Binding
	Copy key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Copy: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy log")),
}

// drainer is the subset of *events.Bus the model needs; narrowed to an
// interface so it is independently testable without a live run.
type drainer interface {
	Drain(n int) []events.RunEvent
}

// Model is the bubbletea model for a `campers run` invocation. It never
// publishes to the bus, only drains it, matching the Event Bus's
// single-producer-many-consumer contract.
type Model struct {
	bus      drainer
	done     <-chan struct{}
	status   string
	instance compute.Descriptor
	mutagen  events.MutagenPayload
	logLines []string
	quitting bool
	finished bool
	copyMsg  string
}

// New builds a Model that polls bus until done is closed.
func New(bus drainer, done <-chan struct{}) Model {
	return Model{bus: bus, done: done, status: events.StatusLaunching}
}

type tickMsg time.Time
type doneMsg struct{}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return doneMsg{}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), waitForDone(m.done))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if key.Matches(msg, keys.Copy) {
			if err := clipboard.WriteAll(strings.Join(m.logLines, "\n")); err != nil {
				m.copyMsg = "copy failed: " + err.Error()
			} else {
				m.copyMsg = fmt.Sprintf("copied %d log lines", len(m.logLines))
			}
			return m, nil
		}
		return m, nil

	case doneMsg:
		m.finished = true
		m.drain()
		return m, tea.Quit

	case tickMsg:
		m.drain()
		if m.finished {
			return m, tea.Quit
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) drain() {
	for _, evt := range m.bus.Drain(10) {
		switch evt.Type {
		case events.TypeInstanceDetails:
			if desc, ok := evt.Instance.(compute.Descriptor); ok {
				m.instance = desc
			}
		case events.TypeStatusUpdate:
			m.status = evt.Status
		case events.TypeMutagenStatus:
			m.mutagen = evt.Mutagen
		case events.TypeLog:
			m.logLines = append(m.logLines, evt.Text)
			if len(m.logLines) > maxLogLines {
				m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
			}
		case events.TypeCleanupEvent:
			m.logLines = append(m.logLines, fmt.Sprintf("cleanup: %s %s", evt.Step, evt.Status))
		}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("campers run"))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("status:"), statusStyle(m.status).Render(m.status)))
	if m.instance.InstanceID != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("instance:"), valueStyle.Render(m.instance.InstanceID)))
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("address:"), valueStyle.Render(m.instance.PublicIP)))
	}
	if m.mutagen.State != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("sync:"), valueStyle.Render(m.mutagen.State)))
	}

	if len(m.logLines) > 0 {
		start := 0
		if len(m.logLines) > visibleLogLines {
			start = len(m.logLines) - visibleLogLines
		}
		b.WriteString("\n")
		for _, line := range m.logLines[start:] {
			b.WriteString(logStyle.Render(line))
			b.WriteString("\n")
		}
	}

	if m.copyMsg != "" {
		b.WriteString(helpStyle.Render(m.copyMsg))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("press q to detach (run continues in background), c to copy the log"))
	return boxStyle.Render(b.String())
}
