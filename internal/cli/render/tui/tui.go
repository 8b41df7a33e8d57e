package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/campers-dev/campers/internal/events"
)

// Run drives the interactive TUI until done is closed (the run has
// reached DONE or CLEANUP), or the user presses q to detach early. The run
// itself is unaffected by detaching: the TUI is a pure consumer.
func Run(bus *events.Bus, done <-chan struct{}) error {
	p := tea.NewProgram(New(bus, done))
	_, err := p.Run()
	return err
}
