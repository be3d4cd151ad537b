package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/bnema/codex-switch/internal/application"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type pollEventMsg struct {
	event application.PollEvent
}

type pollDoneMsg struct{}

// pollSpinnerModel animates a spinner while a poll cycle runs, tallying
// per-account outcomes from the poller's event stream.
type pollSpinnerModel struct {
	spinner spinner.Model
	label   string
	events  <-chan application.PollEvent
	updated int
	failed  int
	done    bool
}

func newPollSpinnerModel(label string, events <-chan application.PollEvent) pollSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("39"))),
	)

	return pollSpinnerModel{
		spinner: s,
		label:   label,
		events:  events,
	}
}

func (m pollSpinnerModel) nextEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.events
		if !ok {
			return nil
		}
		return pollEventMsg{event: event}
	}
}

func (m pollSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.nextEvent())
}

func (m pollSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case pollEventMsg:
		switch msg.event.Kind {
		case application.PollEventUpdated:
			m.updated++
		case application.PollEventFailed:
			m.failed++
		}
		return m, m.nextEvent()
	case pollDoneMsg:
		m.done = true
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m pollSpinnerModel) View() string {
	if m.done {
		return ""
	}

	progress := ""
	if m.updated > 0 || m.failed > 0 {
		progress = fmt.Sprintf(" (%d ok, %d failed)", m.updated, m.failed)
	}

	return fmt.Sprintf("%s %s%s", m.spinner.View(), m.label, progress)
}

// runPollSpinner runs one poll cycle, animating a spinner on output until
// every account has been attempted.
func runPollSpinner(ctx context.Context, output io.Writer, poller *application.Poller) error {
	p := tea.NewProgram(
		newPollSpinnerModel("Checking usage limits...", poller.Events()),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	go func() {
		poller.PollOnce(ctx)
		p.Send(pollDoneMsg{})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	if _, ok := finalModel.(pollSpinnerModel); !ok {
		return fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}

	return nil
}
