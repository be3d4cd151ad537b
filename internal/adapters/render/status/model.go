package status

import (
	"fmt"
	"io"

	"github.com/bnema/codex-switch/internal/application"
	tea "github.com/charmbracelet/bubbletea"
)

// frame is a one-shot model: the account listing is computed up front and
// the program quits on the first tick.
type frame struct {
	content string
}

func (f frame) Init() tea.Cmd { return tea.Quit }

func (f frame) Update(tea.Msg) (tea.Model, tea.Cmd) { return f, tea.Quit }

func (f frame) View() string { return f.content }

// Render lays out the account statuses as a styled terminal listing.
func Render(statuses []application.Status, opts RenderOptions) (string, error) {
	p := tea.NewProgram(
		frame{content: renderView(statuses, opts, newStyles())},
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	final, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := final.(frame)
	if !ok {
		return "", fmt.Errorf("unexpected final render model type %T", final)
	}

	return rendered.View(), nil
}
