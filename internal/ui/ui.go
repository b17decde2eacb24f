package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/trackmatch/internal/confirm"
	"github.com/desertthunder/trackmatch/internal/models"
)

// ViewState represents the current view in the review TUI.
type ViewState int

const (
	CandidateView ViewState = iota
	SearchView
)

// reviewModel presents one confirmation request: a candidate list to
// pick from, with a free-text search view behind "/".
type reviewModel struct {
	req      models.ConfirmationRequest
	view     ViewState
	list     list.Model
	input    textinput.Model
	decision confirm.Decision
	width    int
	height   int
	help     help.Model
	keys     keyMap
}

func newReviewModel(req models.ConfirmationRequest) *reviewModel {
	items := make([]list.Item, len(req.Candidates))
	for i, c := range req.Candidates {
		items[i] = candidateItem{candidate: c}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = fmt.Sprintf("Match for: %s", req.Query.Display())
	l.SetShowHelp(false)

	input := textinput.New()
	input.Placeholder = "artist title..."
	input.CharLimit = 120

	return &reviewModel{
		req:      req,
		view:     CandidateView,
		list:     l,
		input:    input,
		decision: confirm.Decision{Kind: confirm.DecisionAbort},
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init implements tea.Model.
func (m *reviewModel) Init() tea.Cmd {
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case CandidateView:
			return m.handleCandidateKeys(msg)
		case SearchView:
			return m.handleSearchKeys(msg)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *reviewModel) handleCandidateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.decision = confirm.Decision{Kind: confirm.DecisionAbort}
		return m, tea.Quit
	case "s":
		m.decision = confirm.Decision{Kind: confirm.DecisionSkip}
		return m, tea.Quit
	case "/":
		m.view = SearchView
		m.input.SetValue("")
		return m, m.input.Focus()
	case "enter":
		if len(m.req.Candidates) == 0 {
			return m, nil
		}
		m.decision = confirm.Decision{Kind: confirm.DecisionSelect, Index: m.list.Index()}
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *reviewModel) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.decision = confirm.Decision{Kind: confirm.DecisionAbort}
		return m, tea.Quit
	case "esc":
		m.view = CandidateView
		m.input.Blur()
		return m, nil
	case "enter":
		if m.input.Value() == "" {
			return m, nil
		}
		m.decision = confirm.Decision{Kind: confirm.DecisionSearch, Query: m.input.Value()}
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the UI based on the current view state.
func (m *reviewModel) View() string {
	switch m.view {
	case SearchView:
		return m.renderSearch()
	default:
		return m.renderCandidates()
	}
}

func (m *reviewModel) renderCandidates() string {
	if len(m.req.Candidates) == 0 {
		title := styles.title.Render(fmt.Sprintf("No candidates for: %s", m.req.Query.Display()))
		hint := styles.help.Render("press / to search manually, s to skip, q to abort")
		return fmt.Sprintf("%s\n\n%s", title, hint)
	}

	helpView := m.help.ShortHelpView(m.keys.ShortHelp())
	return fmt.Sprintf("%s\n\n%s", m.list.View(), helpView)
}

func (m *reviewModel) renderSearch() string {
	title := styles.title.Render(fmt.Sprintf("Search the catalog for: %s", m.req.Query.Display()))
	hint := styles.help.Render("enter to search • esc to go back")
	return fmt.Sprintf("%s\n%s\n\n%s", title, m.input.View(), hint)
}

// TerminalOperator implements [confirm.Operator] with an interactive
// bubbletea session per review item.
type TerminalOperator struct{}

func NewTerminalOperator() *TerminalOperator {
	return &TerminalOperator{}
}

// Review runs one interactive session and returns the operator's
// decision. Context cancellation kills the program and reads as an
// abort.
func (o *TerminalOperator) Review(ctx context.Context, req models.ConfirmationRequest) (confirm.Decision, error) {
	program := tea.NewProgram(newReviewModel(req), tea.WithContext(ctx))

	final, err := program.Run()
	if err != nil {
		if ctx.Err() != nil {
			return confirm.Decision{Kind: confirm.DecisionAbort}, ctx.Err()
		}
		return confirm.Decision{}, fmt.Errorf("review session failed: %w", err)
	}

	m, ok := final.(*reviewModel)
	if !ok {
		return confirm.Decision{}, fmt.Errorf("unexpected model type %T", final)
	}
	return m.decision, nil
}
