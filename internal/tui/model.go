// Package tui renders the chat widget in a terminal, either as a
// full-screen bubbletea program or as plain line-oriented I/O.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/javalab/jl-assistant/internal"
	"github.com/javalab/jl-assistant/internal/chat"
)

const assistantName = "JL Assistant"

// refreshMsg tells the model the controller state changed
type refreshMsg struct{}

// submitDoneMsg carries the result of a finished send
type submitDoneMsg struct {
	err error
}

// Model is the bubbletea model of the chat widget
type Model struct {
	ctx     context.Context
	ctrl    *chat.Controller
	updates chan struct{}

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	snap   chat.Snapshot
	width  int
	height int
	ready  bool
}

// NewModel creates a model driving ctrl. It registers itself as the
// controller's change listener.
func NewModel(ctx context.Context, ctrl *chat.Controller) Model {
	ti := textinput.New()
	ti.Placeholder = "Type your message..."
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = assistantLabelStyle

	updates := make(chan struct{}, 1)
	ctrl.SetOnChange(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})

	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		updates:  updates,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		snap:     ctrl.Snapshot(),
		width:    80,
		height:   24,
	}
}

// waitForChange blocks until the controller reports a change
func waitForChange(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-updates
		return refreshMsg{}
	}
}

// Init starts the cursor blink, the spinner and the change listener
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForChange(m.updates))
}

// Update handles input events and controller changes
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case refreshMsg:
		m.refresh()
		return m, waitForChange(m.updates)

	case submitDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, chat.ErrEmptyInput) {
			internal.LogDebug("Send finished with error: %v", msg.err)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEsc:
		if m.snap.Notice != nil {
			m.ctrl.DismissNotice()
		} else if m.snap.Open {
			m.ctrl.Close()
		}
		m.refresh()
		return m, nil

	case tea.KeyCtrlN:
		m.ctrl.NewChat()
		m.refresh()
		return m, nil

	case tea.KeyEnter:
		if !m.snap.Open {
			m.ctrl.Open()
			m.refresh()
			return m, nil
		}
		if m.snap.Sending || strings.TrimSpace(m.input.Value()) == "" {
			return m, nil
		}
		m.ctrl.SetInput(m.input.Value())
		m.input.Reset()
		ctx, ctrl := m.ctx, m.ctrl
		return m, func() tea.Msg {
			return submitDoneMsg{err: ctrl.Submit(ctx)}
		}
	}

	if !m.snap.Open {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refresh pulls a new snapshot and re-renders the transcript
func (m *Model) refresh() {
	m.snap = m.ctrl.Snapshot()
	m.layout()
}

func (m *Model) layout() {
	// header, notice, status and input rows
	reserved := 4
	if m.snap.Notice != nil {
		reserved++
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-reserved, 3)
	m.input.Width = max(m.width-4, 10)
	m.viewport.SetContent(renderMessages(m.snap.Messages, m.width))
	m.viewport.GotoBottom()
}

// View renders the widget
func (m Model) View() string {
	if !m.snap.Open {
		return launcherStyle.Render("💬 "+assistantName) + "\n" +
			hintStyle.Render("enter: open chat · ctrl+c: quit") + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(assistantName))
	b.WriteString(" ")
	b.WriteString(hintStyle.Render("ctrl+n: new chat · esc: close · ctrl+c: quit"))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if n := m.snap.Notice; n != nil {
		b.WriteString(noticeStyle.Render(n.Title + ": " + n.Description))
		b.WriteString(hintStyle.Render("  esc: dismiss"))
		b.WriteString("\n")
	}

	switch {
	case m.snap.Sending && m.snap.AwaitingFirstToken:
		b.WriteString(m.spinner.View() + hintStyle.Render(" thinking..."))
	case m.snap.Sending:
		b.WriteString(m.spinner.View() + hintStyle.Render(" replying..."))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

// renderMessages formats the transcript wrapped to width
func renderMessages(messages []internal.Message, width int) string {
	body := bodyStyle.Width(max(width-2, 10))
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		label := assistantLabelStyle.Render(assistantName)
		if msg.Role == internal.RoleUser {
			label = userLabelStyle.Render("You")
		}
		parts = append(parts, lipgloss.JoinVertical(lipgloss.Left, label, body.Render(msg.Content)))
	}
	return strings.Join(parts, "\n\n")
}

// Run starts the full-screen program and blocks until the user quits
func Run(ctx context.Context, ctrl *chat.Controller, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(ctx, ctrl), opts...)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
