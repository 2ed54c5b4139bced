// Package runview is the interactive view of one registration run: a state
// header with a spinner and a scrolling log of status and tool output lines.
package runview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/pubsub"
	"github.com/zjrosen/elastixctl/internal/registration"
	"github.com/zjrosen/elastixctl/internal/ui/styles"
)

// maxLines bounds the retained output.
const maxLines = 5000

// Canceller requests cancellation of the active run.
type Canceller interface {
	Cancel() bool
}

// StatusMsg is one log sink line, such as "Register volumes...".
type StatusMsg string

// DoneMsg is sent by the caller when Run returns.
type DoneMsg struct {
	Result *registration.Result
	Err    error
}

type outputLine struct {
	text   string
	status bool
}

// Model is the run view state.
type Model struct {
	title     string
	listener  *pubsub.ContinuousListener[registration.Progress]
	canceller Canceller
	spinner   spinner.Model
	viewport  viewport.Model
	lines     []outputLine
	follow    bool
	wrap      bool

	state      registration.State
	jobID      string
	cancelSent bool
	done       bool
	result     *registration.Result
	err        error

	width  int
	height int
}

// New subscribes to progress events of sub for the lifetime of ctx.
func New(ctx context.Context, title string, sub pubsub.Subscriber[registration.Progress], c Canceller) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.SpinnerColor)
	return Model{
		title:     title,
		listener:  pubsub.NewContinuousListener(ctx, sub),
		canceller: c,
		spinner:   sp,
		viewport:  viewport.New(80, 10),
		follow:    true,
	}
}

// Init starts the spinner and the event listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listener.Listen())
}

// Update handles progress events, keys and window resizes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pubsub.Event[registration.Progress]:
		m.apply(msg)
		return m, m.listener.Listen()

	case pubsub.ClosedMsg:
		return m, nil

	case StatusMsg:
		m.appendLine(outputLine{text: string(msg), status: true})
		return m, nil

	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		if msg.Result != nil {
			m.state = msg.Result.State
		}
		log.Debug(log.CatUI, "Run finished", "state", m.state.String())
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc", "q":
		if m.done {
			return m, tea.Quit
		}
		if !m.cancelSent && m.canceller != nil {
			m.cancelSent = m.canceller.Cancel()
			log.Info(log.CatUI, "Cancel requested from run view", "accepted", m.cancelSent)
		}
		return m, nil
	case "j", "down":
		m.viewport.ScrollDown(1)
		m.follow = m.viewport.AtBottom()
	case "k", "up":
		m.viewport.ScrollUp(1)
		m.follow = false
	case "g":
		m.viewport.GotoTop()
		m.follow = false
	case "G":
		m.viewport.GotoBottom()
		m.follow = true
	case "w":
		m.wrap = !m.wrap
		m.refresh()
	}
	return m, nil
}

func (m *Model) apply(ev pubsub.Event[registration.Progress]) {
	p := ev.Payload
	if p.JobID != "" {
		m.jobID = p.JobID
	}
	switch ev.Type {
	case pubsub.StateChangedEvent:
		m.state = p.State
	case pubsub.OutputEvent:
		m.appendLine(outputLine{text: p.Line})
	}
}

func (m *Model) appendLine(line outputLine) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	m.refresh()
}

func (m *Model) resize() {
	w := max(m.width-2, 20)
	h := max(m.height-6, 3)
	m.viewport.Width = w
	m.viewport.Height = h
	m.refresh()
}

func (m *Model) refresh() {
	width := m.viewport.Width
	rendered := make([]string, len(m.lines))
	for i, l := range m.lines {
		text := l.text
		if m.wrap {
			// Hard-wrap what word wrapping leaves too long, such as paths.
			text = wrap.String(wordwrap.String(text, width), width)
		} else {
			text = styles.TruncateToWidth(text, width)
		}
		if l.status {
			text = styles.TitleStyle.Render(text)
		}
		rendered[i] = text
	}
	m.viewport.SetContent(strings.Join(rendered, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// View renders the header, output box and key hints.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(styles.OutputBoxStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

func (m Model) header() string {
	failed := m.state == registration.StateFailed
	cancelled := m.state == registration.StateCancelled || m.state == registration.StateCancelling
	status := styles.StatusStyle(m.state.IsTerminal(), failed, cancelled).Render(m.state.String())

	prefix := m.spinner.View() + " "
	if m.done || m.state.IsTerminal() {
		prefix = ""
	}
	title := styles.TitleStyle.Render(m.title)
	line := fmt.Sprintf("%s%s  %s", prefix, title, status)
	if m.jobID != "" {
		line += "  " + styles.HintStyle.Render(m.jobID)
	}
	if m.width > 0 {
		line = styles.TruncateString(line, m.width)
	}
	return line
}

func (m Model) footer() string {
	switch {
	case m.err != nil && !errors.Is(m.err, context.Canceled):
		return styles.ErrorStyle.Render(m.err.Error())
	case m.done:
		return styles.HintStyle.Render("[q] close")
	case m.cancelSent:
		return styles.HintStyle.Render("cancelling...")
	default:
		return styles.HintStyle.Render("[q/esc] cancel  [j/k] scroll  [g/G] top/bottom  [w] wrap")
	}
}

// Lines returns the output lines received so far.
func (m Model) Lines() []string {
	out := make([]string, len(m.lines))
	for i, l := range m.lines {
		out[i] = l.text
	}
	return out
}

// State returns the last state seen.
func (m Model) State() registration.State { return m.state }

// Result returns the run result once DoneMsg arrived.
func (m Model) Result() (*registration.Result, error) { return m.result, m.err }

// Wrapped reports whether long lines are wrapped instead of truncated.
func (m Model) Wrapped() bool { return m.wrap }

// CancelRequested reports whether a cancel was accepted by the runner.
func (m Model) CancelRequested() bool { return m.cancelSent }
