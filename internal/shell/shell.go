// Package shell is the interactive operator console. Each submitted line
// is resolved into a command when it names one and otherwise handed to
// the agent as a conversational turn. Only one turn runs at a time.
package shell

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nugget/mcpgw-cli/internal/agent"
	"github.com/nugget/mcpgw-cli/internal/command"
	"github.com/nugget/mcpgw-cli/internal/dispatch"
	"github.com/nugget/mcpgw-cli/internal/llm"
)

// Dispatcher executes resolved commands.
type Dispatcher interface {
	Execute(ctx context.Context, inv command.Invocation) dispatch.Result
}

// Agent runs one conversational turn.
type Agent interface {
	Run(ctx context.Context, history []llm.Message, userText string, callback llm.StreamCallback) (*agent.Response, error)
}

// Config configures the shell.
type Config struct {
	Resolver   *command.Resolver
	Dispatcher Dispatcher

	// Agent handles free text. When nil, free text is answered with a
	// hint to use commands.
	Agent Agent

	// Banner lines are shown above the first prompt.
	Banner []string

	Logger *slog.Logger
}

// Run starts the shell and blocks until the operator quits or ctx is
// cancelled.
func Run(ctx context.Context, in io.Reader, out io.Writer, cfg Config) error {
	m := newModel(ctx, cfg)
	prog := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	_, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type styles struct {
	banner lipgloss.Style
	user   lipgloss.Style
	output lipgloss.Style
	errorL lipgloss.Style
	tool   lipgloss.Style
	muted  lipgloss.Style
}

func defaultStyles() styles {
	accent := lipgloss.Color("#01cdfe")
	muted := lipgloss.Color("#9ca3d8")
	return styles{
		banner: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		user:   lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1")).Bold(true),
		output: lipgloss.NewStyle(),
		errorL: lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f87")),
		tool:   lipgloss.NewStyle().Foreground(accent),
		muted:  lipgloss.NewStyle().Foreground(muted),
	}
}

// Messages produced by background work.
type (
	dispatchDoneMsg struct {
		result dispatch.Result
	}

	agentEventMsg struct {
		event llm.StreamEvent
		ch    <-chan tea.Msg
	}

	agentDoneMsg struct {
		resp *agent.Response
		err  error
	}
)

type model struct {
	ctx        context.Context
	resolver   *command.Resolver
	dispatcher Dispatcher
	agent      Agent
	logger     *slog.Logger
	styles     styles

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	banner  []string
	lines   []string
	partial strings.Builder
	history []llm.Message

	width int
	busy  bool
}

func newModel(ctx context.Context, cfg Config) *model {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = command.NewResolver(nil)
	}

	in := textinput.New()
	in.Placeholder = "Ask a question or type /help"
	in.Prompt = "mcpgw› "
	in.CharLimit = 0
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	banner := append([]string(nil), cfg.Banner...)
	banner = append(banner, "Type /help for commands, exit to quit.")

	return &model{
		ctx:        ctx,
		resolver:   resolver,
		dispatcher: cfg.Dispatcher,
		agent:      cfg.Agent,
		logger:     logger.With("component", "shell"),
		styles:     defaultStyles(),
		input:      in,
		viewport:   viewport.New(80, 20),
		spinner:    sp,
		banner:     banner,
		width:      80,
	}
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 10)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-lipgloss.Height(m.bannerView())-2, 3)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case dispatchDoneMsg:
		m.busy = false
		m.appendResult(msg.result)
		return m, nil

	case agentEventMsg:
		m.handleEvent(msg.event)
		return m, waitForAgent(msg.ch)

	case agentDoneMsg:
		m.busy = false
		m.partial.Reset()
		if msg.err != nil {
			m.appendLines(m.styles.errorL, "Error: "+msg.err.Error())
		} else {
			m.history = msg.resp.History
			m.appendLines(m.styles.output, strings.Split(msg.resp.Content, "\n")...)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles the enter key. Lines entered while a turn is running
// are left in the input untouched.
func (m *model) submit() tea.Cmd {
	if m.busy {
		return nil
	}
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if text == "" {
		return nil
	}
	switch strings.ToLower(text) {
	case "exit", "quit":
		return tea.Quit
	}

	m.appendLines(m.styles.user, "› "+text)

	if inv, ok := m.resolver.Resolve(text); ok {
		m.logger.Debug("dispatching command", "kind", command.Kind(inv))
		m.busy = true
		return tea.Batch(m.spinner.Tick, m.dispatch(inv))
	}

	if m.agent == nil {
		m.appendLines(m.styles.muted, "No model is configured. Use /help to see available commands.")
		return nil
	}

	m.busy = true
	ch := make(chan tea.Msg, 16)
	go m.runAgent(m.history, text, ch)
	return tea.Batch(m.spinner.Tick, waitForAgent(ch))
}

func (m *model) dispatch(inv command.Invocation) tea.Cmd {
	ctx := m.ctx
	d := m.dispatcher
	return func() tea.Msg {
		return dispatchDoneMsg{result: d.Execute(ctx, inv)}
	}
}

// runAgent runs one turn, forwarding progress events on ch and finishing
// with an agentDoneMsg before closing it.
func (m *model) runAgent(history []llm.Message, text string, ch chan<- tea.Msg) {
	defer close(ch)
	resp, err := m.agent.Run(m.ctx, history, text, func(ev llm.StreamEvent) {
		ch <- agentEventMsg{event: ev}
	})
	ch <- agentDoneMsg{resp: resp, err: err}
}

func waitForAgent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		if ev, isEvent := msg.(agentEventMsg); isEvent {
			ev.ch = ch
			return ev
		}
		return msg
	}
}

func (m *model) handleEvent(ev llm.StreamEvent) {
	switch ev.Kind {
	case llm.KindToken:
		m.partial.WriteString(ev.Token)
		m.refresh()
	case llm.KindToolCallStart:
		if ev.ToolCall != nil {
			m.appendLines(m.styles.tool, "→ "+ev.ToolCall.Name+" "+describeInput(ev.ToolCall.Input))
		}
	case llm.KindToolCallDone:
		m.partial.Reset()
		if ev.ToolError {
			m.appendLines(m.styles.errorL, "← "+ev.ToolName+" failed")
		} else {
			m.appendLines(m.styles.muted, "← "+ev.ToolName+" done")
		}
	}
}

func describeInput(input map[string]any) string {
	if cmd, ok := input["command"].(string); ok {
		if tool, ok := input["tool"].(string); ok && tool != "" {
			return cmd + " " + tool
		}
		return cmd
	}
	return ""
}

func (m *model) appendResult(res dispatch.Result) {
	style := m.styles.output
	if res.IsError {
		style = m.styles.errorL
	}
	m.appendLines(style, res.Lines...)
}

func (m *model) appendLines(style lipgloss.Style, lines ...string) {
	for _, line := range lines {
		m.lines = append(m.lines, style.Width(m.width).Render(line))
	}
	m.refresh()
}

func (m *model) refresh() {
	content := strings.Join(m.lines, "\n")
	if m.partial.Len() > 0 {
		content += "\n" + m.styles.output.Width(m.width).Render(m.partial.String())
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m *model) bannerView() string {
	return m.styles.banner.Render(strings.Join(m.banner, "\n"))
}

func (m *model) View() string {
	var b strings.Builder
	b.WriteString(m.bannerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if m.busy {
		b.WriteString(m.spinner.View() + " working…")
	} else {
		b.WriteString(m.input.View())
	}
	return b.String()
}
