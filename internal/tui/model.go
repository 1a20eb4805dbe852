// Package tui is the interactive chat surface: a transcript viewport over a
// single input line, with slash commands for source and session management.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/domain"
	"ragchat/internal/prompt"
	"ragchat/internal/vectorstore"
)

// ChatPort is the TUI-facing subset of the pipeline.
type ChatPort interface {
	ProcessSources(ctx context.Context, sources []domain.Source, sessionID string) (int, error)
	Ask(ctx context.Context, question, sessionID, conversation string) (domain.Answer, error)
	ResetSession(ctx context.Context, sessionID string) bool
	StorageStatus(ctx context.Context) vectorstore.Stats
}

const helpText = `Commands:
  /add <url or file path>   ingest a source into this session
  /reset                    forget this session's sources and history
  /status                   vector storage usage
  /help                     this text
Anything else is a question.`

type answerMsg struct {
	question string
	answer   domain.Answer
	err      error
}

type ingestMsg struct {
	label string
	count int
	err   error
}

type resetMsg struct{ ok bool }

type statusMsg struct{ stats vectorstore.Stats }

// Model is the Bubble Tea model for the chat application.
type Model struct {
	pipeline     ChatPort
	sessionID    string
	conversation string
	convBudget   int

	input      textinput.Model
	viewport   viewport.Model
	transcript []string
	status     string
	busy       bool
	ready      bool
}

// New creates the chat model bound to a session.
func New(pipeline ChatPort, sessionID string, convBudget int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /help"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	if convBudget <= 0 {
		convBudget = 2000
	}
	return Model{
		pipeline:   pipeline,
		sessionID:  sessionID,
		convBudget: convBudget,
		input:      ti,
		viewport:   vp,
		status:     "Ready. /add a source or just ask.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and completion events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around transcript and input boxes
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header + status + input frame + spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-th)
		m.viewport.SetContent(m.renderTranscript())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if m.busy {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.SetValue("")
			return m.dispatch(line)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.appendLine(assistantStyle.Render("Assistant: ") + msg.answer.Text)
		if len(msg.answer.UsedSources) > 0 {
			m.appendLine(sourceStyle.Render("Sources: " + strings.Join(msg.answer.UsedSources, ", ")))
		}
		m.conversation = prompt.AppendTurn(m.conversation,
			prompt.FormatTurn(domain.Turn{Role: domain.RoleUser, Text: msg.question}), m.convBudget)
		m.conversation = prompt.AppendTurn(m.conversation,
			prompt.FormatTurn(domain.Turn{Role: domain.RoleAssistant, Text: msg.answer.Text}), m.convBudget)
		m.status = "Ready."
		return m, nil

	case ingestMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.status = "Ingest failed: " + msg.err.Error()
		case msg.count == 0:
			m.status = fmt.Sprintf("%s was already in this session", msg.label)
		default:
			m.status = fmt.Sprintf("Added %s", msg.label)
			m.appendLine(sourceStyle.Render("[added source: " + msg.label + "]"))
		}
		return m, nil

	case resetMsg:
		m.busy = false
		if msg.ok {
			m.transcript = nil
			m.conversation = ""
			m.viewport.SetContent(m.renderTranscript())
			m.status = "Session reset."
		} else {
			m.status = "Reset failed, session may still hold data."
		}
		return m, nil

	case statusMsg:
		m.busy = false
		s := msg.stats
		m.status = fmt.Sprintf("Storage: %d/%d points (%.1f%%, %s)", s.Count, s.Limit, s.Percent, s.Status)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// dispatch routes an input line to a slash command or a question.
func (m Model) dispatch(line string) (Model, tea.Cmd) {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/help":
		m.appendLine(sourceStyle.Render(helpText))
		return m, nil
	case "/add":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			m.status = "Usage: /add <url or file path>"
			return m, nil
		}
		m.busy = true
		m.status = "Adding " + arg + "..."
		return m, m.ingestCmd(arg)
	case "/reset":
		m.busy = true
		m.status = "Resetting session..."
		return m, m.resetCmd()
	case "/status":
		m.busy = true
		return m, m.statusCmd()
	default:
		if strings.HasPrefix(cmd, "/") {
			m.status = "Unknown command " + cmd + ", try /help"
			return m, nil
		}
		m.appendLine(userStyle.Render("You: ") + line)
		m.busy = true
		m.status = "Thinking..."
		return m, m.askCmd(line)
	}
}

func (m Model) askCmd(question string) tea.Cmd {
	pipeline, session, conversation := m.pipeline, m.sessionID, m.conversation
	return func() tea.Msg {
		answer, err := pipeline.Ask(context.Background(), question, session, conversation)
		return answerMsg{question: question, answer: answer, err: err}
	}
}

func (m Model) ingestCmd(arg string) tea.Cmd {
	pipeline, session := m.pipeline, m.sessionID
	return func() tea.Msg {
		src, label, err := sourceFromArg(arg)
		if err != nil {
			return ingestMsg{label: arg, err: err}
		}
		n, err := pipeline.ProcessSources(context.Background(), []domain.Source{src}, session)
		return ingestMsg{label: label, count: n, err: err}
	}
}

func (m Model) resetCmd() tea.Cmd {
	pipeline, session := m.pipeline, m.sessionID
	return func() tea.Msg {
		return resetMsg{ok: pipeline.ResetSession(context.Background(), session)}
	}
}

func (m Model) statusCmd() tea.Cmd {
	pipeline := m.pipeline
	return func() tea.Msg {
		return statusMsg{stats: pipeline.StorageStatus(context.Background())}
	}
}

// sourceFromArg interprets the /add argument: URLs are fetched by the
// pipeline, anything else is read as a local file.
func sourceFromArg(arg string) (domain.Source, string, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return domain.Source{Type: domain.SourceWeb, Identifier: arg}, arg, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return domain.Source{}, arg, err
	}
	name := filepath.Base(arg)
	return domain.Source{Type: domain.SourceFile, Identifier: name, Text: string(data)}, name, nil
}

func (m *Model) appendLine(line string) {
	m.transcript = append(m.transcript, line)
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return "No messages yet. /add a source, then ask about it."
	}
	return strings.Join(m.transcript, "\n\n")
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG Chat")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	sourceStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
