// Package tui is the terminal front end: an orb indicator, the chat log and
// an input line.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vist/internal/assistant"
	"vist/internal/conversation"
	"vist/internal/orb"
)

const (
	headerHeight = 2
	footerHeight = 3
	frameEvery   = 250 * time.Millisecond
)

// Controller is the part of the assistant the TUI drives.
type Controller interface {
	Submit(text string) error
	Listen() error
	StopListening() error
	Stop() error
	AnalyzeImage(path, prompt string) error
	Messages() []conversation.Message
	State() orb.State
	Subscribe() (<-chan assistant.Event, func())
}

type eventMsg assistant.Event

type closedMsg struct{}

type errMsg struct{ err error }

type frameMsg struct{}

type Model struct {
	ctl    Controller
	events <-chan assistant.Event
	cancel func()
	keys   keyMap

	input    textinput.Model
	viewport viewport.Model
	ready    bool

	messages []conversation.Message
	state    orb.State
	notice   string
	frame    int
	width    int
	height   int
}

func New(ctl Controller) *Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message, /image <path> [prompt], ctrl+l to talk"
	ti.CharLimit = 4000
	ti.Prompt = "› "
	ti.Focus()

	events, cancel := ctl.Subscribe()
	return &Model{
		ctl:      ctl,
		events:   events,
		cancel:   cancel,
		keys:     defaultKeys(),
		input:    ti,
		messages: ctl.Messages(),
		state:    ctl.State(),
		width:    80,
		height:   24,
	}
}

// Run blocks until the user quits.
func Run(ctl Controller) error {
	m := New(ctl)
	defer m.cancel()
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent(), tick())
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func tick() tea.Cmd {
	return tea.Tick(frameEvery, func(time.Time) tea.Msg { return frameMsg{} })
}

func call(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := max(1, m.height-headerHeight-footerHeight)
		if !m.ready {
			m.viewport = viewport.New(m.width, h)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = h
		}
		m.input.Width = max(10, m.width-4)
		m.refresh()
		return m, nil

	case eventMsg:
		m.handleEvent(assistant.Event(msg))
		return m, m.waitForEvent()

	case closedMsg:
		return m, tea.Quit

	case errMsg:
		m.notice = msg.err.Error()
		return m, nil

	case frameMsg:
		m.frame++
		return m, tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Send):
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.notice = ""
			return m, m.submit(text)

		case key.Matches(msg, m.keys.Listen):
			m.notice = ""
			if m.state == orb.Listening {
				return m, call(m.ctl.StopListening)
			}
			return m, call(m.ctl.Listen)

		case key.Matches(msg, m.keys.Stop):
			return m, call(m.ctl.Stop)

		case key.Matches(msg, m.keys.Up):
			m.viewport.ViewUp()
			return m, nil

		case key.Matches(msg, m.keys.Down):
			m.viewport.ViewDown()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit handles /image commands and plain text.
func (m *Model) submit(text string) tea.Cmd {
	if rest, ok := strings.CutPrefix(text, "/image "); ok {
		path, prompt, _ := strings.Cut(strings.TrimSpace(rest), " ")
		return call(func() error { return m.ctl.AnalyzeImage(path, prompt) })
	}
	return call(func() error { return m.ctl.Submit(text) })
}

func (m *Model) handleEvent(ev assistant.Event) {
	switch ev.Type {
	case assistant.EventState:
		m.state = ev.State
	case assistant.EventLog:
		m.messages = m.ctl.Messages()
		m.refresh()
	case assistant.EventNotice:
		m.notice = ev.Text
	case assistant.EventTranscript:
		m.notice = ""
	}
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderLog(m.messages, m.width))
	if atBottom || m.viewport.TotalLineCount() <= m.viewport.Height {
		m.viewport.GotoBottom()
	}
}

func renderLog(msgs []conversation.Message, width int) string {
	body := lipgloss.NewStyle().Width(max(10, width-2)).PaddingLeft(2)

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		label := aiLabel.Render("vist")
		if msg.Variant.IsUser() {
			label = userLabel.Render("you")
		}
		fmt.Fprintf(&b, "%s %s\n", label, timeStyle.Render(msg.Time))
		b.WriteString(body.Render(renderBody(msg)))
		b.WriteString("\n")
	}
	return b.String()
}

func renderBody(msg conversation.Message) string {
	switch msg.Variant {
	case conversation.AIImageLoading:
		return pendStyle.Render("Generating image…")
	case conversation.AIAnalyzingImage:
		return pendStyle.Render("Analyzing image…")
	case conversation.AIImageResult:
		return imageStyle.Render(msg.ImageURL)
	case conversation.UserImageWithText:
		return imageStyle.Render(msg.ImageURL) + "\n" + msg.Text
	case conversation.AITextStreaming:
		return msg.Text + pendStyle.Render("▍")
	}
	return msg.Text
}

func (m *Model) View() string {
	if !m.ready {
		return "starting…"
	}

	header := headerBar.Width(max(0, m.width-2)).Render(renderOrb(m.state, m.frame))

	var help []string
	for _, b := range m.keys.help() {
		h := b.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	footer := m.input.View() + "\n"
	if m.notice != "" {
		footer += noticeBox.Render(m.notice)
	} else {
		footer += helpStyle.Render(strings.Join(help, " · "))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer)
}
