// Package ui renders the live poll collection in the terminal. It is a pure
// consumer of the reconciliation store: it reads snapshots and submits
// mutations, never touching poll state directly.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/livepoll/pollstream/internal/models"
	"github.com/livepoll/pollstream/internal/session"
	"github.com/livepoll/pollstream/internal/store"
	"github.com/livepoll/pollstream/internal/transport"
)

// Options configures the UI.
type Options struct {
	Context context.Context
	Store   *store.Store
	Session *session.Session
	State   func() transport.State
}

type mode int

const (
	modeList mode = iota
	modeCreate
	modeLoginEmail
	modeLoginPassword
)

type storeChangedMsg struct{}

type statusMsg struct {
	text string
	err  error
}

// Model is the root Bubble Tea state.
type Model struct {
	ctx       context.Context
	store     *store.Store
	sess      *session.Session
	connState func() transport.State

	polls     []models.Poll
	cursor    int
	optCursor int
	mode      mode
	input     textinput.Model
	email     string
	status    string
	statusErr bool
	width     int
	height    int
}

// Run starts the UI and blocks until quit or context cancellation.
func Run(opts Options) error {
	m := Model{
		ctx:       opts.Context,
		store:     opts.Store,
		sess:      opts.Session,
		connState: opts.State,
		polls:     opts.Store.Snapshot(),
		input:     textinput.New(),
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(opts.Context))
	unsub := opts.Store.SubscribeChanges(func() {
		p.Send(storeChangedMsg{})
	})
	defer unsub()

	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case storeChangedMsg:
		m.polls = m.store.Snapshot()
		m.clamp()
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			m.statusErr = true
		} else {
			m.status = msg.text
			m.statusErr = false
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode != modeList {
			return m.updatePrompt(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.optCursor = 0
		}
	case "down", "j":
		if m.cursor < len(m.polls)-1 {
			m.cursor++
			m.optCursor = 0
		}
	case "tab":
		if p := m.current(); p != nil && len(p.Options) > 0 {
			m.optCursor = (m.optCursor + 1) % len(p.Options)
		}
	case "enter":
		if p := m.current(); p != nil && m.optCursor < len(p.Options) {
			return m, m.voteCmd(p.UUID, p.Options[m.optCursor].UUID)
		}
	case "L":
		if p := m.current(); p != nil {
			return m, m.likeCmd(p.UUID)
		}
	case "c":
		if p := m.current(); p != nil {
			m.store.ConfirmVote(p.UUID)
		}
	case "x":
		if p := m.current(); p != nil {
			m.store.ClearPending(p.UUID)
		}
	case "r":
		return m, m.refreshCmd()
	case "n":
		m.mode = modeCreate
		m.input = textinput.New()
		m.input.Placeholder = "title | option one | option two"
		m.input.Focus()
		return m, textinput.Blink
	case "i":
		if !m.sess.Authenticated() {
			m.mode = modeLoginEmail
			m.input = textinput.New()
			m.input.Placeholder = "email"
			m.input.Focus()
			return m, textinput.Blink
		}
	case "o":
		if m.sess.Authenticated() {
			m.sess.Logout()
			m.status = "signed out"
			m.statusErr = false
		}
	}
	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeList
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		switch m.mode {
		case modeCreate:
			m.mode = modeList
			return m, m.createCmd(value)
		case modeLoginEmail:
			m.email = value
			m.mode = modeLoginPassword
			m.input = textinput.New()
			m.input.Placeholder = "password"
			m.input.EchoMode = textinput.EchoPassword
			m.input.Focus()
			return m, textinput.Blink
		case modeLoginPassword:
			m.mode = modeList
			return m, m.loginCmd(m.email, value)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) current() *models.Poll {
	if m.cursor < 0 || m.cursor >= len(m.polls) {
		return nil
	}
	return &m.polls[m.cursor]
}

func (m *Model) clamp() {
	if m.cursor >= len(m.polls) {
		m.cursor = len(m.polls) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if p := m.current(); p == nil || m.optCursor >= len(p.Options) {
		m.optCursor = 0
	}
}

func (m Model) voteCmd(pollUUID, optionUUID string) tea.Cmd {
	return func() tea.Msg {
		if err := m.store.Vote(m.ctx, pollUUID, optionUUID); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "vote recorded"}
	}
}

func (m Model) likeCmd(pollUUID string) tea.Cmd {
	return func() tea.Msg {
		if err := m.store.ToggleLike(m.ctx, pollUUID); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "like toggled"}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.store.Refresh(m.ctx); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "refreshed"}
	}
}

func (m Model) createCmd(input string) tea.Cmd {
	return func() tea.Msg {
		parts := strings.Split(input, "|")
		if len(parts) < 3 {
			return statusMsg{err: fmt.Errorf("need a title and at least two options, separated by |")}
		}
		title := strings.TrimSpace(parts[0])
		var options []string
		for _, p := range parts[1:] {
			if o := strings.TrimSpace(p); o != "" {
				options = append(options, o)
			}
		}
		if _, err := m.store.Create(m.ctx, title, options); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "poll created"}
	}
}

func (m Model) loginCmd(email, password string) tea.Cmd {
	return func() tea.Msg {
		if err := m.sess.Login(m.ctx, email, password); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "signed in as " + email}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	who := "anonymous"
	if u := m.sess.User(); u != nil {
		who = u.Name
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("pollstream · %s · %s", m.connState(), who)))
	b.WriteString("\n\n")

	if m.store.Loading() {
		b.WriteString(dimStyle.Render("loading polls..."))
		b.WriteString("\n")
	} else if len(m.polls) == 0 {
		b.WriteString(dimStyle.Render("no polls yet — press n to create one"))
		b.WriteString("\n")
	}

	for i, p := range m.polls {
		b.WriteString(m.renderPoll(i, p))
	}

	if m.mode != modeList {
		b.WriteString("\n" + m.input.View() + "\n")
	}
	if m.status != "" {
		style := statusStyle
		if m.statusErr {
			style = errorStyle
		}
		b.WriteString("\n" + style.Render(m.status) + "\n")
	}

	b.WriteString("\n" + dimStyle.Render("j/k move · tab option · enter vote · L like · n new · r refresh · i sign in · o sign out · q quit"))
	return b.String()
}

func (m Model) renderPoll(i int, p models.Poll) string {
	var b strings.Builder
	vs := m.store.ViewerState(p.UUID)

	title := titleStyle
	prefix := "  "
	if i == m.cursor {
		title = selectedTitleStyle
		prefix = "> "
	}
	likes := fmt.Sprintf("%d", p.Likes)
	if vs.HasLiked {
		likes += " " + likedMark
	}
	total := p.TotalVotes
	if total == 0 {
		total = models.TotalFromOptions(p.Options)
	}
	b.WriteString(prefix + title.Render(p.Title) + dimStyle.Render(fmt.Sprintf("  %s likes · %d votes", likes, total)) + "\n")

	switch vs.OptionsChanged {
	case store.OptionChangeAdded:
		b.WriteString("    " + noticeStyle.Render("options changed: new option added — c to keep your vote, x to re-pick") + "\n")
	case store.OptionChangeRemoved:
		b.WriteString("    " + noticeStyle.Render("an option was removed — your vote was cleared, pick again or x to dismiss") + "\n")
	}

	for j, o := range p.Options {
		pct := models.Percentage(o.Votes, total)
		marker := "  "
		if i == m.cursor && j == m.optCursor {
			marker = "» "
		}
		voted := ""
		if vs.HasVoted && vs.VotedOptionUUID == o.UUID {
			voted = " " + votedMark
		}
		b.WriteString(fmt.Sprintf("    %s%-24s %s %3d%% (%d)%s\n",
			marker, o.OptionName, bar(pct, 20), pct, o.Votes, voted))
	}
	b.WriteString("\n")
	return b.String()
}
