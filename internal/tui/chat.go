// Package tui is the terminal chat view of a negotiation, a bubbletea
// program over the chat view model.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/zulandar/procurebot/internal/api"
	"github.com/zulandar/procurebot/internal/chat"
	"github.com/zulandar/procurebot/internal/models"
	"github.com/zulandar/procurebot/internal/realtime"
)

// Records fetches the full negotiation record.
type Records interface {
	GetNegotiation(ctx context.Context, id string) (*models.Negotiation, error)
}

// Session is the realtime session the view drives and listens to.
type Session interface {
	chat.Session
	Updates() <-chan realtime.Update
	Close() error
}

// Opts holds parameters for creating the chat view.
type Opts struct {
	NegotiationID string
	Records       Records
	Session       Session
	// Role joins immediately as buyer or supplier instead of asking.
	Role      models.Role
	ExportURL func(id string) string
	Logger    zerolog.Logger
}

// --- Messages ---

type recordMsg struct {
	rec *models.Negotiation
	err error
}

type updateMsg struct {
	update realtime.Update
	ok     bool
}

type connectedMsg struct{ err error }

// --- Key bindings ---

type keyMap struct {
	Quit     key.Binding
	Send     key.Binding
	Conclude key.Binding
	Refresh  key.Binding
	Buyer    key.Binding
	Supplier key.Binding
	Up       key.Binding
	Down     key.Binding
}

var keys = keyMap{
	Quit:     key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
	Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Conclude: key.NewBinding(key.WithKeys("ctrl+e"), key.WithHelp("ctrl+e", "conclude")),
	Refresh:  key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh")),
	Buyer:    key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "join as buyer")),
	Supplier: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "join as supplier")),
	Up:       key.NewBinding(key.WithKeys("pgup", "up"), key.WithHelp("pgup", "scroll up")),
	Down:     key.NewBinding(key.WithKeys("pgdown", "down"), key.WithHelp("pgdn", "scroll down")),
}

// Model is the bubbletea model of the chat view.
type Model struct {
	ctx     context.Context
	id      string
	records Records
	session Session
	chat    *chat.Model
	preRole models.Role
	log     zerolog.Logger

	spinner  spinner.Model
	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
	ready    bool

	notice string // last transient error or hint
	quit   bool
}

// New creates the chat view. ctx bounds every request the view makes.
func New(ctx context.Context, opts Opts) (*Model, error) {
	if opts.NegotiationID == "" {
		return nil, errors.New("tui: negotiation id is required")
	}
	if opts.Records == nil {
		return nil, errors.New("tui: records client is required")
	}
	if opts.Session == nil {
		return nil, errors.New("tui: session is required")
	}
	cm, err := chat.NewModel(chat.ModelOpts{
		Session:   opts.Session,
		ExportURL: opts.ExportURL,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("tui: %w", err)
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.CharLimit = 2000

	return &Model{
		ctx:      ctx,
		id:       opts.NegotiationID,
		records:  opts.Records,
		session:  opts.Session,
		chat:     cm,
		preRole:  opts.Role,
		log:      opts.Logger,
		spinner:  sp,
		input:    ti,
		viewport: viewport.New(80, 20),
	}, nil
}

// Run shows the chat view until the user quits or ctx is cancelled. The
// session is closed before Run returns.
func Run(ctx context.Context, opts Opts) error {
	m, err := New(ctx, opts)
	if err != nil {
		return err
	}
	defer m.closeSession()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// Chat exposes the underlying view model.
func (m *Model) Chat() *chat.Model { return m.chat }

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch(), m.connect(), m.waitForUpdate())
}

func (m *Model) fetch() tea.Cmd {
	return func() tea.Msg {
		rec, err := m.records.GetNegotiation(m.ctx, m.id)
		return recordMsg{rec: rec, err: err}
	}
}

func (m *Model) connect() tea.Cmd {
	return func() tea.Msg {
		return connectedMsg{err: m.session.Connect(m.ctx, "")}
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	updates := m.session.Updates()
	return func() tea.Msg {
		u, ok := <-updates
		return updateMsg{update: u, ok: ok}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true

	case spinner.TickMsg:
		if m.chat.State() == chat.StateLoading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case recordMsg:
		m.chat.ApplyRecord(m.ctx, msg.rec, msg.err)
		if msg.err == nil && m.preRole != "" && m.chat.State() == chat.StateRoleUnselected {
			m.selectRole(m.preRole)
		}

	case connectedMsg:
		if msg.err != nil {
			m.notice = "Live connection failed: " + msg.err.Error()
		}

	case updateMsg:
		if !msg.ok {
			break
		}
		m.chat.Apply(m.ctx, msg.update)
		cmds = append(cmds, m.waitForUpdate())

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
		if m.chat.InputEnabled() {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if m.chat.InputEnabled() && !m.input.Focused() {
		cmds = append(cmds, m.input.Focus())
	} else if !m.chat.InputEnabled() && m.input.Focused() {
		m.input.Blur()
	}
	m.viewport.SetContent(renderBubbles(m.chat.Bubbles(), m.viewport.Width))
	m.viewport.GotoBottom()
	return m, tea.Batch(cmds...)
}

// handleKey runs key bindings. It reports false for keys meant for the
// text input.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.closeSession()
		return tea.Quit, true

	case key.Matches(msg, keys.Refresh):
		return m.fetch(), true

	case key.Matches(msg, keys.Up):
		m.viewport.HalfPageUp()
		return nil, true

	case key.Matches(msg, keys.Down):
		m.viewport.HalfPageDown()
		return nil, true
	}

	switch m.chat.State() {
	case chat.StateRoleUnselected:
		switch {
		case key.Matches(msg, keys.Buyer):
			m.selectRole(models.RoleBuyer)
		case key.Matches(msg, keys.Supplier):
			m.selectRole(models.RoleSupplier)
		case msg.String() == "q":
			m.closeSession()
			return tea.Quit, true
		}
		return nil, true

	case chat.StateActive:
		switch {
		case key.Matches(msg, keys.Send):
			m.send()
			return nil, true
		case key.Matches(msg, keys.Conclude):
			if _, err := m.chat.Conclude(m.ctx); err != nil {
				m.notice = "Could not conclude: " + err.Error()
			}
			return nil, true
		}
		return nil, false
	}

	if msg.String() == "q" {
		m.closeSession()
		return tea.Quit, true
	}
	return nil, true
}

func (m *Model) selectRole(role models.Role) {
	if err := m.chat.SelectRole(m.ctx, role); err != nil {
		m.notice = err.Error()
		return
	}
	m.notice = ""
}

func (m *Model) send() {
	text := m.input.Value()
	sent, err := m.chat.Send(m.ctx, text)
	switch {
	case err != nil:
		m.notice = "Not sent: " + err.Error()
	case sent:
		m.input.Reset()
		m.notice = ""
	}
}

// closeSession detaches the view model and closes the realtime session.
// Safe to call more than once.
func (m *Model) closeSession() {
	if m.quit {
		return
	}
	m.quit = true
	m.chat.Close()
	if err := m.session.Close(); err != nil {
		m.log.Debug().Err(err).Msg("session close")
	}
}

// Notice returns the last transient message shown in the footer.
func (m *Model) Notice() string { return m.notice }

// Closed reports whether the session has been closed by quitting.
func (m *Model) Closed() bool { return m.quit }

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")

	switch {
	case m.chat.State() == chat.StateLoading && m.chat.LoadErr() != nil:
		b.WriteString(errorStyle.Render("Could not load negotiation: " + errText(m.chat.LoadErr())))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("ctrl+r retry · esc quit"))
		return b.String()
	case m.chat.State() == chat.StateLoading:
		b.WriteString(m.spinner.View() + " Loading negotiation...")
		return b.String()
	}

	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

const (
	headerHeight = 3
	footerHeight = 3
)

func (m *Model) headerView() string {
	h := m.chat.Header()
	if h.Name == "" {
		return titleStyle.Render("Negotiation " + m.id)
	}
	parts := []string{titleStyle.Render(h.Name)}
	if h.SupplierName != "" {
		parts = append(parts, "Supplier: "+h.SupplierName)
	}
	parts = append(parts, statusChip(h.Status))
	switch {
	case h.Offline:
		parts = append(parts, offlineStyle.Render("offline copy"))
	case m.chat.State() == chat.StateConcluded:
		// no live indicator once ended
	case m.chat.Connected():
		parts = append(parts, liveStyle.Render("● live"))
	default:
		parts = append(parts, offlineStyle.Render("○ connecting"))
	}
	line := strings.Join(parts, "  ")
	if h.ExportURL != "" {
		line += "\n" + helpStyle.Render("PDF: "+h.ExportURL)
	}
	return line
}

func (m *Model) footerView() string {
	var b strings.Builder
	switch m.chat.State() {
	case chat.StateRoleUnselected:
		b.WriteString("Join as [b]uyer or [s]upplier")
	case chat.StateActive:
		b.WriteString(m.input.View())
	case chat.StateConcluded:
		b.WriteString(endedStyle.Render("Negotiation has ended."))
	}
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(errorStyle.Render(m.notice))
	} else if err := m.chat.LinkErr(); err != nil && m.chat.State() != chat.StateConcluded {
		b.WriteString(offlineStyle.Render("Reconnecting: " + err.Error()))
	} else {
		b.WriteString(helpStyle.Render(m.helpLine()))
	}
	return b.String()
}

func (m *Model) helpLine() string {
	switch m.chat.State() {
	case chat.StateActive:
		return "enter send · ctrl+e conclude · ctrl+r refresh · pgup/pgdn scroll · esc quit"
	case chat.StateRoleUnselected:
		return "b buyer · s supplier · ctrl+r refresh · q quit"
	default:
		return "pgup/pgdn scroll · q quit"
	}
}

func errText(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
