// Package chat holds the view model of a negotiation chat: ordered history,
// the per-session state machine, the one-time automated greeting and the
// rendering rules for message bubbles.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/procurebot/internal/models"
	"github.com/zulandar/procurebot/internal/realtime"
)

// ErrInputDisabled is returned when sending or concluding outside the
// Active state.
var ErrInputDisabled = errors.New("chat: input is disabled")

// State is the lifecycle of one chat view.
type State int

const (
	StateLoading State = iota
	StateRoleUnselected
	StateActive
	StateConcluded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateRoleUnselected:
		return "role-unselected"
	case StateActive:
		return "active"
	case StateConcluded:
		return "concluded"
	default:
		return "unknown"
	}
}

// Session is the part of realtime.Session the view model drives.
type Session interface {
	Connect(ctx context.Context, role models.Role) error
	SendMessage(ctx context.Context, text string) (bool, error)
	Publish(ctx context.Context, msg models.ChatMessage) (bool, error)
	Conclude(ctx context.Context) (bool, error)
	MarkConcluded()
	Connected() bool
}

// ModelOpts holds parameters for creating a Model.
type ModelOpts struct {
	Session Session
	// ExportURL maps a negotiation id to its PDF export link. Optional.
	ExportURL func(id string) string
	Logger    zerolog.Logger
}

// Model is the chat view model of one negotiation. It is not safe for
// concurrent use; the owning view applies records and updates from a
// single goroutine.
type Model struct {
	session   Session
	exportURL func(string) string
	log       zerolog.Logger
	now       func() time.Time

	state     State
	record    *models.Negotiation
	history   []models.ChatMessage
	role      models.Role
	connected bool
	loadErr   error
	linkErr   error
	closed    bool

	live         bool // an inbound event has been applied
	announced    bool // the conclusion system message was appended
	greetPending bool
	greetSent    bool
}

// NewModel returns a Model in the Loading state.
func NewModel(opts ModelOpts) (*Model, error) {
	if opts.Session == nil {
		return nil, errors.New("chat: session is required")
	}
	return &Model{
		session:   opts.Session,
		exportURL: opts.ExportURL,
		log:       opts.Logger,
		now:       time.Now,
	}, nil
}

// State returns the current state.
func (m *Model) State() State { return m.state }

// Record returns the last applied negotiation record, nil while loading.
func (m *Model) Record() *models.Negotiation { return m.record }

// History returns a copy of the chat history in display order.
func (m *Model) History() []models.ChatMessage {
	return append([]models.ChatMessage(nil), m.history...)
}

// Role returns the chosen role, empty until SelectRole.
func (m *Model) Role() models.Role { return m.role }

// Connected reports the last known state of the realtime channel.
func (m *Model) Connected() bool { return m.connected }

// LoadErr returns the error of a failed record fetch.
func (m *Model) LoadErr() error { return m.loadErr }

// LinkErr returns the last realtime connection error, nil when healthy.
func (m *Model) LinkErr() error { return m.linkErr }

// InputEnabled reports whether messages can be composed.
func (m *Model) InputEnabled() bool { return m.state == StateActive }

// GreetingSent reports whether the automated greeting has been published.
func (m *Model) GreetingSent() bool { return m.greetSent }

// Close detaches the model. Records and updates applied afterwards are
// discarded.
func (m *Model) Close() { m.closed = true }

// ApplyRecord applies the result of a record fetch. A failed first fetch
// keeps the model in Loading with the error exposed. Later fetches refresh
// the record's metadata but keep the live history once inbound events have
// been applied.
func (m *Model) ApplyRecord(ctx context.Context, rec *models.Negotiation, err error) {
	if m.closed {
		return
	}
	if err != nil {
		if m.record == nil {
			m.loadErr = err
		}
		m.log.Warn().Err(err).Msg("negotiation fetch failed")
		return
	}
	if rec == nil {
		return
	}
	first := m.record == nil
	m.record = rec
	m.loadErr = nil
	switch {
	case first:
		m.history = mergeHistory(rec.ChatHistory, m.history)
	case !m.live:
		m.history = append([]models.ChatMessage(nil), rec.ChatHistory...)
	}

	if rec.IsConcluded() {
		m.conclude()
		return
	}
	if m.state == StateLoading {
		m.state = StateRoleUnselected
		if m.role != "" {
			m.state = StateActive
		}
	}
	if first && len(m.history) == 0 && !m.greetSent && !rec.FromCache {
		m.greetPending = true
	}
	m.maybeGreet(ctx)
}

// mergeHistory appends the messages received live before the first record
// to the fetched history. Live messages the record already ends with are
// not repeated.
func mergeHistory(fetched, early []models.ChatMessage) []models.ChatMessage {
	out := append([]models.ChatMessage(nil), fetched...)
	overlap := min(len(fetched), len(early))
	for ; overlap > 0; overlap-- {
		if slices.Equal(fetched[len(fetched)-overlap:], early[:overlap]) {
			break
		}
	}
	return append(out, early[overlap:]...)
}

// Apply absorbs one update from the realtime session.
func (m *Model) Apply(ctx context.Context, u realtime.Update) {
	if m.closed {
		return
	}
	switch u.Kind {
	case realtime.UpdateMessage:
		m.live = true
		m.history = append(m.history, u.Message)
		m.greetPending = false
	case realtime.UpdateConcluded:
		m.live = true
		if !m.announced {
			m.announced = true
			m.history = append(m.history, ConcludedMessage(u.Closer, u.Time))
		}
		m.conclude()
	case realtime.UpdateStatus:
		m.connected = u.Connected
		m.linkErr = u.Err
		if u.Connected {
			m.maybeGreet(ctx)
		}
	}
}

// SelectRole chooses the viewer's identity and re-joins the room with it.
// The choice cannot be undone.
func (m *Model) SelectRole(ctx context.Context, role models.Role) error {
	if role != models.RoleBuyer && role != models.RoleSupplier {
		return fmt.Errorf("chat: cannot select role %q", role)
	}
	if m.role != "" {
		return fmt.Errorf("chat: role already selected as %s", m.role)
	}
	m.role = role
	if m.state == StateRoleUnselected {
		m.state = StateActive
	}
	if err := m.session.Connect(ctx, role); err != nil {
		return fmt.Errorf("chat: join as %s: %w", role, err)
	}
	return nil
}

// Send emits text through the session. The message shows up in History
// only when the backend echoes it back.
func (m *Model) Send(ctx context.Context, text string) (bool, error) {
	if m.state != StateActive {
		return false, ErrInputDisabled
	}
	return m.session.SendMessage(ctx, text)
}

// Conclude asks the backend to end the negotiation.
func (m *Model) Conclude(ctx context.Context) (bool, error) {
	if m.state != StateActive {
		return false, ErrInputDisabled
	}
	return m.session.Conclude(ctx)
}

func (m *Model) conclude() {
	if m.state == StateConcluded {
		return
	}
	m.state = StateConcluded
	m.greetPending = false
	m.session.MarkConcluded()
}

// maybeGreet publishes the automated greeting once the channel is up.
func (m *Model) maybeGreet(ctx context.Context) {
	if !m.greetPending || m.greetSent || m.record == nil || m.state == StateConcluded {
		return
	}
	if !m.connected && !m.session.Connected() {
		return
	}
	sent, err := m.session.Publish(ctx, Greeting(m.record.TargetDetails, m.now()))
	if err != nil {
		m.log.Debug().Err(err).Msg("greeting deferred")
		return
	}
	m.greetPending = false
	m.greetSent = sent
}

// ConcludedMessage is the system message announcing a conclusion.
func ConcludedMessage(closer models.Role, at models.Timestamp) models.ChatMessage {
	who := string(closer)
	if who == "" {
		who = "unknown"
	}
	return models.ChatMessage{
		Sender:    models.RoleSystem,
		Text:      fmt.Sprintf("Negotiation concluded by %s at %s", who, at.Display()),
		Timestamp: at,
	}
}
