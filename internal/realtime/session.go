package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/procurebot/internal/models"
)

var (
	// ErrNotConnected is returned when an event is sent while the channel is down.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrClosed is returned by operations on a closed Session.
	ErrClosed = errors.New("realtime: session closed")
	// ErrNoRole is returned when a role-bound event is sent before a role is chosen.
	ErrNoRole = errors.New("realtime: no role selected")
)

// Default reconnect policy.
const (
	DefaultMaxReconnect = 5
	DefaultBackoff      = 2 * time.Second
)

// UpdateKind classifies an Update.
type UpdateKind int

const (
	UpdateMessage UpdateKind = iota + 1
	UpdateConcluded
	UpdateStatus
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateMessage:
		return "message"
	case UpdateConcluded:
		return "concluded"
	case UpdateStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Update is delivered on Session.Updates for every inbound event and every
// connection state change.
type Update struct {
	Kind UpdateKind

	// UpdateMessage
	Message models.ChatMessage

	// UpdateConcluded
	Closer models.Role
	Time   models.Timestamp

	// UpdateStatus
	Connected bool
	Err       error
	Attempt   int  // consecutive failed dials
	GaveUp    bool // reconnect attempts exhausted
}

// SessionOpts holds parameters for creating a Session.
type SessionOpts struct {
	NegotiationID string
	Dialer        Dialer
	MaxReconnect  int           // consecutive failed dials before giving up; 0 means DefaultMaxReconnect
	Backoff       time.Duration // fixed wait between dials; 0 means DefaultBackoff
	Logger        zerolog.Logger
}

// Session is a subscription to one negotiation's room. It owns at most one
// live channel, reconnects it with a bounded number of attempts and re-joins
// the room after every reconnect.
type Session struct {
	id           string
	dialer       Dialer
	maxReconnect int
	backoff      time.Duration
	log          zerolog.Logger
	now          func() time.Time

	updates chan Update
	done    chan struct{}
	cancel  context.CancelFunc

	joinMu sync.Mutex // orders joins between Connect and the run loop

	mu        sync.Mutex
	role      models.Role
	ch        Channel
	started   bool
	closed    bool
	concluded bool
}

// NewSession creates a Session. Nothing is dialed until Connect.
func NewSession(opts SessionOpts) (*Session, error) {
	if opts.NegotiationID == "" {
		return nil, errors.New("realtime: negotiation id is required")
	}
	if opts.Dialer == nil {
		return nil, errors.New("realtime: dialer is required")
	}
	s := &Session{
		id:           opts.NegotiationID,
		dialer:       opts.Dialer,
		maxReconnect: opts.MaxReconnect,
		backoff:      opts.Backoff,
		log:          opts.Logger.With().Str("negotiation", opts.NegotiationID).Logger(),
		now:          time.Now,
		updates:      make(chan Update, 64),
		done:         make(chan struct{}),
	}
	if s.maxReconnect <= 0 {
		s.maxReconnect = DefaultMaxReconnect
	}
	if s.backoff <= 0 {
		s.backoff = DefaultBackoff
	}
	return s, nil
}

// NegotiationID returns the room this session is scoped to.
func (s *Session) NegotiationID() string { return s.id }

// Updates delivers inbound messages, conclusions and status changes. It is
// closed once Close returns.
func (s *Session) Updates() <-chan Update { return s.updates }

// Connect opens the channel on first use and joins the room as role, or as
// guest when role is empty. Calling it again, e.g. after a role change,
// re-joins on the live channel instead of opening another one. The first
// call's ctx bounds the session's lifetime.
func (s *Session) Connect(ctx context.Context, role models.Role) error {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if role != "" {
		s.role = role
	}
	if !s.started {
		s.started = true
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.mu.Unlock()
		go s.run(runCtx)
		return nil
	}
	ch, joinAs := s.ch, s.joinRole()
	s.mu.Unlock()

	if ch == nil {
		// The run loop joins with the new role when it reconnects.
		return nil
	}
	return s.join(ctx, ch, joinAs)
}

// SendMessage emits a chat message from the session's role. It reports
// false without error when text is blank or the negotiation is concluded.
// The message is not added to any local history; it arrives back through
// Updates like every other participant's message.
func (s *Session) SendMessage(ctx context.Context, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	s.mu.Lock()
	role := s.role
	s.mu.Unlock()
	if role == "" {
		return false, ErrNoRole
	}
	return s.Publish(ctx, models.ChatMessage{Sender: role, Text: text, Timestamp: models.NewTimestamp(s.now())})
}

// Publish emits a prepared chat message. Blank messages and messages sent
// after conclusion are dropped and reported as not sent.
func (s *Session) Publish(ctx context.Context, msg models.ChatMessage) (bool, error) {
	if strings.TrimSpace(msg.Text) == "" {
		return false, nil
	}
	if msg.Timestamp == "" {
		msg.Timestamp = models.NewTimestamp(s.now())
	}
	ch, concluded, err := s.liveChannel()
	if concluded {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ev, err := NewEvent(EventChat, ChatPayload{NegotiationID: s.id, MessageObj: msg})
	if err != nil {
		return false, err
	}
	if err := ch.Send(ctx, ev); err != nil {
		return false, sendErr(err)
	}
	return true, nil
}

// Conclude asks the backend to conclude the negotiation with the session's
// role as closer. The concluded state itself is only set once the backend's
// negotiationConcluded event arrives.
func (s *Session) Conclude(ctx context.Context) (bool, error) {
	s.mu.Lock()
	role := s.role
	s.mu.Unlock()
	ch, concluded, err := s.liveChannel()
	if concluded {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if role == "" {
		return false, ErrNoRole
	}
	ev, err := NewEvent(EventConclude, ConcludePayload{NegotiationID: s.id, Closer: role})
	if err != nil {
		return false, err
	}
	if err := ch.Send(ctx, ev); err != nil {
		return false, sendErr(err)
	}
	return true, nil
}

// MarkConcluded records a conclusion observed outside the channel, such as
// a fetched record whose status is concluded.
func (s *Session) MarkConcluded() {
	s.mu.Lock()
	s.concluded = true
	s.mu.Unlock()
}

// Concluded reports whether a conclusion has been observed.
func (s *Session) Concluded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.concluded
}

// Connected reports whether a channel is currently live.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch != nil
}

// Role returns the selected role, empty until one is chosen.
func (s *Session) Role() models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Close shuts the session down. When it returns the run loop has exited,
// the channel is closed and Updates is closed. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if !started {
		close(s.updates)
		close(s.done)
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

// joinRole returns the wire identity for joins. Caller holds s.mu.
func (s *Session) joinRole() models.Role {
	if s.role == "" {
		return models.RoleGuest
	}
	return s.role
}

func (s *Session) liveChannel() (Channel, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.concluded {
		return nil, true, nil
	}
	if s.closed {
		return nil, false, ErrClosed
	}
	if s.ch == nil {
		return nil, false, ErrNotConnected
	}
	return s.ch, false, nil
}

func (s *Session) join(ctx context.Context, ch Channel, role models.Role) error {
	ev, err := NewEvent(EventJoin, JoinPayload{NegotiationID: s.id, UserType: role})
	if err != nil {
		return err
	}
	if err := ch.Send(ctx, ev); err != nil {
		return sendErr(err)
	}
	s.log.Debug().Str("role", string(role)).Msg("joined negotiation room")
	return nil
}

func sendErr(err error) error {
	if errors.Is(err, ErrChannelClosed) {
		return ErrNotConnected
	}
	return err
}

// run dials, joins and pumps events until ctx is cancelled. Consecutive
// dial failures are bounded by maxReconnect with a fixed backoff between
// attempts; a successful connection resets the count.
func (s *Session) run(ctx context.Context) {
	defer func() {
		close(s.updates)
		close(s.done)
	}()

	failures := 0
	for {
		ch, err := s.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			gaveUp := failures > s.maxReconnect
			s.log.Warn().Err(err).Int("attempt", failures).Bool("gave_up", gaveUp).Msg("realtime connect failed")
			s.emit(ctx, Update{Kind: UpdateStatus, Err: err, Attempt: failures, GaveUp: gaveUp})
			if gaveUp {
				<-ctx.Done()
				return
			}
			if !s.sleep(ctx) {
				return
			}
			continue
		}

		failures = 0
		dropErr := s.serve(ctx, ch)
		ch.Close()
		if ctx.Err() != nil {
			return
		}
		s.log.Info().Err(dropErr).Msg("realtime channel dropped, reconnecting")
		s.emit(ctx, Update{Kind: UpdateStatus, Err: dropErr})
		if !s.sleep(ctx) {
			return
		}
	}
}

// serve joins the room on ch and forwards its events until it ends.
func (s *Session) serve(ctx context.Context, ch Channel) error {
	s.joinMu.Lock()
	s.mu.Lock()
	s.ch = ch
	role := s.joinRole()
	s.mu.Unlock()
	err := s.join(ctx, ch, role)
	s.joinMu.Unlock()

	defer func() {
		s.mu.Lock()
		s.ch = nil
		s.mu.Unlock()
	}()
	if err != nil {
		return err
	}
	s.emit(ctx, Update{Kind: UpdateStatus, Connected: true})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch.Events():
			if !ok {
				if err := ch.Err(); err != nil {
					return err
				}
				return ErrChannelClosed
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Session) handle(ctx context.Context, ev Event) {
	switch ev.Name {
	case EventChat:
		var msg models.ChatMessage
		if err := ev.Decode(&msg); err != nil {
			s.log.Warn().Err(err).Msg("dropping chat message")
			return
		}
		s.emit(ctx, Update{Kind: UpdateMessage, Message: msg})
	case EventConcluded:
		var p ConcludedPayload
		if err := ev.Decode(&p); err != nil {
			s.log.Warn().Err(err).Msg("conclusion payload unreadable")
		}
		s.MarkConcluded()
		s.emit(ctx, Update{Kind: UpdateConcluded, Closer: p.Closer, Time: p.Time})
	default:
		s.log.Debug().Str("event", ev.Name).Msg("ignoring event")
	}
}

// emit delivers u unless the session is shutting down.
func (s *Session) emit(ctx context.Context, u Update) {
	select {
	case s.updates <- u:
	case <-ctx.Done():
	}
}

func (s *Session) sleep(ctx context.Context) bool {
	t := time.NewTimer(s.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
