package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// MockDialer implements Dialer for testing. Every successful Dial returns a
// new MockChannel, also published on Dialed.
type MockDialer struct {
	mu       sync.Mutex
	failNext int
	failErr  error
	dials    int
	channels []*MockChannel
	dialed   chan *MockChannel
}

// NewMockDialer creates a MockDialer.
func NewMockDialer() *MockDialer {
	return &MockDialer{dialed: make(chan *MockChannel, 32)}
}

// FailNext makes the next n Dial calls fail with err.
func (d *MockDialer) FailNext(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
	d.failErr = err
}

// Dial returns a new MockChannel unless a failure is queued.
func (d *MockDialer) Dial(ctx context.Context) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failNext > 0 {
		d.failNext--
		return nil, d.failErr
	}
	ch := NewMockChannel()
	d.channels = append(d.channels, ch)
	select {
	case d.dialed <- ch:
	default:
	}
	return ch, nil
}

// Dialed delivers each channel returned by Dial.
func (d *MockDialer) Dialed() <-chan *MockChannel { return d.dialed }

// DialCount returns the number of Dial calls, failed ones included.
func (d *MockDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Channels returns every channel handed out so far.
func (d *MockDialer) Channels() []*MockChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockChannel(nil), d.channels...)
}

// MockChannel implements Channel for testing. It records sent events and
// allows simulating inbound events and connection drops.
type MockChannel struct {
	mu     sync.Mutex
	events chan Event
	sent   []Event
	ended  bool
	closed bool
	err    error
}

// NewMockChannel creates a MockChannel with a buffered inbound stream.
func NewMockChannel() *MockChannel {
	return &MockChannel{events: make(chan Event, 100)}
}

func (c *MockChannel) Events() <-chan Event { return c.events }

func (c *MockChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send records ev.
func (c *MockChannel) Send(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return ErrChannelClosed
	}
	c.sent = append(c.sent, ev)
	return nil
}

// Close ends the channel locally.
func (c *MockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.end(nil)
	return nil
}

func (c *MockChannel) end(err error) {
	if c.ended {
		return
	}
	c.ended = true
	c.err = err
	close(c.events)
}

// --- Test helpers ---

// SimulateInbound delivers an event as if the backend had pushed it.
func (c *MockChannel) SimulateInbound(name string, payload any) {
	data, _ := json.Marshal(payload)
	c.SimulateRaw(Event{Name: name, Data: data})
}

// SimulateRaw delivers a prebuilt envelope. No-op once the channel ended.
func (c *MockChannel) SimulateRaw(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.events <- ev
}

// Drop ends the channel as if the connection failed with err.
func (c *MockChannel) Drop(err error) {
	if err == nil {
		err = errors.New("mock channel: connection dropped")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.end(err)
}

// Closed reports whether Close was called.
func (c *MockChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// AllSent returns a copy of all sent events.
func (c *MockChannel) AllSent() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentCount returns the number of sent events.
func (c *MockChannel) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// SentNamed returns the sent events with the given name.
func (c *MockChannel) SentNamed(name string) []Event {
	var out []Event
	for _, ev := range c.AllSent() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// WaitSent polls until at least n events were sent or timeout elapses.
func (c *MockChannel) WaitSent(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.SentCount() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return c.SentCount() >= n
}
