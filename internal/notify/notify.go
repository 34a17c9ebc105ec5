// Package notify forwards negotiation lifecycle events to chat platforms
// through incoming webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the lifecycle change being reported.
type Kind string

const (
	KindCreated   Kind = "created"
	KindConcluded Kind = "concluded"
)

// Event is one detected change of a buyer's negotiation.
type Event struct {
	Kind          Kind
	NegotiationID string
	Name          string
	Suppliers     []string
	BuyerEmail    string
	URL           string // link to the negotiation, optional
	At            time.Time
}

// Notifier delivers events to one destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
)

// Message is an event rendered for chat display.
type Message struct {
	Title    string
	Body     string
	Severity string // "info" or "success"
	Color    string
	Fields   []Field
}

// Field is a key-value pair shown beside the message.
type Field struct {
	Name  string
	Value string
	Short bool
}

func severityColor(severity string) string {
	if severity == "success" {
		return ColorSuccess
	}
	return ColorInfo
}

// Format renders ev for chat platforms.
func Format(ev Event) Message {
	name := ev.Name
	if name == "" {
		name = ev.NegotiationID
	}

	severity := "info"
	title := fmt.Sprintf("Negotiation %q started", name)
	if ev.Kind == KindConcluded {
		severity = "success"
		title = fmt.Sprintf("Negotiation %q concluded", name)
	}

	var body []string
	if len(ev.Suppliers) > 0 {
		body = append(body, "Suppliers: "+strings.Join(ev.Suppliers, ", "))
	}
	if ev.URL != "" {
		body = append(body, ev.URL)
	}

	fields := []Field{
		{Name: "Negotiation", Value: ev.NegotiationID, Short: true},
		{Name: "Status", Value: string(ev.Kind), Short: true},
	}
	if ev.BuyerEmail != "" {
		fields = append(fields, Field{Name: "Buyer", Value: ev.BuyerEmail, Short: true})
	}
	if !ev.At.IsZero() {
		fields = append(fields, Field{Name: "Seen", Value: ev.At.Local().Format("2006-01-02 15:04"), Short: true})
	}

	return Message{
		Title:    title,
		Body:     strings.Join(body, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

// Multi fans an event out to every notifier. All notifiers are tried; the
// failures are joined into the returned error.
type Multi []Notifier

// Name implements Notifier.
func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Name()
	}
	return strings.Join(names, ",")
}

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
