package chat

import "github.com/zulandar/procurebot/internal/models"

// Alignment places a bubble on one side of the chat area.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// Bubble is one rendered chat message.
type Bubble struct {
	Sender models.Role
	Align  Alignment
	Label  string
	Body   string // formatted text
	Time   string
}

// Header is the summary shown above the chat area.
type Header struct {
	Name         string
	SupplierName string
	Status       string // "Active" or "Concluded"
	ExportURL    string
	Offline      bool // served from the local snapshot cache
}

// Bubbles renders the history. Supplier messages sit on the right; buyer
// and system messages sit on the left under the buyer's bot label.
func (m *Model) Bubbles() []Bubble {
	var details models.TargetDetails
	if m.record != nil {
		details = m.record.TargetDetails
	}
	out := make([]Bubble, len(m.history))
	for i, msg := range m.history {
		out[i] = RenderBubble(msg, details)
	}
	return out
}

// RenderBubble renders one message against the negotiation's details.
func RenderBubble(msg models.ChatMessage, details models.TargetDetails) Bubble {
	b := Bubble{
		Sender: msg.Sender,
		Body:   Format(msg.Text),
		Time:   msg.Timestamp.Display(),
	}
	if msg.Sender == models.RoleSupplier {
		b.Align = AlignRight
		b.Label = "Supplier: " + orDefault(details.SupplierName, "Supplier")
	} else {
		b.Align = AlignLeft
		b.Label = orDefault(details.BuyerName, "AI Bot") + " - AI Bot"
	}
	return b
}

// Header returns the summary of the loaded negotiation. It is zero while
// loading.
func (m *Model) Header() Header {
	if m.record == nil {
		return Header{}
	}
	h := Header{
		Name:         m.record.Name,
		SupplierName: m.record.TargetDetails.SupplierName,
		Status:       "Active",
		Offline:      m.record.FromCache,
	}
	if m.state == StateConcluded {
		h.Status = "Concluded"
	}
	if m.exportURL != nil {
		h.ExportURL = m.exportURL(m.record.ID)
	}
	return h
}
