package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Negotiation statuses.
const (
	StatusActive    = "active"
	StatusConcluded = "concluded"
)

// Negotiation is a buyer/supplier deal-in-progress as returned by the backend.
// Summaries from the by-buyer listing carry everything except ChatHistory.
type Negotiation struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Status        string        `json:"status"`
	BuyerEmail    string        `json:"buyer_email,omitempty"`
	SupplierEmail string        `json:"supplier_email,omitempty"`
	TargetDetails TargetDetails `json:"target_details"`
	ChatHistory   []ChatMessage `json:"chat_history,omitempty"`
	CreatedAt     Timestamp     `json:"created_at"`
	UpdatedAt     Timestamp     `json:"updated_at"`

	// FromCache is set when the record was served from the local snapshot
	// cache because the backend could not be reached.
	FromCache bool `json:"-"`
}

// UnmarshalJSON decodes a record whose id may be a JSON string or number.
func (n *Negotiation) UnmarshalJSON(data []byte) error {
	type plain Negotiation
	aux := struct {
		*plain
		ID Text `json:"id"`
	}{plain: (*plain)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.ID = string(aux.ID)
	return nil
}

// IsConcluded reports whether the negotiation has reached its terminal status.
func (n *Negotiation) IsConcluded() bool {
	return n.Status == StatusConcluded
}

// TargetDetails holds the structured commercial terms of a negotiation. The
// backend stores it as free-form JSON, so decoding is tolerant: a JSON string
// holding an object is decoded from the string, and anything that cannot be
// decoded yields the zero value.
type TargetDetails struct {
	Company        string     `json:"company,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	BuyerName      string     `json:"buyerName,omitempty"`
	SupplierName   string     `json:"supplierName,omitempty"`
	Representative string     `json:"representative,omitempty"`
	Items          []Item     `json:"items,omitempty"`
	Suppliers      []Supplier `json:"suppliers,omitempty"`
}

// Supplier is a nested supplier entry inside target details.
type Supplier struct {
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	Representative string `json:"representative,omitempty"`
	Items          []Item `json:"items,omitempty"`
}

// Item is one line of a negotiation with its target terms.
type Item struct {
	Name               string `json:"name"`
	Quantity           Text   `json:"quantity,omitempty"`
	Unit               string `json:"unit,omitempty"`
	Description        string `json:"description,omitempty"`
	Currency           string `json:"currency,omitempty"`
	TargetPrice        Text   `json:"targetPrice,omitempty"`
	QuotedPrice        Text   `json:"quotedPrice,omitempty"`
	PaymentTerms       string `json:"paymentTerms,omitempty"`
	FreightTerms       string `json:"freightTerms,omitempty"`
	DeliverySchedule   string `json:"deliverySchedule,omitempty"`
	WarrantyTerms      string `json:"warrantyTerms,omitempty"`
	LDClause           string `json:"ldClause,omitempty"`
	NegotiationContext string `json:"negotiationContext,omitempty"`
}

// UnmarshalJSON decodes target details leniently.
func (t *TargetDetails) UnmarshalJSON(data []byte) error {
	*t = TargetDetails{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil
		}
		data = []byte(inner)
	}
	type plain TargetDetails
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	*t = TargetDetails(p)
	return nil
}

// SupplierNames returns every non-empty trimmed supplier name referenced by
// the details, top-level first.
func (t TargetDetails) SupplierNames() []string {
	var names []string
	if s := strings.TrimSpace(t.SupplierName); s != "" {
		names = append(names, s)
	}
	for _, sup := range t.Suppliers {
		if s := strings.TrimSpace(sup.Name); s != "" {
			names = append(names, s)
		}
	}
	return names
}

// AllItems returns the top-level items followed by the items of every
// nested supplier.
func (t TargetDetails) AllItems() []Item {
	items := append([]Item(nil), t.Items...)
	for _, sup := range t.Suppliers {
		items = append(items, sup.Items...)
	}
	return items
}

// Text is a scalar that the backend may send as either a JSON string or a
// JSON number. It is always carried as its string form.
type Text string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (x *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*x = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*x = ""
			return nil
		}
		*x = Text(s)
	default:
		*x = Text(data)
	}
	return nil
}

// String returns the textual value.
func (x Text) String() string { return string(x) }

