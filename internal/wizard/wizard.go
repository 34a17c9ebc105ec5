// Package wizard models the three-step negotiation creation form: basic
// info, suppliers with their items, and per-item negotiation terms.
// Suppliers and items live in an arena keyed by stable identifiers, so
// removing one never re-keys the others.
package wizard

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/zulandar/procurebot/internal/models"
)

// DefaultCurrency is preselected in the basic info step.
const DefaultCurrency = "INR (₹)"

var (
	// ErrStepIncomplete is returned when a step's required fields are missing.
	ErrStepIncomplete = errors.New("wizard: step incomplete")
	// ErrSubmitting is returned when Submit is called while a submission is
	// already in flight.
	ErrSubmitting = errors.New("wizard: submission already in progress")
	// ErrUnknownID is returned for a supplier or item id not in the arena.
	ErrUnknownID = errors.New("wizard: unknown id")
)

// Step is one page of the wizard.
type Step int

const (
	StepBasics Step = iota + 1
	StepSuppliers
	StepTerms
)

func (s Step) String() string {
	switch s {
	case StepBasics:
		return "Basic Info"
	case StepSuppliers:
		return "Suppliers & Items"
	case StepTerms:
		return "Negotiation Terms"
	default:
		return fmt.Sprintf("step %d", int(s))
	}
}

// Basics holds the fields shared by every negotiation the wizard creates.
type Basics struct {
	Name          string
	Company       string
	BuyerName     string
	BuyerEmail    string
	DashboardCode string
	Currency      string
}

// Supplier is a supplier entry with its ordered item ids.
type Supplier struct {
	ID             string
	Name           string
	Email          string
	Representative string
	ItemIDs        []string
}

// ItemEntry is an item with its arena id.
type ItemEntry struct {
	ID string
	models.Item
}

// Wizard is the negotiation creation form state.
type Wizard struct {
	Basics Basics

	step      Step
	suppliers map[string]*Supplier
	order     []string
	items     map[string]*models.Item
	newID     func() string

	mu         sync.Mutex
	submitting bool
}

// New returns a wizard on the first step with one supplier holding one
// blank item.
func New() *Wizard {
	w := &Wizard{
		Basics:    Basics{Currency: DefaultCurrency},
		step:      StepBasics,
		suppliers: make(map[string]*Supplier),
		items:     make(map[string]*models.Item),
		newID:     uuid.NewString,
	}
	w.AddSupplier()
	return w
}

// Step returns the current step.
func (w *Wizard) Step() Step { return w.step }

// AddSupplier appends a supplier with one blank item and returns its id.
func (w *Wizard) AddSupplier() string {
	s := &Supplier{ID: w.newID()}
	w.suppliers[s.ID] = s
	w.order = append(w.order, s.ID)
	w.addItem(s)
	return s.ID
}

// RemoveSupplier removes a supplier and its items. Removing the last
// remaining supplier is a no-op; the result reports whether anything was
// removed.
func (w *Wizard) RemoveSupplier(id string) bool {
	s, ok := w.suppliers[id]
	if !ok || len(w.order) <= 1 {
		return false
	}
	for _, itemID := range s.ItemIDs {
		delete(w.items, itemID)
	}
	delete(w.suppliers, id)
	w.order = without(w.order, id)
	return true
}

// SetSupplier updates a supplier's contact fields.
func (w *Wizard) SetSupplier(id, name, email, representative string) error {
	s, ok := w.suppliers[id]
	if !ok {
		return fmt.Errorf("%w: supplier %s", ErrUnknownID, id)
	}
	s.Name, s.Email, s.Representative = name, email, representative
	return nil
}

// Supplier returns a copy of one supplier.
func (w *Wizard) Supplier(id string) (Supplier, bool) {
	s, ok := w.suppliers[id]
	if !ok {
		return Supplier{}, false
	}
	cp := *s
	cp.ItemIDs = append([]string(nil), s.ItemIDs...)
	return cp, true
}

// Suppliers returns copies of all suppliers in display order.
func (w *Wizard) Suppliers() []Supplier {
	out := make([]Supplier, 0, len(w.order))
	for _, id := range w.order {
		s, _ := w.Supplier(id)
		out = append(out, s)
	}
	return out
}

// AddItem appends a blank item to a supplier and returns its id.
func (w *Wizard) AddItem(supplierID string) (string, error) {
	s, ok := w.suppliers[supplierID]
	if !ok {
		return "", fmt.Errorf("%w: supplier %s", ErrUnknownID, supplierID)
	}
	return w.addItem(s), nil
}

func (w *Wizard) addItem(s *Supplier) string {
	id := w.newID()
	w.items[id] = &models.Item{}
	s.ItemIDs = append(s.ItemIDs, id)
	return id
}

// RemoveItem removes an item from a supplier. Removing a supplier's last
// item is a no-op.
func (w *Wizard) RemoveItem(supplierID, itemID string) bool {
	s, ok := w.suppliers[supplierID]
	if !ok || len(s.ItemIDs) <= 1 || !slices.Contains(s.ItemIDs, itemID) {
		return false
	}
	s.ItemIDs = without(s.ItemIDs, itemID)
	delete(w.items, itemID)
	return true
}

// UpdateItem edits an item in place.
func (w *Wizard) UpdateItem(itemID string, edit func(*models.Item)) error {
	item, ok := w.items[itemID]
	if !ok {
		return fmt.Errorf("%w: item %s", ErrUnknownID, itemID)
	}
	edit(item)
	return nil
}

// Items returns a supplier's items in order.
func (w *Wizard) Items(supplierID string) []ItemEntry {
	s, ok := w.suppliers[supplierID]
	if !ok {
		return nil
	}
	out := make([]ItemEntry, 0, len(s.ItemIDs))
	for _, id := range s.ItemIDs {
		out = append(out, ItemEntry{ID: id, Item: *w.items[id]})
	}
	return out
}

// Validate reports whether the given step's required fields are filled.
// The error wraps ErrStepIncomplete and names what is missing.
func (w *Wizard) Validate(step Step) error {
	var missing []string
	switch step {
	case StepBasics:
		b := w.Basics
		for _, f := range []struct{ name, value string }{
			{"negotiation name", b.Name},
			{"company", b.Company},
			{"buyer name", b.BuyerName},
			{"buyer email", b.BuyerEmail},
			{"dashboard code", b.DashboardCode},
			{"currency", b.Currency},
		} {
			if blank(f.value) {
				missing = append(missing, f.name)
			}
		}
	case StepSuppliers:
		for i, id := range w.order {
			s := w.suppliers[id]
			var need []string
			if blank(s.Name) {
				need = append(need, "name")
			}
			if blank(s.Email) {
				need = append(need, "email")
			}
			if len(s.ItemIDs) == 0 || blank(w.items[s.ItemIDs[0]].Name) {
				need = append(need, "first item name")
			}
			if len(need) > 0 {
				missing = append(missing, fmt.Sprintf("supplier %d %s", i+1, strings.Join(need, ", ")))
			}
		}
	case StepTerms:
		for i, id := range w.order {
			for j, itemID := range w.suppliers[id].ItemIDs {
				item := w.items[itemID]
				var need []string
				if blank(item.TargetPrice.String()) {
					need = append(need, "target price")
				}
				if blank(item.PaymentTerms) {
					need = append(need, "payment terms")
				}
				if blank(item.DeliverySchedule) {
					need = append(need, "delivery schedule")
				}
				if len(need) > 0 {
					missing = append(missing, fmt.Sprintf("supplier %d item %d %s", i+1, j+1, strings.Join(need, ", ")))
				}
			}
		}
	default:
		return fmt.Errorf("wizard: unknown step %d", int(step))
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s: missing %s", ErrStepIncomplete, step, strings.Join(missing, "; "))
	}
	return nil
}

// Next advances to the following step when the current one is complete.
func (w *Wizard) Next() error {
	if w.step == StepTerms {
		return nil
	}
	if err := w.Validate(w.step); err != nil {
		return err
	}
	w.step++
	return nil
}

// Back returns to the previous step.
func (w *Wizard) Back() {
	if w.step > StepBasics {
		w.step--
	}
}

// details builds the target details payload of one supplier.
func (w *Wizard) details(s *Supplier) models.TargetDetails {
	items := make([]models.Item, 0, len(s.ItemIDs))
	for _, id := range s.ItemIDs {
		items = append(items, *w.items[id])
	}
	return models.TargetDetails{
		Company:        w.Basics.Company,
		BuyerName:      w.Basics.BuyerName,
		Currency:       w.Basics.Currency,
		SupplierName:   s.Name,
		Representative: s.Representative,
		Items:          items,
	}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func without(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(v string) bool { return v == id })
}
