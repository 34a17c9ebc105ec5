package wizard

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/zulandar/procurebot/internal/api"
)

// Creator creates one negotiation on the backend.
type Creator interface {
	CreateNegotiation(ctx context.Context, req api.CreateRequest) (string, error)
}

// Link is the shareable link of one created negotiation.
type Link struct {
	SupplierID    string
	SupplierName  string
	SupplierEmail string
	NegotiationID string
	URL           string
}

// Result lists the negotiations a submission created, in supplier order.
// After a failure it holds the links of the suppliers created before it.
type Result struct {
	Links  []Link
	Failed string // name (or email) of the supplier whose creation failed
}

// Submitting reports whether a submission is in flight.
func (w *Wizard) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitting
}

// Submit creates one negotiation per supplier, one after another, all
// sharing the basic info. It requires the wizard to be on the terms step
// with every item's terms filled. The first failure stops the remaining
// creations; the returned Result then keeps the links created so far and
// the error names the failing supplier.
func (w *Wizard) Submit(ctx context.Context, creator Creator, origin string) (*Result, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrSubmitting
	}
	w.submitting = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.submitting = false
		w.mu.Unlock()
	}()

	if w.step != StepTerms {
		return nil, fmt.Errorf("%w: submit from %s", ErrStepIncomplete, w.step)
	}
	for _, step := range []Step{StepBasics, StepSuppliers, StepTerms} {
		if err := w.Validate(step); err != nil {
			return nil, err
		}
	}

	res := &Result{}
	for _, id := range w.order {
		s := w.suppliers[id]
		negID, err := creator.CreateNegotiation(ctx, api.CreateRequest{
			Name:          w.Basics.Name,
			BuyerEmail:    strings.TrimSpace(w.Basics.BuyerEmail),
			SupplierEmail: strings.TrimSpace(s.Email),
			DashboardCode: w.Basics.DashboardCode,
			TargetDetails: w.details(s),
		})
		if err != nil {
			res.Failed = s.Name
			if blank(res.Failed) {
				res.Failed = s.Email
			}
			return res, fmt.Errorf("wizard: create negotiation for supplier %q (%d of %d created): %w",
				res.Failed, len(res.Links), len(w.order), err)
		}
		res.Links = append(res.Links, Link{
			SupplierID:    s.ID,
			SupplierName:  s.Name,
			SupplierEmail: strings.TrimSpace(s.Email),
			NegotiationID: negID,
			URL:           ShareLink(origin, negID, s.Email),
		})
	}
	return res, nil
}

// ShareLink returns the link a supplier opens to join a negotiation.
func ShareLink(origin, negotiationID, supplierEmail string) string {
	return strings.TrimRight(origin, "/") + "/negotiation/" + url.PathEscape(negotiationID) +
		"?supplier=" + url.QueryEscape(strings.TrimSpace(supplierEmail))
}
