package wizard

import (
	"fmt"
	"os"

	"github.com/zulandar/procurebot/internal/models"
	"gopkg.in/yaml.v3"
)

// Draft is a wizard filled in ahead of time, loaded from YAML.
type Draft struct {
	Name          string          `yaml:"name"`
	Company       string          `yaml:"company"`
	BuyerName     string          `yaml:"buyer_name"`
	BuyerEmail    string          `yaml:"buyer_email"`
	DashboardCode string          `yaml:"dashboard_code"`
	Currency      string          `yaml:"currency"`
	Suppliers     []DraftSupplier `yaml:"suppliers"`
}

// DraftSupplier is one supplier of a Draft.
type DraftSupplier struct {
	Name           string      `yaml:"name"`
	Email          string      `yaml:"email"`
	Representative string      `yaml:"representative"`
	Items          []DraftItem `yaml:"items"`
}

// DraftItem is one item of a DraftSupplier.
type DraftItem struct {
	Name               string `yaml:"name"`
	Quantity           string `yaml:"quantity"`
	Unit               string `yaml:"unit"`
	Description        string `yaml:"description"`
	Currency           string `yaml:"currency"`
	TargetPrice        string `yaml:"target_price"`
	QuotedPrice        string `yaml:"quoted_price"`
	PaymentTerms       string `yaml:"payment_terms"`
	FreightTerms       string `yaml:"freight_terms"`
	DeliverySchedule   string `yaml:"delivery_schedule"`
	WarrantyTerms      string `yaml:"warranty_terms"`
	LDClause           string `yaml:"ld_clause"`
	NegotiationContext string `yaml:"negotiation_context"`
}

// LoadDraft reads a draft from a YAML file.
func LoadDraft(path string) (*Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wizard: read draft %s: %w", path, err)
	}
	return ParseDraft(data)
}

// ParseDraft unmarshals YAML bytes into a Draft.
func ParseDraft(data []byte) (*Draft, error) {
	var d Draft
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("wizard: parse draft: %w", err)
	}
	return &d, nil
}

// FromDraft fills a new wizard with d through the wizard's own operations
// and walks it to the terms step. The first incomplete step stops the walk
// and is named in the error.
func FromDraft(d *Draft) (*Wizard, error) {
	w := New()
	w.Basics = Basics{
		Name:          d.Name,
		Company:       d.Company,
		BuyerName:     d.BuyerName,
		BuyerEmail:    d.BuyerEmail,
		DashboardCode: d.DashboardCode,
		Currency:      d.Currency,
	}
	if w.Basics.Currency == "" {
		w.Basics.Currency = DefaultCurrency
	}

	first := w.order[0]
	for i, ds := range d.Suppliers {
		id := first
		if i > 0 {
			id = w.AddSupplier()
		}
		if err := w.SetSupplier(id, ds.Name, ds.Email, ds.Representative); err != nil {
			return nil, err
		}
		itemIDs := w.suppliers[id].ItemIDs
		for j, di := range ds.Items {
			itemID := itemIDs[0]
			if j > 0 {
				var err error
				if itemID, err = w.AddItem(id); err != nil {
					return nil, err
				}
			}
			if err := w.UpdateItem(itemID, func(it *models.Item) { *it = di.item() }); err != nil {
				return nil, err
			}
		}
	}

	for w.Step() != StepTerms {
		if err := w.Next(); err != nil {
			return w, err
		}
	}
	return w, w.Validate(StepTerms)
}

func (di DraftItem) item() models.Item {
	return models.Item{
		Name:               di.Name,
		Quantity:           models.Text(di.Quantity),
		Unit:               di.Unit,
		Description:        di.Description,
		Currency:           di.Currency,
		TargetPrice:        models.Text(di.TargetPrice),
		QuotedPrice:        models.Text(di.QuotedPrice),
		PaymentTerms:       di.PaymentTerms,
		FreightTerms:       di.FreightTerms,
		DeliverySchedule:   di.DeliverySchedule,
		WarrantyTerms:      di.WarrantyTerms,
		LDClause:           di.LDClause,
		NegotiationContext: di.NegotiationContext,
	}
}
