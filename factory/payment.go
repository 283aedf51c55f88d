/*
Package factory provides JSON to Go payment conversion.

PURPOSE:
  Converts JSON payment definitions into payments.NewPayment and
  payments.PaymentUpdate values. The HTTP layer, bulk imports and demo
  scenarios all go through here, so every entry point parses money and
  dates the same way.

JSON SCHEMA:
  {
    "payee": "Landlord",
    "amount": "1200.00",
    "due_date": "2024-01-31",
    "payment_type": "recurring",
    "frequency": "monthly",
    "category_id": "cat-rent",
    "auto_pay": true,
    "notes": "standing order"
  }

  Amounts may be JSON strings or numbers; both are parsed as exact
  decimals. Bulk input is a JSON array of the object above.

KEY FEATURES:
  - Field-level ValidationErrors ("payments[2].due_date")
  - Defaults: payment_type once, frequency once for once payments
  - Business rules (positive amount, recurring frequency, category)
    stay in the engine; the factory only checks shape

USAGE:
  f := factory.NewPaymentFactory()
  in, err := f.ParsePayment(`{"payee": "Gym", "amount": 30, ...}`)
  created, err := engine.Create(ctx, householdID, in)

  batch, err := f.ParseBulk(jsonArray)
  created, err := engine.BulkCreate(ctx, householdID, batch)

SEE ALSO:
  - payments/types.go: NewPayment, PaymentUpdate
  - api/handlers.go: HTTP entry points
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PaymentJSON is the JSON representation of a payment creation request.
type PaymentJSON struct {
	Payee       string           `json:"payee"`
	Amount      *decimal.Decimal `json:"amount"`
	DueDate     string           `json:"due_date"`
	PaymentType string           `json:"payment_type,omitempty"` // once, recurring, variable
	Frequency   string           `json:"frequency,omitempty"`
	CategoryID  string           `json:"category_id"`
	AutoPay     bool             `json:"auto_pay,omitempty"`
	Notes       string           `json:"notes,omitempty"`
}

// PaymentUpdateJSON carries the fields of a partial update; absent fields
// are left unchanged.
type PaymentUpdateJSON struct {
	Payee       *string          `json:"payee,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	DueDate     *string          `json:"due_date,omitempty"`
	PaymentType *string          `json:"payment_type,omitempty"`
	Frequency   *string          `json:"frequency,omitempty"`
	CategoryID  *string          `json:"category_id,omitempty"`
	AutoPay     *bool            `json:"auto_pay,omitempty"`
	Notes       *string          `json:"notes,omitempty"`
}

// =============================================================================
// PAYMENT FACTORY
// =============================================================================

// PaymentFactory converts JSON payments to engine requests.
type PaymentFactory struct{}

// NewPaymentFactory creates a new payment factory.
func NewPaymentFactory() *PaymentFactory {
	return &PaymentFactory{}
}

// ParsePayment parses a JSON object into a creation request.
func (f *PaymentFactory) ParsePayment(jsonStr string) (payments.NewPayment, error) {
	var pj PaymentJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return payments.NewPayment{}, &generic.ValidationError{Field: "body", Message: err.Error()}
	}
	return f.FromJSON(pj)
}

// ParseBulk parses a JSON array into ordered creation requests. The first
// malformed element fails the whole batch before anything is created.
func (f *PaymentFactory) ParseBulk(jsonStr string) ([]payments.NewPayment, error) {
	var list []PaymentJSON
	if err := json.Unmarshal([]byte(jsonStr), &list); err != nil {
		return nil, &generic.ValidationError{Field: "body", Message: err.Error()}
	}
	return f.FromJSONList(list)
}

// FromJSONList converts each element, prefixing field errors with its index.
func (f *PaymentFactory) FromJSONList(list []PaymentJSON) ([]payments.NewPayment, error) {
	out := make([]payments.NewPayment, 0, len(list))
	for i, pj := range list {
		in, err := f.FromJSON(pj)
		if err != nil {
			return nil, indexed(i, err)
		}
		out = append(out, in)
	}
	return out, nil
}

// FromJSON converts PaymentJSON to payments.NewPayment.
func (f *PaymentFactory) FromJSON(pj PaymentJSON) (payments.NewPayment, error) {
	if pj.Amount == nil {
		return payments.NewPayment{}, &generic.ValidationError{Field: "amount", Message: "required"}
	}
	due, err := parseDate("due_date", pj.DueDate)
	if err != nil {
		return payments.NewPayment{}, err
	}
	kind, err := parseKind(pj.PaymentType)
	if err != nil {
		return payments.NewPayment{}, err
	}

	return payments.NewPayment{
		Payee:      pj.Payee,
		Amount:     *pj.Amount,
		DueDate:    due,
		Kind:       kind,
		Frequency:  generic.Frequency(strings.ToLower(strings.TrimSpace(pj.Frequency))),
		CategoryID: generic.CategoryID(pj.CategoryID),
		AutoPay:    pj.AutoPay,
		Notes:      pj.Notes,
	}, nil
}

// UpdateFromJSON converts PaymentUpdateJSON to payments.PaymentUpdate.
func (f *PaymentFactory) UpdateFromJSON(uj PaymentUpdateJSON) (payments.PaymentUpdate, error) {
	upd := payments.PaymentUpdate{
		Payee:   uj.Payee,
		Amount:  uj.Amount,
		AutoPay: uj.AutoPay,
		Notes:   uj.Notes,
	}
	if uj.DueDate != nil {
		due, err := parseDate("due_date", *uj.DueDate)
		if err != nil {
			return payments.PaymentUpdate{}, err
		}
		upd.DueDate = &due
	}
	if uj.PaymentType != nil {
		kind, err := parseKind(*uj.PaymentType)
		if err != nil {
			return payments.PaymentUpdate{}, err
		}
		upd.Kind = &kind
	}
	if uj.Frequency != nil {
		freq := generic.Frequency(strings.ToLower(strings.TrimSpace(*uj.Frequency)))
		upd.Frequency = &freq
	}
	if uj.CategoryID != nil {
		cat := generic.CategoryID(*uj.CategoryID)
		upd.CategoryID = &cat
	}
	return upd, nil
}

// ToJSON converts a stored payment back to its creation shape, e.g. for
// re-importing a household's schedule.
func (f *PaymentFactory) ToJSON(p payments.Payment) PaymentJSON {
	amount := p.Amount
	return PaymentJSON{
		Payee:       p.Payee,
		Amount:      &amount,
		DueDate:     p.DueDate.String(),
		PaymentType: string(p.Kind),
		Frequency:   string(p.Frequency),
		CategoryID:  string(p.CategoryID),
		AutoPay:     p.AutoPay,
		Notes:       p.Notes,
	}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseDate(field, s string) (generic.Date, error) {
	if strings.TrimSpace(s) == "" {
		return generic.Date{}, &generic.ValidationError{Field: field, Message: "required"}
	}
	d, err := generic.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return generic.Date{}, &generic.ValidationError{Field: field, Message: fmt.Sprintf("use YYYY-MM-DD, got %q", s)}
	}
	return d, nil
}

func parseKind(s string) (payments.Kind, error) {
	switch k := payments.Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return payments.KindOnce, nil
	case payments.KindOnce, payments.KindRecurring, payments.KindVariable:
		return k, nil
	default:
		return "", &generic.ValidationError{Field: "payment_type", Message: fmt.Sprintf("unknown payment type %q", s)}
	}
}

func indexed(i int, err error) error {
	if ve, ok := err.(*generic.ValidationError); ok {
		return &generic.ValidationError{Field: fmt.Sprintf("payments[%d].%s", i, ve.Field), Message: ve.Message}
	}
	return fmt.Errorf("payments[%d]: %w", i, err)
}
