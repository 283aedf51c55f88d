package payments

import (
	"context"
	"strings"

	"github.com/warp/household-payments/generic"
)

// normalized trims text and defaults the frequency of once payments.
func (in NewPayment) normalized() NewPayment {
	in.Payee = strings.TrimSpace(in.Payee)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Kind == "" {
		in.Kind = KindOnce
	}
	if in.Frequency == "" && in.Kind == KindOnce {
		in.Frequency = generic.FrequencyOnce
	}
	return in
}

func (in NewPayment) validate() error {
	return validateFields(in.Payee, in.Kind, in.Frequency, in.DueDate, in.CategoryID, func() error {
		return generic.RequirePositive("amount", in.Amount)
	})
}

// validate checks a payment about to be persisted by Update.
func (p Payment) validate() error {
	err := validateFields(p.Payee, p.Kind, p.Frequency, p.DueDate, p.CategoryID, func() error {
		return generic.RequirePositive("amount", p.Amount)
	})
	if err != nil {
		return err
	}
	if p.Status == StatusPartial && p.PaidAmount != nil && p.PaidAmount.GreaterThanOrEqual(p.Amount) {
		return &generic.ValidationError{Field: "amount", Message: "must stay above the partial paid amount " + p.PaidAmount.String()}
	}
	return nil
}

func validateFields(payee string, kind Kind, f generic.Frequency, due generic.Date, category generic.CategoryID, amount func() error) error {
	if payee == "" {
		return &generic.ValidationError{Field: "payee", Message: "required"}
	}
	if err := amount(); err != nil {
		return err
	}
	if due.IsZero() {
		return &generic.ValidationError{Field: "due_date", Message: "required"}
	}
	if !kind.Valid() {
		return &generic.ValidationError{Field: "payment_kind", Message: "must be once, recurring or variable"}
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if kind == KindRecurring && f == generic.FrequencyOnce {
		return &generic.ValidationError{Field: "frequency", Message: "recurring payments need a repeating frequency"}
	}
	if category == "" {
		return &generic.ValidationError{Field: "category_id", Message: "required"}
	}
	return nil
}

// checkAmountCovers rejects an amount below what is already attributed.
func checkAmountCovers(ctx context.Context, s Store, p Payment) error {
	attrs, err := s.ListAttributions(ctx, p.HouseholdID, p.ID)
	if err != nil {
		return err
	}
	attributed := attributedTotal(attrs)
	if attributed.GreaterThan(p.Amount) {
		return &generic.OverAttributedError{PaymentID: p.ID, Amount: p.Amount, Attributed: attributed}
	}
	return nil
}
