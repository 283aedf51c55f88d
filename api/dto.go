/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY AND DATES:
  Amounts are decimal.Decimal and serialize as JSON strings ("12.50") so
  clients never see binary floating point. Dates are YYYY-MM-DD strings,
  timestamps RFC 3339.

TYPES:
  Households/categories: HouseholdDTO, CreateHouseholdRequest,
    CategoryDTO, CreateCategoryRequest
  Payments: PaymentDTO, SettleRequest, SettlementDTO (creation and update
    bodies are factory.PaymentJSON / factory.PaymentUpdateJSON)
  Income: IncomeEventDTO, CreateIncomeEventRequest
  Attributions: AttributionDTO, AttributeRequest, AutoAttributeResponse
  Reporting: SummaryDTO, ForecastDTO, AuditEntryDTO, AttributionRunsResponse
  Scenarios: ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done by the factory and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/payment.go: PaymentJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
)

// =============================================================================
// HOUSEHOLDS & CATEGORIES
// =============================================================================

type HouseholdDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type CreateHouseholdRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type CategoryDTO struct {
	ID          string `json:"id"`
	HouseholdID string `json:"household_id"`
	Name        string `json:"name"`
	Active      bool   `json:"active"`
}

type CreateCategoryRequest struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Active *bool  `json:"active,omitempty"` // defaults to true
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents a payment in API responses. Status is the observed
// status, so it may read "overdue".
type PaymentDTO struct {
	ID          string           `json:"id"`
	HouseholdID string           `json:"household_id"`
	Payee       string           `json:"payee"`
	Amount      decimal.Decimal  `json:"amount"`
	DueDate     generic.Date     `json:"due_date"`
	PaymentType string           `json:"payment_type"`
	Frequency   string           `json:"frequency"`
	NextDueDate *generic.Date    `json:"next_due_date,omitempty"`
	Status      string           `json:"status"`
	PaidDate    *generic.Date    `json:"paid_date,omitempty"`
	PaidAmount  *decimal.Decimal `json:"paid_amount,omitempty"`
	CategoryID  string           `json:"category_id"`
	AutoPay     bool             `json:"auto_pay"`
	Notes       string           `json:"notes,omitempty"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
}

// SettleRequest is the body of POST .../payments/{id}/settle.
type SettleRequest struct {
	PaidDate   generic.Date     `json:"paid_date"`
	PaidAmount *decimal.Decimal `json:"paid_amount"`
}

// SettlementDTO is a settled payment and, for recurring payments, the
// occurrence spawned by the settlement.
type SettlementDTO struct {
	Payment PaymentDTO  `json:"payment"`
	Next    *PaymentDTO `json:"next,omitempty"`
}

// =============================================================================
// INCOME EVENTS
// =============================================================================

type IncomeEventDTO struct {
	ID              string          `json:"id"`
	HouseholdID     string          `json:"household_id"`
	Source          string          `json:"source,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          string          `json:"status"`
	ScheduledDate   generic.Date    `json:"scheduled_date"`
	CreatedAt       string          `json:"created_at"`
}

type CreateIncomeEventRequest struct {
	ID            string           `json:"id,omitempty"`
	Source        string           `json:"source"`
	TotalAmount   *decimal.Decimal `json:"total_amount"`
	ScheduledDate generic.Date     `json:"scheduled_date"`
	Status        string           `json:"status,omitempty"`
}

// =============================================================================
// ATTRIBUTIONS
// =============================================================================

type AttributionDTO struct {
	ID            string          `json:"id"`
	PaymentID     string          `json:"payment_id"`
	IncomeEventID string          `json:"income_event_id"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          string          `json:"kind"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     string          `json:"created_at"`
}

// AttributeRequest is the body of POST .../payments/{id}/attributions.
// The acting member is always taken from the request identity.
type AttributeRequest struct {
	IncomeEventID string           `json:"income_event_id"`
	Amount        *decimal.Decimal `json:"amount"`
	Kind          string           `json:"kind,omitempty"` // manual (default) or automatic
}

type AutoAttributeResponse struct {
	Attributed int `json:"attributed"`
}

// =============================================================================
// REPORTING
// =============================================================================

type SummaryDTO struct {
	HouseholdID     string          `json:"household_id"`
	PeriodStart     generic.Date    `json:"period_start"`
	PeriodEnd       generic.Date    `json:"period_end"`
	TotalScheduled  decimal.Decimal `json:"total_scheduled"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	TotalAttributed decimal.Decimal `json:"total_attributed"`
	Outstanding     decimal.Decimal `json:"outstanding"`
	Count           int             `json:"count"`
	CountByStatus   map[string]int  `json:"count_by_status"`
}

type ForecastItemDTO struct {
	PaymentID  string          `json:"payment_id,omitempty"`
	Payee      string          `json:"payee"`
	DueDate    generic.Date    `json:"due_date"`
	CategoryID string          `json:"category_id"`
	Due        decimal.Decimal `json:"due"`
	Attributed decimal.Decimal `json:"attributed"`
	Projected  bool            `json:"projected"`
}

type ForecastDTO struct {
	HouseholdID    string            `json:"household_id"`
	PeriodStart    generic.Date      `json:"period_start"`
	PeriodEnd      generic.Date      `json:"period_end"`
	Items          []ForecastItemDTO `json:"items"`
	TotalDue       decimal.Decimal   `json:"total_due"`
	TotalUnfunded  decimal.Decimal   `json:"total_unfunded"`
	ExpectedIncome decimal.Decimal   `json:"expected_income"`
	Shortfall      decimal.Decimal   `json:"shortfall"`
}

type AuditEntryDTO struct {
	Action     string      `json:"action"`
	EntityType string      `json:"entity_type"`
	EntityID   string      `json:"entity_id"`
	ActorID    string      `json:"actor_id"`
	At         string      `json:"at"`
	Before     *PaymentDTO `json:"before,omitempty"`
	After      *PaymentDTO `json:"after,omitempty"`
}

// AttributionRunsResponse is the run history plus the next scheduled pass,
// absent when the scheduler is not running.
type AttributionRunsResponse struct {
	Runs      []AttributionRunDTO `json:"runs"`
	NextRunAt *string             `json:"next_run_at,omitempty"`
}

type AttributionRunDTO struct {
	ID          string `json:"id"`
	HouseholdID string `json:"household_id"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at"`
	Attributed  int    `json:"attributed"`
	Error       string `json:"error,omitempty"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenarioResponse names the household a scenario populated.
type LoadScenarioResponse struct {
	ScenarioID  string `json:"scenario_id"`
	HouseholdID string `json:"household_id"`
	Payments    int    `json:"payments"`
	Incomes     int    `json:"income_events"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Field     string `json:"field,omitempty"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// BulkCreateErrorResponse reports a bulk create that stopped at FailedIndex.
// Created holds the payments stored before the failure.
type BulkCreateErrorResponse struct {
	ErrorResponse
	FailedIndex int          `json:"failed_index"`
	Created     []PaymentDTO `json:"created"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPaymentDTO(p payments.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          string(p.ID),
		HouseholdID: string(p.HouseholdID),
		Payee:       p.Payee,
		Amount:      p.Amount,
		DueDate:     p.DueDate,
		PaymentType: string(p.Kind),
		Frequency:   string(p.Frequency),
		NextDueDate: p.NextDueDate,
		Status:      string(p.Status),
		PaidDate:    p.PaidDate,
		PaidAmount:  p.PaidAmount,
		CategoryID:  string(p.CategoryID),
		AutoPay:     p.AutoPay,
		Notes:       p.Notes,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

func toPaymentDTOs(list []payments.Payment) []PaymentDTO {
	out := make([]PaymentDTO, len(list))
	for i, p := range list {
		out[i] = toPaymentDTO(p)
	}
	return out
}

func toIncomeEventDTO(ev payments.IncomeEvent) IncomeEventDTO {
	return IncomeEventDTO{
		ID:              string(ev.ID),
		HouseholdID:     string(ev.HouseholdID),
		Source:          ev.Source,
		TotalAmount:     ev.TotalAmount,
		AllocatedAmount: ev.AllocatedAmount,
		RemainingAmount: ev.RemainingAmount,
		Status:          string(ev.Status),
		ScheduledDate:   ev.ScheduledDate,
		CreatedAt:       ev.CreatedAt.Format(time.RFC3339),
	}
}

func toAttributionDTO(a payments.Attribution) AttributionDTO {
	return AttributionDTO{
		ID:            string(a.ID),
		PaymentID:     string(a.PaymentID),
		IncomeEventID: string(a.IncomeEventID),
		Amount:        a.Amount,
		Kind:          string(a.Kind),
		CreatedBy:     string(a.CreatedBy),
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
	}
}

func toSummaryDTO(s payments.PeriodSummary) SummaryDTO {
	counts := make(map[string]int, len(s.CountByStatus))
	for status, n := range s.CountByStatus {
		counts[string(status)] = n
	}
	return SummaryDTO{
		HouseholdID:     string(s.HouseholdID),
		PeriodStart:     s.Period.Start,
		PeriodEnd:       s.Period.End,
		TotalScheduled:  s.TotalScheduled,
		TotalPaid:       s.TotalPaid,
		TotalAttributed: s.TotalAttributed,
		Outstanding:     s.Outstanding,
		Count:           s.Count,
		CountByStatus:   counts,
	}
}

func toForecastDTO(f payments.Forecast) ForecastDTO {
	items := make([]ForecastItemDTO, len(f.Items))
	for i, it := range f.Items {
		items[i] = ForecastItemDTO{
			PaymentID:  string(it.PaymentID),
			Payee:      it.Payee,
			DueDate:    it.DueDate,
			CategoryID: string(it.CategoryID),
			Due:        it.Due,
			Attributed: it.Attributed,
			Projected:  it.Projected,
		}
	}
	return ForecastDTO{
		HouseholdID:    string(f.HouseholdID),
		PeriodStart:    f.Period.Start,
		PeriodEnd:      f.Period.End,
		Items:          items,
		TotalDue:       f.TotalDue,
		TotalUnfunded:  f.TotalUnfunded,
		ExpectedIncome: f.ExpectedIncome,
		Shortfall:      f.Shortfall,
	}
}

func toAuditEntryDTO(e payments.AuditEntry) AuditEntryDTO {
	dto := AuditEntryDTO{
		Action:     string(e.Action),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		ActorID:    string(e.ActorID),
		At:         e.At.Format(time.RFC3339Nano),
	}
	if e.Before != nil {
		b := toPaymentDTO(*e.Before)
		dto.Before = &b
	}
	if e.After != nil {
		a := toPaymentDTO(*e.After)
		dto.After = &a
	}
	return dto
}

func toAttributionRunDTO(r payments.AttributionRun) AttributionRunDTO {
	return AttributionRunDTO{
		ID:          r.ID,
		HouseholdID: string(r.HouseholdID),
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		FinishedAt:  r.FinishedAt.Format(time.RFC3339),
		Attributed:  r.Attributed,
		Error:       r.Error,
	}
}
