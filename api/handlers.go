/*
handlers.go - HTTP API handlers for the household payment engine

PURPOSE:
  Exposes the payment engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine in package payments.

ENDPOINTS:
  Households:
    GET    /api/households                             List households
    POST   /api/households                             Create household
    POST   /api/households/{hh}/categories             Create category

  Payments:
    GET    /api/households/{hh}/payments               List (?status=&from=&to=)
    POST   /api/households/{hh}/payments               Create payment
    POST   /api/households/{hh}/payments/bulk          Create payments in order, stop at first failure
    GET    /api/households/{hh}/payments/{id}          Get payment
    PATCH  /api/households/{hh}/payments/{id}          Update payment
    DELETE /api/households/{hh}/payments/{id}          Delete payment and its attributions
    POST   /api/households/{hh}/payments/{id}/settle   Record payment
    POST   /api/households/{hh}/payments/{id}/revert   Revert settlement
    POST   /api/households/{hh}/payments/{id}/cancel   Cancel payment

  Attributions:
    GET    /api/households/{hh}/payments/{id}/attributions        List
    POST   /api/households/{hh}/payments/{id}/attributions        Attribute income
    DELETE /api/households/{hh}/payments/{id}/attributions/{aid}  Remove
    POST   /api/households/{hh}/auto-attribute                    Run the matcher now
    GET    /api/households/{hh}/attribution-runs                  Matcher run history, next pass

  Income & reporting:
    GET    /api/households/{hh}/income-events          List income events
    POST   /api/households/{hh}/income-events          Register income event
    GET    /api/households/{hh}/upcoming               ?from=YYYY-MM-DD&days=30
    GET    /api/households/{hh}/overdue                Overdue payments
    GET    /api/households/{hh}/summary                ?period=month&date= or ?start=&end=
    GET    /api/households/{hh}/forecast               ?days=90 or ?start=&end=
    GET    /api/households/{hh}/audit                  Audit trail

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario into a new household

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: persistence plus the collaborators (categories, audit, run log)
  - Engine: payments.Engine wired to Store
  - PaymentFactory: JSON to engine request conversion

ERROR HANDLING:
  Engine errors are mapped by kind (generic.KindOf), never by message:
  - 400: invalid
  - 404: not_found (including an inactive category)
  - 409: immutable_state, already_settled, not_settled, cancelled
  - 409: conflict, with "retryable": true
  - 422: over_attributed, insufficient_income
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup, identity middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/household-payments/factory"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is everything the HTTP layer needs from storage. Both
// store/sqlite and store/memory satisfy it.
type Backend interface {
	payments.TxStore
	payments.CategoryResolver
	payments.AuditSink
	payments.RunLog

	CreateHousehold(ctx context.Context, h payments.Household) (*payments.Household, error)
	ListHouseholds(ctx context.Context) ([]payments.Household, error)
	CreateCategory(ctx context.Context, c payments.Category) (*payments.Category, error)
	CreateIncomeEvent(ctx context.Context, ev payments.IncomeEvent) (*payments.IncomeEvent, error)
	ListAuditEntries(ctx context.Context, householdID generic.HouseholdID) ([]payments.AuditEntry, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store          Backend
	Engine         *payments.Engine
	PaymentFactory *factory.PaymentFactory
	Scheduler      *AttributionScheduler
	Logger         *slog.Logger
}

// NewHandler creates a handler whose engine uses store for persistence,
// category resolution and audit.
func NewHandler(store Backend, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	engine := payments.NewEngine(store, store, store)
	engine.Logger = logger
	return &Handler{
		Store:          store,
		Engine:         engine,
		PaymentFactory: factory.NewPaymentFactory(),
		Scheduler:      NewAttributionScheduler(engine, store, logger),
		Logger:         logger,
	}
}

func householdParam(r *http.Request) generic.HouseholdID {
	return generic.HouseholdID(chi.URLParam(r, "hh"))
}

func paymentParam(r *http.Request) generic.PaymentID {
	return generic.PaymentID(chi.URLParam(r, "id"))
}

// =============================================================================
// HOUSEHOLD HANDLERS
// =============================================================================

// ListHouseholds returns all households.
func (h *Handler) ListHouseholds(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListHouseholds(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]HouseholdDTO, len(list))
	for i, hh := range list {
		dtos[i] = toHouseholdDTO(hh)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHousehold creates a new household.
func (h *Handler) CreateHousehold(w http.ResponseWriter, r *http.Request) {
	var req CreateHouseholdRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := h.Store.CreateHousehold(r.Context(), payments.Household{
		ID:   generic.HouseholdID(req.ID),
		Name: req.Name,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHouseholdDTO(*created))
}

// CreateCategory adds a category to the household taxonomy.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	created, err := h.Store.CreateCategory(r.Context(), payments.Category{
		ID:          generic.CategoryID(req.ID),
		HouseholdID: householdParam(r),
		Name:        req.Name,
		Active:      active,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CategoryDTO{
		ID:          string(created.ID),
		HouseholdID: string(created.HouseholdID),
		Name:        created.Name,
		Active:      created.Active,
	})
}

func toHouseholdDTO(hh payments.Household) HouseholdDTO {
	return HouseholdDTO{ID: string(hh.ID), Name: hh.Name, CreatedAt: hh.CreatedAt.Format(time.RFC3339)}
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns the household's payments with observed statuses.
// GET /api/households/{hh}/payments?status=overdue,partial&from=&to=
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	var filter payments.PaymentFilter
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			filter.Statuses = append(filter.Statuses, payments.Status(strings.TrimSpace(part)))
		}
	}
	var err error
	if filter.DueFrom, err = optionalDate(q.Get("from"), "from"); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if filter.DueTo, err = optionalDate(q.Get("to"), "to"); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	list, err := h.Engine.List(r.Context(), householdParam(r), filter)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(list))
}

// GetPayment returns a single payment.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.Get(r.Context(), householdParam(r), paymentParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p))
}

// CreatePayment creates a payment from a factory.PaymentJSON body.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	in, err := h.PaymentFactory.ParsePayment(string(body))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	p, err := h.Engine.Create(r.Context(), householdParam(r), in)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(*p))
}

// BulkCreatePayments creates a JSON array of payments in order, each in its
// own transaction, stopping at the first failure. On failure the error
// response lists the payments already created in Details.
func (h *Handler) BulkCreatePayments(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	batch, err := h.PaymentFactory.ParseBulk(string(body))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	created, err := h.Engine.BulkCreate(r.Context(), householdParam(r), batch)
	if err != nil {
		status, resp := h.errorResponse(r, err)
		writeJSON(w, status, BulkCreateErrorResponse{
			ErrorResponse: resp,
			FailedIndex:   len(created),
			Created:       toPaymentDTOs(created),
		})
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTOs(created))
}

// UpdatePayment applies a partial update.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req factory.PaymentUpdateJSON
	if !decodeBody(w, r, &req) {
		return
	}
	upd, err := h.PaymentFactory.UpdateFromJSON(req)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	p, err := h.Engine.Update(r.Context(), householdParam(r), paymentParam(r), upd)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p))
}

// DeletePayment deletes a payment and restores the income its attributions held.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Delete(r.Context(), householdParam(r), paymentParam(r)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SettlePayment records a (possibly partial) payment.
func (h *Handler) SettlePayment(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PaidAmount == nil {
		h.writeEngineError(w, r, &generic.ValidationError{Field: "paid_amount", Message: "required"})
		return
	}
	res, err := h.Engine.Settle(r.Context(), householdParam(r), paymentParam(r), req.PaidDate, *req.PaidAmount)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dto := SettlementDTO{Payment: toPaymentDTO(res.Payment)}
	if res.Next != nil {
		next := toPaymentDTO(*res.Next)
		dto.Next = &next
	}
	writeJSON(w, http.StatusOK, dto)
}

// RevertPayment clears a settlement.
func (h *Handler) RevertPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.RevertSettlement(r.Context(), householdParam(r), paymentParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p))
}

// CancelPayment moves an unsettled payment to cancelled.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.Cancel(r.Context(), householdParam(r), paymentParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p))
}

// =============================================================================
// ATTRIBUTION HANDLERS
// =============================================================================

// ListAttributions returns a payment's attributions in creation order.
func (h *Handler) ListAttributions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.Attributions(r.Context(), householdParam(r), paymentParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]AttributionDTO, len(list))
	for i, a := range list {
		dtos[i] = toAttributionDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Attribute earmarks income funds for a payment on behalf of the caller.
func (h *Handler) Attribute(w http.ResponseWriter, r *http.Request) {
	var req AttributeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Amount == nil {
		h.writeEngineError(w, r, &generic.ValidationError{Field: "amount", Message: "required"})
		return
	}
	ctx := r.Context()
	a, err := h.Engine.Attribute(ctx, householdParam(r), paymentParam(r),
		generic.IncomeEventID(req.IncomeEventID), *req.Amount,
		payments.AttributionKind(req.Kind), payments.ActorFrom(ctx))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttributionDTO(*a))
}

// RemoveAttribution deletes one attribution and restores its income.
func (h *Handler) RemoveAttribution(w http.ResponseWriter, r *http.Request) {
	aid := generic.AttributionID(chi.URLParam(r, "aid"))
	if err := h.Engine.RemoveAttribution(r.Context(), householdParam(r), paymentParam(r), aid); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AutoAttribute runs the greedy matcher for one household immediately.
// The run is recorded like a scheduled one, attributed to the caller. While a
// scheduled pass is running it fails with a retryable conflict.
func (h *Handler) AutoAttribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	run, err := h.Scheduler.RunHousehold(ctx, householdParam(r), payments.ActorFrom(ctx))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AutoAttributeResponse{Attributed: run.Attributed})
}

// ListAttributionRuns returns the household's matcher history, newest first.
// GET /api/households/{hh}/attribution-runs?limit=20
func (h *Handler) ListAttributionRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.writeEngineError(w, r, &generic.ValidationError{Field: "limit", Message: "must be a non-negative integer"})
			return
		}
		limit = n
	}
	runs, err := h.Store.ListAttributionRuns(r.Context(), householdParam(r), limit)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	resp := AttributionRunsResponse{Runs: make([]AttributionRunDTO, len(runs))}
	for i, run := range runs {
		resp.Runs[i] = toAttributionRunDTO(run)
	}
	if next, ok := h.Scheduler.NextRunTime(); ok {
		at := next.UTC().Format(time.RFC3339)
		resp.NextRunAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// INCOME EVENT HANDLERS
// =============================================================================

// ListIncomeEvents returns income events ordered by scheduled date.
func (h *Handler) ListIncomeEvents(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.IncomeEvents(r.Context(), householdParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]IncomeEventDTO, len(list))
	for i, ev := range list {
		dtos[i] = toIncomeEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateIncomeEvent registers an income event with all funds remaining.
func (h *Handler) CreateIncomeEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateIncomeEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TotalAmount == nil {
		h.writeEngineError(w, r, &generic.ValidationError{Field: "total_amount", Message: "required"})
		return
	}
	status := payments.IncomeStatus(req.Status)
	switch status {
	case "", payments.IncomeScheduled, payments.IncomeReceived, payments.IncomeCancelled:
	default:
		h.writeEngineError(w, r, &generic.ValidationError{Field: "status", Message: "unknown income status " + strconv.Quote(req.Status)})
		return
	}
	ev, err := h.Store.CreateIncomeEvent(r.Context(), payments.IncomeEvent{
		ID:            generic.IncomeEventID(req.ID),
		HouseholdID:   householdParam(r),
		Source:        req.Source,
		TotalAmount:   *req.TotalAmount,
		ScheduledDate: req.ScheduledDate,
		Status:        status,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIncomeEventDTO(*ev))
}

// =============================================================================
// QUERY HANDLERS
// =============================================================================

// Upcoming lists unsettled payments due within the window.
// GET /api/households/{hh}/upcoming?from=2024-06-01&days=30
func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := optionalDate(q.Get("from"), "from")
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if from == nil {
		from = generic.DateOf(h.Engine.Now()).Ptr()
	}
	days := 30
	if s := q.Get("days"); s != "" {
		if days, err = strconv.Atoi(s); err != nil {
			h.writeEngineError(w, r, &generic.ValidationError{Field: "days", Message: "must be an integer"})
			return
		}
	}
	list, err := h.Engine.Upcoming(r.Context(), householdParam(r), *from, days)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(list))
}

// Overdue lists payments whose due date has passed without full settlement.
func (h *Handler) Overdue(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.Overdue(r.Context(), householdParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(list))
}

// Summary aggregates payments due in a period.
// GET /api/households/{hh}/summary?period=month&date=2024-01-15
// GET /api/households/{hh}/summary?start=2024-01-01&end=2024-03-31
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFromQuery(r)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	s, err := h.Engine.Summary(r.Context(), householdParam(r), period)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(*s))
}

// Forecast projects obligations against expected income.
// GET /api/households/{hh}/forecast?days=90
// GET /api/households/{hh}/forecast?start=2024-07-01&end=2024-09-30
func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var period generic.Period
	if q.Get("start") != "" || q.Get("end") != "" {
		p, err := h.periodFromQuery(r)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		period = p
	} else {
		days := 90
		if s := q.Get("days"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				h.writeEngineError(w, r, &generic.ValidationError{Field: "days", Message: "must be a non-negative integer"})
				return
			}
			days = n
		}
		period = generic.Window(generic.DateOf(h.Engine.Now()), days)
	}
	f, err := h.Engine.Forecast(r.Context(), householdParam(r), period)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toForecastDTO(*f))
}

func (h *Handler) periodFromQuery(r *http.Request) (generic.Period, error) {
	q := r.URL.Query()
	start, err := optionalDate(q.Get("start"), "start")
	if err != nil {
		return generic.Period{}, err
	}
	end, err := optionalDate(q.Get("end"), "end")
	if err != nil {
		return generic.Period{}, err
	}
	if start != nil || end != nil {
		if start == nil || end == nil {
			return generic.Period{}, &generic.ValidationError{Field: "period", Message: "start and end must be given together"}
		}
		return generic.Period{Start: *start, End: *end}, nil
	}

	anchor, err := optionalDate(q.Get("date"), "date")
	if err != nil {
		return generic.Period{}, err
	}
	if anchor == nil {
		anchor = generic.DateOf(h.Engine.Now()).Ptr()
	}
	switch t := generic.PeriodType(q.Get("period")); t {
	case "":
		return generic.PeriodFor(generic.PeriodMonth, *anchor), nil
	case generic.PeriodMonth, generic.PeriodQuarter, generic.PeriodYear:
		return generic.PeriodFor(t, *anchor), nil
	default:
		return generic.Period{}, &generic.ValidationError{Field: "period", Message: "use month, quarter or year"}
	}
}

// ListAudit returns the household's audit trail, oldest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListAuditEntries(r.Context(), householdParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func optionalDate(s, field string) (*generic.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		return nil, &generic.ValidationError{Field: field, Message: "use YYYY-MM-DD, got " + strconv.Quote(s)}
	}
	return &d, nil
}

// decodeBody decodes the JSON body into dst, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var ve *generic.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Kind: string(generic.KindInvalid), Field: ve.Field})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind generic.Kind) int {
	switch kind {
	case generic.KindNotFound:
		return http.StatusNotFound
	case generic.KindInvalid:
		return http.StatusBadRequest
	case generic.KindImmutableState, generic.KindAlreadySettled, generic.KindNotSettled, generic.KindCancelled:
		return http.StatusConflict
	case generic.KindConflict:
		return http.StatusConflict
	case generic.KindOverAttributed, generic.KindInsufficientIncome:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError writes err with the status of its kind. Internal errors
// are logged and their details withheld.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := h.errorResponse(r, err)
	writeJSON(w, status, resp)
}

// errorResponse maps err to a status and body. Internal errors are logged
// and their message withheld.
func (h *Handler) errorResponse(r *http.Request, err error) (int, ErrorResponse) {
	kind := generic.KindOf(err)
	status := statusFor(kind)
	resp := ErrorResponse{
		Error:     err.Error(),
		Kind:      string(kind),
		Retryable: generic.IsRetryable(err),
	}
	var ve *generic.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	if status == http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
		resp.Error = "internal error"
	}
	return status, resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
