// Package memory provides an in-memory payments store (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements payments.TxStore, payments.CategoryResolver,
// payments.AuditSink and payments.RunLog.
//
// A transaction holds the write lock for its whole duration and works on the
// live maps; on error the maps are restored from a snapshot.
type Memory struct {
	mu sync.RWMutex
	d  *data
}

type data struct {
	households   map[generic.HouseholdID]payments.Household
	categories   map[generic.CategoryID]payments.Category
	payments     map[generic.PaymentID]payments.Payment
	income       map[generic.IncomeEventID]payments.IncomeEvent
	attributions []payments.Attribution // creation order
	audit        []payments.AuditEntry
	runs         []payments.AttributionRun
}

func New() *Memory {
	return &Memory{d: newData()}
}

func newData() *data {
	return &data{
		households: make(map[generic.HouseholdID]payments.Household),
		categories: make(map[generic.CategoryID]payments.Category),
		payments:   make(map[generic.PaymentID]payments.Payment),
		income:     make(map[generic.IncomeEventID]payments.IncomeEvent),
	}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(payments.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.d.clone()
	if err := fn(m.d); err != nil {
		m.d = snapshot
		return err
	}
	return nil
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.households {
		c.households[k] = v
	}
	for k, v := range d.categories {
		c.categories[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = clonePayment(v)
	}
	for k, v := range d.income {
		c.income[k] = v
	}
	c.attributions = append([]payments.Attribution(nil), d.attributions...)
	c.audit = append([]payments.AuditEntry(nil), d.audit...)
	c.runs = append([]payments.AttributionRun(nil), d.runs...)
	return c
}

func clonePayment(p payments.Payment) payments.Payment {
	if p.NextDueDate != nil {
		p.NextDueDate = p.NextDueDate.Ptr()
	}
	if p.PaidDate != nil {
		p.PaidDate = p.PaidDate.Ptr()
	}
	if p.PaidAmount != nil {
		v := *p.PaidAmount
		p.PaidAmount = &v
	}
	if p.SpawnedID != nil {
		v := *p.SpawnedID
		p.SpawnedID = &v
	}
	return p
}

// =============================================================================
// payments.Store - locked entry points
// =============================================================================

func (m *Memory) HouseholdExists(ctx context.Context, householdID generic.HouseholdID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.HouseholdExists(ctx, householdID)
}

func (m *Memory) GetPayment(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID) (*payments.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.GetPayment(ctx, householdID, id)
}

func (m *Memory) ListPayments(ctx context.Context, householdID generic.HouseholdID, filter payments.PaymentFilter) ([]payments.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListPayments(ctx, householdID, filter)
}

func (m *Memory) SavePayment(ctx context.Context, p payments.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.SavePayment(ctx, p)
}

func (m *Memory) DeletePayment(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.DeletePayment(ctx, householdID, id)
}

func (m *Memory) GetIncomeEvent(ctx context.Context, householdID generic.HouseholdID, id generic.IncomeEventID) (*payments.IncomeEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.GetIncomeEvent(ctx, householdID, id)
}

func (m *Memory) ListIncomeEvents(ctx context.Context, householdID generic.HouseholdID) ([]payments.IncomeEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListIncomeEvents(ctx, householdID)
}

func (m *Memory) AdjustIncomeBalances(ctx context.Context, householdID generic.HouseholdID, id generic.IncomeEventID, deltaAllocated, deltaRemaining decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.AdjustIncomeBalances(ctx, householdID, id, deltaAllocated, deltaRemaining)
}

func (m *Memory) GetAttribution(ctx context.Context, householdID generic.HouseholdID, id generic.AttributionID) (*payments.Attribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.GetAttribution(ctx, householdID, id)
}

func (m *Memory) ListAttributions(ctx context.Context, householdID generic.HouseholdID, paymentID generic.PaymentID) ([]payments.Attribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListAttributions(ctx, householdID, paymentID)
}

func (m *Memory) ListHouseholdAttributions(ctx context.Context, householdID generic.HouseholdID) ([]payments.Attribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListHouseholdAttributions(ctx, householdID)
}

func (m *Memory) InsertAttribution(ctx context.Context, a payments.Attribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.InsertAttribution(ctx, a)
}

func (m *Memory) DeleteAttribution(ctx context.Context, householdID generic.HouseholdID, id generic.AttributionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.DeleteAttribution(ctx, householdID, id)
}

// =============================================================================
// payments.Store - unlocked implementation, also the transactional view
// =============================================================================

func (d *data) HouseholdExists(_ context.Context, householdID generic.HouseholdID) (bool, error) {
	_, ok := d.households[householdID]
	return ok, nil
}

func (d *data) GetPayment(_ context.Context, householdID generic.HouseholdID, id generic.PaymentID) (*payments.Payment, error) {
	p, ok := d.payments[id]
	if !ok || p.HouseholdID != householdID {
		return nil, nil
	}
	p = clonePayment(p)
	return &p, nil
}

func (d *data) ListPayments(_ context.Context, householdID generic.HouseholdID, filter payments.PaymentFilter) ([]payments.Payment, error) {
	var out []payments.Payment
	for _, p := range d.payments {
		if p.HouseholdID == householdID && filter.Matches(p) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].DueDate.Compare(out[j].DueDate); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *data) SavePayment(_ context.Context, p payments.Payment) error {
	if existing, ok := d.payments[p.ID]; ok && existing.HouseholdID != p.HouseholdID {
		return fmt.Errorf("payment %s belongs to another household", p.ID)
	}
	d.payments[p.ID] = clonePayment(p)
	return nil
}

func (d *data) DeletePayment(_ context.Context, householdID generic.HouseholdID, id generic.PaymentID) error {
	p, ok := d.payments[id]
	if !ok || p.HouseholdID != householdID {
		return generic.NotFound(generic.EntityPayment, id)
	}
	delete(d.payments, id)
	return nil
}

func (d *data) GetIncomeEvent(_ context.Context, householdID generic.HouseholdID, id generic.IncomeEventID) (*payments.IncomeEvent, error) {
	ev, ok := d.income[id]
	if !ok || ev.HouseholdID != householdID {
		return nil, nil
	}
	return &ev, nil
}

func (d *data) ListIncomeEvents(_ context.Context, householdID generic.HouseholdID) ([]payments.IncomeEvent, error) {
	var out []payments.IncomeEvent
	for _, ev := range d.income {
		if ev.HouseholdID == householdID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].ScheduledDate.Compare(out[j].ScheduledDate); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *data) AdjustIncomeBalances(_ context.Context, householdID generic.HouseholdID, id generic.IncomeEventID, deltaAllocated, deltaRemaining decimal.Decimal) error {
	ev, ok := d.income[id]
	if !ok || ev.HouseholdID != householdID {
		return generic.NotFound(generic.EntityIncomeEvent, id)
	}
	next := ev
	next.AllocatedAmount = ev.AllocatedAmount.Add(deltaAllocated)
	next.RemainingAmount = ev.RemainingAmount.Add(deltaRemaining)
	if next.RemainingAmount.IsNegative() {
		return &generic.InsufficientIncomeError{
			IncomeEventID: id,
			Remaining:     ev.RemainingAmount,
			Requested:     deltaRemaining.Neg(),
		}
	}
	if !next.Balanced() {
		return fmt.Errorf("income event %s: balance adjustment breaks conservation (allocated %s, remaining %s, total %s)",
			id, next.AllocatedAmount, next.RemainingAmount, next.TotalAmount)
	}
	d.income[id] = next
	return nil
}

func (d *data) GetAttribution(_ context.Context, householdID generic.HouseholdID, id generic.AttributionID) (*payments.Attribution, error) {
	for _, a := range d.attributions {
		if a.ID == id && a.HouseholdID == householdID {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (d *data) ListAttributions(_ context.Context, householdID generic.HouseholdID, paymentID generic.PaymentID) ([]payments.Attribution, error) {
	var out []payments.Attribution
	for _, a := range d.attributions {
		if a.HouseholdID == householdID && a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *data) ListHouseholdAttributions(_ context.Context, householdID generic.HouseholdID) ([]payments.Attribution, error) {
	var out []payments.Attribution
	for _, a := range d.attributions {
		if a.HouseholdID == householdID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *data) InsertAttribution(_ context.Context, a payments.Attribution) error {
	for _, existing := range d.attributions {
		if existing.ID == a.ID {
			return fmt.Errorf("attribution %s already exists", a.ID)
		}
	}
	d.attributions = append(d.attributions, a)
	return nil
}

func (d *data) DeleteAttribution(_ context.Context, householdID generic.HouseholdID, id generic.AttributionID) error {
	for i, a := range d.attributions {
		if a.ID == id && a.HouseholdID == householdID {
			d.attributions = append(d.attributions[:i:i], d.attributions[i+1:]...)
			return nil
		}
	}
	return generic.NotFound(generic.EntityAttribution, id)
}

// =============================================================================
// COLLABORATORS - households, categories, income events, audit, run log
// =============================================================================

func (m *Memory) CreateHousehold(_ context.Context, h payments.Household) (*payments.Household, error) {
	if h.Name == "" {
		return nil, &generic.ValidationError{Field: "name", Message: "required"}
	}
	if h.ID == "" {
		h.ID = generic.HouseholdID(uuid.NewString())
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.d.households[h.ID]; ok {
		return nil, &generic.ValidationError{Field: "id", Message: "household already exists"}
	}
	m.d.households[h.ID] = h
	return &h, nil
}

func (m *Memory) ListHouseholds(_ context.Context) ([]payments.Household, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payments.Household, 0, len(m.d.households))
	for _, h := range m.d.households {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateCategory(_ context.Context, c payments.Category) (*payments.Category, error) {
	if c.Name == "" {
		return nil, &generic.ValidationError{Field: "name", Message: "required"}
	}
	if c.ID == "" {
		c.ID = generic.CategoryID(uuid.NewString())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.d.households[c.HouseholdID]; !ok {
		return nil, generic.NotFound(generic.EntityHousehold, c.HouseholdID)
	}
	m.d.categories[c.ID] = c
	return &c, nil
}

// ResolveActiveCategory implements payments.CategoryResolver.
func (m *Memory) ResolveActiveCategory(_ context.Context, householdID generic.HouseholdID, id generic.CategoryID) (*payments.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.d.categories[id]
	if !ok || !c.Active || c.HouseholdID != householdID {
		return nil, nil
	}
	return &c, nil
}

// CreateIncomeEvent registers an income event with nothing allocated.
func (m *Memory) CreateIncomeEvent(_ context.Context, ev payments.IncomeEvent) (*payments.IncomeEvent, error) {
	if err := generic.RequirePositive("total_amount", ev.TotalAmount); err != nil {
		return nil, err
	}
	if ev.ScheduledDate.IsZero() {
		return nil, &generic.ValidationError{Field: "scheduled_date", Message: "required"}
	}
	if ev.ID == "" {
		ev.ID = generic.IncomeEventID(uuid.NewString())
	}
	if ev.Status == "" {
		ev.Status = payments.IncomeScheduled
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	ev.AllocatedAmount = decimal.Zero
	ev.RemainingAmount = ev.TotalAmount

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.d.households[ev.HouseholdID]; !ok {
		return nil, generic.NotFound(generic.EntityHousehold, ev.HouseholdID)
	}
	m.d.income[ev.ID] = ev
	return &ev, nil
}

// Record implements payments.AuditSink.
func (m *Memory) Record(_ context.Context, entry payments.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.audit = append(m.d.audit, entry)
	return nil
}

// ListAuditEntries returns the household's audit trail, oldest first.
func (m *Memory) ListAuditEntries(_ context.Context, householdID generic.HouseholdID) ([]payments.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payments.AuditEntry
	for _, e := range m.d.audit {
		if e.HouseholdID == householdID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) SaveAttributionRun(_ context.Context, run payments.AttributionRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.runs = append(m.d.runs, run)
	return nil
}

func (m *Memory) ListAttributionRuns(_ context.Context, householdID generic.HouseholdID, limit int) ([]payments.AttributionRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payments.AttributionRun
	for i := len(m.d.runs) - 1; i >= 0; i-- {
		if m.d.runs[i].HouseholdID != householdID {
			continue
		}
		out = append(out, m.d.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// =============================================================================
// Interface checks
// =============================================================================

var (
	_ payments.TxStore          = (*Memory)(nil)
	_ payments.CategoryResolver = (*Memory)(nil)
	_ payments.AuditSink        = (*Memory)(nil)
	_ payments.RunLog           = (*Memory)(nil)
	_ payments.Store            = (*data)(nil)
)
