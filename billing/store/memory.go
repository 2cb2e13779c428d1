// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	contracts   map[billing.ContractID]billing.Contract
	tiers       map[billing.ContractID][]billing.PriceTier
	obligations map[billing.ObligationID]billing.Obligation
	payments    map[billing.ObligationID][]billing.PaymentRecord
	categories  map[catKey]billing.Category
}

type catKey struct {
	Name string
	Kind billing.CategoryKind
}

func NewMemory() *Memory {
	return &Memory{
		contracts:   make(map[billing.ContractID]billing.Contract),
		tiers:       make(map[billing.ContractID][]billing.PriceTier),
		obligations: make(map[billing.ObligationID]billing.Obligation),
		payments:    make(map[billing.ObligationID][]billing.PaymentRecord),
		categories:  make(map[catKey]billing.Category),
	}
}

// =============================================================================
// CONTRACTS
// =============================================================================

func (m *Memory) GetContract(_ context.Context, id billing.ContractID) (*billing.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contracts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) SaveContract(_ context.Context, c billing.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.ID] = c
	return nil
}

func (m *Memory) DeleteContract(_ context.Context, id billing.ContractID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contracts, id)
	return nil
}

func (m *Memory) ListContracts(_ context.Context, projectID billing.ProjectID) ([]billing.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.Contract
	for _, c := range m.contracts {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// PRICE TIERS
// =============================================================================

func (m *Memory) TiersByContract(_ context.Context, id billing.ContractID) ([]billing.PriceTier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]billing.PriceTier{}, m.tiers[id]...)
	sort.Slice(out, func(i, j int) bool { return out[i].YearStart < out[j].YearStart })
	return out, nil
}

func (m *Memory) ReplaceTiers(_ context.Context, id billing.ContractID, tiers []billing.PriceTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[id] = append([]billing.PriceTier{}, tiers...)
	return nil
}

func (m *Memory) DeleteTiers(_ context.Context, id billing.ContractID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tiers, id)
	return nil
}

// =============================================================================
// OBLIGATIONS
// =============================================================================

func (m *Memory) GetObligation(_ context.Context, id billing.ObligationID) (*billing.Obligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.obligations[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *Memory) ObligationsByContract(_ context.Context, projectID billing.ProjectID, contractID billing.ContractID) ([]billing.Obligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.Obligation
	for _, o := range m.obligations {
		if o.Deleted || o.ProjectID != projectID || o.ContractID != contractID {
			continue
		}
		out = append(out, o)
	}
	sortObligations(out)
	return out, nil
}

func (m *Memory) AllObligationsByContract(_ context.Context, projectID billing.ProjectID, contractID billing.ContractID) ([]billing.Obligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.Obligation
	for _, o := range m.obligations {
		if o.ProjectID != projectID || o.ContractID != contractID {
			continue
		}
		out = append(out, o)
	}
	sortObligations(out)
	return out, nil
}

func (m *Memory) ObligationsByProject(_ context.Context, projectID billing.ProjectID) ([]billing.Obligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.Obligation
	for _, o := range m.obligations {
		if o.Deleted || o.ProjectID != projectID {
			continue
		}
		out = append(out, o)
	}
	sortObligations(out)
	return out, nil
}

func sortObligations(obs []billing.Obligation) {
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].MonthKey != obs[j].MonthKey {
			return obs[i].MonthKey < obs[j].MonthKey
		}
		return obs[i].ItemName < obs[j].ItemName
	})
}

func (m *Memory) InsertObligations(_ context.Context, obs []billing.Obligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertObligationsLocked(obs)
}

func (m *Memory) insertObligationsLocked(obs []billing.Obligation) error {
	// Check the month uniqueness constraint first so the batch is atomic.
	for _, o := range obs {
		if o.ContractID == "" || o.MonthKey == "" {
			continue
		}
		for _, existing := range m.obligations {
			if existing.Deleted {
				continue
			}
			if existing.ProjectID == o.ProjectID && existing.ContractID == o.ContractID && existing.MonthKey == o.MonthKey {
				return &billing.DuplicateMonthError{ContractID: o.ContractID, MonthKey: o.MonthKey}
			}
		}
	}
	for _, o := range obs {
		m.obligations[o.ID] = o
	}
	return nil
}

func (m *Memory) UpdateObligationAmount(_ context.Context, id billing.ObligationID, amount decimal.Decimal, notes string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.obligations[id]
	if !ok {
		return billing.ErrObligationNotFound
	}
	o.TotalAmount = amount
	o.Notes = notes
	o.UpdatedAt = at
	m.obligations[id] = o
	return nil
}

func (m *Memory) UpdateObligationPayment(_ context.Context, id billing.ObligationID, paid decimal.Decimal, status billing.ObligationStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.obligations[id]
	if !ok {
		return billing.ErrObligationNotFound
	}
	o.PaidAmount = paid
	o.Status = status
	o.UpdatedAt = at
	m.obligations[id] = o
	return nil
}

func (m *Memory) SoftDeleteObligation(_ context.Context, id billing.ObligationID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.obligations[id]
	if !ok {
		return billing.ErrObligationNotFound
	}
	o.Deleted = true
	o.UpdatedAt = at
	m.obligations[id] = o
	return nil
}

func (m *Memory) UnpaidObligationIDs(_ context.Context, projectID billing.ProjectID, contractID billing.ContractID) ([]billing.ObligationID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []billing.ObligationID
	for id, o := range m.obligations {
		if o.ProjectID != projectID || o.ContractID != contractID {
			continue
		}
		if o.PaidAmount.IsPositive() {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Memory) DeleteObligations(_ context.Context, ids []billing.ObligationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.obligations, id)
	}
	return nil
}

// =============================================================================
// PAYMENT RECORDS
// =============================================================================

func (m *Memory) InsertPayment(_ context.Context, p billing.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ObligationID] = append(m.payments[p.ObligationID], p)
	return nil
}

func (m *Memory) PaymentsByObligation(_ context.Context, id billing.ObligationID) ([]billing.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]billing.PaymentRecord{}, m.payments[id]...), nil
}

func (m *Memory) DeletePaymentsForObligations(_ context.Context, ids []billing.ObligationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.payments, id)
	}
	return nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (m *Memory) GetCategory(_ context.Context, name string, kind billing.CategoryKind) (*billing.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.categories[catKey{Name: name, Kind: kind}]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) SaveCategory(_ context.Context, c billing.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[catKey{Name: c.Name, Kind: c.Kind}] = c
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// WithTx executes fn within a simulated transaction: state is snapshotted
// up front and restored if fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(billing.Store) error) error {
	snapshot := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	contracts   map[billing.ContractID]billing.Contract
	tiers       map[billing.ContractID][]billing.PriceTier
	obligations map[billing.ObligationID]billing.Obligation
	payments    map[billing.ObligationID][]billing.PaymentRecord
	categories  map[catKey]billing.Category
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := memorySnapshot{
		contracts:   make(map[billing.ContractID]billing.Contract, len(m.contracts)),
		tiers:       make(map[billing.ContractID][]billing.PriceTier, len(m.tiers)),
		obligations: make(map[billing.ObligationID]billing.Obligation, len(m.obligations)),
		payments:    make(map[billing.ObligationID][]billing.PaymentRecord, len(m.payments)),
		categories:  make(map[catKey]billing.Category, len(m.categories)),
	}
	for k, v := range m.contracts {
		s.contracts[k] = v
	}
	for k, v := range m.tiers {
		s.tiers[k] = append([]billing.PriceTier{}, v...)
	}
	for k, v := range m.obligations {
		s.obligations[k] = v
	}
	for k, v := range m.payments {
		s.payments[k] = append([]billing.PaymentRecord{}, v...)
	}
	for k, v := range m.categories {
		s.categories[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts = s.contracts
	m.tiers = s.tiers
	m.obligations = s.obligations
	m.payments = s.payments
	m.categories = s.categories
}
