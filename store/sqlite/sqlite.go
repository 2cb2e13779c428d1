/*
Package sqlite provides a SQLite-backed implementation of billing.TxStore.

PURPOSE:
  Implements the billing persistence interfaces using SQLite. The same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  contracts:       Contract definitions (term, base rate, buffer flags)
  price_tiers:     Year-range rate overrides per contract
  obligations:     Generated and one-off payment items
  payment_records: Payments applied against obligations
  categories:      Well-known expense/income categories

UNIQUE MONTH INDEX:
  idx_obligations_contract_month enforces one live obligation per
  (project, contract, month key) for generated rows. A racing duplicate
  insert fails the constraint and is surfaced as billing.ErrDuplicateMonth
  - a retryable conflict, never silent duplication.

SOFT DELETE:
  Obligation listings filter deleted = 0 in the query itself; callers
  cannot forget the flag.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and foreign keys on.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
)

const dateLayout = "2006-01-02"

// Store implements billing.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		has_buffer BOOLEAN NOT NULL DEFAULT FALSE,
		buffer_months INTEGER NOT NULL DEFAULT 0,
		buffer_in_term BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Contract names disambiguate obligations within a project.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_contracts_project_name
		ON contracts(project_id, name);

	CREATE TABLE IF NOT EXISTS price_tiers (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL REFERENCES contracts(id),
		year_start INTEGER NOT NULL,
		year_end INTEGER NOT NULL,
		monthly_amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_price_tiers_contract
		ON price_tiers(contract_id, year_start);

	CREATE TABLE IF NOT EXISTS obligations (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL DEFAULT '',
		category_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		month_key TEXT NOT NULL DEFAULT '',
		item_name TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		paid_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'pending',
		notes TEXT NOT NULL DEFAULT '',
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: one live generated obligation per contract month. A racing
	-- regeneration hits this constraint instead of double-inserting.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_obligations_contract_month
		ON obligations(project_id, contract_id, month_key)
		WHERE contract_id != '' AND month_key != '' AND deleted = FALSE;

	CREATE INDEX IF NOT EXISTS idx_obligations_project
		ON obligations(project_id, deleted);
	CREATE INDEX IF NOT EXISTS idx_obligations_contract
		ON obligations(contract_id, deleted);

	CREATE TABLE IF NOT EXISTS payment_records (
		id TEXT PRIMARY KEY,
		obligation_id TEXT NOT NULL REFERENCES obligations(id),
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payment_records_obligation
		ON payment_records(obligation_id);

	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		UNIQUE(name, kind)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer covers *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CONTRACTS
// =============================================================================

func (s *Store) GetContract(ctx context.Context, id billing.ContractID) (*billing.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getContract(ctx, s.db, id)
}

func getContract(ctx context.Context, db execer, id billing.ContractID) (*billing.Contract, error) {
	contracts, err := queryContracts(ctx, db, `
		SELECT id, project_id, name, start_date, end_date, base_amount,
		       has_buffer, buffer_months, buffer_in_term, created_at, updated_at
		FROM contracts WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(contracts) == 0 {
		return nil, nil
	}
	return &contracts[0], nil
}

func (s *Store) SaveContract(ctx context.Context, c billing.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveContract(ctx, s.db, c)
}

func saveContract(ctx context.Context, db execer, c billing.Contract) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO contracts
		(id, project_id, name, start_date, end_date, base_amount,
		 has_buffer, buffer_months, buffer_in_term, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			base_amount = excluded.base_amount,
			has_buffer = excluded.has_buffer,
			buffer_months = excluded.buffer_months,
			buffer_in_term = excluded.buffer_in_term,
			updated_at = excluded.updated_at`,
		c.ID, c.ProjectID, c.Name,
		c.StartDate.Format(dateLayout), c.EndDate.Format(dateLayout),
		c.BaseAmount.String(),
		c.HasBuffer, c.BufferMonths, c.BufferInTerm,
		c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) DeleteContract(ctx context.Context, id billing.ContractID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM contracts WHERE id = ?", id)
	return err
}

func (s *Store) ListContracts(ctx context.Context, projectID billing.ProjectID) ([]billing.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listContracts(ctx, s.db, projectID)
}

func listContracts(ctx context.Context, db execer, projectID billing.ProjectID) ([]billing.Contract, error) {
	return queryContracts(ctx, db, `
		SELECT id, project_id, name, start_date, end_date, base_amount,
		       has_buffer, buffer_months, buffer_in_term, created_at, updated_at
		FROM contracts WHERE project_id = ? ORDER BY name`, projectID)
}

func queryContracts(ctx context.Context, db execer, query string, args ...any) ([]billing.Contract, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []billing.Contract
	for rows.Next() {
		var (
			c                              billing.Contract
			startDate, endDate, baseAmount string
			createdAt, updatedAt           string
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &startDate, &endDate, &baseAmount,
			&c.HasBuffer, &c.BufferMonths, &c.BufferInTerm, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		c.StartDate, _ = time.Parse(dateLayout, startDate)
		c.EndDate, _ = time.Parse(dateLayout, endDate)
		c.BaseAmount = mustDecimal(baseAmount)
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// =============================================================================
// PRICE TIERS
// =============================================================================

func (s *Store) TiersByContract(ctx context.Context, id billing.ContractID) ([]billing.PriceTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tiersByContract(ctx, s.db, id)
}

func tiersByContract(ctx context.Context, db execer, id billing.ContractID) ([]billing.PriceTier, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, contract_id, year_start, year_end, monthly_amount, created_at
		FROM price_tiers WHERE contract_id = ? ORDER BY year_start ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []billing.PriceTier
	for rows.Next() {
		var (
			t                 billing.PriceTier
			amount, createdAt string
		)
		if err := rows.Scan(&t.ID, &t.ContractID, &t.YearStart, &t.YearEnd, &amount, &createdAt); err != nil {
			return nil, err
		}
		t.MonthlyAmount = mustDecimal(amount)
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (s *Store) ReplaceTiers(ctx context.Context, id billing.ContractID, tiers []billing.PriceTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return replaceTiers(ctx, s.db, id, tiers)
}

func replaceTiers(ctx context.Context, db execer, id billing.ContractID, tiers []billing.PriceTier) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM price_tiers WHERE contract_id = ?", id); err != nil {
		return err
	}
	for _, t := range tiers {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO price_tiers (id, contract_id, year_start, year_end, monthly_amount, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, id, t.YearStart, t.YearEnd, t.MonthlyAmount.String(),
			t.CreatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteTiers(ctx context.Context, id billing.ContractID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM price_tiers WHERE contract_id = ?", id)
	return err
}

// =============================================================================
// OBLIGATIONS
// =============================================================================

const obligationColumns = `id, contract_id, category_id, project_id, month_key, item_name,
	total_amount, due_date, paid_amount, status, notes, deleted, created_at, updated_at`

func (s *Store) GetObligation(ctx context.Context, id billing.ObligationID) (*billing.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getObligation(ctx, s.db, id)
}

func getObligation(ctx context.Context, db execer, id billing.ObligationID) (*billing.Obligation, error) {
	obs, err := queryObligations(ctx, db,
		"SELECT "+obligationColumns+" FROM obligations WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return nil, nil
	}
	return &obs[0], nil
}

func (s *Store) ObligationsByContract(ctx context.Context, projectID billing.ProjectID, contractID billing.ContractID) ([]billing.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return obligationsByContract(ctx, s.db, projectID, contractID)
}

func obligationsByContract(ctx context.Context, db execer, projectID billing.ProjectID, contractID billing.ContractID) ([]billing.Obligation, error) {
	return queryObligations(ctx, db, `
		SELECT `+obligationColumns+` FROM obligations
		WHERE project_id = ? AND contract_id = ? AND deleted = FALSE
		ORDER BY month_key ASC, item_name ASC`, projectID, contractID)
}

func (s *Store) AllObligationsByContract(ctx context.Context, projectID billing.ProjectID, contractID billing.ContractID) ([]billing.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return allObligationsByContract(ctx, s.db, projectID, contractID)
}

func allObligationsByContract(ctx context.Context, db execer, projectID billing.ProjectID, contractID billing.ContractID) ([]billing.Obligation, error) {
	return queryObligations(ctx, db, `
		SELECT `+obligationColumns+` FROM obligations
		WHERE project_id = ? AND contract_id = ?
		ORDER BY month_key ASC, item_name ASC`, projectID, contractID)
}

func obligationsByProject(ctx context.Context, db execer, projectID billing.ProjectID) ([]billing.Obligation, error) {
	return queryObligations(ctx, db, `
		SELECT `+obligationColumns+` FROM obligations
		WHERE project_id = ? AND deleted = FALSE
		ORDER BY month_key ASC, item_name ASC`, projectID)
}

func (s *Store) ObligationsByProject(ctx context.Context, projectID billing.ProjectID) ([]billing.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return obligationsByProject(ctx, s.db, projectID)
}

func queryObligations(ctx context.Context, db execer, query string, args ...any) ([]billing.Obligation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query obligations: %w", err)
	}
	defer rows.Close()

	var obs []billing.Obligation
	for rows.Next() {
		var (
			o                                billing.Obligation
			totalAmount, dueDate, paidAmount string
			createdAt, updatedAt             string
		)
		if err := rows.Scan(&o.ID, &o.ContractID, &o.CategoryID, &o.ProjectID,
			&o.MonthKey, &o.ItemName, &totalAmount, &dueDate, &paidAmount,
			&o.Status, &o.Notes, &o.Deleted, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		o.TotalAmount = mustDecimal(totalAmount)
		o.PaidAmount = mustDecimal(paidAmount)
		o.DueDate, _ = time.Parse(dateLayout, dueDate)
		o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

func (s *Store) InsertObligations(ctx context.Context, obs []billing.Obligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertObligations(ctx, s.db, obs)
}

func insertObligations(ctx context.Context, db execer, obs []billing.Obligation) error {
	for _, o := range obs {
		_, err := db.ExecContext(ctx, `
			INSERT INTO obligations
			(id, contract_id, category_id, project_id, month_key, item_name,
			 total_amount, due_date, paid_amount, status, notes, deleted, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.ContractID, o.CategoryID, o.ProjectID, o.MonthKey, o.ItemName,
			o.TotalAmount.String(), o.DueDate.Format(dateLayout), o.PaidAmount.String(),
			o.Status, o.Notes, o.Deleted,
			o.CreatedAt.UTC().Format(time.RFC3339), o.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			if isMonthUniquenessError(err) {
				return &billing.DuplicateMonthError{ContractID: o.ContractID, MonthKey: o.MonthKey}
			}
			return fmt.Errorf("failed to insert obligation: %w", err)
		}
	}
	return nil
}

func (s *Store) UpdateObligationAmount(ctx context.Context, id billing.ObligationID, amount decimal.Decimal, notes string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateObligationAmount(ctx, s.db, id, amount, notes, at)
}

func updateObligationAmount(ctx context.Context, db execer, id billing.ObligationID, amount decimal.Decimal, notes string, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE obligations SET total_amount = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		amount.String(), notes, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) UpdateObligationPayment(ctx context.Context, id billing.ObligationID, paid decimal.Decimal, status billing.ObligationStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateObligationPayment(ctx, s.db, id, paid, status, at)
}

func updateObligationPayment(ctx context.Context, db execer, id billing.ObligationID, paid decimal.Decimal, status billing.ObligationStatus, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE obligations SET paid_amount = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		paid.String(), status, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SoftDeleteObligation(ctx context.Context, id billing.ObligationID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return softDeleteObligation(ctx, s.db, id, at)
}

func softDeleteObligation(ctx context.Context, db execer, id billing.ObligationID, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE obligations SET deleted = TRUE, updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) UnpaidObligationIDs(ctx context.Context, projectID billing.ProjectID, contractID billing.ContractID) ([]billing.ObligationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return unpaidObligationIDs(ctx, s.db, projectID, contractID)
}

func unpaidObligationIDs(ctx context.Context, db execer, projectID billing.ProjectID, contractID billing.ContractID) ([]billing.ObligationID, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM obligations
		WHERE project_id = ? AND contract_id = ? AND CAST(paid_amount AS REAL) = 0`,
		projectID, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []billing.ObligationID
	for rows.Next() {
		var id billing.ObligationID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) DeleteObligations(ctx context.Context, ids []billing.ObligationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteObligations(ctx, s.db, ids)
}

func deleteObligations(ctx context.Context, db execer, ids []billing.ObligationID) error {
	for _, id := range ids {
		if _, err := db.ExecContext(ctx, "DELETE FROM obligations WHERE id = ?", id); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// PAYMENT RECORDS
// =============================================================================

func (s *Store) InsertPayment(ctx context.Context, p billing.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPayment(ctx, s.db, p)
}

func insertPayment(ctx context.Context, db execer, p billing.PaymentRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payment_records (id, obligation_id, amount, paid_at, method, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.ObligationID, p.Amount.String(), p.PaidAt.Format(dateLayout),
		p.Method, p.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) PaymentsByObligation(ctx context.Context, id billing.ObligationID) ([]billing.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paymentsByObligation(ctx, s.db, id)
}

func paymentsByObligation(ctx context.Context, db execer, id billing.ObligationID) ([]billing.PaymentRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, obligation_id, amount, paid_at, method, created_at
		FROM payment_records WHERE obligation_id = ? ORDER BY paid_at ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []billing.PaymentRecord
	for rows.Next() {
		var (
			p                         billing.PaymentRecord
			amount, paidAt, createdAt string
		)
		if err := rows.Scan(&p.ID, &p.ObligationID, &amount, &paidAt, &p.Method, &createdAt); err != nil {
			return nil, err
		}
		p.Amount = mustDecimal(amount)
		p.PaidAt, _ = time.Parse(dateLayout, paidAt)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) DeletePaymentsForObligations(ctx context.Context, ids []billing.ObligationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePaymentsForObligations(ctx, s.db, ids)
}

func deletePaymentsForObligations(ctx context.Context, db execer, ids []billing.ObligationID) error {
	for _, id := range ids {
		if _, err := db.ExecContext(ctx, "DELETE FROM payment_records WHERE obligation_id = ?", id); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (s *Store) GetCategory(ctx context.Context, name string, kind billing.CategoryKind) (*billing.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCategory(ctx, s.db, name, kind)
}

func getCategory(ctx context.Context, db execer, name string, kind billing.CategoryKind) (*billing.Category, error) {
	var c billing.Category
	err := db.QueryRowContext(ctx,
		"SELECT id, name, kind FROM categories WHERE name = ? AND kind = ?",
		name, kind,
	).Scan(&c.ID, &c.Name, &c.Kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) SaveCategory(ctx context.Context, c billing.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCategory(ctx, s.db, c)
}

func saveCategory(ctx context.Context, db execer, c billing.Category) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO categories (id, name, kind) VALUES (?, ?, ?)
		ON CONFLICT(name, kind) DO NOTHING`,
		c.ID, c.Name, c.Kind)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (billing.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every Store call through one *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetContract(ctx context.Context, id billing.ContractID) (*billing.Contract, error) {
	return getContract(ctx, ts.tx, id)
}

func (ts *txStore) SaveContract(ctx context.Context, c billing.Contract) error {
	return saveContract(ctx, ts.tx, c)
}

func (ts *txStore) DeleteContract(ctx context.Context, id billing.ContractID) error {
	_, err := ts.tx.ExecContext(ctx, "DELETE FROM contracts WHERE id = ?", id)
	return err
}

func (ts *txStore) ListContracts(ctx context.Context, projectID billing.ProjectID) ([]billing.Contract, error) {
	return listContracts(ctx, ts.tx, projectID)
}

func (ts *txStore) TiersByContract(ctx context.Context, id billing.ContractID) ([]billing.PriceTier, error) {
	return tiersByContract(ctx, ts.tx, id)
}

func (ts *txStore) ReplaceTiers(ctx context.Context, id billing.ContractID, tiers []billing.PriceTier) error {
	return replaceTiers(ctx, ts.tx, id, tiers)
}

func (ts *txStore) DeleteTiers(ctx context.Context, id billing.ContractID) error {
	_, err := ts.tx.ExecContext(ctx, "DELETE FROM price_tiers WHERE contract_id = ?", id)
	return err
}

func (ts *txStore) GetObligation(ctx context.Context, id billing.ObligationID) (*billing.Obligation, error) {
	return getObligation(ctx, ts.tx, id)
}

func (ts *txStore) ObligationsByContract(ctx context.Context, projectID billing.ProjectID, contractID billing.ContractID) ([]billing.Obligation, error) {
	return obligationsByContract(ctx, ts.tx, projectID, contractID)
}

func (ts *txStore) AllObligationsByContract(ctx context.Context, projectID billing.ProjectID, contractID billing.ContractID) ([]billing.Obligation, error) {
	return allObligationsByContract(ctx, ts.tx, projectID, contractID)
}

func (ts *txStore) ObligationsByProject(ctx context.Context, projectID billing.ProjectID) ([]billing.Obligation, error) {
	return obligationsByProject(ctx, ts.tx, projectID)
}

func (ts *txStore) InsertObligations(ctx context.Context, obs []billing.Obligation) error {
	return insertObligations(ctx, ts.tx, obs)
}

func (ts *txStore) UpdateObligationAmount(ctx context.Context, id billing.ObligationID, amount decimal.Decimal, notes string, at time.Time) error {
	return updateObligationAmount(ctx, ts.tx, id, amount, notes, at)
}

func (ts *txStore) UpdateObligationPayment(ctx context.Context, id billing.ObligationID, paid decimal.Decimal, status billing.ObligationStatus, at time.Time) error {
	return updateObligationPayment(ctx, ts.tx, id, paid, status, at)
}

func (ts *txStore) SoftDeleteObligation(ctx context.Context, id billing.ObligationID, at time.Time) error {
	return softDeleteObligation(ctx, ts.tx, id, at)
}

func (ts *txStore) UnpaidObligationIDs(ctx context.Context, projectID billing.ProjectID, contractID billing.ContractID) ([]billing.ObligationID, error) {
	return unpaidObligationIDs(ctx, ts.tx, projectID, contractID)
}

func (ts *txStore) DeleteObligations(ctx context.Context, ids []billing.ObligationID) error {
	return deleteObligations(ctx, ts.tx, ids)
}

func (ts *txStore) InsertPayment(ctx context.Context, p billing.PaymentRecord) error {
	return insertPayment(ctx, ts.tx, p)
}

func (ts *txStore) PaymentsByObligation(ctx context.Context, id billing.ObligationID) ([]billing.PaymentRecord, error) {
	return paymentsByObligation(ctx, ts.tx, id)
}

func (ts *txStore) DeletePaymentsForObligations(ctx context.Context, ids []billing.ObligationID) error {
	return deletePaymentsForObligations(ctx, ts.tx, ids)
}

func (ts *txStore) GetCategory(ctx context.Context, name string, kind billing.CategoryKind) (*billing.Category, error) {
	return getCategory(ctx, ts.tx, name, kind)
}

func (ts *txStore) SaveCategory(ctx context.Context, c billing.Category) error {
	return saveCategory(ctx, ts.tx, c)
}

// =============================================================================
// HELPERS
// =============================================================================

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrObligationNotFound
	}
	return nil
}

func isMonthUniquenessError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") &&
		strings.Contains(msg, "obligations.month_key")
}
