/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.Repository (the read-side snapshot contract the
  calculation engine consumes) and engine.AdminStore (template,
  assignment, override, and tax-rule-set administration) on SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  templates:      versioned pay-structure templates; the ordered
                  component set is stored as JSON (components are a
                  document, not a query target)
  assignments:    worker-to-template-version bindings with effective
                  ranges
  overrides:      worker-scoped component overrides
  tax_rule_sets:  versioned tax schedules; brackets stored as JSON

SINGLE-CURRENT INVARIANT:
  ReassignWorker runs inside a database transaction: it ends every
  assignment that would overlap the new one, then inserts the new one.
  Either both writes land or neither does, so a worker can never be
  observed with two current assignments.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block
  writers, so a calculation's snapshot reads stay consistent.

USAGE:
  st, err := sqlite.New("./data/payroll.db")
  if err != nil { log.Fatal(err) }
  defer st.Close()
  eng := engine.New(st, engine.Collaborators{...})

SEE ALSO:
  - engine/store.go: interface definitions
  - engine/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/payroll-engine/engine"
)

// Store implements engine.Repository and engine.AdminStore using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
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
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Pay structure templates (one row per version; published versions immutable)
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT NOT NULL,
		version TEXT NOT NULL,
		org_id TEXT NOT NULL,
		template_code TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		components_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (id, version)
	);

	CREATE INDEX IF NOT EXISTS idx_templates_org
		ON templates(org_id, template_code);

	-- Worker structure assignments
	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		worker_id TEXT NOT NULL,
		template_id TEXT NOT NULL,
		template_version TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		base_salary TEXT,
		hourly_rate TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: current-assignment resolution
	CREATE INDEX IF NOT EXISTS idx_assignments_worker_active
		ON assignments(worker_id, effective_from, effective_to);

	-- Component overrides
	CREATE TABLE IF NOT EXISTS overrides (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		component_code TEXT NOT NULL,
		calc_type TEXT,
		amount TEXT,
		percentage TEXT,
		rate TEXT,
		formula TEXT,
		disabled BOOLEAN NOT NULL DEFAULT FALSE,
		reason TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_overrides_worker
		ON overrides(worker_id, component_code);

	-- Tax rule sets (brackets stored as a JSON document)
	CREATE TABLE IF NOT EXISTS tax_rule_sets (
		id TEXT PRIMARY KEY,
		jurisdiction TEXT NOT NULL,
		tax_type TEXT NOT NULL,
		method TEXT NOT NULL,
		mode TEXT,
		flat_rate TEXT,
		brackets_json TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tax_rule_sets_jurisdiction
		ON tax_rule_sets(jurisdiction, tax_type, effective_from);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REPOSITORY (engine.Repository interface)
// =============================================================================

// ResolveCurrentAssignment loads the worker's assignment covering asOf,
// its template version, and the overrides active on that date.
func (s *Store) ResolveCurrentAssignment(ctx context.Context, orgID engine.OrgID, workerID engine.WorkerID, asOf time.Time) (*engine.ResolvedStructure, error) {
	day := engine.DateOnly(asOf).Format(time.DateOnly)

	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, worker_id, template_id, template_version,
		       effective_from, effective_to, base_salary, hourly_rate
		FROM assignments
		WHERE org_id = ? AND worker_id = ?
		  AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to >= ?)
		ORDER BY effective_from DESC
		LIMIT 1`,
		orgID, workerID, day, day)

	assignment, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "assignment", ID: string(workerID)}
	}
	if err != nil {
		return nil, err
	}

	template, err := s.GetTemplate(ctx, assignment.TemplateID, assignment.Version)
	if err != nil {
		return nil, err
	}

	overrides, err := s.activeOverrides(ctx, workerID, day)
	if err != nil {
		return nil, err
	}

	return &engine.ResolvedStructure{
		Assignment: *assignment,
		Template:   *template,
		Overrides:  overrides,
	}, nil
}

// FindTaxRuleSets returns the latest active rule set per tax type for the
// jurisdiction on the given date.
func (s *Store) FindTaxRuleSets(ctx context.Context, jurisdiction string, at time.Time) ([]engine.TaxRuleSet, error) {
	day := engine.DateOnly(at).Format(time.DateOnly)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, jurisdiction, tax_type, method, mode, flat_rate,
		       brackets_json, version, effective_from, effective_to
		FROM tax_rule_sets
		WHERE jurisdiction = ?
		  AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to >= ?)
		ORDER BY tax_type, version ASC`,
		jurisdiction, day, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Latest version per tax type wins (rows arrive version-ascending).
	byType := make(map[engine.TaxType]engine.TaxRuleSet)
	var order []engine.TaxType
	for rows.Next() {
		rs, err := scanTaxRuleSet(rows)
		if err != nil {
			return nil, err
		}
		if _, seen := byType[rs.TaxType]; !seen {
			order = append(order, rs.TaxType)
		}
		byType[rs.TaxType] = *rs
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]engine.TaxRuleSet, 0, len(order))
	for _, taxType := range order {
		out = append(out, byType[taxType])
	}
	return out, nil
}

// =============================================================================
// ADMIN STORE (engine.AdminStore interface)
// =============================================================================

func (s *Store) SaveTemplate(ctx context.Context, t engine.PayStructureTemplate) error {
	componentsJSON, err := json.Marshal(t.Components)
	if err != nil {
		return err
	}
	status := t.Status
	if status == "" {
		status = engine.StatusDraft
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO templates (id, version, org_id, template_code, name, status, components_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			components_json = excluded.components_json,
			updated_at = excluded.updated_at`,
		t.ID, t.Version.String(), t.OrgID, t.TemplateCode, t.Name, string(status), string(componentsJSON), now, now)
	return err
}

func (s *Store) GetTemplate(ctx context.Context, id engine.TemplateID, version engine.Version) (*engine.PayStructureTemplate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, version, org_id, template_code, name, status, components_json
		FROM templates WHERE id = ? AND version = ?`,
		id, version.String())

	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "template", ID: fmt.Sprintf("%s@%s", id, version)}
	}
	return t, err
}

func (s *Store) ListTemplates(ctx context.Context, orgID engine.OrgID) ([]engine.PayStructureTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, org_id, template_code, name, status, components_json
		FROM templates WHERE org_id = ?
		ORDER BY template_code, version`,
		orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.PayStructureTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) CreateAssignment(ctx context.Context, a engine.WorkerStructureAssignment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		overlapping, err := hasOverlap(ctx, tx, a)
		if err != nil {
			return err
		}
		if overlapping {
			return engine.ErrOverlappingAssignment
		}
		return insertAssignment(ctx, tx, a)
	})
}

// ReassignWorker atomically ends the worker's overlapping assignments the
// day before next.EffectiveFrom and creates the next assignment. The
// database transaction preserves the single-current-assignment invariant.
func (s *Store) ReassignWorker(ctx context.Context, next engine.WorkerStructureAssignment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		cutoff := engine.DateOnly(next.EffectiveFrom).AddDate(0, 0, -1).Format(time.DateOnly)
		_, err := tx.ExecContext(ctx, `
			UPDATE assignments
			SET effective_to = ?
			WHERE worker_id = ?
			  AND effective_from <= ?
			  AND (effective_to IS NULL OR effective_to > ?)`,
			cutoff, next.WorkerID, cutoff, cutoff)
		if err != nil {
			return err
		}
		return insertAssignment(ctx, tx, next)
	})
}

func (s *Store) SaveOverride(ctx context.Context, o engine.ComponentOverride) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	var calcType any
	if o.Type != nil {
		calcType = string(*o.Type)
	}
	var formula any
	if o.Formula != nil {
		formula = *o.Formula
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overrides (id, worker_id, component_code, calc_type, amount, percentage, rate, formula,
		                       disabled, reason, effective_from, effective_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.WorkerID, o.ComponentCode, calcType,
		moneyPtrString(o.Amount), moneyPtrString(o.Percentage), moneyPtrString(o.Rate), formula,
		o.Disabled, o.Reason,
		engine.DateOnly(o.EffectiveFrom).Format(time.DateOnly), datePtrString(o.EffectiveTo),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) DeleteOverride(ctx context.Context, workerID engine.WorkerID, overrideID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM overrides WHERE worker_id = ? AND id = ?`, workerID, overrideID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Kind: "override", ID: overrideID}
	}
	return nil
}

func (s *Store) ListOverrides(ctx context.Context, workerID engine.WorkerID) ([]engine.ComponentOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, component_code, calc_type, amount, percentage, rate, formula,
		       disabled, reason, effective_from, effective_to
		FROM overrides WHERE worker_id = ?
		ORDER BY created_at, id`,
		workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.ComponentOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *Store) SaveTaxRuleSet(ctx context.Context, rs engine.TaxRuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	if rs.ID == "" {
		rs.ID = uuid.NewString()
	}
	bracketsJSON, err := json.Marshal(rs.Brackets)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tax_rule_sets (id, jurisdiction, tax_type, method, mode, flat_rate, brackets_json,
		                           version, effective_from, effective_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode = excluded.mode,
			flat_rate = excluded.flat_rate,
			brackets_json = excluded.brackets_json,
			version = excluded.version,
			effective_to = excluded.effective_to`,
		rs.ID, rs.Jurisdiction, rs.TaxType, rs.Method, string(rs.Mode),
		rs.FlatRatePercentage.String(), string(bracketsJSON),
		rs.Version, engine.DateOnly(rs.EffectiveFrom).Format(time.DateOnly), datePtrString(rs.EffectiveTo),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) activeOverrides(ctx context.Context, workerID engine.WorkerID, day string) ([]engine.ComponentOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, component_code, calc_type, amount, percentage, rate, formula,
		       disabled, reason, effective_from, effective_to
		FROM overrides
		WHERE worker_id = ?
		  AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to >= ?)
		ORDER BY created_at, id`,
		workerID, day, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.ComponentOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func hasOverlap(ctx context.Context, tx *sql.Tx, a engine.WorkerStructureAssignment) (bool, error) {
	from := engine.DateOnly(a.EffectiveFrom).Format(time.DateOnly)
	to := "9999-12-31"
	if a.EffectiveTo != nil {
		to = engine.DateOnly(*a.EffectiveTo).Format(time.DateOnly)
	}
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM assignments
		WHERE worker_id = ?
		  AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to >= ?)`,
		a.WorkerID, to, from).Scan(&count)
	return count > 0, err
}

func insertAssignment(ctx context.Context, tx *sql.Tx, a engine.WorkerStructureAssignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO assignments (id, org_id, worker_id, template_id, template_version,
		                         effective_from, effective_to, base_salary, hourly_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrgID, a.WorkerID, a.TemplateID, a.Version.String(),
		engine.DateOnly(a.EffectiveFrom).Format(time.DateOnly), datePtrString(a.EffectiveTo),
		moneyPtrString(a.BaseSalary), moneyPtrString(a.HourlyRate),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (*engine.WorkerStructureAssignment, error) {
	var a engine.WorkerStructureAssignment
	var versionStr, fromStr string
	var toStr, baseSalary, hourlyRate sql.NullString

	err := row.Scan(&a.ID, &a.OrgID, &a.WorkerID, &a.TemplateID, &versionStr,
		&fromStr, &toStr, &baseSalary, &hourlyRate)
	if err != nil {
		return nil, err
	}

	if a.Version, err = parseVersion(versionStr); err != nil {
		return nil, err
	}
	if a.EffectiveFrom, err = time.Parse(time.DateOnly, fromStr); err != nil {
		return nil, err
	}
	if a.EffectiveTo, err = parseDatePtr(toStr); err != nil {
		return nil, err
	}
	if a.BaseSalary, err = parseMoneyPtr(baseSalary); err != nil {
		return nil, err
	}
	if a.HourlyRate, err = parseMoneyPtr(hourlyRate); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanTemplate(row rowScanner) (*engine.PayStructureTemplate, error) {
	var t engine.PayStructureTemplate
	var versionStr, status, componentsJSON string

	err := row.Scan(&t.ID, &versionStr, &t.OrgID, &t.TemplateCode, &t.Name, &status, &componentsJSON)
	if err != nil {
		return nil, err
	}

	t.Status = engine.TemplateStatus(status)
	if t.Version, err = parseVersion(versionStr); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(componentsJSON), &t.Components); err != nil {
		return nil, fmt.Errorf("template %s: corrupt components: %w", t.ID, err)
	}
	return &t, nil
}

func scanOverride(row rowScanner) (*engine.ComponentOverride, error) {
	var o engine.ComponentOverride
	var calcType, amount, percentage, rate, formula, toStr sql.NullString
	var fromStr string

	err := row.Scan(&o.ID, &o.WorkerID, &o.ComponentCode, &calcType,
		&amount, &percentage, &rate, &formula,
		&o.Disabled, &o.Reason, &fromStr, &toStr)
	if err != nil {
		return nil, err
	}

	if calcType.Valid && calcType.String != "" {
		v := engine.CalculationType(calcType.String)
		o.Type = &v
	}
	if o.Amount, err = parseMoneyPtr(amount); err != nil {
		return nil, err
	}
	if o.Percentage, err = parseMoneyPtr(percentage); err != nil {
		return nil, err
	}
	if o.Rate, err = parseMoneyPtr(rate); err != nil {
		return nil, err
	}
	if formula.Valid && formula.String != "" {
		v := formula.String
		o.Formula = &v
	}
	if o.EffectiveFrom, err = time.Parse(time.DateOnly, fromStr); err != nil {
		return nil, err
	}
	if o.EffectiveTo, err = parseDatePtr(toStr); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanTaxRuleSet(row rowScanner) (*engine.TaxRuleSet, error) {
	var rs engine.TaxRuleSet
	var mode, flatRate, bracketsJSON, toStr sql.NullString
	var fromStr string

	err := row.Scan(&rs.ID, &rs.Jurisdiction, &rs.TaxType, &rs.Method, &mode, &flatRate,
		&bracketsJSON, &rs.Version, &fromStr, &toStr)
	if err != nil {
		return nil, err
	}

	rs.Mode = engine.CalculationMode(mode.String)
	if flatRate.Valid && flatRate.String != "" {
		rs.FlatRatePercentage = engine.MustMoney(flatRate.String)
	}
	if bracketsJSON.Valid && bracketsJSON.String != "" {
		if err := json.Unmarshal([]byte(bracketsJSON.String), &rs.Brackets); err != nil {
			return nil, fmt.Errorf("rule set %s: corrupt brackets: %w", rs.ID, err)
		}
	}
	if rs.EffectiveFrom, err = time.Parse(time.DateOnly, fromStr); err != nil {
		return nil, err
	}
	if rs.EffectiveTo, err = parseDatePtr(toStr); err != nil {
		return nil, err
	}
	return &rs, nil
}

// =============================================================================
// VALUE HELPERS
// =============================================================================

func parseVersion(s string) (engine.Version, error) {
	var v engine.Version
	if _, err := fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch); err != nil {
		return engine.Version{}, fmt.Errorf("malformed version %q: %w", s, err)
	}
	return v, nil
}

func moneyPtrString(m *engine.Money) any {
	if m == nil {
		return nil
	}
	return m.String()
}

func datePtrString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return engine.DateOnly(*t).Format(time.DateOnly)
}

func parseMoneyPtr(s sql.NullString) (*engine.Money, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	m, err := decimalFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func decimalFromString(s string) (engine.Money, error) {
	m, err := engine.ParseMoney(s)
	if err != nil {
		return engine.Money{}, fmt.Errorf("malformed amount %q: %w", s, err)
	}
	return m, nil
}

func parseDatePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var (
	_ engine.Repository = (*Store)(nil)
	_ engine.AdminStore = (*Store)(nil)
)
