package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/database"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/wellness"
)

// orgKey is the id of the single org_aggregate row.
const orgKey = 1

type docTable struct {
	name   string
	insert string
	update string
	// exists is returned when an insert finds the row already present.
	exists error
}

var (
	employeesTable = docTable{
		name:   "employee",
		insert: `INSERT INTO employees (emp_id, doc, version) VALUES ($1, $2, 1) ON CONFLICT (emp_id) DO NOTHING`,
		update: `UPDATE employees SET doc = $2, version = version + 1 WHERE emp_id = $1 AND version = $3`,
		exists: ErrExists,
	}
	orgTable = docTable{
		name:   "organization",
		insert: `INSERT INTO org_aggregate (id, doc, version) VALUES ($1, $2, 1) ON CONFLICT (id) DO NOTHING`,
		update: `UPDATE org_aggregate SET doc = $2, version = version + 1 WHERE id = $1 AND version = $3`,
		exists: ErrConflict,
	}
	detailsTable = docTable{
		name:   "detail",
		insert: `INSERT INTO employee_details (emp_id, doc, version) VALUES ($1, $2, 1) ON CONFLICT (emp_id) DO NOTHING`,
		update: `UPDATE employee_details SET doc = $2, version = version + 1 WHERE emp_id = $1 AND version = $3`,
		exists: ErrConflict,
	}
)

// PGStore keeps each record as a JSONB document with a version column.
type PGStore struct {
	db database.TxBeginner
}

func NewPGStore(db database.TxBeginner) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Load(ctx context.Context, empID string) (*Snapshot, error) {
	snap := &Snapshot{Employee: &wellness.Employee{}}

	var doc []byte
	err := s.db.QueryRow(ctx, `SELECT doc, version FROM employees WHERE emp_id = $1`, empID).
		Scan(&doc, &snap.EmployeeVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("employee %s not found", empID))
	}
	if err != nil {
		return nil, apperr.Transient("failed to load employee", err)
	}
	if err := json.Unmarshal(doc, snap.Employee); err != nil {
		return nil, apperr.New(apperr.KindInternal, "corrupt employee record "+empID, err)
	}

	doc = nil
	err = s.db.QueryRow(ctx, `SELECT doc, version FROM employee_details WHERE emp_id = $1`, empID).
		Scan(&doc, &snap.DetailVersion)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		snap.Detail = wellness.NewDetail(snap.Employee)
	case err != nil:
		return nil, apperr.Transient("failed to load employee detail", err)
	default:
		snap.Detail = &wellness.Detail{}
		if err := json.Unmarshal(doc, snap.Detail); err != nil {
			return nil, apperr.New(apperr.KindInternal, "corrupt detail record "+empID, err)
		}
	}

	snap.Org, snap.OrgVersion, err = s.LoadOrg(ctx)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// LoadOrg returns the organization aggregate, or an empty one at version 0
// before the first write.
func (s *PGStore) LoadOrg(ctx context.Context) (*wellness.Organization, int64, error) {
	var (
		doc     []byte
		version int64
	)
	err := s.db.QueryRow(ctx, `SELECT doc, version FROM org_aggregate WHERE id = $1`, orgKey).
		Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return wellness.NewOrganization(), 0, nil
	}
	if err != nil {
		return nil, 0, apperr.Transient("failed to load organization aggregate", err)
	}
	org := &wellness.Organization{}
	if err := json.Unmarshal(doc, org); err != nil {
		return nil, 0, apperr.New(apperr.KindInternal, "corrupt organization aggregate", err)
	}
	org.EnsureMaps()
	return org, version, nil
}

// Commit writes the processed event marker, then employee, organization and
// detail, in one transaction. Any failed check rolls everything back.
func (s *PGStore) Commit(ctx context.Context, c Commit) error {
	type write struct {
		table   docTable
		key     any
		doc     []byte
		version int64
	}
	var writes []write
	add := func(t docTable, key any, v any, version int64) error {
		doc, err := json.Marshal(v)
		if err != nil {
			return apperr.New(apperr.KindInternal, "failed to encode "+t.name, err)
		}
		writes = append(writes, write{t, key, doc, version})
		return nil
	}
	if c.Employee != nil {
		if err := add(employeesTable, c.EmpID, c.Employee, c.EmployeeVersion); err != nil {
			return err
		}
	}
	if c.Org != nil {
		if err := add(orgTable, orgKey, c.Org, c.OrgVersion); err != nil {
			return err
		}
	}
	if c.Detail != nil {
		if err := add(detailsTable, c.EmpID, c.Detail, c.DetailVersion); err != nil {
			return err
		}
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if c.EventID != "" {
			tag, err := tx.Exec(ctx,
				`INSERT INTO processed_events (event_id, emp_id) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
				c.EventID, c.EmpID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrAlreadyApplied
			}
		}
		for _, w := range writes {
			var (
				tag pgconn.CommandTag
				err error
			)
			if w.version == 0 {
				tag, err = tx.Exec(ctx, w.table.insert, w.key, w.doc)
			} else {
				tag, err = tx.Exec(ctx, w.table.update, w.key, w.doc, w.version)
			}
			if err != nil {
				return fmt.Errorf("write %s: %w", w.table.name, err)
			}
			if tag.RowsAffected() == 0 {
				if w.version == 0 {
					return w.table.exists
				}
				return ErrConflict
			}
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyApplied), errors.Is(err, ErrExists):
		return err
	default:
		return apperr.Transient("failed to commit aggregate", err)
	}
}

func (s *PGStore) ListEmployeeIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT emp_id FROM employees ORDER BY emp_id`)
	if err != nil {
		return nil, apperr.Transient("failed to list employees", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, apperr.Transient("failed to read employee ids", err)
	}
	return ids, nil
}

func (s *PGStore) ListRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT e.doc, d.doc
		FROM employees e LEFT JOIN employee_details d USING (emp_id)
		ORDER BY e.emp_id`)
	if err != nil {
		return nil, apperr.Transient("failed to list employee records", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var empDoc, detailDoc []byte
		if err := row.Scan(&empDoc, &detailDoc); err != nil {
			return Record{}, err
		}
		r := Record{Employee: &wellness.Employee{}}
		if err := json.Unmarshal(empDoc, r.Employee); err != nil {
			return Record{}, err
		}
		if detailDoc == nil {
			r.Detail = wellness.NewDetail(r.Employee)
			return r, nil
		}
		r.Detail = &wellness.Detail{}
		return r, json.Unmarshal(detailDoc, r.Detail)
	})
	if err != nil {
		return nil, apperr.Transient("failed to read employee records", err)
	}
	return records, nil
}
