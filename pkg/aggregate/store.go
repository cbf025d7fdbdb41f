package aggregate

import (
	"context"
	"errors"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/wellness"
)

var (
	// ErrConflict means a record changed since it was loaded.
	ErrConflict = errors.New("aggregate version conflict")
	// ErrAlreadyApplied means the commit's event id was recorded before.
	ErrAlreadyApplied = errors.New("event already applied")
	// ErrExists means a created employee is already stored.
	ErrExists = errors.New("employee already exists")
)

// Snapshot is an employee's records plus the organization aggregate, each
// with the version it was read at.
type Snapshot struct {
	Employee        *wellness.Employee
	EmployeeVersion int64
	Detail          *wellness.Detail
	DetailVersion   int64
	Org             *wellness.Organization
	OrgVersion      int64
}

// Commit is one atomic write. Nil records are left untouched. A version of
// 0 means the record does not exist yet and must be inserted.
type Commit struct {
	// EventID, when set, is recorded in the same transaction; a repeat fails
	// the whole commit with ErrAlreadyApplied.
	EventID string
	EmpID   string

	Employee        *wellness.Employee
	EmployeeVersion int64
	Detail          *wellness.Detail
	DetailVersion   int64
	Org             *wellness.Organization
	OrgVersion      int64
}

// Record is an employee with its detail record.
type Record struct {
	Employee *wellness.Employee
	Detail   *wellness.Detail
}

type Store interface {
	// Load returns apperr NotFound when the employee does not exist. A
	// missing organization aggregate is returned empty at version 0.
	Load(ctx context.Context, empID string) (*Snapshot, error)
	LoadOrg(ctx context.Context) (*wellness.Organization, int64, error)
	// Commit writes employee, organization and detail in that order inside
	// one transaction, checking every version.
	Commit(ctx context.Context, c Commit) error
	ListEmployeeIDs(ctx context.Context) ([]string, error)
	ListRecords(ctx context.Context) ([]Record, error)
}
