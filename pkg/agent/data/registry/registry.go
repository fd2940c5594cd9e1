package registry

import (
	"errors"
	"time"
)

type Status uint8

const (
	StatusUninitialized Status = iota
	StatusActive
	StatusPaused
)

// MaxOperators is the operator allowlist capacity.
const MaxOperators = 32

var (
	ErrInvalidStatus        = errors.New("invalid status transition")
	ErrOperatorLimitReached = errors.New("operator limit reached")
)

type Record struct {
	Id uint64

	Address string

	Status    Status
	Authority string

	// Bounded allowlist of operator identities, insertion-ordered for
	// display only.
	Operators []string

	Version uint64

	CreatedAt time.Time
}

// SetStatus applies a lifecycle transition. Only Active<->Paused moves are
// valid on an initialized registry; everything else is rejected with the
// record unchanged.
func (r *Record) SetStatus(next Status) error {
	switch {
	case r.Status == StatusActive && next == StatusPaused:
	case r.Status == StatusPaused && next == StatusActive:
	default:
		return ErrInvalidStatus
	}

	r.Status = next
	return nil
}

func (r *Record) IsActive() bool {
	return r.Status == StatusActive
}

// AddOperator adds an operator to the allowlist. Re-adding an existing
// operator is a silent no-op.
func (r *Record) AddOperator(operator string) error {
	if r.HasOperator(operator) {
		return nil
	}

	if len(r.Operators) >= MaxOperators {
		return ErrOperatorLimitReached
	}

	r.Operators = append(r.Operators, operator)
	return nil
}

// RemoveOperator removes an operator from the allowlist. Removing an absent
// operator is a silent no-op.
func (r *Record) RemoveOperator(operator string) {
	for i, existing := range r.Operators {
		if existing == operator {
			r.Operators = append(r.Operators[:i], r.Operators[i+1:]...)
			return
		}
	}
}

func (r *Record) HasOperator(operator string) bool {
	for _, existing := range r.Operators {
		if existing == operator {
			return true
		}
	}
	return false
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		Address: r.Address,

		Status:    r.Status,
		Authority: r.Authority,

		Operators: cloneOperators(r.Operators),

		Version: r.Version,

		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Address = r.Address

	dst.Status = r.Status
	dst.Authority = r.Authority

	dst.Operators = cloneOperators(r.Operators)

	dst.Version = r.Version

	dst.CreatedAt = r.CreatedAt
}

func (r *Record) Validate() error {
	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if len(r.Authority) == 0 {
		return errors.New("authority is required")
	}

	if r.Status > StatusPaused {
		return errors.New("status is invalid")
	}

	if len(r.Operators) > MaxOperators {
		return errors.New("operator count exceeds limit")
	}

	seen := make(map[string]struct{}, len(r.Operators))
	for _, operator := range r.Operators {
		if len(operator) == 0 {
			return errors.New("operator is empty")
		}
		if _, ok := seen[operator]; ok {
			return errors.New("operator is duplicated")
		}
		seen[operator] = struct{}{}
	}

	return nil
}

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	}
	return "unknown"
}

func cloneOperators(operators []string) []string {
	if operators == nil {
		return nil
	}

	cloned := make([]string, len(operators))
	copy(cloned, operators)
	return cloned
}
