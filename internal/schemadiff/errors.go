package schemadiff

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateTable is matched by errors for snapshots mapping two tables to one logical name.
	ErrDuplicateTable = errors.New("duplicate table in snapshot")
	// ErrApply is matched by errors raised while applying a change set.
	ErrApply = errors.New("change set does not apply")
)

// DuplicateTableError reports two tables of one snapshot sharing a logical name.
type DuplicateTableError struct {
	Snapshot string
	Class    string
	Tables   [2]string
}

func (e *DuplicateTableError) Error() string {
	return fmt.Sprintf("snapshot %q: tables %q and %q both map to %q", e.Snapshot, e.Tables[0], e.Tables[1], e.Class)
}

// Is reports whether target is ErrDuplicateTable.
func (e *DuplicateTableError) Is(target error) bool {
	return target == ErrDuplicateTable
}

// ApplyError reports a change that references a table in the wrong state.
type ApplyError struct {
	Table  string
	Reason string
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply change set: table %q: %s", e.Table, e.Reason)
}

// Is reports whether target is ErrApply.
func (e *ApplyError) Is(target error) bool {
	return target == ErrApply
}
