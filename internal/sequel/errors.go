package sequel

import "errors"

var (
	// ErrDuplicateFieldName is returned when a table already has a field of that name.
	ErrDuplicateFieldName = errors.New("duplicate field name")

	// ErrDuplicatePrimaryKey is returned when a second primary key is added.
	ErrDuplicatePrimaryKey = errors.New("table already has a primary key")

	// ErrWidePrimaryKey is returned when the primary key's type needs a side table.
	ErrWidePrimaryKey = errors.New("primary key type requires a side table")

	// ErrMissingPrimaryKey is returned when a side table or key sub-query
	// needs the owner's primary key and there is none.
	ErrMissingPrimaryKey = errors.New("missing primary key")

	// ErrUnknownField is returned when a statement names a field its table lacks.
	ErrUnknownField = errors.New("unknown field")

	// ErrMissingValue is returned when an upsert is rendered with unassigned fields.
	ErrMissingValue = errors.New("missing value")

	// ErrMissingPrimaryKeyValue is returned when an upsert fans out to side
	// tables without a value for the primary key.
	ErrMissingPrimaryKeyValue = errors.New("missing primary key value")

	// ErrTypeMismatch is returned when operand or value types disagree.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidConditionField is returned when a condition references a field
	// that is not a column of the physical table it is evaluated against.
	ErrInvalidConditionField = errors.New("invalid condition field")

	// ErrNoOpenGroup is returned by ExitGroup outside of any group.
	ErrNoOpenGroup = errors.New("no open group")

	// ErrMissingOperator is returned when a node has a sibling but no join operator.
	ErrMissingOperator = errors.New("missing join operator")

	// ErrEmptyGroup is returned when a group is rendered without children.
	ErrEmptyGroup = errors.New("empty group")
)
