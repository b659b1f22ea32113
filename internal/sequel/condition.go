package sequel

import (
	"fmt"
	"strings"
)

// Condition compares a field against another field or a value.
type Condition struct {
	Left     *Field
	Operator string
	Right    Operand
}

// NewCondition validates and returns a condition. An untyped Value takes the
// left field's type; a typed one must match it.
func NewCondition(left *Field, operator string, right Operand) (*Condition, error) {
	if left == nil {
		return nil, fmt.Errorf("%w: condition has no left operand", ErrUnknownField)
	}
	if strings.TrimSpace(operator) == "" {
		return nil, fmt.Errorf("%w: condition on %s has no comparison operator", ErrMissingOperator, left.Name)
	}
	switch r := right.(type) {
	case Value:
		if r.Type == nil {
			r.Type = left.Type
			right = r
		} else if !r.Type.Is(left.Type) {
			return nil, fmt.Errorf("%w: %s is %s, value is %s", ErrTypeMismatch, left.Name, left.Type, r.Type)
		}
	case *Field:
		if r == nil {
			return nil, fmt.Errorf("%w: condition on %s has no right operand", ErrUnknownField, left.Name)
		}
	case nil:
		return nil, fmt.Errorf("%w: condition on %s has no right operand", ErrMissingValue, left.Name)
	}
	return &Condition{Left: left, Operator: strings.TrimSpace(operator), Right: right}, nil
}

// Render returns "<left> <op> <right>".
func (c *Condition) Render() (string, error) {
	right, err := c.Right.renderOperand()
	if err != nil {
		return "", fmt.Errorf("failed to render condition on %s: %w", c.Left.Name, err)
	}
	return fmt.Sprintf("%s %s %s", c.Left.Name, c.Operator, right), nil
}

// Fields returns the fields the condition references.
func (c *Condition) Fields() []*Field {
	fields := []*Field{c.Left}
	if f, ok := c.Right.(*Field); ok {
		fields = append(fields, f)
	}
	return fields
}
