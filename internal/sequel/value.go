package sequel

import (
	"fmt"

	"github.com/rzpsarthak13/starphoenix/internal/types"
)

// Operand is the right-hand side of a Condition: a *Field or a Value.
type Operand interface {
	operand()
	renderOperand() (string, error)
}

// Value is a raw scalar tagged with its type. It renders only through the
// type's transcoder.
type Value struct {
	Raw  interface{}
	Type *types.Type
}

// NewValue returns a typed value.
func NewValue(raw interface{}, typ *types.Type) Value {
	return Value{Raw: raw, Type: typ}
}

// Render returns the value as a relational literal.
func (v Value) Render() (string, error) {
	if v.Type == nil {
		return "", fmt.Errorf("%w: untyped value %v", ErrTypeMismatch, v.Raw)
	}
	return v.Type.Literal(v.Raw)
}

func (v Value) operand() {}

func (v Value) renderOperand() (string, error) {
	return v.Render()
}
