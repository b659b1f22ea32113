package sequel

import (
	"fmt"
	"strings"
)

// Join operators.
const (
	And = "AND"
	Or  = "OR"
)

// NodeID indexes a node in its Where's arena.
type NodeID int

const noNode NodeID = -1

// node is either a leaf holding a condition or a group with a first child.
// Siblings are chained through next, joined by join.
type node struct {
	condition  *Condition
	firstChild NodeID
	parent     NodeID
	next       NodeID
	join       string
}

func (n *node) isGroup() bool {
	return n.condition == nil
}

type whereState int

const (
	stateEmpty whereState = iota
	stateHaveRoot
	stateEnteredGroup
	stateExitedGroup
)

// Where is an append-only boolean expression tree. Conditions and groups are
// added left to right; the operator passed with each addition joins the new
// node to the one added before it.
type Where struct {
	nodes []node
	root  NodeID
	last  NodeID
	state whereState
}

// NewWhere returns an empty tree.
func NewWhere() *Where {
	return &Where{root: noNode, last: noNode}
}

// Empty reports whether nothing has been added.
func (w *Where) Empty() bool {
	return w == nil || w.root == noNode
}

// AddCondition appends a leaf. An empty operator means AND.
func (w *Where) AddCondition(c *Condition, operator string) NodeID {
	id := w.alloc(node{condition: c})
	w.attach(id, operator)
	w.state = stateHaveRoot
	return id
}

// AddGroup appends an empty group joined by operator and enters it.
func (w *Where) AddGroup(operator string) NodeID {
	id := w.alloc(node{})
	w.attach(id, operator)
	w.state = stateEnteredGroup
	return id
}

// ExitGroup closes the innermost open group; the next addition becomes the
// group's sibling.
func (w *Where) ExitGroup() error {
	container := w.container()
	if container == noNode {
		return ErrNoOpenGroup
	}
	w.last = container
	w.state = stateExitedGroup
	return nil
}

// container returns the group the insertion cursor is inside of.
func (w *Where) container() NodeID {
	switch w.state {
	case stateEmpty:
		return noNode
	case stateEnteredGroup:
		return w.last
	default:
		return w.nodes[w.last].parent
	}
}

func (w *Where) alloc(n node) NodeID {
	n.firstChild, n.parent, n.next = noNode, noNode, noNode
	w.nodes = append(w.nodes, n)
	return NodeID(len(w.nodes) - 1)
}

// attach links id at the insertion point.
func (w *Where) attach(id NodeID, operator string) {
	switch w.state {
	case stateEmpty:
		w.root = id
	case stateEnteredGroup:
		w.nodes[id].parent = w.last
		w.nodes[w.last].firstChild = id
	default:
		prev := &w.nodes[w.last]
		w.nodes[id].parent = prev.parent
		prev.next = id
		prev.join = normalizeOperator(operator)
	}
	w.last = id
}

func normalizeOperator(operator string) string {
	op := strings.ToUpper(strings.TrimSpace(operator))
	if op == "" {
		return And
	}
	return op
}

// Render returns the expression text.
func (w *Where) Render() (string, error) {
	if w.Empty() {
		return "", nil
	}
	return w.render(w.root)
}

func (w *Where) render(id NodeID) (string, error) {
	n := &w.nodes[id]

	var text string
	if n.isGroup() {
		if n.firstChild == noNode {
			return "", ErrEmptyGroup
		}
		inner, err := w.render(n.firstChild)
		if err != nil {
			return "", err
		}
		text = "(" + inner + ")"
	} else {
		rendered, err := n.condition.Render()
		if err != nil {
			return "", err
		}
		text = rendered
	}

	if n.next == noNode {
		return text, nil
	}
	if n.join == "" {
		return "", fmt.Errorf("%w: after %q", ErrMissingOperator, text)
	}
	rest, err := w.render(n.next)
	if err != nil {
		return "", err
	}
	return text + " " + n.join + " " + rest, nil
}

// Conditions returns every condition in insertion order.
func (w *Where) Conditions() []*Condition {
	if w == nil {
		return nil
	}
	var out []*Condition
	for i := range w.nodes {
		if c := w.nodes[i].condition; c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks that every referenced field is a column of t.
func (w *Where) Validate(t *Table) error {
	for _, c := range w.Conditions() {
		for _, f := range c.Fields() {
			if !t.Has(f.Name) {
				return fmt.Errorf("%w: %s is not a column of %s", ErrInvalidConditionField, f.Name, t.Name())
			}
		}
	}
	return nil
}

// Clone returns an independent copy. Conditions are shared; they are not
// mutated after construction.
func (w *Where) Clone() *Where {
	if w == nil {
		return NewWhere()
	}
	c := *w
	c.nodes = make([]node, len(w.nodes))
	copy(c.nodes, w.nodes)
	return &c
}
