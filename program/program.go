// Package program models the originating program description of an execution
// graph: an ordered list of blocks, each holding a linear list of operator
// descriptors with a type name and a map of typed attributes.
//
// Block 0 is always the top-level block. Nested blocks (conditionals, loops)
// follow it, in the order they were appended.
//
// The description is an input artifact: it is produced by whoever builds the
// execution graph, and consumed here only for queries (scanning operator
// types, reading attributes). It carries no execution semantics of its own.
package program

import (
	"fmt"

	"github.com/pkg/errors"
)

// OpDesc describes one operator: its type name and its attributes.
type OpDesc struct {
	opType string
	attrs  map[string]any
}

// NewOp creates an operator descriptor of the given type, with no attributes.
func NewOp(opType string) *OpDesc {
	return &OpDesc{opType: opType, attrs: make(map[string]any)}
}

// Type returns the operator type name.
func (op *OpDesc) Type() string { return op.opType }

// SetAttr sets the attribute to the given value, replacing any previous
// value. It returns the OpDesc to allow chaining.
func (op *OpDesc) SetAttr(name string, value any) *OpDesc {
	op.attrs[name] = value
	return op
}

// HasAttr returns whether the attribute is set, of whatever type.
func (op *OpDesc) HasAttr(name string) bool {
	_, found := op.attrs[name]
	return found
}

// String implements fmt.Stringer.
func (op *OpDesc) String() string {
	return fmt.Sprintf("OpDesc[%s]", op.opType)
}

// Attr returns the attribute value, checking it has the requested type T.
// It returns an error if the attribute is not set or is set to a different
// type.
func Attr[T any](op *OpDesc, name string) (value T, err error) {
	raw, found := op.attrs[name]
	if !found {
		err = errors.Errorf("op %q has no attribute %q", op.opType, name)
		return
	}
	value, ok := raw.(T)
	if !ok {
		err = errors.Errorf("op %q attribute %q is a %T, wanted %T", op.opType, name, raw, value)
	}
	return
}

// AttrOr returns the attribute value if it is set with type T, and
// defaultValue otherwise.
func AttrOr[T any](op *OpDesc, name string, defaultValue T) T {
	value, err := Attr[T](op, name)
	if err != nil {
		return defaultValue
	}
	return value
}

// Block holds a linear list of operator descriptors.
type Block struct {
	ops []*OpDesc
}

// Ops returns the operators of the block, in order.
func (b *Block) Ops() []*OpDesc { return b.ops }

// AppendOp appends the operator descriptor to the block and returns it.
func (b *Block) AppendOp(op *OpDesc) *OpDesc {
	b.ops = append(b.ops, op)
	return op
}

// Desc is a full program description: the top-level block plus any nested
// blocks.
type Desc struct {
	blocks []*Block
}

// New creates a program description holding only an empty top-level block.
func New() *Desc {
	return &Desc{blocks: []*Block{{}}}
}

// NumBlocks returns the number of blocks, always >= 1.
func (p *Desc) NumBlocks() int { return len(p.blocks) }

// Block returns the idx-th block. Block 0 is the top-level block.
func (p *Desc) Block(idx int) *Block { return p.blocks[idx] }

// TopBlock returns the top-level block, a shortcut for Block(0).
func (p *Desc) TopBlock() *Block { return p.blocks[0] }

// AppendBlock adds a new empty nested block and returns it.
func (p *Desc) AppendBlock() *Block {
	b := &Block{}
	p.blocks = append(p.blocks, b)
	return b
}
