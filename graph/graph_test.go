package graph_test

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/execgraph/graph"
	"github.com/gomlx/execgraph/program"
)

func TestBuilder(t *testing.T) {
	g := graph.New(program.New(), 2)

	x := g.AddVar("x", 0)
	y := g.AddVar("y", 0)
	dep := g.AddDummyVar()
	op := g.AddComputeOp(program.NewOp("relu"), 0)
	g.Connect(op, []*graph.VarNode{x}, []*graph.VarNode{y, dep})

	// Node ownership and ordering.
	assert.Equal(t, 4, g.NumNodes())
	require.Len(t, g.Ops(), 1)
	assert.Equal(t, []graph.Node{x, y, dep, op}, g.Nodes())

	// Back-links are mirrored.
	assert.Equal(t, []*graph.VarNode{x}, op.Inputs())
	assert.Equal(t, []*graph.VarNode{y, dep}, op.Outputs())
	assert.Equal(t, []*graph.OpNode{op}, x.PendingOps())
	assert.Same(t, op, y.GeneratedBy())
	assert.Nil(t, x.GeneratedBy())

	// The descriptor was recorded in the top-level block of the program.
	require.Len(t, g.Program().TopBlock().Ops(), 1)
	assert.Equal(t, "relu", g.Program().TopBlock().Ops()[0].Type())

	// Side-tables were maintained.
	vars := must.M1(graph.Attr[graph.Vars](g, graph.VarsAttrKey))
	require.Len(t, vars, 2)
	assert.Equal(t, []*graph.VarNode{x}, vars[0]["x"])
	assert.Empty(t, vars[1])
	depVars := must.M1(graph.Attr[graph.DepVars](g, graph.DepVarsAttrKey))
	assert.True(t, depVars.Has(dep))
	assert.False(t, depVars.Has(x))

	// A variable accepts only one generating op.
	op2 := g.AddComputeOp(program.NewOp("relu_grad"), 0)
	require.Panics(t, func() { g.Connect(op2, nil, []*graph.VarNode{y}) })

	// Scope outside the graph's device slots.
	require.Panics(t, func() { g.AddVar("z", 2) })

	require.NoError(t, g.Validate())
}

func TestNodeOwnershipTransfer(t *testing.T) {
	src := graph.New(program.New(), 1)
	dst := graph.New(program.New(), 1)
	v := src.AddVar("x", 0)

	// A node is owned by exactly one graph at a time.
	graph.Move(v, src, dst)
	assert.False(t, src.Contains(v))
	assert.True(t, dst.Contains(v))
	assert.Equal(t, 0, src.NumNodes())
	assert.Equal(t, 1, dst.NumNodes())

	// Removing from a graph that doesn't own it panics.
	require.Panics(t, func() { src.RemoveNode(v) })
	// Adding to a graph that already owns it panics.
	require.Panics(t, func() { dst.AddNode(v) })
}

func TestAttrs(t *testing.T) {
	g := graph.New(program.New(), 1)
	assert.Equal(t, []string{graph.DepVarsAttrKey, graph.VarsAttrKey}, g.AttrKeys())

	g.SetAttr(graph.FusedVarsAttrKey, graph.FusedVars{})
	assert.True(t, g.HasAttr(graph.FusedVarsAttrKey))

	// Wrong type request errors out.
	_, err := graph.Attr[int](g, graph.FusedVarsAttrKey)
	require.Error(t, err)
	_, err = graph.Attr[int](g, "no_such_attr")
	require.Error(t, err)
	require.Panics(t, func() { graph.MustAttr[int](g, "no_such_attr") })

	// Copy-if-exists copies set attributes and skips unset ones.
	g2 := graph.New(program.New(), 1)
	graph.CopyAttrIfExists[graph.FusedVars](g, g2, graph.FusedVarsAttrKey)
	graph.CopyAttrIfExists[graph.Programs](g, g2, graph.ProgramsAttrKey)
	assert.True(t, g2.HasAttr(graph.FusedVarsAttrKey))
	assert.False(t, g2.HasAttr(graph.ProgramsAttrKey))

	g.EraseAttr(graph.FusedVarsAttrKey)
	assert.False(t, g.HasAttr(graph.FusedVarsAttrKey))
	g.EraseAttr("no_such_attr") // No-op.
}

func TestValidate(t *testing.T) {
	g := graph.New(program.New(), 1)
	x := g.AddVar("x", 0)
	y := g.AddVar("y", 0)
	op := g.AddComputeOp(program.NewOp("relu"), 0)
	g.Connect(op, []*graph.VarNode{x}, []*graph.VarNode{y})
	require.NoError(t, g.Validate())

	// Detaching a linked variable breaks the bidirectional-connection check.
	g.RemoveNode(y)
	require.Error(t, g.Validate())
	g.AddNode(y)
	require.NoError(t, g.Validate())

	// Same for a linked op.
	g.RemoveNode(op)
	require.Error(t, g.Validate())
}
