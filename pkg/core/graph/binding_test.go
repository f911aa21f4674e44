// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph_test

import (
	"testing"

	. "github.com/gomlx/controlflow/pkg/core/graph"
	"github.com/gomlx/controlflow/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOrCreate(t *testing.T) {
	g := New("main")
	x := ResolveOrCreate(g, "x")
	require.NotNil(t, x)
	assert.False(t, x.Shape().Ok())
	assert.Equal(t, "zero", x.Initializer().Name())
	assert.Same(t, x, ResolveOrCreate(g, "x"))
	assert.Len(t, g.Variables(), 1)
}

func TestMirror(t *testing.T) {
	parent, cond, body := New("parent"), New("cond"), New("body")
	x := parent.Var("x", shapes.Make(dtypes.Float32, 2), nil)

	// A previous declaration without shape gets its shape filled in, and is kept.
	bodyX := ResolveOrCreate(body, "x")
	Mirror(x, cond, body, nil)
	assert.Same(t, bodyX, body.GetVariable("x"))
	assert.True(t, bodyX.Shape().Equal(x.Shape()))
	require.True(t, cond.HasVariable("x"))
	assert.NotSame(t, x, cond.GetVariable("x"))

	Mirror(x, cond, body)
	assert.Len(t, cond.Variables(), 1)
	assert.Len(t, body.Variables(), 1)

	// Mirroring never gives a literal value to an existing declaration.
	k := parent.VarWithValue("k", 5)
	bodyK := ResolveOrCreate(body, "k")
	Mirror(k, body)
	assert.Same(t, bodyK, body.GetVariable("k"))
	assert.True(t, bodyK.Shape().IsScalar())
	_, ok := bodyK.Literal()
	assert.False(t, ok)
	assert.Equal(t, "zero", bodyK.Initializer().Name())
}

func TestResolver(t *testing.T) {
	parent, cond, body := New("parent"), New("cond"), New("body")
	inCond := cond.Var("a", shapes.Invalid(), nil)
	inBody := body.Var("b", shapes.Invalid(), nil)
	body.Var("a", shapes.Invalid(), nil)
	parent.Var("p", shapes.Make(dtypes.Float32), nil)

	r := &Resolver{
		Scopes:    []*Graph{cond, body},
		Enclosing: parent,
		MirrorTo:  []*Graph{cond},
		Fallback:  FallbackScalarLiteral(body, 1.0),
	}
	assert.Same(t, inCond, r.Resolve("a"))
	assert.Same(t, inBody, r.Resolve("b"))

	fromParent := r.Resolve("p")
	assert.Same(t, parent, fromParent.Graph())
	require.True(t, cond.HasVariable("p"))
	assert.False(t, body.HasVariable("p"))

	literal := r.Resolve("unknown")
	assert.Same(t, body, literal.Graph())
	value, ok := literal.Literal()
	require.True(t, ok)
	assert.Equal(t, 1.0, value)
	assert.Same(t, literal, r.Resolve("unknown"))

	created := (&Resolver{Scopes: []*Graph{cond}, Fallback: FallbackCreate(cond)}).Resolve("q")
	assert.Same(t, cond, created.Graph())
	_, ok = created.Literal()
	assert.False(t, ok)

	assert.Nil(t, (&Resolver{Scopes: []*Graph{cond}}).Resolve("missing"))
}
