// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphdef

import (
	"github.com/gomlx/controlflow/pkg/support/sets"
)

// Cursor is the position of a scan over the nodes of a GraphDef, plus the set of node names already
// consumed ("skipped") by the scan.
//
// A single Cursor is shared, by pointer, by every import step over the same graph: nested (recursive)
// imports advance the same position the caller resumes from. It must never be copied.
type Cursor struct {
	gd      *GraphDef
	pos     int
	skipped sets.Set[string]
}

// NewCursor returns a cursor positioned at the first node of gd, with an empty skip set.
func NewCursor(gd *GraphDef) *Cursor {
	return &Cursor{gd: gd, skipped: sets.Make[string]()}
}

// GraphDef being scanned.
func (c *Cursor) GraphDef() *GraphDef { return c.gd }

// Pos returns the index of the current node.
func (c *Cursor) Pos() int { return c.pos }

// Seek moves the cursor to the node at index pos.
func (c *Cursor) Seek(pos int) { c.pos = pos }

// Done returns whether the cursor is past the last node.
func (c *Cursor) Done() bool { return c.pos >= len(c.gd.Nodes) }

// Node returns the current node, or nil if Done.
func (c *Cursor) Node() *NodeDef {
	if c.Done() {
		return nil
	}
	return c.gd.Nodes[c.pos]
}

// Advance moves the cursor to the next node.
func (c *Cursor) Advance() { c.pos++ }

// Skip adds the node name to the skip set, and returns whether it was not there yet.
func (c *Cursor) Skip(name string) bool { return c.skipped.Add(name) }

// IsSkipped returns whether the node name was already consumed.
func (c *Cursor) IsSkipped(name string) bool { return c.skipped.Has(name) }

// Skipped returns the names in the skip set, sorted.
func (c *Cursor) Skipped() []string { return sets.Sorted(c.skipped) }
