// Copyright 2026 The VC Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

// cond encodes one nested conditional level: emitting, waiting for a branch
// to fire, or disabled for the rest of the group.
type cond int

const (
	condZero   cond = iota // Not in a conditional group.
	condIfOn               // Group is emitting.
	condIfOff              // No branch of the group has fired yet.
	condIfSkip             // Parent inactive or a branch already fired.
)

var condOn = [...]bool{condZero: true, condIfOn: true, condIfOff: false, condIfSkip: false}

// conds is the conditional stack. A line is emitted iff the top of the stack
// is on; condIfSkip entries make the conjunction over enclosing frames
// implicit.
type conds []cond

func (c conds) on() bool          { return condOn[c.tos()] }
func (c conds) pop() conds        { return c[:len(c)-1] }
func (c conds) push(n cond) conds { return append(c, n) }
func (c conds) tos() cond         { return c[len(c)-1] }
