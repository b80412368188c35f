// Package defs declares the core identifiers of the analysis: abstract
// call contexts and control locations. A control location is the key of
// the analysis lattice: one basic block analyzed under one context.
package defs

import (
	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/utils"
)

// A Context abstracts the call history under which a function is
// analyzed. Two calls mapping to the same context are analyzed as one.
// Implementations must be comparable, hashable and immutable.
type Context interface {
	utils.Hashable
	Equal(Context) bool
	String() string
}

// CtrLoc is a control location: a basic block paired with the context
// it is analyzed under.
type CtrLoc struct {
	block *cfg.BasicBlock
	ctx   Context
}

// MakeCtrLoc pairs a block with a context.
func MakeCtrLoc(block *cfg.BasicBlock, ctx Context) CtrLoc {
	return CtrLoc{block, ctx}
}

func (cl CtrLoc) Block() *cfg.BasicBlock { return cl.block }
func (cl CtrLoc) Context() Context       { return cl.ctx }

// Derive constructs a control location in the same context at another
// block.
func (cl CtrLoc) Derive(block *cfg.BasicBlock) CtrLoc {
	return CtrLoc{block, cl.ctx}
}

func (cl CtrLoc) Hash() uint32 {
	return utils.HashCombine(
		utils.PointerHasher[*cfg.BasicBlock]{}.Hash(cl.block),
		cl.ctx.Hash(),
	)
}

func (cl CtrLoc) Equal(other CtrLoc) bool {
	return cl.block == other.block && cl.ctx.Equal(other.ctx)
}

func (cl CtrLoc) String() string {
	return cl.block.String() + " @ " + cl.ctx.String()
}
