package jit

import "github.com/ProtonOS/ProtonOS-sub008/bitset"

// LocalLiveness computes, for each safepoint instruction index, which
// reference-typed local slots are live — grounded on
// asyncify/internal/engine/liveness.go's backward dataflow local-liveness
// pass (def/use transfer per instruction, merge at control-flow join
// points), generalized from that file's single linear backward pass over
// WASM's structured block/loop nesting to a block-level worklist fixpoint
// over this bytecode's flat branch CFG (BuildFlowGraph's FlowGraph), since
// an arbitrary branch graph can have merges a single backward scan over
// raw instruction order won't account for correctly.
//
// A local not in this liveness set at a safepoint PC needn't appear in that
// Safepoint's LiveSlots: the GC only needs to trace references a live
// continuation can still read (spec.md section 3 invariant 3).
// Liveness is LocalLiveness's result: per-instruction live-reference-local
// sets at every blocking call site (AtCall), plus the live set required on
// entry to each block (AtBlockEntry) — used for the safepoint poll codegen
// emits at back-edges, where the relevant point is "about to jump to this
// block", not any single instruction.
type Liveness struct {
	AtCall       map[int]*bitset.BitSet
	AtBlockEntry []*bitset.BitSet
}

func LocalLiveness(instrs []Instr, g *FlowGraph, isRefLocal []bool) Liveness {
	numLocals := len(isRefLocal)
	blockLiveIn := make([]*bitset.BitSet, len(g.Blocks))
	blockLiveOut := make([]*bitset.BitSet, len(g.Blocks))
	for i := range g.Blocks {
		blockLiveIn[i] = bitset.New(numLocals)
		blockLiveOut[i] = bitset.New(numLocals)
	}

	// Predecessor lists, since FlowGraph only records successors.
	preds := make([][]int, len(g.Blocks))
	for bi, b := range g.Blocks {
		for _, s := range b.Successors {
			preds[s] = append(preds[s], bi)
		}
	}

	worklist := make([]int, len(g.Blocks))
	for i := range worklist {
		worklist[i] = len(g.Blocks) - 1 - i // process roughly in reverse order first
	}

	for len(worklist) > 0 {
		bi := worklist[0]
		worklist = worklist[1:]

		out := bitset.New(numLocals)
		for _, s := range g.Blocks[bi].Successors {
			out.Union(blockLiveIn[s])
		}
		blockLiveOut[bi] = out

		in := out.Clone()
		applyBlockTransfer(instrs, g.Blocks[bi], isRefLocal, in)

		if !in.Equal(blockLiveIn[bi]) {
			blockLiveIn[bi] = in
			for _, p := range preds[bi] {
				worklist = append(worklist, p)
			}
		}
	}

	// Second pass over each block: replay the backward transfer
	// instruction-by-instruction from the block's live-out, recording the
	// live set at each safepoint poll found along the way.
	result := make(map[int]*bitset.BitSet)
	for bi, b := range g.Blocks {
		live := blockLiveOut[bi].Clone()
		for i := b.End - 1; i >= b.Start; i-- {
			applyInstrTransfer(instrs[i], isRefLocal, live)
			if instrs[i].Op == OpSafepointPoll || isBlockingCall(instrs[i].Op) {
				result[i] = live.Clone()
			}
		}
	}
	return Liveness{AtCall: result, AtBlockEntry: blockLiveIn}
}

func applyBlockTransfer(instrs []Instr, b Block, isRefLocal []bool, live *bitset.BitSet) {
	for i := b.End - 1; i >= b.Start; i-- {
		applyInstrTransfer(instrs[i], isRefLocal, live)
	}
}

// applyInstrTransfer applies one instruction's def/use to a backward
// liveness set: a store kills (defines) a local, a load generates (uses)
// it — the same def-then-use ordering asyncify's applyTransferBitset uses.
func applyInstrTransfer(ins Instr, isRefLocal []bool, live *bitset.BitSet) {
	switch ins.Op {
	case OpStoreLocal:
		idx := uint32(ins.A)
		live.Clear(idx)
	case OpLoadLocal:
		idx := uint32(ins.A)
		if int(idx) < len(isRefLocal) && isRefLocal[idx] {
			live.Set(idx)
		}
	}
}

func isBlockingCall(op Op) bool {
	switch op {
	case OpCall, OpCallVirt, OpCallInterface, OpCallIndirect, OpInvokeDelegate,
		OpNewObj, OpNewArr, OpBox:
		return true
	default:
		return false
	}
}

