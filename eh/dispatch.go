// Package eh implements the two-pass unwind-based exception dispatcher
// (spec.md section 4.E): search the call stack for a matching handler
// without disturbing it, then walk the same range a second time running
// finally/fault funclets before jumping to the handler. Grounded loosely
// on linker/internal/bridge/collect.go's gather-then-act shape (Collector
// gathers candidate exports in one pass, MergeBindings acts on them in a
// second), retargeted from export collection to search-then-unwind.
package eh

import (
	"github.com/ProtonOS/ProtonOS-sub008/errors"
	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// excRefReg is the abstract register id (matching jit/x86.Reg's encoding)
// a chosen catch handler finds the exception reference in on entry,
// spec.md section 4.E pass 2 "jump to the chosen catch handler with the
// exception reference in a defined register".
const excRefReg = 0

// Frame is one call stack entry as the scheduler hands it to the
// dispatcher: which method was executing, at what native PC, where its
// frame lives, and its full register file (unlike gc.FrameSnapshot, which
// only carries live references, Dispatch must be able to restore every
// register when jumping to a handler).
type Frame struct {
	MD        *typesys.MD
	PCOffset  uint32
	FrameBase hal.VirtAddr
	Regs      [16]uint64
}

// FuncletInvoker calls into a compiled filter, finally, or fault funclet
// at funcletPC with frame's context, returning the filter's verdict
// (nonzero means match) for Filter regions, or a zero/ignored result for
// Finally/Fault. An error return means the funclet itself raised an
// exception; per spec.md section 4.E, a throwing filter is treated as
// not-matching and the inner exception is swallowed — Dispatch enforces
// that, the invoker only needs to report the failure.
type FuncletInvoker func(frame Frame, funcletPC uint32) (result uint64, err error)

// Outcome is the result of a completed Dispatch: either a handler was
// found and finallys between it and the throw site have already run
// (Handled true), or the stack was exhausted with no match (Handled
// false, propagated to the scheduler as an unhandled exception).
type Outcome struct {
	Handled    bool
	FrameIndex int // index into the stack slice Dispatch was given
	HandlerPC  uint32
	Regs       [16]uint64 // matching frame's register file, excRefReg set to excRef
}

// Dispatch runs both passes of spec.md section 4.E over stack, innermost
// frame first. invoke is called for every Filter region visited during
// the search pass and every Finally/Fault region visited during the
// unwind pass; it is nil-safe only in the sense that a stack with no
// Filter/Finally/Fault regions never calls it.
func Dispatch(excTD *typesys.TD, excRef hal.VirtAddr, stack []Frame, invoke FuncletInvoker) (Outcome, error) {
	frameIdx, region, err := search(excTD, stack, invoke)
	if err != nil {
		return Outcome{}, err
	}
	if frameIdx < 0 {
		return Outcome{Handled: false}, nil
	}

	if err := unwind(stack, frameIdx, region, invoke); err != nil {
		return Outcome{}, err
	}

	regs := stack[frameIdx].Regs
	regs[excRefReg] = uint64(excRef)
	return Outcome{
		Handled:    true,
		FrameIndex: frameIdx,
		HandlerPC:  region.HandlerPC,
		Regs:       regs,
	}, nil
}

// search is pass 1 (spec.md section 4.E "Pass 1 (search)"): walk toward
// the root inspecting each frame's enclosing try-regions innermost to
// outermost, without mutating anything, until a catch or a
// filter-that-matched is found. Returns a negative frame index if no
// region in the whole stack matches.
func search(excTD *typesys.TD, stack []Frame, invoke FuncletInvoker) (int, typesys.EHRegion, error) {
	for i, f := range stack {
		if f.MD.EHTable == nil {
			return 0, typesys.EHRegion{}, errors.Panic(errors.PhaseEH, "EH table absent while searching for a handler")
		}
		for _, region := range f.MD.EHTable.Enclosing(f.PCOffset) {
			switch region.Kind {
			case typesys.HandlerCatch:
				if typesys.IsAssignableTo(excTD, region.CatchTD) {
					return i, region, nil
				}
			case typesys.HandlerFilter:
				result, ferr := invoke(f, region.FilterPC)
				if ferr != nil {
					// The filter itself threw; swallow it and treat this
					// region as not matching (spec.md section 4.E).
					continue
				}
				if result != 0 {
					return i, region, nil
				}
			case typesys.HandlerFinally, typesys.HandlerFault:
				// Finally/Fault regions never catch; pass 2 runs them.
			}
		}
	}
	return -1, typesys.EHRegion{}, nil
}

// unwind is pass 2 (spec.md section 4.E "Pass 2 (unwind)"): walk again
// from the throwing frame to matchFrame, running every Finally/Fault
// funclet whose try-region scope the unwind is leaving, in lexical
// nesting order (innermost first, which typesys.EHTable.Enclosing already
// provides).
func unwind(stack []Frame, matchFrame int, matched typesys.EHRegion, invoke FuncletInvoker) error {
	for i := 0; i <= matchFrame; i++ {
		f := stack[i]
		for _, region := range f.MD.EHTable.Enclosing(f.PCOffset) {
			if region.Kind != typesys.HandlerFinally && region.Kind != typesys.HandlerFault {
				continue
			}
			if i == matchFrame && region.Nesting <= matched.Nesting {
				// Not being left: this region encloses (or is) the matched
				// handler's own try, not something the unwind departs.
				continue
			}
			if _, err := invoke(f, region.HandlerPC); err != nil {
				return err
			}
		}
	}
	return nil
}

// Rethrow re-runs Dispatch starting at the frame currently handling the
// exception (spec.md section 4.E "rethrow preserves the original
// exception identity and call-site metadata"): the caller passes the same
// excTD/excRef that were delivered to the handler, and a stack slice
// beginning at the rethrowing frame rather than the original throw site,
// so the search resumes outward from there instead of restarting.
func Rethrow(excTD *typesys.TD, excRef hal.VirtAddr, stackFromHandler []Frame, invoke FuncletInvoker) (Outcome, error) {
	return Dispatch(excTD, excRef, stackFromHandler, invoke)
}

// Leave implements the `leave` instruction's synthesized unwind (spec.md
// section 4.E "leave within a try executes a synthesized unwind that runs
// finallys for try-regions it is leaving, then branches to the target
// PC"): every Finally/Fault region enclosing frame's current PC but not
// enclosing targetPC is being left, and runs in nesting order before the
// caller branches to targetPC within the same frame.
func Leave(frame Frame, targetPC uint32, invoke FuncletInvoker) error {
	if frame.MD.EHTable == nil {
		return errors.Panic(errors.PhaseEH, "EH table absent while processing leave")
	}
	leaving := frame.MD.EHTable.Enclosing(frame.PCOffset)
	stillIn := make(map[typesys.EHRegion]bool, len(leaving))
	for _, region := range frame.MD.EHTable.Enclosing(targetPC) {
		stillIn[region] = true
	}
	for _, region := range leaving {
		if region.Kind != typesys.HandlerFinally && region.Kind != typesys.HandlerFault {
			continue
		}
		if stillIn[region] {
			continue
		}
		if _, err := invoke(frame, region.HandlerPC); err != nil {
			return err
		}
	}
	return nil
}
