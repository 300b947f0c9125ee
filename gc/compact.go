package gc

import (
	"github.com/ProtonOS/ProtonOS-sub008/bitset"
	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// Collector runs the stop-the-world mark-sweep-compact cycle over one SOH
// and one LOH (spec.md section 4.D). It assumes the caller (the
// safepoint coordinator, safepoint.go) has already rendezvoused every
// mutator thread — Collect only implements steps 2 through 6 of the
// seven-step algorithm; step 1 (rendezvous) and step 7's "clear the GC
// flag; mutators unpark" happen around it.
type Collector struct {
	SOH        *SOH
	LOH        *LOH
	Finalizers *FinalizerQueue
}

// NewCollector ties an SOH, an LOH, and a finalizer queue together. fin
// may be nil for a collector that never runs finalizers (tests that don't
// exercise that path).
func NewCollector(soh *SOH, loh *LOH, fin *FinalizerQueue) *Collector {
	return &Collector{SOH: soh, LOH: loh, Finalizers: fin}
}

// Collect runs one full mark-sweep-compact cycle: mark reachable objects,
// resolve finalizer resurrection, plan forwarding addresses, adjust every
// reference to its forwarded target, physically compact the SOH, and
// sweep the LOH. Every mutator thread must already be parked at a
// safepoint (spec.md section 4.D step 1) before Collect is called.
func (c *Collector) Collect(roots Roots) error {
	if err := c.Mark(roots); err != nil {
		return err
	}
	c.resurrectFinalizables()

	records := c.plan()
	c.adjust(records, roots)
	newTop := c.compactSOH(records)
	c.SOH.resetTop(newTop)
	c.sweepLOH()
	return nil
}

// objectRecord is one SOH object's Lisp-2 forwarding plan: where it lives
// now, where it will live after compaction, and its TD/size (captured up
// front since plan's own accounting pass computes them once and adjust
// and compactSOH both need them again).
type objectRecord struct {
	old, new hal.VirtAddr
	td       *typesys.TD
	size     uint32
}

// plan walks the SOH linearly from base to top (spec.md section 4.D step
// 3), assigning each marked object a forwarding address packed toward the
// region's base. Unmarked objects are skipped entirely: their bytes are
// simply not copied forward by compactSOH, which is how they are
// reclaimed. Forwarding addresses are kept in this in-memory slice rather
// than stamped into the object header's reserved word (the literal Lisp-2
// technique spec.md describes): this object model's header is a single
// word holding the TD pointer plus GC bits (typesys.HeaderWords == 1), so
// there is no second word to overwrite without losing the TD needed to
// reconstruct the header once the bytes are copied. BitForwarding is
// reserved for a future two-word-header layout that would stamp in place
// instead.
func (c *Collector) plan() []objectRecord {
	var records []objectRecord
	cur := c.SOH.Base()
	top := c.SOH.Top()
	dest := c.SOH.Base()

	for cur < top {
		td, bits := readHeader(cur)
		size := objectSize(cur, td)
		if bits&typesys.BitMark != 0 {
			records = append(records, objectRecord{old: cur, new: dest, td: td, size: size})
			dest += hal.VirtAddr(size)
		}
		cur += hal.VirtAddr(size)
	}
	return records
}

// adjust rewrites every root and every surviving object's reference
// fields from their old address to their planned forwarding address
// (spec.md section 4.D step 4). Interior-pointer roots are rewritten by
// the same delta applied to their containing object, not treated as an
// object-start reference (spec.md section 9).
func (c *Collector) adjust(records []objectRecord, roots Roots) {
	forward := make(map[hal.VirtAddr]hal.VirtAddr, len(records))
	for _, r := range records {
		forward[r.old] = r.new
	}
	rewrite := func(addr hal.VirtAddr) hal.VirtAddr {
		if fw, ok := forward[addr]; ok {
			return fw
		}
		return addr
	}

	for ti := range roots.Threads {
		for fi := range roots.Threads[ti].Frames {
			f := &roots.Threads[ti].Frames[fi]
			sp, ok := f.MD.StackMap.At(f.PCOffset)
			if !ok {
				continue
			}
			for _, regID := range sp.LiveRegs {
				f.Regs[regID] = rewrite(f.Regs[regID])
			}
			for i, slotOff := range sp.LiveSlots {
				slotAddr := f.FrameBase + hal.VirtAddr(slotOff)
				ref := hal.VirtAddr(mem.ReadWord(slotAddr))
				var target hal.VirtAddr
				if i < len(sp.InteriorSlots) && sp.InteriorSlots[i] {
					objStart := c.locateObjectStart(ref)
					if fw, ok := forward[objStart]; ok {
						delta := int64(fw) - int64(objStart)
						target = hal.VirtAddr(int64(ref) + delta)
					} else {
						target = ref
					}
				} else {
					target = rewrite(ref)
				}
				mem.WriteWord(slotAddr, uintptr(target))
			}
		}
	}

	for _, sr := range roots.Statics {
		for _, off := range sr.RefOffsets {
			ref := hal.VirtAddr(readWordFromBytes(sr.Bytes, off))
			writeWordToBytes(sr.Bytes, off, uintptr(rewrite(ref)))
		}
	}
	for i := range roots.Pinned {
		roots.Pinned[i] = rewrite(roots.Pinned[i])
	}
	for i := range roots.Handles {
		roots.Handles[i] = rewrite(roots.Handles[i])
	}

	for _, r := range records {
		adjustFields(r.old, r.td, rewrite)
	}
}

// adjustFields rewrites every reference field (or array slot) addr's
// object holds, in place, via rewrite — the adjust-phase counterpart of
// traceFields (mark.go).
func adjustFields(addr hal.VirtAddr, td *typesys.TD, rewrite func(hal.VirtAddr) hal.VirtAddr) {
	if td.Kind == typesys.KindArray {
		length := mem.ReadU32(addr + hal.VirtAddr(typesys.HeaderWords*8))
		base := addr + hal.VirtAddr(typesys.ArrayHeaderWords*8)
		elem := td.Element
		slotSize := elementSlotSize(elem)

		switch elem.Kind {
		case typesys.KindReference, typesys.KindArray, typesys.KindInterface:
			for i := uint32(0); i < length; i++ {
				off := base + hal.VirtAddr(i*slotSize)
				mem.WriteWord(off, uintptr(rewrite(hal.VirtAddr(mem.ReadWord(off)))))
			}
		default:
			if elem.HasRefBitmap == nil {
				return
			}
			for i := uint32(0); i < length; i++ {
				adjustBitmap(base+hal.VirtAddr(i*slotSize), elem.HasRefBitmap, rewrite)
			}
		}
		return
	}

	if td.HasRefBitmap == nil {
		return
	}
	adjustBitmap(addr+hal.VirtAddr(typesys.HeaderWords*8), td.HasRefBitmap, rewrite)
}

func adjustBitmap(base hal.VirtAddr, bmp *bitset.BitSet, rewrite func(hal.VirtAddr) hal.VirtAddr) {
	for _, word := range bmp.ToSlice() {
		off := base + hal.VirtAddr(word*8)
		mem.WriteWord(off, uintptr(rewrite(hal.VirtAddr(mem.ReadWord(off)))))
	}
}

// compactSOH copies each surviving object to its forwarding address in
// address order (source >= destination always holds since forwarding
// only ever moves objects toward the base, so a forward byte-copy never
// overwrites data it hasn't read yet — spec.md section 4.D step 5), then
// restores a clean header (TD pointer, GC bits cleared) at the new
// location. Returns the new bump-pointer top.
func (c *Collector) compactSOH(records []objectRecord) hal.VirtAddr {
	for _, r := range records {
		if r.new != r.old {
			mem.Copy(r.new, r.old, int(r.size))
		}
		writeHeader(r.new, r.td, 0)
	}
	if len(records) == 0 {
		return c.SOH.Base()
	}
	last := records[len(records)-1]
	return last.new + hal.VirtAddr(last.size)
}

// sweepLOH walks the LOH list once (spec.md section 4.D step 6): marked
// nodes survive with their mark bit cleared, unmarked non-finalizable
// nodes are unmapped and unlinked, and unmarked finalizable nodes are
// handed to the finalizer queue and kept alive (not unlinked) until their
// finalizer has run and confirmed. No compaction runs over the LOH.
func (c *Collector) sweepLOH() {
	var dead []*lohNode
	c.LOH.Each(func(n *lohNode) {
		td, bits := readHeader(n.addr)
		marked := bits&typesys.BitMark != 0

		if !marked && td.Finalizer != nil && c.Finalizers != nil {
			if c.Finalizers.advance(n.addr, td.Finalizer) {
				return
			}
			dead = append(dead, n)
			return
		}
		if marked {
			if c.Finalizers != nil {
				c.Finalizers.clearIfTracked(n.addr)
			}
			clearMarked(n.addr)
			return
		}
		dead = append(dead, n)
	})
	for _, n := range dead {
		c.LOH.unlink(n)
	}
}

// resurrectFinalizables walks the SOH once, keeping alive (for one more
// collection) any unreached object that carries a finalizer: first time
// found dead it is marked pending and its own fields are traced so the
// finalizer sees a consistent object graph; a second consecutive miss
// moves it onto the ready queue for the dedicated finalizer thread
// (spec.md section 4.D "two-pass: first GC finds them unreachable and
// queues them, a later GC reclaims them if still unreachable"). A single
// forward pass (rather than rescanning to a fixpoint) is enough for the
// common case, since resurrect immediately marks everything a revived
// object reaches, including any later-address finalizable object this
// same walk has not visited yet; a finalizable object reachable only
// through an earlier-address finalizable's fields is the one case this
// misses, an accepted tier-0 simplification (re-scanning to convergence
// would otherwise re-examine already-resurrected objects and incorrectly
// treat their own resurrection as an ordinary reachability finding,
// cancelling the very pending/keep-alive state this pass just set).
// Scoped to the SOH: a finalizable LOH object is handled directly by
// sweepLOH instead, since its own fields were already traced by the
// ordinary Mark walk moments ago.
func (c *Collector) resurrectFinalizables() {
	if c.Finalizers == nil {
		return
	}
	cur := c.SOH.Base()
	top := c.SOH.Top()
	for cur < top {
		td, bits := readHeader(cur)
		size := hal.VirtAddr(objectSize(cur, td))
		if td.Finalizer != nil {
			if bits&typesys.BitMark != 0 {
				c.Finalizers.clearIfTracked(cur)
			} else if c.Finalizers.advance(cur, td.Finalizer) {
				c.resurrect(cur)
			}
		}
		cur += size
	}
}

// resurrect marks addr and transitively traces its fields, as if it were
// an ordinary mark-phase root, without disturbing objects already marked.
func (c *Collector) resurrect(addr hal.VirtAddr) {
	if isMarked(addr) {
		return
	}
	stack := []hal.VirtAddr{addr}
	setMarked(addr)
	for len(stack) > 0 {
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		atd, _ := readHeader(a)
		traceFields(a, atd, func(ref hal.VirtAddr) {
			if ref == 0 || isMarked(ref) {
				return
			}
			setMarked(ref)
			stack = append(stack, ref)
		})
	}
}

// writeWordToBytes writes a little-endian pointer-sized word into a
// StaticRegion's plain Go byte slice, the adjust-phase counterpart of
// readWordFromBytes (mark.go).
func writeWordToBytes(b []byte, offset uint32, v uintptr) {
	for i := 0; i < 8 && int(offset)+i < len(b); i++ {
		b[int(offset)+i] = byte(v >> (8 * i))
	}
}
