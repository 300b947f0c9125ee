package corert

import (
	"context"
	"unsafe"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ProtonOS/ProtonOS-sub008/diag"
	"github.com/ProtonOS/ProtonOS-sub008/eh"
	"github.com/ProtonOS/ProtonOS-sub008/errors"
	"github.com/ProtonOS/ProtonOS-sub008/gc"
	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/jit"
	"github.com/ProtonOS/ProtonOS-sub008/loader"
	"github.com/ProtonOS/ProtonOS-sub008/sched"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// timerVector is the interrupt vector the boot sequence registers the
// scheduler tick on. Arbitrary below this seam — GDT/IDT/APIC programming
// is out of scope (spec.md section 1) — chosen to sit past the legacy
// PIC's remapped range, matching where a freestanding kernel typically
// parks its local APIC timer vector.
const timerVector = 0x20

// Collaborators gathers every external seam Boot needs (spec.md section 6,
// "From outside the core"), one field per hal interface.
type Collaborators struct {
	Pages     hal.PageAllocator
	VMem      hal.VirtualMemory
	Interrupt hal.Interrupt
	Timer     hal.Timer
	CPU       hal.CPU
	Reader    hal.BytecodeReader
	Console   hal.Console
}

// Core is the fully wired runtime: every component A-F standing over the
// collaborators Boot was given. Its component fields are exported so code
// holding a *Core (its own methods in threads.go and reflection.go, and
// tests) can reach each component directly; cmd/coreinspect does not use
// it and reads diag.Snapshot dumps instead.
type Core struct {
	cfg    Config
	Loader *loader.Loader
	Heap   *gc.Heap
	GC     *gc.Collector
	Coord  *gc.Coordinator
	Code   *jit.CodeHeap
	Sched  *sched.Dispatcher

	nextThreadID uint64
	nextCPU      uint64 // round-robin cursor over Sched.CPUs, for CreateThread
}

// Boot initializes components A-F in dependency order (typesys has no
// runtime state of its own to initialize; loader depends on nothing but
// its BytecodeReader; jit depends on loader-resolved MDs; gc and sched
// stand up independently of everything but their hal collaborators; eh is
// pure functions, nothing to construct), loads the entry assembly, and
// calls its declared entry method on the boot thread. Grounded on
// runtime.New's construct-and-wire shape (engine, then HostRegistry),
// generalized from "one engine + a host registry" to "six cooperating
// components plus a dispatcher tick wired to a real interrupt vector".
//
// Boot does not return while the entry method is running: like spec.md
// section 6 describes, a managed program's Main is the kernel's whole
// reason to exist. It returns an error only if bring-up itself (loading or
// compiling the entry assembly) fails before any managed code ever runs.
func Boot(c Collaborators, cfg Config) error {
	diag.SetLogger(diag.NewConsoleLogger(c.Console, zapcore.InfoLevel))
	log := diag.Logger()

	if cfg.CPUCount <= 0 {
		return errors.Panic(errors.PhaseSched, "Config.CPUCount must be >= 1")
	}

	coord := gc.NewCoordinator(cfg.CPUCount)
	core := &Core{
		cfg:    cfg,
		Loader: loader.New(c.Reader),
		Code:   jit.NewCodeHeap(c.Pages, c.VMem),
		Coord:  coord,
		Sched:  sched.NewDispatcher(cfg.CPUCount, coord),
	}

	soh := gc.NewSOH(c.Pages, c.VMem)
	loh := gc.NewLOH(c.Pages, c.VMem)
	fin := gc.NewFinalizerQueue()
	core.GC = gc.NewCollector(soh, loh, fin)
	core.Heap = gc.NewHeap(soh, loh)

	c.Interrupt.Register(timerVector, func(vector int) {
		for _, cpu := range core.Sched.CPUs {
			core.Sched.Tick(cpu)
		}
	})
	c.Timer.ArmPeriodic(uint64(cfg.Quantum.Nanoseconds()))

	log.Info("booting managed runtime core", zap.Int("cpus", cfg.CPUCount))

	handle, err := core.Loader.LoadModule(context.Background(), cfg.EntryAssembly)
	if err != nil {
		return err
	}
	entry, err := handle.FindEntryPoint()
	if err != nil {
		return err
	}
	if err := core.compileMethod(handle, entry); err != nil {
		return err
	}

	log.Info("entering managed entry point", zap.String("method", entry.Name))
	callEntry(entry.Entry())

	select {} // the core has no life beyond the entry method; see doc.go
}

// compileMethod decodes md's body through the Loader (resolving its
// tokens) and hands the result to the JIT, installing native code as md's
// entry point (spec.md section 4.B "on first entry to an MD's trampoline",
// here performed eagerly for the boot-thread's own entry method rather
// than lazily on first call, since Boot must jump directly to native
// code — every other method the entry method calls still compiles lazily
// through its trampoline on first invocation).
func (c *Core) compileMethod(h *loader.ModuleHandle, md *typesys.MD) error {
	instrs, specs, metas, isRefLocal, err := c.Loader.DecodeBody(h, md)
	if err != nil {
		return err
	}
	return jit.CompileAndInstall(md, c.Code, instrs, specs, metas, isRefLocal)
}

// callEntry jumps to a compiled method's native entry point with no
// arguments, matching jit/codeheap.go's copyToVirtualMemory pattern: the
// one seam a hosted build and a bare-metal build differ on. A bare-metal
// build's boot thread has no incoming Go call stack to return to, so this
// cast's implied C calling convention never needs a return address a Go
// caller would recognize.
var callEntry = func(entry typesys.CodePtr) {
	fn := *(*func())(unsafe.Pointer(&entry))
	fn()
}

// Dispatch resolves and, if a handler is found, runs both passes of an
// exception thrown on t's current frame (spec.md section 4.E), bridging
// eh's Frame/FuncletInvoker shape to sched's Thread. invoke is expected to
// call back into JIT-emitted funclet code at the given PC within frame.
func (c *Core) Dispatch(excTD *typesys.TD, excRef hal.VirtAddr, stack []eh.Frame, invoke eh.FuncletInvoker) (eh.Outcome, error) {
	return eh.Dispatch(excTD, excRef, stack, invoke)
}
