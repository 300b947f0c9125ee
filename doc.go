// Package corert is the managed runtime core's root package: it wires
// together the Type System (A), Loader (B), JIT (C), GC (D), Exception
// Handler (E), and Scheduler (F) behind a single Boot entry point.
//
// The root package owns no domain logic of its own — every real decision
// lives in one of the six component packages. Boot's only job is standing
// them up in dependency order and handing control to the entry assembly's
// declared entry method on the boot thread (spec.md section 6, "Boot
// (kernel-services) -> never-returns").
//
// # Architecture
//
//	corert/          Boot: wires components A-F, returns only on a bring-up error
//	├── typesys/     A — TD/MD, object header layout, vtables, interface maps
//	├── loader/      B — bytecode-to-TD/MD resolution, generic instantiation
//	├── jit/         C — bytecode-to-x86-64, stackmaps, EH tables
//	├── gc/          D — compacting mark-sweep over SOH/LOH, precise roots
//	├── eh/          E — two-pass search/unwind exception dispatch
//	├── sched/       F — per-CPU run queues, safepoints, thread lifecycle
//	├── hal/         collaborator interfaces consumed from outside the core
//	├── errors/      structured Phase/Kind error type (spec.md section 7)
//	└── diag/        Console-backed logging, no hosted-OS facility touched
//
// # Collaborators
//
// Everything Boot needs from outside the core arrives as hal interfaces
// (spec.md section 6): PageAllocator, VirtualMemory, Interrupt, Timer, CPU,
// BytecodeReader, Console. The core never calls a hosted-OS API directly;
// every syscall-shaped operation crosses one of these seams.
//
// # Persistent state
//
// None. The core is stateless across boots — the bytecode assemblies it
// loads are its workload, not its own state.
package corert
