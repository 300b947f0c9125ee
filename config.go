package corert

import "time"

// Config is Boot's single configuration input, gathering the small knobs
// spec.md leaves to "reasonable, documented default" (section 9): CPU
// count, the scheduler's preemption quantum, and the entry assembly bytes
// to load. Grounded on the teacher's engine.Config / linker.Options shape
// (small struct, a DefaultConfig constructor) — generalized from "override
// a few wazero/linker knobs" to "override a few kernel-core knobs". The
// root package is the only caller of gc.NewCoordinator/sched.NewDispatcher/
// jit.NewCodeHeap, so their own parameters are gathered here rather than in
// one Config struct per package.
type Config struct {
	// CPUCount is the number of logical CPUs the scheduler owns (spec.md
	// section 4.F); must match len(CPU.Topology()).
	CPUCount int

	// Quantum is how often the Timer collaborator fires the tick that
	// drives scheduler preemption (spec.md section 4.F).
	Quantum time.Duration

	// EntryAssembly is the bytes of the first bytecode assembly Boot
	// loads and whose declared entry method runs on the boot thread
	// (spec.md section 6).
	EntryAssembly []byte
}

// DefaultConfig returns the configuration a single-CPU bring-up uses: one
// CPU, a 10ms quantum, no entry assembly (the caller must set one).
func DefaultConfig() Config {
	return Config{
		CPUCount: 1,
		Quantum:  10 * time.Millisecond,
	}
}
