// Command coreinspect is the host-side counterpart to a running (or
// previously running) managed runtime core: it never imports jit, gc, or
// sched directly (only hal's data types), it only reads the artifacts those packages
// produce for a human to look at — a diag.Snapshot dump captured off the
// core's Console, or a module descriptor fixture fed through loader.Loader
// the same way a real hal.BytecodeReader would, for static inspection
// before a core ever boots it.
//
// Grounded on cmd/run/main.go (stdlib flag, a -i interactive switch,
// static "-list" inspection before doing anything live).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/ProtonOS/ProtonOS-sub008/diag"
	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/loader"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

func main() {
	var (
		snapshotFile = flag.String("snapshot", "", "Path to a diag.Snapshot JSON dump captured off the core's Console")
		moduleFile   = flag.String("module", "", "Path to a JSON-encoded hal.ParsedModule fixture to load statically")
		list         = flag.Bool("list", false, "List types/methods and exit (requires -module)")
		interactive  = flag.Bool("i", false, "Interactive TUI browser")
	)
	flag.Parse()

	switch {
	case *snapshotFile != "":
		if err := runSnapshot(*snapshotFile, *interactive); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case *moduleFile != "":
		if err := runModule(*moduleFile, *list, *interactive); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "Usage: coreinspect -snapshot <dump.json> [-i]")
		fmt.Fprintln(os.Stderr, "       coreinspect -module <module.json> [-list] [-i]")
		os.Exit(1)
	}
}

// runSnapshot loads a diag.Snapshot dump and either prints it or hands it
// to the interactive browser.
func runSnapshot(path string, interactiveMode bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap diag.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	if interactiveMode {
		return runInteractiveSnapshot(path, snap)
	}

	fmt.Printf("Snapshot: %s\n", path)
	fmt.Printf("Types: %d\n", len(snap.Types))
	for _, t := range snap.Types {
		fmt.Printf("  %-30s kind=%-10s size=%-4d align=%-3d vtable=%-3d ifaces=%d\n",
			t.Name, t.Kind, t.SizeBytes, t.Alignment, t.VTableLen, t.InterfaceCount)
	}
	fmt.Printf("\nMethods: %d\n", len(snap.Methods))
	for _, m := range snap.Methods {
		fmt.Printf("  %s.%-20s compiled=%-5v safepoints=%-3d eh-regions=%d\n",
			m.DeclaringType, m.Name, m.Compiled, m.SafepointsLen, m.EHRegionsLen)
	}
	fmt.Printf("\nRun queues:\n")
	for _, q := range snap.RunQueues {
		fmt.Printf("  cpu %-2d runnable=%-3d running=%-3d parked_gc=%d\n", q.CPU, q.Runnable, q.Running, q.ParkedGC)
	}
	fmt.Printf("\nGC: collections=%d live_soh=%d live_loh=%d marked=%d freed=%d\n",
		snap.GC.Collections, snap.GC.LiveBytesSOH, snap.GC.LiveBytesLOH, snap.GC.ObjectsMarked, snap.GC.ObjectsFreed)
	return nil
}

// jsonBytecodeReader satisfies hal.BytecodeReader by decoding the fixture
// bytes as a JSON-encoded hal.ParsedModule, ignoring the bytes argument
// LoadModule passes (the tool's own -module flag already read the file).
// Real bytecode parsing (PE/metadata tables) stays out of scope, same as
// the core itself — this reader exists only so coreinspect can drive
// package loader the identical way a real kernel build would.
type jsonBytecodeReader struct {
	parsed *hal.ParsedModule
}

func (r jsonBytecodeReader) OpenModule(ctx context.Context, bytes []byte) (*hal.ParsedModule, error) {
	return r.parsed, nil
}

// runModule loads a ParsedModule fixture through loader.Loader and either
// lists its types/methods or hands the handle to the interactive browser.
func runModule(path string, listOnly, interactiveMode bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}
	var parsed hal.ParsedModule
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decode module: %w", err)
	}

	l := loader.New(jsonBytecodeReader{parsed: &parsed})
	h, err := l.LoadModule(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("load module: %w", err)
	}

	types := collectTypes(h)
	methods := collectMethods(h)

	if interactiveMode {
		return runInteractiveModule(path, types, methods)
	}

	fmt.Printf("Module: %s (%s)\n", h.Name, h.Version)
	fmt.Printf("\nTypes:\n")
	for _, t := range types {
		fmt.Printf("  %-30s kind=%-10s size=%-4d align=%d\n", t.Name, t.Kind, t.SizeBytes, t.Align)
	}
	fmt.Printf("\nMethods:\n")
	for _, m := range methods {
		fmt.Printf("  %-20s static=%-5v compiled=%-5v\n", m.Name, m.Static, m.Compiled)
	}
	if listOnly {
		return nil
	}
	entry, err := h.FindEntryPoint()
	if err != nil {
		fmt.Printf("\nNo entry point: %v\n", err)
		return nil
	}
	fmt.Printf("\nEntry point: %s\n", entry.Name)
	return nil
}

// typeRow and methodRow are the flattened views the interactive browser and
// the static listing both render, sharing one collection pass over the
// handle.
type typeRow struct {
	Name      string
	Kind      string
	SizeBytes uint32
	Align     uint32
}

type methodRow struct {
	Name     string
	Static   bool
	Compiled bool
}

// collectTypes walks h.Type(0..) until it runs past the table, the only
// enumeration ModuleHandle's public API offers.
func collectTypes(h *loader.ModuleHandle) []typeRow {
	var rows []typeRow
	for i := 0; ; i++ {
		td, err := h.Type(i)
		if err != nil {
			break
		}
		rows = append(rows, typeRow{Name: td.Name, Kind: td.Kind.String(), SizeBytes: td.SizeBytes, Align: td.Align})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

func collectMethods(h *loader.ModuleHandle) []methodRow {
	var rows []methodRow
	for i := 0; ; i++ {
		md, err := h.Method(i)
		if err != nil {
			break
		}
		rows = append(rows, methodRow{Name: md.Name, Static: md.Attrs.Has(typesys.AttrStatic), Compiled: md.StackMap != nil})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}
