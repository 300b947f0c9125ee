package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ProtonOS/ProtonOS-sub008/diag"
)

// Styles mirror cmd/run/interactive.go's palette: a bold title band, a
// muted help line, and a highlighted selection row.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	categoryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// category is one tab of the browser: types, methods, run queues, GC.
type category int

const (
	categoryTypes category = iota
	categoryMethods
	categoryRunQueues
	categoryGC
	categoryCount
)

func (c category) String() string {
	switch c {
	case categoryTypes:
		return "Types"
	case categoryMethods:
		return "Methods"
	case categoryRunQueues:
		return "Run queues"
	case categoryGC:
		return "GC"
	default:
		return "?"
	}
}

// snapshotModel browses a loaded diag.Snapshot: left/right switches
// category, up/down moves the selection within the current category's
// list, matching cmd/run/interactive.go's select-then-enter shape reduced
// to "select" since there is nothing to call here.
type snapshotModel struct {
	filename string
	snap     diag.Snapshot
	cat      category
	cursor   int
}

func newSnapshotModel(filename string, snap diag.Snapshot) *snapshotModel {
	return &snapshotModel{filename: filename, snap: snap}
}

func (m *snapshotModel) Init() tea.Cmd { return nil }

func (m *snapshotModel) rowCount() int {
	switch m.cat {
	case categoryTypes:
		return len(m.snap.Types)
	case categoryMethods:
		return len(m.snap.Methods)
	case categoryRunQueues:
		return len(m.snap.RunQueues)
	default:
		return 0
	}
}

func (m *snapshotModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "left", "h":
		m.cat = (m.cat - 1 + categoryCount) % categoryCount
		m.cursor = 0
	case "right", "l", "tab":
		m.cat = (m.cat + 1) % categoryCount
		m.cursor = 0
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < m.rowCount()-1 {
			m.cursor++
		}
	}
	return m, nil
}

func (m *snapshotModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("coreinspect"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	for c := category(0); c < categoryCount; c++ {
		label := c.String()
		if c == m.cat {
			b.WriteString(selectedStyle.Render(" " + label + " "))
		} else {
			b.WriteString(categoryStyle.Render(" " + label + " "))
		}
	}
	b.WriteString("\n\n")

	switch m.cat {
	case categoryTypes:
		if len(m.snap.Types) == 0 {
			b.WriteString(errorStyle.Render("no types in this snapshot"))
		}
		for i, t := range m.snap.Types {
			line := fmt.Sprintf("%-30s %s", t.Name, valueStyle.Render(t.Kind))
			b.WriteString(renderRow(i == m.cursor, line))
		}
	case categoryMethods:
		for i, mth := range m.snap.Methods {
			line := fmt.Sprintf("%s.%-20s compiled=%v", mth.DeclaringType, mth.Name, mth.Compiled)
			b.WriteString(renderRow(i == m.cursor, line))
		}
	case categoryRunQueues:
		for i, q := range m.snap.RunQueues {
			line := fmt.Sprintf("cpu %-2d runnable=%-3d running=%-3d parked_gc=%d", q.CPU, q.Runnable, q.Running, q.ParkedGC)
			b.WriteString(renderRow(i == m.cursor, line))
		}
	case categoryGC:
		b.WriteString(fmt.Sprintf("collections:   %d\n", m.snap.GC.Collections))
		b.WriteString(fmt.Sprintf("live (SOH):    %d\n", m.snap.GC.LiveBytesSOH))
		b.WriteString(fmt.Sprintf("live (LOH):    %d\n", m.snap.GC.LiveBytesLOH))
		b.WriteString(fmt.Sprintf("objects marked:%d\n", m.snap.GC.ObjectsMarked))
		b.WriteString(fmt.Sprintf("objects freed: %d\n", m.snap.GC.ObjectsFreed))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("←/→ category • ↑/↓ select • q quit"))
	return b.String()
}

func renderRow(selected bool, line string) string {
	cursor := "  "
	if selected {
		cursor = "> "
		return selectedStyle.Render(cursor+line) + "\n"
	}
	return cursor + line + "\n"
}

func runInteractiveSnapshot(filename string, snap diag.Snapshot) error {
	p := tea.NewProgram(newSnapshotModel(filename, snap), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// moduleModel is the same browser shape over a statically loaded module's
// type/method rows (no GC or run-queue data exists before a core boots it).
type moduleModel struct {
	filename string
	types    []typeRow
	methods  []methodRow
	showing  category // categoryTypes or categoryMethods only
	cursor   int
}

func newModuleModel(filename string, types []typeRow, methods []methodRow) *moduleModel {
	return &moduleModel{filename: filename, types: types, methods: methods, showing: categoryTypes}
}

func (m *moduleModel) Init() tea.Cmd { return nil }

func (m *moduleModel) rowCount() int {
	if m.showing == categoryTypes {
		return len(m.types)
	}
	return len(m.methods)
}

func (m *moduleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "left", "h", "right", "l", "tab":
		if m.showing == categoryTypes {
			m.showing = categoryMethods
		} else {
			m.showing = categoryTypes
		}
		m.cursor = 0
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < m.rowCount()-1 {
			m.cursor++
		}
	}
	return m, nil
}

func (m *moduleModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("coreinspect"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	for _, c := range []category{categoryTypes, categoryMethods} {
		label := c.String()
		if c == m.showing {
			b.WriteString(selectedStyle.Render(" " + label + " "))
		} else {
			b.WriteString(categoryStyle.Render(" " + label + " "))
		}
	}
	b.WriteString("\n\n")

	if m.showing == categoryTypes {
		for i, t := range m.types {
			line := fmt.Sprintf("%-30s %s size=%-4d align=%d", t.Name, valueStyle.Render(t.Kind), t.SizeBytes, t.Align)
			b.WriteString(renderRow(i == m.cursor, line))
		}
	} else {
		for i, mth := range m.methods {
			line := fmt.Sprintf("%-20s static=%-5v compiled=%v", mth.Name, mth.Static, mth.Compiled)
			b.WriteString(renderRow(i == m.cursor, line))
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("←/→ category • ↑/↓ select • q quit"))
	return b.String()
}

func runInteractiveModule(filename string, types []typeRow, methods []methodRow) error {
	p := tea.NewProgram(newModuleModel(filename, types, methods), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
