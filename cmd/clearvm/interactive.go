package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/clear-lang/clearvm/bytecode"
	"github.com/clear-lang/clearvm/vm"
)

// runBudget bounds how many instructions a single "run" keypress executes
// before handing control back to the UI.
const runBudget = 1 << 20

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	breakStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	paneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type debugState int

const (
	stateStepping debugState = iota
	stateBreakInput
	stateDone
)

type debugModel struct {
	err      error
	machine  *vm.VM
	filename string
	listing  []bytecode.Instruction
	consts   []string
	output   *bytes.Buffer
	diag     *bytes.Buffer
	breaks   map[int]bool
	input    textinput.Model
	state    debugState
	finished bool
	steps    int
}

func newDebugModel(filename string) *debugModel {
	return &debugModel{
		filename: filename,
		breaks:   make(map[int]bool),
		output:   &bytes.Buffer{},
		diag:     &bytes.Buffer{},
	}
}

type loadedMsg struct {
	err     error
	machine *vm.VM
	listing []bytecode.Instruction
	consts  []string
}

func (m *debugModel) Init() tea.Cmd {
	return m.loadProgram
}

func (m *debugModel) loadProgram() tea.Msg {
	blob, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}

	listing, ok := bytecode.Disassemble(blob)
	if !ok {
		return loadedMsg{err: fmt.Errorf("malformed instruction stream in %s", m.filename)}
	}

	machine := vm.New(vm.WithStdout(m.output), vm.WithStderr(m.diag))
	if err := machine.Load(blob); err != nil {
		machine.Close()
		return loadedMsg{err: err}
	}

	return loadedMsg{
		machine: machine,
		listing: listing,
		consts:  bytecode.DumpConstants(blob),
	}
}

func (m *debugModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateBreakInput {
			switch msg.String() {
			case "enter":
				if offset, err := strconv.Atoi(strings.TrimSpace(m.input.Value())); err == nil {
					if m.breaks[offset] {
						delete(m.breaks, offset)
					} else {
						m.breaks[offset] = true
					}
				}
				m.state = stateStepping
			case "esc":
				m.state = stateStepping
			default:
				var cmd tea.Cmd
				m.input, cmd = m.input.Update(msg)
				return m, cmd
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			if m.machine != nil {
				m.machine.Close()
			}
			return m, tea.Quit

		case "s", "n":
			if m.state == stateStepping {
				m.step()
			}

		case "r":
			if m.state == stateStepping {
				m.runToBreak()
			}

		case "b":
			if m.state == stateStepping {
				ti := textinput.New()
				ti.Prompt = "break at offset: "
				ti.Width = 12
				ti.Focus()
				m.input = ti
				m.state = stateBreakInput
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = stateDone
			return m, nil
		}
		m.machine = msg.machine
		m.listing = msg.listing
		m.consts = msg.consts
	}

	return m, nil
}

func (m *debugModel) step() {
	more, err := m.machine.Step()
	m.steps++
	if err != nil {
		m.err = err
		m.state = stateDone
		return
	}
	if !more {
		m.finished = true
		m.state = stateDone
	}
}

func (m *debugModel) runToBreak() {
	for i := 0; i < runBudget; i++ {
		more, err := m.machine.Step()
		m.steps++
		if err != nil {
			m.err = err
			m.state = stateDone
			return
		}
		if !more {
			m.finished = true
			m.state = stateDone
			return
		}
		if m.breaks[m.machine.IP()] {
			return
		}
	}
}

func (m *debugModel) View() string {
	if m.err != nil && m.machine == nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.machine == nil {
		return "Loading program..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("ClearVM Debugger"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	code := m.renderCode()
	state := m.renderState()
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, code, "   ", state))
	b.WriteString("\n")

	if out := m.output.String(); out != "" {
		b.WriteString("\n")
		b.WriteString(paneStyle.Render("output"))
		b.WriteString("\n")
		b.WriteString(outputStyle.Render(tail(out, 8)))
	}

	switch m.state {
	case stateBreakInput:
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter toggle • esc cancel"))
	case stateDone:
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()))
		} else if m.finished {
			b.WriteString(paneStyle.Render(fmt.Sprintf("finished after %d instructions", m.steps)))
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("q quit"))
	default:
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("s step • r run • b breakpoint • q quit"))
	}

	return b.String()
}

// renderCode shows a listing window centered on the current instruction.
func (m *debugModel) renderCode() string {
	const window = 16

	current := 0
	for i, in := range m.listing {
		if in.Offset == m.machine.IP() {
			current = i
			break
		}
		if in.Offset > m.machine.IP() {
			break
		}
		current = i
	}

	lo := current - window/2
	if lo < 0 {
		lo = 0
	}
	hi := lo + window
	if hi > len(m.listing) {
		hi = len(m.listing)
	}

	var b strings.Builder
	b.WriteString(paneStyle.Render("code"))
	b.WriteString("\n")
	for i := lo; i < hi; i++ {
		in := m.listing[i]
		marker := "  "
		if m.breaks[in.Offset] {
			marker = breakStyle.Render("● ")
		}
		line := marker + in.String()
		if in.Offset == m.machine.IP() && m.state != stateDone {
			line = marker + cursorStyle.Render(in.String())
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *debugModel) renderState() string {
	var b strings.Builder
	b.WriteString(paneStyle.Render("stack"))
	b.WriteString(fmt.Sprintf("  ip=%d fp=%d sp=%d\n", m.machine.IP(), m.machine.FP(), m.machine.StackDepth()))

	depth := m.machine.StackDepth()
	lo := depth - 10
	if lo < 0 {
		lo = 0
	}
	for i := depth - 1; i >= lo; i-- {
		marker := "  "
		if i == m.machine.FP() {
			marker = "| "
		}
		b.WriteString(fmt.Sprintf("%s[%3d] %s\n", marker, i, valueStyle.Render(m.machine.StackAt(i).String())))
	}
	if depth == 0 {
		b.WriteString(helpStyle.Render("  (empty)"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(paneStyle.Render("globals"))
	b.WriteString("\n")
	shown := 0
	for i := 0; i < vm.GlobalMax && shown < 8; i++ {
		if v, ok := m.machine.GlobalAt(i); ok {
			b.WriteString(fmt.Sprintf("  [%3d] %s\n", i, valueStyle.Render(v.String())))
			shown++
		}
	}
	if shown == 0 {
		b.WriteString(helpStyle.Render("  (none)"))
		b.WriteString("\n")
	}

	if len(m.consts) > 0 {
		b.WriteString("\n")
		b.WriteString(paneStyle.Render("constants"))
		b.WriteString("\n")
		for i, c := range m.consts {
			if i == 8 {
				b.WriteString(helpStyle.Render(fmt.Sprintf("  … %d more\n", len(m.consts)-i)))
				break
			}
			b.WriteString("  " + c + "\n")
		}
	}

	return b.String()
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n") + "\n"
}

func runInteractive(filename string) error {
	p := tea.NewProgram(newDebugModel(filename))
	_, err := p.Run()
	return err
}
