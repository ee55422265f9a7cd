// Package objdump invokes the external disassembler and parses its
// textual output into function definitions and raw call targets. The
// disassembly grammar lives in this package only: graph and cost logic
// never see disassembler text, so a format change stays a parser change.
package objdump

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"stackcheck/internal/callgraph"
)

// DummyPrefix marks functions that exist only to declare manual call edges
// for function-pointer calls invisible to static disassembly. The rest of
// the name is the real function the declared edges belong to.
const DummyPrefix = "__stack_check_dummy__"

// Def is one function definition from the disassembly stream, together
// with the raw call targets that textually follow it.
type Def struct {
	Name    string
	Addr    uint64
	Dummy   bool
	Targets []callgraph.Target
}

var (
	// "0000002a <foo>:"
	defRe = regexp.MustCompile(`^([0-9a-fA-F]+) <(.+)>:`)
	// "2e: R_AVR_CALL  bar" / "10: R_AARCH64_CALL26  .text+0x40"
	callRe = regexp.MustCompile(`: R_[0-9A-Za-z_]+_(?:CALL|CALL26|JUMP26)[ \t]+(.+)`)
	// ".text+0x40"
	textOffRe = regexp.MustCompile(`^\.text\+0x([0-9a-fA-F]+)$`)
)

// Run disassembles one object file with `<tool> -dr` and returns the raw
// output. A missing tool or a non-zero exit is fatal for the whole run.
func Run(tool, objfile string) ([]byte, error) {
	out, err := exec.Command(tool, "-dr", objfile).Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("objdump: %s -dr %s: %w: %s",
				tool, objfile, err, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("objdump: %s -dr %s: %w", tool, objfile, err)
	}
	return out, nil
}

// ParseDisasm parses `objdump -dr` output for one object file. Call
// targets belong to whichever function definition precedes them in the
// stream; targets seen before any definition have no caller and are
// dropped.
func ParseDisasm(r io.Reader, object string) ([]Def, error) {
	var defs []Def

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		if m := defRe.FindStringSubmatch(line); m != nil {
			addr, err := strconv.ParseUint(m[1], 16, 64)
			if err != nil {
				return nil, fmt.Errorf("objdump: %s: bad address %q", object, m[1])
			}
			name := m[2]
			dummy := strings.HasPrefix(name, DummyPrefix)
			if dummy {
				name = name[len(DummyPrefix):]
			}
			defs = append(defs, Def{Name: name, Addr: addr, Dummy: dummy})
			continue
		}

		if m := callRe.FindStringSubmatch(line); m != nil {
			if len(defs) == 0 {
				continue
			}
			d := &defs[len(defs)-1]
			d.Targets = append(d.Targets, parseTarget(m[1], object))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("objdump: scan %s: %w", object, err)
	}
	return defs, nil
}

// parseTarget rewrites a relocation target. A bare ".text" is a
// same-section self reference at offset 0, ".text+0x<off>" is an offset
// within this object, anything else is a symbol name.
func parseTarget(s, object string) callgraph.Target {
	s = strings.TrimSpace(s)
	if s == ".text" {
		return callgraph.Target{Object: object}
	}
	if m := textOffRe.FindStringSubmatch(s); m != nil {
		if off, err := strconv.ParseUint(m[1], 16, 64); err == nil {
			return callgraph.Target{Object: object, Addr: off}
		}
	}
	return callgraph.Target{Sym: s}
}
