// Package elfscan ingests relocatable AArch64 ELF objects directly, with
// no external disassembler. Function definitions come from the symbol
// table; call edges come from .rela.text call relocations plus decoded BL
// instructions for calls already resolved at assembly time. The output
// has the same shape as the objdump text parser, so everything downstream
// is shared.
package elfscan

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"stackcheck/internal/callgraph"
	"stackcheck/internal/diag"
	"stackcheck/internal/objdump"
)

var (
	ErrNot64Bit = errors.New("elfscan: not a 64-bit object")
	ErrNotARM64 = errors.New("elfscan: not AArch64 (EM_AARCH64)")
	ErrNotReloc = errors.New("elfscan: not a relocatable object")
	ErrNoText   = errors.New("elfscan: no .text section")
)

const rela64Size = 24

// Scan reads one relocatable object file and returns its function
// definitions with raw call targets attached.
func Scan(path, object string, ds *diag.Diags) ([]objdump.Def, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfscan: open %s: %w", path, err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("%w: %s", ErrNot64Bit, path)
	}
	if f.Machine != elf.EM_AARCH64 {
		return nil, fmt.Errorf("%w: %s", ErrNotARM64, path)
	}
	if f.Type != elf.ET_REL {
		return nil, fmt.Errorf("%w: %s", ErrNotReloc, path)
	}

	text := f.Section(".text")
	if text == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoText, path)
	}
	textIdx := sectionIndex(f, text)

	syms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("elfscan: %s: symbols: %w", path, err)
	}

	// Definitions, sorted by address so call sites can be attributed to
	// their containing function.
	var defs []objdump.Def
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || int(s.Section) != textIdx {
			continue
		}
		name := s.Name
		dummy := strings.HasPrefix(name, objdump.DummyPrefix)
		if dummy {
			name = name[len(objdump.DummyPrefix):]
		}
		defs = append(defs, objdump.Def{Name: name, Addr: s.Value, Dummy: dummy})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Addr < defs[j].Addr })

	// Call relocations claim their sites; BL decoding below skips them.
	covered, err := scanRelocations(f, syms, textIdx, object, defs, ds)
	if err != nil {
		return nil, fmt.Errorf("elfscan: %s: %w", path, err)
	}

	if err := scanBLSites(text, covered, object, defs); err != nil {
		return nil, fmt.Errorf("elfscan: %s: %w", path, err)
	}

	return defs, nil
}

// scanRelocations walks .rela.text and attaches call relocation targets
// to the containing definition. Returns the set of claimed text offsets.
func scanRelocations(f *elf.File, syms []elf.Symbol, textIdx int, object string, defs []objdump.Def, ds *diag.Diags) (map[uint64]bool, error) {
	covered := make(map[uint64]bool)

	rela := f.Section(".rela.text")
	if rela == nil {
		return covered, nil
	}
	data, err := rela.Data()
	if err != nil {
		return nil, fmt.Errorf("rela: %w", err)
	}

	rd := bytes.NewReader(data)
	var r elf.Rela64
	for rd.Len() >= rela64Size {
		if err := binary.Read(rd, f.ByteOrder, &r); err != nil {
			return nil, fmt.Errorf("rela: %w", err)
		}
		typ := elf.R_AARCH64(elf.R_TYPE64(r.Info))
		if typ != elf.R_AARCH64_CALL26 && typ != elf.R_AARCH64_JUMP26 {
			continue
		}
		covered[r.Off] = true

		symNo := elf.R_SYM64(r.Info)
		if symNo == 0 || int(symNo) > len(syms) {
			continue
		}
		s := syms[symNo-1]

		var t callgraph.Target
		switch {
		case elf.ST_TYPE(s.Info) == elf.STT_SECTION && int(s.Section) == textIdx:
			// Section-relative: the addend is the callee's text offset.
			t = callgraph.Target{Object: object, Addr: uint64(r.Addend)}
		case s.Name != "":
			t = callgraph.Target{Sym: s.Name}
		default:
			ds.Addf(diag.KindOrphan, "%s: unnameable call relocation at .text+0x%x", object, r.Off)
			continue
		}

		di := defAt(defs, r.Off)
		if di < 0 {
			ds.Addf(diag.KindOrphan, "%s: call relocation at .text+0x%x outside any function", object, r.Off)
			continue
		}
		defs[di].Targets = append(defs[di].Targets, t)
	}
	return covered, nil
}

// scanBLSites decodes the text section and turns BL instructions without a
// relocation into offset-form targets: those calls were resolved at
// assembly time and point within this object.
func scanBLSites(text *elf.Section, covered map[uint64]bool, object string, defs []objdump.Def) error {
	code, err := text.Data()
	if err != nil {
		return fmt.Errorf("text: %w", err)
	}

	for off := 0; off+4 <= len(code); off += 4 {
		if covered[uint64(off)] {
			continue
		}
		inst, err := arm64asm.Decode(code[off : off+4])
		if err != nil || inst.Op != arm64asm.BL {
			continue
		}
		rel, ok := inst.Args[0].(arm64asm.PCRel)
		if !ok {
			continue
		}
		di := defAt(defs, uint64(off))
		if di < 0 {
			continue
		}
		target := uint64(int64(off) + int64(rel))
		defs[di].Targets = append(defs[di].Targets, callgraph.Target{Object: object, Addr: target})
	}
	return nil
}

// defAt returns the index of the definition containing the given text
// offset, or -1 when the offset precedes every definition.
func defAt(defs []objdump.Def, off uint64) int {
	return sort.Search(len(defs), func(i int) bool { return defs[i].Addr > off }) - 1
}

func sectionIndex(f *elf.File, s *elf.Section) int {
	for i, sec := range f.Sections {
		if sec == s {
			return i
		}
	}
	return -1
}
