package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"

	"stackcheck/internal/callgraph"
	"stackcheck/internal/config"
	"stackcheck/internal/elfscan"
	"stackcheck/internal/objdump"
	"stackcheck/internal/report"
	"stackcheck/internal/sufile"
	"stackcheck/internal/trace"
)

const (
	defaultObjdump  = config.DefaultDisassembler
	defaultOverhead = config.DefaultCallOverhead
	dummyPrefix     = objdump.DummyPrefix
)

// multiFlag collects a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

// commonFlags are the flags shared by analyze and graph.
type commonFlags struct {
	cfgPath  *string
	objdump  *string
	overhead *int
	quiet    *bool
	native   *bool
	only     multiFlag
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{
		cfgPath:  fs.String("config", "", "YAML config file"),
		objdump:  fs.String("objdump", "", "disassembler binary"),
		overhead: fs.Int("call-overhead", -1, "bytes added to every frame"),
		quiet:    fs.Bool("quiet-ambiguous", false, "suppress ambiguous-resolution warnings"),
		native:   fs.Bool("native", false, "read AArch64 ELF objects directly"),
	}
	fs.Var(&cf.only, "only", "restrict analysis to this function (repeatable)")
	return cf
}

func (cf *commonFlags) load() (config.Config, error) {
	cfg, err := config.Load(*cf.cfgPath)
	if err != nil {
		return cfg, err
	}
	if *cf.objdump != "" {
		cfg.DisassemblerPath = *cf.objdump
	}
	if *cf.overhead >= 0 {
		cfg.CallOverhead = *cf.overhead
	}
	if *cf.quiet {
		cfg.LogAmbiguous = false
	}
	if *cf.native {
		cfg.Native = true
	}
	cfg.Allowlist = append(cfg.Allowlist, cf.only...)
	return cfg, nil
}

func cmdAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	cf := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("no object files given")
	}
	cfg, err := cf.load()
	if err != nil {
		return err
	}

	g, b, err := ingest(cfg, fs.Args())
	if err != nil {
		return err
	}
	g.AddInterruptRoot(cfg.InterruptPrefix)

	p := trace.Run(g)

	if cfg.LogAmbiguous {
		for _, d := range b.Diags.Items() {
			fmt.Fprintln(os.Stderr, d)
		}
	}

	report.Write(os.Stdout, g, p)
	return nil
}

// ingest runs the front half of the pipeline: disassemble (or natively
// scan) every object file, feed definitions, call targets, and frame
// sizes into one builder, and resolve.
func ingest(cfg config.Config, objects []string) (*callgraph.Graph, *callgraph.Builder, error) {
	b := callgraph.NewBuilder(cfg.Allowlist)

	for _, obj := range objects {
		var defs []objdump.Def
		var err error
		if cfg.Native {
			defs, err = elfscan.Scan(obj, obj, &b.Diags)
		} else {
			var out []byte
			out, err = objdump.Run(cfg.DisassemblerPath, obj)
			if err == nil {
				defs, err = objdump.ParseDisasm(bytes.NewReader(out), obj)
			}
		}
		if err != nil {
			return nil, nil, err
		}

		for _, d := range defs {
			b.Define(obj, d.Name, d.Addr, d.Dummy)
			for _, t := range d.Targets {
				b.AddCall(t)
			}
		}

		recs, ok, err := sufile.Load(obj)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			for _, r := range recs {
				b.SetFrameSize(obj, r.Name, r.Size+cfg.CallOverhead)
			}
		}
	}

	return b.Resolve(), b, nil
}
