package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "analyze":
		err = cmdAnalyze(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `stackcheck: worst-case stack usage estimator for embedded objects

Usage:
  stackcheck analyze [flags] <object files...>   Per-function stack cost table
  stackcheck graph   [flags] <object files...>   Resolved call graph as DOT

Flags:
  --config <path>        YAML config file
  --objdump <path>       Disassembler binary (default %s)
  --call-overhead <n>    Bytes added to every frame for the call itself (default %d)
  --quiet-ambiguous      Suppress ambiguous-resolution warnings
  --only <name>          Restrict analysis to this function (repeatable)
  --native               Read AArch64 ELF objects directly, no external disassembler
  --out <path>           graph: write DOT here instead of stdout

Compile with -fstack-usage so each .o has a matching .su file. To declare
call edges the disassembly cannot see (function pointers), add a dummy
function named %s<real> that calls the targets.
`, defaultObjdump, defaultOverhead, dummyPrefix)
}
