package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/zboralski/lattice/render"
)

func cmdGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	cf := addCommonFlags(fs)
	out := fs.String("out", "", "write DOT to this file instead of stdout")
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

	if cfg.LogAmbiguous {
		for _, d := range b.Diags.Items() {
			fmt.Fprintln(os.Stderr, d)
		}
	}

	lg := g.Lattice()
	dot := render.DOT(lg, "stackcheck")

	if *out == "" {
		fmt.Print(dot)
		return nil
	}
	if err := os.WriteFile(*out, []byte(dot), 0644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d nodes, %d edges)\n", *out, len(lg.Nodes), len(lg.Edges))
	return nil
}
