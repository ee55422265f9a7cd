// Package diag accumulates non-fatal diagnostics raised during ingestion
// and symbol resolution.
package diag

import "fmt"

// Kind classifies a diagnostic message.
type Kind string

const (
	// KindAmbiguous marks a call target resolved through a symbol name
	// that is defined in more than one object file.
	KindAmbiguous Kind = "ambiguous"
	// KindOrphan marks a call site that could not be attributed to any
	// function definition.
	KindOrphan Kind = "orphan"
)

// Diag records one non-fatal issue.
type Diag struct {
	Kind Kind
	Msg  string
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] %s", d.Kind, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Addf(kind Kind, format string, args ...any) {
	d.items = append(d.items, Diag{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }
