// Package sufile reads GCC -fstack-usage records: the per-function frame
// sizes the compiler writes next to each object file.
package sufile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// "src/main.c:12:5:main	32	static"
var recordRe = regexp.MustCompile(`^.*:([^\t ]+)[ \t]+([0-9]+)`)

// Record is one frame-size entry: the function name and its frame size in
// bytes, before call overhead is added.
type Record struct {
	Name string
	Size int
}

// Parse reads stack-usage records. Lines that do not match the record
// grammar are skipped.
func Parse(r io.Reader) ([]Record, error) {
	var recs []Record
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m := recordRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		size, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		recs = append(recs, Record{Name: m[1], Size: size})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("sufile: scan: %w", err)
	}
	return recs, nil
}

// Load reads the .su file sitting next to objfile. Objects compiled to .o
// must have one: losing frame sizes silently would make every downstream
// estimate wrong. For any other extension the records are simply absent
// (library archives, pre-linked inputs) and ok is false.
func Load(objfile string) (recs []Record, ok bool, err error) {
	if !strings.HasSuffix(objfile, ".o") {
		return nil, false, nil
	}
	su := strings.TrimSuffix(objfile, ".o") + ".su"
	f, err := os.Open(su)
	if err != nil {
		return nil, false, fmt.Errorf("sufile: stack usage records for %s: %w", objfile, err)
	}
	defer f.Close()

	recs, err = Parse(f)
	if err != nil {
		return nil, false, err
	}
	return recs, true, nil
}
