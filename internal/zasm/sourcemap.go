package zasm

import (
	"fmt"
	"strings"
)

// MapEntry is one source-map record tying an emitted zasm record (by
// its running line number and record kind) back to the SIR node and
// tag it was lowered from. There is no C source to ground this on —
// compiler_zasm.c never emitted a source map — so the wire shape below
// is extrapolated directly from spec.md §4.I's "{k:\"zasm_map\",...}"
// record description.
type MapEntry struct {
	ZLine   int64
	ZKind   string
	SirNode int64
	SirTag  string
}

func (m *Module) record(zline int64, zkind string, sirNode int64, sirTag string) {
	m.SourceMap = append(m.SourceMap, MapEntry{ZLine: zline, ZKind: zkind, SirNode: sirNode, SirTag: sirTag})
}

// WriteSourceMap renders the accumulated source map as its own
// JSON-Lines stream, one {"k":"zasm_map",...} record per entry.
func (m *Module) WriteSourceMap() string {
	var b strings.Builder
	for _, e := range m.SourceMap {
		b.WriteString(`{"k":"zasm_map","zline":`)
		fmt.Fprintf(&b, "%d", e.ZLine)
		b.WriteString(`,"zkind":"`)
		b.WriteString(e.ZKind)
		b.WriteString(`","sir_node":`)
		fmt.Fprintf(&b, "%d", e.SirNode)
		b.WriteString(`,"sir_tag":`)
		writeJSONStr(&b, e.SirTag)
		b.WriteString("}\n")
	}
	return b.String()
}
