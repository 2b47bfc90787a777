// Package lowerhl implements the sircc high-level lowering pass (spec
// component F). Ported from compiler_lower_hl.c: lower_sem_if_to_select,
// lower_sem_sc_to_bool_bin and lower_sem_nodes rewrite sem.* nodes in
// place; EmitCanonicalSIR mirrors emit_meta/emit_types/emit_syms/emit_nodes,
// re-emitting the whole program as canonical SIR Lines after rewriting
// (SPEC_FULL.md §4, "canonical re-emission").
package lowerhl

import (
	"fmt"

	"github.com/frogfishio/sircc/internal/sir"
	"github.com/frogfishio/sircc/internal/sirjson"
)

// Lower rewrites every sem.* node of prog in place, gated on sem:v1.
// Mirrors lower_sem_nodes: if sem:v1 is not set, the pass is a no-op
// (spec.md leaves sem.* nodes untouched when the feature is absent — the
// validator rejects their presence separately).
func Lower(prog *sir.Program) error {
	if !prog.Features.Sem {
		return nil
	}
	for _, id := range prog.NodeOrder {
		n := prog.Nodes[id]
		if n.Tag == "" || len(n.Tag) < 4 || n.Tag[:4] != "sem." {
			continue
		}
		switch n.Tag {
		case "sem.if":
			if err := lowerSemIfToSelect(n); err != nil {
				return err
			}
		case "sem.and_sc":
			if err := lowerSemScToBoolBin(n, true); err != nil {
				return err
			}
		case "sem.or_sc":
			if err := lowerSemScToBoolBin(n, false); err != nil {
				return err
			}
		default:
			return fmt.Errorf("sircc.lower_hl.sem.unsupported: --lower-hl does not support lowering %s yet", n.Tag)
		}
	}
	return nil
}

func lowerSemIfToSelect(n *sir.Node) error {
	if n.Fields == nil {
		return fmt.Errorf("sircc.lower_hl.sem.if.bad_shape: sem.if node %d missing fields", n.ID)
	}
	args := n.Fields.Get("args")
	if !args.IsArray() || len(args.Items) != 3 {
		return fmt.Errorf("sircc.lower_hl.sem.if.bad_shape: sem.if node %d requires fields.args of length 3", n.ID)
	}
	cond, brThen, brElse := args.Items[0], args.Items[1], args.Items[2]
	if !brThen.IsObject() || !brElse.IsObject() {
		return fmt.Errorf("sircc.lower_hl.sem.if.bad_shape: sem.if node %d branches must be objects", n.ID)
	}
	kThen, kElse := brThen.Get("kind").String(), brElse.Get("kind").String()
	if kThen != "val" || kElse != "val" {
		return fmt.Errorf("sircc.lower_hl.sem.if.thunk_unsupported: --lower-hl currently supports sem.if only when both branches are kind:'val'")
	}
	vThen, vElse := brThen.Get("v"), brElse.Get("v")
	if vThen == nil || vElse == nil {
		return fmt.Errorf("sircc.lower_hl.sem.if.bad_shape: sem.if node %d branch missing 'v'", n.ID)
	}

	n.Tag = "select"
	n.Fields = &sirjson.Value{
		Kind: sirjson.KindObject,
		Members: []sirjson.Member{
			{Key: "args", Value: &sirjson.Value{Kind: sirjson.KindArray, Items: []*sirjson.Value{cond, vThen, vElse}}},
		},
	}
	return nil
}

func lowerSemScToBoolBin(n *sir.Node, isAnd bool) error {
	if n.Fields == nil {
		return fmt.Errorf("sircc.lower_hl.sem.sc.bad_shape: node %d missing fields", n.ID)
	}
	args := n.Fields.Get("args")
	if !args.IsArray() || len(args.Items) != 2 {
		return fmt.Errorf("sircc.lower_hl.sem.sc.bad_shape: node %d requires fields.args of length 2", n.ID)
	}
	lhs, rhsBranch := args.Items[0], args.Items[1]
	if !rhsBranch.IsObject() {
		return fmt.Errorf("sircc.lower_hl.sem.sc.bad_shape: node %d rhs must be an object", n.ID)
	}
	if rhsBranch.Get("kind").String() != "val" {
		name := "sem.or_sc"
		if isAnd {
			name = "sem.and_sc"
		}
		return fmt.Errorf("sircc.lower_hl.sem.sc.thunk_unsupported: --lower-hl currently supports %s only when rhs is kind:'val'", name)
	}
	vRhs := rhsBranch.Get("v")
	if vRhs == nil {
		return fmt.Errorf("sircc.lower_hl.sem.sc.bad_shape: node %d rhs missing 'v'", n.ID)
	}

	n.Tag = "bool.or"
	if isAnd {
		n.Tag = "bool.and"
	}
	n.Fields = &sirjson.Value{
		Kind: sirjson.KindObject,
		Members: []sirjson.Member{
			{Key: "args", Value: &sirjson.Value{Kind: sirjson.KindArray, Items: []*sirjson.Value{lhs, vRhs}}},
		},
	}
	return nil
}
