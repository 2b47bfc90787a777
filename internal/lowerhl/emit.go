package lowerhl

import (
	"sort"
	"strconv"
	"strings"

	"github.com/frogfishio/sircc/internal/sir"
	"github.com/frogfishio/sircc/internal/sirjson"
)

// sortedIDs returns m's keys in ascending order, so canonical re-emission
// iterates the type/sym tables in id order the way compiler_lower_hl.c
// walks its dense `p->types`/`p->syms` C arrays by index.
func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// typeKindStr mirrors type_kind_str.
func typeKindStr(k sir.TypeKind) string {
	switch k {
	case sir.KindPrim:
		return "prim"
	case sir.KindPtr:
		return "ptr"
	case sir.KindArray:
		return "array"
	case sir.KindFn:
		return "fn"
	case sir.KindStruct:
		return "struct"
	case sir.KindVec:
		return "vec"
	case sir.KindFun:
		return "fun"
	case sir.KindClosure:
		return "closure"
	case sir.KindSum:
		return "sum"
	default:
		return ""
	}
}

func primName(p sir.Prim) string {
	switch p {
	case sir.PrimI1:
		return "i1"
	case sir.PrimI8:
		return "i8"
	case sir.PrimI16:
		return "i16"
	case sir.PrimI32:
		return "i32"
	case sir.PrimI64:
		return "i64"
	case sir.PrimF32:
		return "f32"
	case sir.PrimF64:
		return "f64"
	case sir.PrimBool:
		return "bool"
	case sir.PrimVoid:
		return "void"
	default:
		return ""
	}
}

// EmitCanonicalSIR re-emits meta/types/syms/nodes as canonical SIR Lines,
// mirroring emit_meta/emit_types/emit_syms/emit_nodes. Caller is expected
// to have already run Lower (the high-level rewriting pass) over prog.
func EmitCanonicalSIR(prog *sir.Program) string {
	var out strings.Builder
	emitMeta(&out, prog)
	emitTypes(&out, prog)
	emitSyms(&out, prog)
	emitNodes(&out, prog)
	return out.String()
}

func emitMeta(out *strings.Builder, p *sir.Program) {
	w := sirjson.NewWriter()
	w.Raw(`{"ir":"sir-v1.0","k":"meta","producer":"sircc-lower-hl"`)
	if p.Meta.Unit != "" {
		w.Raw(`,"unit":`)
		w.Str(p.Meta.Unit)
	}
	w.Raw(`,"ext":{"features":[`)
	feats := p.Features.Ordered()
	for i, f := range feats {
		if i > 0 {
			w.Raw(",")
		}
		w.Str(f)
	}
	w.Raw("]")
	if p.Target.Triple != "" || p.Target.CPU != "" || p.Target.Features != "" {
		w.Raw(`,"target":{`)
		first := true
		if p.Target.Triple != "" {
			w.Raw(`"triple":`)
			w.Str(p.Target.Triple)
			first = false
		}
		if p.Target.CPU != "" {
			if !first {
				w.Raw(",")
			}
			w.Raw(`"cpu":`)
			w.Str(p.Target.CPU)
			first = false
		}
		if p.Target.Features != "" {
			if !first {
				w.Raw(",")
			}
			w.Raw(`"features":`)
			w.Str(p.Target.Features)
		}
		w.Raw("}")
	}
	w.Raw("}}\n")
	out.WriteString(w.String())
}

func emitTypes(out *strings.Builder, p *sir.Program) {
	for _, id := range sortedIDs(p.Types) {
		t := p.Types[id]
		kind := typeKindStr(t.Kind)
		if kind == "" {
			continue
		}
		w := sirjson.NewWriter()
		w.Raw(`{"ir":"sir-v1.0","k":"type","id":`)
		w.Int(t.ID)
		w.Raw(`,"kind":`)
		w.Str(kind)
		switch t.Kind {
		case sir.KindPrim:
			w.Raw(`,"name":`)
			w.Str(primName(t.Prim))
		case sir.KindPtr:
			w.Raw(`,"of":`)
			w.Int(t.Of)
		case sir.KindArray:
			w.Raw(`,"of":`)
			w.Int(t.Of)
			w.Raw(`,"len":`)
			w.Int(t.Len)
		case sir.KindFn:
			w.Raw(`,"params":[`)
			for i, pr := range t.Params {
				if i > 0 {
					w.Raw(",")
				}
				w.Int(pr)
			}
			w.Raw(`],"ret":`)
			w.Int(t.Ret)
			if t.Varargs {
				w.Raw(`,"varargs":true`)
			}
		case sir.KindStruct:
			w.Raw(`,"fields":[`)
			for i, f := range t.Fields {
				if i > 0 {
					w.Raw(",")
				}
				w.Raw(`{"name":`)
				w.Str(f.Name)
				w.Raw(`,"type_ref":`)
				w.Int(f.TypeRef)
				w.Raw("}")
			}
			w.Raw("]")
		case sir.KindVec:
			w.Raw(`,"lane":`)
			w.Int(t.Lane)
			w.Raw(`,"lanes":`)
			w.Int(t.Lanes)
		case sir.KindFun:
			w.Raw(`,"sig":`)
			w.Int(t.Sig)
		case sir.KindClosure:
			w.Raw(`,"call_sig":`)
			w.Int(t.CallSig)
			w.Raw(`,"env_ty":`)
			w.Int(t.EnvTy)
		case sir.KindSum:
			w.Raw(`,"variants":[`)
			for i, v := range t.Variants {
				if i > 0 {
					w.Raw(",")
				}
				w.Raw("{")
				first := true
				if v.Name != "" {
					w.Raw(`"name":`)
					w.Str(v.Name)
					first = false
				}
				if v.Ty != 0 {
					if !first {
						w.Raw(",")
					}
					w.Raw(`"ty":`)
					w.Int(v.Ty)
				}
				w.Raw("}")
			}
			w.Raw("]")
		}
		w.Raw("}\n")
		out.WriteString(w.String())
	}
}

func emitSyms(out *strings.Builder, p *sir.Program) {
	for _, id := range sortedIDs(p.Syms) {
		s := p.Syms[id]
		w := sirjson.NewWriter()
		w.Raw(`{"ir":"sir-v1.0","k":"sym","id":`)
		w.Int(s.ID)
		if s.Name != "" {
			w.Raw(`,"name":`)
			w.Str(s.Name)
		}
		if s.Kind != "" {
			w.Raw(`,"kind":`)
			w.Str(s.Kind)
		}
		if s.Linkage != "" {
			w.Raw(`,"linkage":`)
			w.Str(s.Linkage)
		}
		if s.TypeRef != 0 {
			w.Raw(`,"type_ref":`)
			w.Int(s.TypeRef)
		}
		if s.Value != nil {
			w.Raw(`,"value":`)
			writeValue(w, s.Value)
		}
		w.Raw("}\n")
		out.WriteString(w.String())
	}
}

func emitNodes(out *strings.Builder, p *sir.Program) {
	for _, id := range p.NodeOrder {
		n := p.Nodes[id]
		if n.Tag == "" {
			continue
		}
		w := sirjson.NewWriter()
		w.Raw(`{"ir":"sir-v1.0","k":"node","id":`)
		w.Int(n.ID)
		w.Raw(`,"tag":`)
		w.Str(n.Tag)
		if n.TypeRef != 0 {
			w.Raw(`,"type_ref":`)
			w.Int(n.TypeRef)
		}
		if n.Fields != nil {
			w.Raw(`,"fields":`)
			writeValue(w, n.Fields)
		}
		w.Raw("}\n")
		out.WriteString(w.String())
	}
}

// writeValue re-serializes a decoded sirjson.Value tree verbatim, mirroring
// json_write_value: nodes whose fields were not rewritten by Lower pass
// through byte-for-byte (modulo whitespace and key order, which was already
// preserved by the decoder).
func writeValue(w *sirjson.Writer, v *sirjson.Value) {
	if v == nil {
		w.Raw("null")
		return
	}
	switch v.Kind {
	case sirjson.KindNull:
		w.Raw("null")
	case sirjson.KindBool:
		w.Bool(v.Bool)
	case sirjson.KindNumber:
		if n, err := strconv.ParseInt(v.Number, 10, 64); err == nil {
			w.Int(n)
		} else {
			w.Raw(v.Number)
		}
	case sirjson.KindString:
		w.Str(v.Str)
	case sirjson.KindArray:
		w.Raw("[")
		for i, item := range v.Items {
			if i > 0 {
				w.Raw(",")
			}
			writeValue(w, item)
		}
		w.Raw("]")
	case sirjson.KindObject:
		w.Raw("{")
		for i, m := range v.Members {
			if i > 0 {
				w.Raw(",")
			}
			w.Str(m.Key)
			w.Raw(":")
			writeValue(w, m.Value)
		}
		w.Raw("}")
	}
}
