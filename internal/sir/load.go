package sir

import (
	"fmt"

	"github.com/frogfishio/sircc/internal/sirjson"
)

// ParseRef resolves a node/type/symbol reference value, which spec.md §3
// allows to be either a bare integer or a single-key object {ref: N}.
// Mirrors parse_node_ref_id.
func ParseRef(v *sirjson.Value) (int64, bool) {
	if v == nil {
		return 0, false
	}
	if v.Kind == sirjson.KindNumber {
		return v.Int64()
	}
	if v.Kind == sirjson.KindObject && len(v.Members) == 1 && v.Members[0].Key == "ref" {
		return v.Members[0].Value.Int64()
	}
	return 0, false
}

// Load decodes a SIR Lines stream into a Program. It performs only
// structural decoding (kind dispatch, required-field presence, ref shape);
// semantic checks (feature gating, CFG well-formedness) belong to component
// E (internal/validate). Mirrors the meta/type/sym/node dispatch loop
// described in spec.md §6.
func Load(lines []sirjson.Line) (*Program, error) {
	p := NewProgram()
	for _, ln := range lines {
		v := ln.Value
		if !v.IsObject() {
			return nil, fmt.Errorf("sircc.parse.bad_record: line %d is not an object", ln.Num)
		}
		ir := v.Get("ir").String()
		if ir != "sir-v1.0" {
			return nil, fmt.Errorf("sircc.parse.bad_ir: line %d has ir=%q, want sir-v1.0", ln.Num, ir)
		}
		k := v.Get("k").String()
		switch k {
		case "meta":
			loadMeta(p, v)
		case "type":
			if err := loadType(p, v); err != nil {
				return nil, fmt.Errorf("line %d: %w", ln.Num, err)
			}
		case "sym":
			if err := loadSym(p, v); err != nil {
				return nil, fmt.Errorf("line %d: %w", ln.Num, err)
			}
		case "node":
			if err := loadNode(p, v); err != nil {
				return nil, fmt.Errorf("line %d: %w", ln.Num, err)
			}
		default:
			return nil, fmt.Errorf("sircc.parse.bad_kind: line %d has unknown k=%q", ln.Num, k)
		}
	}
	return p, nil
}

func loadMeta(p *Program, v *sirjson.Value) {
	p.Meta.Producer = v.Get("producer").String()
	p.Meta.Unit = v.Get("unit").String()
	ext := v.Get("ext")
	if ext == nil {
		return
	}
	if feats := ext.Get("features"); feats.IsArray() {
		for _, f := range feats.Items {
			p.Features.Set(f.String())
		}
	}
	if target := ext.Get("target"); target.IsObject() {
		p.Target.Triple = target.Get("triple").String()
		p.Target.CPU = target.Get("cpu").String()
		p.Target.Features = target.Get("features").String()
		if n, ok := target.Get("ptrBits").Int64(); ok {
			p.Target.PtrBits, p.Target.PtrBitsSet = n, true
		}
		if s := target.Get("endian").String(); s != "" {
			p.Target.Endian, p.Target.EndianSet = s, true
		}
		if n, ok := target.Get("intAlign").Int64(); ok {
			p.Target.IntAlign, p.Target.IntAlignSet = n, true
		}
		if n, ok := target.Get("floatAlign").Int64(); ok {
			p.Target.FloatAlign, p.Target.FloatAlignSet = n, true
		}
		if s := target.Get("structAlign").String(); s != "" {
			p.Target.StructAlign, p.Target.StructAlignSet = s, true
		}
	}
}

func loadType(p *Program, v *sirjson.Value) error {
	id, ok := v.Get("id").Int64()
	if !ok {
		return fmt.Errorf("sircc.parse.missing_field: type missing id")
	}
	t := &Type{ID: id}
	switch v.Get("kind").String() {
	case "prim":
		t.Kind = KindPrim
		t.Prim = parsePrim(v.Get("name").String())
	case "ptr":
		t.Kind = KindPtr
		t.Of, _ = ParseRef(v.Get("of"))
	case "array":
		t.Kind = KindArray
		t.Of, _ = ParseRef(v.Get("of"))
		t.Len, _ = v.Get("len").Int64()
	case "struct":
		t.Kind = KindStruct
		t.Name = v.Get("name").String()
		if fields := v.Get("fields"); fields.IsArray() {
			for _, f := range fields.Items {
				ref, _ := ParseRef(f.Get("type_ref"))
				t.Fields = append(t.Fields, StructField{Name: f.Get("name").String(), TypeRef: ref})
			}
		}
	case "fn":
		t.Kind = KindFn
		if params := v.Get("params"); params.IsArray() {
			for _, pr := range params.Items {
				ref, _ := ParseRef(pr)
				t.Params = append(t.Params, ref)
			}
		}
		t.Ret, _ = ParseRef(v.Get("ret"))
		t.Varargs = v.Get("varargs").BoolVal()
	case "fun":
		t.Kind = KindFun
		t.Sig, _ = ParseRef(v.Get("sig"))
	case "closure":
		t.Kind = KindClosure
		t.CallSig, _ = ParseRef(v.Get("call_sig"))
		t.EnvTy, _ = ParseRef(v.Get("env_ty"))
		t.Name = v.Get("name").String()
	case "vec":
		t.Kind = KindVec
		t.Lane, _ = ParseRef(v.Get("lane"))
		t.Lanes, _ = v.Get("lanes").Int64()
	case "sum":
		t.Kind = KindSum
		if variants := v.Get("variants"); variants.IsArray() {
			for _, vv := range variants.Items {
				var ty int64
				if tyv := vv.Get("ty"); tyv != nil {
					ty, _ = ParseRef(tyv)
				}
				t.Variants = append(t.Variants, SumVariant{Name: vv.Get("name").String(), Ty: ty})
			}
		}
	default:
		return fmt.Errorf("sircc.parse.bad_kind: type %d has unknown kind=%q", id, v.Get("kind").String())
	}
	p.Types[id] = t
	return nil
}

func parsePrim(name string) Prim {
	switch name {
	case "i1":
		return PrimI1
	case "i8":
		return PrimI8
	case "i16":
		return PrimI16
	case "i32":
		return PrimI32
	case "i64":
		return PrimI64
	case "f32":
		return PrimF32
	case "f64":
		return PrimF64
	case "bool":
		return PrimBool
	case "void":
		return PrimVoid
	default:
		return PrimVoid
	}
}

func loadSym(p *Program, v *sirjson.Value) error {
	id, ok := v.Get("id").Int64()
	if !ok {
		return fmt.Errorf("sircc.parse.missing_field: sym missing id")
	}
	s := &Sym{
		ID:      id,
		Name:    v.Get("name").String(),
		Kind:    v.Get("kind").String(),
		Linkage: v.Get("linkage").String(),
		Value:   v.Get("value"),
	}
	s.TypeRef, _ = ParseRef(v.Get("type_ref"))
	p.Syms[id] = s
	return nil
}

func loadNode(p *Program, v *sirjson.Value) error {
	id, ok := v.Get("id").Int64()
	if !ok {
		return fmt.Errorf("sircc.parse.missing_field: node missing id")
	}
	tag := v.Get("tag").String()
	if tag == "" {
		return fmt.Errorf("sircc.parse.missing_field: node %d missing tag", id)
	}
	n := &Node{ID: id, Tag: tag, Fields: v.Get("fields")}
	n.TypeRef, _ = ParseRef(v.Get("type_ref"))
	p.AddNode(n)
	return nil
}
