package sirjson

import "strconv"

// Kind mirrors the original JsonType enum (json.h): a SIR Lines record is
// restricted to these six JSON kinds, in this order.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Member is one key/value pair of an object, kept in source order. SIR's
// canonical re-emission (component F) depends on object keys round-
// tripping in the order they were read, so Value uses an ordered slice of
// Members rather than a Go map.
type Member struct {
	Key   string
	Value *Value
}

// Value is a decoded JSON node, equivalent to json.h's JsonValue/JsonArray/
// JsonObject trio collapsed into one tagged struct since Go lacks unions.
type Value struct {
	Kind    Kind
	Bool    bool
	Number  string // raw literal, preserved so integers stay exact past 2^53
	Str     string
	Items   []*Value
	Members []Member
}

// IsObject reports whether v is a non-nil object value.
func (v *Value) IsObject() bool { return v != nil && v.Kind == KindObject }

// IsArray reports whether v is a non-nil array value.
func (v *Value) IsArray() bool { return v != nil && v.Kind == KindArray }

// Get returns the value of the first member named key, or nil if v is not
// an object or has no such member. Mirrors json_obj_get.
func (v *Value) Get(key string) *Value {
	if v == nil || v.Kind != KindObject {
		return nil
	}
	for _, m := range v.Members {
		if m.Key == key {
			return m.Value
		}
	}
	return nil
}

// HasOnlyKeys reports whether every member of v is named in keys, returning
// the first offending key otherwise. Mirrors json_obj_has_only_keys, used
// by the validator to reject unknown fields on strict node kinds.
func (v *Value) HasOnlyKeys(keys ...string) (bad string, ok bool) {
	if v == nil || v.Kind != KindObject {
		return "", true
	}
outer:
	for _, m := range v.Members {
		for _, k := range keys {
			if m.Key == k {
				continue outer
			}
		}
		return m.Key, false
	}
	return "", true
}

// BoolVal returns the unwrapped Go bool for a KindBool value, or false for
// anything else (including nil), so callers can write v.Get("x").BoolVal()
// without a separate nil check.
func (v *Value) BoolVal() bool {
	if v == nil || v.Kind != KindBool {
		return false
	}
	return v.Bool
}

// String returns the unwrapped Go string for a KindString value, or "" for
// anything else. Mirrors json_get_string.
func (v *Value) String() string {
	if v == nil || v.Kind != KindString {
		return ""
	}
	return v.Str
}

// Int64 returns the numeric value as an int64. Mirrors json_get_i64.
func (v *Value) Int64() (int64, bool) {
	if v == nil || v.Kind != KindNumber {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Number, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Float64 returns the numeric value as a float64, accepting both integer
// and fractional literals.
func (v *Value) Float64() (float64, bool) {
	if v == nil || v.Kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.Number, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
