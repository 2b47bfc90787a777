package zasm

// regCache tracks which stack slot, if any, HL and DE currently mirror,
// so the CFG backend can skip a reload when consecutive operands read the
// same slot. Ported from compiler_zasm_regcache.c/.h's ZasmRegCache: a
// two-entry table (one per tracked register) of (slot symbol, width).
type regCache struct {
	hl *regSlot
	de *regSlot
}

type regSlot struct {
	sym   string
	width int64
}

// clearAll mirrors zasm_regcache_init/zasm_regcache_clear_all: every
// block starts with both registers unknown, since control can arrive
// from any predecessor.
func (rc *regCache) clearAll() {
	rc.hl = nil
	rc.de = nil
}

// invalidateReg mirrors zasm_regcache_invalidate_reg: forget whatever
// slot reg was mirroring, because its contents are about to change for a
// reason unrelated to that slot (e.g. an arithmetic result).
func (rc *regCache) invalidateReg(reg string) {
	switch reg {
	case "HL":
		rc.hl = nil
	case "DE":
		rc.de = nil
	}
}

// invalidateSlot mirrors zasm_regcache_invalidate_slot: a store just
// changed the memory a slot holds, so any register claiming to mirror
// that slot no longer does.
func (rc *regCache) invalidateSlot(sym string, width int64) {
	if rc.hl != nil && rc.hl.sym == sym && rc.hl.width == width {
		rc.hl = nil
	}
	if rc.de != nil && rc.de.sym == sym && rc.de.width == width {
		rc.de = nil
	}
}

// matchesSlot mirrors zasm_regcache_matches_slot.
func (rc *regCache) matchesSlot(reg, sym string, width int64) bool {
	var s *regSlot
	switch reg {
	case "HL":
		s = rc.hl
	case "DE":
		s = rc.de
	}
	return s != nil && s.sym == sym && s.width == width
}

// setSlot mirrors zasm_regcache_set_slot: record that reg now mirrors
// (sym, width) after a load or a store-then-keep.
func (rc *regCache) setSlot(reg, sym string, width int64) {
	slot := &regSlot{sym: sym, width: width}
	switch reg {
	case "HL":
		rc.hl = slot
	case "DE":
		rc.de = slot
	}
}
