package vm

import "testing"

func TestHeapLinksEveryAllocation(t *testing.T) {
	h := &heap{}
	objs := []*Object{
		h.newStringCopy("a"),
		h.newStruct([]Value{Int(1)}),
		h.newUpvalue(0),
	}

	if h.count != len(objs) {
		t.Fatalf("heap count = %d, want %d", h.count, len(objs))
	}

	// Every allocation must be discoverable from the list head.
	seen := make(map[*Object]bool)
	for o := h.head; o != nil; o = o.next {
		seen[o] = true
	}
	for i, o := range objs {
		if !seen[o] {
			t.Errorf("object %d not reachable from heap head", i)
		}
	}
}

func TestHeapFree(t *testing.T) {
	h := &heap{}
	str := h.newStringCopy("data")
	st := h.newStruct([]Value{Int(1), Int(2)})
	uv := h.newUpvalue(0)
	uv.open = false
	uv.closed = Int(9)

	h.free()

	if h.head != nil || h.count != 0 {
		t.Error("heap list should be empty after free")
	}
	if str.bytes != nil {
		t.Error("string payload should be released")
	}
	if st.fields != nil {
		t.Error("struct fields should be released")
	}
	if uv.closed.Tag() != TagNil {
		t.Error("closed upvalue storage should be released")
	}

	// Double free is a no-op.
	h.free()
}

func TestGlobalTable(t *testing.T) {
	var g globalTable

	if _, ok := g.get(0); ok {
		t.Error("unset slot should not read")
	}
	if !g.set(3, Int(7)) {
		t.Fatal("set within capacity should succeed")
	}
	v, ok := g.get(3)
	if !ok || v.AsInt() != 7 {
		t.Errorf("get(3) = %s, %t; want <int 7>, true", v, ok)
	}

	if g.set(GlobalMax, Int(1)) {
		t.Error("set past capacity should fail")
	}
	if _, ok := g.get(GlobalMax); ok {
		t.Error("get past capacity should fail")
	}
	if _, ok := g.get(-1); ok {
		t.Error("negative index should fail")
	}

	// Overwrites keep the slot present.
	g.set(3, Int(8))
	if v, _ := g.get(3); v.AsInt() != 8 {
		t.Error("overwrite should be visible")
	}
}
