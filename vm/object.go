package vm

// ObjectKind discriminates heap object payloads.
type ObjectKind uint8

const (
	ObjString ObjectKind = iota
	ObjStruct
	ObjUpvalue
)

var objectKindNames = [...]string{
	ObjString:  "string",
	ObjStruct:  "struct",
	ObjUpvalue: "upvalue",
}

func (k ObjectKind) String() string {
	if int(k) < len(objectKindNames) {
		return objectKindNames[k]
	}
	return "unknown"
}

// Object is a heap allocation. Every object is linked into the owning VM's
// object list at creation and released exactly once at teardown; there is
// no per-object free during execution.
//
// The payload fields form a union discriminated by kind:
//
//	ObjString   bytes
//	ObjStruct   fields
//	ObjUpvalue  slot/open/closed, plus nextRef linking the cell into the
//	            reference list of the stack slot it captures
type Object struct {
	next *Object
	kind ObjectKind

	bytes []byte

	fields []Value

	nextRef *Object
	closed  Value
	slot    int
	open    bool
}

// Kind returns the object's payload discriminator.
func (o *Object) Kind() ObjectKind {
	return o.kind
}

// heap owns the intrusive object list. Allocation links at the head so
// every live object stays discoverable until free.
type heap struct {
	head  *Object
	count int
}

func (h *heap) link(o *Object) *Object {
	o.next = h.head
	h.head = o
	h.count++
	return o
}

func (h *heap) newString(bytes []byte) *Object {
	return h.link(&Object{kind: ObjString, bytes: bytes})
}

func (h *heap) newStringCopy(s string) *Object {
	return h.newString([]byte(s))
}

func (h *heap) newStruct(fields []Value) *Object {
	return h.link(&Object{kind: ObjStruct, fields: fields})
}

func (h *heap) newUpvalue(slot int) *Object {
	return h.link(&Object{kind: ObjUpvalue, slot: slot, open: true})
}

// free walks the object list invoking the per-kind destructor. The list
// head is cleared so a second call is a no-op.
func (h *heap) free() {
	for o := h.head; o != nil; {
		next := o.next
		switch o.kind {
		case ObjString:
			o.bytes = nil
		case ObjStruct:
			o.fields = nil
		case ObjUpvalue:
			o.closed = Nil()
			o.nextRef = nil
		}
		o.next = nil
		o = next
	}
	h.head = nil
	h.count = 0
}
