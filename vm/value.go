package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// NumPrecision is the tolerance used by NUM comparisons and coercions.
const NumPrecision = 1e-7

// Tag discriminates the variants of a Value.
type Tag uint8

const (
	TagNil Tag = iota
	TagBool
	TagInt
	TagNum
	TagIP
	TagFP
	TagObj
)

var tagNames = [...]string{
	TagNil:  "nil",
	TagBool: "bool",
	TagInt:  "int",
	TagNum:  "num",
	TagIP:   "ip",
	TagFP:   "fp",
	TagObj:  "obj",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// Value is the tagged sum the stack machine computes over. A Value that
// lives in a stack slot additionally carries the head of the upvalue list
// attached to that slot; the list belongs to the slot, not to the payload,
// and every copy made off the stack drops it.
type Value struct {
	obj  *Object
	refs *Object
	num  float64
	addr int
	i32  int32
	b    bool
	tag  Tag
}

// Nil returns the NIL value.
func Nil() Value {
	return Value{tag: TagNil}
}

// Bool returns a BOOL value.
func Bool(b bool) Value {
	return Value{tag: TagBool, b: b}
}

// Int returns an INT value.
func Int(v int32) Value {
	return Value{tag: TagInt, i32: v}
}

// Num returns a NUM value.
func Num(v float64) Value {
	return Value{tag: TagNum, num: v}
}

// ipValue suspends a code offset for the call protocol.
func ipValue(offset int) Value {
	return Value{tag: TagIP, addr: offset}
}

// fpValue suspends a frame pointer for the call protocol.
func fpValue(slot int) Value {
	return Value{tag: TagFP, addr: slot}
}

func objValue(o *Object) Value {
	return Value{tag: TagObj, obj: o}
}

// Tag returns the value's variant tag.
func (v Value) Tag() Tag {
	return v.tag
}

// AsBool reads the BOOL payload. Only meaningful when Tag() == TagBool.
func (v Value) AsBool() bool { return v.b }

// AsInt reads the INT payload. Only meaningful when Tag() == TagInt.
func (v Value) AsInt() int32 { return v.i32 }

// AsNum reads the NUM payload. Only meaningful when Tag() == TagNum.
func (v Value) AsNum() float64 { return v.num }

func (v Value) isObj(kind ObjectKind) bool {
	return v.tag == TagObj && v.obj.kind == kind
}

// stripRefs returns the value without its slot reference list, for copies
// that leave the originating stack slot.
func (v Value) stripRefs() Value {
	v.refs = nil
	return v
}

// Equals implements value equality: values of different tags are unequal;
// NUM compares exactly with no epsilon (IEEE-754 ==, so NaN is unequal to
// itself); IP, FP and OBJ compare by identity.
func (v Value) Equals(other Value) bool {
	if v.tag != other.tag {
		return false
	}
	switch v.tag {
	case TagNil:
		return true
	case TagBool:
		return v.b == other.b
	case TagInt:
		return v.i32 == other.i32
	case TagNum:
		return v.num == other.num
	case TagIP, TagFP:
		return v.addr == other.addr
	case TagObj:
		return v.obj == other.obj
	default:
		return false
	}
}

// formatNum renders a float with up to seven fractional digits, trailing
// zeros trimmed.
func formatNum(x float64) string {
	s := strconv.FormatFloat(x, 'f', 7, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// String renders the value for diagnostics and the debugger panes. This is
// the display form; the STR opcode goes through (*VM).stringify instead.
func (v Value) String() string {
	switch v.tag {
	case TagNil:
		return "nil"
	case TagBool:
		return fmt.Sprintf("<bool %t>", v.b)
	case TagInt:
		return fmt.Sprintf("<int %d>", v.i32)
	case TagNum:
		return fmt.Sprintf("<num %s>", formatNum(v.num))
	case TagIP:
		return fmt.Sprintf("<ip %d>", v.addr)
	case TagFP:
		return fmt.Sprintf("<fp %d>", v.addr)
	case TagObj:
		switch v.obj.kind {
		case ObjString:
			return fmt.Sprintf("<str %q>", v.obj.bytes)
		case ObjStruct:
			return fmt.Sprintf("<struct %d>", len(v.obj.fields))
		case ObjUpvalue:
			if v.obj.open {
				return fmt.Sprintf("<upvalue @%d>", v.obj.slot)
			}
			return "<upvalue closed>"
		}
	}
	return "<invalid>"
}
