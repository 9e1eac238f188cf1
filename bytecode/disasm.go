package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Instruction is one decoded instruction, as rendered by Disassemble.
type Instruction struct {
	Offset   int
	Op       Opcode
	Operands []byte
}

// String renders the instruction in mnemonic form.
func (in Instruction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%04d %s", in.Offset, in.Op)
	for _, operand := range in.Operands {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(int(operand)))
	}
	return b.String()
}

// SkipConstants returns the offset at which code begins in blob, without
// materializing the constants. Malformed preludes yield ok == false.
func SkipConstants(blob []byte) (offset int, ok bool) {
	if len(blob) == 0 {
		return 0, false
	}
	count := int(blob[0])
	offset = 1
	for i := 0; i < count; i++ {
		if offset >= len(blob) {
			return 0, false
		}
		tag := blob[offset]
		offset++
		switch tag {
		case ConstInt:
			offset += 4
		case ConstNum:
			offset += 8
		case ConstStr:
			if offset >= len(blob) {
				return 0, false
			}
			offset += 1 + int(blob[offset])
		default:
			return 0, false
		}
		if offset > len(blob) {
			return 0, false
		}
	}
	return offset, true
}

// Disassemble decodes the instruction stream of blob, starting after the
// constant pool. Truncated trailing operands are rendered as far as the
// buffer allows.
func Disassemble(blob []byte) ([]Instruction, bool) {
	start, ok := SkipConstants(blob)
	if !ok {
		return nil, false
	}

	var out []Instruction
	offset := start
	for offset < len(blob) {
		op := Opcode(blob[offset])
		in := Instruction{Offset: offset, Op: op}
		offset++
		if op >= OpCount {
			out = append(out, in)
			return out, false
		}
		n := op.OperandCount()
		if offset+n > len(blob) {
			in.Operands = blob[offset:]
			out = append(out, in)
			return out, false
		}
		in.Operands = blob[offset : offset+n]
		offset += n
		out = append(out, in)
	}
	return out, true
}

// DumpConstants renders the constant pool prelude for display.
func DumpConstants(blob []byte) []string {
	if len(blob) == 0 {
		return nil
	}
	count := int(blob[0])
	offset := 1
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if offset >= len(blob) {
			break
		}
		tag := blob[offset]
		offset++
		switch tag {
		case ConstInt:
			if offset+4 > len(blob) {
				return out
			}
			v := int32(binary.LittleEndian.Uint32(blob[offset:]))
			out = append(out, fmt.Sprintf("#%d int %d", i, v))
			offset += 4
		case ConstNum:
			if offset+8 > len(blob) {
				return out
			}
			v := math.Float64frombits(binary.LittleEndian.Uint64(blob[offset:]))
			out = append(out, fmt.Sprintf("#%d num %g", i, v))
			offset += 8
		case ConstStr:
			if offset >= len(blob) {
				return out
			}
			n := int(blob[offset])
			offset++
			if offset+n > len(blob) {
				return out
			}
			out = append(out, fmt.Sprintf("#%d str %q", i, blob[offset:offset+n]))
			offset += n
		default:
			return out
		}
	}
	return out
}
