package bytecode

import (
	"encoding/binary"
	"math"

	"github.com/clear-lang/clearvm/errors"
)

// Builder assembles a program blob: a constant pool prelude followed by an
// instruction stream. Jump distances are patched after the fact, the way a
// single-pass producer would.
type Builder struct {
	consts []byte
	code   []byte
	count  int
	err    error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) nextConst() byte {
	index := byte(b.count)
	b.count++
	if b.count > math.MaxUint8 && b.err == nil {
		b.err = errors.New(errors.PhaseLoad, errors.KindOutOfBounds).
			Detail("constant pool exceeds %d entries", math.MaxUint8).
			Build()
	}
	return index
}

// Int appends an INT constant record and returns its pool index.
func (b *Builder) Int(v int32) byte {
	index := b.nextConst()
	b.consts = append(b.consts, ConstInt)
	b.consts = binary.LittleEndian.AppendUint32(b.consts, uint32(v))
	return index
}

// Num appends a NUM constant record and returns its pool index.
func (b *Builder) Num(v float64) byte {
	index := b.nextConst()
	b.consts = append(b.consts, ConstNum)
	b.consts = binary.LittleEndian.AppendUint64(b.consts, math.Float64bits(v))
	return index
}

// Str appends a STR constant record and returns its pool index.
func (b *Builder) Str(s string) byte {
	index := b.nextConst()
	if len(s) > math.MaxUint8 && b.err == nil {
		b.err = errors.New(errors.PhaseLoad, errors.KindOutOfBounds).
			Detail("string constant of %d bytes exceeds %d", len(s), math.MaxUint8).
			Build()
	}
	b.consts = append(b.consts, ConstStr, byte(len(s)))
	b.consts = append(b.consts, s...)
	return index
}

// Emit appends an opcode and its operand bytes.
func (b *Builder) Emit(op Opcode, operands ...byte) *Builder {
	if len(operands) != op.OperandCount() && b.err == nil {
		b.err = errors.New(errors.PhaseLoad, errors.KindTruncated).
			Op(op.String()).
			Detail("want %d operand bytes, got %d", op.OperandCount(), len(operands)).
			Build()
	}
	b.code = append(b.code, byte(op))
	b.code = append(b.code, operands...)
	return b
}

// EmitJump appends a forward jump with a placeholder distance and returns
// the offset of the operand byte for PatchJump.
func (b *Builder) EmitJump(op Opcode) int {
	b.code = append(b.code, byte(op), 0xFF)
	return len(b.code) - 1
}

// PatchJump fixes a placeholder emitted by EmitJump so the jump lands on
// the next instruction to be emitted.
func (b *Builder) PatchJump(operandPos int) {
	distance := len(b.code) - (operandPos + 1)
	if distance > math.MaxUint8 && b.err == nil {
		b.err = errors.New(errors.PhaseLoad, errors.KindCodeRange).
			Detail("jump distance %d exceeds one byte", distance).
			Build()
	}
	b.code[operandPos] = byte(distance)
}

// Mark returns the code offset of the next instruction, for EmitLoop.
func (b *Builder) Mark() int {
	return len(b.code)
}

// EmitLoop appends a backward LOOP whose distance lands on mark.
func (b *Builder) EmitLoop(mark int) {
	distance := len(b.code) + 2 - mark
	if distance > math.MaxUint8 && b.err == nil {
		b.err = errors.New(errors.PhaseLoad, errors.KindCodeRange).
			Detail("loop distance %d exceeds one byte", distance).
			Build()
	}
	b.code = append(b.code, byte(OpLoop), byte(distance))
}

// Bytes returns the assembled blob, or the first assembly error.
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	blob := make([]byte, 0, 1+len(b.consts)+len(b.code))
	blob = append(blob, byte(b.count))
	blob = append(blob, b.consts...)
	blob = append(blob, b.code...)
	return blob, nil
}
