package vm

import (
	"encoding/binary"
	"math"

	"github.com/clear-lang/clearvm/bytecode"
	"github.com/clear-lang/clearvm/errors"
)

// loadConstants parses the blob prelude into vm.constants and returns the
// byte offset at which code begins. All multi-byte encodings are
// little-endian.
func (vm *VM) loadConstants(blob []byte) (int, error) {
	if len(blob) == 0 {
		return 0, errors.Truncated(errors.PhaseLoad, "constant count", 0)
	}

	count := int(blob[0])
	offset := 1

	vm.constants = make([]Value, count)

	for i := 0; i < count; i++ {
		if offset >= len(blob) {
			return 0, errors.Truncated(errors.PhaseLoad, "constant tag", offset)
		}
		tag := blob[offset]
		offset++

		switch tag {
		case bytecode.ConstInt:
			if offset+4 > len(blob) {
				return 0, errors.Truncated(errors.PhaseLoad, "constant integer", offset)
			}
			v := int32(binary.LittleEndian.Uint32(blob[offset:]))
			vm.constants[i] = Int(v)
			offset += 4

		case bytecode.ConstNum:
			if offset+8 > len(blob) {
				return 0, errors.Truncated(errors.PhaseLoad, "constant number", offset)
			}
			v := math.Float64frombits(binary.LittleEndian.Uint64(blob[offset:]))
			vm.constants[i] = Num(v)
			offset += 8

		case bytecode.ConstStr:
			if offset >= len(blob) {
				return 0, errors.Truncated(errors.PhaseLoad, "constant string length", offset)
			}
			length := int(blob[offset])
			offset++
			if offset+length > len(blob) {
				return 0, errors.Truncated(errors.PhaseLoad, "constant string", offset)
			}
			data := make([]byte, length)
			copy(data, blob[offset:offset+length])
			vm.constants[i] = objValue(vm.heap.newString(data))
			offset += length

		default:
			return 0, errors.UnknownConstant(tag, offset-1)
		}
	}

	return offset, nil
}
