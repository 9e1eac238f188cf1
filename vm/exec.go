package vm

import (
	"fmt"

	"github.com/clear-lang/clearvm/bytecode"
	"github.com/clear-lang/clearvm/errors"
)

func (vm *VM) wireDispatch() {
	for i := range vm.dispatch {
		vm.dispatch[i] = opInvalid
	}

	vm.dispatch[bytecode.OpPushConst] = opPushConst
	vm.dispatch[bytecode.OpPushTrue] = opPushTrue
	vm.dispatch[bytecode.OpPushFalse] = opPushFalse
	vm.dispatch[bytecode.OpPushNil] = opPushNil

	vm.dispatch[bytecode.OpSetGlobal] = opSetGlobal
	vm.dispatch[bytecode.OpPushGlobal] = opPushGlobal
	vm.dispatch[bytecode.OpSetLocal] = opSetLocal
	vm.dispatch[bytecode.OpPushLocal] = opPushLocal

	vm.dispatch[bytecode.OpInt] = opInt
	vm.dispatch[bytecode.OpBool] = opBool
	vm.dispatch[bytecode.OpNum] = opNum
	vm.dispatch[bytecode.OpStr] = opStr
	vm.dispatch[bytecode.OpClock] = opClock

	vm.dispatch[bytecode.OpPrint] = opPrint
	vm.dispatch[bytecode.OpPop] = opPop

	vm.dispatch[bytecode.OpIntNeg] = opIntNeg
	vm.dispatch[bytecode.OpNumNeg] = opNumNeg
	vm.dispatch[bytecode.OpIntAdd] = opIntAdd
	vm.dispatch[bytecode.OpNumAdd] = opNumAdd
	vm.dispatch[bytecode.OpIntSub] = opIntSub
	vm.dispatch[bytecode.OpNumSub] = opNumSub
	vm.dispatch[bytecode.OpIntMul] = opIntMul
	vm.dispatch[bytecode.OpNumMul] = opNumMul
	vm.dispatch[bytecode.OpIntDiv] = opIntDiv
	vm.dispatch[bytecode.OpNumDiv] = opNumDiv
	vm.dispatch[bytecode.OpStrCat] = opStrCat
	vm.dispatch[bytecode.OpNot] = opNot

	vm.dispatch[bytecode.OpIntLess] = opIntLess
	vm.dispatch[bytecode.OpNumLess] = opNumLess
	vm.dispatch[bytecode.OpIntGreater] = opIntGreater
	vm.dispatch[bytecode.OpNumGreater] = opNumGreater
	vm.dispatch[bytecode.OpEqual] = opEqual

	vm.dispatch[bytecode.OpJump] = opJump
	vm.dispatch[bytecode.OpJumpIfFalse] = opJumpIfFalse
	vm.dispatch[bytecode.OpLoop] = opLoop

	vm.dispatch[bytecode.OpFunction] = opFunction
	vm.dispatch[bytecode.OpCall] = opCall
	vm.dispatch[bytecode.OpLoadIP] = opLoadIP
	vm.dispatch[bytecode.OpLoadFP] = opLoadFP
	vm.dispatch[bytecode.OpSetReturn] = opSetReturn
	vm.dispatch[bytecode.OpPushReturn] = opPushReturn

	vm.dispatch[bytecode.OpStruct] = opStruct
	vm.dispatch[bytecode.OpGetField] = opGetField
	vm.dispatch[bytecode.OpExtractField] = opExtractField
	vm.dispatch[bytecode.OpSetField] = opSetField

	vm.dispatch[bytecode.OpRefLocal] = opRefLocal
	vm.dispatch[bytecode.OpDeref] = opDeref
	vm.dispatch[bytecode.OpSetRef] = opSetRef
}

func opInvalid(vm *VM) error {
	return errors.UnknownOpcode(vm.code[vm.opOffset], vm.opOffset)
}

// describe names a value's variant for type mismatch diagnostics,
// distinguishing object kinds.
func describe(v Value) string {
	if v.tag == TagObj {
		return v.obj.kind.String()
	}
	return v.tag.String()
}

// Constants and literals

func opPushConst(vm *VM) error {
	index, err := vm.readByte(bytecode.OpPushConst)
	if err != nil {
		return err
	}
	if int(index) >= len(vm.constants) {
		return errors.OutOfBounds(bytecode.OpPushConst.String(), "constant", int(index), len(vm.constants))
	}
	return vm.push(vm.constants[index], bytecode.OpPushConst)
}

func opPushTrue(vm *VM) error {
	return vm.push(Bool(true), bytecode.OpPushTrue)
}

func opPushFalse(vm *VM) error {
	return vm.push(Bool(false), bytecode.OpPushFalse)
}

func opPushNil(vm *VM) error {
	return vm.push(Nil(), bytecode.OpPushNil)
}

// Variables

func opSetGlobal(vm *VM) error {
	index, err := vm.readByte(bytecode.OpSetGlobal)
	if err != nil {
		return err
	}
	v, err := vm.pop(bytecode.OpSetGlobal)
	if err != nil {
		return err
	}
	if !vm.globals.set(int(index), v.stripRefs()) {
		return errors.OutOfBounds(bytecode.OpSetGlobal.String(), "global", int(index), GlobalMax)
	}
	return nil
}

func opPushGlobal(vm *VM) error {
	index, err := vm.readByte(bytecode.OpPushGlobal)
	if err != nil {
		return err
	}
	v, ok := vm.globals.get(int(index))
	if !ok {
		return errors.UndefinedGlobal(bytecode.OpPushGlobal.String(), int(index))
	}
	return vm.push(v, bytecode.OpPushGlobal)
}

func opSetLocal(vm *VM) error {
	index, err := vm.readByte(bytecode.OpSetLocal)
	if err != nil {
		return err
	}
	v, err := vm.pop(bytecode.OpSetLocal)
	if err != nil {
		return err
	}
	if int(index) >= vm.sp-vm.fp {
		return errors.OutOfBounds(bytecode.OpSetLocal.String(), "local", int(index), vm.sp-vm.fp)
	}
	replaceSlot(&vm.stack[vm.fp+int(index)], v.stripRefs())
	return nil
}

func opPushLocal(vm *VM) error {
	index, err := vm.readByte(bytecode.OpPushLocal)
	if err != nil {
		return err
	}
	if int(index) >= vm.sp-vm.fp {
		return errors.OutOfBounds(bytecode.OpPushLocal.String(), "local", int(index), vm.sp-vm.fp)
	}
	return vm.push(vm.stack[vm.fp+int(index)].stripRefs(), bytecode.OpPushLocal)
}

// Type coercions

func opInt(vm *VM) error {
	p, err := vm.peek(0, bytecode.OpInt)
	if err != nil {
		return err
	}
	switch p.tag {
	case TagInt:
	case TagBool:
		if p.b {
			replaceSlot(p, Int(1))
		} else {
			replaceSlot(p, Int(0))
		}
	case TagNil:
		replaceSlot(p, Int(0))
	case TagNum:
		replaceSlot(p, Int(int32(p.num)))
	default:
		return errors.TypeMismatch(bytecode.OpInt.String(), "a coercible value", describe(*p))
	}
	return nil
}

func opBool(vm *VM) error {
	p, err := vm.peek(0, bytecode.OpBool)
	if err != nil {
		return err
	}
	switch p.tag {
	case TagBool:
	case TagInt:
		replaceSlot(p, Bool(p.i32 != 0))
	case TagNil:
		replaceSlot(p, Bool(false))
	case TagNum:
		x := p.num
		if x < 0 {
			x = -x
		}
		replaceSlot(p, Bool(x >= NumPrecision))
	default:
		return errors.TypeMismatch(bytecode.OpBool.String(), "a coercible value", describe(*p))
	}
	return nil
}

func opNum(vm *VM) error {
	p, err := vm.peek(0, bytecode.OpNum)
	if err != nil {
		return err
	}
	switch p.tag {
	case TagNum:
	case TagBool:
		if p.b {
			replaceSlot(p, Num(1))
		} else {
			replaceSlot(p, Num(0))
		}
	case TagNil:
		replaceSlot(p, Num(0))
	case TagInt:
		replaceSlot(p, Num(float64(p.i32)))
	default:
		return errors.TypeMismatch(bytecode.OpNum.String(), "a coercible value", describe(*p))
	}
	return nil
}

func opStr(vm *VM) error {
	p, err := vm.peek(0, bytecode.OpStr)
	if err != nil {
		return err
	}
	s, err := vm.stringify(*p, bytecode.OpStr)
	if err != nil {
		return err
	}
	replaceSlot(p, s)
	return nil
}

// Built-ins

func opClock(vm *VM) error {
	return vm.push(Num(vm.clock()), bytecode.OpClock)
}

// Statements

func opPrint(vm *VM) error {
	v, err := vm.pop(bytecode.OpPrint)
	if err != nil {
		return err
	}
	if !v.isObj(ObjString) {
		return errors.TypeMismatch(bytecode.OpPrint.String(), "string", describe(v))
	}
	fmt.Fprintf(vm.stdout, "%s\n", v.obj.bytes)
	return nil
}

func opPop(vm *VM) error {
	v, err := vm.pop(bytecode.OpPop)
	if err != nil {
		return err
	}
	vm.closeUpvalues(v)
	return nil
}

// Arithmetic

func (vm *VM) intUnary(op bytecode.Opcode, fn func(int32) int32) error {
	p, err := vm.peek(0, op)
	if err != nil {
		return err
	}
	if p.tag != TagInt {
		return errors.TypeMismatch(op.String(), "int", describe(*p))
	}
	p.i32 = fn(p.i32)
	return nil
}

func (vm *VM) numUnary(op bytecode.Opcode, fn func(float64) float64) error {
	p, err := vm.peek(0, op)
	if err != nil {
		return err
	}
	if p.tag != TagNum {
		return errors.TypeMismatch(op.String(), "num", describe(*p))
	}
	p.num = fn(p.num)
	return nil
}

// intBinary pops the right operand and combines it into the left in place.
func (vm *VM) intBinary(op bytecode.Opcode, fn func(a, b int32) int32) error {
	rhs, err := vm.pop(op)
	if err != nil {
		return err
	}
	lhs, err := vm.peek(0, op)
	if err != nil {
		return err
	}
	if rhs.tag != TagInt {
		return errors.TypeMismatch(op.String(), "int", describe(rhs))
	}
	if lhs.tag != TagInt {
		return errors.TypeMismatch(op.String(), "int", describe(*lhs))
	}
	lhs.i32 = fn(lhs.i32, rhs.i32)
	return nil
}

func (vm *VM) numBinary(op bytecode.Opcode, fn func(a, b float64) float64) error {
	rhs, err := vm.pop(op)
	if err != nil {
		return err
	}
	lhs, err := vm.peek(0, op)
	if err != nil {
		return err
	}
	if rhs.tag != TagNum {
		return errors.TypeMismatch(op.String(), "num", describe(rhs))
	}
	if lhs.tag != TagNum {
		return errors.TypeMismatch(op.String(), "num", describe(*lhs))
	}
	lhs.num = fn(lhs.num, rhs.num)
	return nil
}

func opIntNeg(vm *VM) error {
	return vm.intUnary(bytecode.OpIntNeg, func(a int32) int32 { return -a })
}

func opNumNeg(vm *VM) error {
	return vm.numUnary(bytecode.OpNumNeg, func(a float64) float64 { return -a })
}

func opIntAdd(vm *VM) error {
	return vm.intBinary(bytecode.OpIntAdd, func(a, b int32) int32 { return a + b })
}

func opNumAdd(vm *VM) error {
	return vm.numBinary(bytecode.OpNumAdd, func(a, b float64) float64 { return a + b })
}

func opIntSub(vm *VM) error {
	return vm.intBinary(bytecode.OpIntSub, func(a, b int32) int32 { return a - b })
}

func opNumSub(vm *VM) error {
	return vm.numBinary(bytecode.OpNumSub, func(a, b float64) float64 { return a - b })
}

func opIntMul(vm *VM) error {
	return vm.intBinary(bytecode.OpIntMul, func(a, b int32) int32 { return a * b })
}

func opNumMul(vm *VM) error {
	return vm.numBinary(bytecode.OpNumMul, func(a, b float64) float64 { return a * b })
}

func opIntDiv(vm *VM) error {
	rhs, err := vm.pop(bytecode.OpIntDiv)
	if err != nil {
		return err
	}
	lhs, err := vm.peek(0, bytecode.OpIntDiv)
	if err != nil {
		return err
	}
	if rhs.tag != TagInt {
		return errors.TypeMismatch(bytecode.OpIntDiv.String(), "int", describe(rhs))
	}
	if lhs.tag != TagInt {
		return errors.TypeMismatch(bytecode.OpIntDiv.String(), "int", describe(*lhs))
	}
	if rhs.i32 == 0 {
		return errors.DivisionByZero(bytecode.OpIntDiv.String(), vm.opOffset)
	}
	lhs.i32 /= rhs.i32
	return nil
}

// Float division follows IEEE-754; division by zero yields an infinity.
func opNumDiv(vm *VM) error {
	return vm.numBinary(bytecode.OpNumDiv, func(a, b float64) float64 { return a / b })
}

func opStrCat(vm *VM) error {
	rhs, err := vm.pop(bytecode.OpStrCat)
	if err != nil {
		return err
	}
	lhs, err := vm.peek(0, bytecode.OpStrCat)
	if err != nil {
		return err
	}
	if !rhs.isObj(ObjString) {
		return errors.TypeMismatch(bytecode.OpStrCat.String(), "string", describe(rhs))
	}
	if !lhs.isObj(ObjString) {
		return errors.TypeMismatch(bytecode.OpStrCat.String(), "string", describe(*lhs))
	}
	joined := make([]byte, 0, len(lhs.obj.bytes)+len(rhs.obj.bytes))
	joined = append(joined, lhs.obj.bytes...)
	joined = append(joined, rhs.obj.bytes...)
	replaceSlot(lhs, objValue(vm.heap.newString(joined)))
	return nil
}

// Comparison

func opNot(vm *VM) error {
	p, err := vm.peek(0, bytecode.OpNot)
	if err != nil {
		return err
	}
	if p.tag != TagBool {
		return errors.TypeMismatch(bytecode.OpNot.String(), "bool", describe(*p))
	}
	p.b = !p.b
	return nil
}

func (vm *VM) intCompare(op bytecode.Opcode, fn func(a, b int32) bool) error {
	rhs, err := vm.pop(op)
	if err != nil {
		return err
	}
	lhs, err := vm.peek(0, op)
	if err != nil {
		return err
	}
	if rhs.tag != TagInt {
		return errors.TypeMismatch(op.String(), "int", describe(rhs))
	}
	if lhs.tag != TagInt {
		return errors.TypeMismatch(op.String(), "int", describe(*lhs))
	}
	replaceSlot(lhs, Bool(fn(lhs.i32, rhs.i32)))
	return nil
}

func (vm *VM) numCompare(op bytecode.Opcode, fn func(a, b float64) bool) error {
	rhs, err := vm.pop(op)
	if err != nil {
		return err
	}
	lhs, err := vm.peek(0, op)
	if err != nil {
		return err
	}
	if rhs.tag != TagNum {
		return errors.TypeMismatch(op.String(), "num", describe(rhs))
	}
	if lhs.tag != TagNum {
		return errors.TypeMismatch(op.String(), "num", describe(*lhs))
	}
	replaceSlot(lhs, Bool(fn(lhs.num, rhs.num)))
	return nil
}

func opIntLess(vm *VM) error {
	return vm.intCompare(bytecode.OpIntLess, func(a, b int32) bool { return a < b })
}

// NUM comparisons carry the epsilon tolerance: a is less than b only when
// it clears b by more than NumPrecision.
func opNumLess(vm *VM) error {
	return vm.numCompare(bytecode.OpNumLess, func(a, b float64) bool { return a < b-NumPrecision })
}

func opIntGreater(vm *VM) error {
	return vm.intCompare(bytecode.OpIntGreater, func(a, b int32) bool { return a > b })
}

func opNumGreater(vm *VM) error {
	return vm.numCompare(bytecode.OpNumGreater, func(a, b float64) bool { return a > b+NumPrecision })
}

func opEqual(vm *VM) error {
	rhs, err := vm.pop(bytecode.OpEqual)
	if err != nil {
		return err
	}
	lhs, err := vm.peek(0, bytecode.OpEqual)
	if err != nil {
		return err
	}
	replaceSlot(lhs, Bool(lhs.Equals(rhs)))
	return nil
}

// Control flow

func opJump(vm *VM) error {
	distance, err := vm.readByte(bytecode.OpJump)
	if err != nil {
		return err
	}
	target := vm.ip + int(distance)
	if target > vm.end {
		return errors.CodeRange(bytecode.OpJump.String(), target, vm.start, vm.end)
	}
	vm.ip = target
	return nil
}

func opJumpIfFalse(vm *VM) error {
	distance, err := vm.readByte(bytecode.OpJumpIfFalse)
	if err != nil {
		return err
	}
	cond, err := vm.pop(bytecode.OpJumpIfFalse)
	if err != nil {
		return err
	}
	if cond.tag != TagBool {
		return errors.TypeMismatch(bytecode.OpJumpIfFalse.String(), "bool", describe(cond))
	}
	if !cond.b {
		target := vm.ip + int(distance)
		if target > vm.end {
			return errors.CodeRange(bytecode.OpJumpIfFalse.String(), target, vm.start, vm.end)
		}
		vm.ip = target
	}
	return nil
}

func opLoop(vm *VM) error {
	distance, err := vm.readByte(bytecode.OpLoop)
	if err != nil {
		return err
	}
	target := vm.ip - int(distance)
	if target < vm.start {
		return errors.CodeRange(bytecode.OpLoop.String(), target, vm.start, vm.end)
	}
	vm.ip = target
	return nil
}

// Functions

func opFunction(vm *VM) error {
	distance, err := vm.readByte(bytecode.OpFunction)
	if err != nil {
		return err
	}
	entry := vm.ip
	if err := vm.push(ipValue(entry), bytecode.OpFunction); err != nil {
		return err
	}
	vm.ip += int(distance)
	return nil
}

func opCall(vm *VM) error {
	paramCount, err := vm.readByte(bytecode.OpCall)
	if err != nil {
		return err
	}
	callee, err := vm.pop(bytecode.OpCall)
	if err != nil {
		return err
	}
	if callee.tag != TagIP {
		return errors.TypeMismatch(bytecode.OpCall.String(), "ip", describe(callee))
	}

	params := make([]Value, paramCount)
	for i := int(paramCount) - 1; i >= 0; i-- {
		v, err := vm.pop(bytecode.OpCall)
		if err != nil {
			return err
		}
		params[i] = v
	}

	if err := vm.push(ipValue(vm.ip), bytecode.OpCall); err != nil {
		return err
	}
	if err := vm.push(fpValue(vm.fp), bytecode.OpCall); err != nil {
		return err
	}

	vm.fp = vm.sp
	vm.ip = callee.addr

	for _, p := range params {
		if err := vm.push(p, bytecode.OpCall); err != nil {
			return err
		}
	}
	return nil
}

func opLoadIP(vm *VM) error {
	v, err := vm.pop(bytecode.OpLoadIP)
	if err != nil {
		return err
	}
	if v.tag != TagIP {
		return errors.TypeMismatch(bytecode.OpLoadIP.String(), "ip", describe(v))
	}
	vm.ip = v.addr
	return nil
}

func opLoadFP(vm *VM) error {
	v, err := vm.pop(bytecode.OpLoadFP)
	if err != nil {
		return err
	}
	if v.tag != TagFP {
		return errors.TypeMismatch(bytecode.OpLoadFP.String(), "fp", describe(v))
	}
	vm.fp = v.addr
	return nil
}

func opSetReturn(vm *VM) error {
	v, err := vm.pop(bytecode.OpSetReturn)
	if err != nil {
		return err
	}
	vm.ret = v.stripRefs()
	return nil
}

func opPushReturn(vm *VM) error {
	return vm.push(vm.ret, bytecode.OpPushReturn)
}

// Structs

func opStruct(vm *VM) error {
	fieldCount, err := vm.readByte(bytecode.OpStruct)
	if err != nil {
		return err
	}
	fields := make([]Value, fieldCount)
	for i := int(fieldCount) - 1; i >= 0; i-- {
		v, err := vm.pop(bytecode.OpStruct)
		if err != nil {
			return err
		}
		fields[i] = v.stripRefs()
	}
	return vm.push(objValue(vm.heap.newStruct(fields)), bytecode.OpStruct)
}

func opGetField(vm *VM) error {
	index, err := vm.readByte(bytecode.OpGetField)
	if err != nil {
		return err
	}
	v, err := vm.pop(bytecode.OpGetField)
	if err != nil {
		return err
	}
	if !v.isObj(ObjStruct) {
		return errors.TypeMismatch(bytecode.OpGetField.String(), "struct", describe(v))
	}
	if int(index) >= len(v.obj.fields) {
		return errors.OutOfBounds(bytecode.OpGetField.String(), "field", int(index), len(v.obj.fields))
	}
	return vm.push(v.obj.fields[index], bytecode.OpGetField)
}

func opExtractField(vm *VM) error {
	depth, err := vm.readByte(bytecode.OpExtractField)
	if err != nil {
		return err
	}
	index, err := vm.readByte(bytecode.OpExtractField)
	if err != nil {
		return err
	}
	p, err := vm.peek(int(depth), bytecode.OpExtractField)
	if err != nil {
		return err
	}
	if !p.isObj(ObjStruct) {
		return errors.TypeMismatch(bytecode.OpExtractField.String(), "struct", describe(*p))
	}
	if int(index) >= len(p.obj.fields) {
		return errors.OutOfBounds(bytecode.OpExtractField.String(), "field", int(index), len(p.obj.fields))
	}
	return vm.push(p.obj.fields[index], bytecode.OpExtractField)
}

func opSetField(vm *VM) error {
	index, err := vm.readByte(bytecode.OpSetField)
	if err != nil {
		return err
	}
	v, err := vm.pop(bytecode.OpSetField)
	if err != nil {
		return err
	}
	p, err := vm.peek(0, bytecode.OpSetField)
	if err != nil {
		return err
	}
	if !p.isObj(ObjStruct) {
		return errors.TypeMismatch(bytecode.OpSetField.String(), "struct", describe(*p))
	}
	if int(index) >= len(p.obj.fields) {
		return errors.OutOfBounds(bytecode.OpSetField.String(), "field", int(index), len(p.obj.fields))
	}
	p.obj.fields[index] = v.stripRefs()
	return nil
}

// Upvalues

func opRefLocal(vm *VM) error {
	index, err := vm.readByte(bytecode.OpRefLocal)
	if err != nil {
		return err
	}
	if int(index) >= vm.sp-vm.fp {
		return errors.OutOfBounds(bytecode.OpRefLocal.String(), "local", int(index), vm.sp-vm.fp)
	}
	slot := vm.fp + int(index)
	cell := vm.heap.newUpvalue(slot)
	cell.nextRef = vm.stack[slot].refs
	vm.stack[slot].refs = cell
	return vm.push(objValue(cell), bytecode.OpRefLocal)
}

func opDeref(vm *VM) error {
	p, err := vm.peek(0, bytecode.OpDeref)
	if err != nil {
		return err
	}
	if !p.isObj(ObjUpvalue) {
		return errors.TypeMismatch(bytecode.OpDeref.String(), "upvalue", describe(*p))
	}
	replaceSlot(p, vm.upvalueRead(p.obj))
	return nil
}

func opSetRef(vm *VM) error {
	v, err := vm.pop(bytecode.OpSetRef)
	if err != nil {
		return err
	}
	uv, err := vm.pop(bytecode.OpSetRef)
	if err != nil {
		return err
	}
	if !uv.isObj(ObjUpvalue) {
		return errors.TypeMismatch(bytecode.OpSetRef.String(), "upvalue", describe(uv))
	}
	vm.upvalueWrite(uv.obj, v)
	return nil
}
