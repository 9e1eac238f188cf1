package vm

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/clear-lang/clearvm/bytecode"
	"github.com/clear-lang/clearvm/errors"
)

// StackMax is the fixed depth of the value stack.
const StackMax = 256

type handlerFunc func(*VM) error

// VM is a single-threaded ClearVM instance. It owns its value stack,
// globals, constant pool and object heap exclusively; nothing is shared
// between instances.
type VM struct {
	code  []byte
	start int
	end   int

	ip int
	fp int
	sp int

	stack [StackMax]Value
	ret   Value

	constants []Value
	globals   globalTable
	heap      heap

	dispatch [bytecode.OpCount]handlerFunc

	// opOffset is the offset of the opcode byte currently being executed,
	// for diagnostics.
	opOffset int

	// failed latches the first handler failure; execution is not
	// resumable afterwards.
	failed error

	stdout io.Writer
	stderr io.Writer
	clock  func() float64
	log    *zap.Logger
}

// Option configures a VM at construction.
type Option func(*VM)

// WithStdout redirects PRINT output. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(vm *VM) { vm.stdout = w }
}

// WithStderr redirects failure diagnostics. Defaults to os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(vm *VM) { vm.stderr = w }
}

// WithClock overrides the CLOCK time source (seconds).
func WithClock(fn func() float64) Option {
	return func(vm *VM) { vm.clock = fn }
}

// WithLogger overrides the package logger for this instance.
func WithLogger(l *zap.Logger) Option {
	return func(vm *VM) { vm.log = l }
}

// New allocates a VM and wires its dispatch table.
func New(opts ...Option) *VM {
	started := time.Now()
	vm := &VM{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		clock:    func() float64 { return time.Since(started).Seconds() },
		opOffset: -1,
	}
	vm.ret = Nil()
	vm.wireDispatch()
	for _, opt := range opts {
		opt(vm)
	}
	if vm.log == nil {
		vm.log = Logger()
	}
	return vm
}

// Load parses the constant pool of blob and positions the cursor at the
// first instruction. Execution state from a previous Load is reset; the
// heap and globals persist until Close.
func (vm *VM) Load(blob []byte) error {
	index, err := vm.loadConstants(blob)
	if err != nil {
		vm.diagnose(err)
		return err
	}

	vm.code = blob
	vm.start = index
	vm.end = len(blob)
	vm.ip = index
	vm.fp = 0
	vm.sp = 0
	vm.ret = Nil()
	vm.failed = nil

	vm.log.Debug("program loaded",
		zap.Int("constants", len(vm.constants)),
		zap.Int("codeStart", vm.start),
		zap.Int("codeLen", vm.end-vm.start))

	return nil
}

// Step executes exactly one instruction. It reports whether more
// instructions remain. A handler failure halts execution permanently.
func (vm *VM) Step() (bool, error) {
	if vm.failed != nil {
		return false, vm.failed
	}
	if vm.ip >= vm.end {
		return false, nil
	}

	vm.opOffset = vm.ip
	opByte := vm.code[vm.ip]
	vm.ip++

	if opByte >= byte(bytecode.OpCount) {
		err := errors.UnknownOpcode(opByte, vm.opOffset)
		vm.failed = err
		vm.diagnose(err)
		return false, err
	}

	op := bytecode.Opcode(opByte)
	if ce := vm.log.Check(zap.DebugLevel, "dispatch"); ce != nil {
		ce.Write(
			zap.Stringer("op", op),
			zap.Int("offset", vm.opOffset),
			zap.Int("sp", vm.sp),
			zap.Int("fp", vm.fp))
	}

	if err := vm.dispatch[op](vm); err != nil {
		vm.failed = err
		vm.diagnose(err)
		return false, err
	}

	return vm.ip < vm.end, nil
}

// Run drives Step until the cursor reaches the end of code or a handler
// fails.
func (vm *VM) Run() error {
	for {
		more, err := vm.Step()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// Execute loads constants from blob and runs the instruction stream to
// completion. On failure a one-line diagnostic has already been written to
// the configured stderr.
func (vm *VM) Execute(blob []byte) error {
	if err := vm.Load(blob); err != nil {
		return err
	}
	return vm.Run()
}

// Close releases the object heap and the constant pool. The VM must not be
// used afterwards.
func (vm *VM) Close() {
	vm.heap.free()
	vm.constants = nil
}

// diagnose writes the one-line failure diagnostic.
func (vm *VM) diagnose(err error) {
	fmt.Fprintln(vm.stderr, err.Error())
}

// Inspection accessors, used by the debugger and by tests.

// IP returns the current instruction offset.
func (vm *VM) IP() int { return vm.ip }

// FP returns the current frame pointer slot.
func (vm *VM) FP() int { return vm.fp }

// StackDepth returns the number of live stack slots.
func (vm *VM) StackDepth() int { return vm.sp }

// StackAt returns the value in stack slot i, counted from the bottom.
func (vm *VM) StackAt(i int) Value {
	if i < 0 || i >= vm.sp {
		return Value{}
	}
	return vm.stack[i].stripRefs()
}

// GlobalAt returns the value in globals slot i, if set.
func (vm *VM) GlobalAt(i int) (Value, bool) {
	return vm.globals.get(i)
}

// ConstantCount returns the size of the loaded constant pool.
func (vm *VM) ConstantCount() int { return len(vm.constants) }

// Stack primitives. The value stack never reallocates; sp indexes one past
// the top slot.

func (vm *VM) push(v Value, op bytecode.Opcode) error {
	if vm.sp == StackMax {
		return errors.StackOverflow(op.String(), vm.opOffset)
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop(op bytecode.Opcode) (Value, error) {
	if vm.sp == 0 {
		return Value{}, errors.StackUnderflow(op.String(), vm.opOffset)
	}
	vm.sp--
	return vm.stack[vm.sp], nil
}

func (vm *VM) peek(offset int, op bytecode.Opcode) (*Value, error) {
	if vm.sp <= offset {
		return nil, errors.StackUnderflow(op.String(), vm.opOffset)
	}
	return &vm.stack[vm.sp-offset-1], nil
}

// replaceSlot stores v into *dst, preserving the slot's upvalue list.
func replaceSlot(dst *Value, v Value) {
	v.refs = dst.refs
	*dst = v
}

// readByte consumes one operand byte from the instruction stream.
func (vm *VM) readByte(op bytecode.Opcode) (byte, error) {
	if vm.ip >= vm.end {
		return 0, errors.New(errors.PhaseExecute, errors.KindTruncated).
			Op(op.String()).
			Offset(vm.opOffset).
			Detail("ran out of bytes reading operand").
			Build()
	}
	b := vm.code[vm.ip]
	vm.ip++
	return b, nil
}

// closeUpvalues closes every cell attached to a popped value, snapshotting
// v into each. The nil fast path keeps primitive pops cheap.
func (vm *VM) closeUpvalues(v Value) {
	if v.refs == nil {
		return
	}
	snapshot := v.stripRefs()
	for cell := v.refs; cell != nil; {
		next := cell.nextRef
		if cell.open {
			cell.closed = snapshot
			cell.open = false
		}
		cell.nextRef = nil
		cell = next
	}
}

// upvalueRead resolves the current value of a cell: through to the live
// slot while open, from the owned snapshot after closing.
func (vm *VM) upvalueRead(cell *Object) Value {
	if cell.open {
		return vm.stack[cell.slot].stripRefs()
	}
	return cell.closed
}

// upvalueWrite stores v through a cell: into the live slot (preserving
// that slot's reference list) while open, into the snapshot after closing.
func (vm *VM) upvalueWrite(cell *Object, v Value) {
	if cell.open {
		replaceSlot(&vm.stack[cell.slot], v.stripRefs())
		return
	}
	cell.closed = v.stripRefs()
}

// stringify produces the String heap object for v, per the STR opcode
// rules. A value already of String kind is returned unchanged.
func (vm *VM) stringify(v Value, op bytecode.Opcode) (Value, error) {
	switch v.tag {
	case TagNil:
		return objValue(vm.heap.newStringCopy("nil")), nil
	case TagBool:
		if v.b {
			return objValue(vm.heap.newStringCopy("true")), nil
		}
		return objValue(vm.heap.newStringCopy("false")), nil
	case TagInt:
		return objValue(vm.heap.newStringCopy(strconv.FormatInt(int64(v.i32), 10))), nil
	case TagNum:
		return objValue(vm.heap.newStringCopy(formatNum(v.num))), nil
	case TagObj:
		if v.obj.kind == ObjString {
			return v.stripRefs(), nil
		}
		return Value{}, errors.TypeMismatch(op.String(), "a stringifiable value", v.obj.kind.String())
	default:
		return Value{}, errors.TypeMismatch(op.String(), "a stringifiable value", v.tag.String())
	}
}
