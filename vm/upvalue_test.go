package vm

import (
	"testing"

	"github.com/clear-lang/clearvm/bytecode"
)

func TestUpvalueObservesLiveSlot(t *testing.T) {
	// An open cell reads through to its slot, including writes made with
	// SET_LOCAL after capture.
	m, _, err := runProgram(t, func(b *bytecode.Builder) {
		b.Emit(bytecode.OpPushConst, b.Int(1)) // x at fp[0]
		b.Emit(bytecode.OpRefLocal, 0)
		b.Emit(bytecode.OpSetGlobal, 0) // stash the cell
		b.Emit(bytecode.OpPushConst, b.Int(2))
		b.Emit(bytecode.OpSetLocal, 0) // x = 2, reference list preserved
		b.Emit(bytecode.OpPushGlobal, 0)
		b.Emit(bytecode.OpDeref)
		b.Emit(bytecode.OpSetGlobal, 1)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	wantGlobal(t, m, 1, Int(2))
}

func TestUpvalueClosesOnPop(t *testing.T) {
	m, _, err := runProgram(t, func(b *bytecode.Builder) {
		b.Emit(bytecode.OpPushConst, b.Int(7))
		b.Emit(bytecode.OpRefLocal, 0)
		b.Emit(bytecode.OpSetGlobal, 0)
		b.Emit(bytecode.OpPop) // pop x, closing the cell over 7

		b.Emit(bytecode.OpPushGlobal, 0)
		b.Emit(bytecode.OpDeref)
		b.Emit(bytecode.OpSetGlobal, 1) // snapshot observed

		b.Emit(bytecode.OpPushGlobal, 0)
		b.Emit(bytecode.OpPushConst, b.Int(9))
		b.Emit(bytecode.OpSetRef) // write into the closed cell

		b.Emit(bytecode.OpPushGlobal, 0)
		b.Emit(bytecode.OpDeref)
		b.Emit(bytecode.OpSetGlobal, 2)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	wantGlobal(t, m, 1, Int(7))
	wantGlobal(t, m, 2, Int(9))
}

func TestSetRefThroughOpenUpvalue(t *testing.T) {
	m, _, err := runProgram(t, func(b *bytecode.Builder) {
		b.Emit(bytecode.OpPushConst, b.Int(1)) // x at fp[0]
		b.Emit(bytecode.OpRefLocal, 0)
		b.Emit(bytecode.OpSetGlobal, 0)

		b.Emit(bytecode.OpPushGlobal, 0)
		b.Emit(bytecode.OpPushConst, b.Int(5))
		b.Emit(bytecode.OpSetRef) // writes through to the live slot

		b.Emit(bytecode.OpPushLocal, 0)
		b.Emit(bytecode.OpSetGlobal, 1)

		// The slot's reference list must survive the write-through: the
		// pop still closes the cell over the final value.
		b.Emit(bytecode.OpPop)
		b.Emit(bytecode.OpPushGlobal, 0)
		b.Emit(bytecode.OpDeref)
		b.Emit(bytecode.OpSetGlobal, 2)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	wantGlobal(t, m, 1, Int(5))
	wantGlobal(t, m, 2, Int(5))
}

func TestMultipleUpvaluesOnOneSlot(t *testing.T) {
	m, _, err := runProgram(t, func(b *bytecode.Builder) {
		b.Emit(bytecode.OpPushConst, b.Int(3))
		b.Emit(bytecode.OpRefLocal, 0)
		b.Emit(bytecode.OpSetGlobal, 0)
		b.Emit(bytecode.OpRefLocal, 0)
		b.Emit(bytecode.OpSetGlobal, 1)
		b.Emit(bytecode.OpPop) // closes both cells

		b.Emit(bytecode.OpPushGlobal, 0)
		b.Emit(bytecode.OpDeref)
		b.Emit(bytecode.OpSetGlobal, 2)
		b.Emit(bytecode.OpPushGlobal, 1)
		b.Emit(bytecode.OpDeref)
		b.Emit(bytecode.OpSetGlobal, 3)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	wantGlobal(t, m, 2, Int(3))
	wantGlobal(t, m, 3, Int(3))
}

// closureProgram is the end-to-end shape a compiler emits for a closure: a
// function creates a local, captures it in a cell, returns the cell inside
// a struct, and the caller dereferences the field after the frame is gone.
func closureProgram(b *bytecode.Builder, mutateBeforeReturn bool) {
	ten := b.Int(10)
	twenty := b.Int(20)

	fn := b.EmitJump(bytecode.OpFunction)
	b.Emit(bytecode.OpPushConst, ten) // x at fp[0]
	b.Emit(bytecode.OpRefLocal, 0)    // cell at fp[1]
	b.Emit(bytecode.OpStruct, 1)      // struct{cell} at fp[1]
	if mutateBeforeReturn {
		b.Emit(bytecode.OpExtractField, 0, 0)
		b.Emit(bytecode.OpPushConst, twenty)
		b.Emit(bytecode.OpSetRef) // x = 20 through the open cell
	}
	b.Emit(bytecode.OpSetReturn) // return the struct
	b.Emit(bytecode.OpPop)       // pop x, closing the cell
	b.Emit(bytecode.OpLoadFP)
	b.Emit(bytecode.OpLoadIP)
	b.PatchJump(fn)

	b.Emit(bytecode.OpCall, 0)
	b.Emit(bytecode.OpPushReturn)
	b.Emit(bytecode.OpGetField, 0)
	b.Emit(bytecode.OpDeref)
	b.Emit(bytecode.OpStr)
	b.Emit(bytecode.OpPrint)
}

func TestClosureOutlivesFrame(t *testing.T) {
	_, out, err := runProgram(t, func(b *bytecode.Builder) {
		closureProgram(b, false)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "10\n" {
		t.Errorf("output = %q, want %q", out, "10\n")
	}
}

func TestClosureSeesMutationBeforeClose(t *testing.T) {
	_, out, err := runProgram(t, func(b *bytecode.Builder) {
		closureProgram(b, true)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "20\n" {
		t.Errorf("output = %q, want %q", out, "20\n")
	}
}

func TestPopWithoutReferencesIsCheap(t *testing.T) {
	// The nil fast path: popping primitives never walks a list.
	m, _, err := runProgram(t, func(b *bytecode.Builder) {
		b.Emit(bytecode.OpPushConst, b.Int(1))
		b.Emit(bytecode.OpPop)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if m.heap.count != 0 {
		t.Errorf("heap count = %d, want no allocations", m.heap.count)
	}
}
