// Package vm implements the ClearVM bytecode interpreter.
//
// The VM is a register-less stack machine. It accepts a finished program
// blob (constant pool prelude plus instruction stream, see package
// bytecode), and executes it one opcode at a time until the cursor reaches
// the end of the buffer or a handler fails.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────┐
//	│ blob ─→ [constant loader] ─→ constants                 │
//	│              │                                         │
//	│              └─→ code cursor ─→ [dispatch] ─→ handler  │
//	│                                     │                  │
//	│                 value stack ←───────┤                  │
//	│                 globals     ←───────┤                  │
//	│                 object heap ←───────┘                  │
//	└────────────────────────────────────────────────────────┘
//
// State is a fixed 256-slot value stack addressed by a stack pointer and a
// frame pointer, a 256-slot globals table with presence bits, an immutable
// constant pool, and an intrusive list of heap objects (strings, structs,
// upvalue cells) freed in one pass at Close.
//
// # Call frames
//
// Frames are implicit: CALL pushes the suspended instruction pointer and
// frame pointer as tagged values onto the value stack itself, then points
// the frame pointer at the first parameter slot. The producer-emitted
// epilogue (LOAD_FP, LOAD_IP) restores the caller. The VM never synthesizes
// a return.
//
// # Upvalues
//
// A closure captures a local through an upvalue cell. While the local's
// slot is live the cell is open and reads through to the slot; popping the
// slot closes every cell attached to it by snapshotting the popped value.
//
// # Usage
//
//	m := vm.New(vm.WithStdout(os.Stdout))
//	defer m.Close()
//	if err := m.Execute(blob); err != nil {
//		// diagnostic already written to the configured stderr
//	}
//
// Execution is single-threaded and synchronous; a VM must not be shared
// across goroutines.
package vm
