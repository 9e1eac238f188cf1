// Package bytecode defines the ClearVM wire format: the opcode set, the
// constant record tags, and the layout of a program blob.
//
// # Blob Layout
//
// A program is a single byte buffer:
//
//	[ u8 constantCount ]
//	[ constantCount × constant record ]
//	[ instruction stream until EOF ]
//
// Constant records are tagged:
//
//	Tag  Body
//	─────────────────────────────────────────
//	INT  4 bytes, signed, little-endian
//	NUM  8 bytes, IEEE-754, little-endian
//	STR  1 byte length L, then L bytes
//
// Instructions are a single opcode byte followed by zero or more one-byte
// operands (EXTRACT_FIELD carries two).
//
// # Key Types
//
//	Opcode    - the instruction byte values and their operand widths
//	Builder   - assembles constant pools and instruction streams into blobs
//	Instruction - one decoded instruction; Disassemble renders a blob's
//	              instruction stream into mnemonic form
//
// The Builder is the in-repo producer: the compiler that normally emits
// blobs lives outside this module, so tests assemble programs through it.
package bytecode
