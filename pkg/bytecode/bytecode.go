// Package bytecode defines the instruction set and in-memory bytecode
// container executed by pkg/vm.
//
// The bytecode is the low-level intermediate representation the compiler
// emits and the VM runs. It is a flat byte stream, not a slice of decoded
// instructions: multi-byte operands (16-bit jump targets, TRY's handler
// triple) are packed big-endian directly into the stream, and the VM reads
// them back with a program counter over []byte. This matters because jumps
// and loops patch raw byte offsets after the fact (pkg/compiler backpatches
// a placeholder once a jump target is known), which only works if offsets
// address bytes, not instruction slots.
//
// Architecture:
//
// Values are pushed onto and popped from the VM's value stack:
//  1. Operations consume values from the stack and push results back
//  2. Local/global/upvalue slots give named storage outside the stack
//  3. Every opcode advances the program counter by its own encoded width
//
// Example compilation:
//
//	Source:  var x = 10; echo x + 5;
//
//	Bytecode:
//	  CONSTANT 1      ; push 10
//	  DEFINE_GLOBAL 0 ; pop into global "x"
//	  GET_GLOBAL 2    ; push x
//	  CONSTANT 3      ; push 5
//	  ADD             ; pop two, push sum
//	  ECHO            ; pop, print
//	  NIL
//	  RETURN
//
//	Constants: ["x", 10, "x", 5]
package bytecode

// Opcode identifies a single bytecode instruction. Opcodes are one byte,
// making them compact and cheap to decode in the VM's dispatch loop.
type Opcode byte

const (
	// === Stack manipulation ===

	// OpConstant pushes constants[operand] (16-bit operand).
	OpConstant Opcode = iota
	// OpPop discards the top of the stack.
	OpPop
	// OpPopN discards the top N values (one-byte operand N).
	OpPopN
	// OpDup duplicates the top of the stack.
	OpDup
	OpNil
	OpTrue
	OpFalse
	// OpEmpty pushes the sentinel "no value"; the compiler emits it for the
	// `empty` literal.
	OpEmpty
	// OpOne pushes the literal number 1, common enough (loop increments)
	// to deserve its own opcode instead of a constant-pool slot.
	OpOne

	// === Arithmetic and bitwise ===

	OpAdd
	OpSub
	OpMul
	OpDiv
	// OpFDivide is floor division (`//`).
	OpFDivide
	// OpReminder is modulo with floored-division sign, not truncated (`%`).
	OpReminder
	OpPow
	OpNegate
	OpNot
	OpBitNot
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLeftShift
	OpRightShift

	// === Comparison ===

	OpEqual
	OpGreaterThan
	OpLessThan

	// === Variable access ===

	// OpDefineGlobal, OpGetGlobal, OpSetGlobal take a 16-bit constant-pool
	// index naming the global.
	OpDefineGlobal
	OpGetGlobal
	OpSetGlobal
	// OpGetLocal, OpSetLocal take a one-byte frame-slot index.
	OpGetLocal
	OpSetLocal
	// OpGetUpValue, OpSetUpValue take a one-byte upvalue-array index.
	OpGetUpValue
	OpSetUpValue
	// OpCloseUpValue closes the upvalue pointing at the top stack slot,
	// then pops it.
	OpCloseUpValue

	// === Object access ===

	// OpGetProperty, OpSetProperty take a 16-bit constant-pool name index.
	OpGetProperty
	// OpGetSelfProperty is OpGetProperty specialized for `self.name`,
	// skipping the receiver-type dispatch the general form needs.
	OpGetSelfProperty
	OpSetProperty
	OpGetIndex
	// OpGetRangedIndex implements `a[lo:hi]` slice syntax.
	OpGetRangedIndex
	OpSetIndex

	// === Control flow ===

	// OpJump, OpJumpIfFalse take a 16-bit forward offset.
	OpJump
	OpJumpIfFalse
	// OpLoop takes a 16-bit backward offset.
	OpLoop
	// OpBreakPL is a placeholder emitted for `break` before a
	// loop's exit address is known; the compiler rewrites it to OpJump
	// once the loop finishes compiling.
	OpBreakPL
	// OpSwitch takes a 16-bit constant-pool index of a compiled Switch.
	OpSwitch
	// OpChoice is reserved: the compiler never emits it (the ternary
	// `cond ? a : b` compiles to jumps), and the VM reports it as an error.
	OpChoice
	OpReturn

	// === Call and class machinery ===

	// OpCall takes a one-byte argument count.
	OpCall
	// OpInvoke fuses GET_PROPERTY+CALL: 16-bit name index, one-byte argc.
	OpInvoke
	// OpInvokeSelf is OpInvoke specialized for `self.name(...)`.
	OpInvokeSelf
	// OpSuperInvoke is OpInvoke starting lookup at the superclass.
	OpSuperInvoke
	OpSuperInvokeSelf
	// OpClass takes a 16-bit constant-pool name index.
	OpClass
	// OpInherit pops a superclass and wires it onto the class below it.
	OpInherit
	// OpMethod takes a 16-bit name index and a one-byte FunctionKind tag.
	OpMethod
	// OpClassProperty takes a 16-bit name index and a one-byte
	// static/instance flag.
	OpClassProperty
	OpGetSuper
	// OpClosure takes a 16-bit function-constant index, followed by one
	// 2-byte (isLocal-flag, index) pair per upvalue.
	OpClosure

	// === Containers ===

	// OpList takes a 16-bit element count.
	OpList
	// OpDict takes a 16-bit pair count.
	OpDict
	// OpRange pops (upper, lower) and pushes a Range object.
	OpRange

	// === I/O and misc ===

	OpEcho
	// OpStringify invokes @to_string on the top of stack in place.
	OpStringify
	OpAssert
	OpDie

	// === Modules ===

	// OpCallImport takes a 16-bit constant index naming the dotted import
	// path of the module to load and run.
	OpCallImport
	// OpNativeModule takes a 16-bit constant index naming a registered
	// native module.
	OpNativeModule
	// OpSelectImport/OpSelectNativeImport take a 16-bit name index.
	OpSelectImport
	OpSelectNativeImport
	OpEjectImport
	OpEjectNativeImport
	OpImportAll
	OpImportAllNative

	// === Exceptions ===

	// OpTry has a 6-byte operand: 16-bit exception-class constant index,
	// 16-bit handler offset, 16-bit finally offset.
	OpTry
	OpPopTry
	OpPublishTry
)

var opcodeNames = [...]string{
	OpConstant: "CONSTANT", OpPop: "POP", OpPopN: "POP_N", OpDup: "DUP",
	OpNil: "NIL", OpTrue: "TRUE", OpFalse: "FALSE", OpEmpty: "EMPTY", OpOne: "ONE",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpFDivide: "F_DIVIDE",
	OpReminder: "REMINDER", OpPow: "POW", OpNegate: "NEGATE", OpNot: "NOT",
	OpBitNot: "BIT_NOT", OpBitAnd: "BITAND", OpBitOr: "BITOR", OpBitXor: "BITXOR",
	OpLeftShift: "LEFTSHIFT", OpRightShift: "RIGHTSHIFT",
	OpEqual: "EQUAL", OpGreaterThan: "GREATERTHAN", OpLessThan: "LESSTHAN",
	OpDefineGlobal: "DEFINE_GLOBAL", OpGetGlobal: "GET_GLOBAL", OpSetGlobal: "SET_GLOBAL",
	OpGetLocal: "GET_LOCAL", OpSetLocal: "SET_LOCAL",
	OpGetUpValue: "GET_UP_VALUE", OpSetUpValue: "SET_UP_VALUE", OpCloseUpValue: "CLOSE_UP_VALUE",
	OpGetProperty: "GET_PROPERTY", OpGetSelfProperty: "GET_SELF_PROPERTY",
	OpSetProperty: "SET_PROPERTY", OpGetIndex: "GET_INDEX",
	OpGetRangedIndex: "GET_RANGED_INDEX", OpSetIndex: "SET_INDEX",
	OpJump: "JUMP", OpJumpIfFalse: "JUMP_IF_FALSE", OpLoop: "LOOP",
	OpBreakPL: "BREAK_PL", OpSwitch: "SWITCH", OpChoice: "CHOICE", OpReturn: "RETURN",
	OpCall: "CALL", OpInvoke: "INVOKE", OpInvokeSelf: "INVOKE_SELF",
	OpSuperInvoke: "SUPER_INVOKE", OpSuperInvokeSelf: "SUPER_INVOKE_SELF",
	OpClass: "CLASS", OpInherit: "INHERIT", OpMethod: "METHOD",
	OpClassProperty: "CLASS_PROPERTY", OpGetSuper: "GET_SUPER", OpClosure: "CLOSURE",
	OpList: "LIST", OpDict: "DICT", OpRange: "RANGE",
	OpEcho: "ECHO", OpStringify: "STRINGIFY", OpAssert: "ASSERT", OpDie: "DIE",
	OpCallImport: "CALL_IMPORT", OpNativeModule: "NATIVE_MODULE",
	OpSelectImport: "SELECT_IMPORT", OpSelectNativeImport: "SELECT_NATIVE_IMPORT",
	OpEjectImport: "EJECT_IMPORT", OpEjectNativeImport: "EJECT_NATIVE_IMPORT",
	OpImportAll: "IMPORT_ALL", OpImportAllNative: "IMPORT_ALL_NATIVE",
	OpTry: "TRY", OpPopTry: "POP_TRY", OpPublishTry: "PUBLISH_TRY",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "UNKNOWN"
}
