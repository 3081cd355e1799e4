package bytecode

import (
	"encoding/binary"

	"github.com/kristofer/smog/pkg/value"
)

// NewBlob returns an empty blob ready for a compiler to emit into.
func NewBlob() *value.Blob {
	return &value.Blob{}
}

// Write appends a single opcode byte, recording line for stack traces.
func Write(b *value.Blob, op Opcode, line int) int {
	b.Code = append(b.Code, byte(op))
	b.Lines = append(b.Lines, line)
	return len(b.Code) - 1
}

// WriteByte appends a raw one-byte operand.
func WriteByte(b *value.Blob, v byte, line int) int {
	b.Code = append(b.Code, v)
	b.Lines = append(b.Lines, line)
	return len(b.Code) - 1
}

// WriteShort appends a big-endian 16-bit operand (spec 4.5: "16-bit short
// operands are written big-endian").
func WriteShort(b *value.Blob, v uint16, line int) int {
	start := len(b.Code)
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	b.Code = append(b.Code, buf[0], buf[1])
	b.Lines = append(b.Lines, line, line)
	return start
}

// PatchShort overwrites the big-endian 16-bit operand starting at offset.
// Used to back-patch jump targets once they're known.
func PatchShort(b *value.Blob, offset int, v uint16) {
	binary.BigEndian.PutUint16(b.Code[offset:offset+2], v)
}

// ReadShort decodes the big-endian 16-bit operand at offset.
func ReadShort(b *value.Blob, offset int) uint16 {
	return binary.BigEndian.Uint16(b.Code[offset : offset+2])
}

// AddConstant appends v to the constant pool and returns its index. The
// compiler is responsible for interning/deduplicating identical constants
// if it wants to; this helper always appends.
func AddConstant(b *value.Blob, v value.Value) uint16 {
	b.Constants = append(b.Constants, v)
	return uint16(len(b.Constants) - 1)
}

// operandWidth reports how many operand bytes follow an opcode, for the
// disassembler. OpClosure and OpTry have variable/irregular widths and are
// handled specially by callers.
func operandWidth(op Opcode) int {
	switch op {
	case OpPop, OpDup, OpNil, OpTrue, OpFalse, OpEmpty, OpOne,
		OpAdd, OpSub, OpMul, OpDiv, OpFDivide, OpReminder, OpPow,
		OpNegate, OpNot, OpBitNot, OpBitAnd, OpBitOr, OpBitXor,
		OpLeftShift, OpRightShift, OpEqual, OpGreaterThan, OpLessThan,
		OpCloseUpValue, OpGetIndex, OpGetRangedIndex, OpSetIndex,
		OpReturn, OpInherit, OpRange, OpEcho, OpStringify,
		OpAssert, OpDie, OpImportAll, OpImportAllNative, OpPopTry, OpPublishTry:
		return 0
	case OpPopN, OpGetLocal, OpSetLocal, OpGetUpValue, OpSetUpValue,
		OpCall:
		return 1
	case OpConstant, OpDefineGlobal, OpGetGlobal, OpSetGlobal,
		OpGetProperty, OpGetSelfProperty, OpSetProperty, OpGetSuper,
		OpJump, OpJumpIfFalse, OpLoop, OpBreakPL, OpSwitch, OpChoice,
		OpClass, OpList, OpDict,
		OpCallImport, OpNativeModule, OpSelectImport, OpSelectNativeImport,
		OpEjectImport, OpEjectNativeImport:
		return 2
	case OpInvoke, OpInvokeSelf, OpSuperInvoke, OpSuperInvokeSelf:
		return 3 // 16-bit name index + 1-byte argc
	case OpMethod, OpClassProperty:
		return 3 // 16-bit name index + 1-byte FunctionKind / static flag
	case OpTry:
		return 6 // 16-bit class-const + 16-bit handler + 16-bit finally
	default:
		return 0
	}
}
