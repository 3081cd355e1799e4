package bytecode

import (
	"fmt"
	"strings"

	"github.com/kristofer/smog/pkg/value"
)

// Disassemble renders every instruction in b as human-readable text, one
// line per instruction, prefixed with the given name (spec 4.11's
// `disassemble` subcommand and the `-trace` flag both go through this).
func Disassemble(b *value.Blob, name string) string {
	var out strings.Builder
	fmt.Fprintf(&out, "== %s ==\n", name)
	offset := 0
	for offset < len(b.Code) {
		var line string
		line, offset = DisassembleInstruction(b, offset)
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.String()
}

// DisassembleInstruction renders the instruction at offset and returns the
// offset of the next one.
func DisassembleInstruction(b *value.Blob, offset int) (string, int) {
	var out strings.Builder
	fmt.Fprintf(&out, "%04d ", offset)
	if offset > 0 && b.Lines[offset] == b.Lines[offset-1] {
		out.WriteString("   | ")
	} else {
		fmt.Fprintf(&out, "%4d ", b.Lines[offset])
	}

	op := Opcode(b.Code[offset])
	fmt.Fprintf(&out, "%-16s", op.String())

	switch op {
	case OpClosure:
		idx := ReadShort(b, offset+1)
		next := offset + 3
		fmt.Fprintf(&out, " %4d %s", idx, constantRepr(b, idx))
		if fn, ok := b.Constants[idx].AsObject().(*value.Function); ok {
			for i := 0; i < len(fn.Upvalues); i++ {
				isLocal := b.Code[next]
				index := b.Code[next+1]
				kind := "upvalue"
				if isLocal != 0 {
					kind = "local"
				}
				fmt.Fprintf(&out, "\n%04d      |                     %s %d", next, kind, index)
				next += 2
			}
		}
		return out.String(), next

	case OpTry:
		classIdx := ReadShort(b, offset+1)
		handler := ReadShort(b, offset+3)
		finally := ReadShort(b, offset+5)
		fmt.Fprintf(&out, " class=%d handler=%04d finally=%04d", classIdx, handler, finally)
		return out.String(), offset + 7

	case OpInvoke, OpInvokeSelf, OpSuperInvoke, OpSuperInvokeSelf:
		idx := ReadShort(b, offset+1)
		argc := b.Code[offset+3]
		fmt.Fprintf(&out, " %4d %s (%d args)", idx, constantRepr(b, idx), argc)
		return out.String(), offset + 4

	case OpMethod:
		idx := ReadShort(b, offset+1)
		kind := value.FunctionKind(b.Code[offset+3])
		fmt.Fprintf(&out, " %4d %s [%s]", idx, constantRepr(b, idx), kind)
		return out.String(), offset + 4

	case OpClassProperty:
		idx := ReadShort(b, offset+1)
		static := b.Code[offset+3]
		fmt.Fprintf(&out, " %4d %s static=%v", idx, constantRepr(b, idx), static != 0)
		return out.String(), offset + 4
	}

	width := operandWidth(op)
	switch width {
	case 0:
		return out.String(), offset + 1
	case 1:
		operand := b.Code[offset+1]
		fmt.Fprintf(&out, " %4d", operand)
		return out.String(), offset + 2
	case 2:
		idx := ReadShort(b, offset+1)
		if isConstOp(op) {
			fmt.Fprintf(&out, " %4d %s", idx, constantRepr(b, idx))
		} else {
			fmt.Fprintf(&out, " %4d", idx)
		}
		return out.String(), offset + 3
	default:
		return out.String(), offset + 1 + width
	}
}

func isConstOp(op Opcode) bool {
	switch op {
	case OpConstant, OpDefineGlobal, OpGetGlobal, OpSetGlobal,
		OpGetProperty, OpGetSelfProperty, OpSetProperty, OpGetSuper, OpClass,
		OpCallImport, OpNativeModule, OpSelectImport, OpSelectNativeImport,
		OpEjectImport, OpEjectNativeImport, OpSwitch:
		return true
	default:
		return false
	}
}

func constantRepr(b *value.Blob, idx uint16) string {
	if int(idx) >= len(b.Constants) {
		return "<out-of-range>"
	}
	return "'" + value.ToDisplayString(b.Constants[idx]) + "'"
}
