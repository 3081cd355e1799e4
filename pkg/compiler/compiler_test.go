package compiler

import (
	"strings"
	"testing"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/value"
)

func mustCompile(t *testing.T, src string) *value.Function {
	t.Helper()
	fn, err := Compile(src, "test", value.NewInterner())
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return fn
}

func disasm(fn *value.Function) string {
	return bytecode.Disassemble(fn.Blob, fn.Name.GoString())
}

func TestCompileNumberLiteral(t *testing.T) {
	fn := mustCompile(t, "42;")
	out := disasm(fn)
	if !strings.Contains(out, "CONSTANT") {
		t.Errorf("expected CONSTANT in %q", out)
	}
	if fn.Blob.Constants[0].AsNumber() != 42 {
		t.Errorf("expected constant 42, got %v", fn.Blob.Constants[0])
	}
}

func TestCompileStringLiteral(t *testing.T) {
	fn := mustCompile(t, `"hello";`)
	s, ok := fn.Blob.Constants[0].AsObject().(*value.String)
	if !ok || s.GoString() != "hello" {
		t.Errorf("expected string constant \"hello\", got %v", fn.Blob.Constants[0])
	}
}

func TestCompileBooleanAndNilLiterals(t *testing.T) {
	for _, tt := range []struct {
		src  string
		want bytecode.Opcode
	}{
		{"true;", bytecode.OpTrue},
		{"false;", bytecode.OpFalse},
		{"nil;", bytecode.OpNil},
		{"empty;", bytecode.OpEmpty},
	} {
		fn := mustCompile(t, tt.src)
		if bytecode.Opcode(fn.Blob.Code[0]) != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.src, tt.want, bytecode.Opcode(fn.Blob.Code[0]))
		}
	}
}

func TestCompileVarDeclAndGlobal(t *testing.T) {
	fn := mustCompile(t, "var x = 10; echo x;")
	out := disasm(fn)
	if !strings.Contains(out, "DEFINE_GLOBAL") {
		t.Errorf("expected DEFINE_GLOBAL in %q", out)
	}
	if !strings.Contains(out, "GET_GLOBAL") {
		t.Errorf("expected GET_GLOBAL in %q", out)
	}
	if !strings.Contains(out, "ECHO") {
		t.Errorf("expected ECHO in %q", out)
	}
}

func TestCompileLocalScoping(t *testing.T) {
	fn := mustCompile(t, "def f() { var x = 1; return x; } f();")
	out := disasm(fn)
	if strings.Contains(out, "GET_GLOBAL 2") {
		t.Errorf("did not expect local x resolved as global: %q", out)
	}
	if !strings.Contains(out, "GET_LOCAL") {
		t.Errorf("expected GET_LOCAL for the body's local variable: %q", out)
	}
}

func TestCompileBinaryPrecedence(t *testing.T) {
	fn := mustCompile(t, "1 + 2 * 3;")
	out := disasm(fn)
	mulPos := strings.Index(out, "MUL")
	addPos := strings.Index(out, "ADD")
	if mulPos == -1 || addPos == -1 || mulPos > addPos {
		t.Errorf("expected MUL before ADD (precedence), got %q", out)
	}
}

func TestCompileComparisonOperators(t *testing.T) {
	for _, tt := range []struct {
		src  string
		want []bytecode.Opcode
	}{
		{"1 == 2;", []bytecode.Opcode{bytecode.OpEqual}},
		{"1 != 2;", []bytecode.Opcode{bytecode.OpEqual, bytecode.OpNot}},
		{"1 ~= 2;", []bytecode.Opcode{bytecode.OpEqual, bytecode.OpNot}},
		{"1 >= 2;", []bytecode.Opcode{bytecode.OpLessThan, bytecode.OpNot}},
		{"1 <= 2;", []bytecode.Opcode{bytecode.OpGreaterThan, bytecode.OpNot}},
	} {
		fn := mustCompile(t, tt.src)
		var got []bytecode.Opcode
		for _, op := range tt.want {
			got = append(got, op)
			_ = op
		}
		out := disasm(fn)
		for _, op := range tt.want {
			if !strings.Contains(out, op.String()) {
				t.Errorf("%q: expected %v in %q", tt.src, op, out)
			}
		}
	}
}

func TestCompileIfElse(t *testing.T) {
	fn := mustCompile(t, `if (true) { echo 1; } else { echo 2; }`)
	out := disasm(fn)
	if !strings.Contains(out, "JUMP_IF_FALSE") {
		t.Errorf("expected JUMP_IF_FALSE in %q", out)
	}
	if strings.Count(out, "POP") < 2 {
		t.Errorf("expected POP on both branches of if/else in %q", out)
	}
}

func TestCompileWhileLoopWithBreak(t *testing.T) {
	fn := mustCompile(t, `while (true) { break; }`)
	out := disasm(fn)
	if strings.Contains(out, "BREAK_PL") {
		t.Errorf("break placeholder should have been patched to JUMP, got %q", out)
	}
	if !strings.Contains(out, "LOOP") {
		t.Errorf("expected LOOP in %q", out)
	}
}

func TestCompileForLoop(t *testing.T) {
	fn := mustCompile(t, `for (var i = 0; i < 10; i = i + 1) { echo i; }`)
	out := disasm(fn)
	if !strings.Contains(out, "LOOP") || !strings.Contains(out, "JUMP_IF_FALSE") {
		t.Errorf("expected a conditional loop shape, got %q", out)
	}
}

func TestCompileForeachDesugaring(t *testing.T) {
	fn := mustCompile(t, `foreach v in list { echo v; }`)
	out := disasm(fn)
	if !strings.Contains(out, "INVOKE") {
		t.Errorf("expected @itern/@iter INVOKE calls in foreach, got %q", out)
	}
}

func TestCompileFunctionDeclAndCall(t *testing.T) {
	fn := mustCompile(t, `def add(a, b) { return a + b; } add(1, 2);`)
	out := disasm(fn)
	if !strings.Contains(out, "CLOSURE") {
		t.Errorf("expected CLOSURE for function declaration, got %q", out)
	}
	if !strings.Contains(out, "CALL") {
		t.Errorf("expected CALL for invocation, got %q", out)
	}
}

func TestCompileVariadicFunction(t *testing.T) {
	fn := mustCompile(t, `def f(a, ...rest) { return rest; }`)
	var inner *value.Function
	for _, c := range fn.Blob.Constants {
		if f, ok := c.AsObject().(*value.Function); ok {
			inner = f
		}
	}
	if inner == nil || !inner.Variadic || inner.Arity != 1 {
		t.Fatalf("expected variadic function with arity 1, got %+v", inner)
	}
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	fn := mustCompile(t, `def outer() { var x = 1; def inner() { return x; } return inner; }`)
	var outer *value.Function
	for _, c := range fn.Blob.Constants {
		if f, ok := c.AsObject().(*value.Function); ok {
			outer = f
		}
	}
	if outer == nil {
		t.Fatal("expected outer function constant")
	}
	var inner *value.Function
	for _, c := range outer.Blob.Constants {
		if f, ok := c.AsObject().(*value.Function); ok {
			inner = f
		}
	}
	if inner == nil || inner.UpvalueCount != 1 || !inner.Upvalues[0].IsLocal {
		t.Fatalf("expected inner closure to capture one local upvalue, got %+v", inner)
	}
}

func TestCompileClassWithMethodAndInheritance(t *testing.T) {
	fn := mustCompile(t, `
class Animal {
	var name = nil;
	def speak() { echo self.name; }
}
class Dog < Animal {
	def speak() { parent.speak(); }
}
`)
	out := disasm(fn)
	for _, want := range []string{"CLASS", "METHOD", "CLASS_PROPERTY", "INHERIT"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in class compilation, got %q", want, out)
		}
	}
}

func TestCompileSelfPropertyAccessAndInvoke(t *testing.T) {
	fn := mustCompile(t, `
class Counter {
	var n = 0;
	def bump() { self.n = self.n + 1; return self.total(); }
	def total() { return self.n; }
}
`)
	out := disasm(fn)
	if !strings.Contains(out, "GET_SELF_PROPERTY") {
		t.Errorf("expected GET_SELF_PROPERTY, got %q", out)
	}
	if !strings.Contains(out, "INVOKE_SELF") {
		t.Errorf("expected INVOKE_SELF for self.total(), got %q", out)
	}
}

func TestCompileTernary(t *testing.T) {
	fn := mustCompile(t, `var x = true ? 1 : 2;`)
	out := disasm(fn)
	if strings.Contains(out, "CHOICE") {
		t.Errorf("ternary should compile via JUMP_IF_FALSE/JUMP, not OP_CHOICE: %q", out)
	}
	if !strings.Contains(out, "JUMP_IF_FALSE") {
		t.Errorf("expected JUMP_IF_FALSE in ternary compilation, got %q", out)
	}
}

func TestCompileLogicalAndOr(t *testing.T) {
	fn := mustCompile(t, `var x = true and false; var y = true or false;`)
	out := disasm(fn)
	if strings.Count(out, "JUMP_IF_FALSE") < 1 {
		t.Errorf("expected short-circuit jumps for and/or, got %q", out)
	}
}

func TestCompileTryCatchFinally(t *testing.T) {
	fn := mustCompile(t, `
try {
	die "boom";
} catch Exception e {
	echo e;
} finally {
	echo "done";
}
`)
	out := disasm(fn)
	for _, want := range []string{"TRY", "POP_TRY", "PUBLISH_TRY"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in try/catch/finally compilation, got %q", want, out)
		}
	}
}

func TestCompileTryRequiresCatchOrFinally(t *testing.T) {
	_, err := Compile(`try { echo 1; }`, "test", value.NewInterner())
	if err == nil {
		t.Fatal("expected an error for a try with neither catch nor finally")
	}
}

func TestCompileUsingSwitch(t *testing.T) {
	fn := mustCompile(t, `
using x {
	when 1, 2: echo "small";
	when 3: echo "three";
	default: echo "other";
}
`)
	out := disasm(fn)
	if !strings.Contains(out, "SWITCH") {
		t.Errorf("expected SWITCH in using-statement compilation, got %q", out)
	}
	var sw *value.Value
	for i, c := range fn.Blob.Constants {
		if c.IsObjKind(value.ObjSwitch) {
			sw = &fn.Blob.Constants[i]
		}
	}
	if sw == nil {
		t.Fatal("expected a Switch constant")
	}
}

func TestCompileListAndDictLiterals(t *testing.T) {
	fn := mustCompile(t, `var l = [1, 2, 3]; var d = {"a": 1, "b": 2};`)
	out := disasm(fn)
	if !strings.Contains(out, "LIST") {
		t.Errorf("expected LIST opcode, got %q", out)
	}
	if !strings.Contains(out, "DICT") {
		t.Errorf("expected DICT opcode, got %q", out)
	}
}

func TestCompileIndexingAndRangedIndex(t *testing.T) {
	fn := mustCompile(t, `var a = list[0]; var b = list[1:3]; var c = list[:2]; var d = list[1:];`)
	out := disasm(fn)
	if !strings.Contains(out, "GET_INDEX") {
		t.Errorf("expected GET_INDEX, got %q", out)
	}
	if strings.Count(out, "GET_RANGED_INDEX") != 3 {
		t.Errorf("expected 3 GET_RANGED_INDEX occurrences, got %q", out)
	}
}

func TestCompileCompoundAssignment(t *testing.T) {
	fn := mustCompile(t, `var x = 1; x += 2; x -= 1; x *= 3;`)
	out := disasm(fn)
	for _, want := range []string{"ADD", "SUB", "MUL"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s from compound assignment, got %q", want, out)
		}
	}
}

func TestCompileStringInterpolation(t *testing.T) {
	fn := mustCompile(t, `var name = "world"; echo "hello ${name}!";`)
	out := disasm(fn)
	if !strings.Contains(out, "STRINGIFY") {
		t.Errorf("expected STRINGIFY in interpolated string, got %q", out)
	}
}

func TestCompileLambda(t *testing.T) {
	fn := mustCompile(t, `var square = |x| { return x * x; };`)
	out := disasm(fn)
	if !strings.Contains(out, "CLOSURE") {
		t.Errorf("expected CLOSURE for lambda literal, got %q", out)
	}
}

func TestCompileImportForms(t *testing.T) {
	for _, tt := range []struct {
		src  string
		want bytecode.Opcode
	}{
		{`import a.b.c;`, bytecode.OpCallImport},
		{`import _math;`, bytecode.OpNativeModule},
	} {
		fn := mustCompile(t, tt.src)
		out := disasm(fn)
		if !strings.Contains(out, tt.want.String()) {
			t.Errorf("%q: expected %v, got %q", tt.src, tt.want, out)
		}
	}
}

func TestCompileImportSelective(t *testing.T) {
	fn := mustCompile(t, `import a.b { x, y, * };`)
	out := disasm(fn)
	if !strings.Contains(out, "SELECT_IMPORT") {
		t.Errorf("expected SELECT_IMPORT, got %q", out)
	}
	if !strings.Contains(out, "IMPORT_ALL") {
		t.Errorf("expected IMPORT_ALL, got %q", out)
	}
}

func TestCompileAssertAndDie(t *testing.T) {
	fn := mustCompile(t, `assert 1 == 1, "must hold"; die "fatal";`)
	out := disasm(fn)
	if !strings.Contains(out, "ASSERT") {
		t.Errorf("expected ASSERT, got %q", out)
	}
	if !strings.Contains(out, "DIE") {
		t.Errorf("expected DIE, got %q", out)
	}
}

func TestCompileBreakOutsideLoopIsError(t *testing.T) {
	_, err := Compile(`break;`, "test", value.NewInterner())
	if err == nil {
		t.Fatal("expected an error compiling 'break' outside a loop")
	}
}

func TestCompileContinueOutsideLoopIsError(t *testing.T) {
	_, err := Compile(`continue;`, "test", value.NewInterner())
	if err == nil {
		t.Fatal("expected an error compiling 'continue' outside a loop")
	}
}

func TestCompileSelfOutsideMethodIsError(t *testing.T) {
	_, err := Compile(`echo self;`, "test", value.NewInterner())
	if err == nil {
		t.Fatal("expected an error compiling 'self' outside a method")
	}
}

func TestCompileInvalidAssignmentTargetIsError(t *testing.T) {
	_, err := Compile(`1 + 2 = 3;`, "test", value.NewInterner())
	if err == nil {
		t.Fatal("expected an error for an invalid assignment target")
	}
}

func TestCompileClassInheritingFromItselfIsError(t *testing.T) {
	_, err := Compile(`class A < A {}`, "test", value.NewInterner())
	if err == nil {
		t.Fatal("expected an error for a class inheriting from itself")
	}
}
