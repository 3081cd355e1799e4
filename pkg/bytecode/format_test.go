package bytecode

import (
	"bytes"
	"testing"

	"github.com/kristofer/smog/pkg/value"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b := NewBlob()
	idx := AddConstant(b, value.Number(42))
	Write(b, OpConstant, 1)
	WriteShort(b, idx, 1)
	Write(b, OpEcho, 1)
	Write(b, OpNil, 1)
	Write(b, OpReturn, 1)

	var buf bytes.Buffer
	if err := Encode(b, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	interner := value.NewInterner()
	got, err := Decode(&buf, interner)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got.Code, b.Code) {
		t.Fatalf("code mismatch: got %v want %v", got.Code, b.Code)
	}
	if len(got.Constants) != 1 || got.Constants[0].AsNumber() != 42 {
		t.Fatalf("constants mismatch: %v", got.Constants)
	}
}

func TestEncodeDecodeNestedFunction(t *testing.T) {
	inner := NewBlob()
	Write(inner, OpNil, 3)
	Write(inner, OpReturn, 3)

	interner := value.NewInterner()
	name := interner.Intern([]byte("inner"))
	fn := &value.Function{Name: name, Arity: 1, Kind: value.FuncFunction, Blob: inner}

	outer := NewBlob()
	idx := AddConstant(outer, value.Obj(fn))
	Write(outer, OpClosure, 1)
	WriteShort(outer, idx, 1)
	Write(outer, OpReturn, 1)

	var buf bytes.Buffer
	if err := Encode(outer, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(&buf, interner)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	gotFn, ok := got.Constants[0].AsObject().(*value.Function)
	if !ok {
		t.Fatalf("expected function constant, got %T", got.Constants[0].AsObject())
	}
	if gotFn.Arity != 1 || gotFn.Name.HashVal != name.HashVal {
		t.Fatalf("function metadata mismatch: %+v", gotFn)
	}
	if !bytes.Equal(gotFn.Blob.Code, inner.Code) {
		t.Fatalf("nested blob code mismatch")
	}
}

func TestDisassembleProducesOneLinePerInstruction(t *testing.T) {
	b := NewBlob()
	idx := AddConstant(b, value.Number(7))
	Write(b, OpConstant, 1)
	WriteShort(b, idx, 1)
	Write(b, OpEcho, 1)
	Write(b, OpNil, 2)
	Write(b, OpReturn, 2)

	out := Disassemble(b, "test")
	if n := bytes.Count([]byte(out), []byte("\n")); n != 5 {
		t.Fatalf("expected header plus 4 instruction lines, got %d lines: %q", n, out)
	}
	if !bytes.Contains([]byte(out), []byte("CONSTANT")) {
		t.Fatalf("expected CONSTANT in output, got %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("RETURN")) {
		t.Fatalf("expected RETURN in output, got %q", out)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("not a bytecode file")
	interner := value.NewInterner()
	if _, err := Decode(buf, interner); err == nil {
		t.Fatal("expected error for bad magic")
	}
}
