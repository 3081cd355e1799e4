package vm

import (
	"math"
	"strings"

	"github.com/kristofer/smog/pkg/value"
)

// binaryAdd implements `+` (spec 4.6): numbers add; strings concatenate,
// auto-coercing a non-string operand to its display string; lists and
// byte sequences concatenate into a freshly allocated result.
func (vm *VM) binaryAdd(a, b value.Value) (value.Value, error) {
	if a.Kind() == value.KindNumber && b.Kind() == value.KindNumber {
		return value.Number(a.AsNumber() + b.AsNumber()), nil
	}
	if isStringVal(a) || isStringVal(b) {
		return vm.allocString([]byte(value.ToDisplayString(a) + value.ToDisplayString(b))), nil
	}
	if la, ok := a.AsObject().(*value.List); ok {
		if lb, ok2 := b.AsObject().(*value.List); ok2 {
			items := make([]value.Value, 0, len(la.Items)+len(lb.Items))
			items = append(items, la.Items...)
			items = append(items, lb.Items...)
			return vm.allocList(items), nil
		}
	}
	if ba, ok := a.AsObject().(*value.Bytes); ok {
		if bb, ok2 := b.AsObject().(*value.Bytes); ok2 {
			data := make([]byte, 0, len(ba.Data)+len(bb.Data))
			data = append(data, ba.Data...)
			data = append(data, bb.Data...)
			return vm.allocBytes(data), nil
		}
	}
	return value.Nil, vm.runtimeErrorf("unsupported operand types for +: %s and %s", value.TypeName(a), value.TypeName(b))
}

func isStringVal(v value.Value) bool { return v.IsObjKind(value.ObjString) }

// binaryMul implements `*`: number*number multiplies; (string, number)
// repeats the string; (list, number) repeats the list's elements.
func (vm *VM) binaryMul(a, b value.Value) (value.Value, error) {
	if a.Kind() == value.KindNumber && b.Kind() == value.KindNumber {
		return value.Number(a.AsNumber() * b.AsNumber()), nil
	}
	if s, n, ok := stringAndNumber(a, b); ok {
		return vm.allocString([]byte(strings.Repeat(s.GoString(), int(n)))), nil
	}
	if l, n, ok := listAndNumber(a, b); ok {
		items := make([]value.Value, 0, len(l.Items)*int(n))
		for i := 0; i < int(n); i++ {
			items = append(items, l.Items...)
		}
		return vm.allocList(items), nil
	}
	return value.Nil, vm.runtimeErrorf("unsupported operand types for *: %s and %s", value.TypeName(a), value.TypeName(b))
}

func stringAndNumber(a, b value.Value) (*value.String, float64, bool) {
	if s, ok := a.AsObject().(*value.String); ok && b.Kind() == value.KindNumber {
		return s, b.AsNumber(), true
	}
	if s, ok := b.AsObject().(*value.String); ok && a.Kind() == value.KindNumber {
		return s, a.AsNumber(), true
	}
	return nil, 0, false
}

func listAndNumber(a, b value.Value) (*value.List, float64, bool) {
	if l, ok := a.AsObject().(*value.List); ok && b.Kind() == value.KindNumber {
		return l, b.AsNumber(), true
	}
	if l, ok := b.AsObject().(*value.List); ok && a.Kind() == value.KindNumber {
		return l, a.AsNumber(), true
	}
	return nil, 0, false
}

func (vm *VM) numericBinary(op func(a, b float64) float64, a, b value.Value) (value.Value, error) {
	if a.Kind() != value.KindNumber || b.Kind() != value.KindNumber {
		return value.Nil, vm.runtimeErrorf("operands must be numbers, got %s and %s", value.TypeName(a), value.TypeName(b))
	}
	return value.Number(op(a.AsNumber(), b.AsNumber())), nil
}

// floorDivide and floorMod implement `//` and `%` with floored-division
// sign (spec 4.6: "modulo with floored-division sign, not truncated").
func floorDivide(a, b float64) float64 { return math.Floor(a / b) }

func floorMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

// to32 coerces a float64 to a 32-bit integer by truncation toward zero
// with defined wraparound, the rule spec 4.6 gives bitwise opcodes.
func to32(n float64) int32 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return int32(int64(n))
}

func (vm *VM) bitwiseBinary(op func(a, b int32) int32, a, b value.Value) (value.Value, error) {
	if a.Kind() != value.KindNumber || b.Kind() != value.KindNumber {
		return value.Nil, vm.runtimeErrorf("bitwise operands must be numbers, got %s and %s", value.TypeName(a), value.TypeName(b))
	}
	return value.Number(float64(op(to32(a.AsNumber()), to32(b.AsNumber())))), nil
}

// compare implements `<`/`>` (spec 4.6's GREATERTHAN/LESSTHAN): numbers
// compare numerically, strings compare lexicographically by byte.
func (vm *VM) compare(a, b value.Value, greater bool) (value.Value, error) {
	if a.Kind() == value.KindNumber && b.Kind() == value.KindNumber {
		if greater {
			return value.Bool(a.AsNumber() > b.AsNumber()), nil
		}
		return value.Bool(a.AsNumber() < b.AsNumber()), nil
	}
	if sa, ok := a.AsObject().(*value.String); ok {
		if sb, ok2 := b.AsObject().(*value.String); ok2 {
			cmp := strings.Compare(sa.GoString(), sb.GoString())
			if greater {
				return value.Bool(cmp > 0), nil
			}
			return value.Bool(cmp < 0), nil
		}
	}
	return value.Nil, vm.runtimeErrorf("cannot compare %s and %s", value.TypeName(a), value.TypeName(b))
}

// negate implements unary `-`.
func (vm *VM) negate(a value.Value) (value.Value, error) {
	if a.Kind() != value.KindNumber {
		return value.Nil, vm.runtimeErrorf("operand must be a number, got %s", value.TypeName(a))
	}
	return value.Number(-a.AsNumber()), nil
}

// getIndex implements GET_INDEX (spec 4.6, "Indexing"): strings are
// UTF-8-aware unless the ascii hint is set; lists and bytes accept a
// negative index counting from the end; dicts look the key up directly.
func (vm *VM) getIndex(receiver, idx value.Value) (value.Value, error) {
	switch t := receiver.AsObject().(type) {
	case *value.List:
		i, err := normalizeIndex(idx, len(t.Items))
		if err != nil {
			return value.Nil, vm.wrapIndexErr(err)
		}
		return t.Items[i], nil
	case *value.Bytes:
		i, err := normalizeIndex(idx, len(t.Data))
		if err != nil {
			return value.Nil, vm.wrapIndexErr(err)
		}
		return value.Number(float64(t.Data[i])), nil
	case *value.String:
		runes := stringRunes(t)
		i, err := normalizeIndex(idx, len(runes))
		if err != nil {
			return value.Nil, vm.wrapIndexErr(err)
		}
		return vm.allocString([]byte(string(runes[i]))), nil
	case *value.Dict:
		v, ok := t.Get(idx)
		if !ok {
			return value.Nil, vm.runtimeErrorf("key not found in dict")
		}
		return v, nil
	case *value.Range:
		i, err := normalizeIndex(idx, int(t.Len()))
		if err != nil {
			return value.Nil, vm.wrapIndexErr(err)
		}
		return value.Number(float64(t.Lower + int64(i)*t.Step())), nil
	}
	return value.Nil, vm.runtimeErrorf("cannot index into %s", value.TypeName(receiver))
}

func (vm *VM) wrapIndexErr(err error) error { return vm.runtimeErrorf("%s", err.Error()) }

func stringRunes(s *value.String) []rune {
	if s.Ascii {
		runes := make([]rune, len(s.Bytes))
		for i, c := range s.Bytes {
			runes[i] = rune(c)
		}
		return runes
	}
	return []rune(string(s.Bytes))
}

func normalizeIndex(idx value.Value, length int) (int, error) {
	if idx.Kind() != value.KindNumber {
		return 0, errIndexType
	}
	i := int(idx.AsNumber())
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, errIndexRange
	}
	return i, nil
}

var (
	errIndexType  = indexError("index must be a number")
	errIndexRange = indexError("index out of range")
)

type indexError string

func (e indexError) Error() string { return string(e) }

// setIndex implements SET_INDEX.
func (vm *VM) setIndex(receiver, idx, val value.Value) error {
	switch t := receiver.AsObject().(type) {
	case *value.List:
		i, err := normalizeIndex(idx, len(t.Items))
		if err != nil {
			return vm.wrapIndexErr(err)
		}
		t.Items[i] = val
		return nil
	case *value.Bytes:
		i, err := normalizeIndex(idx, len(t.Data))
		if err != nil {
			return vm.wrapIndexErr(err)
		}
		if val.Kind() != value.KindNumber {
			return vm.runtimeErrorf("byte value must be a number")
		}
		t.Data[i] = byte(int64(val.AsNumber()))
		return nil
	case *value.Dict:
		t.Set(idx, val)
		return nil
	}
	return vm.runtimeErrorf("cannot assign into index of %s", value.TypeName(receiver))
}

// getRangedIndex implements GET_RANGED_INDEX: `a[lo:hi]` with either bound
// possibly nil (meaning "start"/"end").
func (vm *VM) getRangedIndex(receiver, lo, hi value.Value) (value.Value, error) {
	boundsOf := func(n int) (int, int, error) {
		start, end := 0, n
		if !lo.IsNil() {
			i, err := normalizeIndex(lo, n+1)
			if err != nil {
				return 0, 0, err
			}
			start = i
		}
		if !hi.IsNil() {
			i, err := normalizeIndex(hi, n+1)
			if err != nil {
				return 0, 0, err
			}
			end = i
		}
		if end < start {
			end = start
		}
		return start, end, nil
	}
	switch t := receiver.AsObject().(type) {
	case *value.List:
		start, end, err := boundsOf(len(t.Items))
		if err != nil {
			return value.Nil, vm.wrapIndexErr(err)
		}
		items := make([]value.Value, end-start)
		copy(items, t.Items[start:end])
		return vm.allocList(items), nil
	case *value.Bytes:
		start, end, err := boundsOf(len(t.Data))
		if err != nil {
			return value.Nil, vm.wrapIndexErr(err)
		}
		data := make([]byte, end-start)
		copy(data, t.Data[start:end])
		return vm.allocBytes(data), nil
	case *value.String:
		runes := stringRunes(t)
		start, end, err := boundsOf(len(runes))
		if err != nil {
			return value.Nil, vm.wrapIndexErr(err)
		}
		return vm.allocString([]byte(string(runes[start:end]))), nil
	}
	return value.Nil, vm.runtimeErrorf("cannot slice %s", value.TypeName(receiver))
}
