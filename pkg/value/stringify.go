package value

import (
	"strconv"
	"strings"
)

// ToDisplayString renders v the way ECHO and default @to_string fallback
// do, for the heap kinds this package knows about. It never invokes a
// user-defined @to_string override hook -- pkg/vm wraps this function and
// checks for the hook first on Instance values before falling back here.
func ToDisplayString(v Value) string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindEmpty:
		return "empty"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.n)
	case KindObject:
		return stringifyObject(v.obj)
	}
	return "?"
}

// FormatNumber renders a float64 the way the language prints numbers:
// integral values print without a decimal point.
func FormatNumber(n float64) string {
	if n == float64(int64(n)) && !isInfOrNaN(n) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func isInfOrNaN(n float64) bool {
	return n != n || n > 1.7976931348623157e+308 || n < -1.7976931348623157e+308
}

func stringifyObject(o Object) string {
	switch t := o.(type) {
	case *String:
		return string(t.Bytes)
	case *Bytes:
		var b strings.Builder
		b.WriteByte('[')
		for i, c := range t.Data {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Itoa(int(c)))
		}
		b.WriteByte(']')
		return b.String()
	case *Range:
		return strconv.FormatInt(t.Lower, 10) + ".." + strconv.FormatInt(t.Upper, 10)
	case *List:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range t.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(reprOf(item))
		}
		b.WriteByte(']')
		return b.String()
	case *Dict:
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range t.Keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(reprOf(k))
			b.WriteString(": ")
			b.WriteString(reprOf(t.Values[i]))
		}
		b.WriteByte('}')
		return b.String()
	case *Closure:
		return "<function " + nameOrAnon(t.Fn.Name) + ">"
	case *Function:
		return "<function " + nameOrAnon(t.Name) + ">"
	case *NativeFunction:
		return "<function " + nameOrAnon(t.Name) + ">"
	case *BoundMethod:
		return stringifyObject(t.Method.AsObject())
	case *File:
		return "<file " + t.Path + ">"
	case *Pointer:
		return "<ptr " + t.Tag + ">"
	default:
		if n, ok := o.(Named); ok {
			return "<" + n.TypeLabel() + ">"
		}
		return "<" + o.ObjKind().String() + ">"
	}
}

func nameOrAnon(s *String) string {
	if s == nil {
		return "<anonymous>"
	}
	return s.GoString()
}

// reprOf renders a value nested inside a list/dict literal; strings are
// quoted so that ["a", 1] doesn't read as [a, 1].
func reprOf(v Value) string {
	if v.kind == KindObject {
		if s, ok := v.obj.(*String); ok {
			return "'" + s.GoString() + "'"
		}
	}
	return ToDisplayString(v)
}
