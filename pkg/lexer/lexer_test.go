package lexer

import "testing"

func collect(src string) []Token {
	s := New(src)
	var toks []Token
	for {
		tok := s.Next()
		toks = append(toks, tok)
		if tok.Type == TokEOF || tok.Type == TokError {
			break
		}
	}
	return toks
}

func assertTypes(t *testing.T, src string, want ...TokenType) {
	t.Helper()
	toks := collect(src)
	if len(toks) != len(want) {
		t.Fatalf("%q: got %d tokens, want %d (%v)", src, len(toks), len(want), toks)
	}
	for i, tok := range toks {
		if tok.Type != want[i] {
			t.Fatalf("%q: token %d = %s, want %s", src, i, tok.Type, want[i])
		}
	}
}

func TestNext_Punctuation(t *testing.T) {
	assertTypes(t, "(){}[];:.@?",
		TokLParen, TokRParen, TokLBrace, TokRBrace, TokLBracket, TokRBracket,
		TokSemicolon, TokColon, TokDot, TokAt, TokQuestion, TokEOF)
}

func TestNext_RangeAndTriDot(t *testing.T) {
	assertTypes(t, "1..5", TokNumber, TokRange, TokNumber, TokEOF)
	assertTypes(t, "def f(...args) {}",
		TokDef, TokIdentifier, TokLParen, TokTriDot, TokIdentifier, TokRParen,
		TokLBrace, TokRBrace, TokEOF)
}

func TestNext_CompoundOperators(t *testing.T) {
	assertTypes(t, "+ += ++ - -= -- * *= ** **= / /= // //= % %=",
		TokPlus, TokPlusEq, TokIncrement,
		TokMinus, TokMinusEq, TokDecrement,
		TokStar, TokStarEq, TokPow, TokPowEq,
		TokSlash, TokSlashEq, TokFloor, TokFloorEq,
		TokPercent, TokPercentEq, TokEOF)
}

func TestNext_ComparisonAndBitwise(t *testing.T) {
	assertTypes(t, "== != < <= > >= << <<= >> >>= & &= | |= ^ ^= ~ ~=",
		TokEqEq, TokBangEq, TokLess, TokLessEq, TokGreater, TokGreaterEq,
		TokLShift, TokLShiftEq, TokRShift, TokRShiftEq,
		TokAmp, TokAmpEq, TokBar, TokBarEq, TokCaret, TokCaretEq,
		TokTilde, TokTildeEq, TokEOF)
}

func TestNext_Keywords(t *testing.T) {
	assertTypes(t, "def class self parent static try catch finally using when",
		TokDef, TokClass, TokSelf, TokParent, TokStatic, TokTry, TokCatch,
		TokFinally, TokUsing, TokWhen, TokEOF)
}

func TestNext_Identifiers(t *testing.T) {
	assertTypes(t, "x _foo bar1 CamelCase", TokIdentifier, TokIdentifier, TokIdentifier, TokIdentifier, TokEOF)
}

func TestNext_Numbers(t *testing.T) {
	toks := collect("10 3.14 0xFF 0b101 0c17 1e10 2.5e-3")
	wantBase := []NumberBase{BaseDecimal, BaseDecimal, BaseHex, BaseBinary, BaseOctal, BaseDecimal, BaseDecimal}
	if len(toks)-1 != len(wantBase) {
		t.Fatalf("got %d number tokens, want %d", len(toks)-1, len(wantBase))
	}
	for i, b := range wantBase {
		if toks[i].Type != TokNumber {
			t.Fatalf("token %d: got %s, want NUMBER", i, toks[i].Type)
		}
		if toks[i].Base != b {
			t.Fatalf("token %d (%s): base = %v, want %v", i, toks[i].Lexeme, toks[i].Base, b)
		}
	}
}

func TestNext_LineAndHashComments(t *testing.T) {
	assertTypes(t, "x # trailing comment\ny", TokIdentifier, TokIdentifier, TokEOF)
}

func TestNext_BlockCommentsNest(t *testing.T) {
	assertTypes(t, "x /* outer /* inner */ still-comment */ y", TokIdentifier, TokIdentifier, TokEOF)
}

func TestNext_PlainString(t *testing.T) {
	toks := collect(`"hello world"`)
	if len(toks) != 2 || toks[0].Type != TokString || toks[0].Lexeme != "hello world" {
		t.Fatalf("got %+v", toks)
	}
}

func TestNext_StringEscapes(t *testing.T) {
	toks := collect(`"a\nb\tc\\d\"e"`)
	if len(toks) != 2 || toks[0].Type != TokString {
		t.Fatalf("got %+v", toks)
	}
	want := "a\nb\tc\\d\"e"
	if toks[0].Lexeme != want {
		t.Fatalf("got %q, want %q", toks[0].Lexeme, want)
	}
}

func TestNext_SimpleInterpolation(t *testing.T) {
	toks := collect(`"sum: ${1 + 2} done"`)
	want := []TokenType{TokInterpolation, TokNumber, TokPlus, TokNumber, TokString, TokEOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens %v, want %d", len(toks), toks, len(want))
	}
	for i, tt := range want {
		if toks[i].Type != tt {
			t.Fatalf("token %d = %s, want %s (%+v)", i, toks[i].Type, tt, toks)
		}
	}
	if toks[0].Lexeme != "sum: " {
		t.Fatalf("interpolation prefix = %q", toks[0].Lexeme)
	}
	if toks[4].Lexeme != " done" {
		t.Fatalf("string suffix = %q", toks[4].Lexeme)
	}
}

func TestNext_InterpolationWithNestedBraces(t *testing.T) {
	toks := collect(`"x=${ {1:2}.length() }."`)
	want := []TokenType{
		TokInterpolation, TokLBrace, TokNumber, TokColon, TokNumber, TokRBrace,
		TokDot, TokIdentifier, TokLParen, TokRParen, TokString, TokEOF,
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, tt := range want {
		if toks[i].Type != tt {
			t.Fatalf("token %d = %s, want %s", i, toks[i].Type, tt)
		}
	}
}

func TestNext_NestedInterpolation(t *testing.T) {
	toks := collect(`"a${"b${1}c"}d"`)
	want := []TokenType{
		TokInterpolation, // a
		TokInterpolation, // b (inner string prefix)
		TokNumber,        // 1
		TokString,        // c (closes inner string)
		TokString,        // d (closes outer string)
		TokEOF,
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, tt := range want {
		if toks[i].Type != tt {
			t.Fatalf("token %d = %s, want %s", i, toks[i].Type, tt)
		}
	}
}

func TestNext_UnterminatedString(t *testing.T) {
	toks := collect(`"unterminated`)
	last := toks[len(toks)-1]
	if last.Type != TokError {
		t.Fatalf("expected TokError, got %v", toks)
	}
}

func TestNext_LineTracking(t *testing.T) {
	toks := collect("x\ny\nz")
	if toks[0].Line != 1 || toks[1].Line != 2 || toks[2].Line != 3 {
		t.Fatalf("got lines %d %d %d", toks[0].Line, toks[1].Line, toks[2].Line)
	}
}
