package compiler

import "github.com/kristofer/smog/pkg/lexer"

// Precedence levels, lowest to highest, per spec 4.5: "primary,
// call/dot/index, unary, factor, term, range, shift, bit-and, bit-xor,
// bit-or, comparison, equality, logical and, logical or, conditional,
// assignment" (read there highest-to-lowest; inverted here since the
// Pratt loop climbs upward).
type precedence int

const (
	precNone precedence = iota
	precAssign
	precConditional
	precOr
	precAnd
	precEquality
	precComparison
	precBitOr
	precBitXor
	precBitAnd
	precShift
	precRange
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

type (
	prefixFn func(canAssign bool)
	infixFn  func(canAssign bool)
)

type rule struct {
	prefix prefixFn
	infix  infixFn
	prec   precedence
}

func (p *Parser) rules() map[lexer.TokenType]rule {
	return map[lexer.TokenType]rule{
		lexer.TokLParen:   {p.grouping, p.call, precCall},
		lexer.TokLBracket: {p.listLiteral, p.index, precCall},
		lexer.TokLBrace:   {p.dictLiteral, nil, precNone},
		lexer.TokDot:      {nil, p.dot, precCall},
		lexer.TokMinus:    {p.unary, p.binary, precTerm},
		lexer.TokPlus:     {nil, p.binary, precTerm},
		lexer.TokBang:     {p.unary, nil, precNone},
		lexer.TokTilde:    {p.unary, nil, precNone},
		lexer.TokSlash:    {nil, p.binary, precFactor},
		lexer.TokFloor:    {nil, p.binary, precFactor},
		lexer.TokStar:     {nil, p.binary, precFactor},
		lexer.TokPercent:  {nil, p.binary, precFactor},
		lexer.TokPow:      {nil, p.binary, precFactor},
		lexer.TokRange:    {nil, p.rangeExpr, precRange},
		lexer.TokLShift:   {nil, p.binary, precShift},
		lexer.TokRShift:   {nil, p.binary, precShift},
		lexer.TokAmp:      {nil, p.binary, precBitAnd},
		lexer.TokCaret:    {nil, p.binary, precBitXor},
		lexer.TokBar:      {p.lambda, p.binary, precBitOr},
		lexer.TokBangEq:   {nil, p.binary, precEquality},
		lexer.TokTildeEq:  {nil, p.binary, precEquality},
		lexer.TokEqEq:     {nil, p.binary, precEquality},
		lexer.TokGreater:  {nil, p.binary, precComparison},
		lexer.TokGreaterEq: {nil, p.binary, precComparison},
		lexer.TokLess:     {nil, p.binary, precComparison},
		lexer.TokLessEq:   {nil, p.binary, precComparison},
		lexer.TokIdentifier: {p.variable, nil, precNone},
		lexer.TokString:     {p.stringLit, nil, precNone},
		lexer.TokInterpolation: {p.interpolation, nil, precNone},
		lexer.TokNumber:     {p.number, nil, precNone},
		lexer.TokAnd:        {nil, p.and, precAnd},
		lexer.TokOr:         {nil, p.or, precOr},
		lexer.TokQuestion:   {nil, p.ternary, precConditional},
		lexer.TokFalse:      {p.literal, nil, precNone},
		lexer.TokTrue:       {p.literal, nil, precNone},
		lexer.TokNil:        {p.literal, nil, precNone},
		lexer.TokEmpty:      {p.literal, nil, precNone},
		lexer.TokSelf:       {p.self, nil, precNone},
		lexer.TokParent:     {p.parent, nil, precNone},
		lexer.TokNot:        {p.unary, nil, precNone},
		lexer.TokTriDot:     {nil, nil, precNone},
	}
}

func (p *Parser) getRule(t lexer.TokenType) rule {
	if r, ok := p.rules()[t]; ok {
		return r
	}
	return rule{}
}

func (p *Parser) parsePrecedence(prec precedence) {
	p.advance()
	r := p.getRule(p.previous.Type)
	if r.prefix == nil {
		p.errorAtPrevious("expected expression")
		return
	}
	canAssign := prec <= precAssign
	r.prefix(canAssign)

	for prec <= p.getRule(p.current.Type).prec {
		p.advance()
		infix := p.getRule(p.previous.Type).infix
		if infix == nil {
			p.errorAtPrevious("unexpected token in expression")
			return
		}
		infix(canAssign)
	}

	if canAssign && p.matchAny(assignTokens...) {
		p.errorAtPrevious("invalid assignment target")
	}
}

var assignTokens = []lexer.TokenType{
	lexer.TokAssign, lexer.TokPlusEq, lexer.TokMinusEq, lexer.TokStarEq,
	lexer.TokSlashEq, lexer.TokFloorEq, lexer.TokPowEq, lexer.TokPercentEq,
	lexer.TokAmpEq, lexer.TokBarEq, lexer.TokCaretEq,
	lexer.TokLShiftEq, lexer.TokRShiftEq,
}

func (p *Parser) expression() {
	p.parsePrecedence(precAssign)
}
