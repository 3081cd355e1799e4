// Package compiler implements the single-pass, Pratt-style parser that
// compiles source text directly into bytecode -- there is no intermediate
// AST (spec 4.5). It reuses the teacher's precedence-climbing shape
// (parseExpression driven by a precedence table) but emits straight into
// a *value.Blob as it goes, the way a single-pass compiler must.
package compiler

import (
	"github.com/kristofer/smog/pkg/lexer"
	"github.com/kristofer/smog/pkg/value"
)

const maxLocals = 256

// local is one entry in a function's fixed-capacity local-slot table.
type local struct {
	name       string
	depth      int
	isCaptured bool
}

// loopState tracks the nearest enclosing loop so `break`/`continue` know
// where to jump: continueTarget for `continue`, and the list of
// break-placeholder offsets patched once the loop's exit address is known
// (spec 4.5, "A break emits a placeholder opcode that is rewritten to JUMP
// when the loop is closed").
type loopState struct {
	enclosing      *loopState
	continueTarget int
	breaks         []int
	scopeDepth     int
}

// classState tracks the class currently being compiled, so `self`/`parent`
// and initializer-name checks have somewhere to read from (spec 4.6,
// "self and parent").
type classState struct {
	enclosing *classState
	name      *value.String
	hasSuper  bool
}

// fnState is one function's compile-time record: its local-slot table,
// upvalue descriptors, scope depth, and handler depth (spec 4.5,
// "Per-function compile state"). fnStates link through `enclosing`
// pointers to mirror lexical nesting, exactly like the teacher's compiler
// chain, just retargeted at emitting bytecode instead of walking an AST.
type fnState struct {
	enclosing    *fnState
	fn           *value.Function
	kind         value.FunctionKind
	locals       []local
	scopeDepth   int
	loop         *loopState
	handlerDepth int
}

func newFnState(enclosing *fnState, kind value.FunctionKind, name *value.String) *fnState {
	fs := &fnState{
		enclosing: enclosing,
		kind:      kind,
		fn: &value.Function{
			Name: name,
			Kind: kind,
			Blob: &value.Blob{},
		},
	}
	// Slot 0 is reserved for `self` in methods, or the implicit receiver
	// in scripts (spec 4.5).
	slotName := ""
	if kind == value.FuncMethod || kind == value.FuncInitializer || kind == value.FuncStatic {
		slotName = "self"
	}
	fs.locals = append(fs.locals, local{name: slotName, depth: 0})
	return fs
}

// Parser drives the whole single-pass compile: token stream, current
// function/class compile state, and accumulated errors.
type Parser struct {
	scanner  *lexer.Scanner
	current  lexer.Token
	previous lexer.Token

	fn       *fnState
	class    *classState
	interner *value.Interner
	fileName string

	panicMode bool
	errs      []error
}
