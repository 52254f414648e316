package pl

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
)

// Recursive Descent parser for the pattern language.
// Parsing halts at the first error.

// ParseError reports the token the parser could not accept.
type ParseError struct {
	Loc        Location
	TokenIndex int
	Message    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Loc, e.Message)
}

// bailout unwinds the parser after an error has been recorded.
type bailout struct{}

type Parser struct {
	tokens     []Token
	current    int
	types      map[string]*TypeDecl
	namespaces [][]string
	err        *ParseError

	// For debugging
	matchLimit int
	matchCalls int
}

// Namespace is "namespace a::b { ... }". Types and functions declared inside are registered
// under their qualified names.
type Namespace struct {
	nodeBase
	Path  []string
	Stmts []Node
}

func (n *Namespace) Clone() Node {
	c := *n
	c.Path = append([]string(nil), n.Path...)
	c.Stmts = cloneNodes(n.Stmts)
	return &c
}

func Parse(tokens []Token) ([]Node, error) {
	var p Parser
	return p.Parse(tokens)
}

// ParseSource lexes and parses src.
func ParseSource(src string) ([]Node, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}

func (p *Parser) SetMatchLimit(i int) {
	p.matchLimit = i
}

// Types returns the named types declared by the last Parse, keyed by qualified name.
func (p *Parser) Types() map[string]*TypeDecl {
	return p.types
}

func (p *Parser) Parse(tokens []Token) (program []Node, err error) {
	p.tokens = tokens
	if len(tokens) == 0 || !(want{SeparatorTok, EndOfProgram}).matches(tokens[len(tokens)-1]) {
		var loc Location
		if len(tokens) > 0 {
			loc = tokens[len(tokens)-1].Loc
		}
		p.tokens = append(tokens[:len(tokens):len(tokens)], Token{Type: SeparatorTok, Value: EndOfProgram, Loc: loc})
	}
	p.current = 0
	p.types = make(map[string]*TypeDecl)
	p.namespaces = [][]string{nil}
	p.err = nil
	p.matchCalls = 0

	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			program, err = nil, p.err
		}
	}()

	for !p.match(sep(EndOfProgram)) {
		program = append(program, p.statement())
	}

	if len(program) == 0 {
		p.failAt(len(p.tokens)-1, "program is empty!")
	}

	dbg("parsed %d statements, %d types", len(program), len(p.types))
	return program, nil
}

/* Statements */

func (p *Parser) statement() Node {
	first := p.peek()
	var stmt Node

	switch {
	case p.sequence(kw(Using), anyIdent, op(Assignment)):
		stmt = p.usingDecl()
	case p.sequence(kw(Using), anyIdent):
		stmt = p.forwardDecl()
	case p.check(anyIdent):
		if p.isFunctionCallAhead() {
			p.advance()
			stmt = p.functionCall()
		} else {
			stmt = p.placement()
		}
	case p.check(kw(LittleEndianKw)) || p.check(kw(BigEndianKw)) || p.check(anyValueType):
		stmt = p.placement()
	case p.sequence(kw(KwStruct), anyIdent):
		stmt = p.structDecl()
	case p.sequence(kw(KwUnion), anyIdent, sep(CurlyBracketOpen)):
		stmt = p.unionDecl()
	case p.sequence(kw(KwEnum), anyIdent, op(Inherit)):
		stmt = p.enumDecl()
	case p.sequence(kw(KwBitfield), anyIdent, sep(CurlyBracketOpen)):
		stmt = p.bitfieldDecl()
	case p.sequence(kw(Function), anyIdent, sep(RoundBracketOpen)):
		stmt = p.functionDefinition()
	case p.match(kw(KwNamespace)):
		return mark(p.namespace(), first)
	default:
		p.fail("invalid sequence")
	}

	if p.match(attributeOpen) {
		p.attribute(stmt)
	}
	p.endOfExpression()

	return mark(stmt, first)
}

// mark records where a statement or member started and the doc comment written before it.
func mark(n Node, first Token) Node {
	b := n.base()
	b.Loc = first.Loc
	if first.Doc != "" {
		b.Doc = first.Doc
	}
	return n
}

func (p *Parser) endOfExpression() {
	if !p.match(sep(EndOfExpression)) {
		p.fail("missing ';' at end of expression")
	}
	// Superfluous semicolons
	for p.match(sep(EndOfExpression)) {
	}
}

// using Identifier = (type)
func (p *Parser) usingDecl() Node {
	name := p.tokenAt(-2).Value.(string)
	typ := p.typ(false)
	return p.addType(name, typ, typ.Endian)
}

// using Identifier;
func (p *Parser) forwardDecl() Node {
	name := p.prefixed(p.previous().Value.(string))
	if _, ok := p.types[name]; !ok {
		p.types[name] = &TypeDecl{Name: name, Forward: true}
	}
	return &ForwardDecl{Name: name}
}

func (p *Parser) namespace() Node {
	if !p.match(anyIdent) {
		p.fail("expected namespace identifier")
	}

	var path []string
	for {
		path = append(path, p.previous().Value.(string))
		if !p.sequence(op(ScopeResolutionOp), anyIdent) {
			break
		}
	}

	outer := p.namespaces[len(p.namespaces)-1]
	inner := append(append([]string(nil), outer...), path...)
	p.namespaces = append(p.namespaces, inner)

	if !p.match(sep(CurlyBracketOpen)) {
		p.fail("expected '{' at start of namespace")
	}

	ns := &Namespace{Path: path}
	for !p.match(sep(CurlyBracketClose)) {
		ns.Stmts = append(ns.Stmts, p.statement())
	}

	p.namespaces = p.namespaces[:len(p.namespaces)-1]
	return ns
}

// (type) Identifier @ expr | (type) Identifier[size] @ expr | (type) *Identifier : (type) @ expr
func (p *Parser) placement() Node {
	typ := p.typ(false)

	switch {
	case p.sequence(anyIdent, sep(SquareBracketOpen)):
		return p.arrayVariable(typ, true)
	case p.match(anyIdent):
		return p.variablePlacement(typ)
	case p.sequence(op(Star), anyIdent, op(Inherit)):
		return p.pointerVariable(typ, true)
	}
	p.fail("invalid sequence")
	return nil
}

func (p *Parser) variablePlacement(typ *TypeDecl) Node {
	v := &VariableDecl{Name: p.previous().Value.(string), Type: typ}

	if p.match(op(AtDeclaration)) {
		v.Placement = p.expression()
	} else if p.match(kw(In)) {
		v.In = true
	} else if p.match(kw(Out)) {
		v.Out = true
	}
	return v
}

// (type) Identifier[<expr|while(expr)>] [@ expr]
func (p *Parser) arrayVariable(typ *TypeDecl, placementRequired bool) Node {
	a := &ArrayVariableDecl{Name: p.tokenAt(-2).Value.(string), Type: typ}

	if !p.match(sep(SquareBracketClose)) {
		if p.sequence(kw(While), sep(RoundBracketOpen)) {
			a.Size = p.whileHead()
		} else {
			a.Size = p.expression()
		}

		if !p.match(sep(SquareBracketClose)) {
			p.fail("expected closing ']' at end of array declaration")
		}
	}

	if p.match(op(AtDeclaration)) {
		a.Placement = p.expression()
	} else if placementRequired {
		p.fail("expected placement instruction")
	}
	return a
}

// (type) *Identifier : (type) [@ expr]
func (p *Parser) pointerVariable(typ *TypeDecl, placementRequired bool) Node {
	ptr := &PointerVariableDecl{Name: p.tokenAt(-2).Value.(string), Type: typ}

	sizeTok := p.current
	ptr.SizeType = p.typ(false)
	if b, ok := ptr.SizeType.Type.(*BuiltinType); !ok || !b.Type.IsUnsigned() {
		p.failAt(sizeTok, "invalid type used for pointer size")
	}

	if p.match(op(AtDeclaration)) {
		ptr.Placement = p.expression()
	} else if placementRequired {
		p.fail("expected placement instruction")
	}
	return ptr
}

// while((expr))
func (p *Parser) whileHead() Node {
	w := &WhileStatement{Cond: p.expression()}
	if !p.match(sep(RoundBracketClose)) {
		p.fail("expected closing ')' after while head")
	}
	return w
}

/* Type declarations */

// [be|le] <Identifier|u8|u16|...|str>
func (p *Parser) typ(allowFunctionTypes bool) *TypeDecl {
	first := p.peek()
	t := &TypeDecl{}
	t.Loc = first.Loc

	if p.match(kw(LittleEndianKw)) {
		t.Endian = LittleEndian
	} else if p.match(kw(BigEndianKw)) {
		t.Endian = BigEndian
	}

	if p.match(anyIdent) {
		nameTok := p.current - 1
		name := p.namespaceResolution()
		decl, full := p.lookupType(name)
		if decl == nil {
			p.failAt(nameTok, fmt.Sprintf("unknown type '%s'", name))
		}
		t.Type = &TypeRef{Name: full, decl: decl}
		return t
	}

	if p.match(anyValueType) {
		vt := p.previous().Value.(ValueType)
		if !allowFunctionTypes {
			if vt == String {
				p.failAt(p.current-1, "cannot use 'str' in this context. Use a character array instead")
			} else if vt == Auto {
				p.failAt(p.current-1, "cannot use 'auto' in this context")
			}
		}
		t.Type = &BuiltinType{Type: vt}
		return t
	}

	p.fail("failed to parse type. Expected identifier or builtin type")
	return nil
}

func (p *Parser) lookupType(name string) (*TypeDecl, string) {
	if d, ok := p.types[name]; ok {
		return d, name
	}
	full := p.prefixed(name)
	if d, ok := p.types[full]; ok {
		return d, full
	}
	return nil, name
}

func (p *Parser) prefixed(name string) string {
	ns := p.namespaces[len(p.namespaces)-1]
	if len(ns) == 0 {
		return name
	}
	return strings.Join(ns, "::") + "::" + name
}

// addType registers a named type, completing a forward declaration of the same name.
func (p *Parser) addType(name string, node Node, endian Endian) *TypeDecl {
	full := p.prefixed(name)

	if d, ok := p.types[full]; ok {
		if !d.Forward {
			p.fail(fmt.Sprintf("redefinition of type '%s'", full))
		}
		d.Type, d.Endian, d.Forward = node, endian, false
		return d
	}

	d := &TypeDecl{Name: full, Type: node, Endian: endian}
	p.types[full] = d
	return d
}

// struct Identifier [: Identifier, ...] { <member...> }
func (p *Parser) structDecl() Node {
	name := p.previous().Value.(string)
	s := &Struct{}
	decl := p.addType(name, s, NativeEndian)

	if p.sequence(op(Inherit), anyIdent) {
		for {
			parent := p.previous().Value.(string)
			d, full := p.lookupType(parent)
			if d == nil {
				p.failAt(p.current-1, fmt.Sprintf("cannot inherit from unknown type '%s'", parent))
			}
			s.Inherits = append(s.Inherits, &TypeRef{Name: full, decl: d})

			if !p.sequence(sep(Comma), anyIdent) {
				break
			}
		}
	} else if p.sequence(op(Inherit), anyValueType) {
		p.failAt(p.current-1, "cannot inherit from builtin type")
	}

	if !p.match(sep(CurlyBracketOpen)) {
		p.fail("expected '{' after struct definition")
	}

	for !p.match(sep(CurlyBracketClose)) {
		s.Members = append(s.Members, p.member())
	}
	return decl
}

// union Identifier { <member...> }
func (p *Parser) unionDecl() Node {
	u := &Union{}
	decl := p.addType(p.tokenAt(-2).Value.(string), u, NativeEndian)

	for !p.match(sep(CurlyBracketClose)) {
		u.Members = append(u.Members, p.member())
	}
	return decl
}

// enum Identifier : (type) { <Identifier [= expr], ...> }
func (p *Parser) enumDecl() Node {
	name := p.tokenAt(-2).Value.(string)

	e := &Enum{Underlying: p.typ(false)}
	if e.Underlying.Endian != NativeEndian {
		p.fail("underlying type may not have an endian specification")
	}
	decl := p.addType(name, e, NativeEndian)

	if !p.match(sep(CurlyBracketOpen)) {
		p.fail("expected '{' after enum definition")
	}

	var last Node
	for !p.match(sep(CurlyBracketClose)) {
		var entry EnumEntry
		switch {
		case p.sequence(anyIdent, op(Assignment)):
			entry = EnumEntry{Name: p.tokenAt(-2).Value.(string), Value: p.expression()}
		case p.match(anyIdent):
			entry.Name = p.previous().Value.(string)
			if last == nil {
				entry.Value = &IntegerLiteral{Value: Literal{Kind: UnsignedLit}}
			} else {
				entry.Value = &BinaryExpr{Op: Plus, X: last.Clone(), Y: &IntegerLiteral{Value: Literal{Kind: UnsignedLit, Uint: 1}}}
			}
		case p.check(sep(EndOfProgram)):
			p.fail("unexpected end of program")
		default:
			p.fail("invalid enum entry")
		}
		e.Entries = append(e.Entries, entry)
		last = entry.Value

		if !p.match(sep(Comma)) {
			if p.match(sep(CurlyBracketClose)) {
				break
			}
			p.fail("missing ',' between enum entries")
		}
	}
	return decl
}

// bitfield Identifier { <Identifier : expr;...> }
func (p *Parser) bitfieldDecl() Node {
	b := &Bitfield{}
	decl := p.addType(p.tokenAt(-2).Value.(string), b, NativeEndian)

	for !p.match(sep(CurlyBracketClose)) {
		switch {
		case p.sequence(anyIdent, op(Inherit)):
			b.Fields = append(b.Fields, BitfieldField{Name: p.tokenAt(-2).Value.(string), Bits: p.expression()})
		case p.sequence(vt(Padding), op(Inherit)):
			b.Fields = append(b.Fields, BitfieldField{Name: "padding", Bits: p.expression()})
		case p.check(sep(EndOfProgram)):
			p.fail("unexpected end of program")
		default:
			p.fail("invalid bitfield member")
		}
		p.endOfExpression()
	}
	return decl
}

// [padding[expr] | (type) Identifier | (type) Identifier[size] | (type) *Identifier : (type) | if ...]
func (p *Parser) member() Node {
	first := p.peek()
	var m Node

	switch {
	case p.sequence(op(Dollar), op(Assignment)):
		m = p.assignment("$")
	case p.check(op(Dollar)) && p.checkCompoundAt(1):
		p.advance()
		m = p.compoundAssignment("$")
	case p.sequence(anyIdent, op(Assignment)):
		m = p.assignment(p.tokenAt(-2).Value.(string))
	case p.check(anyIdent) && p.checkCompoundAt(1):
		m = p.compoundAssignment(p.advance().Value.(string))
	case p.sequence(vt(Padding), sep(SquareBracketOpen)):
		m = p.padding()
	case p.check(kw(BigEndianKw)) || p.check(kw(LittleEndianKw)) || p.check(anyValueType) || p.check(anyIdent):
		if p.check(anyIdent) && p.isFunctionCallAhead() {
			p.advance()
			m = p.functionCall()
			break
		}

		typ := p.typ(false)
		switch {
		case p.sequence(anyIdent, sep(SquareBracketOpen)):
			m = p.arrayVariable(typ, false)
		case p.match(anyIdent):
			m = p.memberVariable(typ)
		case p.sequence(op(Star), anyIdent, op(Inherit)):
			m = p.pointerVariable(typ, false)
		default:
			p.fail("invalid variable declaration")
		}
	case p.sequence(kw(If), sep(RoundBracketOpen)):
		return mark(p.conditional(), first)
	case p.check(sep(EndOfProgram)):
		p.fail("unexpected end of program")
	case p.match(kw(Break)):
		m = &ControlFlow{Kind: BreakFlow}
	case p.match(kw(Continue)):
		m = &ControlFlow{Kind: ContinueFlow}
	default:
		p.fail("invalid struct member")
	}

	if p.match(attributeOpen) {
		p.attribute(m)
	}
	p.endOfExpression()

	return mark(m, first)
}

// (type) Identifier [, Identifier...] | (type) Identifier @ expr
func (p *Parser) memberVariable(typ *TypeDecl) Node {
	name := p.previous().Value.(string)

	if p.check(sep(Comma)) {
		multi := &MultiVariableDecl{Vars: []*VariableDecl{{Name: name, Type: typ}}}
		for p.sequence(sep(Comma), anyIdent) {
			multi.Vars = append(multi.Vars, &VariableDecl{Name: p.previous().Value.(string), Type: cloneType(typ)})
		}
		return multi
	}

	v := &VariableDecl{Name: name, Type: typ}
	if p.match(op(AtDeclaration)) {
		v.Placement = p.expression()
	}
	return v
}

// padding[expr]
func (p *Parser) padding() Node {
	size := p.expression()
	if !p.match(sep(SquareBracketClose)) {
		p.fail("expected closing ']' at end of array declaration")
	}
	return &ArrayVariableDecl{Type: &TypeDecl{Type: &BuiltinType{Type: Padding}}, Size: size}
}

// if (expr) <{ member... }|member> [else <{ member... }|member>]
func (p *Parser) conditional() Node {
	c := &Conditional{Cond: p.expression()}

	if p.sequence(sep(RoundBracketClose), sep(CurlyBracketOpen)) {
		for !p.match(sep(CurlyBracketClose)) {
			c.Then = append(c.Then, p.member())
		}
	} else if p.match(sep(RoundBracketClose)) {
		c.Then = append(c.Then, p.member())
	} else {
		p.fail("expected body of conditional statement")
	}

	if p.sequence(kw(Else), sep(CurlyBracketOpen)) {
		for !p.match(sep(CurlyBracketClose)) {
			c.Else = append(c.Else, p.member())
		}
	} else if p.match(kw(Else)) {
		c.Else = append(c.Else, p.member())
	}
	return c
}

// [[ <Identifier[("string")], ...> ]]
func (p *Parser) attribute(n Node) {
	a, ok := n.(Attributable)
	if !ok {
		p.failAt(p.current-1, "tried to apply attribute to invalid statement")
	}

	for {
		if !p.match(anyIdent) {
			p.fail("expected attribute expression")
		}
		attr := Attribute{Name: p.previous().Value.(string)}
		if p.sequence(sep(RoundBracketOpen), anyString, sep(RoundBracketClose)) {
			attr.Value, attr.HasValue = p.tokenAt(-2).Value.(string), true
		}
		a.AddAttribute(attr)

		if !p.match(sep(Comma)) {
			break
		}
	}

	if !p.sequence(sep(SquareBracketClose), sep(SquareBracketClose)) {
		p.fail("unfinished attribute. Expected ']]'")
	}
}

/* Functions */

// fn Identifier(<(type) [Identifier], ...> [auto ...Identifier]) { statement... }
func (p *Parser) functionDefinition() Node {
	fn := &FunctionDefinition{Name: p.prefixed(p.tokenAt(-2).Value.(string))}

	unnamed := 0
	if !p.check(sep(RoundBracketClose)) {
		for {
			if p.sequence(vt(Auto), sep(Dot), sep(Dot), sep(Dot), anyIdent) {
				fn.ParamPack = p.previous().Value.(string)
				if p.match(sep(Comma)) {
					p.fail("parameter pack can only appear at end of parameter list")
				}
				break
			}

			param := Param{Type: p.typ(true)}
			if p.match(anyIdent) {
				param.Name = p.previous().Value.(string)
			} else {
				param.Name = strconv.Itoa(unnamed)
				unnamed++
			}
			fn.Params = append(fn.Params, param)

			if !p.match(sep(Comma)) {
				break
			}
		}
	}

	if !p.match(sep(RoundBracketClose)) {
		p.fail("expected closing ')' after parameter list")
	}
	if !p.match(sep(CurlyBracketOpen)) {
		p.fail("expected opening '{' after function definition")
	}

	for !p.match(sep(CurlyBracketClose)) {
		fn.Body = append(fn.Body, p.functionStatement())
	}
	return fn
}

func (p *Parser) functionStatement() Node {
	first := p.peek()
	needsSemicolon := true
	var s Node

	switch {
	case p.sequence(anyIdent, op(Assignment)):
		s = p.assignment(p.tokenAt(-2).Value.(string))
	case p.sequence(op(Dollar), op(Assignment)):
		s = p.assignment("$")
	case p.check(anyIdent) && p.checkCompoundAt(1):
		s = p.compoundAssignment(p.advance().Value.(string))
	case p.check(op(Dollar)) && p.checkCompoundAt(1):
		p.advance()
		s = p.compoundAssignment("$")
	case p.match(kw(Return), kw(Break), kw(Continue)):
		s = p.controlFlow()
	case p.sequence(kw(If), sep(RoundBracketOpen)):
		s = p.functionConditional()
		needsSemicolon = false
	case p.sequence(kw(While), sep(RoundBracketOpen)):
		s = p.functionWhile()
		needsSemicolon = false
	case p.sequence(kw(For), sep(RoundBracketOpen)):
		s = p.functionFor()
		needsSemicolon = false
	case p.check(anyIdent):
		if p.isFunctionCallAhead() {
			p.advance()
			s = p.functionCall()
		} else {
			s = p.functionVariableDecl()
		}
	case p.check(kw(BigEndianKw)) || p.check(kw(LittleEndianKw)) || p.check(anyValueType):
		s = p.functionVariableDecl()
	default:
		p.fail("invalid sequence")
	}

	if needsSemicolon {
		p.endOfExpression()
	}
	return mark(s, first)
}

func (p *Parser) assignment(lvalue string) Node {
	return &AssignmentStmt{LValue: lvalue, RValue: p.expression()}
}

// compoundAssignment turns "x += e" into "x = x + e". The operator is the current token.
func (p *Parser) compoundAssignment(lvalue string) Node {
	o, _ := p.advance().Value.(Operator).Compound()
	rvalue := p.expression()
	return &AssignmentStmt{
		LValue: lvalue,
		RValue: &BinaryExpr{Op: o, X: &RValue{Path: []PathSegment{{Name: lvalue}}}, Y: rvalue},
	}
}

func (p *Parser) controlFlow() Node {
	c := &ControlFlow{}
	switch p.previous().Value.(Keyword) {
	case Return:
		c.Kind = ReturnFlow
	case Break:
		c.Kind = BreakFlow
	case Continue:
		c.Kind = ContinueFlow
	}
	if !p.check(sep(EndOfExpression)) {
		c.Value = p.expression()
	}
	return c
}

func (p *Parser) functionVariableDecl() Node {
	typ := p.typ(true)
	if !p.match(anyIdent) {
		p.fail("invalid variable declaration")
	}
	name := p.previous().Value.(string)
	s := p.memberVariable(typ)

	if p.match(op(Assignment)) {
		s = &CompoundStatement{Stmts: []Node{s, &AssignmentStmt{LValue: name, RValue: p.expression()}}}
	}
	return s
}

func (p *Parser) statementBody() []Node {
	var body []Node
	if p.match(sep(CurlyBracketOpen)) {
		for !p.match(sep(CurlyBracketClose)) {
			body = append(body, p.functionStatement())
		}
	} else {
		body = append(body, p.functionStatement())
	}
	return body
}

func (p *Parser) functionConditional() Node {
	c := &Conditional{Cond: p.expression()}
	if !p.match(sep(RoundBracketClose)) {
		p.fail("expected closing ')' after statement head")
	}
	c.Then = p.statementBody()
	if p.match(kw(Else)) {
		c.Else = p.statementBody()
	}
	return c
}

func (p *Parser) functionWhile() Node {
	w := &WhileStatement{Cond: p.expression()}
	if !p.match(sep(RoundBracketClose)) {
		p.fail("expected closing ')' after statement head")
	}
	w.Body = p.statementBody()
	return w
}

// for ((variable decl), expr, (assignment)) body
func (p *Parser) functionFor() Node {
	init := p.functionVariableDecl()
	if !p.match(sep(Comma)) {
		p.fail("expected ',' after for loop variable declaration")
	}

	w := &WhileStatement{Cond: p.expression()}
	if !p.match(sep(Comma)) {
		p.fail("expected ',' after for loop condition")
	}

	switch {
	case p.sequence(anyIdent, op(Assignment)):
		w.Post = p.assignment(p.tokenAt(-2).Value.(string))
	case p.sequence(op(Dollar), op(Assignment)):
		w.Post = p.assignment("$")
	case p.check(anyIdent) && p.checkCompoundAt(1):
		w.Post = p.compoundAssignment(p.advance().Value.(string))
	case p.check(op(Dollar)) && p.checkCompoundAt(1):
		p.advance()
		w.Post = p.compoundAssignment("$")
	default:
		p.fail("expected variable assignment in for loop post expression")
	}

	if !p.match(sep(RoundBracketClose)) {
		p.fail("expected closing ')' after statement head")
	}
	w.Body = p.statementBody()

	return &CompoundStatement{Stmts: []Node{init, w}, NewScope: true}
}

// Identifier[::Identifier...]( <expr, ...> ). The first identifier has been consumed.
func (p *Parser) functionCall() Node {
	call := &FunctionCall{Name: p.namespaceResolution()}
	call.Loc = p.previous().Loc

	if !p.match(sep(RoundBracketOpen)) {
		p.fail("expected '(' after function name")
	}

	for !p.match(sep(RoundBracketClose)) {
		call.Args = append(call.Args, p.expression())

		if p.check(sep(Comma)) && p.checkAt(1, sep(RoundBracketClose)) {
			p.fail("unexpected ',' at end of function parameter list")
		} else if p.match(sep(RoundBracketClose)) {
			break
		} else if !p.match(sep(Comma)) {
			p.fail("missing ',' between parameters")
		}
	}
	return call
}

func (p *Parser) isFunctionCallAhead() bool {
	pos := p.current
	p.advance()
	p.namespaceResolution()
	isFunction := p.check(sep(RoundBracketOpen))
	p.current = pos
	return isFunction
}

// namespaceResolution reads a::b::c. The first identifier has been consumed.
func (p *Parser) namespaceResolution() string {
	name := p.previous().Value.(string)
	for p.sequence(op(ScopeResolutionOp), anyIdent) {
		name += "::" + p.previous().Value.(string)
	}
	return name
}

/* Expressions */

func (p *Parser) expression() Node {
	return p.ternary()
}

// (logicalOr) ? (ternary) : (ternary)
func (p *Parser) ternary() Node {
	loc := p.peek().Loc
	n := p.logicalOr()

	if p.match(op(TernaryConditional)) {
		t := &TernaryExpr{Cond: n, Then: p.ternary()}
		if !p.match(op(Inherit)) {
			p.fail("expected ':' in ternary expression")
		}
		t.Else = p.ternary()
		t.Loc = loc
		n = t
	}
	return n
}

// binary parses a left associative chain of next separated by any of ops.
func (p *Parser) binary(next func() Node, ops ...Operator) Node {
	loc := p.peek().Loc
	n := next()

	for p.matchOperator(ops...) {
		b := &BinaryExpr{Op: p.previous().Value.(Operator), X: n, Y: next()}
		b.Loc = loc
		n = b
	}
	return n
}

func (p *Parser) logicalOr() Node {
	return p.binary(p.logicalXor, BoolOr)
}

func (p *Parser) logicalXor() Node {
	return p.binary(p.logicalAnd, BoolXor)
}

func (p *Parser) logicalAnd() Node {
	return p.binary(p.bitOr, BoolAnd)
}

func (p *Parser) bitOr() Node {
	return p.binary(p.bitXor, BitOr)
}

func (p *Parser) bitXor() Node {
	return p.binary(p.bitAnd, BitXor)
}

func (p *Parser) bitAnd() Node {
	return p.binary(p.equality, BitAnd)
}

func (p *Parser) equality() Node {
	return p.binary(p.relational, BoolEquals, BoolNotEquals)
}

func (p *Parser) relational() Node {
	return p.binary(p.shift, BoolGreaterThan, BoolLessThan, BoolGreaterThanOrEquals, BoolLessThanOrEquals)
}

func (p *Parser) shift() Node {
	return p.binary(p.additive, ShiftLeft, ShiftRight)
}

func (p *Parser) additive() Node {
	return p.binary(p.multiplicative, Plus, Minus)
}

func (p *Parser) multiplicative() Node {
	return p.binary(p.unary, Star, Slash, Percent)
}

// <+|-|!|~> (unary) | String | (cast)
func (p *Parser) unary() Node {
	loc := p.peek().Loc

	if p.matchOperator(Plus, Minus, BoolNot, BitNot) {
		u := &UnaryExpr{Op: p.previous().Value.(Operator)}
		u.X = p.unary()
		u.Loc = loc
		return u
	}
	if p.match(anyString) {
		s := &StringLiteral{Value: p.previous().Value.(string)}
		s.Loc = loc
		return s
	}
	return p.cast()
}

// [be|le] builtin( expr )
func (p *Parser) cast() Node {
	if !(p.check(kw(BigEndianKw)) || p.check(kw(LittleEndianKw)) || p.check(anyValueType)) {
		return p.factor()
	}

	loc := p.peek().Loc
	typ := p.typ(true)
	if _, ok := typ.Type.(*BuiltinType); !ok {
		p.fail("invalid type used in cast expression")
	}
	if !p.check(sep(RoundBracketOpen)) {
		p.fail("expected '(' before cast expression")
	}

	c := &Cast{X: p.factor(), Type: typ}
	c.Loc = loc
	return c
}

func (p *Parser) factor() Node {
	tok := p.peek()

	switch {
	case p.match(anyInteger):
		l := &IntegerLiteral{Value: tok.Value.(Literal)}
		l.Loc = tok.Loc
		return l
	case p.match(sep(RoundBracketOpen)):
		n := p.expression()
		if !p.match(sep(RoundBracketClose)) {
			p.fail("expected closing parenthesis")
		}
		return n
	case p.check(anyIdent):
		if p.isFunctionCallAhead() {
			p.advance()
			return p.functionCall()
		}
		p.advance()
		if p.check(op(ScopeResolutionOp)) {
			return p.scopeResolution()
		}
		return p.rvalue()
	case p.match(kw(Parent), kw(This)):
		return p.rvalue()
	case p.match(op(Dollar)):
		r := &RValue{Path: []PathSegment{{Name: "$"}}}
		r.Loc = tok.Loc
		return r
	case (p.check(op(AddressOf)) || p.check(op(SizeOf))) && p.checkAt(1, sep(RoundBracketOpen)):
		o := p.advance().Value.(Operator)
		p.advance()

		var n Node
		if p.match(anyIdent, kw(Parent), kw(This)) {
			n = &TypeOperator{Op: o, X: p.rvalue()}
		} else if p.match(anyValueType) {
			size := p.previous().Value.(ValueType).Size()
			n = &IntegerLiteral{Value: Literal{Kind: UnsignedLit, Uint: uint64(size)}}
		} else {
			p.fail("expected rvalue identifier or built-in type")
		}

		if !p.match(sep(RoundBracketClose)) {
			p.fail("expected closing parenthesis")
		}
		n.base().Loc = tok.Loc
		return n
	}

	p.fail("expected value or parenthesis")
	return nil
}

// Type::Entry. The first identifier has been consumed.
func (p *Parser) scopeResolution() Node {
	loc := p.previous().Loc
	name := p.previous().Value.(string)

	for p.sequence(op(ScopeResolutionOp), anyIdent) {
		if p.check(op(ScopeResolutionOp)) && p.checkAt(1, anyIdent) {
			name += "::" + p.previous().Value.(string)
			continue
		}

		decl, full := p.lookupType(name)
		if decl == nil {
			p.failAt(p.current-1, fmt.Sprintf("cannot access scope of invalid type '%s'", name))
		}
		s := &ScopeResolution{Type: &TypeRef{Name: full, decl: decl}, Member: p.previous().Value.(string)}
		s.Loc = loc
		return s
	}

	p.fail("failed to parse scope resolution. Expected 'TypeName::Identifier'")
	return nil
}

// <Identifier|parent|this>[[expr]][.<Identifier|parent>...]. The first name has been consumed.
func (p *Parser) rvalue() Node {
	r := &RValue{}
	r.Loc = p.previous().Loc

	for {
		t := p.previous()
		switch v := t.Value.(type) {
		case string:
			r.Path = append(r.Path, PathSegment{Name: v})
		case Keyword:
			r.Path = append(r.Path, PathSegment{Name: v.String()})
		}

		if p.match(sep(SquareBracketOpen)) {
			r.Path = append(r.Path, PathSegment{Index: p.expression()})
			if !p.match(sep(SquareBracketClose)) {
				p.fail("expected closing ']' at end of array indexing")
			}
		}

		if !p.match(sep(Dot)) {
			break
		}
		if !p.match(anyIdent, kw(Parent)) {
			p.fail("expected member name or 'parent' keyword")
		}
	}
	return r
}

/* Token matching */

// want describes a token to match: its type and, unless val is nil, its value.
type want struct {
	typ TokenType
	val interface{}
}

func (w want) matches(t Token) bool {
	return t.Type == w.typ && (w.val == nil || t.Value == w.val)
}

func kw(k Keyword) want { return want{KeywordTok, k} }
func op(o Operator) want { return want{OperatorTok, o} }
func sep(s Separator) want { return want{SeparatorTok, s} }
func vt(v ValueType) want { return want{ValueTypeTok, v} }

var (
	anyIdent      = want{typ: IdentifierTok}
	anyValueType  = want{typ: ValueTypeTok}
	anyInteger    = want{typ: IntegerTok}
	anyString     = want{typ: StringTok}
	attributeOpen = want{typ: AttributeTok}
)

// match consumes the current token if it matches any of wants.
func (p *Parser) match(wants ...want) bool {
	if p.matchLimit > 0 {
		p.matchCalls++
		if p.matchCalls > p.matchLimit {
			p.abortAndPrintState()
		}
	}

	for _, w := range wants {
		if p.check(w) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) matchOperator(ops ...Operator) bool {
	for _, o := range ops {
		if p.match(op(o)) {
			return true
		}
	}
	return false
}

// sequence consumes the next len(wants) tokens if they match wants in order, and nothing otherwise.
func (p *Parser) sequence(wants ...want) bool {
	for i, w := range wants {
		if !p.checkAt(i, w) {
			return false
		}
	}
	p.current += len(wants)
	return true
}

func (p *Parser) check(w want) bool {
	return p.checkAt(0, w)
}

func (p *Parser) checkAt(i int, w want) bool {
	if p.current+i >= len(p.tokens) {
		return false
	}
	return w.matches(p.tokens[p.current+i])
}

func (p *Parser) checkCompoundAt(i int) bool {
	if p.current+i >= len(p.tokens) {
		return false
	}
	t := p.tokens[p.current+i]
	if t.Type != OperatorTok {
		return false
	}
	_, ok := t.Value.(Operator).Compound()
	return ok
}

func (p *Parser) advance() Token {
	if !p.atEnd() {
		p.current++
	}
	return p.previous()
}

func (p *Parser) peek() Token {
	return p.tokens[min(p.current, len(p.tokens)-1)]
}

func (p *Parser) previous() Token {
	return p.tokens[p.current-1]
}

// tokenAt returns the token i places from the current one.
func (p *Parser) tokenAt(i int) Token {
	return p.tokens[p.current+i]
}

func (p *Parser) atEnd() bool {
	return p.current >= len(p.tokens)
}

func (p *Parser) fail(msg string) {
	p.failAt(p.current, msg)
}

func (p *Parser) failAt(index int, msg string) {
	index = max(0, min(index, len(p.tokens)-1))
	p.err = &ParseError{Loc: p.tokens[index].Loc, TokenIndex: index, Message: msg}
	dbg("parse error at token %d (%s): %s", index, p.tokens[index], msg)
	panic(bailout{})
}

func (p *Parser) abortAndPrintState() {
	fmt.Fprintf(os.Stderr, "Aborting due to possible loop\n")
	tok := "<at end>"
	if !p.atEnd() {
		tok = p.tokens[p.current].String()
	}
	fmt.Fprintf(os.Stderr, "trying to match: %d (%s)\n", p.current, tok)
	debug.PrintStack()
	panic("Abort")
}
