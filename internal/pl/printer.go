package pl

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Print renders a program as canonical pattern source. Parsing the output yields a program equal
// to the input apart from source locations.
func Print(program []Node) string {
	var pr printer
	for _, n := range program {
		pr.stmt(n)
	}
	return pr.buf.String()
}

// PrintExpr renders a single expression.
func PrintExpr(n Node) string {
	var pr printer
	return pr.expr(n)
}

type printer struct {
	buf    strings.Builder
	indent int
}

func (pr *printer) line(format string, args ...interface{}) {
	for i := 0; i < pr.indent; i++ {
		pr.buf.WriteString("    ")
	}
	fmt.Fprintf(&pr.buf, format, args...)
	pr.buf.WriteByte('\n')
}

func (pr *printer) block(nodes []Node) {
	pr.indent++
	for _, n := range nodes {
		pr.stmt(n)
	}
	pr.indent--
}

func (pr *printer) doc(n Node) {
	d := n.base().Doc
	if d == "" {
		return
	}
	for _, l := range strings.Split(d, "\n") {
		if l == "" {
			pr.line("///")
		} else {
			pr.line("/// %s", l)
		}
	}
}

func (pr *printer) stmt(n Node) {
	pr.doc(n)

	switch v := n.(type) {
	case *TypeDecl:
		pr.typeDecl(v)
	case *ForwardDecl:
		pr.line("using %s;", shortName(v.Name))
	case *Namespace:
		pr.line("namespace %s {", strings.Join(v.Path, "::"))
		pr.block(v.Stmts)
		pr.line("}")
	case *FunctionDefinition:
		params := make([]string, 0, len(v.Params)+1)
		for _, prm := range v.Params {
			s := pr.typeUse(prm.Type)
			if _, err := strconv.Atoi(prm.Name); err != nil {
				s += " " + prm.Name
			}
			params = append(params, s)
		}
		if v.ParamPack != "" {
			params = append(params, "auto ..."+v.ParamPack)
		}
		pr.line("fn %s(%s) {", shortName(v.Name), strings.Join(params, ", "))
		pr.block(v.Body)
		pr.line("};")
	case *Conditional:
		pr.line("if (%s) {", pr.expr(v.Cond))
		pr.block(v.Then)
		if len(v.Else) > 0 {
			pr.line("} else {")
			pr.block(v.Else)
		}
		pr.line("}")
	case *WhileStatement:
		pr.line("while (%s) {", pr.expr(v.Cond))
		pr.block(v.Body)
		pr.line("}")
	case *CompoundStatement:
		pr.compound(v)
	default:
		pr.line("%s;", pr.inline(n))
	}
}

func (pr *printer) compound(c *CompoundStatement) {
	if len(c.Stmts) == 2 {
		if w, ok := c.Stmts[1].(*WhileStatement); ok && c.NewScope && w.Post != nil {
			pr.line("for (%s, %s, %s) {", pr.declInit(c.Stmts[0]), pr.expr(w.Cond), pr.inline(w.Post))
			pr.block(w.Body)
			pr.line("}")
			return
		}
		if s, ok := pr.declAssign(c); ok {
			pr.line("%s;", s)
			return
		}
	}
	for _, s := range c.Stmts {
		pr.stmt(s)
	}
}

// declAssign renders "T x = e" when c is a declaration followed by an assignment to it.
func (pr *printer) declAssign(c *CompoundStatement) (string, bool) {
	if c.NewScope || len(c.Stmts) != 2 {
		return "", false
	}
	a, ok := c.Stmts[1].(*AssignmentStmt)
	if !ok {
		return "", false
	}
	switch d := c.Stmts[0].(type) {
	case *VariableDecl:
		if d.Name == a.LValue {
			return pr.inline(d) + " = " + pr.expr(a.RValue), true
		}
	case *MultiVariableDecl:
		if d.Vars[0].Name == a.LValue {
			return pr.inline(d) + " = " + pr.expr(a.RValue), true
		}
	}
	return "", false
}

func (pr *printer) declInit(n Node) string {
	if c, ok := n.(*CompoundStatement); ok {
		if s, ok := pr.declAssign(c); ok {
			return s
		}
	}
	return pr.inline(n)
}

func (pr *printer) typeDecl(t *TypeDecl) {
	name := shortName(t.Name)
	attrs := pr.attributes(t.Attrs)

	switch v := t.Type.(type) {
	case *Struct:
		head := "struct " + name
		if len(v.Inherits) > 0 {
			names := make([]string, len(v.Inherits))
			for i, r := range v.Inherits {
				names[i] = r.Name
			}
			head += " : " + strings.Join(names, ", ")
		}
		pr.line("%s {", head)
		pr.block(v.Members)
		pr.line("}%s;", attrs)
	case *Union:
		pr.line("union %s {", name)
		pr.block(v.Members)
		pr.line("}%s;", attrs)
	case *Enum:
		pr.line("enum %s : %s {", name, pr.typeUse(v.Underlying))
		pr.indent++
		for i, e := range v.Entries {
			sep := ","
			if i == len(v.Entries)-1 {
				sep = ""
			}
			pr.line("%s = %s%s", e.Name, pr.expr(e.Value), sep)
		}
		pr.indent--
		pr.line("}%s;", attrs)
	case *Bitfield:
		pr.line("bitfield %s {", name)
		pr.indent++
		for _, f := range v.Fields {
			pr.line("%s : %s;", f.Name, pr.expr(f.Bits))
		}
		pr.indent--
		pr.line("}%s;", attrs)
	case *TypeDecl:
		pr.line("using %s = %s%s;", name, pr.typeUse(v), attrs)
	default:
		pr.line("using %s = %s%s;", name, pr.typeUse(t), attrs)
	}
}

func (pr *printer) attributes(attrs []Attribute) string {
	if len(attrs) == 0 {
		return ""
	}
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = a.Name
		if a.HasValue {
			parts[i] += "(" + quote(a.Value) + ")"
		}
	}
	return " [[" + strings.Join(parts, ", ") + "]]"
}

// typeUse renders the type of a declaration, with its endian override.
func (pr *printer) typeUse(t *TypeDecl) string {
	var s string
	if t.Endian != NativeEndian {
		s = t.Endian.String() + " "
	}
	switch v := t.Type.(type) {
	case *BuiltinType:
		s += v.Type.String()
	case *TypeRef:
		s += v.Name
	case *TypeDecl:
		return pr.typeUse(v)
	default:
		s += t.Name
	}
	return s
}

func (pr *printer) placement(n Node) string {
	if n == nil {
		return ""
	}
	return " @ " + pr.expr(n)
}

// inline renders a statement that fits on one line, without the terminating ';'.
func (pr *printer) inline(n Node) string {
	switch v := n.(type) {
	case *VariableDecl:
		s := pr.typeUse(v.Type) + " " + v.Name + pr.placement(v.Placement)
		if v.In {
			s += " in"
		} else if v.Out {
			s += " out"
		}
		return s + pr.attributes(v.Attrs)
	case *MultiVariableDecl:
		names := make([]string, len(v.Vars))
		for i, d := range v.Vars {
			names[i] = d.Name
		}
		return pr.typeUse(v.Vars[0].Type) + " " + strings.Join(names, ", ")
	case *ArrayVariableDecl:
		if b, ok := v.Type.Type.(*BuiltinType); ok && b.Type == Padding && v.Name == "" {
			return "padding[" + pr.expr(v.Size) + "]" + pr.attributes(v.Attrs)
		}
		size := ""
		switch sz := v.Size.(type) {
		case nil:
		case *WhileStatement:
			size = "while(" + pr.expr(sz.Cond) + ")"
		default:
			size = pr.expr(sz)
		}
		return pr.typeUse(v.Type) + " " + v.Name + "[" + size + "]" + pr.placement(v.Placement) + pr.attributes(v.Attrs)
	case *PointerVariableDecl:
		return pr.typeUse(v.Type) + " *" + v.Name + " : " + pr.typeUse(v.SizeType) + pr.placement(v.Placement) + pr.attributes(v.Attrs)
	case *AssignmentStmt:
		return v.LValue + " = " + pr.expr(v.RValue)
	case *ControlFlow:
		if v.Value == nil {
			return v.Kind.String()
		}
		return v.Kind.String() + " " + pr.expr(v.Value)
	case *CompoundStatement:
		if s, ok := pr.declAssign(v); ok {
			return s
		}
	}
	return pr.expr(n)
}

const (
	precTernary = iota + 1
	precOr
	precXor
	precAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precRelational
	precShift
	precAdditive
	precMultiplicative
	precUnary
	precPrimary
)

func precedence(n Node) int {
	switch v := n.(type) {
	case *TernaryExpr:
		return precTernary
	case *UnaryExpr:
		return precUnary
	case *BinaryExpr:
		switch v.Op {
		case BoolOr:
			return precOr
		case BoolXor:
			return precXor
		case BoolAnd:
			return precAnd
		case BitOr:
			return precBitOr
		case BitXor:
			return precBitXor
		case BitAnd:
			return precBitAnd
		case BoolEquals, BoolNotEquals:
			return precEquality
		case BoolGreaterThan, BoolLessThan, BoolGreaterThanOrEquals, BoolLessThanOrEquals:
			return precRelational
		case ShiftLeft, ShiftRight:
			return precShift
		case Plus, Minus:
			return precAdditive
		default:
			return precMultiplicative
		}
	}
	return precPrimary
}

// operand renders n, parenthesized if it binds more loosely than lowest.
func (pr *printer) operand(n Node, lowest int) string {
	s := pr.expr(n)
	if precedence(n) < lowest {
		return "(" + s + ")"
	}
	return s
}

func (pr *printer) expr(n Node) string {
	switch v := n.(type) {
	case nil:
		return ""
	case *IntegerLiteral:
		return literal(v.Value)
	case *StringLiteral:
		return quote(v.Value)
	case *UnaryExpr:
		return v.Op.String() + pr.operand(v.X, precUnary)
	case *BinaryExpr:
		p := precedence(v)
		return pr.operand(v.X, p) + " " + v.Op.String() + " " + pr.operand(v.Y, p+1)
	case *TernaryExpr:
		return pr.operand(v.Cond, precOr) + " ? " + pr.expr(v.Then) + " : " + pr.expr(v.Else)
	case *RValue:
		var b strings.Builder
		for i, s := range v.Path {
			if s.Index != nil {
				b.WriteString("[" + pr.expr(s.Index) + "]")
				continue
			}
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(s.Name)
		}
		return b.String()
	case *ScopeResolution:
		return v.Type.Name + "::" + v.Member
	case *FunctionCall:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = pr.expr(a)
		}
		return v.Name + "(" + strings.Join(args, ", ") + ")"
	case *Cast:
		return pr.typeUse(v.Type) + "(" + pr.expr(v.X) + ")"
	case *TypeOperator:
		return v.Op.String() + "(" + pr.expr(v.X) + ")"
	}
	return fmt.Sprintf("<%T>", n)
}

func literal(l Literal) string {
	switch l.Kind {
	case BoolLit:
		if l.Bool() {
			return "true"
		}
		return "false"
	case CharLit:
		return charLiteral(l.Uint)
	case FloatLit:
		s := strconv.FormatFloat(l.Float, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		switch l.Type {
		case Float:
			s += "f32"
		case Double:
			s += "f64"
		}
		return s
	case UnsignedLit:
		s := strconv.FormatUint(l.Uint, 10)
		if l.Type == Untyped {
			return s + "U"
		}
		return s + l.Type.String()
	}
	return strconv.FormatUint(l.Uint, 10) + l.Type.String()
}

var namedEscapes = map[rune]string{
	'\a': `\a`, '\b': `\b`, '\f': `\f`, '\n': `\n`, '\r': `\r`, '\t': `\t`, '\v': `\v`, '\\': `\\`,
}

func escapeRune(r rune, quoteChar rune) string {
	if e, ok := namedEscapes[r]; ok {
		return e
	}
	if r == quoteChar {
		return `\` + string(r)
	}
	if r < 0x20 || r == 0x7F {
		return fmt.Sprintf(`\x%02X`, r)
	}
	return string(r)
}

func charLiteral(v uint64) string {
	return "'" + escapeRune(rune(v), '\'') + "'"
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(&b, `\x%02X`, s[i])
		} else {
			b.WriteString(escapeRune(r, '"'))
		}
		i += size
	}
	b.WriteByte('"')
	return b.String()
}

func shortName(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[i+2:]
	}
	return name
}
