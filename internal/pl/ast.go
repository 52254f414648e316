package pl

// Node is an element of a parsed pattern program.
type Node interface {
	Pos() Location
	Clone() Node
	base() *nodeBase
}

type nodeBase struct {
	Loc Location
	// Doc is the doc comment written before the statement or member.
	Doc string
	// EvaluatedType is left for an evaluator to record the type an expression resolved to.
	EvaluatedType *TypeDecl
}

func (b *nodeBase) Pos() Location {
	return b.Loc
}

func (b *nodeBase) base() *nodeBase {
	return b
}

// Attribute is a [[name]] or [[name("value")]] annotation.
type Attribute struct {
	Name     string
	Value    string
	HasValue bool
}

// Attributable is implemented by the nodes attributes may be applied to.
type Attributable interface {
	Node
	Attributes() []Attribute
	AddAttribute(a Attribute)
}

type attributes struct {
	Attrs []Attribute
}

func (a *attributes) Attributes() []Attribute {
	return a.Attrs
}

func (a *attributes) AddAttribute(attr Attribute) {
	a.Attrs = append(a.Attrs, attr)
}

// Attribute returns the first attribute with the given name.
func (a *attributes) Attribute(name string) (Attribute, bool) {
	for _, at := range a.Attrs {
		if at.Name == name {
			return at, true
		}
	}
	return Attribute{}, false
}

func (a attributes) clone() attributes {
	if a.Attrs == nil {
		return a
	}
	return attributes{Attrs: append([]Attribute(nil), a.Attrs...)}
}

type Endian int

const (
	NativeEndian Endian = iota
	LittleEndian
	BigEndian
)

func (e Endian) String() string {
	switch e {
	case LittleEndian:
		return "le"
	case BigEndian:
		return "be"
	}
	return ""
}

type IntegerLiteral struct {
	nodeBase
	Value Literal
}

type StringLiteral struct {
	nodeBase
	Value string
}

type UnaryExpr struct {
	nodeBase
	Op Operator
	X  Node
}

type BinaryExpr struct {
	nodeBase
	Op   Operator
	X, Y Node
}

type TernaryExpr struct {
	nodeBase
	Cond, Then, Else Node
}

// PathSegment is one step of an RValue path: a member name, or an array index when Index is set.
type PathSegment struct {
	Name  string
	Index Node
}

// RValue reads a variable, like a.b[2].c, parent.x or $.
type RValue struct {
	nodeBase
	Path []PathSegment
}

// ScopeResolution names an entry of a type, like Color::Red.
type ScopeResolution struct {
	nodeBase
	Type   *TypeRef
	Member string
}

type FunctionCall struct {
	nodeBase
	Name string
	Args []Node
}

type Cast struct {
	nodeBase
	X    Node
	Type *TypeDecl
}

// TypeOperator is addressof(x) or sizeof(x) applied to a variable.
type TypeOperator struct {
	nodeBase
	Op Operator
	X  Node
}

// TypeDecl is either a named type declaration (struct, union, enum, bitfield or using) or, with
// an empty Name, the use of a type in a declaration together with its endian override.
type TypeDecl struct {
	nodeBase
	attributes
	Name    string
	Type    Node
	Endian  Endian
	Forward bool
}

type BuiltinType struct {
	nodeBase
	Type ValueType
}

// TypeRef refers to a declared type by name. The declaration is shared, not owned.
type TypeRef struct {
	nodeBase
	Name string
	decl *TypeDecl
}

func (r *TypeRef) Decl() *TypeDecl {
	return r.decl
}

// ForwardDecl is "using Name;".
type ForwardDecl struct {
	nodeBase
	Name string
}

type Struct struct {
	nodeBase
	Inherits []*TypeRef
	Members  []Node
}

type Union struct {
	nodeBase
	Members []Node
}

type BitfieldField struct {
	Name string
	Bits Node
}

type Bitfield struct {
	nodeBase
	Fields []BitfieldField
}

type EnumEntry struct {
	Name  string
	Value Node
}

type Enum struct {
	nodeBase
	Underlying *TypeDecl
	Entries    []EnumEntry
}

type VariableDecl struct {
	nodeBase
	attributes
	Name      string
	Type      *TypeDecl
	Placement Node
	In, Out   bool
}

type MultiVariableDecl struct {
	nodeBase
	Vars []*VariableDecl
}

// ArrayVariableDecl declares an array. Size is nil for an unbounded array, a *WhileStatement
// for a while-terminated one, or an expression.
type ArrayVariableDecl struct {
	nodeBase
	attributes
	Name      string
	Type      *TypeDecl
	Size      Node
	Placement Node
}

type PointerVariableDecl struct {
	nodeBase
	attributes
	Name      string
	Type      *TypeDecl
	SizeType  *TypeDecl
	Placement Node
}

type Conditional struct {
	nodeBase
	Cond       Node
	Then, Else []Node
}

// WhileStatement is a while loop, the loop of a for statement (with Post set), or, with no
// body, the terminating condition of an array.
type WhileStatement struct {
	nodeBase
	Cond Node
	Body []Node
	Post Node
}

type ControlFlowKind int

const (
	ReturnFlow ControlFlowKind = iota
	BreakFlow
	ContinueFlow
)

func (k ControlFlowKind) String() string {
	switch k {
	case ReturnFlow:
		return "return"
	case BreakFlow:
		return "break"
	case ContinueFlow:
		return "continue"
	}
	return "?"
}

type ControlFlow struct {
	nodeBase
	Kind  ControlFlowKind
	Value Node
}

// AssignmentStmt assigns to a local variable or, when LValue is "$", moves the current offset.
type AssignmentStmt struct {
	nodeBase
	LValue string
	RValue Node
}

// CompoundStatement groups statements; NewScope is set for the body of a for loop.
type CompoundStatement struct {
	nodeBase
	Stmts    []Node
	NewScope bool
}

type Param struct {
	Name string
	Type *TypeDecl
}

type FunctionDefinition struct {
	nodeBase
	Name      string
	Params    []Param
	ParamPack string
	Body      []Node
}

func cloneNode(n Node) Node {
	if n == nil {
		return nil
	}
	return n.Clone()
}

func cloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	c := make([]Node, len(nodes))
	for i, n := range nodes {
		c[i] = cloneNode(n)
	}
	return c
}

func cloneType(t *TypeDecl) *TypeDecl {
	if t == nil {
		return nil
	}
	return t.Clone().(*TypeDecl)
}

func (n *IntegerLiteral) Clone() Node {
	c := *n
	return &c
}

func (n *StringLiteral) Clone() Node {
	c := *n
	return &c
}

func (n *UnaryExpr) Clone() Node {
	c := *n
	c.X = cloneNode(n.X)
	return &c
}

func (n *BinaryExpr) Clone() Node {
	c := *n
	c.X, c.Y = cloneNode(n.X), cloneNode(n.Y)
	return &c
}

func (n *TernaryExpr) Clone() Node {
	c := *n
	c.Cond, c.Then, c.Else = cloneNode(n.Cond), cloneNode(n.Then), cloneNode(n.Else)
	return &c
}

func (n *RValue) Clone() Node {
	c := *n
	c.Path = make([]PathSegment, len(n.Path))
	for i, s := range n.Path {
		c.Path[i] = PathSegment{Name: s.Name, Index: cloneNode(s.Index)}
	}
	return &c
}

func (n *ScopeResolution) Clone() Node {
	c := *n
	c.Type = n.Type.Clone().(*TypeRef)
	return &c
}

func (n *FunctionCall) Clone() Node {
	c := *n
	c.Args = cloneNodes(n.Args)
	return &c
}

func (n *Cast) Clone() Node {
	c := *n
	c.X = cloneNode(n.X)
	c.Type = cloneType(n.Type)
	return &c
}

func (n *TypeOperator) Clone() Node {
	c := *n
	c.X = cloneNode(n.X)
	return &c
}

func (n *TypeDecl) Clone() Node {
	c := *n
	c.attributes = n.attributes.clone()
	c.Type = cloneNode(n.Type)
	return &c
}

func (n *BuiltinType) Clone() Node {
	c := *n
	return &c
}

func (n *TypeRef) Clone() Node {
	c := *n
	return &c
}

func (n *ForwardDecl) Clone() Node {
	c := *n
	return &c
}

func (n *Struct) Clone() Node {
	c := *n
	if n.Inherits != nil {
		c.Inherits = make([]*TypeRef, len(n.Inherits))
		for i, r := range n.Inherits {
			c.Inherits[i] = r.Clone().(*TypeRef)
		}
	}
	c.Members = cloneNodes(n.Members)
	return &c
}

func (n *Union) Clone() Node {
	c := *n
	c.Members = cloneNodes(n.Members)
	return &c
}

func (n *Bitfield) Clone() Node {
	c := *n
	c.Fields = make([]BitfieldField, len(n.Fields))
	for i, f := range n.Fields {
		c.Fields[i] = BitfieldField{Name: f.Name, Bits: cloneNode(f.Bits)}
	}
	return &c
}

func (n *Enum) Clone() Node {
	c := *n
	c.Underlying = cloneType(n.Underlying)
	c.Entries = make([]EnumEntry, len(n.Entries))
	for i, e := range n.Entries {
		c.Entries[i] = EnumEntry{Name: e.Name, Value: cloneNode(e.Value)}
	}
	return &c
}

func (n *VariableDecl) Clone() Node {
	c := *n
	c.attributes = n.attributes.clone()
	c.Type = cloneType(n.Type)
	c.Placement = cloneNode(n.Placement)
	return &c
}

func (n *MultiVariableDecl) Clone() Node {
	c := *n
	c.Vars = make([]*VariableDecl, len(n.Vars))
	for i, v := range n.Vars {
		c.Vars[i] = v.Clone().(*VariableDecl)
	}
	return &c
}

func (n *ArrayVariableDecl) Clone() Node {
	c := *n
	c.attributes = n.attributes.clone()
	c.Type = cloneType(n.Type)
	c.Size = cloneNode(n.Size)
	c.Placement = cloneNode(n.Placement)
	return &c
}

func (n *PointerVariableDecl) Clone() Node {
	c := *n
	c.attributes = n.attributes.clone()
	c.Type = cloneType(n.Type)
	c.SizeType = cloneType(n.SizeType)
	c.Placement = cloneNode(n.Placement)
	return &c
}

func (n *Conditional) Clone() Node {
	c := *n
	c.Cond = cloneNode(n.Cond)
	c.Then, c.Else = cloneNodes(n.Then), cloneNodes(n.Else)
	return &c
}

func (n *WhileStatement) Clone() Node {
	c := *n
	c.Cond = cloneNode(n.Cond)
	c.Body = cloneNodes(n.Body)
	c.Post = cloneNode(n.Post)
	return &c
}

func (n *ControlFlow) Clone() Node {
	c := *n
	c.Value = cloneNode(n.Value)
	return &c
}

func (n *AssignmentStmt) Clone() Node {
	c := *n
	c.RValue = cloneNode(n.RValue)
	return &c
}

func (n *CompoundStatement) Clone() Node {
	c := *n
	c.Stmts = cloneNodes(n.Stmts)
	return &c
}

func (n *FunctionDefinition) Clone() Node {
	c := *n
	c.Params = make([]Param, len(n.Params))
	for i, p := range n.Params {
		c.Params[i] = Param{Name: p.Name, Type: cloneType(p.Type)}
	}
	c.Body = cloneNodes(n.Body)
	return &c
}

// Inspect traverses the tree rooted at n depth first, calling f for each node. If f returns
// false the children of that node are skipped. The declarations TypeRefs point at are not
// entered.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}

	each := func(nodes []Node) {
		for _, c := range nodes {
			Inspect(c, f)
		}
	}
	inspectType := func(t *TypeDecl) {
		if t != nil {
			Inspect(t, f)
		}
	}

	switch v := n.(type) {
	case *UnaryExpr:
		Inspect(v.X, f)
	case *BinaryExpr:
		Inspect(v.X, f)
		Inspect(v.Y, f)
	case *TernaryExpr:
		Inspect(v.Cond, f)
		Inspect(v.Then, f)
		Inspect(v.Else, f)
	case *RValue:
		for _, s := range v.Path {
			Inspect(s.Index, f)
		}
	case *ScopeResolution:
		Inspect(v.Type, f)
	case *FunctionCall:
		each(v.Args)
	case *Cast:
		Inspect(v.X, f)
		inspectType(v.Type)
	case *TypeOperator:
		Inspect(v.X, f)
	case *TypeDecl:
		Inspect(v.Type, f)
	case *Struct:
		for _, r := range v.Inherits {
			Inspect(r, f)
		}
		each(v.Members)
	case *Union:
		each(v.Members)
	case *Bitfield:
		for _, fl := range v.Fields {
			Inspect(fl.Bits, f)
		}
	case *Enum:
		inspectType(v.Underlying)
		for _, e := range v.Entries {
			Inspect(e.Value, f)
		}
	case *VariableDecl:
		inspectType(v.Type)
		Inspect(v.Placement, f)
	case *MultiVariableDecl:
		for _, d := range v.Vars {
			Inspect(d, f)
		}
	case *ArrayVariableDecl:
		inspectType(v.Type)
		Inspect(v.Size, f)
		Inspect(v.Placement, f)
	case *PointerVariableDecl:
		inspectType(v.Type)
		inspectType(v.SizeType)
		Inspect(v.Placement, f)
	case *Conditional:
		Inspect(v.Cond, f)
		each(v.Then)
		each(v.Else)
	case *WhileStatement:
		Inspect(v.Cond, f)
		each(v.Body)
		Inspect(v.Post, f)
	case *ControlFlow:
		Inspect(v.Value, f)
	case *AssignmentStmt:
		Inspect(v.RValue, f)
	case *CompoundStatement:
		each(v.Stmts)
	case *FunctionDefinition:
		for _, p := range v.Params {
			inspectType(p.Type)
		}
		each(v.Body)
	case *Namespace:
		each(v.Stmts)
	}
}
