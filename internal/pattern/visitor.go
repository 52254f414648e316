package pattern

// Visitor receives each kind of pattern through Accept.
type Visitor interface {
	VisitUnsigned(p *Unsigned)
	VisitSigned(p *Signed)
	VisitFloat(p *Float)
	VisitBoolean(p *Boolean)
	VisitCharacter(p *Character)
	VisitWideCharacter(p *WideCharacter)
	VisitString(p *String)
	VisitWideString(p *WideString)
	VisitPadding(p *Padding)
	VisitEnum(p *Enum)
	VisitStruct(p *Struct)
	VisitUnion(p *Union)
	VisitBitfield(p *Bitfield)
	VisitBitfieldField(p *BitfieldField)
	VisitArrayStatic(p *ArrayStatic)
	VisitArrayDynamic(p *ArrayDynamic)
	VisitPointer(p *Pointer)
}

// NopVisitor implements Visitor with methods that do nothing. Embed it to handle only some kinds.
type NopVisitor struct{}

func (NopVisitor) VisitUnsigned(*Unsigned)           {}
func (NopVisitor) VisitSigned(*Signed)               {}
func (NopVisitor) VisitFloat(*Float)                 {}
func (NopVisitor) VisitBoolean(*Boolean)             {}
func (NopVisitor) VisitCharacter(*Character)         {}
func (NopVisitor) VisitWideCharacter(*WideCharacter) {}
func (NopVisitor) VisitString(*String)               {}
func (NopVisitor) VisitWideString(*WideString)       {}
func (NopVisitor) VisitPadding(*Padding)             {}
func (NopVisitor) VisitEnum(*Enum)                   {}
func (NopVisitor) VisitStruct(*Struct)               {}
func (NopVisitor) VisitUnion(*Union)                 {}
func (NopVisitor) VisitBitfield(*Bitfield)           {}
func (NopVisitor) VisitBitfieldField(*BitfieldField) {}
func (NopVisitor) VisitArrayStatic(*ArrayStatic)     {}
func (NopVisitor) VisitArrayDynamic(*ArrayDynamic)   {}
func (NopVisitor) VisitPointer(*Pointer)             {}

func (p *Unsigned) Accept(v Visitor)      { v.VisitUnsigned(p) }
func (p *Signed) Accept(v Visitor)        { v.VisitSigned(p) }
func (p *Float) Accept(v Visitor)         { v.VisitFloat(p) }
func (p *Boolean) Accept(v Visitor)       { v.VisitBoolean(p) }
func (p *Character) Accept(v Visitor)     { v.VisitCharacter(p) }
func (p *WideCharacter) Accept(v Visitor) { v.VisitWideCharacter(p) }
func (p *String) Accept(v Visitor)        { v.VisitString(p) }
func (p *WideString) Accept(v Visitor)    { v.VisitWideString(p) }
func (p *Padding) Accept(v Visitor)       { v.VisitPadding(p) }
func (p *Enum) Accept(v Visitor)          { v.VisitEnum(p) }
func (p *Struct) Accept(v Visitor)        { v.VisitStruct(p) }
func (p *Union) Accept(v Visitor)         { v.VisitUnion(p) }
func (p *Bitfield) Accept(v Visitor)      { v.VisitBitfield(p) }
func (p *BitfieldField) Accept(v Visitor) { v.VisitBitfieldField(p) }
func (p *ArrayStatic) Accept(v Visitor)   { v.VisitArrayStatic(p) }
func (p *ArrayDynamic) Accept(v Visitor)  { v.VisitArrayDynamic(p) }
func (p *Pointer) Accept(v Visitor)       { v.VisitPointer(p) }
