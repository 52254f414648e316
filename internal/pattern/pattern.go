// Package pattern holds the typed, offset-anchored tree an evaluator lays over provider bytes.
package pattern

import (
	"encoding/binary"

	"github.com/jeffwilliams/hexcore/internal/color"
	"github.com/jeffwilliams/hexcore/internal/region"
)

type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

func (e Endian) String() string {
	if e == BigEndian {
		return "be"
	}
	return "le"
}

func (e Endian) order() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Pattern is implemented by every node of a pattern tree. Offsets are absolute addresses in the
// provider, for children as well as for roots.
type Pattern interface {
	Base() *Common
	Accept(v Visitor)
	Clone() Pattern
}

// Common holds the attributes every pattern carries.
type Common struct {
	Offset uint64
	Size   uint64

	Color       color.Color
	ManualColor bool

	DisplayName  string
	VariableName string
	TypeName     string
	Comment      string

	Endian  Endian
	Hidden  bool
	Inlined bool
	Local   bool

	// Formatter names the function from a [[format("fn")]] attribute.
	Formatter string

	cached    string
	hasCached bool
}

func (c *Common) Base() *Common {
	return c
}

func (c *Common) Region() region.Region {
	return region.Region{Address: c.Offset, Size: c.Size}
}

func (c *Common) End() uint64 {
	return c.Offset + c.Size
}

// Name is the display name if one was set, else the variable name.
func (c *Common) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.VariableName
}

func (c *Common) clearCache() {
	c.cached, c.hasCached = "", false
}

func (c Common) copy() Common {
	c.clearCache()
	return c
}

type Unsigned struct{ Common }
type Signed struct{ Common }

// Float is 4 or 8 bytes.
type Float struct{ Common }
type Boolean struct{ Common }
type Character struct{ Common }
type WideCharacter struct{ Common }

// String is Size bytes of text.
type String struct{ Common }

// WideString is Size/2 UTF-16 code units.
type WideString struct{ Common }
type Padding struct{ Common }

type EnumEntry struct {
	Value uint64
	Name  string
}

// Enum is an unsigned integer of Size bytes shown by the name of its matching entry.
type Enum struct {
	Common
	Entries []EnumEntry
}

type Struct struct {
	Common
	Members []Pattern
}

// Union members all start at the union's offset.
type Union struct {
	Common
	Members []Pattern
}

type Bitfield struct {
	Common
	Fields []*BitfieldField
}

// BitfieldField covers BitSize bits starting BitOffset bits into the byte at Offset. Size is the
// number of bytes the bits touch.
type BitfieldField struct {
	Common
	BitOffset uint64
	BitSize   uint64
}

// ArrayStatic is Count copies of Template laid end to end. Entries are materialized on demand.
type ArrayStatic struct {
	Common
	Count      uint64
	Template   Pattern
	displayEnd uint64
}

// ArrayDynamic holds entries of possibly different sizes.
type ArrayDynamic struct {
	Common
	Entries    []Pattern
	displayEnd uint64
}

// Pointer is an address read from Size bytes at Offset. Pointee is the pattern at Address, or nil
// when the pointer is Cyclic.
type Pointer struct {
	Common
	Address uint64
	Pointee Pattern
	Cyclic  bool
}

// NewStruct builds a struct spanning its members. With no members it is empty at offset.
func NewStruct(offset uint64, members ...Pattern) *Struct {
	s := &Struct{Members: members}
	s.Offset = offset
	s.Size = hull(offset, members) - offset
	return s
}

// NewUnion places every member at offset; the union is as large as its largest member.
func NewUnion(offset uint64, members ...Pattern) *Union {
	u := &Union{Members: members}
	u.Offset = offset
	for _, m := range members {
		Move(m, offset)
		u.Size = max(u.Size, m.Base().Size)
	}
	return u
}

// FieldSpec names a bitfield field and its width in bits.
type FieldSpec struct {
	Name string
	Bits uint64
}

// NewBitfield packs fields one after another starting at the low bit of the byte at offset.
func NewBitfield(offset uint64, endian Endian, fields ...FieldSpec) *Bitfield {
	b := &Bitfield{}
	b.Offset, b.Endian = offset, endian

	var bit uint64
	for _, f := range fields {
		fl := &BitfieldField{BitOffset: bit % 8, BitSize: f.Bits}
		fl.Offset = offset + bit/8
		fl.Size = (fl.BitOffset + f.Bits + 7) / 8
		fl.VariableName = f.Name
		fl.Endian = endian
		b.Fields = append(b.Fields, fl)
		bit += f.Bits
	}
	b.Size = (bit + 7) / 8
	return b
}

// NewArrayStatic anchors template at offset and repeats it count times.
func NewArrayStatic(offset uint64, template Pattern, count uint64) *ArrayStatic {
	Move(template, offset)
	a := &ArrayStatic{Count: count, Template: template}
	a.Offset = offset
	a.Size = count * template.Base().Size
	return a
}

func NewArrayDynamic(offset uint64, entries ...Pattern) *ArrayDynamic {
	a := &ArrayDynamic{Entries: entries}
	a.Offset = offset
	a.Size = hull(offset, entries) - offset
	return a
}

func hull(offset uint64, ps []Pattern) uint64 {
	end := offset
	for _, p := range ps {
		end = max(end, p.Base().End())
	}
	return end
}

// Move re-anchors p at offset, shifting its children by the same distance. The pointee of a
// pointer stays where it is.
func Move(p Pattern, offset uint64) {
	c := p.Base()
	if c.Offset == offset {
		return
	}
	shift(p, offset-c.Offset)
}

// shift adds delta, modulo 2^64, to the offset of p and its children.
func shift(p Pattern, delta uint64) {
	c := p.Base()
	c.Offset += delta
	c.clearCache()

	switch v := p.(type) {
	case *Struct:
		for _, m := range v.Members {
			shift(m, delta)
		}
	case *Union:
		for _, m := range v.Members {
			shift(m, delta)
		}
	case *Bitfield:
		for _, f := range v.Fields {
			shift(f, delta)
		}
	case *ArrayStatic:
		shift(v.Template, delta)
	case *ArrayDynamic:
		for _, e := range v.Entries {
			shift(e, delta)
		}
	}
}

func (p *Unsigned) Clone() Pattern      { return &Unsigned{p.copy()} }
func (p *Signed) Clone() Pattern        { return &Signed{p.copy()} }
func (p *Float) Clone() Pattern         { return &Float{p.copy()} }
func (p *Boolean) Clone() Pattern       { return &Boolean{p.copy()} }
func (p *Character) Clone() Pattern     { return &Character{p.copy()} }
func (p *WideCharacter) Clone() Pattern { return &WideCharacter{p.copy()} }
func (p *String) Clone() Pattern        { return &String{p.copy()} }
func (p *WideString) Clone() Pattern    { return &WideString{p.copy()} }
func (p *Padding) Clone() Pattern       { return &Padding{p.copy()} }

func (p *Enum) Clone() Pattern {
	return &Enum{Common: p.copy(), Entries: append([]EnumEntry(nil), p.Entries...)}
}

func (p *Struct) Clone() Pattern {
	return &Struct{Common: p.copy(), Members: cloneAll(p.Members)}
}

func (p *Union) Clone() Pattern {
	return &Union{Common: p.copy(), Members: cloneAll(p.Members)}
}

func (p *Bitfield) Clone() Pattern {
	c := &Bitfield{Common: p.copy(), Fields: make([]*BitfieldField, len(p.Fields))}
	for i, f := range p.Fields {
		c.Fields[i] = f.Clone().(*BitfieldField)
	}
	return c
}

func (p *BitfieldField) Clone() Pattern {
	return &BitfieldField{Common: p.copy(), BitOffset: p.BitOffset, BitSize: p.BitSize}
}

func (p *ArrayStatic) Clone() Pattern {
	return &ArrayStatic{Common: p.copy(), Count: p.Count, Template: p.Template.Clone(), displayEnd: p.displayEnd}
}

func (p *ArrayDynamic) Clone() Pattern {
	return &ArrayDynamic{Common: p.copy(), Entries: cloneAll(p.Entries), displayEnd: p.displayEnd}
}

// Clone copies the pointer and its pointee.
func (p *Pointer) Clone() Pattern {
	c := &Pointer{Common: p.copy(), Address: p.Address, Cyclic: p.Cyclic}
	if p.Pointee != nil {
		c.Pointee = p.Pointee.Clone()
	}
	return c
}

func cloneAll(ps []Pattern) []Pattern {
	if ps == nil {
		return nil
	}
	c := make([]Pattern, len(ps))
	for i, p := range ps {
		c[i] = p.Clone()
	}
	return c
}

// ForEachMember calls fn for the members of a struct or union, or the fields of a bitfield. It
// reports whether p has members.
func ForEachMember(p Pattern, fn func(m Pattern)) bool {
	switch v := p.(type) {
	case *Struct:
		for _, m := range v.Members {
			fn(m)
		}
	case *Union:
		for _, m := range v.Members {
			fn(m)
		}
	case *Bitfield:
		for _, f := range v.Fields {
			fn(f)
		}
	default:
		return false
	}
	return true
}

// ForEachArrayEntry calls fn for the displayed entries of an array. It reports whether p is an
// array.
func ForEachArrayEntry(p Pattern, fn func(i uint64, e Pattern)) bool {
	switch v := p.(type) {
	case *ArrayStatic:
		v.ForEachEntry(fn)
	case *ArrayDynamic:
		v.ForEachEntry(fn)
	default:
		return false
	}
	return true
}

// Walk calls fn for p and then its descendants, depth first, skipping the children of any pattern
// for which fn returns false. Static arrays are visited as a whole, and pointees after their pointer.
func Walk(p Pattern, fn func(p Pattern) bool) {
	if p == nil || !fn(p) {
		return
	}

	switch v := p.(type) {
	case *Struct:
		for _, m := range v.Members {
			Walk(m, fn)
		}
	case *Union:
		for _, m := range v.Members {
			Walk(m, fn)
		}
	case *Bitfield:
		for _, f := range v.Fields {
			Walk(f, fn)
		}
	case *ArrayDynamic:
		for _, e := range v.Entries {
			Walk(e, fn)
		}
	case *Pointer:
		Walk(v.Pointee, fn)
	}
}

// AssignColors gives every root its placement colour and passes each colour down to the
// children. Patterns with a manual colour keep it and pass it down instead.
func AssignColors(roots []Pattern, providerID uint64) {
	for _, r := range roots {
		c := r.Base()
		if !c.ManualColor {
			c.Color = color.ForPlacement(providerID, c.VariableName, c.TypeName)
		}
		inherit(r, c.Color)
	}
}

func inherit(p Pattern, col color.Color) {
	set := func(child Pattern) {
		c := child.Base()
		if !c.ManualColor {
			c.Color = col
		}
		inherit(child, c.Color)
	}

	switch v := p.(type) {
	case *Struct:
		for _, m := range v.Members {
			set(m)
		}
	case *Union:
		for _, m := range v.Members {
			set(m)
		}
	case *Bitfield:
		for _, f := range v.Fields {
			set(f)
		}
	case *ArrayStatic:
		set(v.Template)
	case *ArrayDynamic:
		for _, e := range v.Entries {
			set(e)
		}
	case *Pointer:
		if v.Pointee != nil {
			set(v.Pointee)
		}
	}
}
