package pl

import (
	"fmt"
)

// Location is a position in pattern source. Line and Column are 1-based; Length is in runes.
type Location struct {
	Line   int
	Column int
	Length int
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

type TokenType int

const (
	KeywordTok TokenType = iota
	ValueTypeTok
	OperatorTok
	IntegerTok
	StringTok
	IdentifierTok
	SeparatorTok
	AttributeTok
)

func (t TokenType) String() string {
	switch t {
	case KeywordTok:
		return "keyword"
	case ValueTypeTok:
		return "value type"
	case OperatorTok:
		return "operator"
	case IntegerTok:
		return "integer"
	case StringTok:
		return "string"
	case IdentifierTok:
		return "identifier"
	case SeparatorTok:
		return "separator"
	case AttributeTok:
		return "attribute"
	}
	return "<unknown token>"
}

// Token is one lexeme. Value holds a Keyword, ValueType, Operator, Separator or Literal depending
// on Type; identifiers and strings hold a string. Doc is the text of the doc comment that
// immediately preceded the token, if any.
type Token struct {
	Type  TokenType
	Value interface{}
	Loc   Location
	Doc   string
}

func (t Token) String() string {
	switch v := t.Value.(type) {
	case string:
		if t.Type == StringTok {
			return fmt.Sprintf("(%s, %q)", t.Type, v)
		}
		return fmt.Sprintf("(%s, %s)", t.Type, v)
	case nil:
		return fmt.Sprintf("(%s)", t.Type)
	default:
		return fmt.Sprintf("(%s, %v)", t.Type, v)
	}
}

type Keyword int

const (
	KwStruct Keyword = iota
	KwUnion
	Using
	KwEnum
	KwBitfield
	LittleEndianKw
	BigEndianKw
	If
	Else
	Parent
	This
	While
	For
	Function
	Return
	KwNamespace
	In
	Out
	Break
	Continue
)

var keywords = map[string]Keyword{
	"struct":    KwStruct,
	"union":     KwUnion,
	"using":     Using,
	"enum":      KwEnum,
	"bitfield":  KwBitfield,
	"le":        LittleEndianKw,
	"be":        BigEndianKw,
	"if":        If,
	"else":      Else,
	"parent":    Parent,
	"this":      This,
	"while":     While,
	"for":       For,
	"fn":        Function,
	"return":    Return,
	"namespace": KwNamespace,
	"in":        In,
	"out":       Out,
	"break":     Break,
	"continue":  Continue,
}

func (k Keyword) String() string {
	for s, kw := range keywords {
		if kw == k {
			return s
		}
	}
	return "?"
}

type Operator int

const (
	AtDeclaration Operator = iota
	Assignment
	Inherit
	Plus
	Minus
	Star
	Slash
	Percent
	ShiftLeft
	ShiftRight
	BitOr
	BitAnd
	BitXor
	BitNot
	BoolEquals
	BoolNotEquals
	BoolGreaterThan
	BoolLessThan
	BoolGreaterThanOrEquals
	BoolLessThanOrEquals
	BoolAnd
	BoolOr
	BoolXor
	BoolNot
	TernaryConditional
	Dollar
	AddressOf
	SizeOf
	ScopeResolutionOp

	// Compound assignments. Compound maps each to its arithmetic operator.
	PlusAssign
	MinusAssign
	StarAssign
	SlashAssign
	PercentAssign
	ShiftLeftAssign
	ShiftRightAssign
	BitOrAssign
	BitAndAssign
	BitXorAssign
)

var operatorText = map[Operator]string{
	AtDeclaration:           "@",
	Assignment:              "=",
	Inherit:                 ":",
	Plus:                    "+",
	Minus:                   "-",
	Star:                    "*",
	Slash:                   "/",
	Percent:                 "%",
	ShiftLeft:               "<<",
	ShiftRight:              ">>",
	BitOr:                   "|",
	BitAnd:                  "&",
	BitXor:                  "^",
	BitNot:                  "~",
	BoolEquals:              "==",
	BoolNotEquals:           "!=",
	BoolGreaterThan:         ">",
	BoolLessThan:            "<",
	BoolGreaterThanOrEquals: ">=",
	BoolLessThanOrEquals:    "<=",
	BoolAnd:                 "&&",
	BoolOr:                  "||",
	BoolXor:                 "^^",
	BoolNot:                 "!",
	TernaryConditional:      "?",
	Dollar:                  "$",
	AddressOf:               "addressof",
	SizeOf:                  "sizeof",
	ScopeResolutionOp:       "::",
	PlusAssign:              "+=",
	MinusAssign:             "-=",
	StarAssign:              "*=",
	SlashAssign:             "/=",
	PercentAssign:           "%=",
	ShiftLeftAssign:         "<<=",
	ShiftRightAssign:        ">>=",
	BitOrAssign:             "|=",
	BitAndAssign:            "&=",
	BitXorAssign:            "^=",
}

func (o Operator) String() string {
	if s, ok := operatorText[o]; ok {
		return s
	}
	return "?"
}

// Compound returns the arithmetic operator of a compound assignment such as "+=".
func (o Operator) Compound() (Operator, bool) {
	if o < PlusAssign {
		return 0, false
	}
	return [...]Operator{Plus, Minus, Star, Slash, Percent, ShiftLeft, ShiftRight, BitOr, BitAnd, BitXor}[o-PlusAssign], true
}

// symbolOperators lists the punctuation operators longest first, so the lexer takes the longest match.
var symbolOperators = []Operator{
	ShiftLeftAssign, ShiftRightAssign,
	ScopeResolutionOp, BoolEquals, BoolNotEquals, BoolGreaterThanOrEquals, BoolLessThanOrEquals,
	BoolAnd, BoolOr, BoolXor, ShiftLeft, ShiftRight,
	PlusAssign, MinusAssign, StarAssign, SlashAssign, PercentAssign, BitOrAssign, BitAndAssign, BitXorAssign,
	AtDeclaration, Assignment, Inherit, Plus, Minus, Star, Slash, Percent,
	BoolGreaterThan, BoolLessThan, BoolNot, BitOr, BitAnd, BitXor, BitNot, TernaryConditional, Dollar,
}

type ValueType int

const (
	Untyped ValueType = iota
	U8
	U16
	U32
	U64
	U128
	S8
	S16
	S32
	S64
	S128
	Float
	Double
	Character
	Character16
	Boolean
	String
	Padding
	Auto
)

var valueTypeNames = [...]string{
	Untyped:     "",
	U8:          "u8",
	U16:         "u16",
	U32:         "u32",
	U64:         "u64",
	U128:        "u128",
	S8:          "s8",
	S16:         "s16",
	S32:         "s32",
	S64:         "s64",
	S128:        "s128",
	Float:       "float",
	Double:      "double",
	Character:   "char",
	Character16: "char16",
	Boolean:     "bool",
	String:      "str",
	Padding:     "padding",
	Auto:        "auto",
}

var valueTypes = func() map[string]ValueType {
	m := make(map[string]ValueType)
	for i, n := range valueTypeNames {
		if n != "" {
			m[n] = ValueType(i)
		}
	}
	return m
}()

func (v ValueType) String() string {
	if v < 0 || int(v) >= len(valueTypeNames) {
		return "?"
	}
	return valueTypeNames[v]
}

// Size is the size in bytes of a value of the type, or 0 when it has no fixed size.
func (v ValueType) Size() int {
	switch v {
	case U8, S8, Character, Boolean, Padding:
		return 1
	case U16, S16, Character16:
		return 2
	case U32, S32, Float:
		return 4
	case U64, S64, Double:
		return 8
	case U128, S128:
		return 16
	}
	return 0
}

func (v ValueType) IsUnsigned() bool {
	return v >= U8 && v <= U128
}

func (v ValueType) IsSigned() bool {
	return v >= S8 && v <= S128
}

func (v ValueType) IsFloat() bool {
	return v == Float || v == Double
}

func (v ValueType) IsInteger() bool {
	return v.IsUnsigned() || v.IsSigned()
}

type Separator int

const (
	RoundBracketOpen Separator = iota
	RoundBracketClose
	CurlyBracketOpen
	CurlyBracketClose
	SquareBracketOpen
	SquareBracketClose
	Comma
	Dot
	EndOfExpression
	EndOfProgram
)

var separatorRunes = map[rune]Separator{
	'(': RoundBracketOpen,
	')': RoundBracketClose,
	'{': CurlyBracketOpen,
	'}': CurlyBracketClose,
	'[': SquareBracketOpen,
	']': SquareBracketClose,
	',': Comma,
	'.': Dot,
	';': EndOfExpression,
}

func (s Separator) String() string {
	if s == EndOfProgram {
		return "<end of program>"
	}
	for r, sep := range separatorRunes {
		if sep == s {
			return string(r)
		}
	}
	return "?"
}

type LiteralKind int

const (
	SignedLit LiteralKind = iota
	UnsignedLit
	FloatLit
	BoolLit
	CharLit
)

// Literal is the value of an integer, float, boolean or character token. Integer values are held
// in Uint; Type records an explicit width suffix such as u8 or f64, or Untyped.
type Literal struct {
	Kind  LiteralKind
	Type  ValueType
	Uint  uint64
	Float float64
}

func (l Literal) Bool() bool {
	return l.Uint != 0
}

func (l Literal) String() string {
	switch l.Kind {
	case FloatLit:
		return fmt.Sprintf("%g", l.Float)
	case BoolLit:
		return fmt.Sprintf("%t", l.Bool())
	case CharLit:
		return fmt.Sprintf("%q", rune(l.Uint))
	case SignedLit:
		return fmt.Sprintf("%d", int64(l.Uint))
	}
	return fmt.Sprintf("%d", l.Uint)
}
