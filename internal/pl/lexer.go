package pl

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LexError reports source the lexer could not tokenize.
type LexError struct {
	Loc    Location
	Reason string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s: %s", e.Loc, e.Reason)
}

// Lexer turns pattern source into tokens. The token list always ends with an EndOfProgram
// separator. Comments are skipped; the text of doc comments is attached to the token that
// follows them, and global doc comments (//!) are collected in GlobalDocs.
type Lexer struct {
	pos        int
	input      []rune
	line       int
	lineStart  int
	tokens     []Token
	doc        []string
	GlobalDocs []string
}

func Lex(src string) ([]Token, error) {
	var l Lexer
	return l.Lex(src)
}

func (l *Lexer) Lex(src string) ([]Token, error) {
	l.input = []rune(src)
	l.pos, l.line, l.lineStart = 0, 1, 0
	l.tokens = make([]Token, 0, len(l.input)/4+1)
	l.doc = nil
	l.GlobalDocs = nil

	for {
		r := l.nextNonSpaceRune()
		if l.atEnd() {
			break
		}

		start := l.pos
		loc := l.location(start)

		var err error
		switch {
		case r == '/' && (l.peekAt(1) == '/' || l.peekAt(1) == '*'):
			err = l.comment(loc)
		case r == '"':
			err = l.str(start, loc)
		case r == '\'':
			err = l.char(start, loc)
		case isIdentStart(r):
			l.ident(start, loc)
		case isDigit(r):
			err = l.number(start, loc)
		case r == '[' && l.peekAt(1) == '[':
			l.pos += 2
			l.emit(AttributeTok, nil, start, loc)
		default:
			if sep, ok := separatorRunes[r]; ok {
				l.pos++
				l.emit(SeparatorTok, sep, start, loc)
			} else if op, ok := l.operator(); ok {
				l.pos += len(operatorText[op])
				l.emit(OperatorTok, op, start, loc)
			} else {
				loc.Length = 1
				err = &LexError{Loc: loc, Reason: "unknown token"}
			}
		}
		if err != nil {
			return nil, err
		}
	}

	l.emit(SeparatorTok, EndOfProgram, l.pos, l.location(l.pos))
	dbg("lexed %d tokens", len(l.tokens))
	return l.tokens, nil
}

func (l *Lexer) emit(typ TokenType, value interface{}, start int, loc Location) {
	loc.Length = l.pos - start
	t := Token{Type: typ, Value: value, Loc: loc}
	if len(l.doc) > 0 {
		t.Doc = strings.Join(l.doc, "\n")
		l.doc = nil
	}
	l.tokens = append(l.tokens, t)
}

func (l *Lexer) location(pos int) Location {
	return Location{Line: l.line, Column: pos - l.lineStart + 1}
}

// advance moves past one rune, keeping line accounting for runes that may span lines.
func (l *Lexer) advance() {
	if l.input[l.pos] == '\n' {
		l.line++
		l.lineStart = l.pos + 1
	}
	l.pos++
}

func (l *Lexer) nextNonSpaceRune() rune {
	for !l.atEnd() {
		r := l.input[l.pos]
		if !unicode.IsSpace(r) {
			return r
		}
		l.advance()
	}
	return 0
}

func (l *Lexer) peekAt(i int) rune {
	if l.pos+i >= len(l.input) {
		return 0
	}
	return l.input[l.pos+i]
}

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) comment(loc Location) error {
	if l.peekAt(1) == '/' {
		l.pos += 2
		global := l.peekAt(0) == '!'
		doc := l.peekAt(0) == '/' && l.peekAt(1) != '/'
		if global || doc {
			l.pos++
		}
		start := l.pos
		for !l.atEnd() && l.input[l.pos] != '\n' {
			l.pos++
		}
		text := strings.TrimSpace(string(l.input[start:l.pos]))
		switch {
		case global:
			l.GlobalDocs = append(l.GlobalDocs, text)
		case doc:
			l.doc = append(l.doc, text)
		}
		return nil
	}

	l.pos += 2
	doc := (l.peekAt(0) == '*' || l.peekAt(0) == '!') && l.peekAt(1) != '/'
	if doc {
		l.pos++
	}
	start := l.pos
	for {
		if l.atEnd() {
			loc.Length = 2
			return &LexError{Loc: loc, Reason: "unterminated comment"}
		}
		if l.input[l.pos] == '*' && l.peekAt(1) == '/' {
			break
		}
		l.advance()
	}
	text := string(l.input[start:l.pos])
	l.pos += 2

	if doc {
		l.doc = append(l.doc, blockDocLines(text)...)
	}
	return nil
}

// blockDocLines strips the decoration from the lines of a /** */ comment.
func blockDocLines(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, s := range lines {
		s = strings.TrimSpace(s)
		s = strings.TrimSpace(strings.TrimPrefix(s, "*"))
		out = append(out, s)
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func (l *Lexer) str(start int, loc Location) error {
	l.pos++
	var buf []byte
	for {
		if l.atEnd() || l.input[l.pos] == '\n' {
			loc.Length = l.pos - start
			return &LexError{Loc: loc, Reason: "invalid string literal"}
		}
		r := l.input[l.pos]
		if r == '"' {
			l.pos++
			break
		}
		if r == '\\' {
			b, ok := l.escape()
			if !ok {
				loc.Length = l.pos - start
				return &LexError{Loc: loc, Reason: "invalid string literal"}
			}
			buf = append(buf, b)
			continue
		}
		buf = utf8.AppendRune(buf, r)
		l.pos++
	}
	l.emit(StringTok, string(buf), start, loc)
	return nil
}

func (l *Lexer) char(start int, loc Location) error {
	l.pos++
	var v uint64
	switch {
	case l.atEnd() || l.input[l.pos] == '\'' || l.input[l.pos] == '\n':
		loc.Length = l.pos - start
		return &LexError{Loc: loc, Reason: "invalid character literal"}
	case l.input[l.pos] == '\\':
		b, ok := l.escape()
		if !ok {
			loc.Length = l.pos - start
			return &LexError{Loc: loc, Reason: "invalid character literal"}
		}
		v = uint64(b)
	default:
		v = uint64(l.input[l.pos])
		l.pos++
	}
	if l.peekAt(0) != '\'' {
		loc.Length = l.pos - start
		return &LexError{Loc: loc, Reason: "invalid character literal"}
	}
	l.pos++
	l.emit(IntegerTok, Literal{Kind: CharLit, Type: Character, Uint: v}, start, loc)
	return nil
}

// escape decodes the escape sequence at the current position, which starts with a backslash.
func (l *Lexer) escape() (byte, bool) {
	l.pos++
	if l.atEnd() {
		return 0, false
	}
	r := l.input[l.pos]
	l.pos++
	switch r {
	case 'a':
		return '\a', true
	case 'b':
		return '\b', true
	case 'f':
		return '\f', true
	case 'n':
		return '\n', true
	case 'r':
		return '\r', true
	case 't':
		return '\t', true
	case 'v':
		return '\v', true
	case '\\', '\'', '"':
		return byte(r), true
	case 'x':
		return l.escapeDigits(2, 16)
	case 'o':
		return l.escapeDigits(3, 8)
	}
	return 0, false
}

func (l *Lexer) escapeDigits(n, base int) (byte, bool) {
	if l.pos+n > len(l.input) {
		return 0, false
	}
	v, err := strconv.ParseUint(string(l.input[l.pos:l.pos+n]), base, 8)
	if err != nil {
		return 0, false
	}
	l.pos += n
	return byte(v), true
}

func (l *Lexer) ident(start int, loc Location) {
	for !l.atEnd() && isIdentRune(l.input[l.pos]) {
		l.pos++
	}
	word := string(l.input[start:l.pos])

	if kw, ok := keywords[word]; ok {
		l.emit(KeywordTok, kw, start, loc)
	} else if vt, ok := valueTypes[word]; ok {
		l.emit(ValueTypeTok, vt, start, loc)
	} else if word == "true" || word == "false" {
		lit := Literal{Kind: BoolLit, Type: Boolean}
		if word == "true" {
			lit.Uint = 1
		}
		l.emit(IntegerTok, lit, start, loc)
	} else if word == "addressof" {
		l.emit(OperatorTok, AddressOf, start, loc)
	} else if word == "sizeof" {
		l.emit(OperatorTok, SizeOf, start, loc)
	} else {
		l.emit(IdentifierTok, word, start, loc)
	}
}

func (l *Lexer) number(start int, loc Location) error {
	seenDot := false
	for !l.atEnd() {
		r := l.input[l.pos]
		if isIdentRune(r) || (r == '\'' && isIdentRune(l.peekAt(1))) {
			l.pos++
		} else if r == '.' && !seenDot && isDigit(l.peekAt(1)) {
			seenDot = true
			l.pos++
		} else {
			break
		}
	}

	lit, ok := parseNumber(string(l.input[start:l.pos]))
	if !ok {
		loc.Length = l.pos - start
		return &LexError{Loc: loc, Reason: "invalid integer literal"}
	}
	l.emit(IntegerTok, lit, start, loc)
	return nil
}

var numberSuffixes = []struct {
	text string
	typ  ValueType
	kind LiteralKind
}{
	{"u128", U128, UnsignedLit}, {"s128", S128, SignedLit},
	{"u16", U16, UnsignedLit}, {"u32", U32, UnsignedLit}, {"u64", U64, UnsignedLit},
	{"s16", S16, SignedLit}, {"s32", S32, SignedLit}, {"s64", S64, SignedLit},
	{"f32", Float, FloatLit}, {"f64", Double, FloatLit},
	{"u8", U8, UnsignedLit}, {"s8", S8, SignedLit},
	{"U", Untyped, UnsignedLit}, {"f", Float, FloatLit}, {"d", Double, FloatLit},
}

// parseNumber decodes an integer or float literal: an optional 0x, 0o or 0b prefix, digits with
// optional ' separators, and an optional suffix (a width such as u8 or f64, or U, f, d).
func parseNumber(text string) (Literal, bool) {
	s := strings.ReplaceAll(text, "'", "")

	base := 10
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 10 {
			s = s[2:]
		}
	}

	lit := Literal{Kind: SignedLit}
	if strings.Contains(s, ".") {
		lit.Kind = FloatLit
	}
	for _, suf := range numberSuffixes {
		if !strings.HasSuffix(s, suf.text) || len(s) == len(suf.text) {
			continue
		}
		if base == 16 && isHexDigit(rune(suf.text[0])) {
			continue
		}
		if lit.Kind == FloatLit && suf.kind != FloatLit {
			return lit, false
		}
		s = s[:len(s)-len(suf.text)]
		lit.Kind, lit.Type = suf.kind, suf.typ
		break
	}

	if lit.Kind == FloatLit {
		if base != 10 {
			return lit, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return lit, false
		}
		lit.Float = f
		return lit, true
	}

	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return lit, false
	}
	if n := lit.Type.Size(); n > 0 && n < 8 {
		limit := uint64(1)<<(8*n) - 1
		if lit.Kind == SignedLit {
			limit >>= 1
		}
		if v > limit {
			return lit, false
		}
	}
	lit.Uint = v
	return lit, true
}

func (l *Lexer) operator() (Operator, bool) {
	for _, op := range symbolOperators {
		text := operatorText[op]
		if l.pos+len(text) > len(l.input) {
			continue
		}
		if string(l.input[l.pos:l.pos+len(text)]) == text {
			return op, true
		}
	}
	return 0, false
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentRune(r rune) bool {
	return isIdentStart(r) || isDigit(r)
}
