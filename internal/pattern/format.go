package pattern

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/jeffwilliams/hexcore/internal/provider"
)

// Format returns the default display value of p read from src.
func Format(p Pattern, src provider.Source) (string, error) {
	switch v := p.(type) {
	case *Struct, *Union, *Bitfield, *ArrayStatic, *ArrayDynamic:
		return "{ ... }", nil
	case *Padding:
		return "", nil
	case *Pointer:
		if v.Cyclic {
			return fmt.Sprintf("*(0x%X) ...", v.Address), nil
		}
		return fmt.Sprintf("*(0x%X)", v.Address), nil
	}

	val, err := GetValue(p, src)
	if err != nil {
		return "", err
	}
	size := p.Base().Size

	switch v := p.(type) {
	case *Enum:
		return formatEnum(v, val.(uint64)), nil
	case *Boolean:
		return strconv.FormatBool(val.(bool)), nil
	case *Character, *WideCharacter:
		return strconv.QuoteRuneToASCII(val.(rune)), nil
	case *String, *WideString:
		return strconv.Quote(val.(string)), nil
	case *Float:
		return strconv.FormatFloat(val.(float64), 'g', -1, 64), nil
	}

	switch x := val.(type) {
	case uint64:
		if _, ok := p.(*BitfieldField); ok {
			return fmt.Sprintf("%d (0x%X)", x, x), nil
		}
		return fmt.Sprintf("%d (0x%0*X)", x, 2*size, x), nil
	case int64:
		return fmt.Sprintf("%d (0x%0*X)", x, 2*size, uint64(x)&mask(size)), nil
	case *big.Int:
		bits := new(big.Int).Set(x)
		if bits.Sign() < 0 {
			bits.Add(bits, new(big.Int).Lsh(big.NewInt(1), uint(8*size)))
		}
		hex := strings.ToUpper(bits.Text(16))
		return fmt.Sprintf("%s (0x%s%s)", x.String(), strings.Repeat("0", max(0, int(2*size)-len(hex))), hex), nil
	}
	return fmt.Sprint(val), nil
}

func mask(size uint64) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*size) - 1
}

func formatEnum(e *Enum, v uint64) string {
	for _, en := range e.Entries {
		if en.Value == v {
			return e.TypeName + "::" + en.Name
		}
	}
	return fmt.Sprintf("%s::??? (0x%0*X)", e.TypeName, 2*e.Size, v)
}

// FormatFunc renders the value of p for a [[format("name")]] attribute.
type FormatFunc func(p Pattern, src provider.Source) (string, error)

// Formatters maps format function names to their implementations.
type Formatters map[string]FormatFunc

// StandardFormatters returns the format functions always available to patterns.
func StandardFormatters() Formatters {
	return Formatters{
		"hex": func(p Pattern, src provider.Source) (string, error) {
			return formatRadix(p, src, 16, "0x")
		},
		"binary": func(p Pattern, src provider.Source) (string, error) {
			return formatRadix(p, src, 2, "0b")
		},
		"octal": func(p Pattern, src provider.Source) (string, error) {
			return formatRadix(p, src, 8, "0o")
		},
	}
}

func formatRadix(p Pattern, src provider.Source, base int, prefix string) (string, error) {
	val, err := GetValue(p, src)
	if err != nil {
		return "", err
	}
	switch x := val.(type) {
	case uint64:
		return prefix + strings.ToUpper(strconv.FormatUint(x, base)), nil
	case int64:
		return prefix + strings.ToUpper(strconv.FormatUint(uint64(x)&mask(p.Base().Size), base)), nil
	case *big.Int:
		return prefix + strings.ToUpper(x.Text(base)), nil
	}
	return "", fmt.Errorf("%w: %s cannot be shown in base %d", ErrNoValue, kindName(p), base)
}

// ClearDisplayValues drops the cached display values of roots and their descendants. Call it when
// the bytes under the patterns change.
func ClearDisplayValues(roots []Pattern) {
	for _, r := range roots {
		Walk(r, func(p Pattern) bool {
			p.Base().clearCache()
			if a, ok := p.(*ArrayStatic); ok {
				a.Template.Base().clearCache()
			}
			return true
		})
	}
}

// FormatDisplayValue applies the pattern's format function to produce its display value. Without a
// format function, or if it is unknown or fails, def is returned. The result is cached on the
// pattern until it is moved.
func FormatDisplayValue(p Pattern, def string, fns Formatters, src provider.Source) string {
	c := p.Base()
	if c.Formatter == "" {
		return def
	}
	if c.hasCached {
		return c.cached
	}

	s := def
	if fn, ok := fns[c.Formatter]; ok {
		v, err := fn(p, src)
		if err != nil {
			dbg("format function %s failed for %s: %v", c.Formatter, c.Name(), err)
		} else {
			s = v
		}
	} else {
		dbg("unknown format function %s for %s", c.Formatter, c.Name())
	}

	c.cached, c.hasCached = s, true
	return s
}
