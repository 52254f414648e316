package color

import (
	"fmt"
	"hash/fnv"
	"math"
)

// Color is a packed 0xRRGGBBAA value. The zero Color means "use the default".
type Color uint32

const Default Color = 0

const (
	placementSaturation = 0.65
	placementValue      = 0.90
)

func RGBA(r, g, b, a uint8) Color {
	return Color(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a))
}

func (c Color) R() uint8 { return uint8(c >> 24) }
func (c Color) G() uint8 { return uint8(c >> 16) }
func (c Color) B() uint8 { return uint8(c >> 8) }
func (c Color) A() uint8 { return uint8(c) }

func (c Color) IsDefault() bool {
	return c == Default
}

func (c Color) WithAlpha(a uint8) Color {
	return c&^0xff | Color(a)
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R(), c.G(), c.B(), c.A())
}

// FromHSV converts hue in [0, 360) and saturation/value in [0, 1] to an opaque Color.
func FromHSV(h, s, v float64) Color {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	to8 := func(f float64) uint8 {
		return uint8(math.Round((f + m) * 255))
	}
	return RGBA(to8(r), to8(g), to8(b), 0xff)
}

// ForPlacement derives the colour of a top-level placement from the provider it lives in, its
// variable name and its type name. The same inputs always produce the same colour.
func ForPlacement(providerID uint64, name, typeName string) Color {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d\x00%s\x00%s", providerID, name, typeName)
	hue := float64(h.Sum64()%3600) / 10
	return FromHSV(hue, placementSaturation, placementValue)
}

// ParseHex parses #rrggbb or #rrggbbaa.
func ParseHex(s string) (c Color, err error) {
	if len(s) == 0 || s[0] != '#' {
		err = fmt.Errorf("Invalid hex color format when parsing '%s': does not begin with #", s)
		return
	}

	hexToByte := func(b byte) (byte, bool) {
		switch {
		case b >= '0' && b <= '9':
			return b - '0', true
		case b >= 'a' && b <= 'f':
			return b - 'a' + 10, true
		case b >= 'A' && b <= 'F':
			return b - 'A' + 10, true
		}
		return 0, false
	}

	digits := s[1:]
	if len(digits) != 6 && len(digits) != 8 {
		err = fmt.Errorf("Invalid hex color format when parsing '%s': expected 6 or 8 hex digits", s)
		return
	}
	if len(digits) == 6 {
		digits += "ff"
	}

	var v uint32
	for i := 0; i < len(digits); i++ {
		n, ok := hexToByte(digits[i])
		if !ok {
			err = fmt.Errorf("Invalid hex color format when parsing '%s': contains a character that is not 0-9, a-f or A-F", s)
			return
		}
		v = v<<4 | uint32(n)
	}
	return Color(v), nil
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(b []byte) error {
	v, err := ParseHex(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
